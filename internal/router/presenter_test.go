package router_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-crowdship-push/internal/router"
	"github.com/tinywideclouds/go-crowdship-push/pkg/push"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Display(ctx context.Context, n push.LocalNotification) error {
	return m.Called(ctx, n).Error(0)
}

type mockNavigator struct {
	mock.Mock
}

func (m *mockNavigator) Navigate(ctx context.Context, target string) error {
	return m.Called(ctx, target).Error(0)
}

func TestPresenter_HandleForeground(t *testing.T) {
	ctx := context.Background()

	t.Run("Displays with defaults and original data", func(t *testing.T) {
		notifier := new(mockNotifier)
		p := router.NewPresenter(notifier, nil, newTestLogger())
		data := map[string]string{"type": "chat", "chatId": "C1"}

		notifier.On("Display", ctx, push.LocalNotification{
			Title:     router.DefaultTitle,
			Body:      "hi there",
			ChannelID: router.ChannelMessages,
			Data:      data,
		}).Return(nil)

		p.HandleForeground(ctx, push.RemoteMessage{Notification: &push.Notification{Body: "hi there"}, Data: data})
		notifier.AssertExpectations(t)
	})

	t.Run("Displays even without data", func(t *testing.T) {
		notifier := new(mockNotifier)
		p := router.NewPresenter(notifier, nil, newTestLogger())
		notifier.On("Display", ctx, mock.Anything).Return(nil)

		p.HandleForeground(ctx, push.RemoteMessage{})
		notifier.AssertNumberOfCalls(t, "Display", 1)
	})

	t.Run("Display failure does not panic", func(t *testing.T) {
		notifier := new(mockNotifier)
		p := router.NewPresenter(notifier, nil, newTestLogger())
		notifier.On("Display", ctx, mock.Anything).Return(assert.AnError)

		assert.NotPanics(t, func() { p.HandleForeground(ctx, push.RemoteMessage{}) })
	})
}

func TestPresenter_HandleBackground(t *testing.T) {
	ctx := context.Background()
	notifier := new(mockNotifier)
	p := router.NewPresenter(notifier, nil, newTestLogger())

	data := map[string]string{"type": "trip_update", "tripId": "T2"}
	content, err := p.HandleBackground(ctx, push.RemoteMessage{
		Notification: &push.Notification{Title: "Trip started"},
		Data:         data,
	})

	require.NoError(t, err)
	assert.Equal(t, "Trip started", content.Title)
	assert.Equal(t, router.DefaultBody, content.Body)
	assert.Equal(t, router.ChannelTrips, content.ChannelID)

	target, ok := router.RouteData(content.Data)
	require.True(t, ok)
	assert.Equal(t, "/screens/trips/T2", target)
	notifier.AssertNotCalled(t, "Display", mock.Anything, mock.Anything)
}

func TestPresenter_HandleOpened(t *testing.T) {
	ctx := context.Background()

	t.Run("Navigates to derived target", func(t *testing.T) {
		nav := new(mockNavigator)
		nav.On("Navigate", ctx, "/screens/bookings/B1").Return(nil)
		p := router.NewPresenter(new(mockNotifier), nav, newTestLogger())

		target, ok := p.HandleOpened(ctx, map[string]string{"type": "booking_update", "bookingId": "B1"})

		assert.True(t, ok)
		assert.Equal(t, "/screens/bookings/B1", target)
		nav.AssertExpectations(t)
	})

	t.Run("No data means no navigation", func(t *testing.T) {
		nav := new(mockNavigator)
		p := router.NewPresenter(new(mockNotifier), nav, newTestLogger())

		_, ok := p.HandleOpened(ctx, nil)

		assert.False(t, ok)
		nav.AssertNotCalled(t, "Navigate", mock.Anything, mock.Anything)
	})

	t.Run("Navigation failure reported", func(t *testing.T) {
		nav := new(mockNavigator)
		nav.On("Navigate", ctx, "/screens/payments").Return(assert.AnError)
		p := router.NewPresenter(new(mockNotifier), nav, newTestLogger())

		target, ok := p.HandleOpened(ctx, map[string]string{"type": "payment"})

		assert.False(t, ok)
		assert.Equal(t, "/screens/payments", target)
	})
}
