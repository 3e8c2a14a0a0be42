package registryservice_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-crowdship-push/internal/metrics"
	"github.com/tinywideclouds/go-crowdship-push/pkg/dispatch"
	"github.com/tinywideclouds/go-crowdship-push/pkg/push"
	"github.com/tinywideclouds/go-crowdship-push/registryservice"
	"github.com/tinywideclouds/go-crowdship-push/registryservice/config"
)

// memoryStore is an in-memory DeviceStore for routing tests.
type memoryStore struct {
	mu      sync.Mutex
	devices map[string][]dispatch.Device
}

func newMemoryStore() *memoryStore {
	return &memoryStore{devices: make(map[string][]dispatch.Device)}
}

func (s *memoryStore) Register(_ context.Context, userID string, device dispatch.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.devices[userID] {
		if d.Token == device.Token {
			s.devices[userID][i] = device
			return nil
		}
	}
	s.devices[userID] = append(s.devices[userID], device)
	return nil
}

func (s *memoryStore) Unregister(_ context.Context, userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.devices[userID][:0]
	for _, d := range s.devices[userID] {
		if d.Token != token {
			kept = append(kept, d)
		}
	}
	s.devices[userID] = kept
	return nil
}

func (s *memoryStore) Fetch(_ context.Context, userID string) ([]dispatch.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]dispatch.Device(nil), s.devices[userID]...), nil
}

// idleConsumer never yields a message.
type idleConsumer struct {
	msgs chan messagepipeline.Message
	done chan struct{}
	once sync.Once
}

func newIdleConsumer() *idleConsumer {
	return &idleConsumer{msgs: make(chan messagepipeline.Message), done: make(chan struct{})}
}

func (c *idleConsumer) Messages() <-chan messagepipeline.Message { return c.msgs }
func (c *idleConsumer) Start(context.Context) error             { return nil }
func (c *idleConsumer) Stop(context.Context) error {
	c.once.Do(func() {
		close(c.msgs)
		close(c.done)
	})
	return nil
}
func (c *idleConsumer) Done() <-chan struct{} { return c.done }

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(context.Context, []string, dispatch.Content, map[string]string) (string, []string, error) {
	return "ok", nil, nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(t *testing.T) (*registryservice.Wrapper, *memoryStore) {
	t.Helper()
	logger := newTestLogger()
	store := newMemoryStore()
	svc, err := registryservice.New(
		&config.Config{ListenAddr: ":0", NumPipelineWorkers: 1},
		newIdleConsumer(),
		map[push.Platform]dispatch.Dispatcher{push.PlatformAndroid: noopDispatcher{}},
		store,
		metrics.New(),
		logger,
	)
	require.NoError(t, err)
	return svc, store
}

func send(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRoutes_TokenLifecycle(t *testing.T) {
	svc, store := newService(t)
	mux := svc.Mux()
	ctx := context.Background()

	w := send(t, mux, http.MethodPost, push.PathRegister, push.RegisterRequest{Token: "t1", UserID: "u1", Platform: push.PlatformIOS})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = send(t, mux, http.MethodPut, push.PathRefresh, push.TokenRequest{Token: "t2", UserID: "u1"})
	require.Equal(t, http.StatusNoContent, w.Code)

	devices, _ := store.Fetch(ctx, "u1")
	assert.ElementsMatch(t, []dispatch.Device{
		{Token: "t1", Platform: push.PlatformIOS},
		{Token: "t2", Platform: push.PlatformIOS},
	}, devices)

	w = send(t, mux, http.MethodDelete, push.PathUnregister, push.TokenRequest{Token: "t1", UserID: "u1"})
	require.Equal(t, http.StatusNoContent, w.Code)

	// Unregister is idempotent.
	w = send(t, mux, http.MethodDelete, push.PathUnregister, push.TokenRequest{Token: "t1", UserID: "u1"})
	require.Equal(t, http.StatusNoContent, w.Code)

	devices, _ = store.Fetch(ctx, "u1")
	assert.Equal(t, []dispatch.Device{{Token: "t2", Platform: push.PlatformIOS}}, devices)
}

func TestRoutes_Metrics(t *testing.T) {
	svc, _ := newService(t)
	mux := svc.Mux()

	send(t, mux, http.MethodPost, push.PathRegister, push.RegisterRequest{Token: "t1", UserID: "u1", Platform: push.PlatformAndroid})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `push_registry_registration_total{platform="android"} 1`)
}

func TestNew_Validation(t *testing.T) {
	logger := newTestLogger()
	_, err := registryservice.New(&config.Config{}, nil, nil, newMemoryStore(), nil, logger)
	assert.Error(t, err)
}
