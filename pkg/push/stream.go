package push

import (
	"context"
	"sync"
)

// Subscription is a cancellable listener registration.
type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Unsubscribe() { f() }

// Stream is a serial event stream. Publish delivers to every current handler in
// subscription order and returns once all handlers have run, so events are
// processed one at a time in arrival order.
type Stream[T any] struct {
	mu       sync.Mutex
	deliver  sync.Mutex
	next     int
	handlers map[int]func(context.Context, T)
	order    []int
}

// Subscribe registers a handler until the returned Subscription is released.
func (s *Stream[T]) Subscribe(handler func(context.Context, T)) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers == nil {
		s.handlers = make(map[int]func(context.Context, T))
	}
	id := s.next
	s.next++
	s.handlers[id] = handler
	s.order = append(s.order, id)

	var once sync.Once
	return SubscriptionFunc(func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.handlers, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	})
}

// Publish delivers v to all current handlers.
func (s *Stream[T]) Publish(ctx context.Context, v T) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	handlers := make([]func(context.Context, T), 0, len(s.order))
	for _, id := range s.order {
		handlers = append(handlers, s.handlers[id])
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(ctx, v)
	}
}

// Len reports the number of active handlers.
func (s *Stream[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}
