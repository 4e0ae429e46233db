package eventbus

import (
	"context"
	"sync"
)

// Subscription is one listener's view of a topic.
type Subscription[T any] struct {
	bus   *Bus[T]
	topic string

	mu     sync.Mutex
	queue  []T
	closed bool

	// ready holds at most one pending wake-up.
	ready chan struct{}
	done  chan struct{}
}

func newSubscription[T any](b *Bus[T], topic string) *Subscription[T] {
	return &Subscription[T]{
		bus:   b,
		topic: topic,
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Topic returns the topic the subscription listens on.
func (s *Subscription[T]) Topic() string {
	return s.topic
}

// Next blocks until a value is available, the subscription is closed or ctx
// is done. Values are returned in publication order.
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return zero, ErrSubscriptionClosed
		}
		if len(s.queue) > 0 {
			v := s.queue[0]
			s.queue[0] = zero
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return v, nil
		}
		s.mu.Unlock()

		select {
		case <-s.ready:
		case <-s.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Pending returns the number of queued values.
func (s *Subscription[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Done is closed when the subscription is closed.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Unsubscribe removes the subscription from its bus.
func (s *Subscription[T]) Unsubscribe() {
	s.bus.Unsubscribe(s)
}

func (s *Subscription[T]) push(v T) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, v)
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
	return true
}

func (s *Subscription[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.queue = nil
	close(s.done)
}
