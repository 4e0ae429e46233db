// Package eventbus is an in-process publish/subscribe hub keyed by topic.
//
// Each subscription owns an unbounded FIFO queue. Publish appends to the
// queue of every subscription registered for the topic at that instant and
// returns without waiting for consumers. Subscribers pull events in
// publication order with Next.
package eventbus

import (
	"errors"
	"sync"
)

// ErrSubscriptionClosed is returned by Next once a subscription was removed
// or the bus was closed.
var ErrSubscriptionClosed = errors.New("eventbus: subscription closed")

// Bus fans out values of type T to the subscribers of a topic.
type Bus[T any] struct {
	mu     sync.Mutex
	topics map[string][]*Subscription[T]
	closed bool
}

// New creates an empty bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{
		topics: make(map[string][]*Subscription[T]),
	}
}

// Subscribe registers a listener for topic. Only values published after
// Subscribe returns are delivered. Subscribing to a closed bus yields a
// subscription that is already closed.
func (b *Bus[T]) Subscribe(topic string) *Subscription[T] {
	sub := newSubscription(b, topic)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.close()
		return sub
	}
	b.topics[topic] = append(b.topics[topic], sub)
	return sub
}

// Unsubscribe removes sub from its topic and discards anything still queued.
// Unsubscribing twice is a no-op.
func (b *Bus[T]) Unsubscribe(sub *Subscription[T]) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	subs := b.topics[sub.topic]
	for i, s := range subs {
		if s == sub {
			b.topics[sub.topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.topics[sub.topic]) == 0 {
		delete(b.topics, sub.topic)
	}
	b.mu.Unlock()

	sub.close()
}

// Publish hands v to every current subscriber of topic in registration
// order and returns how many received it. Publishing with no subscribers
// is a no-op.
func (b *Bus[T]) Publish(topic string, v T) int {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0
	}
	subs := make([]*Subscription[T], len(b.topics[topic]))
	copy(subs, b.topics[topic])
	b.mu.Unlock()

	delivered := 0
	for _, sub := range subs {
		if sub.push(v) {
			delivered++
		}
	}
	return delivered
}

// Subscribers returns the number of listeners registered for topic.
func (b *Bus[T]) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

// Close closes every subscription. Later publishes are dropped.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	topics := b.topics
	b.topics = make(map[string][]*Subscription[T])
	b.mu.Unlock()

	for _, subs := range topics {
		for _, sub := range subs {
			sub.close()
		}
	}
}
