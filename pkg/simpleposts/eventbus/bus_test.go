package eventbus_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-posts/pkg/simpleposts/eventbus"
)

func nextWithTimeout[T any](t *testing.T, sub *eventbus.Subscription[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return sub.Next(ctx)
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	bus := eventbus.New[string]()
	assert.Equal(t, 0, bus.Publish("PostAdded", "hello"))
}

func TestBus_DeliversInOrder(t *testing.T) {
	bus := eventbus.New[int]()
	sub := bus.Subscribe("PostAdded")

	for i := 0; i < 100; i++ {
		require.Equal(t, 1, bus.Publish("PostAdded", i))
	}

	for i := 0; i < 100; i++ {
		v, err := nextWithTimeout(t, sub)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
}

func TestBus_FutureEventsOnly(t *testing.T) {
	bus := eventbus.New[string]()
	bus.Publish("PostAdded", "before")

	sub := bus.Subscribe("PostAdded")
	bus.Publish("PostAdded", "after")

	v, err := nextWithTimeout(t, sub)
	require.NoError(t, err)
	assert.Equal(t, "after", v)
	assert.Equal(t, 0, sub.Pending())
}

func TestBus_TopicsAreIsolated(t *testing.T) {
	bus := eventbus.New[string]()
	added := bus.Subscribe("PostAdded")
	deleted := bus.Subscribe("PostDeleted")

	bus.Publish("PostDeleted", "gone")

	assert.Equal(t, 0, added.Pending())
	v, err := nextWithTimeout(t, deleted)
	require.NoError(t, err)
	assert.Equal(t, "gone", v)
}

func TestBus_FanOutToEveryListener(t *testing.T) {
	bus := eventbus.New[string]()
	subs := []*eventbus.Subscription[string]{
		bus.Subscribe("PostUpdated"),
		bus.Subscribe("PostUpdated"),
		bus.Subscribe("PostUpdated"),
	}

	assert.Equal(t, 3, bus.Publish("PostUpdated", "edit"))
	for _, sub := range subs {
		v, err := nextWithTimeout(t, sub)
		require.NoError(t, err)
		assert.Equal(t, "edit", v)
	}
}

func TestBus_SlowListenerDoesNotBlockPublish(t *testing.T) {
	bus := eventbus.New[int]()
	slow := bus.Subscribe("PostAdded")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			bus.Publish("PostAdded", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on an idle listener")
	}
	assert.Equal(t, 10000, slow.Pending())
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := eventbus.New[string]()
	sub := bus.Subscribe("PostAdded")
	bus.Publish("PostAdded", "queued")

	bus.Unsubscribe(sub)
	assert.Equal(t, 0, bus.Subscribers("PostAdded"))
	assert.Equal(t, 0, bus.Publish("PostAdded", "dropped"))

	_, err := nextWithTimeout(t, sub)
	assert.ErrorIs(t, err, eventbus.ErrSubscriptionClosed)

	assert.NotPanics(t, func() { sub.Unsubscribe() })
}

func TestBus_UnsubscribeWakesBlockedReader(t *testing.T) {
	bus := eventbus.New[string]()
	sub := bus.Subscribe("PostAdded")

	errCh := make(chan error, 1)
	go func() {
		_, err := sub.Next(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	sub.Unsubscribe()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, eventbus.ErrSubscriptionClosed)
	case <-time.After(time.Second):
		t.Fatal("reader was not woken by unsubscribe")
	}
}

func TestBus_NextHonoursContext(t *testing.T) {
	bus := eventbus.New[string]()
	sub := bus.Subscribe("PostAdded")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := sub.Next(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestBus_Close(t *testing.T) {
	bus := eventbus.New[string]()
	sub := bus.Subscribe("PostAdded")

	bus.Close()
	bus.Close()

	<-sub.Done()
	assert.Equal(t, 0, bus.Publish("PostAdded", "late"))

	late := bus.Subscribe("PostAdded")
	_, err := nextWithTimeout(t, late)
	assert.ErrorIs(t, err, eventbus.ErrSubscriptionClosed)
}

func TestBus_ConcurrentMembershipAndPublish(t *testing.T) {
	bus := eventbus.New[string]()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				sub := bus.Subscribe("PostAdded")
				bus.Publish("PostAdded", fmt.Sprintf("%d-%d", n, j))
				sub.Unsubscribe()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, bus.Subscribers("PostAdded"))
}
