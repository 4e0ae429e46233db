package simpleposts

import (
	"context"
	"log/slog"

	"github.com/tendant/simple-posts/pkg/simpleposts/eventbus"
)

// EventBus is the bus type carrying post change events.
type EventBus = eventbus.Bus[*Post]

// Subscription is a listener on one post topic.
type Subscription = eventbus.Subscription[*Post]

// NewEventBus creates an empty post event bus.
func NewEventBus() *EventBus {
	return eventbus.New[*Post]()
}

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) PostAdded(ctx context.Context, post *Post) error   { return nil }
func (n *NoopEventSink) PostUpdated(ctx context.Context, post *Post) error { return nil }
func (n *NoopEventSink) PostDeleted(ctx context.Context, post *Post) error { return nil }

// LoggingEventSink writes post lifecycle events to a structured logger
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates an event sink that logs every event. A nil
// logger falls back to slog.Default().
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

func (l *LoggingEventSink) PostAdded(ctx context.Context, post *Post) error {
	l.log(ctx, TopicPostAdded, post)
	return nil
}

func (l *LoggingEventSink) PostUpdated(ctx context.Context, post *Post) error {
	l.log(ctx, TopicPostUpdated, post)
	return nil
}

func (l *LoggingEventSink) PostDeleted(ctx context.Context, post *Post) error {
	l.log(ctx, TopicPostDeleted, post)
	return nil
}

func (l *LoggingEventSink) log(ctx context.Context, topic Topic, post *Post) {
	l.logger.InfoContext(ctx, "post event",
		"topic", string(topic),
		"post_id", post.ID.String(),
		"owner_id", post.OwnerID.String(),
	)
}

// BusEventSink publishes post lifecycle events to an EventBus
type BusEventSink struct {
	bus *EventBus
}

// NewBusEventSink creates an event sink backed by bus
func NewBusEventSink(bus *EventBus) EventSink {
	return &BusEventSink{bus: bus}
}

func (b *BusEventSink) PostAdded(ctx context.Context, post *Post) error {
	b.bus.Publish(string(TopicPostAdded), post.Clone())
	return nil
}

func (b *BusEventSink) PostUpdated(ctx context.Context, post *Post) error {
	b.bus.Publish(string(TopicPostUpdated), post.Clone())
	return nil
}

func (b *BusEventSink) PostDeleted(ctx context.Context, post *Post) error {
	b.bus.Publish(string(TopicPostDeleted), post.Clone())
	return nil
}
