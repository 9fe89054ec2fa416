package infrastructure

import (
	"context"

	"betmirror/domain/interfaces"
	"betmirror/events"
)

// LocalEventSubscriber delivers events in-process as they are flushed after
// commit. It is used when no NATS servers are configured.
type LocalEventSubscriber struct {
	publisher *NATSEventPublisher
}

var _ interfaces.EventSubscriber = (*LocalEventSubscriber)(nil)

// NewLocalEventSubscriber creates a subscriber on the publisher's local handlers
func NewLocalEventSubscriber(publisher *NATSEventPublisher) *LocalEventSubscriber {
	return &LocalEventSubscriber{publisher: publisher}
}

// Subscribe registers handler for eventType
func (s *LocalEventSubscriber) Subscribe(eventType events.EventType, handler func(context.Context, events.Event) error) error {
	s.publisher.RegisterLocalHandler(eventType, handler)
	return nil
}
