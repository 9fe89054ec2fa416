package application

import (
	"fmt"

	"betmirror/domain/interfaces"
	"betmirror/events"
)

// RegisterApplicationSubscriptions subscribes the notification handler to
// the mirror's committed events
func RegisterApplicationSubscriptions(subscriber interfaces.EventSubscriber, dispatcher interfaces.NotificationDispatcher) error {
	handler := NewNotificationEventHandler(dispatcher)

	if err := subscriber.Subscribe(events.EventTypeBetCreated, handler.HandleBetCreated); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.EventTypeBetCreated, err)
	}
	if err := subscriber.Subscribe(events.EventTypeBetTransitioned, handler.HandleBetTransitioned); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.EventTypeBetTransitioned, err)
	}
	return nil
}
