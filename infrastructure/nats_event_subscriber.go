package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"

	"betmirror/domain/interfaces"
	"betmirror/events"

	log "github.com/sirupsen/logrus"
)

// NATSEventSubscriber subscribes to NATS subjects and deserializes events for application handlers
type NATSEventSubscriber struct {
	subscriber    MessageSubscriber
	subjectMapper *EventSubjectMapper
}

var _ interfaces.EventSubscriber = (*NATSEventSubscriber)(nil)

// NewNATSEventSubscriber creates a new NATS event subscriber
func NewNATSEventSubscriber(subscriber MessageSubscriber, subjectMapper *EventSubjectMapper) *NATSEventSubscriber {
	if subjectMapper == nil {
		subjectMapper = NewEventSubjectMapper()
	}
	return &NATSEventSubscriber{
		subscriber:    subscriber,
		subjectMapper: subjectMapper,
	}
}

// Subscribe registers a handler for a specific event type
func (s *NATSEventSubscriber) Subscribe(eventType events.EventType, handler func(context.Context, events.Event) error) error {
	subject := s.subjectMapper.MapEventTypeToSubject(eventType)

	log.WithFields(log.Fields{
		"eventType": eventType,
		"subject":   subject,
	}).Info("Registering event handler for subject")

	return s.subscriber.Subscribe(subject, func(data []byte) error {
		return s.handleMessage(subject, data, handler)
	})
}

// handleMessage deserializes a NATS message and hands it to the handler. A
// returned error causes redelivery.
func (s *NATSEventSubscriber) handleMessage(subject string, data []byte, handler func(context.Context, events.Event) error) error {
	var envelope EventEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		log.WithFields(log.Fields{
			"subject": subject,
			"error":   err,
		}).Error("Failed to unmarshal event envelope")
		return fmt.Errorf("failed to unmarshal event envelope: %w", err)
	}

	event, err := decodeEvent(&envelope)
	if err != nil {
		log.WithFields(log.Fields{
			"subject":     subject,
			"eventType":   envelope.EventType,
			"eventId":     envelope.EventID,
			"error":       err,
			"payloadSize": len(envelope.Payload),
		}).Error("Failed to deserialize event payload")
		return fmt.Errorf("failed to deserialize event payload: %w", err)
	}

	if err := handler(context.Background(), event); err != nil {
		log.WithFields(log.Fields{
			"subject":   subject,
			"eventType": envelope.EventType,
			"eventId":   envelope.EventID,
			"error":     err,
		}).Error("Event handler failed")
		return err
	}

	log.WithFields(log.Fields{
		"subject":   subject,
		"eventType": envelope.EventType,
		"eventId":   envelope.EventID,
	}).Debug("Successfully processed NATS event")
	return nil
}
