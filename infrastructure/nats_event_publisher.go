package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"betmirror/domain/interfaces"
	"betmirror/events"

	log "github.com/sirupsen/logrus"
)

// EventHandler handles an event delivered in-process or from the bus
type EventHandler func(context.Context, events.Event) error

// NATSEventPublisher publishes domain events to NATS and invokes in-process handlers
type NATSEventPublisher struct {
	publisher     MessagePublisher
	subjectMapper *EventSubjectMapper
	mu            sync.RWMutex
	localHandlers map[events.EventType][]EventHandler
}

var _ interfaces.EventPublisher = (*NATSEventPublisher)(nil)

// NewNATSEventPublisher creates a new NATS event publisher. A nil publisher
// keeps delivery in-process only.
func NewNATSEventPublisher(publisher MessagePublisher, subjectMapper *EventSubjectMapper) *NATSEventPublisher {
	if subjectMapper == nil {
		subjectMapper = NewEventSubjectMapper()
	}
	return &NATSEventPublisher{
		publisher:     publisher,
		subjectMapper: subjectMapper,
		localHandlers: make(map[events.EventType][]EventHandler),
	}
}

// Publish runs local handlers for the event, then publishes it on its subject
func (p *NATSEventPublisher) Publish(event events.Event) error {
	ctx := context.Background()
	eventType := event.Type()

	p.mu.RLock()
	handlers := append([]EventHandler(nil), p.localHandlers[eventType]...)
	p.mu.RUnlock()

	for _, handler := range handlers {
		log.WithFields(log.Fields{
			"eventType": eventType,
		}).Debug("Invoking local handler for event")

		if err := handler(ctx, event); err != nil {
			// Local handler errors do not stop other handlers or the bus publish
			log.WithFields(log.Fields{
				"eventType": eventType,
				"error":     err,
			}).Error("Local event handler failed")
		}
	}

	if p.publisher == nil {
		return nil
	}

	subject := p.subjectMapper.MapEventTypeToSubject(eventType)

	envelope, err := newEnvelope(event)
	if err != nil {
		return err
	}
	envelopeData, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	if err := p.publisher.Publish(ctx, subject, envelopeData); err != nil {
		if strings.Contains(err.Error(), "no response from stream") {
			log.WithField("subject", subject).Warn("No stream bound to subject, event dropped")
			return nil
		}
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}

	log.WithFields(log.Fields{
		"eventType": eventType,
		"eventId":   envelope.EventID,
		"subject":   subject,
	}).Debug("Successfully published event to NATS")

	return nil
}

// RegisterLocalHandler registers a handler that will be invoked in-process for events
func (p *NATSEventPublisher) RegisterLocalHandler(eventType events.EventType, handler EventHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.localHandlers[eventType] = append(p.localHandlers[eventType], handler)
	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(p.localHandlers[eventType]),
	}).Info("Registered local event handler")
}
