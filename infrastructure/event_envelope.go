package infrastructure

import (
	"encoding/json"
	"fmt"
	"time"

	"betmirror/events"

	"github.com/google/uuid"
)

// EventEnvelope wraps every event published on the bus
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceService string          `json:"source_service"`
	Payload       json.RawMessage `json:"payload"`
}

const sourceService = "betmirror"

func newEnvelope(event events.Event) (*EventEnvelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     string(event.Type()),
		Timestamp:     time.Now().UTC(),
		SourceService: sourceService,
		Payload:       payload,
	}, nil
}

// decodeEvent rebuilds the typed event carried by an envelope
func decodeEvent(envelope *EventEnvelope) (events.Event, error) {
	switch events.EventType(envelope.EventType) {
	case events.EventTypeBetCreated:
		var event events.BetCreatedEvent
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			return nil, err
		}
		return event, nil
	case events.EventTypeBetTransitioned:
		var event events.BetTransitionedEvent
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			return nil, err
		}
		return event, nil
	default:
		return nil, fmt.Errorf("unknown event type: %s", envelope.EventType)
	}
}
