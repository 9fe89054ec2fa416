package infrastructure

import (
	"fmt"

	"betmirror/events"
)

const (
	SubjectBetCreated        = "bets.created"
	SubjectBetTransitioned   = "bets.transitioned"
	SubjectNotificationsSend = "notifications.send"
)

// EventSubjectMapper handles mapping between domain events and NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

// MapEventTypeToSubject converts an event type to its NATS subject
func (m *EventSubjectMapper) MapEventTypeToSubject(eventType events.EventType) string {
	switch eventType {
	case events.EventTypeBetCreated:
		return SubjectBetCreated
	case events.EventTypeBetTransitioned:
		return SubjectBetTransitioned
	default:
		return fmt.Sprintf("unknown.%s", eventType)
	}
}

// MapSubjectToEventType converts a NATS subject back to an event type
func (m *EventSubjectMapper) MapSubjectToEventType(subject string) events.EventType {
	switch subject {
	case SubjectBetCreated:
		return events.EventTypeBetCreated
	case SubjectBetTransitioned:
		return events.EventTypeBetTransitioned
	default:
		return events.EventType(subject)
	}
}

// GetAllSubjects returns every subject carried by the bet event stream
func (m *EventSubjectMapper) GetAllSubjects() []string {
	return []string{
		SubjectBetCreated,
		SubjectBetTransitioned,
		SubjectNotificationsSend,
	}
}
