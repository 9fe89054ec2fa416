package events

import (
	"time"

	"betmirror/domain/entities"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBetCreated      EventType = "bet_created"
	EventTypeBetTransitioned EventType = "bet_transitioned"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// Source records which path committed a change to the mirror
type Source string

const (
	// SourceService is a transition the service submitted with its own signer
	SourceService Source = "service"
	// SourceClient is a transition signed by a client wallet and reported by hash
	SourceClient Source = "client"
	// SourceChain is a change picked up from contract logs or a chain read
	SourceChain Source = "chain"
)

// BetCreatedEvent is emitted once a new bet has been mirrored
type BetCreatedEvent struct {
	BetNumber       int64        `json:"bet_number"`
	TransactionHash string       `json:"transaction_hash"`
	Bet             entities.Bet `json:"bet"`
	Source          Source       `json:"source"`
	OccurredAt      time.Time    `json:"occurred_at"`
}

func (e BetCreatedEvent) Type() EventType {
	return EventTypeBetCreated
}

// BetTransitionedEvent is emitted after a transition is committed to the mirror
type BetTransitionedEvent struct {
	BetNumber       int64              `json:"bet_number"`
	Action          entities.Action    `json:"action"`
	Actor           entities.Identity  `json:"actor"`
	FromStatus      entities.BetStatus `json:"from_status"`
	ToStatus        entities.BetStatus `json:"to_status"`
	TransactionHash string             `json:"transaction_hash"`
	Source          Source             `json:"source"`

	// Bet is the committed snapshot after the transition
	Bet        entities.Bet `json:"bet"`
	OccurredAt time.Time    `json:"occurred_at"`
}

func (e BetTransitionedEvent) Type() EventType {
	return EventTypeBetTransitioned
}
