package interfaces

import (
	"context"
	"time"

	"betmirror/domain/entities"
	"betmirror/events"
)

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	Publish(event events.Event) error
}

// EventSubscriber delivers published events to a handler per event type
type EventSubscriber interface {
	Subscribe(eventType events.EventType, handler func(context.Context, events.Event) error) error
}

// TransactionalEventPublisher holds events until the surrounding transaction commits
type TransactionalEventPublisher interface {
	EventPublisher
	Flush(ctx context.Context) error
	Discard()
}

// ChainExecutor submits and confirms contract transactions
type ChainExecutor interface {
	// Submit broadcasts exactly one transaction for the action, preceded by an
	// ERC20 approval when the allowance is short, and blocks until a receipt
	// or the confirmation timeout
	Submit(ctx context.Context, sub entities.Submission) (*entities.Receipt, error)

	// AwaitReceipt confirms a transaction signed elsewhere and checks that it
	// calls the contract function expected for the submission
	AwaitReceipt(ctx context.Context, txHash string, sub entities.Submission) (*entities.Receipt, error)

	// InspectTransaction decodes which bet action a mined transaction called
	// and who signed it
	InspectTransaction(ctx context.Context, txHash string) (*entities.ChainCall, error)

	// ReadBet reads the authoritative bet from the contract
	ReadBet(ctx context.Context, betNumber int64) (*entities.Bet, error)

	// SignerAddress is the address the executor signs with, empty when read-only
	SignerAddress() string
}

// NotificationSender hands a notification to the transport
type NotificationSender interface {
	Send(ctx context.Context, notification entities.Notification) error
}

// NotificationDispatcher informs the counterparties of a committed transition.
// Delivery is best-effort and never affects the mirror.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, bet *entities.Bet, transition entities.Transition) error
}

// IdentityProvider resolves social identities
type IdentityProvider interface {
	ProfileByFID(ctx context.Context, fid int64) (*entities.Profile, error)
	ProfilesByFID(ctx context.Context, fids []int64) (map[int64]*entities.Profile, error)
	ProfileByAddress(ctx context.Context, address string) (*entities.Profile, error)
}

// MetricsRecorder receives lifecycle measurements
type MetricsRecorder interface {
	RecordTransitionCommitted(action entities.Action, source string)
	RecordMirrorConflict(action entities.Action)
	RecordPolicyViolation(action entities.Action)
	RecordChainSubmission(action entities.Action, outcome string, duration time.Duration)
	RecordNotification(notificationType entities.NotificationType, outcome string)
}

// Clock returns the current time
type Clock func() time.Time
