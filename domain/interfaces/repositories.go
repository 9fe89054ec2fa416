package interfaces

import (
	"context"
	"time"

	"betmirror/domain/entities"
)

// BetFilter narrows a bet listing. Address and FID match any party role.
type BetFilter struct {
	Address  string
	FID      *int64
	Statuses []entities.BetStatus

	// HideRejectedBefore and HideClosedBefore drop long-settled bets; nil
	// includes them
	HideRejectedBefore *time.Time
	HideClosedBefore   *time.Time

	Limit  int
	Offset int
}

// Prior identifies the snapshot a transition was decided against. The
// transaction hash tells apart two snapshots with the same status, as an edit
// leaves a bet in CREATED.
type Prior struct {
	Status          entities.BetStatus
	TransactionHash string
}

// PriorOf returns the compare-and-set key of a snapshot
func PriorOf(bet *entities.Bet) Prior {
	return Prior{Status: bet.Status, TransactionHash: bet.TransactionHash}
}

// BetUpdate is the set of fields a committed transition writes
type BetUpdate struct {
	Status          entities.BetStatus
	TransactionHash string

	// Terms replaces the editable terms when set
	Terms *entities.Terms

	// ArbiterAddress and ArbiterFID record an open-role claimant when set
	ArbiterAddress []string
	ArbiterFID     *int64

	// ReconciledFrom is stored as given; nil clears the marker
	ReconciledFrom *entities.BetStatus
}

// BetRepository defines the interface for the bet mirror
type BetRepository interface {
	// Create mirrors a newly created bet. It reports false when the bet number
	// is already present.
	Create(ctx context.Context, bet *entities.Bet) (bool, error)

	// GetByNumber returns the latest committed snapshot, or nil when absent
	GetByNumber(ctx context.Context, betNumber int64) (*entities.Bet, error)

	// List returns bets matching the filter, newest first
	List(ctx context.Context, filter BetFilter) ([]*entities.Bet, error)

	// CommitTransition writes update only if the stored status and
	// transaction hash still equal expected. It returns
	// entities.ErrMirrorConflict otherwise.
	CommitTransition(ctx context.Context, betNumber int64, expected Prior, update BetUpdate) (*entities.Bet, error)

	// AttachFIDs fills in social ids for parties whose address has been resolved
	AttachFIDs(ctx context.Context, betNumber int64, makerFID, takerFID, arbiterFID *int64) error
}

// NotificationLogRepository records which recipients were sent which transition
type NotificationLogRepository interface {
	// Reserve inserts a pending entry and reports false when an entry for the
	// same bet, transaction and recipient already exists
	Reserve(ctx context.Context, entry *entities.NotificationLogEntry) (bool, error)

	// MarkDelivered flags a reserved entry as sent
	MarkDelivered(ctx context.Context, id int64) error

	// MarkFailed stores the last delivery error for a reserved entry
	MarkFailed(ctx context.Context, id int64, reason string) error

	// ListByBet returns the log for a bet, oldest first
	ListByBet(ctx context.Context, betNumber int64) ([]*entities.NotificationLogEntry, error)
}

// SyncStateRepository stores the last chain block the log listener processed
type SyncStateRepository interface {
	GetCursor(ctx context.Context, name string) (uint64, error)
	SetCursor(ctx context.Context, name string, block uint64) error
}
