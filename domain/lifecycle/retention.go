package lifecycle

import (
	"time"

	"betmirror/domain/entities"
)

// Visibility are the cutoffs used to hide long-settled bets from default
// listings. Hidden bets stay in the mirror.
type Visibility struct {
	RejectedBefore time.Time
	ClosedBefore   time.Time
}

// VisibilityAt computes the listing cutoffs at now
func (m *Machine) VisibilityAt(now time.Time) Visibility {
	return Visibility{
		RejectedBefore: now.Add(-m.policy.RejectedRetention),
		ClosedBefore:   now.Add(-m.policy.ClosedRetention),
	}
}

// IsHidden reports whether the bet falls outside the default listing window
func (m *Machine) IsHidden(bet *entities.Bet, now time.Time) bool {
	settledAt := bet.UpdatedAt
	if settledAt.IsZero() {
		settledAt = bet.CreatedAt()
	}
	v := m.VisibilityAt(now)

	switch bet.Status {
	case entities.BetStatusRejected:
		return settledAt.Before(v.RejectedBefore)
	case entities.BetStatusCancelled, entities.BetStatusMakerClaimed, entities.BetStatusTakerClaimed:
		return settledAt.Before(v.ClosedBefore)
	default:
		return false
	}
}
