package lifecycle

import (
	"fmt"
	"time"

	"betmirror/domain/entities"
)

// Description is what a viewer sees for a bet at a moment in time
type Description struct {
	Status  entities.BetStatus `json:"status"`
	Label   string             `json:"label"`
	Message string             `json:"message"`
	Role    entities.Role      `json:"role"`

	// Unknown is set when the stored status is outside the defined set
	Unknown bool `json:"unknown"`

	Expired       bool              `json:"expired"`
	TimeRemaining time.Duration     `json:"time_remaining"`
	Actions       []entities.Action `json:"actions"`
}

// Describe maps a bet, a viewer and the current time to a display status and
// the viewer's permitted actions. It never reads a clock of its own, so two
// calls with different now values may disagree.
func (m *Machine) Describe(bet *entities.Bet, viewer entities.Identity, now time.Time) Description {
	if bet == nil {
		return Description{
			Role:    entities.RoleSpectator,
			Unknown: true,
			Label:   "Unknown",
			Message: "No such bet",
			Actions: []entities.Action{},
		}
	}

	roles := ResolveRoles(bet, viewer)
	expired := bet.IsExpired(now)

	d := Description{
		Status:  bet.Status,
		Role:    roles.Primary(),
		Expired: expired,
		Actions: []entities.Action{},
	}
	if !expired {
		d.TimeRemaining = bet.EndsAt().Sub(now)
	}

	if !bet.Status.IsKnown() {
		d.Unknown = true
		d.Label = "Unknown"
		d.Message = fmt.Sprintf("Unrecognised status %d", int(bet.Status))
		return d
	}

	d.Label, d.Message = m.text(bet, roles, now)
	if permitted := m.Permitted(bet, viewer, now); permitted != nil {
		d.Actions = permitted
	}
	return d
}

func (m *Machine) text(bet *entities.Bet, roles entities.Roles, now time.Time) (string, string) {
	expired := bet.IsExpired(now)

	switch bet.Status {
	case entities.BetStatusCreated:
		switch {
		case expired:
			return "Timed out", "Bet timed out before the taker accepted"
		case roles.Taker:
			return "Offer received", "You have been offered this bet"
		case roles.Maker:
			return "Pending", "Waiting for the taker to accept"
		default:
			return "Pending", "Waiting for the taker to accept"
		}

	case entities.BetStatusTakerAccepted:
		switch {
		case roles.Arbiter:
			return "Arbiter invitation", "You have been asked to arbitrate this bet"
		case !bet.HasAssignedArbiter() && !roles.Maker && !roles.Taker:
			return "Arbiter needed", "This bet is open for an arbiter to claim"
		case !bet.HasAssignedArbiter():
			return "Arbiter needed", "Waiting for someone to claim the arbiter role"
		default:
			return "Accepted", "Waiting for the arbiter to accept"
		}

	case entities.BetStatusArbiterAccepted:
		settle := bet.CanSettleEarly || expired
		switch {
		case settle && roles.Arbiter:
			return "Decision needed", "Select the winner of this bet"
		case settle:
			return "Awaiting decision", "Waiting for the arbiter to select a winner"
		default:
			return "In progress", fmt.Sprintf("Bet ends %s", bet.EndsAt().Format(time.RFC3339))
		}

	case entities.BetStatusMakerWins:
		switch {
		case roles.Maker:
			return "You won", "Claim your winnings"
		case roles.Taker:
			return "You lost", "The maker won this bet"
		default:
			return "Maker won", "Waiting for the maker to claim"
		}

	case entities.BetStatusTakerWins:
		switch {
		case roles.Taker:
			return "You won", "Claim your winnings"
		case roles.Maker:
			return "You lost", "The taker won this bet"
		default:
			return "Taker won", "Waiting for the taker to claim"
		}

	case entities.BetStatusMakerClaimed:
		return "Claimed", "The maker claimed the winnings"

	case entities.BetStatusTakerClaimed:
		return "Claimed", "The taker claimed the winnings"

	case entities.BetStatusCancelled:
		return "Cancelled", "This bet was cancelled"

	case entities.BetStatusRejected:
		if roles.Maker {
			return "Rejected", "The taker rejected this bet; edit or cancel it"
		}
		return "Rejected", "The taker rejected this bet"

	case entities.BetStatusArbiterDeclined:
		return "Arbiter declined", "The arbiter declined; either party may cancel once the waiting period ends"
	}

	// IsKnown guards every defined status above
	return "Unknown", fmt.Sprintf("Unrecognised status %d", int(bet.Status))
}
