package lifecycle

import (
	"time"

	"betmirror/domain/entities"
)

// Context is everything a rule may inspect when deciding legality
type Context struct {
	Bet    *entities.Bet
	Actor  entities.Identity
	Roles  entities.Roles
	Now    time.Time
	Args   entities.ActionArgs
	Policy Policy
}

// Rule is one row of the transition table
type Rule struct {
	From   entities.BetStatus
	Action entities.Action

	// Actor names who may perform the action, for messages
	Actor string

	// Eligible decides whether the caller holds a role that may act
	Eligible func(c Context) bool

	// Guard is the state and time precondition; it returns a refusal reason
	// or the empty string
	Guard func(c Context) string

	// CheckArgs validates action-specific arguments. It is skipped when
	// computing the permitted-action set for a viewer.
	CheckArgs func(c Context) string

	// Target computes the resulting status
	Target func(c Context) entities.BetStatus
}

// transitions is the single table consulted both when offering actions and
// when enforcing them
var transitions = []Rule{
	{
		From:     entities.BetStatusCreated,
		Action:   entities.ActionAccept,
		Actor:    "taker",
		Eligible: hasRole(entities.RoleTaker),
		Guard:    notExpired,
		Target:   to(entities.BetStatusTakerAccepted),
	},
	{
		From:     entities.BetStatusCreated,
		Action:   entities.ActionReject,
		Actor:    "taker",
		Eligible: hasRole(entities.RoleTaker),
		Target:   to(entities.BetStatusRejected),
	},
	{
		From:     entities.BetStatusCreated,
		Action:   entities.ActionCancel,
		Actor:    "maker",
		Eligible: hasRole(entities.RoleMaker),
		Target:   to(entities.BetStatusCancelled),
	},
	{
		From:      entities.BetStatusCreated,
		Action:    entities.ActionEdit,
		Actor:     "maker",
		Eligible:  hasRole(entities.RoleMaker),
		CheckArgs: validTerms,
		Target:    to(entities.BetStatusCreated),
	},
	{
		From:     entities.BetStatusTakerAccepted,
		Action:   entities.ActionArbiterAccept,
		Actor:    "arbiter",
		Eligible: arbiterOrOpenClaimant,
		Target:   to(entities.BetStatusArbiterAccepted),
	},
	{
		From:     entities.BetStatusTakerAccepted,
		Action:   entities.ActionArbiterReject,
		Actor:    "assigned arbiter",
		Eligible: assignedArbiter,
		Target:   to(entities.BetStatusArbiterDeclined),
	},
	{
		From:     entities.BetStatusArbiterAccepted,
		Action:   entities.ActionForfeit,
		Actor:    "maker or taker",
		Eligible: hasRole(entities.RoleMaker, entities.RoleTaker),
		Guard:    singleParty,
		Target:   forfeitTarget,
	},
	{
		From:      entities.BetStatusArbiterAccepted,
		Action:    entities.ActionSelectWinner,
		Actor:     "arbiter",
		Eligible:  hasRole(entities.RoleArbiter),
		Guard:     settleable,
		CheckArgs: rulingGiven,
		Target:    winnerTarget,
	},
	{
		From:     entities.BetStatusMakerWins,
		Action:   entities.ActionClaim,
		Actor:    "maker",
		Eligible: hasRole(entities.RoleMaker),
		Target:   to(entities.BetStatusMakerClaimed),
	},
	{
		From:     entities.BetStatusTakerWins,
		Action:   entities.ActionClaim,
		Actor:    "taker",
		Eligible: hasRole(entities.RoleTaker),
		Target:   to(entities.BetStatusTakerClaimed),
	},
	{
		From:     entities.BetStatusArbiterDeclined,
		Action:   entities.ActionNoArbiterCancel,
		Actor:    "maker or taker",
		Eligible: hasRole(entities.RoleMaker, entities.RoleTaker),
		Guard:    arbiterWindowElapsed,
		Target:   to(entities.BetStatusCancelled),
	},
	{
		From:     entities.BetStatusTakerAccepted,
		Action:   entities.ActionNoArbiterCancel,
		Actor:    "maker or taker",
		Eligible: hasRole(entities.RoleMaker, entities.RoleTaker),
		Guard:    arbiterWindowElapsed,
		Target:   to(entities.BetStatusCancelled),
	},
	{
		From:     entities.BetStatusRejected,
		Action:   entities.ActionCancel,
		Actor:    "maker",
		Eligible: hasRole(entities.RoleMaker),
		Target:   to(entities.BetStatusCancelled),
	},
	{
		From:      entities.BetStatusRejected,
		Action:    entities.ActionEdit,
		Actor:     "maker",
		Eligible:  hasRole(entities.RoleMaker),
		CheckArgs: validTerms,
		Target:    to(entities.BetStatusCreated),
	},
}

// Rules returns a copy of the transition table
func Rules() []Rule {
	out := make([]Rule, len(transitions))
	copy(out, transitions)
	return out
}

// rulesFor returns the rows matching a status and action
func rulesFor(status entities.BetStatus, action entities.Action) []Rule {
	var matched []Rule
	for _, r := range transitions {
		if r.From == status && r.Action == action {
			matched = append(matched, r)
		}
	}
	return matched
}

func to(status entities.BetStatus) func(Context) entities.BetStatus {
	return func(Context) entities.BetStatus { return status }
}

func hasRole(roles ...entities.Role) func(Context) bool {
	return func(c Context) bool {
		for _, role := range roles {
			if c.Roles.Has(role) {
				return true
			}
		}
		return false
	}
}

// arbiterOrOpenClaimant lets the assigned arbiter accept, or anyone who is
// not a party claim an unassigned arbiter role
func arbiterOrOpenClaimant(c Context) bool {
	if c.Roles.Arbiter {
		return true
	}
	if c.Bet.HasAssignedArbiter() || c.Actor.IsAnonymous() {
		return false
	}
	return !c.Roles.Maker && !c.Roles.Taker
}

func assignedArbiter(c Context) bool {
	return c.Bet.HasAssignedArbiter() && c.Roles.Arbiter
}

func notExpired(c Context) string {
	if c.Bet.IsExpired(c.Now) {
		return "bet has passed its end time"
	}
	return ""
}

func settleable(c Context) string {
	if c.Bet.CanSettleEarly || c.Bet.IsExpired(c.Now) {
		return ""
	}
	return "winner can only be selected after the end time unless early settlement is allowed"
}

func arbiterWindowElapsed(c Context) string {
	if c.Now.Sub(c.Bet.CreatedAt()) > c.Policy.NoArbiterCancelDelay {
		return ""
	}
	return "arbiter still has time to respond"
}

// singleParty refuses a forfeit from an identity that is both maker and
// taker, since the losing side would be ambiguous
func singleParty(c Context) string {
	if c.Roles.Maker && c.Roles.Taker {
		return "caller is both maker and taker"
	}
	return ""
}

func forfeitTarget(c Context) entities.BetStatus {
	if c.Roles.Maker {
		return entities.BetStatusTakerWins
	}
	return entities.BetStatusMakerWins
}

func rulingGiven(c Context) string {
	if c.Args.MakerWins == nil {
		return "a ruling is required"
	}
	return ""
}

func winnerTarget(c Context) entities.BetStatus {
	if c.Args.MakerWins != nil && *c.Args.MakerWins {
		return entities.BetStatusMakerWins
	}
	return entities.BetStatusTakerWins
}

func validTerms(c Context) string {
	return termsProblem(c.Args.Terms, c.Now)
}

func termsProblem(t *entities.Terms, now time.Time) string {
	if t == nil {
		return "new terms are required"
	}
	if t.BetAmount == nil || t.BetAmount.Sign() <= 0 {
		return "bet amount must be positive"
	}
	if t.BetAgreement == "" {
		return "bet agreement is required"
	}
	if t.EndTime <= now.Unix() {
		return "end time must be in the future"
	}
	if t.ArbiterFee.IsNegative() {
		return "arbiter fee cannot be negative"
	}
	for _, taker := range t.TakerAddress {
		if entities.ContainsAddress(t.ArbiterAddress, taker) {
			return "a taker cannot also arbitrate"
		}
	}
	return ""
}
