package lifecycle

import (
	"fmt"
	"time"

	"betmirror/domain/entities"
)

// Policy holds the time windows that gate transitions and listings
type Policy struct {
	// NoArbiterCancelDelay is how long after creation either party may cancel
	// a bet whose arbiter never accepted
	NoArbiterCancelDelay time.Duration

	// RejectedRetention hides rejected bets from default listings after this long
	RejectedRetention time.Duration

	// ClosedRetention hides cancelled and claimed bets after this long
	ClosedRetention time.Duration
}

// DefaultPolicy returns the production windows
func DefaultPolicy() Policy {
	return Policy{
		NoArbiterCancelDelay: 24 * time.Hour,
		RejectedRetention:    24 * time.Hour,
		ClosedRetention:      72 * time.Hour,
	}
}

// Machine evaluates the transition table. It is pure and safe for concurrent use.
type Machine struct {
	policy Policy
}

// NewMachine creates a Machine with the given policy
func NewMachine(policy Policy) *Machine {
	return &Machine{policy: policy}
}

// Policy returns the machine's time windows
func (m *Machine) Policy() Policy {
	return m.policy
}

// ResolveRoles determines which roles the identity holds on the bet
func ResolveRoles(bet *entities.Bet, who entities.Identity) entities.Roles {
	return entities.Roles{
		Maker:   entities.SameAddress(bet.MakerAddress, who.Address) || sameFID(bet.MakerFID, who.FID),
		Taker:   entities.ContainsAddress(bet.TakerAddress, who.Address) || sameFID(bet.TakerFID, who.FID),
		Arbiter: entities.ContainsAddress(bet.ArbiterAddress, who.Address) || sameFID(bet.ArbiterFID, who.FID),
	}
}

func sameFID(a, b *int64) bool {
	return a != nil && b != nil && *a == *b
}

// Validate decides whether actor may perform action on bet at now, and
// returns the status the bet moves to. Any request that does not match a
// row of the table yields a *entities.PolicyError.
func (m *Machine) Validate(action entities.Action, bet *entities.Bet, actor entities.Identity, now time.Time, args entities.ActionArgs) (entities.BetStatus, error) {
	if bet == nil {
		return 0, entities.ErrBetNotFound
	}
	if !bet.Status.IsKnown() {
		return bet.Status, &entities.PolicyError{
			Action: action,
			Status: bet.Status,
			Reason: fmt.Sprintf("status %d is not recognised", int(bet.Status)),
			Cause:  entities.ErrUnknownStatus,
		}
	}
	if !action.IsValid() || action == entities.ActionCreate {
		return bet.Status, entities.NewPolicyError(action, bet.Status, "action does not apply to an existing bet")
	}
	if actor.IsAnonymous() {
		return bet.Status, entities.NewPolicyError(action, bet.Status, "caller identity is required")
	}

	rules := rulesFor(bet.Status, action)
	if len(rules) == 0 {
		return bet.Status, entities.NewPolicyError(action, bet.Status, "action is not available in this status")
	}

	c := m.context(bet, actor, now, args)

	reason := ""
	for _, rule := range rules {
		if !rule.Eligible(c) {
			if reason == "" {
				reason = fmt.Sprintf("only the %s may %s", rule.Actor, action)
			}
			continue
		}
		if rule.Guard != nil {
			if why := rule.Guard(c); why != "" {
				reason = why
				continue
			}
		}
		if rule.CheckArgs != nil {
			if why := rule.CheckArgs(c); why != "" {
				reason = why
				continue
			}
		}
		return rule.Target(c), nil
	}

	return bet.Status, entities.NewPolicyError(action, bet.Status, reason)
}

// Permitted returns the actions who may take on bet at now, in table order.
// Argument checks are not applied.
func (m *Machine) Permitted(bet *entities.Bet, who entities.Identity, now time.Time) []entities.Action {
	if bet == nil || !bet.Status.IsKnown() || who.IsAnonymous() {
		return nil
	}

	c := m.context(bet, who, now, entities.ActionArgs{})

	var actions []entities.Action
	seen := make(map[entities.Action]bool)
	for _, rule := range transitions {
		if rule.From != bet.Status || seen[rule.Action] {
			continue
		}
		if !rule.Eligible(c) {
			continue
		}
		if rule.Guard != nil && rule.Guard(c) != "" {
			continue
		}
		seen[rule.Action] = true
		actions = append(actions, rule.Action)
	}
	return actions
}

func (m *Machine) context(bet *entities.Bet, who entities.Identity, now time.Time, args entities.ActionArgs) Context {
	return Context{
		Bet:    bet,
		Actor:  who,
		Roles:  ResolveRoles(bet, who),
		Now:    now,
		Args:   args,
		Policy: m.policy,
	}
}

// ValidateCreate checks the terms of a bet the maker is about to create. The
// new bet starts in CREATED.
func (m *Machine) ValidateCreate(maker entities.Identity, terms *entities.Terms, now time.Time) error {
	if maker.IsAnonymous() {
		return entities.NewPolicyError(entities.ActionCreate, entities.BetStatusCreated, "caller identity is required")
	}
	if why := termsProblem(terms, now); why != "" {
		return entities.NewPolicyError(entities.ActionCreate, entities.BetStatusCreated, why)
	}
	if entities.ContainsAddress(terms.ArbiterAddress, maker.Address) {
		return entities.NewPolicyError(entities.ActionCreate, entities.BetStatusCreated, "maker cannot arbitrate their own bet")
	}
	return nil
}
