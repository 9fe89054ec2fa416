package lifecycle

import "betmirror/domain/entities"

// samples cover every role and ruling a Target function may branch on
var samples = []Context{
	{Roles: entities.Roles{Maker: true}, Args: entities.ActionArgs{MakerWins: boolRef(true)}},
	{Roles: entities.Roles{Taker: true}, Args: entities.ActionArgs{MakerWins: boolRef(false)}},
}

func boolRef(v bool) *bool { return &v }

func reaches(rule Rule, target entities.BetStatus) bool {
	for _, c := range samples {
		if rule.Target(c) == target {
			return true
		}
	}
	return false
}

// Follows reports whether some row moves a bet from one status to another by
// action, ignoring who acted and when. Changes observed on chain have already
// passed the contract's own actor and time checks.
func Follows(from entities.BetStatus, action entities.Action, target entities.BetStatus) bool {
	for _, rule := range rulesFor(from, action) {
		if reaches(rule, target) {
			return true
		}
	}
	return false
}

// ActionsBetween lists the actions that can move a bet from one status to
// another, in table order
func ActionsBetween(from, target entities.BetStatus) []entities.Action {
	var actions []entities.Action
	seen := make(map[entities.Action]bool)
	for _, rule := range transitions {
		if rule.From != from || seen[rule.Action] || !reaches(rule, target) {
			continue
		}
		seen[rule.Action] = true
		actions = append(actions, rule.Action)
	}
	return actions
}
