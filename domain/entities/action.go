package entities

import "math/big"

// Action is a participant-initiated transition request
type Action string

const (
	ActionCreate          Action = "create"
	ActionAccept          Action = "accept"
	ActionReject          Action = "reject"
	ActionCancel          Action = "cancel"
	ActionEdit            Action = "edit"
	ActionArbiterAccept   Action = "arbiter_accept"
	ActionArbiterReject   Action = "arbiter_reject"
	ActionForfeit         Action = "forfeit"
	ActionSelectWinner    Action = "select_winner"
	ActionClaim           Action = "claim"
	ActionNoArbiterCancel Action = "no_arbiter_cancel"
)

// AllActions lists every action that applies to an existing bet
var AllActions = []Action{
	ActionAccept,
	ActionReject,
	ActionCancel,
	ActionEdit,
	ActionArbiterAccept,
	ActionArbiterReject,
	ActionForfeit,
	ActionSelectWinner,
	ActionClaim,
	ActionNoArbiterCancel,
}

// IsValid reports whether a is a recognised action
func (a Action) IsValid() bool {
	if a == ActionCreate {
		return true
	}
	for _, known := range AllActions {
		if a == known {
			return true
		}
	}
	return false
}

// DepositsFunds reports whether the action moves the caller's tokens into
// the contract and therefore needs an allowance for ERC20 wagers
func (a Action) DepositsFunds() bool {
	switch a {
	case ActionCreate, ActionAccept, ActionEdit:
		return true
	default:
		return false
	}
}

// ActionArgs carries action-specific inputs
type ActionArgs struct {
	// MakerWins is the ruling for select_winner
	MakerWins *bool `json:"maker_wins,omitempty"`

	// Terms replaces the bet's terms for edit, and describes the new bet for create
	Terms *Terms `json:"terms,omitempty"`
}

// Submission is a validated action ready to go on chain
type Submission struct {
	BetNumber int64
	Action    Action
	Args      ActionArgs

	// Token and Amount describe the caller's deposit for actions that fund
	// the bet; Token is the zero address for native-currency bets
	Token  string
	Amount *big.Int

	// Predicted is the target status from the transition table, used when
	// the receipt carries no status event
	Predicted BetStatus
}

// Receipt is the confirmed outcome of a submitted chain action
type Receipt struct {
	TransactionHash string
	BlockNumber     uint64
	GasUsed         uint64

	// From is the address that signed the transaction
	From string

	// Status is the post-transition status. It comes from an emitted event
	// when StatusFromEvent is set, otherwise it is the locally predicted target.
	Status          BetStatus
	StatusFromEvent bool

	// Bet is the full tuple decoded from BetCreated, nil for other actions
	Bet *Bet

	// Terms are the terms encoded in the transaction's call data, set for
	// create and edit
	Terms *Terms
}

// Transition is a committed change of a bet's status
type Transition struct {
	Action          Action
	Actor           Identity
	From            BetStatus
	To              BetStatus
	TransactionHash string
}

// ChainCall is a bet contract call recovered from a mined transaction
type ChainCall struct {
	Action    Action
	BetNumber int64
	From      string
	MakerWins *bool
}
