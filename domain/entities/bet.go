package entities

import (
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BetStatus is the mirrored lifecycle status of a bet, encoded as the same
// small integer the contract uses
type BetStatus int

const (
	BetStatusCreated         BetStatus = 0
	BetStatusTakerAccepted   BetStatus = 1
	BetStatusArbiterAccepted BetStatus = 2
	BetStatusMakerWins       BetStatus = 4
	BetStatusTakerWins       BetStatus = 5
	BetStatusMakerClaimed    BetStatus = 6
	BetStatusTakerClaimed    BetStatus = 7
	BetStatusCancelled       BetStatus = 8
	BetStatusRejected        BetStatus = 9
	BetStatusArbiterDeclined BetStatus = 10
)

// AllBetStatuses lists every defined status in numeric order
var AllBetStatuses = []BetStatus{
	BetStatusCreated,
	BetStatusTakerAccepted,
	BetStatusArbiterAccepted,
	BetStatusMakerWins,
	BetStatusTakerWins,
	BetStatusMakerClaimed,
	BetStatusTakerClaimed,
	BetStatusCancelled,
	BetStatusRejected,
	BetStatusArbiterDeclined,
}

var betStatusNames = map[BetStatus]string{
	BetStatusCreated:         "created",
	BetStatusTakerAccepted:   "taker_accepted",
	BetStatusArbiterAccepted: "arbiter_accepted",
	BetStatusMakerWins:       "maker_wins",
	BetStatusTakerWins:       "taker_wins",
	BetStatusMakerClaimed:    "maker_claimed",
	BetStatusTakerClaimed:    "taker_claimed",
	BetStatusCancelled:       "cancelled",
	BetStatusRejected:        "rejected",
	BetStatusArbiterDeclined: "arbiter_declined",
}

// IsKnown reports whether the status is one of the defined values
func (s BetStatus) IsKnown() bool {
	_, ok := betStatusNames[s]
	return ok
}

func (s BetStatus) String() string {
	if name, ok := betStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal reports whether no further transition can leave this status
func (s BetStatus) IsTerminal() bool {
	switch s {
	case BetStatusMakerClaimed, BetStatusTakerClaimed, BetStatusCancelled:
		return true
	default:
		return false
	}
}

// ZeroAddress is the sentinel the contract uses for an unassigned party
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// NativeTokenAddress marks a bet wagered in the chain's native currency
const NativeTokenAddress = ZeroAddress

// Bet is the off-chain mirror of a single on-chain wager
type Bet struct {
	BetNumber       int64           `db:"bet_number" json:"bet_number"`
	MakerAddress    string          `db:"maker_address" json:"maker_address"`
	MakerFID        *int64          `db:"maker_fid" json:"maker_fid"`
	TakerAddress    []string        `db:"taker_address" json:"taker_address"`
	TakerFID        *int64          `db:"taker_fid" json:"taker_fid"`
	ArbiterAddress  []string        `db:"arbiter_address" json:"arbiter_address"`
	ArbiterFID      *int64          `db:"arbiter_fid" json:"arbiter_fid"`
	BetTokenAddress string          `db:"bet_token_address" json:"bet_token_address"`
	BetAmount       *big.Int        `db:"bet_amount" json:"bet_amount"`
	BetAgreement    string          `db:"bet_agreement" json:"bet_agreement"`
	EndTime         int64           `db:"end_time" json:"end_time"`
	CanSettleEarly  bool            `db:"can_settle_early" json:"can_settle_early"`
	ProtocolFee     decimal.Decimal `db:"protocol_fee" json:"protocol_fee"`
	ArbiterFee      decimal.Decimal `db:"arbiter_fee" json:"arbiter_fee"`
	Status          BetStatus       `db:"status" json:"status"`
	Timestamp       int64           `db:"timestamp" json:"timestamp"`
	TransactionHash string          `db:"transaction_hash" json:"transaction_hash"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`

	// ReconciledFrom is the status held before a reconcile moved the bet
	// without knowing the transaction; TransactionHash then predates Status.
	// It is cleared once the chain log for the change is mirrored.
	ReconciledFrom *BetStatus `db:"reconciled_from" json:"reconciled_from,omitempty"`

	// Read-only projections, never persisted
	MakerProfile   *Profile `db:"-" json:"-"`
	TakerProfile   *Profile `db:"-" json:"-"`
	ArbiterProfile *Profile `db:"-" json:"-"`
}

// EndsAt returns end_time as a time value
func (b *Bet) EndsAt() time.Time {
	return time.Unix(b.EndTime, 0).UTC()
}

// CreatedAt returns the creation timestamp as a time value
func (b *Bet) CreatedAt() time.Time {
	return time.Unix(b.Timestamp, 0).UTC()
}

// IsExpired reports whether now is strictly after end_time
func (b *Bet) IsExpired(now time.Time) bool {
	return now.Unix() > b.EndTime
}

// HasAssignedArbiter reports whether at least one non-zero arbiter address or
// an arbiter fid is present
func (b *Bet) HasAssignedArbiter() bool {
	if b.ArbiterFID != nil {
		return true
	}
	for _, addr := range b.ArbiterAddress {
		if !IsZeroAddress(addr) {
			return true
		}
	}
	return false
}

// IsNativeToken reports whether the wager is in the chain's native currency
func (b *Bet) IsNativeToken() bool {
	return IsZeroAddress(b.BetTokenAddress)
}

// Terms returns the editable terms currently on the bet
func (b *Bet) Terms() Terms {
	return Terms{
		TakerAddress:    append([]string(nil), b.TakerAddress...),
		ArbiterAddress:  append([]string(nil), b.ArbiterAddress...),
		BetTokenAddress: b.BetTokenAddress,
		BetAmount:       b.BetAmount,
		BetAgreement:    b.BetAgreement,
		EndTime:         b.EndTime,
		CanSettleEarly:  b.CanSettleEarly,
		ArbiterFee:      b.ArbiterFee,
	}
}

// ApplyTerms replaces the editable terms on the bet
func (b *Bet) ApplyTerms(t Terms) {
	b.TakerAddress = append([]string(nil), t.TakerAddress...)
	b.ArbiterAddress = append([]string(nil), t.ArbiterAddress...)
	b.BetTokenAddress = t.BetTokenAddress
	b.BetAmount = t.BetAmount
	b.BetAgreement = t.BetAgreement
	b.EndTime = t.EndTime
	b.CanSettleEarly = t.CanSettleEarly
	b.ArbiterFee = t.ArbiterFee
}

// Terms are the maker-controlled fields replaced by an edit
type Terms struct {
	TakerAddress    []string        `json:"taker_address"`
	ArbiterAddress  []string        `json:"arbiter_address"`
	BetTokenAddress string          `json:"bet_token_address"`
	BetAmount       *big.Int        `json:"bet_amount"`
	BetAgreement    string          `json:"bet_agreement"`
	EndTime         int64           `json:"end_time"`
	CanSettleEarly  bool            `json:"can_settle_early"`
	ArbiterFee      decimal.Decimal `json:"arbiter_fee"`
}

// IsZeroAddress reports whether addr is empty or the zero address
func IsZeroAddress(addr string) bool {
	addr = strings.TrimSpace(addr)
	return addr == "" || strings.EqualFold(addr, ZeroAddress)
}

// SameAddress compares two hex addresses case-insensitively
func SameAddress(a, b string) bool {
	if IsZeroAddress(a) || IsZeroAddress(b) {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// ContainsAddress reports whether addr is a case-insensitive member of set
func ContainsAddress(set []string, addr string) bool {
	for _, candidate := range set {
		if SameAddress(candidate, addr) {
			return true
		}
	}
	return false
}
