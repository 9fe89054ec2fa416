package lifecycle

import (
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"betmirror/domain/entities"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	makerAddr    = "0x1111111111111111111111111111111111111111"
	takerAddr    = "0x2222222222222222222222222222222222222222"
	arbiterAddr  = "0x3333333333333333333333333333333333333333"
	strangerAddr = "0x4444444444444444444444444444444444444444"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func int64Ptr(v int64) *int64 { return &v }
func boolPtr(v bool) *bool    { return &v }

func newTestBet(status entities.BetStatus) *entities.Bet {
	return &entities.Bet{
		BetNumber:       42,
		MakerAddress:    makerAddr,
		MakerFID:        int64Ptr(100),
		TakerAddress:    []string{takerAddr},
		TakerFID:        int64Ptr(200),
		ArbiterAddress:  []string{arbiterAddr},
		ArbiterFID:      int64Ptr(300),
		BetTokenAddress: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		BetAmount:       big.NewInt(100_000_000),
		BetAgreement:    "It rains in Lisbon on 2 March",
		EndTime:         baseTime.Add(24 * time.Hour).Unix(),
		ProtocolFee:     decimal.NewFromInt(1),
		ArbiterFee:      decimal.NewFromInt(2),
		Status:          status,
		Timestamp:       baseTime.Unix(),
		TransactionHash: "0xabc",
	}
}

func identity(addr string) entities.Identity {
	return entities.Identity{Address: addr}
}

func validTermsAt(now time.Time) *entities.Terms {
	return &entities.Terms{
		TakerAddress:   []string{takerAddr},
		ArbiterAddress: []string{arbiterAddr},
		BetAmount:      big.NewInt(250_000_000),
		BetAgreement:   "It rains in Porto on 3 March",
		EndTime:        now.Add(48 * time.Hour).Unix(),
		ArbiterFee:     decimal.NewFromInt(2),
	}
}

func TestMachine_Validate_TableRows(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	beforeEnd := baseTime.Add(time.Hour)
	afterEnd := baseTime.Add(25 * time.Hour)

	tests := []struct {
		name     string
		status   entities.BetStatus
		action   entities.Action
		actor    string
		now      time.Time
		args     entities.ActionArgs
		expected entities.BetStatus
	}{
		{"taker accepts", entities.BetStatusCreated, entities.ActionAccept, takerAddr, beforeEnd, entities.ActionArgs{}, entities.BetStatusTakerAccepted},
		{"taker rejects", entities.BetStatusCreated, entities.ActionReject, takerAddr, beforeEnd, entities.ActionArgs{}, entities.BetStatusRejected},
		{"maker cancels", entities.BetStatusCreated, entities.ActionCancel, makerAddr, beforeEnd, entities.ActionArgs{}, entities.BetStatusCancelled},
		{"maker edits", entities.BetStatusCreated, entities.ActionEdit, makerAddr, beforeEnd, entities.ActionArgs{Terms: validTermsAt(beforeEnd)}, entities.BetStatusCreated},
		{"arbiter accepts", entities.BetStatusTakerAccepted, entities.ActionArbiterAccept, arbiterAddr, beforeEnd, entities.ActionArgs{}, entities.BetStatusArbiterAccepted},
		{"arbiter rejects", entities.BetStatusTakerAccepted, entities.ActionArbiterReject, arbiterAddr, beforeEnd, entities.ActionArgs{}, entities.BetStatusArbiterDeclined},
		{"maker forfeits", entities.BetStatusArbiterAccepted, entities.ActionForfeit, makerAddr, beforeEnd, entities.ActionArgs{}, entities.BetStatusTakerWins},
		{"taker forfeits", entities.BetStatusArbiterAccepted, entities.ActionForfeit, takerAddr, beforeEnd, entities.ActionArgs{}, entities.BetStatusMakerWins},
		{"arbiter selects maker", entities.BetStatusArbiterAccepted, entities.ActionSelectWinner, arbiterAddr, afterEnd, entities.ActionArgs{MakerWins: boolPtr(true)}, entities.BetStatusMakerWins},
		{"arbiter selects taker", entities.BetStatusArbiterAccepted, entities.ActionSelectWinner, arbiterAddr, afterEnd, entities.ActionArgs{MakerWins: boolPtr(false)}, entities.BetStatusTakerWins},
		{"maker claims", entities.BetStatusMakerWins, entities.ActionClaim, makerAddr, afterEnd, entities.ActionArgs{}, entities.BetStatusMakerClaimed},
		{"taker claims", entities.BetStatusTakerWins, entities.ActionClaim, takerAddr, afterEnd, entities.ActionArgs{}, entities.BetStatusTakerClaimed},
		{"maker cancels after decline", entities.BetStatusArbiterDeclined, entities.ActionNoArbiterCancel, makerAddr, afterEnd, entities.ActionArgs{}, entities.BetStatusCancelled},
		{"taker cancels waiting arbiter", entities.BetStatusTakerAccepted, entities.ActionNoArbiterCancel, takerAddr, afterEnd, entities.ActionArgs{}, entities.BetStatusCancelled},
		{"maker cancels rejected", entities.BetStatusRejected, entities.ActionCancel, makerAddr, beforeEnd, entities.ActionArgs{}, entities.BetStatusCancelled},
		{"maker edits rejected", entities.BetStatusRejected, entities.ActionEdit, makerAddr, beforeEnd, entities.ActionArgs{Terms: validTermsAt(beforeEnd)}, entities.BetStatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bet := newTestBet(tt.status)
			got, err := m.Validate(tt.action, bet, identity(tt.actor), tt.now, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMachine_Validate_RejectsNonTableActions(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	actors := []string{makerAddr, takerAddr, arbiterAddr, strangerAddr}
	times := []time.Time{baseTime.Add(time.Hour), baseTime.Add(72 * time.Hour)}

	for _, status := range entities.AllBetStatuses {
		for _, action := range entities.AllActions {
			if len(rulesFor(status, action)) > 0 {
				continue
			}
			for _, actor := range actors {
				for _, now := range times {
					bet := newTestBet(status)
					args := entities.ActionArgs{MakerWins: boolPtr(true), Terms: validTermsAt(now)}
					got, err := m.Validate(action, bet, identity(actor), now, args)

					require.Error(t, err, "%s from %s by %s", action, status, actor)
					assert.True(t, errors.Is(err, entities.ErrPolicyViolation))
					assert.Equal(t, status, got, "refused action must not change status")
				}
			}
		}
	}
}

func TestMachine_Validate_WrongActor(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	now := baseTime.Add(time.Hour)

	tests := []struct {
		name   string
		status entities.BetStatus
		action entities.Action
		actor  string
	}{
		{"maker cannot accept", entities.BetStatusCreated, entities.ActionAccept, makerAddr},
		{"taker cannot cancel", entities.BetStatusCreated, entities.ActionCancel, takerAddr},
		{"stranger cannot reject", entities.BetStatusCreated, entities.ActionReject, strangerAddr},
		{"taker cannot arbiter accept", entities.BetStatusTakerAccepted, entities.ActionArbiterAccept, takerAddr},
		{"stranger cannot claim assigned arbiter role", entities.BetStatusTakerAccepted, entities.ActionArbiterAccept, strangerAddr},
		{"arbiter cannot forfeit", entities.BetStatusArbiterAccepted, entities.ActionForfeit, arbiterAddr},
		{"taker cannot claim maker win", entities.BetStatusMakerWins, entities.ActionClaim, takerAddr},
		{"arbiter cannot no-arbiter cancel", entities.BetStatusArbiterDeclined, entities.ActionNoArbiterCancel, arbiterAddr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Validate(tt.action, newTestBet(tt.status), identity(tt.actor), now, entities.ActionArgs{})
			var policyErr *entities.PolicyError
			require.ErrorAs(t, err, &policyErr)
			assert.Equal(t, tt.action, policyErr.Action)
		})
	}
}

func TestMachine_Validate_AcceptBoundaryIsInclusive(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	bet := newTestBet(entities.BetStatusCreated)
	end := time.Unix(bet.EndTime, 0)

	got, err := m.Validate(entities.ActionAccept, bet, identity(takerAddr), end, entities.ActionArgs{})
	require.NoError(t, err)
	assert.Equal(t, entities.BetStatusTakerAccepted, got)

	_, err = m.Validate(entities.ActionAccept, bet, identity(takerAddr), end.Add(time.Second), entities.ActionArgs{})
	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrPolicyViolation)
	assert.Contains(t, err.Error(), "end time")
}

func TestMachine_Validate_SelectWinnerTimeGate(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	ruling := entities.ActionArgs{MakerWins: boolPtr(true)}
	beforeEnd := baseTime.Add(time.Hour)

	t.Run("before end without early settlement", func(t *testing.T) {
		bet := newTestBet(entities.BetStatusArbiterAccepted)
		_, err := m.Validate(entities.ActionSelectWinner, bet, identity(arbiterAddr), beforeEnd, ruling)
		assert.ErrorIs(t, err, entities.ErrPolicyViolation)
	})

	t.Run("before end with early settlement", func(t *testing.T) {
		bet := newTestBet(entities.BetStatusArbiterAccepted)
		bet.CanSettleEarly = true
		got, err := m.Validate(entities.ActionSelectWinner, bet, identity(arbiterAddr), beforeEnd, ruling)
		require.NoError(t, err)
		assert.Equal(t, entities.BetStatusMakerWins, got)
	})

	t.Run("exactly at end is not expired", func(t *testing.T) {
		bet := newTestBet(entities.BetStatusArbiterAccepted)
		_, err := m.Validate(entities.ActionSelectWinner, bet, identity(arbiterAddr), time.Unix(bet.EndTime, 0), ruling)
		assert.ErrorIs(t, err, entities.ErrPolicyViolation)
	})

	t.Run("missing ruling", func(t *testing.T) {
		bet := newTestBet(entities.BetStatusArbiterAccepted)
		_, err := m.Validate(entities.ActionSelectWinner, bet, identity(arbiterAddr), baseTime.Add(48*time.Hour), entities.ActionArgs{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ruling")
	})
}

func TestMachine_Validate_ForfeitUsesCallerRole(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	now := baseTime.Add(time.Hour)

	got, err := m.Validate(entities.ActionForfeit, newTestBet(entities.BetStatusArbiterAccepted), identity(makerAddr), now, entities.ActionArgs{})
	require.NoError(t, err)
	assert.Equal(t, entities.BetStatusTakerWins, got)

	t.Run("maker identified by fid", func(t *testing.T) {
		who := entities.Identity{FID: int64Ptr(100)}
		got, err := m.Validate(entities.ActionForfeit, newTestBet(entities.BetStatusArbiterAccepted), who, now, entities.ActionArgs{})
		require.NoError(t, err)
		assert.Equal(t, entities.BetStatusTakerWins, got)
	})

	t.Run("caller holding both roles is refused", func(t *testing.T) {
		bet := newTestBet(entities.BetStatusArbiterAccepted)
		bet.TakerAddress = append(bet.TakerAddress, makerAddr)
		_, err := m.Validate(entities.ActionForfeit, bet, identity(makerAddr), now, entities.ActionArgs{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "both maker and taker")
	})
}

func TestMachine_Validate_NoArbiterCancelWindow(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	bet := newTestBet(entities.BetStatusTakerAccepted)
	created := time.Unix(bet.Timestamp, 0)

	_, err := m.Validate(entities.ActionNoArbiterCancel, bet, identity(makerAddr), created.Add(23*time.Hour+59*time.Minute), entities.ActionArgs{})
	assert.ErrorIs(t, err, entities.ErrPolicyViolation)

	_, err = m.Validate(entities.ActionNoArbiterCancel, bet, identity(makerAddr), created.Add(24*time.Hour), entities.ActionArgs{})
	assert.ErrorIs(t, err, entities.ErrPolicyViolation, "window is exclusive")

	got, err := m.Validate(entities.ActionNoArbiterCancel, bet, identity(makerAddr), created.Add(24*time.Hour+time.Minute), entities.ActionArgs{})
	require.NoError(t, err)
	assert.Equal(t, entities.BetStatusCancelled, got)
}

func TestMachine_Validate_OpenArbiterRole(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	now := baseTime.Add(time.Hour)

	openBet := func() *entities.Bet {
		bet := newTestBet(entities.BetStatusTakerAccepted)
		bet.ArbiterAddress = []string{entities.ZeroAddress}
		bet.ArbiterFID = nil
		return bet
	}

	t.Run("stranger claims", func(t *testing.T) {
		got, err := m.Validate(entities.ActionArbiterAccept, openBet(), identity(strangerAddr), now, entities.ActionArgs{})
		require.NoError(t, err)
		assert.Equal(t, entities.BetStatusArbiterAccepted, got)
	})

	t.Run("party cannot claim", func(t *testing.T) {
		_, err := m.Validate(entities.ActionArbiterAccept, openBet(), identity(takerAddr), now, entities.ActionArgs{})
		assert.ErrorIs(t, err, entities.ErrPolicyViolation)
	})

	t.Run("open role cannot be declined", func(t *testing.T) {
		_, err := m.Validate(entities.ActionArbiterReject, openBet(), identity(strangerAddr), now, entities.ActionArgs{})
		assert.ErrorIs(t, err, entities.ErrPolicyViolation)
	})
}

func TestMachine_Validate_AddressMatchingIgnoresCase(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	bet := newTestBet(entities.BetStatusCreated)
	bet.TakerAddress = []string{"0xAbCdEf0000000000000000000000000000000001", takerAddr}

	got, err := m.Validate(entities.ActionAccept, bet, identity(strings.ToLower("0xABCDEF0000000000000000000000000000000001")), baseTime, entities.ActionArgs{})
	require.NoError(t, err)
	assert.Equal(t, entities.BetStatusTakerAccepted, got)
}

func TestMachine_Validate_UnknownStatus(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	bet := newTestBet(entities.BetStatus(3))

	_, err := m.Validate(entities.ActionClaim, bet, identity(makerAddr), baseTime, entities.ActionArgs{})
	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrUnknownStatus)
	assert.ErrorIs(t, err, entities.ErrPolicyViolation)
}

func TestMachine_Validate_EditRequiresTerms(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	now := baseTime.Add(time.Hour)

	tests := []struct {
		name   string
		terms  func() *entities.Terms
		reason string
	}{
		{"missing terms", func() *entities.Terms { return nil }, "new terms"},
		{"zero amount", func() *entities.Terms {
			terms := validTermsAt(now)
			terms.BetAmount = big.NewInt(0)
			return terms
		}, "amount"},
		{"past end time", func() *entities.Terms {
			terms := validTermsAt(now)
			terms.EndTime = now.Add(-time.Minute).Unix()
			return terms
		}, "end time"},
		{"empty agreement", func() *entities.Terms {
			terms := validTermsAt(now)
			terms.BetAgreement = ""
			return terms
		}, "agreement"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Validate(entities.ActionEdit, newTestBet(entities.BetStatusCreated), identity(makerAddr), now, entities.ActionArgs{Terms: tt.terms()})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestMachine_Validate_AnonymousActor(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	_, err := m.Validate(entities.ActionAccept, newTestBet(entities.BetStatusCreated), entities.Identity{}, baseTime, entities.ActionArgs{})
	assert.ErrorIs(t, err, entities.ErrPolicyViolation)
}

func TestMachine_ValidateCreate(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	now := baseTime

	t.Run("valid terms pass", func(t *testing.T) {
		assert.NoError(t, m.ValidateCreate(identity(makerAddr), validTermsAt(now), now))
	})

	t.Run("maker cannot be the arbiter", func(t *testing.T) {
		terms := validTermsAt(now)
		terms.ArbiterAddress = []string{strings.ToUpper(makerAddr[2:])}
		terms.ArbiterAddress[0] = "0x" + terms.ArbiterAddress[0]

		err := m.ValidateCreate(identity(makerAddr), terms, now)
		require.ErrorIs(t, err, entities.ErrPolicyViolation)
		assert.Contains(t, err.Error(), "arbitrate")
	})

	t.Run("taker cannot be the arbiter", func(t *testing.T) {
		terms := validTermsAt(now)
		terms.ArbiterAddress = append([]string(nil), terms.TakerAddress...)

		err := m.ValidateCreate(identity(makerAddr), terms, now)
		require.ErrorIs(t, err, entities.ErrPolicyViolation)
		assert.Contains(t, err.Error(), "taker cannot also arbitrate")
	})

	t.Run("missing terms and anonymous makers are refused", func(t *testing.T) {
		assert.ErrorIs(t, m.ValidateCreate(identity(makerAddr), nil, now), entities.ErrPolicyViolation)
		assert.ErrorIs(t, m.ValidateCreate(entities.Identity{}, validTermsAt(now), now), entities.ErrPolicyViolation)
	})
}
