package lifecycle

import (
	"testing"
	"time"

	"betmirror/domain/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachine_Describe_IsTotal(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	viewers := map[string]entities.Identity{
		"maker":     identity(makerAddr),
		"taker":     identity(takerAddr),
		"arbiter":   identity(arbiterAddr),
		"spectator": identity(strangerAddr),
		"anonymous": {},
	}
	times := map[string]time.Time{
		"before end": baseTime.Add(time.Hour),
		"after end":  baseTime.Add(48 * time.Hour),
	}

	for _, status := range entities.AllBetStatuses {
		for viewerName, viewer := range viewers {
			for timeName, now := range times {
				t.Run(status.String()+"/"+viewerName+"/"+timeName, func(t *testing.T) {
					d := m.Describe(newTestBet(status), viewer, now)
					assert.False(t, d.Unknown)
					assert.NotEmpty(t, d.Label)
					assert.NotEmpty(t, d.Message)
					assert.Equal(t, status, d.Status)
					assert.NotNil(t, d.Actions)
				})
			}
		}
	}
}

func TestMachine_Describe_UnknownStatus(t *testing.T) {
	m := NewMachine(DefaultPolicy())

	for _, raw := range []int{3, 11, -1, 99} {
		d := m.Describe(newTestBet(entities.BetStatus(raw)), identity(makerAddr), baseTime)
		assert.True(t, d.Unknown, "status %d", raw)
		assert.Equal(t, "Unknown", d.Label)
		assert.Empty(t, d.Actions)
	}
}

func TestMachine_Describe_NilBet(t *testing.T) {
	m := NewMachine(DefaultPolicy())

	var d Description
	require.NotPanics(t, func() {
		d = m.Describe(nil, identity(makerAddr), baseTime)
	})
	assert.True(t, d.Unknown)
	assert.Equal(t, entities.RoleSpectator, d.Role)
	assert.Empty(t, d.Actions)
	assert.NotNil(t, d.Actions)
}

func TestMachine_Describe_SpectatorHasNoActions(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	for _, status := range entities.AllBetStatuses {
		bet := newTestBet(status)
		d := m.Describe(bet, identity(strangerAddr), baseTime.Add(48*time.Hour))
		assert.Empty(t, d.Actions, "status %s", status)
		assert.Equal(t, entities.RoleSpectator, d.Role)
	}
}

func TestMachine_Describe_RecomputesTime(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	bet := newTestBet(entities.BetStatusCreated)
	taker := identity(takerAddr)

	early := m.Describe(bet, taker, baseTime.Add(time.Hour))
	assert.Contains(t, early.Actions, entities.ActionAccept)
	assert.False(t, early.Expired)
	assert.Equal(t, 23*time.Hour, early.TimeRemaining)

	late := m.Describe(bet, taker, baseTime.Add(25*time.Hour))
	assert.NotContains(t, late.Actions, entities.ActionAccept)
	assert.Contains(t, late.Actions, entities.ActionReject)
	assert.True(t, late.Expired)
	assert.Zero(t, late.TimeRemaining)
	assert.Equal(t, "Timed out", late.Label)
}

func TestMachine_Describe_OffersOnlyWhatValidateAllows(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	viewers := []entities.Identity{identity(makerAddr), identity(takerAddr), identity(arbiterAddr), identity(strangerAddr)}
	times := []time.Time{baseTime.Add(time.Hour), baseTime.Add(25 * time.Hour), baseTime.Add(72 * time.Hour)}

	for _, status := range entities.AllBetStatuses {
		for _, viewer := range viewers {
			for _, now := range times {
				bet := newTestBet(status)
				offered := m.Describe(bet, viewer, now).Actions
				args := entities.ActionArgs{MakerWins: boolPtr(false), Terms: validTermsAt(now)}

				for _, action := range entities.AllActions {
					_, err := m.Validate(action, bet, viewer, now, args)
					if containsAction(offered, action) {
						require.NoError(t, err, "%s offered on %s to %s", action, status, viewer.Address)
					} else {
						require.Error(t, err, "%s hidden on %s from %s", action, status, viewer.Address)
					}
				}
			}
		}
	}
}

func TestMachine_Describe_ArbiterInvitation(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	bet := newTestBet(entities.BetStatusTakerAccepted)

	d := m.Describe(bet, identity(arbiterAddr), baseTime.Add(time.Hour))
	assert.Equal(t, entities.RoleArbiter, d.Role)
	assert.ElementsMatch(t, []entities.Action{entities.ActionArbiterAccept, entities.ActionArbiterReject}, d.Actions)

	bet.ArbiterAddress = nil
	bet.ArbiterFID = nil
	open := m.Describe(bet, identity(strangerAddr), baseTime.Add(time.Hour))
	assert.Equal(t, "Arbiter needed", open.Label)
	assert.Equal(t, []entities.Action{entities.ActionArbiterAccept}, open.Actions)
}

func TestMachine_IsHidden(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	now := baseTime.Add(30 * 24 * time.Hour)

	tests := []struct {
		name     string
		status   entities.BetStatus
		age      time.Duration
		expected bool
	}{
		{"fresh rejection", entities.BetStatusRejected, 12 * time.Hour, false},
		{"old rejection", entities.BetStatusRejected, 25 * time.Hour, true},
		{"recent cancel", entities.BetStatusCancelled, 48 * time.Hour, false},
		{"old cancel", entities.BetStatusCancelled, 73 * time.Hour, true},
		{"old maker claim", entities.BetStatusMakerClaimed, 80 * time.Hour, true},
		{"old taker claim", entities.BetStatusTakerClaimed, 80 * time.Hour, true},
		{"old but open", entities.BetStatusArbiterAccepted, 400 * time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bet := newTestBet(tt.status)
			bet.UpdatedAt = now.Add(-tt.age)
			assert.Equal(t, tt.expected, m.IsHidden(bet, now))
		})
	}
}

func containsAction(actions []entities.Action, action entities.Action) bool {
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}
