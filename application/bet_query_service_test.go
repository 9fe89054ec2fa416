package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"betmirror/domain/entities"
	"betmirror/domain/interfaces"
	"betmirror/domain/lifecycle"
	"betmirror/domain/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newQueryService(bets interfaces.BetRepository, identity interfaces.IdentityProvider) (*BetQueryService, *fakeUnitOfWorkFactory) {
	factory := newFakeFactory(bets)
	machine := lifecycle.NewMachine(lifecycle.DefaultPolicy())
	return NewBetQueryService(factory, machine, identity, fixedClock(baseTime)), factory
}

func TestBetQueryService_List(t *testing.T) {
	ctx := context.Background()

	t.Run("hides long-settled bets by default", func(t *testing.T) {
		repo := &testhelpers.MockBetRepository{}
		repo.On("List", mock.Anything, mock.MatchedBy(func(f interfaces.BetFilter) bool {
			return f.HideRejectedBefore != nil &&
				f.HideRejectedBefore.Equal(baseTime.Add(-24*time.Hour)) &&
				f.HideClosedBefore != nil &&
				f.HideClosedBefore.Equal(baseTime.Add(-72*time.Hour)) &&
				f.Limit == defaultListLimit &&
				f.Address == takerAddr
		})).Return([]*entities.Bet{sampleBet(7, entities.BetStatusCreated)}, nil).Once()

		svc, _ := newQueryService(repo, nil)
		views, err := svc.List(ctx, BetQuery{Address: takerAddr, Viewer: entities.Identity{Address: takerAddr}})
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, entities.RoleTaker, views[0].Description.Role)
		assert.Contains(t, views[0].Description.Actions, entities.ActionAccept)
		repo.AssertExpectations(t)
	})

	t.Run("include hidden and clamp the page size", func(t *testing.T) {
		repo := &testhelpers.MockBetRepository{}
		repo.On("List", mock.Anything, mock.MatchedBy(func(f interfaces.BetFilter) bool {
			return f.HideRejectedBefore == nil && f.HideClosedBefore == nil && f.Limit == maxListLimit
		})).Return([]*entities.Bet{}, nil).Once()

		svc, _ := newQueryService(repo, nil)
		views, err := svc.List(ctx, BetQuery{IncludeHidden: true, Limit: 10_000})
		require.NoError(t, err)
		assert.Empty(t, views)
		repo.AssertExpectations(t)
	})

	t.Run("attaches profiles in one lookup", func(t *testing.T) {
		identity := &testhelpers.MockIdentityProvider{}
		identity.On("ProfilesByFID", mock.Anything, []int64{100, 200, 300}).Return(map[int64]*entities.Profile{
			100: {FID: 100, Username: "maker"},
			200: {FID: 200, Username: "taker"},
		}, nil).Once()

		svc, _ := newQueryService(newMemoryBets(sampleBet(7, entities.BetStatusCreated)), identity)
		views, err := svc.List(ctx, BetQuery{})
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, "maker", views[0].Bet.MakerProfile.Username)
		assert.Equal(t, "taker", views[0].Bet.TakerProfile.Username)
		assert.Nil(t, views[0].Bet.ArbiterProfile)
		identity.AssertExpectations(t)
	})

	t.Run("identity failures still return bets", func(t *testing.T) {
		identity := &testhelpers.MockIdentityProvider{}
		identity.On("ProfilesByFID", mock.Anything, mock.Anything).Return(nil, errors.New("rate limited")).Once()

		svc, _ := newQueryService(newMemoryBets(sampleBet(7, entities.BetStatusCreated)), identity)
		views, err := svc.List(ctx, BetQuery{})
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Nil(t, views[0].Bet.MakerProfile)
	})
}

func TestBetQueryService_Get(t *testing.T) {
	ctx := context.Background()
	svc, factory := newQueryService(newMemoryBets(sampleBet(7, entities.BetStatusArbiterAccepted)), nil)

	t.Run("describes the bet for the viewer", func(t *testing.T) {
		view, err := svc.Get(ctx, 7, entities.Identity{Address: arbiterAddr})
		require.NoError(t, err)
		assert.Equal(t, entities.RoleArbiter, view.Description.Role)
		assert.Contains(t, view.Description.Actions, entities.ActionSelectWinner)
		assert.Greater(t, view.Description.TimeRemaining, time.Duration(0))
	})

	t.Run("spectators see no actions", func(t *testing.T) {
		view, err := svc.Get(ctx, 7, entities.Identity{})
		require.NoError(t, err)
		assert.Equal(t, entities.RoleSpectator, view.Description.Role)
		assert.Empty(t, view.Description.Actions)
	})

	t.Run("missing bet", func(t *testing.T) {
		_, err := svc.Get(ctx, 99, entities.Identity{})
		require.ErrorIs(t, err, entities.ErrBetNotFound)
	})

	t.Run("notification log", func(t *testing.T) {
		logs := factory.logs.(*testhelpers.MockNotificationLogRepository)
		logs.On("ListByBet", mock.Anything, int64(7)).Return([]*entities.NotificationLogEntry{
			{ID: 1, BetNumber: 7, RecipientFID: 200, Type: entities.NotificationWinnerSelected, Delivered: true},
		}, nil).Once()

		entries, err := svc.Notifications(ctx, 7)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.True(t, entries[0].Delivered)
	})
}
