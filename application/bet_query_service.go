package application

import (
	"context"
	"fmt"
	"time"

	"betmirror/domain/entities"
	"betmirror/domain/interfaces"
	"betmirror/domain/lifecycle"

	log "github.com/sirupsen/logrus"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// BetQuery selects bets for a viewer
type BetQuery struct {
	Address  string
	FID      *int64
	Statuses []entities.BetStatus

	// IncludeHidden lists long-settled bets that the retention window hides
	IncludeHidden bool

	Viewer entities.Identity
	Limit  int
	Offset int
}

// BetView is a bet with what its viewer sees right now
type BetView struct {
	Bet         *entities.Bet
	Description lifecycle.Description
}

// BetQueryService answers read requests against the mirror
type BetQueryService struct {
	uowFactory UnitOfWorkFactory
	machine    *lifecycle.Machine
	identity   interfaces.IdentityProvider
	now        interfaces.Clock
}

// NewBetQueryService creates a BetQueryService. identity may be nil, in
// which case no profiles are attached.
func NewBetQueryService(uowFactory UnitOfWorkFactory, machine *lifecycle.Machine, identity interfaces.IdentityProvider, now interfaces.Clock) *BetQueryService {
	if now == nil {
		now = time.Now
	}
	return &BetQueryService{uowFactory: uowFactory, machine: machine, identity: identity, now: now}
}

// List returns bets matching the query, newest first
func (s *BetQueryService) List(ctx context.Context, q BetQuery) ([]BetView, error) {
	now := s.now()

	filter := interfaces.BetFilter{
		Address:  q.Address,
		FID:      q.FID,
		Statuses: q.Statuses,
		Limit:    q.Limit,
		Offset:   q.Offset,
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if !q.IncludeHidden {
		v := s.machine.VisibilityAt(now)
		filter.HideRejectedBefore = &v.RejectedBefore
		filter.HideClosedBefore = &v.ClosedBefore
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bets, err := uow.BetRepository().List(ctx, filter)
	if err != nil {
		return nil, err
	}
	uow.Rollback()

	s.attachProfiles(ctx, bets)

	views := make([]BetView, 0, len(bets))
	for _, bet := range bets {
		views = append(views, s.view(bet, q.Viewer, now))
	}
	return views, nil
}

// Get returns one bet with its description for the viewer
func (s *BetQueryService) Get(ctx context.Context, betNumber int64, viewer entities.Identity) (*BetView, error) {
	bet, err := loadBet(ctx, s.uowFactory, betNumber)
	if err != nil {
		return nil, err
	}
	if bet == nil {
		return nil, fmt.Errorf("bet %d: %w", betNumber, entities.ErrBetNotFound)
	}

	s.attachProfiles(ctx, []*entities.Bet{bet})
	view := s.view(bet, viewer, s.now())
	return &view, nil
}

// Notifications returns the delivery log for a bet
func (s *BetQueryService) Notifications(ctx context.Context, betNumber int64) ([]*entities.NotificationLogEntry, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.NotificationLogRepository().ListByBet(ctx, betNumber)
}

func (s *BetQueryService) view(bet *entities.Bet, viewer entities.Identity, now time.Time) BetView {
	d := s.machine.Describe(bet, viewer, now)
	if d.Unknown {
		log.WithFields(log.Fields{
			"betNumber": bet.BetNumber,
			"status":    int(bet.Status),
		}).Error("Bet has an unrecognised status")
	}
	return BetView{Bet: bet, Description: d}
}

// attachProfiles fills the display projections in one bulk lookup. Lookup
// failures leave the profiles empty.
func (s *BetQueryService) attachProfiles(ctx context.Context, bets []*entities.Bet) {
	if s.identity == nil || len(bets) == 0 {
		return
	}

	seen := make(map[int64]bool)
	var fids []int64
	add := func(fid *int64) {
		if fid != nil && !seen[*fid] {
			seen[*fid] = true
			fids = append(fids, *fid)
		}
	}
	for _, bet := range bets {
		add(bet.MakerFID)
		add(bet.TakerFID)
		add(bet.ArbiterFID)
	}
	if len(fids) == 0 {
		return
	}

	profiles, err := s.identity.ProfilesByFID(ctx, fids)
	if err != nil {
		log.WithError(err).Warn("Failed to load profiles for bets")
		return
	}

	lookup := func(fid *int64) *entities.Profile {
		if fid == nil {
			return nil
		}
		return profiles[*fid]
	}
	for _, bet := range bets {
		bet.MakerProfile = lookup(bet.MakerFID)
		bet.TakerProfile = lookup(bet.TakerFID)
		bet.ArbiterProfile = lookup(bet.ArbiterFID)
	}
}
