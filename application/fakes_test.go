package application

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"betmirror/domain/entities"
	"betmirror/domain/interfaces"
	"betmirror/domain/lifecycle"
	"betmirror/domain/testhelpers"
	"betmirror/events"

	"github.com/shopspring/decimal"
)

const (
	makerAddr    = "0x1111111111111111111111111111111111111111"
	takerAddr    = "0x2222222222222222222222222222222222222222"
	arbiterAddr  = "0x3333333333333333333333333333333333333333"
	strangerAddr = "0x4444444444444444444444444444444444444444"
	tokenAddr    = "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func int64Ptr(v int64) *int64 { return &v }

func statusPtr(s entities.BetStatus) *entities.BetStatus { return &s }

func fixedClock(t time.Time) interfaces.Clock {
	return func() time.Time { return t }
}

func sampleBet(betNumber int64, status entities.BetStatus) *entities.Bet {
	return &entities.Bet{
		BetNumber:       betNumber,
		MakerAddress:    makerAddr,
		MakerFID:        int64Ptr(100),
		TakerAddress:    []string{takerAddr},
		TakerFID:        int64Ptr(200),
		ArbiterAddress:  []string{arbiterAddr},
		ArbiterFID:      int64Ptr(300),
		BetTokenAddress: tokenAddr,
		BetAmount:       big.NewInt(10_000_000),
		BetAgreement:    "Benfica win the derby",
		EndTime:         baseTime.Add(48 * time.Hour).Unix(),
		CanSettleEarly:  true,
		ProtocolFee:     decimal.NewFromInt(1),
		ArbiterFee:      decimal.NewFromInt(2),
		Status:          status,
		Timestamp:       baseTime.Add(-time.Hour).Unix(),
		TransactionHash: fmt.Sprintf("0xcreate%d", betNumber),
		UpdatedAt:       baseTime.Add(-time.Hour),
	}
}

func cloneBet(b *entities.Bet) *entities.Bet {
	out := *b
	out.TakerAddress = append([]string(nil), b.TakerAddress...)
	out.ArbiterAddress = append([]string(nil), b.ArbiterAddress...)
	return &out
}

// memoryBets is a BetRepository with the same conditional write semantics
// as the postgres one
type memoryBets struct {
	mu   sync.Mutex
	bets map[int64]*entities.Bet
	now  time.Time
}

func newMemoryBets(bets ...*entities.Bet) *memoryBets {
	m := &memoryBets{bets: make(map[int64]*entities.Bet), now: baseTime}
	for _, b := range bets {
		m.bets[b.BetNumber] = cloneBet(b)
	}
	return m
}

func (m *memoryBets) get(betNumber int64) *entities.Bet {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.bets[betNumber]; ok {
		return cloneBet(b)
	}
	return nil
}

func (m *memoryBets) put(b *entities.Bet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bets[b.BetNumber] = cloneBet(b)
}

func (m *memoryBets) Create(ctx context.Context, bet *entities.Bet) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bets[bet.BetNumber]; ok {
		return false, nil
	}
	bet.UpdatedAt = m.now
	m.bets[bet.BetNumber] = cloneBet(bet)
	return true, nil
}

func (m *memoryBets) GetByNumber(ctx context.Context, betNumber int64) (*entities.Bet, error) {
	return m.get(betNumber), nil
}

func (m *memoryBets) List(ctx context.Context, filter interfaces.BetFilter) ([]*entities.Bet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entities.Bet
	for _, b := range m.bets {
		out = append(out, cloneBet(b))
	}
	return out, nil
}

func (m *memoryBets) CommitTransition(ctx context.Context, betNumber int64, expected interfaces.Prior, update interfaces.BetUpdate) (*entities.Bet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bets[betNumber]
	if !ok {
		return nil, fmt.Errorf("bet %d: %w", betNumber, entities.ErrBetNotFound)
	}
	if b.Status != expected.Status || !strings.EqualFold(b.TransactionHash, expected.TransactionHash) {
		return nil, fmt.Errorf("bet %d no longer %s at %s: %w", betNumber, expected.Status, expected.TransactionHash, entities.ErrMirrorConflict)
	}

	b.Status = update.Status
	b.TransactionHash = update.TransactionHash
	b.ReconciledFrom = update.ReconciledFrom
	if update.Terms != nil {
		b.ApplyTerms(*update.Terms)
		b.TakerFID = nil
		if update.ArbiterFID == nil {
			b.ArbiterFID = nil
		}
	}
	if update.ArbiterAddress != nil && update.Terms == nil {
		b.ArbiterAddress = append([]string(nil), update.ArbiterAddress...)
	}
	if update.ArbiterFID != nil {
		b.ArbiterFID = update.ArbiterFID
	}
	b.UpdatedAt = m.now
	return cloneBet(b), nil
}

func (m *memoryBets) AttachFIDs(ctx context.Context, betNumber int64, makerFID, takerFID, arbiterFID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bets[betNumber]
	if !ok {
		return nil
	}
	if b.MakerFID == nil {
		b.MakerFID = makerFID
	}
	if b.TakerFID == nil {
		b.TakerFID = takerFID
	}
	if b.ArbiterFID == nil {
		b.ArbiterFID = arbiterFID
	}
	return nil
}

// eventLog collects events flushed after commit
type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) Publish(event events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *eventLog) all() []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]events.Event(nil), l.events...)
}

func (l *eventLog) transitions() []events.BetTransitionedEvent {
	var out []events.BetTransitionedEvent
	for _, e := range l.all() {
		if tr, ok := e.(events.BetTransitionedEvent); ok {
			out = append(out, tr)
		}
	}
	return out
}

// fakeUnitOfWork queues events and releases them only on commit
type fakeUnitOfWork struct {
	factory *fakeUnitOfWorkFactory
	began   bool
	pending []events.Event
}

func (u *fakeUnitOfWork) Begin(ctx context.Context) error {
	if u.began {
		return fmt.Errorf("transaction already started")
	}
	u.began = true
	return nil
}

func (u *fakeUnitOfWork) Commit() error {
	if !u.began {
		return fmt.Errorf("no transaction to commit")
	}
	u.began = false
	for _, e := range u.pending {
		_ = u.factory.bus.Publish(e)
	}
	u.pending = nil
	return nil
}

func (u *fakeUnitOfWork) Rollback() error {
	u.began = false
	u.pending = nil
	return nil
}

func (u *fakeUnitOfWork) BetRepository() interfaces.BetRepository { return u.factory.bets }

func (u *fakeUnitOfWork) NotificationLogRepository() interfaces.NotificationLogRepository {
	return u.factory.logs
}

func (u *fakeUnitOfWork) SyncStateRepository() interfaces.SyncStateRepository {
	return u.factory.cursors
}

func (u *fakeUnitOfWork) EventBus() interfaces.EventPublisher { return u }

func (u *fakeUnitOfWork) Publish(event events.Event) error {
	u.pending = append(u.pending, event)
	return nil
}

type fakeUnitOfWorkFactory struct {
	bets    interfaces.BetRepository
	logs    interfaces.NotificationLogRepository
	cursors interfaces.SyncStateRepository
	bus     *eventLog
}

func newFakeFactory(bets interfaces.BetRepository) *fakeUnitOfWorkFactory {
	return &fakeUnitOfWorkFactory{
		bets:    bets,
		logs:    &testhelpers.MockNotificationLogRepository{},
		cursors: &testhelpers.MockSyncStateRepository{},
		bus:     &eventLog{},
	}
}

func (f *fakeUnitOfWorkFactory) Create() UnitOfWork {
	return &fakeUnitOfWork{factory: f}
}

// harness wires a transition service and reconciler to in-memory state
type harness struct {
	store    *memoryBets
	factory  *fakeUnitOfWorkFactory
	executor *testhelpers.MockChainExecutor
	metrics  *testhelpers.RecordingMetrics
	service  *BetTransitionService
	recon    *Reconciler
}

func newHarness(t *testing.T, now time.Time, bets ...*entities.Bet) *harness {
	t.Helper()
	store := newMemoryBets(bets...)
	factory := newFakeFactory(store)
	executor := &testhelpers.MockChainExecutor{}
	metrics := &testhelpers.RecordingMetrics{}
	machine := lifecycle.NewMachine(lifecycle.DefaultPolicy())

	t.Cleanup(func() { executor.AssertExpectations(t) })

	return &harness{
		store:    store,
		factory:  factory,
		executor: executor,
		metrics:  metrics,
		service:  NewBetTransitionService(factory, machine, executor, metrics, fixedClock(now)),
		recon:    NewReconciler(factory, executor, metrics, fixedClock(now)),
	}
}
