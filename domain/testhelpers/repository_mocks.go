package testhelpers

import (
	"context"

	"betmirror/domain/entities"
	"betmirror/domain/interfaces"

	"github.com/stretchr/testify/mock"
)

// MockBetRepository is a mock implementation of BetRepository
type MockBetRepository struct {
	mock.Mock
}

func (m *MockBetRepository) Create(ctx context.Context, bet *entities.Bet) (bool, error) {
	args := m.Called(ctx, bet)
	return args.Bool(0), args.Error(1)
}

func (m *MockBetRepository) GetByNumber(ctx context.Context, betNumber int64) (*entities.Bet, error) {
	args := m.Called(ctx, betNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Bet), args.Error(1)
}

func (m *MockBetRepository) List(ctx context.Context, filter interfaces.BetFilter) ([]*entities.Bet, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Bet), args.Error(1)
}

func (m *MockBetRepository) CommitTransition(ctx context.Context, betNumber int64, expected interfaces.Prior, update interfaces.BetUpdate) (*entities.Bet, error) {
	args := m.Called(ctx, betNumber, expected, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Bet), args.Error(1)
}

func (m *MockBetRepository) AttachFIDs(ctx context.Context, betNumber int64, makerFID, takerFID, arbiterFID *int64) error {
	args := m.Called(ctx, betNumber, makerFID, takerFID, arbiterFID)
	return args.Error(0)
}

// MockNotificationLogRepository is a mock implementation of NotificationLogRepository
type MockNotificationLogRepository struct {
	mock.Mock
}

func (m *MockNotificationLogRepository) Reserve(ctx context.Context, entry *entities.NotificationLogEntry) (bool, error) {
	args := m.Called(ctx, entry)
	return args.Bool(0), args.Error(1)
}

func (m *MockNotificationLogRepository) MarkDelivered(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockNotificationLogRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *MockNotificationLogRepository) ListByBet(ctx context.Context, betNumber int64) ([]*entities.NotificationLogEntry, error) {
	args := m.Called(ctx, betNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.NotificationLogEntry), args.Error(1)
}

// MockSyncStateRepository is a mock implementation of SyncStateRepository
type MockSyncStateRepository struct {
	mock.Mock
}

func (m *MockSyncStateRepository) GetCursor(ctx context.Context, name string) (uint64, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockSyncStateRepository) SetCursor(ctx context.Context, name string, block uint64) error {
	args := m.Called(ctx, name, block)
	return args.Error(0)
}
