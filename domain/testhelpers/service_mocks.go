package testhelpers

import (
	"context"
	"sync"
	"time"

	"betmirror/domain/entities"
	"betmirror/events"

	"github.com/stretchr/testify/mock"
)

// MockChainExecutor is a mock implementation of ChainExecutor
type MockChainExecutor struct {
	mock.Mock
}

func (m *MockChainExecutor) Submit(ctx context.Context, sub entities.Submission) (*entities.Receipt, error) {
	args := m.Called(ctx, sub)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Receipt), args.Error(1)
}

func (m *MockChainExecutor) AwaitReceipt(ctx context.Context, txHash string, sub entities.Submission) (*entities.Receipt, error) {
	args := m.Called(ctx, txHash, sub)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Receipt), args.Error(1)
}

func (m *MockChainExecutor) InspectTransaction(ctx context.Context, txHash string) (*entities.ChainCall, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.ChainCall), args.Error(1)
}

func (m *MockChainExecutor) ReadBet(ctx context.Context, betNumber int64) (*entities.Bet, error) {
	args := m.Called(ctx, betNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Bet), args.Error(1)
}

func (m *MockChainExecutor) SignerAddress() string {
	args := m.Called()
	return args.String(0)
}

// MockNotificationSender is a mock implementation of NotificationSender
type MockNotificationSender struct {
	mock.Mock
}

func (m *MockNotificationSender) Send(ctx context.Context, notification entities.Notification) error {
	args := m.Called(ctx, notification)
	return args.Error(0)
}

// MockNotificationDispatcher is a mock implementation of NotificationDispatcher
type MockNotificationDispatcher struct {
	mock.Mock
}

func (m *MockNotificationDispatcher) Dispatch(ctx context.Context, bet *entities.Bet, transition entities.Transition) error {
	args := m.Called(ctx, bet, transition)
	return args.Error(0)
}

// MockIdentityProvider is a mock implementation of IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) ProfileByFID(ctx context.Context, fid int64) (*entities.Profile, error) {
	args := m.Called(ctx, fid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Profile), args.Error(1)
}

func (m *MockIdentityProvider) ProfilesByFID(ctx context.Context, fids []int64) (map[int64]*entities.Profile, error) {
	args := m.Called(ctx, fids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64]*entities.Profile), args.Error(1)
}

func (m *MockIdentityProvider) ProfileByAddress(ctx context.Context, address string) (*entities.Profile, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Profile), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) error {
	args := m.Called(event)
	return args.Error(0)
}

// RecordingMetrics counts calls to the MetricsRecorder methods
type RecordingMetrics struct {
	mu            sync.Mutex
	Committed     []entities.Action
	Conflicts     []entities.Action
	Violations    []entities.Action
	Submissions   []string
	Notifications map[entities.NotificationType][]string
}

func (r *RecordingMetrics) RecordTransitionCommitted(action entities.Action, source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Committed = append(r.Committed, action)
}

func (r *RecordingMetrics) RecordMirrorConflict(action entities.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Conflicts = append(r.Conflicts, action)
}

func (r *RecordingMetrics) RecordPolicyViolation(action entities.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Violations = append(r.Violations, action)
}

func (r *RecordingMetrics) RecordChainSubmission(action entities.Action, outcome string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Submissions = append(r.Submissions, outcome)
}

func (r *RecordingMetrics) RecordNotification(notificationType entities.NotificationType, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Notifications == nil {
		r.Notifications = make(map[entities.NotificationType][]string)
	}
	r.Notifications[notificationType] = append(r.Notifications[notificationType], outcome)
}
