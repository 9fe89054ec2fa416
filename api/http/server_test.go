package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"betmirror/application"
	"betmirror/domain/entities"
	"betmirror/domain/lifecycle"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTransitions struct{ mock.Mock }

func (m *mockTransitions) Execute(ctx context.Context, req application.TransitionRequest) (*application.TransitionResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.TransitionResult), args.Error(1)
}

func (m *mockTransitions) Create(ctx context.Context, req application.CreateRequest) (*application.TransitionResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.TransitionResult), args.Error(1)
}

type mockQueries struct{ mock.Mock }

func (m *mockQueries) List(ctx context.Context, q application.BetQuery) ([]application.BetView, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]application.BetView), args.Error(1)
}

func (m *mockQueries) Get(ctx context.Context, betNumber int64, viewer entities.Identity) (*application.BetView, error) {
	args := m.Called(ctx, betNumber, viewer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.BetView), args.Error(1)
}

func (m *mockQueries) Notifications(ctx context.Context, betNumber int64) ([]*entities.NotificationLogEntry, error) {
	args := m.Called(ctx, betNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.NotificationLogEntry), args.Error(1)
}

type mockReconciler struct{ mock.Mock }

func (m *mockReconciler) Reconcile(ctx context.Context, betNumber int64) (*entities.Bet, error) {
	args := m.Called(ctx, betNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Bet), args.Error(1)
}

const (
	makerAddr = "0x1111111111111111111111111111111111111111"
	takerAddr = "0x2222222222222222222222222222222222222222"
)

func testBet(status entities.BetStatus) *entities.Bet {
	fid := int64(100)
	amount, _ := new(big.Int).SetString("1000000000000000000000", 10)
	return &entities.Bet{
		BetNumber:       7,
		MakerAddress:    makerAddr,
		MakerFID:        &fid,
		TakerAddress:    []string{takerAddr},
		BetTokenAddress: entities.NativeTokenAddress,
		BetAmount:       amount,
		BetAgreement:    "Lakers by ten",
		EndTime:         time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC).Unix(),
		ProtocolFee:     decimal.NewFromInt(1),
		ArbiterFee:      decimal.RequireFromString("2.5"),
		Status:          status,
		TransactionHash: "0xabc",
		MakerProfile:    &entities.Profile{FID: 100, Username: "maker"},
	}
}

type apiHarness struct {
	transitions *mockTransitions
	queries     *mockQueries
	reconciler  *mockReconciler
	handler     http.Handler
}

func newAPIHarness(t *testing.T) *apiHarness {
	h := &apiHarness{
		transitions: &mockTransitions{},
		queries:     &mockQueries{},
		reconciler:  &mockReconciler{},
	}
	h.handler = NewServer(h.transitions, h.queries, h.reconciler).Router()
	t.Cleanup(func() {
		h.transitions.AssertExpectations(t)
		h.queries.AssertExpectations(t)
		h.reconciler.AssertExpectations(t)
	})
	return h
}

func (h *apiHarness) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListBets(t *testing.T) {
	t.Run("passes filters and viewer through", func(t *testing.T) {
		h := newAPIHarness(t)
		bet := testBet(entities.BetStatusCreated)
		h.queries.On("List", mock.Anything, mock.MatchedBy(func(q application.BetQuery) bool {
			return q.Address == makerAddr &&
				q.FID != nil && *q.FID == 100 &&
				assert.ObjectsAreEqual([]entities.BetStatus{entities.BetStatusCreated, entities.BetStatusRejected}, q.Statuses) &&
				q.IncludeHidden &&
				q.Viewer.Address == takerAddr &&
				q.Limit == 20
		})).Return([]application.BetView{{
			Bet: bet,
			Description: lifecycle.Description{
				Status:        entities.BetStatusCreated,
				Label:         "Offer received",
				Role:          entities.RoleTaker,
				TimeRemaining: 90 * time.Minute,
				Actions:       []entities.Action{entities.ActionAccept, entities.ActionReject},
			},
		}}, nil).Once()

		rec := h.do(http.MethodGet, "/v1/bets?address="+makerAddr+"&fid=100&status=created,9&include_hidden=true&viewer_address="+takerAddr+"&limit=20", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Bets []BetResponse `json:"bets"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Bets, 1)
		got := body.Bets[0]
		assert.Equal(t, "1000000000000000000000", got.BetAmount)
		assert.Equal(t, "2.5", got.ArbiterFee)
		assert.Equal(t, "created", got.StatusName)
		assert.Equal(t, []string{}, got.ArbiterAddress)
		require.NotNil(t, got.Maker)
		assert.Equal(t, "maker", got.Maker.Username)
		require.NotNil(t, got.Description)
		assert.Equal(t, int64(5400), got.Description.TimeRemainingSeconds)
		assert.Equal(t, []string{"accept", "reject"}, got.Description.Actions)
	})

	t.Run("rejects an unknown status", func(t *testing.T) {
		h := newAPIHarness(t)
		rec := h.do(http.MethodGet, "/v1/bets?status=3", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects a bad viewer fid", func(t *testing.T) {
		h := newAPIHarness(t)
		rec := h.do(http.MethodGet, "/v1/bets?viewer_fid=abc", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetBet(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		h := newAPIHarness(t)
		fid := int64(200)
		h.queries.On("Get", mock.Anything, int64(7), entities.Identity{FID: &fid}).
			Return(&application.BetView{Bet: testBet(entities.BetStatusCreated)}, nil).Once()

		rec := h.do(http.MethodGet, "/v1/bets/7?viewer_fid=200", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(7), decodeMap(t, rec)["bet_number"])
	})

	t.Run("not found", func(t *testing.T) {
		h := newAPIHarness(t)
		h.queries.On("Get", mock.Anything, int64(8), entities.Identity{}).
			Return(nil, fmt.Errorf("bet 8: %w", entities.ErrBetNotFound)).Once()

		rec := h.do(http.MethodGet, "/v1/bets/8", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad bet number", func(t *testing.T) {
		h := newAPIHarness(t)
		rec := h.do(http.MethodGet, "/v1/bets/seven", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListNotifications(t *testing.T) {
	h := newAPIHarness(t)
	h.queries.On("Notifications", mock.Anything, int64(7)).Return([]*entities.NotificationLogEntry{
		{ID: 1, RecipientFID: 200, Type: entities.NotificationBetOffer, Delivered: true, TransactionHash: "0xabc"},
	}, nil).Once()

	rec := h.do(http.MethodGet, "/v1/bets/7/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Notifications []NotificationResponse `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Notifications, 1)
	assert.Equal(t, "bet_offer", body.Notifications[0].Type)
}

func TestTransitionBet(t *testing.T) {
	accepted := testBet(entities.BetStatusTakerAccepted)

	t.Run("committed transition", func(t *testing.T) {
		h := newAPIHarness(t)
		h.transitions.On("Execute", mock.Anything, mock.MatchedBy(func(req application.TransitionRequest) bool {
			return req.BetNumber == 7 &&
				req.Action == entities.ActionAccept &&
				req.Actor.Address == takerAddr &&
				req.ExpectedStatus != nil && *req.ExpectedStatus == entities.BetStatusCreated &&
				req.TransactionHash == "0xa1"
		})).Return(&application.TransitionResult{
			Bet: accepted,
			Transition: entities.Transition{
				Action:          entities.ActionAccept,
				From:            entities.BetStatusCreated,
				To:              entities.BetStatusTakerAccepted,
				TransactionHash: "0xa1",
			},
			Receipt: &entities.Receipt{TransactionHash: "0xa1", BlockNumber: 42},
		}, nil).Once()

		rec := h.do(http.MethodPost, "/v1/bets/7/transitions",
			`{"action":"accept","actor":{"address":"`+takerAddr+`"},"expected_status":0,"transaction_hash":"0xa1"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var body TransitionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "accept", body.Action)
		require.NotNil(t, body.ToStatus)
		assert.Equal(t, 1, *body.ToStatus)
		assert.Equal(t, uint64(42), body.BlockNumber)
		assert.False(t, body.Replayed)
	})

	t.Run("edit terms are parsed", func(t *testing.T) {
		h := newAPIHarness(t)
		h.transitions.On("Execute", mock.Anything, mock.MatchedBy(func(req application.TransitionRequest) bool {
			terms := req.Args.Terms
			return req.Action == entities.ActionEdit &&
				terms != nil &&
				terms.BetAmount.String() == "5000000" &&
				terms.ArbiterFee.Equal(decimal.RequireFromString("1.25")) &&
				terms.BetTokenAddress == entities.NativeTokenAddress
		})).Return(&application.TransitionResult{Bet: testBet(entities.BetStatusCreated)}, nil).Once()

		rec := h.do(http.MethodPost, "/v1/bets/7/transitions",
			`{"action":"edit","args":{"terms":{"taker_address":["`+takerAddr+`"],"bet_amount":"5000000","arbiter_fee":"1.25","end_time":1800000000}}}`)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	errorCases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"policy violation", entities.NewPolicyError(entities.ActionForfeit, entities.BetStatusArbiterAccepted, "only the taker may forfeit"), http.StatusUnprocessableEntity, "policy_violation"},
		{"unknown status", &entities.PolicyError{Action: entities.ActionAccept, Status: 3, Reason: "unrecognised", Cause: entities.ErrUnknownStatus}, http.StatusConflict, "unknown_status"},
		{"reverted", fmt.Errorf("failed to accept bet 7: %w", entities.ErrChainReverted), http.StatusBadGateway, "reverted"},
		{"signer", fmt.Errorf("%w: no key", entities.ErrSignerRejected), http.StatusForbidden, "signer_rejected"},
		{"mismatch", fmt.Errorf("%w: wrong sender", entities.ErrTransactionMismatch), http.StatusUnprocessableEntity, "transaction_mismatch"},
		{"abandoned", entities.ErrSubmissionAbandoned, http.StatusServiceUnavailable, "abandoned"},
		{"unexpected", fmt.Errorf("pool closed"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newAPIHarness(t)
			h.transitions.On("Execute", mock.Anything, mock.Anything).Return(nil, tc.err).Once()

			rec := h.do(http.MethodPost, "/v1/bets/7/transitions", `{"action":"accept"}`)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decodeMap(t, rec)["error"])
		})
	}

	t.Run("conflict returns the fresh bet", func(t *testing.T) {
		h := newAPIHarness(t)
		h.transitions.On("Execute", mock.Anything, mock.Anything).Return(nil, &entities.ConflictError{
			BetNumber: 7,
			Expected:  entities.BetStatusCreated,
			Current:   accepted,
		}).Once()

		rec := h.do(http.MethodPost, "/v1/bets/7/transitions", `{"action":"reject","expected_status":0}`)
		require.Equal(t, http.StatusConflict, rec.Code)
		body := decodeMap(t, rec)
		assert.Equal(t, "conflict", body["error"])
		bet, ok := body["bet"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(entities.BetStatusTakerAccepted), bet["status"])
	})

	t.Run("timeout is indeterminate", func(t *testing.T) {
		h := newAPIHarness(t)
		h.transitions.On("Execute", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("failed to claim bet 7: %w", entities.ErrConfirmationTimeout)).Once()

		rec := h.do(http.MethodPost, "/v1/bets/7/transitions", `{"action":"claim"}`)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "indeterminate", decodeMap(t, rec)["status"])
	})

	badBodies := map[string]string{
		"unknown action": `{"action":"teleport"}`,
		"create action":  `{"action":"create"}`,
		"unknown field":  `{"action":"accept","bogus":1}`,
		"bad amount":     `{"action":"edit","args":{"terms":{"bet_amount":"1.5"}}}`,
		"not even json":  `accept`,
	}
	for name, body := range badBodies {
		t.Run(name, func(t *testing.T) {
			h := newAPIHarness(t)
			rec := h.do(http.MethodPost, "/v1/bets/7/transitions", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCreateBet(t *testing.T) {
	t.Run("registers a client-created bet", func(t *testing.T) {
		h := newAPIHarness(t)
		h.transitions.On("Create", mock.Anything, application.CreateRequest{
			Maker:           entities.Identity{Address: makerAddr},
			TransactionHash: "0xc1",
		}).Return(&application.TransitionResult{
			Bet:        testBet(entities.BetStatusCreated),
			Transition: entities.Transition{Action: entities.ActionCreate, TransactionHash: "0xc1"},
		}, nil).Once()

		rec := h.do(http.MethodPost, "/v1/bets", `{"maker":{"address":"`+makerAddr+`"},"transaction_hash":"0xc1"}`)
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("replayed registration is not a new resource", func(t *testing.T) {
		h := newAPIHarness(t)
		h.transitions.On("Create", mock.Anything, mock.Anything).
			Return(&application.TransitionResult{Bet: testBet(entities.BetStatusCreated), Replayed: true}, nil).Once()

		rec := h.do(http.MethodPost, "/v1/bets", `{"transaction_hash":"0xc1"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decodeMap(t, rec)["replayed"])
	})

	t.Run("needs a hash or terms", func(t *testing.T) {
		h := newAPIHarness(t)
		rec := h.do(http.MethodPost, "/v1/bets", `{"maker":{"address":"`+makerAddr+`"}}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestReconcileBet(t *testing.T) {
	h := newAPIHarness(t)
	h.reconciler.On("Reconcile", mock.Anything, int64(7)).Return(testBet(entities.BetStatusTakerAccepted), nil).Once()

	rec := h.do(http.MethodPost, "/v1/bets/7/reconcile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "taker_accepted", decodeMap(t, rec)["status_name"])
}
