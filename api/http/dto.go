package httpapi

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"betmirror/application"
	"betmirror/domain/entities"

	"github.com/shopspring/decimal"
)

// ProfileResponse is the display projection of a participant
type ProfileResponse struct {
	FID         int64  `json:"fid"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	PfpURL      string `json:"pfp_url,omitempty"`
}

// DescriptionResponse is what the viewer sees for the bet right now
type DescriptionResponse struct {
	Label   string `json:"label"`
	Message string `json:"message"`
	Role    string `json:"role"`
	Unknown bool   `json:"unknown,omitempty"`
	Expired bool   `json:"expired"`

	// TimeRemainingSeconds counts down to end_time, zero once expired
	TimeRemainingSeconds int64    `json:"time_remaining_seconds"`
	Actions              []string `json:"actions"`
}

// BetResponse is a mirrored bet. Token amounts are decimal strings of base
// units so no precision is lost in JSON.
type BetResponse struct {
	BetNumber       int64     `json:"bet_number"`
	MakerAddress    string    `json:"maker_address"`
	MakerFID        *int64    `json:"maker_fid"`
	TakerAddress    []string  `json:"taker_address"`
	TakerFID        *int64    `json:"taker_fid"`
	ArbiterAddress  []string  `json:"arbiter_address"`
	ArbiterFID      *int64    `json:"arbiter_fid"`
	BetTokenAddress string    `json:"bet_token_address"`
	BetAmount       string    `json:"bet_amount"`
	BetAgreement    string    `json:"bet_agreement"`
	EndTime         int64     `json:"end_time"`
	CanSettleEarly  bool      `json:"can_settle_early"`
	ProtocolFee     string    `json:"protocol_fee"`
	ArbiterFee      string    `json:"arbiter_fee"`
	Status          int       `json:"status"`
	StatusName      string    `json:"status_name"`
	Timestamp       int64     `json:"timestamp"`
	TransactionHash string    `json:"transaction_hash"`
	UpdatedAt       time.Time `json:"updated_at"`

	Maker   *ProfileResponse `json:"maker,omitempty"`
	Taker   *ProfileResponse `json:"taker,omitempty"`
	Arbiter *ProfileResponse `json:"arbiter,omitempty"`

	Description *DescriptionResponse `json:"description,omitempty"`
}

// TransitionResponse is returned after a committed action
type TransitionResponse struct {
	Bet             BetResponse `json:"bet"`
	Action          string      `json:"action,omitempty"`
	FromStatus      *int        `json:"from_status,omitempty"`
	ToStatus        *int        `json:"to_status,omitempty"`
	TransactionHash string      `json:"transaction_hash,omitempty"`
	BlockNumber     uint64      `json:"block_number,omitempty"`
	Replayed        bool        `json:"replayed"`
}

// NotificationResponse is one entry of a bet's delivery log
type NotificationResponse struct {
	ID              int64     `json:"id"`
	TransactionHash string    `json:"transaction_hash"`
	RecipientFID    int64     `json:"recipient_fid"`
	Type            string    `json:"type"`
	Delivered       bool      `json:"delivered"`
	LastError       *string   `json:"last_error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// IdentityBody names the acting party
type IdentityBody struct {
	Address string `json:"address"`
	FID     *int64 `json:"fid"`
}

// TermsBody carries the maker-controlled terms of a bet
type TermsBody struct {
	TakerAddress    []string `json:"taker_address"`
	ArbiterAddress  []string `json:"arbiter_address"`
	BetTokenAddress string   `json:"bet_token_address"`
	BetAmount       string   `json:"bet_amount"`
	BetAgreement    string   `json:"bet_agreement"`
	EndTime         int64    `json:"end_time"`
	CanSettleEarly  bool     `json:"can_settle_early"`
	ArbiterFee      string   `json:"arbiter_fee"`
}

// TransitionBody is the conditional-update request
type TransitionBody struct {
	Action          string       `json:"action"`
	Actor           IdentityBody `json:"actor"`
	ExpectedStatus  *int         `json:"expected_status"`
	TransactionHash string       `json:"transaction_hash"`
	Args            struct {
		MakerWins *bool      `json:"maker_wins"`
		Terms     *TermsBody `json:"terms"`
	} `json:"args"`
}

// CreateBody registers or submits a new bet
type CreateBody struct {
	Maker           IdentityBody `json:"maker"`
	Terms           *TermsBody   `json:"terms"`
	TransactionHash string       `json:"transaction_hash"`
}

func (b IdentityBody) identity() entities.Identity {
	return entities.Identity{Address: strings.TrimSpace(b.Address), FID: b.FID}
}

func (b *TermsBody) terms() (*entities.Terms, error) {
	if b == nil {
		return nil, nil
	}

	amount, ok := new(big.Int).SetString(strings.TrimSpace(b.BetAmount), 10)
	if !ok {
		return nil, fmt.Errorf("bet_amount %q is not an integer", b.BetAmount)
	}

	fee := decimal.Zero
	if strings.TrimSpace(b.ArbiterFee) != "" {
		var err error
		if fee, err = decimal.NewFromString(b.ArbiterFee); err != nil {
			return nil, fmt.Errorf("arbiter_fee %q: %w", b.ArbiterFee, err)
		}
	}

	token := b.BetTokenAddress
	if token == "" {
		token = entities.NativeTokenAddress
	}

	return &entities.Terms{
		TakerAddress:    b.TakerAddress,
		ArbiterAddress:  b.ArbiterAddress,
		BetTokenAddress: token,
		BetAmount:       amount,
		BetAgreement:    b.BetAgreement,
		EndTime:         b.EndTime,
		CanSettleEarly:  b.CanSettleEarly,
		ArbiterFee:      fee,
	}, nil
}

func (b TransitionBody) request(betNumber int64) (application.TransitionRequest, error) {
	action := entities.Action(strings.TrimSpace(b.Action))
	if !action.IsValid() || action == entities.ActionCreate {
		return application.TransitionRequest{}, fmt.Errorf("unknown action %q", b.Action)
	}

	terms, err := b.Args.Terms.terms()
	if err != nil {
		return application.TransitionRequest{}, err
	}

	req := application.TransitionRequest{
		BetNumber:       betNumber,
		Action:          action,
		Actor:           b.Actor.identity(),
		Args:            entities.ActionArgs{MakerWins: b.Args.MakerWins, Terms: terms},
		TransactionHash: strings.TrimSpace(b.TransactionHash),
	}
	if b.ExpectedStatus != nil {
		status := entities.BetStatus(*b.ExpectedStatus)
		req.ExpectedStatus = &status
	}
	return req, nil
}

func (b CreateBody) request() (application.CreateRequest, error) {
	terms, err := b.Terms.terms()
	if err != nil {
		return application.CreateRequest{}, err
	}
	txHash := strings.TrimSpace(b.TransactionHash)
	if txHash == "" && terms == nil {
		return application.CreateRequest{}, fmt.Errorf("either transaction_hash or terms is required")
	}
	return application.CreateRequest{
		Maker:           b.Maker.identity(),
		Terms:           terms,
		TransactionHash: txHash,
	}, nil
}

func profileResponse(p *entities.Profile) *ProfileResponse {
	if p == nil {
		return nil
	}
	return &ProfileResponse{FID: p.FID, Username: p.Username, DisplayName: p.DisplayName, PfpURL: p.PfpURL}
}

func betResponse(bet *entities.Bet) BetResponse {
	amount := "0"
	if bet.BetAmount != nil {
		amount = bet.BetAmount.String()
	}
	return BetResponse{
		BetNumber:       bet.BetNumber,
		MakerAddress:    bet.MakerAddress,
		MakerFID:        bet.MakerFID,
		TakerAddress:    nonNil(bet.TakerAddress),
		TakerFID:        bet.TakerFID,
		ArbiterAddress:  nonNil(bet.ArbiterAddress),
		ArbiterFID:      bet.ArbiterFID,
		BetTokenAddress: bet.BetTokenAddress,
		BetAmount:       amount,
		BetAgreement:    bet.BetAgreement,
		EndTime:         bet.EndTime,
		CanSettleEarly:  bet.CanSettleEarly,
		ProtocolFee:     bet.ProtocolFee.String(),
		ArbiterFee:      bet.ArbiterFee.String(),
		Status:          int(bet.Status),
		StatusName:      bet.Status.String(),
		Timestamp:       bet.Timestamp,
		TransactionHash: bet.TransactionHash,
		UpdatedAt:       bet.UpdatedAt,
		Maker:           profileResponse(bet.MakerProfile),
		Taker:           profileResponse(bet.TakerProfile),
		Arbiter:         profileResponse(bet.ArbiterProfile),
	}
}

func viewResponse(v application.BetView) BetResponse {
	out := betResponse(v.Bet)
	d := v.Description

	actions := make([]string, 0, len(d.Actions))
	for _, a := range d.Actions {
		actions = append(actions, string(a))
	}
	out.Description = &DescriptionResponse{
		Label:                d.Label,
		Message:              d.Message,
		Role:                 string(d.Role),
		Unknown:              d.Unknown,
		Expired:              d.Expired,
		TimeRemainingSeconds: int64(d.TimeRemaining / time.Second),
		Actions:              actions,
	}
	return out
}

func transitionResponse(r *application.TransitionResult) TransitionResponse {
	out := TransitionResponse{Bet: betResponse(r.Bet), Replayed: r.Replayed}
	if !r.Replayed {
		from, to := int(r.Transition.From), int(r.Transition.To)
		out.Action = string(r.Transition.Action)
		out.FromStatus = &from
		out.ToStatus = &to
		out.TransactionHash = r.Transition.TransactionHash
	}
	if r.Receipt != nil {
		out.TransactionHash = r.Receipt.TransactionHash
		out.BlockNumber = r.Receipt.BlockNumber
	}
	return out
}

func notificationResponse(e *entities.NotificationLogEntry) NotificationResponse {
	return NotificationResponse{
		ID:              e.ID,
		TransactionHash: e.TransactionHash,
		RecipientFID:    e.RecipientFID,
		Type:            string(e.Type),
		Delivered:       e.Delivered,
		LastError:       e.LastError,
		CreatedAt:       e.CreatedAt,
	}
}

// parseStatuses accepts names or numeric codes, comma separated or repeated
func parseStatuses(values []string) ([]entities.BetStatus, error) {
	var out []entities.BetStatus
	for _, value := range values {
		for _, raw := range strings.Split(value, ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			status, err := parseStatus(raw)
			if err != nil {
				return nil, err
			}
			out = append(out, status)
		}
	}
	return out, nil
}

func parseStatus(raw string) (entities.BetStatus, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		status := entities.BetStatus(n)
		if !status.IsKnown() {
			return 0, fmt.Errorf("unknown status %d", n)
		}
		return status, nil
	}
	for _, status := range entities.AllBetStatuses {
		if strings.EqualFold(status.String(), raw) {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", raw)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
