package repository

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"betmirror/database"
	"betmirror/domain/entities"
	"betmirror/domain/interfaces"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Numeric columns are read as text so uint256 amounts survive intact
const betColumns = `
	bet_number, maker_address, maker_fid, taker_address, taker_fid,
	arbiter_address, arbiter_fid, bet_token_address, bet_amount::text,
	bet_agreement, end_time, can_settle_early, protocol_fee::text,
	arbiter_fee::text, status, timestamp, transaction_hash, updated_at,
	reconciled_from`

// BetRepository implements the bet mirror over postgres
type BetRepository struct {
	q Queryable
}

// NewBetRepository creates a bet repository on the pool
func NewBetRepository(db *database.DB) *BetRepository {
	return &BetRepository{q: db.Pool}
}

func newBetRepositoryWithTx(tx Queryable) *BetRepository {
	return &BetRepository{q: tx}
}

var _ interfaces.BetRepository = (*BetRepository)(nil)

// Create inserts a bet unless its number is already mirrored
func (r *BetRepository) Create(ctx context.Context, bet *entities.Bet) (bool, error) {
	query := `
		INSERT INTO bets (
			bet_number, maker_address, maker_fid, taker_address, taker_fid,
			arbiter_address, arbiter_fid, bet_token_address, bet_amount,
			bet_agreement, end_time, can_settle_early, protocol_fee,
			arbiter_fee, status, timestamp, transaction_hash
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10, $11, $12, $13::numeric, $14::numeric, $15, $16, $17)
		ON CONFLICT (bet_number) DO NOTHING
		RETURNING updated_at
	`

	err := r.q.QueryRow(ctx, query,
		bet.BetNumber,
		strings.ToLower(bet.MakerAddress),
		bet.MakerFID,
		lowerAll(bet.TakerAddress),
		bet.TakerFID,
		lowerAll(bet.ArbiterAddress),
		bet.ArbiterFID,
		strings.ToLower(bet.BetTokenAddress),
		amountText(bet.BetAmount),
		bet.BetAgreement,
		bet.EndTime,
		bet.CanSettleEarly,
		bet.ProtocolFee.String(),
		bet.ArbiterFee.String(),
		int16(bet.Status),
		bet.Timestamp,
		bet.TransactionHash,
	).Scan(&bet.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create bet %d: %w", bet.BetNumber, err)
	}
	return true, nil
}

// GetByNumber retrieves a bet, or nil when it is not mirrored
func (r *BetRepository) GetByNumber(ctx context.Context, betNumber int64) (*entities.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE bet_number = $1`

	bet, err := scanBet(r.q.QueryRow(ctx, query, betNumber))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bet %d: %w", betNumber, err)
	}
	return bet, nil
}

// List returns bets matching the filter, newest first
func (r *BetRepository) List(ctx context.Context, filter interfaces.BetFilter) ([]*entities.Bet, error) {
	var (
		conditions []string
		args       []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Address != "" {
		p := arg(strings.ToLower(filter.Address))
		conditions = append(conditions, fmt.Sprintf(
			"(maker_address = %[1]s OR %[1]s = ANY(taker_address) OR %[1]s = ANY(arbiter_address))", p))
	}
	if filter.FID != nil {
		p := arg(*filter.FID)
		conditions = append(conditions, fmt.Sprintf(
			"(maker_fid = %[1]s OR taker_fid = %[1]s OR arbiter_fid = %[1]s)", p))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]int16, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, int16(s))
		}
		conditions = append(conditions, fmt.Sprintf("status = ANY(%s::smallint[])", arg(statuses)))
	}
	if filter.HideRejectedBefore != nil {
		conditions = append(conditions, fmt.Sprintf(
			"NOT (status = %d AND updated_at < %s)", entities.BetStatusRejected, arg(*filter.HideRejectedBefore)))
	}
	if filter.HideClosedBefore != nil {
		conditions = append(conditions, fmt.Sprintf(
			"NOT (status IN (%d, %d, %d) AND updated_at < %s)",
			entities.BetStatusCancelled, entities.BetStatusMakerClaimed, entities.BetStatusTakerClaimed,
			arg(*filter.HideClosedBefore)))
	}

	query := `SELECT ` + betColumns + ` FROM bets`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY bet_number DESC`

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query += fmt.Sprintf(` LIMIT %s OFFSET %s`, arg(limit), arg(max(filter.Offset, 0)))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bets: %w", err)
	}
	defer rows.Close()

	var bets []*entities.Bet
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		bets = append(bets, bet)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bets: %w", err)
	}
	return bets, nil
}

// CommitTransition is the mirror's compare-and-set. The row is written only
// when its status and transaction hash still equal expected.
func (r *BetRepository) CommitTransition(ctx context.Context, betNumber int64, expected interfaces.Prior, update interfaces.BetUpdate) (*entities.Bet, error) {
	var reconciledFrom *int16
	if update.ReconciledFrom != nil {
		v := int16(*update.ReconciledFrom)
		reconciledFrom = &v
	}
	args := []any{betNumber, int16(expected.Status), int16(update.Status), update.TransactionHash, expected.TransactionHash, reconciledFrom}
	set := []string{"status = $3", "transaction_hash = $4", "reconciled_from = $6", "updated_at = NOW()"}
	assign := func(column string, v any, cast string) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d%s", column, len(args), cast))
	}

	if t := update.Terms; t != nil {
		assign("taker_address", lowerAll(t.TakerAddress), "")
		assign("arbiter_address", lowerAll(t.ArbiterAddress), "")
		assign("bet_token_address", strings.ToLower(t.BetTokenAddress), "")
		assign("bet_amount", amountText(t.BetAmount), "::numeric")
		assign("bet_agreement", t.BetAgreement, "")
		assign("end_time", t.EndTime, "")
		assign("can_settle_early", t.CanSettleEarly, "")
		assign("arbiter_fee", t.ArbiterFee.String(), "::numeric")

		// Party ids belong to the replaced addresses and are re-attached later
		set = append(set, "taker_fid = NULL")
		if update.ArbiterFID == nil {
			set = append(set, "arbiter_fid = NULL")
		}
	}
	if update.ArbiterAddress != nil && update.Terms == nil {
		assign("arbiter_address", lowerAll(update.ArbiterAddress), "")
	}
	if update.ArbiterFID != nil {
		assign("arbiter_fid", *update.ArbiterFID, "")
	}

	query := `UPDATE bets SET ` + strings.Join(set, ", ") +
		` WHERE bet_number = $1 AND status = $2 AND lower(transaction_hash) = lower($5) RETURNING ` + betColumns

	bet, err := scanBet(r.q.QueryRow(ctx, query, args...))
	if err == nil {
		return bet, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to commit transition for bet %d: %w", betNumber, err)
	}

	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bets WHERE bet_number = $1)`, betNumber).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check bet %d: %w", betNumber, err)
	}
	if !exists {
		return nil, fmt.Errorf("bet %d: %w", betNumber, entities.ErrBetNotFound)
	}
	return nil, fmt.Errorf("bet %d no longer %s at %s: %w", betNumber, expected.Status, expected.TransactionHash, entities.ErrMirrorConflict)
}

// AttachFIDs fills unset social ids; ids already stored are kept
func (r *BetRepository) AttachFIDs(ctx context.Context, betNumber int64, makerFID, takerFID, arbiterFID *int64) error {
	query := `
		UPDATE bets SET
			maker_fid = COALESCE(maker_fid, $2),
			taker_fid = COALESCE(taker_fid, $3),
			arbiter_fid = COALESCE(arbiter_fid, $4)
		WHERE bet_number = $1
	`
	if _, err := r.q.Exec(ctx, query, betNumber, makerFID, takerFID, arbiterFID); err != nil {
		return fmt.Errorf("failed to attach fids to bet %d: %w", betNumber, err)
	}
	return nil
}

func scanBet(row pgx.Row) (*entities.Bet, error) {
	var (
		bet                   entities.Bet
		amount, protocol, fee string
		status                int16
		reconciledFrom        *int16
	)
	err := row.Scan(
		&bet.BetNumber,
		&bet.MakerAddress,
		&bet.MakerFID,
		&bet.TakerAddress,
		&bet.TakerFID,
		&bet.ArbiterAddress,
		&bet.ArbiterFID,
		&bet.BetTokenAddress,
		&amount,
		&bet.BetAgreement,
		&bet.EndTime,
		&bet.CanSettleEarly,
		&protocol,
		&fee,
		&status,
		&bet.Timestamp,
		&bet.TransactionHash,
		&bet.UpdatedAt,
		&reconciledFrom,
	)
	if err != nil {
		return nil, err
	}

	var ok bool
	if bet.BetAmount, ok = new(big.Int).SetString(amount, 10); !ok {
		return nil, fmt.Errorf("invalid bet_amount %q", amount)
	}
	if bet.ProtocolFee, err = decimal.NewFromString(protocol); err != nil {
		return nil, fmt.Errorf("invalid protocol_fee %q: %w", protocol, err)
	}
	if bet.ArbiterFee, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("invalid arbiter_fee %q: %w", fee, err)
	}
	bet.Status = entities.BetStatus(status)
	if reconciledFrom != nil {
		from := entities.BetStatus(*reconciledFrom)
		bet.ReconciledFrom = &from
	}
	return &bet, nil
}

func amountText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(strings.TrimSpace(s)))
	}
	return out
}
