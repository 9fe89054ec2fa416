package repository

import (
	"context"
	"errors"
	"fmt"

	"betmirror/database"
	"betmirror/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

// SyncStateRepository persists named chain cursors
type SyncStateRepository struct {
	q Queryable
}

// NewSyncStateRepository creates a sync state repository on the pool
func NewSyncStateRepository(db *database.DB) *SyncStateRepository {
	return &SyncStateRepository{q: db.Pool}
}

func newSyncStateRepositoryWithTx(tx Queryable) *SyncStateRepository {
	return &SyncStateRepository{q: tx}
}

var _ interfaces.SyncStateRepository = (*SyncStateRepository)(nil)

// GetCursor returns the last processed block, 0 when none is stored
func (r *SyncStateRepository) GetCursor(ctx context.Context, name string) (uint64, error) {
	var block int64
	err := r.q.QueryRow(ctx, `SELECT last_block FROM sync_state WHERE name = $1`, name).Scan(&block)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get cursor %s: %w", name, err)
	}
	return uint64(block), nil
}

// SetCursor stores the last processed block. Cursors never move backwards.
func (r *SyncStateRepository) SetCursor(ctx context.Context, name string, block uint64) error {
	query := `
		INSERT INTO sync_state (name, last_block)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE
		SET last_block = GREATEST(sync_state.last_block, EXCLUDED.last_block),
		    updated_at = NOW()
	`
	if _, err := r.q.Exec(ctx, query, name, int64(block)); err != nil {
		return fmt.Errorf("failed to set cursor %s: %w", name, err)
	}
	return nil
}
