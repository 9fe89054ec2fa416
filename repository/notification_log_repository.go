package repository

import (
	"context"
	"errors"
	"fmt"

	"betmirror/database"
	"betmirror/domain/entities"
	"betmirror/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

// NotificationLogRepository records notification deliveries
type NotificationLogRepository struct {
	q Queryable
}

// NewNotificationLogRepository creates a notification log repository on the pool
func NewNotificationLogRepository(db *database.DB) *NotificationLogRepository {
	return &NotificationLogRepository{q: db.Pool}
}

func newNotificationLogRepositoryWithTx(tx Queryable) *NotificationLogRepository {
	return &NotificationLogRepository{q: tx}
}

var _ interfaces.NotificationLogRepository = (*NotificationLogRepository)(nil)

// Reserve claims the (bet, transaction, recipient) slot. A second reservation
// for the same slot reports false and leaves the first untouched.
func (r *NotificationLogRepository) Reserve(ctx context.Context, entry *entities.NotificationLogEntry) (bool, error) {
	query := `
		INSERT INTO notification_log (bet_number, transaction_hash, recipient_fid, type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (bet_number, transaction_hash, recipient_fid) DO NOTHING
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		entry.BetNumber,
		entry.TransactionHash,
		entry.RecipientFID,
		string(entry.Type),
	).Scan(&entry.ID, &entry.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to reserve notification for bet %d: %w", entry.BetNumber, err)
	}
	return true, nil
}

// MarkDelivered flags an entry as sent
func (r *NotificationLogRepository) MarkDelivered(ctx context.Context, id int64) error {
	query := `UPDATE notification_log SET delivered = TRUE, last_error = NULL, updated_at = NOW() WHERE id = $1`
	if _, err := r.q.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark notification %d delivered: %w", id, err)
	}
	return nil
}

// MarkFailed stores the last delivery error
func (r *NotificationLogRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	query := `UPDATE notification_log SET last_error = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.q.Exec(ctx, query, id, reason); err != nil {
		return fmt.Errorf("failed to mark notification %d failed: %w", id, err)
	}
	return nil
}

// ListByBet returns the log for a bet, oldest first
func (r *NotificationLogRepository) ListByBet(ctx context.Context, betNumber int64) ([]*entities.NotificationLogEntry, error) {
	query := `
		SELECT id, bet_number, transaction_hash, recipient_fid, type, delivered, last_error, created_at
		FROM notification_log
		WHERE bet_number = $1
		ORDER BY id
	`

	rows, err := r.q.Query(ctx, query, betNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications for bet %d: %w", betNumber, err)
	}
	defer rows.Close()

	var entries []*entities.NotificationLogEntry
	for rows.Next() {
		var (
			entry            entities.NotificationLogEntry
			notificationType string
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.BetNumber,
			&entry.TransactionHash,
			&entry.RecipientFID,
			&notificationType,
			&entry.Delivered,
			&entry.LastError,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		entry.Type = entities.NotificationType(notificationType)
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return entries, nil
}
