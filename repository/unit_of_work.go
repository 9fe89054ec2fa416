package repository

import (
	"context"
	"errors"
	"fmt"

	"betmirror/application"
	"betmirror/database"
	"betmirror/domain/interfaces"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
)

// unitOfWork implements the UnitOfWork interface
type unitOfWork struct {
	db                     *database.DB
	tx                     pgx.Tx
	ctx                    context.Context
	transactionalPublisher interfaces.TransactionalEventPublisher
	betRepo                interfaces.BetRepository
	notificationLogRepo    interfaces.NotificationLogRepository
	syncStateRepo          interfaces.SyncStateRepository
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory
func NewUnitOfWorkFactory(db *database.DB) *UnitOfWorkFactory {
	return &UnitOfWorkFactory{db: db}
}

// UnitOfWorkFactory creates transaction-scoped repositories
type UnitOfWorkFactory struct {
	db *database.DB
}

// CreateWithPublisher creates a UnitOfWork whose events flush through the given
// transactional publisher on commit
func (f *UnitOfWorkFactory) CreateWithPublisher(transactionalPublisher interfaces.TransactionalEventPublisher) application.UnitOfWork {
	return &unitOfWork{
		db:                     f.db,
		transactionalPublisher: transactionalPublisher,
	}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx

	u.betRepo = newBetRepositoryWithTx(tx)
	u.notificationLogRepo = newNotificationLogRepositoryWithTx(tx)
	u.syncStateRepo = newSyncStateRepositoryWithTx(tx)

	return nil
}

// Commit commits the transaction
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	if err := u.tx.Commit(u.ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	u.tx = nil

	// The mirror is committed; event delivery failures are logged, not returned
	if u.transactionalPublisher != nil {
		if err := u.transactionalPublisher.Flush(u.ctx); err != nil {
			log.WithError(err).Error("Failed to flush events after commit")
		}
	}

	return nil
}

// Rollback rolls back the transaction
func (u *unitOfWork) Rollback() error {
	if u.transactionalPublisher != nil {
		u.transactionalPublisher.Discard()
	}

	if u.tx == nil {
		return nil
	}

	err := u.tx.Rollback(u.ctx)
	u.tx = nil
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// BetRepository returns the bet repository for this unit of work
func (u *unitOfWork) BetRepository() interfaces.BetRepository {
	if u.betRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.betRepo
}

// NotificationLogRepository returns the notification log repository for this unit of work
func (u *unitOfWork) NotificationLogRepository() interfaces.NotificationLogRepository {
	if u.notificationLogRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.notificationLogRepo
}

// SyncStateRepository returns the sync state repository for this unit of work
func (u *unitOfWork) SyncStateRepository() interfaces.SyncStateRepository {
	if u.syncStateRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.syncStateRepo
}

// EventBus returns the transactional event publisher
func (u *unitOfWork) EventBus() interfaces.EventPublisher {
	if u.transactionalPublisher == nil {
		panic("transactional publisher not configured")
	}
	return u.transactionalPublisher
}
