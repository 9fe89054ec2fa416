package infrastructure

import (
	"betmirror/application"
	"betmirror/database"
	"betmirror/domain/interfaces"
	"betmirror/events"
	"betmirror/repository"
)

// UnitOfWorkFactory implements application.UnitOfWorkFactory. Each unit of
// work gets its own transactional publisher that flushes into eventPublisher
// on commit.
type UnitOfWorkFactory struct {
	repoFactory interface {
		CreateWithPublisher(transactionalPublisher interfaces.TransactionalEventPublisher) application.UnitOfWork
	}
	eventPublisher interfaces.EventPublisher
}

var _ application.UnitOfWorkFactory = (*UnitOfWorkFactory)(nil)

// NewUnitOfWorkFactory creates a new UnitOfWorkFactory
func NewUnitOfWorkFactory(db *database.DB, eventPublisher interfaces.EventPublisher) *UnitOfWorkFactory {
	return &UnitOfWorkFactory{
		repoFactory:    repository.NewUnitOfWorkFactory(db),
		eventPublisher: eventPublisher,
	}
}

// RegisterLocalHandler registers a handler invoked in-process for flushed events
func (f *UnitOfWorkFactory) RegisterLocalHandler(eventType events.EventType, handler EventHandler) {
	if natsPublisher, ok := f.eventPublisher.(*NATSEventPublisher); ok {
		natsPublisher.RegisterLocalHandler(eventType, handler)
	}
}

// Create creates a new UnitOfWork with a transactional event publisher
func (f *UnitOfWorkFactory) Create() application.UnitOfWork {
	return f.repoFactory.CreateWithPublisher(NewNATSTransactionalPublisher(f.eventPublisher))
}
