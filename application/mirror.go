package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"betmirror/domain/entities"
	"betmirror/events"

	log "github.com/sirupsen/logrus"
)

// loadBet reads the latest committed snapshot in its own short transaction
func loadBet(ctx context.Context, factory UnitOfWorkFactory, betNumber int64) (*entities.Bet, error) {
	uow := factory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := uow.BetRepository().GetByNumber(ctx, betNumber)
	if err != nil {
		return nil, err
	}
	return bet, nil
}

// mirrorCreated inserts a bet read from a BetCreated event. A bet that is
// already mirrored is returned unchanged and no event is published.
func mirrorCreated(ctx context.Context, factory UnitOfWorkFactory, bet *entities.Bet, source events.Source, now time.Time) (*TransitionResult, error) {
	uow := factory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	repo := uow.BetRepository()
	created, err := repo.Create(ctx, bet)
	if err != nil {
		return nil, err
	}

	transition := entities.Transition{
		Action:          entities.ActionCreate,
		Actor:           entities.Identity{Address: bet.MakerAddress, FID: bet.MakerFID},
		From:            entities.BetStatusCreated,
		To:              bet.Status,
		TransactionHash: bet.TransactionHash,
	}

	if !created {
		existing, err := repo.GetByNumber(ctx, bet.BetNumber)
		if err != nil {
			return nil, err
		}
		return &TransitionResult{Bet: existing, Transition: transition, Replayed: true}, nil
	}

	if err := uow.EventBus().Publish(events.BetCreatedEvent{
		BetNumber:       bet.BetNumber,
		TransactionHash: bet.TransactionHash,
		Bet:             *bet,
		Source:          source,
		OccurredAt:      now,
	}); err != nil {
		return nil, fmt.Errorf("failed to publish bet created event: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"betNumber": bet.BetNumber,
		"maker":     bet.MakerAddress,
		"txHash":    bet.TransactionHash,
		"source":    source,
	}).Info("Bet mirrored")

	return &TransitionResult{Bet: bet, Transition: transition}, nil
}

func transitionedEvent(bet *entities.Bet, tr entities.Transition, source events.Source, now time.Time) events.BetTransitionedEvent {
	return events.BetTransitionedEvent{
		BetNumber:       bet.BetNumber,
		Action:          tr.Action,
		Actor:           tr.Actor,
		FromStatus:      tr.From,
		ToStatus:        tr.To,
		TransactionHash: tr.TransactionHash,
		Source:          source,
		Bet:             *bet,
		OccurredAt:      now,
	}
}

func sameHash(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}

// sameAddresses compares two address sets ignoring order and case
func sameAddresses(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, addr := range a {
		if !entities.ContainsAddress(b, addr) {
			return false
		}
	}
	return true
}
