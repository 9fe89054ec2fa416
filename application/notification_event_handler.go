package application

import (
	"context"

	"betmirror/domain/entities"
	"betmirror/domain/interfaces"
	"betmirror/events"

	log "github.com/sirupsen/logrus"
)

// NotificationEventHandler turns committed mirror events into counterparty
// notifications
type NotificationEventHandler struct {
	dispatcher interfaces.NotificationDispatcher
}

// NewNotificationEventHandler creates a NotificationEventHandler
func NewNotificationEventHandler(dispatcher interfaces.NotificationDispatcher) *NotificationEventHandler {
	return &NotificationEventHandler{dispatcher: dispatcher}
}

// HandleBetCreated notifies the takers of a new offer
func (h *NotificationEventHandler) HandleBetCreated(ctx context.Context, event events.Event) error {
	e, err := AssertEventType[events.BetCreatedEvent](event, "BetCreatedEvent")
	if err != nil {
		return err
	}

	bet := e.Bet
	transition := entities.Transition{
		Action:          entities.ActionCreate,
		Actor:           entities.Identity{Address: bet.MakerAddress, FID: bet.MakerFID},
		From:            entities.BetStatusCreated,
		To:              bet.Status,
		TransactionHash: e.TransactionHash,
	}
	return h.dispatch(ctx, &bet, transition)
}

// HandleBetTransitioned notifies the parties affected by a transition
func (h *NotificationEventHandler) HandleBetTransitioned(ctx context.Context, event events.Event) error {
	e, err := AssertEventType[events.BetTransitionedEvent](event, "BetTransitionedEvent")
	if err != nil {
		return err
	}

	bet := e.Bet
	transition := entities.Transition{
		Action:          e.Action,
		Actor:           e.Actor,
		From:            e.FromStatus,
		To:              e.ToStatus,
		TransactionHash: e.TransactionHash,
	}
	return h.dispatch(ctx, &bet, transition)
}

// dispatch never fails the event; notification problems must not cause the
// committed change to be redelivered forever
func (h *NotificationEventHandler) dispatch(ctx context.Context, bet *entities.Bet, transition entities.Transition) error {
	if err := h.dispatcher.Dispatch(ctx, bet, transition); err != nil {
		log.WithFields(log.Fields{
			"betNumber": bet.BetNumber,
			"action":    transition.Action,
			"txHash":    transition.TransactionHash,
			"error":     err,
		}).Error("Failed to dispatch notifications")
	}
	return nil
}
