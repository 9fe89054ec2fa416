package services

import (
	"context"
	"time"

	"betmirror/domain/entities"
	"betmirror/domain/interfaces"
	"betmirror/domain/lifecycle"

	log "github.com/sirupsen/logrus"
)

// Metric outcomes reported by the dispatcher
const (
	notificationSent       = "sent"
	notificationFailed     = "failed"
	notificationDuplicate  = "duplicate"
	notificationUnresolved = "unresolved"
)

// notificationDispatcher sends each counterparty at most one message per
// committed transition
type notificationDispatcher struct {
	logRepo  interfaces.NotificationLogRepository
	sender   interfaces.NotificationSender
	identity interfaces.IdentityProvider
	metrics  interfaces.MetricsRecorder
	machine  *lifecycle.Machine
	now      interfaces.Clock
}

// NewNotificationDispatcher creates a dispatcher. identity and metrics may be nil.
func NewNotificationDispatcher(
	logRepo interfaces.NotificationLogRepository,
	sender interfaces.NotificationSender,
	identity interfaces.IdentityProvider,
	metrics interfaces.MetricsRecorder,
	machine *lifecycle.Machine,
	now interfaces.Clock,
) interfaces.NotificationDispatcher {
	if now == nil {
		now = time.Now
	}
	return &notificationDispatcher{
		logRepo:  logRepo,
		sender:   sender,
		identity: identity,
		metrics:  metrics,
		machine:  machine,
		now:      now,
	}
}

// Dispatch resolves the recipients of the transition and sends each one a
// notification. Every failure is logged and swallowed.
func (d *notificationDispatcher) Dispatch(ctx context.Context, bet *entities.Bet, tr entities.Transition) error {
	if bet == nil {
		return nil
	}

	notificationType, recipients := PlanNotifications(bet, tr)
	if notificationType == "" {
		return nil
	}

	logger := log.WithFields(log.Fields{
		"bet_number":        bet.BetNumber,
		"action":            tr.Action,
		"notification_type": notificationType,
		"transaction_hash":  tr.TransactionHash,
	})

	fids := d.resolveRecipients(ctx, recipients, tr.Actor, notificationType, logger)
	if len(fids) == 0 {
		logger.Debug("No resolvable notification recipients")
		return nil
	}

	payload := d.payload(bet, tr)
	for _, fid := range fids {
		d.deliver(ctx, bet, tr, notificationType, fid, payload, logger.WithField("recipient_fid", fid))
	}
	return nil
}

func (d *notificationDispatcher) deliver(
	ctx context.Context,
	bet *entities.Bet,
	tr entities.Transition,
	notificationType entities.NotificationType,
	fid int64,
	payload map[string]any,
	logger *log.Entry,
) {
	entry := &entities.NotificationLogEntry{
		BetNumber:       bet.BetNumber,
		TransactionHash: tr.TransactionHash,
		RecipientFID:    fid,
		Type:            notificationType,
	}

	reserved, err := d.logRepo.Reserve(ctx, entry)
	if err != nil {
		logger.WithError(err).Warn("Failed to reserve notification")
		d.record(notificationType, notificationFailed)
		return
	}
	if !reserved {
		logger.Debug("Notification already sent for this transaction")
		d.record(notificationType, notificationDuplicate)
		return
	}

	err = d.sender.Send(ctx, entities.Notification{
		RecipientFID: fid,
		Type:         notificationType,
		BetNumber:    bet.BetNumber,
		Payload:      payload,
		CreatedAt:    d.now().UTC(),
	})
	if err != nil {
		logger.WithError(err).Warn("Failed to send notification")
		if markErr := d.logRepo.MarkFailed(ctx, entry.ID, err.Error()); markErr != nil {
			logger.WithError(markErr).Error("Failed to record notification failure")
		}
		d.record(notificationType, notificationFailed)
		return
	}

	if err := d.logRepo.MarkDelivered(ctx, entry.ID); err != nil {
		logger.WithError(err).Error("Failed to mark notification delivered")
	}
	d.record(notificationType, notificationSent)
	logger.Info("Notification sent")
}

// resolveRecipients maps recipients to social ids, dropping the actor and
// collapsing several addresses of the same person into one id
func (d *notificationDispatcher) resolveRecipients(
	ctx context.Context,
	recipients []entities.Identity,
	actor entities.Identity,
	notificationType entities.NotificationType,
	logger *log.Entry,
) []int64 {
	seen := make(map[int64]bool)
	var fids []int64

	for _, r := range recipients {
		if entities.SameAddress(r.Address, actor.Address) {
			continue
		}

		fid := r.FID
		if fid == nil && d.identity != nil && !entities.IsZeroAddress(r.Address) {
			profile, err := d.identity.ProfileByAddress(ctx, r.Address)
			if err != nil {
				logger.WithError(err).WithField("address", r.Address).Warn("Failed to resolve recipient")
			} else if profile != nil {
				fid = &profile.FID
			}
		}
		if fid == nil {
			d.record(notificationType, notificationUnresolved)
			continue
		}
		if actor.FID != nil && *actor.FID == *fid {
			continue
		}
		if seen[*fid] {
			continue
		}
		seen[*fid] = true
		fids = append(fids, *fid)
	}
	return fids
}

func (d *notificationDispatcher) payload(bet *entities.Bet, tr entities.Transition) map[string]any {
	amount := "0"
	if bet.BetAmount != nil {
		amount = bet.BetAmount.String()
	}

	payload := map[string]any{
		"bet_number":        bet.BetNumber,
		"action":            string(tr.Action),
		"status":            bet.Status.String(),
		"status_code":       int(bet.Status),
		"previous_status":   tr.From.String(),
		"maker_address":     bet.MakerAddress,
		"taker_address":     bet.TakerAddress,
		"arbiter_address":   bet.ArbiterAddress,
		"bet_token_address": bet.BetTokenAddress,
		"bet_amount":        amount,
		"bet_agreement":     bet.BetAgreement,
		"end_time":          bet.EndTime,
		"can_settle_early":  bet.CanSettleEarly,
		"arbiter_fee":       bet.ArbiterFee.String(),
		"transaction_hash":  tr.TransactionHash,
	}
	if d.machine != nil {
		description := d.machine.Describe(bet, entities.Identity{}, d.now())
		payload["label"] = description.Label
		payload["message"] = description.Message
	}
	return payload
}

func (d *notificationDispatcher) record(notificationType entities.NotificationType, outcome string) {
	if d.metrics != nil {
		d.metrics.RecordNotification(notificationType, outcome)
	}
}
