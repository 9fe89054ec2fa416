package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"betmirror/domain/entities"
	"betmirror/domain/interfaces"
	"betmirror/domain/lifecycle"
	"betmirror/events"

	log "github.com/sirupsen/logrus"
)

// maxConflictRetries bounds how often an observed change is re-applied after
// losing a conditional write
const maxConflictRetries = 3

// ObservedStatus is a status change seen in the contract's logs
type ObservedStatus struct {
	BetNumber       int64
	Status          entities.BetStatus
	TransactionHash string
	BlockNumber     uint64
}

// Reconciler converges the mirror on chain state for changes the service
// did not submit or confirm itself
type Reconciler struct {
	uowFactory UnitOfWorkFactory
	executor   interfaces.ChainExecutor
	metrics    interfaces.MetricsRecorder
	now        interfaces.Clock
}

// NewReconciler creates a Reconciler
func NewReconciler(uowFactory UnitOfWorkFactory, executor interfaces.ChainExecutor, metrics interfaces.MetricsRecorder, now interfaces.Clock) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{uowFactory: uowFactory, executor: executor, metrics: metrics, now: now}
}

// ApplyCreated mirrors a bet decoded from a BetCreated log
func (r *Reconciler) ApplyCreated(ctx context.Context, bet *entities.Bet) error {
	result, err := mirrorCreated(ctx, r.uowFactory, bet, events.SourceChain, r.now())
	if err != nil {
		return err
	}
	if !result.Replayed {
		r.metrics.RecordTransitionCommitted(entities.ActionCreate, string(events.SourceChain))
	}
	return nil
}

// ApplyStatus mirrors a BetStatusChanged log. Logs older than the mirror are
// ignored, so replaying a block range is harmless. A log for a change that a
// reconcile already applied is still published once, so the parties hear of
// it.
func (r *Reconciler) ApplyStatus(ctx context.Context, obs ObservedStatus) error {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err := r.applyStatus(ctx, obs)
		if !errors.Is(err, entities.ErrMirrorConflict) {
			return err
		}
		log.WithFields(log.Fields{
			"betNumber": obs.BetNumber,
			"txHash":    obs.TransactionHash,
			"attempt":   attempt + 1,
		}).Debug("Mirror moved while applying chain status, retrying")
	}
	return fmt.Errorf("bet %d: gave up applying %s: %w", obs.BetNumber, obs.TransactionHash, entities.ErrMirrorConflict)
}

func (r *Reconciler) applyStatus(ctx context.Context, obs ObservedStatus) error {
	bet, err := loadBet(ctx, r.uowFactory, obs.BetNumber)
	if err != nil {
		return err
	}
	if bet == nil {
		_, err := r.Reconcile(ctx, obs.BetNumber)
		return err
	}
	if sameHash(bet.TransactionHash, obs.TransactionHash) {
		return nil
	}

	call, actor := r.inspect(ctx, obs)
	if bet.ReconciledFrom != nil {
		from := *bet.ReconciledFrom
		if action := actionFor(call, from, obs.Status); action != "" {
			return r.catchUp(ctx, bet, from, action, actor, obs)
		}
	}

	action := actionFor(call, bet.Status, obs.Status)
	if action == "" {
		log.WithFields(log.Fields{
			"betNumber": obs.BetNumber,
			"mirror":    bet.Status,
			"observed":  obs.Status,
			"action":    call,
			"txHash":    obs.TransactionHash,
		}).Debug("Ignoring chain status that does not follow the mirror")
		return nil
	}

	update := interfaces.BetUpdate{Status: obs.Status, TransactionHash: obs.TransactionHash}
	switch action {
	case entities.ActionEdit:
		onChain, err := r.executor.ReadBet(ctx, obs.BetNumber)
		if err != nil {
			return fmt.Errorf("failed to read edited bet %d: %w", obs.BetNumber, err)
		}
		if onChain != nil {
			terms := onChain.Terms()
			update.Terms = &terms
		}
	case entities.ActionArbiterAccept:
		if !bet.HasAssignedArbiter() && !entities.IsZeroAddress(actor.Address) {
			update.ArbiterAddress = []string{actor.Address}
		}
	}

	return r.commit(ctx, bet, entities.Transition{
		Action:          action,
		Actor:           actor,
		From:            bet.Status,
		To:              obs.Status,
		TransactionHash: obs.TransactionHash,
	}, update)
}

// catchUp publishes a change a reconcile already applied. The mirrored
// status and terms stay as the reconcile wrote them. A reconcile that skipped
// several steps is walked one log at a time, and the last step records the
// log's transaction hash and clears the marker.
func (r *Reconciler) catchUp(ctx context.Context, bet *entities.Bet, from entities.BetStatus, action entities.Action, actor entities.Identity, obs ObservedStatus) error {
	update := interfaces.BetUpdate{Status: bet.Status, TransactionHash: bet.TransactionHash}
	if obs.Status == bet.Status {
		update.TransactionHash = obs.TransactionHash
	} else {
		next := obs.Status
		update.ReconciledFrom = &next
	}

	return r.commit(ctx, bet, entities.Transition{
		Action:          action,
		Actor:           actor,
		From:            from,
		To:              obs.Status,
		TransactionHash: obs.TransactionHash,
	}, update)
}

// inspect recovers the action and signer from the transaction. The action is
// empty when the call cannot be decoded.
func (r *Reconciler) inspect(ctx context.Context, obs ObservedStatus) (entities.Action, entities.Identity) {
	call, err := r.executor.InspectTransaction(ctx, obs.TransactionHash)
	if err != nil {
		log.WithFields(log.Fields{
			"betNumber": obs.BetNumber,
			"txHash":    obs.TransactionHash,
			"error":     err,
		}).Debug("Could not decode transaction, inferring action from statuses")
		return "", entities.Identity{}
	}
	if call.BetNumber != obs.BetNumber && call.Action != entities.ActionCreate {
		return "", entities.Identity{}
	}
	return call.Action, entities.Identity{Address: call.From}
}

// actionFor returns the action that moves from to target: the decoded call
// when it fits the table, else the first table row that fits when nothing
// was decoded
func actionFor(call entities.Action, from, target entities.BetStatus) entities.Action {
	if call != "" {
		if lifecycle.Follows(from, call, target) {
			return call
		}
		return ""
	}
	if candidates := lifecycle.ActionsBetween(from, target); len(candidates) > 0 {
		return candidates[0]
	}
	return ""
}

func (r *Reconciler) commit(ctx context.Context, prior *entities.Bet, transition entities.Transition, update interfaces.BetUpdate) error {
	uow := r.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	committed, err := uow.BetRepository().CommitTransition(ctx, prior.BetNumber, interfaces.PriorOf(prior), update)
	if err != nil {
		if errors.Is(err, entities.ErrMirrorConflict) {
			r.metrics.RecordMirrorConflict(transition.Action)
		}
		return err
	}

	if err := uow.EventBus().Publish(transitionedEvent(committed, transition, events.SourceChain, r.now())); err != nil {
		return fmt.Errorf("failed to publish transition event: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.metrics.RecordTransitionCommitted(transition.Action, string(events.SourceChain))
	log.WithFields(log.Fields{
		"betNumber": committed.BetNumber,
		"action":    transition.Action,
		"from":      transition.From,
		"to":        transition.To,
		"txHash":    transition.TransactionHash,
	}).Info("Chain transition mirrored")
	return nil
}

// Reconcile reads the bet from the contract and moves the mirror to it. It
// settles indeterminate outcomes after a confirmation timeout. The
// transaction behind a reconciled change is unknown, so no transition event
// is published here; the bet is marked and ApplyStatus publishes it when the
// chain log arrives.
func (r *Reconciler) Reconcile(ctx context.Context, betNumber int64) (*entities.Bet, error) {
	onChain, err := r.executor.ReadBet(ctx, betNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to read bet %d from chain: %w", betNumber, err)
	}
	if onChain == nil {
		return nil, fmt.Errorf("bet %d on chain: %w", betNumber, entities.ErrBetNotFound)
	}

	mirrored, err := loadBet(ctx, r.uowFactory, betNumber)
	if err != nil {
		return nil, err
	}
	if mirrored == nil {
		result, err := mirrorCreated(ctx, r.uowFactory, onChain, events.SourceChain, r.now())
		if err != nil {
			return nil, err
		}
		return result.Bet, nil
	}
	if mirrored.Status == onChain.Status {
		return mirrored, nil
	}

	reconciledFrom := mirrored.Status
	if mirrored.ReconciledFrom != nil {
		reconciledFrom = *mirrored.ReconciledFrom
	}
	terms := onChain.Terms()
	update := interfaces.BetUpdate{
		Status:          onChain.Status,
		TransactionHash: mirrored.TransactionHash,
		Terms:           &terms,
		ArbiterFID:      mirrored.ArbiterFID,
		ReconciledFrom:  &reconciledFrom,
	}

	uow := r.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	repo := uow.BetRepository()
	committed, err := repo.CommitTransition(ctx, betNumber, interfaces.PriorOf(mirrored), update)
	if err != nil {
		return nil, err
	}
	if mirrored.TakerFID != nil && sameAddresses(mirrored.TakerAddress, onChain.TakerAddress) {
		if err := repo.AttachFIDs(ctx, betNumber, nil, mirrored.TakerFID, nil); err != nil {
			return nil, err
		}
		committed.TakerFID = mirrored.TakerFID
	}
	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"betNumber": betNumber,
		"from":      mirrored.Status,
		"to":        committed.Status,
	}).Info("Bet reconciled with chain")
	return committed, nil
}
