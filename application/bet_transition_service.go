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

// TransitionRequest asks for one action on an existing bet
type TransitionRequest struct {
	BetNumber int64
	Action    entities.Action
	Actor     entities.Identity
	Args      entities.ActionArgs

	// ExpectedStatus is the status the caller last saw. A stale value is
	// refused with a conflict before anything is submitted.
	ExpectedStatus *entities.BetStatus

	// TransactionHash is set when a client wallet already signed and sent the
	// transaction; the service then only confirms it. Empty means the
	// service signs with its own key.
	TransactionHash string
}

// CreateRequest asks for a new bet. With a TransactionHash the bet was
// created by a client wallet and is only registered.
type CreateRequest struct {
	Maker           entities.Identity
	Terms           *entities.Terms
	TransactionHash string
}

// TransitionResult is a committed change to the mirror
type TransitionResult struct {
	Bet        *entities.Bet
	Transition entities.Transition
	Receipt    *entities.Receipt

	// Replayed is set when the same transaction had already been mirrored
	Replayed bool
}

// BetTransitionService validates, submits and mirrors bet actions
type BetTransitionService struct {
	uowFactory UnitOfWorkFactory
	machine    *lifecycle.Machine
	executor   interfaces.ChainExecutor
	metrics    interfaces.MetricsRecorder
	now        interfaces.Clock
}

// NewBetTransitionService creates a BetTransitionService
func NewBetTransitionService(
	uowFactory UnitOfWorkFactory,
	machine *lifecycle.Machine,
	executor interfaces.ChainExecutor,
	metrics interfaces.MetricsRecorder,
	now interfaces.Clock,
) *BetTransitionService {
	if now == nil {
		now = time.Now
	}
	return &BetTransitionService{
		uowFactory: uowFactory,
		machine:    machine,
		executor:   executor,
		metrics:    metrics,
		now:        now,
	}
}

// Execute performs an action on an existing bet. Nothing is written to the
// mirror unless the chain confirmed the transaction.
func (s *BetTransitionService) Execute(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	bet, err := loadBet(ctx, s.uowFactory, req.BetNumber)
	if err != nil {
		return nil, err
	}
	if bet == nil {
		return nil, fmt.Errorf("bet %d: %w", req.BetNumber, entities.ErrBetNotFound)
	}

	if req.TransactionHash != "" && sameHash(bet.TransactionHash, req.TransactionHash) {
		log.WithFields(log.Fields{
			"betNumber": bet.BetNumber,
			"txHash":    req.TransactionHash,
		}).Debug("Transaction already mirrored")
		return &TransitionResult{Bet: bet, Replayed: true}, nil
	}

	if req.ExpectedStatus != nil && *req.ExpectedStatus != bet.Status {
		s.metrics.RecordMirrorConflict(req.Action)
		return nil, &entities.ConflictError{BetNumber: bet.BetNumber, Expected: *req.ExpectedStatus, Current: bet}
	}

	actor := req.Actor
	if req.TransactionHash == "" {
		if actor, err = s.signerActor(actor); err != nil {
			return nil, err
		}
	}

	now := s.now()
	target, err := s.machine.Validate(req.Action, bet, actor, now, req.Args)
	if err != nil {
		s.refused(req.Action, bet, err)
		return nil, err
	}

	sub := submissionFor(bet, req.Action, req.Args, target)
	receipt, source, err := s.confirm(ctx, sub, actor, req.TransactionHash)
	if err != nil {
		return nil, err
	}
	if req.Action == entities.ActionEdit {
		if receipt.Terms == nil {
			return nil, fmt.Errorf("%w: edit %s carries no terms", entities.ErrTransactionMismatch, receipt.TransactionHash)
		}
		sub.Args.Terms = receipt.Terms
	}
	if req.TransactionHash != "" {
		if actor, err = s.signedBy(bet, sub, actor, receipt, now); err != nil {
			return nil, err
		}
	}

	return s.commit(ctx, bet, sub, actor, receipt, source)
}

// signedBy rebinds a client-signed transition to the address that signed it.
// The contract judged that address alone, so deciding again from it must
// reach the same target. The caller's fid is kept only when the caller also
// named the signing address.
func (s *BetTransitionService) signedBy(bet *entities.Bet, sub entities.Submission, claimed entities.Identity, receipt *entities.Receipt, now time.Time) (entities.Identity, error) {
	signer := entities.Identity{Address: receipt.From}

	target, err := s.machine.Validate(sub.Action, bet, signer, now, sub.Args)
	if err != nil {
		return signer, fmt.Errorf("%w: signer %s of %s: %v", entities.ErrTransactionMismatch, receipt.From, receipt.TransactionHash, err)
	}
	if target != sub.Predicted {
		return signer, fmt.Errorf("%w: %s signed by %s moves bet %d to %s, the request implied %s",
			entities.ErrTransactionMismatch, sub.Action, receipt.From, bet.BetNumber, target, sub.Predicted)
	}

	if entities.SameAddress(claimed.Address, receipt.From) {
		signer.FID = claimed.FID
	}
	return signer, nil
}

// Create submits or registers a new bet and mirrors it
func (s *BetTransitionService) Create(ctx context.Context, req CreateRequest) (*TransitionResult, error) {
	maker := req.Maker
	sub := entities.Submission{
		Action:    entities.ActionCreate,
		Args:      entities.ActionArgs{Terms: req.Terms},
		Predicted: entities.BetStatusCreated,
	}

	if req.TransactionHash == "" {
		var err error
		if maker, err = s.signerActor(maker); err != nil {
			return nil, err
		}
		if err := s.machine.ValidateCreate(maker, req.Terms, s.now()); err != nil {
			s.refused(entities.ActionCreate, nil, err)
			return nil, err
		}
		sub.Token = req.Terms.BetTokenAddress
		sub.Amount = req.Terms.BetAmount
	}

	receipt, source, err := s.confirm(ctx, sub, maker, req.TransactionHash)
	if err != nil {
		return nil, err
	}
	if receipt.Bet == nil {
		return nil, fmt.Errorf("%w: receipt %s carries no created bet", entities.ErrTransactionMismatch, receipt.TransactionHash)
	}

	bet := receipt.Bet
	if bet.MakerFID == nil && entities.SameAddress(bet.MakerAddress, maker.Address) {
		bet.MakerFID = maker.FID
	}
	if entities.IsZeroAddress(maker.Address) {
		maker.Address = bet.MakerAddress
	}

	result, err := mirrorCreated(ctx, s.uowFactory, bet, source, s.now())
	if err != nil {
		return nil, err
	}
	result.Receipt = receipt
	result.Transition.Actor = maker
	if !result.Replayed {
		s.metrics.RecordTransitionCommitted(entities.ActionCreate, string(source))
	}
	return result, nil
}

// signerActor binds a server-signed request to the executor's key. The
// contract checks the sender, so acting for anyone else would revert.
func (s *BetTransitionService) signerActor(actor entities.Identity) (entities.Identity, error) {
	signer := s.executor.SignerAddress()
	if signer == "" {
		return actor, fmt.Errorf("%w: no service signer configured, submit the transaction from a wallet", entities.ErrSignerRejected)
	}
	if entities.IsZeroAddress(actor.Address) {
		actor.Address = signer
		return actor, nil
	}
	if !entities.SameAddress(actor.Address, signer) {
		return actor, fmt.Errorf("%w: service signer %s cannot act for %s", entities.ErrSignerRejected, signer, actor.Address)
	}
	return actor, nil
}

func (s *BetTransitionService) refused(action entities.Action, bet *entities.Bet, err error) {
	if !errors.Is(err, entities.ErrPolicyViolation) {
		return
	}
	s.metrics.RecordPolicyViolation(action)

	fields := log.Fields{"action": action, "error": err}
	if bet != nil {
		fields["betNumber"] = bet.BetNumber
	}
	if errors.Is(err, entities.ErrUnknownStatus) {
		log.WithFields(fields).Error("Bet has an unrecognised status")
		return
	}
	log.WithFields(fields).Info("Action refused")
}

// confirm either submits the action with the service key or waits for a
// client-signed transaction, and checks who signed it
func (s *BetTransitionService) confirm(ctx context.Context, sub entities.Submission, actor entities.Identity, txHash string) (*entities.Receipt, events.Source, error) {
	start := time.Now()

	var (
		receipt *entities.Receipt
		source  events.Source
		err     error
	)
	if txHash != "" {
		source = events.SourceClient
		receipt, err = s.executor.AwaitReceipt(ctx, txHash, sub)
		if err == nil && !entities.IsZeroAddress(actor.Address) && !entities.SameAddress(receipt.From, actor.Address) {
			err = fmt.Errorf("%w: signed by %s, not %s", entities.ErrTransactionMismatch, receipt.From, actor.Address)
		}
	} else {
		source = events.SourceService
		receipt, err = s.executor.Submit(ctx, sub)
	}

	s.metrics.RecordChainSubmission(sub.Action, entities.SubmissionOutcome(err), time.Since(start))
	if err != nil {
		log.WithFields(log.Fields{
			"action":    sub.Action,
			"betNumber": sub.BetNumber,
			"txHash":    txHash,
			"outcome":   entities.SubmissionOutcome(err),
			"error":     err,
		}).Warn("Chain submission did not confirm")
		return nil, source, fmt.Errorf("failed to %s bet %d: %w", sub.Action, sub.BetNumber, err)
	}
	return receipt, source, nil
}

// commit writes the confirmed transition with the snapshot status as the
// expected prior status
func (s *BetTransitionService) commit(ctx context.Context, prior *entities.Bet, sub entities.Submission, actor entities.Identity, receipt *entities.Receipt, source events.Source) (*TransitionResult, error) {
	if receipt.StatusFromEvent && receipt.Status != sub.Predicted {
		log.WithFields(log.Fields{
			"betNumber": prior.BetNumber,
			"action":    sub.Action,
			"predicted": sub.Predicted,
			"onChain":   receipt.Status,
		}).Warn("Chain status differs from predicted target, using chain status")
	}

	update := transitionUpdate(prior, sub.Action, sub.Args, actor, receipt)

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	committed, err := uow.BetRepository().CommitTransition(ctx, prior.BetNumber, interfaces.PriorOf(prior), update)
	if errors.Is(err, entities.ErrMirrorConflict) {
		uow.Rollback()
		return s.resolveConflict(ctx, prior, sub.Action, receipt)
	}
	if err != nil {
		return nil, err
	}

	transition := entities.Transition{
		Action:          sub.Action,
		Actor:           actor,
		From:            prior.Status,
		To:              committed.Status,
		TransactionHash: receipt.TransactionHash,
	}
	if err := uow.EventBus().Publish(transitionedEvent(committed, transition, source, s.now())); err != nil {
		return nil, fmt.Errorf("failed to publish transition event: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.metrics.RecordTransitionCommitted(sub.Action, string(source))
	log.WithFields(log.Fields{
		"betNumber": committed.BetNumber,
		"action":    sub.Action,
		"from":      prior.Status,
		"to":        committed.Status,
		"txHash":    receipt.TransactionHash,
		"source":    source,
	}).Info("Bet transition committed")

	return &TransitionResult{Bet: committed, Transition: transition, Receipt: receipt}, nil
}

// resolveConflict re-reads after a failed conditional write. When another
// writer already mirrored this very transaction the result is a replay,
// otherwise the caller gets the fresh snapshot to re-decide on.
func (s *BetTransitionService) resolveConflict(ctx context.Context, prior *entities.Bet, action entities.Action, receipt *entities.Receipt) (*TransitionResult, error) {
	fresh, err := loadBet(ctx, s.uowFactory, prior.BetNumber)
	if err != nil {
		return nil, err
	}
	if fresh != nil && sameHash(fresh.TransactionHash, receipt.TransactionHash) && fresh.Status == receipt.Status {
		return &TransitionResult{Bet: fresh, Receipt: receipt, Replayed: true}, nil
	}

	s.metrics.RecordMirrorConflict(action)
	log.WithFields(log.Fields{
		"betNumber": prior.BetNumber,
		"action":    action,
		"expected":  prior.Status,
		"txHash":    receipt.TransactionHash,
	}).Warn("Mirror moved while the transaction confirmed")

	return nil, &entities.ConflictError{BetNumber: prior.BetNumber, Expected: prior.Status, Current: fresh}
}

// submissionFor builds the chain submission. Deposits use the bet's token and
// amount, or the new terms for an edit.
func submissionFor(bet *entities.Bet, action entities.Action, args entities.ActionArgs, target entities.BetStatus) entities.Submission {
	sub := entities.Submission{
		BetNumber: bet.BetNumber,
		Action:    action,
		Args:      args,
		Token:     bet.BetTokenAddress,
		Amount:    bet.BetAmount,
		Predicted: target,
	}
	if action == entities.ActionEdit && args.Terms != nil {
		sub.Token = args.Terms.BetTokenAddress
		sub.Amount = args.Terms.BetAmount
	}
	return sub
}

// transitionUpdate derives the mirror write for a confirmed action. The chain
// status is authoritative over the local prediction.
func transitionUpdate(prior *entities.Bet, action entities.Action, args entities.ActionArgs, actor entities.Identity, receipt *entities.Receipt) interfaces.BetUpdate {
	update := interfaces.BetUpdate{
		Status:          receipt.Status,
		TransactionHash: receipt.TransactionHash,
	}
	switch action {
	case entities.ActionEdit:
		// args.Terms holds the confirmed call data by now
		update.Terms = args.Terms
	case entities.ActionArbiterAccept:
		if !prior.HasAssignedArbiter() {
			claimant := actor.Address
			if entities.IsZeroAddress(claimant) {
				claimant = receipt.From
			}
			update.ArbiterAddress = []string{claimant}
			update.ArbiterFID = actor.FID
		}
	}
	return update
}
