package entities

import (
	"errors"
	"fmt"
)

var (
	// ErrPolicyViolation marks an action that is not legal for the bet's
	// current status, the actor's role or the current time
	ErrPolicyViolation = errors.New("policy violation")

	// ErrUnknownStatus marks a stored status outside the defined set
	ErrUnknownStatus = errors.New("unknown bet status")

	ErrBetNotFound = errors.New("bet not found")

	// ErrMirrorConflict is returned when a conditional write finds the stored
	// status no longer equals the expected prior status
	ErrMirrorConflict = errors.New("mirror conflict: bet status changed concurrently")

	ErrChainReverted  = errors.New("transaction reverted")
	ErrSignerRejected = errors.New("signer rejected transaction")

	// ErrConfirmationTimeout leaves the outcome indeterminate; callers must
	// reconcile against chain state before retrying
	ErrConfirmationTimeout = errors.New("confirmation timeout: outcome indeterminate")

	// ErrSubmissionAbandoned is returned when the caller cancels before a receipt arrives
	ErrSubmissionAbandoned = errors.New("submission abandoned before confirmation")

	ErrTransactionMismatch = errors.New("transaction does not match requested action")
)

// SubmissionOutcome names the result of a chain submission for metrics and logs
func SubmissionOutcome(err error) string {
	switch {
	case err == nil:
		return "confirmed"
	case errors.Is(err, ErrChainReverted):
		return "reverted"
	case errors.Is(err, ErrSignerRejected):
		return "signer_rejected"
	case errors.Is(err, ErrConfirmationTimeout):
		return "timeout"
	case errors.Is(err, ErrSubmissionAbandoned):
		return "abandoned"
	case errors.Is(err, ErrTransactionMismatch):
		return "mismatch"
	default:
		return "failed"
	}
}

// PolicyError describes why an action was refused
type PolicyError struct {
	Action Action
	Status BetStatus
	Reason string

	// Cause is an optional underlying sentinel such as ErrUnknownStatus
	Cause error
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("cannot %s bet in status %s: %s", e.Action, e.Status, e.Reason)
}

func (e *PolicyError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrPolicyViolation, e.Cause}
	}
	return []error{ErrPolicyViolation}
}

// NewPolicyError builds a PolicyError
func NewPolicyError(action Action, status BetStatus, reason string) *PolicyError {
	return &PolicyError{Action: action, Status: status, Reason: reason}
}

// ConflictError carries the fresh snapshot observed after a mirror conflict
type ConflictError struct {
	BetNumber int64
	Expected  BetStatus
	Current   *Bet
}

func (e *ConflictError) Error() string {
	if e.Current == nil {
		return fmt.Sprintf("bet %d: expected status %s but bet is gone", e.BetNumber, e.Expected)
	}
	return fmt.Sprintf("bet %d: expected status %s but found %s", e.BetNumber, e.Expected, e.Current.Status)
}

func (e *ConflictError) Unwrap() error {
	return ErrMirrorConflict
}
