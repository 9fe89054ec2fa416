package httpapi

import (
	"errors"
	"net/http"

	"betmirror/domain/entities"

	log "github.com/sirupsen/logrus"
)

// respondDomainError maps a service error to a status code. A conflict
// carries the fresh bet so the client can re-render without another read.
func respondDomainError(w http.ResponseWriter, err error) {
	var conflict *entities.ConflictError
	if errors.As(err, &conflict) {
		body := map[string]interface{}{
			"error":   "conflict",
			"message": err.Error(),
		}
		if conflict.Current != nil {
			body["bet"] = betResponse(conflict.Current)
		}
		respondJSON(w, http.StatusConflict, body)
		return
	}

	switch {
	case errors.Is(err, entities.ErrBetNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, entities.ErrUnknownStatus):
		respondError(w, http.StatusConflict, "unknown_status", err.Error())
	case errors.Is(err, entities.ErrPolicyViolation):
		respondError(w, http.StatusUnprocessableEntity, "policy_violation", err.Error())
	case errors.Is(err, entities.ErrMirrorConflict):
		respondError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, entities.ErrConfirmationTimeout):
		respondJSON(w, http.StatusAccepted, map[string]interface{}{
			"status":  "indeterminate",
			"message": err.Error(),
		})
	case errors.Is(err, entities.ErrChainReverted):
		respondError(w, http.StatusBadGateway, "reverted", err.Error())
	case errors.Is(err, entities.ErrSignerRejected):
		respondError(w, http.StatusForbidden, "signer_rejected", err.Error())
	case errors.Is(err, entities.ErrTransactionMismatch):
		respondError(w, http.StatusUnprocessableEntity, "transaction_mismatch", err.Error())
	case errors.Is(err, entities.ErrSubmissionAbandoned):
		respondError(w, http.StatusServiceUnavailable, "abandoned", err.Error())
	default:
		log.WithError(err).Error("Unhandled API error")
		respondError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
