package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"creator-paywall/internal/domain"
	"creator-paywall/internal/infra/logging"
)

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{
		"error": {Code: code, Message: message, RequestID: logging.TraceID(r.Context())},
	})
}

// retryAfterSeconds is advertised on every transient failure.
const retryAfterSeconds = "2"

// mapDomainError turns a usecase error into a status and a stable code.
// Anything marked retryable becomes 503 so callers know to try again.
func mapDomainError(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusBadRequest, "invalid_signature"
	case errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, domain.ErrContentNotFound):
		return http.StatusNotFound, "content_not_found"
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrSelfPurchase):
		return http.StatusForbidden, "self_purchase"
	case errors.Is(err, domain.ErrAlreadyPurchased):
		return http.StatusConflict, "already_purchased"
	case errors.Is(err, domain.ErrIntentMismatch):
		return http.StatusConflict, "intent_mismatch"
	case errors.Is(err, domain.ErrIdempotencyReused):
		return http.StatusConflict, "idempotency_key_reused"
	case errors.Is(err, domain.ErrPaymentNotSucceeded):
		return http.StatusPaymentRequired, "payment_not_succeeded"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, domain.ErrTransferRejected):
		return http.StatusBadGateway, "transfer_rejected"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case domain.IsRetryable(err), errors.Is(err, domain.ErrGatewayUnavailable), errors.Is(err, domain.ErrLockNotAcquired):
		return http.StatusServiceUnavailable, "temporarily_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := mapDomainError(err)
	msg := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", retryAfterSeconds)
		logging.With(r.Context(), s.log).Warn().Err(err).Msg("request failed, retryable")
		msg = "temporarily unavailable, retry later"
	case http.StatusInternalServerError, http.StatusBadGateway:
		logging.With(r.Context(), s.log).Error().Err(err).Msg("request failed")
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	writeError(w, r, status, code, msg)
}
