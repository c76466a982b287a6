package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jayjaytrn/order-management-system/internal/auth"
	"github.com/jayjaytrn/order-management-system/models"
)

// statusOf maps a domain error to its HTTP status and error code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrExpiredCredential):
		return http.StatusUnauthorized, "expired_credential"
	case errors.Is(err, models.ErrReplayedCredential):
		return http.StatusUnauthorized, "replayed_credential"
	case errors.Is(err, models.ErrRevokedCredential):
		return http.StatusUnauthorized, "revoked_credential"
	case errors.Is(err, models.ErrMalformedCredential):
		return http.StatusUnauthorized, "malformed_credential"
	case errors.Is(err, models.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, models.ErrRateLimitExceeded):
		return http.StatusTooManyRequests, "rate_limit_exceeded"
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, models.ErrUserExists):
		return http.StatusConflict, "user_exists"
	case errors.Is(err, models.ErrOrderNotFound):
		return http.StatusNotFound, "order_not_found"
	case errors.Is(err, models.ErrInvalidOrder):
		return http.StatusUnprocessableEntity, "invalid_order"
	case errors.Is(err, auth.ErrInvalidRegistration):
		return http.StatusBadRequest, "invalid_registration"
	case errors.Is(err, models.ErrChannelUnavailable):
		return http.StatusServiceUnavailable, "channel_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.Logger.Errorw("request failed", "error", err)
		message = "internal server error"
	}
	writeJSON(w, status, models.ErrorResponse{Error: message, Code: code})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: message, Code: "bad_request"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
