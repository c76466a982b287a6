package models

import "errors"

var (
	ErrExpiredCredential   = errors.New("credential expired")
	ErrMalformedCredential = errors.New("credential malformed")
	ErrReplayedCredential  = errors.New("refresh token replayed")
	ErrRevokedCredential   = errors.New("credential revoked")
	ErrInvalidCredentials  = errors.New("invalid email or password")

	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	ErrChannelUnavailable = errors.New("job channel unavailable")
	ErrNoJob              = errors.New("no job available")
	ErrUnknownJobType     = errors.New("unknown job type")
	ErrJobNotFound        = errors.New("job not found")

	ErrInvalidTransition    = errors.New("invalid order status transition")
	ErrProcessingFailed     = errors.New("order processing failed")
	ErrConcurrentUpdateLost = errors.New("concurrent update lost")

	ErrOrderNotFound = errors.New("order not found")
	ErrInvalidOrder  = errors.New("invalid order")
	ErrUserNotFound  = errors.New("user not found")
	ErrUserExists    = errors.New("user already exists")
)

// ErrorResponse is the JSON body of every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
