package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jayjaytrn/order-management-system/internal/auth"
	"github.com/jayjaytrn/order-management-system/models"
	"go.uber.org/zap"
)

type ctxKey struct{}

// TokenValidator resolves an access token to its owner.
type TokenValidator interface {
	Validate(ctx context.Context, accessToken string) (string, error)
}

// OwnerFromContext returns the user id put there by Authenticate.
func OwnerFromContext(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(ctxKey{}).(string)
	return owner, ok && owner != ""
}

func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ctxKey{}, owner)
}

// Authenticate rejects requests without a valid bearer access token.
func Authenticate(tokens TokenValidator) Middleware {
	return func(h http.Handler, sugar *zap.SugaredLogger) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing_credential", "Authorization header is missing")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader || tokenString == "" {
				writeError(w, http.StatusUnauthorized, "malformed_credential", "invalid token format")
				return
			}

			owner, err := tokens.Validate(r.Context(), tokenString)
			if err != nil && !auth.IsCredentialError(err) {
				sugar.Errorw("failed to validate access token", "error", err)
				writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
				return
			}
			if err != nil {
				code := credentialCode(err)
				sugar.Infow("access token rejected", "code", code, "error", err)
				writeError(w, http.StatusUnauthorized, code, err.Error())
				return
			}

			h.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}

func credentialCode(err error) string {
	switch {
	case errors.Is(err, models.ErrExpiredCredential):
		return "expired_credential"
	case errors.Is(err, models.ErrRevokedCredential):
		return "revoked_credential"
	case errors.Is(err, models.ErrReplayedCredential):
		return "replayed_credential"
	default:
		return "malformed_credential"
	}
}
