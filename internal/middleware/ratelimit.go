package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/jayjaytrn/order-management-system/internal/clock"
	"github.com/jayjaytrn/order-management-system/internal/ratelimit"
	"github.com/jayjaytrn/order-management-system/models"
	"go.uber.org/zap"
)

// RateLimit admits a request against the ceiling of endpoint. Authenticated
// callers are counted by user id, anonymous ones by client address, so the
// gate must run after Authenticate on protected routes.
func RateLimit(limiter *ratelimit.Limiter, clk clock.Clock, endpoint string) Middleware {
	return func(h http.Handler, sugar *zap.SugaredLogger) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := clk.Now()
			caller := callerKey(r)
			decision := limiter.Admit(caller, endpoint, now)

			if decision.Limit >= 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			}
			if !decision.Allowed {
				retryAfter := int(math.Ceil(decision.ResetAt.Sub(now).Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				sugar.Infow("rate limit exceeded", "endpoint", endpoint, "caller", caller)
				writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", models.ErrRateLimitExceeded.Error())
				return
			}

			h.ServeHTTP(w, r)
		})
	}
}

func callerKey(r *http.Request) string {
	if owner, ok := OwnerFromContext(r.Context()); ok {
		return "user:" + owner
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
