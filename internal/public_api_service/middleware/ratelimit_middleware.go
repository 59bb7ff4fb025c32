package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/famline/notifications/internal/platform/ratelimit"
)

// RateLimitMiddleware applies a named sliding-window policy keyed by
// the authenticated caller (falling back to the remote address for
// unauthenticated routes). Rejections carry standard rate limit
// headers.
func RateLimitMiddleware(limiter *ratelimit.Limiter, policy string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier := r.RemoteAddr
			if authUser, ok := UserFromContext(r.Context()); ok {
				identifier = authUser.ID
			}

			res := limiter.AllowNamed(r.Context(), policy, identifier)
			if res.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
			}
			if !res.Allowed {
				logger.WarnContext(r.Context(), "Request rate limited", "policy", policy, "identifier", identifier)
				http.Error(w, "Rate limit exceeded, try again later", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
