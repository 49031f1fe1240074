package ratelimit

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"github.com/alecgard/taskhub/internal/auth"
)

// Middleware enforces the per-user limit. It expects an authenticated user in
// the request context (set by auth.Middleware) and passes anonymous requests
// through untouched.
//
// Rate-limit headers are always set on the response:
//
//	X-RateLimit-Limit     - maximum requests allowed in the window
//	X-RateLimit-Remaining - tokens remaining in the current window
//	X-RateLimit-Reset     - Unix timestamp when the bucket is fully replenished
//
// When the limit is exceeded the middleware responds with HTTP 429, a
// Retry-After header and a JSON error body.
func Middleware(limiter *Limiter, onReject ...func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := auth.UserFromContext(r.Context())
			if u == nil {
				next.ServeHTTP(w, r)
				return
			}

			d := limiter.Take(u.ID)
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", d.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", d.Remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", d.ResetAt.Unix()))

			if !d.Allowed {
				for _, fn := range onReject {
					if fn != nil {
						fn()
					}
				}
				retry := int(math.Ceil(d.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retry))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{
						"code":        "rate_limited",
						"message":     "Rate limit exceeded. Try again later.",
						"retry_after": retry,
					},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
