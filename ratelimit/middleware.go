package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/hlog"
)

// Middleware rejects requests with 429 once the client's bucket is empty.
// Clients are keyed by the host part of r.RemoteAddr, which only reflects
// forwarded headers when a trusted proxy middleware rewrote it upstream.
// Store failures let the request through.
func Middleware(tb *TokenBucket) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, err := tb.Allow(r.Context(), clientKey(r))
			if err != nil {
				hlog.FromRequest(r).Warn().Err(err).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

			if !result.Allowed {
				retry := int(math.Ceil(result.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
