package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/homecinema/homecinema/internal/api/response"
	"github.com/homecinema/homecinema/internal/ratelimit"
)

// RateLimit rejects requests once the client's window on limiter is used
// up. Clients are keyed by route and remote IP. onLimited, when set, is told
// the route of every rejected request. A limiter failure lets the request
// through.
func RateLimit(limiter ratelimit.Limiter, route string, onLimited func(route string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())

			res, err := limiter.Allow(r.Context(), route+"|"+clientIP(r))
			if err != nil {
				slog.Warn("rate limiter unavailable", "error", err, "route", route, "requestId", requestID)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))

			if !res.Allowed {
				if onLimited != nil {
					onLimited(route)
				}
				response.RateLimited(w, res.RetryAfter, requestID)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
