package server

import (
	"net"
	"net/http"
	"time"

	"github.com/playperu/fivehints/internal/fivehints"
)

type ctxKey int

const (
	ctxKeyAdmin ctxKey = iota
)

const fingerprintHeader = "X-Player-Fingerprint"

// clientKey identifies the caller for rate limiting by client IP. The
// fingerprint header is caller-chosen and never part of the key. RealIP
// already rewrote RemoteAddr.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// rateLimit rejects callers that exceed limit requests per window within
// scope. A limiter outage lets the request through.
func (s *Server) rateLimit(scope string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			d, err := s.limiter.Allow(r.Context(), scope+":"+clientKey(r), limit, window)
			if err != nil {
				s.logger.Warn("rate limiter unavailable", "scope", scope, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !d.Allowed {
				writeAppError(w, s.logger, &fivehints.Error{
					Code:       fivehints.CodeRateLimited,
					Message:    "too many requests",
					RetryAfter: d.RetryAfter,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
