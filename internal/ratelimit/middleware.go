package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"zksteam-api/internal/util"
)

const resetHeaderLayout = "2006-01-02T15:04:05.000Z07:00"

type KeyFunc func(r *http.Request) string

type Options struct {
	Message string
	KeyFunc KeyFunc
	Stats   StatsStore
}

type rejectionBody struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
}

// DefaultKeyFunc keys by the given header, then (when trusted) the first
// X-Forwarded-For hop, then the host part of RemoteAddr.
func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// Middleware enforces l in front of next. Store errors fail open.
func Middleware(l *Limiter, opts Options) func(next http.Handler) http.Handler {
	if opts.Message == "" {
		opts.Message = DefaultMessage
	}
	if opts.KeyFunc == nil {
		opts.KeyFunc = DefaultKeyFunc("", false)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFunc(r)

			dec, err := l.Allow(r.Context(), key)
			if err != nil {
				util.Warn("Rate limiter unavailable, allowing request",
					util.String("limiter", l.Name()),
					util.String("path", r.URL.Path),
					util.ErrorField(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			if opts.Stats != nil {
				ev := StatsEvent{
					Limiter: l.Name(),
					Key:     key,
					Allowed: dec.Allowed,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      time.Now(),
				}
				if err := opts.Stats.Record(r.Context(), ev); err != nil {
					util.Warn("Failed to record rate limit decision",
						util.String("limiter", l.Name()),
						util.ErrorField(err),
					)
				}
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
			h.Set("X-RateLimit-Reset", dec.ResetAt.UTC().Format(resetHeaderLayout))

			if !dec.Allowed {
				util.Info("Rate limit exceeded",
					util.String("limiter", l.Name()),
					util.String("key", key),
					util.Int("retry_after", dec.RetryAfter),
				)
				h.Set("Retry-After", strconv.Itoa(dec.RetryAfter))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(rejectionBody{Error: opts.Message, RetryAfter: dec.RetryAfter})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
