package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"
)

const (
	DefaultWindow      = time.Minute
	DefaultMaxRequests = 10
	DefaultMessage     = "Too many requests, please try again later"
)

var ErrInvalidKey = errors.New("rate limit key is empty")

// RateWindow is the counter for one client key inside the current fixed window.
type RateWindow struct {
	Attempts int
	ResetAt  time.Time
}

// WindowStore owns the per-key windows. Hit must, atomically for the key, start a
// fresh window {0, now+window} when now > ResetAt (or no window exists) and then
// increment Attempts. It returns the window after the increment.
type WindowStore interface {
	Hit(ctx context.Context, key string, window time.Duration) (RateWindow, error)
}

// Decision is the outcome of one counted request.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int // whole seconds, only meaningful when !Allowed
}

type Limiter struct {
	name   string
	store  WindowStore
	window time.Duration
	max    int
	now    func() time.Time
}

type LimiterOption func(*Limiter)

func WithClock(now func() time.Time) LimiterOption {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter builds a limiter. Non-positive window or max fall back to defaults.
func NewLimiter(name string, store WindowStore, window time.Duration, max int, opts ...LimiterOption) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMaxRequests
	}
	l := &Limiter{
		name:   name,
		store:  store,
		window: window,
		max:    max,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.store == nil {
		l.store = NewMemoryWindowStore(WithStoreClock(l.now))
	}
	return l
}

func (l *Limiter) Name() string { return l.name }
func (l *Limiter) Limit() int { return l.max }
func (l *Limiter) Window() time.Duration { return l.window }
func (l *Limiter) Store() WindowStore { return l.store }

// Allow counts one request for key and decides whether it is within budget.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	if key == "" {
		return Decision{}, ErrInvalidKey
	}

	w, err := l.store.Hit(ctx, l.name+":"+key, l.window)
	if err != nil {
		return Decision{}, err
	}

	dec := Decision{
		Limit:   l.max,
		ResetAt: w.ResetAt,
	}
	if w.Attempts > l.max {
		dec.Remaining = 0
		dec.RetryAfter = retryAfterSeconds(w.ResetAt, l.now())
		return dec, nil
	}

	dec.Allowed = true
	dec.Remaining = l.max - w.Attempts
	return dec, nil
}

func retryAfterSeconds(resetAt, now time.Time) int {
	d := resetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
