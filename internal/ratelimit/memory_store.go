package ratelimit

import (
	"context"
	"sync"
	"time"

	"zksteam-api/internal/util"
)

// MemoryWindowStore keeps windows in process memory. Run StartJanitor to drop
// expired windows; without it the map only grows.
type MemoryWindowStore struct {
	mu      sync.Mutex
	windows map[string]*RateWindow
	now     func() time.Time
}

type MemoryStoreOption func(*MemoryWindowStore)

func WithStoreClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryWindowStore) { s.now = now }
}

func NewMemoryWindowStore(opts ...MemoryStoreOption) *MemoryWindowStore {
	s := &MemoryWindowStore{
		windows: make(map[string]*RateWindow),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryWindowStore) Hit(_ context.Context, key string, window time.Duration) (RateWindow, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || now.After(w.ResetAt) {
		w = &RateWindow{Attempts: 0, ResetAt: now.Add(window)}
		s.windows[key] = w
	}
	w.Attempts++
	return *w, nil
}

// Get returns a copy of the window for key, if any.
func (s *MemoryWindowStore) Get(key string) (RateWindow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[key]
	if !ok {
		return RateWindow{}, false
	}
	return *w, true
}

func (s *MemoryWindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// Sweep deletes windows whose ResetAt+grace is already in the past and
// returns how many were removed.
func (s *MemoryWindowStore) Sweep(grace time.Duration) int {
	cutoff := s.now().Add(-grace)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, w := range s.windows {
		if w.ResetAt.Before(cutoff) {
			delete(s.windows, k)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps every interval until ctx is cancelled. The interval is
// also the grace period a window survives past its reset.
func (s *MemoryWindowStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	t := time.NewTicker(interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := s.Sweep(interval); n > 0 {
					util.Debug("Swept expired rate limit windows", util.Int("removed", n))
				}
			}
		}
	}()
}
