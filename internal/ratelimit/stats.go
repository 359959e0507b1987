package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"zksteam-api/internal/util"
)

var ErrStatsBufferFull = errors.New("rate limit stats buffer full")

// StatsEvent describes one limiter decision.
type StatsEvent struct {
	Limiter string
	Key     string
	Allowed bool
	Method  string
	Path    string
	At      time.Time
}

// StatsStore persists decisions. Callers treat failures as best-effort.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// MemoryStatsStore aggregates counters per limiter. Keys are not tracked to
// keep cardinality bounded.
type MemoryStatsStore struct {
	mu        sync.Mutex
	total     Counters
	byLimiter map[string]Counters
}

func NewMemoryStatsStore() *MemoryStatsStore {
	return &MemoryStatsStore{byLimiter: make(map[string]Counters)}
}

func (s *MemoryStatsStore) Record(_ context.Context, ev StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.byLimiter[ev.Limiter]
	if ev.Allowed {
		s.total.Allowed++
		c.Allowed++
	} else {
		s.total.Denied++
		c.Denied++
	}
	s.byLimiter[ev.Limiter] = c
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByLimiter() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byLimiter))
	for k, v := range s.byLimiter {
		out[k] = v
	}
	return out
}

// MultiStats records into every store and returns the first error.
type MultiStats []StatsStore

func (m MultiStats) Record(ctx context.Context, ev StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// AsyncStats hands events to a background worker so a slow store never sits
// on the request path. Each write to next is bounded by timeout. Events are
// dropped when the buffer is full.
type AsyncStats struct {
	next    StatsStore
	timeout time.Duration
	events  chan StatsEvent
	stop    chan struct{}
	done    chan struct{}
	dropped atomic.Int64
	once    sync.Once
}

func NewAsyncStats(next StatsStore, buffer int, timeout time.Duration) *AsyncStats {
	if buffer <= 0 {
		buffer = 1024
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	a := &AsyncStats{
		next:    next,
		timeout: timeout,
		events:  make(chan StatsEvent, buffer),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Record never blocks. ctx is not carried to the worker since the request
// finishes before the write does.
func (a *AsyncStats) Record(_ context.Context, ev StatsEvent) error {
	select {
	case <-a.stop:
		return nil
	default:
	}
	select {
	case a.events <- ev:
		return nil
	default:
		a.dropped.Add(1)
		return ErrStatsBufferFull
	}
}

func (a *AsyncStats) Dropped() int64 { return a.dropped.Load() }

func (a *AsyncStats) run() {
	defer close(a.done)
	for {
		select {
		case ev := <-a.events:
			a.write(ev)
		case <-a.stop:
			for {
				select {
				case ev := <-a.events:
					a.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (a *AsyncStats) write(ev StatsEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.next.Record(ctx, ev); err != nil {
		util.Warn("Failed to record rate limit decision",
			util.String("limiter", ev.Limiter),
			util.ErrorField(err),
		)
	}
}

// Close flushes buffered events and stops the worker.
func (a *AsyncStats) Close() {
	a.once.Do(func() { close(a.stop) })
	<-a.done
}
