package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"zksteam-api/internal/models"
)

// Sink receives proof lifecycle events. Publishing is best-effort from the
// caller's point of view: errors are returned so the caller can log them.
type Sink interface {
	Name() string
	Publish(ctx context.Context, ev models.ProofEvent) error
}

// Fanout publishes to every sink concurrently.
type Fanout struct {
	sinks []Sink
	now   func() time.Time
}

func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{now: time.Now}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

func (f *Fanout) Len() int { return len(f.sinks) }

// Publish stamps EventID and OccurredAt when unset, then sends ev to all
// sinks. The returned error joins every sink failure.
func (f *Fanout) Publish(ctx context.Context, ev models.ProofEvent) error {
	if len(f.sinks) == 0 {
		return nil
	}
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = f.now().UTC()
	}

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	for _, s := range f.sinks {
		g.Go(func() error {
			if err := s.Publish(ctx, ev); err != nil {
				mu.Lock()
				errs = append(errs, &SinkError{Sink: s.Name(), Err: err})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string { return e.Sink + ": " + e.Err.Error() }
func (e *SinkError) Unwrap() error { return e.Err }
