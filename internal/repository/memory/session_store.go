package memory

import (
	"context"
	"sync"
	"time"

	"zksteam-api/internal/models"
	"zksteam-api/internal/repository"
	"zksteam-api/internal/util"
)

// sweepEvery is how often SavePending also drops expired sessions.
const sweepEvery = time.Minute

type pendingEntry struct {
	session   models.PendingSession
	expiresAt time.Time
}

// SessionStore keeps pending proof sessions in memory. Expired entries are
// dropped on read, by SavePending at most once per sweepEvery, and by the
// janitor when one is running.
type SessionStore struct {
	mu        sync.Mutex
	sessions  map[string]pendingEntry
	now       func() time.Time
	lastSweep time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]pendingEntry),
		now:      time.Now,
	}
}

var _ repository.SessionStore = (*SessionStore)(nil)

func (s *SessionStore) SavePending(_ context.Context, p *models.PendingSession, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= sweepEvery {
		s.sweepLocked(now)
	}
	s.sessions[p.SessionID] = pendingEntry{session: *p, expiresAt: now.Add(ttl)}
	return nil
}

func (s *SessionStore) GetPending(_ context.Context, sessionID string) (*models.PendingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if s.now().After(e.expiresAt) {
		delete(s.sessions, sessionID)
		return nil, repository.ErrNotFound
	}
	out := e.session
	return &out, nil
}

func (s *SessionStore) DeletePending(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Len reports how many sessions are held, expired or not.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes expired sessions and returns how many were dropped.
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now())
}

func (s *SessionStore) sweepLocked(now time.Time) int {
	removed := 0
	for id, e := range s.sessions {
		if now.After(e.expiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	s.lastSweep = now
	return removed
}

// StartJanitor sweeps every interval until ctx is cancelled.
func (s *SessionStore) StartJanitor(ctx context.Context, interval time.Duration) {
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
				if n := s.Sweep(); n > 0 {
					util.Debug("Swept expired pending sessions", util.Int("removed", n))
				}
			}
		}
	}()
}
