package repository

import (
	"context"
	"errors"
	"time"

	"zksteam-api/internal/models"
)

//go:generate mockgen -destination=../mocks/mock_repository.go -package=mocks zksteam-api/internal/repository ProofRepository,SessionStore

var (
	// ErrDuplicateSession is returned by CreateProof when a proof for the
	// session already exists. Stores must enforce this atomically.
	ErrDuplicateSession = errors.New("proof already exists for session")
	ErrNotFound         = errors.New("record not found")
)

// ProofRepository persists verified proofs and the rejected-attempt log.
type ProofRepository interface {
	// FindBySessionID returns ErrNotFound when no proof exists for the session.
	FindBySessionID(ctx context.Context, sessionID string) (*models.ProofRecord, error)
	// CreateProof is the authoritative uniqueness check on SessionID.
	CreateProof(ctx context.Context, rec *models.ProofRecord) error
	RecordAttempt(ctx context.Context, attempt *models.ProofAttempt) error
	UpsertOwnerAccount(ctx context.Context, steamID string) (*models.OwnerAccount, error)
	HealthCheck(ctx context.Context) error
}

// SessionStore keeps issued proof requests until they are verified or expire.
type SessionStore interface {
	SavePending(ctx context.Context, s *models.PendingSession, ttl time.Duration) error
	// GetPending returns ErrNotFound for unknown or expired sessions.
	GetPending(ctx context.Context, sessionID string) (*models.PendingSession, error)
	DeletePending(ctx context.Context, sessionID string) error
}
