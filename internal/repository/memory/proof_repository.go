package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"zksteam-api/internal/models"
	"zksteam-api/internal/repository"
)

// ProofRepository is a process-local store used in development and tests.
type ProofRepository struct {
	mu        sync.Mutex
	proofs    map[string]*models.ProofRecord // by ID
	bySession map[string]string              // session -> proof ID
	attempts  []models.ProofAttempt
	owners    map[string]*models.OwnerAccount // by steam ID
}

func NewProofRepository() *ProofRepository {
	return &ProofRepository{
		proofs:    make(map[string]*models.ProofRecord),
		bySession: make(map[string]string),
		owners:    make(map[string]*models.OwnerAccount),
	}
}

var _ repository.ProofRepository = (*ProofRepository)(nil)

func (r *ProofRepository) FindBySessionID(_ context.Context, sessionID string) (*models.ProofRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.bySession[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	rec := *r.proofs[id]
	return &rec, nil
}

func (r *ProofRepository) CreateProof(_ context.Context, rec *models.ProofRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.SessionID != "" {
		if _, exists := r.bySession[rec.SessionID]; exists {
			return repository.ErrDuplicateSession
		}
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	stored := *rec
	r.proofs[rec.ID] = &stored
	if rec.SessionID != "" {
		r.bySession[rec.SessionID] = rec.ID
	}
	return nil
}

func (r *ProofRepository) RecordAttempt(_ context.Context, attempt *models.ProofAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	r.attempts = append(r.attempts, *attempt)
	return nil
}

func (r *ProofRepository) UpsertOwnerAccount(_ context.Context, steamID string) (*models.OwnerAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if acc, ok := r.owners[steamID]; ok {
		out := *acc
		return &out, nil
	}
	acc := &models.OwnerAccount{
		ID:        uuid.NewString(),
		SteamID:   steamID,
		CreatedAt: time.Now().UTC(),
	}
	r.owners[steamID] = acc
	out := *acc
	return &out, nil
}

func (r *ProofRepository) HealthCheck(context.Context) error { return nil }

// Attempts returns a copy of the attempt log.
func (r *ProofRepository) Attempts() []models.ProofAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ProofAttempt, len(r.attempts))
	copy(out, r.attempts)
	return out
}

// Count returns the number of stored proofs.
func (r *ProofRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.proofs)
}
