package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"zksteam-api/internal/bucketing"
	"zksteam-api/internal/models"
	"zksteam-api/internal/repository"
	"zksteam-api/internal/util"
)

// anonymousSessionPrefix keys proofs submitted without a session id. Scylla
// does not allow an empty partition key.
const anonymousSessionPrefix = "anon:"

// ProofRepository stores proofs in ScyllaDB. Session uniqueness is a
// lightweight transaction on proofs_by_session.
type ProofRepository struct {
	client    *ScyllaClient
	bucketing *bucketing.BucketingManager
}

func NewProofRepository(client *ScyllaClient, bm *bucketing.BucketingManager) *ProofRepository {
	return &ProofRepository{client: client, bucketing: bm}
}

var _ repository.ProofRepository = (*ProofRepository)(nil)

func (r *ProofRepository) FindBySessionID(ctx context.Context, sessionID string) (*models.ProofRecord, error) {
	var (
		rec     models.ProofRecord
		proofID gocql.UUID
		status  string
	)
	err := r.client.Query(statements.GetProofBySession, sessionKey(sessionID, "")).
		WithContext(ctx).
		Scan(&proofID, &rec.Provider, &status, &rec.OwnerAccountID, &rec.PayloadDigest, &rec.EncryptedPayload, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find proof by session: %w", err)
	}
	rec.ID = proofID.String()
	rec.SessionID = sessionID
	rec.Status = models.ProofStatus(status)
	return &rec, nil
}

func (r *ProofRepository) CreateProof(ctx context.Context, rec *models.ProofRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	proofID, err := gocql.ParseUUID(rec.ID)
	if err != nil {
		return fmt.Errorf("invalid proof id %q: %w", rec.ID, err)
	}

	existing := make(map[string]interface{})
	applied, err := r.client.Query(statements.InsertProofBySession,
		sessionKey(rec.SessionID, rec.ID),
		proofID,
		rec.Provider,
		string(rec.Status),
		rec.OwnerAccountID,
		rec.PayloadDigest,
		rec.EncryptedPayload,
		rec.CreatedAt,
	).WithContext(ctx).MapScanCAS(existing)
	if err != nil {
		return fmt.Errorf("failed to insert proof: %w", err)
	}
	if !applied {
		util.Info("Proof insert lost the race for session",
			zap.String("session_id", rec.SessionID),
			zap.Any("existing_proof_id", existing["proof_id"]))
		return repository.ErrDuplicateSession
	}

	if rec.OwnerAccountID != "" {
		q := r.client.Query(statements.InsertProofByOwner,
			r.bucketing.OwnerBucket(rec.OwnerAccountID),
			rec.OwnerAccountID,
			rec.CreatedAt,
			proofID,
			rec.SessionID,
			rec.Provider,
		)
		if err := r.client.ExecuteWithRetry(ctx, q, 2); err != nil {
			// The session row is authoritative; the owner index can be rebuilt from it.
			util.Warn("Failed to index proof by owner",
				zap.String("proof_id", rec.ID),
				zap.String("owner_account_id", rec.OwnerAccountID),
				zap.Error(err))
		}
	}
	return nil
}

func (r *ProofRepository) RecordAttempt(ctx context.Context, a *models.ProofAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	attemptID, err := gocql.ParseUUID(a.ID)
	if err != nil {
		return fmt.Errorf("invalid attempt id %q: %w", a.ID, err)
	}

	q := r.client.Query(statements.InsertAttempt,
		r.bucketing.SessionBucket(a.SessionID),
		r.bucketing.DateBucket(a.CreatedAt),
		a.CreatedAt,
		attemptID,
		a.SessionID,
		a.Provider,
		string(a.Status),
		a.Reason,
		a.PayloadDigest,
	)
	if err := r.client.ExecuteWithRetry(ctx, q, 2); err != nil {
		return fmt.Errorf("failed to insert proof attempt: %w", err)
	}
	return nil
}

func (r *ProofRepository) UpsertOwnerAccount(ctx context.Context, steamID string) (*models.OwnerAccount, error) {
	acc := &models.OwnerAccount{
		ID:        uuid.NewString(),
		SteamID:   steamID,
		CreatedAt: time.Now().UTC(),
	}

	existing := make(map[string]interface{})
	applied, err := r.client.Query(statements.InsertOwner, steamID, acc.ID, acc.CreatedAt).
		WithContext(ctx).
		MapScanCAS(existing)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert owner account: %w", err)
	}
	if applied {
		return acc, nil
	}

	if id, ok := existing["account_id"].(string); ok {
		acc.ID = id
	}
	if ts, ok := existing["created_at"].(time.Time); ok {
		acc.CreatedAt = ts
	}
	return acc, nil
}

func (r *ProofRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}

func sessionKey(sessionID, proofID string) string {
	if sessionID != "" {
		return sessionID
	}
	return anonymousSessionPrefix + proofID
}
