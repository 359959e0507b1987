package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"zksteam-api/internal/models"
	"zksteam-api/internal/repository"
	"zksteam-api/internal/util"
)

const (
	findBySessionSQL = `
SELECT id::text, session_id, provider, status, owner_account_id::text, payload_digest, encrypted_payload, created_at
FROM zk_proofs WHERE session_id = $1`

	insertProofSQL = `
INSERT INTO zk_proofs (id, session_id, provider, status, owner_account_id, payload_digest, encrypted_payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	insertAttemptSQL = `
INSERT INTO zk_proof_attempts (id, session_id, provider, status, reason, payload_digest, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	upsertOwnerSQL = `
INSERT INTO owner_accounts (id, steam_id, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (steam_id) DO UPDATE SET steam_id = EXCLUDED.steam_id
RETURNING id::text, steam_id, created_at`

	// sessionUniqueConstraint is the name Postgres gives UNIQUE(session_id).
	sessionUniqueConstraint = "zk_proofs_session_id_key"
)

type ProofRepository struct {
	db DBTX
}

func NewProofRepository(db DBTX) *ProofRepository {
	return &ProofRepository{db: db}
}

var _ repository.ProofRepository = (*ProofRepository)(nil)

func (r *ProofRepository) FindBySessionID(ctx context.Context, sessionID string) (*models.ProofRecord, error) {
	var (
		rec     models.ProofRecord
		session *string
		owner   *string
		status  string
	)
	err := r.db.QueryRow(ctx, findBySessionSQL, sessionID).Scan(
		&rec.ID, &session, &rec.Provider, &status, &owner, &rec.PayloadDigest, &rec.EncryptedPayload, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find proof by session: %w", err)
	}
	rec.Status = models.ProofStatus(status)
	if session != nil {
		rec.SessionID = *session
	}
	if owner != nil {
		rec.OwnerAccountID = *owner
	}
	return &rec, nil
}

// CreateProof relies on the UNIQUE(session_id) constraint; NULL sessions never
// collide. Only a violation of that constraint maps to ErrDuplicateSession.
func (r *ProofRepository) CreateProof(ctx context.Context, rec *models.ProofRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx, insertProofSQL,
		rec.ID,
		nullableText(rec.SessionID),
		rec.Provider,
		string(rec.Status),
		nullableText(rec.OwnerAccountID),
		rec.PayloadDigest,
		rec.EncryptedPayload,
		rec.CreatedAt,
	)
	if err != nil {
		var e *pgconn.PgError
		if errors.As(err, &e) && e.Code == pgerrcode.UniqueViolation && e.ConstraintName == sessionUniqueConstraint {
			util.Info("Proof insert lost the race for session",
				util.String("session_id", rec.SessionID),
				util.String("constraint", e.ConstraintName))
			return repository.ErrDuplicateSession
		}
		return fmt.Errorf("failed to insert proof: %w", err)
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

	_, err := r.db.Exec(ctx, insertAttemptSQL,
		a.ID,
		nullableText(a.SessionID),
		a.Provider,
		string(a.Status),
		a.Reason,
		nullableText(a.PayloadDigest),
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert proof attempt: %w", err)
	}
	return nil
}

func (r *ProofRepository) UpsertOwnerAccount(ctx context.Context, steamID string) (*models.OwnerAccount, error) {
	var acc models.OwnerAccount
	err := r.db.QueryRow(ctx, upsertOwnerSQL, uuid.NewString(), steamID, time.Now().UTC()).
		Scan(&acc.ID, &acc.SteamID, &acc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert owner account: %w", err)
	}
	return &acc, nil
}

func (r *ProofRepository) HealthCheck(ctx context.Context) error {
	var one int
	if err := r.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	return nil
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
