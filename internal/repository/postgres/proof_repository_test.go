package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zksteam-api/internal/models"
	"zksteam-api/internal/repository"
)

type fakeRow struct {
	err error
}

func (r fakeRow) Scan(...any) error { return r.err }

type fakeDB struct {
	execErr error
	rowErr  error
	sql     []string
	args    [][]any
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
	return pgconn.NewCommandTag("INSERT 0 1"), f.execErr
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, assert.AnError
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return fakeRow{err: f.rowErr}
}

func TestCreateProof(t *testing.T) {
	testCases := []struct {
		name          string
		execErr       error
		expectedError error
		expectWrapped bool
	}{
		{name: "happy_case"},
		{
			name:          "unique_violation",
			execErr:       &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "zk_proofs_session_id_key"},
			expectedError: repository.ErrDuplicateSession,
		},
		{
			name:          "general_error",
			execErr:       assert.AnError,
			expectedError: assert.AnError,
			expectWrapped: true,
		},
		{
			name:          "primary_key_violation",
			execErr:       &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "zk_proofs_pkey"},
			expectWrapped: true,
		},
		{
			name:          "other_pg_error",
			execErr:       &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation},
			expectWrapped: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db := &fakeDB{execErr: tc.execErr}
			repo := NewProofRepository(db)

			rec := &models.ProofRecord{SessionID: "s1", Provider: "steam", Status: models.ProofStatusVerified}
			err := repo.CreateProof(context.Background(), rec)

			switch {
			case tc.execErr == nil:
				require.NoError(t, err)
				assert.NotEmpty(t, rec.ID)
				require.Len(t, db.args, 1)
				assert.Equal(t, "s1", *db.args[0][1].(*string))
			case tc.expectWrapped:
				require.Error(t, err)
				assert.NotErrorIs(t, err, repository.ErrDuplicateSession)
				assert.Contains(t, err.Error(), "failed to insert proof")
				if tc.expectedError != nil {
					assert.ErrorIs(t, err, tc.expectedError)
				}
			default:
				assert.ErrorIs(t, err, tc.expectedError)
			}
		})
	}
}

func TestCreateProof_EmptySessionIsNull(t *testing.T) {
	db := &fakeDB{}
	repo := NewProofRepository(db)

	require.NoError(t, repo.CreateProof(context.Background(), &models.ProofRecord{Provider: "steam"}))
	assert.Nil(t, db.args[0][1])
}

func TestFindBySessionID_NotFound(t *testing.T) {
	repo := NewProofRepository(&fakeDB{rowErr: pgx.ErrNoRows})

	_, err := repo.FindBySessionID(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestFindBySessionID_QueryError(t *testing.T) {
	repo := NewProofRepository(&fakeDB{rowErr: assert.AnError})

	_, err := repo.FindBySessionID(context.Background(), "s1")
	assert.ErrorIs(t, err, assert.AnError)
	assert.NotErrorIs(t, err, repository.ErrNotFound)
}

func TestProofRepository_Integration(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, EnsureSchema(ctx, pool))

	repo := NewProofRepository(pool)
	session := "it-" + time.Now().Format("20060102150405.000000000")

	owner, err := repo.UpsertOwnerAccount(ctx, "STEAM_"+session)
	require.NoError(t, err)

	rec := &models.ProofRecord{
		SessionID:      session,
		Provider:       "steam",
		Status:         models.ProofStatusVerified,
		OwnerAccountID: owner.ID,
		PayloadDigest:  "abc",
	}
	require.NoError(t, repo.CreateProof(ctx, rec))

	found, err := repo.FindBySessionID(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, found.ID)
	assert.Equal(t, owner.ID, found.OwnerAccountID)

	err = repo.CreateProof(ctx, &models.ProofRecord{SessionID: session, Provider: "steam", Status: models.ProofStatusVerified, PayloadDigest: "abc"})
	assert.ErrorIs(t, err, repository.ErrDuplicateSession)

	require.NoError(t, repo.RecordAttempt(ctx, &models.ProofAttempt{SessionID: session, Provider: "steam", Status: models.ProofStatusRejected, Reason: "invalid-proof"}))
	require.NoError(t, repo.RecordAttempt(ctx, &models.ProofAttempt{SessionID: session, Provider: "steam", Status: models.ProofStatusRejected, Reason: "invalid-proof"}))
}
