package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zksteam-api/internal/models"
	"zksteam-api/internal/repository"
)

func TestProofRepository_CreateAndFind(t *testing.T) {
	repo := NewProofRepository()
	ctx := context.Background()

	_, err := repo.FindBySessionID(ctx, "s1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	rec := &models.ProofRecord{SessionID: "s1", Provider: "steam", Status: models.ProofStatusVerified}
	require.NoError(t, repo.CreateProof(ctx, rec))
	assert.NotEmpty(t, rec.ID)

	found, err := repo.FindBySessionID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, found.ID)

	err = repo.CreateProof(ctx, &models.ProofRecord{SessionID: "s1"})
	assert.ErrorIs(t, err, repository.ErrDuplicateSession)
}

func TestProofRepository_EmptySessionsDoNotCollide(t *testing.T) {
	repo := NewProofRepository()
	ctx := context.Background()

	require.NoError(t, repo.CreateProof(ctx, &models.ProofRecord{Provider: "steam"}))
	require.NoError(t, repo.CreateProof(ctx, &models.ProofRecord{Provider: "steam"}))
	assert.Equal(t, 2, repo.Count())
}

func TestProofRepository_ConcurrentCreateSameSession(t *testing.T) {
	repo := NewProofRepository()
	ctx := context.Background()

	var (
		wg         sync.WaitGroup
		created    atomic.Int32
		duplicates atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.CreateProof(ctx, &models.ProofRecord{SessionID: "race"})
			switch err {
			case nil:
				created.Add(1)
			case repository.ErrDuplicateSession:
				duplicates.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, int32(19), duplicates.Load())
}

func TestProofRepository_AttemptsAndOwners(t *testing.T) {
	repo := NewProofRepository()
	ctx := context.Background()

	require.NoError(t, repo.RecordAttempt(ctx, &models.ProofAttempt{SessionID: "s1", Reason: "mock-rejected"}))
	require.NoError(t, repo.RecordAttempt(ctx, &models.ProofAttempt{SessionID: "s1", Reason: "mock-rejected"}))
	assert.Len(t, repo.Attempts(), 2)

	a, err := repo.UpsertOwnerAccount(ctx, "STEAM_s1")
	require.NoError(t, err)
	b, err := repo.UpsertOwnerAccount(ctx, "STEAM_s1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
}

func TestSessionStore_Expiry(t *testing.T) {
	store := NewSessionStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.SavePending(ctx, &models.PendingSession{SessionID: "s1", Mode: "mock"}, time.Minute))

	got, err := store.GetPending(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "mock", got.Mode)

	now = now.Add(2 * time.Minute)
	_, err = store.GetPending(ctx, "s1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, store.SavePending(ctx, &models.PendingSession{SessionID: "s2"}, time.Minute))
	require.NoError(t, store.DeletePending(ctx, "s2"))
	_, err = store.GetPending(ctx, "s2")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSessionStore_SaveDropsExpired(t *testing.T) {
	store := NewSessionStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("s%d", i)
		require.NoError(t, store.SavePending(ctx, &models.PendingSession{SessionID: id}, time.Minute))
	}
	assert.Equal(t, 1000, store.Len())

	now = now.Add(24 * time.Hour)
	require.NoError(t, store.SavePending(ctx, &models.PendingSession{SessionID: "fresh"}, time.Minute))
	assert.Equal(t, 1, store.Len())

	_, err := store.GetPending(ctx, "fresh")
	assert.NoError(t, err)
}

func TestSessionStore_Sweep(t *testing.T) {
	store := NewSessionStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.SavePending(ctx, &models.PendingSession{SessionID: "short"}, time.Minute))
	require.NoError(t, store.SavePending(ctx, &models.PendingSession{SessionID: "long"}, time.Hour))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 0, store.Sweep())
}

func TestSessionStore_Janitor(t *testing.T) {
	store := NewSessionStore()
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, store.SavePending(ctx, &models.PendingSession{SessionID: "s1"}, time.Minute))
	mu.Lock()
	now = now.Add(time.Hour)
	mu.Unlock()

	store.StartJanitor(ctx, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 10*time.Millisecond)
}
