package encryption

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zksteam-api/internal/config"
)

type fakeKMS struct {
	generateCalls int
	decryptCalls  int
	plaintext     []byte
}

func (f *fakeKMS) GenerateDataKey(_ context.Context, in *kms.GenerateDataKeyInput, _ ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error) {
	f.generateCalls++
	return &kms.GenerateDataKeyOutput{
		Plaintext:      f.plaintext,
		CiphertextBlob: append([]byte("wrapped:"), f.plaintext...),
		KeyId:          in.KeyId,
	}, nil
}

func (f *fakeKMS) Decrypt(_ context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	f.decryptCalls++
	return &kms.DecryptOutput{Plaintext: bytes.TrimPrefix(in.CiphertextBlob, []byte("wrapped:"))}, nil
}

func TestSealOpen_LocalKey(t *testing.T) {
	em := NewEncryptionManager(&config.Config{}, nil)
	ctx := context.Background()
	payload := []byte(`{"claimInfo":{"provider":"steam"}}`)

	sealed, err := em.SealPayload(ctx, payload, "session-1")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "claimInfo")

	em.ClearCache()
	opened, err := em.OpenPayload(ctx, sealed, "session-1")
	require.NoError(t, err)
	assert.Equal(t, payload, opened)

	_, err = em.OpenPayload(ctx, sealed, "session-2")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestSealOpen_KMS(t *testing.T) {
	fake := &fakeKMS{plaintext: bytes.Repeat([]byte{7}, 32)}
	cfg := &config.Config{KMS: config.KMSConfig{Enabled: true, KeyID: "arn:aws:kms:test"}}
	em := NewEncryptionManager(cfg, fake)
	ctx := context.Background()

	sealed, err := em.SealPayload(ctx, []byte("proof"), "s")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.generateCalls)
	assert.True(t, em.UsesKMS())
	assert.Zero(t, em.CacheSize(), "sealing does not cache the DEK")

	opened, err := em.OpenPayload(ctx, sealed, "s")
	require.NoError(t, err)
	assert.Equal(t, []byte("proof"), opened)
	assert.Equal(t, 1, fake.decryptCalls)
	assert.Equal(t, 1, em.CacheSize())

	_, err = em.OpenPayload(ctx, sealed, "s")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.decryptCalls, "cached DEK is reused")
}

func TestOpenPayload_KeyCacheIsBounded(t *testing.T) {
	em := NewEncryptionManager(&config.Config{}, nil)
	ctx := context.Background()

	var first []byte
	for i := 0; i < maxCachedKeys+50; i++ {
		aad := fmt.Sprintf("session-%d", i)
		sealed, err := em.SealPayload(ctx, []byte("proof"), aad)
		require.NoError(t, err)
		if i == 0 {
			first = sealed
		}
		_, err = em.OpenPayload(ctx, sealed, aad)
		require.NoError(t, err)
	}
	assert.Equal(t, maxCachedKeys, em.CacheSize())

	// evicted keys are re-derived from the envelope
	opened, err := em.OpenPayload(ctx, first, "session-0")
	require.NoError(t, err)
	assert.Equal(t, []byte("proof"), opened)
	assert.Equal(t, maxCachedKeys, em.CacheSize())
}

func TestOpenPayload_InvalidEnvelope(t *testing.T) {
	em := NewEncryptionManager(&config.Config{}, nil)

	_, err := em.OpenPayload(context.Background(), []byte("not json"), "s")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}
