package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"go.uber.org/zap"

	"zksteam-api/internal/config"
	"zksteam-api/internal/util"
)

const (
	localKeyID = "local-dev"

	// maxCachedKeys caps plaintext DEKs held after OpenPayload; the oldest
	// entry is evicted first.
	maxCachedKeys = 1024
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// EncryptedData is the envelope stored next to a proof record.
type EncryptedData struct {
	EncryptedValue string    `json:"encrypted_value"`
	EncryptedDEK   string    `json:"encrypted_dek"`
	KeyID          string    `json:"key_id"`
	Version        string    `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
}

// KMSAPI is the part of the KMS client used for envelope encryption.
type KMSAPI interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// EncryptionManager seals proof payloads with a per-payload AES-256-GCM data
// key. With KMS disabled the raw data key is stored in the envelope, which is
// only acceptable outside production. Data keys are cached on open only.
type EncryptionManager struct {
	kmsClient KMSAPI
	kmsKeyID  string
	useKMS    bool

	cacheMu  sync.Mutex
	keyCache map[string][]byte // encrypted DEK -> plaintext DEK
	keyOrder []string
}

type DataKey struct {
	Plaintext  []byte
	Ciphertext []byte
	KeyID      string
}

func NewEncryptionManager(cfg *config.Config, kmsClient KMSAPI) *EncryptionManager {
	return &EncryptionManager{
		kmsClient: kmsClient,
		kmsKeyID:  cfg.KMS.KeyID,
		useKMS:    cfg.KMS.Enabled && kmsClient != nil,
		keyCache:  make(map[string][]byte),
	}
}

// NewKMSClient builds a KMS client from the default AWS credential chain.
func NewKMSClient(ctx context.Context, cfg *config.Config) (*kms.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.KMS.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return kms.NewFromConfig(awsCfg), nil
}

func (em *EncryptionManager) UsesKMS() bool { return em.useKMS }

func (em *EncryptionManager) GenerateDataKey(ctx context.Context, purpose string) (*DataKey, error) {
	if !em.useKMS {
		return generateLocalKey()
	}

	result, err := em.kmsClient.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:             aws.String(em.kmsKeyID),
		KeySpec:           types.DataKeySpecAes256,
		EncryptionContext: map[string]string{"purpose": purpose},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}

	return &DataKey{
		Plaintext:  result.Plaintext,
		Ciphertext: result.CiphertextBlob,
		KeyID:      aws.ToString(result.KeyId),
	}, nil
}

func generateLocalKey() (*DataKey, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return &DataKey{
		Plaintext:  key,
		Ciphertext: key,
		KeyID:      localKeyID,
	}, nil
}

// SealPayload encrypts payload bound to aad (the session id) and returns the
// JSON encoded envelope.
func (em *EncryptionManager) SealPayload(ctx context.Context, payload []byte, aad string) ([]byte, error) {
	dataKey, err := em.GenerateDataKey(ctx, "proof-payload")
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(dataKey.Plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	ciphertext := gcm.Seal(nonce, nonce, payload, []byte(aad))

	env := EncryptedData{
		EncryptedValue: base64.StdEncoding.EncodeToString(ciphertext),
		EncryptedDEK:   base64.StdEncoding.EncodeToString(dataKey.Ciphertext),
		KeyID:          dataKey.KeyID,
		Version:        "v1",
		CreatedAt:      time.Now().UTC(),
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return out, nil
}

// OpenPayload reverses SealPayload. aad must match the value used to seal.
func (em *EncryptionManager) OpenPayload(ctx context.Context, sealed []byte, aad string) ([]byte, error) {
	var env EncryptedData
	if err := json.Unmarshal(sealed, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid envelope", ErrDecryptionFailed)
	}

	key, err := em.dataKeyFor(ctx, &env)
	if err != nil {
		return nil, err
	}

	ciphertext, err := base64.StdEncoding.DecodeString(env.EncryptedValue)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ciphertext format", ErrDecryptionFailed)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	nonce, body := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, body, []byte(aad))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

func (em *EncryptionManager) dataKeyFor(ctx context.Context, env *EncryptedData) ([]byte, error) {
	if cached, ok := em.cachedKey(env.EncryptedDEK); ok {
		return cached, nil
	}

	var plaintextDEK []byte
	if env.KeyID != localKeyID {
		if !em.useKMS {
			return nil, fmt.Errorf("%w: payload sealed with KMS key %s but KMS is disabled", ErrDecryptionFailed, env.KeyID)
		}
		blob, err := base64.StdEncoding.DecodeString(env.EncryptedDEK)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid DEK format", ErrDecryptionFailed)
		}
		result, err := em.kmsClient.Decrypt(ctx, &kms.DecryptInput{
			CiphertextBlob:    blob,
			EncryptionContext: map[string]string{"purpose": "proof-payload"},
		})
		if err != nil {
			util.Error("KMS decrypt failed", zap.String("key_id", env.KeyID), zap.Error(err))
			return nil, fmt.Errorf("%w: failed to decrypt DEK: %v", ErrDecryptionFailed, err)
		}
		plaintextDEK = result.Plaintext
	} else {
		var err error
		plaintextDEK, err = base64.StdEncoding.DecodeString(env.EncryptedDEK)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid local DEK", ErrDecryptionFailed)
		}
	}

	em.cacheKey(env.EncryptedDEK, plaintextDEK)
	return plaintextDEK, nil
}

func (em *EncryptionManager) cachedKey(encryptedDEK string) ([]byte, bool) {
	em.cacheMu.Lock()
	defer em.cacheMu.Unlock()
	key, ok := em.keyCache[encryptedDEK]
	return key, ok
}

func (em *EncryptionManager) cacheKey(encryptedDEK string, plaintext []byte) {
	em.cacheMu.Lock()
	defer em.cacheMu.Unlock()
	if _, ok := em.keyCache[encryptedDEK]; ok {
		return
	}
	for len(em.keyOrder) >= maxCachedKeys {
		delete(em.keyCache, em.keyOrder[0])
		em.keyOrder = em.keyOrder[1:]
	}
	em.keyCache[encryptedDEK] = plaintext
	em.keyOrder = append(em.keyOrder, encryptedDEK)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// ClearCache drops cached plaintext data keys.
func (em *EncryptionManager) ClearCache() {
	em.cacheMu.Lock()
	defer em.cacheMu.Unlock()
	em.keyCache = make(map[string][]byte)
	em.keyOrder = nil
}

func (em *EncryptionManager) CacheSize() int {
	em.cacheMu.Lock()
	defer em.cacheMu.Unlock()
	return len(em.keyCache)
}
