package hashing

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

var ErrKeyTooLong = errors.New("digest key longer than 64 bytes")

// Digester fingerprints proof payloads. With a key the digest is a MAC, so a
// leaked digest column cannot be matched against guessed payloads.
type Digester struct {
	key []byte
}

func NewDigester(key string) (*Digester, error) {
	if len(key) > blake2b.Size {
		return nil, ErrKeyTooLong
	}
	var k []byte
	if key != "" {
		k = []byte(key)
	}
	return &Digester{key: k}, nil
}

func (d *Digester) Keyed() bool { return len(d.key) > 0 }

// Digest returns the hex blake2b-256 of payload.
func (d *Digester) Digest(payload []byte) (string, error) {
	h, err := blake2b.New256(d.key)
	if err != nil {
		return "", fmt.Errorf("failed to init blake2b: %w", err)
	}
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Matches reports whether payload hashes to digest, in constant time.
func (d *Digester) Matches(payload []byte, digest string) bool {
	got, err := d.Digest(payload)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(digest)) == 1
}
