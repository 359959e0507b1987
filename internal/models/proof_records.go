package models

import (
	"encoding/json"
	"time"
)

type ProofStatus string

const (
	ProofStatusPending  ProofStatus = "pending"
	ProofStatusVerified ProofStatus = "verified"
	ProofStatusRejected ProofStatus = "rejected"
)

// ProofInput is what a client submits for verification. A nil or JSON null
// Payload means the payload is missing.
type ProofInput struct {
	SessionID string          `json:"sessionId,omitempty"`
	Provider  string          `json:"provider"`
	Payload   json.RawMessage `json:"payload"`
}

// HasPayload reports whether the payload is present and not JSON null.
func (in ProofInput) HasPayload() bool {
	if len(in.Payload) == 0 {
		return false
	}
	return string(in.Payload) != "null"
}

// ProofRecord is a persisted verified proof. SessionID is unique when set.
type ProofRecord struct {
	ID               string      `json:"id" db:"id"`
	SessionID        string      `json:"sessionId,omitempty" db:"session_id"`
	Provider         string      `json:"provider" db:"provider"`
	Status           ProofStatus `json:"status" db:"status"`
	OwnerAccountID   string      `json:"ownerAccountId" db:"owner_account_id"`
	PayloadDigest    string      `json:"payloadDigest" db:"payload_digest"` // hex blake2b-256 of the raw payload
	EncryptedPayload []byte      `json:"-" db:"encrypted_payload"`
	CreatedAt        time.Time   `json:"createdAt" db:"created_at"`
}
