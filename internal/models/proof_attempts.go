package models

import "time"

// ProofAttempt is an append-only log row for a verification that did not
// produce a proof record. Never consulted by duplicate detection.
type ProofAttempt struct {
	ID            string      `json:"id" db:"id"`
	SessionID     string      `json:"sessionId,omitempty" db:"session_id"`
	Provider      string      `json:"provider" db:"provider"`
	Status        ProofStatus `json:"status" db:"status"`
	Reason        string      `json:"reason" db:"reason"`
	PayloadDigest string      `json:"payloadDigest,omitempty" db:"payload_digest"`
	CreatedAt     time.Time   `json:"createdAt" db:"created_at"`
}
