package models

import "time"

type ProofEventType string

const (
	ProofEventRequested ProofEventType = "proof.requested"
	ProofEventVerified  ProofEventType = "proof.verified"
	ProofEventRejected  ProofEventType = "proof.rejected"
	ProofEventDuplicate ProofEventType = "proof.duplicate"
	ProofEventError     ProofEventType = "proof.verification_error"
)

// ProofEvent is the audit record emitted to the event sinks.
type ProofEvent struct {
	EventID    string         `json:"eventId" ch:"event_id"`
	EventType  ProofEventType `json:"eventType" ch:"event_type"`
	SessionID  string         `json:"sessionId,omitempty" ch:"session_id"`
	Provider   string         `json:"provider,omitempty" ch:"provider"`
	ProofID    string         `json:"proofId,omitempty" ch:"proof_id"`
	Verified   bool           `json:"verified" ch:"verified"`
	Reason     string         `json:"reason,omitempty" ch:"reason"`
	OccurredAt time.Time      `json:"occurredAt" ch:"occurred_at"`
}
