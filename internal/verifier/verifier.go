package verifier

import (
	"context"
	"encoding/json"

	"zksteam-api/internal/models"
)

//go:generate mockgen -destination=../mocks/mock_verifier.go -package=mocks zksteam-api/internal/verifier Verifier,RequestCreator,Prover

const (
	ReasonMockVerified = "mock-verified"
	ReasonMockRejected = "mock-rejected"
	ReasonVerified     = "verified"
	ReasonInvalidProof = "invalid-proof"
)

// Outcome is a verifier's judgement on a payload. Reason is one of the
// Reason* constants.
type Outcome struct {
	Valid  bool
	Reason string
}

// Verifier checks a proof payload. An error means the verifier could not
// reach a judgement, not that the proof is invalid.
type Verifier interface {
	Verify(ctx context.Context, in models.ProofInput) (Outcome, error)
}

type ProofRequest struct {
	RequestURL string `json:"requestUrl"`
	SessionID  string `json:"sessionId"`
}

// RequestCreator issues proof requests against the Reclaim backend.
type RequestCreator interface {
	CreateRequest(ctx context.Context, providerID string, reqContext map[string]any) (ProofRequest, error)
}

type ResponseMatch struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ZKFetchRequest asks the prover to fetch URL and attest that the response
// satisfies every match.
type ZKFetchRequest struct {
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	Headers         map[string]string `json:"headers,omitempty"`
	ResponseMatches []ResponseMatch   `json:"responseMatches"`
}

// Prover produces zk-fetch proofs.
type Prover interface {
	ZKFetch(ctx context.Context, req ZKFetchRequest) (json.RawMessage, error)
}
