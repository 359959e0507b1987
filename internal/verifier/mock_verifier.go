package verifier

import (
	"context"
	"math/rand/v2"
	"time"

	"zksteam-api/internal/models"
)

// MockVerifier simulates Reclaim verification for local development. It
// succeeds with probability successRate after latency.
type MockVerifier struct {
	successRate float64
	latency     time.Duration
	random      func() float64
}

type MockOption func(*MockVerifier)

// WithRandom replaces the [0,1) source. Tests use it to force an outcome.
func WithRandom(f func() float64) MockOption {
	return func(m *MockVerifier) { m.random = f }
}

func NewMockVerifier(successRate float64, latency time.Duration, opts ...MockOption) *MockVerifier {
	m := &MockVerifier{
		successRate: successRate,
		latency:     latency,
		random:      rand.Float64,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MockVerifier) Verify(ctx context.Context, _ models.ProofInput) (Outcome, error) {
	if m.latency > 0 {
		t := time.NewTimer(m.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case <-t.C:
		}
	}

	if m.random() >= 1-m.successRate {
		return Outcome{Valid: true, Reason: ReasonMockVerified}, nil
	}
	return Outcome{Valid: false, Reason: ReasonMockRejected}, nil
}
