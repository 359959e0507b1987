package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"zksteam-api/internal/config"
	"zksteam-api/internal/models"
)

const maxErrorBody = 512

var ErrReclaimUnavailable = errors.New("reclaim service unavailable")

// ReclaimClient talks to the Reclaim bridge over HTTP. It implements Verifier,
// RequestCreator and Prover. All outbound calls share one token bucket.
type ReclaimClient struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	appID       string
	appSecret   string
	apiURL      string
	verifierURL string
	proverURL   string
	logger      *zap.Logger
}

func NewReclaimClient(cfg *config.Config, logger *zap.Logger) *ReclaimClient {
	rps := cfg.ZKP.OutboundRPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.ZKP.OutboundBurst
	if burst <= 0 {
		burst = 1
	}
	return &ReclaimClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		limiter:     rate.NewLimiter(rate.Limit(rps), burst),
		appID:       cfg.ZKP.AppID,
		appSecret:   cfg.ZKP.AppSecret,
		apiURL:      strings.TrimRight(cfg.ZKP.APIURL, "/"),
		verifierURL: strings.TrimRight(firstNonEmpty(cfg.ZKP.VerifierURL, cfg.ZKP.APIURL), "/"),
		proverURL:   strings.TrimRight(firstNonEmpty(cfg.ZKP.ProverURL, cfg.ZKP.APIURL), "/"),
		logger:      logger.Named("reclaim"),
	}
}

type verifyResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func (c *ReclaimClient) Verify(ctx context.Context, in models.ProofInput) (Outcome, error) {
	start := time.Now()

	var resp verifyResponse
	if err := c.post(ctx, c.verifierURL+"/v1/proofs/verify", map[string]any{"proof": in.Payload}, &resp); err != nil {
		c.logger.Warn("Reclaim verification failed",
			zap.String("session_id", in.SessionID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return Outcome{}, err
	}

	c.logger.Info("Reclaim verification completed",
		zap.String("session_id", in.SessionID),
		zap.Bool("valid", resp.Valid),
		zap.Duration("duration", time.Since(start)))

	if resp.Valid {
		return Outcome{Valid: true, Reason: ReasonVerified}, nil
	}
	return Outcome{Valid: false, Reason: ReasonInvalidProof}, nil
}

func (c *ReclaimClient) CreateRequest(ctx context.Context, providerID string, reqContext map[string]any) (ProofRequest, error) {
	if reqContext == nil {
		reqContext = map[string]any{}
	}
	body := map[string]any{
		"appId":      c.appID,
		"providerId": providerID,
		"context":    reqContext,
	}

	var out ProofRequest
	if err := c.post(ctx, c.apiURL+"/v1/proof-requests", body, &out); err != nil {
		return ProofRequest{}, err
	}
	if out.SessionID == "" || out.RequestURL == "" {
		return ProofRequest{}, fmt.Errorf("%w: incomplete proof request response", ErrReclaimUnavailable)
	}
	return out, nil
}

func (c *ReclaimClient) ZKFetch(ctx context.Context, req ZKFetchRequest) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.post(ctx, c.proverURL+"/v1/zkfetch", req, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 || string(out) == "null" {
		return nil, fmt.Errorf("%w: prover returned no proof", ErrReclaimUnavailable)
	}
	return out, nil
}

func (c *ReclaimClient) post(ctx context.Context, url string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("reclaim rate limiter: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode reclaim request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build reclaim request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Reclaim-App-Id", c.appID)
	req.Header.Set("Authorization", "Bearer "+c.appSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReclaimUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: %s returned %d: %s", ErrReclaimUnavailable, url, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode reclaim response: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var (
	_ Verifier       = (*ReclaimClient)(nil)
	_ RequestCreator = (*ReclaimClient)(nil)
	_ Prover         = (*ReclaimClient)(nil)
	_ Verifier       = (*MockVerifier)(nil)
)
