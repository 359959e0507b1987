package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"zksteam-api/internal/config"
	"zksteam-api/internal/encryption"
	"zksteam-api/internal/hashing"
	"zksteam-api/internal/models"
	"zksteam-api/internal/repository"
	"zksteam-api/internal/util"
	"zksteam-api/internal/verifier"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrDuplicateProof = errors.New("proof already verified")
	ErrProofNotFound  = errors.New("proof not found")
	ErrUnknownSession = errors.New("unknown or expired proof session")
	ErrProverFailed   = errors.New("steam proof generation failed")
	ErrRequestFailed  = errors.New("proof request creation failed")
	ErrMockDisabled   = errors.New("mock endpoints are disabled")

	ErrPayloadUnavailable = errors.New("proof payload not stored")
	ErrPayloadCorrupted   = errors.New("stored proof payload does not match its digest")
)

const (
	ReasonMissingPayload    = "missing-payload"
	ReasonVerificationError = "verification-error"

	ModeMock = "mock"
	ModeReal = "real"

	MockRequestURL  = "https://reclaim.example/mock"
	mockOwnerSteam  = "STEAM_TEST"
	defaultProvider = "steam"
)

// DuplicateProofError is returned when the session already has a verified
// proof, either found upfront or lost on the insert race.
type DuplicateProofError struct {
	SessionID string
}

func (e *DuplicateProofError) Error() string {
	return fmt.Sprintf("proof already verified for session %s", e.SessionID)
}

func (e *DuplicateProofError) Is(target error) bool { return target == ErrDuplicateProof }

type VerificationDetails struct {
	Timestamp int64  `json:"timestamp,omitempty"`
	Provider  string `json:"provider,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Error     string `json:"error,omitempty"`
}

type VerificationResult struct {
	Verified bool                 `json:"verified"`
	Reason   string               `json:"reason"`
	Details  *VerificationDetails `json:"details,omitempty"`
}

type ProofRequestResult struct {
	Mode       string `json:"mode"`
	RequestURL string `json:"requestUrl"`
	SessionID  string `json:"sessionId"`
	ExpiresAt  int64  `json:"expiresAt,omitempty"`
}

type SteamProofResult struct {
	Success     bool            `json:"success"`
	Mode        string          `json:"mode"`
	Proof       json.RawMessage `json:"proof"`
	SteamID     string          `json:"steamId,omitempty"`
	TargetAppID string          `json:"targetAppId,omitempty"`
	Timestamp   int64           `json:"timestamp"`
}

// EventPublisher receives proof lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, ev models.ProofEvent) error
}

type ProofServiceDeps struct {
	Repo       repository.ProofRepository
	Sessions   repository.SessionStore
	Verifier   verifier.Verifier
	Requests   verifier.RequestCreator
	Prover     verifier.Prover
	Encryption *encryption.EncryptionManager
	Digester   *hashing.Digester
	Events     EventPublisher
	Config     config.ZKPConfig
	Logger     *zap.Logger
}

// ProofService owns proof requests and the verification gate. A session is
// verified at most once; the repository's unique constraint on session id is
// the final authority.
type ProofService struct {
	repo       repository.ProofRepository
	sessions   repository.SessionStore
	verifier   verifier.Verifier
	requests   verifier.RequestCreator
	prover     verifier.Prover
	encryption *encryption.EncryptionManager
	digester   *hashing.Digester
	events     EventPublisher
	cfg        config.ZKPConfig
	logger     *zap.Logger
	now        func() time.Time
}

func NewProofService(deps ProofServiceDeps) *ProofService {
	logger := deps.Logger
	if logger == nil {
		logger = util.Named("proof_service")
	}
	digester := deps.Digester
	if digester == nil {
		digester, _ = hashing.NewDigester("")
	}
	if deps.Config.VerifyTimeout <= 0 {
		deps.Config.VerifyTimeout = 15 * time.Second
	}
	if deps.Config.RequestTTL <= 0 {
		deps.Config.RequestTTL = 5 * time.Minute
	}
	return &ProofService{
		repo:       deps.Repo,
		sessions:   deps.Sessions,
		verifier:   deps.Verifier,
		requests:   deps.Requests,
		prover:     deps.Prover,
		encryption: deps.Encryption,
		digester:   digester,
		events:     deps.Events,
		cfg:        deps.Config,
		logger:     logger,
		now:        time.Now,
	}
}

// CreateProofRequest issues a session the client later submits with its proof.
// Mock mode, or no provider, yields a local mock session.
func (s *ProofService) CreateProofRequest(ctx context.Context, req *CreateProofRequestRequest) (*ProofRequestResult, error) {
	if req == nil {
		req = &CreateProofRequestRequest{}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	providerID := req.ProviderID
	if providerID == "" {
		providerID = s.cfg.ProviderID
	}

	now := s.now()
	expiresAt := now.Add(s.cfg.RequestTTL)
	result := &ProofRequestResult{ExpiresAt: expiresAt.UnixMilli()}

	if s.cfg.Mock || providerID == "" || s.requests == nil {
		result.Mode = ModeMock
		result.RequestURL = MockRequestURL
		result.SessionID = "mock-session-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	} else {
		issued, err := s.requests.CreateRequest(ctx, providerID, map[string]any{})
		if err != nil {
			s.logger.Error("Failed to create proof request",
				util.String("provider_id", providerID), util.ErrorField(err))
			return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
		}
		result.Mode = ModeReal
		result.RequestURL = issued.RequestURL
		result.SessionID = issued.SessionID
	}

	if s.sessions != nil {
		pending := &models.PendingSession{
			SessionID:  result.SessionID,
			ProviderID: providerID,
			Mode:       result.Mode,
			RequestURL: result.RequestURL,
			ExpiresAt:  expiresAt,
			CreatedAt:  now,
		}
		if err := s.sessions.SavePending(ctx, pending, s.cfg.RequestTTL); err != nil {
			if s.cfg.RequireIssuedSession {
				return nil, fmt.Errorf("failed to store pending session: %w", err)
			}
			s.logger.Warn("Failed to store pending session",
				util.String("session_id", result.SessionID), util.ErrorField(err))
		}
	}

	s.emit(ctx, models.ProofEvent{
		EventType: models.ProofEventRequested,
		SessionID: result.SessionID,
		Provider:  providerID,
		Reason:    result.Mode,
	})

	s.logger.Info("Proof request created",
		util.String("session_id", result.SessionID),
		util.String("mode", result.Mode))
	return result, nil
}

// VerifyProof runs the idempotency gate. Verifier faults come back as a
// verification-error result; only duplicates and infrastructure faults are
// returned as errors.
func (s *ProofService) VerifyProof(ctx context.Context, req *VerifyProofRequest) (*VerificationResult, error) {
	if req == nil {
		req = &VerifyProofRequest{}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	in := models.ProofInput{
		SessionID: req.SessionID,
		Provider:  req.Provider,
		Payload:   req.Payload,
	}
	if in.Provider == "" {
		in.Provider = defaultProvider
	}

	if !in.HasPayload() {
		s.logger.Warn("Proof payload missing", util.String("session_id", in.SessionID))
		return &VerificationResult{
			Verified: false,
			Reason:   ReasonMissingPayload,
			Details:  &VerificationDetails{Error: "Proof payload is required"},
		}, nil
	}

	if in.SessionID != "" {
		existing, err := s.repo.FindBySessionID(ctx, in.SessionID)
		switch {
		case err == nil && existing != nil:
			s.emitDuplicate(ctx, in)
			return nil, &DuplicateProofError{SessionID: in.SessionID}
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("failed to check existing proof: %w", err)
		}
	}

	if s.cfg.RequireIssuedSession {
		if err := s.checkIssued(ctx, in.SessionID); err != nil {
			return nil, err
		}
	}

	start := s.now()
	vctx, cancel := context.WithTimeout(ctx, s.cfg.VerifyTimeout)
	outcome, verr := s.verifier.Verify(vctx, in)
	cancel()

	details := &VerificationDetails{
		Timestamp: s.now().UnixMilli(),
		Provider:  in.Provider,
		SessionID: in.SessionID,
	}

	if verr != nil {
		s.logger.Warn("Proof verification errored",
			util.String("session_id", in.SessionID),
			util.Duration("duration", s.now().Sub(start)),
			util.ErrorField(verr))
		details.Error = verr.Error()
		result := &VerificationResult{Verified: false, Reason: ReasonVerificationError, Details: details}
		s.recordRejected(ctx, in, result.Reason)
		s.emit(ctx, models.ProofEvent{
			EventType: models.ProofEventError,
			SessionID: in.SessionID,
			Provider:  in.Provider,
			Reason:    result.Reason,
		})
		return result, nil
	}

	result := &VerificationResult{Verified: outcome.Valid, Reason: outcome.Reason, Details: details}
	if !outcome.Valid {
		s.recordRejected(ctx, in, outcome.Reason)
		s.emit(ctx, models.ProofEvent{
			EventType: models.ProofEventRejected,
			SessionID: in.SessionID,
			Provider:  in.Provider,
			Reason:    outcome.Reason,
		})
		return result, nil
	}

	rec, err := s.persistVerified(ctx, in)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateSession) {
			s.emitDuplicate(ctx, in)
			return nil, &DuplicateProofError{SessionID: in.SessionID}
		}
		return nil, err
	}

	if in.SessionID != "" && s.sessions != nil {
		if err := s.sessions.DeletePending(ctx, in.SessionID); err != nil {
			s.logger.Warn("Failed to clear pending session",
				util.String("session_id", in.SessionID), util.ErrorField(err))
		}
	}

	s.emit(ctx, models.ProofEvent{
		EventType: models.ProofEventVerified,
		SessionID: in.SessionID,
		Provider:  in.Provider,
		ProofID:   rec.ID,
		Verified:  true,
		Reason:    outcome.Reason,
	})

	s.logger.Info("Proof verified",
		util.String("session_id", in.SessionID),
		util.String("proof_id", rec.ID),
		util.Duration("duration", s.now().Sub(start)))
	return result, nil
}

func (s *ProofService) checkIssued(ctx context.Context, sessionID string) error {
	if sessionID == "" || s.sessions == nil {
		return ErrUnknownSession
	}
	pending, err := s.sessions.GetPending(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUnknownSession
		}
		return fmt.Errorf("failed to load pending session: %w", err)
	}
	if pending == nil || s.now().After(pending.ExpiresAt) {
		return ErrUnknownSession
	}
	return nil
}

func (s *ProofService) persistVerified(ctx context.Context, in models.ProofInput) (*models.ProofRecord, error) {
	ownerKey := in.SessionID
	if ownerKey == "" {
		ownerKey = "unknown"
	}
	owner, err := s.repo.UpsertOwnerAccount(ctx, "STEAM_"+ownerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert owner account: %w", err)
	}

	rec := &models.ProofRecord{
		ID:             uuid.NewString(),
		SessionID:      in.SessionID,
		Provider:       in.Provider,
		Status:         models.ProofStatusVerified,
		OwnerAccountID: owner.ID,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.sealPayload(ctx, rec, in.Payload); err != nil {
		return nil, err
	}

	if err := s.repo.CreateProof(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrDuplicateSession) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to persist proof: %w", err)
	}
	return rec, nil
}

func (s *ProofService) sealPayload(ctx context.Context, rec *models.ProofRecord, payload []byte) error {
	digest, err := s.digester.Digest(payload)
	if err != nil {
		return err
	}
	rec.PayloadDigest = digest

	if s.encryption == nil {
		return nil
	}
	sealed, err := s.encryption.SealPayload(ctx, payload, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to encrypt proof payload: %w", err)
	}
	rec.EncryptedPayload = sealed
	return nil
}

// recordRejected appends to the attempts log. The verdict is already decided,
// so a failed write is logged, not returned.
func (s *ProofService) recordRejected(ctx context.Context, in models.ProofInput, reason string) {
	digest, _ := s.digester.Digest(in.Payload)
	attempt := &models.ProofAttempt{
		ID:            uuid.NewString(),
		SessionID:     in.SessionID,
		Provider:      in.Provider,
		Status:        models.ProofStatusRejected,
		Reason:        reason,
		PayloadDigest: digest,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.repo.RecordAttempt(ctx, attempt); err != nil {
		s.logger.Warn("Failed to record rejected attempt",
			util.String("session_id", in.SessionID),
			util.String("reason", reason),
			util.ErrorField(err))
	}
}

func (s *ProofService) GetProof(ctx context.Context, sessionID string) (*models.ProofRecord, error) {
	if !util.IsSafeIdentifier(sessionID) {
		return nil, fmt.Errorf("%w: malformed session id", ErrInvalidInput)
	}
	rec, err := s.repo.FindBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProofNotFound
		}
		return nil, fmt.Errorf("failed to load proof: %w", err)
	}
	return rec, nil
}

// GetProofPayload decrypts the payload stored with the session's proof and
// checks it against the recorded digest before returning it.
func (s *ProofService) GetProofPayload(ctx context.Context, sessionID string) (json.RawMessage, error) {
	rec, err := s.GetProof(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(rec.EncryptedPayload) == 0 || s.encryption == nil {
		return nil, ErrPayloadUnavailable
	}

	payload, err := s.encryption.OpenPayload(ctx, rec.EncryptedPayload, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt proof payload: %w", err)
	}
	if !s.digester.Matches(payload, rec.PayloadDigest) {
		s.logger.Error("Stored proof payload failed digest check",
			util.String("session_id", sessionID),
			util.String("proof_id", rec.ID))
		return nil, ErrPayloadCorrupted
	}
	return payload, nil
}

// InsertMockProof stores a verified proof for the STEAM_TEST account without
// a session id.
func (s *ProofService) InsertMockProof(ctx context.Context) (string, error) {
	if !s.cfg.Mock {
		return "", ErrMockDisabled
	}
	owner, err := s.repo.UpsertOwnerAccount(ctx, mockOwnerSteam)
	if err != nil {
		return "", fmt.Errorf("failed to upsert owner account: %w", err)
	}
	rec := &models.ProofRecord{
		ID:             uuid.NewString(),
		Provider:       defaultProvider,
		Status:         models.ProofStatusVerified,
		OwnerAccountID: owner.ID,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.sealPayload(ctx, rec, []byte(`{"mock":true,"inserted":true}`)); err != nil {
		return "", err
	}
	if err := s.repo.CreateProof(ctx, rec); err != nil {
		return "", fmt.Errorf("failed to persist mock proof: %w", err)
	}
	return rec.ID, nil
}

// OwnedAppsPattern matches a Steam userdata body whose rgOwnedApps array
// contains appID, or any rgOwnedApps array when appID is empty.
func OwnedAppsPattern(appID string) string {
	pattern := `"rgOwnedApps":\s*\[[^\]]*`
	if appID != "" {
		pattern += `\b` + regexp.QuoteMeta(appID) + `\b`
	}
	return pattern + `[^\]]*\]`
}

// CreateSteamProof asks the prover to attest Steam app ownership. A prover
// failure is returned as ErrProverFailed; no placeholder proof is produced.
func (s *ProofService) CreateSteamProof(ctx context.Context, req *SteamProofRequest) (*SteamProofResult, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: empty request", ErrInvalidInput)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	if s.cfg.Mock {
		proof, err := json.Marshal(map[string]any{
			"sessionId":   "mock-session-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
			"steamId":     req.SteamID,
			"targetAppId": req.TargetAppID,
			"timestamp":   now.UnixMilli(),
			"verified":    true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode mock proof: %w", err)
		}
		return &SteamProofResult{Success: true, Mode: ModeMock, Proof: proof, Timestamp: now.UnixMilli()}, nil
	}

	if s.prover == nil {
		return nil, fmt.Errorf("%w: no prover configured", ErrProverFailed)
	}

	headers := map[string]string{"Accept": "application/json"}
	if req.CookieStr != "" {
		headers["Cookie"] = req.CookieStr
	}
	proof, err := s.prover.ZKFetch(ctx, verifier.ZKFetchRequest{
		URL:     req.UserDataURL,
		Method:  "GET",
		Headers: headers,
		ResponseMatches: []verifier.ResponseMatch{
			{Type: "regex", Value: OwnedAppsPattern(req.TargetAppID)},
		},
	})
	if err != nil {
		s.logger.Error("Steam proof generation failed",
			util.String("steam_id", req.SteamID), util.ErrorField(err))
		return nil, fmt.Errorf("%w: %v", ErrProverFailed, err)
	}

	return &SteamProofResult{
		Success:     true,
		Mode:        ModeReal,
		Proof:       proof,
		SteamID:     req.SteamID,
		TargetAppID: req.TargetAppID,
		Timestamp:   now.UnixMilli(),
	}, nil
}

func (s *ProofService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}

func (s *ProofService) emitDuplicate(ctx context.Context, in models.ProofInput) {
	s.emit(ctx, models.ProofEvent{
		EventType: models.ProofEventDuplicate,
		SessionID: in.SessionID,
		Provider:  in.Provider,
	})
}

// emit publishes on a detached context so a client disconnect does not drop
// the audit trail of an outcome that already happened.
func (s *ProofService) emit(ctx context.Context, ev models.ProofEvent) {
	if s.events == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := s.events.Publish(pctx, ev); err != nil {
		s.logger.Warn("Failed to publish proof event",
			util.String("event_type", string(ev.EventType)),
			util.String("session_id", ev.SessionID),
			util.ErrorField(err))
	}
}
