package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"zksteam-api/internal/ratelimit"
	"zksteam-api/internal/service"
	"zksteam-api/internal/util"
)

const maxBodyBytes = 1 << 20

const (
	requestLimitMessage = "Too many proof requests"
	verifyLimitMessage  = "Too many verification attempts"
)

// RouteLimits are the limiters guarding the proof routes. Both mounts of the
// router share these instances, so /zkp and /api/zkp draw from one quota.
type RouteLimits struct {
	Request *ratelimit.Limiter
	Verify  *ratelimit.Limiter
	Steam   *ratelimit.Limiter
	KeyFunc ratelimit.KeyFunc
	Stats   ratelimit.StatsStore
}

// ProofHandler handles HTTP requests for proof operations
type ProofHandler struct {
	proofService *service.ProofService
	limits       RouteLimits
	counters     *ratelimit.MemoryStatsStore
	mockMode     bool
	logger       *zap.Logger

	requestLimit func(http.Handler) http.Handler
	verifyLimit  func(http.Handler) http.Handler
	steamLimit   func(http.Handler) http.Handler
}

// NewProofHandler creates a new proof handler. counters backs /zkp/stats and
// may be nil.
func NewProofHandler(proofService *service.ProofService, limits RouteLimits, counters *ratelimit.MemoryStatsStore, mockMode bool, logger *zap.Logger) *ProofHandler {
	if limits.Steam == nil {
		limits.Steam = limits.Request
	}
	h := &ProofHandler{
		proofService: proofService,
		limits:       limits,
		counters:     counters,
		mockMode:     mockMode,
		logger:       logger,
	}
	h.requestLimit = h.limitWith(limits.Request, requestLimitMessage)
	h.verifyLimit = h.limitWith(limits.Verify, verifyLimitMessage)
	h.steamLimit = h.limitWith(limits.Steam, requestLimitMessage)
	return h
}

func (h *ProofHandler) limitWith(l *ratelimit.Limiter, message string) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return ratelimit.Middleware(l, ratelimit.Options{
		Message: message,
		KeyFunc: h.limits.KeyFunc,
		Stats:   h.limits.Stats,
	})
}

type errorBody struct {
	Error     string            `json:"error"`
	Message   string            `json:"message,omitempty"`
	SessionID string            `json:"sessionId,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// RegisterRoutes registers all proof routes
func (h *ProofHandler) RegisterRoutes(router chi.Router) {
	router.With(h.requestLimit).Post("/request", h.CreateProofRequest)
	router.With(h.verifyLimit).Post("/verify", h.VerifyProof)
	router.With(h.steamLimit).Post("/steam/proof", h.CreateSteamProof)
	router.Get("/proofs/{sessionId}", h.GetProof)
	router.Get("/proofs/{sessionId}/payload", h.GetProofPayload)
	router.Get("/stats", h.GetStats)

	if h.mockMode {
		router.Post("/test/mock", h.InsertMockProof)
	}
}

// CreateProofRequest handles POST /zkp/request. An empty body is allowed.
func (h *ProofHandler) CreateProofRequest(w http.ResponseWriter, r *http.Request) {
	var req service.CreateProofRequestRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		h.respondWithJSON(w, http.StatusBadRequest, errorBody{
			Error:   "Invalid request",
			Details: map[string]string{"body": err.Error()},
		})
		return
	}

	res, err := h.proofService.CreateProofRequest(r.Context(), &req)
	if err != nil {
		h.respondWithError(w, err, "Failed to create proof request")
		return
	}
	h.respondWithJSON(w, http.StatusOK, res)
}

// VerifyProof handles POST /zkp/verify
func (h *ProofHandler) VerifyProof(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req service.VerifyProofRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		h.respondWithJSON(w, http.StatusBadRequest, errorBody{
			Error:   "Invalid proof format",
			Details: map[string]string{"body": err.Error()},
		})
		return
	}

	res, err := h.proofService.VerifyProof(r.Context(), &req)
	if err != nil {
		var dup *service.DuplicateProofError
		var verr *service.ValidationError
		switch {
		case errors.As(err, &dup):
			h.respondWithJSON(w, http.StatusConflict, errorBody{
				Error:     "Proof already verified",
				SessionID: dup.SessionID,
			})
		case errors.As(err, &verr):
			h.respondWithJSON(w, http.StatusBadRequest, errorBody{
				Error:   "Invalid proof format",
				Details: verr.Details,
			})
		default:
			h.respondWithError(w, err, "Verification failed")
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, res)
	h.logger.Info("Proof verification handled",
		util.String("session_id", req.SessionID),
		util.Bool("verified", res.Verified),
		util.String("reason", res.Reason),
		util.Duration("duration", time.Since(startTime)))
}

// CreateSteamProof handles POST /zkp/steam/proof
func (h *ProofHandler) CreateSteamProof(w http.ResponseWriter, r *http.Request) {
	var req service.SteamProofRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		h.respondWithJSON(w, http.StatusBadRequest, errorBody{
			Error:   "Invalid request",
			Details: map[string]string{"body": err.Error()},
		})
		return
	}

	res, err := h.proofService.CreateSteamProof(r.Context(), &req)
	if err != nil {
		h.respondWithError(w, err, "Failed to create Steam proof")
		return
	}
	h.respondWithJSON(w, http.StatusOK, res)
}

// GetProof handles GET /zkp/proofs/{sessionId}
func (h *ProofHandler) GetProof(w http.ResponseWriter, r *http.Request) {
	rec, err := h.proofService.GetProof(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.respondWithError(w, err, "Failed to load proof")
		return
	}
	h.respondWithJSON(w, http.StatusOK, rec)
}

// GetProofPayload handles GET /zkp/proofs/{sessionId}/payload
func (h *ProofHandler) GetProofPayload(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	payload, err := h.proofService.GetProofPayload(r.Context(), sessionID)
	if err != nil {
		h.respondWithError(w, err, "Failed to load proof payload")
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{"sessionId": sessionID, "payload": payload})
}

// InsertMockProof handles POST /zkp/test/mock
func (h *ProofHandler) InsertMockProof(w http.ResponseWriter, r *http.Request) {
	id, err := h.proofService.InsertMockProof(r.Context())
	if err != nil {
		h.respondWithError(w, err, "Failed to insert mock proof")
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "proofId": id})
}

type limitInfo struct {
	Limit         int     `json:"limit"`
	WindowSeconds float64 `json:"windowSeconds"`
}

// GetStats handles GET /zkp/stats
func (h *ProofHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	limits := make(map[string]limitInfo)
	for _, l := range []*ratelimit.Limiter{h.limits.Request, h.limits.Verify, h.limits.Steam} {
		if l != nil {
			limits[l.Name()] = limitInfo{Limit: l.Limit(), WindowSeconds: l.Window().Seconds()}
		}
	}

	body := map[string]interface{}{"limits": limits}
	if h.counters != nil {
		body["total"] = h.counters.Total()
		body["byLimiter"] = h.counters.ByLimiter()
	}
	h.respondWithJSON(w, http.StatusOK, body)
}

// Helper Methods

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil
	}
	return err
}

// respondWithJSON sends a JSON response
func (h *ProofHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError maps err to a status code and writes the error body
func (h *ProofHandler) respondWithError(w http.ResponseWriter, err error, message string) {
	statusCode := h.getStatusCode(err)

	body := errorBody{Error: message, Message: err.Error()}
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		body = errorBody{Error: "Invalid request", Details: verr.Details}
	case statusCode == http.StatusNotFound:
		body = errorBody{Error: err.Error()}
	}

	if statusCode >= http.StatusInternalServerError {
		h.logger.Error("HTTP error response",
			util.ErrorField(err),
			util.Int("status_code", statusCode),
			util.String("message", message))
	} else {
		h.logger.Warn("HTTP error response",
			util.ErrorField(err),
			util.Int("status_code", statusCode),
			util.String("message", message))
	}
	h.respondWithJSON(w, statusCode, body)
}

// getStatusCode determines the appropriate HTTP status code for an error
func (h *ProofHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrUnknownSession):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrProofNotFound), errors.Is(err, service.ErrMockDisabled),
		errors.Is(err, service.ErrPayloadUnavailable):
		return http.StatusNotFound
	case errors.Is(err, service.ErrDuplicateProof):
		return http.StatusConflict
	case errors.Is(err, service.ErrProverFailed), errors.Is(err, service.ErrRequestFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
