package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"zksteam-api/internal/config"
	"zksteam-api/internal/encryption"
	"zksteam-api/internal/mocks"
	"zksteam-api/internal/models"
	"zksteam-api/internal/ratelimit"
	"zksteam-api/internal/repository"
	"zksteam-api/internal/repository/memory"
	"zksteam-api/internal/service"
	"zksteam-api/internal/verifier"
)

type testEnv struct {
	router   http.Handler
	counters *ratelimit.MemoryStatsStore
}

type envOptions struct {
	repo     repository.ProofRepository
	verifier verifier.Verifier
	prover   verifier.Prover
	mock     bool
	health   HealthReporter
	https    bool
	sealed   bool
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	if opts.repo == nil {
		opts.repo = memory.NewProofRepository()
	}
	if opts.verifier == nil {
		opts.verifier = verifier.NewMockVerifier(1, 0)
	}

	var enc *encryption.EncryptionManager
	if opts.sealed {
		enc = encryption.NewEncryptionManager(&config.Config{}, nil)
	}

	svc := service.NewProofService(service.ProofServiceDeps{
		Repo:       opts.repo,
		Sessions:   memory.NewSessionStore(),
		Verifier:   opts.verifier,
		Prover:     opts.prover,
		Encryption: enc,
		Config: config.ZKPConfig{
			Mock:          opts.mock,
			VerifyTimeout: time.Second,
			RequestTTL:    5 * time.Minute,
		},
		Logger: zap.NewNop(),
	})

	counters := ratelimit.NewMemoryStatsStore()
	limits := RouteLimits{
		Request: ratelimit.NewLimiter("proof_request", nil, time.Minute, 5),
		Verify:  ratelimit.NewLimiter("proof_verify", nil, time.Minute, 10),
		Steam:   ratelimit.NewLimiter("steam_proof", nil, time.Minute, 5),
		KeyFunc: ratelimit.DefaultKeyFunc("", false),
		Stats:   counters,
	}
	h := NewProofHandler(svc, limits, counters, opts.mock, zap.NewNop())
	router := NewRouter(h, opts.health, RouterOptions{RequireHTTPS: opts.https}, zap.NewNop())
	return &testEnv{router: router, counters: counters}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	r.RemoteAddr = "1.2.3.4:4321"
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestProofRequest_RateLimited(t *testing.T) {
	env := newTestEnv(t, envOptions{mock: true})

	for i := 1; i <= 5; i++ {
		w := env.do(http.MethodPost, "/zkp/request", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(5-i), w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
		assert.Empty(t, w.Header().Get("Retry-After"))

		body := decode(t, w)
		assert.Equal(t, "mock", body["mode"])
		assert.Equal(t, service.MockRequestURL, body["requestUrl"])
	}

	w := env.do(http.MethodPost, "/zkp/request", "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retryAfter, 1)
	assert.LessOrEqual(t, retryAfter, 60)

	body := decode(t, w)
	assert.Equal(t, "Too many proof requests", body["error"])

	// The /api mount shares the quota.
	w = env.do(http.MethodPost, "/api/zkp/request", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Verification has its own budget.
	w = env.do(http.MethodPost, "/zkp/verify", `{"sessionId":"s1","payload":{"mock":true}}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))

	assert.Equal(t, ratelimit.Counters{Allowed: 1, Denied: 0}, env.counters.ByLimiter()["proof_verify"])
	assert.Equal(t, ratelimit.Counters{Allowed: 5, Denied: 2}, env.counters.ByLimiter()["proof_request"])
}

func TestVerify_RepeatedSessionConflicts(t *testing.T) {
	ctrl := gomock.NewController(t)
	v := mocks.NewMockVerifier(ctrl)
	v.EXPECT().Verify(gomock.Any(), gomock.Any()).
		Return(verifier.Outcome{Valid: true, Reason: verifier.ReasonVerified}, nil).
		Times(1)

	env := newTestEnv(t, envOptions{verifier: v})
	body := `{"sessionId":"abc","provider":"steam","payload":{"mock":true}}`

	w := env.do(http.MethodPost, "/zkp/verify", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode(t, w)
	assert.Equal(t, true, first["verified"])
	assert.Equal(t, "verified", first["reason"])

	w = env.do(http.MethodPost, "/zkp/verify", body)
	require.Equal(t, http.StatusConflict, w.Code)
	second := decode(t, w)
	assert.Equal(t, "Proof already verified", second["error"])
	assert.Equal(t, "abc", second["sessionId"])
}

func TestVerify_Responses(t *testing.T) {
	testCases := []struct {
		name       string
		body       string
		wantStatus int
		check      func(t *testing.T, body map[string]interface{})
	}{
		{
			name:       "malformed_json",
			body:       `{"sessionId":`,
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "Invalid proof format", body["error"])
				assert.Contains(t, body["details"], "body")
			},
		},
		{
			name:       "empty_body",
			body:       "",
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "Invalid proof format", body["error"])
			},
		},
		{
			name:       "bad_session_id",
			body:       `{"sessionId":"a b","payload":{}}`,
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "Invalid proof format", body["error"])
				details, ok := body["details"].(map[string]interface{})
				require.True(t, ok)
				assert.Equal(t, "safe_id", details["sessionId"])
			},
		},
		{
			name:       "missing_payload",
			body:       `{"sessionId":"abc","provider":"steam"}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, false, body["verified"])
				assert.Equal(t, "missing-payload", body["reason"])
			},
		},
		{
			name:       "mock_verified",
			body:       `{"payload":{"mock":true}}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, true, body["verified"])
				assert.Equal(t, "mock-verified", body["reason"])
				details, ok := body["details"].(map[string]interface{})
				require.True(t, ok)
				assert.Equal(t, "steam", details["provider"])
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, envOptions{})
			w := env.do(http.MethodPost, "/zkp/verify", tc.body)
			require.Equal(t, tc.wantStatus, w.Code, w.Body.String())
			tc.check(t, decode(t, w))
		})
	}
}

func TestVerify_PersistenceFailureIs500(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockProofRepository(ctrl)
	repo.EXPECT().FindBySessionID(gomock.Any(), "abc").Return(nil, repository.ErrNotFound)
	repo.EXPECT().UpsertOwnerAccount(gomock.Any(), "STEAM_abc").Return(&models.OwnerAccount{ID: "o1"}, nil)
	repo.EXPECT().CreateProof(gomock.Any(), gomock.Any()).Return(errors.New("connection reset"))

	env := newTestEnv(t, envOptions{repo: repo})
	w := env.do(http.MethodPost, "/zkp/verify", `{"sessionId":"abc","payload":{}}`)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Verification failed", body["error"])
	assert.Contains(t, body["message"], "connection reset")
}

func TestGetProof(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	w := env.do(http.MethodGet, "/zkp/proofs/abc", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, service.ErrProofNotFound.Error(), decode(t, w)["error"])

	w = env.do(http.MethodPost, "/zkp/verify", `{"sessionId":"abc","payload":{"p":1}}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/zkp/proofs/abc", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "abc", body["sessionId"])
	assert.Equal(t, "verified", body["status"])
	assert.NotContains(t, w.Body.String(), "encrypted_payload")
}

func TestGetProofPayload(t *testing.T) {
	t.Run("returns_decrypted_payload", func(t *testing.T) {
		env := newTestEnv(t, envOptions{sealed: true})

		w := env.do(http.MethodPost, "/zkp/verify", `{"sessionId":"abc","payload":{"claimInfo":{"provider":"steam"}}}`)
		require.Equal(t, http.StatusOK, w.Code)

		w = env.do(http.MethodGet, "/zkp/proofs/abc/payload", "")
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "abc", body["sessionId"])
		assert.Equal(t, map[string]interface{}{"claimInfo": map[string]interface{}{"provider": "steam"}}, body["payload"])
	})

	t.Run("unknown_session", func(t *testing.T) {
		env := newTestEnv(t, envOptions{sealed: true})
		w := env.do(http.MethodGet, "/zkp/proofs/missing/payload", "")
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, service.ErrProofNotFound.Error(), decode(t, w)["error"])
	})

	t.Run("not_stored", func(t *testing.T) {
		env := newTestEnv(t, envOptions{})
		require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/zkp/verify", `{"sessionId":"abc","payload":{"p":1}}`).Code)

		w := env.do(http.MethodGet, "/zkp/proofs/abc/payload", "")
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, service.ErrPayloadUnavailable.Error(), decode(t, w)["error"])
	})
}

func TestMockRoute(t *testing.T) {
	t.Run("registered_in_mock_mode", func(t *testing.T) {
		env := newTestEnv(t, envOptions{mock: true})
		w := env.do(http.MethodPost, "/zkp/test/mock", "")
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, true, body["ok"])
		assert.NotEmpty(t, body["proofId"])
	})

	t.Run("absent_in_real_mode", func(t *testing.T) {
		env := newTestEnv(t, envOptions{mock: false})
		w := env.do(http.MethodPost, "/zkp/test/mock", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSteamProof(t *testing.T) {
	body := `{"steamId":"76561198000000000","userDataUrl":"https://store.steampowered.com/dynamicstore/userdata/","targetAppId":"730"}`

	t.Run("mock", func(t *testing.T) {
		env := newTestEnv(t, envOptions{mock: true})
		w := env.do(http.MethodPost, "/zkp/steam/proof", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "mock", decode(t, w)["mode"])
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	})

	t.Run("prover_failure_is_bad_gateway", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		prover := mocks.NewMockProver(ctrl)
		prover.EXPECT().ZKFetch(gomock.Any(), gomock.Any()).Return(nil, errors.New("attestor offline"))

		env := newTestEnv(t, envOptions{prover: prover})
		w := env.do(http.MethodPost, "/zkp/steam/proof", body)
		require.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, "Failed to create Steam proof", decode(t, w)["error"])
	})

	t.Run("validation", func(t *testing.T) {
		env := newTestEnv(t, envOptions{mock: true})
		w := env.do(http.MethodPost, "/zkp/steam/proof", `{"steamId":""}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		details, ok := decode(t, w)["details"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "required", details["steamId"])
		assert.Equal(t, "required", details["userDataUrl"])
	})
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, envOptions{mock: true})
	env.do(http.MethodPost, "/zkp/request", "")

	w := env.do(http.MethodGet, "/zkp/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)

	limits, ok := body["limits"].(map[string]interface{})
	require.True(t, ok)
	req, ok := limits["proof_request"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(5), req["limit"])
	assert.Equal(t, float64(60), req["windowSeconds"])

	total, ok := body["total"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), total["allowed"])
}

type fakeHealth map[string]error

func (f fakeHealth) HealthCheck(context.Context) map[string]error { return f }

func TestHealth(t *testing.T) {
	testCases := []struct {
		name       string
		health     HealthReporter
		wantStatus int
		wantState  string
	}{
		{name: "no_reporter", health: nil, wantStatus: http.StatusOK, wantState: "healthy"},
		{name: "all_ok", health: fakeHealth{}, wantStatus: http.StatusOK, wantState: "healthy"},
		{name: "redis_down", health: fakeHealth{"redis": errors.New("dial tcp: refused")}, wantStatus: http.StatusServiceUnavailable, wantState: "degraded"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, envOptions{health: tc.health})
			w := env.do(http.MethodGet, "/health", "")
			require.Equal(t, tc.wantStatus, w.Code)
			assert.Equal(t, tc.wantState, decode(t, w)["status"])
		})
	}
}

func TestRequireHTTPS(t *testing.T) {
	env := newTestEnv(t, envOptions{https: true})
	w := env.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusUpgradeRequired, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "https required"))
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	w := env.do(http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "endpoint not found", decode(t, w)["error"])
}
