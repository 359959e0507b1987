package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"zksteam-api/internal/util"
)

// HealthReporter returns one entry per failing dependency.
type HealthReporter interface {
	HealthCheck(ctx context.Context) map[string]error
}

type RouterOptions struct {
	RequireHTTPS   bool
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// requireHTTPS rejects any request that wasn't made over TLS
func requireHTTPS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUpgradeRequired) // 426
			w.Write([]byte(`{"error":"https required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewRouter creates and configures the Chi router with all middleware and routes.
// RealIP is not installed: client keys for rate limiting come from the limiter's
// KeyFunc, which only trusts X-Forwarded-For when configured to.
func NewRouter(proofHandler *ProofHandler, health HealthReporter, opts RouterOptions, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	if opts.RequireHTTPS {
		router.Use(requireHTTPS)
	}

	router.Use(middleware.RequestID)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	if opts.RequestTimeout > 0 {
		router.Use(middleware.Timeout(opts.RequestTimeout))
	}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/health", healthHandler(health, logger))

	router.Route("/zkp", proofHandler.RegisterRoutes)
	router.Route("/api/zkp", proofHandler.RegisterRoutes)

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"error":"method not allowed"}`))
	})

	return router
}

func healthHandler(health HealthReporter, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{}
		status, code := "healthy", http.StatusOK

		if health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			for name, err := range health.HealthCheck(ctx) {
				checks[name] = err.Error()
			}
		}
		if len(checks) > 0 {
			status, code = "degraded", http.StatusServiceUnavailable
			logger.Warn("Health check failed", util.Any("checks", checks))
		}

		writeJSON(w, code, map[string]interface{}{
			"status":  status,
			"service": "zksteam-api",
			"checks":  checks,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// LoggerMiddleware creates a middleware that logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.String("request_id", middleware.GetReqID(r.Context())),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("user_agent", r.UserAgent()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
