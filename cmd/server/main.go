package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"zksteam-api/internal/config"
	"zksteam-api/internal/factory"
	"zksteam-api/internal/handler"
	"zksteam-api/internal/ratelimit"
	"zksteam-api/internal/util"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Factory loads config, connects backends and builds the limiters
	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	cfg := f.Config()
	router := setupRouter(f)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, f, cfg, router); err != nil {
		util.Error("Server exited with error", util.ErrorField(err))
		f.Close()
		os.Exit(1)
	}
}

// setupRouter wires the proof handler, its route limiters and the health
// endpoint into one Chi router
func setupRouter(f *factory.Factory) http.Handler {
	cfg := f.Config()
	proofService := f.ServiceFactory().ProofService()

	limits := handler.RouteLimits{
		Request: f.Limiter(factory.LimiterProofRequest),
		Verify:  f.Limiter(factory.LimiterProofVerify),
		Steam:   f.Limiter(factory.LimiterSteamProof),
		KeyFunc: ratelimit.DefaultKeyFunc(cfg.RateLimit.KeyHeader, cfg.RateLimit.TrustXForwardedFor),
		Stats:   f.StatsStore(),
	}
	proofHandler := handler.NewProofHandler(proofService, limits, f.LimiterStats(), cfg.ZKP.Mock, util.Named("zkp_handler"))

	return handler.NewRouter(proofHandler, f, handler.RouterOptions{
		RequireHTTPS:   cfg.IsProduction() && cfg.Server.EnableTLS,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: requestTimeout(cfg),
	}, util.Get())
}

// requestTimeout leaves headroom under the server write timeout for the
// verifier deadline to surface as a JSON body
func requestTimeout(cfg *config.Config) time.Duration {
	timeout := cfg.ZKP.VerifyTimeout + 10*time.Second
	if cfg.Server.WriteTimeout > 0 && timeout > cfg.Server.WriteTimeout {
		timeout = cfg.Server.WriteTimeout
	}
	return timeout
}

// listener is one server plus the function that starts it.
type listener struct {
	name  string
	srv   *http.Server
	serve func() error
}

// buildListeners picks plain HTTP, HTTPS, or production autocert (HTTPS on
// :443 with the ACME challenge handler on :80).
func buildListeners(f *factory.Factory, cfg *config.Config, router http.Handler) ([]listener, error) {
	newServer := func(addr string, h http.Handler) *http.Server {
		return &http.Server{
			Addr:         addr,
			Handler:      h,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		}
	}

	if !cfg.Server.EnableTLS {
		util.Warn("Starting HTTP server - TLS is disabled",
			util.String("environment", cfg.Environment),
			util.Int("port", cfg.Server.Port))
		srv := newServer(cfg.GetServerAddress(), router)
		return []listener{{name: "http", srv: srv, serve: srv.ListenAndServe}}, nil
	}

	tlsManager := f.TLSManager()
	if tlsManager == nil {
		return nil, errors.New("TLS enabled but no TLS manager configured")
	}

	if cfg.IsProduction() && cfg.Server.AutoCert {
		acme := tlsManager.GetAutocertManager()
		if acme == nil {
			return nil, errors.New("AutoCert manager is not available in production")
		}
		httpsSrv := newServer(":443", router)
		httpsSrv.TLSConfig = tlsManager.GetTLSConfig()
		challengeSrv := &http.Server{
			Addr:              ":80",
			Handler:           acme.HTTPHandler(nil),
			ReadHeaderTimeout: 10 * time.Second,
		}
		util.Info("Starting HTTPS server with AutoCert", util.String("domain", cfg.Server.Domain))
		return []listener{
			{name: "https", srv: httpsSrv, serve: func() error { return httpsSrv.ListenAndServeTLS("", "") }},
			{name: "acme", srv: challengeSrv, serve: challengeSrv.ListenAndServe},
		}, nil
	}

	srv := newServer(fmt.Sprintf(":%d", cfg.Server.TLSPort), router)
	srv.TLSConfig = tlsManager.GetTLSConfig()
	util.Info("Starting HTTPS server",
		util.String("environment", cfg.Environment),
		util.Int("port", cfg.Server.TLSPort),
		util.Bool("auto_cert", cfg.Server.AutoCert))
	// certificates come from GetCertificate
	return []listener{{name: "https", srv: srv, serve: func() error { return srv.ListenAndServeTLS("", "") }}}, nil
}

// run serves every listener until ctx is cancelled or one of them fails,
// then shuts all of them down.
func run(ctx context.Context, f *factory.Factory, cfg *config.Config, router http.Handler) error {
	listeners, err := buildListeners(f, cfg, router)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range listeners {
		g.Go(func() error {
			if err := l.serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server: %w", l.name, err)
			}
			return nil
		})
	}

	util.Info("zksteam-api started",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("zkp_mock", cfg.ZKP.Mock),
		util.Int("listeners", len(listeners)))

	g.Go(func() error {
		<-gctx.Done()
		util.Info("Shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		for _, l := range listeners {
			if err := l.srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("%s shutdown: %w", l.name, err))
			}
		}
		f.Close()
		return errors.Join(errs...)
	})

	return g.Wait()
}
