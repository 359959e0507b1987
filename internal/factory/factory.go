package factory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"zksteam-api/internal/audit"
	"zksteam-api/internal/bucketing"
	"zksteam-api/internal/client"
	"zksteam-api/internal/config"
	"zksteam-api/internal/encryption"
	"zksteam-api/internal/hashing"
	"zksteam-api/internal/ratelimit"
	"zksteam-api/internal/repository"
	"zksteam-api/internal/repository/memory"
	"zksteam-api/internal/repository/postgres"
	redisrepo "zksteam-api/internal/repository/redis"
	"zksteam-api/internal/repository/scylla"
	"zksteam-api/internal/service"
	"zksteam-api/internal/tls"
	"zksteam-api/internal/util"
	"zksteam-api/internal/verifier"
)

const (
	LimiterProofRequest = "proof_request"
	LimiterProofVerify  = "proof_verify"
	LimiterSteamProof   = "steam_proof"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	pgPool           *pgxpool.Pool
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient
	reclaimClient    *verifier.ReclaimClient

	// Managers
	encryptionManager *encryption.EncryptionManager
	bucketingManager  *bucketing.BucketingManager
	digester          *hashing.Digester

	// Repositories
	proofRepository repository.ProofRepository
	sessionStore    repository.SessionStore

	// Rate limiting
	windowStore  ratelimit.WindowStore
	limiterStats *ratelimit.MemoryStatsStore
	statsStore   ratelimit.StatsStore
	asyncStats   *ratelimit.AsyncStats
	limiters     map[string]*ratelimit.Limiter

	events         *audit.Fanout
	serviceFactory *service.ServiceFactory

	stopJanitors []context.CancelFunc
	closeOnce    sync.Once
	closed      chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		tlsConfig := &tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		}
		factory.tlsManager = tls.NewTLSManager(tlsConfig)
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := factory.initializeManagers(); err != nil {
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}

	factory.initializeRepositories()
	factory.initializeRateLimiting()
	factory.initializeEvents()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
		util.Bool("zkp_mock", cfg.ZKP.Mock),
		util.String("proof_store", cfg.ZKP.ProofStore),
		util.String("rate_limit_backend", cfg.RateLimit.Backend),
	)

	return factory, nil
}

// initializeClients connects every enabled backend concurrently. Outside
// production a failed backend is logged and replaced by an in-memory fallback.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		mu         sync.Mutex
		initErrors []error
		g          errgroup.Group
	)
	fail := func(err error) {
		mu.Lock()
		initErrors = append(initErrors, err)
		mu.Unlock()
	}

	// Redis
	if f.config.Redis.Enabled {
		g.Go(func() error {
			c, err := client.NewRedisClient(f.config, util.Get())
			if err != nil {
				fail(fmt.Errorf("redis: %w", err))
				return nil
			}
			if err := c.HealthCheck(ctx); err != nil {
				c.Close()
				fail(fmt.Errorf("redis health check: %w", err))
				return nil
			}
			f.redisClient = c
			util.Info("Redis client initialized and healthy")
			return nil
		})
	}

	switch f.config.ZKP.ProofStore {
	case "postgres":
		g.Go(func() error {
			pool, err := postgres.NewPool(ctx, f.config, util.Get())
			if err != nil {
				fail(fmt.Errorf("postgres: %w", err))
				return nil
			}
			if err := postgres.EnsureSchema(ctx, pool); err != nil {
				pool.Close()
				fail(fmt.Errorf("postgres schema: %w", err))
				return nil
			}
			f.pgPool = pool
			util.Info("Postgres pool initialized and schema ensured")
			return nil
		})
	case "scylla":
		g.Go(func() error {
			c, err := scylla.NewScyllaClient(f.config, util.Get())
			if err != nil {
				fail(fmt.Errorf("scylla: %w", err))
				return nil
			}
			if err := c.EnsureSchema(ctx); err != nil {
				c.Close()
				fail(fmt.Errorf("scylla schema: %w", err))
				return nil
			}
			f.scyllaClient = c
			util.Info("ScyllaDB client initialized and schema ensured")
			return nil
		})
	}

	// Kafka
	if f.config.Kafka.Enabled {
		g.Go(func() error {
			producer, err := client.NewKafkaProducer(f.config, util.Get())
			if err != nil {
				util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
				return nil
			}
			f.kafkaProducer = producer
			return nil
		})
	}

	// Elasticsearch
	if f.config.Elasticsearch.Enabled {
		g.Go(func() error {
			c, err := client.NewElasticsearchClient(f.config, util.Get())
			if err != nil {
				fail(fmt.Errorf("elasticsearch: %w", err))
				return nil
			}
			f.esClient = c
			return nil
		})
	}

	// ClickHouse
	if f.config.Clickhouse.Enabled {
		g.Go(func() error {
			c, err := client.NewClickHouseClient(f.config, util.Get())
			if err != nil {
				fail(fmt.Errorf("clickhouse: %w", err))
				return nil
			}
			f.clickhouseClient = c
			return nil
		})
	}

	_ = g.Wait()

	if !f.config.ZKP.Mock {
		f.reclaimClient = verifier.NewReclaimClient(f.config, util.Get())
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %w", errors.Join(initErrors...))
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers initializes encryption, bucketing and digest managers
func (f *Factory) initializeManagers() error {
	var kmsAPI encryption.KMSAPI
	if f.config.KMS.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		kmsClient, err := encryption.NewKMSClient(ctx, f.config)
		if err != nil {
			if f.config.IsProduction() {
				return err
			}
			util.Warn("KMS unavailable, using local data keys", util.ErrorField(err))
		} else {
			kmsAPI = kmsClient
		}
	}

	f.encryptionManager = encryption.NewEncryptionManager(f.config, kmsAPI)
	f.bucketingManager = bucketing.NewBucketingManager(f.config.Bucketing.OwnerBuckets)

	digester, err := hashing.NewDigester(f.config.ZKP.DigestKey)
	if err != nil {
		return fmt.Errorf("payload digester: %w", err)
	}
	f.digester = digester

	util.Info("Managers initialized successfully",
		util.Bool("kms_encryption", f.encryptionManager.UsesKMS()),
		util.Int("owner_buckets", f.bucketingManager.OwnerBuckets()),
		util.Bool("keyed_digest", digester.Keyed()),
	)
	return nil
}

// ==============================
// Repository Initialization
// ==============================

func (f *Factory) initializeRepositories() {
	switch {
	case f.pgPool != nil:
		f.proofRepository = postgres.NewProofRepository(f.pgPool)
	case f.scyllaClient != nil:
		f.proofRepository = scylla.NewProofRepository(f.scyllaClient, f.bucketingManager)
	default:
		if f.config.ZKP.ProofStore != "memory" {
			util.Warn("Proof store unavailable, falling back to in-memory store",
				util.String("configured", f.config.ZKP.ProofStore))
		}
		f.proofRepository = memory.NewProofRepository()
	}

	if f.redisClient != nil {
		f.sessionStore = redisrepo.NewSessionCache(f.redisClient)
	} else {
		sessions := memory.NewSessionStore()
		ctx, cancel := context.WithCancel(context.Background())
		sessions.StartJanitor(ctx, f.config.RateLimit.SweepInterval)
		f.stopJanitors = append(f.stopJanitors, cancel)
		f.sessionStore = sessions
	}
}

// ==============================
// Rate Limiting
// ==============================

func (f *Factory) initializeRateLimiting() {
	rl := f.config.RateLimit

	if rl.Backend == "redis" && f.redisClient != nil {
		f.windowStore = redisrepo.NewRateLimitCache(f.redisClient, rl.RedisPrefix)
	} else {
		if rl.Backend == "redis" {
			util.Warn("Redis unavailable, rate limiting falls back to in-process windows")
		}
		store := ratelimit.NewMemoryWindowStore()
		ctx, cancel := context.WithCancel(context.Background())
		store.StartJanitor(ctx, rl.SweepInterval)
		f.stopJanitors = append(f.stopJanitors, cancel)
		f.windowStore = store
	}

	f.limiterStats = ratelimit.NewMemoryStatsStore()
	stats := ratelimit.MultiStats{f.limiterStats}
	if f.clickhouseClient != nil {
		chStats := audit.NewClickHouseStats(f.clickhouseClient, f.config.Clickhouse.RateLimitTable)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := chStats.EnsureTable(ctx); err != nil {
			util.Warn("ClickHouse rate limit table unavailable", util.ErrorField(err))
		} else {
			f.asyncStats = ratelimit.NewAsyncStats(chStats, rl.StatsBuffer, rl.StatsTimeout)
			stats = append(stats, f.asyncStats)
		}
		cancel()
	}
	f.statsStore = stats

	f.limiters = map[string]*ratelimit.Limiter{
		LimiterProofRequest: ratelimit.NewLimiter(LimiterProofRequest, f.windowStore, rl.Window, rl.RequestMax),
		LimiterProofVerify:  ratelimit.NewLimiter(LimiterProofVerify, f.windowStore, rl.Window, rl.VerifyMax),
		LimiterSteamProof:   ratelimit.NewLimiter(LimiterSteamProof, f.windowStore, rl.Window, rl.RequestMax),
	}
}

func (f *Factory) initializeEvents() {
	var sinks []audit.Sink
	if f.kafkaProducer != nil {
		sinks = append(sinks, audit.NewKafkaSink(f.kafkaProducer, f.config.Kafka.Topic))
	}
	if f.esClient != nil {
		sink := audit.NewElasticsearchSink(f.esClient, f.config.Elasticsearch.Index)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := sink.EnsureIndex(ctx); err != nil {
			util.Warn("Elasticsearch event index unavailable", util.ErrorField(err))
		}
		cancel()
		sinks = append(sinks, sink)
	}
	if f.clickhouseClient != nil {
		sink := audit.NewClickHouseSink(f.clickhouseClient, f.config.Clickhouse.Table)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := sink.EnsureTable(ctx); err != nil {
			util.Warn("ClickHouse events table unavailable", util.ErrorField(err))
		} else {
			sinks = append(sinks, sink)
		}
		cancel()
	}
	f.events = audit.NewFanout(sinks...)
	util.Info("Proof event sinks configured", util.Int("sinks", f.events.Len()))
}

// ==============================
// Service Factory
// ==============================

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		deps := service.ProofServiceDeps{
			Repo:       f.proofRepository,
			Sessions:   f.sessionStore,
			Verifier:   f.Verifier(),
			Encryption: f.encryptionManager,
			Digester:   f.digester,
			Events:     f.events,
			Config:     f.config.ZKP,
		}
		if f.reclaimClient != nil {
			deps.Requests = f.reclaimClient
			deps.Prover = f.reclaimClient
		}
		f.serviceFactory = service.NewServiceFactory(deps, util.Get())
	}
	return f.serviceFactory
}

// Verifier returns the Reclaim client in real mode, the mock otherwise.
func (f *Factory) Verifier() verifier.Verifier {
	if f.reclaimClient != nil {
		return f.reclaimClient
	}
	return verifier.NewMockVerifier(f.config.ZKP.MockSuccessRate, f.config.ZKP.MockLatency)
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.config.Redis.Enabled {
		if f.redisClient == nil {
			healthErrors["redis"] = fmt.Errorf("redis client not initialized")
		} else if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}

	if f.proofRepository == nil {
		healthErrors["proof_repository"] = fmt.Errorf("proof repository not initialized")
	} else if err := f.proofRepository.HealthCheck(ctx); err != nil {
		healthErrors["proof_repository"] = err
	}

	if f.config.Elasticsearch.Enabled && f.esClient != nil {
		if err := f.esClient.HealthCheck(ctx); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}

	if f.config.Clickhouse.Enabled && f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	if f.encryptionManager == nil {
		healthErrors["encryption"] = fmt.Errorf("encryption manager not initialized")
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		for _, stop := range f.stopJanitors {
			stop()
		}

		if f.asyncStats != nil {
			f.asyncStats.Close()
		}

		if f.serviceFactory != nil {
			f.serviceFactory.Cleanup()
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.pgPool != nil {
			f.pgPool.Close()
			util.Info("Postgres pool closed")
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) Limiter(name string) *ratelimit.Limiter {
	return f.limiters[name]
}

// LimiterStats returns the in-process decision counters served by /zkp/stats.
func (f *Factory) LimiterStats() *ratelimit.MemoryStatsStore {
	return f.limiterStats
}

func (f *Factory) StatsStore() ratelimit.StatsStore {
	return f.statsStore
}

func (f *Factory) EncryptionManager() *encryption.EncryptionManager {
	return f.encryptionManager
}
