package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment   string
	Server        ServerConfig
	Logging       LoggingConfig
	RateLimit     RateLimitConfig
	Redis         RedisConfig
	Postgres      PostgresConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	KMS           KMSConfig
	Bucketing     BucketingConfig
	ZKP           ZKPConfig
}

type ServerConfig struct {
	Port         int
	TLSPort      int
	EnableTLS    bool
	AutoCert     bool
	Domain       string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
	Email        string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// RateLimitConfig configures the per-route fixed-window limiters.
type RateLimitConfig struct {
	Backend            string // "memory" or "redis"
	Window             time.Duration
	SweepInterval      time.Duration
	RequestMax         int
	VerifyMax          int
	KeyHeader          string
	TrustXForwardedFor bool
	RedisPrefix        string
	StatsBuffer        int           // queued decisions awaiting an external stats store
	StatsTimeout       time.Duration // per write to an external stats store
}

type RedisConfig struct {
	Enabled  bool
	URL      string
	Password string
	DB       int
	PoolSize int
}

type PostgresConfig struct {
	URL      string
	MaxConns int32
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type ElasticsearchConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Index    string
}

type ClickhouseConfig struct {
	Enabled        bool
	URL            string
	Username       string
	Password       string
	Database       string
	Table          string
	RateLimitTable string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type BucketingConfig struct {
	OwnerBuckets int
}

// ZKPConfig holds the Reclaim integration settings.
type ZKPConfig struct {
	Mock                 bool
	MockSuccessRate      float64
	MockLatency          time.Duration
	VerifyTimeout        time.Duration
	RequestTTL           time.Duration
	RequireIssuedSession bool
	ProofStore           string // "postgres", "scylla" or "memory"
	ProviderID           string
	AppID                string
	AppSecret            string
	APIURL               string
	VerifierURL          string
	ProverURL            string
	OutboundRPS          float64
	OutboundBurst        int
	DigestKey            string
}

var (
	current *Config
	mu      sync.RWMutex
)

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Port:         getEnvInt("PORT", 3000),
			TLSPort:      getEnvInt("TLS_PORT", 8443),
			EnableTLS:    getEnvBool("ENABLE_TLS", false),
			AutoCert:     getEnvBool("AUTO_CERT", false),
			Domain:       getEnv("DOMAIN", "localhost"),
			CertFile:     getEnv("TLS_CERT_FILE", ""),
			KeyFile:      getEnv("TLS_KEY_FILE", ""),
			AutoCertDir:  getEnv("AUTO_CERT_DIR", "./certs"),
			Email:        getEnv("ACME_EMAIL", ""),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 45*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 90*time.Second),
			CORSOrigins:  getEnvList("CORS_ORIGIN", []string{"*"}),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		RateLimit: RateLimitConfig{
			Backend:            strings.ToLower(getEnv("RATE_LIMIT_BACKEND", "memory")),
			Window:             getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
			SweepInterval:      getEnvDuration("RATE_LIMIT_SWEEP_INTERVAL", time.Minute),
			RequestMax:         getEnvInt("RATE_LIMIT_PROOF_REQUEST_MAX", 5),
			VerifyMax:          getEnvInt("RATE_LIMIT_PROOF_VERIFY_MAX", 10),
			KeyHeader:          getEnv("RATE_LIMIT_KEY_HEADER", ""),
			TrustXForwardedFor: getEnvBool("RATE_LIMIT_TRUST_XFF", false),
			RedisPrefix:        getEnv("RATE_LIMIT_REDIS_PREFIX", "zkp_rate_limit:"),
			StatsBuffer:        getEnvInt("RATE_LIMIT_STATS_BUFFER", 1024),
			StatsTimeout:       getEnvDuration("RATE_LIMIT_STATS_TIMEOUT", 2*time.Second),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			URL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 20),
		},
		Postgres: PostgresConfig{
			URL:      getEnv("DATABASE_URL", postgresURLFromParts()),
			MaxConns: int32(getEnvInt("DATABASE_MAX_CONNS", 10)),
		},
		Scylla: ScyllaConfig{
			Nodes:    getEnvList("SCYLLA_NODES", []string{"127.0.0.1"}),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "zksteam"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_PROOF_TOPIC", "zkp.proof-events"),
		},
		Elasticsearch: ElasticsearchConfig{
			Enabled:  getEnvBool("ELASTICSEARCH_ENABLED", false),
			URL:      getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username: getEnv("ELASTICSEARCH_USERNAME", ""),
			Password: getEnv("ELASTICSEARCH_PASSWORD", ""),
			Index:    getEnv("ELASTICSEARCH_PROOF_INDEX", "zkp-proof-events"),
		},
		Clickhouse: ClickhouseConfig{
			Enabled:        getEnvBool("CLICKHOUSE_ENABLED", false),
			URL:            getEnv("CLICKHOUSE_URL", "localhost:9000"),
			Username:       getEnv("CLICKHOUSE_USERNAME", "default"),
			Password:       getEnv("CLICKHOUSE_PASSWORD", ""),
			Database:       getEnv("CLICKHOUSE_DATABASE", "zksteam"),
			Table:          getEnv("CLICKHOUSE_EVENTS_TABLE", "zkp_events"),
			RateLimitTable: getEnv("CLICKHOUSE_RATE_LIMIT_TABLE", "zkp_rate_limit_events"),
		},
		KMS: KMSConfig{
			Enabled: getEnvBool("KMS_ENABLED", false),
			KeyID:   getEnv("KMS_KEY_ID", ""),
			Region:  getEnv("AWS_REGION", "us-east-1"),
		},
		Bucketing: BucketingConfig{
			OwnerBuckets: getEnvInt("OWNER_BUCKETS", 64),
		},
		ZKP: ZKPConfig{
			Mock:                 getEnvBool("ZKP_MOCK", true),
			MockSuccessRate:      getEnvFloat("ZKP_MOCK_SUCCESS_RATE", 0.9),
			MockLatency:          getEnvDuration("ZKP_MOCK_LATENCY", 100*time.Millisecond),
			VerifyTimeout:        getEnvDuration("ZKP_VERIFY_TIMEOUT", 15*time.Second),
			RequestTTL:           getEnvDuration("ZKP_REQUEST_TTL", 5*time.Minute),
			RequireIssuedSession: getEnvBool("ZKP_REQUIRE_ISSUED_SESSION", false),
			ProofStore:           strings.ToLower(getEnv("ZKP_PROOF_STORE", "postgres")),
			ProviderID:           getEnv("RECLAIM_PROVIDER_ID", ""),
			AppID:                getEnv("RECLAIM_APP_ID", ""),
			AppSecret:            getEnv("RECLAIM_APP_SECRET", ""),
			APIURL:               getEnv("RECLAIM_API_URL", "https://api.reclaimprotocol.org"),
			VerifierURL:          getEnv("RECLAIM_VERIFIER_URL", ""),
			ProverURL:            getEnv("RECLAIM_PROVER_URL", ""),
			OutboundRPS:          getEnvFloat("RECLAIM_OUTBOUND_RPS", 5),
			OutboundBurst:        getEnvInt("RECLAIM_OUTBOUND_BURST", 10),
			DigestKey:            getEnv("ZKP_PAYLOAD_DIGEST_KEY", ""),
		},
	}

	mu.Lock()
	current = cfg
	mu.Unlock()

	return cfg
}

// Get returns the last loaded config, loading it on first use.
func Get() *Config {
	mu.RLock()
	cfg := current
	mu.RUnlock()
	if cfg == nil {
		return LoadConfig()
	}
	return cfg
}

func (c *Config) Validate() error {
	var errs []error
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be > 0"))
	}
	if c.RateLimit.RequestMax <= 0 || c.RateLimit.VerifyMax <= 0 {
		errs = append(errs, errors.New("rate limit maximums must be > 0"))
	}
	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			errs = append(errs, errors.New("RATE_LIMIT_BACKEND=redis requires REDIS_ENABLED=true"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimit.Backend))
	}
	switch c.ZKP.ProofStore {
	case "postgres", "scylla", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown ZKP_PROOF_STORE %q", c.ZKP.ProofStore))
	}
	if c.ZKP.MockSuccessRate < 0 || c.ZKP.MockSuccessRate > 1 {
		errs = append(errs, errors.New("ZKP_MOCK_SUCCESS_RATE must be within [0,1]"))
	}
	if c.ZKP.VerifyTimeout <= 0 {
		errs = append(errs, errors.New("ZKP_VERIFY_TIMEOUT must be > 0"))
	}
	if !c.ZKP.Mock && (c.ZKP.AppID == "" || c.ZKP.AppSecret == "") {
		errs = append(errs, errors.New("RECLAIM_APP_ID and RECLAIM_APP_SECRET are required when ZKP_MOCK=false"))
	}
	if c.KMS.Enabled && c.KMS.KeyID == "" {
		errs = append(errs, errors.New("KMS_KEY_ID is required when KMS_ENABLED=true"))
	}
	if c.Bucketing.OwnerBuckets <= 0 {
		errs = append(errs, errors.New("OWNER_BUCKETS must be > 0"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func postgresURLFromParts() string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s",
		getEnv("POSTGRES_USER", "zksteam"),
		getEnv("POSTGRES_PASSWORD", "password123"),
		getEnv("POSTGRES_HOST", "localhost"),
		getEnv("POSTGRES_PORT", "5432"),
		getEnv("POSTGRES_DB", "zksteam_db"),
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return i
}

func getEnvFloat(key string, defaultValue float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getEnvBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}

func getEnvList(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
