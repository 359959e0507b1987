package scylla

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"zksteam-api/internal/config"
	"zksteam-api/internal/util"
)

// Statements holds the CQL used by the proof repository. gocql prepares and
// caches each one on first execution.
type Statements struct {
	InsertProofBySession string
	InsertProofByOwner   string
	GetProofBySession    string
	InsertAttempt        string
	InsertOwner          string
}

var statements = Statements{
	InsertProofBySession: `
        INSERT INTO proofs_by_session (
            session_id, proof_id, provider, status, owner_account_id,
            payload_digest, encrypted_payload, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`,

	InsertProofByOwner: `
        INSERT INTO proofs_by_owner (
            owner_bucket, owner_account_id, created_at, proof_id, session_id, provider
        ) VALUES (?, ?, ?, ?, ?, ?)`,

	GetProofBySession: `
        SELECT proof_id, provider, status, owner_account_id, payload_digest, encrypted_payload, created_at
        FROM proofs_by_session WHERE session_id = ?`,

	InsertAttempt: `
        INSERT INTO proof_attempts (
            session_bucket, date_bucket, created_at, attempt_id, session_id,
            provider, status, reason, payload_digest
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,

	InsertOwner: `
        INSERT INTO owner_accounts (steam_id, account_id, created_at)
        VALUES (?, ?, ?) IF NOT EXISTS`,
}

const schemaCQL = `
CREATE TABLE IF NOT EXISTS proofs_by_session (
    session_id text PRIMARY KEY,
    proof_id uuid,
    provider text,
    status text,
    owner_account_id text,
    payload_digest text,
    encrypted_payload blob,
    created_at timestamp
);
CREATE TABLE IF NOT EXISTS proofs_by_owner (
    owner_bucket int,
    owner_account_id text,
    created_at timestamp,
    proof_id uuid,
    session_id text,
    provider text,
    PRIMARY KEY ((owner_bucket, owner_account_id), created_at, proof_id)
) WITH CLUSTERING ORDER BY (created_at DESC, proof_id ASC);
CREATE TABLE IF NOT EXISTS proof_attempts (
    session_bucket int,
    date_bucket text,
    created_at timestamp,
    attempt_id uuid,
    session_id text,
    provider text,
    status text,
    reason text,
    payload_digest text,
    PRIMARY KEY ((session_bucket, date_bucket), created_at, attempt_id)
);
CREATE TABLE IF NOT EXISTS owner_accounts (
    steam_id text PRIMARY KEY,
    account_id text,
    created_at timestamp
);`

type ScyllaClient struct {
	Session *gocql.Session
	config  *config.ScyllaConfig
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        100 * time.Millisecond,
		Max:        2 * time.Second,
		NumRetries: 3,
	}

	if cfg.IsProduction() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 util.GetEnv("SCYLLA_TLS_CA_FILE", "/app/certs/ca.pem"),
			CertPath:               util.GetEnv("SCYLLA_TLS_CERT_FILE", "/app/certs/scylla.pem"),
			KeyPath:                util.GetEnv("SCYLLA_TLS_KEY_FILE", "/app/certs/scylla.key"),
			EnableHostVerification: true,
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	logger.Info("ScyllaDB client initialized",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}, nil
}

// EnsureSchema creates the proof tables in the session keyspace.
func (s *ScyllaClient) EnsureSchema(ctx context.Context) error {
	for _, stmt := range splitStatements(schemaCQL) {
		if err := s.Session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("failed to apply scylla schema: %w", err)
		}
	}
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) HealthCheck(ctx context.Context) error {
	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}
	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

// ExecuteWithRetry retries non-LWT writes with a linear backoff. LWT inserts
// must not go through here: a retried CAS can report its own write as a conflict.
func (s *ScyllaClient) ExecuteWithRetry(ctx context.Context, query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		lastErr = query.WithContext(ctx).Exec()
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i+1) * 100 * time.Millisecond):
			}
		}
	}
	return lastErr
}

func splitStatements(cql string) []string {
	var out []string
	for _, stmt := range strings.Split(cql, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
