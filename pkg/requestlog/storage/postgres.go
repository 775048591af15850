package storage

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mercator-hq/kate/pkg/requestlog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresConfig contains configuration for the PostgreSQL backend.
type PostgresConfig struct {
	// DSN is the connection string, e.g. "postgres://kate@db:5432/kate".
	DSN string

	// MaxConns bounds the connection pool.
	// Default: 10
	MaxConns int32
}

// PostgresStorage implements requestlog.Storage on a pgx connection pool.
type PostgresStorage struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStorage connects, pings and applies pending migrations.
func NewPostgresStorage(ctx context.Context, config *PostgresConfig) (*PostgresStorage, error) {
	if config == nil || config.DSN == "" {
		return nil, requestlog.NewStorageError("postgres", "open", fmt.Errorf("dsn cannot be empty"))
	}

	cfg, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, requestlog.NewStorageError("postgres", "parse_dsn", err)
	}
	cfg.MaxConns = 10
	if config.MaxConns > 0 {
		cfg.MaxConns = config.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, requestlog.NewStorageError("postgres", "open", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, requestlog.NewStorageError("postgres", "ping", err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, requestlog.NewStorageError("postgres", "migrate", err)
	}

	s := &PostgresStorage{
		pool:   pool,
		logger: slog.Default().With("component", "requestlog.storage.postgres"),
	}
	s.logger.Info("PostgreSQL storage initialized", "max_conns", cfg.MaxConns)
	return s, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (name text PRIMARY KEY, applied_at timestamptz NOT NULL DEFAULT now())`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var exists bool
		if err := pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE name=$1)`, name).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if exists {
			continue
		}
		sqlBytes, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations(name) VALUES($1)`, name); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *PostgresStorage) where(q *requestlog.Query) (string, []interface{}) {
	b := &whereBuilder{
		bind:    func(n int) string { return fmt.Sprintf("$%d", n) },
		timeArg: func(v interface{}) interface{} { return v },
	}
	return b.build(q)
}

// Store inserts a record.
func (s *PostgresStorage) Store(ctx context.Context, r *requestlog.Record) error {
	reqHeaders, _ := json.Marshal(r.RequestHeaders)
	respHeaders, _ := json.Marshal(r.ResponseHeaders)

	_, err := s.pool.Exec(ctx, `INSERT INTO request_log (`+columns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		r.ID, r.RequestID, r.Timestamp, r.ClientIP, r.Method, r.Path, r.Query, r.Route, r.Service,
		string(reqHeaders), r.RequestBody, r.UpstreamURL, r.UpstreamLatency.Milliseconds(),
		string(r.AuthType), r.AuthenticationSuccess, r.AuthorizationSuccess, r.RateLimited, r.Stage,
		r.Status, string(respHeaders), r.ResponseBody, r.Latency.Milliseconds(), r.Error,
	)
	if err != nil {
		return requestlog.NewStorageError("postgres", "store", err)
	}
	return nil
}

// Query retrieves records matching the query filters.
func (s *PostgresStorage) Query(ctx context.Context, query *requestlog.Query) ([]*requestlog.Record, error) {
	where, args := s.where(query)
	rows, err := s.pool.Query(ctx, "SELECT "+columns+" FROM request_log"+where+orderLimit(query, 100), args...)
	if err != nil {
		return nil, requestlog.NewStorageError("postgres", "query", err)
	}
	defer rows.Close()

	records := []*requestlog.Record{}
	for rows.Next() {
		record, err := scanPostgres(rows)
		if err != nil {
			return nil, requestlog.NewStorageError("postgres", "scan", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, requestlog.NewStorageError("postgres", "query", err)
	}
	return records, nil
}

// Count returns the number of records matching the query filters.
func (s *PostgresStorage) Count(ctx context.Context, query *requestlog.Query) (int64, error) {
	where, args := s.where(query)
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM request_log"+where, args...).Scan(&count); err != nil {
		return 0, requestlog.NewStorageError("postgres", "count", err)
	}
	return count, nil
}

// Delete removes records matching the query filters.
func (s *PostgresStorage) Delete(ctx context.Context, query *requestlog.Query) (int64, error) {
	where, args := s.where(query)
	tag, err := s.pool.Exec(ctx, "DELETE FROM request_log"+where, args...)
	if err != nil {
		return 0, requestlog.NewStorageError("postgres", "delete", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks the pool can reach the server.
func (s *PostgresStorage) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return requestlog.NewStorageError("postgres", "ping", err)
	}
	return nil
}

// Close closes the pool.
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	s.logger.Info("PostgreSQL storage closed")
	return nil
}

func scanPostgres(rows pgx.Rows) (*requestlog.Record, error) {
	var (
		r                                requestlog.Record
		upstreamMs, latencyMs            int64
		reqHeaders, respHeaders          []byte
		requestID, query, route, service *string
		requestBody, upstreamURL, stage  *string
		responseBody, errMsg             *string
		authType                         string
	)

	err := rows.Scan(
		&r.ID, &requestID, &r.Timestamp, &r.ClientIP, &r.Method, &r.Path, &query, &route, &service,
		&reqHeaders, &requestBody, &upstreamURL, &upstreamMs,
		&authType, &r.AuthenticationSuccess, &r.AuthorizationSuccess, &r.RateLimited, &stage,
		&r.Status, &respHeaders, &responseBody, &latencyMs, &errMsg,
	)
	if err != nil {
		return nil, err
	}

	deref := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	r.RequestID = deref(requestID)
	r.Query = deref(query)
	r.Route = deref(route)
	r.Service = deref(service)
	r.RequestBody = deref(requestBody)
	r.UpstreamURL = deref(upstreamURL)
	r.Stage = deref(stage)
	r.ResponseBody = deref(responseBody)
	r.Error = deref(errMsg)
	r.AuthType = requestlog.AuthType(authType)
	r.UpstreamLatency = time.Duration(upstreamMs) * time.Millisecond
	r.Latency = time.Duration(latencyMs) * time.Millisecond

	if len(reqHeaders) > 0 {
		_ = json.Unmarshal(reqHeaders, &r.RequestHeaders)
	}
	if len(respHeaders) > 0 {
		_ = json.Unmarshal(respHeaders, &r.ResponseHeaders)
	}
	return &r, nil
}
