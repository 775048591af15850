package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mercator-hq/kate/pkg/requestlog"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/requests.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements requestlog.Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens the database, enables WAL mode if configured and
// creates the schema.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = 10
	}
	if config.MaxIdleConns <= 0 {
		config.MaxIdleConns = 5
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "requestlog.storage.sqlite")

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, requestlog.NewStorageError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
	}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)
	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return requestlog.NewStorageError("sqlite", "enable_wal", err)
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return requestlog.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return requestlog.NewStorageError("sqlite", "create_schema", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return requestlog.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return requestlog.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return requestlog.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}

func (s *SQLiteStorage) where(q *requestlog.Query) (string, []interface{}) {
	b := &whereBuilder{
		bind:    func(int) string { return "?" },
		timeArg: func(v interface{}) interface{} { return v.(time.Time).UnixMilli() },
	}
	return b.build(q)
}

// Store inserts a record.
func (s *SQLiteStorage) Store(ctx context.Context, r *requestlog.Record) error {
	reqHeaders, _ := json.Marshal(r.RequestHeaders)
	respHeaders, _ := json.Marshal(r.ResponseHeaders)

	_, err := s.db.ExecContext(ctx, `INSERT INTO request_log (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RequestID, r.Timestamp.UnixMilli(), r.ClientIP, r.Method, r.Path, r.Query, r.Route, r.Service,
		string(reqHeaders), r.RequestBody, r.UpstreamURL, r.UpstreamLatency.Milliseconds(),
		string(r.AuthType), r.AuthenticationSuccess, r.AuthorizationSuccess, r.RateLimited, r.Stage,
		r.Status, string(respHeaders), r.ResponseBody, r.Latency.Milliseconds(), r.Error,
	)
	if err != nil {
		return requestlog.NewStorageError("sqlite", "store", err)
	}
	return nil
}

// Query retrieves records matching the query filters.
func (s *SQLiteStorage) Query(ctx context.Context, query *requestlog.Query) ([]*requestlog.Record, error) {
	where, args := s.where(query)
	rows, err := s.db.QueryContext(ctx, "SELECT "+columns+" FROM request_log"+where+orderLimit(query, 100), args...)
	if err != nil {
		return nil, requestlog.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	records := []*requestlog.Record{}
	for rows.Next() {
		record, err := s.scanRow(rows)
		if err != nil {
			return nil, requestlog.NewStorageError("sqlite", "scan", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, requestlog.NewStorageError("sqlite", "query", err)
	}
	return records, nil
}

// Count returns the number of records matching the query filters.
func (s *SQLiteStorage) Count(ctx context.Context, query *requestlog.Query) (int64, error) {
	where, args := s.where(query)
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM request_log"+where, args...).Scan(&count); err != nil {
		return 0, requestlog.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Delete removes records matching the query filters.
func (s *SQLiteStorage) Delete(ctx context.Context, query *requestlog.Query) (int64, error) {
	where, args := s.where(query)
	result, err := s.db.ExecContext(ctx, "DELETE FROM request_log"+where, args...)
	if err != nil {
		return 0, requestlog.NewStorageError("sqlite", "delete", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, requestlog.NewStorageError("sqlite", "delete", err)
	}
	return count, nil
}

// Ping checks the database connection.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return requestlog.NewStorageError("sqlite", "ping", err)
	}
	return nil
}

// Close releases resources held by the storage backend.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return requestlog.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite storage closed")
	return nil
}

func (s *SQLiteStorage) scanRow(rows *sql.Rows) (*requestlog.Record, error) {
	var (
		r                                  requestlog.Record
		timestampMs, upstreamMs, latencyMs int64
		reqHeaders, respHeaders            sql.NullString
		requestID, query, route, service   sql.NullString
		requestBody, upstreamURL, stage    sql.NullString
		responseBody, errMsg, authType     sql.NullString
	)

	err := rows.Scan(
		&r.ID, &requestID, &timestampMs, &r.ClientIP, &r.Method, &r.Path, &query, &route, &service,
		&reqHeaders, &requestBody, &upstreamURL, &upstreamMs,
		&authType, &r.AuthenticationSuccess, &r.AuthorizationSuccess, &r.RateLimited, &stage,
		&r.Status, &respHeaders, &responseBody, &latencyMs, &errMsg,
	)
	if err != nil {
		return nil, err
	}

	r.RequestID = requestID.String
	r.Timestamp = time.UnixMilli(timestampMs)
	r.Query = query.String
	r.Route = route.String
	r.Service = service.String
	r.RequestBody = requestBody.String
	r.UpstreamURL = upstreamURL.String
	r.UpstreamLatency = time.Duration(upstreamMs) * time.Millisecond
	r.AuthType = requestlog.AuthType(authType.String)
	r.Stage = stage.String
	r.ResponseBody = responseBody.String
	r.Latency = time.Duration(latencyMs) * time.Millisecond
	r.Error = errMsg.String

	if reqHeaders.Valid && reqHeaders.String != "" && reqHeaders.String != "null" {
		_ = json.Unmarshal([]byte(reqHeaders.String), &r.RequestHeaders)
	}
	if respHeaders.Valid && respHeaders.String != "" && respHeaders.String != "null" {
		_ = json.Unmarshal([]byte(respHeaders.String), &r.ResponseHeaders)
	}
	return &r, nil
}
