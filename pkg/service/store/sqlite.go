package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/kate/pkg/service"
)

// SQLiteStore keeps one row per service holding its JSON document.
type SQLiteStore struct {
	db *sql.DB
}

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	// Path is the database file.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS services (
	name TEXT PRIMARY KEY,
	position INTEGER NOT NULL,
	document TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// NewSQLiteStore opens or creates the database.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, newError("sqlite", "open", fmt.Errorf("path cannot be empty"))
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, newError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, newError("sqlite", "schema", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load returns the services in their saved order.
func (s *SQLiteStore) Load(ctx context.Context) ([]service.Service, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM services ORDER BY position`)
	if err != nil {
		return nil, newError("sqlite", "load", err)
	}
	defer rows.Close()

	services := []service.Service{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, newError("sqlite", "scan", err)
		}
		var svc service.Service
		if err := json.Unmarshal([]byte(doc), &svc); err != nil {
			return nil, newError("sqlite", "decode", err)
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, newError("sqlite", "load", err)
	}
	return services, nil
}

// Save replaces every row in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, services []service.Service) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return newError("sqlite", "begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM services`); err != nil {
		return newError("sqlite", "save", err)
	}

	now := time.Now().Unix()
	for i, svc := range services {
		doc, err := json.Marshal(svc)
		if err != nil {
			return newError("sqlite", "encode", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO services (name, position, document, updated_at) VALUES (?, ?, ?, ?)`,
			svc.Name, i, string(doc), now,
		); err != nil {
			return newError("sqlite", "save", fmt.Errorf("service %q: %w", svc.Name, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return newError("sqlite", "commit", err)
	}
	return nil
}

// Delete removes every row.
func (s *SQLiteStore) Delete(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM services`); err != nil {
		return newError("sqlite", "delete", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
