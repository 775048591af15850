// Package storage provides request log storage backends.
//
//   - MemoryStorage: a map, for tests and database-less deployments
//   - SQLiteStorage: github.com/mattn/go-sqlite3 with WAL mode
//   - PostgresStorage: a pgx pool with embedded migrations
//
// All backends render the same requestlog.Query semantics. Sort fields are
// whitelisted; unknown fields sort by timestamp.
package storage
