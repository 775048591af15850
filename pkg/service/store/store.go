// Package store persists service definitions.
//
// FileStore keeps them in a JSON or YAML document that operators can edit by
// hand; Watcher reloads the gateway when that file changes. SQLiteStore keeps
// one row per service for deployments that manage services only through the
// admin API.
package store

import (
	"context"
	"errors"
	"fmt"

	"mercator-hq/kate/pkg/service"
)

// Store loads and saves the full set of service definitions.
type Store interface {
	// Load returns every stored service. An empty store returns an empty slice.
	Load(ctx context.Context) ([]service.Service, error)

	// Save replaces the stored set.
	Save(ctx context.Context, services []service.Service) error

	// Delete removes every stored service.
	Delete(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// ErrUnsupportedFormat is returned for file extensions other than
// .json, .yaml and .yml.
var ErrUnsupportedFormat = errors.New("unsupported services file format")

// Error wraps a backend failure with the operation that caused it.
type Error struct {
	Backend string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s store: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(backend, op string, err error) error {
	return &Error{Backend: backend, Op: op, Err: err}
}
