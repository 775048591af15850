package routing

import (
	"errors"
	"fmt"
)

// Common routing errors that can be checked with errors.Is().
var (
	// ErrRouteConflict is returned when a template overlaps an existing binding.
	ErrRouteConflict = errors.New("route conflict")

	// ErrRouteNotFound is returned when no binding matches a request.
	ErrRouteNotFound = errors.New("route not found")
)

// ConflictError is reported when a new binding would overlap one that is
// already registered for the same method.
type ConflictError struct {
	// Method is the HTTP method both bindings share.
	Method string

	// Template is the rejected template.
	Template string

	// Existing is the template already bound.
	Existing string

	// ExistingService is the owner of the existing binding.
	ExistingService string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("route %s %s overlaps %s (service %q)",
		e.Method, e.Template, e.Existing, e.ExistingService)
}

// Is implements error matching for errors.Is().
func (e *ConflictError) Is(target error) bool {
	return target == ErrRouteConflict
}
