package queue

import (
	"errors"
	"fmt"
)

// ErrClosed is returned when publishing through a closed Publisher or
// Connections set.
var ErrClosed = errors.New("queue: closed")

// ErrNotObject is returned by Transform when the body is not a JSON object.
var ErrNotObject = errors.New("body must be a JSON object")

// PublishError describes a publish that failed after all retry attempts.
type PublishError struct {
	// Queue is the destination queue.
	Queue string

	// MsgID is the deduplication id shared by every attempt.
	MsgID string

	// Attempts is how many times the broker was tried.
	Attempts int

	// Err is the last broker error.
	Err error
}

// Error implements the error interface.
func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s failed after %d attempt(s): %v", e.Queue, e.Attempts, e.Err)
}

// Unwrap returns the underlying error.
func (e *PublishError) Unwrap() error {
	return e.Err
}

// IsPublishError reports whether err is or wraps a *PublishError.
func IsPublishError(err error) bool {
	var pe *PublishError
	return errors.As(err, &pe)
}
