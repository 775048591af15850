package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// MsgUpstreamUnavailable is the only detail callers see when an upstream
// cannot be reached.
const MsgUpstreamUnavailable = "upstream service unavailable"

// ErrResponseTooLarge reports a buffered upstream response over
// MaxResponseBytes.
var ErrResponseTooLarge = errors.New("upstream response too large")

// UpstreamError is a transport failure talking to an upstream: connection
// refused, DNS, TLS or timeout. HTTP error statuses are not UpstreamErrors.
type UpstreamError struct {
	// URL is the upstream target.
	URL string

	// Err is the underlying transport error.
	Err error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a timeout.
func (e *UpstreamError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// IsUpstreamError reports whether err is or wraps an *UpstreamError.
func IsUpstreamError(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
