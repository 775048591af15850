package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"mercator-hq/kate/pkg/limits/ratelimit"
	"mercator-hq/kate/pkg/requestlog"
)

// DefaultMaxBodyBytes bounds how much of a request body a stage may buffer.
const DefaultMaxBodyBytes = 10 << 20

// ErrBodyTooLarge is returned by Body when the request exceeds the limit.
var ErrBodyTooLarge = errors.New("request body too large")

// Principal is the authenticated caller. Lookup resolves a dot path against
// the caller's claims or verification payload.
type Principal interface {
	Lookup(path string) (string, bool)
}

// Exchange is the request-scoped state shared by the stages of one pipeline
// run. It is owned by a single goroutine and needs no locking.
type Exchange struct {
	// Request is the inbound request.
	Request *http.Request

	// Template is the route template the request matched.
	Template string

	// Method is the bound HTTP method.
	Method string

	// Service is the name of the service owning the route.
	Service string

	// RequestID correlates logs, traces and the request log record.
	RequestID string

	// ClientIP is the resolved caller address.
	ClientIP string

	// StartedAt is when the gateway received the request.
	StartedAt time.Time

	// Principal is set by the authentication stage.
	Principal Principal

	// RateLimit is the decision taken by the rate limit stage.
	RateLimit *ratelimit.Decision

	// Trace accumulates the request log record. Never nil.
	Trace *requestlog.Record

	// MaxBodyBytes overrides DefaultMaxBodyBytes when positive.
	MaxBodyBytes int64

	header   http.Header
	body     []byte
	bodyRead bool
	bodyErr  error
}

// NewExchange creates the state for one request bound to template and method.
func NewExchange(r *http.Request, template, method string) *Exchange {
	now := time.Now()
	clientIP := ratelimit.ClientIP(r)
	return &Exchange{
		Request:   r,
		Template:  template,
		Method:    method,
		ClientIP:  clientIP,
		StartedAt: now,
		Trace: &requestlog.Record{
			Timestamp: now,
			ClientIP:  clientIP,
			Method:    r.Method,
			Path:      r.URL.Path,
			Query:     r.URL.RawQuery,
			Route:     template,
			AuthType:  requestlog.AuthNone,
		},
		header: make(http.Header),
	}
}

// Header returns headers that stages want added to whatever response the
// pipeline eventually produces (for example rate limit headers).
func (ex *Exchange) Header() http.Header {
	return ex.header
}

// Body reads and buffers the request body once. Subsequent calls return the
// same bytes. A missing body yields an empty slice and no error.
func (ex *Exchange) Body() ([]byte, error) {
	if ex.bodyRead {
		return ex.body, ex.bodyErr
	}
	ex.bodyRead = true

	if ex.Request.Body == nil || ex.Request.Body == http.NoBody {
		return nil, nil
	}

	limit := ex.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	data, err := io.ReadAll(io.LimitReader(ex.Request.Body, limit+1))
	ex.Request.Body.Close()
	switch {
	case err != nil:
		ex.bodyErr = fmt.Errorf("failed to read request body: %w", err)
	case int64(len(data)) > limit:
		ex.bodyErr = ErrBodyTooLarge
	default:
		ex.body = data
	}
	return ex.body, ex.bodyErr
}

// BufferedBody returns the body if a stage has already read it.
func (ex *Exchange) BufferedBody() ([]byte, bool) {
	return ex.body, ex.bodyRead && ex.bodyErr == nil
}

// BodyReader returns the request body for forwarding. It streams the
// original body unless a stage has already buffered it.
func (ex *Exchange) BodyReader() io.Reader {
	if ex.bodyRead {
		return bytes.NewReader(ex.body)
	}
	if ex.Request.Body == nil {
		return http.NoBody
	}
	return ex.Request.Body
}
