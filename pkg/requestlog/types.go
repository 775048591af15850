package requestlog

import (
	"context"
	"io"
	"time"
)

// AuthType is the credential kind a route required.
type AuthType string

const (
	AuthJWT  AuthType = "JWT"
	AuthKey  AuthType = "KEY"
	AuthNone AuthType = "NONE"
)

// Record is the trace of one gateway request. Stages fill it in as the
// pipeline runs; the gateway finalizes and hands it to the recorder.
type Record struct {
	// Identity
	ID        string `json:"uuid"`
	RequestID string `json:"requestId"`

	// Request
	Timestamp      time.Time         `json:"timestamp"`
	ClientIP       string            `json:"clientIp"`
	Method         string            `json:"httpMethod"`
	Path           string            `json:"path"`
	Query          string            `json:"queryParams,omitempty"`
	Route          string            `json:"matchedRoute,omitempty"`
	Service        string            `json:"service,omitempty"`
	RequestHeaders map[string]string `json:"requestHeaders,omitempty"`
	RequestBody    string            `json:"requestBody,omitempty"`

	// Upstream
	UpstreamURL     string        `json:"upstreamUrl,omitempty"`
	UpstreamLatency time.Duration `json:"-"`

	// Pipeline outcome
	AuthType              AuthType `json:"authType"`
	AuthenticationSuccess bool     `json:"authenticationSuccess"`
	AuthorizationSuccess  bool     `json:"authorizationSuccess"`
	RateLimited           bool     `json:"rateLimited"`
	Stage                 string   `json:"stage,omitempty"`

	// Response
	Status          int               `json:"responseStatusCode"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
	ResponseBody    string            `json:"responseBody,omitempty"`
	Latency         time.Duration     `json:"-"`

	// Error is set when the request failed inside the gateway.
	Error string `json:"error,omitempty"`
}

// Success reports whether the response status is 2xx.
func (r *Record) Success() bool {
	return r.Status >= 200 && r.Status < 300
}

// Query filters request log records.
type Query struct {
	// Time range, inclusive.
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// Filters
	Method   string `json:"method,omitempty"`
	Path     string `json:"path,omitempty"`
	Route    string `json:"route,omitempty"`
	Service  string `json:"service,omitempty"`
	ClientIP string `json:"client_ip,omitempty"`

	// Status is "success" (2xx), "error" (non-2xx) or "rate_limited".
	Status string `json:"status,omitempty"`

	// Pagination
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// Sorting: "timestamp", "latency_ms" or "status".
	SortBy    string `json:"sort_by,omitempty"`
	SortOrder string `json:"sort_order,omitempty"`
}

// Storage persists request log records. Implementations must be safe for
// concurrent use.
type Storage interface {
	// Store persists a record.
	Store(ctx context.Context, record *Record) error

	// Query returns matching records, newest first unless the query sorts
	// otherwise. No match yields an empty slice.
	Query(ctx context.Context, query *Query) ([]*Record, error)

	// Count returns the number of matching records.
	Count(ctx context.Context, query *Query) (int64, error)

	// Delete removes matching records and returns how many were removed.
	Delete(ctx context.Context, query *Query) (int64, error)

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources held by the backend.
	Close() error
}

// Exporter writes records in a serialized format.
type Exporter interface {
	Export(ctx context.Context, records []*Record, w io.Writer) error
}
