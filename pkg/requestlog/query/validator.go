// Package query validates and normalizes request log queries built from
// admin API parameters.
package query

import (
	"fmt"

	"mercator-hq/kate/pkg/requestlog"
)

const (
	// DefaultLimit is the default number of records to return if not specified.
	DefaultLimit = 100

	// MaxLimit is the maximum number of records a single query may return.
	MaxLimit = 10000
)

// ValidSortFields contains the fields that can be used for sorting.
var ValidSortFields = map[string]bool{
	"timestamp":  true,
	"latency_ms": true,
	"status":     true,
}

// ValidStatuses contains the accepted status filters.
var ValidStatuses = map[string]bool{
	"success":      true,
	"error":        true,
	"rate_limited": true,
}

// Validate returns a *requestlog.QueryError describing the first invalid parameter.
func Validate(q *requestlog.Query) error {
	if q.Limit < 0 {
		return requestlog.NewQueryError(q, fmt.Errorf("limit must be >= 0, got %d", q.Limit))
	}
	if q.Limit > MaxLimit {
		return requestlog.NewQueryError(q, fmt.Errorf("limit must be <= %d, got %d", MaxLimit, q.Limit))
	}
	if q.Offset < 0 {
		return requestlog.NewQueryError(q, fmt.Errorf("offset must be >= 0, got %d", q.Offset))
	}
	if q.SortBy != "" && !ValidSortFields[q.SortBy] {
		return requestlog.NewQueryError(q, fmt.Errorf("invalid sort field: %s", q.SortBy))
	}
	if q.SortOrder != "" && q.SortOrder != "asc" && q.SortOrder != "desc" {
		return requestlog.NewQueryError(q, fmt.Errorf("invalid sort order: %s (must be 'asc' or 'desc')", q.SortOrder))
	}
	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		return requestlog.NewQueryError(q, fmt.Errorf("start_time must be before end_time"))
	}
	if q.Status != "" && !ValidStatuses[q.Status] {
		return requestlog.NewQueryError(q, fmt.Errorf("invalid status: %s (must be 'success', 'error' or 'rate_limited')", q.Status))
	}
	return nil
}

// ApplyDefaults fills in limit and sorting.
func ApplyDefaults(q *requestlog.Query) {
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.SortBy == "" {
		q.SortBy = "timestamp"
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	}
}
