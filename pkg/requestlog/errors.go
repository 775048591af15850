package requestlog

import (
	"errors"
	"fmt"
)

// ErrClosed is the cause of records offered to a closed recorder.
var ErrClosed = errors.New("request log closed")

// StorageError is a failed backend operation.
type StorageError struct {
	Backend string // memory, sqlite or postgres
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("request log %s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err as a failure of op on backend.
func NewStorageError(backend, op string, err error) *StorageError {
	return &StorageError{Backend: backend, Op: op, Err: err}
}

// QueryError is a search the backends refuse to run.
type QueryError struct {
	Query *Query
	Err   error
}

func (e *QueryError) Error() string { return "invalid request log query: " + e.Err.Error() }

func (e *QueryError) Unwrap() error { return e.Err }

// NewQueryError reports why q is invalid.
func NewQueryError(q *Query, err error) *QueryError {
	return &QueryError{Query: q, Err: err}
}

// RecorderError is a record the recorder dropped.
type RecorderError struct {
	RecordID string
	Err      error
}

func (e *RecorderError) Error() string {
	if e.RecordID == "" {
		return "record dropped: " + e.Err.Error()
	}
	return fmt.Sprintf("record %s dropped: %v", e.RecordID, e.Err)
}

func (e *RecorderError) Unwrap() error { return e.Err }

// NewRecorderError reports a dropped record.
func NewRecorderError(recordID string, err error) *RecorderError {
	return &RecorderError{RecordID: recordID, Err: err}
}

// RetentionError is a failed pruning run.
type RetentionError struct {
	Days int
	Err  error
}

func (e *RetentionError) Error() string {
	return fmt.Sprintf("pruning records older than %d days: %v", e.Days, e.Err)
}

func (e *RetentionError) Unwrap() error { return e.Err }

// NewRetentionError reports a failed pruning run for a retention of days.
func NewRetentionError(days int, err error) *RetentionError {
	return &RetentionError{Days: days, Err: err}
}

// ExportError is a failed export of count records.
type ExportError struct {
	Format string
	Count  int
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("exporting %d records as %s: %v", e.Count, e.Format, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// NewExportError reports a failed export.
func NewExportError(format string, count int, err error) *ExportError {
	return &ExportError{Format: format, Count: count, Err: err}
}
