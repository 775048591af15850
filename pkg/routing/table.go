package routing

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"mercator-hq/kate/pkg/pipeline"
)

// Binding attaches a pipeline to one (template, method) pair.
// Bindings are immutable once registered.
type Binding struct {
	// Template is the route path template, e.g. "/users/{id}".
	Template string

	// Method is the upper-case HTTP method.
	Method string

	// Service is the name of the owning service.
	Service string

	// Tag is the route tag, empty for aggregates.
	Tag string

	// Aggregate marks bindings that fan out to child routes.
	Aggregate bool

	// Pipeline is executed for every request dispatched to this binding.
	Pipeline *pipeline.Pipeline
}

// Key identifies a binding.
type Key struct {
	Template string `json:"path"`
	Method   string `json:"method"`
}

// RegisterReport summarizes one Register call.
type RegisterReport struct {
	// Bound lists pairs that were added.
	Bound []Key

	// Skipped lists pairs that were already bound.
	Skipped []Key

	// Conflicts lists templates rejected because they overlap an existing binding.
	Conflicts []*ConflictError
}

// Table is the process-wide routing table.
//
// Readers dispatch against an immutable snapshot loaded atomically and never
// block. Writers are serialized and publish a new snapshot on every change.
type Table struct {
	mu     sync.Mutex
	snap   atomic.Pointer[[]*Binding]
	logger *slog.Logger
}

// NewTable creates an empty routing table.
func NewTable() *Table {
	t := &Table{
		logger: slog.Default().With("component", "routing.table"),
	}
	empty := make([]*Binding, 0)
	t.snap.Store(&empty)
	return t
}

// Register adds bindings to the table.
//
// A (template, method) pair that is already bound is skipped, which makes
// registering the same service twice a no-op. A template that overlaps an
// existing binding for the same method is rejected.
func (t *Table) Register(bindings ...*Binding) RegisterReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := *t.snap.Load()
	next := make([]*Binding, len(current), len(current)+len(bindings))
	copy(next, current)

	var report RegisterReport
	for _, b := range bindings {
		b.Method = strings.ToUpper(b.Method)
		key := Key{Template: b.Template, Method: b.Method}

		if existing := find(next, b.Template, b.Method); existing != nil {
			report.Skipped = append(report.Skipped, key)
			continue
		}

		if clash := overlapping(next, b.Template, b.Method); clash != nil {
			conflict := &ConflictError{
				Method:          b.Method,
				Template:        b.Template,
				Existing:        clash.Template,
				ExistingService: clash.Service,
			}
			t.logger.Warn("route rejected", "error", conflict.Error(), "service", b.Service)
			report.Conflicts = append(report.Conflicts, conflict)
			continue
		}

		next = append(next, b)
		report.Bound = append(report.Bound, key)
		t.logger.Debug("route bound",
			"method", b.Method,
			"path", b.Template,
			"service", b.Service,
			"stages", b.Pipeline.Names(),
		)
	}

	if len(report.Bound) > 0 {
		t.snap.Store(&next)
	}
	return report
}

// Remove drops every binding owned by service and returns how many were removed.
func (t *Table) Remove(service string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := *t.snap.Load()
	next := make([]*Binding, 0, len(current))
	for _, b := range current {
		if b.Service != service {
			next = append(next, b)
		}
	}
	removed := len(current) - len(next)
	if removed > 0 {
		t.snap.Store(&next)
	}
	return removed
}

// Clear removes all bindings.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	empty := make([]*Binding, 0)
	t.snap.Store(&empty)
}

// Dispatch returns the binding matching method and path.
func (t *Table) Dispatch(method, path string) (*Binding, bool) {
	method = strings.ToUpper(method)
	for _, b := range *t.snap.Load() {
		if b.Method == method && Matches(b.Template, path) {
			return b, true
		}
	}
	return nil, false
}

// Allowed returns the methods bound to templates matching path. It is used
// to tell 404 from 405.
func (t *Table) Allowed(path string) []string {
	var methods []string
	for _, b := range *t.snap.Load() {
		if Matches(b.Template, path) {
			methods = append(methods, b.Method)
		}
	}
	return methods
}

// Bindings returns the current snapshot. Callers must not modify it.
func (t *Table) Bindings() []*Binding {
	return *t.snap.Load()
}

// Len returns the number of bindings.
func (t *Table) Len() int {
	return len(*t.snap.Load())
}

func find(bindings []*Binding, template, method string) *Binding {
	for _, b := range bindings {
		if b.Method == method && Canonical(b.Template) == Canonical(template) {
			return b
		}
	}
	return nil
}

func overlapping(bindings []*Binding, template, method string) *Binding {
	for _, b := range bindings {
		if b.Method == method && Overlaps(b.Template, template) {
			return b
		}
	}
	return nil
}

// IsMethod reports whether m is an HTTP method the gateway can bind.
func IsMethod(m string) bool {
	switch strings.ToUpper(m) {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
