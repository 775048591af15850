package routing

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"mercator-hq/kate/pkg/pipeline"
)

func binding(template, method, service string) *Binding {
	return &Binding{
		Template: template,
		Method:   method,
		Service:  service,
		Pipeline: pipeline.New(nil),
	}
}

func TestTable_RegisterIsIdempotent(t *testing.T) {
	table := NewTable()

	first := table.Register(
		binding("/users/{id}", http.MethodGet, "users"),
		binding("/users/{id}", http.MethodPut, "users"),
	)
	if len(first.Bound) != 2 {
		t.Fatalf("expected 2 bound, got %d", len(first.Bound))
	}

	second := table.Register(
		binding("/users/{id}", http.MethodGet, "users"),
		binding("/users/{id}/", "put", "users"),
	)
	if len(second.Bound) != 0 {
		t.Errorf("expected nothing bound on re-registration, got %v", second.Bound)
	}
	if len(second.Skipped) != 2 {
		t.Errorf("expected 2 skipped, got %v", second.Skipped)
	}
	if table.Len() != 2 {
		t.Errorf("expected 2 bindings, got %d", table.Len())
	}
}

func TestTable_RegisterRejectsOverlap(t *testing.T) {
	table := NewTable()
	table.Register(binding("/users/{id}", http.MethodGet, "users"))

	report := table.Register(
		binding("/users/active", http.MethodGet, "other"),
		binding("/users/active", http.MethodPost, "other"),
	)

	if len(report.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(report.Conflicts))
	}
	if !errors.Is(report.Conflicts[0], ErrRouteConflict) {
		t.Error("conflict does not match ErrRouteConflict")
	}
	if report.Conflicts[0].ExistingService != "users" {
		t.Errorf("ExistingService = %q", report.Conflicts[0].ExistingService)
	}
	if len(report.Bound) != 1 || report.Bound[0].Method != http.MethodPost {
		t.Errorf("expected POST to bind, got %v", report.Bound)
	}
}

func TestTable_Dispatch(t *testing.T) {
	table := NewTable()
	table.Register(
		binding("/users/{id}", http.MethodGet, "users"),
		binding("/orders", http.MethodPost, "orders"),
	)

	tests := []struct {
		name    string
		method  string
		path    string
		wantOK  bool
		wantTpl string
	}{
		{"param route", http.MethodGet, "/users/5", true, "/users/{id}"},
		{"lower case method", "get", "/users/5", true, "/users/{id}"},
		{"wrong method", http.MethodDelete, "/users/5", false, ""},
		{"literal route", http.MethodPost, "/orders", true, "/orders"},
		{"unknown path", http.MethodGet, "/nothing", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, ok := table.Dispatch(tt.method, tt.path)
			if ok != tt.wantOK {
				t.Fatalf("Dispatch ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && b.Template != tt.wantTpl {
				t.Errorf("template = %q, want %q", b.Template, tt.wantTpl)
			}
		})
	}

	if got := table.Allowed("/users/5"); len(got) != 1 || got[0] != http.MethodGet {
		t.Errorf("Allowed() = %v", got)
	}
}

func TestTable_Remove(t *testing.T) {
	table := NewTable()
	table.Register(
		binding("/a", http.MethodGet, "one"),
		binding("/b", http.MethodGet, "two"),
	)

	if n := table.Remove("one"); n != 1 {
		t.Errorf("Remove() = %d, want 1", n)
	}
	if _, ok := table.Dispatch(http.MethodGet, "/a"); ok {
		t.Error("removed binding still dispatches")
	}
	if _, ok := table.Dispatch(http.MethodGet, "/b"); !ok {
		t.Error("unrelated binding was removed")
	}

	table.Clear()
	if table.Len() != 0 {
		t.Errorf("Len() after Clear = %d", table.Len())
	}
}

func TestTable_ConcurrentDispatchDuringRegister(t *testing.T) {
	table := NewTable()
	table.Register(binding("/static", http.MethodGet, "s"))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if _, ok := table.Dispatch(http.MethodGet, "/static"); !ok {
					t.Error("existing binding disappeared during registration")
					return
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		table.Register(binding(fmt.Sprintf("/dyn/%d", i), http.MethodGet, "d"))
	}
	close(stop)
	wg.Wait()

	if table.Len() != 201 {
		t.Errorf("Len() = %d, want 201", table.Len())
	}
}
