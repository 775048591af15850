package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"mercator-hq/kate/pkg/config"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestChecker_Readiness(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]CheckFunc
		want   string
	}{
		{name: "no checks", want: StatusReady},
		{
			name: "all healthy",
			checks: map[string]CheckFunc{
				"services":    func(context.Context) error { return nil },
				"request_log": PingCheck(pingerFunc(func(context.Context) error { return nil })),
			},
			want: StatusReady,
		},
		{
			name: "one failing",
			checks: map[string]CheckFunc{
				"services":    func(context.Context) error { return nil },
				"request_log": PingCheck(pingerFunc(func(context.Context) error { return errors.New("connection refused") })),
			},
			want: StatusDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(time.Second)
			for name, check := range tt.checks {
				c.Register(name, check)
			}
			got := c.Readiness(context.Background())
			if got.Status != tt.want {
				t.Errorf("Status = %q, want %q", got.Status, tt.want)
			}
			if len(got.Checks) != len(tt.checks) {
				t.Errorf("got %d results, want %d", len(got.Checks), len(tt.checks))
			}
		})
	}
}

func TestChecker_Timeout(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.Register("slow", func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
		}
		return nil
	})

	got := c.Readiness(context.Background())
	res := got.Checks["slow"]
	if res.Status != StatusUnhealthy || res.Message != ErrCheckTimeout.Error() {
		t.Errorf("slow check = %+v", res)
	}
}

func TestChecker_RegisterUnregister(t *testing.T) {
	c := New(0)
	if c.timeout != config.DefaultHealthCheckTimeout {
		t.Errorf("timeout = %v", c.timeout)
	}
	c.Register("b", func(context.Context) error { return nil })
	c.Register("a", func(context.Context) error { return nil })
	if got := c.Names(); len(got) != 2 || got[0] != "a" {
		t.Errorf("Names() = %v", got)
	}
	c.Unregister("a")
	if got := c.Names(); len(got) != 1 || got[0] != "b" {
		t.Errorf("Names() = %v", got)
	}
}

func TestMount(t *testing.T) {
	c := New(time.Second)
	c.Register("services", func(context.Context) error { return errors.New("store offline") })

	r := chi.NewRouter()
	c.Mount(r, config.HealthConfig{
		Enabled:       true,
		LivenessPath:  "/health",
		ReadinessPath: "/ready",
		VersionPath:   "/version",
	}, NewVersionInfo("1.2.3", "abc", "today"))

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodHead, "/health", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusServiceUnavailable},
		{http.MethodGet, "/version", http.StatusOK},
		{http.MethodPost, "/health", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	var info VersionInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.Version != "1.2.3" || info.GoVersion == "" {
		t.Errorf("version = %+v", info)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	var status Status
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.Checks["services"].Message != "store offline" {
		t.Errorf("ready body = %+v", status)
	}
}

func TestMount_Disabled(t *testing.T) {
	r := chi.NewRouter()
	New(0).Mount(r, config.HealthConfig{Enabled: false, LivenessPath: "/health"}, VersionInfo{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("disabled /health = %d, want 404", rec.Code)
	}
}
