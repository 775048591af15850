package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/kate/pkg/config"
	"mercator-hq/kate/pkg/server"
)

func TestBuildComponents_EndToEnd(t *testing.T) {
	var upstreamPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"7"}`)
	}))
	defer upstream.Close()

	services := writeFile(t, "services.json", `[{
		"name": "users",
		"baseUrl": "`+upstream.URL+`",
		"routes": [{"uri": "/users/{id}", "methods": ["GET"]}]
	}]`)

	cfg := config.NewDefaultConfig()
	cfg.Services.FilePath = services
	cfg.Services.Watch = false
	cfg.RequestLog.Enabled = true
	cfg.RequestLog.Backend = "memory"
	cfg.RequestLog.Retention.PruneSchedule = ""
	cfg.Telemetry.Metrics.Enabled = true
	cfg.Telemetry.Tracing.Enabled = false
	cfg.Security.Admin.APIKeys = []string{"admin-key"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	comps, err := buildComponents(ctx, cfg)
	if err != nil {
		t.Fatalf("buildComponents: %v", err)
	}
	defer comps.Close()

	if n := comps.gateway.Table().Len(); n != 1 {
		t.Fatalf("routes = %d, want 1", n)
	}
	h := server.New(cfg, comps.handlers()).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/7", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != `{"id":"7"}` {
		t.Fatalf("GET /users/7 = %d %s", rec.Code, rec.Body.String())
	}
	if upstreamPath != "/users/7" {
		t.Errorf("upstream path = %q", upstreamPath)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, cfg.Telemetry.Metrics.Path, nil))
	if !strings.Contains(rec.Body.String(), "kate_requests_total") {
		t.Errorf("metrics missing kate_requests_total:\n%s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("ready = %d %s", rec.Code, rec.Body.String())
	}

	// The recorder writes asynchronously.
	deadline := time.Now().Add(5 * time.Second)
	for {
		req := httptest.NewRequest(http.MethodGet, "/_dashboard/logs?service=users", nil)
		req.Header.Set("Authorization", "Bearer admin-key")
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("logs = %d %s", rec.Code, rec.Body.String())
		}
		var resp struct {
			Data struct {
				Total int64 `json:"total"`
			} `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode logs: %v", err)
		}
		if resp.Data.Total == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("request was not recorded: %s", rec.Body.String())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestBuildComponents_InvalidStoredServices(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Services.FilePath = writeFile(t, "services.json", `[{"name": "broken", "baseUrl": "http://x", "routes": [{"uri": "no-slash"}]}]`)
	cfg.RequestLog.Enabled = false
	cfg.Telemetry.Tracing.Enabled = false

	if _, err := buildComponents(context.Background(), cfg); err == nil {
		t.Fatal("invalid stored services should fail startup")
	}
}
