package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"mercator-hq/kate/pkg/config"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %q", buf.String())
	}
	return entry
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "defaults", config: Config{}},
		{name: "text debug", config: Config{Level: "DEBUG", Format: "text"}},
		{name: "console alias", config: Config{Format: "console"}},
		{name: "bad level", config: Config{Level: "verbose"}, wantErr: true},
		{name: "bad format", config: Config{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Writer = &bytes.Buffer{}
			logger, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && logger == nil {
				t.Fatal("New() returned nil logger")
			}
		})
	}
}

func TestLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level, got %q", buf.String())
	}
	logger.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("warn should be logged, got %q", buf.String())
	}
}

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithRoute(ctx, "users", "/users/{id}")
	ctx = WithTraceID(ctx, "abc123")
	logger.With("component", "test").InfoContext(ctx, "forwarded", "status", 200)

	entry := decodeLine(t, &buf)
	want := map[string]any{
		"request_id": "req-1",
		"service":    "users",
		"route":      "/users/{id}",
		"trace_id":   "abc123",
		"component":  "test",
		"msg":        "forwarded",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("entry[%q] = %v, want %v", k, entry[k], v)
		}
	}
}

func TestLogger_Redaction(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{
		Writer: &buf,
		Redact: true,
		RedactPatterns: []config.RedactPattern{
			{Name: "card", Pattern: `\d{4}-\d{4}-\d{4}-\d{4}`, Replacement: "****"},
			{Name: "broken", Pattern: `(`, Replacement: "x"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("call",
		"authorization", "Bearer abcdefghijklmnop",
		"header", "Bearer abcdefghijklmnop",
		"dsn", "postgres://kate:hunter2@db:5432/kate",
		"card", "4111-1111-1111-1111",
		"path", "/users/42",
	)

	entry := decodeLine(t, &buf)
	if entry["authorization"] != "Bear***" {
		t.Errorf("authorization = %v", entry["authorization"])
	}
	if entry["header"] != "Bearer ***" {
		t.Errorf("header = %v", entry["header"])
	}
	if entry["dsn"] != "postgres://kate:***@db:5432/kate" {
		t.Errorf("dsn = %v", entry["dsn"])
	}
	if entry["card"] != "****" {
		t.Errorf("card = %v", entry["card"])
	}
	if entry["path"] != "/users/42" {
		t.Errorf("path = %v", entry["path"])
	}
}

func TestRedactor_RedactHeaders(t *testing.T) {
	r := NewRedactor(nil)
	h := http.Header{
		"Authorization": []string{"Bearer eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxIn0.sig"},
		"X-Api-Key":     []string{"k"},
		"Accept":        []string{"application/json"},
	}

	got := r.RedactHeaders(h)
	if got["Authorization"] != "Bear***" {
		t.Errorf("Authorization = %q", got["Authorization"])
	}
	if got["X-Api-Key"] != "***" {
		t.Errorf("X-Api-Key = %q", got["X-Api-Key"])
	}
	if got["Accept"] != "application/json" {
		t.Errorf("Accept = %q", got["Accept"])
	}
}

func TestRedactor_RedactString(t *testing.T) {
	r := NewRedactor(nil)
	tests := []struct {
		in, want string
	}{
		{"token eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxIn0.c2ln here", "token ***.jwt.*** here"},
		{"Basic dXNlcjpwYXNz", "Basic ***"},
		{"password=hunter2&x=1", "password=***&x=1"},
		{"nothing to hide", "nothing to hide"},
	}
	for _, tt := range tests {
		if got := r.RedactString(tt.in); got != tt.want {
			t.Errorf("RedactString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}

func TestSetupAndComponent(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	if _, err := Setup(Config{Writer: &buf}); err != nil {
		t.Fatal(err)
	}
	Component("queue").Info("hello")

	entry := decodeLine(t, &buf)
	if entry["component"] != "queue" {
		t.Errorf("component = %v", entry["component"])
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.LoggingConfig{Level: "debug", Format: "text", AddSource: true})
	if cfg.Level != "debug" || cfg.Format != "text" || !cfg.AddSource || !cfg.Redact {
		t.Errorf("FromConfig() = %+v", cfg)
	}
}
