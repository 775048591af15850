package recorder

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/kate/pkg/requestlog"
	"mercator-hq/kate/pkg/requestlog/storage"
)

func TestRecorder_RecordAndClose(t *testing.T) {
	store := storage.NewMemoryStorage()
	rec := NewRecorder(store, DefaultConfig())

	for i := 0; i < 10; i++ {
		if err := rec.Record(context.Background(), &requestlog.Record{Path: "/users", Timestamp: time.Now(), Status: 200}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if store.Size() != 10 {
		t.Errorf("stored %d records, want 10", store.Size())
	}
	records, _ := store.Query(context.Background(), &requestlog.Query{})
	for _, r := range records {
		if r.ID == "" {
			t.Error("record stored without an ID")
		}
	}
}

func TestRecorder_SkipsAdminPaths(t *testing.T) {
	store := storage.NewMemoryStorage()
	rec := NewRecorder(store, DefaultConfig())

	_ = rec.Record(context.Background(), &requestlog.Record{Path: "/_services"})
	_ = rec.Record(context.Background(), &requestlog.Record{Path: "/_dashboard/home"})
	_ = rec.Record(context.Background(), &requestlog.Record{Path: "/users"})
	rec.Close()

	if store.Size() != 1 {
		t.Errorf("stored %d records, want 1", store.Size())
	}
}

func TestRecorder_Disabled(t *testing.T) {
	store := storage.NewMemoryStorage()
	cfg := DefaultConfig()
	cfg.Enabled = false
	rec := NewRecorder(store, cfg)

	_ = rec.Record(context.Background(), &requestlog.Record{Path: "/users"})
	rec.Close()

	if store.Size() != 0 {
		t.Errorf("disabled recorder stored %d records", store.Size())
	}
}

func TestRecorder_AfterClose(t *testing.T) {
	rec := NewRecorder(storage.NewMemoryStorage(), DefaultConfig())
	rec.Close()

	var dropped atomic.Int32
	rec.OnDrop = func(*requestlog.Record) { dropped.Add(1) }

	err := rec.Record(context.Background(), &requestlog.Record{Path: "/users"})
	if !errors.Is(err, requestlog.ErrClosed) {
		t.Fatalf("Record() after Close = %v, want ErrClosed", err)
	}
	if dropped.Load() != 1 {
		t.Errorf("OnDrop called %d times, want 1", dropped.Load())
	}
	if err := rec.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestRecorder_Headers(t *testing.T) {
	rec := NewRecorder(storage.NewMemoryStorage(), DefaultConfig())
	defer rec.Close()
	rec.RedactHeader("x-user-key")

	h := http.Header{}
	h.Set("Authorization", "Bearer abc")
	h.Set("X-User-Key", "k-123")
	h.Add("Accept", "text/plain")
	h.Add("Accept", "application/json")

	got := rec.Headers(h)

	if got["Accept"] != "text/plain, application/json" {
		t.Errorf("Accept = %q", got["Accept"])
	}
	if got["Authorization"] != RedactSecret("Bearer abc") {
		t.Errorf("Authorization not redacted: %q", got["Authorization"])
	}
	if !strings.HasPrefix(got["X-User-Key"], "sha256:") {
		t.Errorf("X-User-Key not redacted: %q", got["X-User-Key"])
	}
	if rec.Headers(nil) != nil {
		t.Error("Headers(nil) should be nil")
	}
}

func TestRecorder_Body(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBodyLength = 8
	rec := NewRecorder(storage.NewMemoryStorage(), cfg)
	defer rec.Close()

	if got := rec.Body([]byte("0123456789")); got != "01234..." {
		t.Errorf("Body() = %q", got)
	}
	if got := rec.Body([]byte("short")); got != "short" {
		t.Errorf("Body() = %q", got)
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"hello", 2, "he"},
		{"hello", 0, "hello"},
	}
	for _, tt := range tests {
		if got := TruncateString(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateString(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestRedactSecret(t *testing.T) {
	if RedactSecret("") != "" {
		t.Error("empty value should stay empty")
	}
	a, b := RedactSecret("secret"), RedactSecret("secret")
	if a != b || !strings.HasPrefix(a, "sha256:") || len(a) != len("sha256:")+64 {
		t.Errorf("RedactSecret() = %q", a)
	}
}
