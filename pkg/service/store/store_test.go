package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/kate/pkg/service"
)

func sampleServices() []service.Service {
	return []service.Service{
		{
			Name:    "users",
			BaseURL: "http://users:8080",
			Routes: []service.Route{{
				URI:     "/users/{id}",
				Methods: []string{"GET"},
				AuthPolicy: &service.AuthPolicy{
					Kind: service.KindJWT,
					JWT:  &service.JWTPolicy{Mode: service.ModeVerify, Secret: "s", Check: "id"},
				},
				RateLimit: &service.RateLimitPolicy{Limit: 3, RefreshTimeSeconds: 10},
			}},
		},
		{Name: "orders", BaseURL: "http://orders:8080"},
	}
}

func testStoreRoundTrip(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() on empty store error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("empty store returned %d services", len(got))
	}

	if err := s.Save(ctx, sampleServices()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 2 || got[0].Name != "users" || got[1].Name != "orders" {
		t.Fatalf("Load() = %+v", got)
	}
	policy := got[0].Routes[0].AuthPolicy
	if policy == nil || policy.Kind != service.KindJWT || policy.JWT.Secret != "s" {
		t.Errorf("auth policy not preserved: %+v", policy)
	}
	if got[0].Routes[0].RateLimit.Limit != 3 {
		t.Errorf("rate limit not preserved")
	}

	if err := s.Delete(ctx); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	got, _ = s.Load(ctx)
	if len(got) != 0 {
		t.Errorf("Load() after Delete returned %d services", len(got))
	}
}

func TestFileStore_JSON(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "services.json"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	testStoreRoundTrip(t, s)
}

func TestFileStore_YAML(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "conf", "services.yaml"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	testStoreRoundTrip(t, s)
}

func TestFileStore_UnsupportedExtension(t *testing.T) {
	_, err := NewFileStore(filepath.Join(t.TempDir(), "services.toml"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	_, err = s.Load(context.Background())
	var serr *Error
	if !errors.As(err, &serr) || serr.Op != "decode" {
		t.Errorf("Load() error = %v, want decode error", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(SQLiteConfig{Path: filepath.Join(t.TempDir(), "services.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	testStoreRoundTrip(t, s)
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.json")
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(s, 30*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	var reloads atomic.Int32
	var lastCount atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = w.Watch(ctx, func(_ context.Context, services []service.Service) error {
			lastCount.Store(int32(len(services)))
			reloads.Add(1)
			return nil
		})
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	if err := s.Save(ctx, sampleServices()); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for reloads.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if reloads.Load() == 0 {
		t.Fatal("watcher did not reload after the file changed")
	}
	if lastCount.Load() != 2 {
		t.Errorf("reloaded %d services, want 2", lastCount.Load())
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestDebouncer_CoalescesTriggers(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	var calls atomic.Int32

	for i := 0; i < 5; i++ {
		d.Trigger(func() { calls.Add(1) })
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(120 * time.Millisecond)

	if calls.Load() != 1 {
		t.Errorf("callback ran %d times, want 1", calls.Load())
	}

	d.Stop()
	d.Trigger(func() { calls.Add(1) })
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 1 {
		t.Errorf("trigger after Stop ran the callback")
	}
}
