package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/kate/pkg/requestlog"
	"mercator-hq/kate/pkg/requestlog/storage"
)

func populate(t *testing.T, s requestlog.Storage, now time.Time, ages ...time.Duration) {
	t.Helper()
	for i, age := range ages {
		r := &requestlog.Record{ID: fmt.Sprintf("r%d", i), Timestamp: now.Add(-age), Status: 200}
		if err := s.Store(context.Background(), r); err != nil {
			t.Fatal(err)
		}
	}
}

func TestPruner_ByAge(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := storage.NewMemoryStorage()
	populate(t, store, now, time.Hour, 48*time.Hour, 10*24*time.Hour, 40*24*time.Hour)

	p := NewPruner(store, &Config{RetentionDays: 7})
	p.now = func() time.Time { return now }

	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	if store.Size() != 2 {
		t.Errorf("remaining = %d, want 2", store.Size())
	}
}

func TestPruner_ByCount(t *testing.T) {
	now := time.Now()
	store := storage.NewMemoryStorage()
	populate(t, store, now, time.Minute, 2*time.Minute, 3*time.Minute, 4*time.Minute, 5*time.Minute)

	p := NewPruner(store, &Config{MaxRecords: 3})
	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	left, _ := store.Query(context.Background(), &requestlog.Query{SortOrder: "asc"})
	if len(left) != 3 || left[0].ID != "r2" {
		t.Errorf("remaining = %d records, oldest %q", len(left), left[0].ID)
	}
}

func TestPruner_UnderLimit(t *testing.T) {
	store := storage.NewMemoryStorage()
	populate(t, store, time.Now(), time.Minute)

	p := NewPruner(store, &Config{RetentionDays: 30, MaxRecords: 10})
	deleted, err := p.Prune(context.Background())
	if err != nil || deleted != 0 {
		t.Errorf("Prune() = %d, %v; want 0, nil", deleted, err)
	}
}

func TestPruner_Archive(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	dir := t.TempDir()
	store := storage.NewMemoryStorage()
	populate(t, store, now, time.Hour, 3*24*time.Hour)

	p := NewPruner(store, &Config{RetentionDays: 1, ArchiveBeforeDelete: true, ArchivePath: dir})
	p.now = func() time.Time { return now }

	if _, err := p.Prune(context.Background()); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "requests-*.json"))
	if len(files) != 1 {
		t.Fatalf("archives = %v, want 1 file", files)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	var archived []requestlog.Record
	if err := json.Unmarshal(data, &archived); err != nil {
		t.Fatalf("archive is not JSON: %v", err)
	}
	if len(archived) != 1 || archived[0].ID != "r1" {
		t.Errorf("archived = %+v", archived)
	}
}

func TestScheduler(t *testing.T) {
	p := NewPruner(storage.NewMemoryStorage(), &Config{RetentionDays: 1, PruneSchedule: "0 3 * * *"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !p.scheduler.IsRunning() {
		t.Error("scheduler should be running")
	}
	if err := p.Start(ctx); err == nil {
		t.Error("second Start() should fail")
	}

	next := p.NextPruning()
	if next == nil || next.Hour() != 3 {
		t.Errorf("NextPruning() = %v, want 03:00", next)
	}

	p.Stop()
	if p.scheduler.IsRunning() {
		t.Error("scheduler should be stopped")
	}
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	p := NewPruner(storage.NewMemoryStorage(), &Config{PruneSchedule: "not a cron"})
	if err := p.Start(context.Background()); err == nil {
		t.Error("Start() with an invalid schedule should fail")
	}
}

func TestScheduler_Disabled(t *testing.T) {
	p := NewPruner(storage.NewMemoryStorage(), &Config{})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if p.scheduler.IsRunning() {
		t.Error("empty schedule should not start the scheduler")
	}
}
