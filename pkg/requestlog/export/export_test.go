package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"mercator-hq/kate/pkg/requestlog"
)

func sample() []*requestlog.Record {
	return []*requestlog.Record{
		{
			ID:             "a",
			Timestamp:      time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
			Method:         "GET",
			Path:           "/users/1",
			Route:          "/users/{id}",
			Status:         200,
			Latency:        15 * time.Millisecond,
			AuthType:       requestlog.AuthKey,
			RequestHeaders: map[string]string{"Accept": "*/*"},
		},
		{ID: "b", Method: "POST", Path: "/orders", Status: 429, RateLimited: true},
	}
}

func TestJSONExporter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONExporter(false).Export(context.Background(), sample(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var out []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(out) != 2 || out[0]["uuid"] != "a" || out[1]["responseStatusCode"] != float64(429) {
		t.Errorf("exported = %v", out)
	}
}

func TestJSONExporter_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONExporter(true).Export(context.Background(), nil, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("Export(nil) = %q, want []", buf.String())
	}
}

func TestCSVExporter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewCSVExporter(true).Export(context.Background(), sample(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "uuid" || len(rows[0]) != len(rows[1]) {
		t.Errorf("header = %v", rows[0])
	}

	first := rows[1]
	if first[2] != "2026-02-01T10:00:00Z" {
		t.Errorf("timestamp = %q", first[2])
	}
	if first[10] != "KEY" {
		t.Errorf("auth_type = %q", first[10])
	}
	if first[16] != "15" {
		t.Errorf("latency_ms = %q", first[16])
	}
	if first[18] != `{"Accept":"*/*"}` {
		t.Errorf("request_headers = %q", first[18])
	}

	second := rows[2]
	if second[2] != "" || second[13] != "true" || second[15] != "429" {
		t.Errorf("second row = %v", second)
	}
}

func TestCSVExporter_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	if err := NewCSVExporter(false).Export(ctx, sample(), &buf); err == nil {
		t.Error("Export() with a cancelled context should fail")
	}
}
