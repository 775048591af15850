package query

import (
	"testing"
	"time"

	"mercator-hq/kate/pkg/requestlog"
)

func TestValidate(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name    string
		query   requestlog.Query
		wantErr bool
	}{
		{"empty", requestlog.Query{}, false},
		{"full", requestlog.Query{StartTime: &earlier, EndTime: &now, Limit: 50, SortBy: "latency_ms", SortOrder: "asc", Status: "error"}, false},
		{"negative limit", requestlog.Query{Limit: -1}, true},
		{"limit too large", requestlog.Query{Limit: MaxLimit + 1}, true},
		{"negative offset", requestlog.Query{Offset: -5}, true},
		{"bad sort field", requestlog.Query{SortBy: "client_ip"}, true},
		{"bad sort order", requestlog.Query{SortOrder: "up"}, true},
		{"inverted window", requestlog.Query{StartTime: &now, EndTime: &earlier}, true},
		{"bad status", requestlog.Query{Status: "teapot"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.query)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	q := &requestlog.Query{}
	ApplyDefaults(q)
	if q.Limit != DefaultLimit || q.SortBy != "timestamp" || q.SortOrder != "desc" {
		t.Errorf("ApplyDefaults() = %+v", q)
	}

	q = &requestlog.Query{Limit: 5, SortBy: "status", SortOrder: "asc"}
	ApplyDefaults(q)
	if q.Limit != 5 || q.SortBy != "status" || q.SortOrder != "asc" {
		t.Errorf("ApplyDefaults() overwrote values: %+v", q)
	}
}
