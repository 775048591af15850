package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"mercator-hq/kate/pkg/requestlog"
)

// CSVExporter exports records as CSV rows.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

var csvHeader = []string{
	"uuid", "request_id", "timestamp", "client_ip", "method", "path", "query",
	"matched_route", "service", "upstream_url", "auth_type",
	"authentication_success", "authorization_success", "rate_limited", "stage",
	"status", "latency_ms", "upstream_latency_ms", "request_headers", "error",
}

// Export writes records to w. Header maps are flattened to JSON.
func (e *CSVExporter) Export(ctx context.Context, records []*requestlog.Record, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return requestlog.NewExportError("csv", len(records), err)
		}
	}

	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writer.Write(recordToRow(r)); err != nil {
			return requestlog.NewExportError("csv", len(records), err)
		}
		if (i+1)%100 == 0 {
			writer.Flush()
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return requestlog.NewExportError("csv", len(records), err)
	}
	return nil
}

func recordToRow(r *requestlog.Record) []string {
	headers := ""
	if len(r.RequestHeaders) > 0 {
		data, _ := json.Marshal(r.RequestHeaders)
		headers = string(data)
	}
	ts := ""
	if !r.Timestamp.IsZero() {
		ts = r.Timestamp.UTC().Format(time.RFC3339Nano)
	}

	return []string{
		r.ID,
		r.RequestID,
		ts,
		r.ClientIP,
		r.Method,
		r.Path,
		r.Query,
		r.Route,
		r.Service,
		r.UpstreamURL,
		string(r.AuthType),
		strconv.FormatBool(r.AuthenticationSuccess),
		strconv.FormatBool(r.AuthorizationSuccess),
		strconv.FormatBool(r.RateLimited),
		r.Stage,
		strconv.Itoa(r.Status),
		strconv.FormatInt(r.Latency.Milliseconds(), 10),
		strconv.FormatInt(r.UpstreamLatency.Milliseconds(), 10),
		headers,
		r.Error,
	}
}
