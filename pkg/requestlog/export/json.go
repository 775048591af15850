package export

import (
	"context"
	"encoding/json"
	"io"

	"mercator-hq/kate/pkg/requestlog"
)

// JSONExporter exports records as a JSON array.
type JSONExporter struct {
	// Pretty enables indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Export writes records to w. An empty slice is written as "[]".
func (e *JSONExporter) Export(ctx context.Context, records []*requestlog.Record, w io.Writer) error {
	if records == nil {
		records = []*requestlog.Record{}
	}

	enc := json.NewEncoder(w)
	if e.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(records); err != nil {
		return requestlog.NewExportError("json", len(records), err)
	}
	return nil
}
