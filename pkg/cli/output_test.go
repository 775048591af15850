package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type routeRows []struct{ path, method string }

func (r routeRows) Table() Table {
	t := Table{Headers: []string{"PATH", "METHOD"}}
	for _, row := range r {
		t.Rows = append(t.Rows, []string{row.path, row.method})
	}
	return t
}

var sampleRoutes = routeRows{
	{"/users/{id}", "GET"},
	{"/orders", "POST"},
}

func TestTextFormatter(t *testing.T) {
	t.Run("plain value", func(t *testing.T) {
		buf := &bytes.Buffer{}
		if err := (&TextFormatter{}).FormatTo(buf, "test message"); err != nil {
			t.Fatalf("FormatTo() error = %v", err)
		}
		if buf.String() != "test message\n" {
			t.Errorf("FormatTo() = %q", buf.String())
		}
	})

	t.Run("table", func(t *testing.T) {
		buf := &bytes.Buffer{}
		if err := (&TextFormatter{}).FormatTo(buf, sampleRoutes); err != nil {
			t.Fatalf("FormatTo() error = %v", err)
		}
		want := "PATH         METHOD\n/users/{id}  GET\n/orders      POST\n"
		if buf.String() != want {
			t.Errorf("FormatTo() =\n%s\nwant\n%s", buf.String(), want)
		}
	})
}

func TestJSONFormatter(t *testing.T) {
	buf := &bytes.Buffer{}
	data := map[string]string{"test": "value"}
	if err := (&JSONFormatter{Indent: true}).FormatTo(buf, data); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	var result map[string]string
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("FormatTo() produced invalid JSON: %v", err)
	}
	if result["test"] != "value" {
		t.Errorf("FormatTo() = %v, want %v", result, data)
	}
	if !strings.Contains(buf.String(), "\n  \"test\"") {
		t.Errorf("expected indented output, got %q", buf.String())
	}
}

func TestYAMLFormatter(t *testing.T) {
	buf := &bytes.Buffer{}
	data := map[string]any{"name": "users", "routes": []string{"/users"}}
	if err := (&YAMLFormatter{}).FormatTo(buf, data); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	var result map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("FormatTo() produced invalid YAML: %v", err)
	}
	if result["name"] != "users" {
		t.Errorf("name = %v", result["name"])
	}
}

func TestCSVFormatter(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := (&CSVFormatter{}).FormatTo(buf, sampleRoutes); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	want := "PATH,METHOD\n/users/{id},GET\n/orders,POST\n"
	if buf.String() != want {
		t.Errorf("FormatTo() = %q, want %q", buf.String(), want)
	}

	if err := (&CSVFormatter{}).FormatTo(buf, "scalar"); !errors.Is(err, ErrNotTabular) {
		t.Errorf("FormatTo(scalar) error = %v, want ErrNotTabular", err)
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format  OutputFormat
		want    string
		wantErr bool
	}{
		{format: FormatText, want: "*cli.TextFormatter"},
		{format: "", want: "*cli.TextFormatter"},
		{format: FormatJSON, want: "*cli.JSONFormatter"},
		{format: FormatYAML, want: "*cli.YAMLFormatter"},
		{format: FormatCSV, want: "*cli.CSVFormatter"},
		{format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			formatter, err := NewFormatter(tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFormatter(%q) error = %v", tt.format, err)
			}
			if tt.wantErr {
				return
			}
			if got := fmt.Sprintf("%T", formatter); got != tt.want {
				t.Errorf("NewFormatter(%q) type = %v, want %v", tt.format, got, tt.want)
			}
		})
	}
}
