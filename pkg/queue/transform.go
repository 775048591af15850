package queue

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"mercator-hq/kate/pkg/routing"
	"mercator-hq/kate/pkg/service"
)

// Source is the request data a transformation may read from.
type Source struct {
	// Template is the matched route template.
	Template string

	// Path is the concrete request path.
	Path string

	// Header is the inbound request header.
	Header http.Header

	// Lookup resolves a dot path against the authenticated caller. Nil
	// when the route is unauthenticated.
	Lookup func(path string) (string, bool)
}

// Value reads the value a transformation copies into the body. Values that
// cannot be found resolve to the empty string.
func (s Source) Value(t *service.Transformation) string {
	switch t.SourceOrDefault() {
	case service.SourcePath:
		name := strings.TrimSuffix(strings.TrimPrefix(t.FromKey, "{"), "}")
		idx := routing.SegmentIndex(s.Template, name)
		segs := routing.Segments(s.Path)
		if idx < 0 || len(segs) != len(routing.Segments(s.Template)) {
			return ""
		}
		return segs[idx]
	case service.SourceHeader:
		return s.Header.Get(t.FromKey)
	case service.SourceKey:
		if s.Lookup == nil {
			return ""
		}
		v, _ := s.Lookup(t.FromKey)
		return v
	}
	return ""
}

// Transform rewrites a JSON object body:
//
//  1. the source value is stored under ToKey unless the body already has it;
//  2. when DataBody is set ("meta=x,data=body"), the body is rebuilt as a
//     flat object whose "body" values are replaced by the augmented body.
//
// A body that is not a JSON object fails with ErrNotObject.
func Transform(body []byte, t *service.Transformation, src Source) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, ErrNotObject
	}

	if _, ok := obj[t.ToKey]; !ok {
		obj[t.ToKey] = src.Value(t)
	}

	if t.DataBody == "" {
		return json.Marshal(obj)
	}

	out := make(map[string]any)
	for _, pair := range strings.Split(t.DataBody, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		if value = strings.TrimSpace(value); value == "body" {
			out[key] = obj
		} else {
			out[key] = value
		}
	}
	return json.Marshal(out)
}
