package routing

import (
	"net/url"
	"strings"
)

// Segments splits a path into its non-empty "/"-delimited segments.
// Anything after the first "?" is ignored.
func Segments(path string) []string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	segs := parts[:0]
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}

// Canonical returns the template path with duplicate, leading and trailing
// slashes normalized and any query suffix removed.
func Canonical(template string) string {
	return "/" + strings.Join(Segments(template), "/")
}

// IsParam reports whether a template segment is a {name} placeholder.
func IsParam(segment string) bool {
	return len(segment) >= 2 && segment[0] == '{' && segment[len(segment)-1] == '}'
}

// ParamName returns the name inside a {name} segment, or "" for literals.
func ParamName(segment string) string {
	if !IsParam(segment) {
		return ""
	}
	return segment[1 : len(segment)-1]
}

// Matches reports whether the concrete path matches the template.
//
// Both are compared segment by segment. A {name} template segment matches
// any concrete segment; a literal must be equal. Paths with a different
// number of segments never match; there is no catch-all suffix.
func Matches(template, path string) bool {
	t := Segments(template)
	p := Segments(path)
	if len(t) != len(p) {
		return false
	}
	for i, seg := range t {
		if IsParam(seg) {
			continue
		}
		if seg != p[i] {
			return false
		}
	}
	return true
}

// Overlaps reports whether some concrete path would match both templates.
func Overlaps(a, b string) bool {
	sa := Segments(a)
	sb := Segments(b)
	if len(sa) != len(sb) {
		return false
	}
	for i := range sa {
		if IsParam(sa[i]) || IsParam(sb[i]) {
			continue
		}
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// SegmentIndex returns the position of {name} in the template, or -1.
func SegmentIndex(template, name string) int {
	if name == "" {
		return -1
	}
	for i, seg := range Segments(template) {
		if ParamName(seg) == name {
			return i
		}
	}
	return -1
}

// Param returns the concrete value bound to {name} when path matches template.
func Param(template, path, name string) (string, bool) {
	idx := SegmentIndex(template, name)
	if idx < 0 {
		return "", false
	}
	segs := Segments(path)
	if idx >= len(segs) {
		return "", false
	}
	return segs[idx], true
}

// ChildPath translates a call made against an aggregate's parent template into
// the concrete path for one child route.
//
// Every {param} in the child is filled with the call segment found at the
// position of the same-named {param} in the parent template. Params the
// parent does not declare are left untouched. Only query keys declared on the
// child template and present on the call are passed through; all other call
// query parameters are dropped.
//
// Example:
//
//	ChildPath("/users/{id}/summary", "/orders/{id}?status=", "/users/42/summary?status=open&debug=1")
//	// "/orders/42?status=open"
func ChildPath(parentTemplate, childTemplate, callURL string) string {
	parent := Segments(parentTemplate)
	call := Segments(callURL)

	childSegs := Segments(childTemplate)
	out := make([]string, len(childSegs))
	for i, seg := range childSegs {
		out[i] = seg
		name := ParamName(seg)
		if name == "" {
			continue
		}
		for j, ps := range parent {
			if ParamName(ps) == name && j < len(call) {
				out[i] = call[j]
				break
			}
		}
	}

	path := "/" + strings.Join(out, "/")

	declared := queryOf(childTemplate)
	if len(declared) == 0 {
		return path
	}
	given := queryOf(callURL)
	pass := url.Values{}
	for key := range declared {
		if vals, ok := given[key]; ok {
			pass[key] = vals
		}
	}
	if len(pass) == 0 {
		return path
	}
	return path + "?" + pass.Encode()
}

func queryOf(raw string) url.Values {
	i := strings.IndexByte(raw, '?')
	if i < 0 {
		return nil
	}
	q, err := url.ParseQuery(raw[i+1:])
	if err != nil {
		return nil
	}
	return q
}
