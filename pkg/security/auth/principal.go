package auth

import (
	"fmt"
	"strconv"
	"strings"

	"mercator-hq/kate/pkg/service"
)

// Principal is the authenticated caller of one request.
type Principal struct {
	// Kind is the policy that authenticated the caller.
	Kind service.PolicyKind

	// Verified is false for PRESENT-mode tokens, whose claims were not read.
	Verified bool

	// Token is the raw bearer token for signed-token policies.
	Token string

	// Claims are the decoded token claims.
	Claims map[string]any

	// Key is the opaque key for key policies.
	Key string

	// Payload is the verification payload returned for Key.
	Payload map[string]any
}

// Attributes returns the map dot paths are resolved against: the token
// claims or the key payload.
func (p *Principal) Attributes() map[string]any {
	if p == nil {
		return nil
	}
	if p.Kind == service.KindKey {
		return p.Payload
	}
	return p.Claims
}

// Lookup resolves a dot path against Attributes and renders the value as a
// string. Missing values report false.
func (p *Principal) Lookup(path string) (string, bool) {
	v, ok := Resolve(p.Attributes(), path)
	if !ok {
		return "", false
	}
	return Stringify(v), true
}

// Resolve walks a dot-separated path through nested maps. An empty path
// returns m itself.
func Resolve(m map[string]any, path string) (any, bool) {
	if m == nil {
		return nil, false
	}
	if path == "" {
		return m, true
	}

	var cur any = m
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Stringify renders a JSON value the way it appears in a URL segment.
// Integral floats print without a fraction so that 42 matches "42".
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// stringList converts a decoded JSON array to strings. Non-arrays report false.
func stringList(v any) ([]string, bool) {
	switch x := v.(type) {
	case []string:
		return x, true
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			out = append(out, Stringify(item))
		}
		return out, true
	}
	return nil, false
}
