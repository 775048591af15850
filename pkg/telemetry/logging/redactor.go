package logging

import (
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"mercator-hq/kate/pkg/config"
)

// Redactor masks credentials in log output.
type Redactor struct {
	patterns []*redactPattern
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Built-in pattern names.
const (
	PatternBearerToken = "bearer_token"
	PatternBasicAuth   = "basic_auth"
	PatternJWT         = "jwt"
	PatternPassword    = "password"
	PatternURLPassword = "url_password"
)

var defaultPatterns = []struct {
	name        string
	regex       string
	replacement string
}{
	{PatternBearerToken, `Bearer\s+[a-zA-Z0-9\-._~+/]+=*`, "Bearer ***"},
	{PatternBasicAuth, `Basic\s+[a-zA-Z0-9+/]+=*`, "Basic ***"},
	{PatternJWT, `eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]*`, "***.jwt.***"},
	{PatternPassword, `(password|passwd|pwd)[:=]\s*[^\s,&]+`, "$1=***"},
	{PatternURLPassword, `(://[^:/@\s]+):[^@/\s]+@`, "$1:***@"},
}

// NewRedactor creates a Redactor with the built-in patterns followed by
// customPatterns. Custom patterns that fail to compile are skipped.
func NewRedactor(customPatterns []config.RedactPattern) *Redactor {
	r := &Redactor{}
	for _, p := range defaultPatterns {
		r.patterns = append(r.patterns, &redactPattern{
			name:        p.name,
			regex:       regexp.MustCompile(p.regex),
			replacement: p.replacement,
		})
	}
	for _, p := range customPatterns {
		regex, err := regexp.Compile(p.Pattern)
		if err != nil {
			continue
		}
		r.patterns = append(r.patterns, &redactPattern{
			name:        p.Name,
			regex:       regex,
			replacement: p.Replacement,
		})
	}
	return r
}

// RedactString masks every pattern match in value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, pattern := range r.patterns {
		value = pattern.regex.ReplaceAllString(value, pattern.replacement)
	}
	return value
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook. Sensitive keys are
// masked entirely; other string values are pattern-redacted.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString {
		return a
	}
	if IsSensitiveKey(a.Key) {
		return slog.String(a.Key, MaskValue(a.Value.String()))
	}
	if s := a.Value.String(); s != "" {
		if red := r.RedactString(s); red != s {
			return slog.String(a.Key, red)
		}
	}
	return a
}

// RedactHeaders returns a copy of h with credential headers masked, for
// logging request headers.
func (r *Redactor) RedactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		v := strings.Join(values, ", ")
		if IsSensitiveKey(name) {
			v = MaskValue(v)
		} else {
			v = r.RedactString(v)
		}
		out[name] = v
	}
	return out
}

var sensitiveKeys = []string{
	"password", "passwd", "pwd",
	"secret", "token", "api_key", "apikey", "api-key",
	"authorization", "cookie",
	"private_key", "privatekey",
}

// IsSensitiveKey reports whether an attribute or header name holds a
// credential.
func IsSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}

// MaskValue hides a credential, keeping a 4 character prefix of long values
// for correlation.
func MaskValue(v string) string {
	switch {
	case v == "":
		return ""
	case len(v) <= 8:
		return "***"
	default:
		return v[:4] + "***"
	}
}
