package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"mercator-hq/kate/pkg/config"
)

// Reference schemes.
const (
	SchemeEnv  = "env"
	SchemeFile = "file"
)

// refPattern matches ${scheme:name}.
var refPattern = regexp.MustCompile(`\$\{([a-z]+):([^}]+)\}`)

// IsReference reports whether s contains a secret reference.
func IsReference(s string) bool {
	return refPattern.MatchString(s)
}

// Manager resolves secret references through its providers and caches the
// values.
type Manager struct {
	providers map[string]Provider
	cache     *Cache
	logger    *slog.Logger
}

// NewManager creates a manager. A later provider with the same scheme
// replaces an earlier one.
func NewManager(cache *Cache, providers ...Provider) *Manager {
	if cache == nil {
		cache = NewCache(0, 0)
	}
	m := &Manager{
		providers: make(map[string]Provider, len(providers)),
		cache:     cache,
		logger:    slog.Default().With("component", "secrets"),
	}
	for _, p := range providers {
		m.providers[p.Scheme()] = p
	}
	return m
}

// NewManagerFromConfig builds the env provider and, when the secrets
// directory exists, the file provider.
func NewManagerFromConfig(cfg config.SecretsConfig) (*Manager, error) {
	providers := []Provider{NewEnvProvider(cfg.EnvPrefix)}
	if cfg.FileDir != "" {
		fp, err := NewFileProvider(cfg.FileDir, cfg.WatchFiles)
		if err != nil {
			slog.Default().Warn("file secrets disabled", "dir", cfg.FileDir, "error", err)
		} else {
			providers = append(providers, fp)
		}
	}
	return NewManager(NewCache(cfg.CacheTTL, cfg.CacheMaxSize), providers...), nil
}

// GetSecret resolves name through the provider for scheme.
func (m *Manager) GetSecret(ctx context.Context, scheme, name string) (string, error) {
	key := scheme + ":" + name
	if v, ok := m.cache.Get(key); ok {
		return v, nil
	}
	p, ok := m.providers[scheme]
	if !ok {
		return "", fmt.Errorf("no secret provider for scheme %q", scheme)
	}
	v, err := p.GetSecret(ctx, name)
	if err != nil {
		return "", err
	}
	m.cache.Set(key, v)
	return v, nil
}

// Resolve replaces every ${scheme:name} in s. Values without references are
// returned unchanged. Unresolvable references are left in place and
// reported together in the error.
func (m *Manager) Resolve(ctx context.Context, s string) (string, error) {
	var errs []error
	out := refPattern.ReplaceAllStringFunc(s, func(ref string) string {
		parts := refPattern.FindStringSubmatch(ref)
		v, err := m.GetSecret(ctx, parts[1], parts[2])
		if err != nil {
			errs = append(errs, fmt.Errorf("resolve %s: %w", redactRef(parts[1], parts[2]), err))
			return ref
		}
		return v
	})
	return out, errors.Join(errs...)
}

// Refresh clears the cache and refreshes providers that cache values.
func (m *Manager) Refresh(ctx context.Context) error {
	m.cache.Clear()
	var errs []error
	for _, p := range m.providers {
		if r, ok := p.(Refresher); ok {
			if err := r.Refresh(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", p.Scheme(), err))
			}
		}
	}
	m.logger.Info("secrets refreshed")
	return errors.Join(errs...)
}

// Close releases provider resources such as file watchers.
func (m *Manager) Close() error {
	var errs []error
	for _, p := range m.providers {
		if c, ok := p.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// redactRef hides most of a secret name in errors and logs.
func redactRef(scheme, name string) string {
	if len(name) <= 4 {
		return scheme + ":***"
	}
	return scheme + ":" + name[:2] + "..." + name[len(name)-2:]
}
