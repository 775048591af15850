package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"mercator-hq/kate/pkg/config"
)

// DefaultReloadInterval is how often certificate files are checked for
// changes when the configuration does not say.
const DefaultReloadInterval = 5 * time.Minute

// ServerConfig builds the listener TLS configuration. Certificates are
// served by reloader so that renewed files are picked up without a restart.
func ServerConfig(cfg config.TLSConfig, reloader *Reloader) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if reloader == nil {
		return nil, errors.New("tls: certificate reloader is required")
	}
	suites, err := cipherSuites(cfg.CipherSuites)
	if err != nil {
		return nil, err
	}

	// #nosec G402 - MinVersion is 1.2 or 1.3
	return &tls.Config{
		MinVersion:     minVersion(cfg.MinVersion),
		CipherSuites:   suites,
		GetCertificate: reloader.GetCertificate,
	}, nil
}

// ReloadInterval parses cfg.ReloadInterval, falling back to the default.
func ReloadInterval(cfg config.TLSConfig) time.Duration {
	d, err := time.ParseDuration(cfg.ReloadInterval)
	if err != nil || d <= 0 {
		return DefaultReloadInterval
	}
	return d
}

func minVersion(v string) uint16 {
	if v == "1.2" {
		return tls.VersionTLS12
	}
	return tls.VersionTLS13
}

// cipherSuites maps names to ids. An empty list keeps Go's defaults.
func cipherSuites(names []string) ([]uint16, error) {
	if len(names) == 0 {
		return nil, nil
	}
	known := make(map[string]uint16)
	for _, s := range tls.CipherSuites() {
		known[s.Name] = s.ID
	}

	ids := make([]uint16, 0, len(names))
	for _, name := range names {
		id, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("tls: unknown or insecure cipher suite %q", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
