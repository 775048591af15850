package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider resolves ${env:NAME} references from the process environment.
//
// Names are upper-cased and hyphens become underscores, then Prefix is
// prepended: with prefix "KATE_SECRET_", "jwt-secret" reads
// KATE_SECRET_JWT_SECRET.
type EnvProvider struct {
	Prefix string
}

// NewEnvProvider creates an environment provider.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix}
}

// GetSecret reads the variable for name. An unset or empty variable is an error.
func (p *EnvProvider) GetSecret(_ context.Context, name string) (string, error) {
	envVar := p.EnvVar(name)
	value, ok := os.LookupEnv(envVar)
	if !ok || value == "" {
		return "", fmt.Errorf("secret %q not found in environment (%s)", name, envVar)
	}
	return value, nil
}

// EnvVar returns the variable name read for name.
func (p *EnvProvider) EnvVar(name string) string {
	return p.Prefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// Scheme implements Provider.
func (p *EnvProvider) Scheme() string {
	return SchemeEnv
}
