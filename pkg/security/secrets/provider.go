package secrets

import "context"

// Provider resolves secret names for one reference scheme.
type Provider interface {
	// GetSecret returns the value stored under name.
	GetSecret(ctx context.Context, name string) (string, error)

	// Scheme is the reference prefix the provider serves ("env", "file").
	Scheme() string
}

// Refresher is implemented by providers that cache values and can drop them.
type Refresher interface {
	Refresh(ctx context.Context) error
}
