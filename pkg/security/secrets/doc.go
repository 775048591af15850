// Package secrets resolves secret references written in configuration and
// service definitions.
//
// A reference is ${scheme:name}. Two schemes are served:
//
//	${env:JWT_SECRET}       environment variable (with an optional prefix)
//	${file:broker-password} file under the secrets directory, mode 0600/0400
//
// References may appear in a signed-token policy's jwtSecret, a message
// queue password, a Redis password, a PostgreSQL DSN and admin API keys.
// The gateway resolves them when a service is registered, so a missing
// secret fails registration instead of the first request.
//
//	mgr, err := secrets.NewManagerFromConfig(cfg.Security.Secrets)
//	secret, err := mgr.Resolve(ctx, policy.Secret)
//
// Resolved values are cached for the configured TTL. Setting watch_files
// drops cached file values when the directory changes.
package secrets
