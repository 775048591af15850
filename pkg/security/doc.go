/*
Package security groups the gateway's transport and credential handling.

# TLS

The listener serves certificates through a reloader that polls the files
and swaps in renewed pairs:

	reloader, err := tls.NewReloader(cfg.CertFile, cfg.KeyFile, tls.ReloadInterval(cfg))
	if err != nil {
		return err
	}
	tlsConfig, err := tls.ServerConfig(cfg, reloader)
	go reloader.Run(ctx)

# Secrets

Configuration values such as JWT secrets, the Redis password and the
request log DSN may be references resolved at startup:

	manager, err := secrets.NewManagerFromConfig(cfg.Security.Secrets)
	secret, err := manager.Resolve(ctx, "${env:USERS_JWT_SECRET}")

Plain values are returned unchanged.

# Authentication

The auth package verifies route credentials (signed tokens and opaque keys
checked against a verify endpoint) and guards the admin API:

	keys := auth.NewAdminKeys(adminKey)
	r.Use(auth.RequireAdmin(keys, deny))
*/
package security
