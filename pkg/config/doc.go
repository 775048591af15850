// Package config provides configuration management for the Kate gateway.
//
// This package handles loading, validating, and managing the process
// configuration: listener settings, upstream transport limits, the service
// definition store, the request log, the key cache, the message broker,
// telemetry and security. Service definitions themselves are not part of
// this file; they live in the services store (see pkg/service/store).
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("kate.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("kate.yaml")
//
// An empty path passed to LoadConfigWithEnvOverrides starts from the
// defaults, so a container can be configured through the environment alone.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention KATE_SECTION_FIELD.
// For example:
//
//   - KATE_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - KATE_REQUEST_LOG_POSTGRES_DSN overrides request_log.postgres.dsn
//   - KATE_CACHE_REDIS_ADDRESSES overrides cache.redis.addresses (comma-separated)
//   - KATE_SECURITY_ADMIN_API_KEYS overrides security.admin.api_keys
//
// Values that fail to parse are ignored.
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Singleton Pattern
//
//	if err := config.Initialize("kate.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg := config.GetConfig()
//
// Components receive their own section explicitly; the singleton exists for
// the CLI and the admin API's reload endpoint.
//
// # Example Configuration
//
//	server:
//	  listen_address: "0.0.0.0:8080"
//
//	services:
//	  backend: file
//	  file_path: services.json
//	  watch: true
//
//	request_log:
//	  backend: sqlite
//	  sqlite:
//	    path: data/requests.db
//	  retention:
//	    days: 30
//
//	cache:
//	  backend: redis
//	  redis:
//	    addresses: ["redis:6379"]
//
//	security:
//	  admin:
//	    api_keys: ["${env:KATE_ADMIN_KEY}"]
package config
