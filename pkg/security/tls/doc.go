// Package tls configures the gateway listener for TLS.
//
// Certificates are read from the files named in security.tls and served
// through a Reloader, which polls the files and swaps in renewed
// certificates without restarting the listener:
//
//	reloader, err := tls.NewReloader(cfg.CertFile, cfg.KeyFile, tls.ReloadInterval(cfg))
//	if err != nil {
//		return err
//	}
//	go reloader.Run(ctx)
//
//	tlsConfig, err := tls.ServerConfig(cfg, reloader)
//
// The minimum version is TLS 1.3 unless min_version is "1.2". Cipher suites
// are limited to the ones Go considers secure.
package tls
