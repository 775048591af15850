package proxy

import "time"

// Config holds upstream transport settings.
type Config struct {
	// DialTimeout bounds establishing a TCP connection.
	// Default: 10s
	DialTimeout time.Duration

	// RequestTimeout bounds a request up to its response headers. Buffered
	// responses must also be read in full within it.
	// Default: 10s
	RequestTimeout time.Duration

	// StreamIdleTimeout cuts off a streamed response body when no data
	// arrives for this long.
	// Default: 60s
	StreamIdleTimeout time.Duration

	// ResponseHeaderTimeout bounds waiting for response headers.
	// Default: 10s
	ResponseHeaderTimeout time.Duration

	// IdleConnTimeout closes idle keep-alive connections.
	// Default: 90s
	IdleConnTimeout time.Duration

	// MaxIdleConnsPerHost caps pooled connections per upstream.
	// Default: 32
	MaxIdleConnsPerHost int

	// MaxResponseBytes caps buffered responses (aggregation children and key
	// verification); larger ones fail with ErrResponseTooLarge. Streamed
	// responses are not capped.
	// Default: 10 MiB
	MaxResponseBytes int64
}

// DefaultConfig returns the default upstream settings.
func DefaultConfig() Config {
	return Config{
		DialTimeout:           10 * time.Second,
		RequestTimeout:        10 * time.Second,
		StreamIdleTimeout:     60 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   32,
		MaxResponseBytes:      10 << 20,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.StreamIdleTimeout <= 0 {
		c.StreamIdleTimeout = d.StreamIdleTimeout
	}
	if c.ResponseHeaderTimeout <= 0 {
		c.ResponseHeaderTimeout = d.ResponseHeaderTimeout
	}
	if c.IdleConnTimeout <= 0 {
		c.IdleConnTimeout = d.IdleConnTimeout
	}
	if c.MaxIdleConnsPerHost <= 0 {
		c.MaxIdleConnsPerHost = d.MaxIdleConnsPerHost
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = d.MaxResponseBytes
	}
	return c
}
