package proxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"mercator-hq/kate/pkg/pipeline"
)

// Observer is notified of every upstream exchange. status is 0 when err is set.
type Observer interface {
	ObserveUpstream(upstream string, status int, duration time.Duration, err error)
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithObserver reports upstream exchanges to o.
func WithObserver(o Observer) Option {
	return func(f *Forwarder) { f.observer = o }
}

// WithPropagator injects trace context with p instead of the global propagator.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(f *Forwarder) { f.propagator = p }
}

// WithTransport replaces the HTTP transport, mainly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Forwarder) { f.client.Transport = rt }
}

// Forwarder relays requests to upstream services. It never follows
// redirects and treats every HTTP status as a response, not an error.
type Forwarder struct {
	client     *http.Client
	config     Config
	observer   Observer
	propagator propagation.TextMapPropagator
	logger     *slog.Logger
}

// NewForwarder creates a forwarder with its own connection pool.
func NewForwarder(cfg Config, opts ...Option) *Forwarder {
	cfg = cfg.withDefaults()

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxIdleConnsPerHost * 4,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		TLSHandshakeTimeout:   cfg.DialTimeout,
	}

	f := &Forwarder{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		config: cfg,
		logger: slog.Default().With("component", "proxy.forwarder"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Target joins baseURL and the request URI of in.
func Target(baseURL string, in *http.Request) string {
	uri := in.RequestURI
	if uri == "" {
		uri = in.URL.RequestURI()
	}
	return JoinURL(baseURL, uri)
}

// JoinURL joins a base URL and a path with exactly one slash between them.
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// Forward sends in to baseURL with the same method and request URI. body
// replaces in.Body; pass the exchange's body reader so a buffered body is
// reused. RequestTimeout bounds the wait for response headers. The body is
// then streamed and only cut off after StreamIdleTimeout without data;
// closing it releases the upstream.
func (f *Forwarder) Forward(ctx context.Context, in *http.Request, body io.Reader, baseURL string) (*pipeline.Response, error) {
	target := Target(baseURL, in)

	ctx, cancel := context.WithCancel(ctx)
	out, err := http.NewRequestWithContext(ctx, in.Method, target, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if out.ContentLength == 0 && in.ContentLength > 0 {
		out.ContentLength = in.ContentLength
	}
	out.Header = ForwardHeaders(in)
	f.inject(ctx, out.Header)

	start := time.Now()
	deadline := time.AfterFunc(f.config.RequestTimeout, cancel)
	resp, err := f.client.Do(out)
	if !deadline.Stop() {
		if err == nil {
			resp.Body.Close()
		}
		err = fmt.Errorf("no response headers within %s: %w", f.config.RequestTimeout, context.DeadlineExceeded)
	}
	if err != nil {
		cancel()
		f.observe(target, 0, time.Since(start), err)
		return nil, &UpstreamError{URL: target, Err: err}
	}
	f.observe(target, resp.StatusCode, time.Since(start), nil)

	header := make(http.Header)
	for k, vals := range resp.Header {
		if strings.HasPrefix(k, "X-") || strings.HasPrefix(k, "Content-") {
			header[k] = append([]string(nil), vals...)
		}
	}

	return &pipeline.Response{
		Status: resp.StatusCode,
		Header: header,
		Stream: newIdleBody(resp.Body, f.config.StreamIdleTimeout, cancel),
	}, nil
}

// Fetched is a fully buffered upstream response.
type Fetched struct {
	Status int
	Header http.Header
	Body   []byte
}

// Fetch performs a GET to url with header and buffers the response.
func (f *Forwarder) Fetch(ctx context.Context, url string, header http.Header) (*Fetched, error) {
	ctx, cancel := context.WithTimeout(ctx, f.config.RequestTimeout)
	defer cancel()

	out, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if header != nil {
		out.Header = header.Clone()
	}
	// Left to the transport, which then decodes compressed bodies itself.
	out.Header.Del("Accept-Encoding")
	f.inject(ctx, out.Header)

	start := time.Now()
	resp, err := f.client.Do(out)
	if err != nil {
		f.observe(url, 0, time.Since(start), err)
		return nil, &UpstreamError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxResponseBytes+1))
	if err == nil && int64(len(body)) > f.config.MaxResponseBytes {
		err = fmt.Errorf("%w (%d bytes)", ErrResponseTooLarge, f.config.MaxResponseBytes)
	}
	f.observe(url, resp.StatusCode, time.Since(start), err)
	if err != nil {
		return nil, &UpstreamError{URL: url, Err: err}
	}
	return &Fetched{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// Get implements auth.Fetcher.
func (f *Forwarder) Get(ctx context.Context, url string, header http.Header) (int, []byte, error) {
	res, err := f.Fetch(ctx, url, header)
	if err != nil {
		return 0, nil, err
	}
	return res.Status, res.Body, nil
}

// ForwardHeaders copies the headers of in except Content-Length and
// appends the caller to X-Forwarded-For.
func ForwardHeaders(in *http.Request) http.Header {
	out := make(http.Header, len(in.Header)+1)
	for k, vals := range in.Header {
		if k == "Content-Length" {
			continue
		}
		out[k] = append([]string(nil), vals...)
	}

	if host, _, err := net.SplitHostPort(in.RemoteAddr); err == nil {
		if prior := out.Get("X-Forwarded-For"); prior != "" {
			host = prior + ", " + host
		}
		out.Set("X-Forwarded-For", host)
	}
	return out
}

func (f *Forwarder) inject(ctx context.Context, h http.Header) {
	p := f.propagator
	if p == nil {
		p = otel.GetTextMapPropagator()
	}
	p.Inject(ctx, propagation.HeaderCarrier(h))
}

func (f *Forwarder) observe(target string, status int, d time.Duration, err error) {
	if err != nil {
		f.logger.Warn("upstream request failed",
			"upstream", target,
			"duration_ms", d.Milliseconds(),
			"error", err,
		)
	}
	if f.observer != nil {
		f.observer.ObserveUpstream(hostOf(target), status, d, err)
	}
}

// hostOf keeps metric labels bounded to upstream hosts.
func hostOf(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

// idleBody cancels the upstream request when no read completes within
// idle, and releases it on Close.
type idleBody struct {
	io.ReadCloser
	idle   time.Duration
	timer  *time.Timer
	cancel context.CancelFunc
}

func newIdleBody(rc io.ReadCloser, idle time.Duration, cancel context.CancelFunc) *idleBody {
	return &idleBody{
		ReadCloser: rc,
		idle:       idle,
		timer:      time.AfterFunc(idle, cancel),
		cancel:     cancel,
	}
}

func (b *idleBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err == nil {
		b.timer.Reset(b.idle)
	}
	return n, err
}

func (b *idleBody) Close() error {
	b.timer.Stop()
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
