package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/kate/pkg/config"
)

func newTestTracer(t *testing.T, sampler string) (*Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tr, err := New(&config.TracingConfig{
		Enabled:     true,
		Sampler:     sampler,
		SampleRatio: 1.0,
		Exporter:    "none",
		ServiceName: "kate-test",
	}, WithExporter(exp), WithVersion("test"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = tr.Shutdown(context.Background()) })
	return tr, exp
}

func TestNew_Disabled(t *testing.T) {
	tr, err := New(&config.TracingConfig{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}
	if tr.Enabled() {
		t.Error("Enabled() = true")
	}
	ctx, span := tr.Start(context.Background(), "noop")
	span.End()
	if TraceID(ctx) != "" {
		t.Errorf("noop tracer produced trace id %q", TraceID(ctx))
	}
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("New(nil) should fail")
	}
	tests := []config.TracingConfig{
		{Enabled: true, Sampler: "sometimes", Exporter: "none"},
		{Enabled: true, Sampler: SamplerRatio, SampleRatio: 1.5, Exporter: "none"},
		{Enabled: true, Sampler: SamplerAlways, Exporter: "zipkin"},
	}
	for _, cfg := range tests {
		cfg := cfg
		if _, err := New(&cfg); err == nil {
			t.Errorf("New(%+v) should fail", cfg)
		}
	}
}

func TestTracer_ExportsSpans(t *testing.T) {
	tr, exp := newTestTracer(t, SamplerAlways)

	ctx, span := tr.Start(context.Background(), "GET /users/{id}")
	SetRouteAttributes(span, "users", "/users/{id}", "req-1")
	SetUpstreamAttributes(span, "users.internal:8080")
	SetAuthAttributes(span, "JWT")
	SetRateLimitAttributes(span, 4)
	SetHTTPStatus(span, http.StatusBadGateway)
	if TraceID(ctx) == "" || SpanID(ctx) == "" {
		t.Error("expected trace and span ids on a sampled span")
	}
	span.End()

	if err := tr.provider.ForceFlush(context.Background()); err != nil {
		t.Fatal(err)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("exported %d spans, want 1", len(spans))
	}
	got := spans[0]
	if got.Name != "GET /users/{id}" {
		t.Errorf("span name = %q", got.Name)
	}
	if got.Status.Code != codes.Error {
		t.Errorf("status = %v, want Error for 502", got.Status.Code)
	}
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range got.Attributes {
		attrs[kv.Key] = kv.Value
	}
	if attrs[AttrService].AsString() != "users" {
		t.Errorf("%s = %v", AttrService, attrs[AttrService])
	}
	if attrs[AttrUpstream].AsString() != "users.internal:8080" {
		t.Errorf("%s = %v", AttrUpstream, attrs[AttrUpstream])
	}
	if attrs[AttrRateLimit].AsInt64() != 4 {
		t.Errorf("%s = %v", AttrRateLimit, attrs[AttrRateLimit])
	}
}

func TestSetError(t *testing.T) {
	tr, exp := newTestTracer(t, SamplerAlways)

	_, span := tr.Start(context.Background(), "publish")
	SetError(span, nil)
	SetError(span, errors.New("broker unreachable"))
	span.End()
	_ = tr.provider.ForceFlush(context.Background())

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("exported %d spans", len(spans))
	}
	if spans[0].Status.Description != "broker unreachable" {
		t.Errorf("status description = %q", spans[0].Status.Description)
	}
	if len(spans[0].Events) != 1 {
		t.Errorf("events = %d, want 1 recorded error", len(spans[0].Events))
	}
}

func TestSampler_ParentBased(t *testing.T) {
	tr, exp := newTestTracer(t, SamplerNever)

	// Root spans are dropped by the never sampler.
	_, root := tr.Start(context.Background(), "root")
	root.End()

	// A sampled remote parent is honoured.
	h := http.Header{}
	h.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	ctx := Extract(context.Background(), h)
	_, child := tr.Start(ctx, "child")
	child.End()
	_ = tr.provider.ForceFlush(context.Background())

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "child" {
		t.Fatalf("exported %v, want only the child span", spans)
	}
	if spans[0].SpanContext.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("child trace id = %s", spans[0].SpanContext.TraceID())
	}
}

func TestInject(t *testing.T) {
	tr, _ := newTestTracer(t, SamplerAlways)

	ctx, span := tr.Start(context.Background(), "forward")
	defer span.End()

	h := http.Header{}
	Inject(ctx, h)
	tp := h.Get("traceparent")
	if !ValidateTraceParent(tp) {
		t.Fatalf("injected traceparent %q is invalid", tp)
	}
	if !IsSampledFromTraceParent(tp) {
		t.Errorf("traceparent %q should be sampled", tp)
	}
}

func TestHTTPMiddleware(t *testing.T) {
	_, _ = newTestTracer(t, SamplerAlways)

	var got trace.SpanContext
	h := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = trace.SpanContextFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !got.IsRemote() || got.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("span context = %+v", got)
	}
}

func TestValidateTraceParent(t *testing.T) {
	tests := []struct {
		in      string
		valid   bool
		sampled bool
	}{
		{"00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", true, true},
		{"00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-00", true, false},
		{"00-00000000000000000000000000000000-00f067aa0ba902b7-01", false, false},
		{"00-4bf92f3577b34da6a3ce929d0e0e4736-0000000000000000-01", false, false},
		{"00-4bf92f3577b34da6a3ce929d0e0e473-00f067aa0ba902b7-01", false, false},
		{"00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7", false, false},
		{"zz-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", false, false},
	}
	for _, tt := range tests {
		if got := ValidateTraceParent(tt.in); got != tt.valid {
			t.Errorf("ValidateTraceParent(%q) = %v, want %v", tt.in, got, tt.valid)
		}
		if got := IsSampledFromTraceParent(tt.in); got != tt.sampled {
			t.Errorf("IsSampledFromTraceParent(%q) = %v, want %v", tt.in, got, tt.sampled)
		}
	}
}

var _ sdktrace.SpanExporter = (*tracetest.InMemoryExporter)(nil)
