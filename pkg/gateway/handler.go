package gateway

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/kate/pkg/pipeline"
	"mercator-hq/kate/pkg/telemetry/logging"
	"mercator-hq/kate/pkg/telemetry/tracing"
)

// MsgRouteNotFound is returned for paths no binding matches.
const MsgRouteNotFound = "route not found"

// captureLimit bounds how much of a response body is kept for the request
// log. The recorder truncates further.
const captureLimit = 64 << 10

// ServeHTTP dispatches r to the pipeline bound to its method and path.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	binding, ok := g.table.Dispatch(r.Method, r.URL.Path)
	if !ok {
		g.notFound(w, r)
		return
	}

	ctx := tracing.Extract(r.Context(), r.Header)
	ctx, span := g.tracer.Start(ctx, r.Method+" "+binding.Template,
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	requestID := logging.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = logging.WithRequestID(ctx, requestID)
	}
	ctx = logging.WithRoute(ctx, binding.Service, binding.Template)
	if id := tracing.TraceID(ctx); id != "" {
		ctx = logging.WithTraceID(ctx, id)
	}
	tracing.SetRouteAttributes(span, binding.Service, binding.Template, requestID)

	r = r.WithContext(ctx)
	ex := pipeline.NewExchange(r, binding.Template, binding.Method)
	ex.Service = binding.Service
	ex.RequestID = requestID
	ex.MaxBodyBytes = g.maxBody
	ex.Trace.RequestID = requestID
	ex.Trace.Service = binding.Service

	resp := binding.Pipeline.Execute(ctx, ex)

	cw := &captureWriter{ResponseWriter: w, limit: captureLimit}
	if _, err := resp.Write(cw, ex.Header()); err != nil {
		g.logger.DebugContext(ctx, "response write interrupted", "error", err)
	}
	tracing.SetHTTPStatus(span, cw.Status())

	g.finish(ctx, ex, cw)
}

// finish completes the request log record and reports the request.
func (g *Gateway) finish(ctx context.Context, ex *pipeline.Exchange, cw *captureWriter) {
	rec := ex.Trace
	rec.ID = uuid.NewString()
	rec.Status = cw.Status()
	rec.Latency = time.Since(ex.StartedAt)

	g.metrics.RecordRequest(ex.Template, ex.Method, rec.Status, rec.Latency)

	if rec.Status >= http.StatusInternalServerError {
		g.logger.WarnContext(ctx, "request failed",
			"status", rec.Status,
			"stage", rec.Stage,
			"upstream", rec.UpstreamURL,
			"error", rec.Error,
		)
	}

	if g.recorder == nil {
		return
	}
	rec.RequestHeaders = g.recorder.Headers(ex.Request.Header)
	if body, ok := ex.BufferedBody(); ok {
		rec.RequestBody = g.recorder.Body(body)
	}
	rec.ResponseHeaders = g.recorder.Headers(cw.Header())
	rec.ResponseBody = g.recorder.Body(cw.buf.Bytes())

	// The record outlives the request; detach it from cancellation.
	if err := g.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		g.logger.WarnContext(ctx, "failed to record request", "error", err)
	}
}

// notFound answers unbound paths: 405 with an Allow header when the path is
// bound for other methods, 404 otherwise.
func (g *Gateway) notFound(w http.ResponseWriter, r *http.Request) {
	if allowed := g.table.Allowed(r.URL.Path); len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
		resp := pipeline.Error(http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
		resp.Write(w, nil)
		return
	}
	pipeline.Error(http.StatusNotFound, MsgRouteNotFound).Write(w, nil)
}

// captureWriter records the status and the first bytes of the body while
// passing everything through. It keeps streaming responses flushable.
type captureWriter struct {
	http.ResponseWriter
	status int
	limit  int
	buf    bytes.Buffer
}

func (c *captureWriter) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
	c.ResponseWriter.WriteHeader(status)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	if room := c.limit - c.buf.Len(); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		c.buf.Write(p[:room])
	}
	return c.ResponseWriter.Write(p)
}

func (c *captureWriter) Flush() {
	if f, ok := c.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Status returns the status sent, 200 if none was set explicitly.
func (c *captureWriter) Status() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func (c *captureWriter) Unwrap() http.ResponseWriter {
	return c.ResponseWriter
}
