package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Stage is one policy-enforcement or forwarding step of a pipeline.
type Stage interface {
	// Name identifies the stage in logs, spans and request log records.
	Name() string

	// Process runs the stage against the exchange.
	Process(ctx context.Context, ex *Exchange) Result
}

// Result is the outcome of a stage: continue to the next stage or respond.
type Result struct {
	response *Response
}

// Continue hands control to the next stage.
func Continue() Result {
	return Result{}
}

// Respond terminates the pipeline with resp.
func Respond(resp *Response) Result {
	return Result{response: resp}
}

// Done reports whether the stage produced a response.
func (r Result) Done() bool {
	return r.response != nil
}

// Response returns the response of a terminating result, or nil.
func (r Result) Response() *Response {
	return r.response
}

// StageFunc adapts a function to the Stage interface.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context, ex *Exchange) Result
}

// Name implements Stage.
func (s StageFunc) Name() string { return s.StageName }

// Process implements Stage.
func (s StageFunc) Process(ctx context.Context, ex *Exchange) Result {
	return s.Fn(ctx, ex)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTracer wraps every stage in a span created by tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Pipeline) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

// WithLogger sets the logger used for recovered panics.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Pipeline is an immutable ordered list of stages.
type Pipeline struct {
	stages []Stage
	tracer trace.Tracer
	logger *slog.Logger
}

// New builds a pipeline from stages. The slice is copied.
func New(stages []Stage, opts ...Option) *Pipeline {
	p := &Pipeline{
		stages: append([]Stage(nil), stages...),
		tracer: noop.NewTracerProvider().Tracer("kate/pipeline"),
		logger: slog.Default().With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Names returns the stage names in execution order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Len returns the number of stages.
func (p *Pipeline) Len() int {
	return len(p.stages)
}

// Execute runs the stages in order and returns the first response produced.
// If no stage responds, a 500 response is returned.
func (p *Pipeline) Execute(ctx context.Context, ex *Exchange) *Response {
	for _, stage := range p.stages {
		result := p.run(ctx, stage, ex)
		if result.Done() {
			ex.Trace.Stage = stage.Name()
			return result.Response()
		}
	}

	p.logger.Error("pipeline finished without a response",
		"route", ex.Template,
		"method", ex.Method,
		"request_id", ex.RequestID,
	)
	return Error(http.StatusInternalServerError, "request was not handled")
}

// run executes one stage inside its own span and converts a panic into a
// 500 response.
func (p *Pipeline) run(ctx context.Context, stage Stage, ex *Exchange) (result Result) {
	ctx, span := p.tracer.Start(ctx, "stage."+stage.Name(),
		trace.WithAttributes(
			attribute.String("kate.route", ex.Template),
			attribute.String("kate.method", ex.Method),
		),
	)
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			msg := fmt.Sprint(rec)
			p.logger.Error("stage panicked",
				"stage", stage.Name(),
				"route", ex.Template,
				"request_id", ex.RequestID,
				"panic", msg,
			)
			span.SetStatus(codes.Error, msg)
			ex.Trace.Error = msg
			result = Respond(Error(http.StatusInternalServerError, msg))
		}
	}()

	result = stage.Process(ctx, ex)
	if result.Done() {
		span.SetAttributes(attribute.Int("http.status_code", result.Response().Status))
		if result.Response().Status >= 500 {
			span.SetStatus(codes.Error, http.StatusText(result.Response().Status))
		}
	}
	return result
}
