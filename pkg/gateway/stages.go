package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"mercator-hq/kate/pkg/limits/ratelimit"
	"mercator-hq/kate/pkg/pipeline"
	"mercator-hq/kate/pkg/proxy"
	"mercator-hq/kate/pkg/queue"
	"mercator-hq/kate/pkg/requestlog"
	"mercator-hq/kate/pkg/routing"
	"mercator-hq/kate/pkg/security/auth"
	"mercator-hq/kate/pkg/service"
	"mercator-hq/kate/pkg/telemetry/metrics"
	"mercator-hq/kate/pkg/telemetry/tracing"
)

// Stage names, as reported by /_routes and the request log.
const (
	StageAuthentication = "authentication"
	StageAuthorization  = "authorization"
	StageRateLimit      = "ratelimit"
	StagePublish        = "publish"
	StageForward        = "forward"
	StageAggregate      = "aggregate"
)

// Publish stage messages.
const (
	MsgMissingBody       = "missing body"
	MsgPublished         = "Package registered successfully"
	MsgRateLimited       = "rate limit exceeded"
	MsgPublisherStopped  = "message queue unavailable"
	MsgBodyNotJSONObject = "body must be a JSON object"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

type authenticationStage struct {
	policy  *service.AuthPolicy
	keys    *auth.KeyAuthenticator
	metrics Metrics
}

func (s *authenticationStage) Name() string { return StageAuthentication }

func (s *authenticationStage) Process(ctx context.Context, ex *pipeline.Exchange) pipeline.Result {
	var (
		principal *auth.Principal
		err       error
	)
	switch s.policy.Kind {
	case service.KindJWT:
		ex.Trace.AuthType = requestlog.AuthJWT
		principal, err = auth.AuthenticateJWT(ex.Request, s.policy.JWT, s.policy.JWT.Secret)
	case service.KindKey:
		ex.Trace.AuthType = requestlog.AuthKey
		principal, err = s.keys.Authenticate(ctx, ex.Request, s.policy.Key)
	default:
		err = &auth.Failure{Status: http.StatusForbidden, Message: auth.MsgMissingPermission}
	}
	tracing.SetAuthAttributes(trace.SpanFromContext(ctx), string(ex.Trace.AuthType))

	if err != nil {
		s.metrics.RecordAuthFailure(ex.Template, metrics.FailureAuthentication)
		return pipeline.Respond(failureResponse(ex, err))
	}

	ex.Principal = principal
	ex.Trace.AuthenticationSuccess = true
	return pipeline.Continue()
}

type authorizationStage struct {
	policy  *service.AuthPolicy
	metrics Metrics
}

func (s *authorizationStage) Name() string { return StageAuthorization }

func (s *authorizationStage) Process(_ context.Context, ex *pipeline.Exchange) pipeline.Result {
	principal, _ := ex.Principal.(*auth.Principal)
	err := auth.Authorize(s.policy, principal, auth.Target{
		Template: ex.Template,
		Path:     ex.Request.URL.Path,
		Method:   ex.Method,
	})
	if err != nil {
		s.metrics.RecordAuthFailure(ex.Template, metrics.FailureAuthorization)
		return pipeline.Respond(failureResponse(ex, err))
	}
	ex.Trace.AuthorizationSuccess = true
	return pipeline.Continue()
}

// failureResponse renders an auth rejection. Errors that are not a
// *auth.Failure are treated as forbidden.
func failureResponse(ex *pipeline.Exchange, err error) *pipeline.Response {
	ex.Trace.Error = err.Error()
	if f, ok := auth.AsFailure(err); ok {
		return pipeline.Error(f.Status, f.Message)
	}
	return pipeline.Error(http.StatusForbidden, auth.MsgMissingPermission)
}

type rateLimitStage struct {
	registry *ratelimit.Registry
	policyID string
	policy   ratelimit.Policy
	metrics  Metrics
}

func (s *rateLimitStage) Name() string { return StageRateLimit }

func (s *rateLimitStage) Process(ctx context.Context, ex *pipeline.Exchange) pipeline.Result {
	key := ratelimit.KeyFor(s.policy, ex.Request)
	d := s.registry.TryConsume(s.policyID, key, s.policy, 1)
	ex.RateLimit = &d
	tracing.SetRateLimitAttributes(trace.SpanFromContext(ctx), d.Remaining)

	h := ex.Header()
	h.Set(HeaderRateLimitLimit, strconv.Itoa(d.Limit))
	h.Set(HeaderRateLimitRemaining, strconv.Itoa(d.Remaining))
	h.Set(HeaderRateLimitReset, strconv.FormatInt(d.RefillAt.Unix(), 10))

	if d.Allowed {
		return pipeline.Continue()
	}

	ex.Trace.RateLimited = true
	s.metrics.RecordRateLimited(ex.Template)
	resp := pipeline.Error(http.StatusTooManyRequests, MsgRateLimited)
	resp.Header.Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds()))
	return pipeline.Respond(resp)
}

type publishStage struct {
	publisher *queue.Publisher
	queue     string
	transform *service.Transformation
	policy    *service.AuthPolicy
}

func (s *publishStage) Name() string { return StagePublish }

func (s *publishStage) Process(ctx context.Context, ex *pipeline.Exchange) pipeline.Result {
	body, err := ex.Body()
	switch {
	case errors.Is(err, pipeline.ErrBodyTooLarge):
		return pipeline.Respond(pipeline.Error(http.StatusRequestEntityTooLarge, err.Error()))
	case err != nil:
		ex.Trace.Error = err.Error()
		return pipeline.Respond(message(http.StatusBadRequest, MsgMissingBody))
	case len(strings.TrimSpace(string(body))) == 0:
		return pipeline.Respond(message(http.StatusBadRequest, MsgMissingBody))
	}

	if s.transform != nil {
		src := queue.Source{
			Template: ex.Template,
			Path:     ex.Request.URL.Path,
			Header:   ex.Request.Header,
			Lookup:   s.lookup(ex),
		}
		if src.Value(s.transform) == "" {
			slog.WarnContext(ctx, "transformation source missing, publishing an empty value",
				"queue", s.queue,
				"source", s.transform.SourceOrDefault(),
				"from_key", s.transform.FromKey,
			)
		}
		body, err = queue.Transform(body, s.transform, src)
		switch {
		case errors.Is(err, queue.ErrNotObject):
			return pipeline.Respond(message(http.StatusBadRequest, MsgBodyNotJSONObject))
		case err != nil:
			ex.Trace.Error = err.Error()
			return pipeline.Respond(message(http.StatusBadRequest, MsgMissingBody))
		}
	}

	ex.Trace.UpstreamURL = "queue://" + s.queue
	tracing.SetQueueAttributes(trace.SpanFromContext(ctx), s.queue)

	if _, err := s.publisher.Publish(s.queue, body); err != nil {
		ex.Trace.Error = err.Error()
		return pipeline.Respond(pipeline.Error(http.StatusServiceUnavailable, MsgPublisherStopped))
	}
	return pipeline.Respond(pipeline.JSON(http.StatusCreated, pipeline.MessageBody{
		Status:  "success",
		Message: MsgPublished,
	}))
}

// lookup resolves KEY transformations. For signed tokens the path is
// relative to the policy's data object.
func (s *publishStage) lookup(ex *pipeline.Exchange) func(string) (string, bool) {
	if ex.Principal == nil {
		return nil
	}
	prefix := ""
	if s.policy != nil && s.policy.Kind == service.KindJWT && s.policy.JWT.Data != "" {
		prefix = s.policy.JWT.Data + "."
	}
	return func(path string) (string, bool) {
		return ex.Principal.Lookup(prefix + path)
	}
}

func message(status int, msg string) *pipeline.Response {
	return pipeline.JSON(status, pipeline.MessageBody{Message: msg})
}

type forwardStage struct {
	forwarder *proxy.Forwarder
	baseURL   string
}

func (s *forwardStage) Name() string { return StageForward }

func (s *forwardStage) Process(ctx context.Context, ex *pipeline.Exchange) pipeline.Result {
	target := proxy.Target(s.baseURL, ex.Request)
	ex.Trace.UpstreamURL = target
	tracing.SetUpstreamAttributes(trace.SpanFromContext(ctx), target)

	start := time.Now()
	resp, err := s.forwarder.Forward(ctx, ex.Request, ex.BodyReader(), s.baseURL)
	ex.Trace.UpstreamLatency = time.Since(start)
	if err != nil {
		ex.Trace.Error = err.Error()
		return pipeline.Respond(pipeline.Error(http.StatusInternalServerError, proxy.MsgUpstreamUnavailable))
	}
	return pipeline.Respond(resp)
}

type aggregateStage struct {
	aggregator *proxy.Aggregator
	template   string
	baseURL    string
	children   []service.Route
}

func (s *aggregateStage) Name() string { return StageAggregate }

func (s *aggregateStage) Process(ctx context.Context, ex *pipeline.Exchange) pipeline.Result {
	call := ex.Request.URL.RequestURI()
	children := make([]proxy.Child, len(s.children))
	for i, route := range s.children {
		base := route.BaseURL
		if base == "" {
			base = s.baseURL
		}
		children[i] = proxy.Child{
			Tag: route.Tag,
			URL: proxy.JoinURL(base, routing.ChildPath(s.template, route.URI, call)),
		}
	}
	ex.Trace.UpstreamURL = s.baseURL

	start := time.Now()
	resp := s.aggregator.Aggregate(ctx, ex.Request, children)
	ex.Trace.UpstreamLatency = time.Since(start)
	return pipeline.Respond(resp)
}
