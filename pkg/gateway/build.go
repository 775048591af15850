package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"mercator-hq/kate/pkg/pipeline"
	"mercator-hq/kate/pkg/queue"
	"mercator-hq/kate/pkg/routing"
	"mercator-hq/kate/pkg/service"
)

// build creates one binding per route method and one GET binding per
// aggregate. Stage order is fixed:
//
//	[authentication?, authorization?, ratelimit, publish?, forward|aggregate]
func (g *Gateway) build(svc service.Service, pub *queue.Publisher) []*routing.Binding {
	var bindings []*routing.Binding

	for _, agg := range svc.Aggregates {
		if len(agg.Routes) == 0 {
			g.logger.Warn("aggregate has no routes and will answer 500", "service", svc.Name, "uri", agg.URI)
		}
		for _, child := range agg.Routes {
			if child.Tag == "" {
				g.logger.Warn("aggregate route has no tag, its body is keyed by \"\"",
					"service", svc.Name, "uri", agg.URI, "route", child.URI)
			}
		}
		stages := g.policyStages(agg.URI, http.MethodGet, agg.AuthPolicy, agg.RateLimit)
		stages = append(stages, &aggregateStage{
			aggregator: g.aggregator,
			template:   agg.URI,
			baseURL:    svc.BaseURL,
			children:   agg.Routes,
		})
		bindings = append(bindings, &routing.Binding{
			Template:  agg.URI,
			Method:    http.MethodGet,
			Service:   svc.Name,
			Aggregate: true,
			Pipeline:  g.newPipeline(stages),
		})
	}

	for _, route := range svc.Routes {
		baseURL := route.BaseURL
		if baseURL == "" {
			baseURL = svc.BaseURL
		}
		for _, method := range methodsOf(route) {
			stages := g.policyStages(route.URI, method, route.AuthPolicy, route.RateLimit)
			if route.Queue != "" && pub != nil {
				stages = append(stages, &publishStage{
					publisher: pub,
					queue:     route.Queue,
					transform: svc.MessageQueue.Transformation,
					policy:    route.AuthPolicy,
				})
			}
			stages = append(stages, &forwardStage{forwarder: g.forwarder, baseURL: baseURL})
			bindings = append(bindings, &routing.Binding{
				Template: route.URI,
				Method:   method,
				Service:  svc.Name,
				Tag:      route.Tag,
				Pipeline: g.newPipeline(stages),
			})
		}

		if route.AuthPolicy != nil && route.AuthPolicy.Kind == service.KindKey && g.recorder != nil {
			g.recorder.RedactHeader(route.AuthPolicy.Key.KeyHeader)
		}
	}
	return bindings
}

// methodsOf returns the route's methods. A route that declares none is a
// GET route.
func methodsOf(r service.Route) []string {
	if len(r.Methods) == 0 {
		return []string{http.MethodGet}
	}
	return r.Methods
}

func (g *Gateway) policyStages(template, method string, policy *service.AuthPolicy, rl *service.RateLimitPolicy) []pipeline.Stage {
	var stages []pipeline.Stage
	if policy != nil {
		stages = append(stages,
			&authenticationStage{policy: policy, keys: g.keys, metrics: g.metrics},
			&authorizationStage{policy: policy, metrics: g.metrics},
		)
	}

	limit := g.defaultRL
	if rl != nil {
		limit = rl.Policy()
	}
	stages = append(stages, &rateLimitStage{
		registry: g.limiter,
		policyID: policyID(method, template),
		policy:   limit,
		metrics:  g.metrics,
	})
	return stages
}

func (g *Gateway) newPipeline(stages []pipeline.Stage) *pipeline.Pipeline {
	return pipeline.New(stages,
		pipeline.WithTracer(g.tracer),
		pipeline.WithLogger(g.logger.With("component", "pipeline")),
	)
}

// resolveSecrets returns a copy of svc with secret references expanded in
// signed-token secrets and the broker password. Policies are copied before
// being changed so the declared service is left untouched.
func (g *Gateway) resolveSecrets(ctx context.Context, svc service.Service) (service.Service, error) {
	out := svc.Clone()
	if g.secrets == nil {
		return out, nil
	}

	var errs []error
	resolve := func(field string, v *string) {
		if *v == "" {
			return
		}
		r, err := g.secrets.Resolve(ctx, *v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return
		}
		*v = r
	}
	resolvePolicy := func(field string, p *service.AuthPolicy) *service.AuthPolicy {
		if p == nil || p.Kind != service.KindJWT || p.JWT == nil {
			return p
		}
		jwtCopy := *p.JWT
		resolve(field+".jwtSecret", &jwtCopy.Secret)
		return &service.AuthPolicy{Kind: p.Kind, JWT: &jwtCopy}
	}

	for i := range out.Routes {
		out.Routes[i].AuthPolicy = resolvePolicy(fmt.Sprintf("routes[%d].authentication_policy", i), out.Routes[i].AuthPolicy)
	}
	for i := range out.Aggregates {
		out.Aggregates[i].AuthPolicy = resolvePolicy(fmt.Sprintf("aggregates[%d].authentication_policy", i), out.Aggregates[i].AuthPolicy)
	}
	if out.MessageQueue != nil {
		mq := *out.MessageQueue
		resolve("message_queue.password", &mq.Password)
		out.MessageQueue = &mq
	}
	return out, errors.Join(errs...)
}

// policyID is the rate limit identity of a binding. Buckets are shared by
// every caller key under the same (method, template) pair.
func policyID(method, template string) string {
	return method + " " + template
}
