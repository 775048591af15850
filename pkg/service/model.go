package service

import (
	"time"

	"mercator-hq/kate/pkg/limits/ratelimit"
)

// Service is one upstream service and the routes the gateway exposes for it.
// Services are replaced as a whole; bound pipelines never see a mutation.
type Service struct {
	// Name identifies the service. Merges and deregistration are keyed by it.
	Name string `json:"name" yaml:"name" validate:"required"`

	// BaseURL is the upstream base address, e.g. "http://users:8080".
	BaseURL string `json:"baseUrl" yaml:"baseUrl" validate:"required,url"`

	// Routes are forwarded one-to-one to the upstream.
	Routes []Route `json:"routes" yaml:"routes" validate:"dive"`

	// Aggregates are virtual GET endpoints merging several child calls.
	Aggregates []Aggregate `json:"aggregates" yaml:"aggregates" validate:"dive"`

	// MessageQueue enables publishing for routes that declare a queue.
	MessageQueue *MessageQueue `json:"message_queue,omitempty" yaml:"message_queue,omitempty"`
}

// Route is a single routable template.
type Route struct {
	// URI is the path template, e.g. "/users/{userId}/orders".
	URI string `json:"uri" yaml:"uri" validate:"required,uritemplate"`

	// Tag names the route's slot in an aggregate response.
	Tag string `json:"tag,omitempty" yaml:"tag,omitempty"`

	// Methods lists the HTTP methods bound to the template.
	Methods []string `json:"methods,omitempty" yaml:"methods,omitempty" validate:"omitempty,dive,httpmethod"`

	// BaseURL overrides the service base address for this route.
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty" validate:"omitempty,url"`

	// AuthPolicy protects the route when set.
	AuthPolicy *AuthPolicy `json:"authentication_policy,omitempty" yaml:"authentication_policy,omitempty"`

	// RateLimit overrides the default permissive rate limit.
	RateLimit *RateLimitPolicy `json:"rate_limit_policy,omitempty" yaml:"rate_limit_policy,omitempty"`

	// Queue publishes request bodies to this queue instead of forwarding.
	Queue string `json:"queue,omitempty" yaml:"queue,omitempty"`
}

// Aggregate is a GET endpoint whose body merges the responses of its child routes.
type Aggregate struct {
	URI        string           `json:"uri" yaml:"uri" validate:"required,uritemplate"`
	AuthPolicy *AuthPolicy      `json:"authentication_policy,omitempty" yaml:"authentication_policy,omitempty"`
	Routes     []Route          `json:"routes" yaml:"routes" validate:"dive"`
	RateLimit  *RateLimitPolicy `json:"rate_limit_policy,omitempty" yaml:"rate_limit_policy,omitempty"`
}

// RateLimitPolicy is the declared rate limit of a route.
type RateLimitPolicy struct {
	// Limit is the number of requests allowed per window.
	Limit int `json:"limit" yaml:"limit" validate:"gte=1"`

	// RefreshTimeSeconds is the window length in seconds.
	RefreshTimeSeconds int64 `json:"refreshTimeSeconds" yaml:"refreshTimeSeconds" validate:"gte=0"`

	// RequestKey selects the bucket key: IP, HEADER_VALUE or BEARER_TOKEN.
	// Default: "IP"
	RequestKey string `json:"requestKey,omitempty" yaml:"requestKey,omitempty" validate:"omitempty,oneof=IP HEADER_VALUE BEARER_TOKEN API_KEY BEARER"`

	// Header is read by the HEADER_VALUE strategy.
	Header string `json:"header,omitempty" yaml:"header,omitempty"`
}

// Policy converts the declaration into a limiter policy. A nil receiver
// yields the default permissive policy.
func (p *RateLimitPolicy) Policy() ratelimit.Policy {
	if p == nil {
		return ratelimit.DefaultPolicy()
	}
	return ratelimit.Policy{
		Limit:        p.Limit,
		RefillPeriod: time.Duration(p.RefreshTimeSeconds) * time.Second,
		Strategy:     ratelimit.ParseStrategy(p.RequestKey),
		Header:       p.Header,
	}
}

// MessageQueue is the broker a service publishes to.
type MessageQueue struct {
	// Host and Port address the broker.
	Host string `json:"host" yaml:"host" validate:"required"`
	Port int    `json:"port" yaml:"port" validate:"required,gt=0,lt=65536"`

	// Username and Password authenticate the connection. Password may be a
	// secret reference such as "${env:BROKER_PASSWORD}".
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`

	// Retries bounds publish attempts. Zero retries forever.
	Retries int `json:"retries,omitempty" yaml:"retries,omitempty" validate:"gte=0"`

	// InitialDelayMs is the first retry delay.
	// Default: 3000
	InitialDelayMs int `json:"initialDelayMs,omitempty" yaml:"initialDelayMs,omitempty" validate:"gte=0"`

	// MaxDelayMs caps the retry delay.
	// Default: 5000
	MaxDelayMs int `json:"maxDelayMs,omitempty" yaml:"maxDelayMs,omitempty" validate:"gte=0"`

	// Transformation rewrites the body before publishing.
	Transformation *Transformation `json:"transFormation,omitempty" yaml:"transFormation,omitempty"`
}

// Default retry delays for publishing.
const (
	DefaultPublishInitialDelay = 3 * time.Second
	DefaultPublishMaxDelay     = 5 * time.Second
)

// InitialDelay returns the configured or default first retry delay.
func (q *MessageQueue) InitialDelay() time.Duration {
	if q.InitialDelayMs > 0 {
		return time.Duration(q.InitialDelayMs) * time.Millisecond
	}
	return DefaultPublishInitialDelay
}

// MaxDelay returns the configured or default retry delay cap.
func (q *MessageQueue) MaxDelay() time.Duration {
	if q.MaxDelayMs > 0 {
		return time.Duration(q.MaxDelayMs) * time.Millisecond
	}
	return DefaultPublishMaxDelay
}

// TransformSource is where a transformation reads its value from.
type TransformSource string

const (
	// SourcePath reads a concrete path segment by template key.
	SourcePath TransformSource = "PATH"

	// SourceHeader reads a request header.
	SourceHeader TransformSource = "HEADER"

	// SourceKey reads a dot path from the authenticated principal.
	SourceKey TransformSource = "KEY"
)

// Transformation augments a published body with a value taken from the request.
type Transformation struct {
	// FromKey names the path param, header or principal dot path to read.
	FromKey string `json:"fromKey" yaml:"fromKey" validate:"required"`

	// ToKey is the body key the value is written to when absent.
	ToKey string `json:"toKey" yaml:"toKey" validate:"required"`

	// DataBody rebuilds the body as a flat map, e.g. "meta=x,event=y,data=body".
	// The literal value "body" is replaced by the augmented body.
	DataBody string `json:"dataBody,omitempty" yaml:"dataBody,omitempty"`

	// Source is PATH, HEADER or KEY.
	// Default: "KEY"
	Source TransformSource `json:"transformSource,omitempty" yaml:"transformSource,omitempty" validate:"omitempty,oneof=PATH HEADER KEY"`
}

// SourceOrDefault returns Source, defaulting to KEY.
func (t *Transformation) SourceOrDefault() TransformSource {
	if t.Source == "" {
		return SourceKey
	}
	return t.Source
}
