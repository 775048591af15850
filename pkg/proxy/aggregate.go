package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"mercator-hq/kate/pkg/pipeline"
)

// Child is one leg of an aggregate: a tag naming its slot in the combined
// body and the concrete URL to fetch.
type Child struct {
	Tag string
	URL string
}

// Headers never merged from children into the aggregate response.
var skipAggregateHeaders = map[string]bool{
	"Content-Length":    true,
	"Content-Type":      true,
	"Content-Encoding":  true,
	"Transfer-Encoding": true,
}

// Aggregator fans a request out to several upstreams and combines the
// results into a single JSON object.
type Aggregator struct {
	forwarder *Forwarder
	logger    *slog.Logger
}

// NewAggregator creates an aggregator sharing f's transport.
func NewAggregator(f *Forwarder) *Aggregator {
	return &Aggregator{
		forwarder: f,
		logger:    slog.Default().With("component", "proxy.aggregate"),
	}
}

type childResult struct {
	fetched *Fetched
	err     error
}

// Aggregate GETs every child concurrently with the headers of in and
// waits for all of them. The first failing child in declaration order
// decides the response; a transport failure counts as a 500 child.
// Otherwise the body is {tag: childBody} and child headers are merged.
func (a *Aggregator) Aggregate(ctx context.Context, in *http.Request, children []Child) *pipeline.Response {
	header := ForwardHeaders(in)
	results := make([]childResult, len(children))

	var g errgroup.Group
	for i, child := range children {
		g.Go(func() error {
			res, err := a.forwarder.Fetch(ctx, child.URL, header)
			results[i] = childResult{fetched: res, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, res := range results {
		if res.err != nil {
			a.logger.Warn("aggregate child failed",
				"tag", children[i].Tag,
				"url", children[i].URL,
				"error", res.err,
			)
			return pipeline.Error(http.StatusInternalServerError, MsgUpstreamUnavailable)
		}
		if res.fetched.Status < 200 || res.fetched.Status > 299 {
			h := make(http.Header)
			if ct := res.fetched.Header.Get("Content-Type"); ct != "" {
				h.Set("Content-Type", ct)
			}
			return &pipeline.Response{Status: res.fetched.Status, Header: h, Body: res.fetched.Body}
		}
	}

	combined := make(map[string]json.RawMessage, len(children))
	merged := make(http.Header)
	for i, res := range results {
		combined[children[i].Tag] = embed(res.fetched.Body)
		for k, vals := range res.fetched.Header {
			if skipAggregateHeaders[k] {
				continue
			}
			merged[k] = append([]string(nil), vals...)
		}
	}

	if len(combined) == 0 {
		return pipeline.Error(http.StatusInternalServerError, "aggregate produced no results")
	}

	resp := pipeline.JSON(http.StatusOK, combined)
	for k, vals := range merged {
		if resp.Header.Get(k) == "" {
			resp.Header[k] = vals
		}
	}
	return resp
}

// embed returns body as JSON, quoting it as a string when it is not valid JSON.
func embed(body []byte) json.RawMessage {
	if len(body) > 0 && json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}
