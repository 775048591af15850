package requestlog

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Dashboard page size bounds.
const (
	DefaultTracePageSize = 20
	MaxTracePageSize     = 100

	collectBatch = 1000
)

// Home is the dashboard overview.
type Home struct {
	TotalAPICount             int                `json:"totalApiCount"`
	RequestVolume             int64              `json:"requestVolume"`
	AverageLatency            int64              `json:"averageLatency"`
	ErrorRatePercent          float64            `json:"errorRatePercent"`
	Last24HourIncreasePercent float64            `json:"last24HourIncreasePercent"`
	Last7HoursFlow            []FlowPoint        `json:"last7HoursFlow"`
	RecentRequestsWithIssue   []RequestWithIssue `json:"recentRequestsWithIssue"`
}

// FlowPoint is the request count of one clock hour.
type FlowPoint struct {
	Title string `json:"title"`
	Value int64  `json:"value"`
}

// RequestWithIssue summarizes a recent non-2xx request.
type RequestWithIssue struct {
	UUID           string    `json:"uuid"`
	Time           time.Time `json:"time"`
	Path           string    `json:"path"`
	Upstream       string    `json:"upstream,omitempty"`
	ResponseStatus int       `json:"responseStatus"`
}

// Trace is a request log record as shown in the trace list.
type Trace struct {
	ID               string            `json:"id"`
	Route            string            `json:"route"`
	Status           int               `json:"status"`
	Success          bool              `json:"success"`
	Duration         int64             `json:"duration"`
	Timestamp        time.Time         `json:"timeStamp"`
	Method           string            `json:"method"`
	SourceIP         string            `json:"sourceIp"`
	Headers          map[string]string `json:"headers,omitempty"`
	UpstreamDuration int64             `json:"upstreamDuration"`
	RequestBody      string            `json:"requestBody"`
	ResponseBody     string            `json:"responseBody"`
	AuthType         AuthType          `json:"authType"`
	AuthSuccess      bool              `json:"authSuccess"`
}

// Page is one page of results.
type Page[T any] struct {
	Page        int   `json:"page"`
	Count       int   `json:"count"`
	Total       int64 `json:"total"`
	HasNext     bool  `json:"hasNext"`
	HasPrevious bool  `json:"hasPrevious"`
	Items       []T   `json:"items"`
}

// Consumer aggregates traffic for one route.
type Consumer struct {
	Route            string `json:"route"`
	Requests         int    `json:"requests"`
	SuccessRate      int    `json:"successRate"`
	AverageLatency   int64  `json:"averageLatency"`
	ErrorRatePercent int    `json:"errorRatePercent"`
}

// Dashboard computes statistics over the request log.
type Dashboard struct {
	storage Storage
	routes  func() int
}

// NewDashboard creates a dashboard. routes reports how many routes are
// currently bound.
func NewDashboard(storage Storage, routes func() int) *Dashboard {
	if routes == nil {
		routes = func() int { return 0 }
	}
	return &Dashboard{storage: storage, routes: routes}
}

// Home computes the overview as of now.
func (d *Dashboard) Home(ctx context.Context, now time.Time) (*Home, error) {
	dayAgo := now.Add(-24 * time.Hour)
	twoDaysAgo := now.Add(-48 * time.Hour)

	last24, err := d.collect(ctx, &Query{StartTime: &dayAgo})
	if err != nil {
		return nil, err
	}
	prevEnd := dayAgo.Add(-time.Nanosecond)
	previous, err := d.storage.Count(ctx, &Query{StartTime: &twoDaysAgo, EndTime: &prevEnd})
	if err != nil {
		return nil, err
	}

	home := &Home{
		TotalAPICount: d.routes(),
		RequestVolume: int64(len(last24)),
	}

	var latency time.Duration
	var failures int
	for _, r := range last24 {
		latency += r.Latency
		if !r.Success() {
			failures++
		}
	}
	if n := len(last24); n > 0 {
		home.AverageLatency = (latency / time.Duration(n)).Milliseconds()
		home.ErrorRatePercent = float64(failures) / float64(n) * 100
	}
	home.Last24HourIncreasePercent = increasePercent(previous, int64(len(last24)))
	home.Last7HoursFlow = hourlyFlow(last24, now, 7)

	issues, err := d.storage.Query(ctx, &Query{Status: "error", Limit: 5, SortBy: "timestamp", SortOrder: "desc"})
	if err != nil {
		return nil, err
	}
	home.RecentRequestsWithIssue = make([]RequestWithIssue, 0, len(issues))
	for _, r := range issues {
		home.RecentRequestsWithIssue = append(home.RecentRequestsWithIssue, RequestWithIssue{
			UUID:           r.ID,
			Time:           r.Timestamp,
			Path:           r.Path,
			Upstream:       r.UpstreamURL,
			ResponseStatus: r.Status,
		})
	}
	return home, nil
}

func increasePercent(previous, current int64) float64 {
	if previous == 0 {
		if current == 0 {
			return 0
		}
		return 100
	}
	return float64(current-previous) / float64(previous) * 100
}

// hourlyFlow buckets records into the last n clock hours, oldest first.
func hourlyFlow(records []*Record, now time.Time, n int) []FlowPoint {
	current := now.Truncate(time.Hour)
	start := current.Add(-time.Duration(n-1) * time.Hour)

	flow := make([]FlowPoint, n)
	for i := range flow {
		flow[i].Title = hourTitle(start.Add(time.Duration(i) * time.Hour))
	}
	for _, r := range records {
		ts := r.Timestamp.In(now.Location())
		if ts.Before(start) || ts.After(now) {
			continue
		}
		idx := int(ts.Sub(start) / time.Hour)
		if idx >= 0 && idx < n {
			flow[idx].Value++
		}
	}
	return flow
}

func hourTitle(t time.Time) string {
	hour := t.Hour()
	suffix := "AM"
	if hour >= 12 {
		suffix = "PM"
	}
	switch {
	case hour == 0:
		hour = 12
	case hour > 12:
		hour -= 12
	}
	return fmt.Sprintf("%d%s", hour, suffix)
}

// Traces returns one page of records, newest first. Pages start at 1.
func (d *Dashboard) Traces(ctx context.Context, page, count int) (*Page[Trace], error) {
	if page < 1 {
		page = 1
	}
	if count <= 0 {
		count = DefaultTracePageSize
	}
	if count > MaxTracePageSize {
		count = MaxTracePageSize
	}

	total, err := d.storage.Count(ctx, &Query{})
	if err != nil {
		return nil, err
	}
	offset := (page - 1) * count
	records, err := d.storage.Query(ctx, &Query{Limit: count, Offset: offset, SortBy: "timestamp", SortOrder: "desc"})
	if err != nil {
		return nil, err
	}

	items := make([]Trace, 0, len(records))
	for _, r := range records {
		items = append(items, Trace{
			ID:               r.ID,
			Route:            r.Path,
			Status:           r.Status,
			Success:          r.Success(),
			Duration:         r.Latency.Milliseconds(),
			Timestamp:        r.Timestamp,
			Method:           r.Method,
			SourceIP:         r.ClientIP,
			Headers:          r.RequestHeaders,
			UpstreamDuration: r.UpstreamLatency.Milliseconds(),
			RequestBody:      r.RequestBody,
			ResponseBody:     r.ResponseBody,
			AuthType:         r.AuthType,
			AuthSuccess:      r.AuthenticationSuccess,
		})
	}

	return &Page[Trace]{
		Page:        page,
		Count:       count,
		Total:       total,
		HasNext:     int64(offset+count) < total,
		HasPrevious: page > 1,
		Items:       items,
	}, nil
}

// Search returns the records matching q and the number of records matching
// its filters without pagination. q is expected to be validated.
func (d *Dashboard) Search(ctx context.Context, q *Query) ([]*Record, int64, error) {
	filters := *q
	filters.Limit, filters.Offset = 0, 0
	total, err := d.storage.Count(ctx, &filters)
	if err != nil {
		return nil, 0, err
	}
	records, err := d.storage.Query(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// TopConsumers groups the last hours of traffic by route, busiest first.
func (d *Dashboard) TopConsumers(ctx context.Context, now time.Time, hours int) ([]Consumer, error) {
	if hours <= 0 {
		hours = 24
	}
	since := now.Add(-time.Duration(hours) * time.Hour)
	records, err := d.collect(ctx, &Query{StartTime: &since})
	if err != nil {
		return nil, err
	}

	type acc struct {
		requests, successes int
		latency             time.Duration
	}
	byRoute := make(map[string]*acc)
	for _, r := range records {
		key := r.Route
		if key == "" {
			key = r.Path
		}
		a, ok := byRoute[key]
		if !ok {
			a = &acc{}
			byRoute[key] = a
		}
		a.requests++
		a.latency += r.Latency
		if r.Success() {
			a.successes++
		}
	}

	consumers := make([]Consumer, 0, len(byRoute))
	for route, a := range byRoute {
		success := a.successes * 100 / a.requests
		consumers = append(consumers, Consumer{
			Route:            route,
			Requests:         a.requests,
			SuccessRate:      success,
			AverageLatency:   (a.latency / time.Duration(a.requests)).Milliseconds(),
			ErrorRatePercent: 100 - success,
		})
	}
	sort.Slice(consumers, func(i, j int) bool {
		if consumers[i].Requests != consumers[j].Requests {
			return consumers[i].Requests > consumers[j].Requests
		}
		return consumers[i].Route < consumers[j].Route
	})
	return consumers, nil
}

// collect pages through every record matching q.
func (d *Dashboard) collect(ctx context.Context, q *Query) ([]*Record, error) {
	var all []*Record
	for offset := 0; ; offset += collectBatch {
		page := *q
		page.Limit = collectBatch
		page.Offset = offset
		page.SortBy = "timestamp"
		page.SortOrder = "asc"

		records, err := d.storage.Query(ctx, &page)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
		if len(records) < collectBatch {
			return all, nil
		}
	}
}
