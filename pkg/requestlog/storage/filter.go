package storage

import (
	"fmt"
	"sort"
	"strings"

	"mercator-hq/kate/pkg/requestlog"
)

// sortColumns maps query sort fields to columns.
var sortColumns = map[string]string{
	"timestamp":  "timestamp",
	"latency_ms": "latency_ms",
	"status":     "status",
}

// columns lists the record columns in scan order.
const columns = `id, request_id, timestamp, client_ip, method, path, query, route, service,
	request_headers, request_body, upstream_url, upstream_latency_ms,
	auth_type, authentication_success, authorization_success, rate_limited, stage,
	status, response_headers, response_body, latency_ms, error`

// whereBuilder renders query filters into SQL. bind returns the placeholder
// for the next argument.
type whereBuilder struct {
	conditions []string
	args       []interface{}
	bind       func(n int) string
	timeArg    func(v interface{}) interface{}
}

func (b *whereBuilder) add(cond string, arg interface{}) {
	b.args = append(b.args, arg)
	b.conditions = append(b.conditions, fmt.Sprintf(cond, b.bind(len(b.args))))
}

func (b *whereBuilder) build(q *requestlog.Query) (string, []interface{}) {
	if q.StartTime != nil {
		b.add("timestamp >= %s", b.timeArg(*q.StartTime))
	}
	if q.EndTime != nil {
		b.add("timestamp <= %s", b.timeArg(*q.EndTime))
	}
	if q.Method != "" {
		b.add("method = %s", q.Method)
	}
	if q.Path != "" {
		b.add("path = %s", q.Path)
	}
	if q.Route != "" {
		b.add("route = %s", q.Route)
	}
	if q.Service != "" {
		b.add("service = %s", q.Service)
	}
	if q.ClientIP != "" {
		b.add("client_ip = %s", q.ClientIP)
	}

	switch q.Status {
	case "success":
		b.conditions = append(b.conditions, "status >= 200 AND status < 300")
	case "error":
		b.conditions = append(b.conditions, "(status < 200 OR status >= 300)")
	case "rate_limited":
		b.conditions = append(b.conditions, "rate_limited")
	}

	if len(b.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(b.conditions, " AND "), b.args
}

// orderLimit renders ORDER BY, LIMIT and OFFSET. Unknown sort fields fall
// back to timestamp so user input never reaches the SQL text.
func orderLimit(q *requestlog.Query, defaultLimit int) string {
	col, ok := sortColumns[q.SortBy]
	if !ok {
		col = "timestamp"
	}
	order := "DESC"
	if strings.EqualFold(q.SortOrder, "asc") {
		order = "ASC"
	}

	limit := defaultLimit
	if q.Limit > 0 {
		limit = q.Limit
	}
	clause := fmt.Sprintf(" ORDER BY %s %s, id %s LIMIT %d", col, order, order, limit)
	if q.Offset > 0 {
		clause += fmt.Sprintf(" OFFSET %d", q.Offset)
	}
	return clause
}

// matches applies query filters in memory.
func matches(r *requestlog.Record, q *requestlog.Query) bool {
	if q.StartTime != nil && r.Timestamp.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && r.Timestamp.After(*q.EndTime) {
		return false
	}
	if q.Method != "" && r.Method != q.Method {
		return false
	}
	if q.Path != "" && r.Path != q.Path {
		return false
	}
	if q.Route != "" && r.Route != q.Route {
		return false
	}
	if q.Service != "" && r.Service != q.Service {
		return false
	}
	if q.ClientIP != "" && r.ClientIP != q.ClientIP {
		return false
	}
	switch q.Status {
	case "success":
		return r.Success()
	case "error":
		return !r.Success()
	case "rate_limited":
		return r.RateLimited
	}
	return true
}

// sortRecords orders records the way orderLimit does.
func sortRecords(records []*requestlog.Record, q *requestlog.Query) {
	asc := strings.EqualFold(q.SortOrder, "asc")
	key := func(r *requestlog.Record) int64 {
		switch q.SortBy {
		case "latency_ms":
			return r.Latency.Milliseconds()
		case "status":
			return int64(r.Status)
		default:
			return r.Timestamp.UnixNano()
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		ki, kj := key(records[i]), key(records[j])
		if ki == kj {
			if asc {
				return records[i].ID < records[j].ID
			}
			return records[i].ID > records[j].ID
		}
		if asc {
			return ki < kj
		}
		return ki > kj
	})
}
