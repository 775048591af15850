package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"mercator-hq/kate/pkg/gateway"
	"mercator-hq/kate/pkg/requestlog"
	"mercator-hq/kate/pkg/requestlog/export"
	"mercator-hq/kate/pkg/requestlog/query"
	"mercator-hq/kate/pkg/security/auth"
	"mercator-hq/kate/pkg/service"
)

// maxDefinitionBytes bounds a POST /_services body.
const maxDefinitionBytes = 4 << 20

// Gateway is the part of the gateway the admin API drives.
type Gateway interface {
	Replace(ctx context.Context, services []service.Service) error
	Routes() []gateway.RouteInfo
	Keys() *auth.KeyAuthenticator
}

// Store persists service definitions.
type Store interface {
	Load(ctx context.Context) ([]service.Service, error)
	Save(ctx context.Context, services []service.Service) error
	Delete(ctx context.Context) error
}

// Response is the envelope of every admin response.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// Route is one entry of GET /_routes.
type Route struct {
	Path    string `json:"path"`
	Method  string `json:"method"`
	Service string `json:"service"`
	Tag     string `json:"tag,omitempty"`
}

// LogPage is the JSON body of GET /_dashboard/logs. Total counts every
// matching record, ignoring limit and offset.
type LogPage struct {
	Records []*requestlog.Record `json:"records"`
	Total   int64                `json:"total"`
}

// Handler serves the administrative API.
type Handler struct {
	gateway   Gateway
	store     Store
	dashboard *requestlog.Dashboard
	keys      *auth.AdminKeys
	now       func() time.Time
	logger    *slog.Logger
}

// NewHandler creates the admin API. dashboard may be nil when the request
// log is disabled.
func NewHandler(gw Gateway, store Store, dashboard *requestlog.Dashboard, keys *auth.AdminKeys) *Handler {
	return &Handler{
		gateway:   gw,
		store:     store,
		dashboard: dashboard,
		keys:      keys,
		now:       time.Now,
		logger:    slog.Default().With("component", "admin"),
	}
}

// Mount registers the admin endpoints on r behind the admin key check.
func (h *Handler) Mount(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAdmin(h.keys, deny))

		r.Get("/_services", h.listServices)
		r.Post("/_services", h.addServices)
		r.Delete("/_services", h.deleteServices)
		r.Get("/_routes", h.listRoutes)
		r.Post("/_invalidate/{key}", h.invalidate)

		r.Route("/_dashboard", func(r chi.Router) {
			r.Get("/home", h.home)
			r.Get("/traces", h.traces)
			r.Get("/consumers", h.consumers)
			r.Get("/logs", h.logs)
		})
	})
}

// Router returns a standalone router serving only the admin API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	h.Mount(r)
	return r
}

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.load(r.Context())
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, "failed to load services", err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "services", Data: services})
}

// addServices merges the posted definitions into the stored set, saves it
// and makes it the registered set.
func (h *Handler) addServices(w http.ResponseWriter, r *http.Request) {
	var incoming []service.Service
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDefinitionBytes))
	if err := dec.Decode(&incoming); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: "invalid service list: " + err.Error()})
		return
	}

	current, err := h.load(r.Context())
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, "failed to load services", err)
		return
	}
	merged := service.Merge(current, incoming)

	// Partial definitions are valid when they complete a stored service.
	for i := range merged {
		if _, posted := service.Find(incoming, merged[i].Name); !posted {
			continue
		}
		if err := service.Validate(&merged[i]); err != nil {
			writeJSON(w, http.StatusBadRequest, Response{Message: err.Error()})
			return
		}
	}
	if err := h.store.Save(r.Context(), merged); err != nil {
		h.fail(w, r, http.StatusInternalServerError, "failed to save services", err)
		return
	}
	if err := h.gateway.Replace(r.Context(), merged); err != nil {
		h.fail(w, r, http.StatusBadRequest, err.Error(), err)
		return
	}

	h.logger.InfoContext(r.Context(), "services updated", "posted", len(incoming), "total", len(merged))
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "services registered", Data: merged})
}

func (h *Handler) deleteServices(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context()); err != nil {
		h.fail(w, r, http.StatusInternalServerError, "failed to delete services", err)
		return
	}
	if err := h.gateway.Replace(r.Context(), nil); err != nil {
		h.fail(w, r, http.StatusInternalServerError, "failed to deregister services", err)
		return
	}
	h.logger.InfoContext(r.Context(), "all services deleted")
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "services deleted"})
}

func (h *Handler) listRoutes(w http.ResponseWriter, _ *http.Request) {
	infos := h.gateway.Routes()
	routes := make([]Route, len(infos))
	for i, ri := range infos {
		routes[i] = Route{Path: ri.Path, Method: ri.Method, Service: ri.Service, Tag: ri.Tag}
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "routes", Data: routes})
}

func (h *Handler) invalidate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.gateway.Keys().Invalidate(r.Context(), key); err != nil {
		h.fail(w, r, http.StatusInternalServerError, "failed to invalidate key", err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "key invalidated"})
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	if !h.requireDashboard(w) {
		return
	}
	home, err := h.dashboard.Home(r.Context(), h.now())
	h.respond(w, r, "home", home, err)
}

func (h *Handler) traces(w http.ResponseWriter, r *http.Request) {
	if !h.requireDashboard(w) {
		return
	}
	page := intParam(r, "page", 1)
	count := intParam(r, "count", requestlog.DefaultTracePageSize)
	traces, err := h.dashboard.Traces(r.Context(), page, count)
	h.respond(w, r, "traces", traces, err)
}

func (h *Handler) consumers(w http.ResponseWriter, r *http.Request) {
	if !h.requireDashboard(w) {
		return
	}
	consumers, err := h.dashboard.TopConsumers(r.Context(), h.now(), intParam(r, "hours", 24))
	h.respond(w, r, "consumers", consumers, err)
}

// logs searches the request log. format=csv streams the page as CSV.
func (h *Handler) logs(w http.ResponseWriter, r *http.Request) {
	if !h.requireDashboard(w) {
		return
	}
	q, err := parseLogQuery(r)
	if err == nil {
		query.ApplyDefaults(q)
		err = query.Validate(q)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Message: err.Error()})
		return
	}

	records, total, err := h.dashboard.Search(r.Context(), q)
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, "failed to read request log", err)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		writeJSON(w, http.StatusOK, Response{Success: true, Message: "logs", Data: LogPage{Records: records, Total: total}})
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="requests.csv"`)
		w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
		if err := export.NewCSVExporter(true).Export(r.Context(), records, w); err != nil {
			h.logger.ErrorContext(r.Context(), "failed to export request log", "error", err)
		}
	default:
		writeJSON(w, http.StatusBadRequest, Response{Message: "unsupported format: " + format})
	}
}

// parseLogQuery maps query parameters onto a request log query.
func parseLogQuery(r *http.Request) (*requestlog.Query, error) {
	v := r.URL.Query()
	q := &requestlog.Query{
		Method:    strings.ToUpper(v.Get("method")),
		Path:      v.Get("path"),
		Route:     v.Get("route"),
		Service:   v.Get("service"),
		ClientIP:  v.Get("client_ip"),
		Status:    v.Get("status"),
		SortBy:    v.Get("sort"),
		SortOrder: v.Get("order"),
	}
	for name, dst := range map[string]*int{"limit": &q.Limit, "offset": &q.Offset} {
		raw := v.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %q", name, raw)
		}
		*dst = n
	}
	for name, dst := range map[string]**time.Time{"start": &q.StartTime, "end": &q.EndTime} {
		raw := v.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %q is not RFC 3339", name, raw)
		}
		*dst = &t
	}
	return q, nil
}

func (h *Handler) requireDashboard(w http.ResponseWriter) bool {
	if h.dashboard == nil {
		writeJSON(w, http.StatusServiceUnavailable, Response{Message: "request log is disabled"})
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, msg string, data any, err error) {
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, "failed to read request log", err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: msg, Data: data})
}

// load returns the stored services. A store that was never written is empty.
func (h *Handler) load(ctx context.Context) ([]service.Service, error) {
	services, err := h.store.Load(ctx)
	if errors.Is(err, fs.ErrNotExist) {
		return []service.Service{}, nil
	}
	if services == nil && err == nil {
		services = []service.Service{}
	}
	return services, err
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, msg string, err error) {
	h.logger.ErrorContext(r.Context(), msg, "path", r.URL.Path, "error", err)
	writeJSON(w, status, Response{Message: msg})
}

func deny(w http.ResponseWriter, _ *http.Request, status int) {
	writeJSON(w, status, Response{Message: http.StatusText(status)})
}

func intParam(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
