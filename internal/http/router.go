package httpapi

import (
	"net/http"

	"fieldvisit/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux；每个路由都经过指标中间件
type Router struct {
	mux     *http.ServeMux
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewRouter(m *metrics.Metrics, logger *zap.Logger) *Router {
	return &Router{
		mux:     http.NewServeMux(),
		metrics: m,
		logger:  logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.Handle(pattern, r.metrics.Instrument(pattern, h))
}

// HandleHandler 注册不计入指标的 http.Handler（/metrics 等）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

// ServeHTTP 附加请求 ID 后分发
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	id := req.Header.Get("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
		req.Header.Set("X-Request-ID", id)
	}
	w.Header().Set("X-Request-ID", id)
	r.mux.ServeHTTP(w, req)
}

// RegisterSystemRoutes /health 与 /metrics
func (r *Router) RegisterSystemRoutes() {
	r.HandleHandler("/health", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	}))
	if r.metrics != nil {
		r.HandleHandler("/metrics", r.metrics.Handler())
	}
}

func (r *Router) RegisterClientRoutes(h *ClientsHandler) {
	r.Handle("/api/v1/clients", h.ServeHTTP)
	r.Handle("/api/v1/clients/", h.ServeHTTP)
}

func (r *Router) RegisterScheduleRoutes(h *ScheduleHandler) {
	r.Handle("/api/v1/schedule/", h.ServeHTTP)
}

func (r *Router) RegisterVisitRoutes(h *VisitsHandler) {
	r.Handle("/api/v1/visits/", h.ServeHTTP)
	r.Handle("/api/v1/vendors/", h.ServeVendors)
	r.Handle("/api/v1/routes", h.ListRoutes)
}

func (r *Router) RegisterImportRoutes(h *ImportHandler) {
	r.Handle("/api/v1/import/clients", h.ImportClients)
	r.Handle("/api/v1/import/template", h.Template)
}

func (r *Router) RegisterAccountRoutes(h *AccountsHandler) {
	r.Handle("/admin/api/v1/accounts", h.ServeHTTP)
}
