package httpapi

import (
	"net/http"
	"strings"
	"time"

	"fieldvisit/internal/domain"
	"fieldvisit/internal/service"

	"go.uber.org/zap"
)

const (
	visitsPath  = "/api/v1/visits"
	vendorsPath = "/api/v1/vendors"
)

// VisitsHandler 拜访、执行人视图与路线 Handler
type VisitsHandler struct {
	visits *service.VisitService
	routes *service.RouteProvisioner
	roster *service.VendorRoster
	now    func() time.Time
	logger *zap.Logger
}

func NewVisitsHandler(visits *service.VisitService, routes *service.RouteProvisioner, roster *service.VendorRoster, logger *zap.Logger) *VisitsHandler {
	return &VisitsHandler{visits: visits, routes: routes, roster: roster, now: time.Now, logger: logger}
}

func (h *VisitsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, rest := pathID(r.URL.Path, visitsPath)
	switch {
	case id != "" && rest == "" && r.Method == http.MethodGet:
		h.GetVisit(w, r, id)
	case id != "" && rest == "" && r.Method == http.MethodPut:
		h.UpdateVisit(w, r, id)
	case id != "" && rest == "" && r.Method == http.MethodDelete:
		h.DeleteVisit(w, r, id)
	case id != "" && rest == "complete" && r.Method == http.MethodPost:
		h.Complete(w, r, id)
	case id != "" && rest == "options" && r.Method == http.MethodGet:
		h.CompletionOptions(w, r, id)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *VisitsHandler) GetVisit(w http.ResponseWriter, r *http.Request, id string) {
	v, err := h.visits.GetVisit(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(v))
}

// UpdateVisit 改派/改期
func (h *VisitsHandler) UpdateVisit(w http.ResponseWriter, r *http.Request, id string) {
	var p struct {
		VendorID   string `json:"vendor_id"`
		VendorName string `json:"vendor_name"`
		VisitDate  string `json:"visit_date"`
	}
	if err := readBodyJSON(r, 1<<20, &p); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	req := service.UpdateVisitRequest{VendorID: p.VendorID, VendorName: p.VendorName}
	d, err := parseDate(p.VisitDate)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid visit_date"))
		return
	}
	if !d.IsZero() {
		req.VisitDate = &d
	}

	resp, err := h.visits.UpdateVisit(r.Context(), id, req)
	if err != nil {
		h.logger.Error("UpdateVisit failed", zap.String("visit_id", id), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

func (h *VisitsHandler) DeleteVisit(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.visits.DeleteVisit(r.Context(), id); err != nil {
		h.logger.Error("DeleteVisit failed", zap.String("visit_id", id), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"visit_id": id}))
}

// Complete 完成拜访
func (h *VisitsHandler) Complete(w http.ResponseWriter, r *http.Request, id string) {
	var req service.CompleteVisitRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	v, err := h.visits.Complete(r.Context(), id, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(v))
}

func (h *VisitsHandler) CompletionOptions(w http.ResponseWriter, r *http.Request, id string) {
	opts, err := h.visits.CompletionOptions(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"time_windows": opts,
		"reasons":      domain.NotVisitedReasons,
	}))
}

// vendorRef 路径段为执行人 id；?by=name 时按显示名解析
func vendorRef(r *http.Request, segment string) domain.VendorRef {
	if r.URL.Query().Get("by") == "name" {
		return domain.VendorByName(segment)
	}
	return domain.VendorByID(segment)
}

// ServeVendors /api/v1/vendors/{ref}/visits 与 /api/v1/vendors/{ref}/ceiling
func (h *VisitsHandler) ServeVendors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	segment, rest := pathID(r.URL.Path, vendorsPath)
	if segment == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	ref := vendorRef(r, segment)

	switch rest {
	case "ceiling":
		c, err := h.visits.VisibleCeiling(r.Context(), ref, h.now())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(c))
	case "visits":
		h.vendorVisits(w, r, ref)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *VisitsHandler) vendorVisits(w http.ResponseWriter, r *http.Request, ref domain.VendorRef) {
	q := r.URL.Query()
	from, err := parseDate(q.Get("from"))
	if err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid from date"))
		return
	}
	to, err := parseDate(q.Get("to"))
	if err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid to date"))
		return
	}
	resp, err := h.visits.ListVendorVisits(r.Context(), ref, from, to, h.now())
	if err != nil {
		h.logger.Error("ListVendorVisits failed", zap.String("vendor", ref.String()), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// ListRoutes 查询路线（?vendor_id= | ?vendor_name=, ?date=）
func (h *VisitsHandler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()

	var vendor *domain.VendorMatch
	ref := domain.NewVendorRef(q.Get("vendor_id"), q.Get("vendor_name"))
	if !ref.IsZero() {
		m, err := h.roster.Resolve(r.Context(), ref)
		if err != nil {
			writeError(w, err)
			return
		}
		vendor = &m
	}

	var date *time.Time
	if raw := strings.TrimSpace(q.Get("date")); raw != "" {
		d, err := parseDate(raw)
		if err != nil {
			writeJSON(w, http.StatusOK, Fail("invalid date"))
			return
		}
		date = &d
	}

	routes, err := h.routes.ListRoutes(r.Context(), vendor, date)
	if err != nil {
		h.logger.Error("ListRoutes failed", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(routes))
}
