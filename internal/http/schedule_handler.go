package httpapi

import (
	"net/http"
	"time"

	"fieldvisit/internal/service"

	"go.uber.org/zap"
)

const schedulePath = "/api/v1/schedule"

// ScheduleHandler 排程网格 Handler
type ScheduleHandler struct {
	schedule *service.ScheduleService
	filter   *service.FilterService
	visits   *service.VisitService
	logger   *zap.Logger
}

func NewScheduleHandler(schedule *service.ScheduleService, filter *service.FilterService, visits *service.VisitService, logger *zap.Logger) *ScheduleHandler {
	return &ScheduleHandler{schedule: schedule, filter: filter, visits: visits, logger: logger}
}

func (h *ScheduleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, rest := pathID(r.URL.Path, schedulePath)
	switch {
	case id == "query" && r.Method == http.MethodPost:
		h.Query(w, r)
	case id == "release" && r.Method == http.MethodPost:
		h.Release(w, r)
	case id == "options" && r.Method == http.MethodGet:
		h.Options(w, r)
	case id == "entries" && r.Method == http.MethodPost:
		h.UpsertEntry(w, r)
	case id != "" && rest == "" && r.Method == http.MethodGet:
		h.GetEntry(w, r, id)
	case id != "" && rest == "" && r.Method == http.MethodPut:
		h.UpdateEntry(w, r, id)
	case id != "" && rest == "deactivate" && r.Method == http.MethodPost:
		h.Deactivate(w, r, id)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type dateRangePayload struct {
	Column string `json:"column"`
	From   string `json:"from"`
	To     string `json:"to"`
	Month  int    `json:"month"`
	Year   int    `json:"year"`
	Invert bool   `json:"invert"`
}

type queryPayload struct {
	Columns    map[string][]string      `json:"columns"`
	Search     string                   `json:"search"`
	DateRanges []dateRangePayload       `json:"date_ranges"`
	LifeCount  *service.LifeCountFilter `json:"life_count"`
	SortBy     string                   `json:"sort_by"`
	SortDesc   bool                     `json:"sort_desc"`
	Page       int                      `json:"page"`
	Size       int                      `json:"size"`
}

// Query 网格查询
func (h *ScheduleHandler) Query(w http.ResponseWriter, r *http.Request) {
	var p queryPayload
	if err := readBodyJSON(r, 1<<20, &p); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}

	req := service.ScheduleQueryRequest{
		Columns:   p.Columns,
		Search:    p.Search,
		LifeCount: p.LifeCount,
		SortBy:    p.SortBy,
		SortDesc:  p.SortDesc,
		Page:      p.Page,
		Size:      p.Size,
	}
	for _, dr := range p.DateRanges {
		f := service.DateRangeFilter{Column: dr.Column, Month: dr.Month, Year: dr.Year, Invert: dr.Invert}
		from, err := parseDate(dr.From)
		if err != nil {
			writeJSON(w, http.StatusOK, Fail("invalid from date"))
			return
		}
		to, err := parseDate(dr.To)
		if err != nil {
			writeJSON(w, http.StatusOK, Fail("invalid to date"))
			return
		}
		if !from.IsZero() {
			f.From = &from
		}
		if !to.IsZero() {
			f.To = &to
		}
		req.DateRanges = append(req.DateRanges, f)
	}

	resp, err := h.filter.Query(r.Context(), req)
	if err != nil {
		h.logger.Error("Schedule query failed", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// Options 某列的过滤选项
func (h *ScheduleHandler) Options(w http.ResponseWriter, r *http.Request) {
	set, err := h.filter.ColumnOptions(r.Context(), r.URL.Query().Get("column"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(set))
}

type entryPayload struct {
	service.EntryRequest
	LastVisit string `json:"last_visit_date"` // 覆盖内嵌字段，按 YYYY-MM-DD 解析
}

func (p *entryPayload) toRequest() (service.EntryRequest, error) {
	req := p.EntryRequest
	d, err := parseDate(p.LastVisit)
	if err != nil {
		return req, err
	}
	if !d.IsZero() {
		req.LastVisitDate = &d
	}
	return req, nil
}

func (h *ScheduleHandler) UpsertEntry(w http.ResponseWriter, r *http.Request) {
	var p entryPayload
	if err := readBodyJSON(r, 1<<20, &p); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	req, err := p.toRequest()
	if err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid last_visit_date"))
		return
	}
	resp, err := h.schedule.UpsertEntry(r.Context(), req)
	if err != nil {
		h.logger.Error("UpsertEntry failed", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

func (h *ScheduleHandler) GetEntry(w http.ResponseWriter, r *http.Request, id string) {
	e, err := h.schedule.GetEntry(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(e))
}

// UpdateEntry 编辑排程行
func (h *ScheduleHandler) UpdateEntry(w http.ResponseWriter, r *http.Request, id string) {
	var p entryPayload
	if err := readBodyJSON(r, 1<<20, &p); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	req, err := p.toRequest()
	if err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid last_visit_date"))
		return
	}
	e, err := h.schedule.UpdateEntry(r.Context(), id, req)
	if err != nil {
		h.logger.Error("UpdateEntry failed", zap.String("entry_id", id), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(e))
}

func (h *ScheduleHandler) Deactivate(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.schedule.Deactivate(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"entry_id": id}))
}

// Release 批量生成拜访
func (h *ScheduleHandler) Release(w http.ResponseWriter, r *http.Request) {
	var p struct {
		EntryIDs []string `json:"entry_ids"`
		Date     string   `json:"date"`
	}
	if err := readBodyJSON(r, 1<<20, &p); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	date, err := parseDate(p.Date)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid date"))
		return
	}
	if date.IsZero() {
		date = time.Now()
	}

	resp, err := h.visits.ReleaseEntries(r.Context(), service.ReleaseRequest{EntryIDs: p.EntryIDs, Date: date})
	if err != nil {
		h.logger.Error("ReleaseEntries failed", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}
