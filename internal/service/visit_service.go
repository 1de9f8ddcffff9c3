package service

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"fieldvisit/internal/domain"
	"fieldvisit/internal/metrics"
	"fieldvisit/internal/repository"
	"fieldvisit/internal/timewindow"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var lifeCountPattern = regexp.MustCompile(`^\d+$`)

// BlockedNotice 昨日仍有未完成拜访时的提示
const BlockedNotice = "Complete yesterday's open visits before starting today's route"

// VisitService 拜访生命周期：完成、门禁、改派、删除、批量下发
type VisitService struct {
	visits  repository.VisitsRepository
	entries repository.ScheduleEntriesRepository
	routes  *RouteProvisioner
	roster  *VendorRoster
	metrics *metrics.Metrics
	loc     *time.Location
	logger  *zap.Logger
}

func NewVisitService(
	visits repository.VisitsRepository,
	entries repository.ScheduleEntriesRepository,
	routes *RouteProvisioner,
	roster *VendorRoster,
	m *metrics.Metrics,
	loc *time.Location,
	logger *zap.Logger,
) *VisitService {
	if loc == nil {
		loc = time.UTC
	}
	return &VisitService{
		visits:  visits,
		entries: entries,
		routes:  routes,
		roster:  roster,
		metrics: m,
		loc:     loc,
		logger:  logger,
	}
}

// CompleteVisitRequest 完成拜访请求
type CompleteVisitRequest struct {
	Performed  bool   `json:"performed"`
	LifeCount  string `json:"life_count"`
	TimeWindow string `json:"time_window"`
	Reason     string `json:"reason"`
}

// Complete finalizes an open visit exactly once. A performed visit needs a
// non-negative integer count and a time window; otherwise a reason from
// NotVisitedReasons is required.
func (s *VisitService) Complete(ctx context.Context, visitID string, req CompleteVisitRequest) (*domain.Visit, error) {
	visit, err := s.visits.GetVisit(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if visit.IsCompleted() {
		return nil, domain.ErrVisitCompleted
	}

	c := repository.Completion{CompletedAt: time.Now().UTC()}
	if req.Performed {
		count := strings.TrimSpace(req.LifeCount)
		if !lifeCountPattern.MatchString(count) {
			return nil, invalid("life_count must be a non-negative integer")
		}
		n, err := strconv.Atoi(count)
		if err != nil || n > math.MaxInt32 {
			return nil, invalid("life_count out of range")
		}
		tw := timewindow.Normalize(req.TimeWindow)
		if tw == "" {
			return nil, invalid("time_window is required")
		}
		c.LifeCount = &n
		c.TimeWindow = tw
	} else {
		if !domain.IsNotVisitedReason(req.Reason) {
			return nil, invalid("reason must be one of %s", strings.Join(domain.NotVisitedReasons, ", "))
		}
		c.NotVisitedReason = req.Reason
	}

	if err := s.visits.Complete(ctx, visitID, c); err != nil {
		return nil, err
	}

	if c.LifeCount != nil {
		if err := s.entries.SetLastVisitDate(ctx, visit.EntryID, visit.VisitDate); err != nil {
			s.logger.Warn("Failed to stamp last visit date",
				zap.String("entry_id", visit.EntryID),
				zap.Error(err),
			)
		}
	}
	return s.visits.GetVisit(ctx, visitID)
}

// CompletionOptions 完成表单可选的时间窗口
func (s *VisitService) CompletionOptions(ctx context.Context, visitID string) ([]string, error) {
	visit, err := s.visits.GetVisit(ctx, visitID)
	if err != nil {
		return nil, err
	}
	return timewindow.OptionList(timewindow.Fields{Primary: visit.TimeWindow, Options: visit.TimeWindowOptions}), nil
}

// Ceiling 执行人可见的最晚日期
type Ceiling struct {
	Date          time.Time `json:"date"`
	Blocked       bool      `json:"blocked"`
	Notice        string    `json:"notice,omitempty"`
	OpenYesterday int       `json:"open_yesterday"`
}

// VisibleCeiling clamps the vendor's visible dates to yesterday while any of
// yesterday's visits is still open, otherwise to today.
func (s *VisitService) VisibleCeiling(ctx context.Context, ref domain.VendorRef, now time.Time) (*Ceiling, error) {
	vendor, err := s.roster.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.ceiling(ctx, vendor, now)
}

func (s *VisitService) ceiling(ctx context.Context, vendor domain.VendorMatch, now time.Time) (*Ceiling, error) {
	today := domain.DateOnly(now.In(s.loc))
	yesterday := today.AddDate(0, 0, -1)

	open, err := s.visits.CountOpenVisits(ctx, vendor, yesterday)
	if err != nil {
		return nil, err
	}
	if open > 0 {
		return &Ceiling{Date: yesterday, Blocked: true, Notice: BlockedNotice, OpenYesterday: open}, nil
	}
	return &Ceiling{Date: today}, nil
}

// VendorVisitsResponse 执行人拜访列表
type VendorVisitsResponse struct {
	Ceiling *Ceiling        `json:"ceiling"`
	Items   []*domain.Visit `json:"items"`
}

// ListVendorVisits lists the vendor's visits in [from, to], with to clamped to
// the visible ceiling.
func (s *VisitService) ListVendorVisits(ctx context.Context, ref domain.VendorRef, from, to, now time.Time) (*VendorVisitsResponse, error) {
	vendor, err := s.roster.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	ceiling, err := s.ceiling(ctx, vendor, now)
	if err != nil {
		return nil, err
	}

	from, to = domain.DateOnly(from), domain.DateOnly(to)
	if to.IsZero() || to.After(ceiling.Date) {
		to = ceiling.Date
	}
	resp := &VendorVisitsResponse{Ceiling: ceiling, Items: []*domain.Visit{}}
	if !from.IsZero() && from.After(to) {
		return resp, nil
	}

	items, err := s.visits.ListVendorVisits(ctx, vendor, from, to)
	if err != nil {
		return nil, err
	}
	if items != nil {
		resp.Items = items
	}
	return resp, nil
}

// UpdateVisitRequest 改派/改期请求（空字段表示不变）
type UpdateVisitRequest struct {
	VendorID   string     `json:"vendor_id"`
	VendorName string     `json:"vendor_name"`
	VisitDate  *time.Time `json:"visit_date,omitempty"`
}

// UpdateVisitResponse 改派结果；Created 表示为新执行人生成了新拜访
type UpdateVisitResponse struct {
	VisitID string `json:"visit_id"`
	RouteID string `json:"route_id"`
	Created bool   `json:"created"`
}

// UpdateVisit reassigns or reschedules an open visit.
//
// A different vendor gets a new visit on its own route; the original row is
// left untouched. The same vendor on a new date moves the visit and its stop.
func (s *VisitService) UpdateVisit(ctx context.Context, visitID string, req UpdateVisitRequest) (*UpdateVisitResponse, error) {
	visit, err := s.visits.GetVisit(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if visit.IsCompleted() {
		return nil, domain.ErrVisitCompleted
	}

	ref := domain.NewVendorRef(req.VendorID, req.VendorName)
	if ref.IsZero() {
		ref = visit.Vendor()
	}
	target, err := s.roster.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	date := visit.VisitDate
	if req.VisitDate != nil {
		date = domain.DateOnly(*req.VisitDate)
	}

	if !sameVendor(visit, target) {
		routeID, err := s.routes.EnsureRoute(ctx, target, date)
		if err != nil {
			return nil, err
		}
		newID, _, err := s.visits.InsertVisitIgnore(ctx, &domain.Visit{
			EntryID:           visit.EntryID,
			VisitDate:         date,
			VendorID:          target.ID,
			VendorName:        target.Name,
			TimeWindow:        visit.TimeWindow,
			TimeWindowOptions: visit.TimeWindowOptions,
			RouteID:           routeID,
		})
		if err != nil {
			return nil, err
		}
		if _, err := s.routes.EnsureStop(ctx, routeID, visit.EntryID); err != nil {
			return nil, err
		}
		return &UpdateVisitResponse{VisitID: newID, RouteID: routeID, Created: true}, nil
	}

	if domain.SameDay(date, visit.VisitDate) && visit.RouteID != "" {
		return &UpdateVisitResponse{VisitID: visit.VisitID, RouteID: visit.RouteID}, nil
	}

	routeID, err := s.routes.EnsureRoute(ctx, target, date)
	if err != nil {
		return nil, err
	}
	if visit.RouteID != "" && visit.RouteID != routeID {
		if err := s.routes.RemoveStop(ctx, visit.RouteID, visit.EntryID); err != nil {
			return nil, err
		}
	}
	if _, err := s.routes.EnsureStop(ctx, routeID, visit.EntryID); err != nil {
		return nil, err
	}
	err = s.visits.UpdateAssignment(ctx, visit.VisitID, repository.Assignment{
		VisitDate:  date,
		VendorID:   target.ID,
		VendorName: target.Name,
		RouteID:    routeID,
	})
	if err != nil {
		return nil, err
	}
	return &UpdateVisitResponse{VisitID: visit.VisitID, RouteID: routeID}, nil
}

// sameVendor compares by id when the visit has one, otherwise by name.
func sameVendor(v *domain.Visit, target domain.VendorMatch) bool {
	if v.VendorID != "" {
		return v.VendorID == target.ID
	}
	return strings.EqualFold(strings.TrimSpace(v.VendorName), strings.TrimSpace(target.Name))
}

// DeleteVisit removes an open visit and its stop. When it was the entry's
// last visit the entry becomes releasable again.
func (s *VisitService) DeleteVisit(ctx context.Context, visitID string) error {
	visit, err := s.visits.GetVisit(ctx, visitID)
	if err != nil {
		return err
	}
	if visit.IsCompleted() {
		return domain.ErrVisitCompleted
	}

	if err := s.routes.RemoveStop(ctx, visit.RouteID, visit.EntryID); err != nil {
		return err
	}
	if err := s.visits.DeleteVisit(ctx, visitID); err != nil {
		return err
	}

	remaining, err := s.visits.CountVisitsByEntry(ctx, visit.EntryID)
	if err != nil {
		s.logger.Warn("Failed to count remaining visits", zap.String("entry_id", visit.EntryID), zap.Error(err))
		return nil
	}
	if remaining == 0 {
		if err := s.entries.SetVisitGenerated(ctx, visit.EntryID, false); err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("Failed to clear visit marker", zap.String("entry_id", visit.EntryID), zap.Error(err))
		}
	}
	return nil
}

// ReleaseRequest 批量下发请求
type ReleaseRequest struct {
	EntryIDs []string  `json:"entry_ids"`
	Date     time.Time `json:"date"`
}

// ReleaseResponse 批量下发结果
type ReleaseResponse struct {
	Released int `json:"released"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// ReleaseEntries generates one visit per entry that has a vendor and no
// visit yet, each with its route and stop. Row failures are logged and
// counted; the batch always completes.
func (s *VisitService) ReleaseEntries(ctx context.Context, req ReleaseRequest) (*ReleaseResponse, error) {
	if len(req.EntryIDs) == 0 {
		return nil, invalid("entry_ids is required")
	}
	if req.Date.IsZero() {
		return nil, invalid("date is required")
	}
	date := domain.DateOnly(req.Date)

	entries, err := s.entries.GetEntriesByIDs(ctx, req.EntryIDs)
	if err != nil {
		return nil, err
	}

	var released, skipped, failed int64
	skipped = int64(len(req.EntryIDs) - len(entries))

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range entries {
		e := e
		if e.VisitGenerated || e.Vendor().IsZero() || e.Status == domain.StatusInactive {
			skipped++
			continue
		}
		g.Go(func() error {
			if err := s.release(gctx, e, date); err != nil {
				atomic.AddInt64(&failed, 1)
				s.metrics.BatchRowFailed("release")
				s.logger.Warn("Failed to release schedule entry",
					zap.String("entry_id", e.EntryID),
					zap.Error(err),
				)
				return nil
			}
			atomic.AddInt64(&released, 1)
			return nil
		})
	}
	_ = g.Wait()

	return &ReleaseResponse{Released: int(released), Skipped: int(skipped), Failed: int(failed)}, nil
}

func (s *VisitService) release(ctx context.Context, e *domain.ScheduleEntry, date time.Time) error {
	vendor, err := s.roster.Resolve(ctx, e.Vendor())
	if err != nil {
		return err
	}
	routeID, err := s.routes.EnsureRoute(ctx, vendor, date)
	if err != nil {
		return err
	}
	tw := timewindow.Split(e.TimeWindow)
	if e.TimeWindowOptions != "" {
		tw.Options = e.TimeWindowOptions
	}
	_, _, err = s.visits.InsertVisitIgnore(ctx, &domain.Visit{
		EntryID:           e.EntryID,
		VisitDate:         date,
		VendorID:          vendor.ID,
		VendorName:        vendor.Name,
		TimeWindow:        tw.Primary,
		TimeWindowOptions: tw.Options,
		RouteID:           routeID,
	})
	if err != nil {
		return err
	}
	if _, err := s.routes.EnsureStop(ctx, routeID, e.EntryID); err != nil {
		return err
	}
	return s.entries.SetVisitGenerated(ctx, e.EntryID, true)
}

func (s *VisitService) GetVisit(ctx context.Context, visitID string) (*domain.Visit, error) {
	return s.visits.GetVisit(ctx, visitID)
}
