package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"fieldvisit/internal/domain"
	"fieldvisit/internal/identity"
	"fieldvisit/internal/metrics"
	"fieldvisit/internal/repository"
	"fieldvisit/internal/timewindow"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ScheduleService 排程网格行：插入忽略、编辑、停用，并把时间窗口下发到开放拜访
type ScheduleService struct {
	entries repository.ScheduleEntriesRepository
	visits  repository.VisitsRepository
	cache   *OptionsCache
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewScheduleService(
	entries repository.ScheduleEntriesRepository,
	visits repository.VisitsRepository,
	cache *OptionsCache,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ScheduleService {
	return &ScheduleService{entries: entries, visits: visits, cache: cache, metrics: m, logger: logger}
}

// EntryRequest 排程行写入请求
type EntryRequest struct {
	ClientID      string     `json:"client_id"`
	Code          string     `json:"code"`
	LegalName     string     `json:"legal_name"`
	TradeName     string     `json:"trade_name"`
	TimeWindow    string     `json:"time_window"`
	PostalCode    string     `json:"postal_code"`
	Street        string     `json:"street"`
	Neighborhood  string     `json:"neighborhood"`
	City          string     `json:"city"`
	Region        string     `json:"region"`
	Status        string     `json:"status"`
	VendorID      string     `json:"vendor_id"`
	VendorName    string     `json:"vendor_name"`
	Supervisor    string     `json:"supervisor"`
	GroupName     string     `json:"group_name"`
	LastVisitDate *time.Time `json:"last_visit_date,omitempty"`
	ContractNotes string     `json:"contract_notes"`
}

// UpsertEntryResponse 插入结果；Inserted=false 表示同名行已存在
type UpsertEntryResponse struct {
	EntryID  string `json:"entry_id"`
	Inserted bool   `json:"inserted"`
}

// NormalizeStatus maps free text to Active/Inactive by prefix; blank is Active.
func NormalizeStatus(s string) domain.ClientStatus {
	if strings.HasPrefix(identity.NormalizeText(s), "INA") {
		return domain.StatusInactive
	}
	return domain.StatusActive
}

func (req EntryRequest) toEntry() *domain.ScheduleEntry {
	tw := timewindow.Split(req.TimeWindow)
	return &domain.ScheduleEntry{
		ClientID:          req.ClientID,
		Code:              strings.TrimSpace(req.Code),
		LegalName:         strings.TrimSpace(req.LegalName),
		TradeName:         strings.TrimSpace(req.TradeName),
		TimeWindow:        tw.Primary,
		TimeWindowOptions: tw.Options,
		PostalCode:        strings.TrimSpace(req.PostalCode),
		Street:            strings.TrimSpace(req.Street),
		Neighborhood:      strings.TrimSpace(req.Neighborhood),
		City:              strings.TrimSpace(req.City),
		Region:            strings.TrimSpace(req.Region),
		Status:            NormalizeStatus(req.Status),
		VendorID:          strings.TrimSpace(req.VendorID),
		VendorName:        strings.TrimSpace(req.VendorName),
		Supervisor:        strings.TrimSpace(req.Supervisor),
		GroupName:         strings.TrimSpace(req.GroupName),
		LastVisitDate:     req.LastVisitDate,
		ContractNotes:     req.ContractNotes,
	}
}

// UpsertEntry inserts a grid row unless one with the same dedupe key exists.
// A duplicate is a silent no-op.
func (s *ScheduleService) UpsertEntry(ctx context.Context, req EntryRequest) (*UpsertEntryResponse, error) {
	entry := req.toEntry()
	if identity.NameKey(entry.LegalName, entry.TradeName) == "" {
		return nil, invalid("legal_name or trade_name is required")
	}

	id, inserted, err := s.entries.InsertEntryIgnore(ctx, entry)
	if err != nil {
		return nil, err
	}
	if inserted {
		s.cache.Invalidate(ctx)
	}
	return &UpsertEntryResponse{EntryID: id, Inserted: inserted}, nil
}

// UpdateEntry 编辑排程行；时间窗口同步到该行的开放拜访
func (s *ScheduleService) UpdateEntry(ctx context.Context, entryID string, req EntryRequest) (*domain.ScheduleEntry, error) {
	current, err := s.entries.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	next := req.toEntry()
	if identity.NameKey(next.LegalName, next.TradeName) == "" {
		return nil, invalid("legal_name or trade_name is required")
	}
	if next.ClientID == "" {
		next.ClientID = current.ClientID
	}
	if next.LastVisitDate == nil {
		next.LastVisitDate = current.LastVisitDate
	}
	next.VisitGenerated = current.VisitGenerated

	if err := s.entries.UpdateEntry(ctx, entryID, next); err != nil {
		return nil, err
	}
	next.EntryID = entryID
	next.CreatedAt = current.CreatedAt

	s.refreshVisitWindows(ctx, []*domain.ScheduleEntry{next})
	s.cache.Invalidate(ctx)
	return next, nil
}

// Deactivate 停用排程行（保留记录）
func (s *ScheduleService) Deactivate(ctx context.Context, entryID string) error {
	current, err := s.entries.GetEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if current.Status == domain.StatusInactive {
		return nil
	}
	current.Status = domain.StatusInactive
	if err := s.entries.UpdateEntry(ctx, entryID, current); err != nil {
		return err
	}
	s.cache.Invalidate(ctx)
	return nil
}

func (s *ScheduleService) GetEntry(ctx context.Context, entryID string) (*domain.ScheduleEntry, error) {
	return s.entries.GetEntry(ctx, entryID)
}

// SyncReport 客户变更下发结果
type SyncReport struct {
	EntriesUpdated  int  `json:"entries_updated"`
	EntryInserted   bool `json:"entry_inserted"`
	VisitsRefreshed int  `json:"visits_refreshed"`
	Failed          int  `json:"failed"`
}

// SyncFromClient pushes a client's registry fields down to its grid rows:
// rows found by code key, else by the current or previous name pair, are
// updated in place; when none exist a new row is inserted. Open visits of the
// touched rows get the new time window. Row failures are logged and counted.
func (s *ScheduleService) SyncFromClient(ctx context.Context, c *domain.Client, previous *domain.Client) (*SyncReport, error) {
	matches, err := s.matchEntries(ctx, c, previous)
	if err != nil {
		return nil, err
	}

	report := &SyncReport{}
	tw := timewindow.Split(c.TimeWindow)

	if len(matches) == 0 {
		entry := &domain.ScheduleEntry{
			ClientID:          c.ClientID,
			Status:            c.Status,
			TimeWindow:        tw.Primary,
			TimeWindowOptions: tw.Options,
		}
		copyClientFields(entry, c)
		_, inserted, err := s.entries.InsertEntryIgnore(ctx, entry)
		if err != nil {
			return nil, err
		}
		report.EntryInserted = inserted
		return report, nil
	}

	var updated, failed int64
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range matches {
		e := e
		g.Go(func() error {
			copyClientFields(e, c)
			e.ClientID = c.ClientID
			e.Status = c.Status
			e.TimeWindow = tw.Primary
			e.TimeWindowOptions = tw.Options
			if err := s.entries.UpdateEntry(gctx, e.EntryID, e); err != nil {
				atomic.AddInt64(&failed, 1)
				s.metrics.BatchRowFailed("client_sync")
				s.logger.Warn("Failed to sync schedule entry from client",
					zap.String("client_id", c.ClientID),
					zap.String("entry_id", e.EntryID),
					zap.Error(err),
				)
				return nil
			}
			atomic.AddInt64(&updated, 1)
			return nil
		})
	}
	_ = g.Wait()

	report.EntriesUpdated = int(updated)
	report.Failed = int(failed)
	report.VisitsRefreshed = s.refreshVisitWindows(ctx, matches)
	return report, nil
}

// matchEntries finds grid rows for a client: code key first, then the
// current name pair, then the name pair it had before the edit.
func (s *ScheduleService) matchEntries(ctx context.Context, c *domain.Client, previous *domain.Client) ([]*domain.ScheduleEntry, error) {
	if key := identity.CodeKey(c.Code); key != "" {
		found, err := s.entries.FindEntriesByCode(ctx, key)
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			return found, nil
		}
	}

	keys := []string{identity.NameKey(c.LegalName, c.TradeName)}
	if previous != nil {
		if key := identity.CodeKey(previous.Code); key != "" && previous.Code != c.Code {
			found, err := s.entries.FindEntriesByCode(ctx, key)
			if err != nil {
				return nil, err
			}
			if len(found) > 0 {
				return found, nil
			}
		}
		keys = append(keys, identity.NameKey(previous.LegalName, previous.TradeName))
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		found, err := s.entries.FindEntriesByKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			return found, nil
		}
	}
	return nil, nil
}

// refreshVisitWindows copies each entry's time window onto its open visits and
// returns how many were updated. Completed visits are never touched.
func (s *ScheduleService) refreshVisitWindows(ctx context.Context, entries []*domain.ScheduleEntry) int {
	byID := make(map[string]*domain.ScheduleEntry, len(entries))
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		byID[e.EntryID] = e
		ids = append(ids, e.EntryID)
	}

	open, err := s.visits.ListOpenVisitsByEntries(ctx, ids)
	if err != nil {
		s.logger.Warn("Failed to list open visits for time window refresh", zap.Error(err))
		return 0
	}

	var refreshed int64
	g, gctx := errgroup.WithContext(ctx)
	for _, v := range open {
		v := v
		e := byID[v.EntryID]
		if e == nil || (v.TimeWindow == e.TimeWindow && v.TimeWindowOptions == e.TimeWindowOptions) {
			continue
		}
		g.Go(func() error {
			err := s.visits.UpdateTimeWindow(gctx, v.VisitID, e.TimeWindow, e.TimeWindowOptions)
			switch {
			case err == nil:
				atomic.AddInt64(&refreshed, 1)
			case errors.Is(err, domain.ErrVisitCompleted):
				// 期间被完成，跳过
			default:
				s.metrics.BatchRowFailed("visit_time_window")
				s.logger.Warn("Failed to refresh visit time window",
					zap.String("visit_id", v.VisitID),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(refreshed)
}

func copyClientFields(e *domain.ScheduleEntry, c *domain.Client) {
	e.Code = c.Code
	e.LegalName = c.LegalName
	e.TradeName = c.TradeName
	e.PostalCode = c.PostalCode
	e.Street = c.Street
	e.Neighborhood = c.Neighborhood
	e.City = c.City
	e.Region = c.Region
}
