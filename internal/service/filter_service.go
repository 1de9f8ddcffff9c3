package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fieldvisit/internal/domain"
	"fieldvisit/internal/repository"

	"go.uber.org/zap"
)

// FilterService 网格查询：组合过滤条件，必要时先从拜访历史解析 id 白名单
type FilterService struct {
	entries repository.ScheduleEntriesRepository
	visits  repository.VisitsRepository
	cache   *OptionsCache
	logger  *zap.Logger
}

func NewFilterService(entries repository.ScheduleEntriesRepository, visits repository.VisitsRepository, cache *OptionsCache, logger *zap.Logger) *FilterService {
	return &FilterService{entries: entries, visits: visits, cache: cache, logger: logger}
}

// DateRangeFilter 日期范围过滤
// Either From/To or Month+Year. Rows outside the range (or without a date)
// match by default; Invert selects rows inside it.
type DateRangeFilter struct {
	Column string     `json:"column"`
	From   *time.Time `json:"from,omitempty"`
	To     *time.Time `json:"to,omitempty"`
	Month  int        `json:"month,omitempty"`
	Year   int        `json:"year,omitempty"`
	Invert bool       `json:"invert"`
}

// LifeCountFilter 寿命数区间（闭区间，任一端可省略）
type LifeCountFilter struct {
	Min *int `json:"min,omitempty"`
	Max *int `json:"max,omitempty"`
}

// ScheduleQueryRequest 网格查询请求
type ScheduleQueryRequest struct {
	Columns    map[string][]string `json:"columns"` // column -> option labels
	Search     string              `json:"search"`
	DateRanges []DateRangeFilter   `json:"date_ranges"`
	LifeCount  *LifeCountFilter    `json:"life_count,omitempty"`
	SortBy     string              `json:"sort_by"`
	SortDesc   bool                `json:"sort_desc"`
	Page       int                 `json:"page"`
	Size       int                 `json:"size"`
}

// ScheduleQueryResponse 网格查询响应
type ScheduleQueryResponse struct {
	Items []*domain.ScheduleEntry `json:"items"`
	Total int                     `json:"total"`
	Page  int                     `json:"page"`
	Size  int                     `json:"size"`
}

// Query resolves the request into a storage query and runs it.
func (s *FilterService) Query(ctx context.Context, req ScheduleQueryRequest) (*ScheduleQueryResponse, error) {
	q := &repository.ScheduleQuery{
		SortBy:   req.SortBy,
		SortDesc: req.SortDesc,
		Page:     req.Page,
		Size:     req.Size,
	}

	for column, labels := range req.Columns {
		if len(labels) == 0 {
			continue
		}
		cond, err := s.columnCondition(ctx, column, labels)
		if err != nil {
			return nil, err
		}
		q.Conditions = append(q.Conditions, cond)
	}

	for _, dr := range req.DateRanges {
		cond, err := dateCondition(dr)
		if err != nil {
			return nil, err
		}
		q.Conditions = append(q.Conditions, cond)
	}

	if text := strings.TrimSpace(req.Search); text != "" {
		q.Conditions = append(q.Conditions, repository.Condition{
			Kind:    repository.CondSearch,
			Columns: repository.SearchColumns,
			Text:    text,
		})
	}

	if req.LifeCount != nil && (req.LifeCount.Min != nil || req.LifeCount.Max != nil) {
		ids, err := s.lifeCountAllowList(ctx, req.LifeCount)
		if err != nil {
			return nil, err
		}
		q.RestrictIDs = true
		q.EntryIDs = ids
	}

	q.Normalize()
	resp := &ScheduleQueryResponse{Items: []*domain.ScheduleEntry{}, Page: q.Page, Size: q.Size}
	// 白名单为空时直接返回，不执行主查询
	if q.RestrictIDs && len(q.EntryIDs) == 0 {
		return resp, nil
	}

	items, total, err := s.entries.QueryEntries(ctx, q)
	if err != nil {
		return nil, err
	}
	resp.Items = items
	resp.Total = total
	return resp, nil
}

// columnCondition expands option labels to raw values. Time-window labels
// match by tag unless the literal variants were already cached.
func (s *FilterService) columnCondition(ctx context.Context, column string, labels []string) (repository.Condition, error) {
	if !repository.TextColumns[column] {
		return repository.Condition{}, invalid("unknown filter column %q", column)
	}

	if column == "time_window" {
		if set, ok := s.cache.Cached(ctx, column); ok {
			return repository.Condition{Kind: repository.CondIn, Column: column, Values: set.Expand(labels)}, nil
		}
		return repository.Condition{Kind: repository.CondTag, Column: column, Values: labels}, nil
	}

	set, err := s.cache.Options(ctx, column)
	if err != nil {
		return repository.Condition{}, err
	}
	return repository.Condition{Kind: repository.CondIn, Column: column, Values: set.Expand(labels)}, nil
}

func dateCondition(dr DateRangeFilter) (repository.Condition, error) {
	column := dr.Column
	if column == "" {
		column = "last_visit_date"
	}
	if !repository.DateColumns[column] {
		return repository.Condition{}, invalid("unknown date column %q", column)
	}

	var from, to time.Time
	switch {
	case dr.From != nil || dr.To != nil:
		if dr.From == nil || dr.To == nil {
			return repository.Condition{}, invalid("date range needs both from and to")
		}
		from, to = domain.DateOnly(*dr.From), domain.DateOnly(*dr.To)
	case dr.Month != 0 || dr.Year != 0:
		if dr.Month < 1 || dr.Month > 12 || dr.Year < 1 {
			return repository.Condition{}, invalid("invalid month/year %d/%d", dr.Month, dr.Year)
		}
		from = time.Date(dr.Year, time.Month(dr.Month), 1, 0, 0, 0, 0, time.UTC)
		to = from.AddDate(0, 1, -1)
	default:
		return repository.Condition{}, invalid("date range needs from/to or month/year")
	}
	if to.Before(from) {
		return repository.Condition{}, invalid("date range ends before it starts")
	}

	kind := repository.CondDateOutsideOrNull
	if dr.Invert {
		kind = repository.CondDateWithin
	}
	return repository.Condition{Kind: kind, Column: column, From: from, To: to}, nil
}

// lifeCountAllowList scans completed visits newest first. Only the most recent
// count of each entry is compared against the range.
func (s *FilterService) lifeCountAllowList(ctx context.Context, f *LifeCountFilter) ([]string, error) {
	if f.Min != nil && f.Max != nil && *f.Max < *f.Min {
		return nil, invalid("life count range is empty")
	}

	latest := map[string]int{}
	var order []string
	for offset := 0; ; offset += repository.BulkPageSize {
		page, err := s.visits.ListCompletedCounts(ctx, offset, repository.BulkPageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to scan completed visits: %w", err)
		}
		for _, c := range page {
			if _, seen := latest[c.EntryID]; seen {
				continue
			}
			latest[c.EntryID] = c.LifeCount
			order = append(order, c.EntryID)
		}
		if len(page) < repository.BulkPageSize {
			break
		}
	}

	ids := make([]string, 0, len(order))
	for _, id := range order {
		n := latest[id]
		if f.Min != nil && n < *f.Min {
			continue
		}
		if f.Max != nil && n > *f.Max {
			continue
		}
		ids = append(ids, id)
	}
	s.logger.Debug("life count allow-list resolved",
		zap.Int("entries_scanned", len(order)),
		zap.Int("allowed", len(ids)),
	)
	return ids, nil
}

// ColumnOptions 某列的过滤选项（供前端下拉）
func (s *FilterService) ColumnOptions(ctx context.Context, column string) (*OptionSet, error) {
	return s.cache.Options(ctx, column)
}
