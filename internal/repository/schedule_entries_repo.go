package repository

import (
	"context"
	"time"

	"fieldvisit/internal/domain"
)

// ScheduleEntriesRepository 排程网格Repository接口
type ScheduleEntriesRepository interface {
	// GetEntry 获取排程行
	GetEntry(ctx context.Context, entryID string) (*domain.ScheduleEntry, error)

	// InsertEntryIgnore 按 dedupe_key 插入；冲突时静默丢弃（inserted=false）
	InsertEntryIgnore(ctx context.Context, entry *domain.ScheduleEntry) (entryID string, inserted bool, err error)

	// UpdateEntry 更新排程行（dedupe_key 随名称重算）
	UpdateEntry(ctx context.Context, entryID string, entry *domain.ScheduleEntry) error

	// FindEntriesByCode 按 code 键查找
	FindEntriesByCode(ctx context.Context, codeKey string) ([]*domain.ScheduleEntry, error)

	// FindEntriesByKey 按 dedupe_key 查找
	FindEntriesByKey(ctx context.Context, dedupeKey string) ([]*domain.ScheduleEntry, error)

	// GetEntriesByIDs 批量获取
	GetEntriesByIDs(ctx context.Context, entryIDs []string) ([]*domain.ScheduleEntry, error)

	// SetVisitGenerated 设置/清除“已生成拜访”标记
	SetVisitGenerated(ctx context.Context, entryID string, generated bool) error

	// SetLastVisitDate 更新最近拜访日期
	SetLastVisitDate(ctx context.Context, entryID string, date time.Time) error

	// QueryEntries 网格查询
	QueryEntries(ctx context.Context, q *ScheduleQuery) ([]*domain.ScheduleEntry, int, error)

	// DistinctValues 某列所有原始取值（用于构建过滤选项）
	DistinctValues(ctx context.Context, column string) ([]string, error)
}
