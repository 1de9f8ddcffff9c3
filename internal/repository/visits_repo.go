package repository

import (
	"context"
	"time"

	"fieldvisit/internal/domain"
)

// BulkPageSize 批量扫描每次往返的行数
const BulkPageSize = 1000

// CompletedCount 已完成拜访的数量记录（寿命数过滤的第一阶段）
type CompletedCount struct {
	EntryID     string
	LifeCount   int
	CompletedAt time.Time
}

// Completion 完成拜访时写入的字段
type Completion struct {
	CompletedAt      time.Time
	LifeCount        *int
	NotVisitedReason string
	TimeWindow       string
}

// Assignment 拜访的日期/执行人/路线
type Assignment struct {
	VisitDate  time.Time
	VendorID   string
	VendorName string
	RouteID    string
}

// VisitsRepository 拜访Repository接口
type VisitsRepository interface {
	// GetVisit 获取拜访
	GetVisit(ctx context.Context, visitID string) (*domain.Visit, error)

	// InsertVisitIgnore 按自然键 (entry, vendor, date) 插入；重复提交为空操作
	InsertVisitIgnore(ctx context.Context, visit *domain.Visit) (visitID string, inserted bool, err error)

	// FindVisit 按自然键查找
	FindVisit(ctx context.Context, entryID string, vendor domain.VendorMatch, date time.Time) (*domain.Visit, error)

	// UpdateAssignment 更新开放拜访的日期/执行人/路线；已完成返回 domain.ErrVisitCompleted
	UpdateAssignment(ctx context.Context, visitID string, a Assignment) error

	// UpdateTimeWindow 刷新开放拜访的时间窗口字段
	UpdateTimeWindow(ctx context.Context, visitID string, timeWindow, options string) error

	// Complete 终结拜访（仅一次）；已完成返回 domain.ErrVisitCompleted
	Complete(ctx context.Context, visitID string, c Completion) error

	// DeleteVisit 删除拜访
	DeleteVisit(ctx context.Context, visitID string) error

	// ListOpenVisitsByEntries 获取这些排程行的开放拜访
	ListOpenVisitsByEntries(ctx context.Context, entryIDs []string) ([]*domain.Visit, error)

	// CountVisitsByEntry 某排程行的拜访数量
	CountVisitsByEntry(ctx context.Context, entryID string) (int, error)

	// CountOpenVisits 某执行人某日的开放拜访数量
	CountOpenVisits(ctx context.Context, vendor domain.VendorMatch, date time.Time) (int, error)

	// ListVendorVisits 某执行人在 [from, to] 的拜访
	ListVendorVisits(ctx context.Context, vendor domain.VendorMatch, from, to time.Time) ([]*domain.Visit, error)

	// ListCompletedCounts 按完成时间倒序分页读取有数量的已完成拜访
	ListCompletedCounts(ctx context.Context, offset, limit int) ([]CompletedCount, error)
}
