package repository

import (
	"context"
	"time"

	"fieldvisit/internal/domain"
)

// RouteFilters 路线查询过滤器
type RouteFilters struct {
	Vendor *domain.VendorMatch
	Date   *time.Time
}

// RoutesRepository 路线/站点Repository接口
// Upserts are atomic on the natural keys (vendor_key, route_date) and (route_id, entry_id).
type RoutesRepository interface {
	// UpsertRoute 查找或创建 (vendor, date) 路线，返回 route_id
	UpsertRoute(ctx context.Context, vendor domain.VendorMatch, date time.Time, name string) (string, error)

	// GetRoute 获取路线
	GetRoute(ctx context.Context, routeID string) (*domain.Route, error)

	// ListRoutes 查询路线
	ListRoutes(ctx context.Context, filters *RouteFilters) ([]*domain.Route, error)

	// UpsertStop 查找或创建站点；新站点顺序为 count+1，已有站点顺序不变
	UpsertStop(ctx context.Context, routeID, entryID string) (stop *domain.RouteStop, created bool, err error)

	// DeleteStop 删除站点（不存在时不报错）
	DeleteStop(ctx context.Context, routeID, entryID string) error

	// ListStops 路线的所有站点（按顺序）
	ListStops(ctx context.Context, routeID string) ([]*domain.RouteStop, error)
}
