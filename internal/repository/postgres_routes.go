package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"fieldvisit/internal/domain"
)

// PostgresRoutesRepository 路线Repository实现
type PostgresRoutesRepository struct {
	db *sql.DB
}

// NewPostgresRoutesRepository 创建路线Repository
func NewPostgresRoutesRepository(db *sql.DB) *PostgresRoutesRepository {
	return &PostgresRoutesRepository{db: db}
}

// 确保实现了接口
var _ RoutesRepository = (*PostgresRoutesRepository)(nil)

func scanRoute(row interface{ Scan(...any) error }) (*domain.Route, error) {
	var rt domain.Route
	var vendorID, vendorName sql.NullString
	if err := row.Scan(&rt.RouteID, &rt.Name, &rt.RouteDate, &vendorID, &vendorName); err != nil {
		return nil, err
	}
	rt.VendorID = vendorID.String
	rt.VendorName = vendorName.String
	return &rt, nil
}

// UpsertRoute 查找或创建 (vendor, date) 路线
// 冲突时 DO UPDATE 一个不变的列，使 RETURNING 总能返回已有行。
func (r *PostgresRoutesRepository) UpsertRoute(ctx context.Context, vendor domain.VendorMatch, date time.Time, name string) (string, error) {
	if vendor.ID == "" && vendor.Name == "" {
		return "", fmt.Errorf("vendor is required: %w", domain.ErrValidation)
	}
	if name == "" {
		name = domain.RouteName(vendor.Label(), date)
	}

	query := `
		INSERT INTO routes (name, route_date, vendor_id, vendor_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (vendor_key, route_date) DO UPDATE SET name = routes.name
		RETURNING route_id::text
	`

	var routeID string
	err := r.db.QueryRowContext(ctx, query,
		name,
		date.Format(domain.DateLayout),
		nullString(vendor.ID),
		nullString(vendor.Name),
	).Scan(&routeID)
	if err != nil {
		return "", fmt.Errorf("failed to upsert route: %w", err)
	}
	return routeID, nil
}

// GetRoute 获取路线
func (r *PostgresRoutesRepository) GetRoute(ctx context.Context, routeID string) (*domain.Route, error) {
	rt, err := scanRoute(r.db.QueryRowContext(ctx, `
		SELECT route_id::text, name, route_date, vendor_id::text, vendor_name
		FROM routes
		WHERE route_id = $1`, routeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("route %s: %w", routeID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get route: %w", err)
	}
	return rt, nil
}

// ListRoutes 查询路线
func (r *PostgresRoutesRepository) ListRoutes(ctx context.Context, filters *RouteFilters) ([]*domain.Route, error) {
	where := []string{"TRUE"}
	args := []any{}

	if filters != nil {
		if filters.Vendor != nil {
			pred, vargs := vendorPredicate(*filters.Vendor, len(args)+1)
			where = append(where, pred)
			args = append(args, vargs...)
		}
		if filters.Date != nil {
			args = append(args, filters.Date.Format(domain.DateLayout))
			where = append(where, fmt.Sprintf("route_date = $%d", len(args)))
		}
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT route_id::text, name, route_date, vendor_id::text, vendor_name
		FROM routes
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY route_date DESC, name`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	defer rows.Close()

	var routes []*domain.Route
	for rows.Next() {
		rt, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}
		routes = append(routes, rt)
	}
	return routes, rows.Err()
}

// UpsertStop 查找或创建站点
// 新站点 stop_order = 当前数量+1；已有站点保持原顺序。xmax = 0 表示本语句插入。
func (r *PostgresRoutesRepository) UpsertStop(ctx context.Context, routeID, entryID string) (*domain.RouteStop, bool, error) {
	if routeID == "" || entryID == "" {
		return nil, false, fmt.Errorf("route_id and entry_id are required: %w", domain.ErrValidation)
	}

	query := `
		INSERT INTO route_stops (route_id, entry_id, stop_order)
		SELECT $1::uuid, $2::uuid, COUNT(*) + 1 FROM route_stops WHERE route_id = $1::uuid
		ON CONFLICT (route_id, entry_id) DO UPDATE SET stop_order = route_stops.stop_order
		RETURNING stop_id::text, stop_order, (xmax = 0) AS created
	`

	stop := &domain.RouteStop{RouteID: routeID, EntryID: entryID}
	var created bool
	if err := r.db.QueryRowContext(ctx, query, routeID, entryID).Scan(&stop.StopID, &stop.StopOrder, &created); err != nil {
		return nil, false, fmt.Errorf("failed to upsert route stop: %w", err)
	}
	return stop, created, nil
}

// DeleteStop 删除站点（不存在时不报错）
func (r *PostgresRoutesRepository) DeleteStop(ctx context.Context, routeID, entryID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM route_stops WHERE route_id = $1 AND entry_id = $2`, routeID, entryID)
	if err != nil {
		return fmt.Errorf("failed to delete route stop: %w", err)
	}
	return nil
}

// ListStops 路线的所有站点（按顺序）
func (r *PostgresRoutesRepository) ListStops(ctx context.Context, routeID string) ([]*domain.RouteStop, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT stop_id::text, route_id::text, entry_id::text, stop_order
		FROM route_stops
		WHERE route_id = $1
		ORDER BY stop_order`, routeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list route stops: %w", err)
	}
	defer rows.Close()

	var stops []*domain.RouteStop
	for rows.Next() {
		var s domain.RouteStop
		if err := rows.Scan(&s.StopID, &s.RouteID, &s.EntryID, &s.StopOrder); err != nil {
			return nil, fmt.Errorf("failed to scan route stop: %w", err)
		}
		stops = append(stops, &s)
	}
	return stops, rows.Err()
}
