package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fieldvisit/internal/domain"

	"github.com/lib/pq"
)

// PostgresVisitsRepository 拜访Repository实现
type PostgresVisitsRepository struct {
	db *sql.DB
}

// NewPostgresVisitsRepository 创建拜访Repository
func NewPostgresVisitsRepository(db *sql.DB) *PostgresVisitsRepository {
	return &PostgresVisitsRepository{db: db}
}

// 确保实现了接口
var _ VisitsRepository = (*PostgresVisitsRepository)(nil)

const visitColumns = `
			visit_id::text,
			entry_id::text,
			visit_date,
			vendor_id::text,
			vendor_name,
			time_window,
			time_window_options,
			route_id::text,
			completed_at,
			life_count,
			not_visited_reason,
			created_at`

func scanVisit(row interface{ Scan(...any) error }) (*domain.Visit, error) {
	var v domain.Visit
	var vendorID, vendorName, timeWindow, timeWindowOptions, routeID, reason sql.NullString
	var completedAt sql.NullTime
	var lifeCount sql.NullInt64

	if err := row.Scan(
		&v.VisitID,
		&v.EntryID,
		&v.VisitDate,
		&vendorID,
		&vendorName,
		&timeWindow,
		&timeWindowOptions,
		&routeID,
		&completedAt,
		&lifeCount,
		&reason,
		&v.CreatedAt,
	); err != nil {
		return nil, err
	}

	v.VendorID = vendorID.String
	v.VendorName = vendorName.String
	v.TimeWindow = timeWindow.String
	v.TimeWindowOptions = timeWindowOptions.String
	v.RouteID = routeID.String
	v.NotVisitedReason = reason.String
	if completedAt.Valid {
		t := completedAt.Time
		v.CompletedAt = &t
	}
	if lifeCount.Valid {
		n := int(lifeCount.Int64)
		v.LifeCount = &n
	}
	return &v, nil
}

func (r *PostgresVisitsRepository) queryVisits(ctx context.Context, query string, args ...any) ([]*domain.Visit, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var visits []*domain.Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

// GetVisit 获取拜访
func (r *PostgresVisitsRepository) GetVisit(ctx context.Context, visitID string) (*domain.Visit, error) {
	if visitID == "" {
		return nil, domain.ErrNotFound
	}
	query := `SELECT ` + visitColumns + ` FROM visits WHERE visit_id = $1`
	v, err := scanVisit(r.db.QueryRowContext(ctx, query, visitID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("visit %s: %w", visitID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}
	return v, nil
}

// InsertVisitIgnore 按自然键插入；冲突时返回已有行的 id
func (r *PostgresVisitsRepository) InsertVisitIgnore(ctx context.Context, v *domain.Visit) (string, bool, error) {
	if v.EntryID == "" {
		return "", false, fmt.Errorf("entry_id is required: %w", domain.ErrValidation)
	}
	if v.VendorID == "" && v.VendorName == "" {
		return "", false, fmt.Errorf("vendor is required: %w", domain.ErrValidation)
	}

	query := `
		INSERT INTO visits (
			entry_id, visit_date, vendor_id, vendor_name,
			time_window, time_window_options, route_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (entry_id, vendor_key, visit_date) DO NOTHING
		RETURNING visit_id::text
	`

	var visitID string
	err := r.db.QueryRowContext(ctx, query,
		v.EntryID,
		v.VisitDate.Format(domain.DateLayout),
		nullString(v.VendorID),
		nullString(v.VendorName),
		nullString(v.TimeWindow),
		nullString(v.TimeWindowOptions),
		nullString(v.RouteID),
	).Scan(&visitID)
	if err == nil {
		v.VisitID = visitID
		return visitID, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", false, fmt.Errorf("failed to insert visit: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT visit_id::text FROM visits WHERE entry_id = $1 AND vendor_key = $2 AND visit_date = $3`,
		v.EntryID, domain.VendorKey(v.VendorID, v.VendorName), v.VisitDate.Format(domain.DateLayout),
	).Scan(&visitID)
	if err != nil {
		return "", false, fmt.Errorf("failed to get existing visit: %w", err)
	}
	return visitID, false, nil
}

// FindVisit 按自然键查找
func (r *PostgresVisitsRepository) FindVisit(ctx context.Context, entryID string, vendor domain.VendorMatch, date time.Time) (*domain.Visit, error) {
	pred, args := vendorPredicate(vendor, 3)
	query := `SELECT ` + visitColumns + `
		FROM visits
		WHERE entry_id = $1 AND visit_date = $2 AND ` + pred + `
		ORDER BY created_at
		LIMIT 1`
	args = append([]any{entryID, date.Format(domain.DateLayout)}, args...)

	v, err := scanVisit(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find visit: %w", err)
	}
	return v, nil
}

// refuseOrMissing explains why a guarded update touched no row.
func (r *PostgresVisitsRepository) refuseOrMissing(ctx context.Context, visitID string) error {
	v, err := r.GetVisit(ctx, visitID)
	if err != nil {
		return err
	}
	if v.IsCompleted() {
		return domain.ErrVisitCompleted
	}
	return fmt.Errorf("visit %s: %w", visitID, domain.ErrNotFound)
}

// UpdateAssignment 更新开放拜访的日期/执行人/路线
func (r *PostgresVisitsRepository) UpdateAssignment(ctx context.Context, visitID string, a Assignment) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE visits
		SET visit_date = $2, vendor_id = $3, vendor_name = $4, route_id = $5
		WHERE visit_id = $1 AND completed_at IS NULL`,
		visitID,
		a.VisitDate.Format(domain.DateLayout),
		nullString(a.VendorID),
		nullString(a.VendorName),
		nullString(a.RouteID),
	)
	if err != nil {
		return fmt.Errorf("failed to update visit assignment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return r.refuseOrMissing(ctx, visitID)
	}
	return nil
}

// UpdateTimeWindow 刷新开放拜访的时间窗口字段
func (r *PostgresVisitsRepository) UpdateTimeWindow(ctx context.Context, visitID string, timeWindow, options string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE visits
		SET time_window = $2, time_window_options = $3
		WHERE visit_id = $1 AND completed_at IS NULL`,
		visitID, nullString(timeWindow), nullString(options))
	if err != nil {
		return fmt.Errorf("failed to update visit time window: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return r.refuseOrMissing(ctx, visitID)
	}
	return nil
}

// Complete 终结拜访（仅一次）
func (r *PostgresVisitsRepository) Complete(ctx context.Context, visitID string, c Completion) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE visits
		SET completed_at = $2,
			life_count = $3,
			not_visited_reason = $4,
			time_window = coalesce($5, time_window)
		WHERE visit_id = $1 AND completed_at IS NULL`,
		visitID,
		c.CompletedAt,
		nullInt(c.LifeCount),
		nullString(c.NotVisitedReason),
		nullString(c.TimeWindow),
	)
	if err != nil {
		return fmt.Errorf("failed to complete visit: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return r.refuseOrMissing(ctx, visitID)
	}
	return nil
}

// DeleteVisit 删除拜访
func (r *PostgresVisitsRepository) DeleteVisit(ctx context.Context, visitID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM visits WHERE visit_id = $1`, visitID)
	if err != nil {
		return fmt.Errorf("failed to delete visit: %w", err)
	}
	return expectAffected(result, "visit")
}

// ListOpenVisitsByEntries 获取这些排程行的开放拜访
func (r *PostgresVisitsRepository) ListOpenVisitsByEntries(ctx context.Context, entryIDs []string) ([]*domain.Visit, error) {
	if len(entryIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + visitColumns + `
		FROM visits
		WHERE entry_id = ANY($1::uuid[]) AND completed_at IS NULL
		ORDER BY visit_date, created_at`
	visits, err := r.queryVisits(ctx, query, pq.Array(entryIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list open visits: %w", err)
	}
	return visits, nil
}

// CountVisitsByEntry 某排程行的拜访数量
func (r *PostgresVisitsRepository) CountVisitsByEntry(ctx context.Context, entryID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM visits WHERE entry_id = $1`, entryID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count visits: %w", err)
	}
	return n, nil
}

// CountOpenVisits 某执行人某日的开放拜访数量
func (r *PostgresVisitsRepository) CountOpenVisits(ctx context.Context, vendor domain.VendorMatch, date time.Time) (int, error) {
	pred, args := vendorPredicate(vendor, 2)
	query := `SELECT COUNT(*) FROM visits WHERE visit_date = $1 AND completed_at IS NULL AND ` + pred
	args = append([]any{date.Format(domain.DateLayout)}, args...)

	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count open visits: %w", err)
	}
	return n, nil
}

// ListVendorVisits 某执行人在 [from, to] 的拜访
func (r *PostgresVisitsRepository) ListVendorVisits(ctx context.Context, vendor domain.VendorMatch, from, to time.Time) ([]*domain.Visit, error) {
	pred, args := vendorPredicate(vendor, 3)
	query := `SELECT ` + visitColumns + `
		FROM visits
		WHERE visit_date >= $1 AND visit_date <= $2 AND ` + pred + `
		ORDER BY visit_date, created_at`
	args = append([]any{from.Format(domain.DateLayout), to.Format(domain.DateLayout)}, args...)

	visits, err := r.queryVisits(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list vendor visits: %w", err)
	}
	return visits, nil
}

// ListCompletedCounts 按完成时间倒序分页读取有数量的已完成拜访
func (r *PostgresVisitsRepository) ListCompletedCounts(ctx context.Context, offset, limit int) ([]CompletedCount, error) {
	if limit <= 0 {
		limit = BulkPageSize
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT entry_id::text, life_count, completed_at
		FROM visits
		WHERE completed_at IS NOT NULL AND life_count IS NOT NULL
		ORDER BY completed_at DESC, visit_id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed counts: %w", err)
	}
	defer rows.Close()

	var out []CompletedCount
	for rows.Next() {
		var c CompletedCount
		if err := rows.Scan(&c.EntryID, &c.LifeCount, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan completed count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
