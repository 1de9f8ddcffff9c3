package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"fieldvisit/internal/domain"
)

// PostgresVendorsRepository 销售代表名册Repository实现
type PostgresVendorsRepository struct {
	db *sql.DB
}

func NewPostgresVendorsRepository(db *sql.DB) *PostgresVendorsRepository {
	return &PostgresVendorsRepository{db: db}
}

var _ VendorsRepository = (*PostgresVendorsRepository)(nil)

func (r *PostgresVendorsRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Vendor, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vendors []*domain.Vendor
	for rows.Next() {
		var v domain.Vendor
		if err := rows.Scan(&v.VendorID, &v.DisplayName, &v.Role, &v.Active); err != nil {
			return nil, fmt.Errorf("failed to scan vendor: %w", err)
		}
		vendors = append(vendors, &v)
	}
	return vendors, rows.Err()
}

func (r *PostgresVendorsRepository) GetVendor(ctx context.Context, vendorID string) (*domain.Vendor, error) {
	var v domain.Vendor
	err := r.db.QueryRowContext(ctx, `
		SELECT vendor_id::text, display_name, role, active
		FROM vendors
		WHERE vendor_id = $1`, vendorID,
	).Scan(&v.VendorID, &v.DisplayName, &v.Role, &v.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("vendor %s: %w", vendorID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get vendor: %w", err)
	}
	return &v, nil
}

// FindVendorsByName 按显示名（忽略大小写）查找
func (r *PostgresVendorsRepository) FindVendorsByName(ctx context.Context, name string) ([]*domain.Vendor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	vendors, err := r.list(ctx, `
		SELECT vendor_id::text, display_name, role, active
		FROM vendors
		WHERE upper(display_name) = upper($1)
		ORDER BY active DESC, vendor_id`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find vendors by name: %w", err)
	}
	return vendors, nil
}

func (r *PostgresVendorsRepository) ListVendors(ctx context.Context, activeOnly bool) ([]*domain.Vendor, error) {
	query := `SELECT vendor_id::text, display_name, role, active FROM vendors`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY display_name`

	vendors, err := r.list(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list vendors: %w", err)
	}
	return vendors, nil
}

// UpsertVendor 按 vendor_id 插入或更新；未指定 id 时由数据库生成
func (r *PostgresVendorsRepository) UpsertVendor(ctx context.Context, v *domain.Vendor) error {
	if strings.TrimSpace(v.DisplayName) == "" {
		return fmt.Errorf("display_name is required: %w", domain.ErrValidation)
	}
	if v.Role == "" {
		v.Role = "vendor"
	}

	query := `
		INSERT INTO vendors (vendor_id, display_name, role, active)
		VALUES (coalesce($1::uuid, gen_random_uuid()), $2, $3, $4)
		ON CONFLICT (vendor_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			role = EXCLUDED.role,
			active = EXCLUDED.active
		RETURNING vendor_id::text
	`
	if err := r.db.QueryRowContext(ctx, query, nullString(v.VendorID), v.DisplayName, v.Role, v.Active).Scan(&v.VendorID); err != nil {
		return fmt.Errorf("failed to upsert vendor: %w", err)
	}
	return nil
}
