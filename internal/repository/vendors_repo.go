package repository

import (
	"context"

	"fieldvisit/internal/domain"
)

// VendorsRepository 销售代表名册Repository接口
type VendorsRepository interface {
	GetVendor(ctx context.Context, vendorID string) (*domain.Vendor, error)

	// FindVendorsByName 按显示名（忽略大小写）查找
	FindVendorsByName(ctx context.Context, name string) ([]*domain.Vendor, error)

	ListVendors(ctx context.Context, activeOnly bool) ([]*domain.Vendor, error)

	UpsertVendor(ctx context.Context, vendor *domain.Vendor) error
}
