package repository

import (
	"context"

	"fieldvisit/internal/domain"
	"fieldvisit/internal/identity"
)

// ClientFilters 客户查询过滤器
type ClientFilters struct {
	Status         string // 'Active'/'Inactive'
	Search         string // legal/trade name or code, case-insensitive
	MissingAddress bool   // neighborhood, city, region or postal code empty (geocoding backfill)
}

// ClientsRepository 客户登记Repository接口
type ClientsRepository interface {
	// GetClient 获取客户
	GetClient(ctx context.Context, clientID string) (*domain.Client, error)

	// ListClients 批量查询客户（支持过滤和分页）
	ListClients(ctx context.Context, filters *ClientFilters, page, size int) ([]*domain.Client, int, error)

	// FindClient 按 code 键查找，未命中再按名称对键查找
	FindClient(ctx context.Context, lookup identity.Lookup) (*domain.Client, error)

	// CreateClient 创建客户
	CreateClient(ctx context.Context, client *domain.Client) (string, error)

	// UpdateClient 更新客户
	UpdateClient(ctx context.Context, clientID string, client *domain.Client) error

	// DeleteClient 删除客户（依赖表保留自己的快照）
	DeleteClient(ctx context.Context, clientID string) error
}
