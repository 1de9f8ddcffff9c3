package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"fieldvisit/internal/domain"

	"github.com/google/uuid"
)

// MemoryVendorsRepo: 内存名册
type MemoryVendorsRepo struct {
	mu      sync.RWMutex
	vendors map[string]domain.Vendor
}

func NewMemoryVendorsRepo() *MemoryVendorsRepo {
	return &MemoryVendorsRepo{vendors: map[string]domain.Vendor{}}
}

var _ VendorsRepository = (*MemoryVendorsRepo)(nil)

func (r *MemoryVendorsRepo) GetVendor(_ context.Context, vendorID string) (*domain.Vendor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.vendors[vendorID]
	if !ok {
		return nil, fmt.Errorf("vendor %s: %w", vendorID, domain.ErrNotFound)
	}
	return &v, nil
}

func (r *MemoryVendorsRepo) all(keep func(domain.Vendor) bool) []*domain.Vendor {
	var out []*domain.Vendor
	for _, v := range r.vendors {
		if keep(v) {
			v := v
			out = append(out, &v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Active != out[j].Active {
			return out[i].Active
		}
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].VendorID < out[j].VendorID
	})
	return out
}

func (r *MemoryVendorsRepo) FindVendorsByName(_ context.Context, name string) ([]*domain.Vendor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.all(func(v domain.Vendor) bool { return strings.EqualFold(v.DisplayName, name) }), nil
}

func (r *MemoryVendorsRepo) ListVendors(_ context.Context, activeOnly bool) ([]*domain.Vendor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.all(func(v domain.Vendor) bool { return !activeOnly || v.Active }), nil
}

func (r *MemoryVendorsRepo) UpsertVendor(_ context.Context, v *domain.Vendor) error {
	if strings.TrimSpace(v.DisplayName) == "" {
		return fmt.Errorf("display_name is required: %w", domain.ErrValidation)
	}
	if v.Role == "" {
		v.Role = "vendor"
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if v.VendorID == "" {
		v.VendorID = uuid.NewString()
	}
	r.vendors[v.VendorID] = *v
	return nil
}
