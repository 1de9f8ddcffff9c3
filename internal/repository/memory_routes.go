package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fieldvisit/internal/domain"

	"github.com/google/uuid"
)

// MemoryRoutesRepo: 内存路线/站点；单锁保证 find-or-create 原子
type MemoryRoutesRepo struct {
	mu     sync.Mutex
	routes map[string]domain.Route       // routeID -> route
	byKey  map[string]string             // vendor_key|date -> routeID
	stops  map[string][]domain.RouteStop // routeID -> stops
}

func NewMemoryRoutesRepo() *MemoryRoutesRepo {
	return &MemoryRoutesRepo{
		routes: map[string]domain.Route{},
		byKey:  map[string]string{},
		stops:  map[string][]domain.RouteStop{},
	}
}

var _ RoutesRepository = (*MemoryRoutesRepo)(nil)

func (r *MemoryRoutesRepo) UpsertRoute(_ context.Context, vendor domain.VendorMatch, date time.Time, name string) (string, error) {
	if vendor.ID == "" && vendor.Name == "" {
		return "", fmt.Errorf("vendor is required: %w", domain.ErrValidation)
	}
	if name == "" {
		name = domain.RouteName(vendor.Label(), date)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := vendor.Key() + "|" + dateKey(date)
	if id, ok := r.byKey[key]; ok {
		return id, nil
	}
	rt := domain.Route{
		RouteID:    uuid.NewString(),
		Name:       name,
		RouteDate:  domain.DateOnly(date),
		VendorID:   vendor.ID,
		VendorName: vendor.Name,
	}
	r.routes[rt.RouteID] = rt
	r.byKey[key] = rt.RouteID
	return rt.RouteID, nil
}

func (r *MemoryRoutesRepo) GetRoute(_ context.Context, routeID string) (*domain.Route, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, ok := r.routes[routeID]
	if !ok {
		return nil, fmt.Errorf("route %s: %w", routeID, domain.ErrNotFound)
	}
	return &rt, nil
}

func (r *MemoryRoutesRepo) ListRoutes(_ context.Context, filters *RouteFilters) ([]*domain.Route, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Route
	for _, rt := range r.routes {
		if filters != nil {
			if filters.Vendor != nil && !matchesVendor(rt.VendorID, rt.VendorName, *filters.Vendor) {
				continue
			}
			if filters.Date != nil && !domain.SameDay(rt.RouteDate, *filters.Date) {
				continue
			}
		}
		rt := rt
		out = append(out, &rt)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RouteDate.Equal(out[j].RouteDate) {
			return out[i].RouteDate.After(out[j].RouteDate)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *MemoryRoutesRepo) UpsertStop(_ context.Context, routeID, entryID string) (*domain.RouteStop, bool, error) {
	if routeID == "" || entryID == "" {
		return nil, false, fmt.Errorf("route_id and entry_id are required: %w", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.stops[routeID] {
		if s.EntryID == entryID {
			s := s
			return &s, false, nil
		}
	}
	s := domain.RouteStop{
		StopID:    uuid.NewString(),
		RouteID:   routeID,
		EntryID:   entryID,
		StopOrder: len(r.stops[routeID]) + 1,
	}
	r.stops[routeID] = append(r.stops[routeID], s)
	return &s, true, nil
}

func (r *MemoryRoutesRepo) DeleteStop(_ context.Context, routeID, entryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stops := r.stops[routeID]
	for i, s := range stops {
		if s.EntryID == entryID {
			r.stops[routeID] = append(stops[:i:i], stops[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *MemoryRoutesRepo) ListStops(_ context.Context, routeID string) ([]*domain.RouteStop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.RouteStop, 0, len(r.stops[routeID]))
	for _, s := range r.stops[routeID] {
		s := s
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StopOrder < out[j].StopOrder })
	return out, nil
}
