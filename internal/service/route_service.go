package service

import (
	"context"
	"fmt"
	"time"

	"fieldvisit/internal/domain"
	"fieldvisit/internal/notify"
	"fieldvisit/internal/repository"

	"go.uber.org/zap"
)

// RouteProvisioner 按 (vendor, date) 查找或创建路线，按 (route, entry) 查找或创建站点
type RouteProvisioner struct {
	routes   repository.RoutesRepository
	notifier notify.Notifier
	logger   *zap.Logger
}

func NewRouteProvisioner(routes repository.RoutesRepository, notifier notify.Notifier, logger *zap.Logger) *RouteProvisioner {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &RouteProvisioner{routes: routes, notifier: notifier, logger: logger}
}

// EnsureRoute returns the route for (vendor, date), creating it named
// "<vendor label> - YYYY-MM-DD" when absent.
func (p *RouteProvisioner) EnsureRoute(ctx context.Context, vendor domain.VendorMatch, date time.Time) (string, error) {
	date = domain.DateOnly(date)
	routeID, err := p.routes.UpsertRoute(ctx, vendor, date, domain.RouteName(vendor.Label(), date))
	if err != nil {
		return "", fmt.Errorf("failed to ensure route: %w", err)
	}
	return routeID, nil
}

// EnsureStop adds the entry to the route at position count+1, or returns the
// existing stop unchanged. New stops are pushed to the vendor.
func (p *RouteProvisioner) EnsureStop(ctx context.Context, routeID, entryID string) (*domain.RouteStop, error) {
	stop, created, err := p.routes.UpsertStop(ctx, routeID, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure route stop: %w", err)
	}
	if created {
		p.notify(ctx, stop)
	}
	return stop, nil
}

func (p *RouteProvisioner) notify(ctx context.Context, stop *domain.RouteStop) {
	route, err := p.routes.GetRoute(ctx, stop.RouteID)
	if err != nil {
		p.logger.Warn("Failed to load route for notification", zap.String("route_id", stop.RouteID), zap.Error(err))
		return
	}
	err = p.notifier.RouteAssigned(ctx, notify.RouteAssignment{
		RouteID:    route.RouteID,
		RouteName:  route.Name,
		RouteDate:  route.RouteDate.Format(domain.DateLayout),
		VendorID:   route.VendorID,
		VendorName: route.VendorName,
		EntryID:    stop.EntryID,
		StopOrder:  stop.StopOrder,
	})
	if err != nil {
		// 推送失败不影响站点创建
		p.logger.Warn("Failed to publish route assignment", zap.String("route_id", route.RouteID), zap.Error(err))
	}
}

// RemoveStop is a no-op when the stop does not exist.
func (p *RouteProvisioner) RemoveStop(ctx context.Context, routeID, entryID string) error {
	if routeID == "" {
		return nil
	}
	if err := p.routes.DeleteStop(ctx, routeID, entryID); err != nil {
		return fmt.Errorf("failed to remove route stop: %w", err)
	}
	return nil
}

func (p *RouteProvisioner) ListStops(ctx context.Context, routeID string) ([]*domain.RouteStop, error) {
	return p.routes.ListStops(ctx, routeID)
}

// RouteWithStops 路线及其站点
type RouteWithStops struct {
	*domain.Route
	Stops []*domain.RouteStop `json:"stops"`
}

// ListRoutes 查询路线（含站点）
func (p *RouteProvisioner) ListRoutes(ctx context.Context, vendor *domain.VendorMatch, date *time.Time) ([]RouteWithStops, error) {
	routes, err := p.routes.ListRoutes(ctx, &repository.RouteFilters{Vendor: vendor, Date: date})
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	out := make([]RouteWithStops, 0, len(routes))
	for _, rt := range routes {
		stops, err := p.routes.ListStops(ctx, rt.RouteID)
		if err != nil {
			return nil, fmt.Errorf("failed to list route stops: %w", err)
		}
		out = append(out, RouteWithStops{Route: rt, Stops: stops})
	}
	return out, nil
}
