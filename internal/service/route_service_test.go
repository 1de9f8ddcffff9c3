package service

import (
	"context"
	"testing"
	"time"

	"fieldvisit/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteProvisioner_EnsureRouteIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.addVendor(t, "vendor-a", "Ana")
	first, err := env.routes.EnsureRoute(ctx, a, day(2024, 3, 1))
	require.NoError(t, err)
	second, err := env.routes.EnsureRoute(ctx, a, day(2024, 3, 1).Add(15*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := env.routes.EnsureRoute(ctx, a, day(2024, 3, 2))
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	route, err := env.repos.Routes.GetRoute(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "Ana - 2024-03-01", route.Name)
}

func TestRouteProvisioner_EnsureStopIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.addVendor(t, "vendor-a", "Ana")
	routeID, err := env.routes.EnsureRoute(ctx, a, day(2024, 3, 1))
	require.NoError(t, err)

	s1, err := env.routes.EnsureStop(ctx, routeID, "entry-1")
	require.NoError(t, err)
	assert.Equal(t, 1, s1.StopOrder)
	s2, err := env.routes.EnsureStop(ctx, routeID, "entry-2")
	require.NoError(t, err)
	assert.Equal(t, 2, s2.StopOrder)

	again, err := env.routes.EnsureStop(ctx, routeID, "entry-1")
	require.NoError(t, err)
	assert.Equal(t, s1.StopID, again.StopID)
	assert.Equal(t, 1, again.StopOrder)

	stops, err := env.routes.ListStops(ctx, routeID)
	require.NoError(t, err)
	assert.Len(t, stops, 2)

	// 只有新站点会推送
	sent := env.notifier.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "Ana - 2024-03-01", sent[0].RouteName)
	assert.Equal(t, "2024-03-01", sent[0].RouteDate)
	assert.Equal(t, "entry-1", sent[0].EntryID)
}

func TestRouteProvisioner_NameOnlyVendor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	legacy := domain.VendorMatch{Name: "Carla"}
	first, err := env.routes.EnsureRoute(ctx, legacy, day(2024, 3, 1))
	require.NoError(t, err)
	second, err := env.routes.EnsureRoute(ctx, domain.VendorMatch{Name: " carla "}, day(2024, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRouteProvisioner_RemoveStop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assert.NoError(t, env.routes.RemoveStop(ctx, "", "entry-1"))

	a := env.addVendor(t, "vendor-a", "Ana")
	routeID, err := env.routes.EnsureRoute(ctx, a, day(2024, 3, 1))
	require.NoError(t, err)
	_, err = env.routes.EnsureStop(ctx, routeID, "entry-1")
	require.NoError(t, err)

	require.NoError(t, env.routes.RemoveStop(ctx, routeID, "entry-1"))
	require.NoError(t, env.routes.RemoveStop(ctx, routeID, "entry-1"))
	stops, err := env.routes.ListStops(ctx, routeID)
	require.NoError(t, err)
	assert.Empty(t, stops)
}

func TestVendorRoster_Resolve(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addVendor(t, "vendor-a", "Ana Souza")

	m, err := env.roster.Resolve(ctx, domain.VendorByID("vendor-a"))
	require.NoError(t, err)
	assert.Equal(t, domain.VendorMatch{ID: "vendor-a", Name: "Ana Souza"}, m)

	m, err = env.roster.Resolve(ctx, domain.VendorByName("ana souza"))
	require.NoError(t, err)
	assert.Equal(t, "vendor-a", m.ID)

	m, err = env.roster.Resolve(ctx, domain.VendorByID("retired"))
	require.NoError(t, err)
	assert.Equal(t, domain.VendorMatch{ID: "retired"}, m)

	m, err = env.roster.Resolve(ctx, domain.VendorByName("Old Name"))
	require.NoError(t, err)
	assert.Equal(t, domain.VendorMatch{Name: "Old Name"}, m)

	_, err = env.roster.Resolve(ctx, domain.VendorRef{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
