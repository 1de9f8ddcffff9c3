package service

import (
	"context"
	"testing"
	"time"

	"fieldvisit/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisitService_ReassignCreatesNewVisit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.addVendor(t, "vendor-a", "Ana")
	b := env.addVendor(t, "vendor-b", "Bruno")
	s1 := env.addEntry(t, EntryRequest{LegalName: "Padaria Sol", VendorID: a.ID})
	date := day(2024, 3, 1)
	v1, oldRoute := env.addRoutedVisit(t, s1, a, date)

	resp, err := env.visits.UpdateVisit(ctx, v1, UpdateVisitRequest{VendorID: b.ID})
	require.NoError(t, err)
	assert.True(t, resp.Created)
	assert.NotEqual(t, v1, resp.VisitID)

	// 原拜访保持不变
	original, err := env.repos.Visits.GetVisit(ctx, v1)
	require.NoError(t, err)
	assert.Equal(t, a.ID, original.VendorID)
	assert.Equal(t, oldRoute, original.RouteID)
	assert.Equal(t, domain.VisitOpen, original.State())

	created, err := env.repos.Visits.GetVisit(ctx, resp.VisitID)
	require.NoError(t, err)
	assert.Equal(t, s1, created.EntryID)
	assert.Equal(t, b.ID, created.VendorID)
	assert.Equal(t, "Bruno", created.VendorName)
	assert.True(t, domain.SameDay(date, created.VisitDate))
	assert.Equal(t, "Morning", created.TimeWindow)

	routes, err := env.routes.ListRoutes(ctx, &b, &date)
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, resp.RouteID, routes[0].RouteID)
	assert.Equal(t, "Bruno - 2024-03-01", routes[0].Name)
	require.Len(t, routes[0].Stops, 1)
	assert.Equal(t, s1, routes[0].Stops[0].EntryID)

	// 重复提交不产生新行
	again, err := env.visits.UpdateVisit(ctx, v1, UpdateVisitRequest{VendorID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, resp.VisitID, again.VisitID)
	n, err := env.repos.Visits.CountVisitsByEntry(ctx, s1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestVisitService_ReassignByName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.addVendor(t, "vendor-a", "Ana")
	b := env.addVendor(t, "vendor-b", "Bruno")
	s1 := env.addEntry(t, EntryRequest{LegalName: "Padaria Sol", VendorID: a.ID})
	v1, _ := env.addRoutedVisit(t, s1, a, day(2024, 3, 1))

	resp, err := env.visits.UpdateVisit(ctx, v1, UpdateVisitRequest{VendorName: "bruno"})
	require.NoError(t, err)
	created, err := env.repos.Visits.GetVisit(ctx, resp.VisitID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, created.VendorID)
}

func TestVisitService_SameVendorDateMove(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.addVendor(t, "vendor-a", "Ana")
	s1 := env.addEntry(t, EntryRequest{LegalName: "Padaria Sol", VendorID: a.ID})
	v1, oldRoute := env.addRoutedVisit(t, s1, a, day(2024, 3, 1))

	newDate := day(2024, 3, 4)
	resp, err := env.visits.UpdateVisit(ctx, v1, UpdateVisitRequest{VisitDate: &newDate})
	require.NoError(t, err)
	assert.False(t, resp.Created)
	assert.Equal(t, v1, resp.VisitID)
	assert.NotEqual(t, oldRoute, resp.RouteID)

	moved, err := env.repos.Visits.GetVisit(ctx, v1)
	require.NoError(t, err)
	assert.True(t, domain.SameDay(newDate, moved.VisitDate))
	assert.Equal(t, resp.RouteID, moved.RouteID)

	oldStops, err := env.routes.ListStops(ctx, oldRoute)
	require.NoError(t, err)
	assert.Empty(t, oldStops)
	newStops, err := env.routes.ListStops(ctx, resp.RouteID)
	require.NoError(t, err)
	require.Len(t, newStops, 1)
	assert.Equal(t, s1, newStops[0].EntryID)
	assert.Equal(t, 1, newStops[0].StopOrder)

	n, err := env.repos.Visits.CountVisitsByEntry(ctx, s1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestVisitService_CompleteWithCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.addVendor(t, "vendor-a", "Ana")
	s1 := env.addEntry(t, EntryRequest{LegalName: "Padaria Sol", VendorID: a.ID})
	v1, _ := env.addRoutedVisit(t, s1, a, day(2024, 3, 1))

	_, err := env.visits.Complete(ctx, v1, CompleteVisitRequest{Performed: true, LifeCount: "-1", TimeWindow: "Morning"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = env.visits.Complete(ctx, v1, CompleteVisitRequest{Performed: true, LifeCount: "3.5", TimeWindow: "Morning"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = env.visits.Complete(ctx, v1, CompleteVisitRequest{Performed: true, LifeCount: "5", TimeWindow: "  "})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = env.visits.Complete(ctx, v1, CompleteVisitRequest{Performed: true, LifeCount: "3000000000", TimeWindow: "Morning"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = env.visits.Complete(ctx, v1, CompleteVisitRequest{Performed: true, LifeCount: "99999999999999999999", TimeWindow: "Morning"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	v, err := env.visits.Complete(ctx, v1, CompleteVisitRequest{Performed: true, LifeCount: "5", TimeWindow: "09:30"})
	require.NoError(t, err)
	assert.Equal(t, domain.VisitCompletedWithCount, v.State())
	assert.True(t, v.Consistent())
	require.NotNil(t, v.LifeCount)
	assert.Equal(t, 5, *v.LifeCount)
	assert.Empty(t, v.NotVisitedReason)
	assert.Equal(t, "09:30", v.TimeWindow)

	entry, err := env.schedule.GetEntry(ctx, s1)
	require.NoError(t, err)
	require.NotNil(t, entry.LastVisitDate)
	assert.True(t, domain.SameDay(day(2024, 3, 1), *entry.LastVisitDate))

	// 已完成的拜访不可再改
	_, err = env.visits.Complete(ctx, v1, CompleteVisitRequest{Performed: false, Reason: "other"})
	assert.ErrorIs(t, err, domain.ErrVisitCompleted)
	_, err = env.visits.UpdateVisit(ctx, v1, UpdateVisitRequest{VendorName: "Someone"})
	assert.ErrorIs(t, err, domain.ErrVisitCompleted)
	assert.ErrorIs(t, env.visits.DeleteVisit(ctx, v1), domain.ErrVisitCompleted)
}

func TestVisitService_CompleteNotVisited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.addVendor(t, "vendor-a", "Ana")
	s1 := env.addEntry(t, EntryRequest{LegalName: "Padaria Sol", VendorID: a.ID})
	v1, _ := env.addRoutedVisit(t, s1, a, day(2024, 3, 1))

	_, err := env.visits.Complete(ctx, v1, CompleteVisitRequest{Performed: false, Reason: "on holiday"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	v, err := env.visits.Complete(ctx, v1, CompleteVisitRequest{Performed: false, Reason: "contact_absent", LifeCount: "7"})
	require.NoError(t, err)
	assert.Equal(t, domain.VisitCompletedNoVisit, v.State())
	assert.Nil(t, v.LifeCount)
	assert.Equal(t, "contact_absent", v.NotVisitedReason)

	entry, err := env.schedule.GetEntry(ctx, s1)
	require.NoError(t, err)
	assert.Nil(t, entry.LastVisitDate)
}

func TestVisitService_CompletionOptions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.addVendor(t, "vendor-a", "Ana")
	s1 := env.addEntry(t, EntryRequest{LegalName: "Padaria Sol", VendorID: a.ID, TimeWindow: "08:00 or 14:00"})
	resp, err := env.visits.ReleaseEntries(ctx, ReleaseRequest{EntryIDs: []string{s1}, Date: day(2024, 3, 1)})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Released)

	v, err := env.repos.Visits.FindVisit(ctx, s1, a, day(2024, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, "08:00 • 14:00", v.TimeWindow)
	assert.Equal(t, "08:00 • 14:00", v.TimeWindowOptions)

	opts, err := env.visits.CompletionOptions(ctx, v.VisitID)
	require.NoError(t, err)
	assert.Equal(t, []string{"08:00", "14:00"}, opts)
}

func TestVisitService_VisibleCeiling(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.addVendor(t, "vendor-a", "Ana")
	s1 := env.addEntry(t, EntryRequest{LegalName: "Padaria Sol", VendorID: a.ID})
	now := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)

	// 昨日无开放拜访：上限为今天
	c, err := env.visits.VisibleCeiling(ctx, domain.VendorByID(a.ID), now)
	require.NoError(t, err)
	assert.False(t, c.Blocked)
	assert.True(t, domain.SameDay(day(2024, 3, 2), c.Date))

	v1, _ := env.addRoutedVisit(t, s1, a, day(2024, 3, 1))

	c, err = env.visits.VisibleCeiling(ctx, domain.VendorByID(a.ID), now)
	require.NoError(t, err)
	assert.True(t, c.Blocked)
	assert.Equal(t, 1, c.OpenYesterday)
	assert.Equal(t, BlockedNotice, c.Notice)
	assert.True(t, domain.SameDay(day(2024, 3, 1), c.Date))

	// 按显示名引用得到相同结果
	c, err = env.visits.VisibleCeiling(ctx, domain.VendorByName("ana"), now)
	require.NoError(t, err)
	assert.True(t, c.Blocked)

	_, err = env.visits.Complete(ctx, v1, CompleteVisitRequest{Performed: false, Reason: "out_of_time"})
	require.NoError(t, err)

	c, err = env.visits.VisibleCeiling(ctx, domain.VendorByID(a.ID), now)
	require.NoError(t, err)
	assert.False(t, c.Blocked)
	assert.True(t, domain.SameDay(day(2024, 3, 2), c.Date))
}

func TestVisitService_ListVendorVisitsClampsToCeiling(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.addVendor(t, "vendor-a", "Ana")
	s1 := env.addEntry(t, EntryRequest{LegalName: "Padaria Sol", VendorID: a.ID})
	s2 := env.addEntry(t, EntryRequest{LegalName: "Mercado Lua", VendorID: a.ID})
	env.addRoutedVisit(t, s1, a, day(2024, 3, 1))
	env.addRoutedVisit(t, s2, a, day(2024, 3, 2))
	now := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)

	resp, err := env.visits.ListVendorVisits(ctx, domain.VendorByID(a.ID), day(2024, 2, 28), day(2024, 3, 10), now)
	require.NoError(t, err)
	assert.True(t, resp.Ceiling.Blocked)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, s1, resp.Items[0].EntryID)

	// 起始日期晚于上限时返回空列表
	resp, err = env.visits.ListVendorVisits(ctx, domain.VendorByID(a.ID), day(2024, 3, 2), day(2024, 3, 10), now)
	require.NoError(t, err)
	assert.Empty(t, resp.Items)
}

func TestVisitService_ReleaseEntries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.addVendor(t, "vendor-a", "Ana")
	withVendor := env.addEntry(t, EntryRequest{LegalName: "Padaria Sol", VendorID: a.ID})
	byName := env.addEntry(t, EntryRequest{LegalName: "Mercado Lua", VendorName: "ANA"})
	noVendor := env.addEntry(t, EntryRequest{LegalName: "Bar Estrela"})
	inactive := env.addEntry(t, EntryRequest{LegalName: "Loja Fechada", VendorID: a.ID, Status: "Inactive"})
	date := day(2024, 3, 5)

	resp, err := env.visits.ReleaseEntries(ctx, ReleaseRequest{
		EntryIDs: []string{withVendor, byName, noVendor, inactive, "missing"},
		Date:     date,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Released)
	assert.Equal(t, 3, resp.Skipped)
	assert.Equal(t, 0, resp.Failed)

	// 名称引用解析到同一执行人，两行落在同一路线
	routes, err := env.routes.ListRoutes(ctx, &a, &date)
	require.NoError(t, err)
	require.Len(t, routes, 1)
	require.Len(t, routes[0].Stops, 2)
	assert.ElementsMatch(t, []int{1, 2}, []int{routes[0].Stops[0].StopOrder, routes[0].Stops[1].StopOrder})
	assert.Len(t, env.notifier.Sent(), 2)

	e, err := env.schedule.GetEntry(ctx, withVendor)
	require.NoError(t, err)
	assert.True(t, e.VisitGenerated)

	again, err := env.visits.ReleaseEntries(ctx, ReleaseRequest{EntryIDs: []string{withVendor}, Date: date})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Released)
	assert.Equal(t, 1, again.Skipped)

	_, err = env.visits.ReleaseEntries(ctx, ReleaseRequest{Date: date})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = env.visits.ReleaseEntries(ctx, ReleaseRequest{EntryIDs: []string{withVendor}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestVisitService_DeleteClearsMarker(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.addVendor(t, "vendor-a", "Ana")
	s1 := env.addEntry(t, EntryRequest{LegalName: "Padaria Sol", VendorID: a.ID})
	date := day(2024, 3, 5)
	_, err := env.visits.ReleaseEntries(ctx, ReleaseRequest{EntryIDs: []string{s1}, Date: date})
	require.NoError(t, err)

	v, err := env.repos.Visits.FindVisit(ctx, s1, a, date)
	require.NoError(t, err)
	require.NoError(t, env.visits.DeleteVisit(ctx, v.VisitID))

	_, err = env.visits.GetVisit(ctx, v.VisitID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	stops, err := env.routes.ListStops(ctx, v.RouteID)
	require.NoError(t, err)
	assert.Empty(t, stops)

	e, err := env.schedule.GetEntry(ctx, s1)
	require.NoError(t, err)
	assert.False(t, e.VisitGenerated)

	// 标记清除后可再次下发
	resp, err := env.visits.ReleaseEntries(ctx, ReleaseRequest{EntryIDs: []string{s1}, Date: date})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Released)
}

func TestVisitService_DeleteKeepsMarkerWhileVisitsRemain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.addVendor(t, "vendor-a", "Ana")
	s1 := env.addEntry(t, EntryRequest{LegalName: "Padaria Sol", VendorID: a.ID})
	require.NoError(t, env.repos.Entries.SetVisitGenerated(ctx, s1, true))
	v1, _ := env.addRoutedVisit(t, s1, a, day(2024, 3, 1))
	env.addRoutedVisit(t, s1, a, day(2024, 3, 8))

	require.NoError(t, env.visits.DeleteVisit(ctx, v1))
	e, err := env.schedule.GetEntry(ctx, s1)
	require.NoError(t, err)
	assert.True(t, e.VisitGenerated)
}
