package service

import (
	"context"
	"sort"
	"testing"
	"time"

	"fieldvisit/internal/domain"
	"fieldvisit/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func legalNames(items []*domain.ScheduleEntry) []string {
	out := make([]string, 0, len(items))
	for _, e := range items {
		out = append(out, e.LegalName)
	}
	sort.Strings(out)
	return out
}

// completeWithCount 以指定完成时间写入数量
func completeWithCount(t *testing.T, env *testEnv, entryID string, visitDate time.Time, count int, completedAt time.Time) {
	t.Helper()
	ctx := context.Background()
	id, _, err := env.repos.Visits.InsertVisitIgnore(ctx, &domain.Visit{
		EntryID:   entryID,
		VisitDate: visitDate,
		VendorID:  "vendor-a",
	})
	require.NoError(t, err)
	require.NoError(t, env.repos.Visits.Complete(ctx, id, repository.Completion{
		CompletedAt: completedAt,
		LifeCount:   intPtr(count),
		TimeWindow:  "Morning",
	}))
}

func TestFilterService_LifeCountUsesMostRecent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	s1 := env.addEntry(t, EntryRequest{LegalName: "S1"})
	s2 := env.addEntry(t, EntryRequest{LegalName: "S2"})
	env.addEntry(t, EntryRequest{LegalName: "S3"})

	completeWithCount(t, env, s1, day(2024, 3, 1), 5, day(2024, 3, 2))
	completeWithCount(t, env, s1, day(2024, 3, 4), 9, day(2024, 3, 5))
	completeWithCount(t, env, s2, day(2024, 3, 1), 2, day(2024, 3, 1))

	resp, err := env.filter.Query(ctx, ScheduleQueryRequest{
		LifeCount: &LifeCountFilter{Min: intPtr(3), Max: intPtr(9)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, []string{"S1"}, legalNames(resp.Items))

	// 最近一次为 9，较早的 5 不参与比较
	resp, err = env.filter.Query(ctx, ScheduleQueryRequest{
		LifeCount: &LifeCountFilter{Max: intPtr(5)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"S2"}, legalNames(resp.Items))

	resp, err = env.filter.Query(ctx, ScheduleQueryRequest{
		LifeCount: &LifeCountFilter{Min: intPtr(100)},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Total)
	assert.Empty(t, resp.Items)

	_, err = env.filter.Query(ctx, ScheduleQueryRequest{
		LifeCount: &LifeCountFilter{Min: intPtr(9), Max: intPtr(3)},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestFilterService_LifeCountAllowListPaging(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 超过一页的完成记录
	entry := env.addEntry(t, EntryRequest{LegalName: "Busy"})
	base := day(2020, 1, 1)
	for i := 0; i < repository.BulkPageSize+5; i++ {
		completeWithCount(t, env, entry, base.AddDate(0, 0, i), i, base.AddDate(0, 0, i).Add(time.Hour))
	}

	ids, err := env.filter.lifeCountAllowList(ctx, &LifeCountFilter{Min: intPtr(repository.BulkPageSize + 4)})
	require.NoError(t, err)
	assert.Equal(t, []string{entry}, ids)
}

func TestFilterService_DateRangeDefaultIsOutsideOrNull(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	jan, feb := day(2024, 1, 10), day(2024, 2, 15)
	env.addEntry(t, EntryRequest{LegalName: "January", LastVisitDate: &jan})
	env.addEntry(t, EntryRequest{LegalName: "February", LastVisitDate: &feb})
	env.addEntry(t, EntryRequest{LegalName: "Never"})

	from, to := day(2024, 2, 1), day(2024, 2, 28)
	resp, err := env.filter.Query(ctx, ScheduleQueryRequest{
		DateRanges: []DateRangeFilter{{From: &from, To: &to}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"January", "Never"}, legalNames(resp.Items))

	resp, err = env.filter.Query(ctx, ScheduleQueryRequest{
		DateRanges: []DateRangeFilter{{From: &from, To: &to, Invert: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"February"}, legalNames(resp.Items))

	// 月份+年份等价于整月
	resp, err = env.filter.Query(ctx, ScheduleQueryRequest{
		DateRanges: []DateRangeFilter{{Column: "last_visit_date", Month: 2, Year: 2024}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"January", "Never"}, legalNames(resp.Items))
}

func TestFilterService_DateRangeValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	from, to := day(2024, 2, 1), day(2024, 1, 1)

	cases := []DateRangeFilter{
		{From: &from},
		{From: &from, To: &to},
		{Month: 13, Year: 2024},
		{},
		{Column: "legal_name", Month: 1, Year: 2024},
	}
	for _, dr := range cases {
		_, err := env.filter.Query(ctx, ScheduleQueryRequest{DateRanges: []DateRangeFilter{dr}})
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
}

func TestFilterService_ColumnFilterExpandsVariants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addEntry(t, EntryRequest{LegalName: "A", City: "São Paulo"})
	env.addEntry(t, EntryRequest{LegalName: "B", City: "SAO PAULO"})
	env.addEntry(t, EntryRequest{LegalName: "C", City: "Campinas"})

	set, err := env.filter.ColumnOptions(ctx, "city")
	require.NoError(t, err)
	assert.Equal(t, []string{"Campinas", "SAO PAULO"}, set.Options)
	assert.ElementsMatch(t, []string{"SAO PAULO", "São Paulo"}, set.Variants["SAO PAULO"])

	resp, err := env.filter.Query(ctx, ScheduleQueryRequest{
		Columns: map[string][]string{"city": {"SAO PAULO"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, legalNames(resp.Items))

	_, err = env.filter.Query(ctx, ScheduleQueryRequest{
		Columns: map[string][]string{"dedupe_key": {"x"}},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestFilterService_TimeWindowTagFilter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addEntry(t, EntryRequest{LegalName: "Morning shop", TimeWindow: "Morning"})
	env.addEntry(t, EntryRequest{LegalName: "Clock shop", TimeWindow: "08:00, 14:00"})
	env.addEntry(t, EntryRequest{LegalName: "Late shop", TimeWindow: "Afternoon"})
	env.addEntry(t, EntryRequest{LegalName: "Lower shop", TimeWindow: " morning"})
	env.addEntry(t, EntryRequest{LegalName: "Suffix shop", TimeWindow: "09:00h"})

	// 未缓存：按标签匹配
	_, cached := env.cache.Cached(ctx, "time_window")
	require.False(t, cached)
	resp, err := env.filter.Query(ctx, ScheduleQueryRequest{
		Columns: map[string][]string{"time_window": {"Custom time", "Morning"}},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Clock shop", "Lower shop", "Morning shop", "Suffix shop"}, legalNames(resp.Items))

	// 已缓存：按原始取值匹配
	set, err := env.filter.ColumnOptions(ctx, "time_window")
	require.NoError(t, err)
	assert.Equal(t, []string{"Afternoon", "Custom time", "Morning"}, set.Options)
	assert.Equal(t, []string{"08:00 • 14:00", "09:00"}, set.Variants["Custom time"])
	assert.ElementsMatch(t, []string{"Morning", "morning"}, set.Variants["Morning"])

	resp, err = env.filter.Query(ctx, ScheduleQueryRequest{
		Columns: map[string][]string{"time_window": {"Custom time"}},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Clock shop", "Suffix shop"}, legalNames(resp.Items))

	resp, err = env.filter.Query(ctx, ScheduleQueryRequest{
		Columns: map[string][]string{"time_window": {"Morning"}},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Lower shop", "Morning shop"}, legalNames(resp.Items))
}

func TestFilterService_SearchSortAndPage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addEntry(t, EntryRequest{LegalName: "Padaria Sol", City: "Campinas"})
	env.addEntry(t, EntryRequest{LegalName: "Padaria Lua", City: "Santos"})
	env.addEntry(t, EntryRequest{LegalName: "Mercado Sol", City: "Campinas"})

	resp, err := env.filter.Query(ctx, ScheduleQueryRequest{
		Search:   "padaria",
		SortBy:   "legal_name",
		SortDesc: true,
		Page:     1,
		Size:     1,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Padaria Sol", resp.Items[0].LegalName)
}
