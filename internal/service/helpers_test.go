package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"fieldvisit/internal/domain"
	"fieldvisit/internal/notify"
	"fieldvisit/internal/repository"
	"fieldvisit/internal/store"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingFeed 记录发布的事件类型
type recordingFeed struct {
	mu     sync.Mutex
	events []string
}

func (f *recordingFeed) Publish(_ context.Context, eventType string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	return nil
}

func (f *recordingFeed) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

// recordingNotifier 记录路线分配通知
type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.RouteAssignment
}

func (n *recordingNotifier) RouteAssigned(_ context.Context, a notify.RouteAssignment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, a)
	return nil
}

func (n *recordingNotifier) Sent() []notify.RouteAssignment {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.RouteAssignment(nil), n.sent...)
}

// testEnv 基于内存仓库的完整服务图
type testEnv struct {
	repos    *repository.Repositories
	kv       *store.MemoryKV
	feed     *recordingFeed
	notifier *recordingNotifier

	cache    *OptionsCache
	roster   *VendorRoster
	routes   *RouteProvisioner
	schedule *ScheduleService
	clients  *ClientService
	visits   *VisitService
	filter   *FilterService
	imports  *ImportService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	env := &testEnv{
		repos:    repository.NewMemoryRepositories(),
		kv:       store.NewMemoryKV(),
		feed:     &recordingFeed{},
		notifier: &recordingNotifier{},
	}
	env.cache = NewOptionsCache(env.repos.Entries, env.kv, "test:options:", time.Minute, logger)
	env.roster = NewVendorRoster(env.repos.Vendors, logger)
	env.routes = NewRouteProvisioner(env.repos.Routes, env.notifier, logger)
	env.schedule = NewScheduleService(env.repos.Entries, env.repos.Visits, env.cache, nil, logger)
	env.clients = NewClientService(env.repos.Clients, env.schedule, env.cache, env.feed, logger)
	env.visits = NewVisitService(env.repos.Visits, env.repos.Entries, env.routes, env.roster, nil, time.UTC, logger)
	env.filter = NewFilterService(env.repos.Entries, env.repos.Visits, env.cache, logger)
	env.imports = NewImportService(env.clients, env.schedule, env.cache, env.feed, logger)
	return env
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (env *testEnv) addVendor(t *testing.T, id, name string) domain.VendorMatch {
	t.Helper()
	require.NoError(t, env.repos.Vendors.UpsertVendor(context.Background(), &domain.Vendor{
		VendorID:    id,
		DisplayName: name,
		Active:      true,
	}))
	return domain.VendorMatch{ID: id, Name: name}
}

func (env *testEnv) addEntry(t *testing.T, req EntryRequest) string {
	t.Helper()
	resp, err := env.schedule.UpsertEntry(context.Background(), req)
	require.NoError(t, err)
	require.True(t, resp.Inserted)
	return resp.EntryID
}

// addRoutedVisit 创建开放拜访，并建好路线和站点
func (env *testEnv) addRoutedVisit(t *testing.T, entryID string, vendor domain.VendorMatch, date time.Time) (visitID, routeID string) {
	t.Helper()
	ctx := context.Background()

	routeID, err := env.routes.EnsureRoute(ctx, vendor, date)
	require.NoError(t, err)
	visitID, inserted, err := env.repos.Visits.InsertVisitIgnore(ctx, &domain.Visit{
		EntryID:    entryID,
		VisitDate:  date,
		VendorID:   vendor.ID,
		VendorName: vendor.Name,
		TimeWindow: "Morning",
		RouteID:    routeID,
	})
	require.NoError(t, err)
	require.True(t, inserted)
	_, err = env.routes.EnsureStop(ctx, routeID, entryID)
	require.NoError(t, err)
	return visitID, routeID
}

func intPtr(n int) *int { return &n }
