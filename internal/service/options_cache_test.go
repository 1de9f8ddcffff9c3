package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fieldvisit/internal/domain"
	"fieldvisit/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// countingSource 统计 DistinctValues 调用次数
type countingSource struct {
	mu     sync.Mutex
	values map[string][]string
	calls  int
	err    error
	during func() // runs inside the next DistinctValues call, once
}

func (s *countingSource) DistinctValues(_ context.Context, column string) ([]string, error) {
	s.mu.Lock()
	s.calls++
	if s.err != nil {
		s.mu.Unlock()
		return nil, s.err
	}
	out := append([]string(nil), s.values[column]...)
	during := s.during
	s.during = nil
	s.mu.Unlock()

	if during != nil {
		during()
	}
	return out, nil
}

func (s *countingSource) set(column string, values ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[column] = values
}

func TestOptionsCache_BuildAndMirror(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	src := &countingSource{values: map[string][]string{
		"city": {"Campinas", "campinas ", "São Paulo", "SAO PAULO", ""},
	}}
	cache := NewOptionsCache(src, kv, "opts:", time.Minute, zap.NewNop())

	set, err := cache.Options(ctx, "city")
	require.NoError(t, err)
	assert.Equal(t, []string{"Campinas", "SAO PAULO"}, set.Options)
	assert.ElementsMatch(t, []string{"Campinas", "campinas "}, set.Variants["Campinas"])
	assert.Equal(t, 1, src.calls)

	_, err = cache.Options(ctx, "city")
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)

	raw, err := kv.Get(ctx, "opts:city")
	require.NoError(t, err)
	assert.Contains(t, raw, "SAO PAULO")

	// 另一个进程从镜像读取，不访问数据源
	peerSrc := &countingSource{values: map[string][]string{}}
	peer := NewOptionsCache(peerSrc, kv, "opts:", time.Minute, zap.NewNop())
	peerSet, err := peer.Options(ctx, "city")
	require.NoError(t, err)
	assert.Equal(t, set.Options, peerSet.Options)
	assert.Equal(t, 0, peerSrc.calls)
}

func TestOptionsCache_InvalidateIsWholesale(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	require.NoError(t, kv.Set(ctx, "other:key", "keep", 0))
	src := &countingSource{values: map[string][]string{
		"city":        {"Campinas"},
		"time_window": {"Morning", "09:00"},
	}}
	cache := NewOptionsCache(src, kv, "opts:", time.Minute, zap.NewNop())

	_, err := cache.Options(ctx, "city")
	require.NoError(t, err)
	_, err = cache.Options(ctx, "time_window")
	require.NoError(t, err)

	cache.Invalidate(ctx)

	_, ok := cache.Cached(ctx, "city")
	assert.False(t, ok)
	_, ok = cache.Cached(ctx, "time_window")
	assert.False(t, ok)
	keys, err := kv.ScanKeys(ctx, "opts:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"opts:" + generationKey}, keys)
	v, err := kv.Get(ctx, "other:key")
	require.NoError(t, err)
	assert.Equal(t, "keep", v)

	_, err = cache.Options(ctx, "city")
	require.NoError(t, err)
	assert.Equal(t, 3, src.calls)
}

func TestOptionsCache_InvalidationReachesOtherReplicas(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	src := &countingSource{values: map[string][]string{"city": {"Sorocaba"}}}
	a := NewOptionsCache(src, kv, "opts:", time.Minute, zap.NewNop())
	b := NewOptionsCache(src, kv, "opts:", time.Minute, zap.NewNop())

	setA, err := a.Options(ctx, "city")
	require.NoError(t, err)
	setB, err := b.Options(ctx, "city")
	require.NoError(t, err)
	assert.Equal(t, setA.Options, setB.Options)
	assert.Equal(t, 1, src.calls)

	// 副本 A 写入后失效，副本 B 必须看到新值
	src.set("city", "Campinas", "Sorocaba")
	a.Invalidate(ctx)

	_, ok := b.Cached(ctx, "city")
	assert.False(t, ok)
	setB, err = b.Options(ctx, "city")
	require.NoError(t, err)
	assert.Equal(t, []string{"Campinas", "Sorocaba"}, setB.Options)

	setA, err = a.Options(ctx, "city")
	require.NoError(t, err)
	assert.Equal(t, []string{"Campinas", "Sorocaba"}, setA.Options)
	assert.Equal(t, 2, src.calls)
}

func TestOptionsCache_BuildRacingInvalidateIsNotStored(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	src := &countingSource{values: map[string][]string{"city": {"Sorocaba"}}}
	cache := NewOptionsCache(src, kv, "opts:", time.Minute, zap.NewNop())

	// 构建读取之后发生写入并失效
	src.during = func() {
		src.set("city", "Campinas", "Sorocaba")
		cache.Invalidate(ctx)
	}
	set, err := cache.Options(ctx, "city")
	require.NoError(t, err)
	assert.Equal(t, []string{"Sorocaba"}, set.Options)

	_, ok := cache.Cached(ctx, "city")
	assert.False(t, ok)
	_, err = kv.Get(ctx, "opts:city")
	assert.ErrorIs(t, err, store.ErrMiss)

	set, err = cache.Options(ctx, "city")
	require.NoError(t, err)
	assert.Equal(t, []string{"Campinas", "Sorocaba"}, set.Options)
}

func TestOptionsCache_IgnoresMirrorFromOlderGeneration(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	require.NoError(t, kv.Set(ctx, "opts:city", `{"generation":"0","set":{"options":["Stale"]}}`, 0))
	_, err := kv.Incr(ctx, "opts:"+generationKey)
	require.NoError(t, err)

	src := &countingSource{values: map[string][]string{"city": {"Fresh"}}}
	cache := NewOptionsCache(src, kv, "opts:", time.Minute, zap.NewNop())
	set, err := cache.Options(ctx, "city")
	require.NoError(t, err)
	assert.Equal(t, []string{"Fresh"}, set.Options)
	assert.Equal(t, 1, src.calls)
}

func TestOptionsCache_Errors(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{err: errors.New("connection refused")}
	cache := NewOptionsCache(src, nil, "opts:", time.Minute, zap.NewNop())

	_, err := cache.Options(ctx, "not_a_column")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 0, src.calls)

	_, err = cache.Options(ctx, "city")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load filter options")
	_, ok := cache.Cached(ctx, "city")
	assert.False(t, ok)
}

func TestOptionSet_Expand(t *testing.T) {
	set := buildOptionSet("time_window", []string{"Morning", "08:00", "08:00 • 14:00", " Morning", "morning", "14:30hs"})
	assert.Equal(t, []string{"Custom time", "Morning"}, set.Options)

	got := set.Expand([]string{"Custom time", "Morning", "Unknown"})
	assert.ElementsMatch(t, []string{"08:00", "08:00 • 14:00", "14:30hs", "Morning", " Morning", "morning", "Unknown"}, got)
}
