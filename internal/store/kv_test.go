package store

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryKV(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	kv.now = func() time.Time { return now }

	require.NoError(t, kv.Set(ctx, "fieldvisit:options:city", "[]", time.Minute))
	require.NoError(t, kv.Set(ctx, "fieldvisit:options:region", "[]", 0))
	require.NoError(t, kv.Set(ctx, "other", "x", 0))

	v, err := kv.Get(ctx, "fieldvisit:options:city")
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	keys, err := kv.ScanKeys(ctx, "fieldvisit:options:*")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"fieldvisit:options:city", "fieldvisit:options:region"}, keys)

	now = now.Add(2 * time.Minute)
	_, err = kv.Get(ctx, "fieldvisit:options:city")
	assert.True(t, errors.Is(err, ErrMiss))

	require.NoError(t, kv.Del(ctx, "fieldvisit:options:region", "missing"))
	_, err = kv.Get(ctx, "fieldvisit:options:region")
	assert.True(t, errors.Is(err, ErrMiss))
}

func TestMemoryKV_Incr(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	n, err := kv.Incr(ctx, "gen")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = kv.Incr(ctx, "gen")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	v, err := kv.Get(ctx, "gen")
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	require.NoError(t, kv.Set(ctx, "text", "abc", 0))
	_, err = kv.Incr(ctx, "text")
	assert.Error(t, err)
}
