package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"fieldvisit/internal/identity"
	"fieldvisit/internal/repository"
	"fieldvisit/internal/store"
	"fieldvisit/internal/timewindow"

	"go.uber.org/zap"
)

// OptionSet 网格列的过滤选项：显示值 → 原始取值
type OptionSet struct {
	Options  []string            `json:"options"`
	Variants map[string][]string `json:"variants"`
}

// Expand maps option labels to the raw values stored for them. Labels with no
// known variants pass through literally.
func (s *OptionSet) Expand(labels []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(labels))
	add := func(v string) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, l := range labels {
		variants := s.Variants[l]
		if len(variants) == 0 {
			add(l)
			continue
		}
		for _, v := range variants {
			add(v)
		}
	}
	return out
}

// OptionSource 提供某列的所有原始取值
type OptionSource interface {
	DistinctValues(ctx context.Context, column string) ([]string, error)
}

var _ OptionSource = (repository.ScheduleEntriesRepository)(nil)

// OptionsCache 进程内缓存 + KV 镜像（多副本共享构建结果）
// One instance per process; invalidated wholesale at known mutation points.
// A generation counter in the KV tells every replica when another one
// invalidated, and keeps builds that raced an invalidation from being stored.
type OptionsCache struct {
	mu    sync.RWMutex
	local map[string]*OptionSet
	gen   string // shared generation the local map belongs to
	epoch uint64 // bumped by every local Invalidate

	source OptionSource
	kv     store.KV
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// generationKey 不参与镜像清理
const generationKey = "@generation"

// mirrorEntry 镜像值带上构建时的代数，代数不符即丢弃
type mirrorEntry struct {
	Generation string     `json:"generation"`
	Set        *OptionSet `json:"set"`
}

func NewOptionsCache(source OptionSource, kv store.KV, prefix string, ttl time.Duration, logger *zap.Logger) *OptionsCache {
	if kv == nil {
		kv = store.NewMemoryKV()
	}
	return &OptionsCache{
		local:  map[string]*OptionSet{},
		gen:    "0",
		source: source,
		kv:     kv,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

// Cached returns the set for key only if it was already built in the current
// generation.
func (c *OptionsCache) Cached(ctx context.Context, key string) (*OptionSet, bool) {
	c.sync(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()
	set, ok := c.local[key]
	return set, ok
}

// Options returns the option set for a column, building it on first use.
func (c *OptionsCache) Options(ctx context.Context, key string) (*OptionSet, error) {
	if !repository.TextColumns[key] {
		return nil, invalid("unknown filter column %q", key)
	}
	gen, epoch := c.sync(ctx)

	c.mu.RLock()
	set, ok := c.local[key]
	c.mu.RUnlock()
	if ok {
		return set, nil
	}

	if set, ok := c.loadMirror(ctx, key, gen); ok {
		c.store(key, set, gen, epoch)
		return set, nil
	}

	values, err := c.source.DistinctValues(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load filter options: %w", err)
	}
	set = buildOptionSet(key, values)

	// 构建期间发生过失效则只返回，不缓存
	if c.generation(ctx) != gen || !c.store(key, set, gen, epoch) {
		c.logger.Debug("Option set invalidated during build, not cached", zap.String("key", key))
		return set, nil
	}
	c.saveMirror(ctx, key, set, gen)
	return set, nil
}

// Invalidate drops every cached set, local and mirrored, and bumps the shared
// generation so other processes drop theirs.
func (c *OptionsCache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.local = map[string]*OptionSet{}
	c.epoch++
	c.mu.Unlock()

	if _, err := c.kv.Incr(ctx, c.prefix+generationKey); err != nil {
		c.logger.Warn("Failed to bump option cache generation", zap.Error(err))
	}

	keys, err := c.kv.ScanKeys(ctx, c.prefix+"*")
	if err != nil {
		c.logger.Warn("Failed to scan option cache keys", zap.Error(err))
		return
	}
	mirrors := keys[:0]
	for _, k := range keys {
		if k != c.prefix+generationKey {
			mirrors = append(mirrors, k)
		}
	}
	if len(mirrors) == 0 {
		return
	}
	if err := c.kv.Del(ctx, mirrors...); err != nil {
		c.logger.Warn("Failed to delete option cache keys", zap.Int("keys", len(mirrors)), zap.Error(err))
	}
}

// generation reads the shared counter. When the KV is unreachable the last
// known generation is kept and only local invalidation applies.
func (c *OptionsCache) generation(ctx context.Context) string {
	raw, err := c.kv.Get(ctx, c.prefix+generationKey)
	if errors.Is(err, store.ErrMiss) {
		return "0"
	}
	if err != nil {
		c.logger.Warn("Failed to read option cache generation", zap.Error(err))
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.gen
	}
	return raw
}

// sync drops the local map when the shared generation moved and returns the
// snapshot a build must still match before it is stored.
func (c *OptionsCache) sync(ctx context.Context) (string, uint64) {
	gen := c.generation(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		c.local = map[string]*OptionSet{}
		c.gen = gen
	}
	return gen, c.epoch
}

func (c *OptionsCache) store(key string, set *OptionSet, gen string, epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.epoch != epoch {
		return false
	}
	c.local[key] = set
	return true
}

func (c *OptionsCache) loadMirror(ctx context.Context, key, gen string) (*OptionSet, bool) {
	raw, err := c.kv.Get(ctx, c.prefix+key)
	if err != nil {
		if !errors.Is(err, store.ErrMiss) {
			c.logger.Warn("Failed to read option cache mirror", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var entry mirrorEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.Set == nil {
		c.logger.Warn("Discarding corrupt option cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if entry.Generation != gen {
		return nil, false
	}
	return entry.Set, true
}

func (c *OptionsCache) saveMirror(ctx context.Context, key string, set *OptionSet, gen string) {
	b, err := json.Marshal(mirrorEntry{Generation: gen, Set: set})
	if err != nil {
		return
	}
	if err := c.kv.Set(ctx, c.prefix+key, string(b), c.ttl); err != nil {
		c.logger.Warn("Failed to write option cache mirror", zap.String("key", key), zap.Error(err))
	}
}

// buildOptionSet groups raw values under a display label. Time windows group by
// tag (presets, "Custom time", or the free text); other columns group values
// that normalize equally and show the first one in sort order.
func buildOptionSet(key string, values []string) *OptionSet {
	sorted := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			sorted = append(sorted, v)
		}
	}
	sort.Strings(sorted)

	set := &OptionSet{Variants: map[string][]string{}}
	labels := map[string]string{}
	for _, raw := range sorted {
		var group, label string
		if key == "time_window" {
			label = timewindow.Tag(raw)
			group = label
		} else {
			group = identity.NormalizeText(raw)
			label = strings.TrimSpace(raw)
		}
		if existing, ok := labels[group]; ok {
			label = existing
		} else {
			labels[group] = label
			set.Options = append(set.Options, label)
		}
		set.Variants[label] = append(set.Variants[label], raw)
	}
	sort.Strings(set.Options)
	return set
}
