package cache

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestMemory() (*Memory, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	return NewMemory(WithClock(clock.Now)), clock
}

func TestMemory_TTLBoundary(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestMemory()

	require.NoError(t, m.Set(ctx, "shop1:q", []byte("rows"), time.Minute))

	clock.Advance(time.Minute)
	got, err := m.Get(ctx, "shop1:q")
	require.NoError(t, err)
	assert.Equal(t, []byte("rows"), got)

	clock.Advance(time.Nanosecond)
	_, err = m.Get(ctx, "shop1:q")
	require.ErrorIs(t, err, ErrCacheMiss)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Invalidations)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)

	// the expired entry was evicted, so a second read is a plain miss
	_, err = m.Get(ctx, "shop1:q")
	require.ErrorIs(t, err, ErrCacheMiss)
	stats, err = m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Invalidations)
	assert.Equal(t, int64(2), stats.Misses)
}

func TestMemory_DefaultTTL(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestMemory()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), 0))
	clock.Advance(DefaultTTL)
	_, err := m.Get(ctx, "k")
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = m.Get(ctx, "k")
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemory_SetOverwritesWithFreshTimestamp(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestMemory()

	require.NoError(t, m.Set(ctx, "k", []byte("old"), time.Minute))
	clock.Advance(50 * time.Second)
	require.NoError(t, m.Set(ctx, "k", []byte("new"), time.Minute))
	clock.Advance(50 * time.Second)

	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
}

func TestMemory_InvalidateBySubstring(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory()

	for _, key := range []string{
		"shop1:product:section:s1:20",
		"shop1:product:detail:p1",
		"shop1:section:counts",
		"shop2:product:detail:p1",
	} {
		require.NoError(t, m.Set(ctx, key, []byte("x"), time.Minute))
	}

	removed, err := m.Invalidate(ctx, "shop1:product")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	keys, err := m.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"shop1:section:counts", "shop2:product:detail:p1"}, keys)

	_, err = m.Get(ctx, "shop1:product:detail:p1")
	require.ErrorIs(t, err, ErrCacheMiss)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Invalidations)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestMemory_StatsHitRateAndSize(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestMemory()

	require.NoError(t, m.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, m.Set(ctx, "b", []byte("2"), time.Hour))
	require.NoError(t, m.Set(ctx, "c", []byte("3"), time.Hour))

	for i := 0; i < 2; i++ {
		_, err := m.Get(ctx, "b")
		require.NoError(t, err)
	}
	_, err := m.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrCacheMiss)

	// "a" expires but is never read, so it must not count towards the live size.
	clock.Advance(2 * time.Minute)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Sets)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, 66.67, stats.HitRate)
	assert.Equal(t, 2, stats.CurrentSize)
}

func TestMemory_StatsEmpty(t *testing.T) {
	m, _ := newTestMemory()
	stats, err := m.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}

func TestMemory_ClearResetsEntriesAndCounters(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory()

	require.NoError(t, m.Set(ctx, "a", []byte("1"), time.Minute))
	_, _ = m.Get(ctx, "a")
	_, _ = m.Get(ctx, "b")

	require.NoError(t, m.Clear(ctx))

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)

	keys, err := m.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestRegisterMetrics(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory()
	require.NoError(t, m.Set(ctx, "a", []byte("1"), time.Minute))
	_, _ = m.Get(ctx, "a")

	reg := prometheus.NewRegistry()
	require.NoError(t, registerMetrics(reg, m, nil))
	require.NoError(t, registerMetrics(reg, m, nil), "re-registering is tolerated")

	gauges := func() map[string]float64 {
		families, err := reg.Gather()
		require.NoError(t, err)
		values := make(map[string]float64, len(families))
		for _, mf := range families {
			g := mf.GetMetric()[0].GetGauge()
			require.NotNil(t, g, "%s is a gauge", mf.GetName())
			values[mf.GetName()] = g.GetValue()
		}
		return values
	}

	values := gauges()
	assert.Len(t, values, 5)
	assert.Equal(t, 1.0, values["storefront_query_cache_hits"])
	assert.Equal(t, 1.0, values["storefront_query_cache_sets"])
	assert.Equal(t, 1.0, values["storefront_query_cache_entries"])

	require.NoError(t, m.Clear(ctx))
	for name, v := range gauges() {
		assert.Zero(t, v, name)
	}
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `shop1:product`, escapeGlob("shop1:product"))
	assert.Equal(t, `a\*b\?c\[d\]`, escapeGlob("a*b?c[d]"))
}

func TestNoopStore(t *testing.T) {
	ctx := context.Background()
	var s Store = noopStore{}
	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	_, err := s.Get(ctx, "k")
	require.ErrorIs(t, err, ErrCacheMiss)
}
