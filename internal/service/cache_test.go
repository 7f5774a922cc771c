package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/domain"
)

func memoryOnlyCache(t *testing.T) *AnalyticsCache {
	t.Helper()
	cache, err := NewAnalyticsCache(domain.CacheConfig{MemorySize: 8}, nil, testLogger())
	require.NoError(t, err)
	return cache
}

func TestAnalyticsCache_MissThenHit(t *testing.T) {
	cache := memoryOnlyCache(t)
	ctx := context.Background()

	_, ok := cache.Get(ctx, "fp-1")
	assert.False(t, ok)

	analytics := &domain.CohortAnalytics{PatientCount: 4200}
	cache.Set(ctx, "fp-1", analytics)

	got, ok := cache.Get(ctx, "fp-1")
	require.True(t, ok)
	assert.Equal(t, 4200, got.PatientCount)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.MemoryHits)
	assert.Equal(t, int64(1), stats.MemoryMisses)
}

func TestAnalyticsCache_Invalidate(t *testing.T) {
	cache := memoryOnlyCache(t)
	ctx := context.Background()

	cache.Set(ctx, "fp-1", &domain.CohortAnalytics{PatientCount: 4200})
	cache.Invalidate(ctx, "fp-1")

	_, ok := cache.Get(ctx, "fp-1")
	assert.False(t, ok)
}

func TestAnalyticsCache_LRUEviction(t *testing.T) {
	cache, err := NewAnalyticsCache(domain.CacheConfig{MemorySize: 2}, nil, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	cache.Set(ctx, "fp-1", &domain.CohortAnalytics{PatientCount: 1})
	cache.Set(ctx, "fp-2", &domain.CohortAnalytics{PatientCount: 2})
	cache.Set(ctx, "fp-3", &domain.CohortAnalytics{PatientCount: 3})

	_, ok := cache.Get(ctx, "fp-1")
	assert.False(t, ok, "oldest entry should be evicted")

	got, ok := cache.Get(ctx, "fp-3")
	require.True(t, ok)
	assert.Equal(t, 3, got.PatientCount)
}

func TestAnalyticsCache_FingerprintKeysDistinguishFilterSets(t *testing.T) {
	engine := testEngine(t)
	cache := memoryOnlyCache(t)
	ctx := context.Background()

	f := mustFilter(t, "female patients", domain.FilterInclude, "female", "patients.gender", "gender = 'Female'")
	withFilter := engine.Snapshot("c1", []*domain.Filter{f})
	empty := engine.Snapshot("c1", nil)
	require.NotEqual(t, withFilter.Fingerprint, empty.Fingerprint)

	cache.Set(ctx, withFilter.Fingerprint, engine.Analytics(withFilter))

	_, ok := cache.Get(ctx, empty.Fingerprint)
	assert.False(t, ok)

	got, ok := cache.Get(ctx, withFilter.Fingerprint)
	require.True(t, ok)
	assert.Equal(t, withFilter.PatientCount, got.PatientCount)
}
