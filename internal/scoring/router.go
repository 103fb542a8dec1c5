// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/mahiru/internal/cache"
	"github.com/tomtom215/mahiru/internal/metrics"
	"github.com/tomtom215/mahiru/internal/models"
)

// AttributeCache is the cache type the router reads and fills.
type AttributeCache = cache.AttributeCache[Attributes]

// Router resolves a rework to an engine and runs it, caching difficulty
// attributes. Callers are expected to serialize work per key; the router
// does not deduplicate concurrent misses.
type Router struct {
	catalog *ReworkCatalog
	engines map[Variant]Engine
	cache   *AttributeCache
	now     func() time.Time
}

// NewRouter wires one engine per variant. Both variants must be present.
func NewRouter(catalog *ReworkCatalog, attrCache *AttributeCache, engines map[Variant]Engine) (*Router, error) {
	for _, v := range []Variant{VariantLive, VariantRebalance} {
		if engines[v] == nil {
			return nil, fmt.Errorf("no engine registered for variant %s", v)
		}
	}
	return &Router{
		catalog: catalog,
		engines: engines,
		cache:   attrCache,
		now:     time.Now,
	}, nil
}

// Catalog exposes the rework catalog.
func (r *Router) Catalog() *ReworkCatalog {
	return r.catalog
}

// Resolve checks that rework is currently accepted.
func (r *Router) Resolve(rework string) (Rework, error) {
	return r.catalog.Resolve(rework)
}

// Compute returns difficulty attributes for contentHash under mods and
// rework. Equivalent mod sets share one cache entry.
func (r *Router) Compute(ctx context.Context, contentHash string, mods []string, rework string) (Attributes, error) {
	rw, err := r.catalog.Resolve(rework)
	if err != nil {
		return Attributes{}, err
	}

	set := ParseModSet(mods)
	key := cache.Key{ContentHash: contentHash, Mods: set.Key(), Variant: rw.CacheVariant()}
	if e, ok := r.cache.Get(key); ok {
		return e.Value, nil
	}

	attrs, err := r.engines[rw.Variant].Difficulty(ctx, DifficultyRequest{
		BeatmapHash: contentHash,
		Mods:        set,
		Params:      rw.Params,
	})
	metrics.RecordEngineCall(rw.Variant.String(), "difficulty", err)
	if err != nil {
		return Attributes{}, fmt.Errorf("%w: difficulty for %s [%s] under %s: %w", ErrEngine, contentHash, set.Key(), rw.Name, err)
	}

	r.cache.Put(key, cache.Entry[Attributes]{Value: attrs, ComputedAt: r.now()})
	return attrs, nil
}

// Performance values one score. Difficulty attributes come through Compute
// and are therefore cached.
func (r *Router) Performance(ctx context.Context, score models.Score, rework string) (models.ScorePerformance, error) {
	attrs, err := r.Compute(ctx, score.BeatmapHash, score.Mods, rework)
	if err != nil {
		return models.ScorePerformance{}, err
	}
	rw, err := r.catalog.Resolve(rework)
	if err != nil {
		return models.ScorePerformance{}, err
	}

	set := ParseModSet(score.Mods)
	pp, err := r.engines[rw.Variant].Performance(ctx, PerformanceRequest{
		Attributes: attrs,
		Score:      score,
		Mods:       set,
		Params:     rw.Params,
	})
	metrics.RecordEngineCall(rw.Variant.String(), "performance", err)
	if err != nil {
		return models.ScorePerformance{}, fmt.Errorf("%w: performance for score %s under %s: %w", ErrEngine, score.ID, rw.Name, err)
	}

	return models.ScorePerformance{
		ScoreID:     score.ID,
		BeatmapHash: score.BeatmapHash,
		StarRating:  attrs.StarRating,
		Performance: pp,
	}, nil
}

// Evict drops cached attributes for content that changed.
func (r *Router) Evict(contentHash string) int {
	return r.cache.Evict(contentHash)
}

// CacheStats reports attribute cache counters.
func (r *Router) CacheStats() cache.Stats {
	return r.cache.Stats()
}
