// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

// Package cache holds computed scoring attributes.
//
// AttributeCache is keyed by content hash, canonical modifier set and engine
// variant. Entries have no TTL: a cached bundle stays valid until whoever
// learns that the content changed calls Evict. An in-memory LRU bounds
// memory; an optional Store (Badger) keeps bundles across restarts.
package cache

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/mahiru/internal/logging"
	"github.com/tomtom215/mahiru/internal/metrics"
)

// Key identifies one attribute bundle. Mods must already be canonical;
// the cache compares keys byte for byte.
type Key struct {
	ContentHash string
	Mods        string
	Variant     string
}

// String renders the key for logs.
func (k Key) String() string {
	return k.Variant + "/" + k.ContentHash + "/" + k.Mods
}

// Entry is a cached bundle. Value is opaque to the cache.
type Entry[V any] struct {
	Value      V         `json:"value"`
	ComputedAt time.Time `json:"computed_at"`
}

// Store is a persistent tier behind the in-memory cache.
type Store[V any] interface {
	Load(k Key) (Entry[V], bool, error)
	Save(k Key, e Entry[V]) error
	DeleteContent(contentHash string) (int, error)
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Entries    int   `json:"entries"`
	MemoryHits int64 `json:"memory_hits"`
	StoreHits  int64 `json:"store_hits"`
	Misses     int64 `json:"misses"`
}

// AttributeCache is safe for concurrent use.
type AttributeCache[V any] struct {
	mu    sync.Mutex
	mem   *lru[V]
	store Store[V]
	log   zerolog.Logger

	memoryHits int64
	storeHits  int64
	misses     int64
}

// New creates a cache holding at most capacity entries in memory. store
// may be nil.
func New[V any](capacity int, store Store[V]) *AttributeCache[V] {
	return &AttributeCache[V]{
		mem:   newLRU[V](capacity),
		store: store,
		log:   logging.WithComponent("attribute-cache"),
	}
}

// Get returns the bundle for k. A memory miss falls through to the store and
// promotes what it finds. Store errors are logged and reported as a miss.
func (c *AttributeCache[V]) Get(k Key) (Entry[V], bool) {
	c.mu.Lock()
	if e, ok := c.mem.get(k); ok {
		c.memoryHits++
		c.mu.Unlock()
		metrics.CacheHits.WithLabelValues("memory").Inc()
		return e, true
	}
	c.mu.Unlock()

	if c.store != nil {
		e, ok, err := c.store.Load(k)
		if err != nil {
			c.log.Warn().Err(err).Str("key", k.String()).Msg("attribute store read failed")
		}
		if ok {
			c.mu.Lock()
			c.storeHits++
			c.promote(k, e)
			c.mu.Unlock()
			metrics.CacheHits.WithLabelValues("disk").Inc()
			return e, true
		}
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	metrics.CacheMisses.Inc()
	var zero Entry[V]
	return zero, false
}

// Put stores e under k in memory and, when configured, in the store.
func (c *AttributeCache[V]) Put(k Key, e Entry[V]) {
	c.mu.Lock()
	c.promote(k, e)
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Save(k, e); err != nil {
			c.log.Warn().Err(err).Str("key", k.String()).Msg("attribute store write failed")
		}
	}
}

// Evict drops every bundle for contentHash from both tiers and returns how
// many in-memory entries were removed.
func (c *AttributeCache[V]) Evict(contentHash string) int {
	c.mu.Lock()
	removed := c.mem.removeContent(contentHash)
	metrics.CacheEntries.Set(float64(c.mem.len()))
	c.mu.Unlock()

	if c.store != nil {
		n, err := c.store.DeleteContent(contentHash)
		if err != nil {
			c.log.Warn().Err(err).Str("content_hash", contentHash).Msg("attribute store delete failed")
		}
		if n > removed {
			removed = n
		}
	}
	metrics.CacheEvictions.WithLabelValues("content_changed").Add(float64(removed))
	c.log.Debug().Str("content_hash", contentHash).Int("removed", removed).Msg("attributes evicted")
	return removed
}

// Len returns the number of in-memory entries.
func (c *AttributeCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mem.len()
}

// Stats returns hit and miss counters.
func (c *AttributeCache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:    c.mem.len(),
		MemoryHits: c.memoryHits,
		StoreHits:  c.storeHits,
		Misses:     c.misses,
	}
}

// promote must be called with mu held.
func (c *AttributeCache[V]) promote(k Key, e Entry[V]) {
	if n := c.mem.put(k, e); n > 0 {
		metrics.CacheEvictions.WithLabelValues("capacity").Add(float64(n))
	}
	metrics.CacheEntries.Set(float64(c.mem.len()))
}
