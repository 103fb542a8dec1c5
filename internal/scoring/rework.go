// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package scoring

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tomtom215/mahiru/internal/config"
)

// Rework is a resolved rework: the engine variant to run and the parameters
// to run it with.
type Rework struct {
	Name    string
	Variant Variant
	Params  map[string]float64
}

// CacheVariant distinguishes cache entries per rework. Two experimental
// reworks share an engine but not parameters, so they must not share
// cached attributes.
func (r Rework) CacheVariant() string {
	if r.Variant == VariantLive {
		return VariantLive.String()
	}
	return VariantRebalance.String() + ":" + r.Name
}

// ReworkCatalog knows every configured rework, which ones are retired and
// which experimental one is currently active. Safe for concurrent use.
type ReworkCatalog struct {
	mu      sync.RWMutex
	known   map[string]config.ReworkEntry
	retired map[string]struct{}
	active  string
}

// NewReworkCatalog builds a catalog from configuration.
func NewReworkCatalog(cfg config.ReworkConfig) *ReworkCatalog {
	known := make(map[string]config.ReworkEntry, len(cfg.Catalog))
	for name, entry := range cfg.Catalog {
		known[name] = entry
	}
	retired := make(map[string]struct{}, len(cfg.Retired))
	for _, name := range cfg.Retired {
		retired[name] = struct{}{}
	}
	active := cfg.Active
	if active == LiveRework {
		active = ""
	}
	return &ReworkCatalog{known: known, retired: retired, active: active}
}

// Resolve maps a rework name to a Rework. "live" always resolves. A known
// experimental rework resolves only while it is the active one; a retired
// rework never resolves.
func (c *ReworkCatalog) Resolve(name string) (Rework, error) {
	if name == LiveRework {
		return Rework{Name: LiveRework, Variant: VariantLive}, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.retired[name]; ok {
		return Rework{}, fmt.Errorf("%w: %q is retired", ErrInactiveRework, name)
	}
	entry, ok := c.known[name]
	if !ok {
		return Rework{}, fmt.Errorf("%w: %q", ErrUnknownRework, name)
	}
	if name != c.active {
		return Rework{}, fmt.Errorf("%w: %q (active is %q)", ErrInactiveRework, name, c.active)
	}

	params := make(map[string]float64, len(entry.Params))
	for k, v := range entry.Params {
		params[k] = v
	}
	return Rework{Name: name, Variant: VariantRebalance, Params: params}, nil
}

// SetActive switches the active experimental rework. An empty name leaves
// only "live" accepted.
func (c *ReworkCatalog) SetActive(name string) error {
	if name == LiveRework {
		name = ""
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if name != "" {
		if _, ok := c.retired[name]; ok {
			return fmt.Errorf("%w: %q is retired", ErrInactiveRework, name)
		}
		if _, ok := c.known[name]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownRework, name)
		}
	}
	c.active = name
	return nil
}

// Active returns the active experimental rework, or "".
func (c *ReworkCatalog) Active() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Names returns every accepted-when-active rework, "live" first. Retired
// reworks are left out.
func (c *ReworkCatalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.known)+1)
	for name := range c.known {
		if _, ok := c.retired[name]; ok {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return append([]string{LiveRework}, names...)
}
