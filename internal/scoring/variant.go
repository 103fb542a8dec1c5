// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

// Package scoring routes attribute and performance computation to the
// scoring engine that matches a rework.
//
// There are exactly two engine variants. "live" is production scoring; every
// other accepted rework is an experimental rebalance run with its own
// parameters. Which experimental rework is accepted is held by ReworkCatalog
// and checked on every request.
package scoring

import (
	"errors"
	"sort"
	"strings"

	"github.com/tomtom215/mahiru/internal/config"
)

// Variant selects a scoring engine.
type Variant int

const (
	// VariantLive is the production engine.
	VariantLive Variant = iota
	// VariantRebalance is the experimental engine.
	VariantRebalance
)

func (v Variant) String() string {
	switch v {
	case VariantLive:
		return "live"
	case VariantRebalance:
		return "rebalance"
	default:
		return "unknown"
	}
}

// LiveRework is the reserved production rework name.
const LiveRework = config.LiveRework

var (
	// ErrUnknownRework means the rework name is not in the catalog.
	ErrUnknownRework = errors.New("unknown rework")

	// ErrInactiveRework means the rework is known but is not the currently
	// active experimental rework.
	ErrInactiveRework = errors.New("rework is not active")

	// ErrEngine wraps any failure reported by a scoring engine.
	ErrEngine = errors.New("scoring engine error")
)

// noMod is the conventional "no modifiers" marker; it canonicalizes away.
const noMod = "NM"

// ModSet is a canonical modifier set: upper case, duplicate free, sorted.
// Build one with ParseModSet.
type ModSet []string

// ParseModSet canonicalizes mods. Order and duplicates do not matter, and
// concatenated acronyms such as "HDDT" are split into two-letter mods.
func ParseModSet(mods []string) ModSet {
	seen := make(map[string]struct{}, len(mods))
	for _, raw := range mods {
		m := strings.ToUpper(strings.TrimSpace(raw))
		for _, part := range splitAcronyms(m) {
			if part == "" || part == noMod {
				continue
			}
			seen[part] = struct{}{}
		}
	}
	out := make(ModSet, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// splitAcronyms splits "HDDT" into "HD", "DT". Anything that is not an even
// run of letters is returned unchanged.
func splitAcronyms(m string) []string {
	if len(m) <= 2 || len(m)%2 != 0 {
		return []string{m}
	}
	for _, r := range m {
		if r < 'A' || r > 'Z' {
			return []string{m}
		}
	}
	parts := make([]string, 0, len(m)/2)
	for i := 0; i < len(m); i += 2 {
		parts = append(parts, m[i:i+2])
	}
	return parts
}

// Key renders the set for use in cache keys. The empty set renders as "".
func (m ModSet) Key() string {
	return strings.Join(m, ",")
}

// Contains reports whether mod is in the set.
func (m ModSet) Contains(mod string) bool {
	i := sort.SearchStrings(m, mod)
	return i < len(m) && m[i] == mod
}
