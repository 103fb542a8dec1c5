// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package scoring

import (
	"context"

	"github.com/tomtom215/mahiru/internal/models"
)

// Attributes is an engine's difficulty bundle for one beatmap and mod set.
// StarRating and MaxCombo are common to every engine; anything else an
// engine reports goes into Values untouched.
type Attributes struct {
	StarRating float64            `json:"star_rating"`
	MaxCombo   int                `json:"max_combo"`
	Values     map[string]float64 `json:"values,omitempty"`
}

// DifficultyRequest asks an engine for a beatmap's attributes.
type DifficultyRequest struct {
	BeatmapHash string             `json:"beatmap_hash"`
	Mods        []string           `json:"mods"`
	Params      map[string]float64 `json:"params,omitempty"`
}

// PerformanceRequest asks an engine for the value of one score.
type PerformanceRequest struct {
	Attributes Attributes         `json:"attributes"`
	Score      models.Score       `json:"score"`
	Mods       []string           `json:"mods"`
	Params     map[string]float64 `json:"params,omitempty"`
}

// Engine is one scoring engine. Implementations must be pure with respect to
// their inputs; results are cached without expiry.
type Engine interface {
	Difficulty(ctx context.Context, req DifficultyRequest) (Attributes, error)
	Performance(ctx context.Context, req PerformanceRequest) (float64, error)
}
