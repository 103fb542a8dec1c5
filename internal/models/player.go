// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

// Package models holds the records Mahiru exchanges with the document store
// and the HTTP API.
package models

import "time"

// Player is a platform account.
type Player struct {
	ID       string `json:"id"`
	Username string `json:"username"`

	// Archived accounts are never recalculated.
	Archived bool `json:"archived"`
}

// Score is one submitted play.
type Score struct {
	ID          string   `json:"id"`
	PlayerID    string   `json:"player_id"`
	BeatmapHash string   `json:"beatmap_hash"`
	Mods        []string `json:"mods"`
	MaxCombo    int      `json:"max_combo"`
	Accuracy    float64  `json:"accuracy"`
	Count300    int      `json:"count_300"`
	Count100    int      `json:"count_100"`
	Count50     int      `json:"count_50"`
	Misses      int      `json:"misses"`
}

// ScorePerformance is the recomputed value of one score.
type ScorePerformance struct {
	ScoreID     string  `json:"score_id"`
	BeatmapHash string  `json:"beatmap_hash"`
	StarRating  float64 `json:"star_rating"`
	Performance float64 `json:"performance"`
}

// Recalculation is the outcome of recomputing one player under one rework.
type Recalculation struct {
	PlayerID         string             `json:"player_id"`
	Rework           string             `json:"rework"`
	Scores           []ScorePerformance `json:"scores"`
	TotalPerformance float64            `json:"total_performance"`
	Accuracy         float64            `json:"accuracy"`
	CalculatedAt     time.Time          `json:"calculated_at"`
}

// FlagRecord marks content reported as fraudulent. Scanned is the sweep's
// completion marker; the record itself is never deleted by the sweep.
type FlagRecord struct {
	ID         string    `json:"id"`
	ContentRef string    `json:"content_ref"`
	Reason     string    `json:"reason,omitempty"`
	Scanned    bool      `json:"scanned"`
	CreatedAt  time.Time `json:"created_at"`
}
