// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package recalc

import (
	"sort"
	"time"

	"github.com/tomtom215/mahiru/internal/models"
)

// weightDecay is applied per rank: the best score counts fully, the second
// at 0.95, the third at 0.95², and so on.
const weightDecay = 0.95

// Aggregate totals per-score results into a player's recalculation.
// Accuracy uses the same rank weights, normalized to the weight sum.
func Aggregate(userID, rework string, scores []models.Score, perf []models.ScorePerformance, at time.Time) models.Recalculation {
	accuracy := make(map[string]float64, len(scores))
	for _, s := range scores {
		accuracy[s.ID] = s.Accuracy
	}

	ranked := make([]models.ScorePerformance, len(perf))
	copy(ranked, perf)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Performance > ranked[j].Performance
	})

	var total, acc, weightSum float64
	weight := 1.0
	for _, p := range ranked {
		total += p.Performance * weight
		acc += accuracy[p.ScoreID] * weight
		weightSum += weight
		weight *= weightDecay
	}
	if weightSum > 0 {
		acc /= weightSum
	}

	return models.Recalculation{
		PlayerID:         userID,
		Rework:           rework,
		Scores:           ranked,
		TotalPerformance: total,
		Accuracy:         acc,
		CalculatedAt:     at,
	}
}
