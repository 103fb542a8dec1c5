// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mahiru/internal/models"
)

const (
	playerTable        = "player"
	scoreTable         = "score"
	recalculationTable = "recalculation"
)

// PlayerRepository reads players and scores and stores recalculation
// results. It satisfies recalc.PlayerStore.
type PlayerRepository struct {
	db Database
}

// NewPlayerRepository creates a repository over db.
func NewPlayerRepository(db Database) *PlayerRepository {
	return &PlayerRepository{db: db}
}

// GetPlayer returns nil, nil when the player does not exist.
func (r *PlayerRepository) GetPlayer(ctx context.Context, id string) (*models.Player, error) {
	query := `SELECT * FROM type::thing("player", $id)`
	row, err := r.db.QueryOne(ctx, query, map[string]interface{}{"id": id})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	player, err := decodeRecord[models.Player](row, playerTable)
	if err != nil {
		return nil, err
	}
	return &player, nil
}

// ListPlayerIDs returns every player id in key order.
func (r *PlayerRepository) ListPlayerIDs(ctx context.Context) ([]string, error) {
	results, err := r.db.Query(ctx, `SELECT id FROM player ORDER BY id`, nil)
	if err != nil {
		return nil, err
	}

	rows := firstStatementRows(results)
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		data, ok := row.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: unexpected row type %T", ErrDecode, row)
		}
		ids = append(ids, recordKey(convertSurrealID(data["id"]), playerTable))
	}
	return ids, nil
}

// ListScores returns a player's scores.
func (r *PlayerRepository) ListScores(ctx context.Context, playerID string) ([]models.Score, error) {
	query := `SELECT * FROM score WHERE player_id = $player_id ORDER BY id`
	results, err := r.db.Query(ctx, query, map[string]interface{}{"player_id": playerID})
	if err != nil {
		return nil, err
	}
	return decodeRecords[models.Score](firstStatementRows(results), scoreTable)
}

// SaveRecalculation upserts the result for (player, rework). A later
// recalculation under the same rework replaces the earlier one.
func (r *PlayerRepository) SaveRecalculation(ctx context.Context, rec models.Recalculation) error {
	scores, err := toDocument(rec.Scores)
	if err != nil {
		return err
	}

	query := `UPSERT type::thing("recalculation", [$player_id, $rework]) CONTENT {
		player_id: $player_id,
		rework: $rework,
		total_performance: $total_performance,
		accuracy: $accuracy,
		scores: $scores,
		calculated_at: <datetime>$calculated_at
	}`
	vars := map[string]interface{}{
		"player_id":         rec.PlayerID,
		"rework":            rec.Rework,
		"total_performance": rec.TotalPerformance,
		"accuracy":          rec.Accuracy,
		"scores":            scores,
		"calculated_at":     rec.CalculatedAt.UTC().Format(time.RFC3339Nano),
	}
	return r.db.Execute(ctx, query, vars)
}

// toDocument turns a value into the plain maps and slices the client
// encodes, so field names follow the json tags.
func toDocument(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return doc, nil
}
