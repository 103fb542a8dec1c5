// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/tomtom215/mahiru/internal/models"
)

const flagTable = "flag"

// FlagRepository reads and marks content flags and deletes the content they
// point at. It satisfies sweep.FlagStore and sweep.ContentRemover.
type FlagRepository struct {
	db Database
}

// NewFlagRepository creates a repository over db.
func NewFlagRepository(db Database) *FlagRepository {
	return &FlagRepository{db: db}
}

// FetchUnscanned returns up to limit unscanned flags, oldest first.
func (r *FlagRepository) FetchUnscanned(ctx context.Context, limit int) ([]models.FlagRecord, error) {
	query := `SELECT * FROM flag WHERE scanned = false ORDER BY created_at ASC LIMIT $limit`
	results, err := r.db.Query(ctx, query, map[string]interface{}{"limit": limit})
	if err != nil {
		return nil, err
	}
	return decodeRecords[models.FlagRecord](firstStatementRows(results), flagTable)
}

// MarkScanned sets the marker on one flag.
func (r *FlagRepository) MarkScanned(ctx context.Context, id string) error {
	query := `UPDATE type::thing("flag", $id) SET scanned = true`
	return r.db.Execute(ctx, query, map[string]interface{}{"id": id})
}

// ResetAllMarkers clears every marker in one statement.
func (r *FlagRepository) ResetAllMarkers(ctx context.Context) error {
	return r.db.Execute(ctx, `UPDATE flag SET scanned = false WHERE scanned = true`, nil)
}

// ResetMarkers clears the markers of ids.
func (r *FlagRepository) ResetMarkers(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `FOR $id IN $ids { UPDATE type::thing("flag", $id) SET scanned = false; }`
	return r.db.Execute(ctx, query, map[string]interface{}{"ids": ids})
}

// RemoveContent deletes the record ref names, e.g. "score:abc123".
// Deleting a record that is already gone is not an error.
func (r *FlagRepository) RemoveContent(ctx context.Context, ref string) error {
	table, key, ok := strings.Cut(ref, ":")
	if !ok || table == "" || key == "" {
		return fmt.Errorf("%w: content ref %q is not a record id", ErrQuery, ref)
	}
	if table == flagTable {
		return fmt.Errorf("%w: refusing to delete flag record %q", ErrQuery, ref)
	}
	return r.db.Execute(ctx, `DELETE type::record($ref)`, map[string]interface{}{"ref": ref})
}
