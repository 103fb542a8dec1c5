// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package database

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/surrealdb/surrealdb.go/pkg/models"
)

// firstStatementRows unwraps the result of the first statement of a Query.
// A scalar result is returned as a single row.
func firstStatementRows(results []interface{}) []interface{} {
	if len(results) == 0 {
		return nil
	}
	resp, ok := results[0].(map[string]interface{})
	if !ok {
		return results
	}
	switch r := resp["result"].(type) {
	case nil:
		return nil
	case []interface{}:
		return r
	default:
		return []interface{}{r}
	}
}

// decodeRecord converts a row into T by way of JSON. Record ids are
// flattened to their key within table and datetimes to time.Time.
func decodeRecord[T any](row interface{}, table string) (T, error) {
	var out T

	data, ok := row.(map[string]interface{})
	if !ok {
		return out, fmt.Errorf("%w: unexpected row type %T", ErrDecode, row)
	}

	normalized := make(map[string]interface{}, len(data))
	for k, v := range data {
		normalized[k] = normalizeValue(v)
	}
	if id, ok := data["id"]; ok {
		normalized["id"] = recordKey(convertSurrealID(id), table)
	}

	jsonBytes, err := json.Marshal(normalized)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := json.Unmarshal(jsonBytes, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return out, nil
}

func decodeRecords[T any](rows []interface{}, table string) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		rec, err := decodeRecord[T](row, table)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case models.CustomDateTime:
		return t.Time
	case *models.CustomDateTime:
		if t != nil {
			return t.Time
		}
		return nil
	case models.RecordID, *models.RecordID:
		return convertSurrealID(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}

// convertSurrealID renders a record id as "table:key".
func convertSurrealID(id interface{}) string {
	switch v := id.(type) {
	case string:
		return v
	case models.RecordID:
		return fmt.Sprintf("%s:%v", v.Table, v.ID)
	case *models.RecordID:
		if v != nil {
			return fmt.Sprintf("%s:%v", v.Table, v.ID)
		}
		return ""
	case map[string]interface{}:
		tb, _ := v["tb"].(string)
		if tb == "" {
			tb, _ = v["Table"].(string)
		}
		key, ok := v["id"]
		if !ok {
			key = v["ID"]
		}
		if tb != "" && key != nil {
			return fmt.Sprintf("%s:%v", tb, key)
		}
	}
	return fmt.Sprintf("%v", id)
}

// recordKey strips "table:" from a record id. SurrealDB escapes complex
// keys with ⟨⟩, which are removed as well.
func recordKey(id, table string) string {
	key := strings.TrimPrefix(id, table+":")
	key = strings.TrimPrefix(key, "⟨")
	key = strings.TrimSuffix(key, "⟩")
	return key
}
