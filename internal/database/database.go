// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

// Package database is the document store adapter.
//
// Players, scores, recalculation results and content flags live in
// SurrealDB. Repositories in this package speak SurrealQL through the small
// Database interface so that they can be tested against a fake.
//
// Errors from the store are wrapped in ErrConnection or ErrQuery; callers
// check them with errors.Is.
package database

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConnection indicates a failure to connect to or talk to the store.
	ErrConnection = errors.New("database connection error")

	// ErrQuery indicates a query the store rejected.
	ErrQuery = errors.New("query error")

	// ErrDecode indicates a record that does not match the expected shape.
	ErrDecode = errors.New("decode error")
)

// Database runs SurrealQL.
type Database interface {
	Connect(ctx context.Context) error
	Close() error
	Ping(ctx context.Context) error

	// Query returns one {"status", "result"} map per statement.
	Query(ctx context.Context, query string, vars map[string]interface{}) ([]interface{}, error)

	// QueryOne returns the first record of the first statement, or
	// ErrNotFound.
	QueryOne(ctx context.Context, query string, vars map[string]interface{}) (interface{}, error)

	// Execute runs a query for its side effects.
	Execute(ctx context.Context, query string, vars map[string]interface{}) error
}
