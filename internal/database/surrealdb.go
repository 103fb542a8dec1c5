// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/surrealdb/surrealdb.go"

	"github.com/tomtom215/mahiru/internal/config"
	"github.com/tomtom215/mahiru/internal/logging"
)

// SurrealDB implements Database over a websocket connection.
type SurrealDB struct {
	cfg config.DatabaseConfig
	log zerolog.Logger

	mu sync.RWMutex
	db *surrealdb.DB

	maxConnectTries int
	connectDelay    time.Duration
}

var _ Database = (*SurrealDB)(nil)

// NewSurrealDB creates an unconnected client.
func NewSurrealDB(cfg config.DatabaseConfig) *SurrealDB {
	return &SurrealDB{
		cfg:             cfg,
		log:             logging.WithComponent("surrealdb"),
		maxConnectTries: 5,
		connectDelay:    time.Second,
	}
}

// Connect signs in and selects the namespace and database, retrying with
// exponential backoff while the store is unreachable.
func (s *SurrealDB) Connect(ctx context.Context) error {
	delay := s.connectDelay
	var lastErr error

	for attempt := 1; attempt <= s.maxConnectTries; attempt++ {
		db, err := s.dial(ctx)
		if err == nil {
			s.mu.Lock()
			s.db = db
			s.mu.Unlock()
			s.log.Info().
				Str("url", s.cfg.URL).
				Str("namespace", s.cfg.Namespace).
				Str("database", s.cfg.Database).
				Int("attempt", attempt).
				Msg("connected to document store")
			return nil
		}
		lastErr = err

		if attempt == s.maxConnectTries {
			break
		}
		s.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("document store connection failed")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrConnection, ctx.Err())
		}
		delay *= 2
	}
	return lastErr
}

func (s *SurrealDB) dial(ctx context.Context) (*surrealdb.DB, error) {
	db, err := surrealdb.FromEndpointURLString(ctx, s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	if s.cfg.Username != "" {
		_, err = db.SignIn(ctx, &surrealdb.Auth{
			Username: s.cfg.Username,
			Password: s.cfg.Password,
		})
		if err != nil {
			_ = db.Close(ctx)
			return nil, fmt.Errorf("%w: signin failed: %v", ErrConnection, err)
		}
	}

	if err := db.Use(ctx, s.cfg.Namespace, s.cfg.Database); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("%w: use failed: %v", ErrConnection, err)
	}
	return db, nil
}

func (s *SurrealDB) conn() *surrealdb.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// Close closes the connection.
func (s *SurrealDB) Close() error {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()

	if db != nil {
		return db.Close(context.Background())
	}
	return nil
}

// Ping checks the connection by asking for the server version.
func (s *SurrealDB) Ping(ctx context.Context) error {
	db := s.conn()
	if db == nil {
		return ErrConnection
	}
	if _, err := db.Version(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return nil
}

// Query implements Database.
func (s *SurrealDB) Query(ctx context.Context, query string, vars map[string]interface{}) ([]interface{}, error) {
	db := s.conn()
	if db == nil {
		return nil, ErrConnection
	}

	results, err := surrealdb.Query[interface{}](ctx, db, query, vars)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	if results == nil {
		return nil, nil
	}

	output := make([]interface{}, 0, len(*results))
	for _, r := range *results {
		if r.Status != "OK" {
			if r.Error != nil {
				return nil, fmt.Errorf("%w: %s", ErrQuery, r.Error.Message)
			}
			return nil, ErrQuery
		}
		output = append(output, map[string]interface{}{
			"status": r.Status,
			"result": r.Result,
		})
	}
	return output, nil
}

// QueryOne implements Database.
func (s *SurrealDB) QueryOne(ctx context.Context, query string, vars map[string]interface{}) (interface{}, error) {
	results, err := s.Query(ctx, query, vars)
	if err != nil {
		return nil, err
	}
	rows := firstStatementRows(results)
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Execute implements Database.
func (s *SurrealDB) Execute(ctx context.Context, query string, vars map[string]interface{}) error {
	_, err := s.Query(ctx, query, vars)
	return err
}
