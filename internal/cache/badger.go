// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package cache

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/mahiru/internal/logging"
)

const attrKeyPrefix = "attr:"

// OpenBadger opens (or creates) the Badger database at path. The same
// database holds attribute bundles and the recalculation job journal under
// distinct key prefixes.
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = badgerLogger{log: logging.WithComponent("badger")}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return db, nil
}

// BadgerStore is a Store backed by Badger. Values are JSON encoded.
type BadgerStore[V any] struct {
	db *badger.DB
}

// NewBadgerStore wraps an open database.
func NewBadgerStore[V any](db *badger.DB) *BadgerStore[V] {
	return &BadgerStore[V]{db: db}
}

// attrKey lays keys out as attr:<hash>/<variant>/<mods> so that one prefix
// scan finds every bundle for a piece of content. Each segment is path
// escaped, so a hash containing "/" never shares a prefix with another hash.
func attrKey(k Key) []byte {
	return []byte(contentPrefix(k.ContentHash) + url.PathEscape(k.Variant) + "/" + url.PathEscape(k.Mods))
}

func contentPrefix(contentHash string) string {
	return attrKeyPrefix + url.PathEscape(contentHash) + "/"
}

// Load implements Store.
func (s *BadgerStore[V]) Load(k Key) (Entry[V], bool, error) {
	var e Entry[V]
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(attrKey(k))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return e, false, nil
	}
	if err != nil {
		return e, false, fmt.Errorf("load %s: %w", k, err)
	}
	return e, true, nil
}

// Save implements Store.
func (s *BadgerStore[V]) Save(k Key, e Entry[V]) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", k, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(attrKey(k), data)
	})
}

// DeleteContent implements Store.
func (s *BadgerStore[V]) DeleteContent(contentHash string) (int, error) {
	prefix := []byte(contentPrefix(contentHash))
	var keys [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", contentHash, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(key); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", contentHash, err)
	}
	return len(keys), nil
}

// badgerLogger routes Badger's printf-style logging into zerolog.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Trace().Msgf(strings.TrimSpace(format), args...)
}
