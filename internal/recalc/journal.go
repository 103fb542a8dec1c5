// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package recalc

import (
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Journal persists accepted jobs so that a restart can resume them.
type Journal interface {
	Save(job Job) error
	Delete(seq uint64) error
	// Load returns every journaled job in sequence order.
	Load() ([]Job, error)
}

const journalPrefix = "job:"

// BadgerJournal stores jobs under "job:<zero-padded seq>" so that key order
// is acceptance order. It can share a database with other key prefixes.
type BadgerJournal struct {
	db *badger.DB
}

var _ Journal = (*BadgerJournal)(nil)

// NewBadgerJournal journals into db. The caller owns db.
func NewBadgerJournal(db *badger.DB) *BadgerJournal {
	return &BadgerJournal{db: db}
}

func journalKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", journalPrefix, seq))
}

// Save implements Journal.
func (j *BadgerJournal) Save(job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(journalKey(job.Seq), data)
	})
}

// Delete implements Journal.
func (j *BadgerJournal) Delete(seq uint64) error {
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(journalKey(seq))
	})
}

// Load implements Journal.
func (j *BadgerJournal) Load() ([]Job, error) {
	var jobs []Job
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(journalPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var job Job
				if err := json.Unmarshal(val, &job); err != nil {
					return fmt.Errorf("decode %s: %w", item.Key(), err)
				}
				jobs = append(jobs, job)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].Seq < jobs[b].Seq })
	return jobs, nil
}
