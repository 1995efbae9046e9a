// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianRAO/services/rao/searchtree"
)

var (
	// ErrNotFound indicates no report is stored under the run id.
	ErrNotFound = errors.New("run not found")

	// ErrInvalidRunID indicates an empty run id or one containing '/'.
	ErrInvalidRunID = errors.New("invalid run id")
)

const (
	runPrefix  = "run/"
	timePrefix = "time/"
)

// Record is one stored optimisation run.
type Record struct {
	RunID     string             `json:"run_id"`
	CaseID    string             `json:"case_id"`
	CreatedAt time.Time          `json:"created_at"`
	Report    *searchtree.Report `json:"report"`
}

// Summary is a record without its report, as listed by List.
type Summary struct {
	RunID             string                       `json:"run_id"`
	CaseID            string                       `json:"case_id"`
	CreatedAt         time.Time                    `json:"created_at"`
	Status            searchtree.SecurityStatus    `json:"status"`
	TerminationReason searchtree.TerminationReason `json:"termination_reason"`
	FinalCost         float64                      `json:"final_cost"`
}

// ResultStore keeps run records in a DB.
//
// Thread Safety: Safe for concurrent use.
type ResultStore struct {
	db *DB
}

// NewResultStore wraps db. The store does not own db.
func NewResultStore(db *DB) *ResultStore {
	return &ResultStore{db: db}
}

func runKey(id string) []byte { return []byte(runPrefix + id) }

func timeKey(created time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", timePrefix, created.UnixNano(), id))
}

func validRunID(id string) error {
	if id == "" || strings.Contains(id, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, id)
	}
	return nil
}

// Put stores rec, replacing any record with the same run id.
// A zero CreatedAt is set to the current time.
func (s *ResultStore) Put(ctx context.Context, rec Record) error {
	if err := validRunID(rec.RunID); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", rec.RunID, err)
	}

	return s.db.Update(ctx, func(txn *badger.Txn) error {
		if old, err := getRecord(txn, rec.RunID); err == nil {
			if err := txn.Delete(timeKey(old.CreatedAt, old.RunID)); err != nil {
				return err
			}
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		entry := badger.NewEntry(runKey(rec.RunID), data)
		index := badger.NewEntry(timeKey(rec.CreatedAt, rec.RunID), nil)
		if s.db.retention > 0 {
			entry = entry.WithTTL(s.db.retention)
			index = index.WithTTL(s.db.retention)
		}
		if err := txn.SetEntry(entry); err != nil {
			return err
		}
		return txn.SetEntry(index)
	})
}

// Get returns the record of a run, ErrNotFound if absent or expired.
func (s *ResultStore) Get(ctx context.Context, runID string) (*Record, error) {
	if err := validRunID(runID); err != nil {
		return nil, err
	}
	var rec *Record
	err := s.db.View(ctx, func(txn *badger.Txn) error {
		var err error
		rec, err = getRecord(txn, runID)
		return err
	})
	return rec, err
}

func getRecord(txn *badger.Txn, runID string) (*Record, error) {
	item, err := txn.Get(runKey(runID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return &rec, nil
}

// List returns up to limit summaries, newest first. limit <= 0 lists everything.
func (s *ResultStore) List(ctx context.Context, limit int) ([]Summary, error) {
	out := []Summary{}
	err := s.db.View(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		opts.Prefix = []byte(timePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts from the last key below the seek key.
		for it.Seek([]byte(timePrefix + "\xff")); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := string(it.Item().Key())
			id := key[strings.LastIndexByte(key, '/')+1:]
			rec, err := getRecord(txn, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, summarize(rec))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func summarize(rec *Record) Summary {
	sum := Summary{RunID: rec.RunID, CaseID: rec.CaseID, CreatedAt: rec.CreatedAt}
	if rec.Report != nil {
		sum.Status = rec.Report.Status
		sum.TerminationReason = rec.Report.TerminationReason
		sum.FinalCost = rec.Report.FinalCost
	}
	return sum
}

// Delete removes a run. Deleting an absent run returns ErrNotFound.
func (s *ResultStore) Delete(ctx context.Context, runID string) error {
	if err := validRunID(runID); err != nil {
		return err
	}
	return s.db.Update(ctx, func(txn *badger.Txn) error {
		rec, err := getRecord(txn, runID)
		if err != nil {
			return err
		}
		if err := txn.Delete(timeKey(rec.CreatedAt, runID)); err != nil {
			return err
		}
		return txn.Delete(runKey(runID))
	})
}
