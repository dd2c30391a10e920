// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package objectstore

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/kittwire/core/internal/model"
)

// recover runs on every Open. The object log ("obj:") is canonical; the
// reverse map ("rev:") and the segment-checksum markers it is sealed
// against are derived state. A crash between a segment sealing and its
// checksum marker being written leaves that segment's reverse-map
// entries suspect, so recover rebuilds the whole reverse map from the
// object log whenever any checksum marker for a sealed segment is
// missing, rather than trying to recover selectively (spec.md §4.A:
// "the main log is canonical").
func (s *Store) recover() error {
	maxSegment, err := s.maxSealedSegment()
	if err != nil {
		return fmt.Errorf("scan sealed segments: %w", err)
	}
	if maxSegment == 0 {
		s.segmentID = 0
		return nil
	}

	missing, err := s.hasMissingChecksum(maxSegment)
	if err != nil {
		return fmt.Errorf("scan checksum markers: %w", err)
	}
	if missing {
		if err := s.rebuildReverseIndex(); err != nil {
			return fmt.Errorf("rebuild reverse index: %w", err)
		}
	}
	s.segmentID = maxSegment
	return nil
}

// maxSealedSegment returns the highest segment id that has ever been
// sealed, inferred from the highest checksum-marker key present, or 0
// if none exist yet.
func (s *Store) maxSealedSegment() (uint64, error) {
	var max uint64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(prefixChecksum)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			id := decodeSegmentID(key[len(prefix):])
			if id > max {
				max = id
			}
		}
		return nil
	})
	return max, err
}

// hasMissingChecksum reports whether any segment id in [1, maxSegment]
// lacks a checksum marker, which can only happen after a crash mid-seal.
func (s *Store) hasMissingChecksum(maxSegment uint64) (bool, error) {
	missing := false
	err := s.db.View(func(txn *badger.Txn) error {
		for id := uint64(1); id <= maxSegment; id++ {
			_, err := txn.Get(segmentChecksumKey(id))
			if err == badger.ErrKeyNotFound {
				missing = true
				return nil
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	return missing, err
}

// rebuildReverseIndex re-derives every "rev:" entry from the canonical
// object log. It is idempotent: re-indexing an object that already has
// reverse entries just rewrites the same keys.
func (s *Store) rebuildReverseIndex() error {
	s.log.Info("objectstore: rebuilding reverse index from main log")

	type pending struct {
		hash model.Hash
		raw  []byte
	}
	var objs []pending

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(prefixObject)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			var hash model.Hash
			copy(hash[:], key[len(prefix):])
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			objs = append(objs, pending{hash: hash, raw: raw})
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		prefix := []byte(prefixReverse)
		var stale [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}

		for _, o := range objs {
			env, err := model.DecodeEnvelope(o.raw)
			if err != nil {
				s.log.Warn("objectstore: skipping corrupt object during recovery", "hash", o.hash.String(), "err", err)
				continue
			}
			value, err := model.DecodeValue(env.Type, env.Value)
			if err != nil {
				s.log.Warn("objectstore: skipping undecodable object during recovery", "hash", o.hash.String(), "err", err)
				continue
			}
			if err := s.indexReverseRefs(txn, o.hash, value); err != nil {
				return err
			}
		}
		return nil
	})
}

func decodeSegmentID(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
}
