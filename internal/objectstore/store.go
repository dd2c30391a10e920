// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package objectstore implements spec.md §4.A: the content-addressed
// object store, its reverse-map index, and startup recovery.
//
// Persisted state is a badger/v4 embedded KV database used as the
// engine for three logical logs (spec.md §6 persisted-state layout):
// the main object log ("obj:" prefix, canonical), a reverse-map log
// ("rev:" prefix, derived), and a current-version index ("head:"
// prefix). Segment boundaries are tracked so the backup exporter
// (internal/backup) can ship sealed ~64MiB chunks independently of
// the reverse map.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/kittwire/core/internal/corerrors"
	"github.com/kittwire/core/internal/model"
	"github.com/kittwire/core/pkg/logging"
)

// SegmentSizeBytes is the nominal size of one main-log segment before
// a new one begins (spec.md §6).
const SegmentSizeBytes = 64 * 1024 * 1024

// Store is the Object Store described in spec.md §4.A.
type Store struct {
	db     *badger.DB
	log    *logging.Logger
	events *bus

	mu           sync.Mutex // guards idLocks and the segment counters; idLocks serializes writes per identity line (spec.md §5)
	idLocks      map[model.Hash]*sync.Mutex
	segmentBytes int64
	segmentID    uint64
}

// Open opens (or creates) the object store at dir. dir == "" opens an
// in-memory store, used by tests and by short-lived CLI invocations.
func Open(dir string, log *logging.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil) // we do our own structured logging
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("objectstore: open: %w", err)
	}
	s := &Store{
		db:      db,
		log:     log,
		events:  newBus(),
		idLocks: make(map[model.Hash]*sync.Mutex),
	}
	if err := s.recover(); err != nil {
		db.Close()
		return nil, fmt.Errorf("objectstore: recovery: %w", err)
	}
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Subscribe returns a channel of future store events (spec.md §9 event
// channel) and a function to cancel the subscription.
func (s *Store) Subscribe() (<-chan Event, func()) {
	return s.events.Subscribe()
}

func (s *Store) lockFor(idHash model.Hash) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.idLocks[idHash]
	if !ok {
		l = &sync.Mutex{}
		s.idLocks[idHash] = l
	}
	return l
}

// PutUnversioned serializes obj, hashes it, persists once (duplicate
// writes are a no-op, not an error), updates the reverse map, and
// emits EventNewUnversioned.
func (s *Store) PutUnversioned(ctx context.Context, obj model.Unversioned) (model.Hash, error) {
	hash, raw, err := model.Encode(obj.TypeTag(), obj)
	if err != nil {
		return model.Hash{}, err
	}

	var alreadyExists bool
	err = s.db.Update(func(txn *badger.Txn) error {
		_, getErr := txn.Get(objectKey(hash))
		if getErr == nil {
			alreadyExists = true
			return nil
		}
		if getErr != badger.ErrKeyNotFound {
			return getErr
		}
		if err := txn.Set(objectKey(hash), raw); err != nil {
			return err
		}
		return s.indexReverseRefs(txn, hash, obj)
	})
	if err != nil {
		return model.Hash{}, fmt.Errorf("objectstore: put unversioned %s: %w", obj.TypeTag(), err)
	}
	s.trackSegmentGrowth(int64(len(raw)))

	if !alreadyExists {
		s.events.Publish(Event{Kind: EventNewUnversioned, Hash: hash, Type: obj.TypeTag()})
	}
	return hash, nil
}

// PutVersioned computes the identity hash from obj's declared id
// fields, appends a new version record, advances the head index, and
// emits EventNewVersion. Writes on a single identity are totally
// ordered by the per-identity lock (spec.md §5).
func (s *Store) PutVersioned(ctx context.Context, obj model.Versioned) (model.Hash, model.Hash, error) {
	idHash, err := identityHash(obj)
	if err != nil {
		return model.Hash{}, model.Hash{}, err
	}
	versionHash, raw, err := model.Encode(obj.TypeTag(), obj)
	if err != nil {
		return model.Hash{}, model.Hash{}, err
	}

	lock := s.lockFor(idHash)
	lock.Lock()
	defer lock.Unlock()

	var alreadyExists bool
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, getErr := txn.Get(objectKey(versionHash)); getErr == nil {
			alreadyExists = true
		} else if getErr != badger.ErrKeyNotFound {
			return getErr
		} else {
			if err := txn.Set(objectKey(versionHash), raw); err != nil {
				return err
			}
			if err := s.indexReverseRefs(txn, versionHash, obj); err != nil {
				return err
			}
		}
		seq, err := s.nextVersionSeq(txn, idHash)
		if err != nil {
			return err
		}
		if err := txn.Set(versionKey(idHash, seq), versionHash[:]); err != nil {
			return err
		}
		return txn.Set(headKey(idHash), versionHash[:])
	})
	if err != nil {
		return model.Hash{}, model.Hash{}, fmt.Errorf("objectstore: put versioned %s: %w", obj.TypeTag(), err)
	}
	s.trackSegmentGrowth(int64(len(raw)))

	if !alreadyExists {
		s.events.Publish(Event{Kind: EventNewVersion, Hash: versionHash, IDHash: idHash, Type: obj.TypeTag()})
	}
	return idHash, versionHash, nil
}

func (s *Store) nextVersionSeq(txn *badger.Txn, idHash model.Hash) (uint64, error) {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	var count uint64
	prefix := versionPrefix(idHash)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		count++
	}
	return count, nil
}

// identityHash hashes a versioned object's declared id fields only
// (spec.md §3: "identity hash is stable across all versions").
func identityHash(obj model.Versioned) (model.Hash, error) {
	raw, err := model.CanonicalJSON(struct {
		Type model.TypeTag `json:"$type$"`
		ID   map[string]any `json:"id"`
	}{Type: obj.TypeTag(), ID: obj.IDFields()})
	if err != nil {
		return model.Hash{}, fmt.Errorf("objectstore: identity hash: %w", err)
	}
	return model.HashBytes(raw), nil
}

// Get retrieves an object by its content hash.
func (s *Store) Get(ctx context.Context, hash model.Hash) (model.Envelope, error) {
	var env model.Envelope
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(objectKey(hash))
		if err == badger.ErrKeyNotFound {
			return corerrors.Wrap("objectstore.get", corerrors.NotFound, nil)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, decErr := model.DecodeEnvelope(val)
			if decErr != nil {
				return decErr
			}
			env = decoded
			return nil
		})
	})
	return env, err
}

// HeadOf resolves the current version hash for a versioned identity.
func (s *Store) HeadOf(ctx context.Context, idHash model.Hash) (model.Hash, error) {
	var head model.Hash
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(headKey(idHash))
		if err == badger.ErrKeyNotFound {
			return corerrors.Wrap("objectstore.headof", corerrors.NotFound, nil)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			copy(head[:], val)
			return nil
		})
	})
	return head, err
}

// ReverseRefs returns every stored object hash that contains
// `referenced` as an embedded field value.
func (s *Store) ReverseRefs(ctx context.Context, referenced model.Hash) ([]model.Hash, error) {
	var out []model.Hash
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := reversePrefix(referenced)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			var referencing model.Hash
			copy(referencing[:], key[len(prefix):])
			out = append(out, referencing)
		}
		return nil
	})
	return out, err
}

// EntriesReferencingLatest returns ReverseRefs of the current head
// version of idHash's identity line. The referencing objects are not
// filtered by whether they are themselves head versions.
func (s *Store) EntriesReferencingLatest(ctx context.Context, idHash model.Hash) ([]model.Hash, error) {
	head, err := s.HeadOf(ctx, idHash)
	if err != nil {
		return nil, err
	}
	return s.ReverseRefs(ctx, head)
}

// ForEachOfType walks the current-version head index and invokes fn
// for every identity whose head envelope carries tag, passing its
// identity hash and decoded value. Used by the analysis engine to
// scan candidate Subjects across all topics (spec.md §4.G).
func (s *Store) ForEachOfType(ctx context.Context, tag model.TypeTag, fn func(idHash model.Hash, value any) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(prefixHead)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			var idHash model.Hash
			copy(idHash[:], key[len(prefix):])

			var versionHash model.Hash
			if err := it.Item().Value(func(val []byte) error {
				copy(versionHash[:], val)
				return nil
			}); err != nil {
				return err
			}

			item, err := txn.Get(objectKey(versionHash))
			if err != nil {
				return err
			}
			if err := item.Value(func(val []byte) error {
				env, err := model.DecodeEnvelope(val)
				if err != nil {
					return err
				}
				if env.Type != tag {
					return nil
				}
				value, err := model.DecodeValue(env.Type, env.Value)
				if err != nil {
					return err
				}
				return fn(idHash, value)
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// indexReverseRefs scans obj for embedded hashes and appends inverted
// index records (spec.md §4.A algorithm).
func (s *Store) indexReverseRefs(txn *badger.Txn, referencing model.Hash, obj any) error {
	for _, referenced := range model.ExtractHashes(obj) {
		if err := txn.Set(reverseKey(referenced, referencing), []byte{1}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) trackSegmentGrowth(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segmentBytes += n
	if s.segmentBytes >= SegmentSizeBytes {
		s.segmentBytes = 0
		s.segmentID++
		_ = s.db.Update(func(txn *badger.Txn) error {
			return txn.Set(segmentChecksumKey(s.segmentID), []byte{1})
		})
	}
}

// TempDir creates a temp directory for tests, mirroring the teacher's
// badger test helper.
func TempDir(prefix string) (string, error) {
	return os.MkdirTemp("", prefix)
}

// SealedSegmentID returns the identifier of the most recently sealed
// segment, i.e. the number of full SegmentSizeBytes chunks written
// over the store's lifetime (recover restores the count from the
// persisted segment markers on Open). internal/backup polls this to learn
// when a new segment is ready to export.
func (s *Store) SealedSegmentID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.segmentID
}

// Backup streams every record with a Badger version greater than
// since into w, returning the version to pass as since on the next
// call. It wraps badger.DB.Backup directly: a segment in spec.md §6's
// sense is not a physically separate file, so internal/backup treats
// each (since, returned-version) delta as one segment's worth of
// bytes to ship.
func (s *Store) Backup(ctx context.Context, w io.Writer, since uint64) (uint64, error) {
	next, err := s.db.Backup(w, since)
	if err != nil {
		return since, fmt.Errorf("objectstore: backup: %w", err)
	}
	return next, nil
}

