// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package access implements spec.md §4.B: the transitive Access
// Resolver that computes, for a given remote identity, the complete
// set of object hashes that identity may receive over a session.
package access

import (
	"context"
	"sync"

	"github.com/kittwire/core/internal/corerrors"
	"github.com/kittwire/core/internal/model"
	"github.com/kittwire/core/internal/objectstore"
	"github.com/kittwire/core/pkg/logging"
)

// Resolver maintains an incrementally-updated accessible set per
// person, computing transitive closure by following each object's
// embedded hash references (model.ExtractHashes) and using the
// store's event bus for incremental recomputation (spec.md §4.B:
// "the resolver MUST be incremental").
type Resolver struct {
	store *objectstore.Store
	log   *logging.Logger

	mu          sync.RWMutex
	accessible  map[model.Hash]map[model.Hash]bool // personHash -> accessible hash set
	groupsOf    map[model.Hash]map[model.Hash]bool // personHash -> group hashes they belong to
	idGrantees  map[model.Hash]map[model.Hash]bool // identity hash -> grantee persons (IdAccess only)
	lastGrantee map[model.Hash]map[model.Hash]bool // content hash -> persons named by the most recent Access record targeting it

	cancelSub func()
}

// New builds a Resolver and starts its background listener on store's
// event bus. Call Close to stop the listener.
func New(store *objectstore.Store, log *logging.Logger) *Resolver {
	r := &Resolver{
		store:       store,
		log:         log,
		accessible:  make(map[model.Hash]map[model.Hash]bool),
		groupsOf:    make(map[model.Hash]map[model.Hash]bool),
		idGrantees:  make(map[model.Hash]map[model.Hash]bool),
		lastGrantee: make(map[model.Hash]map[model.Hash]bool),
	}
	ch, cancel := store.Subscribe()
	r.cancelSub = cancel
	go r.consume(ch)
	return r
}

// Close stops the background event listener.
func (r *Resolver) Close() {
	r.cancelSub()
}

// consume reacts to new Access/IdAccess/Group writes by folding their
// effect into the cached accessible sets, instead of recomputing from
// scratch on every new object (spec.md §4.B incrementality).
func (r *Resolver) consume(ch <-chan objectstore.Event) {
	for ev := range ch {
		switch ev.Type {
		case model.TypeAccess:
			r.onAccessEvent(ev, false)
		case model.TypeIdAccess:
			r.onAccessEvent(ev, true)
		case model.TypeGroup:
			// Group membership changes don't retroactively grant
			// access to hashes recorded before the membership
			// existed; new Access records referencing the group are
			// handled by onAccessEvent when they arrive.
		default:
			if ev.Kind == objectstore.EventNewVersion {
				r.onIdentityAdvanced(ev.IDHash)
			}
		}
	}
}

// onIdentityAdvanced re-grants every IdAccess recorded against idHash
// to its grantees, following the identity's new head: an IdAccess
// tracks "this identity line", so each new version (spec.md §4.B's
// "Access to each channel is granted to the group hash" for an N-party
// channel whose head keeps moving) stays reachable without a fresh
// Access record per append.
func (r *Resolver) onIdentityAdvanced(idHash model.Hash) {
	r.mu.RLock()
	grantees, ok := r.idGrantees[idHash]
	if !ok {
		r.mu.RUnlock()
		return
	}
	persons := make([]model.Hash, 0, len(grantees))
	for p := range grantees {
		persons = append(persons, p)
	}
	r.mu.RUnlock()

	head, err := r.store.HeadOf(context.Background(), idHash)
	if err != nil {
		return
	}
	closure := r.transitiveClosure(head)

	r.mu.Lock()
	for _, person := range persons {
		set, ok := r.accessible[person]
		if !ok {
			set = make(map[model.Hash]bool)
			r.accessible[person] = set
		}
		for h := range closure {
			set[h] = true
		}
	}
	r.mu.Unlock()
}

func (r *Resolver) onAccessEvent(ev objectstore.Event, isIdAccess bool) {
	env, err := r.store.Get(context.Background(), ev.Hash)
	if err != nil {
		r.log.Warn("access: failed to load new access record", "hash", ev.Hash.String(), "err", err)
		return
	}
	value, err := model.DecodeValue(env.Type, env.Value)
	if err != nil {
		r.log.Warn("access: failed to decode new access record", "hash", ev.Hash.String(), "err", err)
		return
	}

	var target model.Hash
	var persons, groups []model.Hash
	switch v := value.(type) {
	case model.Access:
		target, persons, groups = v.Target, v.GranteePersons, v.GranteeGroups
	case model.IdAccess:
		target, persons, groups = v.Target, v.GranteePersons, v.GranteeGroups
	default:
		return
	}

	grantees := make(map[model.Hash]bool)
	for _, p := range persons {
		grantees[p] = true
	}
	for _, g := range groups {
		members, err := r.groupMembers(g)
		if err != nil {
			r.log.Warn("access: failed to resolve group membership", "group", g.String(), "err", err)
			continue
		}
		for _, m := range members {
			grantees[m] = true
		}
	}

	// A later Access record for the same target hash supersedes the
	// previous one's grantee list (spec.md §8 S3: "Alice persists a
	// new Access record excluding Bob... a new session to Bob omits h
	// from accessible_hashes"). Access records are otherwise additive
	// and idempotent (spec.md §9), so this only narrows exactly
	// target for persons the new record drops — it never deletes
	// Bob's already-synced copy, and it never walks back through the
	// rest of the closure target may have contributed.
	if !isIdAccess {
		r.mu.Lock()
		previous := r.lastGrantee[target]
		for person := range previous {
			if !grantees[person] {
				if set, ok := r.accessible[person]; ok {
					delete(set, target)
				}
			}
		}
		r.lastGrantee[target] = grantees
		r.mu.Unlock()
	}

	// target is a content hash for Access, and an identity hash for
	// IdAccess (spec.md §3); resolve to the identity's current head
	// before walking the closure, and remember the grant so future
	// head advances re-extend it (onIdentityAdvanced).
	closureRoot := target
	if isIdAccess {
		r.mu.Lock()
		set, ok := r.idGrantees[target]
		if !ok {
			set = make(map[model.Hash]bool)
			r.idGrantees[target] = set
		}
		for person := range grantees {
			set[person] = true
		}
		r.mu.Unlock()

		head, err := r.store.HeadOf(context.Background(), target)
		if err != nil {
			return // identity not seen locally yet; onIdentityAdvanced picks it up once it is
		}
		closureRoot = head
	}

	closure := r.transitiveClosure(closureRoot)

	r.mu.Lock()
	for person := range grantees {
		set, ok := r.accessible[person]
		if !ok {
			set = make(map[model.Hash]bool)
			r.accessible[person] = set
		}
		for h := range closure {
			set[h] = true
		}
	}
	r.mu.Unlock()
}

func (r *Resolver) groupMembers(groupHash model.Hash) ([]model.Hash, error) {
	env, err := r.store.Get(context.Background(), groupHash)
	if err != nil {
		return nil, err
	}
	value, err := model.DecodeValue(env.Type, env.Value)
	if err != nil {
		return nil, err
	}
	g, ok := value.(model.Group)
	if !ok {
		return nil, nil
	}
	return g.Members, nil
}

// transitiveClosure walks target and every hash reachable from it
// through embedded field references, excluding local-only types
// (spec.md §4.B steps 3-5).
func (r *Resolver) transitiveClosure(target model.Hash) map[model.Hash]bool {
	closure := make(map[model.Hash]bool)
	queue := []model.Hash{target}

	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if closure[h] {
			continue
		}

		env, err := r.store.Get(context.Background(), h)
		if err != nil {
			if kind, ok := corerrors.KindOf(err); !ok || kind != corerrors.NotFound {
				r.log.Warn("access: error resolving closure member", "hash", h.String(), "err", err)
			}
			continue
		}
		if model.IsLocalOnly(env.Type) {
			continue
		}
		closure[h] = true

		value, err := model.DecodeValue(env.Type, env.Value)
		if err != nil {
			r.log.Warn("access: error decoding closure member", "hash", h.String(), "err", err)
			continue
		}
		for _, next := range model.ExtractHashes(value) {
			if !closure[next] {
				queue = append(queue, next)
			}
		}
	}
	return closure
}

// AccessibleHashes returns the complete set of hashes forPerson may
// receive over a session (spec.md §4.B contract).
func (r *Resolver) AccessibleHashes(ctx context.Context, forPerson model.Hash) (map[model.Hash]bool, error) {
	r.mu.RLock()
	set, ok := r.accessible[forPerson]
	if !ok {
		r.mu.RUnlock()
		return map[model.Hash]bool{}, nil
	}
	out := make(map[model.Hash]bool, len(set))
	for h := range set {
		out[h] = true
	}
	r.mu.RUnlock()
	return out, nil
}

// IsAccessible reports whether forPerson may receive hash.
func (r *Resolver) IsAccessible(forPerson, hash model.Hash) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.accessible[forPerson]
	if !ok {
		return false
	}
	return set[hash]
}
