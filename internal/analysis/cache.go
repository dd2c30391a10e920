// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheEntry struct {
	proposals []Proposal
	expiresAt time.Time
}

// ProposalCache is the LRU(50)/60s cache from spec.md §4.G, keyed by
// (topicId, sorted current subject ids). Dismissals are intentionally
// NOT modeled here: they are session-scoped UI state, out of this
// package's concern.
type ProposalCache struct {
	mu  sync.Mutex
	lru *lru.Cache[string, cacheEntry]
	ttl time.Duration
}

// NewProposalCache builds a ProposalCache with the given LRU capacity
// and per-entry TTL.
func NewProposalCache(capacity int, ttl time.Duration) *ProposalCache {
	c, err := lru.New[string, cacheEntry](capacity)
	if err != nil {
		// Only returns an error for capacity <= 0, which never happens
		// with the constants this package passes.
		panic(err)
	}
	return &ProposalCache{lru: c, ttl: ttl}
}

// Get returns the cached proposals for key if present and not expired.
func (c *ProposalCache) Get(key string) ([]Proposal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.lru.Remove(key)
		return nil, false
	}
	return entry.proposals, true
}

// Put stores proposals under key with a fresh TTL.
func (c *ProposalCache) Put(key string, proposals []Proposal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, cacheEntry{proposals: proposals, expiresAt: time.Now().Add(c.ttl)})
}

// Clear empties the cache. Called on every ProposalConfig write.
func (c *ProposalCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}
