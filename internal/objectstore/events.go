// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package objectstore

import (
	"sync"

	"github.com/kittwire/core/internal/model"
)

// EventKind distinguishes the two events the store emits.
type EventKind string

const (
	EventNewUnversioned EventKind = "new_unversioned"
	EventNewVersion     EventKind = "new_version"
)

// Event is published after the corresponding write, and only once
// the reverse-map update for that write is visible (spec.md §5:
// "Reverse-map updates are visible before the new_* event fires").
type Event struct {
	Kind    EventKind
	Hash    model.Hash // content hash of the new object
	IDHash  model.Hash // zero for unversioned
	Type    model.TypeTag
}

// bus is a typed broadcast channel: every subscriber gets its own
// bounded queue; a slow consumer drops the oldest pending event
// rather than blocking the writer (spec.md §9 "Async-await patterns ->
// explicit task model").
type bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func newBus() *bus {
	return &bus{subs: make(map[int]chan Event)}
}

const subscriberQueueDepth = 256

// Subscribe returns a channel of future events and a cancel function.
func (b *bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Event, subscriberQueueDepth)
	b.subs[id] = ch
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

func (b *bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// drop oldest, then push newest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}
