// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package topic implements spec.md §4.F: deterministic topic
// identifiers, per-owner channel write rules, and the time-ordered
// merge read across all of a topic's channels.
package topic

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kittwire/core/internal/corerrors"
	"github.com/kittwire/core/internal/model"
	"github.com/kittwire/core/internal/objectstore"
)

// TwoPartyTopicID derives the deterministic shared topic identifier
// for a 2-party conversation (spec.md §4.F): the lexicographically
// smaller person hash, "<->", then the larger one.
func TwoPartyTopicID(personA, personB model.Hash) string {
	a, b := personA, personB
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return a.String() + "<->" + b.String()
}

var slugNonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify normalizes a human-chosen conversation name into a
// lowercase, hyphenated identifier (spec.md §4.F deterministic IDs).
func Slugify(name string) string {
	lower := strings.ToLower(name)
	slug := slugNonAlnum.ReplaceAllString(lower, "-")
	return strings.Trim(slug, "-")
}

// Fabric exposes the topic/channel operations over an Object Store.
type Fabric struct {
	store *objectstore.Store
}

// New builds a Fabric over store.
func New(store *objectstore.Store) *Fabric {
	return &Fabric{store: store}
}

// CreateTwoPartyTopic creates (or returns the existing) shared,
// ownerless topic and channel for exactly two participants, granting
// both of them IdAccess to the channel and the Topic object itself
// (spec.md §4.F: "Access is granted to both persons individually on
// the channel and on the Topic object").
func (f *Fabric) CreateTwoPartyTopic(ctx context.Context, personA, personB model.Hash) (model.Hash, error) {
	topicID := TwoPartyTopicID(personA, personB)

	channel := model.Channel{TopicID: topicID} // OwnerPerson left zero: no owner
	channelIDHash, _, err := f.store.PutVersioned(ctx, channel)
	if err != nil {
		return model.Hash{}, fmt.Errorf("topic: create shared channel: %w", err)
	}

	t := model.Topic{TopicID: topicID, Name: topicID, Channels: []model.Hash{channelIDHash}}
	idHash, _, err := f.store.PutVersioned(ctx, t)
	if err != nil {
		return model.Hash{}, fmt.Errorf("topic: create topic: %w", err)
	}

	parties := []model.Hash{personA, personB}
	if err := f.grantIdAccess(ctx, channelIDHash, parties); err != nil {
		return model.Hash{}, err
	}
	if err := f.grantIdAccess(ctx, idHash, parties); err != nil {
		return model.Hash{}, err
	}
	return idHash, nil
}

// grantIdAccess persists an IdAccess record granting persons the
// right to receive every version of the identity line idHash.
func (f *Fabric) grantIdAccess(ctx context.Context, idHash model.Hash, persons []model.Hash) error {
	grant := model.IdAccess{Target: idHash, GranteePersons: persons}
	if _, err := f.store.PutUnversioned(ctx, grant); err != nil {
		return fmt.Errorf("topic: grant access: %w", err)
	}
	return nil
}

// grantGroupIdAccess persists an IdAccess record granting a group the
// right to receive every version of the identity line idHash.
func (f *Fabric) grantGroupIdAccess(ctx context.Context, idHash, groupHash model.Hash) error {
	grant := model.IdAccess{Target: idHash, GranteeGroups: []model.Hash{groupHash}}
	if _, err := f.store.PutUnversioned(ctx, grant); err != nil {
		return fmt.Errorf("topic: grant group access: %w", err)
	}
	return nil
}

// CreateNPartyTopic creates one channel per participant, all sharing
// topicID, plus a local Group listing every participant (spec.md
// §4.F: "N channels with the same topicId, each owned by one
// participant... Access to each channel is granted to the group
// hash"). The Group object itself is local-only and never granted
// (spec.md §4.A: "Group objects never traverse a session").
func (f *Fabric) CreateNPartyTopic(ctx context.Context, name string, participants []model.Hash) (model.Hash, model.Hash, error) {
	topicID := f.uniqueSlug(ctx, Slugify(name))

	group := model.Group{Members: participants}
	groupHash, err := f.store.PutUnversioned(ctx, group)
	if err != nil {
		return model.Hash{}, model.Hash{}, fmt.Errorf("topic: create participant group: %w", err)
	}

	var channelHashes []model.Hash
	for _, owner := range participants {
		channel := model.Channel{TopicID: topicID, OwnerPerson: owner}
		channelIDHash, _, err := f.store.PutVersioned(ctx, channel)
		if err != nil {
			return model.Hash{}, model.Hash{}, fmt.Errorf("topic: create owned channel: %w", err)
		}
		channelHashes = append(channelHashes, channelIDHash)
		if err := f.grantGroupIdAccess(ctx, channelIDHash, groupHash); err != nil {
			return model.Hash{}, model.Hash{}, err
		}
	}

	t := model.Topic{TopicID: topicID, Name: name, Channels: channelHashes}
	topicIDHash, _, err := f.store.PutVersioned(ctx, t)
	if err != nil {
		return model.Hash{}, model.Hash{}, fmt.Errorf("topic: create topic: %w", err)
	}
	if err := f.grantGroupIdAccess(ctx, topicIDHash, groupHash); err != nil {
		return model.Hash{}, model.Hash{}, err
	}
	return topicIDHash, groupHash, nil
}

// uniqueSlug appends "-2", "-3", ... until base doesn't collide with
// an existing local Topic identity hash.
func (f *Fabric) uniqueSlug(ctx context.Context, base string) string {
	candidate := base
	for n := 2; ; n++ {
		idHash, err := identityHashOf(model.Topic{TopicID: candidate})
		if err != nil {
			return candidate
		}
		if _, err := f.store.HeadOf(ctx, idHash); err != nil {
			return candidate // no existing topic at this id
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
}

// ChannelID derives the identity hash of the channel owner would
// write to within topicID: their own owned channel in an N-party
// topic, or the shared ownerless channel of a 2-party topic when
// owner passed is the zero hash. Callers resolve this once per send
// and pass the result to Append.
func (f *Fabric) ChannelID(topicID string, owner model.Hash) (model.Hash, error) {
	return identityHashOf(model.Channel{TopicID: topicID, OwnerPerson: owner})
}

// Exists reports whether topicID has a locally known Topic record,
// the precondition the query surface checks before returning
// UnknownTopic.
func (f *Fabric) Exists(ctx context.Context, topicID string) bool {
	idHash, err := identityHashOf(model.Topic{TopicID: topicID})
	if err != nil {
		return false
	}
	_, err = f.store.HeadOf(ctx, idHash)
	return err == nil
}

// loadChannel resolves channelIDHash's current Channel value.
func (f *Fabric) loadChannel(ctx context.Context, channelIDHash model.Hash) (model.Channel, error) {
	headVersionHash, err := f.store.HeadOf(ctx, channelIDHash)
	if err != nil {
		return model.Channel{}, fmt.Errorf("topic: resolve channel head: %w", err)
	}
	env, err := f.store.Get(ctx, headVersionHash)
	if err != nil {
		return model.Channel{}, fmt.Errorf("topic: load channel: %w", err)
	}
	value, err := model.DecodeValue(env.Type, env.Value)
	if err != nil {
		return model.Channel{}, err
	}
	channel, ok := value.(model.Channel)
	if !ok {
		return model.Channel{}, fmt.Errorf("topic: %s is not a Channel", channelIDHash)
	}
	return channel, nil
}

// loadTopic resolves topicID's current Topic value.
func (f *Fabric) loadTopic(ctx context.Context, topicID string) (model.Topic, error) {
	idHash, err := identityHashOf(model.Topic{TopicID: topicID})
	if err != nil {
		return model.Topic{}, err
	}
	versionHash, err := f.store.HeadOf(ctx, idHash)
	if err != nil {
		return model.Topic{}, corerrors.Wrap("topic.load", corerrors.UnknownTopic, err)
	}
	env, err := f.store.Get(ctx, versionHash)
	if err != nil {
		return model.Topic{}, err
	}
	value, err := model.DecodeValue(env.Type, env.Value)
	if err != nil {
		return model.Topic{}, err
	}
	t, ok := value.(model.Topic)
	if !ok {
		return model.Topic{}, fmt.Errorf("topic: %s is not a Topic", idHash)
	}
	return t, nil
}

// splitTwoPartyTopicID reverses TwoPartyTopicID, recognizing the
// "<->"-joined form and rejecting N-party slugs.
func splitTwoPartyTopicID(topicID string) (model.Hash, model.Hash, bool) {
	parts := strings.SplitN(topicID, "<->", 2)
	if len(parts) != 2 {
		return model.Hash{}, model.Hash{}, false
	}
	a, errA := model.ParseHash(parts[0])
	b, errB := model.ParseHash(parts[1])
	if errA != nil || errB != nil {
		return model.Hash{}, model.Hash{}, false
	}
	return a, b, true
}

// Participants returns the owning person of every channel in topicID,
// or both parties of a 2-party topic whose shared channel has no
// single owner (spec.md §6 list_topics participant field).
func (f *Fabric) Participants(ctx context.Context, topicID string) ([]model.Hash, error) {
	if a, b, ok := splitTwoPartyTopicID(topicID); ok {
		return []model.Hash{a, b}, nil
	}
	t, err := f.loadTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}
	var out []model.Hash
	for _, channelIDHash := range t.Channels {
		channel, err := f.loadChannel(ctx, channelIDHash)
		if err != nil {
			continue
		}
		if !channel.OwnerPerson.IsZero() {
			out = append(out, channel.OwnerPerson)
		}
	}
	return out, nil
}

// ChannelFor resolves the channel author may write a new message to
// within topicID: their own owned channel in an N-party topic, or the
// shared channel of a 2-party topic. Returns NotAuthor if author owns
// none of topicID's channels.
func (f *Fabric) ChannelFor(ctx context.Context, topicID string, author model.Hash) (model.Hash, error) {
	t, err := f.loadTopic(ctx, topicID)
	if err != nil {
		return model.Hash{}, err
	}
	for _, channelIDHash := range t.Channels {
		channel, err := f.loadChannel(ctx, channelIDHash)
		if err != nil {
			continue
		}
		if channel.OwnerPerson.IsZero() || channel.OwnerPerson == author {
			return channelIDHash, nil
		}
	}
	return model.Hash{}, corerrors.Wrap("topic.channelFor", corerrors.NotAuthor, nil)
}

// Append adds a new entry to the channel owned by author (or the
// shared 2-party channel, where OwnerPerson is zero). Returns
// NotAuthor if author does not own channelIDHash's channel.
func (f *Fabric) Append(ctx context.Context, channelIDHash model.Hash, author model.Hash, payload model.Hash) (model.Hash, error) {
	channel, err := f.loadChannel(ctx, channelIDHash)
	if err != nil {
		return model.Hash{}, err
	}
	if !channel.OwnerPerson.IsZero() && channel.OwnerPerson != author {
		return model.Hash{}, corerrors.Wrap("topic.append", corerrors.NotAuthor, nil)
	}

	entry := model.ChannelEntry{
		Payload:   payload,
		Previous:  channel.Head,
		Author:    author,
		Timestamp: time.Now().UTC(),
	}
	entryHash, err := f.store.PutUnversioned(ctx, entry)
	if err != nil {
		return model.Hash{}, fmt.Errorf("topic: persist channel entry: %w", err)
	}

	channel.Head = entryHash
	if _, _, err := f.store.PutVersioned(ctx, channel); err != nil {
		return model.Hash{}, fmt.Errorf("topic: advance channel head: %w", err)
	}
	return entryHash, nil
}

// ReadTopic returns every ChannelEntry across all channels sharing
// topicID, merged in time order with author-hash tiebreak (spec.md
// §4.F read rule).
func (f *Fabric) ReadTopic(ctx context.Context, topicID string) ([]model.ChannelEntry, error) {
	t, err := f.loadTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}

	var entries []model.ChannelEntry
	for _, channelIDHash := range t.Channels {
		chain, err := f.readChannelChain(ctx, channelIDHash)
		if err != nil {
			continue // a channel we don't yet have locally simply contributes nothing
		}
		entries = append(entries, chain...)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		}
		return bytes.Compare(entries[i].Author[:], entries[j].Author[:]) < 0
	})
	return entries, nil
}

func (f *Fabric) readChannelChain(ctx context.Context, channelIDHash model.Hash) ([]model.ChannelEntry, error) {
	versionHash, err := f.store.HeadOf(ctx, channelIDHash)
	if err != nil {
		return nil, err
	}
	env, err := f.store.Get(ctx, versionHash)
	if err != nil {
		return nil, err
	}
	value, err := model.DecodeValue(env.Type, env.Value)
	if err != nil {
		return nil, err
	}
	channel, ok := value.(model.Channel)
	if !ok {
		return nil, fmt.Errorf("topic: %s is not a Channel", channelIDHash)
	}

	var out []model.ChannelEntry
	cursor := channel.Head
	for !cursor.IsZero() {
		entryEnv, err := f.store.Get(ctx, cursor)
		if err != nil {
			break // the chain continues beyond what we've synced; stop here
		}
		entryValue, err := model.DecodeValue(entryEnv.Type, entryEnv.Value)
		if err != nil {
			break
		}
		entry, ok := entryValue.(model.ChannelEntry)
		if !ok {
			break
		}
		out = append(out, entry)
		cursor = entry.Previous
	}
	return out, nil
}

func identityHashOf(v model.Versioned) (model.Hash, error) {
	raw, err := model.CanonicalJSON(struct {
		Type model.TypeTag  `json:"$type$"`
		ID   map[string]any `json:"id"`
	}{Type: v.TypeTag(), ID: v.IDFields()})
	if err != nil {
		return model.Hash{}, fmt.Errorf("topic: identity hash: %w", err)
	}
	return model.HashBytes(raw), nil
}
