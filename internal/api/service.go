// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package api implements spec.md §6: the query surface the HTTP and
// RPC facades, and the TUI client, all drive. Service holds no
// transport concerns of its own — it is plain Go methods over the
// sync/messaging engine's collaborators.
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/kittwire/core/internal/access"
	"github.com/kittwire/core/internal/analysis"
	"github.com/kittwire/core/internal/corerrors"
	"github.com/kittwire/core/internal/model"
	"github.com/kittwire/core/internal/objectstore"
	"github.com/kittwire/core/internal/pairing"
	"github.com/kittwire/core/internal/topic"
	"github.com/kittwire/core/internal/worker"
	"github.com/kittwire/core/pkg/logging"
)

// loadConcurrency bounds how many ChatMessage loads RetrieveMessages
// runs at once; each load is an independent object-store fetch plus
// decode, the per-entry work spec.md §5 assigns to the worker pool.
const loadConcurrency = 8

// Service is the single entry point for spec.md §6's query surface.
// Its methods are safe for concurrent use by multiple HTTP/RPC
// handlers.
type Service struct {
	store    *objectstore.Store
	fabric   *topic.Fabric
	invites  *pairing.Registry
	analysis *analysis.Engine
	access   *access.Resolver
	pool     *worker.Pool
	log      *logging.Logger

	self model.Hash // local Person identity; zero until authenticated
}

// New builds a Service. self is the identity hash of the Person this
// instance acts on behalf of, set once at startup after keychain
// loading; pass the zero hash if no identity has been provisioned
// yet, in which case every operation requiring authentication returns
// NotAuthenticated.
func New(store *objectstore.Store, fabric *topic.Fabric, invites *pairing.Registry, engine *analysis.Engine, resolver *access.Resolver, self model.Hash, log *logging.Logger) *Service {
	return &Service{
		store:    store,
		fabric:   fabric,
		invites:  invites,
		analysis: engine,
		access:   resolver,
		pool:     worker.New(loadConcurrency),
		self:     self,
		log:      log,
	}
}

// SetSelf records the local identity once pairing/keychain setup
// resolves it. Called at most once in normal operation.
func (s *Service) SetSelf(self model.Hash) {
	s.self = self
}

func (s *Service) requireAuthenticated(op string) error {
	if s.self.IsZero() {
		return corerrors.Wrap(op, corerrors.NotAuthenticated, nil)
	}
	return nil
}

// Contact is the get_contacts view over one address-book entry
// (spec.md §6: "list of Someone+Profile views").
type Contact struct {
	SomeoneHash model.Hash
	PersonHash  model.Hash
	Nickname    string
	Description []string
}

// GetContacts implements the get_contacts query (spec.md §6).
func (s *Service) GetContacts(ctx context.Context) ([]Contact, error) {
	if err := s.requireAuthenticated("api.getContacts"); err != nil {
		return nil, err
	}

	var out []Contact
	err := s.store.ForEachOfType(ctx, model.TypeSomeone, func(idHash model.Hash, value any) error {
		someone, ok := value.(model.Someone)
		if !ok || someone.MainProfile.IsZero() {
			return nil
		}
		profile, err := s.loadProfile(ctx, someone.MainProfile)
		if err != nil {
			s.log.Warn("api: skipping contact with unreadable profile", "someone", idHash.String(), "err", err)
			return nil
		}
		out = append(out, Contact{
			SomeoneHash: idHash,
			PersonHash:  profile.PersonRef,
			Nickname:    profile.Nickname,
			Description: profile.Description,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("api: get contacts: %w", err)
	}
	return out, nil
}

func (s *Service) loadProfile(ctx context.Context, profileIDHash model.Hash) (model.Profile, error) {
	versionHash, err := s.store.HeadOf(ctx, profileIDHash)
	if err != nil {
		return model.Profile{}, err
	}
	env, err := s.store.Get(ctx, versionHash)
	if err != nil {
		return model.Profile{}, err
	}
	value, err := model.DecodeValue(env.Type, env.Value)
	if err != nil {
		return model.Profile{}, err
	}
	profile, ok := value.(model.Profile)
	if !ok {
		return model.Profile{}, fmt.Errorf("api: %s is not a Profile", profileIDHash)
	}
	return profile, nil
}

// TopicListItem is the list_topics view over one locally-known topic
// (spec.md §6: "list of (topicId, participants, lastMessage)").
type TopicListItem struct {
	TopicID      string
	Participants []model.Hash
	LastMessage  *Message
}

// ListTopics implements the list_topics query (spec.md §6).
func (s *Service) ListTopics(ctx context.Context) ([]TopicListItem, error) {
	if err := s.requireAuthenticated("api.listTopics"); err != nil {
		return nil, err
	}

	var out []TopicListItem
	err := s.store.ForEachOfType(ctx, model.TypeTopic, func(_ model.Hash, value any) error {
		t, ok := value.(model.Topic)
		if !ok {
			return nil
		}
		item := TopicListItem{TopicID: t.TopicID}
		if participants, err := s.fabric.Participants(ctx, t.TopicID); err == nil {
			item.Participants = participants
		}
		if last, ok := s.lastMessageOf(ctx, t.TopicID); ok {
			item.LastMessage = &last
		}
		out = append(out, item)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("api: list topics: %w", err)
	}
	return out, nil
}

func (s *Service) lastMessageOf(ctx context.Context, topicID string) (Message, bool) {
	entries, err := s.fabric.ReadTopic(ctx, topicID)
	if err != nil || len(entries) == 0 {
		return Message{}, false
	}
	last := entries[len(entries)-1]
	msg, err := s.loadChatMessage(ctx, last.Payload)
	if err != nil {
		return Message{}, false
	}
	return Message{
		Hash:        last.Payload,
		Author:      msg.Author,
		Text:        msg.Text,
		Attachments: msg.Attachments,
		Timestamp:   last.Timestamp,
	}, true
}

// Message is the retrieve_messages view over one ChannelEntry+
// ChatMessage pair (spec.md §6 "ordered messages").
type Message struct {
	Hash        model.Hash
	Author      model.Hash
	Text        string
	Attachments []model.Hash
	Timestamp   time.Time
}

func (s *Service) loadChatMessage(ctx context.Context, payloadHash model.Hash) (model.ChatMessage, error) {
	env, err := s.store.Get(ctx, payloadHash)
	if err != nil {
		return model.ChatMessage{}, err
	}
	value, err := model.DecodeValue(env.Type, env.Value)
	if err != nil {
		return model.ChatMessage{}, err
	}
	msg, ok := value.(model.ChatMessage)
	if !ok {
		return model.ChatMessage{}, fmt.Errorf("api: %s is not a ChatMessage", payloadHash)
	}
	return msg, nil
}

// SendMessage implements the send_message query-surface operation
// (spec.md §6), writing text (plus optional attachment hashes) to the
// caller's channel within topicID and running post-message analysis.
// Returns UnknownTopic if topicID has no local Topic record, NotAuthor
// if the caller owns no channel within it.
func (s *Service) SendMessage(ctx context.Context, topicID string, text string, attachments []model.Hash) (model.Hash, error) {
	if err := s.requireAuthenticated("api.sendMessage"); err != nil {
		return model.Hash{}, err
	}
	if !s.fabric.Exists(ctx, topicID) {
		return model.Hash{}, corerrors.Wrap("api.sendMessage", corerrors.UnknownTopic, nil)
	}

	channelIDHash, err := s.fabric.ChannelFor(ctx, topicID, s.self)
	if err != nil {
		return model.Hash{}, err
	}

	msg := model.ChatMessage{Author: s.self, Text: text, Attachments: attachments}
	payloadHash, err := s.store.PutUnversioned(ctx, msg)
	if err != nil {
		return model.Hash{}, fmt.Errorf("api: store message: %w", err)
	}

	entryHash, err := s.fabric.Append(ctx, channelIDHash, s.self, payloadHash)
	if err != nil {
		return model.Hash{}, err
	}

	if s.analysis != nil {
		if _, err := s.analysis.OnMessage(ctx, topicID, s.self, text); err != nil {
			s.log.Warn("api: post-message analysis failed", "topic_id", topicID, "err", err)
		}
	}
	return entryHash, nil
}

// RetrieveMessages implements the retrieve_messages query (spec.md
// §6): ordered messages within topicID, most recent limit entries
// strictly before the before hash when given. Returns UnknownTopic
// if topicID has no local Topic record.
func (s *Service) RetrieveMessages(ctx context.Context, topicID string, limit int, before model.Hash) ([]Message, error) {
	if err := s.requireAuthenticated("api.retrieveMessages"); err != nil {
		return nil, err
	}
	if !s.fabric.Exists(ctx, topicID) {
		return nil, corerrors.Wrap("api.retrieveMessages", corerrors.UnknownTopic, nil)
	}

	entries, err := s.fabric.ReadTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}
	if !before.IsZero() {
		cut := len(entries)
		for i, e := range entries {
			if e.Payload == before {
				cut = i
				break
			}
		}
		entries = entries[:cut]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	loaded := make([]*Message, len(entries))
	err = s.pool.RunIndexed(ctx, len(entries), func(ctx context.Context, i int) error {
		e := entries[i]
		msg, loadErr := s.loadChatMessage(ctx, e.Payload)
		if loadErr != nil {
			return nil // a referenced message we haven't synced yet
		}
		loaded[i] = &Message{
			Hash:        e.Payload,
			Author:      msg.Author,
			Text:        msg.Text,
			Attachments: msg.Attachments,
			Timestamp:   e.Timestamp,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]Message, 0, len(entries))
	for _, m := range loaded {
		if m != nil {
			out = append(out, *m)
		}
	}
	return out, nil
}

// CreateInvitation implements the create_invitation query (spec.md
// §6): mint a one-time token bound to this instance's public key and
// a reachable endpoint.
func (s *Service) CreateInvitation(targetPublicKey [32]byte, endpointURL string) (string, error) {
	if err := s.requireAuthenticated("api.createInvitation"); err != nil {
		return "", err
	}
	return s.invites.Create(targetPublicKey, endpointURL)
}

// ConsumeInvitation implements the consume_invitation query (spec.md
// §6): parse the opaque invitation text, retire its token on this
// instance's registry, and return the peer's advertised public key as
// a stand-in for its identity pending the full pairing handshake
// (spec.md §4.D), which the caller drives separately over an
// established Transport. Returns HandshakeFailed if invitationText
// does not decode, or InvitationConsumed/InvitationExpired/
// UnknownToken from the registry.
func (s *Service) ConsumeInvitation(invitationText string) ([32]byte, error) {
	inv, err := pairing.DecodeInvitationText(invitationText)
	if err != nil {
		return [32]byte{}, corerrors.Wrap("api.consumeInvitation", corerrors.HandshakeFailed, err)
	}
	if err := s.invites.Consume(inv.Token); err != nil {
		return [32]byte{}, err
	}
	return inv.TargetPublicKey, nil
}

// GetProposals implements the get_proposals query (spec.md §6).
func (s *Service) GetProposals(ctx context.Context, topicID string, forceRefresh bool) ([]analysis.Proposal, error) {
	if err := s.requireAuthenticated("api.getProposals"); err != nil {
		return nil, err
	}
	if s.analysis == nil {
		return nil, nil
	}
	return s.analysis.GetProposals(ctx, s.self, topicID, forceRefresh)
}

// UpdateProposalConfig implements the update_proposal_config query
// (spec.md §6). Returns InvalidWeights if cfg's weights fail
// validation.
func (s *Service) UpdateProposalConfig(ctx context.Context, cfg model.ProposalConfig) (model.ProposalConfig, error) {
	if err := s.requireAuthenticated("api.updateProposalConfig"); err != nil {
		return model.ProposalConfig{}, err
	}
	cfg.OwnerPerson = s.self
	return s.analysis.Config.Update(ctx, cfg)
}

// AccessibleTo reports the set of object hashes forPerson may receive
// over a CHUM session right now (spec.md §4.B). Not part of the §6
// query table itself, but exposed for the diagnostics surface
// operators use to debug why a peer isn't seeing an expected object.
func (s *Service) AccessibleTo(ctx context.Context, forPerson model.Hash) (map[model.Hash]bool, error) {
	return s.access.AccessibleHashes(ctx, forPerson)
}
