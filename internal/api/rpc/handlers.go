// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rpc

import (
	"context"
	"encoding/hex"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kittwire/core/internal/api"
	"github.com/kittwire/core/internal/corerrors"
	"github.com/kittwire/core/internal/model"
	"github.com/kittwire/core/pkg/logging"
)

// Handlers adapts api.Service to gRPC's unary call shape, the same
// svc/log split internal/api's gin Handlers uses.
type Handlers struct {
	svc *api.Service
	log *logging.Logger
}

// NewHandlers builds Handlers over svc.
func NewHandlers(svc *api.Service, log *logging.Logger) *Handlers {
	return &Handlers{svc: svc, log: log}
}

// codeForKind maps a corerrors.Kind to the gRPC status code this
// method returns, the RPC-side analogue of internal/api's
// statusForKind.
func codeForKind(kind corerrors.Kind) codes.Code {
	switch kind {
	case corerrors.NotAuthenticated:
		return codes.Unauthenticated
	case corerrors.NotAuthor:
		return codes.PermissionDenied
	case corerrors.UnknownTopic, corerrors.UnknownToken:
		return codes.NotFound
	case corerrors.InvitationConsumed:
		return codes.AlreadyExists
	case corerrors.InvitationExpired:
		return codes.DeadlineExceeded
	case corerrors.HandshakeFailed:
		return codes.Unavailable
	case corerrors.InvalidWeights:
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

func (h *Handlers) asStatus(op string, err error) error {
	kind, ok := corerrors.KindOf(err)
	code := codes.Internal
	if ok {
		code = codeForKind(kind)
	}
	h.log.Warn("rpc: request failed", "op", op, "code", code.String(), "err", err)
	return status.Error(code, err.Error())
}

func (h *Handlers) GetContacts(ctx context.Context, _ *Empty) (*GetContactsResponse, error) {
	contacts, err := h.svc.GetContacts(ctx)
	if err != nil {
		return nil, h.asStatus("GetContacts", err)
	}
	out := make([]Contact, len(contacts))
	for i, c := range contacts {
		out[i] = Contact{PersonHash: c.PersonHash.String(), Nickname: c.Nickname, Description: c.Description}
	}
	return &GetContactsResponse{Contacts: out}, nil
}

func (h *Handlers) ListTopics(ctx context.Context, _ *Empty) (*ListTopicsResponse, error) {
	topics, err := h.svc.ListTopics(ctx)
	if err != nil {
		return nil, h.asStatus("ListTopics", err)
	}
	out := make([]Topic, len(topics))
	for i, t := range topics {
		rt := Topic{TopicID: t.TopicID, Participants: hashStrings(t.Participants)}
		if t.LastMessage != nil {
			m := toRPCMessage(*t.LastMessage)
			rt.LastMessage = &m
		}
		out[i] = rt
	}
	return &ListTopicsResponse{Topics: out}, nil
}

func (h *Handlers) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	attachments := make([]model.Hash, len(req.Attachments))
	for i, a := range req.Attachments {
		parsed, err := model.ParseHash(a)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		attachments[i] = parsed
	}
	messageHash, err := h.svc.SendMessage(ctx, req.TopicID, req.Text, attachments)
	if err != nil {
		return nil, h.asStatus("SendMessage", err)
	}
	return &SendMessageResponse{MessageHash: messageHash.String()}, nil
}

func (h *Handlers) RetrieveMessages(ctx context.Context, req *RetrieveMessagesRequest) (*RetrieveMessagesResponse, error) {
	var before model.Hash
	if req.Before != "" {
		parsed, err := model.ParseHash(req.Before)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, "invalid before hash")
		}
		before = parsed
	}
	messages, err := h.svc.RetrieveMessages(ctx, req.TopicID, req.Limit, before)
	if err != nil {
		return nil, h.asStatus("RetrieveMessages", err)
	}
	out := make([]Message, len(messages))
	for i, m := range messages {
		out[i] = toRPCMessage(m)
	}
	return &RetrieveMessagesResponse{Messages: out}, nil
}

func (h *Handlers) CreateInvitation(ctx context.Context, req *CreateInvitationRequest) (*CreateInvitationResponse, error) {
	keyBytes, err := hex.DecodeString(req.TargetPublicKey)
	if err != nil || len(keyBytes) != 32 {
		return nil, status.Error(codes.InvalidArgument, "targetPublicKey must be 32 bytes hex")
	}
	var targetKey [32]byte
	copy(targetKey[:], keyBytes)

	text, err := h.svc.CreateInvitation(targetKey, req.EndpointURL)
	if err != nil {
		return nil, h.asStatus("CreateInvitation", err)
	}
	return &CreateInvitationResponse{InvitationText: text}, nil
}

func (h *Handlers) ConsumeInvitation(ctx context.Context, req *ConsumeInvitationRequest) (*ConsumeInvitationResponse, error) {
	peerKey, err := h.svc.ConsumeInvitation(req.InvitationText)
	if err != nil {
		return nil, h.asStatus("ConsumeInvitation", err)
	}
	return &ConsumeInvitationResponse{PeerPublicKey: hex.EncodeToString(peerKey[:])}, nil
}

func (h *Handlers) GetProposals(ctx context.Context, req *GetProposalsRequest) (*GetProposalsResponse, error) {
	proposals, err := h.svc.GetProposals(ctx, req.TopicID, req.ForceRefresh)
	if err != nil {
		return nil, h.asStatus("GetProposals", err)
	}
	out := make([]Proposal, len(proposals))
	for i, p := range proposals {
		out[i] = Proposal{
			SubjectHash:  p.SubjectHash.String(),
			TopicID:      p.TopicID,
			Keywords:     p.Keywords,
			Relevance:    p.Relevance,
			Jaccard:      p.Jaccard,
			RecencyBoost: p.RecencyBoost,
		}
	}
	return &GetProposalsResponse{Proposals: out}, nil
}

func (h *Handlers) UpdateProposalConfig(ctx context.Context, req *UpdateProposalConfigRequest) (*UpdateProposalConfigResponse, error) {
	cfg := model.ProposalConfig{
		WeightJaccard: req.WeightJaccard,
		WeightRecency: req.WeightRecency,
		RecencyWindow: secondsToDuration(req.RecencyWindowSeconds),
		MinJaccard:    req.MinJaccard,
		MaxProposals:  req.MaxProposals,
	}
	updated, err := h.svc.UpdateProposalConfig(ctx, cfg)
	if err != nil {
		return nil, h.asStatus("UpdateProposalConfig", err)
	}
	return &UpdateProposalConfigResponse{
		WeightJaccard:        updated.WeightJaccard,
		WeightRecency:        updated.WeightRecency,
		RecencyWindowSeconds: int64(updated.RecencyWindow.Seconds()),
		MinJaccard:           updated.MinJaccard,
		MaxProposals:         updated.MaxProposals,
	}, nil
}

func (h *Handlers) Health(ctx context.Context, _ *Empty) (*HealthResponse, error) {
	return &HealthResponse{Status: "ok"}, nil
}

// secondsToDuration mirrors internal/api's helper of the same name:
// a non-positive value means "unset", not "zero".
func secondsToDuration(seconds int64) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func toRPCMessage(m api.Message) Message {
	return Message{
		Hash:        m.Hash.String(),
		Author:      m.Author.String(),
		Text:        m.Text,
		Attachments: hashStrings(m.Attachments),
		Timestamp:   m.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
	}
}
