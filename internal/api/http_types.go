// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import "github.com/kittwire/core/internal/model"

// ErrorResponse is the standard error response body for every
// endpoint in this package.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// contactResponse is the wire shape of one get_contacts entry.
type contactResponse struct {
	PersonHash  string   `json:"personHash"`
	Nickname    string   `json:"nickname"`
	Description []string `json:"description,omitempty"`
}

// getContactsResponse wraps get_contacts (spec.md §6).
type getContactsResponse struct {
	Contacts []contactResponse `json:"contacts"`
}

// messageResponse is the wire shape of one ChatMessage.
type messageResponse struct {
	Hash        string   `json:"hash"`
	Author      string   `json:"author"`
	Text        string   `json:"text"`
	Attachments []string `json:"attachments,omitempty"`
	Timestamp   string   `json:"timestamp"`
}

func newMessageResponse(m Message) messageResponse {
	attachments := make([]string, len(m.Attachments))
	for i, a := range m.Attachments {
		attachments[i] = a.String()
	}
	return messageResponse{
		Hash:        m.Hash.String(),
		Author:      m.Author.String(),
		Text:        m.Text,
		Attachments: attachments,
		Timestamp:   m.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// topicResponse is the wire shape of one list_topics entry.
type topicResponse struct {
	TopicID      string            `json:"topicId"`
	Participants []string          `json:"participants"`
	LastMessage  *messageResponse `json:"lastMessage,omitempty"`
}

// listTopicsResponse wraps list_topics (spec.md §6).
type listTopicsResponse struct {
	Topics []topicResponse `json:"topics"`
}

// sendMessageRequest is the request body for POST /v1/messages.
type sendMessageRequest struct {
	TopicID     string   `json:"topicId" binding:"required"`
	Text        string   `json:"text" binding:"required"`
	Attachments []string `json:"attachments,omitempty"`
}

// sendMessageResponse wraps send_message (spec.md §6).
type sendMessageResponse struct {
	MessageHash string `json:"messageHash"`
}

// retrieveMessagesResponse wraps retrieve_messages (spec.md §6).
type retrieveMessagesResponse struct {
	Messages []messageResponse `json:"messages"`
}

// createInvitationRequest is the request body for POST /v1/invitations.
type createInvitationRequest struct {
	TargetPublicKey string `json:"targetPublicKey" binding:"required"`
	EndpointURL     string `json:"endpointUrl" binding:"required"`
}

// createInvitationResponse wraps create_invitation (spec.md §6).
type createInvitationResponse struct {
	InvitationText string `json:"invitationText"`
}

// consumeInvitationRequest is the request body for POST /v1/invitations/consume.
type consumeInvitationRequest struct {
	InvitationText string `json:"invitationText" binding:"required"`
}

// consumeInvitationResponse wraps consume_invitation (spec.md §6).
type consumeInvitationResponse struct {
	PeerPublicKey string `json:"peerPublicKey"`
}

// proposalResponse is the wire shape of one ranked proposal.
type proposalResponse struct {
	SubjectHash  string   `json:"subjectHash"`
	TopicID      string   `json:"topicId"`
	Keywords     []string `json:"keywords"`
	Relevance    float64  `json:"relevance"`
	Jaccard      float64  `json:"jaccard"`
	RecencyBoost float64  `json:"recencyBoost"`
}

// getProposalsResponse wraps get_proposals (spec.md §6).
type getProposalsResponse struct {
	Proposals []proposalResponse `json:"proposals"`
}

// updateProposalConfigRequest is the request body for PUT
// /v1/topics/:topicId/proposal-config.
type updateProposalConfigRequest struct {
	WeightJaccard float64 `json:"weightJaccard"`
	WeightRecency float64 `json:"weightRecency"`
	RecencyWindowSeconds int64 `json:"recencyWindowSeconds"`
	MinJaccard    float64 `json:"minJaccard"`
	MaxProposals  int     `json:"maxProposals"`
}

// updateProposalConfigResponse wraps update_proposal_config (spec.md §6).
type updateProposalConfigResponse struct {
	WeightJaccard float64 `json:"weightJaccard"`
	WeightRecency float64 `json:"weightRecency"`
	RecencyWindowSeconds int64 `json:"recencyWindowSeconds"`
	MinJaccard    float64 `json:"minJaccard"`
	MaxProposals  int     `json:"maxProposals"`
}

func newUpdateProposalConfigResponse(cfg model.ProposalConfig) updateProposalConfigResponse {
	return updateProposalConfigResponse{
		WeightJaccard:        cfg.WeightJaccard,
		WeightRecency:        cfg.WeightRecency,
		RecencyWindowSeconds: int64(cfg.RecencyWindow.Seconds()),
		MinJaccard:           cfg.MinJaccard,
		MaxProposals:         cfg.MaxProposals,
	}
}
