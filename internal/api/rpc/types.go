// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rpc

import "github.com/kittwire/core/internal/model"

// Empty is the request message for calls that take no arguments.
type Empty struct{}

type Contact struct {
	PersonHash  string   `json:"personHash"`
	Nickname    string   `json:"nickname"`
	Description []string `json:"description,omitempty"`
}

type GetContactsResponse struct {
	Contacts []Contact `json:"contacts"`
}

type Message struct {
	Hash        string   `json:"hash"`
	Author      string   `json:"author"`
	Text        string   `json:"text"`
	Attachments []string `json:"attachments,omitempty"`
	Timestamp   string   `json:"timestamp"`
}

type Topic struct {
	TopicID      string   `json:"topicId"`
	Participants []string `json:"participants"`
	LastMessage  *Message `json:"lastMessage,omitempty"`
}

type ListTopicsResponse struct {
	Topics []Topic `json:"topics"`
}

type SendMessageRequest struct {
	TopicID     string   `json:"topicId"`
	Text        string   `json:"text"`
	Attachments []string `json:"attachments,omitempty"`
}

type SendMessageResponse struct {
	MessageHash string `json:"messageHash"`
}

type RetrieveMessagesRequest struct {
	TopicID string `json:"topicId"`
	Limit   int    `json:"limit,omitempty"`
	Before  string `json:"before,omitempty"`
}

type RetrieveMessagesResponse struct {
	Messages []Message `json:"messages"`
}

type CreateInvitationRequest struct {
	TargetPublicKey string `json:"targetPublicKey"`
	EndpointURL     string `json:"endpointUrl"`
}

type CreateInvitationResponse struct {
	InvitationText string `json:"invitationText"`
}

type ConsumeInvitationRequest struct {
	InvitationText string `json:"invitationText"`
}

type ConsumeInvitationResponse struct {
	PeerPublicKey string `json:"peerPublicKey"`
}

type GetProposalsRequest struct {
	TopicID      string `json:"topicId"`
	ForceRefresh bool   `json:"forceRefresh,omitempty"`
}

type Proposal struct {
	SubjectHash  string   `json:"subjectHash"`
	TopicID      string   `json:"topicId"`
	Keywords     []string `json:"keywords"`
	Relevance    float64  `json:"relevance"`
	Jaccard      float64  `json:"jaccard"`
	RecencyBoost float64  `json:"recencyBoost"`
}

type GetProposalsResponse struct {
	Proposals []Proposal `json:"proposals"`
}

type UpdateProposalConfigRequest struct {
	WeightJaccard        float64 `json:"weightJaccard"`
	WeightRecency        float64 `json:"weightRecency"`
	RecencyWindowSeconds int64   `json:"recencyWindowSeconds"`
	MinJaccard           float64 `json:"minJaccard"`
	MaxProposals         int     `json:"maxProposals"`
}

type UpdateProposalConfigResponse struct {
	WeightJaccard        float64 `json:"weightJaccard"`
	WeightRecency        float64 `json:"weightRecency"`
	RecencyWindowSeconds int64   `json:"recencyWindowSeconds"`
	MinJaccard           float64 `json:"minJaccard"`
	MaxProposals         int     `json:"maxProposals"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

func hashStrings(hashes []model.Hash) []string {
	out := make([]string, len(hashes))
	for i, h := range hashes {
		out[i] = h.String()
	}
	return out
}
