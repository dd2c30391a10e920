// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kittwire/core/internal/corerrors"
	"github.com/kittwire/core/internal/model"
	"github.com/kittwire/core/pkg/logging"
)

// Handlers adapts Service to gin, following the teacher's
// Handlers{svc}/NewHandlers split: no query-surface logic lives here,
// only request decoding, error-kind-to-status mapping, and response
// encoding.
type Handlers struct {
	svc *Service
	log *logging.Logger
}

// NewHandlers builds Handlers over svc.
func NewHandlers(svc *Service, log *logging.Logger) *Handlers {
	return &Handlers{svc: svc, log: log}
}

// getOrCreateRequestID reuses an inbound X-Request-ID or mints one,
// echoing it back so a caller can correlate logs across a retry.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

// statusForKind maps a corerrors.Kind to the HTTP status and error
// code the response body carries (spec.md §6/§7).
func statusForKind(kind corerrors.Kind) (int, string) {
	switch kind {
	case corerrors.NotAuthenticated:
		return http.StatusUnauthorized, "NOT_AUTHENTICATED"
	case corerrors.NotAuthor:
		return http.StatusForbidden, "NOT_AUTHOR"
	case corerrors.UnknownTopic:
		return http.StatusNotFound, "UNKNOWN_TOPIC"
	case corerrors.UnknownToken:
		return http.StatusNotFound, "UNKNOWN_TOKEN"
	case corerrors.InvitationConsumed:
		return http.StatusConflict, "INVITATION_CONSUMED"
	case corerrors.InvitationExpired:
		return http.StatusGone, "INVITATION_EXPIRED"
	case corerrors.HandshakeFailed:
		return http.StatusBadGateway, "HANDSHAKE_FAILED"
	case corerrors.InvalidWeights:
		return http.StatusBadRequest, "INVALID_WEIGHTS"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// writeError maps err to a status code via statusForKind, falling
// back to 500 for errors that aren't a corerrors.CoreError.
func (h *Handlers) writeError(c *gin.Context, requestID string, err error) {
	kind, ok := corerrors.KindOf(err)
	status, code := http.StatusInternalServerError, "INTERNAL"
	if ok {
		status, code = statusForKind(kind)
	}
	h.log.Warn("api: request failed", "request_id", requestID, "status", status, "code", code, "err", err)
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

// HandleGetContacts handles GET /v1/contacts (get_contacts, spec.md §6).
func (h *Handlers) HandleGetContacts(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	contacts, err := h.svc.GetContacts(c.Request.Context())
	if err != nil {
		h.writeError(c, requestID, err)
		return
	}
	out := make([]contactResponse, len(contacts))
	for i, contact := range contacts {
		out[i] = contactResponse{
			PersonHash:  contact.PersonHash.String(),
			Nickname:    contact.Nickname,
			Description: contact.Description,
		}
	}
	c.JSON(http.StatusOK, getContactsResponse{Contacts: out})
}

// HandleListTopics handles GET /v1/topics (list_topics, spec.md §6).
func (h *Handlers) HandleListTopics(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	topics, err := h.svc.ListTopics(c.Request.Context())
	if err != nil {
		h.writeError(c, requestID, err)
		return
	}
	out := make([]topicResponse, len(topics))
	for i, t := range topics {
		participants := make([]string, len(t.Participants))
		for j, p := range t.Participants {
			participants[j] = p.String()
		}
		tr := topicResponse{TopicID: t.TopicID, Participants: participants}
		if t.LastMessage != nil {
			lm := newMessageResponse(*t.LastMessage)
			tr.LastMessage = &lm
		}
		out[i] = tr
	}
	c.JSON(http.StatusOK, listTopicsResponse{Topics: out})
}

// HandleSendMessage handles POST /v1/messages (send_message, spec.md §6).
func (h *Handlers) HandleSendMessage(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	attachments, err := parseHashes(req.Attachments)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	messageHash, err := h.svc.SendMessage(c.Request.Context(), req.TopicID, req.Text, attachments)
	if err != nil {
		h.writeError(c, requestID, err)
		return
	}
	c.JSON(http.StatusOK, sendMessageResponse{MessageHash: messageHash.String()})
}

// HandleRetrieveMessages handles GET /v1/topics/:topicId/messages
// (retrieve_messages, spec.md §6).
func (h *Handlers) HandleRetrieveMessages(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	topicID := c.Param("topicId")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit", Code: "INVALID_REQUEST"})
			return
		}
		limit = parsed
	}
	var before model.Hash
	if raw := c.Query("before"); raw != "" {
		parsed, err := model.ParseHash(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before hash", Code: "INVALID_REQUEST"})
			return
		}
		before = parsed
	}

	messages, err := h.svc.RetrieveMessages(c.Request.Context(), topicID, limit, before)
	if err != nil {
		h.writeError(c, requestID, err)
		return
	}
	out := make([]messageResponse, len(messages))
	for i, m := range messages {
		out[i] = newMessageResponse(m)
	}
	c.JSON(http.StatusOK, retrieveMessagesResponse{Messages: out})
}

// HandleCreateInvitation handles POST /v1/invitations (create_invitation,
// spec.md §6).
func (h *Handlers) HandleCreateInvitation(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	var req createInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	keyBytes, err := hex.DecodeString(req.TargetPublicKey)
	if err != nil || len(keyBytes) != 32 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "targetPublicKey must be 32 bytes hex", Code: "INVALID_REQUEST"})
		return
	}
	var targetKey [32]byte
	copy(targetKey[:], keyBytes)

	text, err := h.svc.CreateInvitation(targetKey, req.EndpointURL)
	if err != nil {
		h.writeError(c, requestID, err)
		return
	}
	c.JSON(http.StatusOK, createInvitationResponse{InvitationText: text})
}

// HandleConsumeInvitation handles POST /v1/invitations/consume
// (consume_invitation, spec.md §6).
func (h *Handlers) HandleConsumeInvitation(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	var req consumeInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	peerKey, err := h.svc.ConsumeInvitation(req.InvitationText)
	if err != nil {
		h.writeError(c, requestID, err)
		return
	}
	c.JSON(http.StatusOK, consumeInvitationResponse{PeerPublicKey: hex.EncodeToString(peerKey[:])})
}

// HandleGetProposals handles GET /v1/topics/:topicId/proposals
// (get_proposals, spec.md §6).
func (h *Handlers) HandleGetProposals(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	topicID := c.Param("topicId")
	forceRefresh := c.Query("forceRefresh") == "true"

	proposals, err := h.svc.GetProposals(c.Request.Context(), topicID, forceRefresh)
	if err != nil {
		h.writeError(c, requestID, err)
		return
	}
	out := make([]proposalResponse, len(proposals))
	for i, p := range proposals {
		out[i] = proposalResponse{
			SubjectHash:  p.SubjectHash.String(),
			TopicID:      p.TopicID,
			Keywords:     p.Keywords,
			Relevance:    p.Relevance,
			Jaccard:      p.Jaccard,
			RecencyBoost: p.RecencyBoost,
		}
	}
	c.JSON(http.StatusOK, getProposalsResponse{Proposals: out})
}

// HandleUpdateProposalConfig handles PUT
// /v1/topics/:topicId/proposal-config (update_proposal_config, spec.md
// §6). topicId is accepted for URL symmetry with the rest of the
// per-topic surface, but the config is scoped per caller, not per
// topic (spec.md §4.G).
func (h *Handlers) HandleUpdateProposalConfig(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	var req updateProposalConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	cfg := model.ProposalConfig{
		WeightJaccard: req.WeightJaccard,
		WeightRecency: req.WeightRecency,
		RecencyWindow: secondsToDuration(req.RecencyWindowSeconds),
		MinJaccard:    req.MinJaccard,
		MaxProposals:  req.MaxProposals,
	}
	updated, err := h.svc.UpdateProposalConfig(c.Request.Context(), cfg)
	if err != nil {
		h.writeError(c, requestID, err)
		return
	}
	c.JSON(http.StatusOK, newUpdateProposalConfigResponse(updated))
}

// HandleHealth handles GET /v1/health, matching the teacher's
// always-200 liveness convention.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// secondsToDuration converts a wire-format seconds count to a
// time.Duration, treating a non-positive value as "unset" so the
// zero value of updateProposalConfigRequest doesn't silently clamp
// an existing RecencyWindow to zero.
func secondsToDuration(seconds int64) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func parseHashes(raw []string) ([]model.Hash, error) {
	out := make([]model.Hash, len(raw))
	for i, s := range raw {
		h, err := model.ParseHash(s)
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}
