// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// apiError is the wire shape internal/api's Handlers write on failure.
type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// client is a thin HTTP client against one coreinstance's query
// surface, grounded on the response shapes internal/api/http_types.go
// defines. It holds no model/internal-package dependency, matching
// the real deployment shape of an operator's CLI talking to a
// instance over the network rather than sharing its process.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string) *client {
	return &client{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Code == "" {
			return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: %s (%s)", method, path, apiErr.Error, apiErr.Code)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type contactDTO struct {
	PersonHash  string   `json:"personHash"`
	Nickname    string   `json:"nickname"`
	Description []string `json:"description,omitempty"`
}

type getContactsDTO struct {
	Contacts []contactDTO `json:"contacts"`
}

func (c *client) getContacts(ctx context.Context) ([]contactDTO, error) {
	var out getContactsDTO
	if err := c.do(ctx, http.MethodGet, "/v1/contacts", nil, &out); err != nil {
		return nil, err
	}
	return out.Contacts, nil
}

type messageDTO struct {
	Hash        string   `json:"hash"`
	Author      string   `json:"author"`
	Text        string   `json:"text"`
	Attachments []string `json:"attachments,omitempty"`
	Timestamp   string   `json:"timestamp"`
}

type topicDTO struct {
	TopicID      string      `json:"topicId"`
	Participants []string    `json:"participants"`
	LastMessage  *messageDTO `json:"lastMessage,omitempty"`
}

type listTopicsDTO struct {
	Topics []topicDTO `json:"topics"`
}

func (c *client) listTopics(ctx context.Context) ([]topicDTO, error) {
	var out listTopicsDTO
	if err := c.do(ctx, http.MethodGet, "/v1/topics", nil, &out); err != nil {
		return nil, err
	}
	return out.Topics, nil
}

type retrieveMessagesDTO struct {
	Messages []messageDTO `json:"messages"`
}

func (c *client) retrieveMessages(ctx context.Context, topicID string, limit int) ([]messageDTO, error) {
	path := fmt.Sprintf("/v1/topics/%s/messages", topicID)
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var out retrieveMessagesDTO
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

type sendMessageDTO struct {
	TopicID string `json:"topicId"`
	Text    string `json:"text"`
}

type sendMessageResponseDTO struct {
	MessageHash string `json:"messageHash"`
}

func (c *client) sendMessage(ctx context.Context, topicID, text string) (string, error) {
	var out sendMessageResponseDTO
	err := c.do(ctx, http.MethodPost, "/v1/messages", sendMessageDTO{TopicID: topicID, Text: text}, &out)
	if err != nil {
		return "", err
	}
	return out.MessageHash, nil
}

type proposalDTO struct {
	SubjectHash  string   `json:"subjectHash"`
	TopicID      string   `json:"topicId"`
	Keywords     []string `json:"keywords"`
	Relevance    float64  `json:"relevance"`
	Jaccard      float64  `json:"jaccard"`
	RecencyBoost float64  `json:"recencyBoost"`
}

type getProposalsDTO struct {
	Proposals []proposalDTO `json:"proposals"`
}

func (c *client) getProposals(ctx context.Context, topicID string) ([]proposalDTO, error) {
	var out getProposalsDTO
	path := fmt.Sprintf("/v1/topics/%s/proposals", topicID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Proposals, nil
}
