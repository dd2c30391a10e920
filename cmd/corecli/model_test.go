// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicItem_DescriptionNoMessages(t *testing.T) {
	item := topicItem{topic: topicDTO{TopicID: "t1"}}
	assert.Equal(t, "(no messages yet)", item.Description())
}

func TestTopicItem_DescriptionTruncatesLongText(t *testing.T) {
	item := topicItem{topic: topicDTO{
		TopicID:     "t1",
		LastMessage: &messageDTO{Text: strings.Repeat("x", 100)},
	}}
	assert.True(t, strings.HasSuffix(item.Description(), "..."))
	assert.LessOrEqual(t, len(item.Description()), 60)
}

func TestTopicItem_FilterValueIncludesParticipants(t *testing.T) {
	item := topicItem{topic: topicDTO{TopicID: "t1", Participants: []string{"alice", "bob"}}}
	assert.Contains(t, item.FilterValue(), "alice")
	assert.Contains(t, item.FilterValue(), "bob")
}

func TestRenderMessages_EmptyShowsPlaceholder(t *testing.T) {
	assert.Equal(t, "(no messages yet)", renderMessages(nil))
}

func TestRenderProposals_EmptyShowsPlaceholder(t *testing.T) {
	assert.Equal(t, "(no proposals)", renderProposals(nil))
}

func TestShortHash_TruncatesLongHash(t *testing.T) {
	assert.Equal(t, "abcdefabcdef", shortHash("abcdefabcdef1234567890"))
}

func TestShortHash_LeavesShortHashAlone(t *testing.T) {
	assert.Equal(t, "abc", shortHash("abc"))
}
