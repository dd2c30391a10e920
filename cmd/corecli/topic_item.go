// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import "strings"

// topicItem adapts a topicDTO to bubbles/list's list.Item interface.
type topicItem struct {
	topic topicDTO
}

func (i topicItem) Title() string { return i.topic.TopicID }

func (i topicItem) Description() string {
	if i.topic.LastMessage == nil {
		return "(no messages yet)"
	}
	text := i.topic.LastMessage.Text
	if len(text) > 60 {
		text = text[:57] + "..."
	}
	return text
}

func (i topicItem) FilterValue() string {
	return i.topic.TopicID + " " + strings.Join(i.topic.Participants, " ")
}
