// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// focusPane selects which side of the split view receives key input.
type focusPane int

const (
	focusTopics focusPane = iota
	focusMessages
)

type topicsLoadedMsg struct{ topics []topicDTO }
type messagesLoadedMsg struct {
	topicID  string
	messages []messageDTO
}
type proposalsLoadedMsg struct {
	topicID   string
	proposals []proposalDTO
}
type errMsg struct{ err error }

// model is the root bubbletea model for corecli's interactive view: a
// topic list on the left and a scrolling message/proposal viewport on
// the right, following services/code_buddy/tui's
// list-plus-viewport split and WindowSizeMsg-driven layout.
type model struct {
	client *client

	topics list.Model
	view   viewport.Model
	ready  bool

	focus        focusPane
	selectedTID  string
	lastErr      error
	showProposal bool

	width, height int
	quitting      bool
}

func newModel(c *client) model {
	delegate := list.NewDefaultDelegate()
	l := list.New(nil, delegate, 0, 0)
	l.Title = "Topics"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)

	return model{client: c, topics: l, focus: focusTopics}
}

func (m model) Init() tea.Cmd {
	return m.fetchTopics
}

func (m model) fetchTopics() tea.Msg {
	topics, err := m.client.listTopics(context.Background())
	if err != nil {
		return errMsg{err}
	}
	return topicsLoadedMsg{topics}
}

func (m model) fetchMessages(topicID string) tea.Cmd {
	return func() tea.Msg {
		messages, err := m.client.retrieveMessages(context.Background(), topicID, 100)
		if err != nil {
			return errMsg{err}
		}
		return messagesLoadedMsg{topicID: topicID, messages: messages}
	}
}

func (m model) fetchProposals(topicID string) tea.Cmd {
	return func() tea.Msg {
		proposals, err := m.client.getProposals(context.Background(), topicID)
		if err != nil {
			return errMsg{err}
		}
		return proposalsLoadedMsg{topicID: topicID, proposals: proposals}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		listWidth := m.width / 3
		m.topics.SetSize(listWidth, m.height-2)
		if !m.ready {
			m.view = viewport.New(m.width-listWidth-2, m.height-2)
			m.ready = true
		} else {
			m.view.Width = m.width - listWidth - 2
			m.view.Height = m.height - 2
		}
		return m, nil

	case topicsLoadedMsg:
		items := make([]list.Item, len(msg.topics))
		for i, t := range msg.topics {
			items[i] = topicItem{topic: t}
		}
		m.topics.SetItems(items)
		return m, nil

	case messagesLoadedMsg:
		if msg.topicID != m.selectedTID {
			return m, nil
		}
		m.view.SetContent(renderMessages(msg.messages))
		m.view.GotoBottom()
		return m, nil

	case proposalsLoadedMsg:
		if msg.topicID != m.selectedTID {
			return m, nil
		}
		m.view.SetContent(renderProposals(msg.proposals))
		return m, nil

	case errMsg:
		m.lastErr = msg.err
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit

		case "tab":
			if m.focus == focusTopics {
				m.focus = focusMessages
			} else {
				m.focus = focusTopics
			}
			return m, nil

		case "p":
			if m.selectedTID != "" {
				m.showProposal = true
				return m, m.fetchProposals(m.selectedTID)
			}
			return m, nil

		case "r":
			if m.selectedTID != "" {
				m.showProposal = false
				return m, m.fetchMessages(m.selectedTID)
			}
			return m, nil

		case "enter":
			if m.focus == focusTopics {
				if item, ok := m.topics.SelectedItem().(topicItem); ok {
					m.selectedTID = item.topic.TopicID
					m.showProposal = false
					return m, m.fetchMessages(m.selectedTID)
				}
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	if m.focus == focusTopics {
		m.topics, cmd = m.topics.Update(msg)
	} else {
		m.view, cmd = m.view.Update(msg)
	}
	return m, cmd
}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "loading...\n"
	}

	left := m.topics.View()
	right := m.view.View()

	body := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	var footer strings.Builder
	footer.WriteString(helpKeyStyle.Render("tab") + helpDescStyle.Render(" switch pane  "))
	footer.WriteString(helpKeyStyle.Render("enter") + helpDescStyle.Render(" open topic  "))
	footer.WriteString(helpKeyStyle.Render("p") + helpDescStyle.Render(" proposals  "))
	footer.WriteString(helpKeyStyle.Render("r") + helpDescStyle.Render(" messages  "))
	footer.WriteString(helpKeyStyle.Render("q") + helpDescStyle.Render(" quit"))

	if m.lastErr != nil {
		footer.WriteString("  " + errorStyle.Render(m.lastErr.Error()))
	}

	return body + "\n" + footer.String()
}

func renderMessages(messages []messageDTO) string {
	var b strings.Builder
	for _, msg := range messages {
		b.WriteString(authorStyle.Render(shortHash(msg.Author)))
		b.WriteString(" ")
		b.WriteString(timestampStyle.Render(msg.Timestamp))
		b.WriteString("\n")
		b.WriteString(msg.Text)
		b.WriteString("\n\n")
	}
	if b.Len() == 0 {
		return "(no messages yet)"
	}
	return b.String()
}

func renderProposals(proposals []proposalDTO) string {
	if len(proposals) == 0 {
		return "(no proposals)"
	}
	var b strings.Builder
	for _, p := range proposals {
		b.WriteString(proposalStyle.Render(strings.Join(p.Keywords, ", ")))
		b.WriteString(fmt.Sprintf(" relevance=%.3f jaccard=%.3f recency=%.3f\n", p.Relevance, p.Jaccard, p.RecencyBoost))
	}
	return b.String()
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12]
}
