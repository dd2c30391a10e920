// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"context"
	"fmt"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/prompts"
	"golang.org/x/time/rate"

	"github.com/kittwire/core/internal/corerrors"
	"github.com/kittwire/core/internal/model"
	"github.com/kittwire/core/internal/objectstore"
	"github.com/kittwire/core/pkg/logging"
)

// inlineAttachmentLimit is the spec.md §4.G threshold below which a
// raw structured-output payload is stored inline rather than as a blob.
const inlineAttachmentLimit = 1024

const extractionTimeout = 60 * time.Second

var extractionPrompt = prompts.NewPromptTemplate(
	`You are analyzing one chat message for topic {{.topicId}}.
Reply with a response section and an analysis section enumerating the
subjects this message touches, each with its keywords and, if the
subject's running summary should change, a summaryUpdate.

Message:
{{.text}}

Respond with exactly one JSON object matching:
{"response": string, "analysis": {"subjects": [{"name": string, "description": string, "isNew": bool, "keywords": [{"term": string, "confidence": number}], "summaryUpdate": {"text": string}}]}}`,
	[]string{"topicId", "text"},
)

// Extractor runs the structured-output extraction flow and upserts
// the resulting Subject/Keyword/Summary graph into the Object Store.
type Extractor struct {
	client  *openai.Client
	model   string
	store   *objectstore.Store
	mirror  *Mirror
	log     *logging.Logger
	limiter *rate.Limiter // nil means unthrottled
}

// ExtractorOption configures an Extractor beyond its required
// collaborators.
type ExtractorOption func(*Extractor)

// WithCallRateLimit caps outbound chat-completion calls to r per
// second (burst b), protecting the configured LLM provider's own
// rate limit from a burst of messages across many topics at once.
func WithCallRateLimit(r float64, b int) ExtractorOption {
	return func(e *Extractor) {
		e.limiter = rate.NewLimiter(rate.Limit(r), b)
	}
}

// NewExtractor builds an Extractor backed by an OpenAI-compatible
// chat-completion client.
func NewExtractor(client *openai.Client, model string, store *objectstore.Store, mirror *Mirror, log *logging.Logger, opts ...ExtractorOption) *Extractor {
	e := &Extractor{client: client, model: model, store: store, mirror: mirror, log: log}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract sends messageText through the structured-output prompt,
// strictly parses the reply, and upserts every derived Subject,
// Keyword, and Summary. Returns MalformedAnalysis on any parse
// failure; no partial state is persisted in that case (spec.md §9).
func (e *Extractor) Extract(ctx context.Context, topicID string, author model.Hash, messageText string) (ExtractionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, extractionTimeout)
	defer cancel()

	prompt, err := extractionPrompt.Format(map[string]any{"topicId": topicID, "text": messageText})
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("analysis: format prompt: %w", err)
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return ExtractionResult{}, fmt.Errorf("analysis: call rate limit: %w", err)
		}
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a structured extraction assistant. Always reply with one JSON object, nothing else."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("analysis: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ExtractionResult{}, corerrors.Wrap("analysis.extract", corerrors.MalformedAnalysis, fmt.Errorf("empty completion"))
	}

	raw := []byte(resp.Choices[0].Message.Content)
	result, err := ParseStrict(raw)
	if err != nil {
		e.log.Warn("structured extraction failed strict parse", "topicId", topicID, "author", author, "error", err)
		return ExtractionResult{}, corerrors.Wrap("analysis.extract", corerrors.MalformedAnalysis, err)
	}

	attachmentHash, err := e.storeAttachment(ctx, raw)
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("analysis: store attachment: %w", err)
	}

	for _, subject := range result.Analysis.Subjects {
		if err := e.upsertSubject(ctx, topicID, subject, attachmentHash); err != nil {
			return ExtractionResult{}, fmt.Errorf("analysis: upsert subject %q: %w", subject.Name, err)
		}
	}

	return result, nil
}

func (e *Extractor) storeAttachment(ctx context.Context, raw []byte) (model.Hash, error) {
	att := model.Attachment{}
	if len(raw) <= inlineAttachmentLimit {
		att.Inline = raw
	} else {
		blobHash, err := e.store.PutUnversioned(ctx, blob(raw))
		if err != nil {
			return model.Hash{}, err
		}
		att.Blob = blobHash
	}
	return e.store.PutUnversioned(ctx, att)
}

// blob is an Unversioned wrapper for arbitrary byte content too large
// to inline into an Attachment (spec.md §4.G).
type blob []byte

func (blob) TypeTag() model.TypeTag { return model.TypeUnknown }

func (e *Extractor) upsertSubject(ctx context.Context, topicID string, draft SubjectDraft, attachmentHash model.Hash) error {
	terms := make([]string, 0, len(draft.Keywords))
	for _, kw := range draft.Keywords {
		terms = append(terms, kw.Term)
	}
	sortedTerms := append([]string(nil), terms...)
	sort.Strings(sortedTerms)

	existing, found, err := e.loadSubject(ctx, topicID, sortedTerms)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	subject := model.Subject{
		TopicID:      topicID,
		Keywords:     sortedTerms,
		TimeRanges:   []model.TimeRange{{Start: now, End: now}},
		MessageCount: 1,
		Attachment:   attachmentHash,
		LastSeenAt:   now,
	}
	if found {
		subject.TimeRanges = mergeTimeRange(existing.TimeRanges, now)
		subject.MessageCount = existing.MessageCount + 1
	}

	subjectIDHash, _, err := e.store.PutVersioned(ctx, subject)
	if err != nil {
		return err
	}

	for _, kw := range draft.Keywords {
		if err := e.upsertKeyword(ctx, kw.Term, subjectIDHash); err != nil {
			return err
		}
	}

	if draft.SummaryUpdate != nil {
		if err := e.appendSummary(ctx, topicID, draft.SummaryUpdate.Text, subjectIDHash); err != nil {
			return err
		}
	}

	if e.mirror != nil {
		e.mirror.UpsertSubject(ctx, subjectIDHash, subject)
	}
	return nil
}

func mergeTimeRange(ranges []model.TimeRange, at time.Time) []model.TimeRange {
	if len(ranges) == 0 {
		return []model.TimeRange{{Start: at, End: at}}
	}
	last := &ranges[len(ranges)-1]
	if at.After(last.End) {
		last.End = at
	}
	return ranges
}

func (e *Extractor) loadSubject(ctx context.Context, topicID string, sortedTerms []string) (model.Subject, bool, error) {
	idHash, err := identityHashOf(model.Subject{TopicID: topicID, Keywords: sortedTerms})
	if err != nil {
		return model.Subject{}, false, err
	}
	versionHash, err := e.store.HeadOf(ctx, idHash)
	if err != nil {
		return model.Subject{}, false, nil // not found yet: this is a new subject
	}
	env, err := e.store.Get(ctx, versionHash)
	if err != nil {
		return model.Subject{}, false, err
	}
	value, err := model.DecodeValue(env.Type, env.Value)
	if err != nil {
		return model.Subject{}, false, err
	}
	subject, ok := value.(model.Subject)
	if !ok {
		return model.Subject{}, false, fmt.Errorf("analysis: %s is not a Subject", idHash)
	}
	return subject, true, nil
}

func (e *Extractor) upsertKeyword(ctx context.Context, term string, subjectIDHash model.Hash) error {
	idHash, err := identityHashOf(model.Keyword{Term: term})
	if err != nil {
		return err
	}
	keyword := model.Keyword{Term: term, Frequency: 1, Subjects: []model.Hash{subjectIDHash}}
	if versionHash, err := e.store.HeadOf(ctx, idHash); err == nil {
		env, err := e.store.Get(ctx, versionHash)
		if err != nil {
			return err
		}
		value, err := model.DecodeValue(env.Type, env.Value)
		if err != nil {
			return err
		}
		if existing, ok := value.(model.Keyword); ok {
			keyword.Frequency = existing.Frequency + 1
			keyword.Subjects = appendUniqueHash(existing.Subjects, subjectIDHash)
		}
	}
	_, _, err = e.store.PutVersioned(ctx, keyword)
	return err
}

func appendUniqueHash(hashes []model.Hash, h model.Hash) []model.Hash {
	for _, existing := range hashes {
		if existing == h {
			return hashes
		}
	}
	return append(hashes, h)
}

func (e *Extractor) appendSummary(ctx context.Context, topicID string, text string, subjectIDHash model.Hash) error {
	prevVersion := 0
	var previousHash model.Hash
	if latest, found, err := e.latestSummary(ctx, topicID); err != nil {
		return err
	} else if found {
		prevVersion = latest.Version
		previousHash = latest.previousVersionHash
	}
	summary := model.Summary{
		TopicID:  topicID,
		Version:  prevVersion + 1,
		Text:     text,
		Subjects: []model.Hash{subjectIDHash},
		Previous: previousHash,
	}
	_, _, err := e.store.PutVersioned(ctx, summary)
	return err
}

type summaryHead struct {
	model.Summary
	previousVersionHash model.Hash
}

func (e *Extractor) latestSummary(ctx context.Context, topicID string) (summaryHead, bool, error) {
	idHash, err := identityHashOf(model.Summary{TopicID: topicID})
	if err != nil {
		return summaryHead{}, false, err
	}
	versionHash, err := e.store.HeadOf(ctx, idHash)
	if err != nil {
		return summaryHead{}, false, nil // cold-start topic: no prior summary
	}
	env, err := e.store.Get(ctx, versionHash)
	if err != nil {
		return summaryHead{}, false, err
	}
	value, err := model.DecodeValue(env.Type, env.Value)
	if err != nil {
		return summaryHead{}, false, err
	}
	summary, ok := value.(model.Summary)
	if !ok {
		return summaryHead{}, false, fmt.Errorf("analysis: %s is not a Summary", idHash)
	}
	return summaryHead{Summary: summary, previousVersionHash: versionHash}, true, nil
}

func identityHashOf(v model.Versioned) (model.Hash, error) {
	raw, err := model.CanonicalJSON(struct {
		Type model.TypeTag  `json:"$type$"`
		ID   map[string]any `json:"id"`
	}{Type: v.TypeTag(), ID: v.IDFields()})
	if err != nil {
		return model.Hash{}, fmt.Errorf("analysis: identity hash: %w", err)
	}
	return model.HashBytes(raw), nil
}
