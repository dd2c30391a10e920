// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package analysis implements spec.md §4.G: LLM-driven structured
// extraction after each message and the keyword-similarity proposal
// recommender built on top of it.
package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ExtractionResult is the bracketed structured-output schema the
// extraction prompt instructs the model to emit: a response section
// plus an analysis section enumerating subjects and their keywords.
type ExtractionResult struct {
	Response string          `json:"response"`
	Analysis AnalysisSection `json:"analysis"`
}

// AnalysisSection enumerates the subjects touched by one message.
type AnalysisSection struct {
	Subjects []SubjectDraft `json:"subjects"`
}

// SubjectDraft is one subject{name, description, isNew} entry with
// its nested keywords and an optional summary update.
type SubjectDraft struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	IsNew         bool            `json:"isNew"`
	Keywords      []KeywordDraft  `json:"keywords"`
	SummaryUpdate *SummaryUpdate  `json:"summaryUpdate,omitempty"`
}

// KeywordDraft is one keyword{term, confidence} entry.
type KeywordDraft struct {
	Term       string  `json:"term"`
	Confidence float64 `json:"confidence"`
}

// SummaryUpdate carries the model's proposed revision to a subject's
// running summary text.
type SummaryUpdate struct {
	Text string `json:"text"`
}

// ParseStrict unmarshals raw into an ExtractionResult, rejecting any
// field the schema does not declare (spec.md §4.G: "Parsing MUST be
// strict... no text fallback"). Use of DisallowUnknownFields here is
// deliberate: a model that hallucinates extra fields is a sign its
// output should not be trusted, not a cosmetic mismatch to tolerate.
func ParseStrict(raw []byte) (ExtractionResult, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var result ExtractionResult
	if err := dec.Decode(&result); err != nil {
		return ExtractionResult{}, fmt.Errorf("analysis: strict parse: %w", err)
	}
	if dec.More() {
		return ExtractionResult{}, fmt.Errorf("analysis: strict parse: trailing data after structured output")
	}
	return result, nil
}
