// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrict_WellFormed(t *testing.T) {
	raw := []byte(`{"response":"ok","analysis":{"subjects":[{"name":"pizza night","description":"planning","isNew":true,"keywords":[{"term":"pizza","confidence":0.9}],"summaryUpdate":{"text":"group is planning pizza night"}}]}}`)
	result, err := ParseStrict(raw)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Response)
	require.Len(t, result.Analysis.Subjects, 1)
	assert.Equal(t, "pizza night", result.Analysis.Subjects[0].Name)
	assert.True(t, result.Analysis.Subjects[0].IsNew)
	require.NotNil(t, result.Analysis.Subjects[0].SummaryUpdate)
}

func TestParseStrict_RejectsUnknownField(t *testing.T) {
	raw := []byte(`{"response":"ok","analysis":{"subjects":[]},"extra":"field"}`)
	_, err := ParseStrict(raw)
	assert.Error(t, err)
}

func TestParseStrict_RejectsTrailingData(t *testing.T) {
	raw := []byte(`{"response":"ok","analysis":{"subjects":[]}} garbage`)
	_, err := ParseStrict(raw)
	assert.Error(t, err)
}

func TestParseStrict_RejectsNonJSON(t *testing.T) {
	raw := []byte("sure, here's the analysis: it's about pizza")
	_, err := ParseStrict(raw)
	assert.Error(t, err)
}
