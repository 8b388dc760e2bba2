package llmutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type decisionPayload struct {
	Complete   bool    `json:"complete"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
}

func TestParseJSONResponse(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected decisionPayload
	}{
		{
			name:     "plain object",
			input:    `{"complete": true, "reasoning": "done", "confidence": 0.9}`,
			expected: decisionPayload{Complete: true, Reasoning: "done", Confidence: 0.9},
		},
		{
			name:     "fenced with language tag",
			input:    "```json\n{\"complete\": false, \"reasoning\": \"keep going\"}\n```",
			expected: decisionPayload{Reasoning: "keep going"},
		},
		{
			name:     "fenced after prose",
			input:    "Here is my answer:\n```\n{\"reasoning\": \"fenced\"}\n```\nGood luck.",
			expected: decisionPayload{Reasoning: "fenced"},
		},
		{
			name:     "object embedded in prose",
			input:    `Sure! {"reasoning": "embedded", "confidence": 0.5} Let me know.`,
			expected: decisionPayload{Reasoning: "embedded", Confidence: 0.5},
		},
		{
			name:     "nested braces use the widest span",
			input:    `Answer: {"reasoning": "outer {inner}", "complete": true}`,
			expected: decisionPayload{Reasoning: "outer {inner}", Complete: true},
		},
		{
			name:     "unterminated fence",
			input:    "```json\n{\"reasoning\": \"cut off fence\"}",
			expected: decisionPayload{Reasoning: "cut off fence"},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseJSONResponse[decisionPayload](tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, *got)
		})
	}
}

func TestParseJSONResponseIntoMap(t *testing.T) {
	got, err := ParseJSONResponse[map[string]any]("```json\n{\"next_action\": {\"type\": \"click\", \"target_uid\": \"b1\"}}\n```")
	require.NoError(t, err)
	next, ok := (*got)["next_action"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "b1", next["target_uid"])
}

func TestParseJSONResponseFailures(t *testing.T) {
	for _, input := range []string{"", "   ", "I could not decide.", "{not json}", "```\nnope\n```"} {
		_, err := ParseJSONResponse[map[string]any](input)
		assert.ErrorIs(t, err, ErrNoJSON, "input %q", input)
	}

	_, err := ParseJSONResponse[map[string]any](strings.Repeat("x", 2000))
	require.Error(t, err)
	assert.Less(t, len(err.Error()), 700, "echoed response is truncated")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abc", 2))
	assert.Equal(t, "日本...", Truncate("日本語", 2))
	assert.Equal(t, "", Truncate("abc", 0))
}
