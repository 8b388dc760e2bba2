package cmd

import (
	"errors"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/navpilot/internal/mocks"
)

func decodeMap(t *testing.T, out string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m), out)
	return m
}

func TestSessionLifecycle(t *testing.T) {
	llm := new(mocks.MockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything).Return(
		`{"understanding": "a landing page with a login button", "relevant_elements": ["btn-login"], "first_action": {"type": "click", "target_uid": "btn-login"}, "confidence": 0.8}`, nil).Once()
	llm.On("Generate", mock.Anything, mock.Anything).Return(
		"```json\n{\"complete\": false, \"reason\": \"open the form\", \"confidence\": 0.9, \"next_action\": {\"type\": \"click\", \"target_uid\": \"btn-login\"}}\n```", nil).Once()
	rt := newTestRuntime(t, llm)

	out, err := execute(t, rt, loginDOM, "session", "create", "--goal", "log in", "--url", "https://app.test/", "--dom", "-")
	require.NoError(t, err)
	created := decodeMap(t, out)
	id, _ := created["session_id"].(string)
	require.NotEmpty(t, id)
	analysis := created["analysis"].(map[string]any)
	assert.Equal(t, "a landing page with a login button", analysis["understanding"])

	out, err = execute(t, rt, `{"success": true, "action": "noop"}`, "session", "next", id, "--result", "-")
	require.NoError(t, err)
	outcome := decodeMap(t, out)
	plan := outcome["action_plan"].(map[string]any)
	assert.Equal(t, "btn-login", plan["next_action"].(map[string]any)["target_uid"])
	assert.EqualValues(t, 1, outcome["iteration"])

	out, err = execute(t, rt, "", "session", "show", id)
	require.NoError(t, err)
	shown := decodeMap(t, out)
	assert.Equal(t, "EXECUTING", shown["status"])
	assert.Len(t, shown["actions"], 1)

	out, err = execute(t, rt, "", "graph", id)
	require.NoError(t, err)
	assert.Contains(t, out, "digraph session")
	assert.Contains(t, out, "btn-login")

	out, err = execute(t, rt, "", "session", "complete", id, "--message", "logged in")
	require.NoError(t, err)
	done := decodeMap(t, out)
	assert.Equal(t, "COMPLETED", done["status"])
	assert.Equal(t, "logged in", done["message"])

	out, err = execute(t, rt, "", "session", "expire", "--max-age", "1ns")
	require.NoError(t, err)
	assert.EqualValues(t, 1, decodeMap(t, out)["expired"])

	_, err = execute(t, rt, "", "session", "show", id)
	assert.ErrorContains(t, err, "not found")
	llm.AssertExpectations(t)
}

func TestSessionNextReportsModelErrors(t *testing.T) {
	llm := new(mocks.MockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("upstream unavailable"))
	rt := newTestRuntime(t, llm)

	out, err := execute(t, rt, "", "session", "create", "--goal", "log in")
	require.NoError(t, err)
	id := decodeMap(t, out)["session_id"].(string)

	out, err = execute(t, rt, loginDOM, "session", "next", id, "--dom", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "planner error")
	assert.Contains(t, out, "Model API error", "the fallback decision is still printed")
}

func TestSessionCommandErrors(t *testing.T) {
	rt := newTestRuntime(t, new(mocks.MockLLMClient))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"create without goal", []string{"session", "create"}, `required flag(s) "goal" not set`},
		{"ingest without dom", []string{"session", "ingest", "abc"}, `required flag(s) "dom" not set`},
		{"next without id", []string{"session", "next"}, "accepts 1 arg(s), received 0"},
		{"next without snapshot", []string{"session", "next", "missing"}, "not found"},
		{"both inputs on stdin", []string{"session", "next", "x", "--dom", "-", "--result", "-"}, "only one of --dom and --result"},
		{"graph for unknown session", []string{"graph", "x"}, "not found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := execute(t, rt, "", tc.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSessionNextRequiresSnapshot(t *testing.T) {
	rt := newTestRuntime(t, new(mocks.MockLLMClient))

	out, err := execute(t, rt, "", "session", "create", "--goal", "log in")
	require.NoError(t, err)
	id := decodeMap(t, out)["session_id"].(string)

	_, err = execute(t, rt, "", "session", "next", id)
	assert.ErrorContains(t, err, "DOM data is required")
}
