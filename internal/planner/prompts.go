package planner

import (
	"fmt"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/navpilot/internal/action"
	"github.com/xkilldash9x/navpilot/internal/dom"
	"github.com/xkilldash9x/navpilot/internal/history"
	"github.com/xkilldash9x/navpilot/internal/session"
)

const (
	analysisSystemPrompt   = "You are a browser automation assistant. Analyze the webpage you are given and determine what actions to take."
	nextActionSystemPrompt = "You are continuing a browser automation task. You receive the goal, the recent history and the interactive elements of the current page."
	completionSystemPrompt = "You evaluate whether a browser automation task is complete."
	jsonOnly               = "IMPORTANT: Only return valid JSON, no other text."
)

func kindList() string {
	kinds := action.AllowedKinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, "|")
}

func actionSchema(indent string) string {
	lines := []string{
		"{",
		fmt.Sprintf(`    "type": "%s",`, kindList()),
		`    "target_uid": "element_uid (if applicable)",`,
		`    "value": "text to type (type action) or URL (navigate) or option value/text (select)",`,
		`    "key": "Key to press (press action, e.g., Enter)",`,
		`    "duration": 1000,`,
		`    "target_selector": "CSS selector for wait_for_selector (optional)",`,
		`    "reasoning": "Why this action"`,
		"}",
	}
	return strings.Join(lines, "\n"+indent)
}

func keywordLine(goal string) string {
	kw := dom.Keywords(goal)
	if len(kw) == 0 {
		return "n/a"
	}
	return strings.Join(kw, ", ")
}

func candidatesJSON(c []dom.Candidate) (string, error) {
	if c == nil {
		c = []dom.Candidate{}
	}
	out, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode candidates: %w", err)
	}
	return string(out), nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func analysisPrompt(goal string, snap *dom.Snapshot, candidates []dom.Candidate) (string, error) {
	elements, err := candidatesJSON(candidates)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`USER GOAL: %s

GOAL KEYWORDS: %s

WEBPAGE URL: %s
WEBPAGE TITLE: %s

AVAILABLE INTERACTIVE ELEMENTS:
%s

TASK:
1. Identify which element(s) are relevant to the user's goal
2. Determine the first action to take
3. Explain your reasoning

Return your response in this JSON format:
{
    "understanding": "Brief description of what you understand the user wants",
    "relevant_elements": ["uid1", "uid2", ...],
    "first_action": %s,
    "next_steps": ["step2", "step3", ...],
    "confidence": 0.0-1.0
}

%s`, goal, keywordLine(goal), orUnknown(snap.URL), orUnknown(snap.Title), elements, actionSchema("    "), jsonOnly), nil
}

type nextActionInput struct {
	session    *session.Session
	snapshot   *dom.Snapshot
	digest     history.Digest
	candidates []dom.Candidate
	shown      int
	rules      []Rule
}

func nextActionPrompt(in nextActionInput) (string, error) {
	shown := in.candidates
	if in.shown > 0 && len(shown) > in.shown {
		shown = shown[:in.shown]
	}
	elements, err := candidatesJSON(shown)
	if err != nil {
		return "", err
	}

	s := in.session
	return fmt.Sprintf(`USER GOAL: %s
ITERATION: %d/%d

PREVIOUS ACTIONS:
%s

PREVIOUS ACTION RESULT:
%s

CURRENT PAGE STATE:
URL: %s
Title: %s
Elements available: %d

GOAL KEYWORDS: %s

AVAILABLE ELEMENTS:
%s

TASK: Determine if the goal is complete, or what action to take next.

Return JSON in this exact format:
{
    "complete": true or false,
    "reason": "Why task is complete or what we're trying to do",
    "confidence": 0.0-1.0,
    "next_action": %s or null if complete
}

IMPORTANT RULES:
%s`,
		s.Goal, s.Iteration+1, s.MaxIterations,
		in.digest.RecapText(),
		in.digest.FramingText(),
		orUnknown(in.snapshot.URL), orUnknown(in.snapshot.Title), len(in.candidates),
		keywordLine(s.Goal),
		elements,
		actionSchema("    "),
		Render(in.rules),
	), nil
}

func completionPrompt(s *session.Session, d history.Digest) string {
	url, title := "unknown", "unknown"
	if s.DOM != nil {
		url, title = orUnknown(s.DOM.URL), orUnknown(s.DOM.Title)
	}
	return fmt.Sprintf(`USER GOAL: %s

ACTIONS TAKEN:
%s

CURRENT PAGE:
URL: %s
Title: %s

QUESTION: Has the user's goal been achieved?

Return JSON:
{
    "complete": true/false,
    "confidence": 0.0-1.0,
    "reasoning": "Detailed explanation",
    "evidence": ["What on the page indicates success/failure"]
}

%s`, s.Goal, d.RecapText(), url, title, jsonOnly)
}
