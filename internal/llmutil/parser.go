// internal/llmutil/parser.go
package llmutil

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"
)

// ErrNoJSON is wrapped by ParseJSONResponse when no strategy yields a value.
var ErrNoJSON = errors.New("no parsable JSON in model response")

// fencedBlockRegex matches markdown code fences with an optional language tag.
// \x60 is a backtick.
var fencedBlockRegex = regexp.MustCompile("(?s)\x60\x60\x60[a-zA-Z]*[ \\t]*\\r?\\n?(.*?)\x60\x60\x60")

// ParseJSONResponse decodes a model response into T. It tries, in order: the
// whole trimmed response, each fenced code block, and the widest {...} or
// [...] span. The first strategy that decodes wins.
func ParseJSONResponse[T any](response string) (*T, error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return nil, fmt.Errorf("%w: empty response", ErrNoJSON)
	}

	var firstErr error
	try := func(candidate string) (*T, bool) {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			return nil, false
		}
		var out T
		if err := json.Unmarshal([]byte(candidate), &out); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return nil, false
		}
		return &out, true
	}

	if v, ok := try(response); ok {
		return v, nil
	}
	for _, m := range fencedBlockRegex.FindAllStringSubmatch(response, -1) {
		if v, ok := try(m[1]); ok {
			return v, nil
		}
	}
	// An unterminated fence still carries a usable body.
	body := response
	if strings.HasPrefix(body, "```") {
		body = strings.TrimLeft(strings.TrimPrefix(body, "```"), "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	}
	for _, span := range []string{widestSpan(body, '{', '}'), widestSpan(body, '[', ']')} {
		if v, ok := try(span); ok {
			return v, nil
		}
	}

	return nil, fmt.Errorf("%w: %v. Response (truncated): %s", ErrNoJSON, firstErr, Truncate(response, 500))
}

func widestSpan(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// Truncate shortens s to at most maxRunes runes, appending "..." when cut.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes]) + "..."
}
