package decision

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/xkilldash9x/navpilot/internal/action"
)

// DecisionFromMap lifts a parsed model payload into a Decision. Field types
// are coerced leniently; "reasoning" is accepted when "reason" is absent.
func DecisionFromMap(raw map[string]any) Decision {
	d := Decision{
		Complete:   boolOf(raw["complete"]),
		Reason:     stringOf(raw["reason"]),
		Confidence: confidenceOf(raw["confidence"]),
		NextAction: actionOf(raw["next_action"]),
		Error:      stringOf(raw["error"]),
		Transient:  boolOf(raw["transient"]),
	}
	if d.Reason == "" {
		d.Reason = stringOf(raw["reasoning"])
	}
	return d
}

// AnalysisFromMap lifts a parsed model payload into an Analysis.
func AnalysisFromMap(raw map[string]any) Analysis {
	return Analysis{
		Understanding:    stringOf(raw["understanding"]),
		RelevantElements: stringsOf(raw["relevant_elements"]),
		FirstAction:      actionOf(raw["first_action"]),
		NextSteps:        stringsOf(raw["next_steps"]),
		Confidence:       confidenceOf(raw["confidence"]),
		Error:            stringOf(raw["error"]),
	}
}

// CompletionFromMap lifts a parsed model payload into a CompletionCheck.
func CompletionFromMap(raw map[string]any) CompletionCheck {
	return CompletionCheck{
		Complete:   boolOf(raw["complete"]),
		Confidence: confidenceOf(raw["confidence"]),
		Reasoning:  stringOf(raw["reasoning"]),
		Evidence:   stringsOf(raw["evidence"]),
	}
}

func boolOf(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	default:
		return false
	}
}

func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func floatOf(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// confidenceOf coerces v into [0, 1].
func confidenceOf(v any) float64 {
	c := floatOf(v)
	switch {
	case c != c || c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

func stringsOf(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return append([]string{}, ss...)
		}
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s := stringOf(it); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// actionOf returns nil for anything other than a non-empty object.
func actionOf(v any) *action.Action {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	a := action.FromMap(m)
	return &a
}
