// Package decision holds the payloads produced by one planning round and
// their deterministic fallbacks.
package decision

import (
	"github.com/xkilldash9x/navpilot/internal/action"
)

const (
	// ReasonMaxIterations is reported when the session hit its iteration ceiling.
	ReasonMaxIterations = "Maximum iterations reached"
	// ReasonUndetermined is reported when the model could not produce a decision.
	ReasonUndetermined = "Unable to determine next action"
	// ErrorModelUnavailable marks a decision or analysis built from a fallback.
	ErrorModelUnavailable = "Model API error"
)

// Decision is the outcome of one planning round.
type Decision struct {
	Complete   bool           `json:"complete"`
	Reason     string         `json:"reason"`
	Confidence float64        `json:"confidence"`
	NextAction *action.Action `json:"next_action"`

	Error      string          `json:"error,omitempty"`
	Transient  bool            `json:"transient,omitempty"`
	Validation *action.Verdict `json:"validation,omitempty"`
}

// Empty reports whether the decision neither completes nor proposes an action.
func (d Decision) Empty() bool {
	return !d.Complete && d.NextAction == nil
}

// Analysis is the initial understanding produced when a snapshot is ingested.
type Analysis struct {
	Understanding    string         `json:"understanding"`
	RelevantElements []string       `json:"relevant_elements"`
	FirstAction      *action.Action `json:"first_action"`
	NextSteps        []string       `json:"next_steps"`
	Confidence       float64        `json:"confidence"`

	Error      string          `json:"error,omitempty"`
	Validation *action.Verdict `json:"validation,omitempty"`
}

// CompletionCheck is the verdict of the secondary completion probe.
type CompletionCheck struct {
	Complete   bool     `json:"complete"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Evidence   []string `json:"evidence,omitempty"`
}

// FallbackAnalysis is returned whenever the model call or its parsing fails
// during ingest.
func FallbackAnalysis() Analysis {
	return Analysis{
		Understanding:    "Unable to analyze page",
		RelevantElements: []string{},
		NextSteps:        []string{},
		Confidence:       0,
		Error:            ErrorModelUnavailable,
	}
}

// FallbackDecision is returned when the planning call fails. It is transient
// so the caller may retry.
func FallbackDecision() Decision {
	return Decision{
		Complete:   false,
		Reason:     ReasonUndetermined,
		Confidence: 0,
		Error:      ErrorModelUnavailable,
		Transient:  true,
	}
}

// MaxIterationsDecision is the non-terminal answer given at the iteration
// ceiling. It never carries an action.
func MaxIterationsDecision() Decision {
	return Decision{Complete: false, Reason: ReasonMaxIterations}
}

// FallbackCompletionCheck is used when the completion probe fails.
func FallbackCompletionCheck() CompletionCheck {
	return CompletionCheck{Reasoning: "Error checking completion"}
}
