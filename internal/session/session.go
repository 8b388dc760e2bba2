// Package session owns the life cycle of one goal pursuit: its status,
// iteration counter, latest DOM snapshot and append-only action log.
package session

import (
	"errors"
	"time"

	"github.com/xkilldash9x/navpilot/internal/action"
	"github.com/xkilldash9x/navpilot/internal/decision"
	"github.com/xkilldash9x/navpilot/internal/dom"
)

// DefaultMaxIterations is the iteration ceiling applied when none is configured.
const DefaultMaxIterations = 20

// ErrSessionNotFound is returned for operations on an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// Status is the state of a session.
type Status string

const (
	StatusPlanning  Status = "PLANNING"
	StatusExecuting Status = "EXECUTING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// IsTerminal reports whether no further actions should be planned.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ActionResult is the outcome of executing an action, as reported by the page.
type ActionResult struct {
	// Success is tri-state: nil means the executor did not say.
	Success      *bool    `json:"success,omitempty"`
	Action       string   `json:"action,omitempty"`
	TargetUID    string   `json:"target_uid,omitempty"`
	Navigated    bool     `json:"navigated,omitempty"`
	URL          string   `json:"url,omitempty"`
	Errors       []string `json:"errors,omitempty"`
	Successes    []string `json:"successes,omitempty"`
	Message      string   `json:"message,omitempty"`
	Error        string   `json:"error,omitempty"`
	MessageField bool     `json:"message_field,omitempty"`
}

// Succeeded reports an explicit success.
func (r *ActionResult) Succeeded() bool {
	return r != nil && r.Success != nil && *r.Success
}

// Failed reports an explicit failure.
func (r *ActionResult) Failed() bool {
	return r != nil && r.Success != nil && !*r.Success
}

func (r *ActionResult) clone() *ActionResult {
	if r == nil {
		return nil
	}
	out := *r
	if r.Success != nil {
		v := *r.Success
		out.Success = &v
	}
	out.Errors = append([]string(nil), r.Errors...)
	out.Successes = append([]string(nil), r.Successes...)
	return &out
}

// ActionRecord is one planned step and, once reported, its result.
type ActionRecord struct {
	ID        string        `json:"id"`
	Action    action.Action `json:"action"`
	Result    *ActionResult `json:"result"`
	Timestamp time.Time     `json:"timestamp"`
}

// Session is the authoritative state of one goal pursuit.
type Session struct {
	ID                string             `json:"id"`
	Goal              string             `json:"goal"`
	URL               string             `json:"url,omitempty"`
	Status            Status             `json:"status"`
	DOM               *dom.Snapshot      `json:"dom,omitempty"`
	Analysis          *decision.Analysis `json:"analysis,omitempty"`
	Actions           []ActionRecord     `json:"actions"`
	Iteration         int                `json:"iteration"`
	MaxIterations     int                `json:"max_iterations"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	CompletedAt       *time.Time         `json:"completed_at,omitempty"`
	CompletionMessage string             `json:"completion_message,omitempty"`
}

// LastRecord returns the most recent action record, or nil for an empty log.
func (s *Session) LastRecord() *ActionRecord {
	if len(s.Actions) == 0 {
		return nil
	}
	return &s.Actions[len(s.Actions)-1]
}

// Clone returns a copy that shares nothing mutable with s. The DOM snapshot is
// read-only and therefore shared.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Actions = make([]ActionRecord, len(s.Actions))
	for i, rec := range s.Actions {
		out.Actions[i] = ActionRecord{
			ID:        rec.ID,
			Action:    rec.Action.Clone(),
			Result:    rec.Result.clone(),
			Timestamp: rec.Timestamp,
		}
	}
	if s.Analysis != nil {
		a := *s.Analysis
		a.RelevantElements = append([]string(nil), s.Analysis.RelevantElements...)
		a.NextSteps = append([]string(nil), s.Analysis.NextSteps...)
		if s.Analysis.FirstAction != nil {
			fa := s.Analysis.FirstAction.Clone()
			a.FirstAction = &fa
		}
		out.Analysis = &a
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
