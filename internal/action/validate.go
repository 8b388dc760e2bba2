package action

import (
	"errors"
	"fmt"
)

// Code classifies why an action failed validation.
type Code string

const (
	CodeMissingType     Code = "MissingType"
	CodeUnsupportedType Code = "UnsupportedType"
	CodeMissingValue    Code = "MissingValue"
	CodeMissingTarget   Code = "MissingTarget"
)

// ValidationError reports a malformed action. It is recoverable; the caller
// decides whether to execute, repair, or discard the action.
type ValidationError struct {
	Code    Code
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validate normalizes a and checks it against the allowed vocabulary and the
// kind-specific requirements. The returned action is always the normalized
// form, even on failure. Wait-family durations are defaulted and clamped.
func Validate(a Action) (Action, error) {
	n := Normalize(a)

	if n.Type == "" {
		return n, &ValidationError{Code: CodeMissingType, Message: "missing action type"}
	}
	if !n.Type.IsAllowed() {
		return n, &ValidationError{
			Code:    CodeUnsupportedType,
			Message: fmt.Sprintf("unsupported action type: %s", n.Type),
		}
	}

	switch {
	case n.Type == KindType:
		if n.Value == "" {
			return n, &ValidationError{Code: CodeMissingValue, Message: "type action requires a non-empty value"}
		}
	case n.Type.IsNavigation():
		if n.Value == "" && n.URL == "" && n.TargetURL == "" {
			return n, &ValidationError{
				Code:    CodeMissingTarget,
				Message: fmt.Sprintf("%s action requires value, url or target_url", n.Type),
			}
		}
	case n.Type.IsWait():
		n.Duration = clampWait(n.Type, n.Duration)
	}

	return n, nil
}

// Verdict is the flattened result of Validate. Error is empty iff OK.
type Verdict struct {
	OK     bool   `json:"ok"`
	Action Action `json:"action"`
	Error  string `json:"error,omitempty"`
	Code   Code   `json:"code,omitempty"`
}

// Check runs Validate and renders the outcome as a Verdict.
func Check(a Action) Verdict {
	n, err := Validate(a)
	if err == nil {
		return Verdict{OK: true, Action: n}
	}
	v := Verdict{Action: n, Error: err.Error()}
	var verr *ValidationError
	if errors.As(err, &verr) {
		v.Code = verr.Code
	}
	if v.Error == "" {
		v.Error = "invalid action"
	}
	return v
}
