// Package history condenses the tail of a session's action log into signals
// that steer planning away from degenerate loops.
package history

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xkilldash9x/navpilot/internal/action"
	"github.com/xkilldash9x/navpilot/internal/session"
)

const (
	recapLength     = 5
	recapMessageMax = 80
	signalThreshold = 2

	noActionsText  = "No actions taken yet"
	noPreviousText = "No previous action"
)

// Outcome classifies the previous result.
type Outcome string

const (
	OutcomeNone      Outcome = "none"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// messageFieldHints mark selectors and uids that look like a composer.
var messageFieldHints = []string{"message", "compose", "reply", "chat", "comment", "textarea", "contenteditable", "textbox"}

// Framing describes the most recent attached result. It is advisory only.
type Framing struct {
	Outcome      Outcome
	Action       string
	Target       string
	Navigated    bool
	URL          string
	MessageEntry bool
	Errors       []string
	Successes    []string
	Failure      string
}

// Digest is the condensed view of the action log.
type Digest struct {
	ScrollStreak      int
	RepeatClickStreak int
	RepeatClickTarget string
	Previous          Framing
	Recap             []string
}

// Summarize builds a digest from records, oldest first. When previous is
// non-nil it frames the newest record; otherwise the most recent record with
// an attached result is used.
func Summarize(records []session.ActionRecord, previous *session.ActionResult) Digest {
	d := Digest{
		Previous: frame(records, previous),
		Recap:    recap(records),
	}
	d.ScrollStreak = scrollStreak(records)
	d.RepeatClickStreak, d.RepeatClickTarget = repeatClicks(records)
	return d
}

// ScrollDiscouraged reports whether the scroll streak warrants a warning.
func (d Digest) ScrollDiscouraged() bool {
	return d.ScrollStreak >= signalThreshold
}

// RepeatClickDiscouraged reports whether the same target was clicked repeatedly.
func (d Digest) RepeatClickDiscouraged() bool {
	return d.RepeatClickStreak >= signalThreshold && d.RepeatClickTarget != ""
}

// Signals returns the discouragement lines, in a stable order.
func (d Digest) Signals() []string {
	var out []string
	if d.ScrollDiscouraged() {
		out = append(out, fmt.Sprintf(
			"WARNING: The last %d actions were SCROLL and did not progress the goal. "+
				"Avoid recommending another scroll. Choose a different action that directly advances the objective.",
			d.ScrollStreak))
	}
	if d.RepeatClickDiscouraged() {
		out = append(out, fmt.Sprintf(
			"WARNING: The last %d actions were CLICK on the SAME element (uid=%s). "+
				"Do NOT click the same element again. Prefer an alternative: wait_for_selector for the expected input, "+
				"type into the revealed input/contenteditable, or click a different control that clearly advances the goal.",
			d.RepeatClickStreak, d.RepeatClickTarget))
	}
	return out
}

// FramingText renders the previous-result framing followed by any signals.
func (d Digest) FramingText() string {
	var b strings.Builder
	p := d.Previous

	switch p.Outcome {
	case OutcomeSucceeded:
		fmt.Fprintf(&b, "Action succeeded: %s on %s", orNA(p.Action), orNA(p.Target))
		if p.Navigated {
			fmt.Fprintf(&b, "\nNavigated to: %s", orNA(p.URL))
		}
		if p.MessageEntry {
			b.WriteString("\nText was entered into a message field. It has not been sent yet; activate the send control before declaring completion.")
		}
		if len(p.Errors) > 0 {
			fmt.Fprintf(&b, "\nPage errors: %s", strings.Join(p.Errors, ", "))
		}
		if len(p.Successes) > 0 {
			fmt.Fprintf(&b, "\nSuccess messages: %s", strings.Join(p.Successes, ", "))
		}
	case OutcomeFailed:
		fmt.Fprintf(&b, "Action failed: %s", orDefault(p.Failure, "unknown error"))
	default:
		b.WriteString(noPreviousText)
	}

	for _, s := range d.Signals() {
		b.WriteString("\n")
		b.WriteString(s)
	}
	return b.String()
}

// RecapText joins the recap lines, or explains that nothing happened yet.
func (d Digest) RecapText() string {
	if len(d.Recap) == 0 {
		return noActionsText
	}
	return strings.Join(d.Recap, "\n")
}

func frame(records []session.ActionRecord, previous *session.ActionResult) Framing {
	var rec *session.ActionRecord
	result := previous

	if result != nil {
		if n := len(records); n > 0 {
			rec = &records[n-1]
		}
	} else {
		for i := len(records) - 1; i >= 0; i-- {
			if records[i].Result != nil {
				rec = &records[i]
				result = records[i].Result
				break
			}
		}
	}
	if result == nil {
		return Framing{Outcome: OutcomeNone}
	}

	if !result.Succeeded() {
		return Framing{Outcome: OutcomeFailed, Failure: result.Error}
	}

	f := Framing{
		Outcome:   OutcomeSucceeded,
		Action:    result.Action,
		Target:    result.TargetUID,
		Navigated: result.Navigated,
		URL:       result.URL,
		Errors:    result.Errors,
		Successes: result.Successes,
	}
	if rec != nil {
		if f.Action == "" {
			f.Action = string(rec.Action.Type)
		}
		if f.Target == "" {
			f.Target = rec.Action.TargetRef()
		}
	}
	f.MessageEntry = result.MessageField || (rec != nil && isMessageEntry(rec.Action))
	return f
}

func isMessageEntry(a action.Action) bool {
	if a.Type != action.KindType {
		return false
	}
	haystack := strings.ToLower(a.TargetUID + " " + a.Target + " " + a.TargetSelector)
	for _, h := range messageFieldHints {
		if strings.Contains(haystack, h) {
			return true
		}
	}
	return false
}

func scrollStreak(records []session.ActionRecord) int {
	n := 0
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if kindOf(rec.Action) != action.KindScroll || rec.Result.Failed() {
			break
		}
		n++
	}
	return n
}

func repeatClicks(records []session.ActionRecord) (int, string) {
	n := 0
	var target string
	for i := len(records) - 1; i >= 0; i-- {
		a := records[i].Action
		if kindOf(a) != action.KindClick {
			break
		}
		ref := a.TargetRef()
		if n == 0 {
			target = ref
		} else if ref != target {
			break
		}
		n++
	}
	return n, target
}

func recap(records []session.ActionRecord) []string {
	start := len(records) - recapLength
	if start < 0 {
		start = 0
	}
	tail := records[start:]

	lines := make([]string, 0, len(tail))
	for i, rec := range tail {
		kind := string(rec.Action.Type)
		if kind == "" {
			kind = "unknown"
		}

		status := "pending"
		switch {
		case rec.Result == nil:
		case rec.Result.Succeeded():
			status = "success"
		default:
			status = "failure"
		}

		target := rec.Action.TargetRef()
		if target == "" {
			target = rec.Action.Value
		}

		line := fmt.Sprintf("%d. %s -> %s (%s)", i+1, kind, status, orNA(target))
		if rec.Result != nil {
			msg := rec.Result.Message
			if msg == "" {
				msg = rec.Result.Error
			}
			if msg = strings.TrimSpace(strings.ReplaceAll(msg, "\n", " ")); msg != "" {
				line += " | " + clip(msg, recapMessageMax)
			}
		}
		lines = append(lines, line)
	}
	return lines
}

func kindOf(a action.Action) action.Kind {
	return action.Kind(strings.ToLower(strings.TrimSpace(string(a.Type))))
}

func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "…"
}

func orNA(s string) string {
	return orDefault(s, "n/a")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
