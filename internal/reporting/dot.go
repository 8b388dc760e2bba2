package reporting

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/awalterschulze/gographviz"

	"github.com/xkilldash9x/navpilot/internal/session"
)

const (
	colorSuccess = "palegreen"
	colorFailure = "lightcoral"
	colorPending = "lightgrey"
	labelMax     = 40
)

// SessionGraph renders the action log as a chain: the goal, one node per
// action colored by its result, and a final node for the session status.
func SessionGraph(s *session.Session) (*gographviz.Graph, error) {
	g := gographviz.NewGraph()
	if err := g.SetName("session"); err != nil {
		return nil, err
	}
	if err := g.SetDir(true); err != nil {
		return nil, err
	}
	if err := g.AddAttr("session", "rankdir", "LR"); err != nil {
		return nil, err
	}

	add := func(name string, attrs map[string]string) error {
		if err := g.AddNode("session", name, attrs); err != nil {
			return fmt.Errorf("add node %s: %w", name, err)
		}
		return nil
	}

	if err := add("goal", map[string]string{
		"shape": "box",
		"label": quote("goal: " + clip(s.Goal)),
	}); err != nil {
		return nil, err
	}

	prev := "goal"
	for i, rec := range s.Actions {
		name := fmt.Sprintf("a%d", i+1)
		label := fmt.Sprintf("%d. %s", i+1, rec.Action.Type)
		if target := rec.Action.TargetRef(); target != "" {
			label += " " + clip(target)
		}
		if err := add(name, map[string]string{
			"shape":     "box",
			"style":     "filled",
			"fillcolor": resultColor(rec.Result),
			"label":     quote(label),
		}); err != nil {
			return nil, err
		}
		if err := g.AddEdge(prev, name, true, nil); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", prev, name, err)
		}
		prev = name
	}

	status := string(s.Status)
	if s.CompletionMessage != "" {
		status += `\n` + clip(s.CompletionMessage)
	}
	if err := add("status", map[string]string{
		"shape": "ellipse",
		"label": quote(status),
	}); err != nil {
		return nil, err
	}
	if err := g.AddEdge(prev, "status", true, nil); err != nil {
		return nil, fmt.Errorf("add edge %s->status: %w", prev, err)
	}
	return g, nil
}

func resultColor(r *session.ActionResult) string {
	switch {
	case r == nil:
		return colorPending
	case r.Succeeded():
		return colorSuccess
	default:
		return colorFailure
	}
}

// quote produces a DOT string literal. Newline escapes written as `\n` are
// kept so Graphviz renders them as line breaks.
func quote(s string) string {
	q := strconv.Quote(s)
	return strings.ReplaceAll(q, `\\n`, `\n`)
}

func clip(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= labelMax {
		return string(r)
	}
	return string(r[:labelMax]) + "…"
}

// DOTReporter writes one digraph per session.
type DOTReporter struct {
	w io.WriteCloser
}

func NewDOTReporter(w io.WriteCloser) *DOTReporter {
	return &DOTReporter{w: w}
}

func (r *DOTReporter) Write(s *session.Session) error {
	g, err := SessionGraph(s)
	if err != nil {
		return fmt.Errorf("failed to build session graph: %w", err)
	}
	if _, err := io.WriteString(r.w, g.String()); err != nil {
		return fmt.Errorf("failed to write session graph: %w", err)
	}
	return nil
}

func (r *DOTReporter) Close() error { return r.w.Close() }
