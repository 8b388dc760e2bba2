package planner

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/navpilot/internal/dom"
	"github.com/xkilldash9x/navpilot/internal/history"
	"github.com/xkilldash9x/navpilot/internal/session"
)

var (
	urlPattern       = regexp.MustCompile(`(?i)\bhttps?://|\bwww\.|\b[a-z0-9-]+\.(com|org|net|io|dev|app|co|ai|edu|gov)\b`)
	messagingPattern = regexp.MustCompile(`(?i)\b(message|messages|send|reply|dm|chat|text|email|comment|post)\b`)
)

var autocompleteRoles = map[string]bool{"combobox": true, "listbox": true, "searchbox": true}

func buildRuleEnv(s *session.Session, d history.Digest, snap *dom.Snapshot) RuleEnv {
	env := RuleEnv{
		Iteration:         s.Iteration,
		MaxIterations:     s.MaxIterations,
		ScrollStreak:      d.ScrollStreak,
		RepeatClickStreak: d.RepeatClickStreak,
		LastSucceeded:     d.Previous.Outcome == history.OutcomeSucceeded,
		LastFailed:        d.Previous.Outcome == history.OutcomeFailed,
		Navigated:         d.Previous.Navigated,
		TextEntered:       d.Previous.MessageEntry,
		MessagingGoal:     messagingPattern.MatchString(s.Goal),
		GoalMentionsURL:   urlPattern.MatchString(s.Goal),
		AutocompleteHint:  hasAutocomplete(snap),
	}
	if last := s.LastRecord(); last != nil {
		env.LastAction = string(last.Action.Type)
	}
	return env
}

func hasAutocomplete(snap *dom.Snapshot) bool {
	if snap == nil {
		return false
	}
	for _, el := range snap.Elements {
		if ac := strings.ToLower(el.Attr("aria-autocomplete", "autocomplete")); ac == "list" || ac == "both" {
			return true
		}
		if autocompleteRoles[strings.ToLower(el.Attr("role"))] {
			return true
		}
	}
	return false
}
