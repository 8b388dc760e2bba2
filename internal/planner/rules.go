package planner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/xkilldash9x/navpilot/internal/config"
)

// Rule is one instruction line shown to the model. When is an expression
// over RuleEnv; an empty When always applies.
type Rule struct {
	ID   string
	Text string
	When string
}

// RuleEnv is the planning state visible to rule conditions.
type RuleEnv struct {
	Iteration         int    `expr:"iteration"`
	MaxIterations     int    `expr:"max_iterations"`
	ScrollStreak      int    `expr:"scroll_streak"`
	RepeatClickStreak int    `expr:"repeat_click_streak"`
	LastAction        string `expr:"last_action"`
	LastSucceeded     bool   `expr:"last_succeeded"`
	LastFailed        bool   `expr:"last_failed"`
	Navigated         bool   `expr:"navigated"`
	TextEntered       bool   `expr:"text_entered"`
	MessagingGoal     bool   `expr:"messaging_goal"`
	GoalMentionsURL   bool   `expr:"goal_mentions_url"`
	AutocompleteHint  bool   `expr:"autocomplete_hint"`
}

// DefaultRules returns the built-in rule list.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "goal-achieved", Text: "If goal appears achieved (success message, reached target page, form submitted), set complete=true"},
		{ID: "stuck", Text: "If stuck (same error 3+ times, no relevant elements), set complete=false and explain"},
		{ID: "json-only", Text: "Only return valid JSON, no other text"},
		{ID: "type-value", Text: `For type actions, always include the text in "value" field`},
		{ID: "concise", Text: "Be concise in reasoning"},
		{ID: "scroll-avoidance", Text: `Avoid recommending "scroll" unless it is the only viable step. Never recommend scroll if the last action was already a scroll.`},
		{ID: "direct-interaction", Text: "Prefer direct interactions (click/type/select/submit) on elements whose text, aria-label, or title matches the goal keywords."},
		{ID: "navigate-urls", Text: `Use "navigate|go_to_url|open_url|m_go_to_url" when the goal explicitly mentions a URL or site.`},
		{ID: "reveal-inputs", Text: `Recommend "wait" or "wait_for_selector" when an action should reveal inputs (e.g., after clicking 'Edit profile'). Use a specific selector like input[name*="bio"], textarea[name*="bio"], [contenteditable="true"].`},
		{ID: "anti-repeat-click", Text: "Do NOT click the same element more than once in a row. If the last click didn't reveal a new field, try wait_for_selector or choose a different element."},
		{ID: "best-available", Text: "If no perfect match exists, choose the best available element rather than returning null."},
		{
			ID:   "send-before-completion",
			Text: "This is a messaging goal. Typing the message is not enough: activate the send/submit/post/reply control before setting complete=true.",
			When: "messaging_goal",
		},
		{
			ID:   "autocomplete-two-step",
			Text: "An autocomplete field is on the page. Type the query first, then in a separate step wait_for_selector for the suggestion list and click the matching option.",
			When: "autocomplete_hint",
		},
		{
			ID:   "navigation-aware",
			Text: "The last action navigated to a new page. Element uids from the previous page are no longer valid; choose only from AVAILABLE ELEMENTS.",
			When: "navigated",
		},
	}
}

// RulesFromConfig converts configured rules; an empty list yields the defaults.
func RulesFromConfig(cfgs []config.RuleConfig) []Rule {
	if len(cfgs) == 0 {
		return DefaultRules()
	}
	out := make([]Rule, len(cfgs))
	for i, c := range cfgs {
		id := c.ID
		if id == "" {
			id = fmt.Sprintf("rule-%d", i+1)
		}
		out[i] = Rule{ID: id, Text: c.Text, When: c.When}
	}
	return out
}

type compiledRule struct {
	Rule
	program *vm.Program
}

// RuleSet is a compiled rule list. It is immutable and safe for concurrent use.
type RuleSet struct {
	rules []compiledRule
}

// NewRuleSet compiles every condition up front so a bad expression fails at
// startup rather than mid-session.
func NewRuleSet(rules []Rule) (*RuleSet, error) {
	rs := &RuleSet{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		if strings.TrimSpace(r.Text) == "" {
			return nil, fmt.Errorf("rule %q has no text", r.ID)
		}
		cr := compiledRule{Rule: r}
		if when := strings.TrimSpace(r.When); when != "" {
			program, err := expr.Compile(when, expr.Env(RuleEnv{}), expr.AsBool())
			if err != nil {
				return nil, fmt.Errorf("rule %q: invalid condition: %w", r.ID, err)
			}
			cr.program = program
		}
		rs.rules = append(rs.rules, cr)
	}
	return rs, nil
}

// Len reports the number of rules.
func (rs *RuleSet) Len() int { return len(rs.rules) }

// Applicable returns the rules whose condition holds for env, in declaration
// order. A condition that fails to evaluate excludes its rule and is reported
// in the joined error.
func (rs *RuleSet) Applicable(env RuleEnv) ([]Rule, error) {
	var (
		out  []Rule
		errs []error
	)
	for _, r := range rs.rules {
		if r.program == nil {
			out = append(out, r.Rule)
			continue
		}
		res, err := expr.Run(r.program, env)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", r.ID, err))
			continue
		}
		if ok, _ := res.(bool); ok {
			out = append(out, r.Rule)
		}
	}
	return out, errors.Join(errs...)
}

// Render numbers the rules one per line.
func Render(rules []Rule) string {
	var b strings.Builder
	for i, r := range rules {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, r.Text)
	}
	return b.String()
}
