package dom

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// MaxCandidates bounds the ranked list handed to the planner.
	MaxCandidates = 80
	maxKeywords   = 12
	maxTextRunes  = 160
	maxClassRunes = 140
	ellipsis      = "…"
)

var (
	keywordPattern   = regexp.MustCompile(`[a-z0-9']+`)
	interactiveRoles = map[string]bool{
		"button": true, "link": true, "menuitem": true, "tab": true,
		"option": true, "switch": true, "checkbox": true, "radio": true,
	}
	sendHints = []string{"send", "submit", "post", "reply", "message"}
)

// Candidate is the simplified, scored view of an element.
type Candidate struct {
	UID         string  `json:"uid"`
	Type        string  `json:"type,omitempty"`
	Tag         string  `json:"tag,omitempty"`
	Text        string  `json:"text,omitempty"`
	AriaLabel   string  `json:"ariaLabel,omitempty"`
	Title       string  `json:"title,omitempty"`
	Href        string  `json:"href,omitempty"`
	Role        string  `json:"role,omitempty"`
	Placeholder string  `json:"placeholder,omitempty"`
	TestID      string  `json:"dataTestId,omitempty"`
	Class       string  `json:"class,omitempty"`
	InViewport  bool    `json:"inViewport"`
	Disabled    bool    `json:"disabled"`
	Score       float64 `json:"score"`
	Index       int     `json:"index"`
	Bounds      Bounds  `json:"bounds"`
}

// Keywords extracts lower-case tokens longer than two characters from goal,
// de-duplicated in order of first appearance and capped at twelve.
func Keywords(goal string) []string {
	if goal == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range keywordPattern.FindAllString(strings.ToLower(goal), -1) {
		if len(tok) <= 2 {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

// Rank scores every element of the snapshot against the goal and returns at
// most MaxCandidates candidates, best first. The snapshot is not modified and
// identical inputs always produce identical output.
func Rank(s *Snapshot, goal string) []Candidate {
	if s == nil || len(s.Elements) == 0 {
		return []Candidate{}
	}

	keywords := Keywords(goal)
	candidates := make([]Candidate, 0, len(s.Elements))
	for i, el := range s.Elements {
		candidates = append(candidates, score(i, el, keywords))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		at, bt := a.Bounds.Top, b.Bounds.Top
		switch {
		case at != nil && bt != nil && *at != *bt:
			return *at < *bt
		case at != nil && bt == nil:
			return true
		case at == nil && bt != nil:
			return false
		}
		return a.Index < b.Index
	})

	if len(candidates) > MaxCandidates {
		candidates = candidates[:MaxCandidates]
	}
	return candidates
}

func score(index int, el Element, keywords []string) Candidate {
	text := strings.TrimSpace(el.Text)
	tag := strings.ToLower(el.Tag)
	role := strings.ToLower(el.Attr("role"))
	aria := el.Attr("aria-label", "aria_label")
	title := el.Attr("title")
	href := el.Attr("href")
	placeholder := el.Attr("placeholder")
	testID := el.Attr("data-testid", "data-test-id", "data-test")
	class := el.Attr("class")

	var s float64
	if el.IsInViewport {
		s += 6
	}
	if tag == "a" || tag == "button" {
		s += 5
	}
	if interactiveRoles[role] {
		s += 4
	}
	if href != "" {
		s += 4
	}
	if aria != "" || title != "" {
		s += 2
	}
	if testID != "" {
		s += 3
	}
	if text != "" {
		s += math.Min(float64(utf8.RuneCountInString(text))/20.0, 4)
	}

	haystack := joinLower(text, aria, title, placeholder, class, testID)
	if haystack != "" {
		for _, kw := range keywords {
			if strings.Contains(haystack, kw) {
				s += 3
			}
		}
		if (tag == "button" || role == "button") && containsAny(haystack, sendHints) {
			s += 5
		}
	}

	if top := el.Bounds.Top; top != nil && !math.IsNaN(*top) && !math.IsInf(*top, 0) {
		s += math.Max(0, 4-*top/250.0)
	}

	return Candidate{
		UID:         el.UID,
		Type:        el.Type,
		Tag:         el.Tag,
		Text:        truncate(text, maxTextRunes),
		AriaLabel:   aria,
		Title:       title,
		Href:        href,
		Role:        role,
		Placeholder: placeholder,
		TestID:      testID,
		Class:       truncate(class, maxClassRunes),
		InViewport:  el.IsInViewport,
		Disabled:    el.Disabled(),
		Score:       math.Round(s*100) / 100,
		Index:       index,
		Bounds:      el.Bounds.clone(),
	}
}

func joinLower(parts ...string) string {
	nonEmpty := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, strings.ToLower(p))
		}
	}
	return strings.Join(nonEmpty, " ")
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit]) + ellipsis
}

func (b Bounds) clone() Bounds {
	cp := func(v *float64) *float64 {
		if v == nil {
			return nil
		}
		c := *v
		return &c
	}
	return Bounds{Top: cp(b.Top), Left: cp(b.Left), Width: cp(b.Width), Height: cp(b.Height)}
}
