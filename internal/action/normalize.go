package action

import "strings"

const (
	urlChangeDefaultDuration = 5000
	urlChangeMinDuration     = 1500
	urlChangeRaisedDuration  = 4000

	networkIdleDefaultDuration = 4000
	networkIdleDefaultIdleMs   = 800

	waitDefaultDuration      = 1000
	waitOtherDefaultDuration = 2000
	waitMinDuration          = 100
	waitMaxDuration          = 60000
)

// MatchMode values understood by wait_for_url_change.
const (
	MatchChange   = "change"
	MatchEquals   = "equals"
	MatchContains = "contains"
	MatchRegex    = "regex"
)

// Normalize returns a canonical copy of a. The input is never mutated and
// Normalize(Normalize(a)) equals Normalize(a) for every action.
func Normalize(a Action) Action {
	out := a.Clone()

	kind := Kind(strings.ToLower(strings.TrimSpace(string(out.Type))))
	if alias, ok := kindAliases[kind]; ok {
		kind = alias
	}
	out.Type = kind

	switch kind {
	case KindWaitForURLChange:
		out.Match = normalizeMatch(out.Match)
		switch {
		case out.Duration == nil || *out.Duration == 0:
			out.Duration = intPtr(urlChangeDefaultDuration)
		case *out.Duration < urlChangeMinDuration:
			// Short URL waits flake on slow redirects.
			out.Duration = intPtr(urlChangeRaisedDuration)
		}
	case KindWaitNetworkIdle:
		if out.Duration == nil || *out.Duration == 0 {
			out.Duration = intPtr(networkIdleDefaultDuration)
		}
		if out.IdleMs == nil {
			out.IdleMs = intPtr(networkIdleDefaultIdleMs)
		}
	}

	return out
}

func normalizeMatch(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	switch m {
	case MatchChange, MatchEquals, MatchContains, MatchRegex:
		return m
	default:
		return MatchChange
	}
}

// clampWait applies the wait-family default and bounds to d.
func clampWait(kind Kind, d *int) *int {
	var v int
	switch {
	case d != nil:
		v = *d
	case kind == KindWait:
		v = waitDefaultDuration
	default:
		v = waitOtherDefaultDuration
	}
	if v < waitMinDuration {
		v = waitMinDuration
	}
	if v > waitMaxDuration {
		v = waitMaxDuration
	}
	return intPtr(v)
}
