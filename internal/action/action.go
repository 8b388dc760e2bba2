// Package action defines the closed vocabulary of browser actions the planner
// may emit, and the normalization and validation rules that turn loosely
// typed model output into a canonical, safe payload.
package action

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies what an action does. Values are lower-case wire names.
type Kind string

const (
	KindClick            Kind = "click"
	KindType             Kind = "type"
	KindScroll           Kind = "scroll"
	KindWait             Kind = "wait"
	KindNavigate         Kind = "navigate"
	KindGoToURL          Kind = "go_to_url"
	KindOpenURL          Kind = "open_url"
	KindMGoToURL         Kind = "m_go_to_url"
	KindSelect           Kind = "select"
	KindHover            Kind = "hover"
	KindPress            Kind = "press"
	KindCheck            Kind = "check"
	KindUncheck          Kind = "uncheck"
	KindSubmit           Kind = "submit"
	KindWaitForSelector  Kind = "wait_for_selector"
	KindWaitForURLChange Kind = "wait_for_url_change"
	KindWaitNetworkIdle  Kind = "wait_network_idle"
)

// allowedKinds is the closed set of kinds the executor understands.
var allowedKinds = map[Kind]struct{}{
	KindClick: {}, KindType: {}, KindScroll: {}, KindWait: {},
	KindNavigate: {}, KindGoToURL: {}, KindOpenURL: {}, KindMGoToURL: {},
	KindSelect: {}, KindHover: {}, KindPress: {}, KindCheck: {},
	KindUncheck: {}, KindSubmit: {}, KindWaitForSelector: {},
	KindWaitForURLChange: {}, KindWaitNetworkIdle: {},
}

// kindAliases maps shorthand the model tends to invent onto canonical kinds.
var kindAliases = map[Kind]Kind{
	"go_to": KindNavigate,
	"open":  KindNavigate,
}

// AllowedKinds returns the allowed kinds in a stable order, for prompts and help text.
func AllowedKinds() []Kind {
	return []Kind{
		KindClick, KindType, KindScroll, KindWait, KindNavigate, KindGoToURL,
		KindOpenURL, KindMGoToURL, KindSelect, KindHover, KindPress, KindCheck,
		KindUncheck, KindSubmit, KindWaitForSelector, KindWaitForURLChange,
		KindWaitNetworkIdle,
	}
}

// IsAllowed reports whether k is part of the closed action vocabulary.
func (k Kind) IsAllowed() bool {
	_, ok := allowedKinds[k]
	return ok
}

// IsNavigation reports whether k belongs to the navigation family.
func (k Kind) IsNavigation() bool {
	switch k {
	case KindNavigate, KindGoToURL, KindOpenURL, KindMGoToURL:
		return true
	}
	return false
}

// IsWait reports whether k belongs to the wait family.
func (k Kind) IsWait() bool {
	switch k {
	case KindWait, KindWaitForSelector, KindWaitForURLChange, KindWaitNetworkIdle:
		return true
	}
	return false
}

// Action is a single planned interaction. Only Type is always meaningful; the
// remaining fields are kind specific. Fields the schema does not know about are
// kept in Extra so a round trip through the planner never drops data.
type Action struct {
	Type           Kind   `json:"type"`
	TargetUID      string `json:"target_uid,omitempty"`
	Target         string `json:"target,omitempty"`
	Value          string `json:"value,omitempty"`
	URL            string `json:"url,omitempty"`
	TargetURL      string `json:"target_url,omitempty"`
	Key            string `json:"key,omitempty"`
	Duration       *int   `json:"duration,omitempty"`
	TargetSelector string `json:"target_selector,omitempty"`
	Match          string `json:"match,omitempty"`
	IdleMs         *int   `json:"idle_ms,omitempty"`
	Reasoning      string `json:"reasoning,omitempty"`

	Extra map[string]any `json:"-"`
}

// TargetRef returns the element the action points at, preferring the uid.
func (a Action) TargetRef() string {
	if a.TargetUID != "" {
		return a.TargetUID
	}
	return a.Target
}

// Clone returns a deep copy of the action.
func (a Action) Clone() Action {
	out := a
	out.Duration = cloneInt(a.Duration)
	out.IdleMs = cloneInt(a.IdleMs)
	if a.Extra != nil {
		out.Extra = make(map[string]any, len(a.Extra))
		for k, v := range a.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// stringFields binds wire keys to the string fields of an Action.
func (a *Action) stringFields() map[string]*string {
	return map[string]*string{
		"target_uid":      &a.TargetUID,
		"target":          &a.Target,
		"value":           &a.Value,
		"url":             &a.URL,
		"target_url":      &a.TargetURL,
		"key":             &a.Key,
		"target_selector": &a.TargetSelector,
		"match":           &a.Match,
		"reasoning":       &a.Reasoning,
	}
}

// FromMap lifts a loosely typed JSON object into an Action. Numeric fields are
// coerced where possible and left nil otherwise; string fields that arrive with
// a non-string value are preserved in Extra rather than coerced.
func FromMap(raw map[string]any) Action {
	var a Action
	if raw == nil {
		return a
	}

	extra := make(map[string]any)
	fields := a.stringFields()

	for key, val := range raw {
		switch key {
		case "type":
			if val != nil {
				a.Type = Kind(fmt.Sprint(val))
			}
		case "duration":
			a.Duration = coerceInt(val)
		case "idle_ms", "idleMs":
			if a.IdleMs == nil {
				a.IdleMs = coerceInt(val)
			}
		case "mode":
			// Alias of match, consulted below once match has been seen.
		default:
			if dst, ok := fields[key]; ok {
				if s, isString := val.(string); isString {
					*dst = s
					continue
				}
				if val == nil {
					continue
				}
			}
			extra[key] = val
		}
	}

	if a.Match == "" {
		if mode, ok := raw["mode"].(string); ok {
			a.Match = mode
		}
	}

	if len(extra) > 0 {
		a.Extra = extra
	}
	return a
}

// ToMap renders the action as a flat JSON object, merging Extra.
func (a Action) ToMap() map[string]any {
	out := make(map[string]any, len(a.Extra)+4)
	for k, v := range a.Extra {
		out[k] = v
	}
	out["type"] = string(a.Type)
	for key, ptr := range a.stringFields() {
		if *ptr != "" {
			out[key] = *ptr
		}
	}
	if a.Duration != nil {
		out["duration"] = *a.Duration
	}
	if a.IdleMs != nil {
		out["idle_ms"] = *a.IdleMs
	}
	return out
}

// MarshalJSON flattens Extra into the top-level object.
func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.ToMap())
}

// UnmarshalJSON accepts any JSON object and applies FromMap coercion.
func (a *Action) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode action: %w", err)
	}
	*a = FromMap(raw)
	return nil
}

// coerceInt converts JSON-ish numeric values to an int. Anything that cannot be
// interpreted as a whole number yields nil.
func coerceInt(v any) *int {
	switch n := v.(type) {
	case nil:
		return nil
	case int:
		return &n
	case int32:
		i := int(n)
		return &i
	case int64:
		i := int(n)
		return &i
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			v := int(i)
			return &v
		}
		if f, err := n.Float64(); err == nil {
			return floatToInt(f)
		}
		return nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return nil
		}
		// Out-of-range strings come back saturated, matching floatToInt.
		return &i
	default:
		return nil
	}
}

// floatToInt truncates f toward zero. Finite values outside the int range
// saturate so later clamping still applies; NaN and infinities yield nil.
func floatToInt(f float64) *int {
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return nil
	case f >= math.MaxInt:
		return intPtr(math.MaxInt)
	case f <= math.MinInt:
		return intPtr(math.MinInt)
	}
	i := int(f)
	return &i
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func intPtr(v int) *int { return &v }
