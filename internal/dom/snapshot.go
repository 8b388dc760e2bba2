// Package dom holds the page snapshot shape produced by the capture extension
// and the ranker that reduces it to a short list of actionable candidates.
package dom

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	json "github.com/json-iterator/go"
)

// Snapshot is a capture of a page's interactive elements at one point in time.
// The planner treats it as read-only.
type Snapshot struct {
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Timestamp    time.Time `json:"timestamp,omitempty"`
	ElementCount int       `json:"elementCount,omitempty"`
	Elements     []Element `json:"elements"`
}

// Element is one node of a snapshot, identified by a uid that is stable for
// the lifetime of the snapshot.
type Element struct {
	UID          string         `json:"uid"`
	Tag          string         `json:"tag"`
	Type         string         `json:"type,omitempty"`
	Text         string         `json:"text,omitempty"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	IsInViewport bool           `json:"isInViewport"`
	State        ElementState   `json:"state,omitempty"`
	Interaction  ElementState   `json:"interaction,omitempty"`
	Bounds       Bounds         `json:"bounds,omitempty"`
}

// ElementState carries flags reported by the capture script.
type ElementState struct {
	Disabled bool `json:"disabled,omitempty"`
}

// Bounds is the element's box in CSS pixels. Any side may be unknown.
type Bounds struct {
	Top    *float64 `json:"top"`
	Left   *float64 `json:"left"`
	Width  *float64 `json:"width"`
	Height *float64 `json:"height"`
}

// UnmarshalJSON decodes bounds leniently. A side that is not a JSON number
// (a CSS keyword such as "auto", a string, null) is left unknown, and a bounds
// value that is not an object leaves every side unknown, so one odd element
// never rejects the whole snapshot.
func (b *Bounds) UnmarshalJSON(data []byte) error {
	*b = Bounds{}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	b.Top = numberOf(raw["top"])
	b.Left = numberOf(raw["left"])
	b.Width = numberOf(raw["width"])
	b.Height = numberOf(raw["height"])
	return nil
}

func numberOf(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return &f
		}
	}
	return nil
}

// Attr returns the first non-empty attribute among keys, rendered as a string.
func (e Element) Attr(keys ...string) string {
	for _, k := range keys {
		v, ok := e.Attributes[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case bool:
			// Boolean attributes carry no text.
			continue
		default:
			s = fmt.Sprint(t)
		}
		if s != "" {
			return s
		}
	}
	return ""
}

// Disabled reports whether either the state or the interaction metadata marks
// the element as disabled.
func (e Element) Disabled() bool {
	return e.State.Disabled || e.Interaction.Disabled
}

// ParseSnapshot decodes a snapshot document.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode DOM snapshot: %w", err)
	}
	if s.ElementCount == 0 {
		s.ElementCount = len(s.Elements)
	}
	return &s, nil
}

// Digest returns a content hash of the snapshot, used as a cache key.
func (s *Snapshot) Digest() (string, error) {
	raw, err := json.ConfigCompatibleWithStandardLibrary.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode DOM snapshot: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
