package dom_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/navpilot/internal/dom"
)

func f(v float64) *float64 { return &v }

func TestKeywords(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		goal string
		want []string
	}{
		{"empty", "", nil},
		{"short tokens dropped", "Go to my inbox", []string{"inbox"}},
		{"deduplicated in order", "Send the message, then send another message", []string{"send", "the", "message", "then", "another"}},
		{"punctuation splits", "log-in via SSO!", []string{"log", "via", "sso"}},
		{
			"capped at twelve",
			"alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima mike november",
			[]string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel", "india", "juliet", "kilo", "lima"},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, dom.Keywords(tc.goal))
		})
	}
}

func TestRank_KeywordAndViewportBeatOffscreen(t *testing.T) {
	snap := &dom.Snapshot{Elements: []dom.Element{
		{UID: "off", Tag: "button", Text: "Register", Bounds: dom.Bounds{Top: f(2400)}},
		{UID: "login", Tag: "button", Text: "Login", IsInViewport: true, Bounds: dom.Bounds{Top: f(120)}},
	}}

	ranked := dom.Rank(snap, "Click the login button")
	require.Len(t, ranked, 2)
	assert.Equal(t, "login", ranked[0].UID)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestRank_ScoringSignals(t *testing.T) {
	snap := &dom.Snapshot{Elements: []dom.Element{
		{
			UID: "send", Tag: "BUTTON", Text: "Send",
			Attributes: map[string]any{"data-testid": "composer-send"},
		},
		{
			UID: "link", Tag: "div",
			Attributes: map[string]any{"role": "link", "href": "/home", "aria-label": "Home"},
		},
	}}

	ranked := dom.Rank(snap, "")
	require.Len(t, ranked, 2)

	byUID := map[string]dom.Candidate{}
	for _, c := range ranked {
		byUID[c.UID] = c
	}

	// tag 5 + test-id 3 + text 4/20 + send hint 5
	assert.InDelta(t, 13.2, byUID["send"].Score, 0.001)
	assert.Equal(t, "composer-send", byUID["send"].TestID)
	// role 4 + href 4 + aria 2
	assert.InDelta(t, 10.0, byUID["link"].Score, 0.001)
}

func TestRank_DisabledFlag(t *testing.T) {
	snap := &dom.Snapshot{Elements: []dom.Element{
		{UID: "a", Tag: "button", State: dom.ElementState{Disabled: true}},
		{UID: "b", Tag: "button", Interaction: dom.ElementState{Disabled: true}},
		{UID: "c", Tag: "button"},
	}}
	ranked := dom.Rank(snap, "")
	flags := map[string]bool{}
	for _, c := range ranked {
		flags[c.UID] = c.Disabled
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": false}, flags)
}

func TestRank_TieBreaks(t *testing.T) {
	// Equal scores: positioned before unpositioned, lower top first, then index.
	snap := &dom.Snapshot{Elements: []dom.Element{
		{UID: "nopos-1", Tag: "span"},
		{UID: "deep", Tag: "span", Bounds: dom.Bounds{Top: f(5000)}},
		{UID: "nopos-0", Tag: "span"},
		{UID: "deeper", Tag: "span", Bounds: dom.Bounds{Top: f(9000)}},
	}}

	ranked := dom.Rank(snap, "")
	var order []string
	for _, c := range ranked {
		order = append(order, c.UID)
	}
	assert.Equal(t, []string{"deep", "deeper", "nopos-1", "nopos-0"}, order)
}

func TestRank_ZeroTopIsAPosition(t *testing.T) {
	snap := &dom.Snapshot{Elements: []dom.Element{
		{UID: "late", Tag: "span", Bounds: dom.Bounds{Top: f(1000)}},
		{UID: "none", Tag: "span"},
		{UID: "top", Tag: "span", Bounds: dom.Bounds{Top: f(0)}},
	}}
	ranked := dom.Rank(snap, "")
	require.Len(t, ranked, 3)
	assert.Equal(t, "top", ranked[0].UID)
	assert.Equal(t, 4.0, ranked[0].Score)
	assert.Equal(t, "none", ranked[2].UID)
}

func TestRank_BoundsAndTruncation(t *testing.T) {
	var elements []dom.Element
	for i := 0; i < 200; i++ {
		elements = append(elements, dom.Element{
			UID:        fmt.Sprintf("e%d", i),
			Tag:        "a",
			Text:       strings.Repeat("x", 300),
			Attributes: map[string]any{"class": strings.Repeat("c", 200)},
		})
	}
	snap := &dom.Snapshot{Elements: elements}

	ranked := dom.Rank(snap, "")
	require.Len(t, ranked, dom.MaxCandidates)
	for _, c := range ranked {
		assert.Equal(t, strings.Repeat("x", 160)+"…", c.Text)
		assert.Equal(t, strings.Repeat("c", 140)+"…", c.Class)
	}
	// Identical scores and no positions: original order survives.
	assert.Equal(t, "e0", ranked[0].UID)
	assert.Equal(t, "e79", ranked[79].UID)
	assert.Equal(t, 300, len(snap.Elements[0].Text), "snapshot must not be mutated")
}

func TestRank_Deterministic(t *testing.T) {
	snap := &dom.Snapshot{Elements: []dom.Element{
		{UID: "1", Tag: "a", Text: "Inbox", Bounds: dom.Bounds{Top: f(10)}},
		{UID: "2", Tag: "button", Text: "Compose", IsInViewport: true},
		{UID: "3", Tag: "input", Attributes: map[string]any{"placeholder": "Search mail"}},
		{UID: "4", Tag: "a", Text: "Inbox", Bounds: dom.Bounds{Top: f(10)}},
	}}
	first := dom.Rank(snap, "search inbox")
	for i := 0; i < 5; i++ {
		if diff := cmp.Diff(first, dom.Rank(snap, "search inbox")); diff != "" {
			t.Fatalf("ranking changed between runs (-first +again):\n%s", diff)
		}
	}
}

func TestRank_EmptySnapshot(t *testing.T) {
	assert.Empty(t, dom.Rank(nil, "goal"))
	assert.Empty(t, dom.Rank(&dom.Snapshot{}, "goal"))
}

func TestParseSnapshot(t *testing.T) {
	raw := []byte(`{
		"url": "https://mail.test/inbox",
		"title": "Inbox",
		"elements": [
			{"uid": "b1", "tag": "button", "text": "Send", "isInViewport": true,
			 "attributes": {"aria-label": "Send message", "tabindex": 0},
			 "state": {"disabled": true},
			 "bounds": {"top": 12.5, "left": 4}}
		]
	}`)

	snap, err := dom.ParseSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.ElementCount)
	el := snap.Elements[0]
	assert.True(t, el.Disabled())
	assert.Equal(t, "Send message", el.Attr("aria-label"))
	assert.Equal(t, "0", el.Attr("tabindex"))
	require.NotNil(t, el.Bounds.Top)
	assert.Equal(t, 12.5, *el.Bounds.Top)
	assert.Nil(t, el.Bounds.Width)

	_, err = dom.ParseSnapshot([]byte(`{"elements": 3}`))
	assert.Error(t, err)
}

func TestParseSnapshot_LenientBounds(t *testing.T) {
	raw := []byte(`{
		"url": "https://x.test",
		"elements": [
			{"uid": "a", "tag": "div", "bounds": {"top": "auto", "left": 3, "width": null, "height": true}},
			{"uid": "b", "tag": "button", "bounds": {"top": 12}},
			{"uid": "c", "tag": "a", "bounds": "unknown"}
		]
	}`)

	snap, err := dom.ParseSnapshot(raw)
	require.NoError(t, err)
	require.Len(t, snap.Elements, 3)

	a := snap.Elements[0].Bounds
	assert.Nil(t, a.Top)
	require.NotNil(t, a.Left)
	assert.Equal(t, 3.0, *a.Left)
	assert.Nil(t, a.Width)
	assert.Nil(t, a.Height)

	require.NotNil(t, snap.Elements[1].Bounds.Top)
	assert.Equal(t, 12.0, *snap.Elements[1].Bounds.Top)
	assert.Equal(t, dom.Bounds{}, snap.Elements[2].Bounds)

	// Only the numeric top earns a positional bonus.
	ranked := dom.Rank(snap, "")
	require.Len(t, ranked, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{ranked[0].UID, ranked[1].UID, ranked[2].UID})
}

func TestRankCache(t *testing.T) {
	c := dom.NewRankCache(time.Minute, zaptest.NewLogger(t))
	snap := &dom.Snapshot{URL: "https://x.test", Elements: []dom.Element{{UID: "a", Tag: "a"}}}

	first := c.Rank(snap, "goal")
	assert.Equal(t, 1, c.Len())

	first[0].UID = "mutated"
	second := c.Rank(snap, "goal")
	assert.Equal(t, "a", second[0].UID, "cached ranking must not alias caller slices")
	assert.Equal(t, 1, c.Len())

	c.Rank(snap, "other goal")
	assert.Equal(t, 2, c.Len())
}
