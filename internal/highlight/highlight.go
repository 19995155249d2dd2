// Package highlight anchors user highlights to character offsets in a
// section's plain text and renders them back into content trees.
package highlight

import (
	"sort"
	"time"
)

// Visibility controls who can see a highlight.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// DefaultColor is used for paragraph-toggle highlights.
const DefaultColor = "yellow"

// Highlight anchors a marked range to [StartOffset, EndOffset) rune offsets
// into the plain-text projection of a section's content. Offsets are
// character offsets, not bytes and not node paths, which is what lets a
// highlight survive re-renders and theme changes.
type Highlight struct {
	ID          string     `json:"id"`
	SectionID   string     `json:"section_id"`
	StartOffset int        `json:"start_offset"`
	EndOffset   int        `json:"end_offset"`
	Text        string     `json:"text"`
	Color       string     `json:"color"`
	Visibility  Visibility `json:"visibility"`
	Note        string     `json:"note,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Contains reports whether the container-relative offset falls inside the
// highlight.
func (h Highlight) Contains(offset int) bool {
	return offset >= h.StartOffset && offset < h.EndOffset
}

// Overlaps reports whether [start, end) intersects the highlight.
func (h Highlight) Overlaps(start, end int) bool {
	return h.StartOffset < end && h.EndOffset > start
}

// SortByStart orders highlights by StartOffset ascending. The sort is stable
// so highlights sharing a start keep their creation order.
func SortByStart(hs []Highlight) {
	sort.SliceStable(hs, func(i, j int) bool {
		return hs[i].StartOffset < hs[j].StartOffset
	})
}

// Theme names a color scheme highlights are resolved against.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
	ThemeSepia Theme = "sepia"
)

type colorPair struct {
	bg string
	fg string
}

var palette = map[Theme]map[string]colorPair{
	ThemeLight: {
		"yellow": {"#FDE68A", "#1F2937"},
		"green":  {"#BBF7D0", "#1F2937"},
		"blue":   {"#BFDBFE", "#1F2937"},
		"pink":   {"#FBCFE8", "#1F2937"},
		"purple": {"#DDD6FE", "#1F2937"},
	},
	ThemeDark: {
		"yellow": {"#854D0E", "#FEF9C3"},
		"green":  {"#14532D", "#DCFCE7"},
		"blue":   {"#1E3A8A", "#DBEAFE"},
		"pink":   {"#831843", "#FCE7F3"},
		"purple": {"#4C1D95", "#EDE9FE"},
	},
	ThemeSepia: {
		"yellow": {"#E8D3A2", "#433422"},
		"green":  {"#C9D8B0", "#433422"},
		"blue":   {"#B8CCD6", "#433422"},
		"pink":   {"#E3C0C8", "#433422"},
		"purple": {"#CFC4DC", "#433422"},
	},
}

// ColorFor resolves a highlight color id against the active theme and returns
// background and foreground hex values. Unknown colors fall back to the
// default; unknown themes fall back to light.
func ColorFor(colorID string, theme Theme) (bg, fg string) {
	colors, ok := palette[theme]
	if !ok {
		colors = palette[ThemeLight]
	}
	pair, ok := colors[colorID]
	if !ok {
		pair = colors[DefaultColor]
	}
	return pair.bg, pair.fg
}

// Colors lists the color ids available for new highlights.
func Colors() []string {
	return []string{"yellow", "green", "blue", "pink", "purple"}
}
