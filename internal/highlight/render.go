package highlight

import (
	"fmt"
	"sort"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dgriffen/lectern/internal/textmap"
)

// NoteGlyph is what front ends draw for a note indicator element. The glyph
// is not inserted as text, so the annotated tree's plain text stays identical
// to the input.
const NoteGlyph = "※"

// Apply returns an annotated deep copy of root in which every character
// covered by a highlight is wrapped in a marker element. Only text leaves are
// rewritten; all structural markup is preserved, and the concatenated text of
// the result equals the input text exactly, including when highlights overlap
// arbitrarily.
//
// Ranges are applied in StartOffset order (stable in creation order). A leaf
// touched by several ranges is not re-split range by range; instead all range
// boundaries falling inside the leaf are collected as cut points and the
// segment list is built once. Where segments are covered by more than one
// range, the covering range with the greatest StartOffset wins, so the most
// recently started highlight reads as "on top".
func Apply(root *html.Node, hs []Highlight, theme Theme) *html.Node {
	clone := cloneTree(root)
	if len(hs) == 0 {
		return clone
	}

	ranges := make([]Highlight, len(hs))
	copy(ranges, hs)
	SortByStart(ranges)

	// Map leaves up front; splitting replaces nodes, so the walk must not be
	// repeated mid-rewrite.
	leaves := textmap.Map(clone)
	for _, leaf := range leaves {
		splitLeaf(leaf, ranges, theme)
	}

	return clone
}

// splitLeaf rewrites one text leaf: uncovered segments stay plain text,
// covered segments become marker elements.
func splitLeaf(leaf textmap.Leaf, ranges []Highlight, theme Theme) {
	overlapping := overlappingRanges(ranges, leaf.Start, leaf.End)
	if len(overlapping) == 0 {
		return
	}

	runes := []rune(leaf.Node.Data)
	cuts := cutPoints(overlapping, leaf, len(runes))

	parent := leaf.Node.Parent
	if parent == nil {
		return
	}

	for i := 0; i+1 < len(cuts); i++ {
		segStart, segEnd := cuts[i], cuts[i+1]
		text := string(runes[segStart:segEnd])

		owner := coveringRange(overlapping, leaf.Start+segStart, leaf.Start+segEnd)
		if owner == nil {
			parent.InsertBefore(textNode(text), leaf.Node)
			continue
		}

		marker := markerNode(*owner, text, theme)
		parent.InsertBefore(marker, leaf.Node)

		// Note indicator goes after the very last segment of the range.
		if owner.Note != "" && leaf.Start+segEnd == owner.EndOffset {
			parent.InsertBefore(noteIndicator(*owner), leaf.Node)
		}
	}

	parent.RemoveChild(leaf.Node)
}

// cutPoints returns the sorted, deduplicated leaf-relative boundaries of all
// ranges touching the leaf, always including 0 and the leaf length.
func cutPoints(overlapping []Highlight, leaf textmap.Leaf, leafLen int) []int {
	seen := map[int]bool{0: true, leafLen: true}
	cuts := []int{0, leafLen}
	add := func(p int) {
		if p < 0 {
			p = 0
		}
		if p > leafLen {
			p = leafLen
		}
		if !seen[p] {
			seen[p] = true
			cuts = append(cuts, p)
		}
	}
	for _, h := range overlapping {
		add(h.StartOffset - leaf.Start)
		add(h.EndOffset - leaf.Start)
	}
	sort.Ints(cuts)
	return cuts
}

func overlappingRanges(ranges []Highlight, start, end int) []Highlight {
	var out []Highlight
	for _, h := range ranges {
		if h.Overlaps(start, end) {
			out = append(out, h)
		}
	}
	return out
}

// coveringRange picks the winner for a segment fully inside [start, end).
// Because cut points include every range boundary, coverage is all or
// nothing. Ranges are sorted by start, so the last cover found is the one
// with the greatest StartOffset.
func coveringRange(overlapping []Highlight, start, end int) *Highlight {
	var winner *Highlight
	for i := range overlapping {
		if overlapping[i].StartOffset <= start && overlapping[i].EndOffset >= end {
			winner = &overlapping[i]
		}
	}
	return winner
}

func markerNode(h Highlight, text string, theme Theme) *html.Node {
	bg, fg := ColorFor(h.Color, theme)
	marker := &html.Node{
		Type:     html.ElementNode,
		Data:     "mark",
		DataAtom: atom.Mark,
		Attr: []html.Attribute{
			{Key: "data-highlight-id", Val: h.ID},
			{Key: "class", Val: "reader-highlight"},
			{Key: "style", Val: fmt.Sprintf("background-color:%s;color:%s", bg, fg)},
		},
	}
	marker.AppendChild(textNode(text))
	return marker
}

func noteIndicator(h Highlight) *html.Node {
	sup := &html.Node{
		Type:     html.ElementNode,
		Data:     "sup",
		DataAtom: atom.Sup,
		Attr: []html.Attribute{
			{Key: "data-note-for", Val: h.ID},
			{Key: "class", Val: "reader-note-indicator"},
		},
	}
	return sup
}

func textNode(text string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: text}
}

func cloneTree(n *html.Node) *html.Node {
	clone := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		clone.Attr = make([]html.Attribute, len(n.Attr))
		copy(clone.Attr, n.Attr)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		clone.AppendChild(cloneTree(c))
	}
	return clone
}
