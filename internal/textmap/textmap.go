// Package textmap maps linear character offsets to the text-bearing leaves of
// a parsed content tree. Highlights are anchored to these offsets, so the
// mapping must be stable across re-renders: it is never persisted, only
// recomputed from the canonical content on demand.
package textmap

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Leaf is a single text node with its [Start, End) rune span in the
// cumulative plain text of the container.
type Leaf struct {
	Node  *html.Node
	Start int
	End   int
}

// Range is a resolved selection: rune offsets into the container's plain-text
// projection plus the covered text.
type Range struct {
	Start int
	End   int
	Text  string
}

// Selection identifies a live selection by its boundary text nodes and the
// rune offsets within them.
type Selection struct {
	StartNode   *html.Node
	StartOffset int
	EndNode     *html.Node
	EndOffset   int
}

// skipElement reports whether an element's text should be excluded from the
// plain-text projection.
func skipElement(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.Data {
	case "script", "style", "head", "title":
		return true
	}
	return false
}

// Map walks all text-bearing leaves under root in document order,
// accumulating a running rune offset, and returns each leaf's span.
func Map(root *html.Node) []Leaf {
	var leaves []Leaf
	offset := 0

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if skipElement(n) {
			return
		}
		if n.Type == html.TextNode && n.Data != "" {
			length := utf8.RuneCountInString(n.Data)
			leaves = append(leaves, Leaf{Node: n, Start: offset, End: offset + length})
			offset += length
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return leaves
}

// PlainText returns the projection the offsets index into: the concatenation
// of every text leaf under root, in document order.
func PlainText(root *html.Node) string {
	var out strings.Builder
	for _, leaf := range Map(root) {
		out.WriteString(leaf.Node.Data)
	}
	return out.String()
}

// TextForRange re-locates [start, end) against a fresh walk of root and
// returns the covered substring. Out-of-bounds portions are clipped.
func TextForRange(root *html.Node, start, end int) string {
	if start >= end {
		return ""
	}

	var out strings.Builder
	for _, leaf := range Map(root) {
		if leaf.End <= start || leaf.Start >= end {
			continue
		}
		runes := []rune(leaf.Node.Data)
		from := max(start-leaf.Start, 0)
		to := min(end-leaf.Start, len(runes))
		out.WriteString(string(runes[from:to]))
	}
	return out.String()
}

// Locate converts a container-relative rune offset into the leaf containing
// it plus the offset within that leaf. An offset equal to a leaf boundary
// resolves to the start of the following leaf.
func Locate(leaves []Leaf, offset int) (*html.Node, int, bool) {
	for _, leaf := range leaves {
		if offset >= leaf.Start && offset < leaf.End {
			return leaf.Node, offset - leaf.Start, true
		}
	}
	// Allow the exclusive end of the final leaf.
	if n := len(leaves); n > 0 && offset == leaves[n-1].End {
		return leaves[n-1].Node, offset - leaves[n-1].Start, true
	}
	return nil, 0, false
}

// OffsetsForSelection converts a live selection into container-relative rune
// offsets by locating the selection's boundary nodes in the leaf list and
// adding the intra-node sub-offsets. A selection spanning multiple leaves
// covers the full length of every interior leaf plus the partial boundary
// leaves.
//
// Empty selections and selections whose boundary nodes are not under root
// yield ok=false; the caller treats that as "no selection", not an error.
func OffsetsForSelection(root *html.Node, sel Selection) (Range, bool) {
	if sel.StartNode == nil || sel.EndNode == nil {
		return Range{}, false
	}

	leaves := Map(root)

	var startLeaf, endLeaf *Leaf
	for i := range leaves {
		if leaves[i].Node == sel.StartNode {
			startLeaf = &leaves[i]
		}
		if leaves[i].Node == sel.EndNode {
			endLeaf = &leaves[i]
		}
	}
	if startLeaf == nil || endLeaf == nil {
		return Range{}, false
	}

	start := startLeaf.Start + clampOffset(sel.StartOffset, startLeaf)
	end := endLeaf.Start + clampOffset(sel.EndOffset, endLeaf)

	// The selection may have been made backwards.
	if start > end {
		start, end = end, start
	}
	if start == end {
		return Range{}, false
	}

	return Range{Start: start, End: end, Text: TextForRange(root, start, end)}, true
}

func clampOffset(off int, leaf *Leaf) int {
	length := leaf.End - leaf.Start
	if off < 0 {
		return 0
	}
	if off > length {
		return length
	}
	return off
}

// ParseContainer parses a block of section markup and returns the container
// node the offset walk starts from (the synthesized body element).
func ParseContainer(content string) (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse section content: %w", err)
	}
	if body := findElement(doc, "body"); body != nil {
		return body, nil
	}
	return doc, nil
}

func findElement(n *html.Node, name string) *html.Node {
	if n.Type == html.ElementNode && n.Data == name {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, name); found != nil {
			return found
		}
	}
	return nil
}
