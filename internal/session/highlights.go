package session

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/dgriffen/lectern/internal/highlight"
	"github.com/dgriffen/lectern/internal/textmap"
)

// HighlightsFor returns the section's highlights sorted by start offset,
// fetching from the store on first access. The cache is append/remove only;
// offsets are never mutated in place.
func (c *Coordinator) HighlightsFor(sectionID string) []highlight.Highlight {
	if !c.hlLoaded[sectionID] {
		hs, err := c.hlStore.Highlights(sectionID)
		if err != nil {
			log.Printf("lectern: failed to load highlights for section %s: %v", sectionID, err)
			hs = nil
		}
		highlight.SortByStart(hs)
		c.highlights[sectionID] = hs
		c.hlLoaded[sectionID] = true
	}
	return c.highlights[sectionID]
}

// RenderSection returns the section's content tree with its highlights
// applied against the active theme.
func (c *Coordinator) RenderSection(sectionID string) (*html.Node, error) {
	container, err := c.Container(sectionID)
	if err != nil {
		return nil, err
	}
	return highlight.Apply(container, c.HighlightsFor(sectionID), c.theme), nil
}

// CreateHighlightFromSelection anchors the current selection as a highlight
// in the current section. A nil return with nil error means the selection
// was empty or outside the section's content; that is "no highlight
// created", not a failure.
//
// The cache is updated optimistically: the highlight appears immediately and
// is rolled back with a notification if the store rejects the write.
func (c *Coordinator) CreateHighlightFromSelection(sel textmap.Selection, color string, vis highlight.Visibility) (*highlight.Highlight, error) {
	sectionID := c.state.CurrentSectionID
	if sectionID == "" {
		return nil, nil
	}
	container, err := c.Container(sectionID)
	if err != nil {
		return nil, err
	}

	r, ok := textmap.OffsetsForSelection(container, sel)
	if !ok {
		return nil, nil
	}

	return c.createHighlight(sectionID, r, color, vis)
}

// createHighlight inserts optimistically, persists, then reconciles the
// cache entry with the stored record (or removes it again on failure).
func (c *Coordinator) createHighlight(sectionID string, r textmap.Range, color string, vis highlight.Visibility) (*highlight.Highlight, error) {
	pending := highlight.Highlight{
		ID:          uuid.New().String(),
		SectionID:   sectionID,
		StartOffset: r.Start,
		EndOffset:   r.End,
		Text:        r.Text,
		Color:       color,
		Visibility:  vis,
		CreatedAt:   time.Now(),
	}
	c.insertSorted(sectionID, pending)

	stored, err := c.hlStore.CreateHighlight(sectionID, r.Start, r.End, r.Text, color, vis)
	if err != nil {
		c.removeFromCache(sectionID, pending.ID)
		c.notify("Could not save highlight")
		return nil, fmt.Errorf("failed to create highlight: %w", err)
	}

	c.removeFromCache(sectionID, pending.ID)
	c.insertSorted(sectionID, stored)
	return &stored, nil
}

// DeleteHighlight removes a highlight, optimistically. On store failure the
// entry is reinserted and the user notified.
func (c *Coordinator) DeleteHighlight(id string) error {
	sectionID, removed, ok := c.removeByID(id)
	if !ok {
		return fmt.Errorf("unknown highlight %q", id)
	}

	if err := c.hlStore.DeleteHighlight(id); err != nil {
		c.insertSorted(sectionID, removed)
		c.notify("Could not delete highlight")
		return fmt.Errorf("failed to delete highlight: %w", err)
	}
	return nil
}

// ToggleParagraphHighlight is the idempotent paragraph toggle: if a highlight
// exactly matching the paragraph's offsets and text exists it is deleted,
// otherwise a default-colored private highlight spanning the paragraph is
// created. paragraph must be an element inside the current section's
// container.
func (c *Coordinator) ToggleParagraphHighlight(paragraph *html.Node) (*highlight.Highlight, error) {
	sectionID := c.state.CurrentSectionID
	if sectionID == "" {
		return nil, nil
	}
	container, err := c.Container(sectionID)
	if err != nil {
		return nil, err
	}

	r, ok := paragraphRange(container, paragraph)
	if !ok {
		return nil, nil
	}

	for _, h := range c.HighlightsFor(sectionID) {
		if h.StartOffset == r.Start && h.EndOffset == r.End && h.Text == r.Text {
			return nil, c.DeleteHighlight(h.ID)
		}
	}

	return c.createHighlight(sectionID, r, highlight.DefaultColor, highlight.VisibilityPrivate)
}

// paragraphRange computes the container-relative span covered by the
// paragraph's text leaves.
func paragraphRange(container, paragraph *html.Node) (textmap.Range, bool) {
	leaves := textmap.Map(container)
	inPara := make(map[*html.Node]bool)

	var mark func(*html.Node)
	mark = func(n *html.Node) {
		if n.Type == html.TextNode {
			inPara[n] = true
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			mark(ch)
		}
	}
	mark(paragraph)

	start, end := -1, -1
	for _, leaf := range leaves {
		if !inPara[leaf.Node] {
			continue
		}
		if start == -1 {
			start = leaf.Start
		}
		end = leaf.End
	}
	if start == -1 || start == end {
		return textmap.Range{}, false
	}

	return textmap.Range{
		Start: start,
		End:   end,
		Text:  textmap.TextForRange(container, start, end),
	}, true
}

// blockElements are the elements ParagraphAt considers paragraph-like.
var blockElements = map[string]bool{
	"p": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true,
	"h6": true, "li": true, "blockquote": true, "pre": true, "figcaption": true,
	"dd": true, "dt": true,
}

// ParagraphAt returns the innermost paragraph-like element of the container
// whose text span contains the given container-relative offset. Front ends
// use this to turn "the paragraph at the top of the viewport" into the node
// ToggleParagraphHighlight expects.
func ParagraphAt(container *html.Node, offset int) *html.Node {
	var best *html.Node
	bestSpan := -1

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && blockElements[n.Data] {
			if r, ok := paragraphRange(container, n); ok && offset >= r.Start && offset < r.End {
				// Equal spans keep the later candidate: ancestors are
				// visited before descendants, so ties resolve to the
				// innermost block.
				if span := r.End - r.Start; bestSpan == -1 || span <= bestSpan {
					best = n
					bestSpan = span
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(container)
	return best
}

// NeedsFrames reports whether the coordinator is waiting on frame ticks (a
// restoration in flight or a suppression settle counting down). Front ends
// keep their frame loop running while this is true.
func (c *Coordinator) NeedsFrames() bool {
	return c.state.IsRestoringProgress || c.state.IsProgrammaticScroll || c.tracker.Suppressed()
}

// insertSorted places h into the section cache keeping StartOffset order;
// equal starts keep insertion order, matching the renderer's stable sort.
func (c *Coordinator) insertSorted(sectionID string, h highlight.Highlight) {
	hs := c.highlights[sectionID]
	idx := len(hs)
	for i := range hs {
		if hs[i].StartOffset > h.StartOffset {
			idx = i
			break
		}
	}
	hs = append(hs, highlight.Highlight{})
	copy(hs[idx+1:], hs[idx:])
	hs[idx] = h
	c.highlights[sectionID] = hs
	c.hlLoaded[sectionID] = true
}

func (c *Coordinator) removeFromCache(sectionID, id string) bool {
	hs := c.highlights[sectionID]
	for i := range hs {
		if hs[i].ID == id {
			c.highlights[sectionID] = append(hs[:i:i], hs[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Coordinator) removeByID(id string) (sectionID string, removed highlight.Highlight, ok bool) {
	for sec, hs := range c.highlights {
		for i := range hs {
			if hs[i].ID == id {
				removed = hs[i]
				c.highlights[sec] = append(hs[:i:i], hs[i+1:]...)
				return sec, removed, true
			}
		}
	}
	return "", highlight.Highlight{}, false
}
