package main

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/dgriffen/lectern/internal/highlight"
)

// textRun is a piece of flattened block text. Highlighted runs carry the
// marker's identity and resolved colors; note runs render the indicator
// glyph.
type textRun struct {
	text        string
	highlightID string
	bg, fg      string
	note        bool
	// rawStart is the run's first rune offset in the section's plain-text
	// projection, or -1 for synthesized runs (note glyphs).
	rawStart int
}

// textBlock is one paragraph-like unit of flattened content, with the raw
// offset span it covers.
type textBlock struct {
	runs     []textRun
	heading  bool
	rawStart int
	rawEnd   int
}

// blockTags delimit blocks during flattening.
var blockTags = map[string]bool{
	"p": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true,
	"h6": true, "div": true, "section": true, "article": true, "li": true,
	"ul": true, "ol": true, "blockquote": true, "pre": true, "table": true,
	"tr": true, "figure": true, "figcaption": true, "header": true,
	"footer": true, "hr": true, "br": true, "dd": true, "dt": true, "dl": true,
}

var headingTags = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

type markInfo struct {
	id     string
	bg, fg string
}

type flattener struct {
	blocks       []textBlock
	cur          textBlock
	curHeading   bool
	lastWasSpace bool
	rawOffset    int
}

// flattenAnnotated turns an annotated content tree (the highlight renderer's
// output) into display blocks. Whitespace is collapsed HTML-style within a
// block, but every visible rune keeps its raw offset so display positions
// can be traced back to highlight anchors.
func flattenAnnotated(root *html.Node) []textBlock {
	f := &flattener{
		cur:          textBlock{rawStart: -1, rawEnd: -1},
		lastWasSpace: true,
	}
	f.walk(root, nil)
	f.flush()
	return f.blocks
}

func (f *flattener) walk(n *html.Node, mark *markInfo) {
	switch n.Type {
	case html.TextNode:
		f.emitText(n.Data, mark)
		return
	case html.ElementNode:
		switch {
		case n.Data == "script" || n.Data == "style" || n.Data == "head" || n.Data == "title":
			return
		case n.Data == "mark" && attr(n, "data-highlight-id") != "":
			m := parseMark(n)
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				f.walk(c, &m)
			}
			return
		case n.Data == "sup" && attr(n, "data-note-for") != "":
			f.cur.runs = append(f.cur.runs, textRun{
				text:        highlight.NoteGlyph,
				highlightID: attr(n, "data-note-for"),
				note:        true,
				rawStart:    -1,
			})
			f.lastWasSpace = false
			return
		case blockTags[n.Data]:
			f.flush()
			f.curHeading = headingTags[n.Data]
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		f.walk(c, mark)
	}

	if n.Type == html.ElementNode && blockTags[n.Data] {
		f.flush()
		f.curHeading = false
	}
}

// emitText appends a text node's content to the current block, collapsing
// whitespace runs to single spaces and advancing the raw offset per rune.
func (f *flattener) emitText(data string, mark *markInfo) {
	for _, r := range data {
		if unicode.IsSpace(r) {
			if !f.lastWasSpace {
				f.appendRune(' ', mark)
			}
			f.lastWasSpace = true
		} else {
			f.appendRune(r, mark)
			f.lastWasSpace = false
		}
		f.rawOffset++
	}
}

func (f *flattener) appendRune(r rune, mark *markInfo) {
	if f.cur.rawStart < 0 {
		f.cur.rawStart = f.rawOffset
	}
	f.cur.rawEnd = f.rawOffset + 1

	var id, bg, fg string
	if mark != nil {
		id, bg, fg = mark.id, mark.bg, mark.fg
	}

	// Extend the previous run when the style is unchanged.
	if n := len(f.cur.runs); n > 0 {
		last := &f.cur.runs[n-1]
		if !last.note && last.highlightID == id {
			last.text += string(r)
			return
		}
	}
	f.cur.runs = append(f.cur.runs, textRun{
		text:        string(r),
		highlightID: id,
		bg:          bg,
		fg:          fg,
		rawStart:    f.rawOffset,
	})
}

func (f *flattener) flush() {
	trimTrailingSpace(&f.cur)
	if len(f.cur.runs) > 0 {
		f.cur.heading = f.curHeading
		f.blocks = append(f.blocks, f.cur)
	}
	f.cur = textBlock{rawStart: -1, rawEnd: -1}
	f.lastWasSpace = true
}

func parseMark(n *html.Node) markInfo {
	m := markInfo{id: attr(n, "data-highlight-id")}
	style := attr(n, "style")
	for _, part := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "background-color":
			m.bg = strings.TrimSpace(v)
		case "color":
			m.fg = strings.TrimSpace(v)
		}
	}
	return m
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func trimTrailingSpace(b *textBlock) {
	for len(b.runs) > 0 {
		last := &b.runs[len(b.runs)-1]
		if !last.note {
			last.text = strings.TrimRight(last.text, " ")
		}
		if last.text != "" {
			return
		}
		b.runs = b.runs[:len(b.runs)-1]
	}
}

// span is a styled fragment of one wrapped display line.
type span struct {
	text        string
	highlightID string
	bg, fg      string
	note        bool
	rawStart    int
}

// styledLine is one wrapped display line plus enough metadata to trace it
// back to its section and block.
type styledLine struct {
	spans    []span
	rawStart int // first raw offset on the line, -1 for decorative lines
	blockIdx int // index into the block slice, -1 for decorative lines
}

// wrapBlock word-wraps one block to the given width, preserving run styling
// across wrap points. A word that straddles runs keeps each piece's style.
func wrapBlock(b textBlock, blockIdx, width int) []styledLine {
	if width < 8 {
		width = 8
	}

	type word struct {
		spans []span
		width int
	}
	var words []word
	var cur word

	finishWord := func() {
		if cur.width > 0 {
			words = append(words, cur)
		}
		cur = word{}
	}

	for _, run := range b.runs {
		if run.note {
			cur.spans = append(cur.spans, span{
				text: run.text, highlightID: run.highlightID, note: true, rawStart: -1,
			})
			cur.width += utf8.RuneCountInString(run.text)
			continue
		}
		raw := run.rawStart
		pending := ""
		pendingStart := -1
		flushPiece := func() {
			if pending != "" {
				cur.spans = append(cur.spans, span{
					text: pending, highlightID: run.highlightID,
					bg: run.bg, fg: run.fg, rawStart: pendingStart,
				})
				cur.width += utf8.RuneCountInString(pending)
				pending = ""
				pendingStart = -1
			}
		}
		for _, r := range run.text {
			if r == ' ' {
				flushPiece()
				finishWord()
			} else {
				if pending == "" {
					pendingStart = raw
				}
				pending += string(r)
			}
			raw++
		}
		flushPiece()
	}
	finishWord()

	var lines []styledLine
	line := styledLine{rawStart: -1, blockIdx: blockIdx}
	lineWidth := 0

	for _, w := range words {
		sep := 0
		if lineWidth > 0 {
			sep = 1
		}
		if lineWidth > 0 && lineWidth+sep+w.width > width {
			lines = append(lines, line)
			line = styledLine{rawStart: -1, blockIdx: blockIdx}
			lineWidth = 0
			sep = 0
		}
		if sep == 1 {
			// The separator inherits the style of the preceding span so a
			// highlight spanning two words has no gap.
			prev := line.spans[len(line.spans)-1]
			line.spans = append(line.spans, span{
				text: " ", highlightID: prev.highlightID,
				bg: prev.bg, fg: prev.fg, rawStart: -1,
			})
			lineWidth++
		}
		for _, s := range w.spans {
			if line.rawStart < 0 && s.rawStart >= 0 {
				line.rawStart = s.rawStart
			}
			line.spans = append(line.spans, s)
		}
		lineWidth += w.width
	}
	if len(line.spans) > 0 {
		lines = append(lines, line)
	}
	return lines
}

// plainText of a styled line, for search and tests.
func (l styledLine) plainText() string {
	var b strings.Builder
	for _, s := range l.spans {
		if s.note {
			continue
		}
		b.WriteString(s.text)
	}
	return b.String()
}
