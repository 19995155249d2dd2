package highlight

import (
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/dgriffen/lectern/internal/textmap"
)

func parse(t *testing.T, content string) *html.Node {
	t.Helper()
	root, err := textmap.ParseContainer(content)
	if err != nil {
		t.Fatalf("ParseContainer: %v", err)
	}
	return root
}

// markedText collects, per highlight id, the concatenated text inside that
// highlight's marker elements.
func markedText(root *html.Node) map[string]string {
	out := map[string]string{}
	var walk func(n *html.Node, id string)
	walk = func(n *html.Node, id string) {
		if n.Type == html.ElementNode && n.Data == "mark" {
			for _, a := range n.Attr {
				if a.Key == "data-highlight-id" {
					id = a.Val
				}
			}
		}
		if n.Type == html.TextNode && id != "" {
			out[id] += n.Data
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, id)
		}
	}
	walk(root, "")
	return out
}

func countElements(root *html.Node, name string) int {
	count := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == name {
			count++
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return count
}

func TestApplySingleHighlight(t *testing.T) {
	root := parse(t, "<p>Hello brave world</p>")
	hs := []Highlight{{ID: "h1", StartOffset: 6, EndOffset: 11, Color: "yellow"}}

	annotated := Apply(root, hs, ThemeLight)

	if got := textmap.PlainText(annotated); got != "Hello brave world" {
		t.Errorf("plain text = %q, want input unchanged", got)
	}
	marked := markedText(annotated)
	if marked["h1"] != "brave" {
		t.Errorf("marked text = %q, want %q", marked["h1"], "brave")
	}
	if countElements(annotated, "mark") != 1 {
		t.Errorf("mark count = %d, want 1", countElements(annotated, "mark"))
	}
}

func TestApplyAcrossElements(t *testing.T) {
	root := parse(t, "<p>Hello <em>brave</em> world</p>")
	hs := []Highlight{{ID: "h1", StartOffset: 3, EndOffset: 14, Color: "green"}}

	annotated := Apply(root, hs, ThemeLight)

	if got := textmap.PlainText(annotated); got != "Hello brave world" {
		t.Errorf("plain text = %q, want input unchanged", got)
	}
	if got := markedText(annotated)["h1"]; got != "lo brave wo" {
		t.Errorf("marked text = %q, want %q", got, "lo brave wo")
	}
	// The em element survives; the highlight splits around it.
	if countElements(annotated, "em") != 1 {
		t.Error("em element lost during annotation")
	}
}

func TestApplyOverlappingHighlights(t *testing.T) {
	root := parse(t, "<p>abcdefghijklmnopqrst</p>")
	hs := []Highlight{
		{ID: "h1", StartOffset: 0, EndOffset: 10, Color: "yellow"},
		{ID: "h2", StartOffset: 5, EndOffset: 15, Color: "blue"},
	}

	annotated := Apply(root, hs, ThemeLight)

	// No text lost or duplicated in the overlap.
	if got := textmap.PlainText(annotated); got != "abcdefghijklmnopqrst" {
		t.Fatalf("plain text = %q, want input unchanged", got)
	}

	marked := markedText(annotated)
	// The later-starting range owns the contested span.
	if marked["h1"] != "abcde" {
		t.Errorf("h1 text = %q, want %q", marked["h1"], "abcde")
	}
	if marked["h2"] != "fghijklmno" {
		t.Errorf("h2 text = %q, want %q", marked["h2"], "fghijklmno")
	}
}

func TestApplyManyOverlaps(t *testing.T) {
	root := parse(t, "<p>abcdefghijklmnopqrst</p>")
	hs := []Highlight{
		{ID: "h1", StartOffset: 0, EndOffset: 20, Color: "yellow"},
		{ID: "h2", StartOffset: 2, EndOffset: 18, Color: "blue"},
		{ID: "h3", StartOffset: 4, EndOffset: 16, Color: "pink"},
		{ID: "h4", StartOffset: 8, EndOffset: 12, Color: "green"},
	}

	annotated := Apply(root, hs, ThemeLight)

	if got := textmap.PlainText(annotated); got != "abcdefghijklmnopqrst" {
		t.Fatalf("plain text = %q, want input unchanged", got)
	}

	marked := markedText(annotated)
	if marked["h1"] != "abst" {
		t.Errorf("h1 text = %q, want %q", marked["h1"], "abst")
	}
	if marked["h2"] != "cdqr" {
		t.Errorf("h2 text = %q, want %q", marked["h2"], "cdqr")
	}
	if marked["h3"] != "efghmnop" {
		t.Errorf("h3 text = %q, want %q", marked["h3"], "efghmnop")
	}
	if marked["h4"] != "ijkl" {
		t.Errorf("h4 text = %q, want %q", marked["h4"], "ijkl")
	}
}

func TestApplyNoteIndicator(t *testing.T) {
	root := parse(t, "<p>Hello brave world</p>")
	hs := []Highlight{{ID: "h1", StartOffset: 6, EndOffset: 11, Color: "yellow", Note: "check this"}}

	annotated := Apply(root, hs, ThemeLight)

	if countElements(annotated, "sup") != 1 {
		t.Fatalf("sup count = %d, want 1", countElements(annotated, "sup"))
	}
	// The indicator carries no text, so the projection is untouched.
	if got := textmap.PlainText(annotated); got != "Hello brave world" {
		t.Errorf("plain text = %q, want input unchanged", got)
	}
}

func TestApplyNoteIndicatorOncePerRange(t *testing.T) {
	// Range spans two leaves; only the final segment gets the indicator.
	root := parse(t, "<p>Hello <em>brave</em> world</p>")
	hs := []Highlight{{ID: "h1", StartOffset: 3, EndOffset: 14, Color: "yellow", Note: "n"}}

	annotated := Apply(root, hs, ThemeLight)
	if got := countElements(annotated, "sup"); got != 1 {
		t.Errorf("sup count = %d, want 1", got)
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	root := parse(t, "<p>Hello brave world</p>")
	before := countElements(root, "mark")

	Apply(root, []Highlight{{ID: "h1", StartOffset: 0, EndOffset: 5, Color: "yellow"}}, ThemeLight)

	if countElements(root, "mark") != before {
		t.Error("input tree mutated by Apply")
	}
}

func TestApplyEmpty(t *testing.T) {
	root := parse(t, "<p>Hello</p>")
	annotated := Apply(root, nil, ThemeLight)
	if got := textmap.PlainText(annotated); got != "Hello" {
		t.Errorf("plain text = %q, want %q", got, "Hello")
	}
	if countElements(annotated, "mark") != 0 {
		t.Error("marks created without highlights")
	}
}

func TestMarkerStyleCarriesThemeColors(t *testing.T) {
	root := parse(t, "<p>Hello</p>")
	hs := []Highlight{{ID: "h1", StartOffset: 0, EndOffset: 5, Color: "blue"}}

	annotated := Apply(root, hs, ThemeDark)

	var style string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "mark" {
			for _, a := range n.Attr {
				if a.Key == "style" {
					style = a.Val
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(annotated)

	bg, fg := ColorFor("blue", ThemeDark)
	if !strings.Contains(style, bg) || !strings.Contains(style, fg) {
		t.Errorf("style = %q, want colors %s/%s", style, bg, fg)
	}
}
