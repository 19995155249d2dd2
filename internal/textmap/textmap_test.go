package textmap

import (
	"testing"

	"golang.org/x/net/html"
)

func parse(t *testing.T, content string) *html.Node {
	t.Helper()
	root, err := ParseContainer(content)
	if err != nil {
		t.Fatalf("ParseContainer: %v", err)
	}
	return root
}

func TestMapOffsets(t *testing.T) {
	root := parse(t, "<p>Hello <em>brave</em> world</p><p>Next</p>")
	leaves := Map(root)

	if len(leaves) != 4 {
		t.Fatalf("leaves = %d, want 4", len(leaves))
	}

	wantSpans := []struct {
		text       string
		start, end int
	}{
		{"Hello ", 0, 6},
		{"brave", 6, 11},
		{" world", 11, 17},
		{"Next", 17, 21},
	}
	for i, want := range wantSpans {
		leaf := leaves[i]
		if leaf.Node.Data != want.text {
			t.Errorf("leaf %d text = %q, want %q", i, leaf.Node.Data, want.text)
		}
		if leaf.Start != want.start || leaf.End != want.end {
			t.Errorf("leaf %d span = [%d,%d), want [%d,%d)", i, leaf.Start, leaf.End, want.start, want.end)
		}
	}
}

func TestMapCountsRunesNotBytes(t *testing.T) {
	root := parse(t, "<p>héllo</p><p>wörld</p>")
	leaves := Map(root)

	if len(leaves) != 2 {
		t.Fatalf("leaves = %d, want 2", len(leaves))
	}
	if leaves[0].End != 5 {
		t.Errorf("first leaf end = %d, want 5", leaves[0].End)
	}
	if leaves[1].Start != 5 || leaves[1].End != 10 {
		t.Errorf("second leaf span = [%d,%d), want [5,10)", leaves[1].Start, leaves[1].End)
	}
}

func TestMapSkipsNonContent(t *testing.T) {
	root := parse(t, "<p>visible</p><script>hidden()</script><style>p{}</style><p>more</p>")

	if got := PlainText(root); got != "visiblemore" {
		t.Errorf("PlainText = %q, want %q", got, "visiblemore")
	}
}

func TestTextForRange(t *testing.T) {
	root := parse(t, "<p>Hello <em>brave</em> world</p>")

	tests := []struct {
		name       string
		start, end int
		want       string
	}{
		{"within one leaf", 0, 5, "Hello"},
		{"spans leaves", 3, 9, "lo bra"},
		{"whole text", 0, 17, "Hello brave world"},
		{"clips end", 11, 99, " world"},
		{"empty", 5, 5, ""},
		{"inverted", 9, 3, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TextForRange(root, tt.start, tt.end); got != tt.want {
				t.Errorf("TextForRange(%d, %d) = %q, want %q", tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestLocate(t *testing.T) {
	root := parse(t, "<p>abc</p><p>defg</p>")
	leaves := Map(root)

	tests := []struct {
		name    string
		offset  int
		text    string
		inLeaf  int
		wantOK  bool
	}{
		{"start", 0, "abc", 0, true},
		{"inside first", 2, "abc", 2, true},
		{"boundary goes to next leaf", 3, "defg", 0, true},
		{"inside second", 5, "defg", 2, true},
		{"exclusive end of final leaf", 7, "defg", 4, true},
		{"past end", 8, "", 0, false},
		{"negative", -1, "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, off, ok := Locate(leaves, tt.offset)
			if ok != tt.wantOK {
				t.Fatalf("Locate(%d) ok = %v, want %v", tt.offset, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if node.Data != tt.text || off != tt.inLeaf {
				t.Errorf("Locate(%d) = %q@%d, want %q@%d", tt.offset, node.Data, off, tt.text, tt.inLeaf)
			}
		})
	}
}

func TestOffsetsForSelection(t *testing.T) {
	root := parse(t, "<p>Hello <em>brave</em> world</p>")
	leaves := Map(root)

	sel := Selection{
		StartNode:   leaves[0].Node,
		StartOffset: 2,
		EndNode:     leaves[2].Node,
		EndOffset:   3,
	}
	r, ok := OffsetsForSelection(root, sel)
	if !ok {
		t.Fatal("selection not resolved")
	}
	if r.Start != 2 || r.End != 14 {
		t.Errorf("range = [%d,%d), want [2,14)", r.Start, r.End)
	}
	if r.Text != "llo brave wo" {
		t.Errorf("text = %q, want %q", r.Text, "llo brave wo")
	}
}

func TestOffsetsForSelectionBackward(t *testing.T) {
	root := parse(t, "<p>Hello <em>brave</em> world</p>")
	leaves := Map(root)

	sel := Selection{
		StartNode:   leaves[2].Node,
		StartOffset: 3,
		EndNode:     leaves[0].Node,
		EndOffset:   2,
	}
	r, ok := OffsetsForSelection(root, sel)
	if !ok {
		t.Fatal("backward selection not resolved")
	}
	if r.Start != 2 || r.End != 14 {
		t.Errorf("range = [%d,%d), want [2,14)", r.Start, r.End)
	}
}

func TestOffsetsForSelectionRejected(t *testing.T) {
	root := parse(t, "<p>Hello</p>")
	other := parse(t, "<p>Elsewhere</p>")
	leaves := Map(root)
	foreign := Map(other)

	tests := []struct {
		name string
		sel  Selection
	}{
		{"nil nodes", Selection{}},
		{"empty selection", Selection{
			StartNode: leaves[0].Node, StartOffset: 2,
			EndNode: leaves[0].Node, EndOffset: 2,
		}},
		{"foreign node", Selection{
			StartNode: foreign[0].Node, StartOffset: 0,
			EndNode: leaves[0].Node, EndOffset: 2,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := OffsetsForSelection(root, tt.sel); ok {
				t.Error("selection resolved, want rejection")
			}
		})
	}
}

func TestOffsetsForSelectionClampsOffsets(t *testing.T) {
	root := parse(t, "<p>abcdef</p>")
	leaves := Map(root)

	sel := Selection{
		StartNode:   leaves[0].Node,
		StartOffset: -4,
		EndNode:     leaves[0].Node,
		EndOffset:   50,
	}
	r, ok := OffsetsForSelection(root, sel)
	if !ok {
		t.Fatal("selection not resolved")
	}
	if r.Start != 0 || r.End != 6 {
		t.Errorf("range = [%d,%d), want [0,6)", r.Start, r.End)
	}
	if r.Text != "abcdef" {
		t.Errorf("text = %q, want %q", r.Text, "abcdef")
	}
}

// Anchoring depends on offsets surviving a reparse of identical content.
func TestOffsetsStableAcrossReparse(t *testing.T) {
	const content = "<p>Hello <em>brave</em> world</p><p>Next paragraph</p>"

	first := parse(t, content)
	second := parse(t, content)

	if TextForRange(first, 6, 11) != TextForRange(second, 6, 11) {
		t.Error("same offsets resolved to different text across reparses")
	}
	if PlainText(first) != PlainText(second) {
		t.Error("plain-text projection changed across reparses")
	}
}
