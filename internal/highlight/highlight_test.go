package highlight

import "testing"

func TestOverlaps(t *testing.T) {
	h := Highlight{StartOffset: 10, EndOffset: 20}

	tests := []struct {
		name       string
		start, end int
		want       bool
	}{
		{"fully inside", 12, 18, true},
		{"covers", 0, 30, true},
		{"clips start", 5, 11, true},
		{"clips end", 19, 25, true},
		{"touches start", 0, 10, false},
		{"touches end", 20, 30, false},
		{"before", 0, 5, false},
		{"after", 25, 30, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.Overlaps(tt.start, tt.end); got != tt.want {
				t.Errorf("Overlaps(%d, %d) = %v, want %v", tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestContains(t *testing.T) {
	h := Highlight{StartOffset: 10, EndOffset: 20}

	if !h.Contains(10) || !h.Contains(19) {
		t.Error("interior offsets not contained")
	}
	if h.Contains(9) || h.Contains(20) {
		t.Error("exterior offsets contained")
	}
}

func TestSortByStartIsStable(t *testing.T) {
	hs := []Highlight{
		{ID: "b", StartOffset: 5},
		{ID: "c", StartOffset: 10},
		{ID: "a", StartOffset: 5},
	}
	SortByStart(hs)

	want := []string{"b", "a", "c"}
	for i, id := range want {
		if hs[i].ID != id {
			t.Errorf("hs[%d].ID = %s, want %s", i, hs[i].ID, id)
		}
	}
}

func TestColorForFallbacks(t *testing.T) {
	defBg, defFg := ColorFor(DefaultColor, ThemeLight)

	if bg, fg := ColorFor("no-such-color", ThemeLight); bg != defBg || fg != defFg {
		t.Errorf("unknown color = %s/%s, want default %s/%s", bg, fg, defBg, defFg)
	}
	if bg, fg := ColorFor(DefaultColor, Theme("no-such-theme")); bg != defBg || fg != defFg {
		t.Errorf("unknown theme = %s/%s, want light %s/%s", bg, fg, defBg, defFg)
	}
}

func TestColorsMatchPalette(t *testing.T) {
	for _, theme := range []Theme{ThemeLight, ThemeDark, ThemeSepia} {
		for _, id := range Colors() {
			bg, fg := ColorFor(id, theme)
			if bg == "" || fg == "" {
				t.Errorf("ColorFor(%s, %s) returned empty colors", id, theme)
			}
		}
	}
}
