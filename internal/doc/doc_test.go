package doc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMarkdownSections(t *testing.T) {
	path := writeFile(t, "book.md", strings.Join([]string{
		"# Book Title",
		"",
		"Intro paragraph.",
		"",
		"## Chapter One",
		"",
		"Body one.",
		"",
		"Body two.",
		"",
		"# Part Two",
		"",
		"Closing.",
	}, "\n"))

	d, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if d.Title != "Book Title" {
		t.Errorf("title = %q, want Book Title", d.Title)
	}
	if len(d.Sections) != 3 {
		t.Fatalf("sections = %d, want 3", len(d.Sections))
	}

	wantTitles := []string{"Book Title", "Chapter One", "Part Two"}
	for i, s := range d.Sections {
		if s.Title != wantTitles[i] {
			t.Errorf("section %d title = %q, want %q", i, s.Title, wantTitles[i])
		}
		if s.Order != i {
			t.Errorf("section %d order = %d", i, s.Order)
		}
		if want := SectionID(d.ID, i); s.ID != want {
			t.Errorf("section %d id = %q, want %q", i, s.ID, want)
		}
	}

	if c := d.Sections[0].Content; !strings.Contains(c, "<h1>Book Title</h1>") || !strings.Contains(c, "<p>Intro paragraph.</p>") {
		t.Errorf("section 0 content = %q", c)
	}
	if c := d.Sections[1].Content; !strings.Contains(c, "<h2>Chapter One</h2>") ||
		!strings.Contains(c, "<p>Body one.</p>") || !strings.Contains(c, "<p>Body two.</p>") {
		t.Errorf("section 1 content = %q", c)
	}
}

func TestMarkdownPrefaceBeforeFirstHeader(t *testing.T) {
	path := writeFile(t, "notes.md", "Some loose notes.\n\n# Real Start\n\nContent.")

	d, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(d.Sections) != 2 {
		t.Fatalf("sections = %d, want 2", len(d.Sections))
	}
	if d.Sections[0].Title != "Preface" {
		t.Errorf("leading section title = %q, want Preface", d.Sections[0].Title)
	}
	if strings.Contains(d.Sections[0].Content, "<h") {
		t.Errorf("preface content has a header: %q", d.Sections[0].Content)
	}
}

func TestMarkdownEscapesMarkup(t *testing.T) {
	path := writeFile(t, "raw.md", "# A <b>Title</b> & More\n\nBody with <script>bad()</script> inline.")

	d, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c := d.Sections[0].Content
	if strings.Contains(c, "<b>") || strings.Contains(c, "<script>") {
		t.Errorf("markup not escaped: %q", c)
	}
	if !strings.Contains(c, "&lt;b&gt;") {
		t.Errorf("escaped title missing: %q", c)
	}
}

func TestMarkdownJoinsWrappedParagraphs(t *testing.T) {
	path := writeFile(t, "wrap.md", "# T\n\nline one\nline two\n\nseparate")

	d, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c := d.Sections[0].Content
	if !strings.Contains(c, "<p>line one line two</p>") {
		t.Errorf("wrapped lines not joined: %q", c)
	}
	if !strings.Contains(c, "<p>separate</p>") {
		t.Errorf("blank-line split lost: %q", c)
	}
}

func TestPlainTextFallback(t *testing.T) {
	path := writeFile(t, "plain.txt", "First paragraph.\n\nSecond paragraph.")

	d, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.Title != "plain.txt" {
		t.Errorf("title = %q, want the file name", d.Title)
	}
	if len(d.Sections) != 1 {
		t.Fatalf("sections = %d, want 1", len(d.Sections))
	}
	c := d.Sections[0].Content
	if !strings.Contains(c, "<p>First paragraph.</p>") || !strings.Contains(c, "<p>Second paragraph.</p>") {
		t.Errorf("content = %q", c)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeFile(t, "empty.txt", "   \n\n  ")

	if _, err := Load(path); err == nil {
		t.Error("empty file loaded without error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.md")); err == nil {
		t.Error("missing file loaded without error")
	}
}

func TestLoadCachesByContent(t *testing.T) {
	path := writeFile(t, "cached.md", "# T\n\nBody.")

	first, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("second load did not hit the extraction cache")
	}
}

func TestComputeHash(t *testing.T) {
	a := writeFile(t, "a.txt", "identical content")
	b := writeFile(t, "b.txt", "identical content")
	c := writeFile(t, "c.txt", "different content")

	ha, err := ComputeHash(a)
	if err != nil {
		t.Fatal(err)
	}
	hb, _ := ComputeHash(b)
	hc, _ := ComputeHash(c)

	if ha != hb {
		t.Error("same content hashed differently across names")
	}
	if ha == hc {
		t.Error("different content shares a hash")
	}
	if len(ha) != 32 {
		t.Errorf("hash length = %d, want 32 hex chars", len(ha))
	}
}

func TestSectionID(t *testing.T) {
	if got := SectionID("abc123", 7); got != "abc123/0007" {
		t.Errorf("SectionID = %q, want abc123/0007", got)
	}
	if got := SectionID("abc123", 42); got != "abc123/0042" {
		t.Errorf("SectionID = %q, want abc123/0042", got)
	}
}

func TestHasText(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"body text", "<p>hello</p>", true},
		{"whitespace only", "<p>  \n\t </p>", false},
		{"script only", "<script>var x = 1;</script>", false},
		{"style only", "<style>p { color: red; }</style>", false},
		{"text after script", "<script>x()</script><p>real</p>", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasText(tt.content); got != tt.want {
				t.Errorf("hasText = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSupportedFormats(t *testing.T) {
	joined := strings.Join(SupportedFormats(), " ")
	for _, want := range []string{"EPUB", "Markdown", ".epub", ".md"} {
		if !strings.Contains(joined, want) {
			t.Errorf("supported formats %q missing %s", joined, want)
		}
	}
}
