package doc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gocache "github.com/patrickmn/go-cache"
)

// Format defines a file format reader for extracting sections.
type Format interface {
	Name() string
	Extensions() []string
	ExtractSections(filename string) (title string, sections []Section, err error)
}

var registry []Format

// Register adds a format reader to the registry.
func Register(f Format) {
	registry = append(registry, f)
}

// SupportedFormats returns registered format names with their extensions.
func SupportedFormats() []string {
	var out []string
	for _, f := range registry {
		out = append(out, f.Name()+" ("+strings.Join(f.Extensions(), ", ")+")")
	}
	return out
}

// Load ingests a file into a Document, using a registered format or the
// plain-text fallback. Results are cached by content hash.
func Load(filename string) (*Document, error) {
	hash, err := ComputeHash(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to identify %s: %w", filename, err)
	}

	if cached, ok := extractCache.Get(hash); ok {
		return cached.(*Document), nil
	}

	title, sections, err := extract(filename)
	if err != nil {
		return nil, err
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("no readable content in %s", filename)
	}

	for i := range sections {
		sections[i].Order = i
		sections[i].ID = SectionID(hash, i)
	}
	if title == "" {
		title = filepath.Base(filename)
	}

	d := &Document{ID: hash, Title: title, Sections: sections}
	extractCache.Set(hash, d, gocache.DefaultExpiration)
	return d, nil
}

// SectionID derives the stable section identity from the document hash and
// the section's position in reading order.
func SectionID(docID string, order int) string {
	return fmt.Sprintf("%s/%04d", docID, order)
}

func extract(filename string) (string, []Section, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, f := range registry {
		for _, e := range f.Extensions() {
			if ext == e {
				return f.ExtractSections(filename)
			}
		}
	}
	return extractPlainText(filename)
}

// extractPlainText is the fallback for unregistered extensions: the whole
// file becomes a single section of paragraphs split on blank lines.
func extractPlainText(filename string) (string, []Section, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", nil, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", nil, nil
	}

	return "", []Section{{
		Title:   filepath.Base(filename),
		Content: paragraphsToHTML(strings.Split(text, "\n\n")),
	}}, nil
}
