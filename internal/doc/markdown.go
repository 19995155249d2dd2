package doc

import (
	"bufio"
	"fmt"
	"html"
	"os"
	"regexp"
	"strings"
)

// MarkdownFormat implements Format for Markdown files. Top-level headers
// split the file into sections; the body is turned into minimal HTML (this is
// a plain text transform, not a markdown renderer).
type MarkdownFormat struct{}

func init() {
	Register(&MarkdownFormat{})
}

func (f *MarkdownFormat) Name() string         { return "Markdown" }
func (f *MarkdownFormat) Extensions() []string { return []string{".md", ".markdown"} }

// headerRegex matches markdown headers (# to ######)
var headerRegex = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

func (f *MarkdownFormat) ExtractSections(filename string) (string, []Section, error) {
	file, err := os.Open(filename)
	if err != nil {
		return "", nil, err
	}
	defer file.Close()

	var sections []Section
	var docTitle string
	var currentTitle string
	var currentLevel int
	var body []string

	flush := func() {
		text := strings.TrimSpace(strings.Join(body, "\n"))
		if currentTitle == "" && text == "" {
			body = nil
			return
		}
		title := currentTitle
		if title == "" {
			title = "Preface"
		}
		sections = append(sections, Section{
			Title:   title,
			Content: sectionHTML(currentTitle, currentLevel, text),
		})
		body = nil
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if match := headerRegex.FindStringSubmatch(line); match != nil {
			flush()
			currentTitle = strings.TrimSpace(match[2])
			currentLevel = len(match[1])
			if docTitle == "" && currentLevel == 1 {
				docTitle = currentTitle
			}
			continue
		}
		body = append(body, line)
	}
	flush()

	return docTitle, sections, scanner.Err()
}

// sectionHTML wraps a header and its body into the minimal markup the offset
// mapper walks.
func sectionHTML(title string, level int, text string) string {
	var b strings.Builder
	if title != "" {
		if level < 1 || level > 6 {
			level = 1
		}
		fmt.Fprintf(&b, "<h%d>%s</h%d>\n", level, html.EscapeString(title), level)
	}
	if text != "" {
		b.WriteString(paragraphsToHTML(strings.Split(text, "\n\n")))
	}
	return b.String()
}

// paragraphsToHTML escapes each paragraph and wraps it in <p>. Inline
// markdown is left as literal text.
func paragraphsToHTML(paragraphs []string) string {
	var b strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(strings.Join(strings.Fields(p), " ")))
		b.WriteString("</p>\n")
	}
	return b.String()
}
