//go:build !gui

package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dgriffen/lectern/internal/config"
	"github.com/dgriffen/lectern/internal/doc"
	"github.com/dgriffen/lectern/internal/highlight"
	"github.com/dgriffen/lectern/internal/session"
	"github.com/dgriffen/lectern/internal/store"
	"github.com/dgriffen/lectern/internal/textmap"
	"github.com/dgriffen/lectern/internal/visibility"
)

// Version info (injected via ldflags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const frameInterval = 16 * time.Millisecond

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	headingStyle = lipgloss.NewStyle().
			Bold(true)

	noteStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFAA00"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Padding(0, 1)

	messageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFAA00")).
			Padding(0, 1)

	tocSelectedStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#7D56F4"))

	tocDoneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AA00"))

	searchStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Padding(0, 1)
)

// docLine is one display line of the laid-out document.
type docLine struct {
	text    string
	section int // index into the section slice, -1 for filler
	// rawStart is the plain-text rune offset of the line's first visible
	// rune within its section, -1 for filler and decorative lines.
	rawStart int
}

type searchMatch struct {
	section    int
	start, end int
}

// noticeBuf collects coordinator notifications raised during an update so
// the model can surface the latest one in the status bar.
type noticeBuf struct {
	msgs []string
}

// vpScroller adapts the viewport to the tracker's scroll interface. Scroll
// units are lines.
type vpScroller struct {
	vp *viewport.Model
}

func (s *vpScroller) ScrollTo(pos float64) {
	s.vp.SetYOffset(int(math.Round(pos)))
}

type model struct {
	document  *doc.Document
	cfg       *config.Config
	coord     *session.Coordinator
	notices   *noticeBuf
	requested string

	vp     *viewport.Model
	lines  []docLine
	bounds map[string]visibility.Bounds

	width, height int
	opened        bool
	ticking       bool

	showTOC bool
	tocIdx  int

	searching  bool
	searchTerm string
	matches    []searchMatch
	matchIdx   int

	statusMsg  string
	msgExpires time.Time

	quitting bool
}

type frameMsg time.Time

func frame() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func newModel(document *doc.Document, cfg *config.Config, st *store.FileStore, theme highlight.Theme, requested string) (model, error) {
	sections := make([]session.Section, len(document.Sections))
	for i, s := range document.Sections {
		sections[i] = session.Section{ID: s.ID, Order: s.Order, Title: s.Title, Content: s.Content}
	}

	vp := viewport.New(80, 24)
	notices := &noticeBuf{}

	coord, err := session.New(session.Config{
		UserID:       "local",
		DocumentID:   document.ID,
		Sections:     sections,
		Progress:     st,
		Highlights:   st,
		Scroller:     &vpScroller{vp: &vp},
		Theme:        theme,
		HeaderOffset: cfg.HeaderOffset,
		Callbacks: session.Callbacks{
			OnNotify: func(msg string) { notices.msgs = append(notices.msgs, msg) },
		},
	})
	if err != nil {
		return model{}, err
	}
	coord.Engine().SetPersistThreshold(cfg.PersistThreshold)
	coord.Engine().SetMaxRestoreAttempts(cfg.RestoreAttempts)

	return model{
		document:  document,
		cfg:       cfg,
		coord:     coord,
		notices:   notices,
		requested: requested,
		vp:        &vp,
		bounds:    make(map[string]visibility.Bounds),
	}, nil
}

func (m model) Init() tea.Cmd {
	return nil
}

// rebuild lays the whole document out as wrapped lines, renders highlights
// into them and republishes every section's bounds.
func (m *model) rebuild() {
	width := m.vp.Width - 2
	var lines []docLine

	for si, sec := range m.coord.Sections() {
		top := len(lines)

		lines = append(lines, docLine{
			text:     titleStyle.Render(sec.Title),
			section:  si,
			rawStart: -1,
		})
		lines = append(lines, docLine{section: si, rawStart: -1})

		root, err := m.coord.RenderSection(sec.ID)
		if err != nil {
			lines = append(lines, docLine{
				text:     fmt.Sprintf("[could not render section: %v]", err),
				section:  si,
				rawStart: -1,
			})
		} else {
			for bi, block := range flattenAnnotated(root) {
				for _, ln := range wrapBlock(block, bi, width) {
					lines = append(lines, docLine{
						text:     renderLine(ln, block.heading),
						section:  si,
						rawStart: ln.rawStart,
					})
				}
				lines = append(lines, docLine{section: si, rawStart: -1})
			}
		}

		b := visibility.Bounds{Top: float64(top), Height: float64(len(lines) - top)}
		m.bounds[sec.ID] = b
		m.coord.RegisterSection(sec.ID, b)
	}

	m.lines = lines
	var sb strings.Builder
	for i, ln := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(ln.text)
	}
	m.vp.SetContent(sb.String())
}

func renderLine(ln styledLine, heading bool) string {
	var sb strings.Builder
	sb.WriteString(" ")
	for _, s := range ln.spans {
		switch {
		case s.note:
			sb.WriteString(noteStyle.Render(s.text))
		case s.bg != "":
			sb.WriteString(lipgloss.NewStyle().
				Background(lipgloss.Color(s.bg)).
				Foreground(lipgloss.Color(s.fg)).
				Render(s.text))
		case heading:
			sb.WriteString(headingStyle.Render(s.text))
		default:
			sb.WriteString(s.text)
		}
	}
	return sb.String()
}

func (m *model) viewportState() visibility.Viewport {
	return visibility.Viewport{
		ScrollTop: float64(m.vp.YOffset),
		Height:    float64(m.vp.Height),
	}
}

// startFrames begins the animation loop when the coordinator still needs
// frames (restoration in flight or a suppression countdown pending).
func (m *model) startFrames() tea.Cmd {
	if m.ticking || !m.coord.NeedsFrames() {
		return nil
	}
	m.ticking = true
	return frame()
}

// scrollBy applies a user-initiated scroll of delta lines and reports it.
func (m *model) scrollBy(delta int) tea.Cmd {
	m.coord.UserScrollIntent()
	m.vp.SetYOffset(m.vp.YOffset + delta)
	m.coord.HandleScroll(m.viewportState())
	return m.startFrames()
}

func (m *model) scrollToLine(line int) tea.Cmd {
	return m.scrollBy(line - m.vp.YOffset)
}

func (m *model) drainNotices() {
	if len(m.notices.msgs) > 0 {
		m.setMessage(m.notices.msgs[len(m.notices.msgs)-1])
		m.notices.msgs = m.notices.msgs[:0]
	}
}

func (m *model) setMessage(msg string) {
	m.statusMsg = msg
	m.msgExpires = time.Now().Add(3 * time.Second)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		widthChanged := msg.Width != m.width
		m.width = msg.Width
		m.height = msg.Height
		m.vp.Width = msg.Width
		m.vp.Height = msg.Height - 2
		if m.vp.Height < 1 {
			m.vp.Height = 1
		}
		if widthChanged {
			m.rebuild()
		}

		if !m.opened {
			m.opened = true
			secID, target := m.coord.Open(m.requested)
			if b, ok := m.bounds[secID]; ok && target == 0 {
				m.vp.SetYOffset(int(b.Top))
			}
			return m, m.startFrames()
		}
		return m, nil

	case frameMsg:
		if scrollTo, ok := m.coord.Tick(m.viewportState()); ok {
			m.vp.SetYOffset(int(math.Round(scrollTo)))
		}
		if m.coord.NeedsFrames() {
			return m, frame()
		}
		m.ticking = false
		return m, nil

	case tea.MouseMsg:
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			cmd := m.scrollBy(-3)
			m.drainNotices()
			return m, cmd
		case tea.MouseButtonWheelDown:
			cmd := m.scrollBy(3)
			m.drainNotices()
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		if m.showTOC {
			return m.updateTOC(msg)
		}
		cmd := m.handleKey(msg)
		m.drainNotices()
		if m.quitting {
			return m, tea.Quit
		}
		return m, cmd
	}

	return m, nil
}

func (m *model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q", "ctrl+c":
		m.coord.Close()
		state := m.coord.State()
		if err := m.cfg.SetLastSection(m.document.ID, m.document.Title, state.CurrentSectionID); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not save reading position: %v\n", err)
		}
		m.quitting = true
		return nil

	case "j", "down":
		return m.scrollBy(1)
	case "k", "up":
		return m.scrollBy(-1)
	case "ctrl+d":
		return m.scrollBy(m.vp.Height / 2)
	case "ctrl+u":
		return m.scrollBy(-m.vp.Height / 2)
	case " ", "pgdown":
		return m.scrollBy(m.vp.Height)
	case "pgup":
		return m.scrollBy(-m.vp.Height)
	case "g":
		return m.scrollToLine(0)
	case "G":
		return m.scrollToLine(len(m.lines))

	case "]":
		return m.navigateRelative(1)
	case "[":
		return m.navigateRelative(-1)

	case "t":
		m.showTOC = true
		m.tocIdx = m.currentSectionIndex()
		return nil

	case "c":
		rec, err := m.coord.ToggleSectionCompleted()
		if err != nil {
			m.setMessage("Could not update section status")
			return nil
		}
		if rec.Status == "completed" {
			m.setMessage("Section marked completed")
		} else {
			m.setMessage("Section marked in progress")
		}
		return nil

	case "H":
		return m.toggleParagraphHighlight()

	case "x":
		return m.deleteVisibleHighlight()

	case "T":
		m.cycleTheme()
		return nil

	case "/":
		m.searching = true
		m.searchTerm = ""
		return nil

	case "n":
		return m.nextMatch(1)
	case "N":
		return m.nextMatch(-1)
	case "m":
		return m.highlightCurrentMatch()
	}
	return nil
}

func (m *model) updateTOC(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "j", "down":
		if m.tocIdx < len(m.coord.Sections())-1 {
			m.tocIdx++
		}
	case "k", "up":
		if m.tocIdx > 0 {
			m.tocIdx--
		}
	case "enter":
		m.showTOC = false
		sec := m.coord.Sections()[m.tocIdx]
		if err := m.coord.NavigateToSection(sec.ID); err != nil {
			m.setMessage("Could not open section")
			return *m, nil
		}
		return *m, m.startFrames()
	case "t", "esc", "q":
		m.showTOC = false
	}
	return *m, nil
}

func (m *model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.searching = false
		m.runSearch()
		return *m, m.startFrames()
	case tea.KeyEscape:
		m.searching = false
		m.searchTerm = ""
	case tea.KeyBackspace:
		if len(m.searchTerm) > 0 {
			r := []rune(m.searchTerm)
			m.searchTerm = string(r[:len(r)-1])
		}
	case tea.KeyRunes, tea.KeySpace:
		if msg.Type == tea.KeySpace {
			m.searchTerm += " "
		} else {
			m.searchTerm += string(msg.Runes)
		}
	}
	return *m, nil
}

func (m *model) currentSectionIndex() int {
	id := m.coord.State().CurrentSectionID
	for i, s := range m.coord.Sections() {
		if s.ID == id {
			return i
		}
	}
	return 0
}

func (m *model) navigateRelative(delta int) tea.Cmd {
	idx := m.currentSectionIndex() + delta
	sections := m.coord.Sections()
	if idx < 0 || idx >= len(sections) {
		return nil
	}
	if err := m.coord.NavigateToSection(sections[idx].ID); err != nil {
		m.setMessage("Could not open section")
		return nil
	}
	return m.startFrames()
}

func (m *model) cycleTheme() {
	var next highlight.Theme
	switch m.coord.Theme() {
	case highlight.ThemeLight:
		next = highlight.ThemeDark
	case highlight.ThemeDark:
		next = highlight.ThemeSepia
	default:
		next = highlight.ThemeLight
	}
	m.coord.SetTheme(next)
	if err := m.cfg.SetTheme(string(next)); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not save theme: %v\n", err)
	}
	m.rebuild()
	m.setMessage(fmt.Sprintf("Theme: %s", next))
}

// topContentLine finds the first visible line carrying real content.
func (m *model) topContentLine() (docLine, bool) {
	for i := m.vp.YOffset; i < len(m.lines) && i < m.vp.YOffset+m.vp.Height; i++ {
		if m.lines[i].rawStart >= 0 {
			return m.lines[i], true
		}
	}
	return docLine{}, false
}

func (m *model) toggleParagraphHighlight() tea.Cmd {
	ln, ok := m.topContentLine()
	if !ok {
		return nil
	}
	sec := m.coord.Sections()[ln.section]

	container, err := m.coord.Container(sec.ID)
	if err != nil {
		m.setMessage("Could not read section content")
		return nil
	}
	para := session.ParagraphAt(container, ln.rawStart)
	if para == nil {
		return nil
	}

	h, err := m.coord.ToggleParagraphHighlight(para)
	switch {
	case err != nil:
		// The coordinator already queued a rollback notice.
	case h != nil:
		m.setMessage("Paragraph highlighted")
	default:
		m.setMessage("Highlight removed")
	}
	m.rebuild()
	return nil
}

// deleteVisibleHighlight removes the first highlight drawn on or after the
// top visible line.
func (m *model) deleteVisibleHighlight() tea.Cmd {
	ln, ok := m.topContentLine()
	if !ok {
		return nil
	}
	sec := m.coord.Sections()[ln.section]

	for _, h := range m.coord.HighlightsFor(sec.ID) {
		if h.EndOffset > ln.rawStart {
			if err := m.coord.DeleteHighlight(h.ID); err == nil {
				m.setMessage("Highlight deleted")
				m.rebuild()
			}
			return nil
		}
	}
	m.setMessage("No highlight below cursor")
	return nil
}

func (m *model) runSearch() {
	m.matches = nil
	term := strings.ToLower(m.searchTerm)
	if term == "" {
		return
	}
	needle := []rune(term)

	for si, sec := range m.coord.Sections() {
		root, err := m.coord.Container(sec.ID)
		if err != nil {
			continue
		}
		haystack := []rune(strings.ToLower(textmap.PlainText(root)))
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if runesEqual(haystack[i:i+len(needle)], needle) {
				m.matches = append(m.matches, searchMatch{section: si, start: i, end: i + len(needle)})
			}
		}
	}

	if len(m.matches) == 0 {
		m.setMessage(fmt.Sprintf("No matches for %q", m.searchTerm))
		return
	}
	m.matchIdx = 0
	m.gotoMatch()
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (m *model) nextMatch(delta int) tea.Cmd {
	if len(m.matches) == 0 {
		return nil
	}
	m.matchIdx = (m.matchIdx + delta + len(m.matches)) % len(m.matches)
	m.gotoMatch()
	return m.startFrames()
}

// gotoMatch scrolls so the current match's line sits near the top of the
// viewport.
func (m *model) gotoMatch() {
	match := m.matches[m.matchIdx]
	line := -1
	for i, ln := range m.lines {
		if ln.section != match.section || ln.rawStart < 0 {
			continue
		}
		if ln.rawStart <= match.start {
			line = i
		} else {
			break
		}
	}
	if line < 0 {
		return
	}
	m.scrollToLine(line)
	m.setMessage(fmt.Sprintf("Match %d/%d", m.matchIdx+1, len(m.matches)))
}

// highlightCurrentMatch anchors the current search match as a highlight by
// resolving its rune offsets back to content nodes, the same path a
// selection would take.
func (m *model) highlightCurrentMatch() tea.Cmd {
	if len(m.matches) == 0 {
		return nil
	}
	match := m.matches[m.matchIdx]
	sec := m.coord.Sections()[match.section]
	if sec.ID != m.coord.State().CurrentSectionID {
		m.setMessage("Scroll to the match before highlighting it")
		return nil
	}

	container, err := m.coord.Container(sec.ID)
	if err != nil {
		return nil
	}
	leaves := textmap.Map(container)
	startNode, startOff, ok := textmap.Locate(leaves, match.start)
	if !ok {
		return nil
	}
	endNode, endOff, ok := textmap.Locate(leaves, match.end)
	if !ok {
		return nil
	}

	h, err := m.coord.CreateHighlightFromSelection(textmap.Selection{
		StartNode:   startNode,
		StartOffset: startOff,
		EndNode:     endNode,
		EndOffset:   endOff,
	}, highlight.DefaultColor, highlight.VisibilityPrivate)
	if err == nil && h != nil {
		m.setMessage("Match highlighted")
		m.rebuild()
	}
	return nil
}

func renderProgressBar(percent, width int) string {
	if width < 2 {
		width = 2
	}
	filled := percent * width / 100
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	if !m.opened {
		return "Loading..."
	}

	if m.showTOC {
		return m.viewTOC()
	}

	header := statusStyle.Render(fmt.Sprintf("%s  [%s]", m.document.Title, m.coord.Theme()))

	var footer string
	switch {
	case m.searching:
		footer = searchStyle.Render("/" + m.searchTerm)
	case m.statusMsg != "" && time.Now().Before(m.msgExpires):
		footer = messageStyle.Render(m.statusMsg)
	default:
		state := m.coord.State()
		idx := m.currentSectionIndex()
		sections := m.coord.Sections()
		title := ""
		if idx < len(sections) {
			title = sections[idx].Title
		}
		footer = statusStyle.Render(fmt.Sprintf(
			"%s  %s %3d%%  │  book %s %3d%%  │  ?: t toc  / search  H highlight  c done  q quit",
			title,
			renderProgressBar(state.LocalScrollPercent, 10),
			state.LocalScrollPercent,
			renderProgressBar(m.coord.DocumentPercent(), 10),
			m.coord.DocumentPercent(),
		))
	}

	return header + "\n" + m.vp.View() + "\n" + footer
}

func (m model) viewTOC() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Contents"))
	sb.WriteString("\n\n")

	records := m.coord.Engine().Records()
	for i, sec := range m.coord.Sections() {
		marker := "  "
		if i == m.tocIdx {
			marker = "> "
		}
		line := fmt.Sprintf("%s%s", marker, sec.Title)
		if rec, ok := records[sec.ID]; ok && rec.Status == "completed" {
			line = tocDoneStyle.Render(line + " ✓")
		} else if i == m.tocIdx {
			line = tocSelectedStyle.Render(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(statusStyle.Render("enter: open  j/k: move  t: close"))
	return sb.String()
}

func main() {
	sectionFlag := flag.String("section", "", "Section id to open at (overrides the saved position)")
	themeFlag := flag.String("theme", "", "Color theme: light, dark or sepia")
	showVersion := flag.Bool("v", false, "Show version information")
	showVersionLong := flag.Bool("version", false, "Show version information")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Lectern - Terminal Reading Tool\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  lectern [options] <file>\n\n")
		fmt.Fprintf(os.Stderr, "Supported formats: %s\n\n", strings.Join(doc.SupportedFormats(), ", "))
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nControls:\n")
		fmt.Fprintf(os.Stderr, "  j/k ↑/↓        Scroll by line\n")
		fmt.Fprintf(os.Stderr, "  SPACE, PgDn/Up Scroll by page\n")
		fmt.Fprintf(os.Stderr, "  [ / ]          Previous/next section\n")
		fmt.Fprintf(os.Stderr, "  t              Table of contents\n")
		fmt.Fprintf(os.Stderr, "  c              Toggle section completed\n")
		fmt.Fprintf(os.Stderr, "  H              Toggle paragraph highlight\n")
		fmt.Fprintf(os.Stderr, "  x              Delete highlight at top of view\n")
		fmt.Fprintf(os.Stderr, "  /              Search (n/N: next/prev, m: highlight match)\n")
		fmt.Fprintf(os.Stderr, "  T              Cycle color theme\n")
		fmt.Fprintf(os.Stderr, "  q              Quit\n")
	}
	flag.Parse()

	if *showVersion || *showVersionLong {
		fmt.Printf("lectern %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: No document provided.")
		fmt.Fprintln(os.Stderr, "Try: lectern -h")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	document, err := doc.Load(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open '%s': %v\n", flag.Arg(0), err)
		os.Exit(1)
	}

	st, err := store.NewFileStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open reading state: %v\n", err)
		os.Exit(1)
	}

	theme := highlight.Theme(cfg.Theme)
	if *themeFlag != "" {
		theme = highlight.Theme(*themeFlag)
	}

	requested := *sectionFlag
	if requested == "" {
		requested = cfg.LastSection(document.ID)
	}

	m, err := newModel(document, cfg, st, theme, requested)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
