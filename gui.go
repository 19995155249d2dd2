//go:build gui

package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"golang.org/x/net/html"

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

const boundsPollInterval = 100 * time.Millisecond

// scrollAdapter lets the tracker drive the Fyne scroll container. Scroll
// units are pixels.
type scrollAdapter struct {
	scroll *container.Scroll
}

func (s *scrollAdapter) ScrollTo(pos float64) {
	s.scroll.Offset = fyne.NewPos(0, float32(pos))
	s.scroll.Refresh()
}

type gui struct {
	document *doc.Document
	cfg      *config.Config
	coord    *session.Coordinator

	scroll      *container.Scroll
	content     *fyne.Container
	secWidgets  []fyne.CanvasObject
	statusLabel *widget.Label

	tocVisible bool
	tocPanel   *container.Split
}

// segmentsFor flattens a section's annotated content tree into RichText
// segments. Fyne rich text has no background colors, so highlighted runs are
// drawn in the primary color instead.
func segmentsFor(root *html.Node) []widget.RichTextSegment {
	var segs []widget.RichTextSegment
	for _, block := range flattenAnnotated(root) {
		style := widget.RichTextStyleParagraph
		if block.heading {
			style = widget.RichTextStyleSubHeading
		}
		for _, run := range block.runs {
			s := widget.TextSegment{Text: run.text, Style: style}
			if run.note {
				s.Style.ColorName = theme.ColorNameWarning
			} else if run.highlightID != "" {
				s.Style.ColorName = theme.ColorNamePrimary
				s.Style.TextStyle.Bold = true
			}
			s.Style.Inline = true
			segs = append(segs, &s)
		}
		segs = append(segs, &widget.TextSegment{Text: "\n\n", Style: style})
	}
	return segs
}

func (g *gui) buildSectionWidget(sec session.Section) fyne.CanvasObject {
	title := widget.NewLabel(sec.Title)
	title.TextStyle.Bold = true

	body := widget.NewRichText()
	body.Wrapping = fyne.TextWrapWord
	root, err := g.coord.RenderSection(sec.ID)
	if err != nil {
		body.Segments = []widget.RichTextSegment{
			&widget.TextSegment{Text: fmt.Sprintf("[could not render section: %v]", err)},
		}
	} else {
		body.Segments = segmentsFor(root)
	}
	body.Refresh()

	return container.NewVBox(title, body)
}

func (g *gui) refreshSection(idx int) {
	g.secWidgets[idx] = g.buildSectionWidget(g.coord.Sections()[idx])
	g.content.Objects[idx] = g.secWidgets[idx]
	g.content.Refresh()
}

// publishBounds re-registers every section's laid-out position. Positions
// are only meaningful after layout, so this runs from the poll loop.
func (g *gui) publishBounds() {
	for i, sec := range g.coord.Sections() {
		w := g.secWidgets[i]
		g.coord.RegisterSection(sec.ID, visibility.Bounds{
			Top:    float64(w.Position().Y),
			Height: float64(w.Size().Height),
		})
	}
}

func (g *gui) viewportState() visibility.Viewport {
	return visibility.Viewport{
		ScrollTop: float64(g.scroll.Offset.Y),
		Height:    float64(g.scroll.Size().Height),
	}
}

func (g *gui) updateStatus() {
	state := g.coord.State()
	title := ""
	for _, s := range g.coord.Sections() {
		if s.ID == state.CurrentSectionID {
			title = s.Title
			break
		}
	}
	g.statusLabel.SetText(fmt.Sprintf("%s | section %d%% | book %d%%",
		title, state.LocalScrollPercent, g.coord.DocumentPercent()))
}

// sectionAtTop returns the index of the section under the top edge of the
// viewport and an approximate text offset for it, derived from how far into
// the section the viewport sits.
func (g *gui) sectionAtTop() (int, int, bool) {
	top := float64(g.scroll.Offset.Y)
	for i, sec := range g.coord.Sections() {
		w := g.secWidgets[i]
		wTop := float64(w.Position().Y)
		wHeight := float64(w.Size().Height)
		if top >= wTop && top < wTop+wHeight {
			container, err := g.coord.Container(sec.ID)
			if err != nil {
				return i, 0, true
			}
			total := len([]rune(textmap.PlainText(container)))
			frac := (top - wTop) / wHeight
			return i, int(frac * float64(total)), true
		}
	}
	return 0, 0, false
}

func (g *gui) toggleParagraphHighlight() {
	idx, offset, ok := g.sectionAtTop()
	if !ok {
		return
	}
	sec := g.coord.Sections()[idx]
	root, err := g.coord.Container(sec.ID)
	if err != nil {
		return
	}
	para := session.ParagraphAt(root, offset)
	if para == nil {
		return
	}
	if _, err := g.coord.ToggleParagraphHighlight(para); err == nil {
		g.refreshSection(idx)
	}
}

func (g *gui) scrollBy(delta float32) {
	g.coord.UserScrollIntent()
	y := g.scroll.Offset.Y + delta
	if y < 0 {
		y = 0
	}
	g.scroll.Offset = fyne.NewPos(0, y)
	g.scroll.Refresh()
	g.coord.HandleScroll(g.viewportState())
	g.updateStatus()
}

func main() {
	sectionFlag := flag.String("section", "", "Section id to open at (overrides the saved position)")
	showTOC := flag.Bool("toc", false, "Show table of contents at startup")
	showVersion := flag.Bool("v", false, "Show version information")
	showVersionLong := flag.Bool("version", false, "Show version information")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Lectern - GUI Reading Tool\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  lectern [options] <file>\n\n")
		fmt.Fprintf(os.Stderr, "Supported formats: %s\n\n", strings.Join(doc.SupportedFormats(), ", "))
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nControls:\n")
		fmt.Fprintf(os.Stderr, "  ↑/↓      Scroll\n")
		fmt.Fprintf(os.Stderr, "  SPACE    Page down\n")
		fmt.Fprintf(os.Stderr, "  T        Table of contents\n")
		fmt.Fprintf(os.Stderr, "  C        Toggle section completed\n")
		fmt.Fprintf(os.Stderr, "  H        Toggle paragraph highlight\n")
		fmt.Fprintf(os.Stderr, "  F        Fullscreen\n")
		fmt.Fprintf(os.Stderr, "  Q        Quit\n")
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

	sections := make([]session.Section, len(document.Sections))
	for i, s := range document.Sections {
		sections[i] = session.Section{ID: s.ID, Order: s.Order, Title: s.Title, Content: s.Content}
	}

	g := &gui{document: document, cfg: cfg}

	g.content = container.NewVBox()
	g.scroll = container.NewVScroll(g.content)

	coord, err := session.New(session.Config{
		UserID:       "local",
		DocumentID:   document.ID,
		Sections:     sections,
		Progress:     st,
		Highlights:   st,
		Scroller:     &scrollAdapter{scroll: g.scroll},
		Theme:        highlight.Theme(cfg.Theme),
		HeaderOffset: cfg.HeaderOffset,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	coord.Engine().SetPersistThreshold(cfg.PersistThreshold)
	coord.Engine().SetMaxRestoreAttempts(cfg.RestoreAttempts)
	g.coord = coord

	for _, sec := range sections {
		w := g.buildSectionWidget(sec)
		g.secWidgets = append(g.secWidgets, w)
		g.content.Add(w)
	}

	a := app.New()
	w := a.NewWindow("lectern - " + document.Title)

	g.statusLabel = widget.NewLabel(document.Title)
	g.statusLabel.Alignment = fyne.TextAlignCenter

	tocList := widget.NewList(
		func() int { return len(sections) },
		func() fyne.CanvasObject { return widget.NewLabel("Title") },
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			label := obj.(*widget.Label)
			label.SetText(sections[id].Title)
		},
	)
	tocList.OnSelected = func(id widget.ListItemID) {
		if id < len(sections) {
			if err := g.coord.NavigateToSection(sections[id].ID); err == nil {
				g.tocVisible = false
				g.tocPanel.Leading.Hide()
				g.tocPanel.Refresh()
				g.updateStatus()
			}
		}
		tocList.UnselectAll()
	}

	readingContent := container.NewBorder(nil, g.statusLabel, nil, nil, g.scroll)

	tocContainer := container.NewBorder(
		widget.NewLabel("Table of Contents"),
		widget.NewLabel("Click to jump • T to close"),
		nil, nil,
		tocList,
	)
	g.tocPanel = container.NewHSplit(tocContainer, readingContent)
	g.tocPanel.Offset = 0.25
	if *showTOC {
		g.tocVisible = true
	} else {
		tocContainer.Hide()
	}

	g.scroll.OnScrolled = func(pos fyne.Position) {
		g.coord.HandleScroll(g.viewportState())
		g.updateStatus()
	}

	done := make(chan bool)
	var closeOnce sync.Once

	saveAndClose := func() {
		g.coord.Close()
		state := g.coord.State()
		if err := cfg.SetLastSection(document.ID, document.Title, state.CurrentSectionID); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not save reading position: %v\n", err)
		}
		closeOnce.Do(func() { close(done) })
	}

	// Layout positions are not available until the window has rendered, so
	// bounds publication, session open and the frame loop all run off a
	// polling goroutine that calls back onto the main thread.
	opened := false
	go func() {
		for {
			select {
			case <-done:
				return
			case <-time.After(boundsPollInterval):
				fyne.Do(func() {
					g.publishBounds()

					if !opened {
						if g.scroll.Size().Height <= 0 {
							return
						}
						opened = true
						requested := *sectionFlag
						if requested == "" {
							requested = cfg.LastSection(document.ID)
						}
						secID, target := g.coord.Open(requested)
						if target == 0 {
							if err := g.coord.NavigateToSection(secID); err != nil {
								fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
							}
						}
					}

					if scrollTo, ok := g.coord.Tick(g.viewportState()); ok {
						g.scroll.Offset = fyne.NewPos(0, float32(scrollTo))
						g.scroll.Refresh()
					}
					g.updateStatus()
				})
			}
		}
	}()

	w.Canvas().SetOnTypedKey(func(key *fyne.KeyEvent) {
		switch key.Name {
		case fyne.KeyUp:
			g.scrollBy(-40)
		case fyne.KeyDown:
			g.scrollBy(40)
		case fyne.KeySpace, fyne.KeyPageDown:
			g.scrollBy(g.scroll.Size().Height)
		case fyne.KeyPageUp:
			g.scrollBy(-g.scroll.Size().Height)
		case fyne.KeyF:
			w.SetFullScreen(!w.FullScreen())
		case fyne.KeyQ:
			saveAndClose()
			a.Quit()
		}
	})

	w.Canvas().SetOnTypedRune(func(r rune) {
		switch r {
		case 't', 'T':
			g.tocVisible = !g.tocVisible
			if g.tocVisible {
				g.tocPanel.Leading.Show()
			} else {
				g.tocPanel.Leading.Hide()
			}
			g.tocPanel.Refresh()

		case 'c', 'C':
			if _, err := g.coord.ToggleSectionCompleted(); err == nil {
				g.updateStatus()
			}

		case 'h', 'H':
			g.toggleParagraphHighlight()
		}
	})

	w.Resize(fyne.NewSize(900, 700))
	w.SetContent(g.tocPanel)
	w.SetOnClosed(saveAndClose)

	w.ShowAndRun()
}
