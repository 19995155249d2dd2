// Package session composes the visibility tracker, progress engine, offset
// mapper and highlight renderer into one reading session per open document.
// The coordinator owns all session state and mediates between "the user is
// scrolling" and "the system is restoring or navigating" so the two never
// fight.
package session

import (
	"fmt"
	"log"

	"golang.org/x/net/html"

	"github.com/dgriffen/lectern/internal/highlight"
	"github.com/dgriffen/lectern/internal/progress"
	"github.com/dgriffen/lectern/internal/textmap"
	"github.com/dgriffen/lectern/internal/visibility"
)

// Section is one ordered chunk of the open document.
type Section struct {
	ID      string
	Order   int
	Title   string
	Content string
}

// HighlightStore persists highlight records. All calls may be backed by slow
// storage; the coordinator applies local updates optimistically and rolls
// back on failure.
type HighlightStore interface {
	Highlights(sectionID string) ([]highlight.Highlight, error)
	CreateHighlight(sectionID string, start, end int, text, color string, vis highlight.Visibility) (highlight.Highlight, error)
	DeleteHighlight(id string) error
}

// State is the in-memory per-document session state. It is owned exclusively
// by the Coordinator; nothing else mutates it.
type State struct {
	CurrentSectionID     string
	LocalScrollPercent   int
	IsProgrammaticScroll bool
	IsRestoringProgress  bool
	LastPersistedPercent int
	// RestoreTarget is the percent the restoration loop is driving toward,
	// or -1 when no restoration is pending.
	RestoreTarget int
}

// Callbacks are the notifications the coordinator exposes to its front end.
// Any field may be nil.
type Callbacks struct {
	OnSectionChanged  func(sectionID string)
	OnProgressChanged func(percent int)
	// OnNotify surfaces transient, user-visible messages (for example a
	// highlight write that had to be rolled back).
	OnNotify func(message string)
}

// Coordinator runs one reading session. All methods must be called from a
// single event loop; persistence calls may be slow but the coordinator never
// depends on their completion order.
type Coordinator struct {
	userID     string
	documentID string

	sections []Section
	byID     map[string]*Section
	bounds   map[string]visibility.Bounds

	engine  *progress.Engine
	tracker *visibility.Tracker
	hlStore HighlightStore

	theme highlight.Theme

	// containers caches the parsed content tree per section; highlights
	// holds the per-section caches, always sorted by StartOffset.
	containers map[string]*html.Node
	highlights map[string][]highlight.Highlight
	hlLoaded   map[string]bool

	state State
	cb    Callbacks
}

// Config carries everything needed to open a session.
type Config struct {
	UserID     string
	DocumentID string
	Sections   []Section
	Progress   progress.Store
	Highlights HighlightStore
	Scroller   visibility.Scroller
	Theme      highlight.Theme
	// HeaderOffset is subtracted from a section's top when navigating, in
	// scroll units.
	HeaderOffset float64
	Callbacks    Callbacks
}

// New builds a coordinator. Stored progress is read once up front; highlight
// records are fetched lazily per section.
func New(cfg Config) (*Coordinator, error) {
	refs := make([]progress.SectionRef, len(cfg.Sections))
	byID := make(map[string]*Section, len(cfg.Sections))
	for i := range cfg.Sections {
		refs[i] = progress.SectionRef{ID: cfg.Sections[i].ID, Order: cfg.Sections[i].Order}
		byID[cfg.Sections[i].ID] = &cfg.Sections[i]
	}

	records, err := cfg.Progress.Records(cfg.UserID, cfg.DocumentID)
	if err != nil {
		// Start from nothing rather than refusing to open the document.
		log.Printf("lectern: failed to load progress records: %v", err)
		records = nil
	}

	theme := cfg.Theme
	if theme == "" {
		theme = highlight.ThemeLight
	}

	c := &Coordinator{
		userID:     cfg.UserID,
		documentID: cfg.DocumentID,
		sections:   cfg.Sections,
		byID:       byID,
		bounds:     make(map[string]visibility.Bounds),
		engine:     progress.NewEngine(cfg.UserID, cfg.DocumentID, refs, records, cfg.Progress),
		hlStore:    cfg.Highlights,
		theme:      theme,
		containers: make(map[string]*html.Node),
		highlights: make(map[string][]highlight.Highlight),
		hlLoaded:   make(map[string]bool),
		cb:         cfg.Callbacks,
		state:      State{RestoreTarget: -1},
	}
	c.tracker = visibility.New(cfg.Scroller, cfg.HeaderOffset, c.handleSectionChanged)
	return c, nil
}

// State returns a copy of the session state.
func (c *Coordinator) State() State { return c.state }

// Sections returns the ordered document sections.
func (c *Coordinator) Sections() []Section { return c.sections }

// Engine exposes the progress engine for read-only inspection.
func (c *Coordinator) Engine() *progress.Engine { return c.engine }

// Theme returns the active theme.
func (c *Coordinator) Theme() highlight.Theme { return c.theme }

// SetTheme switches the theme. Highlight rendering resolves colors on every
// render, so no cached state needs invalidating.
func (c *Coordinator) SetTheme(t highlight.Theme) { c.theme = t }

// RegisterSection publishes a section's bounds in the scroll container's
// coordinate space. Idempotent; re-registering updates the bounds.
func (c *Coordinator) RegisterSection(id string, b visibility.Bounds) {
	c.bounds[id] = b
	c.tracker.Register(id, b)
}

// UnregisterSection stops tracking a section's bounds.
func (c *Coordinator) UnregisterSection(id string) {
	delete(c.bounds, id)
	c.tracker.Unregister(id)
}

// Open resolves where to resume (the requested section id comes from the
// section deep-link parameter and may be empty or unknown) and primes the
// engine. When a non-zero target percent comes back the session enters
// restoration; the front end then drives Tick until it converges.
func (c *Coordinator) Open(requestedSection string) (sectionID string, targetPercent int) {
	sectionID, targetPercent = c.engine.Begin(requestedSection)

	c.state.CurrentSectionID = sectionID
	c.state.LocalScrollPercent = targetPercent
	c.tracker.Suppress(true)

	if c.engine.State() == progress.Restoring {
		c.state.IsRestoringProgress = true
		c.state.RestoreTarget = targetPercent
	} else {
		c.state.RestoreTarget = -1
		c.tracker.SuppressFor(visibility.DefaultSettleFrames)
	}

	if c.cb.OnSectionChanged != nil {
		c.cb.OnSectionChanged(sectionID)
	}
	return sectionID, targetPercent
}

// Tick runs one animation frame: it advances the suppression settle
// countdown and, while restoring, runs one restoration attempt. The returned
// offset is an absolute scroll position the front end should move to this
// frame; ok is false when no scroll is requested.
func (c *Coordinator) Tick(vp visibility.Viewport) (scrollTo float64, ok bool) {
	c.tracker.Tick()

	if c.state.IsProgrammaticScroll && !c.tracker.Suppressed() {
		c.state.IsProgrammaticScroll = false
	}

	if c.engine.State() != progress.Restoring {
		if c.state.IsRestoringProgress {
			// Cancellation or convergence elsewhere; never leave the flag
			// stuck.
			c.state.IsRestoringProgress = false
			c.state.RestoreTarget = -1
		}
		return 0, false
	}

	m, mok := c.activeMetrics(vp)
	if !mok {
		// Layout not ready; count it as an attempt against zero metrics so
		// the loop still terminates.
		m = progress.Metrics{}
	}

	desired, done := c.engine.RestoreStep(m)
	if done {
		c.state.IsRestoringProgress = false
		c.state.RestoreTarget = -1
		// Scroll events from the final positioning still need to settle
		// before visibility changes may fire again.
		c.tracker.SuppressFor(visibility.DefaultSettleFrames)
	}

	b, bok := c.bounds[c.engine.SectionID()]
	if !mok || !bok {
		// No scroll request until the layout can answer where to go.
		return 0, false
	}
	return b.Top + desired, true
}

// HandleScroll consumes one scroll event from the front end. During
// restoration and programmatic navigation the event is ignored; otherwise it
// may change the current section and always feeds the progress engine.
func (c *Coordinator) HandleScroll(vp visibility.Viewport) {
	if c.state.IsRestoringProgress || c.state.IsProgrammaticScroll {
		return
	}

	c.tracker.Update(vp)

	m, ok := c.activeMetrics(vp)
	if !ok {
		return
	}
	percent, persisted, err := c.engine.OnScroll(m)
	if err != nil {
		// Keep reading; the engine retries on the next qualifying event.
		log.Printf("lectern: %v", err)
	}

	if percent != c.state.LocalScrollPercent {
		c.state.LocalScrollPercent = percent
		if c.cb.OnProgressChanged != nil {
			c.cb.OnProgressChanged(percent)
		}
	}
	if persisted {
		c.state.LastPersistedPercent = percent
	}
}

// UserScrollIntent tells the coordinator the user deliberately moved (a key
// press, a wheel event). A pending restoration is cancelled rather than
// fighting them.
func (c *Coordinator) UserScrollIntent() {
	if c.state.IsRestoringProgress {
		c.engine.CancelRestore()
		c.state.IsRestoringProgress = false
		c.state.RestoreTarget = -1
		c.tracker.Suppress(false)
	}
}

// handleSectionChanged is the tracker's change callback: the user scrolled
// into a different section. The old section's unsaved progress is flushed
// through (bypassing the threshold), then tracking is rescoped.
func (c *Coordinator) handleSectionChanged(id string) {
	if err := c.engine.Flush(); err != nil {
		log.Printf("lectern: %v", err)
	}

	c.state.CurrentSectionID = id
	c.engine.TrackAt(id, 0)
	c.state.LocalScrollPercent = 0

	if c.cb.OnSectionChanged != nil {
		c.cb.OnSectionChanged(id)
	}
}

// NavigateToSection programmatically jumps to a section top. The suppression
// flag goes up before the scroll and clears only after the settle delay, so
// the smooth-scroll's own events cannot echo back as a user move.
func (c *Coordinator) NavigateToSection(id string) error {
	if _, ok := c.byID[id]; !ok {
		return fmt.Errorf("unknown section %q", id)
	}

	if c.state.IsRestoringProgress {
		c.engine.CancelRestore()
		c.state.IsRestoringProgress = false
		c.state.RestoreTarget = -1
	}
	if err := c.engine.Flush(); err != nil {
		log.Printf("lectern: %v", err)
	}

	c.state.IsProgrammaticScroll = true
	c.tracker.NavigateTo(id)

	c.state.CurrentSectionID = id
	c.engine.SetSectionAt(id, 0)
	c.state.LocalScrollPercent = 0

	if c.cb.OnSectionChanged != nil {
		c.cb.OnSectionChanged(id)
	}
	return nil
}

// ToggleSectionCompleted flips the completed status of the current section.
func (c *Coordinator) ToggleSectionCompleted() (progress.Record, error) {
	return c.engine.ToggleCompleted()
}

// DocumentPercent aggregates progress across all sections.
func (c *Coordinator) DocumentPercent() int {
	refs := make([]progress.SectionRef, len(c.sections))
	for i, s := range c.sections {
		refs[i] = progress.SectionRef{ID: s.ID, Order: s.Order}
	}
	return progress.DocumentPercent(refs, c.engine.Records())
}

// Close flushes unsaved progress. Safe to call more than once.
func (c *Coordinator) Close() {
	if err := c.engine.Flush(); err != nil {
		log.Printf("lectern: %v", err)
	}
}

// activeMetrics derives the active section's scroll metrics from the global
// viewport and the section's registered bounds.
func (c *Coordinator) activeMetrics(vp visibility.Viewport) (progress.Metrics, bool) {
	id := c.engine.SectionID()
	if id == "" {
		id = c.state.CurrentSectionID
	}
	b, ok := c.bounds[id]
	if !ok || b.Height <= 0 {
		return progress.Metrics{}, false
	}

	top := vp.ScrollTop - b.Top
	if top < 0 {
		top = 0
	}
	client := vp.Height
	if client > b.Height {
		client = b.Height
	}
	return progress.Metrics{
		ScrollTop:    top,
		ScrollHeight: b.Height,
		ClientHeight: client,
	}, true
}

// Container returns the parsed content tree for a section, parsing and
// caching on first use.
func (c *Coordinator) Container(sectionID string) (*html.Node, error) {
	if node, ok := c.containers[sectionID]; ok {
		return node, nil
	}
	sec, ok := c.byID[sectionID]
	if !ok {
		return nil, fmt.Errorf("unknown section %q", sectionID)
	}
	node, err := textmap.ParseContainer(sec.Content)
	if err != nil {
		return nil, err
	}
	c.containers[sectionID] = node
	return node, nil
}

func (c *Coordinator) notify(msg string) {
	if c.cb.OnNotify != nil {
		c.cb.OnNotify(msg)
	}
}
