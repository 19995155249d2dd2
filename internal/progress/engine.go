package progress

import (
	"fmt"
	"math"
)

// State of the engine for one open document.
type State int

const (
	Uninitialized State = iota
	Resolving
	Restoring
	Tracking
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Resolving:
		return "resolving"
	case Restoring:
		return "restoring"
	case Tracking:
		return "tracking"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	// DefaultPersistThreshold bounds write volume to roughly one write per
	// five points of visible progress, plus always on completion.
	DefaultPersistThreshold = 5

	// DefaultMaxRestoreAttempts caps the restoration loop so it always
	// terminates even if layout never stabilizes.
	DefaultMaxRestoreAttempts = 60

	// Convergence tolerance for the restoration loop, in scroll units.
	restoreTolerance = 1.0

	// bottomTolerance treats positions this close to the bottom as 100%, so
	// rounding can never prevent completion.
	bottomTolerance = 10.0
)

// Metrics describes the scrollable extent of the active section as seen by
// the front end. Units are whatever the scroll container uses (pixels,
// lines); the engine only compares and divides them.
type Metrics struct {
	ScrollTop    float64
	ScrollHeight float64
	ClientHeight float64
}

// Range returns the scrollable range. Zero or negative means the section is
// fully visible.
func (m Metrics) Range() float64 { return m.ScrollHeight - m.ClientHeight }

// PercentFor computes the 0-100 completion percent for the metrics.
func PercentFor(m Metrics) int {
	r := m.Range()
	if r <= 0 {
		return 100
	}
	if m.ScrollTop+m.ClientHeight >= m.ScrollHeight-bottomTolerance {
		return 100
	}
	frac := m.ScrollTop / r
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return int(math.Round(frac * 100))
}

// Engine is the per-document progress state machine. It is single-threaded:
// every method is expected to run on the front end's event loop, and writes
// that fail are simply retried on the next qualifying event.
type Engine struct {
	userID     string
	documentID string
	store      Store

	sections []SectionRef
	records  map[string]Record

	state     State
	sectionID string

	// restoreTarget is the percent the restoration loop drives toward.
	restoreTarget int
	attempts      int
	maxAttempts   int

	threshold     int
	localPercent  int
	lastPersisted int // -1 until the first successful write for the section
}

// NewEngine builds an engine over the document's ordered sections and any
// previously stored records.
func NewEngine(userID, documentID string, sections []SectionRef, records []Record, store Store) *Engine {
	byID := make(map[string]Record, len(records))
	for _, r := range records {
		byID[r.SectionID] = r
	}
	return &Engine{
		userID:        userID,
		documentID:    documentID,
		store:         store,
		sections:      sections,
		records:       byID,
		state:         Uninitialized,
		maxAttempts:   DefaultMaxRestoreAttempts,
		threshold:     DefaultPersistThreshold,
		lastPersisted: -1,
	}
}

// SetPersistThreshold overrides the write threshold.
func (e *Engine) SetPersistThreshold(n int) {
	if n > 0 {
		e.threshold = n
	}
}

// SetMaxRestoreAttempts overrides the restoration attempt cap.
func (e *Engine) SetMaxRestoreAttempts(n int) {
	if n > 0 {
		e.maxAttempts = n
	}
}

// State returns the engine's current state.
func (e *Engine) State() State { return e.state }

// SectionID returns the section the engine is currently scoped to.
func (e *Engine) SectionID() string { return e.sectionID }

// LocalPercent returns the most recently computed percent for the active
// section, persisted or not.
func (e *Engine) LocalPercent() int { return e.localPercent }

// RestoreTarget returns the percent the restoration loop is driving toward.
func (e *Engine) RestoreTarget() int { return e.restoreTarget }

// Records returns the engine's view of the stored records, keyed by section.
func (e *Engine) Records() map[string]Record { return e.records }

// Resolve decides where to resume on document open. Priority: an explicitly
// requested section if it exists; otherwise the InProgress section with the
// highest stored percent (most recently updated wins ties); otherwise the
// section following the last Completed one at zero (or that section itself if
// nothing follows); otherwise the first section at zero.
func (e *Engine) Resolve(requested string) (sectionID string, targetPercent int) {
	e.state = Resolving

	if requested != "" {
		if _, ok := e.sectionByID(requested); ok {
			// The stored percent is used even for a Completed section;
			// an explicit request means the reader wants their old spot.
			pct := 0
			if rec, ok := e.records[requested]; ok {
				pct = rec.ScrollPercent
			}
			return requested, pct
		}
		// Unknown section ids fall through to the normal priority.
	}

	if id, pct, ok := e.bestInProgress(); ok {
		return id, pct
	}

	if id, pct, ok := e.afterLastCompleted(); ok {
		return id, pct
	}

	if len(e.sections) > 0 {
		return e.sections[0].ID, 0
	}
	return "", 0
}

func (e *Engine) bestInProgress() (string, int, bool) {
	found := false
	var best Record
	for _, s := range e.sections {
		rec, ok := e.records[s.ID]
		if !ok || rec.Status != StatusInProgress {
			continue
		}
		if !found ||
			rec.ScrollPercent > best.ScrollPercent ||
			(rec.ScrollPercent == best.ScrollPercent && rec.UpdatedAt.After(best.UpdatedAt)) {
			best = rec
			found = true
		}
	}
	if !found {
		return "", 0, false
	}
	return best.SectionID, best.ScrollPercent, true
}

func (e *Engine) afterLastCompleted() (string, int, bool) {
	lastIdx := -1
	for i, s := range e.sections {
		if rec, ok := e.records[s.ID]; ok && rec.Status == StatusCompleted {
			lastIdx = i
		}
	}
	if lastIdx == -1 {
		return "", 0, false
	}
	if lastIdx+1 < len(e.sections) {
		return e.sections[lastIdx+1].ID, 0, true
	}
	// Nothing follows: resume inside the completed section itself.
	id := e.sections[lastIdx].ID
	return id, e.records[id].ScrollPercent, true
}

// Begin resolves the resume point and enters either Restoring (when there is
// a position to drive toward) or Tracking directly (target 0). It returns
// the resolved section and target so the coordinator can position the
// viewport.
func (e *Engine) Begin(requested string) (sectionID string, targetPercent int) {
	sectionID, targetPercent = e.Resolve(requested)
	e.enterSection(sectionID, targetPercent)
	return sectionID, targetPercent
}

// SetSectionAt scopes the engine to a section at an explicit target percent,
// used for explicit navigation where the target is "top of section".
func (e *Engine) SetSectionAt(id string, targetPercent int) {
	e.enterSection(id, targetPercent)
}

// TrackAt scopes the engine to a section the reader is already inside of,
// entering Tracking directly at the observed percent. Used when the user
// free-scrolls across a section boundary: restoring toward the section's
// stored checkpoint here would fight the user's own scrolling.
func (e *Engine) TrackAt(id string, percent int) {
	e.enterSection(id, 0)
	e.localPercent = percent
}

func (e *Engine) enterSection(id string, target int) {
	e.sectionID = id
	e.restoreTarget = target
	e.attempts = 0
	e.localPercent = target
	e.lastPersisted = -1
	if rec, ok := e.records[id]; ok {
		// Re-entering a known section continues from its stored checkpoint,
		// so the first tracked scroll does not immediately force a write.
		e.lastPersisted = rec.ScrollPercent
	}

	if target > 0 {
		e.state = Restoring
	} else {
		e.state = Tracking
	}
}

// RestoreStep runs one attempt of the best-effort restoration loop. The
// scrollable range is recomputed from the fresh metrics every attempt,
// because late layout (images, fonts) can change it between frames. The
// returned offset is where the front end should scroll this frame; done
// reports convergence (within tolerance) or the attempt cap being reached.
func (e *Engine) RestoreStep(m Metrics) (scrollTo float64, done bool) {
	if e.state != Restoring {
		return m.ScrollTop, true
	}

	r := m.Range()
	if r <= 0 {
		// No scrollable range yet. Layout may simply not have produced the
		// bounds this frame, so burn an attempt and stay in Restoring; the
		// cap still bounds the loop when the section genuinely fits.
		e.attempts++
		if e.attempts >= e.maxAttempts {
			e.finishRestore()
			return m.ScrollTop, true
		}
		return m.ScrollTop, false
	}

	desired := float64(e.restoreTarget) / 100 * r
	if math.Abs(m.ScrollTop-desired) <= restoreTolerance {
		e.finishRestore()
		return desired, true
	}

	e.attempts++
	if e.attempts >= e.maxAttempts {
		// Give up and accept the closest reached position. Best effort, not
		// a hard contract.
		e.finishRestore()
		return desired, true
	}
	return desired, false
}

// CancelRestore abandons a pending restoration, for example because the user
// scrolled away before convergence.
func (e *Engine) CancelRestore() {
	if e.state == Restoring {
		e.finishRestore()
	}
}

func (e *Engine) finishRestore() {
	e.state = Tracking
	e.attempts = 0
}

// OnScroll consumes one scroll event while Tracking. It computes the percent
// and persists it when the write gate passes: first write for this section,
// moved at least threshold points since the last persisted value, or
// completion. Scroll events in any other state are ignored, which is what
// keeps restoration from being recorded as reading.
func (e *Engine) OnScroll(m Metrics) (percent int, persisted bool, err error) {
	if e.state != Tracking {
		return e.localPercent, false, nil
	}

	percent = PercentFor(m)
	e.localPercent = percent

	if !e.shouldPersist(percent) {
		return percent, false, nil
	}

	if err := e.persist(percent); err != nil {
		// Leave lastPersisted untouched so the next qualifying scroll
		// retries instead of silently dropping the checkpoint.
		return percent, false, err
	}
	return percent, true, nil
}

func (e *Engine) shouldPersist(percent int) bool {
	if e.lastPersisted < 0 {
		return true
	}
	if percent == 100 {
		return e.lastPersisted != 100
	}
	diff := percent - e.lastPersisted
	if diff < 0 {
		diff = -diff
	}
	return diff >= e.threshold
}

// Flush writes the last computed position through immediately, bypassing the
// threshold gate. Called on section change, navigation away, and close, so a
// reader a few points past the last checkpoint does not lose the increment.
func (e *Engine) Flush() error {
	if e.sectionID == "" || e.state == Uninitialized {
		return nil
	}
	if e.lastPersisted == e.localPercent {
		return nil
	}
	return e.persist(e.localPercent)
}

func (e *Engine) persist(percent int) error {
	up := Upsert{ScrollPercent: &percent}

	// First contact with a section promotes it to InProgress. An explicit
	// Completed status is never demoted by scrolling.
	if rec, ok := e.records[e.sectionID]; !ok || rec.Status == StatusNotStarted {
		st := StatusInProgress
		up.Status = &st
	}

	rec, err := e.store.UpsertProgress(e.userID, e.documentID, e.sectionID, up)
	if err != nil {
		return fmt.Errorf("failed to persist progress for section %s: %w", e.sectionID, err)
	}
	e.records[e.sectionID] = rec
	e.lastPersisted = percent
	return nil
}

// ToggleCompleted flips the active section's completed status. Completing is
// independent of scroll percent; un-completing reverts to InProgress at the
// last known percent, never back to NotStarted.
func (e *Engine) ToggleCompleted() (Record, error) {
	if e.sectionID == "" {
		return Record{}, fmt.Errorf("no active section")
	}

	st := StatusCompleted
	if rec, ok := e.records[e.sectionID]; ok && rec.Status == StatusCompleted {
		st = StatusInProgress
	}

	pct := e.localPercent
	rec, err := e.store.UpsertProgress(e.userID, e.documentID, e.sectionID, Upsert{
		Status:        &st,
		ScrollPercent: &pct,
	})
	if err != nil {
		return Record{}, fmt.Errorf("failed to toggle completion for section %s: %w", e.sectionID, err)
	}
	e.records[e.sectionID] = rec
	e.lastPersisted = pct
	return rec, nil
}

func (e *Engine) sectionByID(id string) (SectionRef, bool) {
	for _, s := range e.sections {
		if s.ID == id {
			return s, true
		}
	}
	return SectionRef{}, false
}
