// Package visibility decides which section of a multi-section document the
// reader is currently in, from viewport geometry alone, and supports jumping
// to a section without the jump being misread as user scrolling.
package visibility

import "sort"

// Bounds places a section in the scroll container's coordinate space.
type Bounds struct {
	Top    float64
	Height float64
}

// Viewport is the visible window over the scroll container.
type Viewport struct {
	ScrollTop float64
	Height    float64
}

// Scroller performs the actual scroll on behalf of the tracker. Front ends
// adapt their scroll container to this.
type Scroller interface {
	ScrollTo(offset float64)
}

const (
	// The observation band is the upper 20%-70% slice of the viewport, a
	// top-biased margin so "current" matches what the reader perceives as
	// what they are reading, not merely what touches the viewport.
	bandTopFraction    = 0.2
	bandBottomFraction = 0.7

	// A section is a candidate once at least this fraction of it sits
	// inside the band.
	minRatio = 0.1

	// DefaultSettleFrames is how many frame ticks suppression stays set
	// after a programmatic scroll, so scroll events fired by the smooth
	// animation cannot retrigger visibility changes mid-flight.
	DefaultSettleFrames = 24
)

// Tracker reports the single current section while the user free-scrolls.
type Tracker struct {
	sections map[string]Bounds

	current      string
	suppressed   bool
	settleLeft   int
	settleFrames int
	headerOffset float64

	scroller Scroller
	onChange func(sectionID string)
}

// New creates a tracker. onChange fires at most once per qualifying
// current-section transition and never while suppression is active.
func New(scroller Scroller, headerOffset float64, onChange func(sectionID string)) *Tracker {
	return &Tracker{
		sections:     make(map[string]Bounds),
		settleFrames: DefaultSettleFrames,
		headerOffset: headerOffset,
		scroller:     scroller,
		onChange:     onChange,
	}
}

// Register starts observing a section. Registering an already-registered id
// just updates its bounds.
func (t *Tracker) Register(id string, b Bounds) {
	t.sections[id] = b
}

// Unregister stops observing a section. Unknown ids are a no-op.
func (t *Tracker) Unregister(id string) {
	delete(t.sections, id)
	if t.current == id {
		t.current = ""
	}
}

// Current returns the most recently reported section id.
func (t *Tracker) Current() string { return t.current }

// Suppressed reports whether change events are currently suppressed.
func (t *Tracker) Suppressed() bool { return t.suppressed }

// SetSettleFrames overrides the post-navigation settle delay.
func (t *Tracker) SetSettleFrames(n int) {
	if n > 0 {
		t.settleFrames = n
	}
}

// Update re-evaluates the current section against the viewport. It returns
// the current section id and whether this call changed it. While suppressed,
// the stored current section is left alone and no event fires.
func (t *Tracker) Update(vp Viewport) (string, bool) {
	if t.suppressed {
		return t.current, false
	}

	best, ok := t.pick(vp)
	if !ok || best == t.current {
		return t.current, false
	}

	t.current = best
	if t.onChange != nil {
		t.onChange(best)
	}
	return best, true
}

// pick applies the intersection heuristic: intersect each section with the
// observation band, keep those above the minimum ratio, then take the one
// whose top edge is least far below the viewport top.
func (t *Tracker) pick(vp Viewport) (string, bool) {
	bandTop := vp.ScrollTop + vp.Height*bandTopFraction
	bandBottom := vp.ScrollTop + vp.Height*bandBottomFraction

	type candidate struct {
		id    string
		below float64
	}
	var candidates []candidate

	for id, b := range t.sections {
		if ratioIn(b, bandTop, bandBottom) < minRatio {
			continue
		}
		below := b.Top - vp.ScrollTop
		if below < 0 {
			below = 0
		}
		candidates = append(candidates, candidate{id: id, below: below})
	}
	if len(candidates) == 0 {
		return "", false
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].below != candidates[j].below {
			return candidates[i].below < candidates[j].below
		}
		return candidates[i].id < candidates[j].id
	})
	return candidates[0].id, true
}

// ratioIn returns how much of the section (or of the band, whichever is
// smaller) lies inside [bandTop, bandBottom).
func ratioIn(b Bounds, bandTop, bandBottom float64) float64 {
	top := b.Top
	bottom := b.Top + b.Height
	if top < bandTop {
		top = bandTop
	}
	if bottom > bandBottom {
		bottom = bandBottom
	}
	inter := bottom - top
	if inter <= 0 {
		return 0
	}
	base := b.Height
	if band := bandBottom - bandTop; band < base {
		base = band
	}
	if base <= 0 {
		return 0
	}
	return inter / base
}

// NavigateTo jumps to a section: suppression goes up first, then the scroll
// is requested at the section top minus the header offset, floored at zero.
// Suppression clears only after the settle delay has ticked down, never
// synchronously.
func (t *Tracker) NavigateTo(id string) bool {
	b, ok := t.sections[id]
	if !ok {
		return false
	}

	t.suppressed = true
	t.settleLeft = t.settleFrames
	t.current = id

	target := b.Top - t.headerOffset
	if target < 0 {
		target = 0
	}
	if t.scroller != nil {
		t.scroller.ScrollTo(target)
	}
	return true
}

// Tick advances the settle countdown by one frame. The front end calls this
// from its frame loop; suppression clears when the countdown empties.
func (t *Tracker) Tick() {
	if !t.suppressed {
		return
	}
	if t.settleLeft > 0 {
		t.settleLeft--
	}
	if t.settleLeft == 0 {
		t.suppressed = false
	}
}

// Suppress forces the suppression flag. Restoration uses this so its
// programmatic scrolls are not reported as user movement.
func (t *Tracker) Suppress(on bool) {
	t.suppressed = on
	if !on {
		t.settleLeft = 0
	}
}

// SuppressFor raises suppression with a countdown, so it clears on its own
// after n frame ticks. Scroll-end is not reliably observable, so suppression
// is never cleared synchronously with the scroll that caused it.
func (t *Tracker) SuppressFor(frames int) {
	t.suppressed = true
	if frames < 1 {
		frames = 1
	}
	t.settleLeft = frames
}
