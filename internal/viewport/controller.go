// Package viewport owns the live camera state of the document view and scrolls the
// document to the framed page.
package viewport

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/MeKo-Tech/docframe/internal/framing"
	"github.com/MeKo-Tech/docframe/internal/raster"
)

// DefaultPageGap is the vertical gap between pages in display pixels.
const DefaultPageGap = 16

// Mode is the controller's state machine position.
type Mode int

const (
	// ModeNeutral is the identity transform; initial and terminal state.
	ModeNeutral Mode = iota
	// ModeFramed means one page is zoomed onto a region.
	ModeFramed
)

func (m Mode) String() string {
	switch m {
	case ModeNeutral:
		return "neutral"
	case ModeFramed:
		return "framed"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "neutral":
		*m = ModeNeutral
	case "framed":
		*m = ModeFramed
	default:
		return fmt.Errorf("unknown viewport mode %q", text)
	}
	return nil
}

// Snapshot is the observable controller state after a transition.
type Snapshot struct {
	Mode         Mode          `json:"mode"`
	State        framing.State `json:"state"`
	ScrollTarget float64       `json:"scroll_target"`
}

// Scroller moves the document container. Implementations may animate.
type Scroller interface {
	ScrollTo(target float64)
	Position() float64
}

// Controller holds the single live ViewportState.
type Controller struct {
	mu           sync.Mutex
	state        framing.State
	scrollTarget float64
	pageGap      float64
	scroller     Scroller
}

// NewController creates a neutral controller. A nil scroller jumps instantly.
func NewController(scroller Scroller, pageGap float64) *Controller {
	if scroller == nil {
		scroller = &InstantScroller{}
	}
	return &Controller{
		state:    framing.Neutral(),
		pageGap:  pageGap,
		scroller: scroller,
	}
}

// ScrollOffset returns the vertical offset of pageNumber in a stacked page layout: the
// sum of every preceding page's display height plus gap.
func ScrollOffset(pages []raster.PageGeometry, pageNumber int, gap float64) float64 {
	offset := 0.0
	for i := 0; i < pageNumber-1 && i < len(pages); i++ {
		offset += float64(pages[i].DisplayHeight) + gap
	}
	return offset
}

// Apply frames st. The transform is reset and replaced under one lock, so readers
// never see the previous page's transform combined with the new page. The document is
// scrolled to the framed page's offset.
func (c *Controller) Apply(st framing.State, pages []raster.PageGeometry) (Snapshot, error) {
	if st.FramedPageNumber < 1 || st.FramedPageNumber > len(pages) {
		return c.Snapshot(), fmt.Errorf("%w: framed page %d of %d",
			raster.ErrInvalidPage, st.FramedPageNumber, len(pages))
	}
	if st.Zoom < 1 {
		return c.Snapshot(), fmt.Errorf("invalid zoom %v", st.Zoom)
	}

	c.mu.Lock()
	c.state = st
	c.scrollTarget = ScrollOffset(pages, st.FramedPageNumber, c.pageGap)
	snap := c.snapshotLocked()
	scroller := c.scroller
	c.mu.Unlock()

	slog.Debug("Viewport framed", "page", st.FramedPageNumber, "zoom", st.Zoom, "scroll", snap.ScrollTarget)
	scroller.ScrollTo(snap.ScrollTarget)
	return snap, nil
}

// Reset returns to the neutral transform. The scroll position is left where it is.
func (c *Controller) Reset() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = framing.Neutral()
	return c.snapshotLocked()
}

// State returns the live transform.
func (c *Controller) State() framing.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mode reports whether a page is currently framed.
func (c *Controller) Mode() Mode {
	return modeOf(c.State())
}

// Snapshot returns the current observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// ScrollPosition returns the scroller's current position.
func (c *Controller) ScrollPosition() float64 {
	return c.scroller.Position()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{Mode: modeOf(c.state), State: c.state, ScrollTarget: c.scrollTarget}
}

func modeOf(st framing.State) Mode {
	if st.FramedPageNumber == 0 {
		return ModeNeutral
	}
	return ModeFramed
}
