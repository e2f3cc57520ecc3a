package viewport

import (
	"sync"
	"testing"
	"time"

	"github.com/MeKo-Tech/docframe/internal/framing"
	"github.com/MeKo-Tech/docframe/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threePages() []raster.PageGeometry {
	return []raster.PageGeometry{
		{PageIndex: 0, DisplayWidth: 800, DisplayHeight: 1035, Available: true},
		{PageIndex: 1, DisplayWidth: 800, DisplayHeight: 1000, Available: true},
		{PageIndex: 2, DisplayWidth: 800, DisplayHeight: 1035, Available: true},
	}
}

func TestScrollOffset(t *testing.T) {
	pages := threePages()
	tests := []struct {
		page int
		want float64
	}{
		{1, 0},
		{2, 1035 + 16},
		{3, 1035 + 16 + 1000 + 16},
		{0, 0},
		{9, 1035 + 16 + 1000 + 16 + 1035 + 16},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, ScrollOffset(pages, tt.page, DefaultPageGap), 1e-9, "page %d", tt.page)
	}
}

func TestControllerApplyAndReset(t *testing.T) {
	scroller := &InstantScroller{}
	c := NewController(scroller, DefaultPageGap)
	require.Equal(t, ModeNeutral, c.Mode())
	require.Equal(t, framing.Neutral(), c.State())

	st := framing.State{Zoom: 6.8, TranslateX: -100, TranslateY: -50, FramedPageNumber: 2}
	snap, err := c.Apply(st, threePages())
	require.NoError(t, err)
	assert.Equal(t, ModeFramed, snap.Mode)
	assert.Equal(t, st, c.State())
	assert.InDelta(t, 1051, snap.ScrollTarget, 1e-9)
	assert.InDelta(t, 1051, c.ScrollPosition(), 1e-9)

	snap = c.Reset()
	assert.Equal(t, ModeNeutral, snap.Mode)
	assert.Equal(t, framing.State{Zoom: 1}, c.State())
	assert.InDelta(t, 1051, c.ScrollPosition(), 1e-9)
}

func TestControllerReframeReplacesTransform(t *testing.T) {
	c := NewController(nil, DefaultPageGap)

	first := framing.State{Zoom: 3, TranslateX: 10, TranslateY: 20, FramedPageNumber: 1}
	second := framing.State{Zoom: 5, TranslateX: -30, TranslateY: -40, FramedPageNumber: 3}
	snap, err := c.Apply(first, threePages())
	require.NoError(t, err)
	assert.Equal(t, first, snap.State)

	snap, err = c.Apply(second, threePages())
	require.NoError(t, err)
	assert.Equal(t, second, snap.State)
	assert.Equal(t, second, c.State())
	assert.InDelta(t, 2067, snap.ScrollTarget, 1e-9)
}

func TestControllerApplyRejectsInvalid(t *testing.T) {
	c := NewController(nil, DefaultPageGap)

	_, err := c.Apply(framing.State{Zoom: 2, FramedPageNumber: 4}, threePages())
	require.ErrorIs(t, err, raster.ErrInvalidPage)

	_, err = c.Apply(framing.State{Zoom: 2, FramedPageNumber: 0}, threePages())
	require.ErrorIs(t, err, raster.ErrInvalidPage)

	_, err = c.Apply(framing.State{Zoom: 0.5, FramedPageNumber: 1}, threePages())
	require.Error(t, err)

	assert.Equal(t, ModeNeutral, c.Mode())
}

func TestControllerResetKeepsScrollTarget(t *testing.T) {
	c := NewController(nil, DefaultPageGap)

	snap := c.Reset()
	assert.Equal(t, ModeNeutral, snap.Mode)

	_, err := c.Apply(framing.State{Zoom: 2, FramedPageNumber: 3}, threePages())
	require.NoError(t, err)
	snap = c.Reset()
	assert.Equal(t, ModeNeutral, snap.Mode)
	assert.InDelta(t, 2067, snap.ScrollTarget, 1e-9)
	assert.Equal(t, ModeNeutral, c.Snapshot().Mode)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "neutral", ModeNeutral.String())
	assert.Equal(t, "framed", ModeFramed.String())
	assert.Equal(t, "mode(7)", Mode(7).String())
	text, err := ModeFramed.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "framed", string(text))

	var m Mode
	require.NoError(t, m.UnmarshalText(text))
	assert.Equal(t, ModeFramed, m)
	require.Error(t, m.UnmarshalText([]byte("zoomed")))
}

func TestAnimatedScrollerReachesTarget(t *testing.T) {
	var mu sync.Mutex
	var frames []Frame
	s := NewAnimatedScroller(40*time.Millisecond, 4, func(f Frame) {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
	})

	s.ScrollTo(1000)
	s.Wait()

	assert.InDelta(t, 1000, s.Position(), 1e-9)
	assert.InDelta(t, 1000, s.Target(), 1e-9)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, frames, 4)
	for i := 1; i < len(frames); i++ {
		assert.GreaterOrEqual(t, frames[i].Position, frames[i-1].Position)
	}
	assert.True(t, frames[3].Done)
	assert.False(t, frames[0].Done)
}

func TestAnimatedScrollerCapsFrameCount(t *testing.T) {
	var mu sync.Mutex
	var frames []Frame
	s := NewAnimatedScroller(5*time.Millisecond, 2_000_000, func(f Frame) {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
	})

	assert.Equal(t, 5, s.frames)
	s.ScrollTo(300)
	s.Wait()
	assert.InDelta(t, 300, s.Position(), 1e-9)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, frames, 5)
	assert.True(t, frames[4].Done)

	tiny := NewAnimatedScroller(time.Microsecond, 10, nil)
	assert.Equal(t, 1, tiny.frames)
	tiny.ScrollTo(7)
	tiny.Wait()
	assert.InDelta(t, 7, tiny.Position(), 1e-9)
}

func TestAnimatedScrollerNewTargetCancelsPrevious(t *testing.T) {
	var mu sync.Mutex
	var frames []Frame
	s := NewAnimatedScroller(500*time.Millisecond, 25, func(f Frame) {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
	})

	s.ScrollTo(5000)
	s.Stop()
	first := s.Position()
	assert.Less(t, first, 5000.0)

	fast := NewAnimatedScroller(0, 0, nil)
	fast.ScrollTo(10)
	assert.InDelta(t, 10, fast.Position(), 1e-9)

	s.ScrollTo(200)
	s.Wait()
	assert.InDelta(t, 200, s.Position(), 1e-9)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, frames)
	last := frames[len(frames)-1]
	assert.InDelta(t, 200, last.Target, 1e-9)
	assert.True(t, last.Done)
	for _, f := range frames {
		if f.Done {
			assert.InDelta(t, 200, f.Position, 1e-9, "only the newest scroll completes")
		}
	}
}

func TestAnimatedScrollerInstantWhenDisabled(t *testing.T) {
	var got []Frame
	s := NewAnimatedScroller(0, 10, func(f Frame) { got = append(got, f) })
	s.ScrollTo(42)
	s.Wait()
	assert.InDelta(t, 42, s.Position(), 1e-9)
	require.Len(t, got, 1)
	assert.Equal(t, Frame{Position: 42, Target: 42, Done: true}, got[0])
}

func TestEaseInOutCubic(t *testing.T) {
	assert.InDelta(t, 0, easeInOutCubic(0), 1e-9)
	assert.InDelta(t, 0.5, easeInOutCubic(0.5), 1e-9)
	assert.InDelta(t, 1, easeInOutCubic(1), 1e-9)
}
