package viewport

import (
	"context"
	"sync"
	"time"
)

// Default scroll animation parameters.
const (
	DefaultScrollDuration = 300 * time.Millisecond
	DefaultScrollFrames   = 12
)

// InstantScroller jumps straight to the target.
type InstantScroller struct {
	mu  sync.Mutex
	pos float64
}

// ScrollTo implements Scroller.
func (s *InstantScroller) ScrollTo(target float64) {
	s.mu.Lock()
	s.pos = target
	s.mu.Unlock()
}

// Position implements Scroller.
func (s *InstantScroller) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Frame is one step of a scroll animation.
type Frame struct {
	Position float64 `json:"position"`
	Target   float64 `json:"target"`
	Done     bool    `json:"done"`
}

// AnimatedScroller eases the scroll position towards a target over a fixed number of
// frames. Starting a new scroll cancels the one in progress; only the newest animation
// ever moves the position.
type AnimatedScroller struct {
	duration time.Duration
	frames   int
	sink     func(Frame)

	mu         sync.Mutex
	pos        float64
	target     float64
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
}

// minFrameInterval is the shortest time between two published frames.
const minFrameInterval = time.Millisecond

// NewAnimatedScroller creates a scroller publishing every frame to sink (which may be nil).
// A non-positive duration or frame count makes scrolls instantaneous. The frame count is
// capped so that frames are at least minFrameInterval apart.
func NewAnimatedScroller(duration time.Duration, frames int, sink func(Frame)) *AnimatedScroller {
	if duration > 0 && frames > 0 {
		frames = int(min(int64(frames), max(int64(duration/minFrameInterval), 1)))
	}
	return &AnimatedScroller{duration: duration, frames: frames, sink: sink}
}

// ScrollTo implements Scroller.
func (a *AnimatedScroller) ScrollTo(target float64) {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.generation++
	gen := a.generation
	from := a.pos
	a.target = target

	if a.duration <= 0 || a.frames <= 0 {
		a.pos = target
		a.cancel = nil
		a.done = nil
		a.mu.Unlock()
		a.publish(Frame{Position: target, Target: target, Done: true})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.cancel = cancel
	a.done = done
	a.mu.Unlock()

	go a.animate(ctx, gen, from, target, done)
}

func (a *AnimatedScroller) animate(ctx context.Context, gen uint64, from, to float64, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(max(a.duration/time.Duration(a.frames), minFrameInterval))
	defer ticker.Stop()

	for i := 1; i <= a.frames; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pos := from + (to-from)*easeInOutCubic(float64(i)/float64(a.frames))
		last := i == a.frames
		if last {
			pos = to
		}

		a.mu.Lock()
		if a.generation != gen {
			a.mu.Unlock()
			return
		}
		a.pos = pos
		a.mu.Unlock()

		a.publish(Frame{Position: pos, Target: to, Done: last})
	}
}

// Position implements Scroller.
func (a *AnimatedScroller) Position() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pos
}

// Target returns the destination of the latest scroll.
func (a *AnimatedScroller) Target() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.target
}

// Wait blocks until the current animation finishes or is cancelled.
func (a *AnimatedScroller) Wait() {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Stop cancels any running animation and waits for it to exit.
func (a *AnimatedScroller) Stop() {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.generation++
	a.mu.Unlock()
	a.Wait()
}

func (a *AnimatedScroller) publish(f Frame) {
	if a.sink != nil {
		a.sink(f)
	}
}

func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	u := -2*t + 2
	return 1 - u*u*u/2
}
