package review

import (
	"errors"
	"fmt"
	"image/color"
	"time"

	"github.com/MeKo-Tech/docframe/internal/crop"
	"github.com/MeKo-Tech/docframe/internal/framing"
	"github.com/MeKo-Tech/docframe/internal/raster"
	"github.com/MeKo-Tech/docframe/internal/viewport"
)

// Options configures a review session.
type Options struct {
	// ContainerWidth and ContainerHeight are the scrollable document container size.
	ContainerWidth  int
	ContainerHeight int
	// HorizontalPadding is subtracted from the container width to size display rasters
	// and the framing viewport. VerticalPadding only applies to the framing viewport.
	HorizontalPadding int
	VerticalPadding   int
	PageGap           float64
	RenderWidth       int

	Framing framing.Options
	Crop    crop.Options

	ScrollDuration time.Duration
	ScrollFrames   int

	OverlayColor     color.Color
	OverlayThickness int
}

// DefaultOptions returns options for an 840x640 container, which leaves an 800x600
// framing viewport.
func DefaultOptions() Options {
	return Options{
		ContainerWidth:    840,
		ContainerHeight:   640,
		HorizontalPadding: 40,
		VerticalPadding:   40,
		PageGap:           viewport.DefaultPageGap,
		RenderWidth:       raster.DefaultRenderWidth,
		Framing:           framing.DefaultOptions(),
		Crop:              crop.DefaultOptions(),
		ScrollDuration:    viewport.DefaultScrollDuration,
		ScrollFrames:      viewport.DefaultScrollFrames,
		OverlayColor:      color.RGBA{R: 255, G: 0, B: 0, A: 255},
		OverlayThickness:  3,
	}
}

// Viewport returns the framing viewport: the container minus padding.
func (o Options) Viewport() framing.Viewport {
	return framing.Viewport{
		Width:  float64(o.ContainerWidth - o.HorizontalPadding),
		Height: float64(o.ContainerHeight - o.VerticalPadding),
	}
}

// MaxRasterWidth bounds the display and render raster widths and the framing viewport.
const MaxRasterWidth = 8192

// DisplayWidth is the width of display rasters.
func (o Options) DisplayWidth() int {
	return o.ContainerWidth - o.HorizontalPadding
}

// Validate checks the options for consistency.
func (o Options) Validate() error {
	if o.HorizontalPadding < 0 || o.VerticalPadding < 0 {
		return errors.New("padding must be non-negative")
	}
	if o.ContainerWidth <= o.HorizontalPadding || o.ContainerHeight <= o.VerticalPadding {
		return fmt.Errorf("container %dx%d leaves no room after padding %dx%d",
			o.ContainerWidth, o.ContainerHeight, o.HorizontalPadding, o.VerticalPadding)
	}
	if w, h := o.DisplayWidth(), o.ContainerHeight-o.VerticalPadding; w > MaxRasterWidth || h > MaxRasterWidth {
		return fmt.Errorf("viewport %dx%d exceeds %d pixels", w, h, MaxRasterWidth)
	}
	if o.PageGap < 0 {
		return fmt.Errorf("page gap must be non-negative, got %v", o.PageGap)
	}
	if o.RenderWidth <= 0 || o.RenderWidth > MaxRasterWidth {
		return fmt.Errorf("render width must be between 1 and %d, got %d", MaxRasterWidth, o.RenderWidth)
	}
	if err := o.Framing.Validate(); err != nil {
		return fmt.Errorf("framing: %w", err)
	}
	if err := o.Crop.Validate(); err != nil {
		return err
	}
	return nil
}
