// Package framing computes the camera transform that frames a region of a page inside
// the review viewport.
package framing

import (
	"errors"
	"fmt"
	"math"

	"github.com/MeKo-Tech/docframe/internal/raster"
	"github.com/MeKo-Tech/docframe/internal/region"
)

// Default planner parameters.
const (
	DefaultFillRatio = 0.8
	DefaultMinZoom   = 2.0
	DefaultMaxZoom   = 8.0
)

var (
	// ErrDegenerateRegion is reported in Diagnostics when the region has no area in
	// display pixels. It never fails a plan.
	ErrDegenerateRegion = errors.New("degenerate region")
	// ErrPageMismatch is returned when the geometry does not belong to the region's page.
	ErrPageMismatch = errors.New("region and page geometry disagree")
)

// State is the camera transform of the document view. Translation is in display pixels
// and applies before scaling, so a display point p lands at p*Zoom + Translate.
type State struct {
	Zoom             float64 `json:"zoom"`
	TranslateX       float64 `json:"translate_x"`
	TranslateY       float64 `json:"translate_y"`
	FramedPageNumber int     `json:"framed_page_number"`
}

// Neutral returns the identity transform with no framed page.
func Neutral() State {
	return State{Zoom: 1}
}

// IsNeutral reports whether s is the identity transform.
func (s State) IsNeutral() bool {
	return s == Neutral()
}

// Project maps a display-space point through the transform.
func (s State) Project(x, y float64) (float64, float64) {
	return x*s.Zoom + s.TranslateX, y*s.Zoom + s.TranslateY
}

// Viewport is the visible container size in pixels, padding already subtracted.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the container centre.
func (v Viewport) Center() (float64, float64) {
	return v.Width / 2, v.Height / 2
}

// Options tunes the planner.
type Options struct {
	// FillRatio is the fraction of the viewport the region should occupy.
	FillRatio float64
	MinZoom   float64
	MaxZoom   float64
}

// DefaultOptions returns the standard planner parameters.
func DefaultOptions() Options {
	return Options{FillRatio: DefaultFillRatio, MinZoom: DefaultMinZoom, MaxZoom: DefaultMaxZoom}
}

// Validate checks that the options describe a usable zoom range.
func (o Options) Validate() error {
	if o.FillRatio <= 0 || o.FillRatio > 1 {
		return fmt.Errorf("fill ratio must be in (0, 1], got %v", o.FillRatio)
	}
	if o.MinZoom < 1 {
		return fmt.Errorf("min zoom must be >= 1, got %v", o.MinZoom)
	}
	if o.MaxZoom < o.MinZoom {
		return fmt.Errorf("max zoom %v is below min zoom %v", o.MaxZoom, o.MinZoom)
	}
	return nil
}

// Diagnostics exposes the intermediate values of a plan.
type Diagnostics struct {
	BoxWidthPx  float64 `json:"box_width_px"`
	BoxHeightPx float64 `json:"box_height_px"`
	CenterX     float64 `json:"center_x"`
	CenterY     float64 `json:"center_y"`
	ZoomW       float64 `json:"zoom_w"`
	ZoomH       float64 `json:"zoom_h"`
	Degenerate  bool    `json:"degenerate"`
	// Warning is ErrDegenerateRegion for zero-area boxes.
	Warning error `json:"-"`
}

// Result is a planned transform plus its diagnostics.
type Result struct {
	State       State       `json:"state"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// Plan computes the transform that centres r in vp at the zoom that makes it fill
// opts.FillRatio of the viewport, clamped to [MinZoom, MaxZoom].
func Plan(r region.Region, page raster.PageGeometry, vp Viewport, opts Options) (Result, error) {
	if r.PageIndex() != page.PageIndex {
		return Result{}, fmt.Errorf("%w: region on page %d, geometry for page %d",
			ErrPageMismatch, r.PageNumber, page.PageNumber())
	}
	if !page.Available {
		return Result{}, fmt.Errorf("%w: page %d", raster.ErrRasterUnavailable, r.PageNumber)
	}

	box := r.Box(page.DisplayWidth, page.DisplayHeight)
	center := box.Center()
	d := Diagnostics{
		BoxWidthPx:  box.Width(),
		BoxHeightPx: box.Height(),
		CenterX:     center.X,
		CenterY:     center.Y,
	}

	var zoom float64
	if d.BoxWidthPx <= 0 || d.BoxHeightPx <= 0 {
		d.Degenerate = true
		d.Warning = ErrDegenerateRegion
		zoom = opts.MinZoom
	} else {
		d.ZoomW = vp.Width * opts.FillRatio / d.BoxWidthPx
		d.ZoomH = vp.Height * opts.FillRatio / d.BoxHeightPx
		zoom = clamp(math.Min(d.ZoomW, d.ZoomH), opts.MinZoom, opts.MaxZoom)
	}

	cx, cy := vp.Center()
	return Result{
		State: State{
			Zoom:             zoom,
			TranslateX:       cx - center.X*zoom,
			TranslateY:       cy - center.Y*zoom,
			FramedPageNumber: r.PageNumber,
		},
		Diagnostics: d,
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
