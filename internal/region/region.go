// Package region projects recognizer polygons into page-relative percentage boxes.
//
// A Region is resolution independent: the same Region maps onto the display
// raster, the render raster and any other raster of the page by scaling its
// percentages with that raster's pixel size.
package region

import (
	"fmt"
	"image"

	"github.com/MeKo-Tech/docframe/internal/utils"
)

// MinPolygonPoints is the smallest polygon the projector accepts.
const MinPolygonPoints = 4

// Tolerance is the overshoot past 100% accepted from noisy recognizer output.
const Tolerance = 0.5

// PhysicalSize is a page size in recognizer units (for example inches).
type PhysicalSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Known reports whether both dimensions are usable.
func (s PhysicalSize) Known() bool { return s.Width > 0 && s.Height > 0 }

// Region is an axis-aligned box expressed as percentages of a page's physical size.
type Region struct {
	// PageNumber is 1-based, as reported by the recognizer.
	PageNumber int     `json:"page_number"`
	XPct       float64 `json:"x_pct"`
	YPct       float64 `json:"y_pct"`
	WidthPct   float64 `json:"width_pct"`
	HeightPct  float64 `json:"height_pct"`
}

// Project converts a polygon in source units into a Region for the page of the given
// physical size. ok is false when the polygon has fewer than four points or the
// physical size is unknown; callers should hide the locate affordance in that case.
func Project(pageNumber int, polygon []utils.Point, physicalWidth, physicalHeight float64) (Region, bool) {
	if len(polygon) < MinPolygonPoints || physicalWidth <= 0 || physicalHeight <= 0 {
		return Region{}, false
	}
	box := utils.BoundingBox(polygon)
	return Region{
		PageNumber: pageNumber,
		XPct:       box.MinX / physicalWidth * 100,
		YPct:       box.MinY / physicalHeight * 100,
		WidthPct:   box.Width() / physicalWidth * 100,
		HeightPct:  box.Height() / physicalHeight * 100,
	}, true
}

// PolygonFromFlat converts an interleaved [x1, y1, x2, y2, ...] coordinate list into points.
// A dangling trailing coordinate is ignored.
func PolygonFromFlat(coords []float64) []utils.Point {
	pts := make([]utils.Point, 0, len(coords)/2)
	for i := 0; i+1 < len(coords); i += 2 {
		pts = append(pts, utils.Point{X: coords[i], Y: coords[i+1]})
	}
	return pts
}

// PageIndex returns the 0-based index of the region's page.
func (r Region) PageIndex() int { return r.PageNumber - 1 }

// Box returns the region in pixel space of a raster of the given size.
func (r Region) Box(width, height int) utils.Box {
	w, h := float64(width), float64(height)
	x := r.XPct / 100 * w
	y := r.YPct / 100 * h
	return utils.Box{
		MinX: x,
		MinY: y,
		MaxX: x + r.WidthPct/100*w,
		MaxY: y + r.HeightPct/100*h,
	}
}

// Rect returns the region as an integer rectangle on a raster of the given size,
// clamped to the raster bounds.
func (r Region) Rect(width, height int) image.Rectangle {
	return r.Box(width, height).ToRect(image.Rect(0, 0, width, height))
}

// Degenerate reports whether the region has no area.
func (r Region) Degenerate() bool {
	return r.WidthPct <= 0 || r.HeightPct <= 0
}

// InBounds reports whether the region lies on its page, tolerating small overshoot.
func (r Region) InBounds() bool {
	return r.XPct >= -Tolerance && r.YPct >= -Tolerance &&
		r.XPct+r.WidthPct <= 100+Tolerance && r.YPct+r.HeightPct <= 100+Tolerance
}

func (r Region) String() string {
	return fmt.Sprintf("page %d: x=%.2f%% y=%.2f%% w=%.2f%% h=%.2f%%",
		r.PageNumber, r.XPct, r.YPct, r.WidthPct, r.HeightPct)
}
