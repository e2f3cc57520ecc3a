// Package crop cuts padded previews of a region out of a page's render raster.
package crop

import (
	"fmt"
	"image"

	"github.com/MeKo-Tech/docframe/internal/raster"
	"github.com/MeKo-Tech/docframe/internal/region"
	"github.com/MeKo-Tech/docframe/internal/utils"
)

// Default padding in render pixels.
const (
	DefaultPaddingX = 40
	DefaultPaddingY = 20
)

// Options configures the padding around the cropped region.
type Options struct {
	PaddingX int
	PaddingY int
}

// DefaultOptions returns the standard asymmetric padding.
func DefaultOptions() Options {
	return Options{PaddingX: DefaultPaddingX, PaddingY: DefaultPaddingY}
}

// Validate rejects negative padding.
func (o Options) Validate() error {
	if o.PaddingX < 0 || o.PaddingY < 0 {
		return fmt.Errorf("crop padding must be non-negative, got %dx%d", o.PaddingX, o.PaddingY)
	}
	return nil
}

// Crop is a standalone preview of a region.
type Crop struct {
	PageNumber int             `json:"page_number"`
	Rect       image.Rectangle `json:"rect"`
	Image      image.Image     `json:"-"`
}

// Cropper produces region previews from render rasters.
type Cropper struct {
	opts Options
}

// New creates a cropper.
func New(opts Options) *Cropper {
	return &Cropper{opts: opts}
}

// Rect returns the padded crop rectangle of r in a render raster of the given size,
// clamped to [0, width] x [0, height].
func (c *Cropper) Rect(r region.Region, width, height int) image.Rectangle {
	box := r.Box(width, height).Pad(float64(c.opts.PaddingX), float64(c.opts.PaddingY))
	return box.ToRect(image.Rect(0, 0, width, height))
}

// Crop copies the padded region out of page's render raster. ok is false when the
// page has no render raster or the clamped rectangle is empty.
func (c *Cropper) Crop(r region.Region, page raster.Page) (*Crop, bool) {
	if !page.Geometry.Available || page.Render == nil {
		return nil, false
	}
	if r.PageIndex() != page.Geometry.PageIndex {
		return nil, false
	}

	rb := page.Render.Bounds()
	rect := c.Rect(r, rb.Dx(), rb.Dy())
	if rect.Empty() {
		return nil, false
	}

	img := utils.CropImageRect(page.Render, rect.Add(rb.Min))
	return &Crop{PageNumber: r.PageNumber, Rect: rect, Image: img}, true
}
