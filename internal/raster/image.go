package raster

import (
	"context"
	"fmt"
	"image"

	"github.com/MeKo-Tech/docframe/internal/utils"
)

// ImageRasterizer renders single-page image documents (PNG, JPEG, BMP, TIFF, WebP).
type ImageRasterizer struct{}

// Rasterize implements Rasterizer.
func (ImageRasterizer) Rasterize(ctx context.Context, data []byte, pageIndex, targetWidth int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if pageIndex != 0 {
		return nil, fmt.Errorf("%w: image documents have a single page, got index %d", ErrInvalidPage, pageIndex)
	}
	if targetWidth <= 0 {
		return nil, fmt.Errorf("invalid target width: %d", targetWidth)
	}
	img, _, err := utils.DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return utils.ResizeToWidth(img, targetWidth), nil
}

// AutoRasterizer dispatches on content: PDFs go to PDF, everything else to Image.
type AutoRasterizer struct {
	PDF   Rasterizer
	Image Rasterizer
}

// NewAutoRasterizer returns a rasterizer handling both PDFs and image documents.
func NewAutoRasterizer() *AutoRasterizer {
	return &AutoRasterizer{PDF: NewPDFRasterizer(), Image: ImageRasterizer{}}
}

// Rasterize implements Rasterizer.
func (a *AutoRasterizer) Rasterize(ctx context.Context, data []byte, pageIndex, targetWidth int) (image.Image, error) {
	if IsPDF(data) {
		return a.PDF.Rasterize(ctx, data, pageIndex, targetWidth)
	}
	return a.Image.Rasterize(ctx, data, pageIndex, targetWidth)
}
