// Package raster produces and caches the per-page display and render rasters of the
// document under review.
package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
)

var (
	// ErrRasterUnavailable marks a page that could not be rasterized.
	ErrRasterUnavailable = errors.New("page raster unavailable")
	// ErrStaleGeneration is returned when a rasterization finishes after the
	// document it was started for has been replaced.
	ErrStaleGeneration = errors.New("stale rasterization discarded")
	// ErrInvalidPage is returned for a page index outside the document.
	ErrInvalidPage = errors.New("invalid page index")
)

// Document is the raw content of a document and its page count.
type Document struct {
	ID        string
	Data      []byte
	PageCount int
}

// DocumentSource fetches documents by identifier.
type DocumentSource interface {
	Fetch(ctx context.Context, id string) (*Document, error)
}

// Rasterizer renders page pageIndex of a document at the requested pixel width.
type Rasterizer interface {
	Rasterize(ctx context.Context, data []byte, pageIndex, targetWidth int) (image.Image, error)
}

// PageGeometry describes one page in the three coordinate spaces used by the engine.
// A page that failed to rasterize has Available set to false and zero render size.
type PageGeometry struct {
	PageIndex      int     `json:"page_index"`
	PhysicalWidth  float64 `json:"physical_width"`
	PhysicalHeight float64 `json:"physical_height"`
	DisplayWidth   int     `json:"display_width"`
	DisplayHeight  int     `json:"display_height"`
	RenderWidth    int     `json:"render_width"`
	RenderHeight   int     `json:"render_height"`
	Available      bool    `json:"available"`
}

// PageNumber returns the 1-based page number.
func (g PageGeometry) PageNumber() int { return g.PageIndex + 1 }

// PhysicalKnown reports whether the recognizer reported this page's size.
func (g PageGeometry) PhysicalKnown() bool {
	return g.PhysicalWidth > 0 && g.PhysicalHeight > 0
}

// Page is one arena slot: geometry plus both rasters.
type Page struct {
	Geometry PageGeometry
	Display  image.Image
	Render   image.Image
}

// PageError wraps a failure to rasterize a specific page.
type PageError struct {
	PageIndex int
	Err       error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("rasterize page %d: %v", e.PageIndex+1, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

var pdfMagic = []byte("%PDF-")

// IsPDF reports whether data looks like a PDF file.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data[:min(len(data), 1024)], "\x00\t\r\n "), pdfMagic)
}
