package testutil

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MeKo-Tech/docframe/internal/raster"
	"github.com/MeKo-Tech/docframe/internal/utils"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// LetterAspect is the height/width ratio of a US letter page.
const LetterAspect = 11.0 / 8.5

// PageConfig holds configuration for a synthetic page raster.
type PageConfig struct {
	Label      string
	Width      int
	Height     int
	Background color.Color
	Foreground color.Color
	FontFace   font.Face
}

// DefaultPageConfig returns a letter-sized page of the given width.
func DefaultPageConfig(label string, width int) PageConfig {
	return PageConfig{
		Label:      label,
		Width:      width,
		Height:     int(math.Round(float64(width) * LetterAspect)),
		Background: color.White,
		Foreground: color.Black,
		FontFace:   basicfont.Face7x13,
	}
}

// GeneratePage draws a synthetic scanned page: a label in the top-left corner and a
// light ruling every tenth of the page height.
func GeneratePage(config PageConfig) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, config.Width, config.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{config.Background}, image.Point{}, draw.Src)

	rule := color.RGBA{R: 220, G: 220, B: 220, A: 255}
	for i := 1; i < 10; i++ {
		y := config.Height * i / 10
		for x := 0; x < config.Width; x++ {
			img.Set(x, y, rule)
		}
	}

	if config.Label != "" && config.FontFace != nil {
		drawer := &font.Drawer{
			Dst:  img,
			Src:  &image.Uniform{config.Foreground},
			Face: config.FontFace,
		}
		height := config.FontFace.Metrics().Height.Ceil()
		drawer.Dot = fixed.P(height, 2*height)
		drawer.DrawString(config.Label)
	}
	return img
}

// EncodePNG encodes img for use as document bytes.
func EncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, utils.EncodePNG(&buf, img), "Failed to encode PNG image")
	return buf.Bytes()
}

// CompareImages compares two images and returns true if they are similar.
func CompareImages(img1, img2 image.Image, tolerance float64) bool {
	b1, b2 := img1.Bounds(), img2.Bounds()
	if b1.Dx() != b2.Dx() || b1.Dy() != b2.Dy() {
		return false
	}

	var totalDiff, pixelCount float64
	for y := 0; y < b1.Dy(); y++ {
		for x := 0; x < b1.Dx(); x++ {
			r1, g1, bl1, a1 := img1.At(b1.Min.X+x, b1.Min.Y+y).RGBA()
			r2, g2, bl2, a2 := img2.At(b2.Min.X+x, b2.Min.Y+y).RGBA()
			dr := float64(r1) - float64(r2)
			dg := float64(g1) - float64(g2)
			db := float64(bl1) - float64(bl2)
			da := float64(a1) - float64(a2)
			totalDiff += math.Sqrt(dr*dr + dg*dg + db*db + da*da)
			pixelCount++
		}
	}
	if pixelCount == 0 {
		return true
	}
	maxDiff := math.Sqrt(4 * 65535 * 65535)
	return totalDiff/pixelCount/maxDiff <= tolerance
}

// PageRasterizer renders synthetic letter pages labelled "Page N". Pages listed in
// Fail return raster.ErrRasterUnavailable. When Gate is set every call blocks until it
// is closed or the context ends.
type PageRasterizer struct {
	Fail map[int]bool
	Gate chan struct{}

	calls atomic.Int32
	mu    sync.Mutex
}

// NewPageRasterizer returns a rasterizer that fails the given 0-based page indexes.
func NewPageRasterizer(failPages ...int) *PageRasterizer {
	fail := make(map[int]bool, len(failPages))
	for _, p := range failPages {
		fail[p] = true
	}
	return &PageRasterizer{Fail: fail}
}

// Rasterize implements raster.Rasterizer.
func (r *PageRasterizer) Rasterize(ctx context.Context, _ []byte, pageIndex, targetWidth int) (image.Image, error) {
	r.calls.Add(1)

	r.mu.Lock()
	gate := r.Gate
	r.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.Fail[pageIndex] {
		return nil, fmt.Errorf("%w: synthetic failure on page %d", raster.ErrRasterUnavailable, pageIndex+1)
	}
	return GeneratePage(DefaultPageConfig(fmt.Sprintf("Page %d", pageIndex+1), targetWidth)), nil
}

// SetGate installs a gate that blocks subsequent calls.
func (r *PageRasterizer) SetGate(gate chan struct{}) {
	r.mu.Lock()
	r.Gate = gate
	r.mu.Unlock()
}

// Calls returns how many pages were requested.
func (r *PageRasterizer) Calls() int {
	return int(r.calls.Load())
}
