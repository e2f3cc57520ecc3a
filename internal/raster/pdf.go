package raster

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/MeKo-Tech/docframe/internal/utils"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// extractBase is the temp file stem; pdfcpu prefixes extracted images with it,
// giving names like page_<num>_<name>.<ext>.
const extractBase = "page"

// pdfCacheSize is the number of extracted documents a PDFRasterizer keeps.
const pdfCacheSize = 4

// PDFRasterizer renders scanned PDF pages by extracting the page's embedded scan with
// pdfcpu and resampling it. Pages without an embedded image are unavailable.
// Extractions of the most recently used documents are cached by content hash.
type PDFRasterizer struct {
	extractFn func([]byte) (map[int][]image.Image, error)

	mu      sync.Mutex
	entries []pdfEntry // most recent first
}

type pdfEntry struct {
	key   [sha256.Size]byte
	pages map[int][]image.Image
}

// NewPDFRasterizer creates a PDF rasterizer.
func NewPDFRasterizer() *PDFRasterizer {
	return &PDFRasterizer{extractFn: ExtractImages}
}

// Rasterize implements Rasterizer.
func (p *PDFRasterizer) Rasterize(ctx context.Context, data []byte, pageIndex, targetWidth int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if targetWidth <= 0 {
		return nil, fmt.Errorf("invalid target width: %d", targetWidth)
	}
	pages, err := p.extract(data)
	if err != nil {
		return nil, err
	}
	img := largestImage(pages[pageIndex+1])
	if img == nil {
		return nil, fmt.Errorf("%w: page %d has no embedded image", ErrRasterUnavailable, pageIndex+1)
	}
	return utils.ResizeToWidth(img, targetWidth), nil
}

// extract returns the page images of data. The extraction itself runs without the lock,
// so documents are extracted concurrently; a racing duplicate simply replaces the entry.
func (p *PDFRasterizer) extract(data []byte) (map[int][]image.Image, error) {
	key := sha256.Sum256(data)
	if pages, ok := p.cached(key); ok {
		return pages, nil
	}

	pages, err := p.extractFn(data)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = slices.DeleteFunc(p.entries, func(e pdfEntry) bool { return e.key == key })
	p.entries = slices.Insert(p.entries, 0, pdfEntry{key: key, pages: pages})
	if len(p.entries) > pdfCacheSize {
		p.entries = p.entries[:pdfCacheSize]
	}
	return pages, nil
}

func (p *PDFRasterizer) cached(key [sha256.Size]byte) (map[int][]image.Image, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, e := range p.entries {
		if e.key == key {
			if i > 0 {
				p.entries = slices.Insert(slices.Delete(p.entries, i, i+1), 0, e)
			}
			return e.pages, true
		}
	}
	return nil, false
}

// ExtractImages extracts all images from a PDF using pdfcpu's extract functionality,
// grouped by 1-based page number.
func ExtractImages(data []byte) (map[int][]image.Image, error) {
	tempDir, err := os.MkdirTemp("", "docframe-extract-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	inFile := filepath.Join(tempDir, extractBase+".pdf")
	if err := os.WriteFile(inFile, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to stage PDF: %w", err)
	}
	outDir := filepath.Join(tempDir, "images")
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}

	if err := api.ExtractImagesFile(inFile, outDir, nil, nil); err != nil {
		return nil, fmt.Errorf("failed to extract images from PDF: %w", err)
	}

	result, err := collectExtractedImages(outDir)
	if err != nil {
		return nil, fmt.Errorf("failed to process extracted images: %w", err)
	}
	return result, nil
}

// PageCountFile returns the number of pages of a PDF on disk.
func PageCountFile(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to count PDF pages: %w", err)
	}
	return n, nil
}

// collectExtractedImages walks dir and groups decodable images by page number.
func collectExtractedImages(dir string) (map[int][]image.Image, error) {
	result := make(map[int][]image.Image)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		pageNum, err := parsePageFromFilename(info.Name())
		if err != nil {
			return nil
		}

		data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from our own temp directory
		if err != nil {
			return nil
		}
		img, _, err := utils.DecodeImage(data)
		if err != nil {
			// Skip images in formats we cannot decode
			return nil
		}
		result[pageNum] = append(result[pageNum], img)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// parsePageFromFilename extracts the page number from an extracted image name.
func parsePageFromFilename(filename string) (int, error) {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	if !strings.HasPrefix(stem, extractBase+"_") {
		return 0, errors.New("not a page file")
	}

	parts := strings.Split(stem, "_")
	if len(parts) < 2 {
		return 0, errors.New("invalid filename format")
	}

	pageNum, err := strconv.Atoi(parts[1])
	if err != nil || pageNum < 1 {
		return 0, errors.New("invalid page number")
	}
	return pageNum, nil
}

// largestImage picks the image with the largest pixel area, which for scanned
// documents is the page scan itself.
func largestImage(imgs []image.Image) image.Image {
	var best image.Image
	bestArea := 0
	for _, img := range imgs {
		b := img.Bounds()
		if area := b.Dx() * b.Dy(); area > bestArea {
			best, bestArea = img, area
		}
	}
	return best
}
