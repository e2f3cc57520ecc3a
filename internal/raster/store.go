package raster

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/MeKo-Tech/docframe/internal/region"
	"github.com/MeKo-Tech/docframe/internal/utils"
)

// DefaultRenderWidth is the fixed width of render rasters.
const DefaultRenderWidth = 1500

// Options controls raster sizes.
type Options struct {
	// RenderWidth is the fixed pixel width of the high resolution raster.
	RenderWidth int
	// DisplayWidth is the viewport width minus horizontal padding.
	DisplayWidth int
}

// Token identifies one rasterization request. Results are only committed while the
// token's generation is still current.
type Token struct {
	Generation uint64
	DocumentID string
}

// Store is an arena of pages indexed by page index. It is invalidated wholesale
// whenever a new document is opened.
type Store struct {
	mu         sync.RWMutex
	rasterizer Rasterizer
	opts       Options

	generation uint64
	documentID string
	pages      []Page
	ready      bool
}

// NewStore creates a store that rasterizes pages with r.
func NewStore(r Rasterizer, opts Options) *Store {
	if opts.RenderWidth <= 0 {
		opts.RenderWidth = DefaultRenderWidth
	}
	return &Store{rasterizer: r, opts: opts}
}

// Begin invalidates the arena and starts a new generation for documentID.
func (s *Store) Begin(documentID string) Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.documentID = documentID
	s.pages = nil
	s.ready = false
	return Token{Generation: s.generation, DocumentID: documentID}
}

// Reset drops all pages and cancels any in-flight generation.
func (s *Store) Reset() {
	s.Begin("")
}

// Current reports whether tok still identifies the live generation.
func (s *Store) Current(tok Token) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tok.Generation == s.generation
}

// Commit installs pages for tok. Stale tokens are rejected with ErrStaleGeneration.
func (s *Store) Commit(tok Token, pages []Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.Generation != s.generation {
		staleRasterizations.Inc()
		return ErrStaleGeneration
	}
	s.pages = pages
	s.ready = true
	return nil
}

// Load rasterizes doc and commits the result for tok.
func (s *Store) Load(ctx context.Context, tok Token, doc *Document, physical []region.PhysicalSize) error {
	pages, err := s.Rasterize(ctx, doc, physical)
	if err != nil {
		return err
	}
	return s.Commit(tok, pages)
}

// Rasterize renders every page of doc without touching the arena. Pages that fail are
// returned as unavailable placeholders; only context cancellation fails the call.
func (s *Store) Rasterize(ctx context.Context, doc *Document, physical []region.PhysicalSize) ([]Page, error) {
	start := time.Now()
	pages := make([]Page, 0, doc.PageCount)
	for i := range doc.PageCount {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var phys region.PhysicalSize
		if i < len(physical) {
			phys = physical[i]
		}
		page, err := s.rasterizePage(ctx, doc.Data, i, phys)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			slog.Warn("Page rasterization failed", "document", doc.ID, "page", i+1, "error", err)
			pagesUnavailable.Inc()
			page = s.placeholder(i, phys)
		}
		pages = append(pages, page)
	}
	rasterizeDuration.Observe(time.Since(start).Seconds())
	slog.Debug("Document rasterized", "document", doc.ID, "pages", len(pages), "duration", time.Since(start))
	return pages, nil
}

func (s *Store) rasterizePage(ctx context.Context, data []byte, index int, phys region.PhysicalSize) (Page, error) {
	render, err := s.rasterizer.Rasterize(ctx, data, index, s.opts.RenderWidth)
	if err != nil {
		return Page{}, &PageError{PageIndex: index, Err: err}
	}
	rb := render.Bounds()
	if rb.Empty() {
		return Page{}, &PageError{PageIndex: index, Err: ErrRasterUnavailable}
	}

	// The display raster is resampled from the render raster so both share one aspect ratio.
	displayW := s.opts.DisplayWidth
	if displayW <= 0 {
		displayW = rb.Dx()
	}
	displayH := max(1, int(math.Round(float64(displayW)*float64(rb.Dy())/float64(rb.Dx()))))
	display := utils.ResizeExact(render, displayW, displayH)

	return Page{
		Geometry: PageGeometry{
			PageIndex:      index,
			PhysicalWidth:  phys.Width,
			PhysicalHeight: phys.Height,
			DisplayWidth:   displayW,
			DisplayHeight:  displayH,
			RenderWidth:    rb.Dx(),
			RenderHeight:   rb.Dy(),
			Available:      true,
		},
		Display: display,
		Render:  render,
	}, nil
}

// placeholder keeps the page's slot in the layout; its height follows the physical
// aspect ratio when known.
func (s *Store) placeholder(index int, phys region.PhysicalSize) Page {
	g := PageGeometry{
		PageIndex:      index,
		PhysicalWidth:  phys.Width,
		PhysicalHeight: phys.Height,
		DisplayWidth:   s.opts.DisplayWidth,
	}
	if phys.Known() && s.opts.DisplayWidth > 0 {
		g.DisplayHeight = int(math.Round(float64(s.opts.DisplayWidth) * phys.Height / phys.Width))
	}
	return Page{Geometry: g}
}

// Ready reports whether the current generation has been committed.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// DocumentID returns the document of the current generation.
func (s *Store) DocumentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.documentID
}

// Page returns the arena slot for a 0-based page index.
func (s *Store) Page(index int) (Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.pages) {
		return Page{}, fmt.Errorf("%w: %d", ErrInvalidPage, index)
	}
	return s.pages[index], nil
}

// Geometries returns the geometry of every page in index order.
func (s *Store) Geometries() []PageGeometry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PageGeometry, len(s.pages))
	for i, p := range s.pages {
		out[i] = p.Geometry
	}
	return out
}
