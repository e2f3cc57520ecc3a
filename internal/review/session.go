// Package review composes the localization and framing engine into a per-document
// review session: open a document, locate fields and line items, reset.
package review

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/docframe/internal/crop"
	"github.com/MeKo-Tech/docframe/internal/framing"
	"github.com/MeKo-Tech/docframe/internal/highlight"
	"github.com/MeKo-Tech/docframe/internal/ocr"
	"github.com/MeKo-Tech/docframe/internal/raster"
	"github.com/MeKo-Tech/docframe/internal/region"
	"github.com/MeKo-Tech/docframe/internal/utils"
	"github.com/MeKo-Tech/docframe/internal/viewport"
)

// PayloadSource provides the recognizer payload for a document.
type PayloadSource interface {
	Payload(ctx context.Context, documentID string) (*ocr.Result, error)
}

// Deps are the collaborators a session consumes.
type Deps struct {
	Documents  raster.DocumentSource
	Payloads   PayloadSource
	Rasterizer raster.Rasterizer
}

// Snapshot is the queryable state of a session.
type Snapshot struct {
	SessionID      string                `json:"session_id"`
	DocumentID     string                `json:"document_id"`
	Loading        bool                  `json:"loading"`
	Ready          bool                  `json:"ready"`
	Error          string                `json:"error,omitempty"`
	Pages          []raster.PageGeometry `json:"pages"`
	Viewport       viewport.Snapshot     `json:"viewport"`
	ScrollPosition float64               `json:"scroll_position"`
	Target         highlight.Target      `json:"target"`
	Crop           *crop.Crop            `json:"crop,omitempty"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// EventType names a session event.
type EventType string

const (
	EventState  EventType = "state"
	EventScroll EventType = "scroll"
)

// Event is published to subscribers after every state transition and scroll frame.
type Event struct {
	Type   EventType       `json:"type"`
	State  *Snapshot       `json:"state,omitempty"`
	Scroll *viewport.Frame `json:"scroll,omitempty"`
}

// Session is one document view. All mutations are serialized; rasterization runs
// outside the lock and is committed only if no newer document was opened meanwhile.
type Session struct {
	id   string
	deps Deps
	opts Options

	mu         sync.Mutex
	store      *raster.Store
	controller *viewport.Controller
	scroller   *viewport.AnimatedScroller
	cropper    *crop.Cropper
	selector   highlight.Selector
	payload    *ocr.Result
	documentID string
	loading    bool
	loadErr    error
	crop       *crop.Crop
	cancelLoad context.CancelFunc
	updatedAt  time.Time

	obsMu     sync.Mutex
	observers map[int]func(Event)
	nextObs   int
}

// NewSession creates an empty session. Call Open to load a document.
func NewSession(id string, deps Deps, opts Options) (*Session, error) {
	if deps.Documents == nil || deps.Payloads == nil || deps.Rasterizer == nil {
		return nil, errors.New("session requires a document source, payload source and rasterizer")
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session options: %w", err)
	}

	s := &Session{
		id:        id,
		deps:      deps,
		opts:      opts,
		cropper:   crop.New(opts.Crop),
		observers: make(map[int]func(Event)),
		updatedAt: time.Now(),
	}
	s.store = raster.NewStore(deps.Rasterizer, raster.Options{
		RenderWidth:  opts.RenderWidth,
		DisplayWidth: opts.DisplayWidth(),
	})
	s.scroller = viewport.NewAnimatedScroller(opts.ScrollDuration, opts.ScrollFrames, s.publishScroll)
	s.controller = viewport.NewController(s.scroller, opts.PageGap)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Options returns the session configuration.
func (s *Session) Options() Options { return s.opts }

// Open loads documentID, replacing the current document. Any load still in flight is
// cancelled and its result discarded. Until Open returns, locate actions report
// StatusNotReady.
func (s *Session) Open(ctx context.Context, documentID string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
	s.cancelLoad = cancel
	tok := s.store.Begin(documentID)
	s.documentID = documentID
	s.loading = true
	s.loadErr = nil
	s.payload = nil
	s.crop = nil
	s.selector.Clear()
	s.controller.Reset()
	s.touchLocked()
	s.mu.Unlock()
	s.publishState()

	slog.Debug("Opening document", "session", s.id, "document", documentID, "generation", tok.Generation)
	payload, pages, err := s.load(ctx, documentID)

	s.mu.Lock()
	if !s.store.Current(tok) {
		s.mu.Unlock()
		openDocuments.WithLabelValues("stale").Inc()
		slog.Debug("Discarding stale document load", "session", s.id, "document", documentID)
		return fmt.Errorf("%w: %s", ErrStaleGeneration, documentID)
	}
	if err == nil {
		err = s.store.Commit(tok, pages)
	}
	if err == nil {
		s.payload = payload
	}
	s.loading = false
	s.loadErr = err
	s.cancelLoad = nil
	s.touchLocked()
	s.mu.Unlock()
	s.publishState()

	if err != nil {
		openDocuments.WithLabelValues("failed").Inc()
		slog.Error("Failed to open document", "session", s.id, "document", documentID, "error", err)
		return err
	}
	openDocuments.WithLabelValues("ok").Inc()
	slog.Info("Document opened", "session", s.id, "document", documentID, "pages", len(pages))
	return nil
}

func (s *Session) load(ctx context.Context, documentID string) (*ocr.Result, []raster.Page, error) {
	doc, err := s.deps.Documents.Fetch(ctx, documentID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch document: %w", err)
	}
	payload, err := s.deps.Payloads.Payload(ctx, documentID)
	if err != nil {
		return nil, nil, fmt.Errorf("load ocr payload: %w", err)
	}
	physical := raster.FillPhysicalSizes(doc, payload.PhysicalSizes(doc.PageCount))
	// Regions are projected against the same sizes the page geometry carries.
	payload = payload.WithPageSizes(physical)
	if !payload.HasPageSizes() {
		return nil, nil, fmt.Errorf("load ocr payload: %w", ocr.ErrNoPages)
	}
	pages, err := s.store.Rasterize(ctx, doc, physical)
	if err != nil {
		return nil, nil, fmt.Errorf("rasterize document: %w", err)
	}
	return payload, pages, nil
}

// LocateField frames the named field, or clears it if it is already active.
func (s *Session) LocateField(name string) Result {
	res, changed := s.locateField(name)
	s.finishAction(highlight.KindField, res, changed)
	return res
}

// LocateLineItem crops a preview of the line item, or clears it if already active.
func (s *Session) LocateLineItem(index int) Result {
	res, changed := s.locateLineItem(index)
	s.finishAction(highlight.KindLineItem, res, changed)
	return res
}

// Reset clears the active highlight and returns the viewport to neutral.
func (s *Session) Reset() Result {
	s.mu.Lock()
	prev := s.selector.Clear()
	changed := !prev.IsNone() || s.crop != nil || !s.controller.State().IsNeutral()
	s.crop = nil
	s.controller.Reset()
	if changed {
		s.touchLocked()
	}
	s.mu.Unlock()

	if changed {
		s.publishState()
	}
	return Result{Status: StatusCleared, Target: highlight.None(), Viewport: framing.Neutral()}
}

func (s *Session) locateField(name string) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := highlight.Field(name)
	if s.loading || s.payload == nil {
		return s.failLocked(StatusNotReady, target)
	}
	key, ok := s.payload.FieldName(name)
	if !ok {
		return s.failLocked(StatusNotLocalizable, target)
	}
	target = highlight.Field(key)
	reg, ok := s.payload.FieldRegion(key)
	if !ok {
		return s.failLocked(StatusNotLocalizable, target)
	}
	page, ok := s.availablePageLocked(reg)
	if !ok {
		return s.failLocked(StatusRasterUnavailable, target)
	}

	plan, err := framing.Plan(reg, page.Geometry, s.opts.Viewport(), s.opts.Framing)
	if err != nil {
		slog.Warn("Framing failed", "session", s.id, "target", target.String(), "error", err)
		return s.failLocked(StatusRasterUnavailable, target)
	}

	if tr, _ := s.selector.Toggle(target); tr == highlight.Cleared {
		return s.clearLocked(), true
	}
	s.crop = nil
	if _, err := s.controller.Apply(plan.State, s.store.Geometries()); err != nil {
		s.selector.Clear()
		s.controller.Reset()
		slog.Warn("Viewport rejected plan", "session", s.id, "target", target.String(), "error", err)
		res, _ := s.failLocked(StatusRasterUnavailable, target)
		return res, true
	}
	if plan.Diagnostics.Degenerate {
		slog.Debug("Degenerate region, using minimum zoom", "session", s.id, "target", target.String(),
			"region", reg.String())
	}
	s.touchLocked()

	diag := plan.Diagnostics
	return Result{Status: StatusFramed, Target: target, Viewport: plan.State, Diagnostics: &diag}, true
}

func (s *Session) locateLineItem(index int) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := highlight.LineItem(index)
	if s.loading || s.payload == nil {
		return s.failLocked(StatusNotReady, target)
	}
	reg, ok := s.payload.LineItemRegion(index)
	if !ok {
		return s.failLocked(StatusNotLocalizable, target)
	}
	page, ok := s.availablePageLocked(reg)
	if !ok {
		return s.failLocked(StatusRasterUnavailable, target)
	}
	c, ok := s.cropper.Crop(reg, page)
	if !ok {
		return s.failLocked(StatusNotLocalizable, target)
	}

	if tr, _ := s.selector.Toggle(target); tr == highlight.Cleared {
		return s.clearLocked(), true
	}
	// Line items never frame the viewport; a previously framed field is dropped.
	s.controller.Reset()
	s.crop = c
	s.touchLocked()
	return Result{Status: StatusCropped, Target: target, Viewport: framing.Neutral(), Crop: c}, true
}

func (s *Session) availablePageLocked(reg region.Region) (raster.Page, bool) {
	page, err := s.store.Page(reg.PageIndex())
	if err != nil || !page.Geometry.Available {
		return raster.Page{}, false
	}
	return page, true
}

func (s *Session) clearLocked() Result {
	s.crop = nil
	s.controller.Reset()
	s.touchLocked()
	return Result{Status: StatusCleared, Target: highlight.None(), Viewport: framing.Neutral()}
}

// failLocked reports a failed action. Selecting a target other than the active one
// still drops the previous highlight, crop and framing; a failure while loading
// changes nothing.
func (s *Session) failLocked(status Status, target highlight.Target) (Result, bool) {
	changed := false
	if status != StatusNotReady && s.selector.Active() != target {
		prev := s.selector.Clear()
		changed = !prev.IsNone() || s.crop != nil || !s.controller.State().IsNeutral()
		s.crop = nil
		s.controller.Reset()
		if changed {
			s.touchLocked()
		}
	}
	return Result{Status: status, Target: target, Viewport: s.controller.State(), Crop: s.crop}, changed
}

func (s *Session) finishAction(kind highlight.Kind, res Result, changed bool) {
	locateRequests.WithLabelValues(kind.String(), string(res.Status)).Inc()
	slog.Debug("Locate request", "session", s.id, "target", res.Target.String(), "status", res.Status)
	if changed {
		s.publishState()
	}
}

func (s *Session) touchLocked() {
	s.updatedAt = time.Now()
}

// State returns a snapshot of the session.
func (s *Session) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SessionID:      s.id,
		DocumentID:     s.documentID,
		Loading:        s.loading,
		Ready:          !s.loading && s.payload != nil && s.store.Ready(),
		Pages:          s.store.Geometries(),
		Viewport:       s.controller.Snapshot(),
		ScrollPosition: s.controller.ScrollPosition(),
		Target:         s.selector.Active(),
		Crop:           s.crop,
		UpdatedAt:      s.updatedAt,
	}
	if s.loadErr != nil {
		snap.Error = s.loadErr.Error()
	}
	return snap
}

// UpdatedAt returns the time of the last state change.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Regions returns every localizable region of the open document.
func (s *Session) Regions() ([]ocr.Located, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading {
		return nil, ErrNotReady
	}
	if s.payload == nil {
		return nil, ErrNoDocument
	}
	return s.payload.Regions(), nil
}

// PreviewField crops the named field from its page's render raster. The active
// target is not changed.
func (s *Session) PreviewField(name string) (*crop.Crop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loading || s.payload == nil {
		return nil, ErrNotReady
	}
	key, ok := s.payload.FieldName(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown field %s", ErrNotLocalizable, name)
	}
	reg, ok := s.payload.FieldRegion(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLocalizable, key)
	}
	page, ok := s.availablePageLocked(reg)
	if !ok {
		return nil, fmt.Errorf("%w: page %d", ErrRasterUnavailable, reg.PageNumber)
	}
	c, ok := s.cropper.Crop(reg, page)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLocalizable, key)
	}
	return c, nil
}

// Crop returns the preview of the active line item.
func (s *Session) Crop() (*crop.Crop, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crop, s.crop != nil
}

// RenderPage returns the display raster of a 1-based page. With overlay set, the active
// target is outlined when it lies on that page.
func (s *Session) RenderPage(pageNumber int, overlay bool) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loading {
		return nil, ErrNotReady
	}
	if s.payload == nil {
		return nil, ErrNoDocument
	}
	page, err := s.store.Page(pageNumber - 1)
	if err != nil {
		return nil, err
	}
	if !page.Geometry.Available || page.Display == nil {
		return nil, fmt.Errorf("%w: page %d", ErrRasterUnavailable, pageNumber)
	}
	if !overlay {
		return page.Display, nil
	}

	dst := utils.ToRGBA(page.Display)
	if reg, ok := s.activeRegionLocked(); ok && reg.PageNumber == pageNumber {
		b := dst.Bounds()
		utils.DrawRect(dst, reg.Rect(b.Dx(), b.Dy()).Add(b.Min), s.opts.OverlayColor, s.opts.OverlayThickness)
	}
	return dst, nil
}

func (s *Session) activeRegionLocked() (region.Region, bool) {
	active := s.selector.Active()
	switch active.Kind() {
	case highlight.KindField:
		return s.payload.FieldRegion(active.Name())
	case highlight.KindLineItem:
		return s.payload.LineItemRegion(active.Index())
	default:
		return region.Region{}, false
	}
}

// Subscribe registers fn for state and scroll events. fn runs synchronously and must
// not call back into the session. The returned func unsubscribes.
func (s *Session) Subscribe(fn func(Event)) func() {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Session) publishState() {
	snap := s.State()
	s.publish(Event{Type: EventState, State: &snap})
}

func (s *Session) publishScroll(f viewport.Frame) {
	s.publish(Event{Type: EventScroll, Scroll: &f})
}

func (s *Session) publish(ev Event) {
	s.obsMu.Lock()
	fns := make([]func(Event), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Close cancels any in-flight load, stops scrolling and drops all rasters.
func (s *Session) Close() {
	s.mu.Lock()
	if s.cancelLoad != nil {
		s.cancelLoad()
		s.cancelLoad = nil
	}
	s.store.Reset()
	s.payload = nil
	s.crop = nil
	s.loading = false
	s.selector.Clear()
	s.controller.Reset()
	s.mu.Unlock()

	s.scroller.Stop()

	s.obsMu.Lock()
	s.observers = make(map[int]func(Event))
	s.obsMu.Unlock()
}
