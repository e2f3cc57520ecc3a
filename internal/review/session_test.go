package review

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/MeKo-Tech/docframe/internal/framing"
	"github.com/MeKo-Tech/docframe/internal/highlight"
	"github.com/MeKo-Tech/docframe/internal/ocr"
	"github.com/MeKo-Tech/docframe/internal/raster"
	"github.com/MeKo-Tech/docframe/internal/testutil"
	"github.com/MeKo-Tech/docframe/internal/viewport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.ScrollDuration = 0
	return opts
}

func newSession(t *testing.T) (*Session, *testutil.PageRasterizer) {
	t.Helper()
	src := testutil.NewInvoiceSource(t)
	r := testutil.NewPageRasterizer(testutil.FailingPageIndex)
	s, err := NewSession("s1", Deps{Documents: src, Payloads: src, Rasterizer: r}, testOptions())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, r
}

func openInvoice(t *testing.T) *Session {
	t.Helper()
	s, _ := newSession(t)
	require.NoError(t, s.Open(context.Background(), testutil.InvoiceID))
	return s
}

func TestSessionOpen(t *testing.T) {
	s := openInvoice(t)

	st := s.State()
	assert.Equal(t, "s1", st.SessionID)
	assert.Equal(t, testutil.InvoiceID, st.DocumentID)
	assert.True(t, st.Ready)
	assert.False(t, st.Loading)
	assert.Empty(t, st.Error)
	require.Len(t, st.Pages, 3)
	assert.True(t, st.Pages[0].Available)
	assert.Equal(t, 800, st.Pages[0].DisplayWidth)
	assert.Equal(t, 1035, st.Pages[0].DisplayHeight)
	assert.Equal(t, 1500, st.Pages[0].RenderWidth)
	assert.False(t, st.Pages[2].Available)
	assert.Equal(t, viewport.ModeNeutral, st.Viewport.Mode)
	assert.True(t, st.Target.IsNone())
}

func TestSessionOpenFailure(t *testing.T) {
	s, _ := newSession(t)
	err := s.Open(context.Background(), "missing")
	require.ErrorIs(t, err, testutil.ErrUnknownDocument)

	st := s.State()
	assert.False(t, st.Ready)
	assert.False(t, st.Loading)
	assert.Contains(t, st.Error, "missing")
	assert.Equal(t, StatusNotReady, s.LocateField("InvoiceTotal").Status)
}

func TestSessionLocateFieldFramesRegion(t *testing.T) {
	s := openInvoice(t)

	res := s.LocateField("InvoiceTotal")
	require.Equal(t, StatusFramed, res.Status)
	require.NoError(t, res.Err())
	assert.Equal(t, highlight.Field("InvoiceTotal"), res.Target)
	assert.InDelta(t, 6.8, res.Viewport.Zoom, 0.05)
	assert.Equal(t, 1, res.Viewport.FramedPageNumber)
	require.NotNil(t, res.Diagnostics)
	assert.InDelta(t, 94.1, res.Diagnostics.BoxWidthPx, 0.5)

	st := s.State()
	assert.Equal(t, viewport.ModeFramed, st.Viewport.Mode)
	assert.Equal(t, res.Viewport, st.Viewport.State)
	assert.InDelta(t, 0, st.ScrollPosition, 1e-9)
	assert.Equal(t, highlight.Field("InvoiceTotal"), st.Target)
}

func TestSessionLocateFieldScrollsToPage(t *testing.T) {
	s := openInvoice(t)

	res := s.LocateField("VendorName")
	require.Equal(t, StatusFramed, res.Status)
	assert.Equal(t, 2, res.Viewport.FramedPageNumber)

	st := s.State()
	assert.InDelta(t, 1035+viewport.DefaultPageGap, st.Viewport.ScrollTarget, 1e-9)
	assert.InDelta(t, 1035+viewport.DefaultPageGap, st.ScrollPosition, 1e-9)
}

func TestSessionToggleIsIdempotent(t *testing.T) {
	s := openInvoice(t)

	require.Equal(t, StatusFramed, s.LocateField("InvoiceTotal").Status)
	res := s.LocateField("invoicetotal")
	assert.Equal(t, StatusCleared, res.Status)
	assert.Equal(t, framing.State{Zoom: 1}, res.Viewport)

	st := s.State()
	assert.Equal(t, framing.State{Zoom: 1, TranslateX: 0, TranslateY: 0, FramedPageNumber: 0}, st.Viewport.State)
	assert.True(t, st.Target.IsNone())
}

func TestSessionLineItemClearsField(t *testing.T) {
	s := openInvoice(t)

	require.Equal(t, StatusFramed, s.LocateField("InvoiceTotal").Status)
	res := s.LocateLineItem(0)
	require.Equal(t, StatusCropped, res.Status)
	assert.Equal(t, framing.Neutral(), res.Viewport)
	require.NotNil(t, res.Crop)
	assert.Equal(t, 1, res.Crop.PageNumber)
	assert.Positive(t, res.Crop.Image.Bounds().Dx())

	st := s.State()
	assert.Equal(t, highlight.LineItem(0), st.Target)
	assert.Equal(t, viewport.ModeNeutral, st.Viewport.Mode)
	c, ok := s.Crop()
	require.True(t, ok)
	assert.Same(t, res.Crop, c)
}

func TestSessionFieldClearsLineItemCrop(t *testing.T) {
	s := openInvoice(t)

	require.Equal(t, StatusCropped, s.LocateLineItem(1).Status)
	require.Equal(t, StatusFramed, s.LocateField("VendorName").Status)

	_, ok := s.Crop()
	assert.False(t, ok)
	assert.Equal(t, highlight.Field("VendorName"), s.State().Target)
}

func TestSessionLineItemToggle(t *testing.T) {
	s := openInvoice(t)

	require.Equal(t, StatusCropped, s.LocateLineItem(0).Status)
	assert.Equal(t, StatusCleared, s.LocateLineItem(0).Status)
	_, ok := s.Crop()
	assert.False(t, ok)
	assert.True(t, s.State().Target.IsNone())
}

func TestSessionFailuresClearPreviousTarget(t *testing.T) {
	s := openInvoice(t)

	tests := []struct {
		name   string
		action func() Result
		want   Status
	}{
		{"field without region", func() Result { return s.LocateField("DueDate") }, StatusNotLocalizable},
		{"unknown field", func() Result { return s.LocateField("Subtotal") }, StatusNotLocalizable},
		{"field on failed page", func() Result { return s.LocateField("Stamp") }, StatusRasterUnavailable},
		{"line item with short polygon", func() Result { return s.LocateLineItem(2) }, StatusNotLocalizable},
		{"unknown line item", func() Result { return s.LocateLineItem(99) }, StatusNotLocalizable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, StatusFramed, s.LocateField("InvoiceTotal").Status)

			res := tt.action()
			assert.Equal(t, tt.want, res.Status)
			assert.Error(t, res.Err())
			assert.True(t, res.Viewport.IsNeutral())
			assert.Nil(t, res.Crop)

			st := s.State()
			assert.Equal(t, viewport.ModeNeutral, st.Viewport.Mode)
			assert.True(t, st.Viewport.State.IsNeutral())
			assert.True(t, st.Target.IsNone())
			assert.Nil(t, st.Crop)
		})
	}
}

func TestSessionFailureClearsLineItemCrop(t *testing.T) {
	s := openInvoice(t)
	require.Equal(t, StatusCropped, s.LocateLineItem(0).Status)

	assert.Equal(t, StatusNotLocalizable, s.LocateField("DueDate").Status)
	_, ok := s.Crop()
	assert.False(t, ok)
	assert.True(t, s.State().Target.IsNone())
}

func TestSessionFailureWithoutTargetPublishesNothing(t *testing.T) {
	s := openInvoice(t)

	var events int
	unsubscribe := s.Subscribe(func(Event) { events++ })
	defer unsubscribe()

	assert.Equal(t, StatusNotLocalizable, s.LocateField("DueDate").Status)
	assert.Zero(t, events)
}

func TestSessionProjectsAgainstMediaBox(t *testing.T) {
	payload := testutil.LoadPayload(t, `{
	  "pages": [{"pageNumber": 1, "width": 0, "height": 0}],
	  "fields": {"InvoiceTotal": {"boundingRegions": [{"pageNumber": 1, "polygon": [1, 1, 2, 1, 2, 1.5, 1, 1.5]}]}}
	}`)
	bare := testutil.LoadPayload(t, `{
	  "fields": {"InvoiceTotal": {"boundingRegions": [{"pageNumber": 1, "polygon": [1, 1, 2, 1, 2, 1.5, 1, 1.5]}]}}
	}`)
	src := testutil.NewMemorySource()
	src.AddDocument(&raster.Document{ID: "scan", Data: testutil.BuildPDF(nil), PageCount: 1}, payload)
	src.AddDocument(&raster.Document{ID: "bare", Data: testutil.BuildPDF(nil), PageCount: 1}, bare)
	src.Add("photo", 1, bare)

	s, err := NewSession("s1", Deps{Documents: src, Payloads: src, Rasterizer: testutil.NewPageRasterizer()}, testOptions())
	require.NoError(t, err)
	t.Cleanup(s.Close)

	for _, id := range []string{"scan", "bare"} {
		t.Run(id, func(t *testing.T) {
			require.NoError(t, s.Open(context.Background(), id))
			pages := s.State().Pages
			require.Len(t, pages, 1)
			assert.InDelta(t, 8.5, pages[0].PhysicalWidth, 1e-9)
			assert.InDelta(t, 11, pages[0].PhysicalHeight, 1e-9)

			res := s.LocateField("InvoiceTotal")
			require.Equal(t, StatusFramed, res.Status)
			assert.InDelta(t, 6.8, res.Viewport.Zoom, 0.05)

			regions, err := s.Regions()
			require.NoError(t, err)
			assert.Len(t, regions, 1)

			c, err := s.PreviewField("InvoiceTotal")
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}

	// Without a PDF there is nothing to take page sizes from.
	err = s.Open(context.Background(), "photo")
	require.ErrorIs(t, err, ocr.ErrNoPages)
}

func TestSessionDegenerateRegionUsesMinimumZoom(t *testing.T) {
	s := openInvoice(t)

	res := s.LocateField("Smudge")
	require.Equal(t, StatusFramed, res.Status)
	assert.InDelta(t, framing.DefaultMinZoom, res.Viewport.Zoom, 1e-9)
	require.NotNil(t, res.Diagnostics)
	assert.True(t, res.Diagnostics.Degenerate)
	assert.ErrorIs(t, res.Diagnostics.Warning, ErrDegenerateRegion)
}

func TestSessionNotReadyBeforeOpen(t *testing.T) {
	s, _ := newSession(t)

	assert.Equal(t, StatusNotReady, s.LocateField("InvoiceTotal").Status)
	assert.Equal(t, StatusNotReady, s.LocateLineItem(0).Status)
	_, err := s.Regions()
	require.ErrorIs(t, err, ErrNoDocument)
	_, err = s.RenderPage(1, false)
	require.ErrorIs(t, err, ErrNoDocument)
}

func TestSessionNotReadyWhileLoading(t *testing.T) {
	s, r := newSession(t)
	gate := make(chan struct{})
	r.SetGate(gate)

	done := make(chan error, 1)
	go func() { done <- s.Open(context.Background(), testutil.InvoiceID) }()

	require.Eventually(t, func() bool { return r.Calls() > 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, s.State().Loading)
	res := s.LocateField("InvoiceTotal")
	assert.Equal(t, StatusNotReady, res.Status)
	assert.ErrorIs(t, res.Err(), ErrNotReady)
	_, err := s.Regions()
	require.ErrorIs(t, err, ErrNotReady)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, StatusFramed, s.LocateField("InvoiceTotal").Status)
}

func TestSessionDiscardsStaleLoad(t *testing.T) {
	s, r := newSession(t)
	r.SetGate(make(chan struct{}))

	first := make(chan error, 1)
	go func() { first <- s.Open(context.Background(), testutil.InvoiceID) }()
	require.Eventually(t, func() bool { return r.Calls() > 0 }, time.Second, 5*time.Millisecond)

	r.SetGate(nil)
	require.NoError(t, s.Open(context.Background(), testutil.SinglePageID))

	err := <-first
	require.ErrorIs(t, err, ErrStaleGeneration)

	st := s.State()
	assert.Equal(t, testutil.SinglePageID, st.DocumentID)
	assert.True(t, st.Ready)
	assert.Len(t, st.Pages, 1)
}

func TestSessionSwitchingDocumentsResets(t *testing.T) {
	s := openInvoice(t)
	require.Equal(t, StatusFramed, s.LocateField("VendorName").Status)

	require.NoError(t, s.Open(context.Background(), testutil.SinglePageID))
	st := s.State()
	assert.Equal(t, framing.Neutral(), st.Viewport.State)
	assert.True(t, st.Target.IsNone())
	assert.Len(t, st.Pages, 1)

	// The new document's regions drive framing.
	res := s.LocateField("InvoiceTotal")
	require.Equal(t, StatusFramed, res.Status)
	assert.Equal(t, 1, res.Viewport.FramedPageNumber)
	assert.Equal(t, StatusNotLocalizable, s.LocateField("VendorName").Status)
}

func TestSessionReset(t *testing.T) {
	s := openInvoice(t)
	require.Equal(t, StatusFramed, s.LocateField("InvoiceTotal").Status)

	res := s.Reset()
	assert.Equal(t, StatusCleared, res.Status)
	st := s.State()
	assert.Equal(t, framing.Neutral(), st.Viewport.State)
	assert.True(t, st.Target.IsNone())

	// Resetting a neutral session is harmless.
	assert.Equal(t, StatusCleared, s.Reset().Status)
}

func TestSessionRegions(t *testing.T) {
	s := openInvoice(t)
	regions, err := s.Regions()
	require.NoError(t, err)
	require.Len(t, regions, 6)
	assert.Equal(t, "InvoiceTotal", regions[0].Name)
	assert.Equal(t, "line_item", regions[5].Kind)
}

func TestSessionPreviewField(t *testing.T) {
	s, _ := newSession(t)
	_, err := s.PreviewField("InvoiceTotal")
	require.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, s.Open(context.Background(), testutil.InvoiceID))
	c, err := s.PreviewField("invoicetotal")
	require.NoError(t, err)
	assert.Equal(t, 1, c.PageNumber)
	require.NotNil(t, c.Image)
	assert.Equal(t, c.Rect.Dx(), c.Image.Bounds().Dx())
	assert.True(t, s.State().Target.IsNone())

	_, err = s.PreviewField("DueDate")
	require.ErrorIs(t, err, ErrNotLocalizable)
	_, err = s.PreviewField("Signature")
	require.ErrorIs(t, err, ErrNotLocalizable)
	_, err = s.PreviewField("Stamp")
	require.ErrorIs(t, err, ErrRasterUnavailable)
}

func TestSessionRenderPage(t *testing.T) {
	s := openInvoice(t)

	plain, err := s.RenderPage(1, false)
	require.NoError(t, err)
	assert.Equal(t, 800, plain.Bounds().Dx())

	require.Equal(t, StatusFramed, s.LocateField("InvoiceTotal").Status)
	img, err := s.RenderPage(1, true)
	require.NoError(t, err)

	// The outline starts at the region's display-space corner (94, 94).
	r, g, b, _ := img.At(95, 95).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0, 0}, [3]uint32{r, g, b})

	// Other pages have no outline.
	other, err := s.RenderPage(2, true)
	require.NoError(t, err)
	assert.True(t, testutil.CompareImages(other, mustRender(t, s, 2), 0))

	_, err = s.RenderPage(3, false)
	require.ErrorIs(t, err, ErrRasterUnavailable)
	_, err = s.RenderPage(9, false)
	require.ErrorIs(t, err, raster.ErrInvalidPage)
}

func mustRender(t *testing.T, s *Session, page int) image.Image {
	t.Helper()
	img, err := s.RenderPage(page, false)
	require.NoError(t, err)
	return img
}

func TestSessionEvents(t *testing.T) {
	s, _ := newSession(t)

	var mu sync.Mutex
	var events []Event
	unsubscribe := s.Subscribe(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	require.NoError(t, s.Open(context.Background(), testutil.InvoiceID))
	s.LocateField("InvoiceTotal")
	s.LocateField("DueDate")

	mu.Lock()
	var states []Snapshot
	scrolls := 0
	for _, ev := range events {
		switch ev.Type {
		case EventState:
			states = append(states, *ev.State)
		case EventScroll:
			scrolls++
		}
	}
	mu.Unlock()

	// loading, ready, framed, then cleared by the failed locate.
	require.Len(t, states, 4)
	assert.True(t, states[0].Loading)
	assert.True(t, states[1].Ready)
	assert.Equal(t, viewport.ModeFramed, states[2].Viewport.Mode)
	assert.Equal(t, "InvoiceTotal", states[2].Target.Name())
	assert.Equal(t, viewport.ModeNeutral, states[3].Viewport.Mode)
	assert.True(t, states[3].Target.IsNone())
	assert.Equal(t, 1, scrolls)

	unsubscribe()
	s.LocateField("InvoiceTotal")
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, events, 5)
}

func TestNewSessionValidation(t *testing.T) {
	src := testutil.NewInvoiceSource(t)
	r := testutil.NewPageRasterizer()

	_, err := NewSession("x", Deps{Documents: src, Payloads: src}, testOptions())
	require.Error(t, err)

	opts := testOptions()
	opts.ContainerWidth = 30
	_, err = NewSession("x", Deps{Documents: src, Payloads: src, Rasterizer: r}, opts)
	require.Error(t, err)

	opts = testOptions()
	opts.Framing.MinZoom = 0
	_, err = NewSession("x", Deps{Documents: src, Payloads: src, Rasterizer: r}, opts)
	require.Error(t, err)
}

func TestStatusErr(t *testing.T) {
	assert.NoError(t, StatusFramed.Err())
	assert.NoError(t, StatusCropped.Err())
	assert.NoError(t, StatusCleared.Err())
	assert.True(t, errors.Is(StatusNotReady.Err(), ErrNotReady))
	assert.True(t, errors.Is(StatusNotLocalizable.Err(), ErrNotLocalizable))
	assert.True(t, errors.Is(StatusRasterUnavailable.Err(), raster.ErrRasterUnavailable))
}

func TestOptionsViewport(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, framing.Viewport{Width: 800, Height: 600}, opts.Viewport())
	assert.Equal(t, 800, opts.DisplayWidth())
}

func TestOptionsValidateBoundsViewport(t *testing.T) {
	opts := DefaultOptions()
	opts.ContainerWidth = 5_000_000
	opts.ContainerHeight = 5_000_000
	err := opts.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")

	opts = DefaultOptions()
	opts.ContainerWidth = MaxRasterWidth + opts.HorizontalPadding
	opts.ContainerHeight = MaxRasterWidth + opts.VerticalPadding
	assert.NoError(t, opts.Validate())

	opts = DefaultOptions()
	opts.RenderWidth = MaxRasterWidth + 1
	assert.Error(t, opts.Validate())
}
