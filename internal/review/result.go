package review

import (
	"errors"

	"github.com/MeKo-Tech/docframe/internal/crop"
	"github.com/MeKo-Tech/docframe/internal/framing"
	"github.com/MeKo-Tech/docframe/internal/highlight"
	"github.com/MeKo-Tech/docframe/internal/raster"
)

var (
	// ErrNotLocalizable means the target has no usable bounding region.
	ErrNotLocalizable = errors.New("target has no bounding region")
	// ErrNotReady is returned while the document is still rasterizing.
	ErrNotReady = errors.New("document not ready")
	// ErrNoDocument is returned before any document was opened.
	ErrNoDocument = errors.New("no document open")

	// Re-exported so callers only need this package.
	ErrRasterUnavailable = raster.ErrRasterUnavailable
	ErrStaleGeneration   = raster.ErrStaleGeneration
	ErrDegenerateRegion  = framing.ErrDegenerateRegion
)

// Status is the outcome of a session action. None of the failure statuses change
// session state.
type Status string

const (
	StatusFramed            Status = "framed"
	StatusCropped           Status = "cropped"
	StatusCleared           Status = "cleared"
	StatusNotReady          Status = "not_ready"
	StatusNotLocalizable    Status = "not_localizable"
	StatusRasterUnavailable Status = "raster_unavailable"
)

// Err maps a failure status to its sentinel error; success statuses map to nil.
func (s Status) Err() error {
	switch s {
	case StatusNotReady:
		return ErrNotReady
	case StatusNotLocalizable:
		return ErrNotLocalizable
	case StatusRasterUnavailable:
		return ErrRasterUnavailable
	default:
		return nil
	}
}

// Result describes what a locate or reset action did.
type Result struct {
	Status      Status               `json:"status"`
	Target      highlight.Target     `json:"target"`
	Viewport    framing.State        `json:"viewport"`
	Diagnostics *framing.Diagnostics `json:"diagnostics,omitempty"`
	Crop        *crop.Crop           `json:"crop,omitempty"`
}

// Err returns the sentinel error for a failed action.
func (r Result) Err() error {
	return r.Status.Err()
}
