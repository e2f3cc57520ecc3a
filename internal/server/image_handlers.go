package server

import (
	"bytes"
	"errors"
	"image"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/MeKo-Tech/docframe/internal/raster"
	"github.com/MeKo-Tech/docframe/internal/review"
	"github.com/MeKo-Tech/docframe/internal/utils"
)

// cropHandler returns the preview of the active line item as PNG.
func (s *Server) cropHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeErrorResponse(w, "Method not allowed", codeMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	c, ok := sess.Crop()
	if !ok || c.Image == nil {
		s.writeErrorResponse(w, "No line item is active", "no_crop", http.StatusNotFound)
		return
	}
	w.Header().Set("X-Page-Number", strconv.Itoa(c.PageNumber))
	s.writePNG(w, c.Image)
}

// pageHandler returns the display raster of a page as PNG. With overlay=1 the active
// target is outlined.
func (s *Server) pageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeErrorResponse(w, "Method not allowed", codeMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	page, err := strconv.Atoi(r.PathValue("page"))
	if err != nil || page < 1 {
		s.writeErrorResponse(w, "Invalid page number: "+r.PathValue("page"), codeBadRequest, http.StatusBadRequest)
		return
	}
	overlay, _ := strconv.ParseBool(r.URL.Query().Get("overlay"))

	img, err := sess.RenderPage(page, overlay)
	switch {
	case err == nil:
		s.writePNG(w, img)
	case errors.Is(err, raster.ErrInvalidPage):
		s.writeErrorResponse(w, err.Error(), "page_not_found", http.StatusNotFound)
	case errors.Is(err, review.ErrRasterUnavailable):
		s.writeErrorResponse(w, err.Error(), string(review.StatusRasterUnavailable), http.StatusUnprocessableEntity)
	default:
		s.writeSessionError(w, err)
	}
}

// writePNG encodes img before writing headers so encoding failures still yield a
// proper error response.
func (s *Server) writePNG(w http.ResponseWriter, img image.Image) {
	var buf bytes.Buffer
	if err := utils.EncodePNG(&buf, img); err != nil {
		slog.Error("Failed to encode PNG", "error", err)
		s.writeErrorResponse(w, "Failed to encode image", "encode_failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}
