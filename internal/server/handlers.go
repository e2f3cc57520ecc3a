package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/docframe/internal/review"
	"github.com/MeKo-Tech/docframe/internal/source"
	"github.com/MeKo-Tech/docframe/internal/version"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 1 << 20

// Error codes returned in ErrorResponse.Code.
const (
	codeBadRequest       = "bad_request"
	codeMethodNotAllowed = "method_not_allowed"
	codeSessionNotFound  = "session_not_found"
	codeSessionLimit     = "session_limit"
	codeDocumentNotFound = "document_not_found"
	codeSuperseded       = "superseded"
	codeOpenFailed       = "open_failed"
	codeTimeout          = "timeout"
	codeNotImplemented   = "not_implemented"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeErrorResponse(w, "Method not allowed", codeMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:   "healthy",
		Version:  version.Version,
		Time:     time.Now().UTC().Format(time.RFC3339),
		Sessions: s.sessions.count(),
	}
	s.writeJSON(w, http.StatusOK, response)
}

// documentsHandler lists the documents the server can open.
func (s *Server) documentsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeErrorResponse(w, "Method not allowed", codeMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	lister, ok := s.deps.Documents.(documentLister)
	if !ok {
		s.writeErrorResponse(w, "Document source cannot list documents", codeNotImplemented, http.StatusNotImplemented)
		return
	}
	entries, err := lister.List()
	if err != nil {
		slog.Error("Failed to list documents", "error", err)
		s.writeErrorResponse(w, "Failed to list documents", codeOpenFailed, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, DocumentsResponse{Documents: entries, Count: len(entries)})
}

// createSessionHandler opens a new session on a document.
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeErrorResponse(w, "Method not allowed", codeMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	var req CreateSessionRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeErrorResponse(w, err.Error(), codeBadRequest, http.StatusBadRequest)
		return
	}
	if req.DocumentID == "" {
		s.writeErrorResponse(w, "document_id is required", codeBadRequest, http.StatusBadRequest)
		return
	}

	opts, err := s.sessionOptions(req.ViewportWidth, req.ViewportHeight)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), codeBadRequest, http.StatusBadRequest)
		return
	}

	id, err := newSessionID()
	if err != nil {
		s.writeErrorResponse(w, "Failed to allocate session id", codeOpenFailed, http.StatusInternalServerError)
		return
	}
	sess, err := review.NewSession(id, s.deps, opts)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), codeBadRequest, http.StatusBadRequest)
		return
	}
	if err := s.sessions.add(sess); err != nil {
		sess.Close()
		s.writeErrorResponse(w, err.Error(), codeSessionLimit, http.StatusServiceUnavailable)
		return
	}
	slog.Info("Session created", "session", id, "document", req.DocumentID, "async", req.Async)

	if req.Async {
		s.openAsync(sess, req.DocumentID)
		s.writeJSON(w, http.StatusAccepted, SessionResponse{Success: true, Session: sess.State()})
		return
	}

	ctx, cancel := s.loadContext(r.Context())
	defer cancel()
	if err := sess.Open(ctx, req.DocumentID); err != nil {
		s.sessions.remove(id)
		s.writeOpenError(w, req.DocumentID, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, SessionResponse{Success: true, Session: sess.State()})
}

// sessionHandler returns or deletes a session.
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, SessionResponse{Success: true, Session: sess.State()})
	case http.MethodDelete:
		s.sessions.remove(sess.ID())
		slog.Info("Session closed", "session", sess.ID())
		w.WriteHeader(http.StatusNoContent)
	default:
		s.writeErrorResponse(w, "Method not allowed", codeMethodNotAllowed, http.StatusMethodNotAllowed)
	}
}

// openDocumentHandler switches the document of a session.
func (s *Server) openDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeErrorResponse(w, "Method not allowed", codeMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var req OpenDocumentRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeErrorResponse(w, err.Error(), codeBadRequest, http.StatusBadRequest)
		return
	}
	if req.DocumentID == "" {
		s.writeErrorResponse(w, "document_id is required", codeBadRequest, http.StatusBadRequest)
		return
	}

	if req.Async {
		s.openAsync(sess, req.DocumentID)
		s.writeJSON(w, http.StatusAccepted, SessionResponse{Success: true, Session: sess.State()})
		return
	}

	ctx, cancel := s.loadContext(r.Context())
	defer cancel()
	if err := sess.Open(ctx, req.DocumentID); err != nil {
		s.writeOpenError(w, req.DocumentID, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SessionResponse{Success: true, Session: sess.State()})
}

// locateHandler frames a field or crops a line item.
func (s *Server) locateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeErrorResponse(w, "Method not allowed", codeMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var req LocateRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeErrorResponse(w, err.Error(), codeBadRequest, http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeErrorResponse(w, err.Error(), codeBadRequest, http.StatusBadRequest)
		return
	}

	var res review.Result
	if req.Field != nil {
		res = sess.LocateField(*req.Field)
	} else {
		res = sess.LocateLineItem(*req.LineItem)
	}
	s.writeLocateResponse(w, res)
}

// resetHandler clears the active highlight.
func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeErrorResponse(w, "Method not allowed", codeMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	s.writeLocateResponse(w, sess.Reset())
}

// regionsHandler lists every localizable region of the open document.
func (s *Server) regionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeErrorResponse(w, "Method not allowed", codeMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	regions, err := sess.Regions()
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, RegionsResponse{Regions: regions, Count: len(regions)})
}

// sessionOptions applies a client viewport to the server defaults.
func (s *Server) sessionOptions(width, height int) (review.Options, error) {
	opts := s.options
	if width == 0 && height == 0 {
		return opts, nil
	}
	if width <= 0 || height <= 0 {
		return opts, fmt.Errorf("viewport must be positive, got %dx%d", width, height)
	}
	if width > s.maxViewport || height > s.maxViewport {
		return opts, fmt.Errorf("viewport %dx%d exceeds the %dpx limit", width, height, s.maxViewport)
	}
	opts.ContainerWidth = width + opts.HorizontalPadding
	opts.ContainerHeight = height + opts.VerticalPadding
	if err := opts.Validate(); err != nil {
		return opts, fmt.Errorf("invalid viewport: %w", err)
	}
	return opts, nil
}

// loadContext bounds a document load by the server timeout.
func (s *Server) loadContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.timeoutSec <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, time.Duration(s.timeoutSec)*time.Second)
}

// openAsync loads a document in the background. Progress is visible through the
// session state and its websocket stream.
func (s *Server) openAsync(sess *review.Session, documentID string) {
	go func() {
		ctx, cancel := s.loadContext(context.Background())
		defer cancel()
		if err := sess.Open(ctx, documentID); err != nil && !errors.Is(err, review.ErrStaleGeneration) {
			slog.Warn("Background document load failed", "session", sess.ID(), "document", documentID, "error", err)
		}
	}()
}

// lookupSession resolves the {id} path value, writing a 404 when it is unknown.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*review.Session, bool) {
	id := r.PathValue("id")
	sess, ok := s.sessions.get(id)
	if !ok {
		s.writeErrorResponse(w, "Session not found: "+id, codeSessionNotFound, http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

// decodeJSON decodes a bounded JSON request body into v.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeOpenError maps a document load failure to an HTTP status.
func (s *Server) writeOpenError(w http.ResponseWriter, documentID string, err error) {
	switch {
	case errors.Is(err, source.ErrInvalidID):
		s.writeErrorResponse(w, err.Error(), codeBadRequest, http.StatusBadRequest)
	case errors.Is(err, source.ErrNotFound):
		s.writeErrorResponse(w, "Document not found: "+documentID, codeDocumentNotFound, http.StatusNotFound)
	case errors.Is(err, review.ErrStaleGeneration):
		s.writeErrorResponse(w, "Document load superseded by a newer request", codeSuperseded, http.StatusConflict)
	case errors.Is(err, context.DeadlineExceeded):
		s.writeErrorResponse(w, "Document load timed out", codeTimeout, http.StatusGatewayTimeout)
	default:
		s.writeErrorResponse(w, fmt.Sprintf("Failed to open document: %v", err), codeOpenFailed, http.StatusUnprocessableEntity)
	}
}

// writeSessionError maps session query errors to HTTP statuses.
func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, review.ErrNotReady):
		s.writeErrorResponse(w, err.Error(), string(review.StatusNotReady), http.StatusConflict)
	case errors.Is(err, review.ErrNoDocument):
		s.writeErrorResponse(w, err.Error(), "no_document", http.StatusConflict)
	default:
		s.writeErrorResponse(w, err.Error(), codeBadRequest, http.StatusInternalServerError)
	}
}

// writeLocateResponse writes an action result. Failed actions leave the session
// untouched and are reported with a client error status.
func (s *Server) writeLocateResponse(w http.ResponseWriter, res review.Result) {
	status := http.StatusOK
	response := LocateResponse{Success: true, Result: res}
	if err := res.Err(); err != nil {
		response.Success = false
		response.Error = err.Error()
		switch res.Status {
		case review.StatusNotReady:
			status = http.StatusConflict
		default:
			status = http.StatusUnprocessableEntity
		}
	}
	s.writeJSON(w, status, response)
}

// writeJSON writes v with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message, code string, statusCode int) {
	s.writeJSON(w, statusCode, ErrorResponse{Success: false, Error: message, Code: code})
}
