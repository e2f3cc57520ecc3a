package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/MeKo-Tech/docframe/internal/ocr"
	"github.com/MeKo-Tech/docframe/internal/review"
	"github.com/MeKo-Tech/docframe/internal/source"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// documentLister is implemented by document sources that can enumerate their content.
type documentLister interface {
	List() ([]source.Entry, error)
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	deps        review.Deps
	options     review.Options
	corsOrigin  string
	timeoutSec  int
	maxViewport int
	rateLimiter *RateLimiter
	sessions    *sessionRegistry
}

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	CORSOrigin      string
	TimeoutSec      int
	ShutdownTimeout int
	MaxSessions     int
	// MaxViewport bounds each side of a client-requested viewport. Zero means
	// review.MaxRasterWidth.
	MaxViewport int
	// Review holds the default session options. Clients may override the viewport size.
	Review    review.Options
	RateLimit RateLimitConfig
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Time     string `json:"time"`
	Sessions int    `json:"sessions"`
}

// DocumentsResponse lists the documents a server can open.
type DocumentsResponse struct {
	Documents []source.Entry `json:"documents"`
	Count     int            `json:"count"`
}

// CreateSessionRequest opens a new review session. ViewportWidth and ViewportHeight
// size the framing viewport; zero keeps the server default. With Async set the
// response is sent before the document finishes loading.
type CreateSessionRequest struct {
	DocumentID     string `json:"document_id"`
	ViewportWidth  int    `json:"viewport_width,omitempty"`
	ViewportHeight int    `json:"viewport_height,omitempty"`
	Async          bool   `json:"async,omitempty"`
}

// OpenDocumentRequest switches the document of an existing session.
type OpenDocumentRequest struct {
	DocumentID string `json:"document_id"`
	Async      bool   `json:"async,omitempty"`
}

// LocateRequest names exactly one target: a field name or a line-item index.
type LocateRequest struct {
	Field    *string `json:"field,omitempty"`
	LineItem *int    `json:"line_item,omitempty"`
}

// Validate checks that exactly one target is set.
func (r LocateRequest) Validate() error {
	switch {
	case r.Field == nil && r.LineItem == nil:
		return errors.New("one of field or line_item is required")
	case r.Field != nil && r.LineItem != nil:
		return errors.New("field and line_item are mutually exclusive")
	case r.Field != nil && *r.Field == "":
		return errors.New("field must not be empty")
	}
	return nil
}

// SessionResponse carries a session snapshot.
type SessionResponse struct {
	Success bool           `json:"success"`
	Session review.Snapshot `json:"session"`
	Error   string          `json:"error,omitempty"`
}

// LocateResponse carries the outcome of a locate or reset action.
type LocateResponse struct {
	Success bool          `json:"success"`
	Result  review.Result `json:"result"`
	Error   string        `json:"error,omitempty"`
}

// RegionsResponse lists every localizable region of a session's document.
type RegionsResponse struct {
	Regions []ocr.Located `json:"regions"`
	Count   int           `json:"count"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// NewServer creates a review server. deps supply documents, payloads and rasters to
// every session the server opens.
func NewServer(config Config, deps review.Deps) (*Server, error) {
	if deps.Documents == nil || deps.Payloads == nil || deps.Rasterizer == nil {
		return nil, errors.New("server requires a document source, payload source and rasterizer")
	}
	if err := config.Review.Validate(); err != nil {
		return nil, fmt.Errorf("invalid review options: %w", err)
	}
	if config.MaxSessions <= 0 {
		return nil, fmt.Errorf("invalid max sessions: %d", config.MaxSessions)
	}
	if config.MaxViewport < 0 || config.MaxViewport > review.MaxRasterWidth {
		return nil, fmt.Errorf("invalid max viewport: %d (must be at most %d)", config.MaxViewport, review.MaxRasterWidth)
	}
	if config.MaxViewport == 0 {
		config.MaxViewport = review.MaxRasterWidth
	}

	s := &Server{
		deps:        deps,
		options:     config.Review,
		corsOrigin:  config.CORSOrigin,
		timeoutSec:  config.TimeoutSec,
		maxViewport: config.MaxViewport,
		sessions:    newSessionRegistry(config.MaxSessions),
	}
	if config.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(
			config.RateLimit.RequestsPerMinute,
			config.RateLimit.RequestsPerHour,
			config.RateLimit.MaxRequestsPerDay,
		)
	}
	return s, nil
}

// Close releases server resources by closing every open session.
func (s *Server) Close() error {
	s.sessions.closeAll()
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/documents", s.corsMiddleware(s.documentsHandler))
	mux.HandleFunc("/sessions", s.corsMiddleware(s.rateLimitMiddleware(s.createSessionHandler)))
	mux.HandleFunc("/sessions/{id}", s.corsMiddleware(s.sessionHandler))
	mux.HandleFunc("/sessions/{id}/document", s.corsMiddleware(s.rateLimitMiddleware(s.openDocumentHandler)))
	mux.HandleFunc("/sessions/{id}/locate", s.corsMiddleware(s.rateLimitMiddleware(s.locateHandler)))
	mux.HandleFunc("/sessions/{id}/reset", s.corsMiddleware(s.rateLimitMiddleware(s.resetHandler)))
	mux.HandleFunc("/sessions/{id}/regions", s.corsMiddleware(s.regionsHandler))
	mux.HandleFunc("/sessions/{id}/crop", s.corsMiddleware(s.cropHandler))
	mux.HandleFunc("/sessions/{id}/pages/{page}", s.corsMiddleware(s.pageHandler))
	mux.HandleFunc("/sessions/{id}/ws", s.corsMiddleware(s.sessionWebSocketHandler))
}

// Handler returns a mux with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}
