// Package support holds the godog step definitions for the review service suite.
package support

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/MeKo-Tech/docframe/internal/review"
	"github.com/MeKo-Tech/docframe/internal/server"
	"github.com/MeKo-Tech/docframe/internal/testutil"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	Source     *testutil.MemorySource
	Rasterizer *testutil.PageRasterizer
	Server     *server.Server
	HTTPServer *httptest.Server

	SessionID string

	// Last request made by a "When" step
	LastHTTPStatusCode int
	LastHTTPResponse   []byte
	LastLocate         *server.LocateResponse
}

// NewTestContext creates an empty scenario context.
func NewTestContext() *TestContext {
	return &TestContext{}
}

// StartServer runs a review server over the sample invoices. The invoice's third page
// never rasterizes.
func (testCtx *TestContext) StartServer(maxSessions int) error {
	if testCtx.HTTPServer != nil {
		return fmt.Errorf("server already running at %s", testCtx.HTTPServer.URL)
	}
	src, err := testutil.InvoiceSource()
	if err != nil {
		return fmt.Errorf("failed to build invoice source: %w", err)
	}
	rast := testutil.NewPageRasterizer(testutil.FailingPageIndex)

	opts := review.DefaultOptions()
	opts.ScrollDuration = 0
	srv, err := server.NewServer(server.Config{
		CORSOrigin:  "*",
		TimeoutSec:  10,
		MaxSessions: maxSessions,
		Review:      opts,
	}, review.Deps{Documents: src, Payloads: src, Rasterizer: rast})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	testCtx.Source = src
	testCtx.Rasterizer = rast
	testCtx.Server = srv
	testCtx.HTTPServer = httptest.NewServer(srv.Handler())
	return nil
}

// Cleanup stops the server and closes every session.
func (testCtx *TestContext) Cleanup() error {
	if testCtx.HTTPServer != nil {
		testCtx.HTTPServer.Close()
		testCtx.HTTPServer = nil
	}
	if testCtx.Server != nil {
		err := testCtx.Server.Close()
		testCtx.Server = nil
		return err
	}
	return nil
}

// request sends a JSON request and returns the status code and body.
func (testCtx *TestContext) request(method, path string, body any) (int, []byte, http.Header, error) {
	if testCtx.HTTPServer == nil {
		return 0, nil, nil, fmt.Errorf("server is not running")
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, testCtx.HTTPServer.URL+path, reader)
	if err != nil {
		return 0, nil, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := testCtx.HTTPServer.Client().Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, err
	}
	return resp.StatusCode, data, resp.Header, nil
}

// record performs a request and remembers its outcome for later assertions.
func (testCtx *TestContext) record(method, path string, body any) error {
	status, data, _, err := testCtx.request(method, path, body)
	if err != nil {
		return err
	}
	testCtx.LastHTTPStatusCode = status
	testCtx.LastHTTPResponse = data
	return nil
}

// snapshot fetches the current session state without touching the recorded response.
func (testCtx *TestContext) snapshot() (review.Snapshot, error) {
	status, data, _, err := testCtx.request(http.MethodGet, testCtx.sessionPath(""), nil)
	if err != nil {
		return review.Snapshot{}, err
	}
	if status != http.StatusOK {
		return review.Snapshot{}, fmt.Errorf("fetching session: HTTP %d: %s", status, data)
	}
	var resp server.SessionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return review.Snapshot{}, fmt.Errorf("invalid session response: %w", err)
	}
	return resp.Session, nil
}

func (testCtx *TestContext) sessionPath(suffix string) string {
	return "/sessions/" + testCtx.SessionID + suffix
}
