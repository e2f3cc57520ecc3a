package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MeKo-Tech/docframe/internal/review"
	"github.com/MeKo-Tech/docframe/internal/testutil"
	"github.com/stretchr/testify/require"
)

// testEnv is a running server over the synthetic invoice source. Page 3 of the
// invoice never rasterizes.
type testEnv struct {
	server     *Server
	http       *httptest.Server
	source     *testutil.MemorySource
	rasterizer *testutil.PageRasterizer
}

func testConfig() Config {
	opts := review.DefaultOptions()
	opts.ScrollDuration = 0
	return Config{
		CORSOrigin:  "*",
		TimeoutSec:  5,
		MaxSessions: 4,
		Review:      opts,
	}
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	src := testutil.NewInvoiceSource(t)
	rast := testutil.NewPageRasterizer(testutil.FailingPageIndex)

	srv, err := NewServer(cfg, review.Deps{Documents: src, Payloads: src, Rasterizer: rast})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})
	return &testEnv{server: srv, http: ts, source: src, rasterizer: rast}
}

// do sends a request with an optional JSON body and returns status and body.
func (e *testEnv) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.http.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.http.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

// createSession opens documentID and returns the new session id.
func (e *testEnv) createSession(t *testing.T, documentID string) string {
	t.Helper()
	code, body := e.do(t, http.MethodPost, "/sessions", CreateSessionRequest{DocumentID: documentID})
	require.Equal(t, http.StatusCreated, code, string(body))
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	require.NotEmpty(t, resp.Session.SessionID)
	return resp.Session.SessionID
}

func (e *testEnv) locate(t *testing.T, id string, req LocateRequest) (int, LocateResponse) {
	t.Helper()
	code, body := e.do(t, http.MethodPost, "/sessions/"+id+"/locate", req)
	var resp LocateResponse
	require.NoError(t, json.Unmarshal(body, &resp), string(body))
	return code, resp
}

func field(name string) LocateRequest { return LocateRequest{Field: &name} }
func lineItem(i int) LocateRequest { return LocateRequest{LineItem: &i} }

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}
