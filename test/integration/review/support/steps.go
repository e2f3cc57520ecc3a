package support

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/MeKo-Tech/docframe/internal/server"
	"github.com/MeKo-Tech/docframe/internal/viewport"
	"github.com/cucumber/godog"
)

// defaultMaxSessions bounds sessions unless a scenario asks for a limit.
const defaultMaxSessions = 8

// RegisterServerSteps registers server and session lifecycle steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a review server with the sample invoices$`, func() error {
		return testCtx.StartServer(defaultMaxSessions)
	})
	sc.Step(`^a review server allowing (\d+) sessions?$`, testCtx.StartServer)

	sc.Step(`^I open a session on "([^"]*)"$`, func(documentID string) error {
		return testCtx.openSession(server.CreateSessionRequest{DocumentID: documentID})
	})
	sc.Step(`^I open a session on "([^"]*)" with a (\d+)x(\d+) viewport$`, func(documentID string, w, h int) error {
		return testCtx.openSession(server.CreateSessionRequest{DocumentID: documentID, ViewportWidth: w, ViewportHeight: h})
	})
	sc.Step(`^I fetch the session$`, func() error {
		return testCtx.record(http.MethodGet, testCtx.sessionPath(""), nil)
	})
	sc.Step(`^I close the session$`, func() error {
		return testCtx.record(http.MethodDelete, testCtx.sessionPath(""), nil)
	})

	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response error code should be "([^"]*)"$`, testCtx.theResponseErrorCodeShouldBe)
	sc.Step(`^the session should have (\d+) pages?$`, testCtx.theSessionShouldHavePages)
	sc.Step(`^page (\d+) should be (available|unavailable)$`, testCtx.pageShouldBe)
	sc.Step(`^pages should be (\d+) pixels wide$`, testCtx.pagesShouldBeWide)
	sc.Step(`^the session should list (\d+) regions$`, testCtx.theSessionShouldListRegions)
}

// RegisterLocateSteps registers locate, reset and viewport assertions.
func (testCtx *TestContext) RegisterLocateSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I locate the field "([^"]*)"$`, func(name string) error {
		return testCtx.locate(server.LocateRequest{Field: &name})
	})
	sc.Step(`^I locate line item (\d+)$`, func(index int) error {
		return testCtx.locate(server.LocateRequest{LineItem: &index})
	})
	sc.Step(`^I reset the session$`, func() error {
		return testCtx.recordLocate(http.MethodPost, testCtx.sessionPath("/reset"), nil)
	})

	sc.Step(`^the result status should be "([^"]*)"$`, testCtx.theResultStatusShouldBe)
	sc.Step(`^the zoom should be about ([\d.]+)$`, testCtx.theZoomShouldBeAbout)
	sc.Step(`^the framed page should be (\d+)$`, testCtx.theFramedPageShouldBe)
	sc.Step(`^the active target should be "([^"]*)"$`, testCtx.theActiveTargetShouldBe)
	sc.Step(`^the viewport should be (neutral|framed)$`, testCtx.theViewportShouldBe)
	sc.Step(`^a crop preview of page (\d+) should be available$`, testCtx.aCropPreviewShouldBeAvailable)
	sc.Step(`^no crop preview should be available$`, testCtx.noCropPreviewShouldBeAvailable)
}

func (testCtx *TestContext) openSession(req server.CreateSessionRequest) error {
	if err := testCtx.record(http.MethodPost, "/sessions", req); err != nil {
		return err
	}
	if testCtx.LastHTTPStatusCode != http.StatusCreated {
		return nil
	}
	var resp server.SessionResponse
	if err := json.Unmarshal(testCtx.LastHTTPResponse, &resp); err != nil {
		return fmt.Errorf("invalid session response: %w", err)
	}
	testCtx.SessionID = resp.Session.SessionID
	return nil
}

func (testCtx *TestContext) locate(req server.LocateRequest) error {
	return testCtx.recordLocate(http.MethodPost, testCtx.sessionPath("/locate"), req)
}

func (testCtx *TestContext) recordLocate(method, path string, body any) error {
	if err := testCtx.record(method, path, body); err != nil {
		return err
	}
	var resp server.LocateResponse
	if err := json.Unmarshal(testCtx.LastHTTPResponse, &resp); err != nil {
		return fmt.Errorf("invalid locate response (HTTP %d): %w", testCtx.LastHTTPStatusCode, err)
	}
	testCtx.LastLocate = &resp
	return nil
}

func (testCtx *TestContext) theResponseStatusShouldBe(expected int) error {
	if testCtx.LastHTTPStatusCode != expected {
		return fmt.Errorf("expected status %d, got %d: %s", expected, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseErrorCodeShouldBe(code string) error {
	var resp server.ErrorResponse
	if err := json.Unmarshal(testCtx.LastHTTPResponse, &resp); err != nil {
		return fmt.Errorf("invalid error response: %w", err)
	}
	if resp.Code != code {
		return fmt.Errorf("expected error code %q, got %q (%s)", code, resp.Code, resp.Error)
	}
	return nil
}

func (testCtx *TestContext) theSessionShouldHavePages(n int) error {
	snap, err := testCtx.snapshot()
	if err != nil {
		return err
	}
	if len(snap.Pages) != n {
		return fmt.Errorf("expected %d pages, got %d", n, len(snap.Pages))
	}
	return nil
}

func (testCtx *TestContext) pageShouldBe(page int, availability string) error {
	snap, err := testCtx.snapshot()
	if err != nil {
		return err
	}
	if page < 1 || page > len(snap.Pages) {
		return fmt.Errorf("page %d out of range (%d pages)", page, len(snap.Pages))
	}
	want := availability == "available"
	if snap.Pages[page-1].Available != want {
		return fmt.Errorf("expected page %d to be %s", page, availability)
	}
	return nil
}

func (testCtx *TestContext) pagesShouldBeWide(width int) error {
	snap, err := testCtx.snapshot()
	if err != nil {
		return err
	}
	for _, p := range snap.Pages {
		if p.DisplayWidth != width {
			return fmt.Errorf("expected page %d to be %dpx wide, got %d", p.PageNumber(), width, p.DisplayWidth)
		}
	}
	return nil
}

func (testCtx *TestContext) theSessionShouldListRegions(n int) error {
	status, data, _, err := testCtx.request(http.MethodGet, testCtx.sessionPath("/regions"), nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("listing regions: HTTP %d: %s", status, data)
	}
	var resp server.RegionsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return err
	}
	if resp.Count != n {
		return fmt.Errorf("expected %d regions, got %d", n, resp.Count)
	}
	return nil
}

func (testCtx *TestContext) lastLocate() (*server.LocateResponse, error) {
	if testCtx.LastLocate == nil {
		return nil, errors.New("no locate or reset request was made")
	}
	return testCtx.LastLocate, nil
}

func (testCtx *TestContext) theResultStatusShouldBe(status string) error {
	resp, err := testCtx.lastLocate()
	if err != nil {
		return err
	}
	if string(resp.Result.Status) != status {
		return fmt.Errorf("expected result status %q, got %q", status, resp.Result.Status)
	}
	return nil
}

func (testCtx *TestContext) theZoomShouldBeAbout(zoomStr string) error {
	want, err := strconv.ParseFloat(zoomStr, 64)
	if err != nil {
		return fmt.Errorf("invalid zoom: %s", zoomStr)
	}
	resp, err := testCtx.lastLocate()
	if err != nil {
		return err
	}
	if got := resp.Result.Viewport.Zoom; math.Abs(got-want) > 0.01 {
		return fmt.Errorf("expected zoom %.2f, got %.4f", want, got)
	}
	return nil
}

func (testCtx *TestContext) theFramedPageShouldBe(page int) error {
	resp, err := testCtx.lastLocate()
	if err != nil {
		return err
	}
	if got := resp.Result.Viewport.FramedPageNumber; got != page {
		return fmt.Errorf("expected framed page %d, got %d", page, got)
	}
	return nil
}

func (testCtx *TestContext) theActiveTargetShouldBe(target string) error {
	snap, err := testCtx.snapshot()
	if err != nil {
		return err
	}
	if got := snap.Target.String(); got != target {
		return fmt.Errorf("expected active target %q, got %q", target, got)
	}
	return nil
}

func (testCtx *TestContext) theViewportShouldBe(mode string) error {
	snap, err := testCtx.snapshot()
	if err != nil {
		return err
	}
	var want viewport.Mode
	if err := want.UnmarshalText([]byte(mode)); err != nil {
		return err
	}
	if snap.Viewport.Mode != want {
		return fmt.Errorf("expected %s viewport, got %s", mode, snap.Viewport.Mode)
	}
	return nil
}

func (testCtx *TestContext) aCropPreviewShouldBeAvailable(page int) error {
	status, data, header, err := testCtx.request(http.MethodGet, testCtx.sessionPath("/crop"), nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("expected crop preview, got HTTP %d: %s", status, data)
	}
	if got := header.Get("X-Page-Number"); got != strconv.Itoa(page) {
		return fmt.Errorf("expected crop of page %d, got page %s", page, got)
	}
	if header.Get("Content-Type") != "image/png" {
		return fmt.Errorf("expected PNG crop, got %s", header.Get("Content-Type"))
	}
	return nil
}

func (testCtx *TestContext) noCropPreviewShouldBeAvailable() error {
	status, _, _, err := testCtx.request(http.MethodGet, testCtx.sessionPath("/crop"), nil)
	if err != nil {
		return err
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("expected no crop preview, got HTTP %d", status)
	}
	return nil
}
