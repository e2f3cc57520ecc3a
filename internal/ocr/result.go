// Package ocr models the recognizer payload consumed by the review engine.
//
// The layout follows the analyze-result shape of document intelligence services:
// per-page physical dimensions plus named fields and line items, each carrying
// zero or more bounding regions with flat polygons in page units.
package ocr

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/MeKo-Tech/docframe/internal/region"
	"golang.org/x/text/cases"
)

// Page holds the physical size of one page as reported by the recognizer.
type Page struct {
	PageNumber int     `json:"pageNumber"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Unit       string  `json:"unit,omitempty"`
	Angle      float64 `json:"angle,omitempty"`
}

// BoundingRegion locates content on a page.
type BoundingRegion struct {
	PageNumber int       `json:"pageNumber"`
	Polygon    []float64 `json:"polygon"`
}

// Field is a named value extracted from the document, e.g. "InvoiceTotal".
type Field struct {
	Content         string           `json:"content,omitempty"`
	Confidence      float64          `json:"confidence,omitempty"`
	BoundingRegions []BoundingRegion `json:"boundingRegions,omitempty"`
}

// LineItem is one row of the invoice's item table.
type LineItem struct {
	Index           int              `json:"index"`
	Content         string           `json:"content,omitempty"`
	Confidence      float64          `json:"confidence,omitempty"`
	BoundingRegions []BoundingRegion `json:"boundingRegions,omitempty"`
}

// Result is the recognizer payload for one document.
type Result struct {
	ModelID   string           `json:"modelId,omitempty"`
	Pages     []Page           `json:"pages"`
	Fields    map[string]Field `json:"fields,omitempty"`
	LineItems []LineItem       `json:"lineItems,omitempty"`
}

// ErrNoPages is returned when neither the payload nor the document provides page
// dimensions.
var ErrNoPages = errors.New("ocr payload has no pages")

// Load decodes a payload from r. A payload without pages is accepted; the document
// may still supply page sizes (see WithPageSizes).
func Load(r io.Reader) (*Result, error) {
	var res Result
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		return nil, fmt.Errorf("failed to decode ocr payload: %w", err)
	}
	return &res, nil
}

// LoadFile decodes a payload from a JSON file.
func LoadFile(path string) (*Result, error) {
	f, err := os.Open(path) //nolint:gosec // G304: payload path is provided by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to open ocr payload: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}

// Page returns the page with the given 1-based number.
func (r *Result) Page(pageNumber int) (Page, bool) {
	for _, p := range r.Pages {
		if p.PageNumber == pageNumber {
			return p, true
		}
	}
	return Page{}, false
}

// PhysicalSizes returns the physical size of pages 1..n indexed from zero.
// Pages the recognizer did not report are left zero.
func (r *Result) PhysicalSizes(n int) []region.PhysicalSize {
	out := make([]region.PhysicalSize, n)
	for _, p := range r.Pages {
		if i := p.PageNumber - 1; i >= 0 && i < n {
			out[i] = region.PhysicalSize{Width: p.Width, Height: p.Height}
		}
	}
	return out
}

// HasPageSizes reports whether at least one page has a known physical size.
func (r *Result) HasPageSizes() bool {
	for _, p := range r.Pages {
		if p.Width > 0 && p.Height > 0 {
			return true
		}
	}
	return false
}

// WithPageSizes returns a copy of r in which pages without a known size take theirs
// from sizes, indexed from zero and given in inches. Pages absent from the payload are
// added. r itself is not modified.
func (r *Result) WithPageSizes(sizes []region.PhysicalSize) *Result {
	out := *r
	out.Pages = make([]Page, 0, max(len(r.Pages), len(sizes)))

	seen := make(map[int]bool, len(r.Pages))
	for _, p := range r.Pages {
		seen[p.PageNumber] = true
		i := p.PageNumber - 1
		if (p.Width <= 0 || p.Height <= 0) && i >= 0 && i < len(sizes) && sizes[i].Known() {
			p.Width, p.Height, p.Unit = sizes[i].Width, sizes[i].Height, "inch"
		}
		out.Pages = append(out.Pages, p)
	}
	for i, size := range sizes {
		if !seen[i+1] && size.Known() {
			out.Pages = append(out.Pages, Page{PageNumber: i + 1, Width: size.Width, Height: size.Height, Unit: "inch"})
		}
	}
	return &out
}

// Field looks up a field by name, ignoring case.
func (r *Result) Field(name string) (Field, bool) {
	key, ok := r.FieldName(name)
	if !ok {
		return Field{}, false
	}
	return r.Fields[key], true
}

// FieldName resolves name to the key used in the payload, ignoring case.
func (r *Result) FieldName(name string) (string, bool) {
	if _, ok := r.Fields[name]; ok {
		return name, true
	}
	// Casers carry state, so each lookup gets its own.
	fold := cases.Fold()
	want := fold.String(name)
	for k := range r.Fields {
		if fold.String(k) == want {
			return k, true
		}
	}
	return "", false
}

// LineItem looks up a line item by index.
func (r *Result) LineItem(index int) (LineItem, bool) {
	for _, li := range r.LineItems {
		if li.Index == index {
			return li, true
		}
	}
	return LineItem{}, false
}

// FieldRegion projects the first bounding region of the named field.
func (r *Result) FieldRegion(name string) (region.Region, bool) {
	f, ok := r.Field(name)
	if !ok {
		return region.Region{}, false
	}
	return r.project(f.BoundingRegions)
}

// LineItemRegion projects the first bounding region of the line item.
func (r *Result) LineItemRegion(index int) (region.Region, bool) {
	li, ok := r.LineItem(index)
	if !ok {
		return region.Region{}, false
	}
	return r.project(li.BoundingRegions)
}

func (r *Result) project(regions []BoundingRegion) (region.Region, bool) {
	if len(regions) == 0 {
		return region.Region{}, false
	}
	br := regions[0]
	page, ok := r.Page(br.PageNumber)
	if !ok {
		return region.Region{}, false
	}
	return region.Project(br.PageNumber, region.PolygonFromFlat(br.Polygon), page.Width, page.Height)
}

// Located pairs a target description with its projected region.
type Located struct {
	Kind   string        `json:"kind"`
	Name   string        `json:"name,omitempty"`
	Index  int           `json:"index"`
	Region region.Region `json:"region"`
}

// Regions returns every localizable field and line item, fields first in name order.
func (r *Result) Regions() []Located {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Located, 0, len(names)+len(r.LineItems))
	for _, name := range names {
		if reg, ok := r.project(r.Fields[name].BoundingRegions); ok {
			out = append(out, Located{Kind: "field", Name: name, Region: reg})
		}
	}
	for _, li := range r.LineItems {
		if reg, ok := r.project(li.BoundingRegions); ok {
			out = append(out, Located{Kind: "line_item", Index: li.Index, Region: reg})
		}
	}
	return out
}
