package testutil

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/MeKo-Tech/docframe/internal/ocr"
	"github.com/MeKo-Tech/docframe/internal/raster"
	"github.com/stretchr/testify/require"
)

// Document identifiers served by NewInvoiceSource.
const (
	InvoiceID        = "invoice-1"
	SinglePageID     = "invoice-2"
	InvoicePages     = 3
	FailingPageIndex = 2
)

// InvoicePayloadJSON is a three-page letter invoice.
//
//   - InvoiceTotal: page 1, (1,1)-(2,1.5) inches
//   - VendorName: page 2
//   - DueDate: no bounding region
//   - Smudge: page 1, zero-area polygon
//   - Stamp: page 3, see FailingPageIndex
//   - line item 0 on page 1, line item 1 on page 2, line item 2 with a two-point polygon
const InvoicePayloadJSON = `{
  "modelId": "prebuilt-invoice",
  "pages": [
    {"pageNumber": 1, "width": 8.5, "height": 11, "unit": "inch"},
    {"pageNumber": 2, "width": 8.5, "height": 11, "unit": "inch"},
    {"pageNumber": 3, "width": 8.5, "height": 11, "unit": "inch"}
  ],
  "fields": {
    "InvoiceTotal": {
      "content": "$1,204.50",
      "confidence": 0.97,
      "boundingRegions": [{"pageNumber": 1, "polygon": [1, 1, 2, 1, 2, 1.5, 1, 1.5]}]
    },
    "VendorName": {
      "content": "Harbor Produce",
      "confidence": 0.93,
      "boundingRegions": [{"pageNumber": 2, "polygon": [0.5, 0.5, 3, 0.5, 3, 1, 0.5, 1]}]
    },
    "DueDate": {"content": "2026-11-01"},
    "Smudge": {
      "content": ".",
      "boundingRegions": [{"pageNumber": 1, "polygon": [4, 4, 4, 4, 4, 4, 4, 4]}]
    },
    "Stamp": {
      "content": "PAID",
      "boundingRegions": [{"pageNumber": 3, "polygon": [1, 1, 2, 1, 2, 2, 1, 2]}]
    }
  },
  "lineItems": [
    {"index": 0, "content": "Tomatoes 10kg", "boundingRegions": [{"pageNumber": 1, "polygon": [0.5, 5, 8, 5, 8, 5.5, 0.5, 5.5]}]},
    {"index": 1, "content": "Basil 2kg", "boundingRegions": [{"pageNumber": 2, "polygon": [0.5, 2, 8, 2, 8, 2.4, 0.5, 2.4]}]},
    {"index": 2, "content": "Olive oil", "boundingRegions": [{"pageNumber": 1, "polygon": [1, 6, 2, 6]}]}
  ]
}`

// SinglePagePayloadJSON is a one-page receipt with a total and one line item.
const SinglePagePayloadJSON = `{
  "pages": [{"pageNumber": 1, "width": 8.5, "height": 11, "unit": "inch"}],
  "fields": {
    "InvoiceTotal": {"content": "$18.00", "boundingRegions": [{"pageNumber": 1, "polygon": [5, 9, 7, 9, 7, 9.5, 5, 9.5]}]}
  },
  "lineItems": [
    {"index": 0, "content": "Coffee", "boundingRegions": [{"pageNumber": 1, "polygon": [0.5, 3, 8, 3, 8, 3.4, 0.5, 3.4]}]}
  ]
}`

// ErrUnknownDocument is returned by MemorySource for missing identifiers.
var ErrUnknownDocument = errors.New("unknown document")

// LoadPayload decodes a payload fixture.
func LoadPayload(t *testing.T, payload string) *ocr.Result {
	t.Helper()
	res, err := ocr.Load(strings.NewReader(payload))
	require.NoError(t, err, "Failed to decode payload fixture")
	return res
}

// MemorySource serves documents and payloads from memory. It implements both
// raster.DocumentSource and the review payload source.
type MemorySource struct {
	mu       sync.Mutex
	docs     map[string]*raster.Document
	payloads map[string]*ocr.Result
}

// NewMemorySource creates an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		docs:     make(map[string]*raster.Document),
		payloads: make(map[string]*ocr.Result),
	}
}

// Add registers a document with pageCount pages and its payload.
func (m *MemorySource) Add(id string, pageCount int, payload *ocr.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[id] = &raster.Document{ID: id, Data: []byte("synthetic:" + id), PageCount: pageCount}
	if payload != nil {
		m.payloads[id] = payload
	}
}

// AddDocument registers a document with explicit bytes, e.g. a PDF from BuildPDF.
func (m *MemorySource) AddDocument(doc *raster.Document, payload *ocr.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
	if payload != nil {
		m.payloads[doc.ID] = payload
	}
}

// Fetch implements raster.DocumentSource.
func (m *MemorySource) Fetch(ctx context.Context, id string) (*raster.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDocument, id)
	}
	return doc, nil
}

// Payload returns the recognizer payload of id.
func (m *MemorySource) Payload(ctx context.Context, id string) (*ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.payloads[id]
	if !ok {
		return nil, fmt.Errorf("%w: no payload for %s", ErrUnknownDocument, id)
	}
	return res, nil
}

// InvoiceSource returns a source holding the three-page invoice and the single-page
// receipt.
func InvoiceSource() (*MemorySource, error) {
	invoice, err := ocr.Load(strings.NewReader(InvoicePayloadJSON))
	if err != nil {
		return nil, err
	}
	receipt, err := ocr.Load(strings.NewReader(SinglePagePayloadJSON))
	if err != nil {
		return nil, err
	}
	src := NewMemorySource()
	src.Add(InvoiceID, InvoicePages, invoice)
	src.Add(SinglePageID, 1, receipt)
	return src, nil
}

// NewInvoiceSource is InvoiceSource for tests.
func NewInvoiceSource(t *testing.T) *MemorySource {
	t.Helper()
	src, err := InvoiceSource()
	require.NoError(t, err, "Failed to build invoice source")
	return src
}

// WriteDocumentDir writes a single-page PNG receipt and its payload into dir as
// <id>.png and <id>.ocr.json.
func WriteDocumentDir(t *testing.T, dir, id string) {
	t.Helper()
	page := GeneratePage(DefaultPageConfig("Receipt", 850))
	WriteFile(t, dir, id+".png", EncodePNG(t, page))
	WriteFile(t, dir, id+".ocr.json", []byte(SinglePagePayloadJSON))
}

// PayloadPath returns the payload path WriteDocumentDir uses.
func PayloadPath(dir, id string) string {
	return filepath.Join(dir, id+".ocr.json")
}
