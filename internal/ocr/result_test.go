package ocr

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MeKo-Tech/docframe/internal/region"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePayload = `{
  "modelId": "prebuilt-invoice",
  "pages": [
    {"pageNumber": 1, "width": 8.5, "height": 11, "unit": "inch"},
    {"pageNumber": 2, "width": 8.5, "height": 11, "unit": "inch"}
  ],
  "fields": {
    "InvoiceTotal": {
      "content": "$1,204.50",
      "confidence": 0.97,
      "boundingRegions": [{"pageNumber": 1, "polygon": [1, 1, 2, 1, 2, 1.5, 1, 1.5]}]
    },
    "VendorName": {
      "content": "Harbor Produce",
      "boundingRegions": [{"pageNumber": 2, "polygon": [0.5, 0.5, 3, 0.5, 3, 1, 0.5, 1]}]
    },
    "DueDate": {"content": "2026-11-01"},
    "Broken": {"boundingRegions": [{"pageNumber": 9, "polygon": [1, 1, 2, 1, 2, 2, 1, 2]}]}
  },
  "lineItems": [
    {"index": 0, "content": "Tomatoes 10kg", "boundingRegions": [{"pageNumber": 1, "polygon": [0, 5, 0.425, 5, 0.425, 5.5, 0, 5.5]}]},
    {"index": 1, "content": "Basil", "boundingRegions": [{"pageNumber": 1, "polygon": [1, 6, 2, 6]}]}
  ]
}`

func loadSample(t *testing.T) *Result {
	t.Helper()
	res, err := Load(strings.NewReader(samplePayload))
	require.NoError(t, err)
	return res
}

func TestLoad(t *testing.T) {
	res := loadSample(t)
	assert.Equal(t, "prebuilt-invoice", res.ModelID)
	assert.Len(t, res.Pages, 2)
	assert.Len(t, res.Fields, 4)
	assert.Len(t, res.LineItems, 2)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(strings.NewReader("{"))
	require.Error(t, err)

	res, err := Load(strings.NewReader(`{"pages": []}`))
	require.NoError(t, err)
	assert.False(t, res.HasPageSizes())
}

func TestWithPageSizes(t *testing.T) {
	res, err := Load(strings.NewReader(`{
	  "pages": [{"pageNumber": 1, "width": 0, "height": 0}, {"pageNumber": 2, "width": 8, "height": 10, "unit": "inch"}],
	  "fields": {"Total": {"boundingRegions": [{"pageNumber": 1, "polygon": [1, 1, 2, 1, 2, 1.5, 1, 1.5]}]}},
	  "lineItems": [{"index": 0, "boundingRegions": [{"pageNumber": 3, "polygon": [1, 1, 2, 1, 2, 2, 1, 2]}]}]
	}`))
	require.NoError(t, err)
	_, ok := res.FieldRegion("Total")
	assert.False(t, ok)
	assert.True(t, res.HasPageSizes())

	letter := region.PhysicalSize{Width: 8.5, Height: 11}
	filled := res.WithPageSizes([]region.PhysicalSize{letter, {Width: 1, Height: 1}, letter})

	reg, ok := filled.FieldRegion("Total")
	require.True(t, ok)
	assert.InDelta(t, 11.76, reg.XPct, 0.01)
	assert.InDelta(t, 9.09, reg.YPct, 0.01)

	// Reported sizes win over the document's.
	p2, ok := filled.Page(2)
	require.True(t, ok)
	assert.InDelta(t, 8.0, p2.Width, 1e-9)

	// Pages missing from the payload are added.
	_, ok = filled.LineItemRegion(0)
	assert.True(t, ok)
	assert.Len(t, filled.Pages, 3)

	// The original payload is untouched.
	_, ok = res.FieldRegion("Total")
	assert.False(t, ok)
	assert.Len(t, res.Pages, 2)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inv.ocr.json")
	require.NoError(t, os.WriteFile(path, []byte(samplePayload), 0o600))

	res, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, res.Pages, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestFieldLookupIgnoresCase(t *testing.T) {
	res := loadSample(t)

	f, ok := res.Field("invoicetotal")
	require.True(t, ok)
	assert.Equal(t, "$1,204.50", f.Content)

	_, ok = res.Field("Subtotal")
	assert.False(t, ok)

	name, ok := res.FieldName("VENDORNAME")
	require.True(t, ok)
	assert.Equal(t, "VendorName", name)

	name, ok = res.FieldName("DueDate")
	require.True(t, ok)
	assert.Equal(t, "DueDate", name)
}

func TestFieldRegion(t *testing.T) {
	res := loadSample(t)

	r, ok := res.FieldRegion("InvoiceTotal")
	require.True(t, ok)
	assert.Equal(t, 1, r.PageNumber)
	assert.InDelta(t, 11.76, r.XPct, 0.1)
	assert.InDelta(t, 9.09, r.YPct, 0.1)
	assert.InDelta(t, 11.76, r.WidthPct, 0.1)
	assert.InDelta(t, 4.55, r.HeightPct, 0.1)

	r, ok = res.FieldRegion("VendorName")
	require.True(t, ok)
	assert.Equal(t, 2, r.PageNumber)

	_, ok = res.FieldRegion("DueDate")
	assert.False(t, ok, "field without regions is not localizable")

	_, ok = res.FieldRegion("Broken")
	assert.False(t, ok, "region on an unknown page is not localizable")

	_, ok = res.FieldRegion("Missing")
	assert.False(t, ok)
}

func TestLineItemRegion(t *testing.T) {
	res := loadSample(t)

	r, ok := res.LineItemRegion(0)
	require.True(t, ok)
	assert.InDelta(t, 0.0, r.XPct, 1e-9)
	assert.InDelta(t, 5.0, r.WidthPct, 1e-6)

	_, ok = res.LineItemRegion(1)
	assert.False(t, ok, "two-point polygon is not localizable")

	_, ok = res.LineItemRegion(7)
	assert.False(t, ok)
}

func TestPhysicalSizes(t *testing.T) {
	res := loadSample(t)

	sizes := res.PhysicalSizes(3)
	require.Len(t, sizes, 3)
	assert.Equal(t, region.PhysicalSize{Width: 8.5, Height: 11}, sizes[0])
	assert.Equal(t, region.PhysicalSize{Width: 8.5, Height: 11}, sizes[1])
	assert.Equal(t, region.PhysicalSize{}, sizes[2])
}

func TestRegions(t *testing.T) {
	res := loadSample(t)

	located := res.Regions()
	require.Len(t, located, 3)
	assert.Equal(t, "field", located[0].Kind)
	assert.Equal(t, "InvoiceTotal", located[0].Name)
	assert.Equal(t, "VendorName", located[1].Name)
	assert.Equal(t, "line_item", located[2].Kind)
	assert.Equal(t, 0, located[2].Index)
}
