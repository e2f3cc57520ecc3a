package raster

import (
	"bytes"
	"fmt"

	"github.com/MeKo-Tech/docframe/internal/region"
	"github.com/dslipak/pdf"
)

// pointsPerInch converts PDF user space units to inches.
const pointsPerInch = 72.0

// PageSizes reads each page's MediaBox, following inheritance through the page tree,
// and returns the sizes in inches. Pages without a usable MediaBox are left zero.
func PageSizes(data []byte) ([]region.PhysicalSize, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	n := r.NumPage()
	sizes := make([]region.PhysicalSize, n)
	for i := range n {
		page := r.Page(i + 1)
		if page.V.IsNull() {
			continue
		}
		sizes[i] = mediaBox(page.V)
	}
	return sizes, nil
}

func mediaBox(v pdf.Value) region.PhysicalSize {
	// Parent chains are short; the bound guards against cyclic trees.
	for depth := 0; depth < 32 && v.Kind() == pdf.Dict; depth++ {
		box := v.Key("MediaBox")
		if box.Kind() == pdf.Array && box.Len() == 4 {
			w := box.Index(2).Float64() - box.Index(0).Float64()
			h := box.Index(3).Float64() - box.Index(1).Float64()
			if w < 0 {
				w = -w
			}
			if h < 0 {
				h = -h
			}
			return region.PhysicalSize{Width: w / pointsPerInch, Height: h / pointsPerInch}
		}
		v = v.Key("Parent")
	}
	return region.PhysicalSize{}
}

// FillPhysicalSizes completes sizes the recognizer did not report from the PDF's
// MediaBoxes. Non-PDF documents and unreadable PDFs leave sizes untouched.
func FillPhysicalSizes(doc *Document, sizes []region.PhysicalSize) []region.PhysicalSize {
	missing := false
	for _, s := range sizes {
		if !s.Known() {
			missing = true
			break
		}
	}
	if !missing || !IsPDF(doc.Data) {
		return sizes
	}

	boxes, err := PageSizes(doc.Data)
	if err != nil {
		return sizes
	}
	for i := range sizes {
		if !sizes[i].Known() && i < len(boxes) && boxes[i].Known() {
			sizes[i] = boxes[i]
		}
	}
	return sizes
}
