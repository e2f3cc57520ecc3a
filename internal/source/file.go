package source

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/docframe/internal/ocr"
	"github.com/MeKo-Tech/docframe/internal/raster"
)

// File serves a single document and its payload from explicit paths. The command
// line tools use it for documents outside a document directory.
type File struct {
	DocumentPath string
	PayloadPath  string
}

// NewFile creates a single-document source. An empty payload path defaults to the
// document path with its extension replaced by PayloadSuffix.
func NewFile(documentPath, payloadPath string) *File {
	if payloadPath == "" {
		payloadPath = strings.TrimSuffix(documentPath, filepath.Ext(documentPath)) + PayloadSuffix
	}
	return &File{DocumentPath: documentPath, PayloadPath: payloadPath}
}

// ID is the document file name without extension.
func (f *File) ID() string {
	base := filepath.Base(f.DocumentPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Fetch implements raster.DocumentSource.
func (f *File) Fetch(ctx context.Context, id string) (*raster.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id != f.ID() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return readDocument(id, f.DocumentPath)
}

// Payload returns the recognizer payload of the document.
func (f *File) Payload(ctx context.Context, id string) (*ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id != f.ID() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return ocr.LoadFile(f.PayloadPath)
}
