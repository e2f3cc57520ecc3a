// Package source serves documents and recognizer payloads from disk.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/MeKo-Tech/docframe/internal/ocr"
	"github.com/MeKo-Tech/docframe/internal/raster"
	"github.com/MeKo-Tech/docframe/internal/utils"
)

// PayloadSuffix is appended to a document identifier to name its recognizer payload.
const PayloadSuffix = ".ocr.json"

var (
	// ErrNotFound is returned for unknown document identifiers.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidID is returned for identifiers that would escape the directory.
	ErrInvalidID = errors.New("invalid document id")
)

// documentExtensions lists the accepted document formats in lookup order.
var documentExtensions = append([]string{".pdf"}, utils.SupportedImageExtensions...)

// Directory resolves <id>.<ext> documents and <id>.ocr.json payloads under Root.
type Directory struct {
	Root string
}

// NewDirectory creates a directory source rooted at root.
func NewDirectory(root string) *Directory {
	return &Directory{Root: root}
}

// Entry describes one document available in the directory.
type Entry struct {
	ID         string `json:"id"`
	File       string `json:"file"`
	HasPayload bool   `json:"has_payload"`
}

// Fetch implements raster.DocumentSource.
func (d *Directory) Fetch(ctx context.Context, id string) (*raster.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := d.documentPath(id)
	if err != nil {
		return nil, err
	}
	return readDocument(id, path)
}

// readDocument loads a document file. PDFs report their page count; images are a
// single page.
func readDocument(id, path string) (*raster.Document, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: callers confine or choose the path
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", id, err)
	}

	pageCount := 1
	if raster.IsPDF(data) {
		pageCount, err = raster.PageCountFile(path)
		if err != nil {
			return nil, err
		}
	}
	return &raster.Document{ID: id, Data: data, PageCount: pageCount}, nil
}

// Payload returns the recognizer payload stored next to the document.
func (d *Directory) Payload(ctx context.Context, id string) (*ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	path := filepath.Join(d.Root, id+PayloadSuffix)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: no payload for %s", ErrNotFound, id)
		}
		return nil, err
	}
	return ocr.LoadFile(path)
}

// List returns every document in the directory sorted by identifier.
func (d *Directory) List() ([]Entry, error) {
	entries, err := os.ReadDir(d.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to read document directory: %w", err)
	}

	seen := make(map[string]bool)
	var out []Entry
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !isDocumentFile(name) {
			continue
		}
		id := strings.TrimSuffix(name, filepath.Ext(name))
		if seen[id] {
			continue
		}
		seen[id] = true
		_, statErr := os.Stat(filepath.Join(d.Root, id+PayloadSuffix))
		out = append(out, Entry{ID: id, File: name, HasPayload: statErr == nil})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *Directory) documentPath(id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	for _, ext := range documentExtensions {
		for _, candidate := range []string{id + ext, id + strings.ToUpper(ext)} {
			path := filepath.Join(d.Root, candidate)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, id)
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// isDocumentFile reports whether name is a PDF or a supported single-page image.
func isDocumentFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf") || utils.IsSupportedImage(name)
}
