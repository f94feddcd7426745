// Package pagesource exposes uploaded documents as ordered pages, one adapter
// per document kind.
package pagesource

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/sahilchouksey/study-artifacts/model"
)

var (
	// ErrCorruptDocument is returned when the underlying file cannot be parsed.
	// Adapters never report an unreadable file as a zero-page document.
	ErrCorruptDocument = errors.New("corrupt document")

	// ErrRenderUnsupported is returned by Page.Render for kinds without a raster form
	ErrRenderUnsupported = errors.New("page rendering not supported for this document kind")

	// ErrPageOutOfRange is returned when a requested range exceeds the page count
	ErrPageOutOfRange = errors.New("page range out of bounds")
)

// Page is a single page of an opened document
type Page interface {
	Number() int
	// Text returns the embedded machine-readable text layer ("" when absent)
	Text() (string, error)
	// Render rasterises the page for optical recognition
	Render() (image.Image, error)
}

// Handle is an opened document
type Handle interface {
	PageCount() int
	ReadPages(ctx context.Context, r model.PageRange) ([]Page, error)
	Close() error
}

// TextOnly is implemented by handles whose pages have no raster form
type TextOnly interface {
	TextOnly() bool
}

// CanRender reports whether pages of h can be rasterised for recognition
func CanRender(h Handle) bool {
	t, ok := h.(TextOnly)
	return !ok || !t.TextOnly()
}

// Source opens documents by their source handle
type Source interface {
	Open(ctx context.Context, doc *model.Document) (Handle, error)
}

// Opener parses raw file bytes into a Handle
type Opener func(data []byte) (Handle, error)

// corrupt wraps a parse error so callers can match ErrCorruptDocument
func corrupt(reason string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrCorruptDocument, reason)
	}
	return fmt.Errorf("%w: %s: %v", ErrCorruptDocument, reason, err)
}

// checkRange validates a 1-based inclusive range against the page count
func checkRange(r model.PageRange, pageCount int) error {
	if r.Start < 1 || r.End > pageCount || r.Start > r.End {
		return fmt.Errorf("%w: %s of %d", ErrPageOutOfRange, r, pageCount)
	}
	return nil
}
