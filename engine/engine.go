// Package engine provides the PDF primitive the editor core builds on:
// opening a document for page metadata and positioned text content,
// rasterizing page previews, and a byte-level mutation API that overlays
// masks, text and vector paths onto existing pages.
package engine

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/Fatal777/applyx-pdfedit/coords"
	"github.com/Fatal777/applyx-pdfedit/fonts"
)

// ErrInvalidFormat is returned when the input does not begin with the PDF
// magic bytes.
var ErrInvalidFormat = errors.New("engine: invalid format: input is not a PDF")

// ErrResourceExhausted marks rasterization requests that would exceed the
// pixel budget. Callers treat it as a per-page engine failure.
var ErrResourceExhausted = errors.New("engine: rasterization exceeds pixel budget")

// PageError wraps a failure scoped to a single page.
type PageError struct {
	Page int
	Op   string
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("engine: page %d: %s: %v", e.Page, e.Op, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// TextItem is one text item reported by the engine's text layer, in page
// space. Transform places the item's baseline origin; Width and Height are
// unscaled page points. HasEOL marks the last item of a logical line.
type TextItem struct {
	Str       string
	Transform coords.Matrix
	Width     float64
	Height    float64
	HasEOL    bool
}

// Document is a read-only view of a loaded PDF.
type Document interface {
	PageCount() int
	// PageSize returns the natural media-box size of a 1-based page.
	PageSize(page int) (w, h float64, err error)
	// Viewport returns the scaled viewport of a 1-based page.
	Viewport(page int, scale float64) (coords.Viewport, error)
	// TextContent returns the ordered text items of a 1-based page.
	TextContent(page int) ([]TextItem, error)
	// Rasterize renders a preview bitmap of a 1-based page.
	Rasterize(page int, scale float64) (image.Image, error)
	Close() error
}

// Color is an RGB color with components in [0, 1].
type Color struct {
	R, G, B float64
}

// RectOptions configures DrawRectangle.
type RectOptions struct {
	FillColor   *Color
	StrokeColor *Color
	LineWidth   float64
	Alpha       float64 // 0 means opaque
}

// TextOptions configures DrawText.
type TextOptions struct {
	Font     string // resource name returned by EmbedFont
	FontSize float64
	Color    Color
}

// PathOptions configures DrawPath.
type PathOptions struct {
	StrokeColor Color
	LineWidth   float64
	Alpha       float64
}

// MutDoc is a mutable document produced from original bytes. All draw calls
// address 1-based pages in PDF space (y-up, origin bottom-left). Save
// serializes an incremental update; the original bytes are never modified.
type MutDoc interface {
	PageCount() int
	PageSize(page int) (w, h float64, err error)
	// EmbedFont registers a standard font once and returns the resource
	// name to pass in TextOptions.Font. Embedding the same font twice
	// returns the same name.
	EmbedFont(name fonts.Standard) (string, error)
	DrawRectangle(page int, x, y, w, h float64, opts RectOptions) error
	DrawText(page int, text string, x, y float64, opts TextOptions) error
	DrawPath(page int, points []coords.Point, opts PathOptions) error
	DrawEllipse(page int, x, y, w, h float64, opts RectOptions) error
	Save() ([]byte, error)
}

// Engine opens documents and begins mutations.
type Engine interface {
	Open(data []byte) (Document, error)
	BeginMutation(data []byte) (MutDoc, error)
}

// ComposeTransform composes two transforms, applying a before b.
func ComposeTransform(a, b coords.Matrix) coords.Matrix { return a.Mul(b) }

// ValidHeader reports whether data starts with the PDF magic `%PDF-`.
func ValidHeader(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}
