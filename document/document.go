// Package document holds the authoritative in-memory model of a loaded PDF:
// source bytes, per-page metadata with recovered text runs, the edit log,
// annotations, and view state. All mutation goes through a single Store so
// observers see consistent snapshots.
package document

import (
	"fmt"
	"time"

	"github.com/Fatal777/applyx-pdfedit/coords"
)

// TextRun is one text item recovered from a page, the atomic unit of
// editable text. The bounding box is in page points with a top-left origin
// (screen orientation at zoom 100%).
type TextRun struct {
	ID       string
	Original string
	Current  string
	Box      coords.Rect
	FontSize float64
	Ascent   float64
	Descent  float64
	HasEOL   bool
	Edited   bool
	Editable bool
}

// AnnotationKind tags user-drawn content.
type AnnotationKind string

const (
	AnnotationText      AnnotationKind = "text"
	AnnotationDraw      AnnotationKind = "draw"
	AnnotationHighlight AnnotationKind = "highlight"
	AnnotationRectangle AnnotationKind = "rectangle"
	AnnotationCircle    AnnotationKind = "circle"
)

// Style carries the typography and stroke configuration captured when an
// annotation is created.
type Style struct {
	Color       string // hex, e.g. "#FF0000"
	StrokeWidth float64
	FontFamily  string
	FontSize    float64
	Bold        bool
	Italic      bool
	Underline   bool
}

// Annotation is a user-drawn mark on one page. Geometry is stored in page
// points; rendering multiplies by zoom.
type Annotation struct {
	ID     string
	Kind   AnnotationKind
	Page   int
	X, Y   float64
	W, H   float64
	Points []coords.Point
	Style  Style
	Text   string
}

func (a Annotation) clone() Annotation {
	if a.Points != nil {
		a.Points = append([]coords.Point(nil), a.Points...)
	}
	return a
}

// EditOperation records one committed text replacement. The log is the
// source of truth for export and is replayed in commit order.
type EditOperation struct {
	Page        int
	RunID       string
	Original    string
	NewText     string
	CommittedAt time.Time
}

// ViewState tracks what the UI is looking at.
type ViewState struct {
	CurrentPage  int
	Zoom         int // percent
	VisiblePages []int
	SelectedRun  string
}

// Page is the lazily built metadata for one page.
type Page struct {
	Index       int
	Width       float64
	Height      float64
	Runs        []TextRun
	Annotations []Annotation
}

// Snapshot is a read-only copy of the store state handed to observers and
// to the export worker.
type Snapshot struct {
	Name      string
	PageCount int
	View      ViewState
	Pages     []Page
	EditLog   []EditOperation
}

// RunID formats the stable id of the k-th run on a page, counting from 0.
func RunID(page, k int) string {
	return fmt.Sprintf("page-%d-text-%d", page, k)
}

const (
	// MinZoom and MaxZoom bound the zoom percentage; ZoomStep is the
	// granularity of every zoom change.
	MinZoom  = 50
	MaxZoom  = 150
	ZoomStep = 10
)

// ClampZoom snaps z to the nearest step inside [MinZoom, MaxZoom].
func ClampZoom(z int) int {
	if z < MinZoom {
		return MinZoom
	}
	if z > MaxZoom {
		return MaxZoom
	}
	r := z % ZoomStep
	if r == 0 {
		return z
	}
	if r >= ZoomStep/2 {
		return z - r + ZoomStep
	}
	return z - r
}
