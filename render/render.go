// Package render composes the per-page layer stack at the current zoom:
// a raster layer under a pointer-reactive text layer under the annotation
// layer. It also owns visibility culling, current-page tracking, and the
// scaled screen boxes recovered text runs occupy.
package render

import (
	"fmt"
	"image"
	"sync"

	"github.com/Fatal777/applyx-pdfedit/coords"
	"github.com/Fatal777/applyx-pdfedit/document"
	"github.com/Fatal777/applyx-pdfedit/observability"
)

// Layer z-order, bottom to top.
const (
	ZRaster     = 1
	ZText       = 2
	ZAnnotation = 3
)

// TextBox is one inline box on the text layer, positioned in screen pixels
// at the current zoom so selection aligns with the rasterized glyphs.
type TextBox struct {
	RunID    string
	Text     string
	Box      coords.Rect
	FontSize float64
	Editable bool
	Edited   bool
}

// LayerStack is the composed view of one page.
type LayerStack struct {
	Page   int
	Width  float64 // naturalWidth * zoom
	Height float64 // naturalHeight * zoom

	Raster      image.Image
	TextBoxes   []TextBox
	Annotations []document.Annotation // page points; multiply by Scale to place
	Scale       float64
	Cursor      string
}

// Placeholder stands in for a page outside the visible window or one whose
// rendering failed. Its dimensions preserve scroll geometry.
type Placeholder struct {
	Page   int
	Width  float64
	Height float64
	Err    error
}

// PageView is either a full layer stack or a placeholder.
type PageView struct {
	Stack       *LayerStack
	Placeholder *Placeholder
}

// Renderer builds page views and tracks scroll-driven visibility.
type Renderer interface {
	RenderPage(page int) PageView
	// RenderVisible renders every page, culling to the window around
	// scrollTop and returning placeholders for the rest.
	RenderVisible(scrollTop, viewportH float64) []PageView

	// Scroll records a scroll position; successive calls coalesce and
	// Flush applies only the latest.
	Scroll(scrollTop, viewportH float64)
	Flush()

	// JumpTo returns the scroll anchor for a 1-based page.
	JumpTo(page int) (float64, error)
	PageTop(page int) (float64, error)

	SetCursor(cursor string)
}

type renderer struct {
	store  document.Store
	logger observability.Logger

	mu      sync.Mutex
	cursor  string
	pending *scrollEvent
}

type scrollEvent struct {
	top       float64
	viewportH float64
}

// New builds a renderer over the store.
func New(store document.Store, logger observability.Logger) Renderer {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &renderer{store: store, logger: logger}
}

func (r *renderer) scale() float64 {
	return float64(r.store.View().Zoom) / 100
}

func (r *renderer) RenderPage(page int) PageView {
	scale := r.scale()
	p, err := r.store.GetPage(page)
	if err != nil {
		return r.placeholder(page, scale, err)
	}
	img, err := r.store.Rasterize(page, scale)
	if err != nil {
		return r.placeholder(page, scale, err)
	}

	stack := &LayerStack{
		Page:        page,
		Width:       p.Width * scale,
		Height:      p.Height * scale,
		Raster:      img,
		Annotations: p.Annotations,
		Scale:       scale,
		Cursor:      r.currentCursor(),
	}
	for _, run := range p.Runs {
		stack.TextBoxes = append(stack.TextBoxes, TextBox{
			RunID: run.ID,
			Text:  run.Current,
			Box: coords.Rect{
				X: run.Box.X * scale,
				Y: run.Box.Y * scale,
				W: run.Box.W * scale,
				H: run.Box.H * scale,
			},
			FontSize: run.FontSize * scale,
			Editable: run.Editable,
			Edited:   run.Edited,
		})
	}
	return PageView{Stack: stack}
}

// placeholder keeps the page's scroll footprint even when rendering fails.
func (r *renderer) placeholder(page int, scale float64, err error) PageView {
	w, h, serr := r.store.PageSize(page)
	if serr != nil {
		w, h = 612, 792
	}
	if err != nil {
		r.logger.Warn("page render degraded",
			observability.Int("page", page),
			observability.Error(err))
	}
	return PageView{Placeholder: &Placeholder{
		Page:   page,
		Width:  w * scale,
		Height: h * scale,
		Err:    err,
	}}
}

func (r *renderer) RenderVisible(scrollTop, viewportH float64) []PageView {
	visible := r.visibleSet(scrollTop, viewportH)
	views := make([]PageView, 0, r.store.PageCount())
	for i := 1; i <= r.store.PageCount(); i++ {
		if visible[i] {
			views = append(views, r.RenderPage(i))
		} else {
			views = append(views, r.placeholder(i, r.scale(), nil))
		}
	}
	return views
}

// visibleSet applies the culling window
// [scrollTop - 0.5*pageH, scrollTop + viewportH + 0.5*pageH].
func (r *renderer) visibleSet(scrollTop, viewportH float64) map[int]bool {
	scale := r.scale()
	visible := make(map[int]bool)
	top := 0.0
	for i := 1; i <= r.store.PageCount(); i++ {
		_, h, err := r.store.PageSize(i)
		if err != nil {
			h = 792
		}
		ph := h * scale
		lo := scrollTop - 0.5*ph
		hi := scrollTop + viewportH + 0.5*ph
		if top+ph > lo && top < hi {
			visible[i] = true
		}
		top += ph
	}
	return visible
}

func (r *renderer) Scroll(scrollTop, viewportH float64) {
	r.mu.Lock()
	r.pending = &scrollEvent{top: scrollTop, viewportH: viewportH}
	r.mu.Unlock()
}

// Flush applies the latest recorded scroll position: current page becomes
// the page whose top is closest to the viewport top, and the visible set
// is refreshed. Intermediate positions recorded since the last flush are
// dropped.
func (r *renderer) Flush() {
	r.mu.Lock()
	ev := r.pending
	r.pending = nil
	r.mu.Unlock()
	if ev == nil {
		return
	}

	current, bestDist := 1, -1.0
	top := 0.0
	scale := r.scale()
	for i := 1; i <= r.store.PageCount(); i++ {
		_, h, err := r.store.PageSize(i)
		if err != nil {
			h = 792
		}
		d := top - ev.top
		if d < 0 {
			d = -d
		}
		if bestDist < 0 || d < bestDist {
			current, bestDist = i, d
		}
		top += h * scale
	}
	if err := r.store.SetCurrentPage(current); err != nil {
		return
	}
	set := r.visibleSet(ev.top, ev.viewportH)
	pages := make([]int, 0, len(set))
	for i := 1; i <= r.store.PageCount(); i++ {
		if set[i] {
			pages = append(pages, i)
		}
	}
	r.store.SetVisiblePages(pages)
}

func (r *renderer) PageTop(page int) (float64, error) {
	if page < 1 || page > r.store.PageCount() {
		return 0, fmt.Errorf("render: page %d out of range", page)
	}
	scale := r.scale()
	top := 0.0
	for i := 1; i < page; i++ {
		_, h, err := r.store.PageSize(i)
		if err != nil {
			h = 792
		}
		top += h * scale
	}
	return top, nil
}

// JumpTo anchors a programmatic page jump at (page-1) page heights.
func (r *renderer) JumpTo(page int) (float64, error) {
	top, err := r.PageTop(page)
	if err != nil {
		return 0, err
	}
	if err := r.store.SetCurrentPage(page); err != nil {
		return 0, err
	}
	return top, nil
}

func (r *renderer) SetCursor(cursor string) {
	r.mu.Lock()
	r.cursor = cursor
	r.mu.Unlock()
}

func (r *renderer) currentCursor() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}
