package tools

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Fatal777/applyx-pdfedit/coords"
	"github.com/Fatal777/applyx-pdfedit/document"
)

const (
	// SeedText is the placeholder a fresh text annotation starts with.
	SeedText = "Double click to edit"
	// PenWidth is the stroke width of the draw tool.
	PenWidth = 2
	// HighlightWidth is the stroke width of the highlight tool.
	HighlightWidth = 12
	// EraserRadius is how close a click must be to a polyline vertex.
	EraserRadius = 10
	// Text annotations hit-test as a fixed box around their origin.
	textHitW = 100
	textHitH = 30
)

// StandardRegistry registers the seven editor tools against a store.
func StandardRegistry(store document.Store) (*Registry, error) {
	r := NewRegistry()
	for _, t := range []Tool{
		&selectTool{},
		&textTool{store: store},
		newStrokeTool(Draw, store),
		newStrokeTool(Highlight, store),
		&shapeTool{kind: document.AnnotationRectangle, tag: Rectangle, store: store},
		&shapeTool{kind: document.AnnotationCircle, tag: Circle, store: store},
		&eraserTool{store: store},
	} {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// selectTool is inert; it only stands aside so clicks reach the text layer.
type selectTool struct{}

func (*selectTool) Type() Type     { return Select }
func (*selectTool) Cursor() string { return "default" }

type textTool struct {
	store document.Store
}

func (*textTool) Type() Type     { return Text }
func (*textTool) Cursor() string { return "text" }

func (t *textTool) OnClick(ev Event) error {
	_, err := t.store.AddAnnotation(document.Annotation{
		Kind: document.AnnotationText,
		Page: ev.Page,
		X:    ev.X,
		Y:    ev.Y,
		Text: SeedText,
		Style: document.Style{
			Color:      ev.Style.DrawColor,
			FontFamily: ev.Style.FontFamily,
			FontSize:   ev.Style.FontSize,
			Bold:       ev.Style.Bold,
			Italic:     ev.Style.Italic,
			Underline:  ev.Style.Underline,
		},
	})
	return err
}

// strokeTool covers draw and highlight: both accumulate a polyline between
// mouse down and up and commit it as one annotation.
type strokeTool struct {
	tag   Type
	store document.Store

	mu      sync.Mutex
	drawing bool
	points  []coords.Point
}

func newStrokeTool(tag Type, store document.Store) *strokeTool {
	return &strokeTool{tag: tag, store: store}
}

func (t *strokeTool) Type() Type     { return t.tag }
func (t *strokeTool) Cursor() string { return "crosshair" }

func (t *strokeTool) OnMouseDown(ev Event) error {
	t.mu.Lock()
	t.drawing = true
	t.points = []coords.Point{{X: ev.X, Y: ev.Y}}
	t.mu.Unlock()
	return nil
}

func (t *strokeTool) OnMouseMove(ev Event) error {
	t.mu.Lock()
	if t.drawing {
		t.points = append(t.points, coords.Point{X: ev.X, Y: ev.Y})
	}
	t.mu.Unlock()
	return nil
}

func (t *strokeTool) OnMouseUp(ev Event) error {
	t.mu.Lock()
	if !t.drawing {
		t.mu.Unlock()
		return nil
	}
	points := append(t.points, coords.Point{X: ev.X, Y: ev.Y})
	t.drawing = false
	t.points = nil
	t.mu.Unlock()

	kind := document.AnnotationDraw
	color := ev.Style.DrawColor
	width := float64(PenWidth)
	if t.tag == Highlight {
		kind = document.AnnotationHighlight
		color = ev.Style.HighlightColor
		width = HighlightWidth
	}
	_, err := t.store.AddAnnotation(document.Annotation{
		Kind:   kind,
		Page:   ev.Page,
		Points: points,
		Style:  document.Style{Color: color, StrokeWidth: width},
	})
	return err
}

// RenderPath emits the polyline as "M x0 y0 L x1 y1 ..." in screen pixels.
func (t *strokeTool) RenderPath(a document.Annotation, scale float64) string {
	var sb strings.Builder
	for i, p := range a.Points {
		cmd := "L"
		if i == 0 {
			cmd = "M"
		}
		fmt.Fprintf(&sb, "%s %g %g ", cmd, p.X*scale, p.Y*scale)
	}
	return strings.TrimSpace(sb.String())
}

// shapeTool covers rectangle and circle: down records the anchor, up
// commits the normalized bounds.
type shapeTool struct {
	kind  document.AnnotationKind
	tag   Type
	store document.Store

	mu      sync.Mutex
	started bool
	startX  float64
	startY  float64
}

func (t *shapeTool) Type() Type     { return t.tag }
func (t *shapeTool) Cursor() string { return "crosshair" }

func (t *shapeTool) OnMouseDown(ev Event) error {
	t.mu.Lock()
	t.started = true
	t.startX, t.startY = ev.X, ev.Y
	t.mu.Unlock()
	return nil
}

func (t *shapeTool) OnMouseUp(ev Event) error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return nil
	}
	x0, y0 := t.startX, t.startY
	t.started = false
	t.mu.Unlock()

	x, y := min(x0, ev.X), min(y0, ev.Y)
	w, h := max(x0, ev.X)-x, max(y0, ev.Y)-y
	_, err := t.store.AddAnnotation(document.Annotation{
		Kind:  t.kind,
		Page:  ev.Page,
		X:     x,
		Y:     y,
		W:     w,
		H:     h,
		Style: document.Style{Color: ev.Style.DrawColor, StrokeWidth: PenWidth},
	})
	return err
}

type eraserTool struct {
	store document.Store
}

func (*eraserTool) Type() Type     { return Eraser }
func (*eraserTool) Cursor() string { return "pointer" }

// OnClick removes the most recently added annotation hit by the click.
// A miss changes nothing, not even the undo history.
func (t *eraserTool) OnClick(ev Event) error {
	anns, err := t.store.Annotations(ev.Page)
	if err != nil {
		return err
	}
	for i := len(anns) - 1; i >= 0; i-- {
		if hits(anns[i], ev.X, ev.Y) {
			return t.store.RemoveAnnotation(ev.Page, anns[i].ID)
		}
	}
	return nil
}

func hits(a document.Annotation, x, y float64) bool {
	switch a.Kind {
	case document.AnnotationText:
		return x >= a.X && x <= a.X+textHitW && y >= a.Y && y <= a.Y+textHitH
	case document.AnnotationRectangle, document.AnnotationCircle:
		return x >= a.X && x <= a.X+a.W && y >= a.Y && y <= a.Y+a.H
	case document.AnnotationDraw, document.AnnotationHighlight:
		for _, p := range a.Points {
			dx, dy := p.X-x, p.Y-y
			if dx*dx+dy*dy <= EraserRadius*EraserRadius {
				return true
			}
		}
	}
	return false
}
