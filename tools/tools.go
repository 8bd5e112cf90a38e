// Package tools dispatches pointer events on the annotation layer to tool
// implementations. The registry is an injected collaborator, never a
// package singleton, so two editors in one process stay independent.
package tools

import (
	"fmt"
	"sync"

	"github.com/Fatal777/applyx-pdfedit/document"
	"github.com/Fatal777/applyx-pdfedit/observability"
)

// Type tags a tool.
type Type string

const (
	Select    Type = "select"
	Text      Type = "text"
	Draw      Type = "draw"
	Highlight Type = "highlight"
	Rectangle Type = "rectangle"
	Circle    Type = "circle"
	Eraser    Type = "eraser"
)

// Typography is the live style configuration captured into annotations at
// creation time.
type Typography struct {
	FontFamily     string
	FontSize       float64
	Bold           bool
	Italic         bool
	Underline      bool
	DrawColor      string
	HighlightColor string
}

// DefaultTypography mirrors the editor's initial toolbar state.
func DefaultTypography() Typography {
	return Typography{
		FontFamily:     "Helvetica",
		FontSize:       14,
		DrawColor:      "#000000",
		HighlightColor: "#FFFF00",
	}
}

// Event is one pointer event in page points (pre-zoom).
type Event struct {
	Page  int
	X, Y  float64
	Style Typography
}

// Tool declares a type tag and a cursor. Behavior is added through the
// optional handler interfaces below; the dispatcher probes for them.
type Tool interface {
	Type() Type
	Cursor() string
}

// MouseDownHandler receives the start of a drag.
type MouseDownHandler interface {
	OnMouseDown(ev Event) error
}

// MouseMoveHandler receives drag motion between down and up.
type MouseMoveHandler interface {
	OnMouseMove(ev Event) error
}

// MouseUpHandler finalizes a drag.
type MouseUpHandler interface {
	OnMouseUp(ev Event) error
}

// ClickHandler receives plain clicks.
type ClickHandler interface {
	OnClick(ev Event) error
}

// PathRenderer turns a polyline annotation into the path the annotation
// layer draws, already scaled to screen pixels.
type PathRenderer interface {
	RenderPath(a document.Annotation, scale float64) string
}

// Registry maps tool types to implementations.
type Registry struct {
	mu    sync.Mutex
	tools map[Type]Tool
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[Type]Tool)}
}

// Register adds a tool, rejecting duplicate type tags.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[t.Type()]; ok {
		return fmt.Errorf("tools: %q already registered", t.Type())
	}
	r.tools[t.Type()] = t
	return nil
}

// Get looks a tool up by type.
func (r *Registry) Get(t Type) (Tool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tool, ok := r.tools[t]
	return tool, ok
}

// Engine holds the active tool and typography and forwards events to
// whichever handler interfaces the tool implements. Unhandled events are
// no-ops.
type Engine struct {
	registry *Registry
	logger   observability.Logger

	mu     sync.Mutex
	active Type
	style  Typography
}

// NewEngine wires a dispatcher to an injected registry.
func NewEngine(registry *Registry, logger observability.Logger) *Engine {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Engine{
		registry: registry,
		logger:   logger,
		active:   Select,
		style:    DefaultTypography(),
	}
}

// Activate switches the active tool.
func (e *Engine) Activate(t Type) error {
	if _, ok := e.registry.Get(t); !ok {
		return fmt.Errorf("tools: unknown tool %q", t)
	}
	e.mu.Lock()
	e.active = t
	e.mu.Unlock()
	e.logger.Debug("tool activated", observability.String("tool", string(t)))
	return nil
}

// Active returns the current tool type.
func (e *Engine) Active() Type {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Cursor returns the active tool's cursor shape for the annotation layer.
func (e *Engine) Cursor() string {
	tool, ok := e.registry.Get(e.Active())
	if !ok {
		return "default"
	}
	return tool.Cursor()
}

// SetStyle replaces the live typography configuration.
func (e *Engine) SetStyle(s Typography) {
	e.mu.Lock()
	e.style = s
	e.mu.Unlock()
}

// Style returns the live typography configuration.
func (e *Engine) Style() Typography {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.style
}

func (e *Engine) event(page int, x, y float64) Event {
	return Event{Page: page, X: x, Y: y, Style: e.Style()}
}

// MouseDown forwards a drag start to the active tool.
func (e *Engine) MouseDown(page int, x, y float64) error {
	if h, ok := e.activeTool().(MouseDownHandler); ok {
		return h.OnMouseDown(e.event(page, x, y))
	}
	return nil
}

// MouseMove forwards drag motion to the active tool.
func (e *Engine) MouseMove(page int, x, y float64) error {
	if h, ok := e.activeTool().(MouseMoveHandler); ok {
		return h.OnMouseMove(e.event(page, x, y))
	}
	return nil
}

// MouseUp forwards a drag end to the active tool.
func (e *Engine) MouseUp(page int, x, y float64) error {
	if h, ok := e.activeTool().(MouseUpHandler); ok {
		return h.OnMouseUp(e.event(page, x, y))
	}
	return nil
}

// Click forwards a plain click to the active tool.
func (e *Engine) Click(page int, x, y float64) error {
	if h, ok := e.activeTool().(ClickHandler); ok {
		return h.OnClick(e.event(page, x, y))
	}
	return nil
}

func (e *Engine) activeTool() Tool {
	tool, _ := e.registry.Get(e.Active())
	return tool
}
