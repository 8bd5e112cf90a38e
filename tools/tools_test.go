package tools

import (
	"testing"

	"github.com/Fatal777/applyx-pdfedit/coords"
	"github.com/Fatal777/applyx-pdfedit/document"
	"github.com/Fatal777/applyx-pdfedit/engine"
	"github.com/Fatal777/applyx-pdfedit/pdftest"
)

func setup(t *testing.T) (document.Store, *Engine) {
	t.Helper()
	s := document.NewStore(engine.New(), nil)
	if err := s.Load("sample.pdf", pdftest.SamplePDF("John Doe")); err != nil {
		t.Fatalf("load: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	reg, err := StandardRegistry(s)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return s, NewEngine(reg, nil)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&selectTool{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(&selectTool{}); err == nil {
		t.Fatal("duplicate registration accepted")
	}
}

func TestActivateAndCursor(t *testing.T) {
	_, e := setup(t)
	if e.Active() != Select || e.Cursor() != "default" {
		t.Fatalf("initial = %v %q", e.Active(), e.Cursor())
	}
	if err := e.Activate(Draw); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if e.Cursor() != "crosshair" {
		t.Fatalf("cursor = %q", e.Cursor())
	}
	if err := e.Activate("laser"); err == nil {
		t.Fatal("unknown tool accepted")
	}
}

func TestSelectToolIsInert(t *testing.T) {
	s, e := setup(t)
	if err := e.Click(1, 50, 50); err != nil {
		t.Fatalf("click: %v", err)
	}
	if err := e.MouseDown(1, 50, 50); err != nil {
		t.Fatalf("down: %v", err)
	}
	anns, _ := s.Annotations(1)
	if len(anns) != 0 {
		t.Fatalf("annotations = %+v", anns)
	}
}

func TestTextToolSeedsAnnotation(t *testing.T) {
	s, e := setup(t)
	e.SetStyle(Typography{FontFamily: "Georgia", FontSize: 18, Bold: true, DrawColor: "#112233"})
	e.Activate(Text)
	if err := e.Click(1, 120, 240); err != nil {
		t.Fatalf("click: %v", err)
	}
	anns, _ := s.Annotations(1)
	if len(anns) != 1 {
		t.Fatalf("annotations = %+v", anns)
	}
	a := anns[0]
	if a.Kind != document.AnnotationText || a.Text != SeedText {
		t.Fatalf("annotation = %+v", a)
	}
	if a.X != 120 || a.Y != 240 {
		t.Fatalf("position = (%v, %v)", a.X, a.Y)
	}
	if a.Style.FontFamily != "Georgia" || a.Style.FontSize != 18 || !a.Style.Bold || a.Style.Color != "#112233" {
		t.Fatalf("style = %+v", a.Style)
	}
}

func TestDrawToolPolyline(t *testing.T) {
	s, e := setup(t)
	e.Activate(Draw)
	e.MouseDown(1, 10, 10)
	e.MouseMove(1, 20, 15)
	e.MouseMove(1, 30, 20)
	if err := e.MouseUp(1, 40, 25); err != nil {
		t.Fatalf("up: %v", err)
	}
	anns, _ := s.Annotations(1)
	if len(anns) != 1 {
		t.Fatalf("annotations = %+v", anns)
	}
	a := anns[0]
	if a.Kind != document.AnnotationDraw || len(a.Points) != 4 {
		t.Fatalf("annotation = %+v", a)
	}
	if a.Style.StrokeWidth != PenWidth {
		t.Fatalf("stroke width = %v", a.Style.StrokeWidth)
	}
	// Moves without a preceding down are ignored.
	e.MouseMove(1, 99, 99)
	anns, _ = s.Annotations(1)
	if len(anns[0].Points) != 4 {
		t.Fatalf("points grew: %+v", anns[0].Points)
	}
}

func TestHighlightUsesHighlightStyle(t *testing.T) {
	s, e := setup(t)
	e.SetStyle(Typography{DrawColor: "#000000", HighlightColor: "#00FFAA"})
	e.Activate(Highlight)
	e.MouseDown(1, 10, 10)
	e.MouseUp(1, 60, 10)
	anns, _ := s.Annotations(1)
	a := anns[0]
	if a.Kind != document.AnnotationHighlight || a.Style.Color != "#00FFAA" || a.Style.StrokeWidth != HighlightWidth {
		t.Fatalf("annotation = %+v", a)
	}
}

func TestRenderPathScales(t *testing.T) {
	tool := newStrokeTool(Draw, nil)
	got := tool.RenderPath(document.Annotation{
		Points: []coords.Point{{X: 1, Y: 2}, {X: 3, Y: 4}},
	}, 2)
	if got != "M 2 4 L 6 8" {
		t.Fatalf("path = %q", got)
	}
}

func TestRectangleNormalizesBounds(t *testing.T) {
	s, e := setup(t)
	e.SetStyle(Typography{DrawColor: "#FF0000"})
	e.Activate(Rectangle)
	// Dragged up and to the left.
	e.MouseDown(1, 200, 150)
	if err := e.MouseUp(1, 100, 100); err != nil {
		t.Fatalf("up: %v", err)
	}
	anns, _ := s.Annotations(1)
	a := anns[0]
	if a.Kind != document.AnnotationRectangle {
		t.Fatalf("kind = %v", a.Kind)
	}
	if a.X != 100 || a.Y != 100 || a.W != 100 || a.H != 50 {
		t.Fatalf("bounds = %+v", a)
	}
	if a.Style.Color != "#FF0000" {
		t.Fatalf("color = %q", a.Style.Color)
	}
}

func TestCircleTool(t *testing.T) {
	s, e := setup(t)
	e.Activate(Circle)
	e.MouseDown(1, 10, 20)
	e.MouseUp(1, 50, 60)
	anns, _ := s.Annotations(1)
	if anns[0].Kind != document.AnnotationCircle || anns[0].W != 40 || anns[0].H != 40 {
		t.Fatalf("annotation = %+v", anns[0])
	}
}

func TestEraserHitRules(t *testing.T) {
	s, e := setup(t)

	e.Activate(Text)
	e.Click(1, 300, 300) // hit box 300..400 x 300..330

	e.Activate(Rectangle)
	e.MouseDown(1, 100, 100)
	e.MouseUp(1, 200, 150)

	e.Activate(Draw)
	e.MouseDown(1, 150, 120)
	e.MouseUp(1, 160, 125)

	e.Activate(Eraser)

	// Inside the rectangle bbox and within 10 of the draw vertex (150,120):
	// the draw stroke is most recent and wins.
	if err := e.Click(1, 155, 120); err != nil {
		t.Fatalf("erase: %v", err)
	}
	anns, _ := s.Annotations(1)
	if len(anns) != 2 || anns[1].Kind != document.AnnotationRectangle {
		t.Fatalf("survivors = %+v", anns)
	}

	// Still inside the rectangle, no vertex nearby now.
	e.Click(1, 155, 120)
	anns, _ = s.Annotations(1)
	if len(anns) != 1 || anns[0].Kind != document.AnnotationText {
		t.Fatalf("survivors = %+v", anns)
	}

	// Text hit box edge.
	e.Click(1, 399, 329)
	anns, _ = s.Annotations(1)
	if len(anns) != 0 {
		t.Fatalf("survivors = %+v", anns)
	}
}

func TestEraserMissIsNoOp(t *testing.T) {
	s, e := setup(t)
	e.Activate(Rectangle)
	e.MouseDown(1, 100, 100)
	e.MouseUp(1, 200, 150)

	e.Activate(Eraser)
	if err := e.Click(1, 500, 500); err != nil {
		t.Fatalf("erase: %v", err)
	}
	anns, _ := s.Annotations(1)
	if len(anns) != 1 {
		t.Fatalf("annotations = %+v", anns)
	}
	// A miss does not advance history, so undo removes the rectangle add.
	if !s.Undo() {
		t.Fatal("undo failed")
	}
	anns, _ = s.Annotations(1)
	if len(anns) != 0 {
		t.Fatalf("after undo = %+v", anns)
	}
}

func TestEraserHitAdvancesHistory(t *testing.T) {
	s, e := setup(t)
	e.Activate(Rectangle)
	e.MouseDown(1, 100, 100)
	e.MouseUp(1, 200, 150)

	e.Activate(Eraser)
	e.Click(1, 150, 125)
	anns, _ := s.Annotations(1)
	if len(anns) != 0 {
		t.Fatalf("annotations = %+v", anns)
	}
	if !s.Undo() {
		t.Fatal("undo failed")
	}
	anns, _ = s.Annotations(1)
	if len(anns) != 1 {
		t.Fatalf("after undo = %+v", anns)
	}
}
