package document

import (
	"errors"
	"testing"

	"github.com/Fatal777/applyx-pdfedit/coords"
	"github.com/Fatal777/applyx-pdfedit/engine"
	"github.com/Fatal777/applyx-pdfedit/pdftest"
)

func loadSample(t *testing.T, lines ...string) Store {
	t.Helper()
	s := NewStore(engine.New(), nil)
	if err := s.Load("resume.pdf", pdftest.SamplePDF(lines...)); err != nil {
		t.Fatalf("load: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadRejectsInvalidHeader(t *testing.T) {
	s := NewStore(engine.New(), nil)
	err := s.Load("bad.bin", []byte("GIF89a..."))
	if !errors.Is(err, engine.ErrInvalidFormat) {
		t.Fatalf("err = %v, want ErrInvalidFormat", err)
	}
}

func TestLoadSampleInitialState(t *testing.T) {
	s := loadSample(t, "John Doe")
	if s.PageCount() != 1 {
		t.Fatalf("page count = %d", s.PageCount())
	}
	v := s.View()
	if v.CurrentPage != 1 || v.Zoom != 100 {
		t.Fatalf("view = %+v, want page 1 zoom 100", v)
	}
}

func TestGetPageRecovery(t *testing.T) {
	s := loadSample(t, "John Doe")
	p, err := s.GetPage(1)
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	if p.Width != 612 || p.Height != 792 {
		t.Fatalf("size = %v x %v", p.Width, p.Height)
	}
	if len(p.Runs) == 0 {
		t.Fatal("no runs recovered")
	}
	run := p.Runs[0]
	if run.ID != "page-1-text-0" {
		t.Fatalf("run id = %q", run.ID)
	}
	if run.Original != "John Doe" || run.Current != "John Doe" {
		t.Fatalf("run = %+v", run)
	}
	if !run.Editable || run.Edited {
		t.Fatalf("flags = editable %v edited %v", run.Editable, run.Edited)
	}
	if run.Box.W <= 0 || run.Box.H <= 0 {
		t.Fatalf("degenerate box %+v", run.Box)
	}
	if _, err := s.GetPage(2); !errors.Is(err, ErrNoSuchPage) {
		t.Fatalf("page 2 err = %v", err)
	}
}

func TestUpdateTextRunAppendsOnce(t *testing.T) {
	s := loadSample(t, "John Doe")
	changed, err := s.UpdateTextRun(1, "page-1-text-0", "Jane Roe")
	if err != nil || !changed {
		t.Fatalf("update = %v, %v", changed, err)
	}
	// Same text again is an idempotent no-op.
	changed, err = s.UpdateTextRun(1, "page-1-text-0", "Jane Roe")
	if err != nil || changed {
		t.Fatalf("repeat update = %v, %v", changed, err)
	}
	log := s.EditLog()
	if len(log) != 1 {
		t.Fatalf("edit log = %+v", log)
	}
	op := log[0]
	if op.Page != 1 || op.RunID != "page-1-text-0" || op.Original != "John Doe" || op.NewText != "Jane Roe" {
		t.Fatalf("op = %+v", op)
	}
	p, _ := s.GetPage(1)
	if p.Runs[0].Current != "Jane Roe" || !p.Runs[0].Edited {
		t.Fatalf("run = %+v", p.Runs[0])
	}
}

func TestUpdateTextRunRevertClearsLog(t *testing.T) {
	s := loadSample(t, "John Doe")
	s.UpdateTextRun(1, "page-1-text-0", "Jane Roe")
	changed, err := s.UpdateTextRun(1, "page-1-text-0", "John Doe")
	if err != nil || !changed {
		t.Fatalf("revert = %v, %v", changed, err)
	}
	if log := s.EditLog(); len(log) != 0 {
		t.Fatalf("edit log after revert = %+v", log)
	}
	p, _ := s.GetPage(1)
	if p.Runs[0].Edited {
		t.Fatal("run still flagged edited after revert")
	}
}

func TestUpdateTextRunUnknown(t *testing.T) {
	s := loadSample(t, "x")
	if _, err := s.UpdateTextRun(1, "page-1-text-99", "y"); !errors.Is(err, ErrNoSuchRun) {
		t.Fatalf("err = %v", err)
	}
}

func TestZoomClamping(t *testing.T) {
	s := loadSample(t, "x")
	cases := []struct{ in, want int }{
		{200, 150}, {150, 150}, {155, 150}, {44, 50}, {50, 50},
		{123, 120}, {127, 130}, {100, 100},
	}
	for _, c := range cases {
		if got := s.SetZoom(c.in); got != c.want {
			t.Fatalf("SetZoom(%d) = %d, want %d", c.in, got, c.want)
		}
	}
	s.SetZoom(150)
	if got := s.ZoomIn(); got != 150 {
		t.Fatalf("ZoomIn at max = %d", got)
	}
	s.SetZoom(50)
	if got := s.ZoomOut(); got != 50 {
		t.Fatalf("ZoomOut at min = %d", got)
	}
	s.SetZoom(100)
	if got := s.ZoomIn(); got != 110 {
		t.Fatalf("ZoomIn = %d", got)
	}
	if got := s.ZoomOut(); got != 100 {
		t.Fatalf("ZoomOut = %d", got)
	}
}

func TestAnnotationLifecycle(t *testing.T) {
	s := loadSample(t, "x")
	a, err := s.AddAnnotation(Annotation{
		Kind: AnnotationRectangle, Page: 1,
		X: 100, Y: 100, W: 100, H: 50,
		Style: Style{Color: "#FF0000", StrokeWidth: 2},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if a.ID == "" {
		t.Fatal("no id assigned")
	}
	b, _ := s.AddAnnotation(Annotation{Kind: AnnotationCircle, Page: 1, X: 10, Y: 10, W: 20, H: 20})
	c, _ := s.AddAnnotation(Annotation{Kind: AnnotationText, Page: 1, X: 5, Y: 5, Text: "note"})

	if err := s.RemoveAnnotation(1, b.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	anns, _ := s.Annotations(1)
	if len(anns) != 2 || anns[0].ID != a.ID || anns[1].ID != c.ID {
		t.Fatalf("survivors out of order: %+v", anns)
	}

	a.Style.Color = "#00FF00"
	if err := s.UpdateAnnotation(a); err != nil {
		t.Fatalf("update: %v", err)
	}
	anns, _ = s.Annotations(1)
	if anns[0].Style.Color != "#00FF00" {
		t.Fatalf("update not applied: %+v", anns[0])
	}

	if err := s.RemoveAnnotation(1, "annot-404"); !errors.Is(err, ErrNoSuchAnnotation) {
		t.Fatalf("err = %v", err)
	}
}

func TestAnnotationPageBounds(t *testing.T) {
	s := loadSample(t, "x")
	if _, err := s.AddAnnotation(Annotation{Kind: AnnotationDraw, Page: 7}); !errors.Is(err, ErrNoSuchPage) {
		t.Fatalf("err = %v", err)
	}
}

func TestUndoRedoAnnotations(t *testing.T) {
	s := loadSample(t, "x")
	a, _ := s.AddAnnotation(Annotation{Kind: AnnotationRectangle, Page: 1, X: 1, Y: 2, W: 3, H: 4})
	s.AddAnnotation(Annotation{Kind: AnnotationCircle, Page: 1, X: 5, Y: 6, W: 7, H: 8})

	if !s.Undo() {
		t.Fatal("undo failed")
	}
	anns, _ := s.Annotations(1)
	if len(anns) != 1 || anns[0].ID != a.ID {
		t.Fatalf("after undo: %+v", anns)
	}
	if !s.Redo() {
		t.Fatal("redo failed")
	}
	anns, _ = s.Annotations(1)
	if len(anns) != 2 {
		t.Fatalf("after redo: %+v", anns)
	}
	s.Undo()
	s.Undo()
	anns, _ = s.Annotations(1)
	if len(anns) != 0 {
		t.Fatalf("after full undo: %+v", anns)
	}
	if s.Undo() {
		t.Fatal("undo past the beginning")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := loadSample(t, "John Doe")
	s.GetPage(1)
	s.AddAnnotation(Annotation{Kind: AnnotationDraw, Page: 1, Points: []coords.Point{{X: 1, Y: 1}, {X: 2, Y: 2}}})

	snap := s.Snapshot()
	if snap.PageCount != 1 || len(snap.Pages) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	snap.Pages[0].Runs[0].Current = "tampered"
	snap.Pages[0].Annotations[0].Points[0].X = 99

	p, _ := s.GetPage(1)
	if p.Runs[0].Current == "tampered" {
		t.Fatal("snapshot shares run storage with the store")
	}
	if p.Annotations[0].Points[0].X == 99 {
		t.Fatal("snapshot shares point storage with the store")
	}
}
