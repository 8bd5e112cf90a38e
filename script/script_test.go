package script

import (
	"context"
	"testing"
	"time"

	"github.com/Fatal777/applyx-pdfedit/document"
	"github.com/Fatal777/applyx-pdfedit/engine"
	"github.com/Fatal777/applyx-pdfedit/pdftest"
)

func setup(t *testing.T, lines ...string) (document.Store, *Engine) {
	t.Helper()
	s := document.NewStore(engine.New(), nil)
	if err := s.Load("resume.pdf", pdftest.SamplePDF(lines...)); err != nil {
		t.Fatalf("load: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	e, err := NewEngine(s, nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return s, e
}

func TestPageCountAndRun(t *testing.T) {
	_, e := setup(t, "John Doe")
	got, err := e.Execute(context.Background(), `doc.pageCount`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if n, ok := got.(int64); !ok || n != 1 {
		t.Fatalf("pageCount = %v (%T)", got, got)
	}

	got, err = e.Execute(context.Background(), `doc.run("page-1-text-0").text`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got != "John Doe" {
		t.Fatalf("text = %v", got)
	}
}

func TestSetTextWritesThrough(t *testing.T) {
	s, e := setup(t, "John Doe")
	_, err := e.Execute(context.Background(), `doc.run("page-1-text-0").setText("Jane Roe")`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	p, _ := s.GetPage(1)
	if p.Runs[0].Current != "Jane Roe" || !p.Runs[0].Edited {
		t.Fatalf("run = %+v", p.Runs[0])
	}
	if log := s.EditLog(); len(log) != 1 {
		t.Fatalf("edit log = %+v", log)
	}

	// Property assignment goes through the same path.
	_, err = e.Execute(context.Background(), `doc.run("page-1-text-0").text = "Back"`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	p, _ = s.GetPage(1)
	if p.Runs[0].Current != "Back" {
		t.Fatalf("run = %+v", p.Runs[0])
	}
}

func TestFindTextFirstUnmatched(t *testing.T) {
	_, e := setup(t, "Go developer", "Go reviewer")
	got, err := e.Execute(context.Background(), `
		var a = doc.findText("Go");
		var b = doc.findText("Go");
		var c = doc.findText("Go");
		[a.id, b.id, c]
	`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	arr, ok := got.([]interface{})
	if !ok || len(arr) != 3 {
		t.Fatalf("result = %v (%T)", got, got)
	}
	if arr[0] != "page-1-text-0" || arr[1] != "page-1-text-1" {
		t.Fatalf("ids = %v", arr)
	}
	if arr[2] != nil {
		t.Fatalf("third match = %v, want null", arr[2])
	}
}

func TestRunObjectResultCollapsesToID(t *testing.T) {
	// A script ending on a run object must come back as plain JSON data,
	// not a map holding method values.
	_, e := setup(t, "John Doe")
	got, err := e.Execute(context.Background(), `doc.findText("John Doe")`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got != "page-1-text-0" {
		t.Fatalf("result = %v (%T), want run id", got, got)
	}
	got, err = e.Execute(context.Background(), `[doc.run("page-1-text-0")]`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	arr, ok := got.([]interface{})
	if !ok || len(arr) != 1 || arr[0] != "page-1-text-0" {
		t.Fatalf("array result = %v (%T)", got, got)
	}
}

func TestAddAnnotationFromScript(t *testing.T) {
	s, e := setup(t, "x")
	got, err := e.Execute(context.Background(), `
		doc.addAnnotation({kind: "rectangle", page: 1, x: 100, y: 100, w: 100, h: 50, color: "#FF0000", strokeWidth: 2})
	`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	id, ok := got.(string)
	if !ok || id == "" {
		t.Fatalf("id = %v", got)
	}
	anns, _ := s.Annotations(1)
	if len(anns) != 1 {
		t.Fatalf("annotations = %+v", anns)
	}
	a := anns[0]
	if a.Kind != document.AnnotationRectangle || a.X != 100 || a.W != 100 || a.Style.Color != "#FF0000" {
		t.Fatalf("annotation = %+v", a)
	}
}

func TestAddAnnotationRejectsUnknownKind(t *testing.T) {
	_, e := setup(t, "x")
	if _, err := e.Execute(context.Background(), `doc.addAnnotation({kind: "wat", page: 1})`); err == nil {
		t.Fatal("expected error")
	}
}

func TestExecuteInterrupt(t *testing.T) {
	_, e := setup(t, "x")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := e.Execute(ctx, `while (true) {}`)
	if err == nil {
		t.Fatal("runaway script returned")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("interrupt took too long")
	}
}

func TestAppLog(t *testing.T) {
	_, e := setup(t, "x")
	if _, err := e.Execute(context.Background(), `app.log("hello")`); err != nil {
		t.Fatalf("execute: %v", err)
	}
}
