package textedit

import (
	"errors"
	"testing"

	"github.com/Fatal777/applyx-pdfedit/document"
	"github.com/Fatal777/applyx-pdfedit/engine"
	"github.com/Fatal777/applyx-pdfedit/pdftest"
)

func setup(t *testing.T, lines ...string) (document.Store, Controller) {
	t.Helper()
	s := document.NewStore(engine.New(), nil)
	if err := s.Load("resume.pdf", pdftest.SamplePDF(lines...)); err != nil {
		t.Fatalf("load: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, New(s, nil)
}

func TestHoverTransitions(t *testing.T) {
	_, c := setup(t, "John Doe")
	const run = "page-1-text-0"

	if c.State(run) != Idle {
		t.Fatalf("state = %v", c.State(run))
	}
	c.PointerEnter(1, run)
	if c.State(run) != Hover {
		t.Fatalf("state = %v, want hover", c.State(run))
	}
	c.PointerLeave(run)
	if c.State(run) != Idle {
		t.Fatalf("state = %v, want idle", c.State(run))
	}
}

func TestCommitFlow(t *testing.T) {
	s, c := setup(t, "John Doe")
	const run = "page-1-text-0"

	if err := c.DoubleClick(1, run); err != nil {
		t.Fatalf("double click: %v", err)
	}
	if c.State(run) != Editing {
		t.Fatalf("state = %v", c.State(run))
	}
	if got := c.Foreground(run); got != EditingForeground {
		t.Fatalf("foreground = %q", got)
	}
	if err := c.Input("Jane Roe"); err != nil {
		t.Fatalf("input: %v", err)
	}
	if err := c.Blur(); err != nil {
		t.Fatalf("blur: %v", err)
	}
	if c.State(run) != Committed {
		t.Fatalf("state = %v, want committed", c.State(run))
	}
	if got := c.Foreground(run); got != CommittedForeground {
		t.Fatalf("foreground = %q", got)
	}

	p, _ := s.GetPage(1)
	if p.Runs[0].Current != "Jane Roe" || !p.Runs[0].Edited {
		t.Fatalf("run = %+v", p.Runs[0])
	}
	if log := s.EditLog(); len(log) != 1 || log[0].NewText != "Jane Roe" {
		t.Fatalf("edit log = %+v", log)
	}

	c.Render()
	if c.State(run) != Idle {
		t.Fatalf("state after render = %v", c.State(run))
	}
}

func TestEscapeReverts(t *testing.T) {
	s, c := setup(t, "John Doe")
	const run = "page-1-text-0"

	c.DoubleClick(1, run)
	c.Input("Jane Roe")
	if err := c.KeyEscape(); err != nil {
		t.Fatalf("escape: %v", err)
	}
	if c.State(run) != Idle {
		t.Fatalf("state = %v", c.State(run))
	}
	if got := c.Foreground(run); got != "" {
		t.Fatalf("foreground not restored: %q", got)
	}
	p, _ := s.GetPage(1)
	if p.Runs[0].Current != "John Doe" || p.Runs[0].Edited {
		t.Fatalf("run = %+v", p.Runs[0])
	}
	if log := s.EditLog(); len(log) != 0 {
		t.Fatalf("edit log = %+v", log)
	}
}

func TestBlurWithoutChangeAppendsNothing(t *testing.T) {
	s, c := setup(t, "John Doe")
	const run = "page-1-text-0"

	c.DoubleClick(1, run)
	c.Blur()
	if log := s.EditLog(); len(log) != 0 {
		t.Fatalf("edit log = %+v", log)
	}
	if c.State(run) != Idle {
		t.Fatalf("state = %v", c.State(run))
	}
}

func TestEnterCommitsShiftEnterInserts(t *testing.T) {
	s, c := setup(t, "John Doe")
	const run = "page-1-text-0"

	c.DoubleClick(1, run)
	c.Input("Jane")
	if err := c.KeyEnter(true); err != nil {
		t.Fatalf("shift+enter: %v", err)
	}
	c.Insert("Roe")
	if buf, _ := c.Buffer(); buf != "Jane\nRoe" {
		t.Fatalf("buffer = %q", buf)
	}
	if err := c.KeyEnter(false); err != nil {
		t.Fatalf("enter: %v", err)
	}
	p, _ := s.GetPage(1)
	if p.Runs[0].Current != "Jane\nRoe" {
		t.Fatalf("run = %q", p.Runs[0].Current)
	}
}

func TestSingleEditingInvariant(t *testing.T) {
	s, c := setup(t, "John Doe", "Software Engineer")
	const first = "page-1-text-0"
	const second = "page-1-text-1"

	c.DoubleClick(1, first)
	c.Input("Jane Roe")

	// Hovering elsewhere is suppressed while a run is being edited.
	c.PointerEnter(1, second)
	if c.State(second) != Idle {
		t.Fatalf("second state = %v", c.State(second))
	}

	// Focusing the second run commits the first before taking over.
	if err := c.DoubleClick(1, second); err != nil {
		t.Fatalf("double click second: %v", err)
	}
	if _, id, ok := c.EditingRun(); !ok || id != second {
		t.Fatalf("editing = %q, %v", id, ok)
	}
	p, _ := s.GetPage(1)
	if p.Runs[0].Current != "Jane Roe" {
		t.Fatalf("first run not committed: %+v", p.Runs[0])
	}
}

func TestBufferOutsideEditing(t *testing.T) {
	_, c := setup(t, "x")
	if err := c.Input("y"); !errors.Is(err, ErrNotEditing) {
		t.Fatalf("err = %v", err)
	}
	if err := c.Blur(); !errors.Is(err, ErrNotEditing) {
		t.Fatalf("err = %v", err)
	}
	if err := c.KeyEscape(); !errors.Is(err, ErrNotEditing) {
		t.Fatalf("err = %v", err)
	}
}

func TestDoubleClickUnknownRun(t *testing.T) {
	_, c := setup(t, "x")
	if err := c.DoubleClick(1, "page-1-text-9"); !errors.Is(err, document.ErrNoSuchRun) {
		t.Fatalf("err = %v", err)
	}
}
