package render

import (
	"math"
	"testing"

	"github.com/Fatal777/applyx-pdfedit/document"
	"github.com/Fatal777/applyx-pdfedit/engine"
	"github.com/Fatal777/applyx-pdfedit/pdftest"
)

func storeWithPages(t *testing.T, pages ...[]string) document.Store {
	t.Helper()
	s := document.NewStore(engine.New(), nil)
	if err := s.Load("sample.pdf", pdftest.MultiPagePDF(pages)); err != nil {
		t.Fatalf("load: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRenderPageStack(t *testing.T) {
	s := storeWithPages(t, []string{"John Doe", "Software Engineer"})
	r := New(s, nil)

	view := r.RenderPage(1)
	if view.Stack == nil {
		t.Fatalf("no stack: %+v", view)
	}
	st := view.Stack
	if st.Width != 612 || st.Height != 792 {
		t.Fatalf("size = %v x %v", st.Width, st.Height)
	}
	if st.Raster == nil || st.Raster.Bounds().Dx() != 612 {
		t.Fatalf("raster = %v", st.Raster)
	}
	if len(st.TextBoxes) != 2 {
		t.Fatalf("text boxes = %+v", st.TextBoxes)
	}
	if st.TextBoxes[0].RunID != "page-1-text-0" || !st.TextBoxes[0].Editable {
		t.Fatalf("box = %+v", st.TextBoxes[0])
	}
}

func TestRenderPageZoomScalesBoxes(t *testing.T) {
	s := storeWithPages(t, []string{"John Doe"})
	r := New(s, nil)

	base := r.RenderPage(1).Stack
	s.SetZoom(150)
	zoomed := r.RenderPage(1).Stack

	if zoomed.Width != 918 || zoomed.Height != 1188 {
		t.Fatalf("zoomed size = %v x %v", zoomed.Width, zoomed.Height)
	}
	b0, b1 := base.TextBoxes[0].Box, zoomed.TextBoxes[0].Box
	if math.Abs(b1.X-1.5*b0.X) > 1e-9 || math.Abs(b1.W-1.5*b0.W) > 1e-9 {
		t.Fatalf("box not scaled: %+v vs %+v", b0, b1)
	}
	if math.Abs(zoomed.TextBoxes[0].FontSize-1.5*base.TextBoxes[0].FontSize) > 1e-9 {
		t.Fatal("font size not scaled")
	}
}

func TestRenderVisibleCulling(t *testing.T) {
	s := storeWithPages(t,
		[]string{"p1"}, []string{"p2"}, []string{"p3"}, []string{"p4"}, []string{"p5"})
	r := New(s, nil)

	views := r.RenderVisible(0, 800)
	if len(views) != 5 {
		t.Fatalf("views = %d", len(views))
	}
	// Window [-396, 1196]: pages 1 (top 0) and 2 (top 792) are inside,
	// page 3 (top 1584) and beyond are placeholders.
	for i, wantStack := range []bool{true, true, false, false, false} {
		if (views[i].Stack != nil) != wantStack {
			t.Fatalf("page %d stacked = %v, want %v", i+1, views[i].Stack != nil, wantStack)
		}
	}
	ph := views[2].Placeholder
	if ph == nil || ph.Width != 612 || ph.Height != 792 || ph.Err != nil {
		t.Fatalf("placeholder = %+v", ph)
	}
}

func TestScrollCoalescing(t *testing.T) {
	s := storeWithPages(t, []string{"p1"}, []string{"p2"}, []string{"p3"})
	r := New(s, nil)

	r.Scroll(700, 800)
	r.Scroll(2, 800)
	r.Scroll(1500, 800) // latest wins
	r.Flush()

	v := s.View()
	if v.CurrentPage != 3 {
		t.Fatalf("current page = %d, want 3 (top 1584 nearest 1500)", v.CurrentPage)
	}

	// Flushing with nothing pending changes nothing.
	r.Flush()
	if got := s.View().CurrentPage; got != 3 {
		t.Fatalf("current page after empty flush = %d", got)
	}
}

func TestScrollPicksNearestPageTop(t *testing.T) {
	s := storeWithPages(t, []string{"p1"}, []string{"p2"})
	r := New(s, nil)

	r.Scroll(700, 800)
	r.Flush()
	if got := s.View().CurrentPage; got != 2 {
		t.Fatalf("current page = %d, want 2", got)
	}
	r.Scroll(100, 800)
	r.Flush()
	if got := s.View().CurrentPage; got != 1 {
		t.Fatalf("current page = %d, want 1", got)
	}
	if v := s.View(); len(v.VisiblePages) == 0 || v.VisiblePages[0] != 1 {
		t.Fatalf("visible pages = %v", v.VisiblePages)
	}
}

func TestJumpToAnchors(t *testing.T) {
	s := storeWithPages(t, []string{"p1"}, []string{"p2"}, []string{"p3"})
	r := New(s, nil)

	top, err := r.JumpTo(3)
	if err != nil {
		t.Fatalf("jump: %v", err)
	}
	if top != 2*792 {
		t.Fatalf("anchor = %v, want %v", top, 2*792)
	}
	if got := s.View().CurrentPage; got != 3 {
		t.Fatalf("current page = %d", got)
	}
	if _, err := r.JumpTo(9); err == nil {
		t.Fatal("expected range error")
	}
}

func TestRenderPageFailurePlaceholder(t *testing.T) {
	s := storeWithPages(t, []string{"p1"})
	r := New(s, nil)

	view := r.RenderPage(5)
	if view.Placeholder == nil || view.Placeholder.Err == nil {
		t.Fatalf("view = %+v", view)
	}
	if view.Placeholder.Width != 612 || view.Placeholder.Height != 792 {
		t.Fatalf("placeholder size = %+v", view.Placeholder)
	}
}

func TestCursorFollowsActiveTool(t *testing.T) {
	s := storeWithPages(t, []string{"p1"})
	r := New(s, nil)
	r.SetCursor("crosshair")
	if got := r.RenderPage(1).Stack.Cursor; got != "crosshair" {
		t.Fatalf("cursor = %q", got)
	}
}
