package export

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/Fatal777/applyx-pdfedit/coords"
	"github.com/Fatal777/applyx-pdfedit/document"
	"github.com/Fatal777/applyx-pdfedit/engine"
	"github.com/Fatal777/applyx-pdfedit/fonts"
	"github.com/Fatal777/applyx-pdfedit/pdfraw"
	"github.com/Fatal777/applyx-pdfedit/pdftest"
)

func buildStore(t *testing.T, lines ...string) document.Store {
	t.Helper()
	s := document.NewStore(engine.New(), nil)
	if err := s.Load("resume.pdf", pdftest.SamplePDF(lines...)); err != nil {
		t.Fatalf("load: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func inputOf(s document.Store) Input {
	return Input{Name: s.Name(), Source: s.SourceBytes(), Snapshot: s.Snapshot()}
}

// overlay returns the appended content stream of page 1 of an exported
// document.
func overlay(t *testing.T, out []byte) []byte {
	t.Helper()
	f, err := pdfraw.Load(out)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	pages, err := f.Pages()
	if err != nil {
		t.Fatalf("pages: %v", err)
	}
	contents, err := f.Resolve(pages[0].Dict[pdfraw.Name("Contents")])
	if err != nil {
		t.Fatalf("contents: %v", err)
	}
	arr, ok := contents.(pdfraw.Array)
	if !ok || len(arr) < 2 {
		t.Fatalf("contents = %v", contents)
	}
	obj, err := f.Resolve(arr[len(arr)-1])
	if err != nil {
		t.Fatalf("overlay: %v", err)
	}
	return obj.(pdfraw.Stream).Raw
}

func TestRenderMasksEditedRun(t *testing.T) {
	s := buildStore(t, "John Doe")
	if _, err := s.UpdateTextRun(1, "page-1-text-0", "Jane Roe"); err != nil {
		t.Fatalf("update: %v", err)
	}

	res, err := Render(context.Background(), engine.New(), nil, inputOf(s), nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if res.PageCount != 1 || len(res.Bytes) == 0 {
		t.Fatalf("result = %+v", res)
	}

	raw := overlay(t, res.Bytes)
	for _, want := range []string{"1 1 1 rg", "(Jane Roe) Tj", "72 722 Td", "0 0 0 rg"} {
		if !bytes.Contains(raw, []byte(want)) {
			t.Fatalf("overlay missing %q:\n%s", want, raw)
		}
	}
	// Mask sits at the run origin in PDF space: y = 792 - 60 - 12.
	m := regexp.MustCompile(`72 720 ([0-9.]+) 14 re`).FindSubmatch(raw)
	if m == nil {
		t.Fatalf("mask rectangle not found:\n%s", raw)
	}
}

func TestRenderMaskWidensForLongReplacement(t *testing.T) {
	s := buildStore(t, "Jo")
	replacement := "A considerably longer replacement string"
	s.UpdateTextRun(1, "page-1-text-0", replacement)

	res, err := Render(context.Background(), engine.New(), nil, inputOf(s), nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	raw := overlay(t, res.Bytes)
	m := regexp.MustCompile(`72 720 ([0-9.]+) 14 re`).FindSubmatch(raw)
	if m == nil {
		t.Fatalf("mask rectangle not found:\n%s", raw)
	}
	w, _ := strconv.ParseFloat(string(m[1]), 64)
	meas := fonts.NewStandardMeasurer(fonts.Helvetica)
	if want := meas.Advance(replacement, 12) + maskPadW; w < want-0.01 {
		t.Fatalf("mask width = %v, want >= %v", w, want)
	}
}

func TestRenderDeterministic(t *testing.T) {
	s := buildStore(t, "John Doe")
	s.UpdateTextRun(1, "page-1-text-0", "Jane Roe")
	s.AddAnnotation(document.Annotation{
		Kind: document.AnnotationRectangle, Page: 1,
		X: 100, Y: 100, W: 100, H: 50,
		Style: document.Style{Color: "#FF0000", StrokeWidth: 2},
	})
	in := inputOf(s)

	a, err := Render(context.Background(), engine.New(), nil, in, nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	b, err := Render(context.Background(), engine.New(), nil, in, nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.Equal(a.Bytes, b.Bytes) {
		t.Fatal("replaying the same input produced different bytes")
	}
}

func TestRenderRectangleAnnotation(t *testing.T) {
	s := buildStore(t, "x")
	s.AddAnnotation(document.Annotation{
		Kind: document.AnnotationRectangle, Page: 1,
		X: 100, Y: 100, W: 100, H: 50,
		Style: document.Style{Color: "#FF0000", StrokeWidth: 2},
	})

	res, err := Render(context.Background(), engine.New(), nil, inputOf(s), nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	raw := overlay(t, res.Bytes)
	// (100,100)-(200,150) screen space lands at PDF y 792-100-50 = 642.
	for _, want := range []string{"1 0 0 RG", "100 642 100 50 re", "2 w"} {
		if !bytes.Contains(raw, []byte(want)) {
			t.Fatalf("overlay missing %q:\n%s", want, raw)
		}
	}
}

func TestRenderHighlightTranslucent(t *testing.T) {
	s := buildStore(t, "x")
	s.AddAnnotation(document.Annotation{
		Kind: document.AnnotationHighlight, Page: 1,
		Points: []coords.Point{{X: 10, Y: 700}, {X: 200, Y: 700}},
		Style:  document.Style{Color: "#FFFF00", StrokeWidth: 12},
	})

	res, err := Render(context.Background(), engine.New(), nil, inputOf(s), nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	raw := overlay(t, res.Bytes)
	for _, want := range []string{"gs", "12 w", "1 1 0 RG"} {
		if !bytes.Contains(raw, []byte(want)) {
			t.Fatalf("overlay missing %q:\n%s", want, raw)
		}
	}
}

func TestRenderTextAnnotationMarkdown(t *testing.T) {
	s := buildStore(t, "x")
	s.AddAnnotation(document.Annotation{
		Kind: document.AnnotationText, Page: 1,
		X: 50, Y: 50,
		Text:  "# Skills\n\n- Go",
		Style: document.Style{Color: "#000000", FontSize: 10},
	})

	res, err := Render(context.Background(), engine.New(), nil, inputOf(s), nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	raw := overlay(t, res.Bytes)
	if !bytes.Contains(raw, []byte("(Skills) Tj")) {
		t.Fatalf("heading missing:\n%s", raw)
	}
	// Bullet prefix survives WinAnsi encoding as 0x95.
	if !bytes.Contains(raw, []byte{'(', 0x95, ' ', 'G', 'o', ')'}) {
		t.Fatalf("bullet line missing:\n%s", raw)
	}
}

func TestRenderBadColor(t *testing.T) {
	s := buildStore(t, "x")
	s.AddAnnotation(document.Annotation{
		Kind: document.AnnotationRectangle, Page: 1,
		X: 1, Y: 1, W: 2, H: 2,
		Style: document.Style{Color: "red"},
	})
	if _, err := Render(context.Background(), engine.New(), nil, inputOf(s), nil); err == nil {
		t.Fatal("expected color error")
	}
}

func TestParseHexColor(t *testing.T) {
	c, err := ParseHexColor("#FF0000")
	if err != nil || c.R != 1 || c.G != 0 || c.B != 0 {
		t.Fatalf("color = %+v, %v", c, err)
	}
	c, err = ParseHexColor("#0F0")
	if err != nil || c.G != 1 {
		t.Fatalf("short form = %+v, %v", c, err)
	}
	if c, err = ParseHexColor(""); err != nil || c != (engine.Color{}) {
		t.Fatalf("empty = %+v, %v", c, err)
	}
	if _, err = ParseHexColor("FF0000"); err == nil {
		t.Fatal("missing # accepted")
	}
	if _, err = ParseHexColor("#XYZZY0"); err == nil {
		t.Fatal("junk accepted")
	}
}

func TestWorkerComplete(t *testing.T) {
	s := buildStore(t, "John Doe")
	s.UpdateTextRun(1, "page-1-text-0", "Jane Roe")

	w := NewWorker(engine.New(), nil)
	job := w.Generate(inputOf(s))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := job.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if res.PageCount != 1 || len(res.Bytes) == 0 {
		t.Fatalf("result = %+v", res)
	}

	var sawGenerate, sawComplete bool
	for done := false; !done; {
		select {
		case m := <-w.Messages():
			if m.JobID != job.ID {
				continue
			}
			switch m.Kind {
			case MsgGenerate:
				sawGenerate = true
			case MsgComplete:
				sawComplete = true
				done = true
			}
		case <-time.After(time.Second):
			done = true
		}
	}
	if !sawGenerate || !sawComplete {
		t.Fatalf("messages: generate=%v complete=%v", sawGenerate, sawComplete)
	}
}

func TestSecondGenerateCancelsFirst(t *testing.T) {
	s := buildStore(t, "John Doe")
	s.UpdateTextRun(1, "page-1-text-0", "Jane Roe")
	in := inputOf(s)

	// A slow font loader holds each job open long enough to supersede.
	w := NewWorker(engine.New(), nil, WithFontLoader(func() (fonts.Measurer, error) {
		time.Sleep(200 * time.Millisecond)
		return fonts.NewStandardMeasurer(fonts.Helvetica), nil
	}))

	first := w.Generate(in)
	second := w.Generate(in)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := first.Wait(ctx); !errors.Is(err, ErrCancelled) {
		t.Fatalf("first err = %v, want Cancelled", err)
	}
	if err := first.Err(); err.Error() != CancelReason {
		t.Fatalf("reason = %q", err)
	}
	res, err := second.Wait(ctx)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if len(res.Bytes) == 0 {
		t.Fatal("second produced no bytes")
	}

	// The first job's complete message is never observed.
	deadline := time.After(time.Second)
	for {
		select {
		case m := <-w.Messages():
			if m.JobID == first.ID && m.Kind == MsgComplete {
				t.Fatal("stale complete message leaked")
			}
			if m.JobID == first.ID && m.Kind == MsgCancel && m.Reason != CancelReason {
				t.Fatalf("cancel reason = %q", m.Reason)
			}
			if m.JobID == second.ID && m.Kind == MsgComplete {
				return
			}
		case <-deadline:
			t.Fatal("no completion for the second job")
		}
	}
}

func TestExplicitCancel(t *testing.T) {
	s := buildStore(t, "x")
	w := NewWorker(engine.New(), nil, WithFontLoader(func() (fonts.Measurer, error) {
		time.Sleep(200 * time.Millisecond)
		return nil, nil
	}))
	job := w.Generate(inputOf(s))
	if !w.Cancel(job.ID) {
		t.Fatal("cancel refused")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := job.Wait(ctx); !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v", err)
	}
	if w.Cancel("nope") {
		t.Fatal("cancelled unknown job")
	}
}

func TestFontTimeoutFallback(t *testing.T) {
	w := NewWorker(engine.New(), nil, WithFontLoader(func() (fonts.Measurer, error) {
		return nil, errors.New("font service down")
	}))
	meas := w.acquireMeasurer()
	if meas == nil {
		t.Fatal("no fallback measurer")
	}
	if meas.Advance("Hello", 12) <= 0 {
		t.Fatal("fallback measurer measures nothing")
	}
}
