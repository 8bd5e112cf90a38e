// Package export turns the edit log and annotations back into PDF bytes.
// Rendering is a pure function of its inputs: the same source, log, and
// annotations always produce byte-equal output.
package export

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Fatal777/applyx-pdfedit/coords"
	"github.com/Fatal777/applyx-pdfedit/document"
	"github.com/Fatal777/applyx-pdfedit/engine"
	"github.com/Fatal777/applyx-pdfedit/fonts"
	"github.com/Fatal777/applyx-pdfedit/richtext"
)

const (
	// Mask padding around the original glyph box.
	maskPadW = 5
	maskPadH = 2
	// Baseline lift of the replacement text inside the mask.
	textLift = 2

	defaultAnnotationFontSize = 14
)

// Input is the immutable payload a job renders. The snapshot carries the
// run geometry the edit log refers to and the per-page annotation lists.
type Input struct {
	Name     string
	Source   []byte
	Snapshot document.Snapshot
}

// Result is the rendered document.
type Result struct {
	Bytes     []byte
	PageCount int
}

// Render replays the snapshot onto the source bytes. progress may be nil;
// otherwise it receives fractions in (0, 1]. The first error aborts the
// whole render, no partial output is returned.
func Render(ctx context.Context, eng engine.Engine, meas fonts.Measurer, in Input, progress func(float64)) (Result, error) {
	if progress == nil {
		progress = func(float64) {}
	}
	if meas == nil {
		meas = fonts.NewStandardMeasurer(fonts.Helvetica)
	}

	doc, err := eng.BeginMutation(in.Source)
	if err != nil {
		return Result{}, err
	}

	runs := runIndex(in.Snapshot)
	total := len(in.Snapshot.EditLog)
	for _, p := range in.Snapshot.Pages {
		total += len(p.Annotations)
	}
	done := 0
	step := func() {
		done++
		progress(float64(done) / float64(total+1))
	}

	var fontRes string
	ensureFont := func() error {
		if fontRes != "" {
			return nil
		}
		fontRes, err = doc.EmbedFont(fonts.Helvetica)
		return err
	}

	for _, op := range in.Snapshot.EditLog {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		run, ok := runs[op.RunID]
		if !ok {
			return Result{}, fmt.Errorf("export: edit references unknown run %s", op.RunID)
		}
		if err := ensureFont(); err != nil {
			return Result{}, err
		}
		if err := maskAndRedraw(doc, meas, fontRes, op, run); err != nil {
			return Result{}, err
		}
		step()
	}

	for _, p := range in.Snapshot.Pages {
		_, pageH, err := doc.PageSize(p.Index)
		if err != nil {
			return Result{}, err
		}
		for _, a := range p.Annotations {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			if a.Kind == document.AnnotationText {
				if err := ensureFont(); err != nil {
					return Result{}, err
				}
			}
			if err := drawAnnotation(doc, fontRes, a, pageH); err != nil {
				return Result{}, err
			}
			step()
		}
	}

	out, err := doc.Save()
	if err != nil {
		return Result{}, err
	}
	progress(1)
	return Result{Bytes: out, PageCount: in.Snapshot.PageCount}, nil
}

func runIndex(snap document.Snapshot) map[string]runGeometry {
	runs := make(map[string]runGeometry)
	for _, p := range snap.Pages {
		for _, r := range p.Runs {
			runs[r.ID] = runGeometry{box: r.Box, fontSize: r.FontSize, pageH: p.Height}
		}
	}
	return runs
}

type runGeometry struct {
	box      coords.Rect
	fontSize float64
	pageH    float64
}

// maskAndRedraw covers the original glyphs with an opaque white rectangle
// and draws the replacement string over it in black Helvetica. The mask
// widens when the replacement measures wider than the original box.
func maskAndRedraw(doc engine.MutDoc, meas fonts.Measurer, fontRes string, op document.EditOperation, run runGeometry) error {
	yPDF := coords.ToPDFY(run.pageH, run.box.Y, run.box.H)

	maskW := run.box.W
	if tw := meas.Advance(op.NewText, run.fontSize); tw > maskW {
		maskW = tw
	}
	white := engine.Color{R: 1, G: 1, B: 1}
	err := doc.DrawRectangle(op.Page, run.box.X, yPDF, maskW+maskPadW, run.box.H+maskPadH,
		engine.RectOptions{FillColor: &white})
	if err != nil {
		return err
	}
	return doc.DrawText(op.Page, op.NewText, run.box.X, yPDF+textLift, engine.TextOptions{
		Font:     fontRes,
		FontSize: run.fontSize,
		Color:    engine.Color{},
	})
}

func drawAnnotation(doc engine.MutDoc, fontRes string, a document.Annotation, pageH float64) error {
	color, err := ParseHexColor(a.Style.Color)
	if err != nil {
		return err
	}
	width := a.Style.StrokeWidth
	if width == 0 {
		width = 1
	}

	switch a.Kind {
	case document.AnnotationRectangle:
		return doc.DrawRectangle(a.Page, a.X, coords.ToPDFY(pageH, a.Y, a.H), a.W, a.H,
			engine.RectOptions{StrokeColor: &color, LineWidth: width})
	case document.AnnotationCircle:
		return doc.DrawEllipse(a.Page, a.X, coords.ToPDFY(pageH, a.Y, a.H), a.W, a.H,
			engine.RectOptions{StrokeColor: &color, LineWidth: width})
	case document.AnnotationDraw:
		return doc.DrawPath(a.Page, flipPoints(a.Points, pageH), engine.PathOptions{
			StrokeColor: color,
			LineWidth:   width,
		})
	case document.AnnotationHighlight:
		return doc.DrawPath(a.Page, flipPoints(a.Points, pageH), engine.PathOptions{
			StrokeColor: color,
			LineWidth:   width,
			Alpha:       0.4,
		})
	case document.AnnotationText:
		return drawTextAnnotation(doc, fontRes, a, pageH, color)
	default:
		return fmt.Errorf("export: unknown annotation kind %q", a.Kind)
	}
}

// drawTextAnnotation lays the payload out line by line, honoring the span
// styles richtext recovers from markdown or pasted HTML. Bold and italic
// lines pick the matching Helvetica face; the annotation's own bold and
// italic flags set the baseline style.
func drawTextAnnotation(doc engine.MutDoc, fontRes string, a document.Annotation, pageH float64, color engine.Color) error {
	size := a.Style.FontSize
	if size == 0 {
		size = defaultAnnotationFontSize
	}
	lines := richtext.Parse(a.Text)

	y := a.Y
	for _, line := range lines {
		lineSize := size
		res := fontRes
		if len(line.Spans) > 0 {
			lead := line.Spans[0]
			if lead.Scale > 1 {
				lineSize = size * lead.Scale
			}
			face := fonts.StandardForStyle(a.Style.Bold || lead.Bold, a.Style.Italic || lead.Italic)
			if face != fonts.Helvetica {
				var err error
				if res, err = doc.EmbedFont(face); err != nil {
					return err
				}
			}
		}
		text := line.Text()
		if line.Bullet {
			text = "• " + text
		}
		if text != "" {
			err := doc.DrawText(a.Page, text, a.X, coords.ToPDFY(pageH, y, lineSize), engine.TextOptions{
				Font:     res,
				FontSize: lineSize,
				Color:    color,
			})
			if err != nil {
				return err
			}
		}
		y += lineSize * 1.3
	}
	return nil
}

func flipPoints(points []coords.Point, pageH float64) []coords.Point {
	out := make([]coords.Point, len(points))
	for i, p := range points {
		out[i] = coords.Point{X: p.X, Y: pageH - p.Y}
	}
	return out
}

// ParseHexColor parses "#RRGGBB" (or "#RGB") into unit RGB components.
// The empty string is black.
func ParseHexColor(s string) (engine.Color, error) {
	if s == "" {
		return engine.Color{}, nil
	}
	if len(s) == 0 || s[0] != '#' {
		return engine.Color{}, fmt.Errorf("export: bad color %q", s)
	}
	hex := s[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return engine.Color{}, fmt.Errorf("export: bad color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return engine.Color{}, errors.New("export: bad color " + strconv.Quote(s))
	}
	return engine.Color{
		R: float64(v>>16&0xFF) / 255,
		G: float64(v>>8&0xFF) / 255,
		B: float64(v&0xFF) / 255,
	}, nil
}
