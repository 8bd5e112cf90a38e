package engine

import (
	"bytes"
	"fmt"
	"sort"

	lpdf "github.com/ledongthuc/pdf"

	"github.com/Fatal777/applyx-pdfedit/coords"
	"github.com/Fatal777/applyx-pdfedit/fonts"
)

// fallbackMetrics measures runs whose font carries no width information.
var fallbackMetrics = fonts.NewStandardMeasurer(fonts.Helvetica)

// New returns the default engine implementation.
func New() Engine { return pdfEngine{} }

type pdfEngine struct{}

func (pdfEngine) Open(data []byte) (Document, error) {
	if !ValidHeader(data) {
		return nil, ErrInvalidFormat
	}
	reader, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("engine: open: %w", err)
	}
	return &document{
		reader: reader,
		sizes:  make(map[int][2]float64),
		texts:  make(map[int][]TextItem),
	}, nil
}

func (pdfEngine) BeginMutation(data []byte) (MutDoc, error) {
	return beginMutation(data)
}

type document struct {
	reader *lpdf.Reader
	sizes  map[int][2]float64
	texts  map[int][]TextItem
}

func (d *document) PageCount() int { return d.reader.NumPage() }

func (d *document) Close() error { return nil }

// capturePanic converts the parser's panics on malformed structures into
// per-page errors so one bad page cannot take down the caller.
func capturePanic(page int, op string, err *error) {
	if r := recover(); r != nil {
		*err = &PageError{Page: page, Op: op, Err: fmt.Errorf("%v", r)}
	}
}

func (d *document) PageSize(page int) (w, h float64, err error) {
	if s, ok := d.sizes[page]; ok {
		return s[0], s[1], nil
	}
	defer capturePanic(page, "page size", &err)
	if page < 1 || page > d.reader.NumPage() {
		return 0, 0, &PageError{Page: page, Op: "page size", Err: fmt.Errorf("page out of range 1..%d", d.reader.NumPage())}
	}
	p := d.reader.Page(page)
	if p.V.IsNull() {
		return 0, 0, &PageError{Page: page, Op: "page size", Err: fmt.Errorf("page dictionary missing")}
	}
	box := inheritedKey(p.V, "MediaBox")
	if box.IsNull() || box.Len() != 4 {
		return 0, 0, &PageError{Page: page, Op: "page size", Err: fmt.Errorf("missing MediaBox")}
	}
	llx := box.Index(0).Float64()
	lly := box.Index(1).Float64()
	urx := box.Index(2).Float64()
	ury := box.Index(3).Float64()
	w, h = urx-llx, ury-lly
	if w <= 0 || h <= 0 {
		return 0, 0, &PageError{Page: page, Op: "page size", Err: fmt.Errorf("degenerate MediaBox %v", [4]float64{llx, lly, urx, ury})}
	}
	d.sizes[page] = [2]float64{w, h}
	return w, h, nil
}

// inheritedKey walks up the page tree for attributes pages inherit.
func inheritedKey(v lpdf.Value, key string) lpdf.Value {
	for depth := 0; depth < 64 && !v.IsNull(); depth++ {
		if attr := v.Key(key); !attr.IsNull() {
			return attr
		}
		v = v.Key("Parent")
	}
	return lpdf.Value{}
}

func (d *document) Viewport(page int, scale float64) (coords.Viewport, error) {
	w, h, err := d.PageSize(page)
	if err != nil {
		return coords.Viewport{}, err
	}
	return coords.NewViewport(w, h, scale), nil
}

func (d *document) TextContent(page int) (items []TextItem, err error) {
	if cached, ok := d.texts[page]; ok {
		return cached, nil
	}
	defer capturePanic(page, "text content", &err)
	if page < 1 || page > d.reader.NumPage() {
		return nil, &PageError{Page: page, Op: "text content", Err: fmt.Errorf("page out of range 1..%d", d.reader.NumPage())}
	}
	p := d.reader.Page(page)
	if p.V.IsNull() {
		return nil, &PageError{Page: page, Op: "text content", Err: fmt.Errorf("page dictionary missing")}
	}
	content := p.Content()
	items = assembleItems(content.Text)
	d.texts[page] = items
	return items, nil
}

// assembleItems merges the parser's per-fragment text positions into one
// item per glyph run and orders them top-to-bottom, left-to-right.
func assembleItems(frags []lpdf.Text) []TextItem {
	type run struct {
		text     bytes.Buffer
		x, y     float64
		end      float64
		fontSize float64
	}
	var runs []*run
	var cur *run
	for _, f := range frags {
		fs := f.FontSize
		if fs <= 0 {
			fs = 12
		}
		gap := 0.0
		if cur != nil {
			gap = f.X - cur.end
		}
		sameLine := cur != nil && abs(f.Y-cur.y) <= 0.5 && abs(fs-cur.fontSize) <= 0.1
		if !sameLine || gap < -1 || gap > fs {
			cur = &run{x: f.X, y: f.Y, end: f.X, fontSize: fs}
			runs = append(runs, cur)
		}
		cur.text.WriteString(f.S)
		if f.X+f.W > cur.end {
			cur.end = f.X + f.W
		}
	}

	sort.SliceStable(runs, func(i, j int) bool {
		if abs(runs[i].y-runs[j].y) > 0.5 {
			return runs[i].y > runs[j].y // higher on the page first
		}
		return runs[i].x < runs[j].x
	})

	items := make([]TextItem, len(runs))
	for i, r := range runs {
		str := r.text.String()
		width := r.end - r.x
		if width <= 0 && str != "" {
			// Fonts without a /Widths array (the base 14 may omit it)
			// report zero fragment widths; measure with the standard
			// Helvetica metrics instead.
			width = fallbackMetrics.Advance(str, r.fontSize)
		}
		items[i] = TextItem{
			Str:       str,
			Transform: coords.Translate(r.x, r.y),
			Width:     width,
			Height:    r.fontSize,
		}
	}
	// Mark the last item of each line.
	for i := range items {
		if i == len(items)-1 || abs(runs[i].y-runs[i+1].y) > 0.5 {
			items[i].HasEOL = true
		}
	}
	return items
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
