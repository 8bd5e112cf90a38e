package engine

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Fatal777/applyx-pdfedit/coords"
	"github.com/Fatal777/applyx-pdfedit/fonts"
	"github.com/Fatal777/applyx-pdfedit/pdfraw"
)

// kappa approximates a quarter circle with a cubic Bézier.
const kappa = 0.5523

type mutDoc struct {
	file    *pdfraw.File
	updater *pdfraw.Updater
	pages   []pdfraw.Page

	pageOps map[int]*contentWriter // 1-based page -> overlay ops

	fontNames map[fonts.Standard]string
	fontOrder []fonts.Standard

	alphaNames map[int]string // alpha in percent -> gstate name
	alphaOrder []int
	pageAlphas map[int]map[string]bool

	saved bool
}

func beginMutation(data []byte) (MutDoc, error) {
	if !ValidHeader(data) {
		return nil, ErrInvalidFormat
	}
	file, err := pdfraw.Load(data)
	if err != nil {
		return nil, fmt.Errorf("engine: begin mutation: %w", err)
	}
	pages, err := file.Pages()
	if err != nil {
		return nil, fmt.Errorf("engine: begin mutation: %w", err)
	}
	return &mutDoc{
		file:       file,
		updater:    pdfraw.NewUpdater(file),
		pages:      pages,
		pageOps:    make(map[int]*contentWriter),
		fontNames:  make(map[fonts.Standard]string),
		alphaNames: make(map[int]string),
		pageAlphas: make(map[int]map[string]bool),
	}, nil
}

func (m *mutDoc) PageCount() int { return len(m.pages) }

func (m *mutDoc) PageSize(page int) (float64, float64, error) {
	p, err := m.page(page)
	if err != nil {
		return 0, 0, err
	}
	return p.MediaBox[2] - p.MediaBox[0], p.MediaBox[3] - p.MediaBox[1], nil
}

func (m *mutDoc) page(page int) (pdfraw.Page, error) {
	if page < 1 || page > len(m.pages) {
		return pdfraw.Page{}, &PageError{Page: page, Op: "mutate", Err: fmt.Errorf("page out of range 1..%d", len(m.pages))}
	}
	return m.pages[page-1], nil
}

func (m *mutDoc) ops(page int) (*contentWriter, error) {
	if _, err := m.page(page); err != nil {
		return nil, err
	}
	w, ok := m.pageOps[page]
	if !ok {
		w = &contentWriter{}
		m.pageOps[page] = w
	}
	return w, nil
}

func (m *mutDoc) EmbedFont(name fonts.Standard) (string, error) {
	switch name {
	case fonts.Helvetica, fonts.HelveticaBold, fonts.HelveticaOblique, fonts.HelveticaBoldOblique:
	default:
		return "", fmt.Errorf("engine: unsupported standard font %q", name)
	}
	if res, ok := m.fontNames[name]; ok {
		return res, nil
	}
	res := fmt.Sprintf("APXF%d", len(m.fontOrder)+1)
	m.fontNames[name] = res
	m.fontOrder = append(m.fontOrder, name)
	return res, nil
}

// alphaState registers a constant-alpha graphics state and records its use
// on the page.
func (m *mutDoc) alphaState(page int, alpha float64) string {
	pct := int(round3(alpha) * 100)
	name, ok := m.alphaNames[pct]
	if !ok {
		name = fmt.Sprintf("APXA%d", pct)
		m.alphaNames[pct] = name
		m.alphaOrder = append(m.alphaOrder, pct)
	}
	used, ok := m.pageAlphas[page]
	if !ok {
		used = make(map[string]bool)
		m.pageAlphas[page] = used
	}
	used[name] = true
	return name
}

func translucent(alpha float64) bool { return alpha > 0 && alpha < 1 }

func (m *mutDoc) DrawRectangle(page int, x, y, w, h float64, opts RectOptions) error {
	cw, err := m.ops(page)
	if err != nil {
		return err
	}
	cw.save()
	if translucent(opts.Alpha) {
		cw.extGState(m.alphaState(page, opts.Alpha))
	}
	cw.rect(x, y, w, h)
	m.paint(cw, opts)
	cw.restore()
	return nil
}

func (m *mutDoc) DrawEllipse(page int, x, y, w, h float64, opts RectOptions) error {
	cw, err := m.ops(page)
	if err != nil {
		return err
	}
	cx, cy := x+w/2, y+h/2
	rx, ry := w/2, h/2
	cw.save()
	if translucent(opts.Alpha) {
		cw.extGState(m.alphaState(page, opts.Alpha))
	}
	cw.moveTo(cx+rx, cy)
	cw.curveTo(cx+rx, cy+ry*kappa, cx+rx*kappa, cy+ry, cx, cy+ry)
	cw.curveTo(cx-rx*kappa, cy+ry, cx-rx, cy+ry*kappa, cx-rx, cy)
	cw.curveTo(cx-rx, cy-ry*kappa, cx-rx*kappa, cy-ry, cx, cy-ry)
	cw.curveTo(cx+rx*kappa, cy-ry, cx+rx, cy-ry*kappa, cx+rx, cy)
	m.paint(cw, opts)
	cw.restore()
	return nil
}

// paint emits the painting operator matching the configured fill/stroke.
func (m *mutDoc) paint(cw *contentWriter, opts RectOptions) {
	if opts.FillColor != nil {
		cw.fillColor(*opts.FillColor)
	}
	if opts.StrokeColor != nil {
		cw.strokeColor(*opts.StrokeColor)
		if opts.LineWidth > 0 {
			cw.lineWidth(opts.LineWidth)
		}
	}
	switch {
	case opts.FillColor != nil && opts.StrokeColor != nil:
		cw.fillAndStroke()
	case opts.StrokeColor != nil:
		cw.stroke()
	default:
		cw.fill()
	}
}

func (m *mutDoc) DrawText(page int, text string, x, y float64, opts TextOptions) error {
	cw, err := m.ops(page)
	if err != nil {
		return err
	}
	if opts.Font == "" {
		return errors.New("engine: DrawText requires an embedded font")
	}
	size := opts.FontSize
	if size <= 0 {
		size = 12
	}
	cw.save()
	cw.text(opts.Font, size, opts.Color, x, y, text)
	cw.restore()
	return nil
}

func (m *mutDoc) DrawPath(page int, points []coords.Point, opts PathOptions) error {
	cw, err := m.ops(page)
	if err != nil {
		return err
	}
	if len(points) < 2 {
		return nil
	}
	cw.save()
	if translucent(opts.Alpha) {
		cw.extGState(m.alphaState(page, opts.Alpha))
	}
	cw.strokeColor(opts.StrokeColor)
	if opts.LineWidth > 0 {
		cw.lineWidth(opts.LineWidth)
	}
	cw.op("J", 1) // round caps keep polylines smooth
	cw.op("j", 1)
	cw.moveTo(points[0].X, points[0].Y)
	for _, p := range points[1:] {
		cw.lineTo(p.X, p.Y)
	}
	cw.stroke()
	cw.restore()
	return nil
}

func (m *mutDoc) Save() ([]byte, error) {
	if m.saved {
		return nil, errors.New("engine: document already saved")
	}
	m.saved = true

	fontRefs := make(map[string]pdfraw.Ref, len(m.fontOrder))
	for _, f := range m.fontOrder {
		ref := m.updater.Allocate()
		m.updater.Put(ref, pdfraw.Dict{
			pdfraw.Name("Type"):     pdfraw.Name("Font"),
			pdfraw.Name("Subtype"):  pdfraw.Name("Type1"),
			pdfraw.Name("BaseFont"): pdfraw.Name(f),
			pdfraw.Name("Encoding"): pdfraw.Name("WinAnsiEncoding"),
		})
		fontRefs[m.fontNames[f]] = ref
	}

	alphaRefs := make(map[string]pdfraw.Ref, len(m.alphaOrder))
	for _, pct := range m.alphaOrder {
		ref := m.updater.Allocate()
		v := pdfraw.Number(float64(pct) / 100)
		m.updater.Put(ref, pdfraw.Dict{
			pdfraw.Name("Type"): pdfraw.Name("ExtGState"),
			pdfraw.Name("ca"):   v,
			pdfraw.Name("CA"):   v,
		})
		alphaRefs[m.alphaNames[pct]] = ref
	}

	touched := make([]int, 0, len(m.pageOps))
	for page := range m.pageOps {
		touched = append(touched, page)
	}
	sort.Ints(touched)

	for _, pageNum := range touched {
		ops := m.pageOps[pageNum]
		if len(ops.bytes()) == 0 {
			continue
		}
		page := m.pages[pageNum-1]

		content := append([]byte("q\n"), ops.bytes()...)
		content = append(content, 'Q')
		streamRef := m.updater.Allocate()
		m.updater.Put(streamRef, pdfraw.Stream{Dict: pdfraw.Dict{}, Raw: content})

		newPage := pdfraw.Clone(page.Dict).(pdfraw.Dict)
		newPage[pdfraw.Name("Contents")] = appendContents(page.Dict[pdfraw.Name("Contents")], streamRef)
		res, err := m.pageResources(page, pageNum, fontRefs, alphaRefs)
		if err != nil {
			return nil, err
		}
		newPage[pdfraw.Name("Resources")] = res
		m.updater.Put(page.Ref, newPage)
	}

	return m.updater.Bytes()
}

func appendContents(existing pdfraw.Object, ref pdfraw.Ref) pdfraw.Object {
	switch v := existing.(type) {
	case pdfraw.Array:
		return append(append(pdfraw.Array{}, v...), ref)
	case nil:
		return pdfraw.Array{ref}
	default:
		return pdfraw.Array{existing, ref}
	}
}

// pageResources merges the overlay's font and graphics-state entries into a
// copy of the page's resolved resources.
func (m *mutDoc) pageResources(page pdfraw.Page, pageNum int, fontRefs, alphaRefs map[string]pdfraw.Ref) (pdfraw.Dict, error) {
	res := pdfraw.Dict{}
	if page.Resources != nil {
		res = pdfraw.Clone(page.Resources).(pdfraw.Dict)
	}

	if len(fontRefs) > 0 {
		fontDict, err := m.resolvedSubDict(res, "Font")
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(fontRefs))
		for name := range fontRefs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fontDict[pdfraw.Name(name)] = fontRefs[name]
		}
		res[pdfraw.Name("Font")] = fontDict
	}

	if used := m.pageAlphas[pageNum]; len(used) > 0 {
		gsDict, err := m.resolvedSubDict(res, "ExtGState")
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(used))
		for name := range used {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			gsDict[pdfraw.Name(name)] = alphaRefs[name]
		}
		res[pdfraw.Name("ExtGState")] = gsDict
	}
	return res, nil
}

func (m *mutDoc) resolvedSubDict(res pdfraw.Dict, key string) (pdfraw.Dict, error) {
	existing, ok := res[pdfraw.Name(key)]
	if !ok {
		return pdfraw.Dict{}, nil
	}
	resolved, err := m.file.Resolve(existing)
	if err != nil {
		return nil, fmt.Errorf("engine: resolve /%s resources: %w", key, err)
	}
	if d, ok := resolved.(pdfraw.Dict); ok {
		return pdfraw.Clone(d).(pdfraw.Dict), nil
	}
	return pdfraw.Dict{}, nil
}
