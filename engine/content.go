package engine

import (
	"bytes"
	"fmt"
	"math"

	"github.com/Fatal777/applyx-pdfedit/pdfraw"
)

// contentWriter accumulates content-stream operators for one page overlay.
type contentWriter struct {
	buf bytes.Buffer
}

func round3(f float64) float64 { return math.Round(f*1000) / 1000 }

func (w *contentWriter) num(f float64) {
	w.buf.WriteString(pdfraw.FormatNumber(round3(f)))
}

func (w *contentWriter) op(name string, args ...float64) {
	for _, a := range args {
		w.num(a)
		w.buf.WriteByte(' ')
	}
	w.buf.WriteString(name)
	w.buf.WriteByte('\n')
}

func (w *contentWriter) save()    { w.op("q") }
func (w *contentWriter) restore() { w.op("Q") }

func (w *contentWriter) fillColor(c Color)   { w.op("rg", c.R, c.G, c.B) }
func (w *contentWriter) strokeColor(c Color) { w.op("RG", c.R, c.G, c.B) }
func (w *contentWriter) lineWidth(v float64) { w.op("w", v) }

func (w *contentWriter) rect(x, y, wd, h float64) { w.op("re", x, y, wd, h) }
func (w *contentWriter) fill()                    { w.op("f") }
func (w *contentWriter) stroke()                  { w.op("S") }
func (w *contentWriter) fillAndStroke()           { w.op("B") }

func (w *contentWriter) moveTo(x, y float64) { w.op("m", x, y) }
func (w *contentWriter) lineTo(x, y float64) { w.op("l", x, y) }
func (w *contentWriter) curveTo(x1, y1, x2, y2, x3, y3 float64) {
	w.op("c", x1, y1, x2, y2, x3, y3)
}

func (w *contentWriter) extGState(name string) {
	fmt.Fprintf(&w.buf, "/%s gs\n", name)
}

func (w *contentWriter) text(font string, size float64, c Color, x, y float64, s string) {
	w.op("BT")
	fmt.Fprintf(&w.buf, "/%s ", font)
	w.num(size)
	w.buf.WriteString(" Tf\n")
	w.fillColor(c)
	w.op("Td", x, y)
	w.buf.Write(pdfraw.Serialize(pdfraw.String(encodeWinAnsi(s))))
	w.buf.WriteString(" Tj\n")
	w.op("ET")
}

func (w *contentWriter) bytes() []byte { return w.buf.Bytes() }

// encodeWinAnsi maps a string onto the WinAnsi byte range used by the
// substituted standard font. Unmappable runes degrade to '?'.
func encodeWinAnsi(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch {
		case r < 0x80:
			out = append(out, byte(r))
		case r >= 0xA0 && r <= 0xFF:
			out = append(out, byte(r))
		default:
			if b, ok := winAnsiSpecials[r]; ok {
				out = append(out, b)
			} else {
				out = append(out, '?')
			}
		}
	}
	return out
}

var winAnsiSpecials = map[rune]byte{
	'€': 0x80, // euro
	'‚': 0x82,
	'„': 0x84,
	'…': 0x85, // ellipsis
	'†': 0x86,
	'‡': 0x87,
	'‰': 0x89,
	'‘': 0x91, // left single quote
	'’': 0x92, // right single quote
	'“': 0x93, // left double quote
	'”': 0x94, // right double quote
	'•': 0x95, // bullet
	'–': 0x96, // en dash
	'—': 0x97, // em dash
	'™': 0x99, // trademark
}
