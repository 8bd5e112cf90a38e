// Package fonts provides the width metrics the editor needs: advance widths
// for the standard fonts substituted into edited runs, and an optional
// TrueType-backed measurer for custom typography fonts. No glyph programs
// are embedded; edited text always renders in a standard font.
package fonts

// Standard names one of the built-in base fonts every PDF reader ships.
type Standard string

const (
	Helvetica            Standard = "Helvetica"
	HelveticaBold        Standard = "Helvetica-Bold"
	HelveticaOblique     Standard = "Helvetica-Oblique"
	HelveticaBoldOblique Standard = "Helvetica-BoldOblique"
)

// StandardForStyle maps a bold/italic style pair onto the Helvetica family.
func StandardForStyle(bold, italic bool) Standard {
	switch {
	case bold && italic:
		return HelveticaBoldOblique
	case bold:
		return HelveticaBold
	case italic:
		return HelveticaOblique
	default:
		return Helvetica
	}
}

// Measurer reports the advance width of a string at a font size, in points.
type Measurer interface {
	Advance(text string, size float64) float64
}

type standardMeasurer struct {
	widths *[95]int
}

// NewStandardMeasurer returns the metric table for a standard font.
func NewStandardMeasurer(name Standard) Measurer {
	switch name {
	case HelveticaBold, HelveticaBoldOblique:
		return standardMeasurer{widths: &helveticaBoldWidths}
	default:
		return standardMeasurer{widths: &helveticaWidths}
	}
}

// missingWidth is charged for runes outside the table.
const missingWidth = 556

func (m standardMeasurer) Advance(text string, size float64) float64 {
	units := 0
	for _, r := range text {
		if r >= 0x20 && r <= 0x7E {
			units += m.widths[r-0x20]
		} else {
			units += missingWidth
		}
	}
	return float64(units) / 1000 * size
}

// Widths in 1/1000 em for ASCII 0x20..0x7E, from the Adobe AFM files.
var helveticaWidths = [95]int{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333,
	278, 278, 556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 278, 278,
	584, 584, 584, 556, 1015, 667, 667, 722, 722, 667, 611, 778, 722, 278,
	500, 667, 556, 833, 722, 778, 667, 778, 722, 667, 611, 722, 667, 944,
	667, 667, 611, 278, 278, 278, 469, 556, 333, 556, 556, 500, 556, 556,
	278, 556, 556, 222, 222, 500, 222, 833, 556, 556, 556, 556, 333, 500,
	278, 556, 500, 722, 500, 500, 500, 334, 260, 334, 584,
}

var helveticaBoldWidths = [95]int{
	278, 333, 474, 556, 556, 889, 722, 238, 333, 333, 389, 584, 278, 333,
	278, 278, 556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 333, 333,
	584, 584, 584, 611, 975, 722, 722, 722, 722, 667, 611, 778, 722, 278,
	556, 722, 611, 833, 722, 778, 667, 778, 722, 667, 611, 722, 667, 944,
	667, 667, 611, 333, 278, 333, 584, 556, 333, 556, 611, 556, 611, 556,
	333, 611, 611, 278, 278, 556, 278, 889, 611, 611, 611, 611, 389, 556,
	333, 611, 556, 778, 556, 556, 500, 389, 280, 389, 584,
}
