package fonts

import (
	"bytes"
	"fmt"

	"github.com/go-text/typesetting/di"
	gofont "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"
)

// TrueTypeMeasurer measures text with a real font program supplied by the
// typography config. Shaping runs at 1000 units per em so advances convert
// to points the same way standard-font widths do.
type TrueTypeMeasurer struct {
	face   *gofont.Face
	shaper shaping.HarfbuzzShaper
}

// NewTrueTypeMeasurer parses a TTF/OTF font program.
func NewTrueTypeMeasurer(data []byte) (*TrueTypeMeasurer, error) {
	face, err := gofont.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("fonts: parse font: %w", err)
	}
	return &TrueTypeMeasurer{face: face}, nil
}

func (m *TrueTypeMeasurer) Advance(text string, size float64) float64 {
	runes := []rune(text)
	if len(runes) == 0 {
		return 0
	}
	input := shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: di.DirectionLTR,
		Face:      m.face,
		Size:      fixed.Int26_6(1000 * 64),
		Script:    language.Latin,
		Language:  language.DefaultLanguage(),
	}
	output := m.shaper.Shape(input)
	units := 0.0
	for _, g := range output.Glyphs {
		units += float64(g.XAdvance) / 64
	}
	return units / 1000 * size
}
