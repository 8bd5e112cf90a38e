// Package coords provides the affine transforms shared by page rendering,
// text-run recovery and export. PDF page space is y-up with origin at the
// bottom-left; screen space is y-down with origin at the top-left. Viewport
// captures the flip between the two plus the current zoom.
package coords

import (
	"errors"
	"math"
)

// Matrix is a 2D affine transform in PDF order: [a b c d e f].
type Matrix [6]float64

// Identity returns the identity transform.
func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

// Translate returns a translation by (tx, ty).
func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }

// Scale returns a scale by (sx, sy).
func Scale(sx, sy float64) Matrix { return Matrix{sx, 0, 0, sy, 0, 0} }

// Mul returns m composed with o, applying m first.
func (m Matrix) Mul(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

// Point is a position in either coordinate space.
type Point struct{ X, Y float64 }

// Apply transforms p by m.
func (m Matrix) Apply(p Point) Point {
	return Point{
		X: m[0]*p.X + m[2]*p.Y + m[4],
		Y: m[1]*p.X + m[3]*p.Y + m[5],
	}
}

// Inverse returns the inverse transform, or an error for singular matrices.
func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-10 {
		return Matrix{}, errors.New("coords: singular matrix")
	}
	return Matrix{
		m[3] / det, -m[1] / det,
		-m[2] / det, m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det,
		(m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

// Rect is an axis-aligned box with a top-left origin unless noted otherwise.
type Rect struct {
	X, Y, W, H float64
}

// Contains reports whether (x, y) lies inside r, edges included.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.W && y >= r.Y && y <= r.Y+r.H
}

// Viewport describes a page viewed at a scale. Width and Height are the
// scaled dimensions; Transform maps page space (y-up) to screen space
// (y-down, top-left origin) at that scale.
type Viewport struct {
	Width     float64
	Height    float64
	Scale     float64
	Transform Matrix
}

// NewViewport builds the viewport for a page of natural size (w, h) points
// at the given scale.
func NewViewport(w, h, scale float64) Viewport {
	return Viewport{
		Width:     w * scale,
		Height:    h * scale,
		Scale:     scale,
		Transform: Matrix{scale, 0, 0, -scale, 0, h * scale},
	}
}

// ToPDFY converts a top-left screen-space y of a box of the given height on
// a page of the given natural height into the PDF-space y of the box bottom.
func ToPDFY(pageHeight, screenY, boxHeight float64) float64 {
	return pageHeight - screenY - boxHeight
}
