package engine

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/vector"
)

// maxRasterPixels bounds a single rasterization request.
const maxRasterPixels = 64 << 20

// Rasterize renders a preview of the page: white background with the text
// layer indicated as light glyph-run boxes. It is a placeholder raster for
// layer alignment and culling tests, not a content renderer.
func (d *document) Rasterize(page int, scale float64) (image.Image, error) {
	w, h, err := d.PageSize(page)
	if err != nil {
		return nil, err
	}
	if scale <= 0 {
		scale = 1
	}
	pw, ph := int(w*scale+0.5), int(h*scale+0.5)
	if pw <= 0 || ph <= 0 || pw*ph > maxRasterPixels {
		return nil, &PageError{Page: page, Op: "rasterize", Err: ErrResourceExhausted}
	}

	img := image.NewRGBA(image.Rect(0, 0, pw, ph))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	items, err := d.TextContent(page)
	if err != nil {
		return nil, err
	}
	vp, err := d.Viewport(page, scale)
	if err != nil {
		return nil, err
	}
	glyphGray := image.NewUniform(color.RGBA{R: 0xD8, G: 0xD8, B: 0xD8, A: 0xFF})
	for _, item := range items {
		if item.Str == "" {
			continue
		}
		tx := ComposeTransform(item.Transform, vp.Transform)
		x := tx[4]
		y := tx[5] - item.Height*scale
		fillRect(img, glyphGray, x, y, item.Width*scale, item.Height*scale)
	}
	return img, nil
}

// fillRect paints an axis-aligned box through the vector rasterizer.
func fillRect(dst *image.RGBA, src image.Image, x, y, w, h float64) {
	if w <= 0 || h <= 0 {
		return
	}
	r := vector.NewRasterizer(dst.Bounds().Dx(), dst.Bounds().Dy())
	r.MoveTo(float32(x), float32(y))
	r.LineTo(float32(x+w), float32(y))
	r.LineTo(float32(x+w), float32(y+h))
	r.LineTo(float32(x), float32(y+h))
	r.ClosePath()
	r.Draw(dst, dst.Bounds(), src, image.Point{})
}
