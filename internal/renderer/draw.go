package renderer

import (
	"image"
	"image/color"
	stddraw "image/draw"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"github.com/ivlev/storyreel/internal/system"
)

// bezier constant for a quarter circle
const kappa = 0.5523

// DrawImage scales src into r on dst at the given opacity. Nil sources and
// zero opacity draw nothing.
func DrawImage(dst *image.RGBA, src image.Image, r Rect, alpha float64) {
	if src == nil || alpha <= 0 || r.W <= 0 || r.H <= 0 {
		return
	}
	dr := r.Bounds()
	if !dr.Overlaps(dst.Bounds()) {
		return
	}
	if alpha >= 1 {
		draw.ApproxBiLinear.Scale(dst, dr, src, src.Bounds(), draw.Over, nil)
		return
	}
	// Scaling through a DstMask takes x/image's generic per-pixel path,
	// so scale into a frame-sized scratch and blend its rows instead.
	tmp := system.GetImage(dst.Bounds())
	defer system.PutImage(tmp)
	draw.ApproxBiLinear.Scale(tmp, dr, src, src.Bounds(), draw.Src, nil)
	r0 := dr.Intersect(dst.Bounds())
	BlendOver(dst, r0, tmp, r0.Min, alpha)
}

// BlendOver composites src over the r region of dst at the given opacity,
// reading src from sp. Both images hold premultiplied RGBA.
func BlendOver(dst *image.RGBA, r image.Rectangle, src *image.RGBA, sp image.Point, alpha float64) {
	clipped := r.Intersect(dst.Bounds())
	sp = sp.Add(clipped.Min.Sub(r.Min))
	r = clipped.Intersect(src.Bounds().Add(clipped.Min.Sub(sp)))
	sp = sp.Add(r.Min.Sub(clipped.Min))
	if r.Empty() || alpha <= 0 {
		return
	}
	a := uint32(math.Round(math.Min(alpha, 1) * 255))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		sy := sp.Y + y - r.Min.Y
		d := dst.Pix[dst.PixOffset(r.Min.X, y) : dst.PixOffset(r.Max.X-1, y)+4]
		s := src.Pix[src.PixOffset(sp.X, sy) : src.PixOffset(sp.X+r.Dx()-1, sy)+4]
		for i := 0; i < len(d); i += 4 {
			sa := uint32(s[i+3]) * a / 255
			if sa == 0 {
				continue
			}
			keep := 255 - sa
			d[i] = uint8((uint32(s[i])*a + uint32(d[i])*keep) / 255)
			d[i+1] = uint8((uint32(s[i+1])*a + uint32(d[i+1])*keep) / 255)
			d[i+2] = uint8((uint32(s[i+2])*a + uint32(d[i+2])*keep) / 255)
			d[i+3] = uint8((uint32(s[i+3])*a + uint32(d[i+3])*keep) / 255)
		}
	}
}

func Fill(dst *image.RGBA, c color.Color) {
	stddraw.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{}, stddraw.Src)
}

// FillRect composites c over r.
func FillRect(dst *image.RGBA, r image.Rectangle, c color.Color) {
	stddraw.Draw(dst, r.Intersect(dst.Bounds()), image.NewUniform(c), image.Point{}, stddraw.Over)
}

// Darken blends black over rows from startY to the bottom, ramping the
// opacity quadratically from 0 to maxAlpha.
func Darken(dst *image.RGBA, startY int, maxAlpha float64) {
	b := dst.Bounds()
	if startY < b.Min.Y {
		startY = b.Min.Y
	}
	span := float64(b.Max.Y - startY)
	if span <= 0 {
		return
	}
	for y := startY; y < b.Max.Y; y++ {
		t := float64(y-startY) / span
		keep := uint32(255 - maxAlpha*t*t*255)
		row := dst.Pix[dst.PixOffset(b.Min.X, y) : dst.PixOffset(b.Max.X-1, y)+4]
		for i := 0; i < len(row); i += 4 {
			row[i] = uint8(uint32(row[i]) * keep / 255)
			row[i+1] = uint8(uint32(row[i+1]) * keep / 255)
			row[i+2] = uint8(uint32(row[i+2]) * keep / 255)
		}
	}
}

func circlePath(z *vector.Rasterizer, cx, cy, r float32, reverse bool) {
	k := r * kappa
	z.MoveTo(cx+r, cy)
	if !reverse {
		z.CubeTo(cx+r, cy+k, cx+k, cy+r, cx, cy+r)
		z.CubeTo(cx-k, cy+r, cx-r, cy+k, cx-r, cy)
		z.CubeTo(cx-r, cy-k, cx-k, cy-r, cx, cy-r)
		z.CubeTo(cx+k, cy-r, cx+r, cy-k, cx+r, cy)
	} else {
		z.CubeTo(cx+r, cy-k, cx+k, cy-r, cx, cy-r)
		z.CubeTo(cx-k, cy-r, cx-r, cy-k, cx-r, cy)
		z.CubeTo(cx-r, cy+k, cx-k, cy+r, cx, cy+r)
		z.CubeTo(cx+k, cy+r, cx+r, cy+k, cx+r, cy)
	}
	z.ClosePath()
}

// clipBox is the circle's bounding box clipped to dst; the rasterizer does
// not clip on its own.
func clipBox(dst *image.RGBA, cx, cy, r float64) image.Rectangle {
	return image.Rect(int(cx-r)-1, int(cy-r)-1, int(cx+r)+2, int(cy+r)+2).Intersect(dst.Bounds())
}

// FillCircle draws src through a circle of radius r centred at (cx, cy).
// src is sampled in canvas coordinates.
func FillCircle(dst *image.RGBA, cx, cy, r float64, src image.Image) {
	box := clipBox(dst, cx, cy, r)
	if box.Empty() {
		return
	}
	z := vector.NewRasterizer(box.Dx(), box.Dy())
	circlePath(z, float32(cx)-float32(box.Min.X), float32(cy)-float32(box.Min.Y), float32(r), false)
	z.Draw(dst, box, src, box.Min)
}

// Ring strokes a circle of radius r with the given width.
func Ring(dst *image.RGBA, cx, cy, r, width float64, c color.Color) {
	outer := r + width/2
	box := clipBox(dst, cx, cy, outer)
	if box.Empty() {
		return
	}
	z := vector.NewRasterizer(box.Dx(), box.Dy())
	ox, oy := float32(cx)-float32(box.Min.X), float32(cy)-float32(box.Min.Y)
	circlePath(z, ox, oy, float32(outer), false)
	circlePath(z, ox, oy, float32(r-width/2), true)
	z.Draw(dst, box, image.NewUniform(c), image.Point{})
}

// Shadow approximates a blurred drop shadow under a circle with stacked
// translucent discs.
func Shadow(dst *image.RGBA, cx, cy, r, blur float64) {
	const steps = 6
	for i := steps; i >= 1; i-- {
		rr := r + blur*float64(i)/steps
		a := uint8(90 / steps)
		FillCircle(dst, cx, cy, rr, image.NewUniform(color.NRGBA{A: a}))
	}
}
