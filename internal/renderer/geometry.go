package renderer

import (
	"image"
	"math"
)

// Rect is a placement in canvas units.
type Rect struct {
	X, Y, W, H float64
}

func (r Rect) Bounds() image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X)), int(math.Floor(r.Y)),
		int(math.Ceil(r.X+r.W)), int(math.Ceil(r.Y+r.H)),
	)
}

// CoverRect places a srcW×srcH image so it covers a dstW×dstH canvas,
// enlarged by zoom. The focus point (fx, fy), as fractions of the image,
// keeps its canvas position as zoom grows, and the image never uncovers the
// canvas edges for zoom >= 1.
func CoverRect(srcW, srcH, dstW, dstH int, zoom, fx, fy float64) Rect {
	if srcW <= 0 || srcH <= 0 {
		return Rect{}
	}
	scale := math.Max(float64(dstW)/float64(srcW), float64(dstH)/float64(srcH))
	w1, h1 := float64(srcW)*scale, float64(srcH)*scale
	w, h := w1*zoom, h1*zoom
	x1 := (float64(dstW) - w1) / 2
	y1 := (float64(dstH) - h1) / 2
	return Rect{
		X: x1 - fx*(w-w1),
		Y: y1 - fy*(h-h1),
		W: w,
		H: h,
	}
}
