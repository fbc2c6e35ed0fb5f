package analyzer

import (
	"image"

	"golang.org/x/image/draw"
)

const (
	focusSample = 160
	focusMin    = 0.2
	focusMax    = 0.8
)

// FocusPoint estimates where the subject of an image sits, as fractions of
// its width and height. The Ken-Burns zoom is anchored there so the subject
// stays put while the frame tightens around it.
//
// The image is downsampled, contrast blocks are detected and their centres
// averaged by area weighted with confidence. Flat images and images without blocks focus the centre.
func FocusPoint(img image.Image) (float64, float64) {
	if img == nil {
		return 0.5, 0.5
	}
	small := downsample(img, focusSample)
	b := small.Bounds()
	if b.Dx() < 8 || b.Dy() < 8 {
		return 0.5, 0.5
	}

	det := NewContrastDetector()
	det.MinBlockArea = b.Dx() * b.Dy() / 100
	blocks, err := det.Detect(small)
	if err != nil || len(blocks) == 0 {
		return 0.5, 0.5
	}

	var sx, sy, total float64
	for _, blk := range blocks {
		area := float64(blk.Rect.Dx()*blk.Rect.Dy()) * blk.Confidence
		cx := float64(blk.Rect.Min.X+blk.Rect.Max.X) / 2
		cy := float64(blk.Rect.Min.Y+blk.Rect.Max.Y) / 2
		sx += cx * area
		sy += cy * area
		total += area
	}
	if total == 0 {
		return 0.5, 0.5
	}
	fx := (sx/total - float64(b.Min.X)) / float64(b.Dx())
	fy := (sy/total - float64(b.Min.Y)) / float64(b.Dy())
	return clampFocus(fx), clampFocus(fy)
}

func downsample(img image.Image, maxSide int) *image.Gray {
	src := img.Bounds()
	w, h := src.Dx(), src.Dy()
	if w > maxSide || h > maxSide {
		if w >= h {
			h = h * maxSide / w
			w = maxSide
		} else {
			w = w * maxSide / h
			h = maxSide
		}
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	return dst
}

func clampFocus(v float64) float64 {
	if v < focusMin {
		return focusMin
	}
	if v > focusMax {
		return focusMax
	}
	return v
}
