package analyzer

import "image"

// Block is a region of interest found by a Detector.
type Block struct {
	Rect       image.Rectangle
	Confidence float64 // 0.0-1.0
}

type Detector interface {
	Detect(img image.Image) ([]Block, error)
}
