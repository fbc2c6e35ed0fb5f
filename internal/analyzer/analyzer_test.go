package analyzer

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func TestContrastDetector(t *testing.T) {
	// Create a simple test image with a white rectangle on black background
	img := image.NewGray(image.Rect(0, 0, 200, 200))

	// Draw a white rectangle (simulating the subject)
	for y := 50; y < 150; y++ {
		for x := 50; x < 150; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}

	detector := NewContrastDetector()
	blocks, err := detector.Detect(img)

	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if len(blocks) == 0 {
		t.Fatal("Expected at least one block, got none")
	}

	// Verify the detected block roughly matches our white rectangle
	block := blocks[0]
	if block.Rect.Dx() < 80 || block.Rect.Dy() < 80 {
		t.Errorf("Block too small: %v", block.Rect)
	}

	t.Logf("Detected %d blocks", len(blocks))
	for i, b := range blocks {
		t.Logf("Block %d: %v (confidence: %.2f)", i, b.Rect, b.Confidence)
	}
}

func TestFocusPoint(t *testing.T) {
	tests := []struct {
		name         string
		rect         image.Rectangle
		wantX, wantY float64
		tolerance    float64
	}{
		{"flat image", image.Rectangle{}, 0.5, 0.5, 0.001},
		{"subject top left", image.Rect(60, 80, 180, 260), 0.2, 0.2, 0.05},
		{"subject centre", image.Rect(300, 500, 500, 700), 0.5, 0.5, 0.05},
		{"subject lower right", image.Rect(560, 1000, 740, 1180), 0.8, 0.8, 0.05},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := image.NewRGBA(image.Rect(0, 0, 800, 1200))
			for y := tt.rect.Min.Y; y < tt.rect.Max.Y; y++ {
				for x := tt.rect.Min.X; x < tt.rect.Max.X; x++ {
					img.Set(x, y, color.White)
				}
			}
			fx, fy := FocusPoint(img)
			if math.Abs(fx-tt.wantX) > tt.tolerance || math.Abs(fy-tt.wantY) > tt.tolerance {
				t.Errorf("FocusPoint = (%.3f, %.3f), want ~(%.2f, %.2f)", fx, fy, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestFocusPointNil(t *testing.T) {
	if fx, fy := FocusPoint(nil); fx != 0.5 || fy != 0.5 {
		t.Errorf("nil image: (%f, %f)", fx, fy)
	}
}
