package effects

import (
	"image"
	"math/rand"
	"testing"

	"github.com/ivlev/storyreel/internal/particles"
	"github.com/ivlev/storyreel/internal/story"
)

func TestParticlesFor(t *testing.T) {
	tests := []struct {
		in   story.VisualEffect
		want particles.Kind
	}{
		{story.VisualRain, particles.Rain},
		{story.VisualStorm, particles.Rain},
		{story.VisualSnow, particles.Snow},
		{story.VisualFire, particles.Ember},
		{story.VisualFog, particles.Dust},
		{story.VisualSparkles, particles.Dust},
		{story.VisualNone, particles.Dust},
	}
	for _, tt := range tests {
		if got := ParticlesFor(tt.in); got != tt.want {
			t.Errorf("ParticlesFor(%s) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFlashDecaysToZero(t *testing.T) {
	f := NewFlash(rand.New(rand.NewSource(1)))
	f.Armed = true
	f.Chance = 1
	f.Step()
	if f.Alpha != flashPeak {
		t.Fatalf("strike alpha: got %f", f.Alpha)
	}

	f.Armed = false
	prev := f.Alpha
	for i := 0; i < 100 && f.Alpha > 0; i++ {
		f.Step()
		if f.Alpha >= prev {
			t.Fatalf("frame %d: alpha did not decay (%f -> %f)", i, prev, f.Alpha)
		}
		prev = f.Alpha
	}
	if f.Alpha != 0 {
		t.Errorf("flash never reached zero: %f", f.Alpha)
	}
}

func TestFlashDrawWhitens(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 4, 4))
	f := &Flash{Alpha: 0.9}
	f.Draw(dst)
	if dst.Pix[0] < 200 {
		t.Errorf("flash pixel too dark: %d", dst.Pix[0])
	}
}
