package effects

import (
	"image"
	"image/color"
	"image/draw"
	"math/rand"

	"github.com/ivlev/storyreel/internal/particles"
	"github.com/ivlev/storyreel/internal/story"
)

// Effect is a full-frame overlay stepped once per rendered frame.
type Effect interface {
	Step()
	Draw(dst *image.RGBA)
}

// ParticlesFor maps a scene's visual tag to the particle kind drawn over it.
func ParticlesFor(v story.VisualEffect) particles.Kind {
	switch v {
	case story.VisualRain, story.VisualStorm:
		return particles.Rain
	case story.VisualSnow:
		return particles.Snow
	case story.VisualFire:
		return particles.Ember
	default:
		return particles.Dust
	}
}

const (
	flashChance = 0.006
	flashPeak   = 0.9
	flashDecay  = 0.85
	flashFloor  = 0.01
)

// Flash is the storm lightning overlay: a rare random strike at near-full
// white, then exponential decay back to zero.
type Flash struct {
	Alpha  float64
	Chance float64
	Armed  bool
	rng    *rand.Rand
}

func NewFlash(rng *rand.Rand) *Flash {
	return &Flash{Chance: flashChance, rng: rng}
}

func (f *Flash) Step() {
	if f.Armed && f.rng.Float64() < f.Chance {
		f.Alpha = flashPeak
		return
	}
	f.Alpha *= flashDecay
	if f.Alpha < flashFloor {
		f.Alpha = 0
	}
}

func (f *Flash) Draw(dst *image.RGBA) {
	if f.Alpha <= 0 {
		return
	}
	white := image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: uint8(f.Alpha * 255)})
	draw.Draw(dst, dst.Bounds(), white, image.Point{}, draw.Over)
}

// Storm reports whether the visual tag strikes lightning.
func Storm(v story.VisualEffect) bool {
	return v == story.VisualStorm
}
