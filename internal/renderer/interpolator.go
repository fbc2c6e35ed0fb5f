package renderer

import "time"

// Smoothstep eases linear progress t into t²(3−2t), clamped to [0,1].
func Smoothstep(t float64) float64 {
	t = Clamp01(t)
	return t * t * (3 - 2*t)
}

// Crossfade returns the opacities of the outgoing and incoming images at
// linear transition progress t. They always sum to 1.
func Crossfade(t float64) (prev, cur float64) {
	cur = Smoothstep(t)
	return 1 - cur, cur
}

// KenBurnsZoom is the monotonic slow zoom: it grows linearly with scene
// time at speedPerMs and stops at max.
func KenBurnsZoom(elapsed time.Duration, speedPerMs, max float64) float64 {
	if elapsed < 0 {
		elapsed = 0
	}
	z := 1 + float64(elapsed.Milliseconds())*speedPerMs
	if max >= 1 && z > max {
		return max
	}
	return z
}

func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// EaseInOutCubic eases t in [0,1] with a cubic ramp at both ends.
func EaseInOutCubic(t float64) float64 {
	t = Clamp01(t)
	if t < 0.5 {
		return 4 * t * t * t
	}
	u := 2 - 2*t
	return 1 - u*u*u/2
}

func Clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
