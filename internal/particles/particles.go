// Package particles simulates the ambient particle overlay drawn on top of
// scene imagery.
package particles

import (
	"image"
	"image/color"
	"math"
	"math/rand"

	"golang.org/x/image/vector"
)

type Kind int

const (
	Dust Kind = iota
	Rain
	Snow
	Ember
)

func (k Kind) String() string {
	switch k {
	case Rain:
		return "rain"
	case Snow:
		return "snow"
	case Ember:
		return "ember"
	default:
		return "dust"
	}
}

// Count is the number of particles a field of kind k holds.
func Count(k Kind) int {
	switch k {
	case Rain:
		return 150
	case Snow:
		return 100
	case Ember:
		return 60
	default:
		return 40
	}
}

// Particle is a tagged variant: Kind selects the motion law, the rest is
// the per-kind payload.
type Particle struct {
	Kind   Kind
	X, Y   float64
	VX, VY float64
	Size   float64
	Alpha  float64
	// Phase drives snow sway; Decay is the ember alpha loss per frame.
	Phase float64
	Decay float64
}

func spawn(k Kind, w, h float64, rng *rand.Rand) Particle {
	p := Particle{Kind: k, X: rng.Float64() * w, Y: rng.Float64() * h}
	switch k {
	case Rain:
		p.Size = 1 + rng.Float64()*1.5
		p.VX = -1 + rng.Float64()*0.5
		p.VY = 18 + rng.Float64()*10
		p.Alpha = 0.15 + rng.Float64()*0.2
	case Snow:
		p.Size = 2 + rng.Float64()*4
		p.VY = 1 + rng.Float64()*1.5
		p.Phase = rng.Float64() * 2 * math.Pi
		p.Alpha = 0.4 + rng.Float64()*0.4
	case Ember:
		p.Y = h + rng.Float64()*h*0.3
		p.Size = 1.5 + rng.Float64()*3
		p.VX = (rng.Float64() - 0.5) * 1.2
		p.VY = -(1 + rng.Float64()*2.5)
		p.Alpha = 1
		p.Decay = 0.003 + rng.Float64()*0.006
	default:
		p.Size = rng.Float64()*2 + 1
		p.VX = (rng.Float64() - 0.5) * 0.2
		p.VY = (rng.Float64() - 0.5) * 0.2
		p.Alpha = rng.Float64() * 0.15
	}
	return p
}

// Advance moves p one frame along its kind's motion law.
func Advance(p *Particle, w, h float64, rng *rand.Rand) {
	switch p.Kind {
	case Snow:
		p.Phase += 0.02
		p.X += math.Sin(p.Phase) * 0.6
		p.Y += p.VY
	case Ember:
		p.X += p.VX
		p.Y += p.VY
		p.Alpha -= p.Decay
		if p.Alpha <= 0 || p.Y < -p.Size {
			// respawn at the bottom with a fresh x
			*p = spawn(Ember, w, h, rng)
			p.Y = h + p.Size
			p.Alpha = 1
		}
		return
	default:
		p.X += p.VX
		p.Y += p.VY
	}
	wrap(p, w, h)
}

func wrap(p *Particle, w, h float64) {
	if p.X < 0 {
		p.X += w
	} else if p.X >= w {
		p.X -= w
	}
	if p.Y < 0 {
		p.Y += h
	} else if p.Y >= h {
		p.Y -= h
	}
}

// Draw rasterizes p onto dst.
func Draw(dst *image.RGBA, p *Particle) {
	if p.Alpha <= 0 {
		return
	}
	var c color.NRGBA
	switch p.Kind {
	case Ember:
		c = color.NRGBA{R: 255, G: 140, B: 40, A: alpha8(p.Alpha)}
	case Rain:
		c = color.NRGBA{R: 200, G: 210, B: 230, A: alpha8(p.Alpha)}
	default:
		c = color.NRGBA{R: 255, G: 255, B: 255, A: alpha8(p.Alpha)}
	}

	if p.Kind == Rain {
		streak(dst, p.X, p.Y, p.X+p.VX, p.Y+p.VY, p.Size, c)
		return
	}
	dot(dst, p.X, p.Y, p.Size, c)
}

func alpha8(a float64) uint8 {
	if a >= 1 {
		return 255
	}
	if a <= 0 {
		return 0
	}
	return uint8(a * 255)
}

func dot(dst *image.RGBA, cx, cy, r float64, c color.Color) {
	box := image.Rect(int(cx-r)-1, int(cy-r)-1, int(cx+r)+2, int(cy+r)+2).Intersect(dst.Bounds())
	if box.Empty() {
		return
	}
	z := vector.NewRasterizer(box.Dx(), box.Dy())
	ox, oy := float32(cx)-float32(box.Min.X), float32(cy)-float32(box.Min.Y)
	const k = 0.5523 // cubic bezier circle constant
	fr := float32(r)
	z.MoveTo(ox+fr, oy)
	z.CubeTo(ox+fr, oy+fr*k, ox+fr*k, oy+fr, ox, oy+fr)
	z.CubeTo(ox-fr*k, oy+fr, ox-fr, oy+fr*k, ox-fr, oy)
	z.CubeTo(ox-fr, oy-fr*k, ox-fr*k, oy-fr, ox, oy-fr)
	z.CubeTo(ox+fr*k, oy-fr, ox+fr, oy-fr*k, ox+fr, oy)
	z.ClosePath()
	z.Draw(dst, box, image.NewUniform(c), image.Point{})
}

func streak(dst *image.RGBA, x0, y0, x1, y1, width float64, c color.Color) {
	minX, maxX := math.Min(x0, x1)-width, math.Max(x0, x1)+width
	minY, maxY := math.Min(y0, y1)-width, math.Max(y0, y1)+width
	box := image.Rect(int(minX)-1, int(minY)-1, int(maxX)+2, int(maxY)+2).Intersect(dst.Bounds())
	if box.Empty() {
		return
	}
	dx, dy := x1-x0, y1-y0
	l := math.Hypot(dx, dy)
	if l == 0 {
		return
	}
	nx, ny := -dy/l*width/2, dx/l*width/2
	bx, by := float64(box.Min.X), float64(box.Min.Y)

	z := vector.NewRasterizer(box.Dx(), box.Dy())
	z.MoveTo(float32(x0+nx-bx), float32(y0+ny-by))
	z.LineTo(float32(x1+nx-bx), float32(y1+ny-by))
	z.LineTo(float32(x1-nx-bx), float32(y1-ny-by))
	z.LineTo(float32(x0-nx-bx), float32(y0-ny-by))
	z.ClosePath()
	z.Draw(dst, box, image.NewUniform(c), image.Point{})
}

// Field is the live particle set for one effect kind.
type Field struct {
	Kind      Kind
	Particles []Particle
	w, h      float64
	rng       *rand.Rand
}

func Initialize(width, height int, kind Kind, rng *rand.Rand) *Field {
	f := &Field{w: float64(width), h: float64(height), rng: rng}
	f.reset(kind)
	return f
}

func (f *Field) reset(kind Kind) {
	f.Kind = kind
	f.Particles = make([]Particle, Count(kind))
	for i := range f.Particles {
		f.Particles[i] = spawn(kind, f.w, f.h, f.rng)
	}
}

// Ensure recreates the whole set when kind differs from the current one and
// reports whether it did.
func (f *Field) Ensure(kind Kind) bool {
	if f.Kind == kind && f.Particles != nil {
		return false
	}
	f.reset(kind)
	return true
}

func (f *Field) AdvanceAndDraw(dst *image.RGBA) {
	for i := range f.Particles {
		Advance(&f.Particles[i], f.w, f.h, f.rng)
		Draw(dst, &f.Particles[i])
	}
}
