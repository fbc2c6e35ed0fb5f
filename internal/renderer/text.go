package renderer

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Measurer reports the advance width of a string in canvas units.
type Measurer interface {
	Measure(s string) float64
}

// Style is the look of an outlined text line.
type Style struct {
	Fill        color.Color
	Stroke      color.Color
	StrokeWidth float64
}

type lineKey struct {
	s      string
	fill   color.RGBA
	stroke color.RGBA
	width  float64
}

// Text renders outlined single lines with one face. Rendered lines are
// cached because subtitles repeat across many frames.
type Text struct {
	mu      sync.Mutex
	face    font.Face
	ascent  int
	descent int
	cache   map[lineKey]*image.RGBA
}

// LoadFace parses the TrueType/OpenType font at path, or the bundled Go Bold
// when path is empty, at size pixels.
func LoadFace(path string, size float64) (*Text, error) {
	data := gobold.TTF
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		data = b
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("font parse error: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("font face error: %w", err)
	}
	m := face.Metrics()
	return &Text{
		face:    face,
		ascent:  m.Ascent.Ceil(),
		descent: m.Descent.Ceil(),
		cache:   make(map[lineKey]*image.RGBA),
	}, nil
}

func (t *Text) Measure(s string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fix(font.MeasureString(t.face, s))
}

// Height is the ascent plus descent of the face.
func (t *Text) Height() int {
	return t.ascent + t.descent
}

// Line returns s rendered with a stroke underneath the fill. The image is
// padded by the stroke radius and must not be modified.
func (t *Text) Line(s string, st Style) *image.RGBA {
	key := lineKey{s: s, fill: rgba(st.Fill), stroke: rgba(st.Stroke), width: st.StrokeWidth}

	t.mu.Lock()
	defer t.mu.Unlock()
	if img, ok := t.cache[key]; ok {
		return img
	}

	pad := int(math.Ceil(st.StrokeWidth/2)) + 1
	w := font.MeasureString(t.face, s).Ceil()
	bounds := image.Rect(0, 0, w+2*pad, t.ascent+t.descent+2*pad)

	mask := image.NewAlpha(bounds)
	d := font.Drawer{
		Dst:  mask,
		Src:  image.Opaque,
		Face: t.face,
		Dot:  fixed.P(pad, pad+t.ascent),
	}
	d.DrawString(s)

	out := image.NewRGBA(bounds)
	if st.Stroke != nil && st.StrokeWidth > 0 {
		stroke := image.NewUniform(st.Stroke)
		for _, off := range discOffsets(st.StrokeWidth / 2) {
			draw.DrawMask(out, bounds, stroke, image.Point{}, mask, image.Pt(-off.X, -off.Y), draw.Over)
		}
	}
	draw.DrawMask(out, bounds, image.NewUniform(st.Fill), image.Point{}, mask, image.Point{}, draw.Over)

	if len(t.cache) > 256 {
		t.cache = make(map[lineKey]*image.RGBA)
	}
	t.cache[key] = out
	return out
}

// DrawLineCentered draws s centred on cx with its baseline box top at y.
// It returns the rendered line height.
func (t *Text) DrawLineCentered(dst *image.RGBA, s string, cx float64, y int, st Style) int {
	return t.DrawLineFaded(dst, s, cx, y, st, 1)
}

// DrawLineFaded is DrawLineCentered at the given opacity.
func (t *Text) DrawLineFaded(dst *image.RGBA, s string, cx float64, y int, st Style, alpha float64) int {
	line := t.Line(s, st)
	pad := int(math.Ceil(st.StrokeWidth/2)) + 1
	x := int(math.Round(cx)) - line.Bounds().Dx()/2
	r := line.Bounds().Add(image.Pt(x, y-pad))
	if alpha >= 1 {
		draw.Draw(dst, r, line, image.Point{}, draw.Over)
	} else {
		BlendOver(dst, r, line, image.Point{}, alpha)
	}
	return t.Height()
}

// discOffsets samples concentric rings inside radius r so that stamping the
// glyph mask at each offset approximates a round stroke.
func discOffsets(r float64) []image.Point {
	seen := map[image.Point]bool{}
	var pts []image.Point
	for rr := r; rr > 0; rr -= math.Max(1.5, r/4) {
		n := int(math.Ceil(2 * math.Pi * rr / 1.5))
		for i := 0; i < n; i++ {
			a := 2 * math.Pi * float64(i) / float64(n)
			p := image.Pt(int(math.Round(rr*math.Cos(a))), int(math.Round(rr*math.Sin(a))))
			if !seen[p] {
				seen[p] = true
				pts = append(pts, p)
			}
		}
	}
	return pts
}

func rgba(c color.Color) color.RGBA {
	if c == nil {
		return color.RGBA{}
	}
	r, g, b, a := c.RGBA()
	return color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}
}

func fix(v fixed.Int26_6) float64 {
	return float64(v) / 64
}
