// Package compositor draws story frames: scene stills with a slow zoom and
// crossfades, ambient particles, storm flashes, a legibility gradient, the
// corner logo and outlined subtitles or the cover title.
package compositor

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/image/draw"

	"github.com/ivlev/storyreel/internal/analyzer"
	"github.com/ivlev/storyreel/internal/effects"
	"github.com/ivlev/storyreel/internal/particles"
	"github.com/ivlev/storyreel/internal/renderer"
	"github.com/ivlev/storyreel/internal/story"
)

// Layout constants are for a 1080 px wide canvas and scale with width.
const (
	baseWidth = 1080.0

	subtitleSize   = 96
	subtitleStroke = 28
	subtitleBottom = 480
	subtitleLeadPx = 10
	subtitleRisePx = 24
	subtitleFadeIn = 300 * time.Millisecond

	titleSize   = 115
	titleStroke = 26
	titleLineH  = 145

	logoSize   = 140
	logoMargin = 80
	logoBlur   = 20
	logoRing   = 4

	wrapRatio   = 0.85
	gradientTop = 0.35
	gradientMax = 0.85
	coverBandY  = 0.55
	coverTitleY = 0.68
)

var (
	titleFill    = color.RGBA{R: 0xfb, G: 0xbf, B: 0x24, A: 0xff}
	coverBand    = color.NRGBA{A: 166}
	subtitleLook = renderer.Style{Fill: color.White, Stroke: color.Black}
)

// Scene is what the compositor needs to know about one scene.
type Scene struct {
	Image  image.Image
	Visual story.VisualEffect
}

type Options struct {
	Width, Height int
	ZoomSpeed     float64
	MaxZoom       float64
	FontPath      string
	Rand          *rand.Rand
}

// FrameState is the snapshot of playback read at the top of a frame.
type FrameState struct {
	Cover bool
	Title string

	Scene int
	// PrevScene is the crossfade source; -1 is the cover image.
	PrevScene          int
	Transitioning      bool
	TransitionProgress float64
	SceneElapsed       time.Duration

	Playing       bool
	Progress      float64
	ShowSubtitles bool
	Subtitle      string
}

type still struct {
	img    image.Image
	fx, fy float64
}

type Compositor struct {
	opts  Options
	scale float64

	scenes  []Scene
	stills  []still
	cover   still
	visuals []story.VisualEffect

	field    *particles.Field
	flash    *effects.Flash
	overlays []effects.Effect

	subtitle *renderer.Text
	title    *renderer.Text

	logoLayer *image.RGBA

	frame *image.RGBA
}

// New prepares a compositor. Focus points of every still are computed up
// front so that drawing never stalls on analysis.
func New(opts Options, scenes []Scene, cover image.Image) (*Compositor, error) {
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.MaxZoom < 1 {
		opts.MaxZoom = 1
	}
	scale := float64(opts.Width) / baseWidth

	sub, err := renderer.LoadFace(opts.FontPath, subtitleSize*scale)
	if err != nil {
		return nil, err
	}
	title, err := renderer.LoadFace(opts.FontPath, titleSize*scale)
	if err != nil {
		return nil, err
	}

	c := &Compositor{
		opts:     opts,
		scale:    scale,
		scenes:   scenes,
		subtitle: sub,
		title:    title,
		frame:    image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height)),
		field:    particles.Initialize(opts.Width, opts.Height, particles.Dust, opts.Rand),
		flash:    effects.NewFlash(opts.Rand),
	}
	c.overlays = []effects.Effect{c.flash}
	c.stills = make([]still, len(scenes))
	for i, s := range scenes {
		fx, fy := analyzer.FocusPoint(s.Image)
		c.stills[i] = still{img: s.Image, fx: fx, fy: fy}
	}
	if cover == nil && len(c.stills) > 0 {
		c.cover = c.stills[0]
	} else {
		fx, fy := analyzer.FocusPoint(cover)
		c.cover = still{img: cover, fx: fx, fy: fy}
	}
	return c, nil
}

func (c *Compositor) Bounds() image.Rectangle { return c.frame.Bounds() }

// SetLogo replaces the corner badge; nil removes it.
func (c *Compositor) SetLogo(img image.Image) {
	c.logoLayer = nil
	if img == nil {
		return
	}
	s := int(math.Round(logoSize * c.scale))
	m := int(math.Round(logoMargin * c.scale))
	r := image.Rect(c.opts.Width-m-s, m, c.opts.Width-m, m+s)
	layer := image.NewRGBA(r)
	sb := img.Bounds()
	// centre-crop to a square before scaling
	side := sb.Dx()
	if sb.Dy() < side {
		side = sb.Dy()
	}
	crop := image.Rect(0, 0, side, side).Add(sb.Min).Add(image.Pt((sb.Dx()-side)/2, (sb.Dy()-side)/2))
	draw.CatmullRom.Scale(layer, r, img, crop, draw.Src, nil)
	c.logoLayer = layer
}

// Draw renders one frame. The returned image is reused by the next call.
func (c *Compositor) Draw(fs FrameState) *image.RGBA {
	dst := c.frame
	renderer.Fill(dst, color.Black)

	if fs.Cover {
		c.drawStill(dst, c.cover, 0, 1)
	} else {
		c.drawScenes(dst, fs)
	}

	visual := story.VisualNone
	if !fs.Cover && fs.Scene >= 0 && fs.Scene < len(c.scenes) {
		visual = c.scenes[fs.Scene].Visual
	}
	c.field.Ensure(effects.ParticlesFor(visual))
	c.field.AdvanceAndDraw(dst)

	c.flash.Armed = effects.Storm(visual)
	for _, fx := range c.overlays {
		fx.Step()
		fx.Draw(dst)
	}

	renderer.Darken(dst, int(float64(c.opts.Height)*gradientTop), gradientMax)

	c.drawLogo(dst)

	switch {
	case fs.Cover:
		c.drawTitle(dst, fs.Title)
	case fs.ShowSubtitles && fs.Playing && !fs.Transitioning:
		fade := renderer.EaseInOutCubic(float64(fs.SceneElapsed) / float64(subtitleFadeIn))
		c.drawSubtitle(dst, SubtitleChunk(fs.Subtitle, fs.Progress), fade)
	}
	return dst
}

func (c *Compositor) drawScenes(dst *image.RGBA, fs FrameState) {
	cur := c.sceneStill(fs.Scene)
	if !fs.Transitioning {
		c.drawStill(dst, cur, fs.SceneElapsed, 1)
		return
	}
	prevAlpha, curAlpha := renderer.Crossfade(fs.TransitionProgress)
	if fs.PrevScene < 0 {
		c.drawStill(dst, c.cover, 0, prevAlpha)
	} else {
		c.drawStill(dst, c.sceneStill(fs.PrevScene), fs.SceneElapsed, prevAlpha)
	}
	c.drawStill(dst, cur, 0, curAlpha)
}

func (c *Compositor) sceneStill(i int) still {
	if i < 0 || i >= len(c.stills) {
		return still{}
	}
	return c.stills[i]
}

func (c *Compositor) drawStill(dst *image.RGBA, s still, elapsed time.Duration, alpha float64) {
	if s.img == nil {
		return
	}
	zoom := renderer.KenBurnsZoom(elapsed, c.opts.ZoomSpeed, c.opts.MaxZoom)
	b := s.img.Bounds()
	r := renderer.CoverRect(b.Dx(), b.Dy(), c.opts.Width, c.opts.Height, zoom, s.fx, s.fy)
	renderer.DrawImage(dst, s.img, r, alpha)
}

func (c *Compositor) drawLogo(dst *image.RGBA) {
	if c.logoLayer == nil {
		return
	}
	r := c.logoLayer.Bounds()
	cx := float64(r.Min.X+r.Max.X) / 2
	cy := float64(r.Min.Y+r.Max.Y) / 2
	radius := float64(r.Dx()) / 2
	renderer.Shadow(dst, cx, cy, radius, logoBlur*c.scale)
	renderer.FillCircle(dst, cx, cy, radius, c.logoLayer)
	renderer.Ring(dst, cx, cy, radius, logoRing*c.scale, color.White)
}

// drawSubtitle draws the wrapped segment bottom-aligned above the subtitle
// margin. Below full fade it is translucent and sits slightly lower.
func (c *Compositor) drawSubtitle(dst *image.RGBA, text string, fade float64) {
	if strings.TrimSpace(text) == "" || fade <= 0 {
		return
	}
	w := float64(c.opts.Width)
	lines := renderer.Wrap(text, w*wrapRatio, c.subtitle)
	st := subtitleLook
	st.StrokeWidth = subtitleStroke * c.scale

	lineH := c.subtitle.Height() + int(subtitleLeadPx*c.scale)
	bottom := c.opts.Height - int(subtitleBottom*c.scale)
	y := bottom - len(lines)*lineH + int(renderer.Lerp(subtitleRisePx*c.scale, 0, fade))
	for _, l := range lines {
		c.subtitle.DrawLineFaded(dst, l, w/2, y, st, fade)
		y += lineH
	}
}

func (c *Compositor) drawTitle(dst *image.RGBA, title string) {
	h := float64(c.opts.Height)
	renderer.FillRect(dst, image.Rect(0, int(h*coverBandY), c.opts.Width, c.opts.Height), coverBand)

	title = strings.ToUpper(strings.TrimSpace(title))
	if title == "" {
		return
	}
	w := float64(c.opts.Width)
	st := renderer.Style{Fill: titleFill, Stroke: color.Black, StrokeWidth: titleStroke * c.scale}
	lines := renderer.Wrap(title, w*wrapRatio, c.title)
	for i, l := range lines {
		y := int(h*coverTitleY + float64(i)*titleLineH*c.scale)
		c.title.DrawLineCentered(dst, l, w/2, y-c.title.Height()/2, st)
	}
}
