package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ivlev/storyreel/internal/story"
)

var ErrClosed = errors.New("audio graph closed")

// Destination receives every rendered quantum of the mix.
type Destination interface {
	WriteSamples(p []float32)
}

// Graph is the fixed mixing topology of one player session: a single-use
// narration source, a looping music bed and a looping sound bed, each bed
// behind its own gain. The output is fanned out to every destination,
// including the capture sink, which is always connected.
type Graph struct {
	mu     sync.Mutex
	rate   int
	frames int64
	closed bool

	narrations []*Buffer
	narration  *BufferSource

	music       *LoopSource
	musicGain   Gain
	musicVolume float64
	bgEnabled   bool

	sfx       *LoopSource
	sfxTag    story.SoundEffect
	sfxGain   Gain
	sfxVolume float64
	sfxBeds   map[story.SoundEffect]*Buffer

	bedsPlaying bool

	sink  *CaptureSink
	dests []Destination
	mix   []float32
}

type GraphOptions struct {
	SampleRate        int
	Narrations        []*Buffer
	Music             *Buffer
	SoundBeds         map[story.SoundEffect]*Buffer
	MusicVolume       float64
	SFXVolume         float64
	BackgroundEnabled bool
}

func NewGraph(opts GraphOptions) *Graph {
	g := &Graph{
		rate:        opts.SampleRate,
		narrations:  opts.Narrations,
		musicVolume: opts.MusicVolume,
		sfxVolume:   opts.SFXVolume,
		bgEnabled:   opts.BackgroundEnabled,
		sfxBeds:     opts.SoundBeds,
		sfxTag:      story.SoundNone,
		sink:        &CaptureSink{},
		mix:         make([]float32, Quantum),
	}
	if opts.Music != nil {
		g.music = NewLoopSource(opts.Music)
	}
	g.dests = []Destination{g.sink}
	g.applyGains()
	return g
}

func (g *Graph) SampleRate() int { return g.rate }

// Sink is the capture destination fed by the graph.
func (g *Graph) Sink() *CaptureSink { return g.sink }

func (g *Graph) Connect(d Destination) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.dests = append(g.dests, d)
}

// CurrentTime is the audio clock: rendered frames divided by the rate.
func (g *Graph) CurrentTime() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.clock()
}

func (g *Graph) clock() time.Duration {
	return time.Duration(g.frames) * time.Second / time.Duration(g.rate)
}

func (g *Graph) NarrationDuration(i int) time.Duration {
	if i < 0 || i >= len(g.narrations) {
		return 0
	}
	return g.narrations[i].Duration()
}

// PlayNarration discards any current narration and starts scene i at offset
// on a fresh source. It returns the audio clock at the start.
func (g *Graph) PlayNarration(i int, offset time.Duration) (time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0, ErrClosed
	}
	if i < 0 || i >= len(g.narrations) {
		return 0, fmt.Errorf("narration index %d out of range [0,%d)", i, len(g.narrations))
	}
	if g.narration != nil {
		g.narration.Stop()
	}
	src := NewBufferSource(g.narrations[i])
	if err := src.Start(offset); err != nil {
		return 0, err
	}
	g.narration = src
	return g.clock(), nil
}

func (g *Graph) StopNarration() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.narration != nil {
		g.narration.Stop()
		g.narration = nil
	}
}

func (g *Graph) NarrationActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.narration != nil && g.narration.Active()
}

// SetBackgroundMusic swaps the music track, keeping the bed's play state.
func (g *Graph) SetBackgroundMusic(buf *Buffer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	if buf == nil {
		g.music = nil
		return
	}
	g.music = NewLoopSource(buf)
	if g.bedsPlaying {
		g.music.Play()
	}
}

func (g *Graph) SetBackgroundEnabled(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bgEnabled = enabled
	g.applyGains()
}

func (g *Graph) SetVolumes(music, sfx float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.musicVolume = music
	g.sfxVolume = sfx
	g.applyGains()
}

func (g *Graph) applyGains() {
	m := g.musicVolume
	if !g.bgEnabled {
		m = 0
	}
	g.musicGain.Set(m)
	g.sfxGain.Set(g.sfxVolume)
}

// SetAmbientSoundEffect loads the bed for tag. The same tag is a no-op;
// none, or a tag without a bed, pauses and clears the current one.
func (g *Graph) SetAmbientSoundEffect(tag story.SoundEffect) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || tag == g.sfxTag {
		return
	}
	if g.sfx != nil {
		g.sfx.Pause()
		g.sfx = nil
	}
	bed := g.sfxBeds[tag]
	if tag == story.SoundNone || bed == nil {
		g.sfxTag = story.SoundNone
		return
	}
	g.sfx = NewLoopSource(bed)
	g.sfxTag = tag
	if g.bedsPlaying {
		g.sfx.Play()
	}
}

func (g *Graph) AmbientSoundEffect() story.SoundEffect {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sfxTag
}

func (g *Graph) PauseBeds() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bedsPlaying = false
	if g.music != nil {
		g.music.Pause()
	}
	if g.sfx != nil {
		g.sfx.Pause()
	}
}

func (g *Graph) ResumeBeds() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.bedsPlaying = true
	if g.music != nil {
		g.music.Play()
	}
	if g.sfx != nil {
		g.sfx.Play()
	}
}

// BedState reports whether beds are playing and the current gains.
func (g *Graph) BedState() (playing bool, musicGain, sfxGain float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bedsPlaying, g.musicGain.Value(), g.sfxGain.Value()
}

// Render processes at least frames frames in whole quanta.
func (g *Graph) Render(frames int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for done := 0; done < frames && !g.closed; done += Quantum {
		g.renderQuantum()
	}
}

// RenderUntil advances the audio clock to at least t.
func (g *Graph) RenderUntil(t time.Duration) {
	target := int64(t.Seconds() * float64(g.rate))
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.frames < target && !g.closed {
		g.renderQuantum()
	}
}

func (g *Graph) renderQuantum() {
	g.musicGain.tick()
	g.sfxGain.tick()

	out := g.mix
	for i := range out {
		out[i] = 0
	}
	if g.narration != nil {
		g.narration.mix(out)
	}
	if g.music != nil {
		g.music.mix(out, float32(g.musicGain.value))
	}
	if g.sfx != nil {
		g.sfx.mix(out, float32(g.sfxGain.value))
	}
	for i := range out {
		out[i] = clamp(out[i])
	}
	for _, d := range g.dests {
		d.WriteSamples(out)
	}
	g.frames += Quantum
}

// Close tears the graph down. Any later call is a no-op.
func (g *Graph) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	if g.narration != nil {
		g.narration.Stop()
		g.narration = nil
	}
	g.music = nil
	g.sfx = nil
	g.bedsPlaying = false
	g.sink.Disarm()
	g.dests = nil
}

func (g *Graph) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}
