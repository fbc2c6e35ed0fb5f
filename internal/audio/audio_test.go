package audio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ivlev/storyreel/internal/story"
)

func constBuffer(rate int, d time.Duration, v float32) *Buffer {
	n := int(d.Seconds() * float64(rate))
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return &Buffer{SampleRate: rate, Samples: s}
}

type recordDest struct {
	samples []float32
}

func (r *recordDest) WriteSamples(p []float32) {
	r.samples = append(r.samples, p...)
}

func TestDecodePCM16(t *testing.T) {
	raw := []byte{
		0x00, 0x00, // 0
		0xff, 0x7f, // 32767
		0x00, 0x80, // -32768
		0x00, 0x40, // 16384
	}
	b, err := DecodePCM16(raw, NarrationRate)
	if err != nil {
		t.Fatalf("DecodePCM16: %v", err)
	}
	want := []float32{0, 32767.0 / 32768.0, -1, 0.5}
	if len(b.Samples) != len(want) {
		t.Fatalf("got %d samples, want %d", len(b.Samples), len(want))
	}
	for i, w := range want {
		if b.Samples[i] != w {
			t.Errorf("sample %d: got %f, want %f", i, b.Samples[i], w)
		}
	}
	if b.SampleRate != NarrationRate {
		t.Errorf("rate: got %d", b.SampleRate)
	}
}

func TestDecodePCM16Malformed(t *testing.T) {
	for _, raw := range [][]byte{nil, {0x01}, {0x01, 0x02, 0x03}} {
		if _, err := DecodePCM16(raw, NarrationRate); !errors.Is(err, ErrMalformedPCM) {
			t.Errorf("len %d: expected ErrMalformedPCM, got %v", len(raw), err)
		}
	}
}

func TestLoadFilePCM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene_01.pcm")
	raw := make([]byte, NarrationRate*2) // one second
	os.WriteFile(path, raw, 0644)

	b, err := LoadFile(path, 48000)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if b.SampleRate != 48000 || len(b.Samples) != 48000 {
		t.Errorf("resample: rate %d, %d samples", b.SampleRate, len(b.Samples))
	}
	if b.Duration() != time.Second {
		t.Errorf("Duration: %v", b.Duration())
	}

	bad := filepath.Join(t.TempDir(), "x.wav")
	os.WriteFile(bad, raw, 0644)
	if _, err := LoadFile(bad, 48000); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestBufferSourceSingleUse(t *testing.T) {
	src := NewBufferSource(constBuffer(8000, time.Second, 0.1))
	if err := src.Start(0); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	src.Stop()
	src.Stop()
	if err := src.Start(0); !errors.Is(err, ErrSourceUsed) {
		t.Errorf("restart: expected ErrSourceUsed, got %v", err)
	}
	if src.Active() {
		t.Error("stopped source should not be active")
	}
}

func TestGainAppliesAtNextQuantum(t *testing.T) {
	g := NewGraph(GraphOptions{
		SampleRate:        8000,
		Music:             constBuffer(8000, time.Second, 1),
		MusicVolume:       0.5,
		BackgroundEnabled: true,
	})
	dest := &recordDest{}
	g.Connect(dest)
	g.ResumeBeds()

	g.Render(Quantum)
	g.SetVolumes(0.25, 0)
	if _, m, _ := g.BedState(); m != 0.5 {
		t.Errorf("gain changed before the next quantum: %f", m)
	}
	g.Render(Quantum)

	if got := dest.samples[Quantum-1]; got != 0.5 {
		t.Errorf("first quantum: got %f, want 0.5", got)
	}
	for i := Quantum; i < 2*Quantum; i++ {
		if dest.samples[i] != 0.25 {
			t.Fatalf("second quantum sample %d: got %f, want 0.25", i, dest.samples[i])
		}
	}
}

// Disabling background music silences it while narration keeps going.
func TestBackgroundDisableKeepsNarration(t *testing.T) {
	g := NewGraph(GraphOptions{
		SampleRate:        8000,
		Narrations:        []*Buffer{constBuffer(8000, time.Second, 0.2)},
		Music:             constBuffer(8000, time.Second, 0.5),
		MusicVolume:       0.5,
		BackgroundEnabled: true,
	})
	dest := &recordDest{}
	g.Connect(dest)
	g.ResumeBeds()
	if _, err := g.PlayNarration(0, 0); err != nil {
		t.Fatal(err)
	}
	g.Render(Quantum)

	g.SetBackgroundEnabled(false)
	g.Render(Quantum)

	playing, musicGain, _ := g.BedState()
	if musicGain != 0 {
		t.Errorf("music gain: got %f, want 0", musicGain)
	}
	if !playing {
		t.Error("beds should still be in playing state")
	}
	if !g.NarrationActive() {
		t.Error("narration should still be active")
	}
	last := dest.samples[len(dest.samples)-1]
	if math.Abs(float64(last)-0.2) > 1e-6 {
		t.Errorf("output after disable: got %f, want narration only (0.2)", last)
	}
}

func TestPlayNarrationReplacesSource(t *testing.T) {
	g := NewGraph(GraphOptions{
		SampleRate: 8000,
		Narrations: []*Buffer{constBuffer(8000, time.Second, 0.3), constBuffer(8000, time.Second, 0.1)},
	})
	dest := &recordDest{}
	g.Connect(dest)

	g.PlayNarration(0, 0)
	g.Render(Quantum)
	start, err := g.PlayNarration(1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if start != g.CurrentTime() {
		t.Errorf("start clock %v != current %v", start, g.CurrentTime())
	}
	g.Render(Quantum)
	if got := dest.samples[len(dest.samples)-1]; math.Abs(float64(got)-0.1) > 1e-6 {
		t.Errorf("only the new narration should play, got %f", got)
	}

	if _, err := g.PlayNarration(2, 0); err == nil {
		t.Error("expected out-of-range error")
	}
}

func TestNarrationOffset(t *testing.T) {
	ramp := &Buffer{SampleRate: 1000, Samples: make([]float32, 1000)}
	for i := range ramp.Samples {
		ramp.Samples[i] = float32(i) / 1000
	}
	g := NewGraph(GraphOptions{SampleRate: 1000, Narrations: []*Buffer{ramp}})
	dest := &recordDest{}
	g.Connect(dest)
	g.PlayNarration(0, 500*time.Millisecond)
	g.Render(1)
	if got := dest.samples[0]; got != 0.5 {
		t.Errorf("offset start sample: got %f, want 0.5", got)
	}
}

func TestSetAmbientSoundEffect(t *testing.T) {
	beds := map[story.SoundEffect]*Buffer{
		story.SoundRain:    constBuffer(8000, time.Second, 0.1),
		story.SoundThunder: constBuffer(8000, time.Second, 0.2),
	}
	g := NewGraph(GraphOptions{SampleRate: 8000, SoundBeds: beds, SFXVolume: 1})
	dest := &recordDest{}
	g.Connect(dest)
	g.ResumeBeds()

	g.SetAmbientSoundEffect(story.SoundRain)
	g.Render(Quantum)
	if g.AmbientSoundEffect() != story.SoundRain {
		t.Fatalf("tag: %s", g.AmbientSoundEffect())
	}

	g.SetAmbientSoundEffect(story.SoundNone)
	g.Render(Quantum)
	if g.AmbientSoundEffect() != story.SoundNone {
		t.Errorf("none should clear the bed, got %s", g.AmbientSoundEffect())
	}
	if got := dest.samples[len(dest.samples)-1]; got != 0 {
		t.Errorf("cleared bed still audible: %f", got)
	}

	g.SetAmbientSoundEffect(story.SoundForest)
	if g.AmbientSoundEffect() != story.SoundNone {
		t.Errorf("missing bed should leave none, got %s", g.AmbientSoundEffect())
	}
}

func TestSetBackgroundMusicPreservesPlayState(t *testing.T) {
	g := NewGraph(GraphOptions{SampleRate: 8000, MusicVolume: 1, BackgroundEnabled: true})
	dest := &recordDest{}
	g.Connect(dest)

	g.SetBackgroundMusic(constBuffer(8000, time.Second, 0.4))
	g.Render(Quantum)
	if got := dest.samples[len(dest.samples)-1]; got != 0 {
		t.Errorf("paused bed should stay paused after swap, got %f", got)
	}

	g.ResumeBeds()
	g.SetBackgroundMusic(constBuffer(8000, time.Second, 0.6))
	g.Render(Quantum)
	if got := dest.samples[len(dest.samples)-1]; math.Abs(float64(got)-0.6) > 1e-6 {
		t.Errorf("playing bed should keep playing after swap, got %f", got)
	}
}

func TestCaptureSinkOnlyWhileArmed(t *testing.T) {
	g := NewGraph(GraphOptions{SampleRate: 8000, Narrations: []*Buffer{constBuffer(8000, time.Second, 0.3)}})
	g.PlayNarration(0, 0)
	g.Render(Quantum)
	if got := g.Sink().Drain(); got != nil {
		t.Errorf("disarmed sink captured %d samples", len(got))
	}

	g.Sink().Arm()
	g.Render(2 * Quantum)
	if got := g.Sink().Drain(); len(got) != 2*Quantum {
		t.Errorf("armed sink: got %d samples", len(got))
	}
	if got := g.Sink().Drain(); got != nil {
		t.Errorf("drain should reset, got %d", len(got))
	}
}

func TestClosedGraphIsInert(t *testing.T) {
	g := NewGraph(GraphOptions{SampleRate: 8000, Narrations: []*Buffer{constBuffer(8000, time.Second, 0.3)}})
	g.Close()
	g.Close()
	if _, err := g.PlayNarration(0, 0); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	before := g.CurrentTime()
	g.Render(Quantum)
	g.StopNarration()
	g.PauseBeds()
	g.ResumeBeds()
	if g.CurrentTime() != before {
		t.Error("closed graph should not advance")
	}
}

func TestRenderUntilAdvancesClock(t *testing.T) {
	g := NewGraph(GraphOptions{SampleRate: 48000})
	g.RenderUntil(100 * time.Millisecond)
	if got := g.CurrentTime(); got < 100*time.Millisecond || got > 100*time.Millisecond+3*time.Millisecond {
		t.Errorf("clock after RenderUntil: %v", got)
	}
}

func TestResample(t *testing.T) {
	b := &Buffer{SampleRate: 2, Samples: []float32{0, 1}}
	r := b.Resample(4)
	want := []float32{0, 0.5, 1, 1}
	for i, w := range want {
		if r.Samples[i] != w {
			t.Errorf("sample %d: got %f, want %f", i, r.Samples[i], w)
		}
	}
}

func TestDriverStopIdempotent(t *testing.T) {
	g := NewGraph(GraphOptions{SampleRate: 8000})
	d := NewDriver(g, time.Millisecond)
	d.Start()
	time.Sleep(20 * time.Millisecond)
	d.Stop()
	d.Stop()
	if g.CurrentTime() == 0 {
		t.Error("driver did not render")
	}

	idle := NewDriver(g, time.Millisecond)
	idle.Stop()
}
