// Package playback sequences the scenes of a story: it owns the session
// state, tracks narration progress against the audio clock, runs the
// transition and recording timers, and hands every frame to the
// compositor and the capture engine.
package playback

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/ivlev/storyreel/internal/audio"
	"github.com/ivlev/storyreel/internal/capture"
	"github.com/ivlev/storyreel/internal/compositor"
	"github.com/ivlev/storyreel/internal/config"
	"github.com/ivlev/storyreel/internal/story"
)

var (
	ErrNoScenes  = errors.New("story has no scenes")
	ErrNoCapture = errors.New("no capture engine configured")
	ErrRunning   = errors.New("frame loop already running")
)

type Options struct {
	Config    *config.Config
	Music     *audio.Buffer
	SoundBeds map[story.SoundEffect]*audio.Buffer
	Logo      image.Image
	Capture   *capture.Engine
	// Monitor receives the mix alongside the capture sink (speaker output).
	Monitor audio.Destination
	Rand    *rand.Rand

	OnEvent  func(Event)
	OnExport func(*capture.Artifact, error)
	// OnFrame receives every frame drawn by Run.
	OnFrame func(*image.RGBA)
}

type timer struct {
	at time.Duration
	fn func()
}

type Player struct {
	mu sync.Mutex

	cfg     *config.Config
	opts    Options
	scenes  []Scene
	meta    Meta
	graph   *audio.Graph
	comp    *compositor.Compositor
	capture *capture.Engine

	state      Snapshot
	sceneStart time.Duration
	subtitles  bool
	lang       story.Lang

	// tracker
	tracking   bool
	narrStart  time.Duration
	narrOffset time.Duration
	pausedAt   time.Duration
	awaiting   bool

	now    time.Duration
	timers []timer
	queue  []func()

	// capture clock: frames owed to the recorder are counted from capStart
	capStart  time.Duration
	capFrames int

	realtime   bool
	loopCancel context.CancelFunc
	loopDone   chan struct{}
	closed     bool
}

// Open builds the audio graph and the compositor for a session. The player
// starts on the cover.
func Open(scenes []Scene, meta Meta, opts Options) (*Player, error) {
	if len(scenes) == 0 {
		return nil, ErrNoScenes
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	narrations := make([]*audio.Buffer, len(scenes))
	comp := make([]compositor.Scene, len(scenes))
	for i, s := range scenes {
		if s.Narration == nil {
			return nil, fmt.Errorf("scene %d: narration missing", i+1)
		}
		narrations[i] = s.Narration.Resample(cfg.SampleRate)
		comp[i] = compositor.Scene{Image: s.Image, Visual: s.Visual}
	}

	beds := make(map[story.SoundEffect]*audio.Buffer, len(opts.SoundBeds))
	for tag, b := range opts.SoundBeds {
		beds[tag] = b.Resample(cfg.SampleRate)
	}

	c, err := compositor.New(compositor.Options{
		Width:     cfg.Width,
		Height:    cfg.Height,
		ZoomSpeed: cfg.ZoomSpeed,
		MaxZoom:   cfg.MaxZoom,
		FontPath:  cfg.FontPath,
		Rand:      opts.Rand,
	}, comp, meta.Cover)
	if err != nil {
		return nil, fmt.Errorf("compositor: %w", err)
	}
	if opts.Logo != nil {
		c.SetLogo(opts.Logo)
	}

	g := audio.NewGraph(audio.GraphOptions{
		SampleRate:        cfg.SampleRate,
		Narrations:        narrations,
		Music:             opts.Music.Resample(cfg.SampleRate),
		SoundBeds:         beds,
		MusicVolume:       cfg.MusicVolume,
		SFXVolume:         cfg.SFXVolume,
		BackgroundEnabled: cfg.BackgroundEnabled,
	})
	if opts.Monitor != nil {
		g.Connect(opts.Monitor)
	}

	p := &Player{
		cfg:       cfg,
		opts:      opts,
		scenes:    scenes,
		meta:      meta,
		graph:     g,
		comp:      c,
		capture:   opts.Capture,
		subtitles: cfg.SubtitlesEnabled,
		lang:      story.Lang(cfg.SubtitleLang),
	}
	p.state = Snapshot{Phase: PhaseCover, PrevScene: -1}
	return p, nil
}

// unlock releases the mutex and then runs queued callbacks, so callbacks
// may call back into the player.
func (p *Player) unlock() {
	q := p.queue
	p.queue = nil
	p.mu.Unlock()
	for _, fn := range q {
		fn()
	}
}

func (p *Player) emit(kind EventKind, scene int) {
	if p.opts.OnEvent == nil {
		return
	}
	fn, ev := p.opts.OnEvent, Event{Kind: kind, Scene: scene, At: p.now}
	p.queue = append(p.queue, func() { fn(ev) })
}

func (p *Player) exportDone(a *capture.Artifact, err error) {
	if err == nil {
		p.emit(EventRecordingFinished, p.state.Scene)
	}
	if p.opts.OnExport == nil {
		return
	}
	fn := p.opts.OnExport
	p.queue = append(p.queue, func() { fn(a, err) })
}

func (p *Player) Graph() *audio.Graph { return p.graph }

func (p *Player) Len() int { return len(p.scenes) }

func (p *Player) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.state
	s.SceneStart = p.sceneStart
	s.Recording = p.capture != nil && p.capture.Active()
	s.ShowSubtitles = p.subtitles
	s.SubtitleLang = p.lang
	return s
}

// Play starts the sequence from the cover, resumes a paused scene at the
// recorded offset, or starts over after completion.
func (p *Player) Play() {
	p.mu.Lock()
	defer p.unlock()
	if p.closed {
		return
	}
	switch {
	case p.state.Phase == PhaseCover:
		p.beginFromCover()
	case p.state.Phase == PhaseComplete:
		// a recording still in its trailing window ends with this run
		if p.capture != nil && p.capture.Active() {
			p.finishRecording()
		}
		p.reset(false)
		p.beginFromCover()
	case p.state.Playing:
	default:
		p.state.Playing = true
		p.graph.ResumeBeds()
		if p.awaiting {
			p.advance()
		} else {
			p.startNarration(p.state.Scene, p.pausedAt)
		}
	}
}

func (p *Player) Pause() {
	p.mu.Lock()
	defer p.unlock()
	if p.closed || !p.state.Playing {
		return
	}
	if p.tracking {
		p.pausedAt = p.elapsed()
		p.tracking = false
	}
	p.timers = nil
	p.graph.StopNarration()
	p.graph.PauseBeds()
	p.state.Playing = false
}

// Restart returns to the cover, dropping pending timers and any recording.
func (p *Player) Restart() {
	p.mu.Lock()
	defer p.unlock()
	if p.closed {
		return
	}
	p.reset(true)
}

func (p *Player) JumpToCover() { p.Restart() }

func (p *Player) SetSubtitles(on bool) {
	p.mu.Lock()
	p.subtitles = on
	p.mu.Unlock()
}

func (p *Player) SetSubtitleLang(lang story.Lang) {
	p.mu.Lock()
	p.lang = lang
	p.mu.Unlock()
}

func (p *Player) SetBackgroundEnabled(on bool) { p.graph.SetBackgroundEnabled(on) }

func (p *Player) SetVolumes(music, sfx float64) { p.graph.SetVolumes(music, sfx) }

func (p *Player) SetBackgroundMusic(buf *audio.Buffer) {
	p.graph.SetBackgroundMusic(buf.Resample(p.cfg.SampleRate))
}

func (p *Player) SetLogo(img image.Image) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.comp.SetLogo(img)
}

// StartRecording opens a capture session and restarts the sequence from
// scene 0. Narration begins after the capture lead-in. If the session cannot
// be opened, playback is left as it was.
func (p *Player) StartRecording(ctx context.Context) error {
	p.mu.Lock()
	defer p.unlock()
	if p.closed {
		return audio.ErrClosed
	}
	if p.capture == nil {
		return ErrNoCapture
	}
	f, err := p.capture.Start(ctx, capture.FileName(p.meta.ID, p.meta.CreatedAt), p.graph.Sink())
	if err != nil {
		return err
	}
	log.Printf("[*] Запись начата: формат %s", f.Name)
	p.capStart, p.capFrames = p.now, 0

	p.reset(false)
	p.state = Snapshot{Phase: PhasePlaying, Scene: 0, PrevScene: -1, Playing: true}
	p.graph.SetAmbientSoundEffect(p.scenes[0].Sound)
	p.graph.ResumeBeds()
	p.emit(EventRecordingStarted, 0)
	p.after(p.cfg.CaptureLeadIn, func() { p.startNarration(0, 0) })
	return nil
}

// StopRecording finalizes the current recording, which may be truncated.
func (p *Player) StopRecording() (*capture.Artifact, error) {
	p.mu.Lock()
	defer p.unlock()
	if p.capture == nil || !p.capture.Active() {
		return nil, capture.ErrNotRecording
	}
	return p.finishRecording()
}

func (p *Player) finishRecording() (*capture.Artifact, error) {
	a, err := p.capture.Stop()
	if err != nil {
		log.Printf("[!] Ошибка экспорта: %v", err)
	}
	p.exportDone(a, err)
	return a, err
}

// Close tears the session down: narration, beds, frame loop, recording and
// finally the graph. Safe to call more than once.
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.graph.StopNarration()
	p.graph.PauseBeds()
	p.timers = nil
	p.tracking = false
	cancel, done := p.loopCancel, p.loopDone
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if p.capture != nil {
		p.capture.Cancel()
	}
	p.graph.Close()
}
