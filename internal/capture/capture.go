// Package capture records the composited frames and the mixed audio into a
// single encoded file.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	ErrExport           = errors.New("export failed")
	ErrNotRecording     = errors.New("not recording")
	ErrAlreadyRecording = errors.New("already recording")
)

// StreamParams describes the raw streams fed to an encoder.
type StreamParams struct {
	Width, Height int
	FPS           int
	SampleRate    int
}

// Encoder opens recorder sessions for the formats it supports.
type Encoder interface {
	Supports(f Format) bool
	Open(ctx context.Context, f Format, p StreamParams, onChunk func([]byte)) (Recorder, error)
}

// Recorder is one encoding session. Close flushes and waits for the last
// chunk; Abort discards.
type Recorder interface {
	WriteVideo(frame *image.RGBA) error
	WriteAudio(samples []float32) error
	Close() error
	Abort()
}

// AudioTap is the audio graph's capture sink.
type AudioTap interface {
	Arm()
	Disarm()
	Drain() []float32
}

type Artifact struct {
	Path     string
	Name     string
	Format   Format
	Size     int64
	Frames   int
	Duration time.Duration
}

type session struct {
	format Format
	name   string
	rec    Recorder
	tap    AudioTap
	cancel context.CancelFunc

	mu     sync.Mutex
	chunks [][]byte
	size   int
	frames int
}

func (s *session) onChunk(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := make([]byte, len(b))
	copy(c, b)
	s.chunks = append(s.chunks, c)
	s.size += len(c)
}

// Engine owns at most one capture session at a time.
type Engine struct {
	enc    Encoder
	prefs  []Format
	params StreamParams
	outDir string

	mu      sync.Mutex
	session *session
}

func NewEngine(enc Encoder, prefs []Format, params StreamParams, outDir string) *Engine {
	if len(prefs) == 0 {
		prefs = DefaultFormats
	}
	return &Engine{enc: enc, prefs: prefs, params: params, outDir: outDir}
}

// Start negotiates a format, opens a recorder and arms the audio tap. The
// artifact will be written as <outDir>/<name><ext>.
func (e *Engine) Start(ctx context.Context, name string, tap AudioTap) (Format, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		return Format{}, ErrAlreadyRecording
	}

	f, err := Negotiate(e.enc, e.prefs)
	if err != nil {
		return Format{}, fmt.Errorf("%w: %w", ErrExport, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &session{format: f, name: name, tap: tap, cancel: cancel}
	rec, err := e.enc.Open(ctx, f, e.params, s.onChunk)
	if err != nil {
		cancel()
		return Format{}, fmt.Errorf("%w: open %s: %w", ErrExport, f.Name, err)
	}
	s.rec = rec
	if tap != nil {
		tap.Arm()
	}
	e.session = s
	return f, nil
}

func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil
}

// CaptureFrame feeds one frame plus the audio mixed since the previous one.
// On failure the session is aborted.
func (e *Engine) CaptureFrame(frame *image.RGBA) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session
	if s == nil {
		return ErrNotRecording
	}
	if err := s.rec.WriteVideo(frame); err != nil {
		e.abortLocked()
		return fmt.Errorf("%w: video: %w", ErrExport, err)
	}
	if s.tap != nil {
		if samples := s.tap.Drain(); len(samples) > 0 {
			if err := s.rec.WriteAudio(samples); err != nil {
				e.abortLocked()
				return fmt.Errorf("%w: audio: %w", ErrExport, err)
			}
		}
	}
	s.frames++
	return nil
}

// Stop finalizes the session, joins the accumulated chunks and writes the
// artifact.
func (e *Engine) Stop() (*Artifact, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session
	if s == nil {
		return nil, ErrNotRecording
	}
	e.session = nil
	defer s.cancel()

	if s.tap != nil {
		if samples := s.tap.Drain(); len(samples) > 0 {
			s.rec.WriteAudio(samples)
		}
		s.tap.Disarm()
	}
	if err := s.rec.Close(); err != nil {
		return nil, fmt.Errorf("%w: finalize: %w", ErrExport, err)
	}

	s.mu.Lock()
	data := bytes.Join(s.chunks, nil)
	s.chunks = nil
	s.mu.Unlock()
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: encoder produced no data", ErrExport)
	}

	if err := os.MkdirAll(e.outDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}
	name := s.name + s.format.Ext
	path := filepath.Join(e.outDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}

	var dur time.Duration
	if e.params.FPS > 0 {
		dur = time.Duration(s.frames) * time.Second / time.Duration(e.params.FPS)
	}
	return &Artifact{
		Path:     path,
		Name:     name,
		Format:   s.format,
		Size:     int64(len(data)),
		Frames:   s.frames,
		Duration: dur,
	}, nil
}

// Cancel discards the session, if any. Safe to call at any time.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.abortLocked()
}

func (e *Engine) abortLocked() {
	s := e.session
	if s == nil {
		return
	}
	e.session = nil
	if s.tap != nil {
		s.tap.Disarm()
	}
	s.rec.Abort()
	s.cancel()
}

// FileName is the deterministic artifact base name for a story.
func FileName(storyID string, createdAt time.Time) string {
	id := storyID
	if id == "" {
		id = "untitled"
	}
	return fmt.Sprintf("story-%s-%s", id, createdAt.UTC().Format("20060102-150405"))
}
