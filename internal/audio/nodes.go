package audio

import (
	"errors"
	"time"
)

// Quantum is the number of frames processed per graph step. Parameter
// changes take effect at the start of the next quantum.
const Quantum = 128

var ErrSourceUsed = errors.New("audio source already started")

// BufferSource plays a buffer once. A stopped or finished source cannot be
// restarted; create a new one instead.
type BufferSource struct {
	buf     *Buffer
	pos     int
	started bool
	stopped bool
}

func NewBufferSource(buf *Buffer) *BufferSource {
	return &BufferSource{buf: buf}
}

func (s *BufferSource) Start(offset time.Duration) error {
	if s.started {
		return ErrSourceUsed
	}
	s.started = true
	if offset > 0 && s.buf != nil {
		s.pos = int(offset.Seconds() * float64(s.buf.SampleRate))
	}
	return nil
}

func (s *BufferSource) Stop() {
	s.stopped = true
}

func (s *BufferSource) Active() bool {
	return s.started && !s.stopped && s.buf != nil && s.pos < len(s.buf.Samples)
}

func (s *BufferSource) mix(out []float32) {
	if !s.Active() {
		return
	}
	n := copyLen(out, len(s.buf.Samples)-s.pos)
	for i := 0; i < n; i++ {
		out[i] += s.buf.Samples[s.pos+i]
	}
	s.pos += n
}

// LoopSource plays a buffer in a loop while it is playing.
type LoopSource struct {
	buf     *Buffer
	pos     int
	playing bool
}

func NewLoopSource(buf *Buffer) *LoopSource {
	return &LoopSource{buf: buf}
}

func (s *LoopSource) Play()  { s.playing = true }
func (s *LoopSource) Pause() { s.playing = false }

func (s *LoopSource) Playing() bool { return s.playing }

func (s *LoopSource) mix(out []float32, gain float32) {
	if !s.playing || s.buf == nil || len(s.buf.Samples) == 0 {
		return
	}
	for i := range out {
		out[i] += s.buf.Samples[s.pos] * gain
		s.pos++
		if s.pos == len(s.buf.Samples) {
			s.pos = 0
		}
	}
}

// Gain holds a scalar applied to a bed. Set schedules the value for the
// next quantum so a running source never restarts.
type Gain struct {
	value   float32
	pending float32
	dirty   bool
}

func (g *Gain) Set(v float64) {
	if v < 0 {
		v = 0
	}
	g.pending = float32(v)
	g.dirty = true
}

func (g *Gain) Value() float64 { return float64(g.value) }

func (g *Gain) tick() {
	if g.dirty {
		g.value = g.pending
		g.dirty = false
	}
}

func copyLen(out []float32, remaining int) int {
	if remaining < len(out) {
		return remaining
	}
	return len(out)
}
