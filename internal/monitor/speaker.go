// Package monitor plays the mix on the local audio device.
package monitor

import (
	"math"
	"sync"

	"github.com/hajimehoshi/oto/v2"
)

const (
	channelCount = 2
	formatF32LE  = oto.FormatFloat32LE
	bytesPerF32  = 4
)

// Speaker is an audio.Destination backed by an oto player. Samples written
// by the graph are queued in a bounded ring; when the device falls behind,
// the oldest audio is dropped rather than blocking the mixer.
type Speaker struct {
	ctx    *oto.Context
	player oto.Player

	mu     sync.Mutex
	cond   *sync.Cond
	ring   []float32
	head   int
	size   int
	closed bool
}

func NewSpeaker(sampleRate int, volume float64) (*Speaker, error) {
	ctx, ready, err := oto.NewContext(sampleRate, channelCount, formatF32LE)
	if err != nil {
		return nil, err
	}
	<-ready

	s := &Speaker{
		ctx:  ctx,
		ring: make([]float32, sampleRate*2),
	}
	s.cond = sync.NewCond(&s.mu)
	s.player = ctx.NewPlayer(s)
	s.player.SetVolume(volume)
	s.player.Play()
	return s, nil
}

func (s *Speaker) WriteSamples(p []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, v := range p {
		if s.size == len(s.ring) {
			s.head = (s.head + 1) % len(s.ring)
			s.size--
		}
		s.ring[(s.head+s.size)%len(s.ring)] = v
		s.size++
	}
	s.cond.Signal()
}

// Read implements io.Reader for the oto player: mono samples are duplicated
// into float32 little-endian stereo frames.
func (s *Speaker) Read(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.size == 0 && !s.closed {
		s.cond.Wait()
	}
	frames := len(buf) / (channelCount * bytesPerF32)
	if frames > s.size {
		frames = s.size
	}
	if s.closed && frames == 0 {
		// keep the device fed with silence until the player is closed
		frames = len(buf) / (channelCount * bytesPerF32)
		for i := 0; i < frames; i++ {
			putStereoF32(buf, i, 0)
		}
		return frames * channelCount * bytesPerF32, nil
	}
	for i := 0; i < frames; i++ {
		putStereoF32(buf, i, s.ring[s.head])
		s.head = (s.head + 1) % len(s.ring)
		s.size--
	}
	return frames * channelCount * bytesPerF32, nil
}

func (s *Speaker) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	return s.player.Close()
}

// putStereoF32 writes one sample as float32 LE to both channels of frame i.
func putStereoF32(buf []byte, i int, sample float32) {
	v := math.Float32bits(sample)
	buf[i*8] = byte(v)
	buf[i*8+1] = byte(v >> 8)
	buf[i*8+2] = byte(v >> 16)
	buf[i*8+3] = byte(v >> 24)
	buf[i*8+4] = byte(v)
	buf[i*8+5] = byte(v >> 8)
	buf[i*8+6] = byte(v >> 16)
	buf[i*8+7] = byte(v >> 24)
}
