package audio

import "sync"

// CaptureSink buffers the mix for a recorder while armed.
type CaptureSink struct {
	mu    sync.Mutex
	armed bool
	buf   []float32
}

func (s *CaptureSink) WriteSamples(p []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.armed {
		s.buf = append(s.buf, p...)
	}
}

func (s *CaptureSink) Arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = true
	s.buf = s.buf[:0]
}

func (s *CaptureSink) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = false
	s.buf = nil
}

func (s *CaptureSink) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// Drain returns the samples captured since the last call.
func (s *CaptureSink) Drain() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) == 0 {
		return nil
	}
	out := make([]float32, len(s.buf))
	copy(out, s.buf)
	s.buf = s.buf[:0]
	return out
}
