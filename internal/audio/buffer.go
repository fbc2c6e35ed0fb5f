package audio

import "time"

// Buffer is decoded mono PCM in the [-1, 1] range.
type Buffer struct {
	SampleRate int
	Samples    []float32
}

func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// Resample converts the buffer to rate using linear interpolation.
// The receiver is returned unchanged when the rates already match.
func (b *Buffer) Resample(rate int) *Buffer {
	if b == nil || rate <= 0 || rate == b.SampleRate || len(b.Samples) == 0 {
		return b
	}
	n := int(int64(len(b.Samples)) * int64(rate) / int64(b.SampleRate))
	out := make([]float32, n)
	step := float64(b.SampleRate) / float64(rate)
	last := len(b.Samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = b.Samples[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = b.Samples[j]*(1-frac) + b.Samples[j+1]*frac
	}
	return &Buffer{SampleRate: rate, Samples: out}
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
