package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"
)

// NarrationRate is the sample rate of raw TTS payloads.
const NarrationRate = 24000

var ErrMalformedPCM = errors.New("malformed pcm payload")

// DecodePCM16 decodes little-endian signed 16-bit mono samples.
func DecodePCM16(raw []byte, rate int) (*Buffer, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformedPCM)
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("%w: odd length %d", ErrMalformedPCM, len(raw))
	}
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		v := int16(raw[2*i]) | int16(raw[2*i+1])<<8
		samples[i] = float32(v) / 32768.0
	}
	return &Buffer{SampleRate: rate, Samples: samples}, nil
}

// DecodeMP3 decodes an mp3 stream to mono at the given rate.
func DecodeMP3(r io.Reader, rate int) (*Buffer, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode failed: %w", err)
	}

	var samples []float32
	buf := make([]byte, 4096)
	var carry []byte
	for {
		n, err := decoder.Read(buf)
		if n > 0 {
			chunk := append(carry, buf[:n]...)
			// stereo int16 frames: L, R
			frames := len(chunk) / 4
			for i := 0; i < frames; i++ {
				l := int16(chunk[4*i]) | int16(chunk[4*i+1])<<8
				r := int16(chunk[4*i+2]) | int16(chunk[4*i+3])<<8
				samples = append(samples, (float32(l)+float32(r))/65536.0)
			}
			carry = append(carry[:0], chunk[frames*4:]...)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("mp3 read failed: %w", err)
		}
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("mp3 contains no samples")
	}
	b := &Buffer{SampleRate: decoder.SampleRate(), Samples: samples}
	return b.Resample(rate), nil
}

// LoadFile decodes a narration or bed file by extension. Raw .pcm and .raw
// files are 16-bit mono at NarrationRate.
func LoadFile(path string, rate int) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pcm", ".raw":
		b, err := DecodePCM16(data, NarrationRate)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		return b.Resample(rate), nil
	case ".mp3":
		b, err := DecodeMP3(bytes.NewReader(data), rate)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("unsupported audio format: %s", filepath.Ext(path))
}
