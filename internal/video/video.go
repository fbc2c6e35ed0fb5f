// Package video drives an ffmpeg process that muxes raw RGBA frames and
// float PCM into a streamed container.
package video

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"math"
	"os"
	"os/exec"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/storyreel/internal/capture"
	"github.com/ivlev/storyreel/internal/system"
)

var errRecorderClosed = errors.New("recorder closed")

type FFmpegEncoder struct {
	Binary string
	// Quality is the encoder's own scale (CRF, CQ or VideoToolbox bitrate
	// in 100 kbit/s); 0 picks a per-encoder default.
	Quality int
}

// qualityFor resolves the quality setting for one encoder: 0 becomes the
// encoder's default and other values are clamped to its valid range.
func qualityFor(encoderName string, q int) int {
	var def, lo, hi int
	switch encoderName {
	case "h264_videotoolbox":
		def, lo, hi = 75, 1, 500 // Хорошее качество для VideoToolbox
	case "h264_nvenc":
		def, lo, hi = 28, 0, 51 // Эквивалент CRF для NVENC
	case "libvpx-vp9":
		def, lo, hi = 31, 0, 63
	default:
		def, lo, hi = 23, 0, 51 // Стандартный CRF для x264
	}
	if q == 0 {
		return def
	}
	return min(max(q, lo), hi)
}

func NewFFmpegEncoder(quality int) *FFmpegEncoder {
	return &FFmpegEncoder{Binary: "ffmpeg", Quality: quality}
}

// videoEncoderName maps a format's codec to the ffmpeg encoder that
// produces it.
func videoEncoderName(codec string) string {
	switch codec {
	case "vp9":
		return "libvpx-vp9"
	case "vp8":
		return "libvpx"
	case "h264":
		return system.GetBestH264Encoder()
	}
	return ""
}

func audioEncoderName(codec string) string {
	switch codec {
	case "opus":
		return "libopus"
	case "aac":
		return "aac"
	}
	return ""
}

func (e *FFmpegEncoder) Supports(f capture.Format) bool {
	v, a := videoEncoderName(f.VideoCodec), audioEncoderName(f.AudioCodec)
	if v == "" || a == "" {
		return false
	}
	return system.HasEncoder(v) && system.HasEncoder(a)
}

func (e *FFmpegEncoder) buildFFmpegArgs(f capture.Format, p capture.StreamParams, encoderName string) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-framerate", fmt.Sprintf("%d", p.FPS),
		"-i", "pipe:0",
		"-f", "f32le",
		"-ar", fmt.Sprintf("%d", p.SampleRate),
		"-ac", "1",
		"-i", "pipe:3",
		"-map", "0:v", "-map", "1:a",
		"-c:v", encoderName,
		"-pix_fmt", "yuv420p",
	}

	// Качество в зависимости от энкодера
	quality := qualityFor(encoderName, e.Quality)
	switch encoderName {
	case "h264_videotoolbox":
		args = append(args, "-b:v", fmt.Sprintf("%dk", quality*100))
	case "h264_nvenc":
		args = append(args, "-cq", fmt.Sprintf("%d", quality))
	case "libx264":
		args = append(args, "-crf", fmt.Sprintf("%d", quality), "-preset", "veryfast")
	case "libvpx-vp9":
		args = append(args, "-b:v", "0", "-crf", fmt.Sprintf("%d", quality), "-deadline", "realtime", "-cpu-used", "8", "-row-mt", "1")
	case "libvpx":
		args = append(args, "-b:v", "4M", "-deadline", "realtime", "-cpu-used", "8")
	}

	args = append(args, "-c:a", audioEncoderName(f.AudioCodec), "-b:a", "128k")
	switch f.Container {
	case "mp4":
		// стрим в пайп: фрагментированный mp4
		args = append(args, "-movflags", "frag_keyframe+empty_moov+default_base_moof", "-f", "mp4")
	default:
		args = append(args, "-f", f.Container)
	}
	return append(args, "pipe:1")
}

// Open starts ffmpeg. Frames go to stdin, audio to fd 3, and the container
// stream comes back on stdout in chunks passed to onChunk.
func (e *FFmpegEncoder) Open(ctx context.Context, f capture.Format, p capture.StreamParams, onChunk func([]byte)) (capture.Recorder, error) {
	encoderName := videoEncoderName(f.VideoCodec)
	if encoderName == "" {
		return nil, fmt.Errorf("no encoder for codec %s", f.VideoCodec)
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, e.binary(), e.buildFFmpegArgs(f, p, encoderName)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdin pipe error: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe error: %w", err)
	}
	audioR, audioW, err := os.Pipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("audio pipe error: %w", err)
	}
	cmd.ExtraFiles = []*os.File{audioR}

	r := &ffmpegRecorder{
		cmd:    cmd,
		cancel: cancel,
		rect:   image.Rect(0, 0, p.Width, p.Height),
		frames: make(chan *image.RGBA, 8),
		audio:  make(chan []float32, 64),
	}
	cmd.Stderr = &r.stderr

	if err := cmd.Start(); err != nil {
		cancel()
		audioR.Close()
		audioW.Close()
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}
	audioR.Close()

	r.g, _ = errgroup.WithContext(ctx)
	r.g.Go(func() error {
		defer stdin.Close()
		var werr error
		for img := range r.frames {
			if werr == nil {
				werr = writeRawRGBA(stdin, img)
			}
			system.PutImage(img)
		}
		return werr
	})
	r.g.Go(func() error {
		defer audioW.Close()
		var werr error
		for samples := range r.audio {
			if werr == nil {
				werr = writeF32LE(audioW, samples)
			}
		}
		return werr
	})
	r.g.Go(func() error {
		buf := make([]byte, 64*1024)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				onChunk(buf[:n])
			}
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
		}
	})
	return r, nil
}

func (e *FFmpegEncoder) binary() string {
	if e.Binary == "" {
		return "ffmpeg"
	}
	return e.Binary
}

type ffmpegRecorder struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	g      *errgroup.Group
	rect   image.Rectangle
	stderr bytes.Buffer

	mu     sync.Mutex
	closed bool
	frames chan *image.RGBA
	audio  chan []float32
}

func (r *ffmpegRecorder) WriteVideo(frame *image.RGBA) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errRecorderClosed
	}
	img := system.GetImage(r.rect)
	draw.Draw(img, r.rect, frame, frame.Bounds().Min, draw.Src)
	r.frames <- img
	return nil
}

func (r *ffmpegRecorder) WriteAudio(samples []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errRecorderClosed
	}
	c := make([]float32, len(samples))
	copy(c, samples)
	r.audio <- c
	return nil
}

func (r *ffmpegRecorder) shut() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.closed = true
	close(r.frames)
	close(r.audio)
	return true
}

func (r *ffmpegRecorder) Close() error {
	if !r.shut() {
		return errRecorderClosed
	}
	defer r.cancel()
	gerr := r.g.Wait()
	if err := r.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg wait error: %v, output: %s", err, r.stderr.String())
	}
	return gerr
}

func (r *ffmpegRecorder) Abort() {
	r.cancel()
	if r.shut() {
		r.g.Wait()
		r.cmd.Wait()
	}
}

func writeRawRGBA(w io.Writer, img *image.RGBA) error {
	if img.Stride == img.Rect.Dx()*4 {
		_, err := w.Write(img.Pix)
		return err
	}
	for y := 0; y < img.Rect.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+img.Rect.Dx()*4]
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func writeF32LE(w io.Writer, samples []float32) error {
	bp := system.GetBytes(len(samples) * 4)
	defer system.PutBytes(bp)
	b := *bp
	for i, s := range samples {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(s))
	}
	_, err := w.Write(b)
	return err
}
