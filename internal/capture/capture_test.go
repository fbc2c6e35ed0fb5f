package capture

import (
	"context"
	"errors"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeEncoder struct {
	supported map[string]bool
	failOpen  bool
	failVideo bool
	last      *fakeRecorder
}

func (e *fakeEncoder) Supports(f Format) bool { return e.supported[f.Name] }

func (e *fakeEncoder) Open(ctx context.Context, f Format, p StreamParams, onChunk func([]byte)) (Recorder, error) {
	if e.failOpen {
		return nil, errors.New("boom")
	}
	e.last = &fakeRecorder{onChunk: onChunk, failVideo: e.failVideo}
	return e.last, nil
}

type fakeRecorder struct {
	onChunk   func([]byte)
	failVideo bool
	frames    int
	samples   int
	closed    bool
	aborted   bool
}

func (r *fakeRecorder) WriteVideo(frame *image.RGBA) error {
	if r.failVideo {
		return errors.New("pipe closed")
	}
	r.frames++
	r.onChunk([]byte("v"))
	return nil
}

func (r *fakeRecorder) WriteAudio(samples []float32) error {
	r.samples += len(samples)
	r.onChunk([]byte("a"))
	return nil
}

func (r *fakeRecorder) Close() error { r.closed = true; return nil }
func (r *fakeRecorder) Abort()       { r.aborted = true }

type fakeTap struct {
	mu    sync.Mutex
	armed bool
	n     int
}

func (t *fakeTap) Arm()    { t.mu.Lock(); t.armed = true; t.mu.Unlock() }
func (t *fakeTap) Disarm() { t.mu.Lock(); t.armed = false; t.mu.Unlock() }
func (t *fakeTap) Drain() []float32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.armed {
		return nil
	}
	t.n++
	return make([]float32, 100)
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name      string
		supported map[string]bool
		want      string
		wantErr   bool
	}{
		{"vp9 first", map[string]bool{"webm-vp9": true, "mp4-h264": true}, "webm-vp9", false},
		{"fallback to mp4", map[string]bool{"mp4-h264": true}, "mp4-h264", false},
		{"vp8 only", map[string]bool{"webm-vp8": true}, "webm-vp8", false},
		{"nothing", map[string]bool{}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Negotiate(&fakeEncoder{supported: tt.supported}, DefaultFormats)
			if tt.wantErr {
				if !errors.Is(err, ErrNoSupportedFormat) {
					t.Errorf("expected ErrNoSupportedFormat, got %v", err)
				}
				return
			}
			if err != nil || f.Name != tt.want {
				t.Errorf("got %q, %v; want %q", f.Name, err, tt.want)
			}
		})
	}
}

func TestFormatsByName(t *testing.T) {
	fs, err := FormatsByName([]string{"mp4-h264", "WEBM-VP8"})
	if err != nil {
		t.Fatal(err)
	}
	if len(fs) != 2 || fs[0].Ext != ".mp4" || fs[1].VideoCodec != "vp8" {
		t.Errorf("unexpected formats: %+v", fs)
	}
	if _, err := FormatsByName([]string{"avi"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestEngineSession(t *testing.T) {
	dir := t.TempDir()
	enc := &fakeEncoder{supported: map[string]bool{"webm-vp8": true}}
	eng := NewEngine(enc, nil, StreamParams{Width: 4, Height: 4, FPS: 10, SampleRate: 48000}, dir)
	tap := &fakeTap{}

	f, err := eng.Start(context.Background(), "story-x", tap)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if f.Name != "webm-vp8" || !tap.armed || !eng.Active() {
		t.Fatalf("session not set up: %v armed=%v", f.Name, tap.armed)
	}
	if _, err := eng.Start(context.Background(), "again", tap); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("second Start: %v", err)
	}

	frame := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < 20; i++ {
		if err := eng.CaptureFrame(frame); err != nil {
			t.Fatal(err)
		}
	}

	art, err := eng.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if tap.armed || eng.Active() || !enc.last.closed {
		t.Error("session not torn down")
	}
	if art.Frames != 20 || art.Duration != 2*time.Second {
		t.Errorf("artifact: %d frames, %v", art.Frames, art.Duration)
	}
	if art.Path != filepath.Join(dir, "story-x.webm") {
		t.Errorf("path: %s", art.Path)
	}
	data, err := os.ReadFile(art.Path)
	if err != nil {
		t.Fatal(err)
	}
	// one chunk per frame and per drained audio block, plus the final drain
	if int64(len(data)) != art.Size || strings.Count(string(data), "v") != 20 {
		t.Errorf("artifact content: %q", data)
	}
	if enc.last.samples != 100*21 {
		t.Errorf("audio samples: got %d", enc.last.samples)
	}

	if _, err := eng.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Stop without session: %v", err)
	}
}

func TestEngineFailures(t *testing.T) {
	dir := t.TempDir()
	params := StreamParams{Width: 2, Height: 2, FPS: 30, SampleRate: 48000}

	eng := NewEngine(&fakeEncoder{}, nil, params, dir)
	if _, err := eng.Start(context.Background(), "a", nil); !errors.Is(err, ErrNoSupportedFormat) || !errors.Is(err, ErrExport) {
		t.Errorf("no formats: %v", err)
	}

	eng = NewEngine(&fakeEncoder{supported: map[string]bool{"mp4-h264": true}, failOpen: true}, nil, params, dir)
	if _, err := eng.Start(context.Background(), "a", nil); !errors.Is(err, ErrExport) {
		t.Errorf("open failure: %v", err)
	}
	if eng.Active() {
		t.Error("engine active after failed start")
	}

	enc := &fakeEncoder{supported: map[string]bool{"mp4-h264": true}, failVideo: true}
	eng = NewEngine(enc, nil, params, dir)
	tap := &fakeTap{}
	if _, err := eng.Start(context.Background(), "a", tap); err != nil {
		t.Fatal(err)
	}
	if err := eng.CaptureFrame(image.NewRGBA(image.Rect(0, 0, 2, 2))); !errors.Is(err, ErrExport) {
		t.Errorf("write failure: %v", err)
	}
	if eng.Active() || !enc.last.aborted || tap.armed {
		t.Error("failed session not aborted")
	}
	eng.Cancel()
}

func TestEngineCancelDiscards(t *testing.T) {
	dir := t.TempDir()
	enc := &fakeEncoder{supported: map[string]bool{"webm-vp9": true}}
	eng := NewEngine(enc, nil, StreamParams{FPS: 30}, dir)
	if _, err := eng.Start(context.Background(), "gone", nil); err != nil {
		t.Fatal(err)
	}
	eng.CaptureFrame(image.NewRGBA(image.Rect(0, 0, 1, 1)))
	eng.Cancel()
	eng.Cancel()

	if !enc.last.aborted {
		t.Error("recorder not aborted")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("cancel left %d files", len(entries))
	}
}

func TestFileName(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	if got := FileName("abc", at); got != "story-abc-20240309-140507" {
		t.Errorf("got %s", got)
	}
	if got := FileName("", at); got != "story-untitled-20240309-140507" {
		t.Errorf("got %s", got)
	}
}

func TestHTTPUploader(t *testing.T) {
	var gotAuth, gotType, gotName, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotName = r.Header.Get("X-Filename")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "story.mp4")
	os.WriteFile(path, []byte("movie"), 0644)
	art := &Artifact{Path: path, Name: "story.mp4", Format: DefaultFormats[2], Size: 5}

	up := NewHTTPUploader(context.Background(), srv.URL, "secret")
	if err := up.Upload(context.Background(), art); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if gotAuth != "Bearer secret" || gotType != DefaultFormats[2].MimeType || gotName != "story.mp4" || gotBody != "movie" {
		t.Errorf("request: auth=%q type=%q name=%q body=%q", gotAuth, gotType, gotName, gotBody)
	}
}

func TestHTTPUploaderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "a.webm")
	os.WriteFile(path, []byte("x"), 0644)
	up := NewHTTPUploader(context.Background(), srv.URL, "")
	err := up.Upload(context.Background(), &Artifact{Path: path, Name: "a.webm", Size: 1})
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("expected 403 error, got %v", err)
	}
}
