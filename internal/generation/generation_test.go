package generation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ivlev/storyreel/internal/config"
	"github.com/ivlev/storyreel/internal/story"
)

func testClient(url string) *GeminiClient {
	cfg := config.Default().Generation
	cfg.BaseURL = url
	cfg.Backoff = time.Millisecond
	return NewGeminiClient("test-key", cfg)
}

func reply(w http.ResponseWriter, parts ...map[string]any) {
	json.NewEncoder(w).Encode(map[string]any{
		"candidates": []any{map[string]any{"content": map[string]any{"parts": parts}}},
	})
}

func TestClientDoRequestWithRetry(t *testing.T) {
	tests := []struct {
		name             string
		statuses         []int
		expectedAttempts int
		expectErr        error
		anyErr           bool
	}{
		{"retries on 503 then succeeds", []int{503, 503, 200}, 3, nil, false},
		{"exhausts retries on 429", []int{429}, 3, nil, true},
		{"permission is final", []int{403}, 1, ErrPermission, true},
		{"unauthorized is final", []int{401}, 1, ErrPermission, true},
		{"bad request is final", []int{400}, 1, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts int32
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := int(atomic.AddInt32(&attempts, 1))
				status := tt.statuses[len(tt.statuses)-1]
				if n <= len(tt.statuses) {
					status = tt.statuses[n-1]
				}
				if status != http.StatusOK {
					w.WriteHeader(status)
					return
				}
				reply(w, map[string]any{"text": `{"title":"T","scenes":[{"storyText":"a"}]}`})
			}))
			defer ts.Close()

			_, err := testClient(ts.URL).GenerateScript(context.Background(), "topic", story.ModeShort)
			if (err != nil) != tt.anyErr {
				t.Fatalf("expected error: %v, got: %v", tt.anyErr, err)
			}
			if tt.expectErr != nil && !errors.Is(err, tt.expectErr) {
				t.Errorf("error %v is not %v", err, tt.expectErr)
			}
			if got := int(atomic.LoadInt32(&attempts)); got != tt.expectedAttempts {
				t.Errorf("attempts: got %d, want %d", got, tt.expectedAttempts)
			}
		})
	}
}

func TestGenerateScriptParsing(t *testing.T) {
	var gotPath, gotKey string
	var gotBody generateRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		json.NewDecoder(r.Body).Decode(&gotBody)
		script := "```json\n" + `{"title":"Lost Cat","mood":"mystery","tags":["a"],"scenes":[
			{"sceneNumber":1,"storyText":"หนึ่ง","englishTranslation":"One","imagePrompt":"p1","visualEffect":"rain","soundEffect":"thunder"},
			{"storyText":"สอง","visualEffect":"lava","soundEffect":""}]}` + "\n```"
		reply(w, map[string]any{"text": script})
	}))
	defer ts.Close()

	s, err := testClient(ts.URL).GenerateScript(context.Background(), "cat", story.ModeMedium)
	if err != nil {
		t.Fatalf("GenerateScript: %v", err)
	}
	if gotPath != "/models/gemini-2.5-flash:generateContent" || gotKey != "test-key" {
		t.Errorf("request: path=%s key=%s", gotPath, gotKey)
	}
	if gotBody.GenerationConfig == nil || gotBody.GenerationConfig.ResponseMimeType != "application/json" {
		t.Errorf("generation config: %+v", gotBody.GenerationConfig)
	}
	if !strings.Contains(gotBody.Contents[0].Parts[0].Text, "exactly 8 scenes") {
		t.Error("prompt does not ask for the mode's scene count")
	}
	if s.Title != "Lost Cat" || s.Mood != story.MoodMystery || len(s.Scenes) != 2 {
		t.Fatalf("script: %+v", s)
	}
	if s.Scenes[0].VisualEffect != story.VisualRain || s.Scenes[0].SoundEffect != story.SoundThunder {
		t.Errorf("scene 1 effects: %+v", s.Scenes[0])
	}
	if s.Scenes[1].Number != 2 || s.Scenes[1].VisualEffect != story.VisualNone || s.Scenes[1].SoundEffect != story.SoundNone {
		t.Errorf("scene 2 defaults: %+v", s.Scenes[1])
	}
}

func TestGenerateMedia(t *testing.T) {
	pcm := []byte{0, 0, 0, 64}
	png := []byte("\x89PNG")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		json.NewDecoder(r.Body).Decode(&req)
		switch {
		case strings.Contains(r.URL.Path, "tts"):
			if v := req.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; v != "Charon" {
				t.Errorf("voice: %s", v)
			}
			reply(w, map[string]any{"inlineData": map[string]any{"mimeType": "audio/pcm", "data": base64.StdEncoding.EncodeToString(pcm)}})
		case strings.Contains(r.URL.Path, "image"):
			reply(w, map[string]any{"text": "here you go"}, map[string]any{"inlineData": map[string]any{"mimeType": "image/png", "data": base64.StdEncoding.EncodeToString(png)}})
		}
	}))
	defer ts.Close()

	c := testClient(ts.URL)
	raw, err := c.GenerateNarrationAudio(context.Background(), "hello", "Charon")
	if err != nil || string(raw) != string(pcm) {
		t.Errorf("audio: %v %v", raw, err)
	}
	img, mime, err := c.GenerateImage(context.Background(), "a cat")
	if err != nil || mime != "image/png" || string(img) != string(png) {
		t.Errorf("image: %q %s %v", img, mime, err)
	}
}

func TestNoContent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer ts.Close()

	_, _, err := testClient(ts.URL).GenerateImage(context.Background(), "x")
	if !errors.Is(err, ErrNoContent) {
		t.Errorf("expected ErrNoContent, got %v", err)
	}
}

func TestUserMessage(t *testing.T) {
	if UserMessage(nil) != "" || UserMessage(ErrCanceled) != "" {
		t.Error("cancel and nil must be silent")
	}
	perm := UserMessage(fmt.Errorf("script: %w", ErrPermission))
	generic := UserMessage(errors.New("boom"))
	if perm == "" || generic == "" || perm == generic {
		t.Errorf("messages: %q / %q", perm, generic)
	}
	if !strings.Contains(perm, "GEMINI_API_KEY") {
		t.Errorf("permission message: %q", perm)
	}
}

// fakeBackend serves canned media and can fail or block on demand.
type fakeBackend struct {
	scenes   int
	badAudio bool
	imageErr error
	block    chan struct{}
}

func (f *fakeBackend) GenerateScript(ctx context.Context, topic string, mode story.Mode) (*story.Script, error) {
	s := &story.Script{Title: "T: " + topic, Mood: story.MoodFunny, CharacterDescription: "a fox"}
	for i := 0; i < f.scenes; i++ {
		s.Scenes = append(s.Scenes, story.SceneScript{Number: i + 1, Text: fmt.Sprintf("line %d", i), ImagePrompt: "forest"})
	}
	return s, nil
}

func (f *fakeBackend) GenerateImage(ctx context.Context, prompt string) ([]byte, string, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	}
	if f.imageErr != nil {
		return nil, "", f.imageErr
	}
	if !strings.Contains(prompt, "a fox") {
		return nil, "", errors.New("character missing from prompt")
	}
	return []byte("jpeg"), "image/jpeg", nil
}

func (f *fakeBackend) GenerateNarrationAudio(ctx context.Context, text, voice string) ([]byte, error) {
	if f.badAudio {
		return []byte{1, 2, 3}, nil
	}
	return make([]byte, 4800), nil
}

func TestPipelineWritesBundle(t *testing.T) {
	dir := t.TempDir()
	p := NewPipeline(&fakeBackend{scenes: 3}, dir, 2)
	s, manifest, err := p.Run(context.Background(), Request{
		Topic:    "fox",
		Mode:     story.ModeShort,
		Settings: story.Settings{VoiceGender: "male", VoiceTone: "deep"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Status != story.StatusReady || s.ID == "" || s.Cover != "scene-01.jpg" {
		t.Errorf("story: %+v", s)
	}

	loaded, err := story.Load(manifest)
	if err != nil {
		t.Fatalf("Load manifest: %v", err)
	}
	runDir := filepath.Dir(manifest)
	for i, sc := range loaded.Scenes {
		for _, name := range []string{sc.Image, sc.Audio} {
			if name == "" {
				t.Errorf("scene %d: missing file reference", i+1)
				continue
			}
			if _, err := os.Stat(filepath.Join(runDir, name)); err != nil {
				t.Errorf("scene %d: %v", i+1, err)
			}
		}
	}
}

func TestPipelineFailureRemovesOutput(t *testing.T) {
	tests := []struct {
		name    string
		backend *fakeBackend
	}{
		{"malformed audio", &fakeBackend{scenes: 2, badAudio: true}},
		{"image error", &fakeBackend{scenes: 2, imageErr: ErrPermission}},
		{"no scenes", &fakeBackend{scenes: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			_, _, err := NewPipeline(tt.backend, dir, 2).Run(context.Background(), Request{Topic: "x"})
			if err == nil {
				t.Fatal("expected error")
			}
			entries, _ := os.ReadDir(dir)
			if len(entries) != 0 {
				t.Errorf("partial output left: %d entries", len(entries))
			}
		})
	}
}

func TestJobCancel(t *testing.T) {
	dir := t.TempDir()
	fb := &fakeBackend{scenes: 2, block: make(chan struct{})}
	job := Start(context.Background(), NewPipeline(fb, dir, 2), Request{Topic: "slow"})
	job.Cancel()

	_, _, err := job.Wait()
	if !errors.Is(err, ErrCanceled) {
		t.Errorf("expected ErrCanceled, got %v", err)
	}
	if UserMessage(err) != "" {
		t.Error("cancelled job produced a user message")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("cancelled job left %d entries", len(entries))
	}
}

func TestJobSuccess(t *testing.T) {
	job := Start(context.Background(), NewPipeline(&fakeBackend{scenes: 1}, t.TempDir(), 1), Request{Topic: "ok"})
	s, manifest, err := job.Wait()
	if err != nil || s == nil || manifest == "" {
		t.Errorf("Wait: %v %v %q", s, err, manifest)
	}
}
