package generation

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/storyreel/internal/audio"
	"github.com/ivlev/storyreel/internal/story"
)

type Request struct {
	Topic    string
	Mode     story.Mode
	Settings story.Settings
}

// Pipeline runs script, stills and narration generation for one story and
// writes the bundle into its own run directory.
type Pipeline struct {
	backend Backend
	outDir  string
	workers int
	now     func() time.Time
}

func NewPipeline(b Backend, outDir string, workers int) *Pipeline {
	if workers <= 0 {
		workers = 4
	}
	return &Pipeline{backend: b, outDir: outDir, workers: workers, now: time.Now}
}

// Run generates a complete story. Any failure aborts the whole run and
// removes what was written; the returned path is the manifest.
func (p *Pipeline) Run(ctx context.Context, req Request) (s *story.Story, manifest string, err error) {
	if strings.TrimSpace(req.Topic) == "" {
		return nil, "", fmt.Errorf("empty topic")
	}
	mode := req.Mode
	if mode == "" {
		mode = story.ModeShort
	}

	log.Printf("[*] Генерация сценария (%s): %s", mode, req.Topic)
	script, err := p.backend.GenerateScript(ctx, req.Topic, mode)
	if err != nil {
		return nil, "", fmt.Errorf("script: %w", err)
	}
	if len(script.Scenes) == 0 {
		return nil, "", fmt.Errorf("script: %w", ErrNoContent)
	}
	log.Printf("[*] Сценарий: \"%s\", сцен: %d, настроение: %s", script.Title, len(script.Scenes), script.Mood)

	id := uuid.NewString()
	dir := filepath.Join(p.outDir, "story-"+id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, "", err
	}
	defer func() {
		if err != nil {
			os.RemoveAll(dir)
		}
	}()

	voice := story.MapVoice(req.Settings.VoiceGender, req.Settings.VoiceTone)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i := range script.Scenes {
		sc := &script.Scenes[i]
		base := fmt.Sprintf("scene-%02d", i+1)

		g.Go(func() error {
			data, mime, err := p.backend.GenerateImage(gctx, imagePrompt(sc.ImagePrompt, script.CharacterDescription))
			if err != nil {
				return fmt.Errorf("scene %d image: %w", i+1, err)
			}
			name := base + imageExt(mime)
			if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
				return err
			}
			sc.Image = name
			log.Printf("[>] Сцена %d: изображение готово", i+1)
			return nil
		})

		g.Go(func() error {
			raw, err := p.backend.GenerateNarrationAudio(gctx, sc.Text, voice)
			if err != nil {
				return fmt.Errorf("scene %d audio: %w", i+1, err)
			}
			if _, err := audio.DecodePCM16(raw, audio.NarrationRate); err != nil {
				return fmt.Errorf("scene %d audio: %w", i+1, err)
			}
			name := base + ".pcm"
			if err := os.WriteFile(filepath.Join(dir, name), raw, 0644); err != nil {
				return err
			}
			sc.Audio = name
			log.Printf("[>] Сцена %d: озвучка готова", i+1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, "", ErrCanceled
		}
		return nil, "", err
	}

	s = &story.Story{
		ID:        id,
		CreatedAt: p.now().UTC().Truncate(time.Second),
		Mode:      mode,
		Topic:     req.Topic,
		Cover:     script.Scenes[0].Image,
		Settings:  req.Settings,
		Status:    story.StatusReady,
		Script:    *script,
	}
	manifest = filepath.Join(dir, story.ManifestName)
	if err := story.Save(s, manifest); err != nil {
		return nil, "", err
	}
	log.Printf("[+++] История сохранена: %s", manifest)
	return s, manifest, nil
}

func imagePrompt(prompt, character string) string {
	if character == "" || strings.Contains(prompt, character) {
		return prompt
	}
	return prompt + " Character: " + character
}

func imageExt(mime string) string {
	switch strings.ToLower(mime) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	return ".png"
}
