package engine

import (
	"context"
	"fmt"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ivlev/storyreel/internal/capture"
	"github.com/ivlev/storyreel/internal/config"
	"github.com/ivlev/storyreel/internal/monitor"
	"github.com/ivlev/storyreel/internal/playback"
	"github.com/ivlev/storyreel/internal/story"
	"github.com/ivlev/storyreel/internal/system"
)

type Project struct {
	Config   *config.Config
	Story    *story.Story
	Media    *Media
	Encoder  capture.Encoder
	Uploader capture.Uploader
}

func NewProject(cfg *config.Config, s *story.Story, media *Media, enc capture.Encoder) *Project {
	return &Project{
		Config:  cfg,
		Story:   s,
		Media:   media,
		Encoder: enc,
	}
}

func (p *Project) captureEngine() (*capture.Engine, error) {
	formats, err := capture.FormatsByName(p.Config.Formats)
	if err != nil {
		return nil, err
	}
	return capture.NewEngine(p.Encoder, formats, capture.StreamParams{
		Width:      p.Config.Width,
		Height:     p.Config.Height,
		FPS:        p.Config.FPS,
		SampleRate: p.Config.SampleRate,
	}, p.Config.OutputDir), nil
}

func (p *Project) playerOptions(eng *capture.Engine) playback.Options {
	return playback.Options{
		Config:    p.Config,
		Music:     p.Media.Music,
		SoundBeds: p.Media.SoundBeds,
		Logo:      p.Media.Logo,
		Capture:   eng,
		OnEvent:   p.logEvent,
	}
}

func (p *Project) logEvent(e playback.Event) {
	switch e.Kind {
	case playback.EventSceneStarted:
		fmt.Printf("[>] Сцена %d/%d (%.1fs)\n", e.Scene+1, len(p.Media.Scenes), e.At.Seconds())
	case playback.EventSequenceComplete:
		fmt.Printf("[*] История завершена (%.1fs)\n", e.At.Seconds())
	case playback.EventRecordingCanceled:
		log.Printf("[!] Запись отменена")
	}
}

func (p *Project) banner(mode string) {
	fmt.Println("--- [PROJECT: STORY REEL] ---")
	fmt.Printf("[*] История: %s | Сцен: %d | Режим: %s\n", p.Story.Title, len(p.Media.Scenes), mode)
	fmt.Printf("[*] Разрешение: %dx%d @ %d FPS | Аудио: %d Гц\n", p.Config.Width, p.Config.Height, p.Config.FPS, p.Config.SampleRate)
	fmt.Println("-----------------------------")
}

// ExportCover draws the cover frame and saves it as
// <output>/cover-<recording name>.png.
func (p *Project) ExportCover() (string, error) {
	player, err := playback.Open(p.Media.Scenes, p.Media.Meta, playback.Options{
		Config: p.Config,
		Logo:   p.Media.Logo,
	})
	if err != nil {
		return "", err
	}
	defer player.Close()
	frame := player.Frame(0)

	if err := os.MkdirAll(p.Config.OutputDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(p.Config.OutputDir, "cover-"+capture.FileName(p.Story.ID, p.Story.CreatedAt)+".png")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := png.Encode(f, frame); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("обложка: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	fmt.Printf("[+++] Обложка сохранена: %s\n", path)
	return path, nil
}

type exportResult struct {
	artifact *capture.Artifact
	err      error
}

// Export renders the story offline on a virtual clock and returns the
// recorded artifact.
func (p *Project) Export(ctx context.Context) (*capture.Artifact, error) {
	startTime := time.Now()
	p.banner("export")

	eng, err := p.captureEngine()
	if err != nil {
		return nil, err
	}
	done := make(chan exportResult, 1)
	opts := p.playerOptions(eng)
	opts.OnExport = func(a *capture.Artifact, err error) { done <- exportResult{a, err} }

	player, err := playback.Open(p.Media.Scenes, p.Media.Meta, opts)
	if err != nil {
		return nil, err
	}
	defer player.Close()

	if err := player.StartRecording(ctx); err != nil {
		return nil, err
	}

	step := p.Config.FrameInterval()
	var now time.Duration
	var res exportResult
	frames := 0
loop:
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res = <-done:
			break loop
		default:
		}
		if p.Config.MaxExportDuration > 0 && now > p.Config.MaxExportDuration {
			return nil, fmt.Errorf("%w: превышена максимальная длительность %v", capture.ErrExport, p.Config.MaxExportDuration)
		}
		now += step
		player.Frame(now)
		frames++
	}
	if res.err != nil {
		return nil, res.err
	}
	renderTime := time.Since(startTime)
	fmt.Printf("[+++] Успех! Видео сохранено: %s (%.1f МБ)\n", res.artifact.Path, float64(res.artifact.Size)/1024/1024)

	if p.Uploader != nil {
		fmt.Println("[*] Загрузка видео...")
		if err := p.Uploader.Upload(ctx, res.artifact); err != nil {
			log.Printf("[!] Загрузка не удалась: %v", err)
		} else {
			fmt.Println("[+++] Видео загружено")
		}
	}

	if p.Config.ShowStats {
		p.report(res.artifact, frames, renderTime)
	}
	return res.artifact, nil
}

// Play runs the story in real time through the speaker. With record set it
// starts a recording and waits for the artifact.
func (p *Project) Play(ctx context.Context, record bool) (*capture.Artifact, error) {
	p.banner("play")

	spk, err := monitor.NewSpeaker(p.Config.SampleRate, 1)
	if err != nil {
		log.Printf("[!] Аудиовыход недоступен: %v", err)
		spk = nil
	}

	var eng *capture.Engine
	if record {
		if eng, err = p.captureEngine(); err != nil {
			return nil, err
		}
	}

	finished := make(chan exportResult, 1)
	var once sync.Once
	finish := func(r exportResult) { once.Do(func() { finished <- r }) }

	opts := p.playerOptions(eng)
	if spk != nil {
		opts.Monitor = spk
		defer spk.Close()
	}
	opts.OnEvent = func(e playback.Event) {
		p.logEvent(e)
		if e.Kind == playback.EventSequenceComplete && !record {
			finish(exportResult{})
		}
	}
	opts.OnExport = func(a *capture.Artifact, err error) { finish(exportResult{a, err}) }

	player, err := playback.Open(p.Media.Scenes, p.Media.Meta, opts)
	if err != nil {
		return nil, err
	}
	defer player.Close()

	runErr := make(chan error, 1)
	go func() { runErr <- player.Run(ctx) }()

	if record {
		if err := player.StartRecording(ctx); err != nil {
			return nil, err
		}
	} else {
		player.Play()
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-runErr:
		return nil, err
	case r := <-finished:
		if r.artifact != nil {
			fmt.Printf("[+++] Видео сохранено: %s\n", r.artifact.Path)
		}
		return r.artifact, r.err
	}
}

func (p *Project) report(a *capture.Artifact, frames int, total time.Duration) {
	fps := float64(frames) / total.Seconds()
	usage, err := system.CurrentUsage()
	if err != nil {
		log.Printf("[!] Не удалось получить статистику процесса: %v", err)
	}
	report := fmt.Sprintf(
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"Total Time: %.2fs\n"+
			"Video Duration: %.2fs\n"+
			"Frames: %d\n"+
			"Effective FPS: %.2f\n"+
			"Format: %s\n"+
			"RSS: %.1f MB | CPU: %.1f%% | System Mem: %.1f%%\n"+
			"----------------------------\n",
		p.Config.BuildVersion, total.Seconds(), a.Duration.Seconds(), frames, fps, a.Format.Name,
		usage.RSSMB, usage.CPUPercent, usage.SystemMemUsed,
	)
	fmt.Print(report)

	logEntry := fmt.Sprintf("[%s] Build: %s | Story: %s | Scenes: %d | Total: %.2fs | Video: %.2fs | FPS: %.2f\n",
		time.Now().Format("2006-01-02 15:04:05"),
		p.Config.BuildVersion,
		p.Story.ID,
		len(p.Media.Scenes),
		total.Seconds(),
		a.Duration.Seconds(),
		fps,
	)
	f, err := os.OpenFile("benchmark.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		f.WriteString(logEntry)
		f.Close()
	} else {
		fmt.Printf("[!] Не удалось записать benchmark.log: %v\n", err)
	}
}
