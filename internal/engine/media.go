package engine

import (
	"context"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/ivlev/storyreel/internal/audio"
	"github.com/ivlev/storyreel/internal/config"
	"github.com/ivlev/storyreel/internal/playback"
	"github.com/ivlev/storyreel/internal/source"
	"github.com/ivlev/storyreel/internal/story"
	"github.com/ivlev/storyreel/internal/system"
)

// logoSize is the QR badge size in pixels before it is scaled into the frame.
const logoSize = 256

// Media is everything a player needs, decoded and resampled.
type Media struct {
	Scenes    []playback.Scene
	Meta      playback.Meta
	Music     *audio.Buffer
	SoundBeds map[story.SoundEffect]*audio.Buffer
	Logo      image.Image
}

func resolve(dir, name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

// LoadMedia decodes the stills, narration and beds of a story bundle.
// Narration is required; stills, beds and the logo are best effort.
func LoadMedia(ctx context.Context, s *story.Story, dir string, cfg *config.Config) (*Media, error) {
	paths := make([]string, len(s.Scenes))
	for i, sc := range s.Scenes {
		paths[i] = resolve(dir, sc.Image)
	}
	images, err := source.Preload(ctx, source.NewImageSource(paths), cfg.Workers)
	if err != nil {
		return nil, err
	}

	m := &Media{
		Meta: playback.Meta{
			ID:        s.ID,
			CreatedAt: s.CreatedAt,
			Title:     s.CoverText(),
		},
		SoundBeds: make(map[story.SoundEffect]*audio.Buffer),
	}
	if s.Cover != "" {
		if cover, err := source.DecodeFile(resolve(dir, s.Cover)); err == nil {
			m.Meta.Cover = cover
		} else {
			log.Printf("[!] Обложка пропущена: %v", err)
		}
	}

	for i, sc := range s.Scenes {
		if sc.Audio == "" {
			return nil, fmt.Errorf("сцена %d: нет файла озвучки", i+1)
		}
		narration, err := audio.LoadFile(resolve(dir, sc.Audio), cfg.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("сцена %d: ошибка декодирования озвучки: %w", i+1, err)
		}
		m.Scenes = append(m.Scenes, playback.Scene{
			Text:           sc.Text,
			TranslatedText: sc.TranslatedText,
			Image:          images[i],
			Narration:      narration,
			Visual:         sc.VisualEffect,
			Sound:          sc.SoundEffect,
		})
	}

	m.Music = loadMusic(cfg.MusicDir, s.Mood, cfg.SampleRate)

	for _, tag := range usedSounds(s) {
		path := filepath.Join(cfg.SFXDir, string(tag)+".mp3")
		bed, err := audio.LoadFile(path, cfg.SampleRate)
		if err != nil {
			log.Printf("[!] Звуковой фон %s недоступен: %v", tag, err)
			continue
		}
		m.SoundBeds[tag] = bed
	}

	logo, err := source.LoadLogo(cfg.LogoPath, cfg.QRText, logoSize)
	if err != nil {
		log.Printf("[!] Логотип пропущен: %v", err)
	}
	m.Logo = logo
	return m, nil
}

// loadMusic picks <dir>/<mood>.mp3, falling back to the newest mp3 in dir.
func loadMusic(dir string, mood story.Mood, rate int) *audio.Buffer {
	if dir == "" {
		return nil
	}
	path := filepath.Join(dir, strings.ToLower(string(mood))+".mp3")
	if _, err := os.Stat(path); err != nil {
		latest, ferr := system.FindLatestAudio(dir)
		if ferr != nil {
			log.Printf("[!] Фоновая музыка не найдена: %v", ferr)
			return nil
		}
		path = latest
	}
	buf, err := audio.LoadFile(path, rate)
	if err != nil {
		log.Printf("[!] Фоновая музыка пропущена: %v", err)
		return nil
	}
	fmt.Printf("[*] Фоновая музыка: %s\n", filepath.Base(path))
	return buf
}

func usedSounds(s *story.Story) []story.SoundEffect {
	seen := make(map[story.SoundEffect]bool)
	var out []story.SoundEffect
	for _, sc := range s.Scenes {
		if sc.SoundEffect == story.SoundNone || sc.SoundEffect == "" || seen[sc.SoundEffect] {
			continue
		}
		seen[sc.SoundEffect] = true
		out = append(out, sc.SoundEffect)
	}
	return out
}
