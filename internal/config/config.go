package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	StoryPath    string `yaml:"story"`
	OutputDir    string `yaml:"output_dir"`
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	FPS          int    `yaml:"fps"`
	SampleRate   int    `yaml:"sample_rate"`
	Workers      int    `yaml:"workers"`
	Preset       string `yaml:"preset"`
	Quality      int    `yaml:"quality"`
	ShowStats    bool   `yaml:"show_stats"`
	BuildVersion string `yaml:"-"`

	// Pacing of the scene sequencer.
	TransitionDuration time.Duration `yaml:"transition_duration"`
	SceneAdvanceDelay  time.Duration `yaml:"scene_advance_delay"`
	PlayDelay          time.Duration `yaml:"play_delay"`
	CaptureLeadIn      time.Duration `yaml:"capture_lead_in"`
	CaptureTrailing    time.Duration `yaml:"capture_trailing"`
	MaxExportDuration  time.Duration `yaml:"max_export_duration"`

	// Ken-Burns zoom growth per millisecond of scene time.
	ZoomSpeed float64 `yaml:"zoom_speed"`
	MaxZoom   float64 `yaml:"max_zoom"`

	MusicVolume       float64 `yaml:"music_volume"`
	SFXVolume         float64 `yaml:"sfx_volume"`
	BackgroundEnabled bool    `yaml:"background_enabled"`
	MusicDir          string  `yaml:"music_dir"`
	SFXDir            string  `yaml:"sfx_dir"`

	SubtitlesEnabled bool   `yaml:"subtitles"`
	SubtitleLang     string `yaml:"subtitle_lang"`
	FontPath         string `yaml:"font"`
	LogoPath         string `yaml:"logo"`
	QRText           string `yaml:"qr_text"`

	Formats []string `yaml:"formats"`

	Generation GenerationConfig `yaml:"generation"`
	UploadURL  string           `yaml:"upload_url"`
}

type GenerationConfig struct {
	BaseURL     string        `yaml:"base_url"`
	TextModel   string        `yaml:"text_model"`
	ImageModel  string        `yaml:"image_model"`
	SpeechModel string        `yaml:"speech_model"`
	VoiceGender string        `yaml:"voice_gender"`
	VoiceTone   string        `yaml:"voice_tone"`
	Mode        string        `yaml:"mode"`
	MaxRetries  int           `yaml:"max_retries"`
	Backoff     time.Duration `yaml:"backoff"`
	Timeout     time.Duration `yaml:"timeout"`
}

func Default() *Config {
	return &Config{
		OutputDir:          "output",
		Width:              1080,
		Height:             1920,
		FPS:                30,
		SampleRate:         48000,
		Workers:            4,
		TransitionDuration: 800 * time.Millisecond,
		SceneAdvanceDelay:  400 * time.Millisecond,
		PlayDelay:          100 * time.Millisecond,
		CaptureLeadIn:      time.Second,
		CaptureTrailing:    1200 * time.Millisecond,
		MaxExportDuration:  30 * time.Minute,
		ZoomSpeed:          0.00001,
		MaxZoom:            1.5,
		MusicVolume:        0.15,
		SFXVolume:          0.25,
		BackgroundEnabled:  true,
		MusicDir:           "input/music",
		SFXDir:             "input/sfx",
		SubtitlesEnabled:   true,
		SubtitleLang:       "source",
		Formats:            []string{"webm-vp9", "webm-vp8", "mp4-h264"},
		Generation: GenerationConfig{
			BaseURL:     "https://generativelanguage.googleapis.com/v1beta",
			TextModel:   "gemini-2.5-flash",
			ImageModel:  "gemini-2.5-flash-image",
			SpeechModel: "gemini-2.5-flash-preview-tts",
			VoiceGender: "female",
			VoiceTone:   "calm",
			Mode:        "short",
			MaxRetries:  3,
			Backoff:     500 * time.Millisecond,
			Timeout:     2 * time.Minute,
		},
	}
}

// Load overlays the YAML file at path on top of Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.ApplyPreset(cfg.Preset)
	return cfg, nil
}

func (c *Config) ApplyPreset(preset string) {
	switch preset {
	case "9:16":
		c.Width, c.Height = 1080, 1920
	case "9:16-hd":
		c.Width, c.Height = 720, 1280
	case "4:5":
		c.Width, c.Height = 1080, 1350
	case "1:1":
		c.Width, c.Height = 1080, 1080
	default:
		return
	}
	c.Preset = preset
}

func (c *Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 || c.Width%2 != 0 || c.Height%2 != 0 {
		return fmt.Errorf("некорректное разрешение %dx%d (нужны чётные положительные значения)", c.Width, c.Height)
	}
	if c.FPS <= 0 || c.FPS > 120 {
		return fmt.Errorf("некорректный FPS: %d", c.FPS)
	}
	if c.SampleRate < 8000 {
		return fmt.Errorf("некорректная частота дискретизации: %d", c.SampleRate)
	}
	if c.TransitionDuration <= 0 {
		return fmt.Errorf("длительность перехода должна быть больше нуля")
	}
	if c.MaxZoom < 1 {
		return fmt.Errorf("max_zoom должен быть >= 1")
	}
	if c.SubtitleLang != "source" && c.SubtitleLang != "translated" {
		return fmt.Errorf("неизвестный язык субтитров: %s", c.SubtitleLang)
	}
	return nil
}

// FrameInterval is the virtual clock step used by offline export.
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.FPS)
}
