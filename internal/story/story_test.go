package story

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMapVoice(t *testing.T) {
	tests := []struct {
		gender, tone string
		want         string
	}{
		{"female", "energetic", "Zephyr"},
		{"female", "formal", "Zephyr"},
		{"female", "calm", "Kore"},
		{"Female", "", "Kore"},
		{"male", "deep", "Charon"},
		{"male", "energetic", "Fenrir"},
		{"male", "calm", "Puck"},
		{"", "", "Puck"},
	}

	for _, tt := range tests {
		t.Run(tt.gender+"/"+tt.tone, func(t *testing.T) {
			if got := MapVoice(tt.gender, tt.tone); got != tt.want {
				t.Errorf("MapVoice(%q, %q) = %q, want %q", tt.gender, tt.tone, got, tt.want)
			}
		})
	}
}

func TestParseTags(t *testing.T) {
	if got := ParseVisualEffect(" Storm "); got != VisualStorm {
		t.Errorf("ParseVisualEffect: got %q", got)
	}
	if got := ParseVisualEffect("lava"); got != VisualNone {
		t.Errorf("unknown visual effect should be none, got %q", got)
	}
	if got := ParseSoundEffect("THUNDER"); got != SoundThunder {
		t.Errorf("ParseSoundEffect: got %q", got)
	}
	if got := ParseSoundEffect(""); got != SoundNone {
		t.Errorf("empty sound effect should be none, got %q", got)
	}
	if got := ParseMood("horror"); got != MoodHorror {
		t.Errorf("ParseMood: got %q", got)
	}
}

func TestSceneCount(t *testing.T) {
	want := map[Mode]int{ModeShort: 6, ModeMedium: 8, ModeLong: 4, ModeMegaLong: 12, "": 6}
	for m, n := range want {
		if got := m.SceneCount(); got != n {
			t.Errorf("%q.SceneCount() = %d, want %d", m, got, n)
		}
	}
}

func TestSubtitleText(t *testing.T) {
	s := SceneScript{Text: "Narrator: The night was cold.", TranslatedText: "คืนนั้นหนาว"}

	if got := SubtitleText(s, LangSource); got != "The night was cold." {
		t.Errorf("source: got %q", got)
	}
	if got := SubtitleText(s, LangTranslated); got != "คืนนั้นหนาว" {
		t.Errorf("translated: got %q", got)
	}

	s.TranslatedText = "  "
	if got := SubtitleText(s, LangTranslated); got != "The night was cold." {
		t.Errorf("fallback: got %q", got)
	}

	if got := StripSpeaker("He said. Then: run"); got != "He said. Then: run" {
		t.Errorf("sentence colon should stay: got %q", got)
	}
}

func TestCoverText(t *testing.T) {
	tests := []struct {
		name string
		s    Script
		want string
	}{
		{"thumbnail", Script{Title: "The Lighthouse", ThumbnailText: "Don't look back"}, "Don't look back"},
		{"blank thumbnail", Script{Title: "The Lighthouse", ThumbnailText: "  "}, "The Lighthouse"},
		{"title only", Script{Title: "The Lighthouse"}, "The Lighthouse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.CoverText(); got != tt.want {
				t.Errorf("CoverText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := &Story{
		ID:        "abc12345",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Mode:      ModeShort,
		Status:    StatusReady,
		Script: Script{
			Title: "The Lighthouse",
			Mood:  MoodMystery,
			Scenes: []SceneScript{
				{Number: 1, Text: "A light blinks.", VisualEffect: VisualStorm, SoundEffect: SoundThunder, Image: "scene_01.png", Audio: "scene_01.pcm"},
				{Number: 2, Text: "Nobody answers.", VisualEffect: VisualFog, SoundEffect: SoundNone},
			},
		},
	}

	for _, name := range []string{"story.yaml", "story.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := Save(s, path); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got.Title != s.Title || got.Mood != s.Mood || len(got.Scenes) != 2 {
				t.Fatalf("round trip mismatch: %+v", got)
			}
			if got.Scenes[0].VisualEffect != VisualStorm || got.Scenes[1].SoundEffect != SoundNone {
				t.Errorf("effects lost: %+v", got.Scenes)
			}
			if !got.CreatedAt.Equal(s.CreatedAt) {
				t.Errorf("CreatedAt: got %v", got.CreatedAt)
			}
		})
	}
}

func TestLoadRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "story.yaml")
	os.WriteFile(path, []byte("id: x\nscenes: []\n"), 0644)
	if _, err := Load(path); err == nil {
		t.Error("expected error for manifest without scenes")
	}
}

func TestFindLatest(t *testing.T) {
	dir := t.TempDir()
	runs := []string{"run_a", "run_b", "run_c"}
	for i, r := range runs {
		os.MkdirAll(filepath.Join(dir, r), 0755)
		p := filepath.Join(dir, r, ManifestName)
		os.WriteFile(p, []byte("id: "+r+"\n"), 0644)
		modTime := time.Now().Add(time.Duration(i) * time.Hour)
		os.Chtimes(p, modTime, modTime)
	}

	latest, err := FindLatest(dir)
	if err != nil {
		t.Fatalf("FindLatest failed: %v", err)
	}
	want := filepath.Join(dir, "run_c", ManifestName)
	if latest != want {
		t.Errorf("expected %s, got %s", want, latest)
	}

	resolved, err := Resolve(filepath.Join(dir, "run_a"))
	if err != nil || resolved != filepath.Join(dir, "run_a", ManifestName) {
		t.Errorf("Resolve run dir: %s, %v", resolved, err)
	}
}
