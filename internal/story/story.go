package story

import (
	"strings"
	"time"
)

// VisualEffect is the ambient visual tag attached to a scene.
type VisualEffect string

const (
	VisualNone     VisualEffect = "none"
	VisualRain     VisualEffect = "rain"
	VisualStorm    VisualEffect = "storm"
	VisualSnow     VisualEffect = "snow"
	VisualFire     VisualEffect = "fire"
	VisualFog      VisualEffect = "fog"
	VisualSparkles VisualEffect = "sparkles"
	VisualDust     VisualEffect = "dust"
)

func ParseVisualEffect(s string) VisualEffect {
	switch v := VisualEffect(strings.ToLower(strings.TrimSpace(s))); v {
	case VisualRain, VisualStorm, VisualSnow, VisualFire, VisualFog, VisualSparkles, VisualDust:
		return v
	}
	return VisualNone
}

// SoundEffect is the ambient sound bed tag attached to a scene.
type SoundEffect string

const (
	SoundNone    SoundEffect = "none"
	SoundRain    SoundEffect = "rain"
	SoundThunder SoundEffect = "thunder"
	SoundForest  SoundEffect = "forest"
	SoundCity    SoundEffect = "city"
	SoundFire    SoundEffect = "fire"
	SoundMagic   SoundEffect = "magic"
)

var SoundEffects = []SoundEffect{SoundRain, SoundThunder, SoundForest, SoundCity, SoundFire, SoundMagic}

func ParseSoundEffect(s string) SoundEffect {
	v := SoundEffect(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range SoundEffects {
		if v == known {
			return v
		}
	}
	return SoundNone
}

type Mood string

const (
	MoodHorror    Mood = "Horror"
	MoodAdventure Mood = "Adventure"
	MoodEmotional Mood = "Emotional"
	MoodFunny     Mood = "Funny"
	MoodMystery   Mood = "Mystery"
)

func ParseMood(s string) Mood {
	for _, m := range []Mood{MoodHorror, MoodAdventure, MoodEmotional, MoodFunny, MoodMystery} {
		if strings.EqualFold(s, string(m)) {
			return m
		}
	}
	return MoodAdventure
}

type Mode string

const (
	ModeShort    Mode = "short"
	ModeMedium   Mode = "medium"
	ModeLong     Mode = "long"
	ModeMegaLong Mode = "mega_long"
)

// SceneCount is how many scenes a script of this mode asks for.
func (m Mode) SceneCount() int {
	switch m {
	case ModeMedium:
		return 8
	case ModeLong:
		return 4
	case ModeMegaLong:
		return 12
	default:
		return 6
	}
}

type Lang string

const (
	LangSource     Lang = "source"
	LangTranslated Lang = "translated"
)

type SceneScript struct {
	Number         int          `yaml:"number" json:"sceneNumber"`
	Text           string       `yaml:"text" json:"text"`
	TranslatedText string       `yaml:"translated_text,omitempty" json:"translatedText,omitempty"`
	ImagePrompt    string       `yaml:"image_prompt,omitempty" json:"imagePrompt,omitempty"`
	Speaker        string       `yaml:"speaker,omitempty" json:"speaker,omitempty"`
	VisualEffect   VisualEffect `yaml:"visual_effect" json:"visualEffect"`
	SoundEffect    SoundEffect  `yaml:"sound_effect" json:"soundEffect"`
	Image          string       `yaml:"image,omitempty" json:"image,omitempty"`
	Audio          string       `yaml:"audio,omitempty" json:"audio,omitempty"`
}

type Script struct {
	Title                string        `yaml:"title" json:"title"`
	ThumbnailText        string        `yaml:"thumbnail_text,omitempty" json:"thumbnailText,omitempty"`
	SEOSummary           string        `yaml:"seo_summary,omitempty" json:"seoSummary,omitempty"`
	Tags                 []string      `yaml:"tags,omitempty" json:"tags,omitempty"`
	CharacterDescription string        `yaml:"character_description,omitempty" json:"characterDescription,omitempty"`
	Mood                 Mood          `yaml:"mood" json:"mood"`
	Scenes               []SceneScript `yaml:"scenes" json:"scenes"`
}

type Settings struct {
	VoiceGender          string `yaml:"voice_gender" json:"voiceGender"`
	VoiceTone            string `yaml:"voice_tone" json:"voiceTone"`
	BackgroundEnabled    bool   `yaml:"bgm_enabled" json:"bgmEnabled"`
	DefaultShowSubtitles bool   `yaml:"show_subtitles" json:"defaultShowSubtitles"`
	DefaultSubtitleLang  Lang   `yaml:"subtitle_lang" json:"defaultSubtitleLang"`
}

type Status string

const (
	StatusGenerating Status = "generating"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// CoverText is the headline drawn on the cover: the thumbnail text when the
// script has one, the title otherwise.
func (s *Script) CoverText() string {
	if t := strings.TrimSpace(s.ThumbnailText); t != "" {
		return t
	}
	return s.Title
}

// Story is the manifest of one generated run.
type Story struct {
	ID        string    `yaml:"id" json:"id"`
	CreatedAt time.Time `yaml:"created_at" json:"createdAt"`
	Mode      Mode      `yaml:"mode" json:"mode"`
	Topic     string    `yaml:"topic,omitempty" json:"topic,omitempty"`
	Cover     string    `yaml:"cover,omitempty" json:"cover,omitempty"`
	Settings  Settings  `yaml:"settings" json:"config"`
	Status    Status    `yaml:"status" json:"status"`
	Script    `yaml:",inline"`
}

// SubtitleText returns the line to show for a scene in the given language,
// falling back to the source text and dropping a "Speaker:" prefix.
func SubtitleText(s SceneScript, lang Lang) string {
	text := s.Text
	if lang == LangTranslated && strings.TrimSpace(s.TranslatedText) != "" {
		text = s.TranslatedText
	}
	return StripSpeaker(text)
}

func StripSpeaker(text string) string {
	text = strings.TrimSpace(text)
	i := strings.Index(text, ":")
	if i <= 0 || i > 32 {
		return text
	}
	if strings.ContainsAny(text[:i], ".!?\n") {
		return text
	}
	return strings.TrimSpace(text[i+1:])
}
