// Package generation talks to the generative backend and turns a topic into
// a ready story bundle on disk.
package generation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ivlev/storyreel/internal/config"
	"github.com/ivlev/storyreel/internal/story"
)

var (
	ErrPermission = errors.New("backend denied access")
	ErrNoContent  = errors.New("backend returned no content")
	ErrCanceled   = errors.New("generation canceled")
)

// Backend produces the script, stills and narration of a story.
type Backend interface {
	GenerateScript(ctx context.Context, topic string, mode story.Mode) (*story.Script, error)
	// GenerateImage returns an encoded still and its MIME type.
	GenerateImage(ctx context.Context, prompt string) ([]byte, string, error)
	// GenerateNarrationAudio returns raw 16-bit PCM at audio.NarrationRate.
	GenerateNarrationAudio(ctx context.Context, text, voice string) ([]byte, error)
}

type GeminiClient struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	textModel   string
	imageModel  string
	speechModel string
	maxRetries  int
	baseBackoff time.Duration
}

func NewGeminiClient(apiKey string, cfg config.GenerationConfig) *GeminiClient {
	return &GeminiClient{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:      apiKey,
		textModel:   cfg.TextModel,
		imageModel:  cfg.ImageModel,
		speechModel: cfg.SpeechModel,
		maxRetries:  cfg.MaxRetries,
		baseBackoff: cfg.Backoff,
	}
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type prebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoice `json:"prebuiltVoiceConfig"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type generationConfig struct {
	ResponseMimeType   string        `json:"responseMimeType,omitempty"`
	ResponseSchema     any           `json:"responseSchema,omitempty"`
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
	ImageConfig        *imageConfig  `json:"imageConfig,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (r *generateResponse) parts() []part {
	if len(r.Candidates) == 0 {
		return nil
	}
	return r.Candidates[0].Content.Parts
}

func (c *GeminiClient) generate(ctx context.Context, model string, payload generateRequest) (*generateResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.doRequestWithRetry(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gemini: read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d: %s", ErrPermission, resp.StatusCode, truncate(data))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("gemini: status %d: %s", resp.StatusCode, truncate(data))
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("gemini: parse response: %w", err)
	}
	if len(out.parts()) == 0 {
		return nil, ErrNoContent
	}
	return &out, nil
}

func truncate(b []byte) string {
	const max = 300
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

// scriptWire is the JSON shape the text model is asked to return.
type scriptWire struct {
	Title                string   `json:"title"`
	ThumbnailText        string   `json:"thumbnailText"`
	SEOSummary           string   `json:"seoSummary"`
	Tags                 []string `json:"tags"`
	CharacterDescription string   `json:"characterDescription"`
	Mood                 string   `json:"mood"`
	Scenes               []struct {
		SceneNumber        int    `json:"sceneNumber"`
		StoryText          string `json:"storyText"`
		EnglishTranslation string `json:"englishTranslation"`
		ImagePrompt        string `json:"imagePrompt"`
		VisualEffect       string `json:"visualEffect"`
		SoundEffect        string `json:"soundEffect"`
	} `json:"scenes"`
}

var scriptSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"title":                map[string]any{"type": "STRING"},
		"thumbnailText":        map[string]any{"type": "STRING"},
		"seoSummary":           map[string]any{"type": "STRING"},
		"tags":                 map[string]any{"type": "ARRAY", "items": map[string]any{"type": "STRING"}},
		"characterDescription": map[string]any{"type": "STRING"},
		"mood":                 map[string]any{"type": "STRING"},
		"scenes": map[string]any{
			"type": "ARRAY",
			"items": map[string]any{
				"type": "OBJECT",
				"properties": map[string]any{
					"sceneNumber":        map[string]any{"type": "INTEGER"},
					"storyText":          map[string]any{"type": "STRING"},
					"englishTranslation": map[string]any{"type": "STRING"},
					"imagePrompt":        map[string]any{"type": "STRING"},
					"visualEffect":       map[string]any{"type": "STRING", "enum": []string{"none", "rain", "storm", "snow", "fire", "fog", "sparkles", "dust"}},
					"soundEffect":        map[string]any{"type": "STRING", "enum": []string{"none", "rain", "thunder", "forest", "city", "fire", "magic"}},
				},
			},
		},
	},
}

func scriptPrompt(topic string, mode story.Mode) string {
	n := mode.SceneCount()
	var length string
	switch mode {
	case story.ModeMedium:
		length = "Total video length approx 60-75 seconds."
	case story.ModeLong:
		length = "Audiobook style, 3-5 minutes. Each scene 100-150 words."
	case story.ModeMegaLong:
		length = "Audiobook style, about 30 minutes. Each scene 300-400 words."
	default:
		length = "Total video length approx 40-50 seconds."
	}
	return fmt.Sprintf(`Create a complete short story in Thai for vertical video about: %q.

Requirements:
1. %s Create exactly %d scenes with a clear beginning, middle and ending.
2. Define one main character with consistent features and repeat the description in every image prompt.
3. 'storyText' is the Thai narration; 'englishTranslation' is its English subtitle.
4. For each scene pick a 'visualEffect' and a 'soundEffect' that match the context.
5. 'mood' is one of Horror, Adventure, Emotional, Funny, Mystery.
6. Provide a catchy title, a short 'thumbnailText', an SEO description and 10 hashtags.
7. 'imagePrompt' is a detailed English prompt starting with "Photorealistic, 8k, cinematic lighting".

Output JSON only.`, topic, length, n)
}

func (c *GeminiClient) GenerateScript(ctx context.Context, topic string, mode story.Mode) (*story.Script, error) {
	resp, err := c.generate(ctx, c.textModel, generateRequest{
		Contents: []content{{Parts: []part{{Text: scriptPrompt(topic, mode)}}}},
		GenerationConfig: &generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   scriptSchema,
		},
	})
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(resp.parts()[0].Text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoContent
	}

	var w scriptWire
	if err := json.Unmarshal([]byte(text), &w); err != nil {
		return nil, fmt.Errorf("gemini: parse script: %w", err)
	}
	if len(w.Scenes) == 0 {
		return nil, fmt.Errorf("%w: script has no scenes", ErrNoContent)
	}

	s := &story.Script{
		Title:                w.Title,
		ThumbnailText:        w.ThumbnailText,
		SEOSummary:           w.SEOSummary,
		Tags:                 w.Tags,
		CharacterDescription: w.CharacterDescription,
		Mood:                 story.ParseMood(w.Mood),
	}
	for i, sc := range w.Scenes {
		num := sc.SceneNumber
		if num <= 0 {
			num = i + 1
		}
		s.Scenes = append(s.Scenes, story.SceneScript{
			Number:         num,
			Text:           sc.StoryText,
			TranslatedText: sc.EnglishTranslation,
			ImagePrompt:    sc.ImagePrompt,
			VisualEffect:   story.ParseVisualEffect(sc.VisualEffect),
			SoundEffect:    story.ParseSoundEffect(sc.SoundEffect),
		})
	}
	return s, nil
}

func (c *GeminiClient) GenerateImage(ctx context.Context, prompt string) ([]byte, string, error) {
	resp, err := c.generate(ctx, c.imageModel, generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"IMAGE"},
			ImageConfig:        &imageConfig{AspectRatio: "9:16"},
		},
	})
	if err != nil {
		return nil, "", err
	}
	for _, p := range resp.parts() {
		if p.InlineData == nil || p.InlineData.Data == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil {
			return nil, "", fmt.Errorf("gemini: image payload: %w", err)
		}
		return data, p.InlineData.MimeType, nil
	}
	return nil, "", fmt.Errorf("%w: no image in response", ErrNoContent)
}

func (c *GeminiClient) GenerateNarrationAudio(ctx context.Context, text, voice string) ([]byte, error) {
	resp, err := c.generate(ctx, c.speechModel, generateRequest{
		Contents: []content{{Parts: []part{{Text: text}}}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig:       &speechConfig{VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoice{VoiceName: voice}}},
		},
	})
	if err != nil {
		return nil, err
	}
	p := resp.parts()[0]
	if p.InlineData == nil || p.InlineData.Data == "" {
		return nil, fmt.Errorf("%w: no audio in response", ErrNoContent)
	}
	data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
	if err != nil {
		return nil, fmt.Errorf("gemini: audio payload: %w", err)
	}
	return data, nil
}

// UserMessage turns a generation error into the text shown to the user.
// Cancellation is not a failure and yields an empty message.
func UserMessage(err error) string {
	switch {
	case err == nil, errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return ""
	case errors.Is(err, ErrPermission):
		return "Нет доступа к API генерации: проверьте ключ GEMINI_API_KEY и доступ проекта к моделям."
	default:
		return "Не удалось создать историю. Попробуйте ещё раз."
	}
}
