package story

import "strings"

// MapVoice picks the prebuilt TTS voice for a narrator gender and tone.
// It is a pure lookup so that generation and playback agree on voice IDs.
func MapVoice(gender, tone string) string {
	tone = strings.ToLower(tone)
	if strings.EqualFold(gender, "female") {
		if tone == "energetic" || tone == "formal" {
			return "Zephyr"
		}
		return "Kore"
	}
	switch tone {
	case "deep":
		return "Charon"
	case "energetic":
		return "Fenrir"
	}
	return "Puck"
}
