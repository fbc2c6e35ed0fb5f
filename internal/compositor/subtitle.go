package compositor

import (
	"math"
	"strings"
)

// SplitSegments cuts narration text into subtitle segments. A "|" marks an
// explicit break; otherwise sentences end at . ! ? or an ellipsis, and the
// terminator stays with its sentence.
func SplitSegments(text string) []string {
	var parts []string
	if strings.Contains(text, "|") {
		parts = strings.Split(text, "|")
	} else {
		var b strings.Builder
		runes := []rune(text)
		for i, r := range runes {
			b.WriteRune(r)
			if !isTerminator(r) {
				continue
			}
			// keep runs like "?!" or "..." together
			if i+1 < len(runes) && isTerminator(runes[i+1]) {
				continue
			}
			parts = append(parts, b.String())
			b.Reset()
		}
		parts = append(parts, b.String())
	}

	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

// SubtitleChunk picks the segment shown at scene progress p: segment
// floor(p·n), clamped to the last one.
func SubtitleChunk(text string, progress float64) string {
	segs := SplitSegments(text)
	if len(segs) == 0 {
		return ""
	}
	i := int(math.Floor(progress * float64(len(segs))))
	if i < 0 {
		i = 0
	}
	if i >= len(segs) {
		i = len(segs) - 1
	}
	return segs[i]
}
