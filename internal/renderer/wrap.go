package renderer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// IsCombining reports whether r attaches to the previous character and so
// may never begin a line. Thai above/below vowels and tone marks are Mn.
func IsCombining(r rune) bool {
	return unicode.In(r, unicode.Mn, unicode.Me, unicode.Mc)
}

// clusters splits s into base characters with their trailing combining
// marks attached.
func clusters(s string) []string {
	var out []string
	for _, r := range s {
		if IsCombining(r) && len(out) > 0 {
			out[len(out)-1] += string(r)
			continue
		}
		out = append(out, string(r))
	}
	return out
}

// Wrap breaks text into lines no wider than maxWidth. Words are kept whole
// where they fit; longer words and scripts written without spaces fall back
// to breaking between characters, never before a combining mark. Text that
// already fits is returned as a single, unchanged line.
func Wrap(text string, maxWidth float64, m Measurer) []string {
	if text == "" {
		return nil
	}
	if m.Measure(text) <= maxWidth {
		return []string{text}
	}

	var lines []string
	line := ""
	push := func() {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, strings.TrimSpace(line))
		}
		line = ""
	}

	for _, word := range strings.Fields(text) {
		candidate := word
		if line != "" {
			candidate = line + " " + word
		}
		if m.Measure(candidate) <= maxWidth {
			line = candidate
			continue
		}
		push()
		if m.Measure(word) <= maxWidth {
			line = word
			continue
		}
		for _, c := range clusters(word) {
			if line != "" && m.Measure(line+c) > maxWidth {
				push()
			}
			line += c
		}
	}
	push()
	return reattachMarks(lines)
}

// reattachMarks moves combining marks that open a line back onto the end of
// the previous line, then trims the remainder. Trimming can expose another
// mark, so each line is reworked until it opens with a base character or
// runs out.
func reattachMarks(lines []string) []string {
	var out []string
	for _, l := range lines {
		for len(out) > 0 {
			j := leadingMarks(l)
			if j == 0 {
				break
			}
			out[len(out)-1] += l[:j]
			l = strings.TrimLeftFunc(l[j:], unicode.IsSpace)
		}
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// leadingMarks is the byte length of the combining marks that open s.
func leadingMarks(s string) int {
	j := 0
	for _, r := range s {
		if !IsCombining(r) {
			break
		}
		j += utf8.RuneLen(r)
	}
	return j
}
