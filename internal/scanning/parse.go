package scanning

import (
	"strings"
)

// cleanTranscript normalizes text returned by a language model so it reads
// like plain OCR output: no markdown fences, unix line endings, no trailing
// spaces.
func cleanTranscript(text string) string {
	text = strings.TrimSpace(text)

	// Remove markdown code blocks if present
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```text")
		text = strings.TrimPrefix(text, "```plaintext")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.TrimSpace(strings.Join(lines, "\n"))

	// Models answer "NO TEXT" when asked about a blank image
	if strings.EqualFold(text, noTextMarker) {
		return ""
	}
	return text
}
