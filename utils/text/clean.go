package text

import (
	"regexp"
	"strings"
)

// controlPattern matches reserved control-token brackets such as
// <|channel|> that some backends leak into generated content.
var controlPattern = regexp.MustCompile(`<\|.*?\|>`)

// CleanModelText strips backend control artifacts from a generated fragment,
// preserving natural spacing: control tokens and carriage returns are
// removed, commentary-role lines are dropped (blank lines survive), and a
// leading assistant role echo is peeled off.
func CleanModelText(text string) string {
	if text == "" {
		return ""
	}

	cleaned := controlPattern.ReplaceAllString(text, "")
	cleaned = strings.ReplaceAll(cleaned, "\r", "")

	lines := strings.Split(cleaned, "\n")
	filtered := make([]string, 0, len(lines))
	for _, rawLine := range lines {
		stripped := strings.TrimSpace(rawLine)
		if stripped == "" {
			filtered = append(filtered, "")
			continue
		}
		if strings.HasPrefix(stripped, "assistantcommentary to=") || strings.HasPrefix(stripped, "commentary to=") {
			continue
		}
		filtered = append(filtered, rawLine)
	}

	result := strings.Join(filtered, "\n")
	if strings.HasPrefix(result, "assistant") {
		result = strings.TrimLeft(strings.TrimPrefix(result, "assistant"), ": ")
	}
	return result
}
