package naming

import (
	"regexp"
	"strings"
)

var (
	labelPattern      = regexp.MustCompile(`(?i)^\s*(title|conversation)\s*:\s*`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

const quoteChars = "\"'`“”‘’"
const edgePunctuation = "-–—:;,.!? "

// SanitizeTitle normalizes a model-produced title into 2 to 5 plain words.
// Anything that cannot be reduced to that shape yields "".
func SanitizeTitle(raw string) string {
	title := strings.TrimSpace(raw)
	title = labelPattern.ReplaceAllString(title, "")
	title = strings.Trim(title, quoteChars)
	title = whitespacePattern.ReplaceAllString(title, " ")
	title = strings.Trim(title, edgePunctuation)
	if title == "" {
		return ""
	}

	words := strings.Fields(title)
	if len(words) < 2 {
		return ""
	}
	if len(words) > 5 {
		words = words[:5]
	}
	return strings.Join(words, " ")
}
