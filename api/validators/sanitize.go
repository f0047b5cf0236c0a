package validators

import "strings"

// SanitizeString trims input, folds runs of whitespace and cuts it to at most
// maxRunes characters without splitting a multi-byte rune.
func SanitizeString(input string, maxRunes int) string {
	clean := strings.Join(strings.Fields(input), " ")
	if maxRunes <= 0 {
		return clean
	}
	runes := []rune(clean)
	if len(runes) <= maxRunes {
		return clean
	}
	return strings.TrimSpace(string(runes[:maxRunes]))
}
