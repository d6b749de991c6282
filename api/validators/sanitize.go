package validators

import "strings"

// SanitizeString trims surrounding whitespace from operator-supplied
// input and bounds it to maxLen bytes. A maxLen of zero means unbounded.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen > 0 && len(trimmed) > maxLen {
		return trimmed[:maxLen]
	}
	return trimmed
}
