package validators

import (
	"strings"
	"unicode/utf8"
)

// SanitizeString folds every whitespace run to one space and caps the result
// at maxLen runes. Use it for single-line fields such as names.
func SanitizeString(input string, maxLen int) string {
	return limitRunes(strings.Join(strings.Fields(input), " "), maxLen)
}

// SanitizeText trims free text and caps it at maxLen runes, keeping line
// breaks intact.
func SanitizeText(input string, maxLen int) string {
	return limitRunes(strings.TrimSpace(input), maxLen)
}

// SanitizeOptional applies SanitizeString to a pointer field, leaving nil untouched.
func SanitizeOptional(input *string, maxLen int) *string {
	return mapOptional(input, maxLen, SanitizeString)
}

// SanitizeOptionalText applies SanitizeText to a pointer field.
func SanitizeOptionalText(input *string, maxLen int) *string {
	return mapOptional(input, maxLen, SanitizeText)
}

func mapOptional(input *string, maxLen int, clean func(string, int) string) *string {
	if input == nil {
		return nil
	}
	value := clean(*input, maxLen)
	return &value
}

func limitRunes(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:maxLen]))
}
