// Package enums holds the string-backed enumerations shared by the models,
// the HTTP layer and the outbox payloads. Every type parses and validates
// against its own list of known values.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

// parseEnum matches value case-insensitively against known, after trimming.
func parseEnum[T ~string](value string, known []T, kind string) (T, error) {
	value = strings.TrimSpace(value)
	for _, candidate := range known {
		if strings.EqualFold(string(candidate), value) {
			return candidate, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, value)
}

func isKnown[T ~string](value T, known []T) bool {
	return slices.Contains(known, value)
}
