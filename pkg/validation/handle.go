package validation

import (
	"fmt"
	"strings"
)

const (
	// MaxHandleLength is the longest handle that can be minted
	MaxHandleLength = 15
)

// NormalizeHandle lowercases and trims a handle name.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(handle, "$")))
}

// ValidateHandle checks that a normalized handle only uses the allowed alphabet:
// lowercase letters, digits, '-', '_' and '.'.
func ValidateHandle(handle string) error {
	if handle == "" {
		return fmt.Errorf("handle cannot be empty")
	}
	if len(handle) > MaxHandleLength {
		return fmt.Errorf("handle is too long: max %d characters, got %d", MaxHandleLength, len(handle))
	}
	for i, r := range handle {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return fmt.Errorf("invalid character %q at position %d", r, i)
		}
	}
	return nil
}
