// Package util provides common helpers shared by the command, storage and
// reporting layers.
package util

import (
	"fmt"
	"strconv"
	"strings"
)

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// StripComment drops everything from the first '#' and trims the rest.
func StripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

// FormatChecksum renders a checksum the way dumps and reports print it.
func FormatChecksum(sum uint32) string {
	return fmt.Sprintf("%08x", sum)
}

// ParseChecksum accepts the FormatChecksum form, with or without a 0x prefix.
func ParseChecksum(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid checksum %q: %w", s, err)
	}
	return uint32(v), nil
}
