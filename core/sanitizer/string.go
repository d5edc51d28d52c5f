package sanitizer

import (
	"strings"
	"unicode"
)

// LogValueMaxLength caps header snapshots written to logs.
const LogValueMaxLength = 80

// MaxLength handles Unicode properly and prevents buffer overflows from malicious input.
func MaxLength(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}

	return string(runes[:maxLen])
}

// StripLineBreaks removes CR and LF characters and surrounding whitespace.
// Header values pass through here before they are logged or parsed.
func StripLineBreaks(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return strings.TrimSpace(s)
}

// RemoveControlChars prevents injection attacks while preserving common whitespace.
func RemoveControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)
}

// IsDigits reports whether s is non-empty and made only of ASCII decimal digits.
// Signs, whitespace, hex prefixes and non-ASCII digits are rejected.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// LogValue returns a copy of s that is safe to put in a single log line.
func LogValue(s string) string {
	return MaxLength(RemoveControlChars(StripLineBreaks(s)), LogValueMaxLength)
}
