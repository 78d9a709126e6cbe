package emailutil

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Normalize normalizes an email address for consistent comparison
// by converting to lowercase and trimming whitespace
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Valid reports whether email has the local@domain.tld shape. It does not
// attempt full RFC 5322 validation.
func Valid(email string) bool {
	return emailPattern.MatchString(email)
}
