// Package userutil normalizes username-like values for use in OS object
// names (named mutexes, pipe endpoints, socket files).
package userutil

import (
	"regexp"
	"strings"
)

// maxNameLen caps the sanitized value so it fits the length limits enforced
// on endpoint names.
const maxNameLen = 64

var invalidUsernameRune = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SanitizeUsername maps a username to a safe identifier segment. Runs of
// disallowed characters collapse to a single underscore; empty input maps to
// "unknown"; the result is at most maxNameLen characters.
func SanitizeUsername(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	value = invalidUsernameRune.ReplaceAllString(value, "_")
	if len(value) > maxNameLen {
		value = value[:maxNameLen]
	}
	return value
}
