package http

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"agyntsynq/internal/embed"
)

// Input validation constants
const (
	MaxSlugLength     = 64
	MaxNameLength     = 120
	MaxWelcomeLength  = 1000
	MinPasswordLength = 6
)

var (
	slugPattern  = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	themePattern = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
)

// ValidSlug checks if a slug is safe (alphanumeric + underscore + hyphen)
func ValidSlug(s string) bool {
	if s == "" || len(s) > MaxSlugLength {
		return false
	}
	return slugPattern.MatchString(s)
}

// ValidChatbotID checks ids taken from query strings and paths.
func ValidChatbotID(s string) bool {
	return embed.ValidChatbotID(s)
}

// ValidThemeColor accepts #rgb and #rrggbb; empty means the default.
func ValidThemeColor(s string) bool {
	return s == "" || themePattern.MatchString(s)
}

// SanitizeString removes null bytes and invalid UTF-8
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return s
}

// ValidateLength checks if string is within bounds (in runes)
func ValidateLength(s string, min, max int) bool {
	l := utf8.RuneCountInString(s)
	return l >= min && l <= max
}
