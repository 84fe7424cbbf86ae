// Package validate provides input validation for user-supplied text and URLs.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// String validation errors
var (
	ErrStringTooShort    = errors.New("string is too short")
	ErrStringTooLong     = errors.New("string is too long")
	ErrInvalidCharacters = errors.New("string contains invalid characters")
	ErrEmpty             = errors.New("string is empty")
)

// Field limits, in characters.
const (
	MaxNoteContentLength  = 10000
	MaxPlaylistNameLength = 200
	MaxDescriptionLength  = 5000
	MaxSearchQueryLength  = 200
)

// StringConstraints defines validation constraints for a string.
type StringConstraints struct {
	MinLength      int            // Minimum length (0 = no minimum)
	MaxLength      int            // Maximum length (0 = no maximum)
	AllowedPattern *regexp.Regexp // Optional regex pattern for allowed characters
	AllowEmpty     bool           // Whether empty strings are allowed
	TrimSpace      bool           // Whether to trim whitespace before validation
}

// String validates a string against the given constraints.
// Returns the validated (and optionally trimmed) string and an error if validation fails.
func String(s string, constraints StringConstraints) (string, error) {
	if constraints.TrimSpace {
		s = strings.TrimSpace(s)
	}

	if s == "" {
		if !constraints.AllowEmpty {
			return "", ErrEmpty
		}
		return s, nil
	}

	// Lengths count characters, not bytes.
	length := utf8.RuneCountInString(s)

	if constraints.MinLength > 0 && length < constraints.MinLength {
		return "", fmt.Errorf("%w: got %d chars, need at least %d", ErrStringTooShort, length, constraints.MinLength)
	}
	if constraints.MaxLength > 0 && length > constraints.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrStringTooLong, length, constraints.MaxLength)
	}
	if constraints.AllowedPattern != nil && !constraints.AllowedPattern.MatchString(s) {
		return "", fmt.Errorf("%w: does not match required pattern", ErrInvalidCharacters)
	}
	return s, nil
}

// NoteContent validates the body of a timestamped note: required, at most
// MaxNoteContentLength characters.
func NoteContent(content string) (string, error) {
	return String(content, StringConstraints{
		MinLength: 1,
		MaxLength: MaxNoteContentLength,
		TrimSpace: true,
	})
}

// PlaylistName validates a playlist name: required, at most MaxPlaylistNameLength characters.
func PlaylistName(name string) (string, error) {
	return String(name, StringConstraints{
		MinLength: 1,
		MaxLength: MaxPlaylistNameLength,
		TrimSpace: true,
	})
}

// Description validates an optional description field.
func Description(desc string) (string, error) {
	return String(desc, StringConstraints{
		MaxLength:  MaxDescriptionLength,
		AllowEmpty: true,
		TrimSpace:  true,
	})
}

// SearchQuery validates a video search query.
func SearchQuery(q string) (string, error) {
	return String(q, StringConstraints{
		MinLength: 1,
		MaxLength: MaxSearchQueryLength,
		TrimSpace: true,
	})
}
