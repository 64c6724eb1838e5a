// Package validator provides input validation and sanitization functions
// shared by attachment declarations and the HTTP layer.
package validator

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Validation errors
var (
	ErrInvalidSlotName = errors.New("invalid slot name")
	ErrInvalidKindName = errors.New("invalid kind name")
	ErrInputTooLong    = errors.New("input exceeds maximum length")
	ErrEmptyInput      = errors.New("input cannot be empty")
)

// Regex patterns for validation
var (
	// Slot names are snake_case identifiers, e.g. "photo" or "image_1"
	slotNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

	// Kind names are CamelCase identifiers, optionally nested with "::"
	kindNameRegex = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*(::[A-Z][A-Za-z0-9]*)*$`)

	// Anything outside this set is replaced in stored filenames
	unsafeFilenameRegex = regexp.MustCompile(`[^A-Za-z0-9.\-_]`)
)

// ValidateSlotName validates an attachment slot name.
func ValidateSlotName(name string) error {
	if name == "" {
		return ErrEmptyInput
	}
	if !slotNameRegex.MatchString(name) {
		return ErrInvalidSlotName
	}
	return nil
}

// ValidateKindName validates an attachment kind name such as "Photo" or
// "Member::Photo".
func ValidateKindName(name string) error {
	if name == "" {
		return ErrEmptyInput
	}
	if len(name) > 255 {
		return ErrInputTooLong
	}
	if !kindNameRegex.MatchString(name) {
		return ErrInvalidKindName
	}
	return nil
}

// SanitizeFilename reduces an uploaded filename to a safe base name.
// Directories are dropped and characters outside [A-Za-z0-9._-] become "_".
func SanitizeFilename(filename string) string {
	// Keep the base name only; browsers may send full client paths
	if i := strings.LastIndexAny(filename, `/\`); i >= 0 {
		filename = filename[i+1:]
	}

	// Remove control characters (ASCII 0-31 and 127)
	filename = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, filename)

	filename = strings.TrimSpace(filename)
	filename = unsafeFilenameRegex.ReplaceAllString(filename, "_")

	for strings.Contains(filename, "..") {
		filename = strings.ReplaceAll(filename, "..", "_")
	}

	// Limit length to 255 characters (common filesystem limit)
	if utf8.RuneCountInString(filename) > 255 {
		runes := []rune(filename)
		filename = string(runes[:255])
	}

	// Fallback for empty filename
	if filename == "" || filename == "." {
		return "unnamed"
	}

	return filename
}

// SanitizeString removes potentially dangerous characters and enforces length limits.
// Removes control characters and trims whitespace.
func SanitizeString(input string, maxLength int) string {
	// Remove control characters (ASCII 0-31 and 127)
	input = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, input)

	// Trim whitespace
	input = strings.TrimSpace(input)

	// Enforce maximum length if specified
	if maxLength > 0 && utf8.RuneCountInString(input) > maxLength {
		runes := []rune(input)
		input = string(runes[:maxLength])
	}

	return input
}
