package models

import (
	"sort"
	"strings"
)

// FieldErrors collects validation messages per field, mirroring the way
// validation failures are left on a record instead of being returned.
type FieldErrors map[string][]string

// Add appends a message for field.
func (e *FieldErrors) Add(field, message string) {
	if *e == nil {
		*e = FieldErrors{}
	}
	(*e)[field] = append((*e)[field], message)
}

// Empty reports whether no errors were collected.
func (e FieldErrors) Empty() bool {
	return len(e) == 0
}

// On returns the messages recorded for field.
func (e FieldErrors) On(field string) []string {
	return e[field]
}

// Clear removes all collected errors.
func (e *FieldErrors) Clear() {
	*e = nil
}

// Merge copies all messages from other into e.
func (e *FieldErrors) Merge(other FieldErrors) {
	for field, messages := range other {
		for _, m := range messages {
			e.Add(field, m)
		}
	}
}

// Error renders the errors sorted by field, e.g. "size: file_size_invalid".
func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+strings.Join(e[field], ", "))
	}
	return strings.Join(parts, "; ")
}
