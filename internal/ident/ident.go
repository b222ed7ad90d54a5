// Package ident validates and quotes PostgreSQL identifiers and literals.
// DDL text cannot carry bind parameters, so every name that reaches SQL
// must pass Validate first.
package ident

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxLength is PostgreSQL's NAMEDATALEN-1; longer names are silently truncated
// by the server, which would break name-based constraint lookups.
const MaxLength = 63

// ValidationError reports an identifier or value that cannot be placed in SQL text.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid identifier %q: %s", e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Validate checks that name is usable as a quoted identifier.
// Quotes, NUL and control characters are rejected rather than escaped.
func Validate(field, name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: field, Value: name, Reason: "must not be empty"}
	}
	if len(name) > MaxLength {
		return &ValidationError{Field: field, Value: name, Reason: fmt.Sprintf("longer than %d bytes", MaxLength)}
	}
	for _, r := range name {
		switch {
		case r == '"':
			return &ValidationError{Field: field, Value: name, Reason: "contains a double quote"}
		case r == 0 || unicode.IsControl(r):
			return &ValidationError{Field: field, Value: name, Reason: "contains a control character"}
		}
	}
	return nil
}

// ValidateAll validates every name, returning the first failure.
func ValidateAll(field string, names ...string) error {
	for _, n := range names {
		if err := Validate(field, n); err != nil {
			return err
		}
	}
	return nil
}

// Quote wraps a validated identifier in double quotes.
func Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteList quotes each name and joins them with ", ".
func QuoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = Quote(n)
	}
	return strings.Join(quoted, ", ")
}

// QuoteLiteral renders s as a single-quoted string literal.
func QuoteLiteral(s string) string {
	if strings.ContainsRune(s, 0) {
		// NUL cannot appear in a text value; callers validate first.
		s = strings.ReplaceAll(s, "\x00", "")
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// ValidateLiteral rejects values that cannot be stored in a text column.
func ValidateLiteral(field, value string) error {
	if strings.ContainsRune(value, 0) {
		return &ValidationError{Field: field, Value: value, Reason: "contains a NUL byte"}
	}
	return nil
}

// Truncate shortens a generated name to MaxLength bytes on a rune boundary.
func Truncate(name string) string {
	if len(name) <= MaxLength {
		return name
	}
	cut := MaxLength
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}
