// Package identifiers normalizes and converts ISBN forms. Reconciliation
// compares identifiers only in canonical form: the 13-digit string produced
// by Digits/Normalize.
package identifiers

import (
	"strings"
	"unicode"
)

// Normalize removes hyphens, spaces, and common prefixes from an ISBN,
// keeping only digits and X (the ISBN-10 checksum character), uppercased.
func Normalize(value string) string {
	value = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(value)), "ISBN:")
	value = strings.TrimPrefix(value, "ISBN")

	var result strings.Builder
	for _, r := range value {
		if unicode.IsDigit(r) || r == 'X' || r == 'x' {
			result.WriteRune(r)
		}
	}
	return strings.ToUpper(result.String())
}

// Digits strips everything but ASCII digits from value. Provider identifier
// lists mix hyphenated and plain forms; comparisons always use this form.
func Digits(value string) string {
	var result strings.Builder
	for _, r := range value {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// IsISBN13 reports whether value normalizes to exactly 13 digits. This is the
// canonical-form check used throughout reconciliation; it intentionally does
// not verify the checksum, because several providers emit ISBN-13 values with
// transcription errors that are still useful as dedup/lookup keys.
func IsISBN13(value string) bool {
	n := Normalize(value)
	if len(n) != 13 {
		return false
	}
	for _, r := range n {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// ValidateISBN13 validates an ISBN-13 checksum.
// ISBN-13 uses alternating weights of 1 and 3 modulo 10.
func ValidateISBN13(isbn string) bool {
	if len(isbn) != 13 {
		return false
	}

	var sum int
	for i, r := range isbn {
		if !unicode.IsDigit(r) {
			return false
		}
		digit := int(r - '0')
		if i%2 == 0 {
			sum += digit
		} else {
			sum += digit * 3
		}
	}
	return sum%10 == 0
}

// ISBN10To13 converts a 10-character ISBN to its 13-digit canonical form by
// prefixing "978" and recomputing the weighted modulo-10 checksum. The ok
// result is false when the input is not a valid 10-character form.
func ISBN10To13(isbn10 string) (string, bool) {
	s := Normalize(isbn10)
	if len(s) != 10 {
		return "", false
	}

	core := "978" + s[:9]
	var sum int
	for i, r := range core {
		if !unicode.IsDigit(r) {
			return "", false
		}
		digit := int(r - '0')
		if i%2 == 0 {
			sum += digit
		} else {
			sum += digit * 3
		}
	}
	check := (10 - sum%10) % 10

	return core + string(rune('0'+check)), true
}

// ISBN13To10 converts a 978-prefixed ISBN-13 back to its ISBN-10 form,
// recomputing the modulo-11 check character ("X" when the remainder is 10).
// The ok result is false for non-978 or malformed input.
func ISBN13To10(isbn13 string) (string, bool) {
	s := Normalize(isbn13)
	if len(s) != 13 || !strings.HasPrefix(s, "978") {
		return "", false
	}

	core := s[3:12]
	var sum int
	for i, r := range core {
		if !unicode.IsDigit(r) {
			return "", false
		}
		sum += int(r-'0') * (10 - i)
	}
	check := (11 - sum%11) % 11

	checkChar := "X"
	if check < 10 {
		checkChar = string(rune('0' + check))
	}
	return core + checkChar, true
}

// Dedup removes repeated values while preserving the position of each first
// occurrence. It is idempotent and uses value equality.
func Dedup[T comparable](values []T) []T {
	seen := make(map[T]struct{}, len(values))
	out := make([]T, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
