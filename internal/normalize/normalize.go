// Package normalize cleans and validates user supplied identifiers.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// MaxHandle is the longest generated or user-chosen handle.
const MaxHandle = 20

var emailRE = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// Email returns a normalized form of an email address suitable for
// storage and comparisons. Normalization currently trims surrounding
// whitespace and lower-cases the address.
func Email(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// ValidEmail reports whether e looks like an address.
func ValidEmail(e string) bool {
	return emailRE.MatchString(e)
}

// Handle derives a handle from a display name: the lower-case alphanumeric
// characters of first+last, cut to MaxHandle. When taken reports the base as
// used, the smallest free integer suffix starting at 0 is appended; the
// suffix may push the handle past MaxHandle.
func Handle(first, last string, taken func(string) bool) string {
	var b strings.Builder
	for _, r := range first + last {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	base := b.String()
	if len(base) > MaxHandle {
		base = base[:MaxHandle]
	}
	if !taken(base) {
		return base
	}
	for n := 0; ; n++ {
		h := base + strconv.Itoa(n)
		if !taken(h) {
			return h
		}
	}
}

// ValidHandle reports whether h is 3..20 alphanumeric characters.
func ValidHandle(h string) bool {
	if len(h) < 3 || len(h) > MaxHandle {
		return false
	}
	for _, r := range h {
		if r >= unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return false
		}
	}
	return true
}
