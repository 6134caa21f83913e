// Package fingerprint derives permanent work IDs: stable, deterministic
// fingerprints of a book's normalized title, author, and medium. Two
// editions with the same fingerprint are presumed to describe the same
// underlying work even when no equivalency connects their identifiers.
package fingerprint

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/openshelf/openshelf-server/internal/domain"
)

// namespace scopes the derived UUIDs so they never collide with other
// SHA1-based UUID schemes.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://openshelf.org/ns/permanent-work-id"))

// stripMarks decomposes accented characters and removes the combining
// marks, so "Café" and "Cafe" normalize identically.
var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var folder = cases.Fold()

// Normalize reduces a title or author string to its comparable form:
// accent-stripped, case-folded, punctuation removed, whitespace collapsed.
func Normalize(s string) string {
	stripped, _, err := transform.String(stripMarks, s)
	if err != nil {
		stripped = s
	}
	folded := folder.String(stripped)

	var b strings.Builder
	b.Grow(len(folded))
	lastSpace := true
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) && !lastSpace:
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// PermanentWorkID computes the fingerprint for (title, author, medium).
// Missing title or author yields the empty string; a fingerprint built on
// incomplete metadata would cluster unrelated books together.
func PermanentWorkID(title, author string, medium domain.Medium) string {
	normTitle := Normalize(title)
	normAuthor := Normalize(author)
	if normTitle == "" || normAuthor == "" {
		return ""
	}

	key := normTitle + "|" + normAuthor + "|" + string(medium)
	return uuid.NewSHA1(namespace, []byte(key)).String()
}

// ForEdition computes the fingerprint from an edition's own fields.
func ForEdition(e *domain.Edition) string {
	return PermanentWorkID(e.Title, e.Author(), e.Medium)
}
