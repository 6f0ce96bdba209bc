package post

import (
	"strconv"
	"strings"
	"unicode"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FallbackSlug is used when a name slugifies to nothing.
const FallbackSlug = "post"

// Slugify converts a post name to a URL-safe slug. Accents are folded to
// their base letters, anything outside [a-z0-9] becomes a hyphen, and runs
// of hyphens collapse into one.
func Slugify(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	prev := false
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prev = false
		default:
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// BaseSlug returns the slug for name, or FallbackSlug when it is empty.
func BaseSlug(name string) string {
	if s := Slugify(name); s != "" {
		return s
	}
	return FallbackSlug
}

// UniqueSlug returns base if it is not taken, otherwise the first free
// base-1, base-2, ... candidate.
func UniqueSlug(base string, taken mapset.Set[string]) string {
	if !taken.Contains(base) {
		return base
	}
	for n := 1; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if !taken.Contains(candidate) {
			return candidate
		}
	}
}
