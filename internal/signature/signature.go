// Package signature computes the dedupe fingerprints of a draft: a
// deterministic exact key for O(1) duplicate lookup and the fuzzy title
// material the deduplicator compares approximately.
package signature

import (
	"crypto/sha256"
	"strconv"
	"strings"
	"time"
	"unicode"

	"horse.fit/citypulse/internal/normalize"
)

// Signature holds both fingerprints for one draft. ExactKey is persisted;
// FuzzyTitle is recomputed on demand because approximate comparison needs
// the string, not a hash.
type Signature struct {
	ExactKey   []byte
	FuzzyTitle string
	StartsAt   time.Time
}

// Stopwords that carry no identity for title matching. English and Dutch,
// since that is what the scraped corpus contains.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "at": {}, "de": {}, "den": {}, "der": {},
	"een": {}, "en": {}, "het": {}, "in": {}, "of": {}, "on": {}, "op": {},
	"te": {}, "the": {}, "to": {}, "van": {}, "voor": {}, "with": {}, "met": {},
}

// Compute derives both keys from a draft. The exact key hashes the
// normalized lowercase title, the start time truncated to the minute, and
// the venue id (or the normalized location name when no venue is linked).
func Compute(d normalize.Draft) Signature {
	return Signature{
		ExactKey:   ExactKey(d.Title, d.StartsAt, d.VenueID, d.LocationName),
		FuzzyTitle: FuzzyTitle(d.Title),
		StartsAt:   d.StartsAt.UTC(),
	}
}

func ExactKey(title string, startsAt time.Time, venueID *int64, locationName string) []byte {
	var b strings.Builder
	b.WriteString(normalizeTitle(title))
	b.WriteByte('|')
	b.WriteString(startsAt.UTC().Truncate(time.Minute).Format(time.RFC3339))
	b.WriteByte('|')
	if venueID != nil {
		b.WriteString("venue:")
		b.WriteString(strconv.FormatInt(*venueID, 10))
	} else {
		b.WriteString(normalizeTitle(locationName))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return sum[:]
}

// FuzzyTitle lowercases, strips punctuation, and removes stopwords. Two
// listings of the same real-world event written slightly differently should
// collapse to nearly identical fuzzy titles.
func FuzzyTitle(title string) string {
	tokens := tokenize(title)
	if len(tokens) == 0 {
		return ""
	}
	kept := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, skip := stopwords[token]; skip {
			continue
		}
		kept = append(kept, token)
	}
	if len(kept) == 0 {
		// All-stopword titles keep their tokens rather than vanishing.
		kept = tokens
	}
	return strings.Join(kept, " ")
}

func normalizeTitle(s string) string {
	return strings.Join(tokenize(s), " ")
}

func tokenize(s string) []string {
	lowered := strings.ToLower(strings.TrimSpace(s))
	if lowered == "" {
		return nil
	}
	parts := strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		tokens = append(tokens, p)
	}
	return tokens
}
