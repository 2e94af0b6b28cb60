package signature

import (
	"bytes"
	"testing"
	"time"

	"horse.fit/citypulse/internal/normalize"
)

func TestExactKeyIgnoresCasingAndPunctuation(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 9, 12, 19, 30, 0, 0, time.UTC)
	a := ExactKey("Jazz at the Bird!", start, nil, "Café Alto")
	b := ExactKey("jazz AT the bird", start, nil, "cafe alto")

	// Punctuation and case never change the key; diacritics do.
	if bytes.Equal(a, b) {
		t.Fatal("expected different keys for 'Café' vs 'cafe'")
	}

	c := ExactKey("jazz AT the bird", start, nil, "Café   Alto")
	if !bytes.Equal(a, c) {
		t.Fatal("expected identical keys for case and whitespace variants")
	}
}

func TestExactKeyTruncatesStartToMinute(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 9, 12, 19, 30, 0, 0, time.UTC)
	a := ExactKey("Jazz", base.Add(12*time.Second), nil, "Alto")
	b := ExactKey("Jazz", base.Add(48*time.Second), nil, "Alto")
	c := ExactKey("Jazz", base.Add(time.Minute), nil, "Alto")

	if !bytes.Equal(a, b) {
		t.Fatal("seconds within the same minute must not change the key")
	}
	if bytes.Equal(a, c) {
		t.Fatal("a different minute must change the key")
	}
}

func TestExactKeyVenueIDBeatsLocationName(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 9, 12, 19, 30, 0, 0, time.UTC)
	venue := int64(7)

	withVenue := ExactKey("Jazz", start, &venue, "Café Alto")
	withName := ExactKey("Jazz", start, nil, "Café Alto")
	if bytes.Equal(withVenue, withName) {
		t.Fatal("venue-linked and name-only keys must differ")
	}

	otherName := ExactKey("Jazz", start, &venue, "somewhere else entirely")
	if !bytes.Equal(withVenue, otherName) {
		t.Fatal("location name must be ignored when a venue id is present")
	}
}

func TestExactKeyNormalizesZone(t *testing.T) {
	t.Parallel()

	ams, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		t.Fatal(err)
	}
	utc := time.Date(2026, 9, 12, 17, 30, 0, 0, time.UTC)
	local := utc.In(ams)

	if !bytes.Equal(ExactKey("Jazz", utc, nil, "Alto"), ExactKey("Jazz", local, nil, "Alto")) {
		t.Fatal("the same instant in different zones must produce the same key")
	}
}

func TestFuzzyTitle(t *testing.T) {
	t.Parallel()

	cases := []struct {
		title string
		want  string
	}{
		{"Jazz at the Bird", "jazz bird"},
		{"Jazz @ Bird!", "jazz bird"},
		{"De Nacht van de Poëzie", "nacht poëzie"},
		{"  Concert:   Bach & Friends ", "concert bach friends"},
		{"The Van", "the van"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := FuzzyTitle(tc.title); got != tc.want {
			t.Errorf("FuzzyTitle(%q) = %q, want %q", tc.title, got, tc.want)
		}
	}
}

func TestComputeReturnsUTCStart(t *testing.T) {
	t.Parallel()

	ams, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		t.Fatal(err)
	}

	sig := Compute(normalize.Draft{
		Title:        "Jazz at the Bird",
		StartsAt:     time.Date(2026, 9, 12, 21, 30, 0, 0, ams),
		LocationName: "Café Alto",
	})

	if sig.StartsAt.Location() != time.UTC {
		t.Fatalf("StartsAt zone = %v, want UTC", sig.StartsAt.Location())
	}
	if len(sig.ExactKey) != 32 {
		t.Fatalf("ExactKey length = %d, want 32", len(sig.ExactKey))
	}
	if sig.FuzzyTitle != "jazz bird" {
		t.Fatalf("FuzzyTitle = %q", sig.FuzzyTitle)
	}
}
