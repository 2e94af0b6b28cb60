package normalize

import (
	"testing"
	"time"
)

func TestNormalizeGenericRecord(t *testing.T) {
	t.Parallel()

	n := New(Config{DefaultCurrency: "EUR", DefaultTimezone: "UTC"})
	draft, err := n.Normalize("citymail", RawRecord{
		"id":          "cm-123",
		"title":       "  Jazz   at the\tBird ",
		"description": "Late night session.",
		"start_time":  "2026-09-12 19:30",
		"end_time":    "2026-09-12 22:00",
		"venue":       "Café Alto",
		"address":     "Korte Leidsedwarsstraat 115",
		"tags":        []any{"Jazz", "jazz", "  Live  "},
		"price":       "€ 12,50",
		"language":    "EN-us",
		"ticket_url":  "https://example.test/tickets/cm-123",
	})
	if err != nil {
		t.Fatal(err)
	}

	if draft.Source != "citymail" {
		t.Errorf("Source = %q", draft.Source)
	}
	if draft.SourceEventID == nil || *draft.SourceEventID != "cm-123" {
		t.Errorf("SourceEventID = %v", draft.SourceEventID)
	}
	if draft.Title != "Jazz at the Bird" {
		t.Errorf("Title = %q, want collapsed whitespace", draft.Title)
	}
	if want := time.Date(2026, 9, 12, 19, 30, 0, 0, time.UTC); !draft.StartsAt.Equal(want) {
		t.Errorf("StartsAt = %s, want %s", draft.StartsAt, want)
	}
	if draft.EndsAt == nil || !draft.EndsAt.Equal(time.Date(2026, 9, 12, 22, 0, 0, 0, time.UTC)) {
		t.Errorf("EndsAt = %v", draft.EndsAt)
	}
	if got, want := draft.Tags, []string{"jazz", "live"}; len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Tags = %v, want %v", got, want)
	}
	if draft.PriceMin == nil || *draft.PriceMin != 12.5 || draft.PriceMax == nil || *draft.PriceMax != 12.5 {
		t.Errorf("price = %v..%v, want 12.5", draft.PriceMin, draft.PriceMax)
	}
	if draft.Currency != "EUR" {
		t.Errorf("Currency = %q", draft.Currency)
	}
	if draft.Language != "en" {
		t.Errorf("Language = %q, want declared hint to win", draft.Language)
	}
	if draft.Confidence != 0.5 {
		t.Errorf("Confidence = %f, want unknown-source default", draft.Confidence)
	}
	if draft.Type != TypeOther {
		t.Errorf("Type = %q", draft.Type)
	}
	if len(draft.RawPayload) == 0 {
		t.Error("RawPayload not captured")
	}
}

func TestNormalizeIamsterdamRecord(t *testing.T) {
	t.Parallel()

	n := New(Config{DefaultCurrency: "EUR", DefaultTimezone: "UTC"})
	draft, err := n.Normalize("iamsterdam", RawRecord{
		"title":       "Grachtenfestival Openingsconcert",
		"category":    "muziek",
		"start_time":  "2026-09-12 20:00",
		"page_url":    "https://example.test/agenda/1",
		"booking_url": "https://example.test/tickets/1",
		"geo": map[string]any{
			"lat": 52.3731,
			"lon": 4.8926,
		},
		"location_title": "Westerkerk",
	})
	if err != nil {
		t.Fatal(err)
	}

	// September in Amsterdam is UTC+2.
	if want := time.Date(2026, 9, 12, 18, 0, 0, 0, time.UTC); !draft.StartsAt.Equal(want) {
		t.Errorf("StartsAt = %s, want %s", draft.StartsAt, want)
	}
	if draft.Type != TypeConcert {
		t.Errorf("Type = %q, want concert", draft.Type)
	}
	if !draft.HasCoordinates() || *draft.Latitude != 52.3731 || *draft.Longitude != 4.8926 {
		t.Errorf("coordinates = %v, %v", draft.Latitude, draft.Longitude)
	}
	if draft.LocationName != "Westerkerk" {
		t.Errorf("LocationName = %q", draft.LocationName)
	}
	if draft.SourceURL == nil || *draft.SourceURL != "https://example.test/agenda/1" {
		t.Errorf("SourceURL = %v", draft.SourceURL)
	}
	if draft.TicketURL == nil || *draft.TicketURL != "https://example.test/tickets/1" {
		t.Errorf("TicketURL = %v", draft.TicketURL)
	}
	if draft.Confidence != 0.7 {
		t.Errorf("Confidence = %f", draft.Confidence)
	}
}

func TestNormalizeFilmladderRecord(t *testing.T) {
	t.Parallel()

	n := New(Config{DefaultCurrency: "EUR", DefaultTimezone: "UTC"})
	draft, err := n.Normalize("filmladder", RawRecord{
		"film":       "Turks Fruit",
		"cinema":     "The Movies",
		"synopsis":   "Restored classic.",
		"start_time": "2026-11-02 21:15",
	})
	if err != nil {
		t.Fatal(err)
	}

	if draft.Title != "Turks Fruit" {
		t.Errorf("Title = %q", draft.Title)
	}
	if draft.LocationName != "The Movies" {
		t.Errorf("LocationName = %q", draft.LocationName)
	}
	if draft.Description != "Restored classic." {
		t.Errorf("Description = %q", draft.Description)
	}
	// November in Amsterdam is UTC+1.
	if want := time.Date(2026, 11, 2, 20, 15, 0, 0, time.UTC); !draft.StartsAt.Equal(want) {
		t.Errorf("StartsAt = %s, want %s", draft.StartsAt, want)
	}
	if draft.Confidence != 0.6 {
		t.Errorf("Confidence = %f", draft.Confidence)
	}
}

func TestNormalizeRejectsBadRecords(t *testing.T) {
	t.Parallel()

	n := New(Config{})

	if _, err := n.Normalize("generic", RawRecord{"start_time": "2026-09-12 19:30"}); err == nil {
		t.Error("expected error for missing title")
	}
	if _, err := n.Normalize("generic", RawRecord{"title": "   \t "}); err == nil {
		t.Error("expected error for whitespace-only title")
	}
	if _, err := n.Normalize("generic", RawRecord{"title": "Jazz"}); err == nil {
		t.Error("expected error for missing start time")
	}
	if _, err := n.Normalize("generic", RawRecord{"title": "Jazz", "start_time": "not a date"}); err == nil {
		t.Error("expected error for unparsable start time")
	}
}

func TestNormalizeEpochStart(t *testing.T) {
	t.Parallel()

	n := New(Config{})
	draft, err := n.Normalize("generic", RawRecord{
		"title":      "Jazz",
		"start_time": float64(1789500600),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !draft.StartsAt.Equal(time.Unix(1789500600, 0).UTC()) {
		t.Errorf("StartsAt = %s", draft.StartsAt)
	}
}

func TestNormalizeSwapsInvertedPrices(t *testing.T) {
	t.Parallel()

	n := New(Config{})
	draft, err := n.Normalize("generic", RawRecord{
		"title":      "Jazz",
		"start_time": "2026-09-12 19:30",
		"price_min":  25.0,
		"price_max":  10.0,
	})
	if err != nil {
		t.Fatal(err)
	}
	if *draft.PriceMin != 10 || *draft.PriceMax != 25 {
		t.Errorf("price = %v..%v, want swapped to 10..25", *draft.PriceMin, *draft.PriceMax)
	}
}

func TestRegisterCustomSource(t *testing.T) {
	t.Parallel()

	n := New(Config{DefaultTimezone: "UTC"})
	n.Register(Source{
		Name:           "Paradiso",
		Type:           SourceGeneric,
		Timezone:       "Europe/Amsterdam",
		Categories:     map[string]EventType{"gig": TypeConcert},
		BaseConfidence: 0.9,
	})

	draft, err := n.Normalize("PARADISO", RawRecord{
		"title":      "Club Night",
		"start_time": "2026-09-12 23:00",
		"category":   "gig",
	})
	if err != nil {
		t.Fatal(err)
	}
	if draft.Source != "paradiso" {
		t.Errorf("Source = %q, want lowercased registration", draft.Source)
	}
	if draft.Type != TypeConcert {
		t.Errorf("Type = %q, want custom category mapping", draft.Type)
	}
	if draft.Confidence != 0.9 {
		t.Errorf("Confidence = %f", draft.Confidence)
	}
	if want := time.Date(2026, 9, 12, 21, 0, 0, 0, time.UTC); !draft.StartsAt.Equal(want) {
		t.Errorf("StartsAt = %s, want %s", draft.StartsAt, want)
	}
}
