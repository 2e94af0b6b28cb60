package dedup

import (
	"bytes"
	"sort"
	"time"

	"horse.fit/citypulse/internal/db"
	"horse.fit/citypulse/internal/normalize"
)

// merge folds a draft into an existing event in place and reports whether
// anything actually changed.
//
// Scalar fields follow the confidence gate: a draft at least as confident
// as the stored row overwrites with its non-empty values and takes over the
// confidence (so on equal confidence the most recent write wins); a less
// confident draft only fills gaps. Tags are always unioned. The canonical
// source and creation identity of the event never change.
func merge(event *db.Event, draft normalize.Draft) bool {
	changed := false

	if draft.Confidence >= event.Confidence {
		changed = overwriteScalars(event, draft) || changed
		if draft.Confidence != event.Confidence {
			event.Confidence = draft.Confidence
			changed = true
		}
	} else {
		changed = fillGaps(event, draft) || changed
	}

	changed = unionTags(event, draft.Tags) || changed
	return changed
}

func overwriteScalars(event *db.Event, draft normalize.Draft) bool {
	changed := false

	if draft.Title != "" && draft.Title != event.Title {
		event.Title = draft.Title
		changed = true
	}
	if draft.Description != "" && draft.Description != event.Description {
		event.Description = draft.Description
		changed = true
	}
	if draft.Type != "" && draft.Type != normalize.TypeOther && string(draft.Type) != event.EventType {
		event.EventType = string(draft.Type)
		changed = true
	}
	if draft.Language != "" && draft.Language != event.Language {
		event.Language = draft.Language
		changed = true
	}
	if !draft.StartsAt.IsZero() && !draft.StartsAt.UTC().Equal(event.StartsAt.UTC()) {
		event.StartsAt = draft.StartsAt.UTC()
		changed = true
	}
	changed = setTimePtr(&event.EndsAt, draft.EndsAt) || changed
	if len(draft.Recurrence) > 0 && !bytes.Equal(draft.Recurrence, event.Recurrence) {
		event.Recurrence = draft.Recurrence
		changed = true
	}
	changed = setInt64Ptr(&event.VenueID, draft.VenueID) || changed
	if draft.LocationName != "" && draft.LocationName != event.LocationName {
		event.LocationName = draft.LocationName
		changed = true
	}
	if draft.Address != "" && draft.Address != event.Address {
		event.Address = draft.Address
		changed = true
	}
	if draft.HasCoordinates() {
		changed = setFloatPtr(&event.Latitude, draft.Latitude) || changed
		changed = setFloatPtr(&event.Longitude, draft.Longitude) || changed
	}
	changed = setFloatPtr(&event.PriceMin, draft.PriceMin) || changed
	changed = setFloatPtr(&event.PriceMax, draft.PriceMax) || changed
	if draft.Currency != "" && draft.Currency != event.Currency {
		event.Currency = draft.Currency
		changed = true
	}
	changed = setStringPtr(&event.TicketURL, draft.TicketURL) || changed
	changed = setStringPtr(&event.SourceURL, draft.SourceURL) || changed

	return changed
}

// fillGaps only writes fields the event does not have yet.
func fillGaps(event *db.Event, draft normalize.Draft) bool {
	changed := false

	if event.Description == "" && draft.Description != "" {
		event.Description = draft.Description
		changed = true
	}
	if event.EventType == string(normalize.TypeOther) && draft.Type != "" && draft.Type != normalize.TypeOther {
		event.EventType = string(draft.Type)
		changed = true
	}
	if event.Language == "" && draft.Language != "" {
		event.Language = draft.Language
		changed = true
	}
	if event.EndsAt == nil && draft.EndsAt != nil {
		t := draft.EndsAt.UTC()
		event.EndsAt = &t
		changed = true
	}
	if len(event.Recurrence) == 0 && len(draft.Recurrence) > 0 {
		event.Recurrence = draft.Recurrence
		changed = true
	}
	if event.VenueID == nil && draft.VenueID != nil {
		id := *draft.VenueID
		event.VenueID = &id
		changed = true
	}
	if event.LocationName == "" && draft.LocationName != "" {
		event.LocationName = draft.LocationName
		changed = true
	}
	if event.Address == "" && draft.Address != "" {
		event.Address = draft.Address
		changed = true
	}
	if event.Latitude == nil && event.Longitude == nil && draft.HasCoordinates() {
		lat, lon := *draft.Latitude, *draft.Longitude
		event.Latitude = &lat
		event.Longitude = &lon
		changed = true
	}
	if event.PriceMin == nil && draft.PriceMin != nil {
		v := *draft.PriceMin
		event.PriceMin = &v
		changed = true
	}
	if event.PriceMax == nil && draft.PriceMax != nil {
		v := *draft.PriceMax
		event.PriceMax = &v
		changed = true
	}
	if event.TicketURL == nil && draft.TicketURL != nil {
		v := *draft.TicketURL
		event.TicketURL = &v
		changed = true
	}

	return changed
}

func unionTags(event *db.Event, incoming []string) bool {
	if len(incoming) == 0 {
		return false
	}

	existing := event.TagList()
	seen := make(map[string]struct{}, len(existing))
	for _, tag := range existing {
		seen[tag] = struct{}{}
	}

	merged := append([]string(nil), existing...)
	added := false
	for _, tag := range incoming {
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		merged = append(merged, tag)
		added = true
	}
	if !added {
		return false
	}
	sort.Strings(merged)
	event.SetTagList(merged)
	return true
}

func setTimePtr(dst **time.Time, src *time.Time) bool {
	if src == nil {
		return false
	}
	v := src.UTC()
	if *dst != nil && (*dst).UTC().Equal(v) {
		return false
	}
	*dst = &v
	return true
}

func setFloatPtr(dst **float64, src *float64) bool {
	if src == nil {
		return false
	}
	if *dst != nil && **dst == *src {
		return false
	}
	v := *src
	*dst = &v
	return true
}

func setInt64Ptr(dst **int64, src *int64) bool {
	if src == nil {
		return false
	}
	if *dst != nil && **dst == *src {
		return false
	}
	v := *src
	*dst = &v
	return true
}

func setStringPtr(dst **string, src *string) bool {
	if src == nil || *src == "" {
		return false
	}
	if *dst != nil && **dst == *src {
		return false
	}
	v := *src
	*dst = &v
	return true
}
