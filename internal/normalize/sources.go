package normalize

func builtinSources() []Source {
	return []Source{
		{
			Name:           "generic",
			Type:           SourceGeneric,
			Timezone:       "UTC",
			BaseConfidence: 0.5,
		},
		{
			Name:     "iamsterdam",
			Type:     SourceIamsterdam,
			Timezone: "Europe/Amsterdam",
			Categories: map[string]EventType{
				"concert":        TypeConcert,
				"concerten":      TypeConcert,
				"muziek":         TypeConcert,
				"music":          TypeConcert,
				"festival":       TypeConcert,
				"theater":        TypeTheater,
				"theatre":        TypeTheater,
				"toneel":         TypeTheater,
				"cabaret":        TypeTheater,
				"dans":           TypeTheater,
				"dance":          TypeTheater,
				"museum":         TypeMuseum,
				"musea":          TypeMuseum,
				"exhibition":     TypeMuseum,
				"tentoonstelling": TypeMuseum,
			},
			BaseConfidence: 0.7,
		},
		{
			Name:     "filmladder",
			Type:     SourceFilmladder,
			Timezone: "Europe/Amsterdam",
			Categories: map[string]EventType{
				"film":    TypeOther,
				"cinema":  TypeOther,
				"special": TypeOther,
			},
			BaseConfidence: 0.6,
		},
	}
}

func mapGeneric(rec RawRecord, draft *Draft) {
	draft.SourceEventID = optionalStringField(rec, "source_event_id", "source_id", "id")
	draft.SourceURL = optionalStringField(rec, "source_url", "url")
	draft.Title = stringField(rec, "title", "name")
	draft.Description = stringField(rec, "description", "summary")
	draft.Tags = stringSliceField(rec, "tags")
	draft.VenueID = intField(rec, "venue_id")
	draft.LocationName = stringField(rec, "venue", "venue_name", "location", "location_name")
	draft.Address = stringField(rec, "address")
	draft.Latitude = floatField(rec, "latitude", "lat")
	draft.Longitude = floatField(rec, "longitude", "lon", "lng")
	draft.TicketURL = optionalStringField(rec, "ticket_url", "tickets")
}

// mapIamsterdam reads the field names used by the iamsterdam agenda pages.
// Coordinates arrive as a nested "geo" object and the ticket link is called
// "booking_url".
func mapIamsterdam(rec RawRecord, draft *Draft) {
	mapGeneric(rec, draft)

	if draft.SourceURL == nil {
		draft.SourceURL = optionalStringField(rec, "page_url")
	}
	if draft.TicketURL == nil {
		draft.TicketURL = optionalStringField(rec, "booking_url")
	}
	if geo, ok := rec["geo"].(map[string]any); ok {
		draft.Latitude = floatField(RawRecord(geo), "latitude", "lat")
		draft.Longitude = floatField(RawRecord(geo), "longitude", "lon", "lng")
	}
	if draft.LocationName == "" {
		draft.LocationName = stringField(rec, "location_title")
	}
}

// mapFilmladder reads cinema listing fields: the film title doubles as the
// event title and the cinema is the venue.
func mapFilmladder(rec RawRecord, draft *Draft) {
	mapGeneric(rec, draft)

	if draft.Title == "" {
		draft.Title = stringField(rec, "film", "film_title")
	}
	if draft.LocationName == "" {
		draft.LocationName = stringField(rec, "cinema", "cinema_name")
	}
	if draft.Description == "" {
		draft.Description = stringField(rec, "synopsis")
	}
}
