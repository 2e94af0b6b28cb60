package normalize

import (
	"encoding/json"
	"time"
)

// RawRecord is an untyped field map as delivered by a source adapter. No key
// is guaranteed to be present.
type RawRecord map[string]any

// SourceType selects the mapping variant used to interpret a RawRecord.
type SourceType string

const (
	SourceGeneric    SourceType = "generic"
	SourceIamsterdam SourceType = "iamsterdam"
	SourceFilmladder SourceType = "filmladder"
)

// EventType is the fixed event category vocabulary.
type EventType string

const (
	TypeConcert EventType = "concert"
	TypeTheater EventType = "theater"
	TypeMuseum  EventType = "museum"
	TypeOther   EventType = "other"
)

// Source declares how records from one adapter are interpreted: its mapping
// variant, the timezone its date strings are expressed in, the category
// vocabulary it uses, and the trust we place in its data.
type Source struct {
	Name           string
	Type           SourceType
	Timezone       string
	Categories     map[string]EventType
	BaseConfidence float64
}

// Draft is a candidate canonical event produced by normalization. It has
// typed fields but no identity yet; identity is assigned by the deduplicator.
type Draft struct {
	Source        string
	SourceEventID *string
	SourceURL     *string

	Title       string
	Description string
	Type        EventType
	Tags        []string
	Language    string

	StartsAt   time.Time
	EndsAt     *time.Time
	Recurrence json.RawMessage

	VenueID      *int64
	LocationName string
	Address      string
	Latitude     *float64
	Longitude    *float64

	PriceMin  *float64
	PriceMax  *float64
	Currency  string
	TicketURL *string

	Confidence float64
	RawPayload json.RawMessage
}

// HasCoordinates reports whether both latitude and longitude are set.
func (d *Draft) HasCoordinates() bool {
	return d.Latitude != nil && d.Longitude != nil
}
