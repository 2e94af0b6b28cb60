package db

import (
	"encoding/json"
	"sort"
	"time"
)

// Event maps events.events, the canonical deduplicated record for one
// real-world event.
type Event struct {
	EventID   int64  `gorm:"column:event_id;primaryKey;autoIncrement"`
	EventUUID string `gorm:"column:event_uuid;type:uuid;not null;unique"`

	Source        string  `gorm:"column:source;type:text;not null"`
	SourceEventID *string `gorm:"column:source_event_id;type:text"`
	SourceURL     *string `gorm:"column:source_url;type:text"`

	Title       string          `gorm:"column:title;type:text;not null"`
	Description string          `gorm:"column:description;type:text;not null;default:''"`
	EventType   string          `gorm:"column:event_type;type:text;not null;default:other"`
	Tags        json.RawMessage `gorm:"column:tags;type:jsonb"`
	Language    string          `gorm:"column:language;type:text;not null;default:''"`

	StartsAt   time.Time       `gorm:"column:starts_at;type:timestamptz;not null"`
	EndsAt     *time.Time      `gorm:"column:ends_at;type:timestamptz"`
	Recurrence json.RawMessage `gorm:"column:recurrence;type:jsonb"`

	VenueID      *int64   `gorm:"column:venue_id;type:bigint"`
	LocationName string   `gorm:"column:location_name;type:text;not null;default:''"`
	Address      string   `gorm:"column:address;type:text;not null;default:''"`
	Latitude     *float64 `gorm:"column:latitude;type:double precision"`
	Longitude    *float64 `gorm:"column:longitude;type:double precision"`

	PriceMin  *float64 `gorm:"column:price_min;type:double precision"`
	PriceMax  *float64 `gorm:"column:price_max;type:double precision"`
	Currency  string   `gorm:"column:currency;type:text;not null;default:EUR"`
	TicketURL *string  `gorm:"column:ticket_url;type:text"`

	Confidence float64 `gorm:"column:confidence;type:double precision;not null;default:0"`
	Verified   bool    `gorm:"column:verified;type:boolean;not null;default:false"`

	ExpiresAt *time.Time `gorm:"column:expires_at;type:timestamptz"`
	DeletedAt *time.Time `gorm:"column:deleted_at;type:timestamptz"`
	CreatedAt time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Event) TableName() string { return "events.events" }

// TagList decodes the jsonb tag set. Always sorted so set comparisons are
// order-insensitive.
func (e *Event) TagList() []string {
	if len(e.Tags) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(e.Tags, &tags); err != nil {
		return nil
	}
	sort.Strings(tags)
	return tags
}

func (e *Event) SetTagList(tags []string) {
	if len(tags) == 0 {
		e.Tags = nil
		return
	}
	deduped := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if _, exists := seen[tag]; exists {
			continue
		}
		seen[tag] = struct{}{}
		deduped = append(deduped, tag)
	}
	sort.Strings(deduped)
	encoded, err := json.Marshal(deduped)
	if err != nil {
		return
	}
	e.Tags = encoded
}

// Venue maps events.venues. Venues own their own lifecycle; events hold a
// non-owning venue_id reference.
type Venue struct {
	VenueID    int64     `gorm:"column:venue_id;primaryKey;autoIncrement"`
	VenueUUID  string    `gorm:"column:venue_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Name       string    `gorm:"column:name;type:text;not null"`
	Address    string    `gorm:"column:address;type:text;not null;default:''"`
	City       string    `gorm:"column:city;type:text;not null;default:''"`
	Country    string    `gorm:"column:country;type:text;not null;default:NL"`
	Latitude   *float64  `gorm:"column:latitude;type:double precision"`
	Longitude  *float64  `gorm:"column:longitude;type:double precision"`
	WebsiteURL *string   `gorm:"column:website_url;type:text"`
	Active     bool      `gorm:"column:active;type:boolean;not null;default:true"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt  time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Venue) TableName() string { return "events.venues" }

// DedupeSignature maps events.dedupe_signatures. Append-only; the unique
// index on signature_hash is the store-level guard that makes exact-key
// insertion atomic even when the application-level lock is bypassed.
type DedupeSignature struct {
	SignatureID   int64     `gorm:"column:signature_id;primaryKey;autoIncrement"`
	SignatureHash []byte    `gorm:"column:signature_hash;type:bytea;not null;unique"`
	EventID       int64     `gorm:"column:event_id;type:bigint;not null"`
	Source        string    `gorm:"column:source;type:text;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (DedupeSignature) TableName() string { return "events.dedupe_signatures" }

// EventSnapshot maps events.event_snapshots, the rotated raw-payload
// provenance history for one event.
type EventSnapshot struct {
	SnapshotID int64           `gorm:"column:snapshot_id;primaryKey;autoIncrement"`
	EventID    int64           `gorm:"column:event_id;type:bigint;not null"`
	Source     string          `gorm:"column:source;type:text;not null"`
	RawPayload json.RawMessage `gorm:"column:raw_payload;type:jsonb;not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (EventSnapshot) TableName() string { return "events.event_snapshots" }

// EventEmbedding maps events.event_embeddings. Absent until enrichment
// completes; vector search simply skips unembedded events.
type EventEmbedding struct {
	EmbeddingID     int64     `gorm:"column:embedding_id;primaryKey;autoIncrement"`
	EventID         int64     `gorm:"column:event_id;type:bigint;not null"`
	ModelName       string    `gorm:"column:model_name;type:text;not null"`
	ModelVersion    string    `gorm:"column:model_version;type:text;not null"`
	Embedding       string    `gorm:"column:embedding;type:vector(384);not null"`
	EmbeddedAt      time.Time `gorm:"column:embedded_at;type:timestamptz;not null;default:now()"`
	ServiceEndpoint string    `gorm:"column:service_endpoint;type:text;not null;default:''"`
}

func (EventEmbedding) TableName() string { return "events.event_embeddings" }

// IngestRun maps events.ingest_runs, the per-batch processing ledger.
type IngestRun struct {
	RunID        int64      `gorm:"column:run_id;primaryKey;autoIncrement"`
	RunUUID      string     `gorm:"column:run_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Source       string     `gorm:"column:source;type:text;not null"`
	StartedAt    time.Time  `gorm:"column:started_at;type:timestamptz;not null;default:now()"`
	FinishedAt   *time.Time `gorm:"column:finished_at;type:timestamptz"`
	Status       string     `gorm:"column:status;type:text;not null;default:running"`
	Created      int        `gorm:"column:created;type:integer;not null;default:0"`
	Updated      int        `gorm:"column:updated;type:integer;not null;default:0"`
	Discarded    int        `gorm:"column:discarded;type:integer;not null;default:0"`
	Errored      int        `gorm:"column:errored;type:integer;not null;default:0"`
	ErrorMessage *string    `gorm:"column:error_message;type:text"`
}

func (IngestRun) TableName() string { return "events.ingest_runs" }

func autoMigrateModels() []any {
	return []any{
		&Event{},
		&Venue{},
		&DedupeSignature{},
		&EventSnapshot{},
		&EventEmbedding{},
		&IngestRun{},
	}
}
