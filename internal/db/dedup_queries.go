package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const eventSelectColumns = `
	e.event_id,
	e.event_uuid::text,
	e.source,
	e.source_event_id,
	e.source_url,
	e.title,
	e.description,
	e.event_type,
	e.tags,
	e.language,
	e.starts_at,
	e.ends_at,
	e.recurrence,
	e.venue_id,
	e.location_name,
	e.address,
	e.latitude,
	e.longitude,
	e.price_min,
	e.price_max,
	e.currency,
	e.ticket_url,
	e.confidence,
	e.verified,
	e.expires_at,
	e.deleted_at,
	e.created_at,
	e.updated_at`

// FindEventIDBySignature resolves an exact dedupe key to its canonical event.
// Returns ErrNoRows when the signature has never been seen.
func (p *Pool) FindEventIDBySignature(ctx context.Context, signatureHash []byte) (int64, error) {
	if len(signatureHash) == 0 {
		return 0, fmt.Errorf("signature hash is required")
	}

	const q = `
SELECT s.event_id
FROM events.dedupe_signatures s
JOIN events.events e
	ON e.event_id = s.event_id
WHERE s.signature_hash = $1
  AND e.deleted_at IS NULL
`

	var eventID int64
	if err := p.QueryRow(ctx, q, signatureHash).Scan(&eventID); err != nil {
		if errors.Is(err, ErrNoRows) {
			return 0, ErrNoRows
		}
		return 0, fmt.Errorf("query event by signature: %w", err)
	}
	return eventID, nil
}

// FindEventIDBySourceID resolves a source's own stable identifier to the
// live event it landed on. Returns ErrNoRows when the source has never sent
// this id.
func (p *Pool) FindEventIDBySourceID(ctx context.Context, source, sourceEventID string) (int64, error) {
	if source == "" || sourceEventID == "" {
		return 0, fmt.Errorf("source and source event id are required")
	}

	const q = `
SELECT e.event_id
FROM events.events e
WHERE e.source = $1
  AND e.source_event_id = $2
  AND e.deleted_at IS NULL
`

	var eventID int64
	if err := p.QueryRow(ctx, q, source, sourceEventID).Scan(&eventID); err != nil {
		if errors.Is(err, ErrNoRows) {
			return 0, ErrNoRows
		}
		return 0, fmt.Errorf("query event by source id: %w", err)
	}
	return eventID, nil
}

// ListDedupCandidates returns live events starting inside the provided UTC
// window, for fuzzy matching against an incoming draft.
func (p *Pool) ListDedupCandidates(ctx context.Context, from, to time.Time) ([]Event, error) {
	fromUTC := from.UTC()
	toUTC := to.UTC()
	if !fromUTC.Before(toUTC) {
		return nil, fmt.Errorf("from must be before to")
	}

	const q = `
SELECT` + eventSelectColumns + `
FROM events.events e
WHERE e.deleted_at IS NULL
  AND e.starts_at >= $1
  AND e.starts_at <= $2
ORDER BY e.starts_at ASC, e.event_id ASC
`

	rows, err := p.Query(ctx, q, fromUTC, toUTC)
	if err != nil {
		return nil, fmt.Errorf("query dedup candidates: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows, 16)
}

// GetEventByID loads one event row by internal id.
func (p *Pool) GetEventByID(ctx context.Context, eventID int64) (*Event, error) {
	if eventID <= 0 {
		return nil, fmt.Errorf("event id must be > 0")
	}

	const q = `
SELECT` + eventSelectColumns + `
FROM events.events e
WHERE e.event_id = $1
`

	event, err := scanEvent(p.QueryRow(ctx, q, eventID))
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("query event %d: %w", eventID, err)
	}
	return event, nil
}

// InsertEventParams carries everything one new-event transaction writes.
type InsertEventParams struct {
	Event         *Event
	SignatureHash []byte
	RawPayload    json.RawMessage
}

// InsertEvent creates a new canonical event together with its dedupe
// signature and first provenance snapshot, atomically. When the signature
// insert hits the unique index the whole transaction rolls back and
// ErrDuplicateSignature is returned so the caller can retry as an update.
func (p *Pool) InsertEvent(ctx context.Context, params InsertEventParams) (int64, error) {
	if params.Event == nil {
		return 0, fmt.Errorf("event is required")
	}
	if len(params.SignatureHash) == 0 {
		return 0, fmt.Errorf("signature hash is required")
	}

	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin insert event tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertEventQuery = `
INSERT INTO events.events (
	event_uuid,
	source, source_event_id, source_url,
	title, description, event_type, tags, language,
	starts_at, ends_at, recurrence,
	venue_id, location_name, address, latitude, longitude,
	price_min, price_max, currency, ticket_url,
	confidence, verified, expires_at,
	created_at, updated_at
) VALUES (
	$1::uuid,
	$2, $3, $4,
	$5, $6, $7, $8, $9,
	$10, $11, $12,
	$13, $14, $15, $16, $17,
	$18, $19, $20, $21,
	$22, $23, $24,
	now(), now()
)
RETURNING event_id
`

	e := params.Event
	var eventID int64
	if err := tx.QueryRow(ctx, insertEventQuery,
		e.EventUUID,
		e.Source, e.SourceEventID, e.SourceURL,
		e.Title, e.Description, e.EventType, nullableJSON(e.Tags), e.Language,
		e.StartsAt.UTC(), e.EndsAt, nullableJSON(e.Recurrence),
		e.VenueID, e.LocationName, e.Address, e.Latitude, e.Longitude,
		e.PriceMin, e.PriceMax, e.Currency, e.TicketURL,
		e.Confidence, e.Verified, e.ExpiresAt,
	).Scan(&eventID); err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateSignature
		}
		return 0, fmt.Errorf("insert event: %w", err)
	}

	const insertSignatureQuery = `
INSERT INTO events.dedupe_signatures (signature_hash, event_id, source, created_at)
VALUES ($1, $2, $3, now())
`

	if _, err := tx.Exec(ctx, insertSignatureQuery, params.SignatureHash, eventID, e.Source); err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateSignature
		}
		return 0, fmt.Errorf("insert dedupe signature for event %d: %w", eventID, err)
	}

	if len(params.RawPayload) > 0 {
		const insertSnapshotQuery = `
INSERT INTO events.event_snapshots (event_id, source, raw_payload, created_at)
VALUES ($1, $2, $3, now())
`
		if _, err := tx.Exec(ctx, insertSnapshotQuery, eventID, e.Source, params.RawPayload); err != nil {
			return 0, fmt.Errorf("insert snapshot for event %d: %w", eventID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit insert event tx: %w", err)
	}
	return eventID, nil
}

// UpdateEventParams carries one merge-into-existing-event transaction.
type UpdateEventParams struct {
	Event         *Event
	Source        string
	SignatureHash []byte
	RawPayload    json.RawMessage
	SnapshotKeep  int
}

// UpdateEvent rewrites the merged canonical fields of an existing event,
// records the incoming exact key (if new) and snapshot, and rotates old
// snapshots down to SnapshotKeep.
func (p *Pool) UpdateEvent(ctx context.Context, params UpdateEventParams) error {
	if params.Event == nil || params.Event.EventID <= 0 {
		return fmt.Errorf("event with id is required")
	}

	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return fmt.Errorf("begin update event tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const updateEventQuery = `
UPDATE events.events SET
	source_url = $2,
	title = $3,
	description = $4,
	event_type = $5,
	tags = $6,
	language = $7,
	starts_at = $8,
	ends_at = $9,
	recurrence = $10,
	venue_id = $11,
	location_name = $12,
	address = $13,
	latitude = $14,
	longitude = $15,
	price_min = $16,
	price_max = $17,
	currency = $18,
	ticket_url = $19,
	confidence = $20,
	verified = $21,
	expires_at = $22,
	updated_at = now()
WHERE event_id = $1
  AND deleted_at IS NULL
`

	e := params.Event
	tag, err := tx.Exec(ctx, updateEventQuery,
		e.EventID,
		e.SourceURL,
		e.Title, e.Description, e.EventType, nullableJSON(e.Tags), e.Language,
		e.StartsAt.UTC(), e.EndsAt, nullableJSON(e.Recurrence),
		e.VenueID, e.LocationName, e.Address, e.Latitude, e.Longitude,
		e.PriceMin, e.PriceMax, e.Currency, e.TicketURL,
		e.Confidence, e.Verified, e.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("update event %d: %w", e.EventID, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("update event %d: %w", e.EventID, ErrNoRows)
	}

	if len(params.SignatureHash) > 0 {
		const insertSignatureQuery = `
INSERT INTO events.dedupe_signatures (signature_hash, event_id, source, created_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (signature_hash) DO NOTHING
`
		if _, err := tx.Exec(ctx, insertSignatureQuery, params.SignatureHash, e.EventID, params.Source); err != nil {
			return fmt.Errorf("insert dedupe signature for event %d: %w", e.EventID, err)
		}
	}

	if len(params.RawPayload) > 0 {
		const insertSnapshotQuery = `
INSERT INTO events.event_snapshots (event_id, source, raw_payload, created_at)
VALUES ($1, $2, $3, now())
`
		if _, err := tx.Exec(ctx, insertSnapshotQuery, e.EventID, params.Source, params.RawPayload); err != nil {
			return fmt.Errorf("insert snapshot for event %d: %w", e.EventID, err)
		}
	}

	if params.SnapshotKeep > 0 {
		const rotateSnapshotsQuery = `
DELETE FROM events.event_snapshots
WHERE event_id = $1
  AND snapshot_id NOT IN (
	SELECT snapshot_id
	FROM events.event_snapshots
	WHERE event_id = $1
	ORDER BY created_at DESC, snapshot_id DESC
	LIMIT $2
)
`
		if _, err := tx.Exec(ctx, rotateSnapshotsQuery, e.EventID, params.SnapshotKeep); err != nil {
			return fmt.Errorf("rotate snapshots for event %d: %w", e.EventID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update event tx: %w", err)
	}
	return nil
}

// RecordSignature attaches an additional exact key to an existing event.
// Used when a fuzzy match carries no new content but its key should still
// resolve exactly next time.
func (p *Pool) RecordSignature(ctx context.Context, signatureHash []byte, eventID int64, source string) error {
	if len(signatureHash) == 0 {
		return fmt.Errorf("signature hash is required")
	}
	if eventID <= 0 {
		return fmt.Errorf("event id must be > 0")
	}

	const q = `
INSERT INTO events.dedupe_signatures (signature_hash, event_id, source, created_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (signature_hash) DO NOTHING
`

	if _, err := p.Exec(ctx, q, signatureHash, eventID, source); err != nil {
		return fmt.Errorf("record signature for event %d: %w", eventID, err)
	}
	return nil
}

// ListEventSnapshots returns the retained provenance history, newest first.
func (p *Pool) ListEventSnapshots(ctx context.Context, eventID int64) ([]EventSnapshot, error) {
	if eventID <= 0 {
		return nil, fmt.Errorf("event id must be > 0")
	}

	const q = `
SELECT snapshot_id, event_id, source, raw_payload, created_at
FROM events.event_snapshots
WHERE event_id = $1
ORDER BY created_at DESC, snapshot_id DESC
`

	rows, err := p.Query(ctx, q, eventID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots for event %d: %w", eventID, err)
	}
	defer rows.Close()

	snapshots := make([]EventSnapshot, 0, 4)
	for rows.Next() {
		var snap EventSnapshot
		if err := rows.Scan(&snap.SnapshotID, &snap.EventID, &snap.Source, &snap.RawPayload, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return snapshots, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var e Event
	if err := row.Scan(
		&e.EventID,
		&e.EventUUID,
		&e.Source,
		&e.SourceEventID,
		&e.SourceURL,
		&e.Title,
		&e.Description,
		&e.EventType,
		&e.Tags,
		&e.Language,
		&e.StartsAt,
		&e.EndsAt,
		&e.Recurrence,
		&e.VenueID,
		&e.LocationName,
		&e.Address,
		&e.Latitude,
		&e.Longitude,
		&e.PriceMin,
		&e.PriceMax,
		&e.Currency,
		&e.TicketURL,
		&e.Confidence,
		&e.Verified,
		&e.ExpiresAt,
		&e.DeletedAt,
		&e.CreatedAt,
		&e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

func scanEvents(rows *Rows, capacity int) ([]Event, error) {
	if capacity < 0 {
		capacity = 0
	}

	items := make([]Event, 0, capacity)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		items = append(items, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return items, nil
}

// nullableJSON keeps empty jsonb columns NULL rather than the empty string,
// which Postgres rejects as invalid json.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
