package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SearchFilters narrows both lexical and vector sub-searches. Nil pointer
// fields are not applied.
type SearchFilters struct {
	From         *time.Time
	To           *time.Time
	EventType    string
	Tag          string
	City         string
	Latitude     *float64
	Longitude    *float64
	RadiusMeters *float64
}

// LexicalHit is one full-text match with its raw ts_rank score.
type LexicalHit struct {
	EventID   int64
	EventUUID string
	Rank      float64
}

// VectorHit is one nearest-neighbour match with its cosine similarity.
type VectorHit struct {
	EventID    int64
	EventUUID  string
	Similarity float64
}

// Shared haversine filter over optional coordinates. Events without
// coordinates never match a geo filter.
const geoFilterClause = `
  AND (
	$7::double precision IS NULL
	OR (
		e.latitude IS NOT NULL AND e.longitude IS NOT NULL
		AND 6371000 * 2 * asin(sqrt(
			power(sin(radians(e.latitude - $7) / 2), 2)
			+ cos(radians($7)) * cos(radians(e.latitude))
			* power(sin(radians(e.longitude - $8) / 2), 2)
		)) <= $9
	)
  )`

// A city filter matches through the linked venue when the event has one,
// falling back to the free-form address text.
const searchFilterClauses = `
  AND ($2::timestamptz IS NULL OR e.starts_at >= $2)
  AND ($3::timestamptz IS NULL OR e.starts_at < $3)
  AND ($4 = '' OR e.event_type = $4)
  AND ($5 = '' OR e.tags @> jsonb_build_array($5::text))
  AND (
	$6 = ''
	OR EXISTS (
		SELECT 1
		FROM events.venues v
		WHERE v.venue_id = e.venue_id
		  AND lower(v.city) = lower($6)
	)
	OR e.address ILIKE '%' || $6 || '%'
  )` + geoFilterClause

// SearchLexical ranks live events against a websearch-syntax query using
// Postgres full text search over title and description.
func (p *Pool) SearchLexical(ctx context.Context, query string, filters SearchFilters, limit int) ([]LexicalHit, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT
	e.event_id,
	e.event_uuid::text,
	ts_rank(
		to_tsvector('simple', e.title || ' ' || coalesce(e.description, '')),
		websearch_to_tsquery('simple', $1)
	) AS rank
FROM events.events e
WHERE e.deleted_at IS NULL
  AND to_tsvector('simple', e.title || ' ' || coalesce(e.description, ''))
	@@ websearch_to_tsquery('simple', $1)` + searchFilterClauses + `
ORDER BY rank DESC, e.event_id ASC
LIMIT $10
`

	rows, err := p.Query(ctx, q,
		trimmed,
		filters.From, filters.To,
		filters.EventType, filters.Tag, filters.City,
		filters.Latitude, filters.Longitude, filters.RadiusMeters,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	hits := make([]LexicalHit, 0, limit)
	for rows.Next() {
		var hit LexicalHit
		if err := rows.Scan(&hit.EventID, &hit.EventUUID, &hit.Rank); err != nil {
			return nil, fmt.Errorf("scan lexical hit: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lexical hits: %w", err)
	}
	return hits, nil
}

// SearchVector ranks live, embedded events by cosine similarity against the
// query embedding. Events without an embedding for the model are skipped.
func (p *Pool) SearchVector(ctx context.Context, queryEmbedding []float32, modelName string, filters SearchFilters, limit int) ([]VectorHit, error) {
	if len(queryEmbedding) == 0 {
		return nil, fmt.Errorf("query embedding is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT
	e.event_id,
	e.event_uuid::text,
	1 - (emb.embedding <=> $1::vector) AS similarity
FROM events.event_embeddings emb
JOIN events.events e
	ON e.event_id = emb.event_id
WHERE e.deleted_at IS NULL
  AND emb.model_name = $10` + searchFilterClauses + `
ORDER BY emb.embedding <=> $1::vector ASC, e.event_id ASC
LIMIT $11
`

	rows, err := p.Query(ctx, q,
		VectorLiteral(queryEmbedding),
		filters.From, filters.To,
		filters.EventType, filters.Tag, filters.City,
		filters.Latitude, filters.Longitude, filters.RadiusMeters,
		modelName,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	hits := make([]VectorHit, 0, limit)
	for rows.Next() {
		var hit VectorHit
		if err := rows.Scan(&hit.EventID, &hit.EventUUID, &hit.Similarity); err != nil {
			return nil, fmt.Errorf("scan vector hit: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vector hits: %w", err)
	}
	return hits, nil
}

// GetEventByUUID loads one event by its stable public identifier.
func (p *Pool) GetEventByUUID(ctx context.Context, eventUUID string) (*Event, error) {
	trimmed := strings.TrimSpace(eventUUID)
	if trimmed == "" {
		return nil, fmt.Errorf("event UUID is required")
	}

	const q = `
SELECT` + eventSelectColumns + `
FROM events.events e
WHERE e.event_uuid = $1::uuid
  AND e.deleted_at IS NULL
`

	event, err := scanEvent(p.QueryRow(ctx, q, trimmed))
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("query event %s: %w", trimmed, err)
	}
	return event, nil
}

// GetEventsByIDs loads full event rows for the merged search result set.
func (p *Pool) GetEventsByIDs(ctx context.Context, eventIDs []int64) ([]Event, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, 0, len(eventIDs))
	args := make([]any, 0, len(eventIDs))
	for i, id := range eventIDs {
		placeholders = append(placeholders, "$"+strconv.Itoa(i+1))
		args = append(args, id)
	}

	q := `
SELECT` + eventSelectColumns + `
FROM events.events e
WHERE e.deleted_at IS NULL
  AND e.event_id IN (` + strings.Join(placeholders, ", ") + `)
`

	rows, err := p.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events by ids: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows, len(eventIDs))
}

// SweepExpired soft-deletes non-recurring events whose lifetime has passed
// and purges their signatures, snapshots and embeddings so the exact keys
// become reusable. Returns the number of newly swept events.
func (p *Pool) SweepExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin sweep tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const sweepQuery = `
UPDATE events.events
SET deleted_at = now(), updated_at = now()
WHERE deleted_at IS NULL
  AND recurrence IS NULL
  AND coalesce(expires_at, ends_at, starts_at) < $1
`

	tag, err := tx.Exec(ctx, sweepQuery, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep expired events: %w", err)
	}

	purgeQueries := []string{
		`DELETE FROM events.dedupe_signatures s USING events.events e
WHERE e.event_id = s.event_id AND e.deleted_at IS NOT NULL`,
		`DELETE FROM events.event_embeddings emb USING events.events e
WHERE e.event_id = emb.event_id AND e.deleted_at IS NOT NULL`,
		`DELETE FROM events.event_snapshots snap USING events.events e
WHERE e.event_id = snap.event_id AND e.deleted_at IS NOT NULL`,
	}
	for _, purge := range purgeQueries {
		if _, err := tx.Exec(ctx, purge); err != nil {
			return 0, fmt.Errorf("purge swept event rows: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit sweep tx: %w", err)
	}
	return tag.RowsAffected(), nil
}

// VectorLiteral renders a pgvector input literal, e.g. [0.1,0.2,0.3].
func VectorLiteral(values []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
