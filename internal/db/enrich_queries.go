package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ListEventsPendingGeocode returns live events that carry an address or
// location name but no coordinates yet.
func (p *Pool) ListEventsPendingGeocode(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT` + eventSelectColumns + `
FROM events.events e
WHERE e.deleted_at IS NULL
  AND e.latitude IS NULL
  AND e.longitude IS NULL
  AND (e.address <> '' OR e.location_name <> '')
ORDER BY e.event_id ASC
LIMIT $1
`

	rows, err := p.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query events pending geocode: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows, limit)
}

// ListEventsPendingEmbedding returns live events with no stored embedding
// for the given model.
func (p *Pool) ListEventsPendingEmbedding(ctx context.Context, modelName, modelVersion string, limit int) ([]Event, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT` + eventSelectColumns + `
FROM events.events e
WHERE e.deleted_at IS NULL
  AND NOT EXISTS (
	SELECT 1
	FROM events.event_embeddings emb
	WHERE emb.event_id = e.event_id
	  AND emb.model_name = $1
	  AND emb.model_version = $2
)
ORDER BY e.event_id ASC
LIMIT $3
`

	rows, err := p.Query(ctx, q, modelName, modelVersion, limit)
	if err != nil {
		return nil, fmt.Errorf("query events pending embedding: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows, limit)
}

// UpdateEventCoordinates stores a geocoding result. Already-set coordinates
// are never overwritten; geocoding is a fallback, not a source of truth.
func (p *Pool) UpdateEventCoordinates(ctx context.Context, eventID int64, latitude, longitude float64) error {
	if eventID <= 0 {
		return fmt.Errorf("event id must be > 0")
	}

	const q = `
UPDATE events.events
SET latitude = $2, longitude = $3, updated_at = now()
WHERE event_id = $1
  AND deleted_at IS NULL
  AND latitude IS NULL
  AND longitude IS NULL
`

	if _, err := p.Exec(ctx, q, eventID, latitude, longitude); err != nil {
		return fmt.Errorf("update coordinates for event %d: %w", eventID, err)
	}
	return nil
}

// UpdateEventTags replaces the derived tag set of one event.
func (p *Pool) UpdateEventTags(ctx context.Context, eventID int64, tags []string) error {
	if eventID <= 0 {
		return fmt.Errorf("event id must be > 0")
	}

	encoded, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode tags for event %d: %w", eventID, err)
	}

	const q = `
UPDATE events.events
SET tags = $2::jsonb, updated_at = now()
WHERE event_id = $1
  AND deleted_at IS NULL
`

	if _, err := p.Exec(ctx, q, eventID, encoded); err != nil {
		return fmt.Errorf("update tags for event %d: %w", eventID, err)
	}
	return nil
}

// UpsertEmbeddingParams describes one embedding write.
type UpsertEmbeddingParams struct {
	EventID         int64
	ModelName       string
	ModelVersion    string
	Embedding       []float32
	ServiceEndpoint string
	EmbeddedAt      time.Time
}

// UpsertEventEmbedding stores or refreshes the embedding of one event for
// one model and version.
func (p *Pool) UpsertEventEmbedding(ctx context.Context, params UpsertEmbeddingParams) error {
	if params.EventID <= 0 {
		return fmt.Errorf("event id must be > 0")
	}
	if len(params.Embedding) == 0 {
		return fmt.Errorf("embedding is required")
	}

	const q = `
INSERT INTO events.event_embeddings (
	event_id, model_name, model_version, embedding, embedded_at, service_endpoint
) VALUES (
	$1, $2, $3, $4::vector, $5, $6
)
ON CONFLICT (event_id, model_name, model_version) DO UPDATE SET
	embedding = EXCLUDED.embedding,
	embedded_at = EXCLUDED.embedded_at,
	service_endpoint = EXCLUDED.service_endpoint
`

	embeddedAt := params.EmbeddedAt
	if embeddedAt.IsZero() {
		embeddedAt = time.Now().UTC()
	}

	if _, err := p.Exec(ctx, q,
		params.EventID,
		params.ModelName,
		params.ModelVersion,
		VectorLiteral(params.Embedding),
		embeddedAt.UTC(),
		params.ServiceEndpoint,
	); err != nil {
		return fmt.Errorf("upsert embedding for event %d: %w", params.EventID, err)
	}
	return nil
}
