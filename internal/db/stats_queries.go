package db

import (
	"context"
	"fmt"
	"time"
)

// StoreStats is an operational snapshot of the event store.
type StoreStats struct {
	TotalEvents    int64      `json:"total_events"`
	UpcomingEvents int64      `json:"upcoming_events"`
	DeletedEvents  int64      `json:"deleted_events"`
	Venues         int64      `json:"venues"`
	Signatures     int64      `json:"signatures"`
	EmbeddedEvents int64      `json:"embedded_events"`
	LastIngestAt   *time.Time `json:"last_ingest_at,omitempty"`
}

// GetStoreStats collects row counts and the last ingest timestamp.
func (p *Pool) GetStoreStats(ctx context.Context, now time.Time) (*StoreStats, error) {
	const q = `
SELECT
	(SELECT count(*) FROM events.events WHERE deleted_at IS NULL),
	(SELECT count(*) FROM events.events WHERE deleted_at IS NULL AND starts_at >= $1),
	(SELECT count(*) FROM events.events WHERE deleted_at IS NOT NULL),
	(SELECT count(*) FROM events.venues WHERE active),
	(SELECT count(*) FROM events.dedupe_signatures),
	(SELECT count(DISTINCT event_id) FROM events.event_embeddings),
	(SELECT max(started_at) FROM events.ingest_runs)
`

	var stats StoreStats
	if err := p.QueryRow(ctx, q, now.UTC()).Scan(
		&stats.TotalEvents,
		&stats.UpcomingEvents,
		&stats.DeletedEvents,
		&stats.Venues,
		&stats.Signatures,
		&stats.EmbeddedEvents,
		&stats.LastIngestAt,
	); err != nil {
		return nil, fmt.Errorf("query store stats: %w", err)
	}
	return &stats, nil
}
