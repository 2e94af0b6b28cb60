package db

import (
	"context"
	"fmt"
	"strings"
)

// IngestRunCounts is the per-batch outcome tally written back when a run
// finishes.
type IngestRunCounts struct {
	Created   int
	Updated   int
	Discarded int
	Errored   int
}

// StartIngestRun opens a ledger row for one batch and returns its ids.
func (p *Pool) StartIngestRun(ctx context.Context, source string) (*IngestRun, error) {
	trimmed := strings.TrimSpace(source)
	if trimmed == "" {
		return nil, fmt.Errorf("source is required")
	}

	const q = `
INSERT INTO events.ingest_runs (source, started_at, status)
VALUES ($1, now(), 'running')
RETURNING run_id, run_uuid::text, started_at
`

	run := IngestRun{Source: trimmed, Status: "running"}
	if err := p.QueryRow(ctx, q, trimmed).Scan(&run.RunID, &run.RunUUID, &run.StartedAt); err != nil {
		return nil, fmt.Errorf("start ingest run: %w", err)
	}
	return &run, nil
}

// FinishIngestRun closes a ledger row with its final status and counts.
func (p *Pool) FinishIngestRun(ctx context.Context, runID int64, status string, counts IngestRunCounts, errorMessage *string) error {
	if runID <= 0 {
		return fmt.Errorf("run id must be > 0")
	}

	const q = `
UPDATE events.ingest_runs SET
	finished_at = now(),
	status = $2,
	created = $3,
	updated = $4,
	discarded = $5,
	errored = $6,
	error_message = $7
WHERE run_id = $1
`

	tag, err := p.Exec(ctx, q, runID, status, counts.Created, counts.Updated, counts.Discarded, counts.Errored, errorMessage)
	if err != nil {
		return fmt.Errorf("finish ingest run %d: %w", runID, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("finish ingest run %d: %w", runID, ErrNoRows)
	}
	return nil
}

// ListRecentIngestRuns returns the newest ledger rows, newest first.
func (p *Pool) ListRecentIngestRuns(ctx context.Context, limit int) ([]IngestRun, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT
	run_id,
	run_uuid::text,
	source,
	started_at,
	finished_at,
	status,
	created,
	updated,
	discarded,
	errored,
	error_message
FROM events.ingest_runs
ORDER BY started_at DESC, run_id DESC
LIMIT $1
`

	rows, err := p.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query ingest runs: %w", err)
	}
	defer rows.Close()

	runs := make([]IngestRun, 0, limit)
	for rows.Next() {
		var run IngestRun
		if err := rows.Scan(
			&run.RunID,
			&run.RunUUID,
			&run.Source,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Status,
			&run.Created,
			&run.Updated,
			&run.Discarded,
			&run.Errored,
			&run.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("scan ingest run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ingest run rows: %w", err)
	}
	return runs, nil
}
