// Package pipeline drives a batch of raw records through normalization,
// validation, and dedup resolution, keeping the per-run ledger and metrics.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"horse.fit/citypulse/internal/batchschema"
	"horse.fit/citypulse/internal/db"
	"horse.fit/citypulse/internal/dedup"
	"horse.fit/citypulse/internal/globaltime"
	"horse.fit/citypulse/internal/metrics"
	"horse.fit/citypulse/internal/normalize"
	"horse.fit/citypulse/internal/validate"
)

// Resolver is the dedup surface the pipeline drives.
type Resolver interface {
	Resolve(ctx context.Context, draft normalize.Draft) (dedup.Outcome, error)
}

// RunStore keeps the per-batch ledger.
type RunStore interface {
	StartIngestRun(ctx context.Context, source string) (*db.IngestRun, error)
	FinishIngestRun(ctx context.Context, runID int64, status string, counts db.IngestRunCounts, errorMessage *string) error
}

// Config tunes batch processing.
type Config struct {
	Workers  int
	Validate validate.Config
}

// RecordIssue describes one dropped record by its position in the batch.
type RecordIssue struct {
	Index  int    `json:"index"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// Summary is the outcome of one batch.
type Summary struct {
	RunUUID   string        `json:"run_uuid,omitempty"`
	Source    string        `json:"source"`
	Received  int           `json:"received"`
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Discarded int           `json:"discarded"`
	Errored   int           `json:"errored"`
	Issues    []RecordIssue `json:"issues,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Service is the batch processor.
type Service struct {
	normalizer *normalize.Normalizer
	resolver   Resolver
	runs       RunStore
	metrics    *metrics.Metrics
	cfg        Config
	logger     zerolog.Logger
}

// NewService wires the pipeline. runs and m may be nil; the ledger and
// metrics are then skipped.
func NewService(normalizer *normalize.Normalizer, resolver Resolver, runs RunStore, m *metrics.Metrics, cfg Config, logger zerolog.Logger) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Service{
		normalizer: normalizer,
		resolver:   resolver,
		runs:       runs,
		metrics:    m,
		cfg:        cfg,
		logger:     logger.With().Str("component", "pipeline").Logger(),
	}
}

// ProcessBatch runs every record of the batch through the pipeline with
// bounded concurrency. Record-level failures are tallied, never fatal; the
// batch fails only on ledger errors or context cancellation.
func (s *Service) ProcessBatch(ctx context.Context, batch *batchschema.Batch) (Summary, error) {
	if batch == nil {
		return Summary{}, fmt.Errorf("batch is required")
	}
	source := strings.TrimSpace(strings.ToLower(batch.Source))
	if source == "" {
		return Summary{}, fmt.Errorf("batch source is required")
	}

	started := time.Now()
	summary := Summary{Source: source, Received: len(batch.Records)}

	var run *db.IngestRun
	if s.runs != nil {
		var err error
		run, err = s.runs.StartIngestRun(ctx, source)
		if err != nil {
			return Summary{}, fmt.Errorf("start ingest run: %w", err)
		}
		summary.RunUUID = run.RunUUID
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.Workers)

	for index, record := range batch.Records {
		index, record := index, record
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			outcome, issue := s.processRecord(groupCtx, source, record)

			mu.Lock()
			defer mu.Unlock()
			if issue != nil {
				issue.Index = index
				summary.Errored++
				summary.Issues = append(summary.Issues, *issue)
				if s.metrics != nil {
					s.metrics.RecordErrors.WithLabelValues(source, issue.Stage).Inc()
				}
				return nil
			}
			switch outcome.Decision {
			case dedup.DecisionCreated:
				summary.Created++
			case dedup.DecisionUpdated:
				summary.Updated++
			case dedup.DecisionDiscarded:
				summary.Discarded++
			}
			if s.metrics != nil {
				s.metrics.RecordsProcessed.WithLabelValues(source, string(outcome.Decision)).Inc()
			}
			return nil
		})
	}

	groupErr := group.Wait()
	summary.Elapsed = time.Since(started)

	if s.metrics != nil {
		s.metrics.BatchDuration.WithLabelValues(source).Observe(summary.Elapsed.Seconds())
	}

	if run != nil {
		status := "succeeded"
		var message *string
		if groupErr != nil {
			status = "failed"
			text := groupErr.Error()
			message = &text
		}
		counts := db.IngestRunCounts{
			Created:   summary.Created,
			Updated:   summary.Updated,
			Discarded: summary.Discarded,
			Errored:   summary.Errored,
		}
		if err := s.runs.FinishIngestRun(ctx, run.RunID, status, counts, message); err != nil {
			s.logger.Error().Err(err).Int64("run_id", run.RunID).Msg("finish ingest run")
		}
	}

	if groupErr != nil {
		return summary, fmt.Errorf("process batch from %s: %w", source, groupErr)
	}

	s.logger.Info().
		Str("source", source).
		Int("received", summary.Received).
		Int("created", summary.Created).
		Int("updated", summary.Updated).
		Int("discarded", summary.Discarded).
		Int("errored", summary.Errored).
		Dur("elapsed", summary.Elapsed).
		Msg("batch processed")
	return summary, nil
}

// processRecord runs one record through normalize, validate, and resolve.
func (s *Service) processRecord(ctx context.Context, source string, record normalize.RawRecord) (dedup.Outcome, *RecordIssue) {
	draft, err := s.normalizer.Normalize(source, record)
	if err != nil {
		return dedup.Outcome{}, &RecordIssue{Stage: "normalize", Reason: err.Error()}
	}

	if violations := validate.Check(draft, globaltime.UTC(), s.cfg.Validate); len(violations) > 0 {
		reasons := make([]string, 0, len(violations))
		for _, v := range violations {
			reasons = append(reasons, v.String())
		}
		return dedup.Outcome{}, &RecordIssue{Stage: "validate", Reason: strings.Join(reasons, "; ")}
	}

	outcome, err := s.resolver.Resolve(ctx, draft)
	if err != nil {
		return dedup.Outcome{}, &RecordIssue{Stage: "resolve", Reason: err.Error()}
	}
	return outcome, nil
}
