package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/citypulse/internal/batchschema"
	"horse.fit/citypulse/internal/db"
	"horse.fit/citypulse/internal/dedup"
	"horse.fit/citypulse/internal/globaltime"
	"horse.fit/citypulse/internal/normalize"
	"horse.fit/citypulse/internal/validate"
)

type fakeResolver struct {
	mu       sync.Mutex
	seen     []normalize.Draft
	decision dedup.Decision
}

func (f *fakeResolver) Resolve(_ context.Context, draft normalize.Draft) (dedup.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, draft)
	decision := f.decision
	if decision == "" {
		decision = dedup.DecisionCreated
	}
	return dedup.Outcome{Decision: decision, EventID: int64(len(f.seen)), EventUUID: "uuid"}, nil
}

type fakeRunStore struct {
	mu       sync.Mutex
	started  []string
	finished []string
	counts   db.IngestRunCounts
}

func (f *fakeRunStore) StartIngestRun(_ context.Context, source string) (*db.IngestRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, source)
	return &db.IngestRun{RunID: int64(len(f.started)), RunUUID: "run-uuid", Source: source}, nil
}

func (f *fakeRunStore) FinishIngestRun(_ context.Context, _ int64, status string, counts db.IngestRunCounts, _ *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, status)
	f.counts = counts
	return nil
}

func newTestPipeline(resolver Resolver, runs RunStore) *Service {
	normalizer := normalize.New(normalize.Config{
		DefaultCurrency: "EUR",
		DefaultTimezone: "Europe/Amsterdam",
	})
	return NewService(normalizer, resolver, runs, nil, Config{
		Workers:  2,
		Validate: validate.DefaultConfig(),
	}, zerolog.Nop())
}

func futureStart() string {
	return globaltime.UTC().Add(30 * 24 * time.Hour).Format(time.RFC3339)
}

func TestProcessBatchTalliesDecisions(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{}
	runs := &fakeRunStore{}
	svc := newTestPipeline(resolver, runs)

	start := futureStart()
	batch := &batchschema.Batch{
		PayloadVersion: "v1",
		Source:         "iamsterdam",
		Records: []normalize.RawRecord{
			{"title": "Jazz at Bird", "start": start},
			{"title": "Canal Market", "start": start},
			{"start": start}, // missing title
		},
	}

	summary, err := svc.ProcessBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	if summary.Received != 3 {
		t.Fatalf("Received = %d, want 3", summary.Received)
	}
	if summary.Created != 2 {
		t.Fatalf("Created = %d, want 2", summary.Created)
	}
	if summary.Errored != 1 {
		t.Fatalf("Errored = %d, want 1", summary.Errored)
	}
	if len(summary.Issues) != 1 || summary.Issues[0].Stage != "normalize" {
		t.Fatalf("issues = %+v", summary.Issues)
	}
	if summary.RunUUID != "run-uuid" {
		t.Fatalf("RunUUID = %q", summary.RunUUID)
	}

	if len(runs.finished) != 1 || runs.finished[0] != "succeeded" {
		t.Fatalf("run finish = %v", runs.finished)
	}
	if runs.counts.Created != 2 || runs.counts.Errored != 1 {
		t.Fatalf("ledger counts = %+v", runs.counts)
	}
}

func TestProcessBatchDropsInvalidDrafts(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{}
	svc := newTestPipeline(resolver, nil)

	// Started two years back; well past the stale horizon.
	staleStart := globaltime.UTC().Add(-2 * 365 * 24 * time.Hour).Format(time.RFC3339)
	batch := &batchschema.Batch{
		PayloadVersion: "v1",
		Source:         "generic",
		Records: []normalize.RawRecord{
			{"title": "Old news", "start": staleStart},
		},
	}

	summary, err := svc.ProcessBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if summary.Errored != 1 {
		t.Fatalf("Errored = %d, want 1", summary.Errored)
	}
	if len(summary.Issues) != 1 || summary.Issues[0].Stage != "validate" {
		t.Fatalf("issues = %+v", summary.Issues)
	}
	if len(resolver.seen) != 0 {
		t.Fatalf("invalid draft reached the resolver: %+v", resolver.seen)
	}
}

func TestProcessBatchEmptyBatch(t *testing.T) {
	t.Parallel()

	svc := newTestPipeline(&fakeResolver{}, &fakeRunStore{})
	summary, err := svc.ProcessBatch(context.Background(), &batchschema.Batch{
		PayloadVersion: "v1",
		Source:         "generic",
	})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if summary.Received != 0 || summary.Created != 0 || summary.Errored != 0 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestProcessBatchConcurrencyIsBounded(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{decision: dedup.DecisionDiscarded}
	svc := newTestPipeline(resolver, nil)

	start := futureStart()
	records := make([]normalize.RawRecord, 0, 50)
	for i := 0; i < 50; i++ {
		records = append(records, normalize.RawRecord{"title": "Repeat show", "start": start})
	}

	summary, err := svc.ProcessBatch(context.Background(), &batchschema.Batch{
		PayloadVersion: "v1",
		Source:         "generic",
		Records:        records,
	})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if summary.Discarded != 50 {
		t.Fatalf("Discarded = %d, want 50", summary.Discarded)
	}
}
