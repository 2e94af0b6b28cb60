// Package enrich runs the post-dedup augmentation passes: geocoding missing
// coordinates, deriving tags from text, and computing embeddings for the
// vector index. Every pass is optional and failure-tolerant; an event that
// cannot be enriched stays searchable through the lexical path.
package enrich

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/citypulse/internal/db"
	"horse.fit/citypulse/internal/globaltime"
)

// Store is the persistence surface the enricher needs.
type Store interface {
	ListEventsPendingGeocode(ctx context.Context, limit int) ([]db.Event, error)
	ListEventsPendingEmbedding(ctx context.Context, modelName, modelVersion string, limit int) ([]db.Event, error)
	UpdateEventCoordinates(ctx context.Context, eventID int64, latitude, longitude float64) error
	UpdateEventTags(ctx context.Context, eventID int64, tags []string) error
	UpsertEventEmbedding(ctx context.Context, params db.UpsertEmbeddingParams) error
}

// Embedder turns texts into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Geocoder resolves a free-form location query to coordinates. found is
// false when the service answered but knows no such place.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (latitude, longitude float64, found bool, err error)
}

// Config tunes the enrichment passes.
type Config struct {
	ModelName    string
	ModelVersion string
	// ServiceEndpoint is recorded alongside stored embeddings for
	// provenance.
	ServiceEndpoint string
	BatchSize       int
	MaxAttempts     int
	Backoff         time.Duration
}

func DefaultConfig() Config {
	return Config{
		ModelName:    "all-MiniLM-L6-v2",
		ModelVersion: "v1",
		BatchSize:    32,
		MaxAttempts:  3,
		Backoff:      500 * time.Millisecond,
	}
}

// Result tallies one enrichment sweep.
type Result struct {
	Geocoded int
	Tagged   int
	Embedded int
	Failed   int
}

// Service runs the enrichment passes against the store.
type Service struct {
	store    Store
	embedder Embedder
	geocoder Geocoder
	cfg      Config
	logger   zerolog.Logger
}

// NewService builds an enricher. embedder and geocoder may be nil, which
// disables the corresponding pass.
func NewService(store Store, embedder Embedder, geocoder Geocoder, cfg Config, logger zerolog.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultConfig().Backoff
	}
	if strings.TrimSpace(cfg.ModelName) == "" {
		cfg.ModelName = DefaultConfig().ModelName
	}
	if strings.TrimSpace(cfg.ModelVersion) == "" {
		cfg.ModelVersion = DefaultConfig().ModelVersion
	}
	return &Service{
		store:    store,
		embedder: embedder,
		geocoder: geocoder,
		cfg:      cfg,
		logger:   logger.With().Str("component", "enrich").Logger(),
	}
}

// EnrichPending runs geocoding and embedding over at most limit events each
// and returns the combined tally. Per-event failures are counted and logged,
// not fatal; only a store failure aborts the sweep.
func (s *Service) EnrichPending(ctx context.Context, limit int) (Result, error) {
	if limit <= 0 {
		return Result{}, fmt.Errorf("limit must be > 0")
	}

	var result Result
	if s.geocoder != nil {
		if err := s.geocodePass(ctx, limit, &result); err != nil {
			return result, err
		}
	}
	if s.embedder != nil {
		if err := s.embedPass(ctx, limit, &result); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (s *Service) geocodePass(ctx context.Context, limit int, result *Result) error {
	events, err := s.store.ListEventsPendingGeocode(ctx, limit)
	if err != nil {
		return fmt.Errorf("list events pending geocode: %w", err)
	}

	for i := range events {
		event := &events[i]
		query := geocodeQuery(event)
		if query == "" {
			continue
		}

		var lat, lon float64
		var found bool
		err := s.withRetry(ctx, func(ctx context.Context) error {
			var geocodeErr error
			lat, lon, found, geocodeErr = s.geocoder.Geocode(ctx, query)
			return geocodeErr
		})
		if err != nil {
			result.Failed++
			s.logger.Warn().Err(err).Int64("event_id", event.EventID).Str("query", query).Msg("geocode failed")
			continue
		}
		if !found {
			continue
		}

		if err := s.store.UpdateEventCoordinates(ctx, event.EventID, lat, lon); err != nil {
			return err
		}
		result.Geocoded++
	}
	return nil
}

func (s *Service) embedPass(ctx context.Context, limit int, result *Result) error {
	processed := 0
	for processed < limit {
		batchSize := s.cfg.BatchSize
		if remaining := limit - processed; remaining < batchSize {
			batchSize = remaining
		}

		events, err := s.store.ListEventsPendingEmbedding(ctx, s.cfg.ModelName, s.cfg.ModelVersion, batchSize)
		if err != nil {
			return fmt.Errorf("list events pending embedding: %w", err)
		}
		if len(events) == 0 {
			return nil
		}

		// Tags are derived first so they feed into the embedded text.
		for i := range events {
			if err := s.deriveAndStoreTags(ctx, &events[i], result); err != nil {
				return err
			}
		}

		texts := make([]string, 0, len(events))
		for i := range events {
			texts = append(texts, embeddingInput(&events[i]))
		}

		var vectors [][]float32
		err = s.withRetry(ctx, func(ctx context.Context) error {
			var embedErr error
			vectors, embedErr = s.embedder.Embed(ctx, texts)
			return embedErr
		})
		if err != nil {
			result.Failed += len(events)
			return fmt.Errorf("embed batch of %d events: %w", len(events), err)
		}
		if len(vectors) != len(events) {
			return fmt.Errorf("embedding response count mismatch: requested=%d returned=%d", len(events), len(vectors))
		}

		for i := range events {
			event := &events[i]
			processed++

			if err := s.store.UpsertEventEmbedding(ctx, db.UpsertEmbeddingParams{
				EventID:         event.EventID,
				ModelName:       s.cfg.ModelName,
				ModelVersion:    s.cfg.ModelVersion,
				Embedding:       vectors[i],
				EmbeddedAt:      globaltime.UTC(),
				ServiceEndpoint: s.cfg.ServiceEndpoint,
			}); err != nil {
				return err
			}
			result.Embedded++
		}
	}
	return nil
}

func (s *Service) deriveAndStoreTags(ctx context.Context, event *db.Event, result *Result) error {
	derived := DeriveTags(event.Title, event.Description, event.EventType)
	if len(derived) == 0 {
		return nil
	}

	existing := event.TagList()
	merged := unionSorted(existing, derived)
	if equalStrings(existing, merged) {
		return nil
	}

	if err := s.store.UpdateEventTags(ctx, event.EventID, merged); err != nil {
		return err
	}
	event.SetTagList(merged)
	result.Tagged++
	return nil
}

// withRetry runs fn up to MaxAttempts times with doubling backoff.
func (s *Service) withRetry(ctx context.Context, fn func(context.Context) error) error {
	backoff := s.cfg.Backoff
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == s.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}

func geocodeQuery(event *db.Event) string {
	parts := make([]string, 0, 2)
	if event.LocationName != "" {
		parts = append(parts, event.LocationName)
	}
	if event.Address != "" {
		parts = append(parts, event.Address)
	}
	return strings.Join(parts, ", ")
}

func embeddingInput(event *db.Event) string {
	parts := make([]string, 0, 3)
	if title := strings.TrimSpace(event.Title); title != "" {
		parts = append(parts, title)
	}
	if body := strings.TrimSpace(event.Description); body != "" {
		parts = append(parts, body)
	}
	if tags := event.TagList(); len(tags) > 0 {
		parts = append(parts, strings.Join(tags, " "))
	}
	return strings.Join(parts, "\n\n")
}

func unionSorted(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, set := range [][]string{a, b} {
		for _, v := range set {
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
