// Package search implements hybrid retrieval over the event store: a
// lexical full-text sub-search and a vector sub-search run concurrently,
// their scores are normalized and merged by configured weights, and the
// engine degrades to lexical-only when the vector path is unavailable.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"horse.fit/citypulse/internal/db"
)

// Store is the persistence surface the engine needs.
type Store interface {
	SearchLexical(ctx context.Context, query string, filters db.SearchFilters, limit int) ([]db.LexicalHit, error)
	SearchVector(ctx context.Context, queryEmbedding []float32, modelName string, filters db.SearchFilters, limit int) ([]db.VectorHit, error)
	GetEventsByIDs(ctx context.Context, eventIDs []int64) ([]db.Event, error)
}

// Embedder turns the query text into a vector for the vector sub-search.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config tunes the merge.
type Config struct {
	LexicalWeight float64
	VectorWeight  float64
	LexicalK      int
	VectorK       int
	SubTimeout    time.Duration
	ModelName     string
}

func DefaultConfig() Config {
	return Config{
		LexicalWeight: 0.5,
		VectorWeight:  0.5,
		LexicalK:      50,
		VectorK:       50,
		SubTimeout:    2 * time.Second,
		ModelName:     "all-MiniLM-L6-v2",
	}
}

// Filters narrows a search. Price filtering happens after the merge because
// price is not part of either index.
type Filters struct {
	From         *time.Time
	To           *time.Time
	EventType    string
	Tag          string
	City         string
	Latitude     *float64
	Longitude    *float64
	RadiusMeters *float64
	MaxPrice     *float64
	FreeOnly     bool
	Limit        int
}

// RankedEvent is one merged hit with its component scores.
type RankedEvent struct {
	Event        db.Event `json:"event"`
	Score        float64  `json:"score"`
	LexicalScore float64  `json:"lexical_score"`
	VectorScore  float64  `json:"vector_score"`
}

// Result is a merged, ranked result set. Degraded is set when one of the
// sub-searches could not contribute.
type Result struct {
	Events   []RankedEvent `json:"events"`
	Degraded bool          `json:"degraded"`
}

// Engine merges the two sub-searches.
type Engine struct {
	store    Store
	embedder Embedder
	cfg      Config
	logger   zerolog.Logger
}

// NewEngine builds a search engine. embedder may be nil, which makes every
// search lexical-only and degraded.
func NewEngine(store Store, embedder Embedder, cfg Config, logger zerolog.Logger) *Engine {
	if cfg.LexicalWeight < 0 {
		cfg.LexicalWeight = 0
	}
	if cfg.VectorWeight < 0 {
		cfg.VectorWeight = 0
	}
	if cfg.LexicalWeight == 0 && cfg.VectorWeight == 0 {
		cfg.LexicalWeight = DefaultConfig().LexicalWeight
		cfg.VectorWeight = DefaultConfig().VectorWeight
	}
	if cfg.LexicalK <= 0 {
		cfg.LexicalK = DefaultConfig().LexicalK
	}
	if cfg.VectorK <= 0 {
		cfg.VectorK = DefaultConfig().VectorK
	}
	if cfg.SubTimeout <= 0 {
		cfg.SubTimeout = DefaultConfig().SubTimeout
	}
	if strings.TrimSpace(cfg.ModelName) == "" {
		cfg.ModelName = DefaultConfig().ModelName
	}
	return &Engine{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger.With().Str("component", "search").Logger(),
	}
}

// Search runs both sub-searches concurrently and merges them. It fails only
// when neither sub-search could produce results; a single-sided failure
// yields a degraded result.
func (e *Engine) Search(ctx context.Context, query string, filters Filters) (Result, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return Result{}, fmt.Errorf("query is required")
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}

	dbFilters := db.SearchFilters{
		From:         filters.From,
		To:           filters.To,
		EventType:    filters.EventType,
		Tag:          filters.Tag,
		City:         filters.City,
		Latitude:     filters.Latitude,
		Longitude:    filters.Longitude,
		RadiusMeters: filters.RadiusMeters,
	}

	var (
		lexicalHits []db.LexicalHit
		vectorHits  []db.VectorHit
		lexicalErr  error
		vectorErr   error
	)

	// Sub-search failures are collected, not propagated through the group;
	// one healthy side is enough to answer.
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		subCtx, cancel := context.WithTimeout(groupCtx, e.cfg.SubTimeout)
		defer cancel()
		lexicalHits, lexicalErr = e.store.SearchLexical(subCtx, trimmed, dbFilters, e.cfg.LexicalK)
		return nil
	})

	group.Go(func() error {
		if e.embedder == nil {
			vectorErr = fmt.Errorf("no embedder configured")
			return nil
		}
		subCtx, cancel := context.WithTimeout(groupCtx, e.cfg.SubTimeout)
		defer cancel()

		vectors, err := e.embedder.Embed(subCtx, []string{trimmed})
		if err != nil {
			vectorErr = fmt.Errorf("embed query: %w", err)
			return nil
		}
		if len(vectors) != 1 {
			vectorErr = fmt.Errorf("embed query: expected 1 vector, got %d", len(vectors))
			return nil
		}
		vectorHits, vectorErr = e.store.SearchVector(subCtx, vectors[0], e.cfg.ModelName, dbFilters, e.cfg.VectorK)
		return nil
	})

	_ = group.Wait()

	if lexicalErr != nil && vectorErr != nil {
		return Result{}, fmt.Errorf("both sub-searches failed: lexical: %v; vector: %v", lexicalErr, vectorErr)
	}

	degraded := lexicalErr != nil || vectorErr != nil
	if lexicalErr != nil {
		e.logger.Warn().Err(lexicalErr).Str("query", trimmed).Msg("lexical sub-search unavailable")
	}
	if vectorErr != nil {
		e.logger.Warn().Err(vectorErr).Str("query", trimmed).Msg("vector sub-search unavailable")
	}

	ranked := mergeHits(lexicalHits, vectorHits, e.cfg.LexicalWeight, e.cfg.VectorWeight)
	if len(ranked) == 0 {
		return Result{Degraded: degraded}, nil
	}

	events, err := e.loadEvents(ctx, ranked)
	if err != nil {
		return Result{}, err
	}

	filtered := applyPriceFilter(events, filters)
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return Result{Events: filtered, Degraded: degraded}, nil
}

type mergedHit struct {
	eventID      int64
	score        float64
	lexicalScore float64
	vectorScore  float64
}

// mergeHits normalizes both score spaces to [0, 1] and combines them by
// weight. Lexical ts_rank is unbounded, so it gets a min-max rescale over
// the returned hits; cosine similarity is just clamped.
func mergeHits(lexical []db.LexicalHit, vector []db.VectorHit, wLex, wVec float64) []mergedHit {
	byEvent := make(map[int64]*mergedHit, len(lexical)+len(vector))

	if len(lexical) > 0 {
		minRank, maxRank := lexical[0].Rank, lexical[0].Rank
		for _, hit := range lexical[1:] {
			if hit.Rank < minRank {
				minRank = hit.Rank
			}
			if hit.Rank > maxRank {
				maxRank = hit.Rank
			}
		}
		span := maxRank - minRank
		for _, hit := range lexical {
			normalized := 1.0
			if span > 0 {
				normalized = (hit.Rank - minRank) / span
			}
			byEvent[hit.EventID] = &mergedHit{eventID: hit.EventID, lexicalScore: normalized}
		}
	}

	for _, hit := range vector {
		similarity := hit.Similarity
		if similarity < 0 {
			similarity = 0
		}
		if similarity > 1 {
			similarity = 1
		}
		if existing, ok := byEvent[hit.EventID]; ok {
			existing.vectorScore = similarity
		} else {
			byEvent[hit.EventID] = &mergedHit{eventID: hit.EventID, vectorScore: similarity}
		}
	}

	out := make([]mergedHit, 0, len(byEvent))
	for _, hit := range byEvent {
		hit.score = wLex*hit.lexicalScore + wVec*hit.vectorScore
		out = append(out, *hit)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].eventID < out[j].eventID
	})
	return out
}

func (e *Engine) loadEvents(ctx context.Context, ranked []mergedHit) ([]RankedEvent, error) {
	ids := make([]int64, 0, len(ranked))
	for _, hit := range ranked {
		ids = append(ids, hit.eventID)
	}

	events, err := e.store.GetEventsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load merged events: %w", err)
	}
	byID := make(map[int64]db.Event, len(events))
	for _, event := range events {
		byID[event.EventID] = event
	}

	out := make([]RankedEvent, 0, len(ranked))
	for _, hit := range ranked {
		event, ok := byID[hit.eventID]
		if !ok {
			// Deleted between sub-search and load.
			continue
		}
		out = append(out, RankedEvent{
			Event:        event,
			Score:        hit.score,
			LexicalScore: hit.lexicalScore,
			VectorScore:  hit.vectorScore,
		})
	}
	return out, nil
}

// applyPriceFilter drops events outside the price constraints. Events with
// unknown prices pass a max-price filter but never a free-only one.
func applyPriceFilter(events []RankedEvent, filters Filters) []RankedEvent {
	if filters.MaxPrice == nil && !filters.FreeOnly {
		return events
	}

	out := events[:0]
	for _, ranked := range events {
		event := &ranked.Event
		if filters.FreeOnly {
			if event.PriceMin == nil || *event.PriceMin != 0 {
				continue
			}
		}
		if filters.MaxPrice != nil && event.PriceMin != nil && *event.PriceMin > *filters.MaxPrice {
			continue
		}
		out = append(out, ranked)
	}
	return out
}
