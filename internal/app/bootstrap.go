package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/citypulse/internal/cli"
	"horse.fit/citypulse/internal/config"
	"horse.fit/citypulse/internal/db"
	"horse.fit/citypulse/internal/dedup"
	"horse.fit/citypulse/internal/enrich"
	"horse.fit/citypulse/internal/logging"
	"horse.fit/citypulse/internal/metrics"
	"horse.fit/citypulse/internal/normalize"
	"horse.fit/citypulse/internal/pipeline"
	"horse.fit/citypulse/internal/search"
	"horse.fit/citypulse/internal/validate"
)

// runtime bundles the shared process dependencies each command builds.
type runtime struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *db.Pool
}

func initRuntime(ctx context.Context, envLoader *cli.EnvLoader) (*runtime, error) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return &runtime{cfg: cfg, logger: logger, pool: pool}, nil
}

func (rt *runtime) close() {
	if rt != nil && rt.pool != nil {
		_ = rt.pool.Close()
	}
}

func (rt *runtime) newNormalizer() *normalize.Normalizer {
	return normalize.New(normalize.Config{
		DefaultCurrency: rt.cfg.DefaultCurrency,
		DefaultTimezone: rt.cfg.DefaultTimezone,
	})
}

func (rt *runtime) newDedup() *dedup.Service {
	return dedup.NewService(rt.pool, dedup.Config{
		FuzzyTitleThreshold: rt.cfg.FuzzyTitleThreshold,
		FuzzyWindow:         time.Duration(rt.cfg.FuzzyWindowMinutes) * time.Minute,
		FuzzyRadiusMeters:   rt.cfg.FuzzyRadiusMeters,
		SnapshotKeep:        rt.cfg.SnapshotKeep,
	}, rt.logger)
}

func (rt *runtime) newPipeline(m *metrics.Metrics) *pipeline.Service {
	return pipeline.NewService(rt.newNormalizer(), rt.newDedup(), rt.pool, m, pipeline.Config{
		Workers: rt.cfg.PipelineWorkers,
		Validate: validate.Config{
			StaleHorizon:  time.Duration(rt.cfg.StaleHorizonHours) * time.Hour,
			FutureHorizon: time.Duration(rt.cfg.FutureHorizonDays) * 24 * time.Hour,
			MaxTitleRunes: rt.cfg.MaxTitleRunes,
		},
	}, rt.logger)
}

func (rt *runtime) newEmbedder() *enrich.HTTPEmbedder {
	return enrich.NewHTTPEmbedder(rt.cfg.EmbeddingEndpoint, rt.cfg.EmbeddingDimensions)
}

func (rt *runtime) newEnricher() *enrich.Service {
	embedder := rt.newEmbedder()
	return enrich.NewService(rt.pool, embedder, enrich.NewHTTPGeocoder(rt.cfg.GeocodeEndpoint), enrich.Config{
		ModelName:       rt.cfg.EmbeddingModelName,
		ModelVersion:    rt.cfg.EmbeddingModelVer,
		ServiceEndpoint: embedder.Endpoint(),
		MaxAttempts:     rt.cfg.EnrichMaxAttempts,
		Backoff:         time.Duration(rt.cfg.EnrichBackoffSecs) * time.Second,
	}, rt.logger)
}

func (rt *runtime) newSearchEngine() *search.Engine {
	return search.NewEngine(rt.pool, rt.newEmbedder(), search.Config{
		LexicalWeight: rt.cfg.SearchLexicalWeight,
		VectorWeight:  rt.cfg.SearchVectorWeight,
		LexicalK:      rt.cfg.SearchLexicalK,
		VectorK:       rt.cfg.SearchVectorK,
		SubTimeout:    time.Duration(rt.cfg.SearchSubTimeoutMS) * time.Millisecond,
		ModelName:     rt.cfg.EmbeddingModelName,
	}, rt.logger)
}
