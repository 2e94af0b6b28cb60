package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"CP_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"CP_DB_MAX_CONNS" default:"8"`

	DefaultCurrency string `envconfig:"CP_DEFAULT_CURRENCY" default:"EUR"`
	DefaultTimezone string `envconfig:"CP_DEFAULT_TIMEZONE" default:"Europe/Amsterdam"`

	StaleHorizonHours int `envconfig:"CP_STALE_HORIZON_HOURS" default:"24"`
	FutureHorizonDays int `envconfig:"CP_FUTURE_HORIZON_DAYS" default:"730"`
	MaxTitleRunes     int `envconfig:"CP_MAX_TITLE_RUNES" default:"500"`
	SnapshotKeep      int `envconfig:"CP_SNAPSHOT_KEEP" default:"5"`
	PipelineWorkers   int `envconfig:"CP_PIPELINE_WORKERS" default:"4"`
	EnrichMaxAttempts int `envconfig:"CP_ENRICH_MAX_ATTEMPTS" default:"5"`
	EnrichBackoffSecs int `envconfig:"CP_ENRICH_BACKOFF_BASE_SECONDS" default:"30"`

	FuzzyTitleThreshold float64 `envconfig:"CP_FUZZY_TITLE_THRESHOLD" default:"0.85"`
	FuzzyWindowMinutes  int     `envconfig:"CP_FUZZY_WINDOW_MINUTES" default:"180"`
	FuzzyRadiusMeters   float64 `envconfig:"CP_FUZZY_RADIUS_METERS" default:"200"`

	SearchLexicalWeight float64 `envconfig:"CP_SEARCH_LEXICAL_WEIGHT" default:"0.5"`
	SearchVectorWeight  float64 `envconfig:"CP_SEARCH_VECTOR_WEIGHT" default:"0.5"`
	SearchLexicalK      int     `envconfig:"CP_SEARCH_LEXICAL_K" default:"50"`
	SearchVectorK       int     `envconfig:"CP_SEARCH_VECTOR_K" default:"50"`
	SearchSubTimeoutMS  int     `envconfig:"CP_SEARCH_SUB_TIMEOUT_MS" default:"2000"`

	EmbeddingEndpoint   string `envconfig:"CP_EMBEDDING_ENDPOINT" default:"http://127.0.0.1:8844/embed"`
	EmbeddingDimensions int    `envconfig:"CP_EMBEDDING_DIMENSIONS" default:"384"`
	EmbeddingModelName  string `envconfig:"CP_EMBEDDING_MODEL" default:"all-MiniLM-L6-v2"`
	EmbeddingModelVer   string `envconfig:"CP_EMBEDDING_MODEL_VERSION" default:"v1"`

	GeocodeEndpoint string `envconfig:"CP_GEOCODE_ENDPOINT" default:"http://127.0.0.1:8845/search"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("CP_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("CP_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("CP_DB_MIN_CONNS (%d) cannot exceed CP_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if len(strings.TrimSpace(c.DefaultCurrency)) != 3 {
		return fmt.Errorf("CP_DEFAULT_CURRENCY must be a 3-letter ISO code")
	}
	if c.FuzzyTitleThreshold <= 0 || c.FuzzyTitleThreshold > 1 {
		return fmt.Errorf("CP_FUZZY_TITLE_THRESHOLD must be in (0, 1]")
	}
	if c.FuzzyWindowMinutes <= 0 {
		return fmt.Errorf("CP_FUZZY_WINDOW_MINUTES must be > 0")
	}
	if c.FuzzyRadiusMeters <= 0 {
		return fmt.Errorf("CP_FUZZY_RADIUS_METERS must be > 0")
	}
	if c.SearchLexicalWeight < 0 || c.SearchVectorWeight < 0 {
		return fmt.Errorf("search weights must be >= 0")
	}
	if c.SearchLexicalWeight+c.SearchVectorWeight == 0 {
		return fmt.Errorf("at least one search weight must be > 0")
	}
	if c.EmbeddingDimensions < 1 {
		return fmt.Errorf("CP_EMBEDDING_DIMENSIONS must be >= 1")
	}
	if c.SnapshotKeep < 1 {
		return fmt.Errorf("CP_SNAPSHOT_KEEP must be >= 1")
	}
	if c.PipelineWorkers < 1 {
		return fmt.Errorf("CP_PIPELINE_WORKERS must be >= 1")
	}
	return nil
}
