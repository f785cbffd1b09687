// Package config aggregates the environment into one validated struct
// passed by parameter; no package reads ambient state past startup.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vnquant/marketlake/pkg/utils"
)

// Config is the full runtime configuration of the ingestion service.
type Config struct {
	// Object store. LocalStorePath switches the lake to the local
	// filesystem for development; the bucket settings are ignored then.
	Bucket         string `validate:"required_without=LocalStorePath"`
	S3Region       string
	S3Endpoint     string
	S3PathStyle    bool
	LocalStorePath string

	// Warehouse.
	WarehouseDSN string `validate:"required"`

	// Remote market-data source.
	SourceBaseURL string `validate:"required,url"`
	SourceAPIKey  string

	// Fetch pool.
	Workers             int           `validate:"gte=1,lte=64"`
	MaxAttempts         int           `validate:"gte=1"`
	RateLimitBackoff    time.Duration `validate:"gt=0"`
	ConnectivityBackoff time.Duration `validate:"gt=0"`

	// Daily assets backfill from this date on their first run.
	HistoryStart string `validate:"required,datetime=2006-01-02"`

	// Cron enables scheduled runs; empty means run once and exit.
	Cron string
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Bucket:              utils.Env("LAKE_BUCKET", ""),
		S3Region:            utils.Env("LAKE_S3_REGION", "us-east-1"),
		S3Endpoint:          utils.Env("LAKE_S3_ENDPOINT", ""),
		S3PathStyle:         utils.Env("LAKE_S3_PATH_STYLE", "true") == "true",
		LocalStorePath:      utils.Env("LAKE_LOCAL_PATH", ""),
		WarehouseDSN:        utils.Env("WAREHOUSE_DSN", ""),
		SourceBaseURL:       utils.Env("SOURCE_BASE_URL", ""),
		SourceAPIKey:        utils.Env("SOURCE_API_KEY", ""),
		Workers:             utils.EnvInt("FETCH_WORKERS", 4),
		MaxAttempts:         utils.EnvInt("FETCH_MAX_ATTEMPTS", 10),
		RateLimitBackoff:    time.Duration(utils.EnvInt("FETCH_RATE_LIMIT_BACKOFF_SECONDS", 20)) * time.Second,
		ConnectivityBackoff: time.Duration(utils.EnvInt("FETCH_CONNECTIVITY_BACKOFF_SECONDS", 2)) * time.Second,
		HistoryStart:        utils.Env("HISTORY_START", "2020-01-01"),
		Cron:                utils.Env("INGEST_CRON", ""),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
