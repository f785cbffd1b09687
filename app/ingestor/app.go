// Package ingestor wires the ingestion service: configuration, lake
// catalog, warehouse, market-data client, and the per-asset controllers,
// plus the optional cron loop that re-runs the whole set on a schedule.
package ingestor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/vnquant/marketlake/pkg/config"
	"github.com/vnquant/marketlake/pkg/ingest"
	"github.com/vnquant/marketlake/pkg/lake"
	"github.com/vnquant/marketlake/pkg/logging"
	"github.com/vnquant/marketlake/pkg/source"
	"github.com/vnquant/marketlake/pkg/warehouse"
)

type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Catalog   *lake.Catalog
	Warehouse *warehouse.DB
	Client    *source.Client
}

// Initialize builds the application from the environment.
func Initialize(ctx context.Context) *App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Unable to load configuration", zap.Error(err))
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Unable to initialize lake store", zap.Error(err))
	}

	wh, err := warehouse.New(ctx, cfg.WarehouseDSN, logger)
	if err != nil {
		logger.Fatal("Unable to connect to warehouse", zap.Error(err))
	}

	client := source.NewClient(source.Opts{
		BaseURL: cfg.SourceBaseURL,
		APIKey:  cfg.SourceAPIKey,
	})

	return &App{
		Config:    cfg,
		Logger:    logger,
		Catalog:   lake.NewCatalog(store, logger),
		Warehouse: wh,
		Client:    client,
	}
}

func newStore(ctx context.Context, cfg *config.Config) (lake.ObjectStore, error) {
	if cfg.LocalStorePath != "" {
		return lake.NewLocalStore(cfg.LocalStorePath)
	}
	return lake.NewS3Store(ctx, cfg.Bucket, lake.S3Config{
		Region:       cfg.S3Region,
		Endpoint:     cfg.S3Endpoint,
		UsePathStyle: cfg.S3PathStyle,
	})
}

// Start runs the asset set once, then either exits or keeps re-running on
// the configured cron schedule until the context is canceled.
func (a *App) Start(ctx context.Context) {
	if err := a.RunAll(ctx); err != nil {
		a.Logger.Fatal("Ingestion run failed", zap.Error(err))
	}

	if a.Config.Cron == "" {
		a.Stop()
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(a.Config.Cron, func() {
		if err := a.RunAll(ctx); err != nil {
			a.Logger.Error("Scheduled ingestion run failed", zap.Error(err))
		}
	}); err != nil {
		a.Logger.Fatal("Invalid cron expression", zap.String("cron", a.Config.Cron), zap.Error(err))
	}
	c.Start()
	a.Logger.Info("Scheduler started", zap.String("cron", a.Config.Cron))

	<-ctx.Done()
	<-c.Stop().Done()
	a.Stop()
}

// Stop releases held resources.
func (a *App) Stop() {
	if err := a.Warehouse.Close(); err != nil {
		a.Logger.Warn("Unable to close warehouse connection", zap.Error(err))
	}
	a.Logger.Info("さようなら!")
}

// RunAll ingests every declared asset and reconciles the warehouse-backed
// ones. Assets run sequentially; a failed asset stops the pass so a
// transient outage does not burn the remaining fetch budget.
func (a *App) RunAll(ctx context.Context) error {
	started := time.Now()
	for _, asset := range a.assets() {
		if err := a.runAsset(ctx, asset); err != nil {
			return err
		}
	}
	a.Logger.Info("Ingestion pass complete", zap.Duration("took", time.Since(started)))
	return nil
}

func (a *App) runAsset(ctx context.Context, asset Asset) error {
	retry := ingest.RetryConfig{
		MaxAttempts:         a.Config.MaxAttempts,
		RateLimitBackoff:    a.Config.RateLimitBackoff,
		ConnectivityBackoff: a.Config.ConnectivityBackoff,
	}
	pool := ingest.NewPool(asset.Source, a.Config.Workers, retry, a.Logger)
	controller := ingest.NewController(a.Catalog, pool, a.Logger)

	report, err := controller.Run(ctx, asset.Spec, a.runKey(asset.Spec))
	if err != nil {
		return err
	}
	report.Log(a.Logger)

	if report.NoOp || asset.Table == "" {
		return nil
	}
	return a.reconcile(ctx, asset, report)
}

// runKey picks the partition targeted by this run: today for daily
// assets, the most recent completed quarter for quarterly ones. Static
// assets ignore it.
func (a *App) runKey(spec ingest.AssetSpec) lake.PartitionKey {
	now := time.Now()
	if spec.Partitioning == ingest.Quarterly {
		return lake.RecentQuarters(now, 1)[0]
	}
	return lake.DateKey(now)
}

// reconcile pushes the run output into the warehouse. Runs that carry a
// batch (incremental and static) load it directly; a bulk FULL run wrote
// every partition instead, so the table is rebuilt from all of them.
func (a *App) reconcile(ctx context.Context, asset Asset, report *ingest.RunReport) error {
	batch := report.Batch
	if batch == nil {
		var err error
		batch, err = a.Catalog.LoadAllPartitions(ctx, asset.Spec.Asset)
		if err != nil {
			return err
		}
	}
	if batch.Len() == 0 {
		return nil
	}
	table := warehouse.TableFor(warehouseSchema, asset.Table, batch, asset.UniqueKey...)
	return a.Warehouse.Upsert(ctx, table, batch)
}
