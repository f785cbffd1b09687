package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vnquant/marketlake/pkg/lake"
)

// Controller runs one asset's ingestion for one partition key. The run is
// single-threaded end to end except the fetch pool. State lives entirely
// in the catalog: the controller re-derives mode, activity, and residual
// worklists from partition listings on every run, which is what makes
// re-running after a partial failure safe.
type Controller struct {
	Catalog *lake.Catalog
	Pool    *Pool
	Logger  *zap.Logger

	// Now is the clock, injectable for tests.
	Now func() time.Time
}

// NewController wires a controller over the catalog and fetch pool.
func NewController(catalog *lake.Catalog, pool *Pool, logger *zap.Logger) *Controller {
	return &Controller{Catalog: catalog, Pool: pool, Logger: logger, Now: time.Now}
}

// Run ingests one asset for the given run key. Daily assets take a
// calendar date key, quarterly assets a fiscal quarter key, static assets
// ignore the key. Entity-level fetch failures never fail the run; only
// store or source session failures do.
func (c *Controller) Run(ctx context.Context, spec AssetSpec, runKey lake.PartitionKey) (*RunReport, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	universe, err := spec.Universe.Entities(ctx)
	if err != nil {
		return nil, fmt.Errorf("entity universe of %s: %w", spec.Asset, err)
	}

	if spec.Partitioning == Static {
		return c.runStatic(ctx, spec, universe)
	}

	keys, err := c.Catalog.ListPartitions(ctx, spec.Asset)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return c.runFull(ctx, spec, universe, runKey)
	}
	return c.runIncremental(ctx, spec, universe, runKey)
}

// runFull performs the once-per-asset historical backfill: fetch the whole
// requested span for the full universe in one pass, group by partition
// key, and write one partition per group. The run's own key is covered by
// the bulk write, so the report carries no separate output batch.
func (c *Controller) runFull(ctx context.Context, spec AssetSpec, universe []string, runKey lake.PartitionKey) (*RunReport, error) {
	c.Logger.Info("full load mode",
		zap.String("asset", spec.Asset.String()),
		zap.String("partition", string(runKey)),
		zap.Int("universe", len(universe)),
	)

	var window Window
	switch spec.Partitioning {
	case Daily:
		window = Since(spec.HistoryStart, runKey)
	default:
		window = Full
	}

	worklist := spec.Worklist(universe, nil)
	result, err := c.Pool.Fetch(ctx, worklist, window)
	if err != nil {
		return nil, err
	}

	report := &RunReport{
		Asset:   spec.Asset,
		Mode:    ModeFull,
		Key:     runKey,
		Fetched: result.Fetched,
		Skipped: result.Skipped,
	}
	if result.Records.Len() == 0 {
		report.NoOp = true
		report.Reason = "no data fetched"
		return report, nil
	}

	for _, pg := range groupByPartition(spec, result.Records, func(key lake.PartitionKey, _ *lake.RecordSet) bool {
		return c.fullKeyAllowed(spec, key, runKey)
	}) {
		if err := c.Catalog.WritePartition(ctx, spec.Asset, pg.key, pg.group); err != nil {
			return nil, err
		}
		report.PartitionsWritten = append(report.PartitionsWritten, pg.key)
		report.Rows += pg.group.Len()
	}
	lake.SortKeys(report.PartitionsWritten)
	return report, nil
}

type partitionGroup struct {
	key   lake.PartitionKey
	group *lake.RecordSet
}

// groupByPartition splits the fetched rows by the partition key each row
// belongs to, dropping rows without one and groups the keep predicate
// rejects. Groups come back in key order.
func groupByPartition(spec AssetSpec, rs *lake.RecordSet, keep func(lake.PartitionKey, *lake.RecordSet) bool) []partitionGroup {
	groups := map[lake.PartitionKey]*lake.RecordSet{}
	var keys []lake.PartitionKey
	for _, r := range rs.Records {
		key := spec.RowKey(r)
		if key == "" {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = lake.NewRecordSet(rs.Schema)
			groups[key] = g
			keys = append(keys, key)
		}
		g.Append(r)
	}

	lake.SortKeys(keys)
	out := make([]partitionGroup, 0, len(keys))
	for _, key := range keys {
		if keep(key, groups[key]) {
			out = append(out, partitionGroup{key: key, group: groups[key]})
		}
	}
	return out
}

// fullKeyAllowed bounds the FULL pass: daily assets write nothing before
// their history start or after the run key, quarterly assets only the
// configured number of recent completed quarters.
func (c *Controller) fullKeyAllowed(spec AssetSpec, key, runKey lake.PartitionKey) bool {
	switch spec.Partitioning {
	case Daily:
		return key >= spec.HistoryStart && key <= runKey
	case Quarterly:
		n := spec.HistoryQuarters
		if n <= 0 {
			n = defaultHistoryQuarters
		}
		for _, k := range lake.RecentQuarters(c.Now(), n) {
			if k == key {
				return true
			}
		}
		return false
	default:
		return false
	}
}

const defaultHistoryQuarters = 21

// runIncremental tops up a single partition. Entities inactive across the
// lookback window and entities a partial retry already wrote into the
// target partition are subtracted before fetching; an empty residual
// worklist terminates as a no-op.
func (c *Controller) runIncremental(ctx context.Context, spec AssetSpec, universe []string, runKey lake.PartitionKey) (*RunReport, error) {
	if spec.Partitioning == Daily {
		day, err := runKey.Date()
		if err != nil {
			return nil, err
		}
		if !spec.calendar().Active(day) {
			return noOp(spec.Asset, ModeIncremental, runKey, "no expected activity on "+string(runKey)), nil
		}
	}

	activity, err := DetectActivity(ctx, c.Catalog, spec.Asset, universe, spec.EntityColumn, spec.Lookback)
	if err != nil {
		return nil, err
	}

	existing, err := c.loadExisting(ctx, spec.Asset, runKey)
	if err != nil {
		return nil, err
	}

	pinned := map[string]bool{}
	for _, e := range spec.AlwaysInclude {
		pinned[e] = true
	}
	exclude := map[string]bool{}
	for e := range activity.Inactive {
		// Always-include entities stay on the worklist no matter how long
		// they have been absent from the lookback window.
		if !pinned[e] {
			exclude[e] = true
		}
	}
	for _, e := range existing.Distinct(spec.EntityColumn) {
		exclude[e] = true
	}

	worklist := spec.Worklist(universe, exclude)
	c.Logger.Info("incremental mode",
		zap.String("asset", spec.Asset.String()),
		zap.String("partition", string(runKey)),
		zap.Int("inactive", len(activity.Inactive)),
		zap.Int("already_present", existing.Len()),
		zap.Int("worklist", len(worklist)),
	)
	if len(worklist) == 0 {
		return noOp(spec.Asset, ModeIncremental, runKey, "no entities left to fetch"), nil
	}

	var window Window
	if spec.Partitioning == Daily {
		window = Day(runKey)
	} else {
		window = Full
	}

	result, err := c.Pool.Fetch(ctx, worklist, window)
	if err != nil {
		return nil, err
	}

	report := &RunReport{
		Asset:   spec.Asset,
		Mode:    ModeIncremental,
		Key:     runKey,
		Fetched: result.Fetched,
		Skipped: result.Skipped,
	}
	part := filterToKey(spec, result.Records, runKey)
	if part.Len() == 0 {
		report.NoOp = true
		report.Reason = "no rows for target partition"
		return report, nil
	}

	merged := lake.MergeByEntity(existing, part, spec.EntityColumn)
	if err := c.Catalog.WritePartition(ctx, spec.Asset, runKey, merged); err != nil {
		return nil, err
	}
	report.PartitionsWritten = []lake.PartitionKey{runKey}
	report.Rows = part.Len()
	report.Batch = merged
	return report, nil
}

// runStatic refreshes an unpartitioned asset. Mode selection and the
// already-seen subtraction key off the destination object's entities
// instead of dates.
func (c *Controller) runStatic(ctx context.Context, spec AssetSpec, universe []string) (*RunReport, error) {
	existing, err := c.loadExistingUnpartitioned(ctx, spec.Asset)
	if err != nil {
		return nil, err
	}

	mode := ModeIncremental
	if existing.Len() == 0 {
		mode = ModeFull
	}

	exclude := map[string]bool{}
	for _, e := range existing.Distinct(spec.EntityColumn) {
		exclude[e] = true
	}
	worklist := spec.Worklist(universe, exclude)
	if len(worklist) == 0 {
		return noOp(spec.Asset, mode, "", "destination already covers the universe"), nil
	}

	result, err := c.Pool.Fetch(ctx, worklist, Full)
	if err != nil {
		return nil, err
	}

	report := &RunReport{
		Asset:   spec.Asset,
		Mode:    mode,
		Fetched: result.Fetched,
		Skipped: result.Skipped,
	}
	if result.Records.Len() == 0 {
		report.NoOp = true
		report.Reason = "no data fetched"
		return report, nil
	}

	merged := lake.MergeByEntity(existing, result.Records, spec.EntityColumn)
	if err := c.Catalog.WriteUnpartitioned(ctx, spec.Asset, merged); err != nil {
		return nil, err
	}
	report.Rows = result.Records.Len()
	report.Batch = merged
	return report, nil
}

// loadExisting returns the target partition's current rows, empty when it
// has not been materialized yet. The existence check bypasses the unpartitioned
// fallback: the already-present subtraction must see only rows written to
// this partition object, never fallback rows tagged with its key.
func (c *Controller) loadExisting(ctx context.Context, asset lake.AssetID, key lake.PartitionKey) (*lake.RecordSet, error) {
	ok, err := c.Catalog.HasPartition(ctx, asset, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return lake.NewRecordSet(lake.Schema{}), nil
	}
	return c.Catalog.LoadPartition(ctx, asset, key)
}

func (c *Controller) loadExistingUnpartitioned(ctx context.Context, asset lake.AssetID) (*lake.RecordSet, error) {
	rs, err := c.Catalog.LoadUnpartitioned(ctx, asset)
	if errors.Is(err, lake.ErrPartitionNotFound) {
		return lake.NewRecordSet(lake.Schema{}), nil
	}
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// filterToKey keeps only the rows that belong to the target partition.
func filterToKey(spec AssetSpec, rs *lake.RecordSet, key lake.PartitionKey) *lake.RecordSet {
	if rs.Len() == 0 {
		return lake.NewRecordSet(lake.Schema{})
	}
	out := lake.NewRecordSet(rs.Schema)
	for _, r := range rs.Records {
		if spec.RowKey(r) == key {
			out.Append(r)
		}
	}
	return out
}
