package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/vnquant/marketlake/pkg/lake"
)

// ActivitySet classifies the tracked entity universe into active and
// inactive over a lookback window. It is recomputed from the catalog on
// every incremental run and never persisted: the partitions themselves are
// the record of who traded.
type ActivitySet struct {
	// Inactive holds entities absent from the union of entities observed
	// across the last N partitions. Fetching them again would be wasted
	// calls until they show up in a fresh partition.
	Inactive map[string]bool
}

// IsInactive reports whether the entity should be dropped from worklists.
func (s *ActivitySet) IsInactive(entity string) bool {
	return s != nil && s.Inactive[entity]
}

// DetectActivity scans the last lookback partitions of the asset and
// classifies the universe. An entity present in even one of those
// partitions is active. When fewer than lookback partitions exist yet,
// there is not enough history to condemn anyone: everything is active.
func DetectActivity(ctx context.Context, catalog *lake.Catalog, asset lake.AssetID, universe []string, entityColumn string, lookback int) (*ActivitySet, error) {
	out := &ActivitySet{Inactive: map[string]bool{}}

	keys, err := catalog.ListPartitions(ctx, asset)
	if err != nil {
		return nil, err
	}
	if lookback <= 0 || len(keys) < lookback {
		return out, nil
	}

	active := map[string]bool{}
	for _, key := range keys[len(keys)-lookback:] {
		rs, err := catalog.LoadPartition(ctx, asset, key)
		if err != nil {
			if errors.Is(err, lake.ErrPartitionNotFound) {
				continue
			}
			return nil, fmt.Errorf("activity scan of %s at %s: %w", asset, key, err)
		}
		for _, e := range rs.Distinct(entityColumn) {
			active[e] = true
		}
	}

	for _, e := range universe {
		if !active[e] {
			out.Inactive[e] = true
		}
	}
	return out, nil
}
