package lake

import (
	"context"
	"errors"
	"fmt"
)

// FallbackPartition is the result of a nearest-partition walk: the key the
// caller asked for, the key that actually satisfied it, and the records of
// that partition.
type FallbackPartition struct {
	Requested PartitionKey
	Resolved  PartitionKey
	Records   *RecordSet
}

// Nearest returns the closest existing partition at or before target,
// walking backward one calendar day at a time (by wall-clock day, not
// partition-by-partition) for at most maxLookbackDays steps. It fails with
// ErrPartitionNotFound when the whole window is exhausted. The resolved
// key is always <= target; ties cannot occur since keys are visited in
// strict descending order.
//
// Time-shifted joins (an N-day percentage change against a partition that
// may fall on a weekend, holiday, or missed crawl) read through this.
// Callers must not ask for a key whose write is still in flight from the
// same run: the walk trusts the store's listing.
func (c *Catalog) Nearest(ctx context.Context, asset AssetID, target PartitionKey, maxLookbackDays int) (*FallbackPartition, error) {
	day, err := target.Date()
	if err != nil {
		return nil, err
	}

	key := target
	for step := 0; step <= maxLookbackDays; step++ {
		rs, err := c.loadObject(ctx, asset, key)
		if err == nil {
			return &FallbackPartition{Requested: target, Resolved: key, Records: rs}, nil
		}
		if !errors.Is(err, ErrPartitionNotFound) {
			return nil, err
		}
		day = day.AddDate(0, 0, -1)
		key = DateKey(day)
	}
	return nil, fmt.Errorf("%w: no partition of %s within %d days before %s",
		ErrPartitionNotFound, asset, maxLookbackDays, target)
}
