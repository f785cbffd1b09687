package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/alitto/pond/v2"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/vnquant/marketlake/pkg/lake"
	"github.com/vnquant/marketlake/pkg/utils"
)

// SkippedEntity names an entity the pool gave up on and why.
type SkippedEntity struct {
	Entity string
	Reason string
}

// FetchResult is the union of everything a pool run produced: all rows of
// the successfully fetched entities plus the explicit skip list. One
// entity's exhaustion never aborts the batch.
type FetchResult struct {
	Records *lake.RecordSet
	Fetched []string
	Skipped []SkippedEntity
}

// Pool executes per-entity fetches across a fixed number of workers.
// Entities are sharded evenly; each worker owns one remote-session handle
// for the lifetime of its shard and releases it on every exit path,
// including worker panics. Workers share nothing mutable beyond their own
// immutable shard.
type Pool struct {
	Source  Source
	Workers int
	Retry   RetryConfig
	Logger  *zap.Logger
}

// NewPool builds a pool over the source with the given worker count. A
// zero-valued retry config falls back to the source's published quota
// behavior.
func NewPool(source Source, workers int, retry RetryConfig, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryConfig()
	}
	return &Pool{Source: source, Workers: workers, Retry: retry, Logger: logger}
}

type shardResult struct {
	records *lake.RecordSet
	fetched []string
	skipped []SkippedEntity
	err     error
}

// Fetch retrieves the given entities inside the window and returns the
// union of their rows plus the skip list, in shard order. Only run-level
// failures (context cancellation, session acquisition) are returned as
// errors; entity-level failures end up in the skip list.
func (p *Pool) Fetch(ctx context.Context, entities []string, w Window) (*FetchResult, error) {
	out := &FetchResult{}
	if len(entities) == 0 {
		return out, nil
	}

	shards := utils.Chunk(utils.Dedup(entities), p.Workers)
	results := xsync.NewMap[int, *shardResult]()

	workers := pond.NewPool(len(shards))
	defer workers.StopAndWait()
	group := workers.NewGroupContext(ctx)

	for i, shard := range shards {
		idx, shard := i, shard
		group.Submit(func() {
			res := &shardResult{}
			results.Store(idx, res)
			p.runShard(ctx, shard, w, res)
		})
	}

	err := group.Wait()
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}
	if err != nil && !errors.Is(err, pond.ErrGroupStopped) {
		return nil, err
	}

	for i := range shards {
		res, ok := results.Load(i)
		if !ok {
			continue
		}
		if res.err != nil {
			return nil, res.err
		}
		out.Fetched = append(out.Fetched, res.fetched...)
		out.Skipped = append(out.Skipped, res.skipped...)
		if res.records.Len() == 0 {
			continue
		}
		if out.Records == nil {
			out.Records = lake.NewRecordSet(res.records.Schema)
		} else {
			// Shards may disagree on columns when a key is null for every
			// row of some entity; the union keeps them all.
			out.Records.Schema = out.Records.Schema.Union(res.records.Schema)
		}
		out.Records.Append(res.records.Records...)
	}
	return out, nil
}

// runShard works through one shard on one session. The session is released
// on every exit path; a panic converts the shard's remaining entities into
// skips instead of taking the batch down.
func (p *Pool) runShard(ctx context.Context, shard []string, w Window, res *shardResult) {
	remaining := shard

	defer func() {
		if r := recover(); r != nil {
			p.Logger.Error("fetch worker panicked, skipping remaining shard",
				zap.Int("remaining", len(remaining)),
				zap.Any("panic", r),
			)
			for _, entity := range remaining {
				res.skipped = append(res.skipped, SkippedEntity{
					Entity: entity,
					Reason: fmt.Sprintf("worker panic: %v", r),
				})
			}
		}
	}()

	session, err := p.Source.OpenSession(ctx)
	if err != nil {
		p.Logger.Error("session acquisition failed, skipping shard",
			zap.Int("entities", len(shard)),
			zap.Error(err),
		)
		for _, entity := range shard {
			res.skipped = append(res.skipped, SkippedEntity{
				Entity: entity,
				Reason: fmt.Sprintf("session: %v", err),
			})
		}
		remaining = nil
		return
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			p.Logger.Warn("session close failed", zap.Error(cerr))
		}
	}()

	for len(remaining) > 0 {
		entity := remaining[0]

		rs, reason, err := fetchWithRetry(ctx, session, entity, w, p.Retry, p.Logger)
		// Popped only once the fetch returns, so a panic mid-fetch still
		// lands the entity on the skip list.
		remaining = remaining[1:]
		if err != nil {
			// Run-level cancellation; siblings see the same context.
			res.err = err
			return
		}
		if reason != "" {
			res.skipped = append(res.skipped, SkippedEntity{Entity: entity, Reason: reason})
			continue
		}
		if rs.Len() == 0 {
			res.skipped = append(res.skipped, SkippedEntity{Entity: entity, Reason: "no data"})
			continue
		}

		res.fetched = append(res.fetched, entity)
		if res.records == nil {
			res.records = lake.NewRecordSet(rs.Schema)
		} else {
			res.records.Schema = res.records.Schema.Union(rs.Schema)
		}
		res.records.Append(rs.Records...)
	}
}
