package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vnquant/marketlake/pkg/lake"
)

type fakeSession struct {
	fetch  func(ctx context.Context, entity string, w Window) (*lake.RecordSet, error)
	closed *atomic.Int32
}

func (s *fakeSession) Fetch(ctx context.Context, entity string, w Window) (*lake.RecordSet, error) {
	return s.fetch(ctx, entity, w)
}

func (s *fakeSession) Close() error {
	if s.closed != nil {
		s.closed.Add(1)
	}
	return nil
}

type fakeSource struct {
	opened  atomic.Int32
	closed  atomic.Int32
	openErr error
	fetch   func(ctx context.Context, entity string, w Window) (*lake.RecordSet, error)
}

func (f *fakeSource) OpenSession(context.Context) (Session, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened.Add(1)
	return &fakeSession{fetch: f.fetch, closed: &f.closed}, nil
}

func oneRow(entity string) *lake.RecordSet {
	return lake.NewRecordSet(lake.Schema{
		Name:   "rows",
		Fields: []lake.Field{{Name: "ticker", Type: lake.String}},
	}, lake.Record{"ticker": entity})
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, RateLimitBackoff: time.Millisecond, ConnectivityBackoff: time.Millisecond}
}

func TestPoolFetchCollectsAllEntities(t *testing.T) {
	src := &fakeSource{fetch: func(_ context.Context, entity string, _ Window) (*lake.RecordSet, error) {
		return oneRow(entity), nil
	}}
	pool := NewPool(src, 3, fastRetry(), zap.NewNop())

	res, err := pool.Fetch(context.Background(), []string{"VIC", "FPT", "HPG", "SSI", "MWG"}, Full)
	require.NoError(t, err)
	assert.Len(t, res.Fetched, 5)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, 5, res.Records.Len())
	// One session per shard, all released.
	assert.Equal(t, src.opened.Load(), src.closed.Load())
	assert.Equal(t, int32(3), src.opened.Load())
}

func TestNewPoolDefaultsWorkersAndRetry(t *testing.T) {
	pool := NewPool(&fakeSource{}, 0, RetryConfig{}, zap.NewNop())
	assert.Equal(t, 1, pool.Workers)
	assert.Equal(t, DefaultRetryConfig(), pool.Retry)
}

func TestPoolFetchWidensSchemaAcrossEntities(t *testing.T) {
	// Indexes carry an index_weight column plain tickers never report, so
	// entities on the same run can disagree on columns. The union must keep
	// every column no matter which entity produced rows first, within a
	// shard and across shards alike.
	src := &fakeSource{fetch: func(_ context.Context, entity string, _ Window) (*lake.RecordSet, error) {
		if entity == "VNINDEX" {
			return lake.NewRecordSet(lake.Schema{
				Name: "rows",
				Fields: []lake.Field{
					{Name: "ticker", Type: lake.String},
					{Name: "index_weight", Type: lake.Float64},
				},
			}, lake.Record{"ticker": "VNINDEX", "index_weight": 0.12}), nil
		}
		return oneRow(entity), nil
	}}

	for _, workers := range []int{1, 2} {
		pool := NewPool(src, workers, fastRetry(), zap.NewNop())

		res, err := pool.Fetch(context.Background(), []string{"FPT", "VNINDEX"}, Full)
		require.NoError(t, err)
		require.Equal(t, 2, res.Records.Len())
		assert.True(t, res.Records.Schema.HasField("ticker"))
		assert.True(t, res.Records.Schema.HasField("index_weight"))

		// The column must survive a trip through the lake codec too.
		buf, err := lake.EncodeParquet(res.Records)
		require.NoError(t, err)
		decoded, err := lake.DecodeParquet("rows", buf)
		require.NoError(t, err)
		weighted := decoded.FilterEq("ticker", "VNINDEX")
		require.Equal(t, 1, weighted.Len())
		assert.Equal(t, 0.12, weighted.Records[0]["index_weight"])
	}
}

func TestPoolFetchPermanentErrorSkipsImmediately(t *testing.T) {
	var calls atomic.Int32
	src := &fakeSource{fetch: func(_ context.Context, entity string, _ Window) (*lake.RecordSet, error) {
		if entity == "BAD" {
			calls.Add(1)
			return nil, errors.New("entity is delisted")
		}
		return oneRow(entity), nil
	}}
	pool := NewPool(src, 1, fastRetry(), zap.NewNop())

	res, err := pool.Fetch(context.Background(), []string{"VIC", "BAD"}, Full)
	require.NoError(t, err)
	assert.Equal(t, []string{"VIC"}, res.Fetched)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "BAD", res.Skipped[0].Entity)
	assert.Contains(t, res.Skipped[0].Reason, "permanent")
	// No retries for permanent failures.
	assert.Equal(t, int32(1), calls.Load())
}

func TestPoolFetchRetriesRateLimitUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	src := &fakeSource{fetch: func(_ context.Context, entity string, _ Window) (*lake.RecordSet, error) {
		if calls.Add(1) < 3 {
			return nil, fmt.Errorf("%w: 429", ErrRateLimited)
		}
		return oneRow(entity), nil
	}}
	pool := NewPool(src, 1, fastRetry(), zap.NewNop())

	res, err := pool.Fetch(context.Background(), []string{"VIC"}, Full)
	require.NoError(t, err)
	assert.Equal(t, []string{"VIC"}, res.Fetched)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPoolFetchExhaustsConnectivityRetries(t *testing.T) {
	var calls atomic.Int32
	src := &fakeSource{fetch: func(context.Context, string, Window) (*lake.RecordSet, error) {
		calls.Add(1)
		return nil, fmt.Errorf("%w: connection reset", ErrConnectivity)
	}}
	pool := NewPool(src, 1, fastRetry(), zap.NewNop())

	res, err := pool.Fetch(context.Background(), []string{"VIC"}, Full)
	require.NoError(t, err)
	assert.Empty(t, res.Fetched)
	require.Len(t, res.Skipped, 1)
	assert.Contains(t, res.Skipped[0].Reason, "connectivity")
	assert.Contains(t, res.Skipped[0].Reason, "exhausted 3 attempts")
	assert.Equal(t, int32(3), calls.Load())
}

func TestPoolFetchEmptyResponseSkipsAsNoData(t *testing.T) {
	src := &fakeSource{fetch: func(context.Context, string, Window) (*lake.RecordSet, error) {
		return nil, nil
	}}
	pool := NewPool(src, 1, fastRetry(), zap.NewNop())

	res, err := pool.Fetch(context.Background(), []string{"VIC"}, Full)
	require.NoError(t, err)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "no data", res.Skipped[0].Reason)
}

func TestPoolFetchSessionFailureSkipsShard(t *testing.T) {
	src := &fakeSource{openErr: errors.New("auth rejected")}
	pool := NewPool(src, 1, fastRetry(), zap.NewNop())

	res, err := pool.Fetch(context.Background(), []string{"VIC", "FPT"}, Full)
	require.NoError(t, err)
	assert.Empty(t, res.Fetched)
	require.Len(t, res.Skipped, 2)
	assert.Contains(t, res.Skipped[0].Reason, "session")
}

func TestPoolFetchWorkerPanicReleasesSessionAndSkips(t *testing.T) {
	src := &fakeSource{fetch: func(_ context.Context, entity string, _ Window) (*lake.RecordSet, error) {
		if entity == "BOOM" {
			panic("corrupt payload")
		}
		return oneRow(entity), nil
	}}
	pool := NewPool(src, 1, fastRetry(), zap.NewNop())

	res, err := pool.Fetch(context.Background(), []string{"VIC", "BOOM", "FPT"}, Full)
	require.NoError(t, err)
	assert.Equal(t, []string{"VIC"}, res.Fetched)
	// The panicking entity and everything after it on the shard skip.
	require.Len(t, res.Skipped, 2)
	assert.Contains(t, res.Skipped[0].Reason, "worker panic")
	assert.Equal(t, src.opened.Load(), src.closed.Load())
}

func TestPoolFetchCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{fetch: func(_ context.Context, entity string, _ Window) (*lake.RecordSet, error) {
		return oneRow(entity), nil
	}}
	pool := NewPool(src, 1, fastRetry(), zap.NewNop())

	_, err := pool.Fetch(ctx, []string{"VIC"}, Full)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPoolFetchDeduplicatesEntities(t *testing.T) {
	var calls atomic.Int32
	src := &fakeSource{fetch: func(_ context.Context, entity string, _ Window) (*lake.RecordSet, error) {
		calls.Add(1)
		return oneRow(entity), nil
	}}
	pool := NewPool(src, 1, fastRetry(), zap.NewNop())

	res, err := pool.Fetch(context.Background(), []string{"VIC", "VIC", "FPT"}, Full)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []string{"VIC", "FPT"}, res.Fetched)
}

func TestPoolFetchNoEntities(t *testing.T) {
	pool := NewPool(&fakeSource{}, 4, fastRetry(), zap.NewNop())
	res, err := pool.Fetch(context.Background(), nil, Full)
	require.NoError(t, err)
	assert.Empty(t, res.Fetched)
	assert.Nil(t, res.Records)
}
