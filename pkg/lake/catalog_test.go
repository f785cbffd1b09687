package lake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCatalog(t *testing.T) *Catalog {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return NewCatalog(store, zap.NewNop())
}

func pricesAsset() AssetID {
	return NewAssetID("bronze", "prices", "bronze_prices_1d")
}

func priceRows(ticker string, date string) *RecordSet {
	return NewRecordSet(priceSchema(), Record{"ticker": ticker, "date": date, "close": 10.0})
}

func TestCatalogListPartitionsSorted(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	asset := pricesAsset()

	for _, key := range []PartitionKey{"2024-03-08", "2024-03-06", "2024-03-07"} {
		require.NoError(t, c.WritePartition(ctx, asset, key, priceRows("VIC", string(key))))
	}

	keys, err := c.ListPartitions(ctx, asset)
	require.NoError(t, err)
	assert.Equal(t, []PartitionKey{"2024-03-06", "2024-03-07", "2024-03-08"}, keys)
}

func TestCatalogListPartitionsEmpty(t *testing.T) {
	keys, err := newTestCatalog(t).ListPartitions(context.Background(), pricesAsset())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestCatalogHasPartition(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	asset := pricesAsset()

	require.NoError(t, c.WritePartition(ctx, asset, "2024-03-08", priceRows("VIC", "2024-03-08")))

	ok, err := c.HasPartition(ctx, asset, "2024-03-08")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.HasPartition(ctx, asset, "2024-03-09")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCatalogLoadPartitionStrictHit(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	asset := pricesAsset()

	require.NoError(t, c.WritePartition(ctx, asset, "2024-03-08", priceRows("VIC", "2024-03-08")))

	rs, err := c.LoadPartition(ctx, asset, "2024-03-08")
	require.NoError(t, err)
	require.Equal(t, 1, rs.Len())
	// A direct partition hit carries no tag column.
	assert.False(t, rs.Schema.HasField(PartitionTagColumn))
}

func TestCatalogLoadPartitionUnpartitionedFallback(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	asset := NewAssetID("bronze", "company_info")

	rows := NewRecordSet(Schema{
		Name:   "company_info",
		Fields: []Field{{Name: "ticker", Type: String}},
	}, Record{"ticker": "VIC"}, Record{"ticker": "FPT"})
	require.NoError(t, c.WriteUnpartitioned(ctx, asset, rows))

	rs, err := c.LoadPartition(ctx, asset, "2024-03-08")
	require.NoError(t, err)
	require.Equal(t, 2, rs.Len())
	// Fallback rows are tagged with the requested key.
	for _, r := range rs.Records {
		assert.Equal(t, "2024-03-08", r.StringAt(PartitionTagColumn))
	}
}

func TestCatalogLoadPartitionMissing(t *testing.T) {
	_, err := newTestCatalog(t).LoadPartition(context.Background(), pricesAsset(), "2024-03-08")
	assert.ErrorIs(t, err, ErrPartitionNotFound)
}

func TestCatalogLoadAllPartitions(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	asset := pricesAsset()

	require.NoError(t, c.WritePartition(ctx, asset, "2024-03-07", priceRows("VIC", "2024-03-07")))
	require.NoError(t, c.WritePartition(ctx, asset, "2024-03-08", priceRows("VIC", "2024-03-08")))

	rs, err := c.LoadAllPartitions(ctx, asset)
	require.NoError(t, err)
	require.Equal(t, 2, rs.Len())
	assert.Equal(t, "2024-03-07", rs.Records[0].StringAt(PartitionTagColumn))
	assert.Equal(t, "2024-03-08", rs.Records[1].StringAt(PartitionTagColumn))
}

func TestCatalogLoadAllPartitionsEmpty(t *testing.T) {
	_, err := newTestCatalog(t).LoadAllPartitions(context.Background(), pricesAsset())
	assert.ErrorIs(t, err, ErrPartitionNotFound)
}

func TestLocalStoreGetMissing(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "bronze/nothing.parquet")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalStoreDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "bronze/x.parquet", []byte("data")))
	require.NoError(t, store.Delete(ctx, "bronze/x.parquet"))
	_, err = store.Get(ctx, "bronze/x.parquet")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	// Deleting an absent object is not an error.
	assert.NoError(t, store.Delete(ctx, "bronze/x.parquet"))
}
