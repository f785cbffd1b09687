package lake

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectPath(t *testing.T) {
	tests := []struct {
		name  string
		asset AssetID
		key   PartitionKey
		want  string
	}{
		{
			name:  "partitioned with middle segment",
			asset: NewAssetID("bronze", "prices", "bronze_prices_1d"),
			key:   "2024-03-08",
			want:  "bronze/prices/prices_1d/2024-03-08.parquet",
		},
		{
			name:  "partitioned without middle segment",
			asset: NewAssetID("bronze", "news"),
			key:   "2024-03-08",
			want:  "bronze/news/2024-03-08.parquet",
		},
		{
			name:  "unpartitioned",
			asset: NewAssetID("bronze", "company_info"),
			key:   "",
			want:  "bronze/company_info.parquet",
		},
		{
			name:  "quarterly key",
			asset: NewAssetID("bronze", "reports", "bronze_income_statement"),
			key:   "2024-Q1",
			want:  "bronze/reports/income_statement/2024-Q1.parquet",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ObjectPath(tt.asset, tt.key))
			// Resolution is pure; a second call cannot differ.
			assert.Equal(t, tt.want, ObjectPath(tt.asset, tt.key))
		})
	}
}

func TestAssetIDTableStripsLayerPrefix(t *testing.T) {
	assert.Equal(t, "prices_1d", NewAssetID("bronze", "bronze_prices_1d").Table())
	// Already-stripped names pass through unchanged.
	assert.Equal(t, "prices_1d", NewAssetID("bronze", "prices_1d").Table())
	// Only a leading "<layer>_" is stripped.
	assert.Equal(t, "silver_prices", NewAssetID("bronze", "silver_prices").Table())
}

func TestAssetIDSegments(t *testing.T) {
	a := NewAssetID("bronze", "prices", "intraday", "bronze_ticks")
	assert.Equal(t, "bronze", a.Layer())
	assert.Equal(t, []string{"prices", "intraday"}, a.Middle())
	assert.Equal(t, "ticks", a.Table())

	assert.Nil(t, NewAssetID("bronze", "news").Middle())
}
