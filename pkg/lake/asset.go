// Package lake models the partitioned object lake: asset identifiers,
// partition keys, record sets, the parquet codec, and the catalog that
// projects object-store listings into partition state.
package lake

import "strings"

// objectExt is the extension of every materialized object. The format is
// self-describing, so readers never need schema registries.
const objectExt = ".parquet"

// AssetID identifies one dataset in the lake as an ordered path of
// segments: [layer, middle..., table]. The first segment is the storage
// tier (bronze, silver, gold), the last the logical table name. It must
// carry at least one segment; a malformed ID is a programming error on
// the caller's side.
type AssetID []string

// NewAssetID builds an AssetID from its segments.
func NewAssetID(segments ...string) AssetID {
	return AssetID(segments)
}

// Layer returns the storage tier segment.
func (a AssetID) Layer() string {
	return a[0]
}

// Table returns the logical table name with the layer prefix stripped.
// Assets are commonly named "<layer>_<table>" to keep them unique across
// tiers; the object path does not repeat the tier in the table segment.
// Stripping is idempotent: a table without the prefix passes through.
func (a AssetID) Table() string {
	table := a[len(a)-1]
	prefix := a.Layer() + "_"
	if strings.HasPrefix(table, prefix) {
		return table[len(prefix):]
	}
	return table
}

// Middle returns the segments between layer and table, empty for
// two-segment IDs.
func (a AssetID) Middle() []string {
	if len(a) <= 2 {
		return nil
	}
	return a[1 : len(a)-1]
}

func (a AssetID) String() string {
	return strings.Join(a, "/")
}

// basePath is the object path of the asset without extension or
// partition segment.
func (a AssetID) basePath() string {
	parts := append([]string{a.Layer()}, a.Middle()...)
	parts = append(parts, a.Table())
	return strings.Join(parts, "/")
}

// ObjectPath resolves the object-store path for one partition of the
// asset, or for the unpartitioned object when key is empty:
//
//	[bronze, prices, bronze_prices_1d] + "2024-03-08" -> bronze/prices/prices_1d/2024-03-08.parquet
//	[bronze, company_info]             + ""           -> bronze/company_info.parquet
//
// Deterministic and total: same inputs always yield the same path.
func ObjectPath(asset AssetID, key PartitionKey) string {
	base := asset.basePath()
	if key == "" {
		return base + objectExt
	}
	return base + "/" + string(key) + objectExt
}

// partitionPrefix is the listing prefix under which all partitions of the
// asset live.
func partitionPrefix(asset AssetID) string {
	return asset.basePath() + "/"
}
