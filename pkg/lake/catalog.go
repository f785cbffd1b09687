package lake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Catalog is a read/write projection of partition state over an object
// store. It is never a separate source of truth: every query turns into a
// store listing or get, so whatever the store says is the catalog.
type Catalog struct {
	Store  ObjectStore
	Logger *zap.Logger
}

// NewCatalog builds a catalog over the store.
func NewCatalog(store ObjectStore, logger *zap.Logger) *Catalog {
	return &Catalog{Store: store, Logger: logger}
}

// ListPartitions returns the keys of every materialized partition of the
// asset, ascending.
func (c *Catalog) ListPartitions(ctx context.Context, asset AssetID) ([]PartitionKey, error) {
	paths, err := c.Store.List(ctx, partitionPrefix(asset))
	if err != nil {
		return nil, fmt.Errorf("list partitions of %s: %w", asset, err)
	}

	var keys []PartitionKey
	for _, p := range paths {
		if !strings.HasSuffix(p, objectExt) {
			continue
		}
		name := p[strings.LastIndex(p, "/")+1:]
		keys = append(keys, PartitionKey(strings.TrimSuffix(name, objectExt)))
	}
	return SortKeys(keys), nil
}

// HasPartition reports whether the partition object itself exists, without
// the unpartitioned fallback.
func (c *Catalog) HasPartition(ctx context.Context, asset AssetID, key PartitionKey) (bool, error) {
	path := ObjectPath(asset, key)
	paths, err := c.Store.List(ctx, path)
	if err != nil {
		return false, fmt.Errorf("probe partition %s of %s: %w", key, asset, err)
	}
	for _, p := range paths {
		if p == path {
			return true, nil
		}
	}
	return false, nil
}

// loadObject fetches and decodes one object, strict on existence.
func (c *Catalog) loadObject(ctx context.Context, asset AssetID, key PartitionKey) (*RecordSet, error) {
	path := ObjectPath(asset, key)
	data, err := c.Store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPartitionNotFound, path)
		}
		return nil, err
	}
	return DecodeParquet(asset.Table(), data)
}

// LoadPartition loads one partition of the asset. When the partition
// object is missing it falls back to the asset's unpartitioned object, if
// one exists, tagging every row with the originally requested key: a
// one-shot static asset can satisfy a caller expecting partition-shaped
// input. Only when both objects are absent does it fail with
// ErrPartitionNotFound.
func (c *Catalog) LoadPartition(ctx context.Context, asset AssetID, key PartitionKey) (*RecordSet, error) {
	rs, err := c.loadObject(ctx, asset, key)
	if err == nil {
		return rs, nil
	}
	if !errors.Is(err, ErrPartitionNotFound) {
		return nil, err
	}

	rs, uerr := c.loadObject(ctx, asset, "")
	if uerr != nil {
		if errors.Is(uerr, ErrPartitionNotFound) {
			// Neither object exists; report the partition the caller asked for.
			return nil, err
		}
		return nil, uerr
	}
	return rs.Tagged(PartitionTagColumn, string(key)), nil
}

// LoadUnpartitioned loads the asset's single unpartitioned object.
func (c *Catalog) LoadUnpartitioned(ctx context.Context, asset AssetID) (*RecordSet, error) {
	return c.loadObject(ctx, asset, "")
}

// LoadAllPartitions concatenates every materialized partition of the asset
// in key order, tagging each row with its partition key. Partitions that
// vanish between the listing and the load are skipped.
func (c *Catalog) LoadAllPartitions(ctx context.Context, asset AssetID) (*RecordSet, error) {
	keys, err := c.ListPartitions(ctx, asset)
	if err != nil {
		return nil, err
	}

	var out *RecordSet
	for _, key := range keys {
		rs, err := c.loadObject(ctx, asset, key)
		if errors.Is(err, ErrPartitionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		tagged := rs.Tagged(PartitionTagColumn, string(key))
		if out == nil {
			out = tagged
		} else {
			out.Append(tagged.Records...)
		}
	}
	if out == nil {
		return nil, fmt.Errorf("%w: no partitions for %s", ErrPartitionNotFound, asset)
	}
	return out, nil
}

// WritePartition materializes one partition wholesale. Last writer wins;
// there is no merge at the object level.
func (c *Catalog) WritePartition(ctx context.Context, asset AssetID, key PartitionKey, rs *RecordSet) error {
	return c.write(ctx, asset, key, rs)
}

// WriteUnpartitioned materializes the asset's single unpartitioned object.
func (c *Catalog) WriteUnpartitioned(ctx context.Context, asset AssetID, rs *RecordSet) error {
	return c.write(ctx, asset, "", rs)
}

func (c *Catalog) write(ctx context.Context, asset AssetID, key PartitionKey, rs *RecordSet) error {
	data, err := EncodeParquet(rs)
	if err != nil {
		return fmt.Errorf("encode %s partition %q: %w", asset, key, err)
	}
	path := ObjectPath(asset, key)
	if err := c.Store.Put(ctx, path, data); err != nil {
		return err
	}
	if c.Logger != nil {
		c.Logger.Debug("partition written",
			zap.String("asset", asset.String()),
			zap.String("partition", string(key)),
			zap.Int("rows", rs.Len()),
			zap.String("path", path),
		)
	}
	return nil
}
