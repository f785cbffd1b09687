package lake

import (
	"context"
	"errors"
)

var (
	// ErrObjectNotFound reports a get for an object key that does not exist.
	ErrObjectNotFound = errors.New("object not found")
	// ErrPartitionNotFound reports a partition load that found neither the
	// partition object nor an unpartitioned fallback object.
	ErrPartitionNotFound = errors.New("partition not found")
)

// ObjectStore abstracts the blob boundary of the lake: binary get/put/list
// keyed by slash-separated path strings. The store exclusively owns
// partition bytes; everything above it is a read projection.
type ObjectStore interface {
	// Get returns the full object body, ErrObjectNotFound when absent.
	Get(ctx context.Context, path string) ([]byte, error)

	// Put writes the object wholesale, overwriting any previous body.
	Put(ctx context.Context, path string, data []byte) error

	// List returns all object paths under the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the object; deleting an absent object is not an error.
	Delete(ctx context.Context, path string) error
}
