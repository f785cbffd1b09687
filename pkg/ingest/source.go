package ingest

import (
	"context"

	"github.com/vnquant/marketlake/pkg/lake"
)

// Window bounds a fetch in partition-key space, inclusive on both ends.
// A zero window means the source's full available history.
type Window struct {
	Start lake.PartitionKey
	End   lake.PartitionKey
}

// Full is the unbounded window.
var Full = Window{}

// Day returns the single-day window for a calendar key.
func Day(key lake.PartitionKey) Window {
	return Window{Start: key, End: key}
}

// Since returns the window from start through end.
func Since(start, end lake.PartitionKey) Window {
	return Window{Start: start, End: end}
}

// Session is one remote-session handle. A pool worker owns its session for
// the lifetime of its shard and releases it on completion.
type Session interface {
	// Fetch retrieves the entity's rows inside the window. Errors are
	// classified: ErrRateLimited and ErrConnectivity are retryable,
	// everything else is permanent for that entity.
	Fetch(ctx context.Context, entity string, w Window) (*lake.RecordSet, error)
	Close() error
}

// Source is the remote data-source boundary. The pipeline depends only on
// session acquisition and the three-way error classification, not on
// transport details.
type Source interface {
	OpenSession(ctx context.Context) (Session, error)
}

// Universe enumerates the full tracked entity set (e.g. all listed
// tickers) for an asset's FULL pass and incremental worklists.
type Universe interface {
	Entities(ctx context.Context) ([]string, error)
}

// StaticUniverse is a fixed entity list.
type StaticUniverse []string

func (u StaticUniverse) Entities(context.Context) ([]string, error) {
	return u, nil
}
