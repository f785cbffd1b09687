package ingest

import (
	"fmt"
	"sort"
	"time"

	"github.com/vnquant/marketlake/pkg/lake"
)

// Partitioning declares how an asset's data is sliced in the lake.
type Partitioning int

const (
	// Daily assets carry one partition per calendar date.
	Daily Partitioning = iota
	// Quarterly assets carry one partition per fiscal quarter.
	Quarterly
	// Static assets are a single unpartitioned object refreshed in place.
	Static
)

func (p Partitioning) String() string {
	switch p {
	case Daily:
		return "daily"
	case Quarterly:
		return "quarterly"
	default:
		return "static"
	}
}

// Calendar answers whether a calendar day has expected activity. Days
// without it (exchange closures) are terminal no-ops for incremental runs.
type Calendar interface {
	Active(t time.Time) bool
}

// WeekdayCalendar marks Monday through Friday active. The exchange holiday
// schedule rides on top of the weekend rule at the composition root when
// one is configured.
type WeekdayCalendar struct{}

func (WeekdayCalendar) Active(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// AssetSpec describes one ingested dataset: where it lives, how it is
// partitioned, which column identifies the entity, and how stale an entity
// may be before incremental runs stop fetching it.
type AssetSpec struct {
	Asset        lake.AssetID
	Partitioning Partitioning

	// EntityColumn is the column carrying the tracked entity (ticker).
	EntityColumn string

	// DateColumn is the calendar column daily rows are partitioned by.
	DateColumn string

	// YearColumn / QuarterColumn are the fiscal period columns quarterly
	// rows are partitioned by.
	YearColumn    string
	QuarterColumn string

	// Lookback is the number of most recent partitions scanned to infer
	// entity activity.
	Lookback int

	// HistoryStart bounds the FULL pass of daily assets.
	HistoryStart lake.PartitionKey

	// HistoryQuarters bounds the FULL pass of quarterly assets to the N
	// most recent completed quarters.
	HistoryQuarters int

	// Calendar gates incremental runs of daily assets; nil means weekdays.
	Calendar Calendar

	// AlwaysInclude lists entities exempt from inactivity pruning (market
	// indexes); they are ordered to the end of every worklist.
	AlwaysInclude []string

	// Universe enumerates the tracked entity set.
	Universe Universe
}

// Validate rejects specs the controller cannot run.
func (s AssetSpec) Validate() error {
	if len(s.Asset) == 0 {
		return fmt.Errorf("asset spec: empty asset identifier")
	}
	if s.EntityColumn == "" {
		return fmt.Errorf("asset spec %s: entity column required", s.Asset)
	}
	if s.Universe == nil {
		return fmt.Errorf("asset spec %s: universe required", s.Asset)
	}
	switch s.Partitioning {
	case Daily:
		if s.DateColumn == "" {
			return fmt.Errorf("asset spec %s: daily assets need a date column", s.Asset)
		}
		if s.HistoryStart == "" {
			return fmt.Errorf("asset spec %s: daily assets need a history start", s.Asset)
		}
	case Quarterly:
		if s.YearColumn == "" || s.QuarterColumn == "" {
			return fmt.Errorf("asset spec %s: quarterly assets need year and quarter columns", s.Asset)
		}
	}
	return nil
}

// calendar returns the configured calendar or the weekday default.
func (s AssetSpec) calendar() Calendar {
	if s.Calendar != nil {
		return s.Calendar
	}
	return WeekdayCalendar{}
}

// RowKey returns the partition key a fetched row belongs to, empty when
// the row is missing its partition columns.
func (s AssetSpec) RowKey(r lake.Record) lake.PartitionKey {
	switch s.Partitioning {
	case Daily:
		return lake.PartitionKey(r.StringAt(s.DateColumn))
	case Quarterly:
		year := r.StringAt(s.YearColumn)
		quarter := r.StringAt(s.QuarterColumn)
		if year == "" || quarter == "" {
			return ""
		}
		return lake.PartitionKey(year + "-Q" + quarter)
	default:
		return ""
	}
}

// Worklist orders the entities to fetch: the regular universe minus
// exclusions, sorted, with the always-include set appended last so bulk
// entities go out before the handful of index rows.
func (s AssetSpec) Worklist(universe []string, exclude map[string]bool) []string {
	always := map[string]bool{}
	for _, e := range s.AlwaysInclude {
		always[e] = true
	}

	var regular, pinned []string
	seen := map[string]bool{}
	for _, e := range append(append([]string{}, universe...), s.AlwaysInclude...) {
		if seen[e] {
			continue
		}
		seen[e] = true
		if always[e] {
			if !exclude[e] {
				pinned = append(pinned, e)
			}
			continue
		}
		if !exclude[e] {
			regular = append(regular, e)
		}
	}
	sort.Strings(regular)
	sort.Strings(pinned)
	return append(regular, pinned...)
}
