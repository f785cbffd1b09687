package lake

import (
	"fmt"
	"sort"
	"time"
)

// DateLayout is the canonical calendar partition key layout.
const DateLayout = "2006-01-02"

// PartitionKey is the canonical string key of one partition: either an ISO
// calendar date ("2024-03-08") or a fiscal quarter ("2024-Q1"). Keys within
// one asset are totally ordered by their natural calendar/period order;
// for both forms the canonical string form sorts the same way, so plain
// string sorting is used throughout.
type PartitionKey string

// DateKey formats t as a calendar partition key.
func DateKey(t time.Time) PartitionKey {
	return PartitionKey(t.Format(DateLayout))
}

// QuarterKey formats a fiscal quarter partition key.
func QuarterKey(year, quarter int) PartitionKey {
	return PartitionKey(fmt.Sprintf("%d-Q%d", year, quarter))
}

// Date parses the key as a calendar date.
func (k PartitionKey) Date() (time.Time, error) {
	t, err := time.Parse(DateLayout, string(k))
	if err != nil {
		return time.Time{}, fmt.Errorf("partition key %q is not a calendar date: %w", k, err)
	}
	return t, nil
}

// Quarter parses the key as a fiscal quarter.
func (k PartitionKey) Quarter() (year, quarter int, err error) {
	if _, err = fmt.Sscanf(string(k), "%d-Q%d", &year, &quarter); err != nil {
		return 0, 0, fmt.Errorf("partition key %q is not a fiscal quarter: %w", k, err)
	}
	if quarter < 1 || quarter > 4 {
		return 0, 0, fmt.Errorf("partition key %q has quarter out of range", k)
	}
	return year, quarter, nil
}

// PrevDay returns the key one calendar day earlier. Only valid for
// calendar keys.
func (k PartitionKey) PrevDay() (PartitionKey, error) {
	t, err := k.Date()
	if err != nil {
		return "", err
	}
	return DateKey(t.AddDate(0, 0, -1)), nil
}

// PrevQuarter returns the key one fiscal quarter earlier.
func (k PartitionKey) PrevQuarter() (PartitionKey, error) {
	year, quarter, err := k.Quarter()
	if err != nil {
		return "", err
	}
	quarter--
	if quarter == 0 {
		quarter = 4
		year--
	}
	return QuarterKey(year, quarter), nil
}

// QuarterOf returns the fiscal quarter containing t.
func QuarterOf(t time.Time) (year, quarter int) {
	return t.Year(), (int(t.Month())-1)/3 + 1
}

// RecentQuarters enumerates the n most recent completed quarters strictly
// before the quarter containing asOf, newest first. It drives the static
// partition universe of quarterly report assets: reports for the running
// quarter are not published yet.
func RecentQuarters(asOf time.Time, n int) []PartitionKey {
	year, quarter := QuarterOf(asOf)
	keys := make([]PartitionKey, 0, n)
	for i := 0; i < n; i++ {
		quarter--
		if quarter == 0 {
			quarter = 4
			year--
		}
		keys = append(keys, QuarterKey(year, quarter))
	}
	return keys
}

// SortKeys sorts partition keys ascending in place and returns them.
func SortKeys(keys []PartitionKey) []PartitionKey {
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
