package lake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionKeyDate(t *testing.T) {
	d, err := PartitionKey("2024-03-08").Date()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), d)

	_, err = PartitionKey("2024-Q1").Date()
	assert.Error(t, err)
}

func TestPartitionKeyQuarter(t *testing.T) {
	year, quarter, err := PartitionKey("2024-Q1").Quarter()
	require.NoError(t, err)
	assert.Equal(t, 2024, year)
	assert.Equal(t, 1, quarter)

	_, _, err = PartitionKey("2024-Q5").Quarter()
	assert.Error(t, err)

	_, _, err = PartitionKey("2024-03-08").Quarter()
	assert.Error(t, err)
}

func TestPrevDay(t *testing.T) {
	prev, err := PartitionKey("2024-03-01").PrevDay()
	require.NoError(t, err)
	assert.Equal(t, PartitionKey("2024-02-29"), prev)
}

func TestPrevQuarter(t *testing.T) {
	prev, err := PartitionKey("2024-Q1").PrevQuarter()
	require.NoError(t, err)
	assert.Equal(t, PartitionKey("2023-Q4"), prev)

	prev, err = PartitionKey("2024-Q3").PrevQuarter()
	require.NoError(t, err)
	assert.Equal(t, PartitionKey("2024-Q2"), prev)
}

func TestRecentQuarters(t *testing.T) {
	// Mid Q1 2024: the running quarter is excluded.
	asOf := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t,
		[]PartitionKey{"2023-Q4", "2023-Q3", "2023-Q2", "2023-Q1"},
		RecentQuarters(asOf, 4))
}

func TestSortKeysOrdersDatesAndQuarters(t *testing.T) {
	keys := []PartitionKey{"2024-03-08", "2023-12-29", "2024-01-02"}
	assert.Equal(t,
		[]PartitionKey{"2023-12-29", "2024-01-02", "2024-03-08"},
		SortKeys(keys))

	quarters := []PartitionKey{"2024-Q1", "2023-Q4", "2023-Q2"}
	assert.Equal(t,
		[]PartitionKey{"2023-Q2", "2023-Q4", "2024-Q1"},
		SortKeys(quarters))
}
