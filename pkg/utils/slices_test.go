package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedup(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Dedup([]string{"a", "b", "a", "c", "b"}))
	assert.Empty(t, Dedup(nil))
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name string
		in   []int
		n    int
		want [][]int
	}{
		{name: "even split", in: []int{1, 2, 3, 4}, n: 2, want: [][]int{{1, 2}, {3, 4}}},
		{name: "uneven split", in: []int{1, 2, 3, 4, 5}, n: 2, want: [][]int{{1, 2, 3}, {4, 5}}},
		{name: "more chunks than items", in: []int{1, 2}, n: 5, want: [][]int{{1}, {2}}},
		{name: "single chunk", in: []int{1, 2, 3}, n: 1, want: [][]int{{1, 2, 3}}},
		{name: "empty input", in: nil, n: 3, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Chunk(tt.in, tt.n))
		})
	}
}
