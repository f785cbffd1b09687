package utils

// Dedup returns in with duplicates removed, first occurrence wins,
// original order preserved.
func Dedup(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, e := range in {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

// Chunk splits in into n contiguous shards of near-equal size. Shards differ
// in length by at most one; empty shards are omitted, so fewer than n shards
// come back when len(in) < n.
func Chunk[T any](in []T, n int) [][]T {
	if n <= 0 || len(in) == 0 {
		return nil
	}
	if n > len(in) {
		n = len(in)
	}
	out := make([][]T, 0, n)
	size := len(in) / n
	rem := len(in) % n
	start := 0
	for i := 0; i < n; i++ {
		end := start + size
		if i < rem {
			end++
		}
		out = append(out, in[start:end])
		start = end
	}
	return out
}
