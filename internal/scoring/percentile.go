package scoring

import "sort"

// PercentileRanks maps each value to its percentile rank in [0, 100] within
// the slice. Ties receive the average of the ranks they span, so the result
// depends only on ordering: any monotonic transform of the inputs produces
// the same ranks. A single value ranks at 50.
func PercentileRanks(values []float64) []float64 {
	n := len(values)
	if n == 0 {
		return nil
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = 50
		return out
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		return values[idx[a]] < values[idx[b]]
	})

	// Walk runs of equal values, assigning the average rank across the run.
	i := 0
	for i < n {
		j := i
		for j+1 < n && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		avgRank := float64(i+j) / 2 // zero-based average position
		pct := avgRank / float64(n-1) * 100
		for k := i; k <= j; k++ {
			out[idx[k]] = pct
		}
		i = j + 1
	}
	return out
}

// Invert flips a percentile rank for factors where lower raw values are
// better (oversupply, low-star share, wages).
func Invert(pct float64) float64 {
	return 100 - pct
}
