package scoring

import (
	"math"
	"testing"
)

func TestPercentileRanks_Range(t *testing.T) {
	vals := []float64{3.2, -1, 0, 99, 42, 42, 7}
	ranks := PercentileRanks(vals)

	if len(ranks) != len(vals) {
		t.Fatalf("expected %d ranks, got %d", len(vals), len(ranks))
	}
	for i, r := range ranks {
		if r < 0 || r > 100 {
			t.Errorf("rank[%d] = %v, out of [0, 100]", i, r)
		}
	}
}

func TestPercentileRanks_Ordering(t *testing.T) {
	vals := []float64{10, 20, 30, 40, 50}
	ranks := PercentileRanks(vals)

	want := []float64{0, 25, 50, 75, 100}
	for i := range want {
		if math.Abs(ranks[i]-want[i]) > 1e-9 {
			t.Errorf("rank[%d] = %v, want %v", i, ranks[i], want[i])
		}
	}
}

// Percentile rank depends only on ordering, so squaring positive inputs must
// leave the ranks unchanged.
func TestPercentileRanks_MonotonicTransformInvariant(t *testing.T) {
	vals := []float64{1, 5, 2, 9, 3, 3, 7}
	squared := make([]float64, len(vals))
	for i, v := range vals {
		squared[i] = v * v
	}

	a := PercentileRanks(vals)
	b := PercentileRanks(squared)
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			t.Errorf("rank[%d] changed under monotonic transform: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestPercentileRanks_Ties(t *testing.T) {
	ranks := PercentileRanks([]float64{5, 5, 10})

	// The tied pair spans positions 0 and 1, averaging to 0.5 of 2 -> 25.
	if ranks[0] != ranks[1] {
		t.Errorf("tied values got different ranks: %v vs %v", ranks[0], ranks[1])
	}
	if math.Abs(ranks[0]-25) > 1e-9 {
		t.Errorf("tied rank = %v, want 25", ranks[0])
	}
	if math.Abs(ranks[2]-100) > 1e-9 {
		t.Errorf("max rank = %v, want 100", ranks[2])
	}
}

func TestPercentileRanks_Degenerate(t *testing.T) {
	if got := PercentileRanks(nil); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
	if got := PercentileRanks([]float64{7}); got[0] != 50 {
		t.Errorf("single value rank = %v, want 50", got[0])
	}

	// All equal: everyone sits at the middle.
	ranks := PercentileRanks([]float64{4, 4, 4, 4})
	for i, r := range ranks {
		if math.Abs(r-50) > 1e-9 {
			t.Errorf("all-equal rank[%d] = %v, want 50", i, r)
		}
	}
}

func TestGrade_Boundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{100, "A+"},
		{90, "A+"},
		{89.99, "A"},
		{80, "A"},
		{79.99, "B"},
		{65, "B"},
		{64.99, "C"},
		{50, "C"},
		{49.99, "D"},
		{35, "D"},
		{34.99, "F"},
		{0, "F"},
	}
	for _, c := range cases {
		if got := Grade(c.score); got != c.want {
			t.Errorf("Grade(%v) = %q, want %q", c.score, got, c.want)
		}
	}
}

// Grades must never improve as the score drops.
func TestGrade_Monotonic(t *testing.T) {
	order := map[string]int{"A+": 6, "A": 5, "B": 4, "C": 3, "D": 2, "F": 1}
	prev := 7
	for score := 100.0; score >= 0; score -= 0.25 {
		g := order[Grade(score)]
		if g > prev {
			t.Fatalf("grade improved as score dropped at %v", score)
		}
		prev = g
	}
}
