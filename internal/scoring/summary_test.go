package scoring

import "testing"

func TestCompletenessDistribution(t *testing.T) {
	rows := []CRIDRow{
		{MeasuresPresent: 6},
		{MeasuresPresent: 6},
		{MeasuresPresent: 5},
		{MeasuresPresent: 4},
		{MeasuresPresent: 3},
		{MeasuresPresent: 0},
	}

	dist := CompletenessDistribution(rows)

	want := map[string]int{
		"100% (complete)":     2,
		"83-99% (5 measures)": 1,
		"67-82% (4 measures)": 1,
		"<67% (3 or fewer)":   2,
	}
	for bucket, n := range want {
		if dist[bucket] != n {
			t.Errorf("bucket %q = %d, want %d", bucket, dist[bucket], n)
		}
	}

	total := 0
	for _, bucket := range CompletenessBuckets {
		total += dist[bucket]
	}
	if total != len(rows) {
		t.Errorf("buckets cover %d rows, want %d", total, len(rows))
	}
}

func TestCRIDNullReasons(t *testing.T) {
	rows := []CRIDRow{
		// Has a CRID value: never counted, whatever its flags.
		{CRIDValue: f(1.2), Flags: []string{"HIGH_POSITIVE_CRID"}},
		{Flags: []string{"INCOMPLETE_MEASURES"}},
		{Flags: []string{"INCOMPLETE_MEASURES"}},
		{Flags: []string{"SMALL_STATE"}},
		{Flags: []string{"INCOMPLETE_MEASURES", "SMALL_STATE"}},
		// Complete, normal-sized state, still no CRID: a zero-variance
		// peer group.
		{Flags: nil},
	}

	reasons := CRIDNullReasons(rows)

	want := map[string]int{
		"Incomplete measures":            2,
		"Small state (<10 facilities)":   1,
		"Both: incomplete + small state": 1,
		"Other/Unknown":                  1,
	}
	if len(reasons) != len(want) {
		t.Fatalf("got %d reasons, want %d: %v", len(reasons), len(want), reasons)
	}
	for reason, n := range want {
		if reasons[reason] != n {
			t.Errorf("reason %q = %d, want %d", reason, reasons[reason], n)
		}
	}
}

func TestCRIDNullReasons_AllValued(t *testing.T) {
	rows := []CRIDRow{{CRIDValue: f(0.5)}, {CRIDValue: f(-0.5)}}
	if reasons := CRIDNullReasons(rows); len(reasons) != 0 {
		t.Errorf("expected no reasons for fully valued rows, got %v", reasons)
	}
}
