package scoring

import (
	"context"
	"io"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// PrintRebuildSummary writes a human-readable rebuild report with
// thousands-separated counts and the grade distribution per vertical.
func PrintRebuildSummary(w io.Writer, results []RebuildResult, dist map[string]map[string]int) {
	p := message.NewPrinter(language.AmericanEnglish)

	p.Fprintf(w, "\n=== OPPORTUNITY SCORE REBUILD ===\n")
	for _, res := range results {
		p.Fprintf(w, "\n%s: %d markets, %d scored, %d skipped (%.1fs)\n",
			res.Vertical, res.Markets, res.Scored, res.Skipped, res.Elapsed.Seconds())

		grades := dist[res.Vertical]
		if len(grades) == 0 {
			continue
		}
		order := []string{"A+", "A", "B", "C", "D", "F"}
		for _, g := range order {
			if n, ok := grades[g]; ok {
				p.Fprintf(w, "  %-2s %d\n", g, n)
			}
		}
	}
}

// TopMarkets returns the best-scoring markets for one vertical.
func TopMarkets(ctx context.Context, pool *pgxpool.Pool, vertical string, n int) ([]MarketScore, error) {
	rows, err := pool.Query(ctx, `
		SELECT cbsa_code, cbsa_name, state, score, grade, national_rank, state_rank
		FROM market.opportunity_scores
		WHERE care_type = $1
		ORDER BY national_rank ASC
		LIMIT $2`, vertical, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MarketScore
	for rows.Next() {
		var s MarketScore
		if err := rows.Scan(&s.CBSACode, &s.CBSAName, &s.State, &s.Score,
			&s.Grade, &s.NationalRank, &s.StateRank); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GradeDistribution tallies persisted grades per vertical.
func GradeDistribution(ctx context.Context, pool *pgxpool.Pool) (map[string]map[string]int, error) {
	rows, err := pool.Query(ctx, `
		SELECT care_type, grade, COUNT(*)
		FROM market.opportunity_scores
		GROUP BY care_type, grade`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]map[string]int)
	for rows.Next() {
		var careType, grade string
		var count int
		if err := rows.Scan(&careType, &grade, &count); err != nil {
			return nil, err
		}
		if out[careType] == nil {
			out[careType] = make(map[string]int)
		}
		out[careType][grade] = count
	}
	return out, rows.Err()
}

// CompletenessBuckets orders the completeness distribution from fully
// reported down to mostly missing.
var CompletenessBuckets = []string{
	"100% (complete)",
	"83-99% (5 measures)",
	"67-82% (4 measures)",
	"<67% (3 or fewer)",
}

// CompletenessDistribution buckets rows by how many of the six CRID
// measures were present and unsuppressed.
func CompletenessDistribution(rows []CRIDRow) map[string]int {
	out := make(map[string]int)
	for _, r := range rows {
		switch {
		case r.MeasuresPresent >= 6:
			out[CompletenessBuckets[0]]++
		case r.MeasuresPresent == 5:
			out[CompletenessBuckets[1]]++
		case r.MeasuresPresent == 4:
			out[CompletenessBuckets[2]]++
		default:
			out[CompletenessBuckets[3]]++
		}
	}
	return out
}

// CRIDNullReasons tallies why rows carry no CRID value: incomplete
// measures, a peer group under the 10-facility floor, both, or a
// degenerate peer group (zero variance) under Other/Unknown.
func CRIDNullReasons(rows []CRIDRow) map[string]int {
	out := make(map[string]int)
	for _, r := range rows {
		if r.CRIDValue != nil {
			continue
		}
		incomplete := containsFlag(r.Flags, "INCOMPLETE_MEASURES")
		small := containsFlag(r.Flags, "SMALL_STATE")
		switch {
		case incomplete && small:
			out["Both: incomplete + small state"]++
		case incomplete:
			out["Incomplete measures"]++
		case small:
			out["Small state (<10 facilities)"]++
		default:
			out["Other/Unknown"]++
		}
	}
	return out
}

func containsFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

// PrintCRIDSummary reports flag distribution and headline counts after a
// CRID materialization.
func PrintCRIDSummary(w io.Writer, rows []CRIDRow) {
	p := message.NewPrinter(language.AmericanEnglish)

	total := len(rows)
	valid := 0
	flagCounts := make(map[string]int)
	for _, r := range rows {
		if r.CRIDValue != nil {
			valid++
		}
		for _, f := range r.Flags {
			flagCounts[f]++
		}
	}

	p.Fprintf(w, "\n=== CRID MATERIALIZATION ===\n")
	p.Fprintf(w, "Rows written:   %d\n", total)
	p.Fprintf(w, "Valid CRID:     %d", valid)
	if total > 0 {
		p.Fprintf(w, " (%.1f%%)", float64(valid)/float64(total)*100)
	}
	p.Fprintf(w, "\n\nFlag distribution:\n")

	names := make([]string, 0, len(flagCounts))
	for name := range flagCounts {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		p.Fprintf(w, "  none\n")
		return
	}
	for _, name := range names {
		p.Fprintf(w, "  %-22s %d\n", name, flagCounts[name])
	}
}
