package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MinFactorCoverage is the minimum share of a vertical's total factor weight
// that must have data before a market gets a score. Markets below it are
// skipped rather than scored on a sliver of inputs.
const MinFactorCoverage = 0.5

// MetricRow is one market's raw inputs for a vertical.
type MetricRow struct {
	CBSACode string
	CBSAName string
	State    string
	Values   map[string]*float64 // factor name -> value, nil when missing
}

// MarketScore is one computed result row prior to persistence.
type MarketScore struct {
	CBSACode     string
	CBSAName     string
	State        string
	Score        float64
	Grade        string
	NationalRank int
	StateRank    int
	Factors      map[string]float64 // factor name -> percentile used
}

// RebuildResult summarizes one vertical's rebuild.
type RebuildResult struct {
	Vertical string        `json:"vertical"`
	Markets  int           `json:"markets"`
	Scored   int           `json:"scored"`
	Skipped  int           `json:"skipped"`
	Elapsed  time.Duration `json:"elapsed_ns"`
}

// Rebuild recomputes opportunity scores for one vertical from
// market.market_metrics and upserts them into market.opportunity_scores.
func Rebuild(ctx context.Context, pool *pgxpool.Pool, weights Weights, vertical string) (RebuildResult, error) {
	start := time.Now()

	v, ok := weights.Verticals[vertical]
	if !ok {
		return RebuildResult{}, fmt.Errorf("no weights defined for vertical %q", vertical)
	}

	rows, err := LoadMetricRows(ctx, pool, vertical)
	if err != nil {
		return RebuildResult{}, fmt.Errorf("load metrics for %s: %w", vertical, err)
	}

	scores := Compute(rows, v)

	if err := upsertScores(ctx, pool, vertical, scores); err != nil {
		return RebuildResult{}, fmt.Errorf("persist scores for %s: %w", vertical, err)
	}

	return RebuildResult{
		Vertical: vertical,
		Markets:  len(rows),
		Scored:   len(scores),
		Skipped:  len(rows) - len(scores),
		Elapsed:  time.Since(start),
	}, nil
}

// Compute turns raw metric rows into ranked market scores. Pure; no DB.
func Compute(rows []MetricRow, v Vertical) []MarketScore {
	if len(rows) == 0 {
		return nil
	}

	// Percentile-rank each factor across the markets that have it.
	// pcts[factor][cbsa] = percentile in [0,100], direction-adjusted.
	pcts := make(map[string]map[string]float64, len(v.Factors))
	for _, f := range v.Factors {
		var vals []float64
		var codes []string
		for _, row := range rows {
			if p := row.Values[f.Name]; p != nil {
				vals = append(vals, *p)
				codes = append(codes, row.CBSACode)
			}
		}
		ranks := PercentileRanks(vals)
		byCBSA := make(map[string]float64, len(codes))
		for i, code := range codes {
			pct := ranks[i]
			if f.LowerIsBetter {
				pct = Invert(pct)
			}
			byCBSA[code] = pct
		}
		pcts[f.Name] = byCBSA
	}

	totalWeight := 0.0
	for _, f := range v.Factors {
		totalWeight += f.Weight
	}

	var scores []MarketScore
	for _, row := range rows {
		weightedSum := 0.0
		presentWeight := 0.0
		factors := make(map[string]float64)
		for _, f := range v.Factors {
			pct, ok := pcts[f.Name][row.CBSACode]
			if !ok {
				continue
			}
			weightedSum += f.Weight * pct
			presentWeight += f.Weight
			factors[f.Name] = math.Round(pct*100) / 100
		}

		if presentWeight/totalWeight < MinFactorCoverage {
			log.Printf("scoring: skipping %s (%s): only %.0f%% of factor weight has data",
				row.CBSACode, row.CBSAName, presentWeight/totalWeight*100)
			continue
		}

		score := weightedSum / presentWeight
		scores = append(scores, MarketScore{
			CBSACode: row.CBSACode,
			CBSAName: row.CBSAName,
			State:    row.State,
			Score:    math.Round(score*100) / 100,
			Grade:    Grade(score),
			Factors:  factors,
		})
	}

	rank(scores)
	return scores
}

// rank assigns national and per-state ranks by descending score. Equal
// scores share a rank (standard competition ranking).
func rank(scores []MarketScore) {
	sort.Slice(scores, func(a, b int) bool {
		if scores[a].Score != scores[b].Score {
			return scores[a].Score > scores[b].Score
		}
		return scores[a].CBSACode < scores[b].CBSACode
	})

	stateSeen := make(map[string]int)  // state -> markets seen
	stateRank := make(map[string]int)  // state -> last assigned rank
	statePrev := make(map[string]float64)

	for i := range scores {
		if i > 0 && scores[i].Score == scores[i-1].Score {
			scores[i].NationalRank = scores[i-1].NationalRank
		} else {
			scores[i].NationalRank = i + 1
		}

		st := scores[i].State
		stateSeen[st]++
		if r, ok := stateRank[st]; ok && scores[i].Score == statePrev[st] {
			scores[i].StateRank = r
		} else {
			scores[i].StateRank = stateSeen[st]
			stateRank[st] = stateSeen[st]
			statePrev[st] = scores[i].Score
		}
	}
}

// LoadMetricRows fetches one vertical's metric rows for scoring.
func LoadMetricRows(ctx context.Context, pool *pgxpool.Pool, vertical string) ([]MetricRow, error) {
	rows, err := pool.Query(ctx, `
		SELECT cbsa_code, cbsa_name, state,
		       facility_count::float8, total_beds::float8, beds_per_1k_senior,
		       agencies_per_10k, avg_star_rating, pct_low_star, avg_occupancy,
		       population_65plus::float8, pop_65_growth_pct, median_income,
		       ma_penetration_pct, rn_hourly_wage
		FROM market.market_metrics
		WHERE care_type = $1
		ORDER BY cbsa_code`, vertical)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MetricRow
	for rows.Next() {
		var (
			r                                      MetricRow
			facilityCount, totalBeds, bedsPer1k    *float64
			agenciesPer10k, avgStar, pctLowStar    *float64
			avgOcc, pop65, popGrowth, income       *float64
			maPen, rnWage                          *float64
		)
		if err := rows.Scan(&r.CBSACode, &r.CBSAName, &r.State,
			&facilityCount, &totalBeds, &bedsPer1k,
			&agenciesPer10k, &avgStar, &pctLowStar, &avgOcc,
			&pop65, &popGrowth, &income, &maPen, &rnWage); err != nil {
			return nil, err
		}
		r.Values = map[string]*float64{
			"facility_count":     facilityCount,
			"total_beds":         totalBeds,
			"beds_per_1k_senior": bedsPer1k,
			"agencies_per_10k":   agenciesPer10k,
			"avg_star_rating":    avgStar,
			"pct_low_star":       pctLowStar,
			"avg_occupancy":      avgOcc,
			"population_65plus":  pop65,
			"pop_65_growth_pct":  popGrowth,
			"median_income":      income,
			"ma_penetration_pct": maPen,
			"rn_hourly_wage":     rnWage,
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func upsertScores(ctx context.Context, pool *pgxpool.Pool, vertical string, scores []MarketScore) error {
	if len(scores) == 0 {
		return nil
	}

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, s := range scores {
		factorsJSON, err := json.Marshal(s.Factors)
		if err != nil {
			return fmt.Errorf("marshal factors for %s: %w", s.CBSACode, err)
		}
		batch.Queue(`
			INSERT INTO market.opportunity_scores
				(cbsa_code, cbsa_name, state, care_type, score, grade,
				 national_rank, state_rank, factors, computed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (cbsa_code, care_type) DO UPDATE SET
				cbsa_name = EXCLUDED.cbsa_name,
				state = EXCLUDED.state,
				score = EXCLUDED.score,
				grade = EXCLUDED.grade,
				national_rank = EXCLUDED.national_rank,
				state_rank = EXCLUDED.state_rank,
				factors = EXCLUDED.factors,
				computed_at = EXCLUDED.computed_at`,
			s.CBSACode, s.CBSAName, s.State, vertical, s.Score, s.Grade,
			s.NationalRank, s.StateRank, factorsJSON, now)
	}

	br := pool.SendBatch(ctx, batch)
	defer br.Close()
	for range scores {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
