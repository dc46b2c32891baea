package scoring

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CRID (Clinical-Reporting Integrity Divergence) compares a facility's
// self-reported MDS quality composite against its claims-based utilization
// composite, both z-normalized within (state, extract). A facility that
// reports far better than its claims show earns a high positive CRID.

var (
	mdsMeasures    = []string{"410", "453", "407", "409"}
	claimsMeasures = []string{"551", "552"}
)

// FacilityMeasures is the pivoted measure set for one (CCN, extract).
type FacilityMeasures struct {
	CCN       string
	ExtractID string // YYYYMM
	AsOfDate  time.Time
	State     string

	Values     map[string]*float64 // measure code -> score, nil when absent
	Suppressed map[string]bool     // measure code -> footnote suppression
}

// CRIDRow is one computed output row for metrics.crid_monthly.
type CRIDRow struct {
	CCN       string
	ExtractID string
	AsOfDate  time.Time
	State     string

	MDSComposite      *float64
	ClaimsUtilization *float64
	MDSZScore         *float64
	ClaimsZScore      *float64
	CRIDValue         *float64
	CRIDVolatility    *float64

	CompletenessPct    float64
	MeasuresPresent    int
	MeasuresSuppressed int
	Flags              []string

	MeasureScores map[string]*float64

	StateFacilityCount *int
	StateMDSMean       *float64
	StateMDSStddev     *float64
	StateClaimsMean    *float64
	StateClaimsStddev  *float64
}

type stateStats struct {
	count        int
	mdsMean      float64
	mdsStddev    float64
	claimsMean   float64
	claimsStddev float64
}

// ComputeCRID runs the full CRID computation over pivoted facility rows.
// volatilityWindow must be 3 or 4 (months of rolling stddev).
func ComputeCRID(facilities []FacilityMeasures, w CRIDWeights, volatilityWindow int) ([]CRIDRow, error) {
	if volatilityWindow != 3 && volatilityWindow != 4 {
		return nil, fmt.Errorf("volatility window must be 3 or 4, got %d", volatilityWindow)
	}

	rows := make([]CRIDRow, 0, len(facilities))
	for _, f := range facilities {
		rows = append(rows, baseRow(f, w))
	}

	// State-level stats from complete facilities, per (state, extract).
	stats := make(map[[2]string]*stateStats)
	group := make(map[[2]string][]int) // (state, extract) -> row indexes
	for i, r := range rows {
		key := [2]string{r.State, r.ExtractID}
		group[key] = append(group[key], i)
	}
	for key, idxs := range group {
		var mds, claims []float64
		for _, i := range idxs {
			if rows[i].MDSComposite != nil && rows[i].ClaimsUtilization != nil {
				mds = append(mds, *rows[i].MDSComposite)
				claims = append(claims, *rows[i].ClaimsUtilization)
			}
		}
		if len(mds) == 0 {
			continue
		}
		stats[key] = &stateStats{
			count:        len(mds),
			mdsMean:      mean(mds),
			mdsStddev:    stddevPop(mds),
			claimsMean:   mean(claims),
			claimsStddev: stddevPop(claims),
		}
	}

	// Z-scores and CRID. Small states (< 10 complete facilities) get no
	// z-scores; there is no national fallback.
	for i := range rows {
		r := &rows[i]
		s := stats[[2]string{r.State, r.ExtractID}]
		if s == nil {
			continue
		}
		count := s.count
		r.StateFacilityCount = &count
		r.StateMDSMean = ptr(s.mdsMean)
		r.StateMDSStddev = ptr(s.mdsStddev)
		r.StateClaimsMean = ptr(s.claimsMean)
		r.StateClaimsStddev = ptr(s.claimsStddev)

		complete := r.MDSComposite != nil && r.ClaimsUtilization != nil
		if complete && s.count >= 10 && s.mdsStddev > 0 {
			r.MDSZScore = ptr((*r.MDSComposite - s.mdsMean) / s.mdsStddev)
		}
		if complete && s.count >= 10 && s.claimsStddev > 0 {
			r.ClaimsZScore = ptr((*r.ClaimsUtilization - s.claimsMean) / s.claimsStddev)
		}
		if r.MDSZScore != nil && r.ClaimsZScore != nil {
			r.CRIDValue = ptr(*r.MDSZScore - *r.ClaimsZScore)
		}
	}

	applyVolatility(rows, volatilityWindow)

	for i := range rows {
		r := &rows[i]
		s := stats[[2]string{r.State, r.ExtractID}]
		smallState := s == nil || s.count < 10
		r.Flags = buildFlags(r, smallState)
	}

	return rows, nil
}

func baseRow(f FacilityMeasures, w CRIDWeights) CRIDRow {
	r := CRIDRow{
		CCN:           f.CCN,
		ExtractID:     f.ExtractID,
		AsOfDate:      f.AsOfDate,
		State:         f.State,
		MeasureScores: make(map[string]*float64, 6),
	}

	all := append(append([]string{}, mdsMeasures...), claimsMeasures...)
	complete := true
	for _, code := range all {
		v := f.Values[code]
		present := v != nil && !f.Suppressed[code]
		if present {
			r.MeasuresPresent++
			r.MeasureScores[code] = v
		} else {
			complete = false
			r.MeasureScores[code] = nil
		}
		if f.Suppressed[code] {
			r.MeasuresSuppressed++
		}
	}
	r.CompletenessPct = math.Round(float64(r.MeasuresPresent)*100.0/6.0*100) / 100

	// Composites only for complete facilities. No renormalization of
	// weights over partial measure sets.
	if complete {
		mds, claims := 0.0, 0.0
		for _, code := range mdsMeasures {
			mds += w.MDS[code] * *f.Values[code]
		}
		for _, code := range claimsMeasures {
			claims += w.Claims[code] * *f.Values[code]
		}
		r.MDSComposite = &mds
		r.ClaimsUtilization = &claims
	}
	return r
}

// applyVolatility computes a rolling population stddev of CRID per facility,
// ordered by extract, over the trailing window of rows. Rows without a valid
// CRID still occupy a window slot but contribute no value.
func applyVolatility(rows []CRIDRow, window int) {
	byCCN := make(map[string][]int)
	for i, r := range rows {
		byCCN[r.CCN] = append(byCCN[r.CCN], i)
	}
	for _, idxs := range byCCN {
		sort.Slice(idxs, func(a, b int) bool {
			return rows[idxs[a]].ExtractID < rows[idxs[b]].ExtractID
		})
		for pos, i := range idxs {
			if rows[i].CRIDValue == nil {
				continue
			}
			lo := pos - (window - 1)
			if lo < 0 {
				lo = 0
			}
			var vals []float64
			for _, j := range idxs[lo : pos+1] {
				if rows[j].CRIDValue != nil {
					vals = append(vals, *rows[j].CRIDValue)
				}
			}
			rows[i].CRIDVolatility = ptr(stddevPop(vals))
		}
	}
}

func buildFlags(r *CRIDRow, smallState bool) []string {
	var flags []string
	if r.MeasuresPresent < 6 {
		flags = append(flags, "INCOMPLETE_MEASURES")
	}
	if smallState {
		flags = append(flags, "SMALL_STATE")
	}
	if r.CRIDValue != nil {
		v := *r.CRIDValue
		if v > 2 {
			flags = append(flags, "HIGH_POSITIVE_CRID")
		}
		if v < -2 {
			flags = append(flags, "HIGH_NEGATIVE_CRID")
		}
		if v > 3 {
			flags = append(flags, "EXTREME_POSITIVE_CRID")
		}
		if v < -3 {
			flags = append(flags, "EXTREME_NEGATIVE_CRID")
		}
	}
	if r.CRIDVolatility != nil && *r.CRIDVolatility > 1.5 {
		flags = append(flags, "HIGH_VOLATILITY")
	}
	if r.MDSZScore != nil && r.ClaimsZScore != nil {
		if math.Abs(*r.MDSZScore) > 2 && math.Abs(*r.ClaimsZScore) < 1 {
			flags = append(flags, "MDS_OUTLIER")
		}
		if math.Abs(*r.ClaimsZScore) > 2 && math.Abs(*r.MDSZScore) < 1 {
			flags = append(flags, "CLAIMS_OUTLIER")
		}
	}
	return flags
}

const cridTableDDL = `
CREATE SCHEMA IF NOT EXISTS metrics;

DROP TABLE IF EXISTS metrics.crid_monthly CASCADE;

CREATE TABLE metrics.crid_monthly (
	id SERIAL PRIMARY KEY,
	ccn VARCHAR(6) NOT NULL,
	extract_id VARCHAR(6) NOT NULL,
	as_of_date DATE NOT NULL,
	state VARCHAR(2) NOT NULL,

	mds_composite NUMERIC(12,6),
	claims_utilization NUMERIC(12,6),
	mds_z_score NUMERIC(12,6),
	claims_z_score NUMERIC(12,6),
	crid_value NUMERIC(12,6),
	crid_volatility NUMERIC(12,6),

	completeness_pct NUMERIC(5,2),
	measures_present INTEGER,
	measures_suppressed INTEGER,
	flags TEXT[],

	measure_410_score NUMERIC(12,6),
	measure_453_score NUMERIC(12,6),
	measure_407_score NUMERIC(12,6),
	measure_409_score NUMERIC(12,6),
	measure_551_score NUMERIC(12,6),
	measure_552_score NUMERIC(12,6),

	state_facility_count INTEGER,
	state_mds_mean NUMERIC(12,6),
	state_mds_stddev NUMERIC(12,6),
	state_claims_mean NUMERIC(12,6),
	state_claims_stddev NUMERIC(12,6),

	created_at TIMESTAMP DEFAULT NOW(),

	CONSTRAINT crid_monthly_unique UNIQUE (ccn, extract_id)
);

CREATE INDEX idx_crid_ccn ON metrics.crid_monthly(ccn);
CREATE INDEX idx_crid_extract ON metrics.crid_monthly(extract_id);
CREATE INDEX idx_crid_state_extract ON metrics.crid_monthly(state, extract_id);
CREATE INDEX idx_crid_flags ON metrics.crid_monthly USING GIN(flags);
CREATE INDEX idx_crid_high_value ON metrics.crid_monthly(crid_value DESC) WHERE crid_value > 2;
CREATE INDEX idx_crid_low_value ON metrics.crid_monthly(crid_value ASC) WHERE crid_value < -2;
CREATE INDEX idx_crid_volatility ON metrics.crid_monthly(crid_volatility DESC NULLS LAST);
CREATE INDEX idx_crid_completeness ON metrics.crid_monthly(completeness_pct);
`

// MaterializeCRID rebuilds metrics.crid_monthly from the gold quality tables.
// The table is dropped and recreated; CRID is cheap to recompute and the
// drop avoids stale rows from facilities that left the data.
func MaterializeCRID(ctx context.Context, pool *pgxpool.Pool, w CRIDWeights, volatilityWindow int) ([]CRIDRow, error) {
	facilities, err := loadFacilityMeasures(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("load gold measures: %w", err)
	}
	log.Printf("crid: loaded %d facility-extract rows", len(facilities))

	rows, err := ComputeCRID(facilities, w, volatilityWindow)
	if err != nil {
		return nil, err
	}

	if _, err := pool.Exec(ctx, cridTableDDL); err != nil {
		return nil, fmt.Errorf("create crid table: %w", err)
	}

	if err := insertCRIDRows(ctx, pool, rows); err != nil {
		return nil, fmt.Errorf("insert crid rows: %w", err)
	}
	return rows, nil
}

func loadFacilityMeasures(ctx context.Context, pool *pgxpool.Pool) ([]FacilityMeasures, error) {
	type key struct{ ccn, extract string }
	byKey := make(map[key]*FacilityMeasures)

	get := func(ccn, extract, state string, asOf time.Time) *FacilityMeasures {
		k := key{ccn, extract}
		f, ok := byKey[k]
		if !ok {
			f = &FacilityMeasures{
				CCN:        ccn,
				ExtractID:  extract,
				AsOfDate:   asOf,
				State:      state,
				Values:     make(map[string]*float64, 6),
				Suppressed: make(map[string]bool, 6),
			}
			byKey[k] = f
		}
		return f
	}

	mdsRows, err := pool.Query(ctx, `
		SELECT ccn, extract_id, as_of_date, state, measure_code,
		       four_quarter_avg, has_suppression
		FROM gold.nh_quality_mds
		WHERE measure_code = ANY($1)`, mdsMeasures)
	if err != nil {
		return nil, err
	}
	defer mdsRows.Close()
	for mdsRows.Next() {
		var (
			ccn, extract, state, code string
			asOf                      time.Time
			score                     *float64
			suppressed                bool
		)
		if err := mdsRows.Scan(&ccn, &extract, &asOf, &state, &code, &score, &suppressed); err != nil {
			return nil, err
		}
		f := get(ccn, extract, state, asOf)
		f.Values[code] = score
		if suppressed {
			f.Suppressed[code] = true
		}
	}
	if err := mdsRows.Err(); err != nil {
		return nil, err
	}

	claimsRows, err := pool.Query(ctx, `
		SELECT c.ccn, c.extract_id, c.measure_code, c.adjusted_score, c.has_suppression
		FROM gold.nh_quality_claims c
		WHERE c.measure_code = ANY($1)`, claimsMeasures)
	if err != nil {
		return nil, err
	}
	defer claimsRows.Close()
	for claimsRows.Next() {
		var (
			ccn, extract, code string
			score              *float64
			suppressed         bool
		)
		if err := claimsRows.Scan(&ccn, &extract, &code, &score, &suppressed); err != nil {
			return nil, err
		}
		// Claims rows attach only to facilities seen in MDS data; a
		// claims-only facility has no state or as-of context.
		if f, ok := byKey[key{ccn, extract}]; ok {
			f.Values[code] = score
			if suppressed {
				f.Suppressed[code] = true
			}
		}
	}
	if err := claimsRows.Err(); err != nil {
		return nil, err
	}

	out := make([]FacilityMeasures, 0, len(byKey))
	for _, f := range byKey {
		out = append(out, *f)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CCN != out[b].CCN {
			return out[a].CCN < out[b].CCN
		}
		return out[a].ExtractID < out[b].ExtractID
	})
	return out, nil
}

func insertCRIDRows(ctx context.Context, pool *pgxpool.Pool, rows []CRIDRow) error {
	const insertSQL = `
		INSERT INTO metrics.crid_monthly (
			ccn, extract_id, as_of_date, state,
			mds_composite, claims_utilization, mds_z_score, claims_z_score,
			crid_value, crid_volatility,
			completeness_pct, measures_present, measures_suppressed, flags,
			measure_410_score, measure_453_score, measure_407_score,
			measure_409_score, measure_551_score, measure_552_score,
			state_facility_count, state_mds_mean, state_mds_stddev,
			state_claims_mean, state_claims_stddev
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,
		          $15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)`

	const chunkSize = 500
	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := &pgx.Batch{}
		for _, r := range rows[start:end] {
			batch.Queue(insertSQL,
				r.CCN, r.ExtractID, r.AsOfDate, r.State,
				r.MDSComposite, r.ClaimsUtilization, r.MDSZScore, r.ClaimsZScore,
				r.CRIDValue, r.CRIDVolatility,
				r.CompletenessPct, r.MeasuresPresent, r.MeasuresSuppressed, r.Flags,
				r.MeasureScores["410"], r.MeasureScores["453"], r.MeasureScores["407"],
				r.MeasureScores["409"], r.MeasureScores["551"], r.MeasureScores["552"],
				r.StateFacilityCount, r.StateMDSMean, r.StateMDSStddev,
				r.StateClaimsMean, r.StateClaimsStddev)
		}
		br := pool.SendBatch(ctx, batch)
		var execErr error
		for i := start; i < end; i++ {
			if _, err := br.Exec(); err != nil && execErr == nil {
				execErr = err
			}
		}
		br.Close()
		if execErr != nil {
			return execErr
		}
	}
	return nil
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func stddevPop(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	m := mean(vals)
	ss := 0.0
	for _, v := range vals {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)))
}

func ptr(v float64) *float64 { return &v }
