package ingest

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// suppressionCodes are the CMS footnotes that mean a score was withheld.
const suppressionCodes = "('9','10','11','12','13','14','15')"

// SetupSchema creates the staging and gold schemas and tables.
func SetupSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("schema setup: %w", err)
	}
	return nil
}

// AcquireAdvisoryLock takes a session advisory lock on a single pinned
// connection. Session locks belong to one Postgres backend, so the lock
// and unlock must run on the same connection; going through the pool
// could unlock on a different backend and leave the real lock held.
// The returned release func unlocks and returns the connection.
func AcquireAdvisoryLock(ctx context.Context, db *sql.DB, key int64) (func() error, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("pin connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", key); err != nil {
		conn.Close()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}
	release := func() error {
		defer conn.Close()
		if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", key); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}
	return release, nil
}

const upsertMDSSQL = `
	INSERT INTO staging.nh_quality_mds_raw (
		extract_id, as_of_date, source_file, ccn, provider_name,
		provider_address, city, state, zip_code, measure_code,
		measure_description, resident_type, q1_score, q1_footnote,
		q2_score, q2_footnote, q3_score, q3_footnote, q4_score,
		q4_footnote, four_quarter_avg, four_quarter_footnote,
		used_in_star_rating, measure_period, location, processing_date
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,
	          $17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
	ON CONFLICT (extract_id, ccn, measure_code) DO UPDATE SET
		as_of_date = EXCLUDED.as_of_date,
		source_file = EXCLUDED.source_file,
		provider_name = EXCLUDED.provider_name,
		provider_address = EXCLUDED.provider_address,
		city = EXCLUDED.city,
		state = EXCLUDED.state,
		zip_code = EXCLUDED.zip_code,
		measure_description = EXCLUDED.measure_description,
		resident_type = EXCLUDED.resident_type,
		q1_score = EXCLUDED.q1_score,
		q1_footnote = EXCLUDED.q1_footnote,
		q2_score = EXCLUDED.q2_score,
		q2_footnote = EXCLUDED.q2_footnote,
		q3_score = EXCLUDED.q3_score,
		q3_footnote = EXCLUDED.q3_footnote,
		q4_score = EXCLUDED.q4_score,
		q4_footnote = EXCLUDED.q4_footnote,
		four_quarter_avg = EXCLUDED.four_quarter_avg,
		four_quarter_footnote = EXCLUDED.four_quarter_footnote,
		used_in_star_rating = EXCLUDED.used_in_star_rating,
		measure_period = EXCLUDED.measure_period,
		location = EXCLUDED.location,
		processing_date = EXCLUDED.processing_date,
		loaded_at = NOW()`

// UpsertMDS writes MDS staging rows in one transaction.
func UpsertMDS(ctx context.Context, db *sql.DB, rows []MDSRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertMDSSQL)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			r.ExtractID, r.AsOfDate, r.SourceFile, r.CCN, nullStr(r.ProviderName),
			nullStr(r.ProviderAddress), nullStr(r.City), nullStr(r.State),
			nullStr(r.ZipCode), r.MeasureCode, nullStr(r.MeasureDescription),
			nullStr(r.ResidentType), r.Q1Score, nullStr(r.Q1Footnote),
			r.Q2Score, nullStr(r.Q2Footnote), r.Q3Score, nullStr(r.Q3Footnote),
			r.Q4Score, nullStr(r.Q4Footnote), r.FourQuarterAvg,
			nullStr(r.FourQuarterFootnote), nullStr(r.UsedInStarRating),
			nullStr(r.MeasurePeriod), nullStr(r.Location), r.ProcessingDate)
		if err != nil {
			return 0, fmt.Errorf("upsert mds %s/%s/%s: %w", r.ExtractID, r.CCN, r.MeasureCode, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

const upsertClaimsSQL = `
	INSERT INTO staging.nh_quality_claims_raw (
		extract_id, as_of_date, source_file, ccn, provider_name,
		provider_address, city, state, zip_code, measure_code,
		measure_description, resident_type, adjusted_score,
		observed_score, expected_score, footnote, used_in_star_rating,
		measure_period, location, processing_date
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,
	          $17,$18,$19,$20)
	ON CONFLICT (extract_id, ccn, measure_code) DO UPDATE SET
		as_of_date = EXCLUDED.as_of_date,
		source_file = EXCLUDED.source_file,
		provider_name = EXCLUDED.provider_name,
		provider_address = EXCLUDED.provider_address,
		city = EXCLUDED.city,
		state = EXCLUDED.state,
		zip_code = EXCLUDED.zip_code,
		measure_description = EXCLUDED.measure_description,
		resident_type = EXCLUDED.resident_type,
		adjusted_score = EXCLUDED.adjusted_score,
		observed_score = EXCLUDED.observed_score,
		expected_score = EXCLUDED.expected_score,
		footnote = EXCLUDED.footnote,
		used_in_star_rating = EXCLUDED.used_in_star_rating,
		measure_period = EXCLUDED.measure_period,
		location = EXCLUDED.location,
		processing_date = EXCLUDED.processing_date,
		loaded_at = NOW()`

// UpsertClaims writes claims staging rows in one transaction.
func UpsertClaims(ctx context.Context, db *sql.DB, rows []ClaimsRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertClaimsSQL)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			r.ExtractID, r.AsOfDate, r.SourceFile, r.CCN, nullStr(r.ProviderName),
			nullStr(r.ProviderAddress), nullStr(r.City), nullStr(r.State),
			nullStr(r.ZipCode), r.MeasureCode, nullStr(r.MeasureDescription),
			nullStr(r.ResidentType), r.AdjustedScore, r.ObservedScore,
			r.ExpectedScore, nullStr(r.Footnote), nullStr(r.UsedInStarRating),
			nullStr(r.MeasurePeriod), nullStr(r.Location), r.ProcessingDate)
		if err != nil {
			return 0, fmt.Errorf("upsert claims %s/%s/%s: %w", r.ExtractID, r.CCN, r.MeasureCode, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// TransformToGold promotes staging rows into the gold tables, collapsing
// footnotes into JSONB, deriving suppression, and normalizing resident type.
func TransformToGold(ctx context.Context, db *sql.DB) (int64, int64, error) {
	mdsRes, err := db.ExecContext(ctx, `
		INSERT INTO gold.nh_quality_mds (
			ccn, extract_id, as_of_date, measure_code, measure_description,
			resident_type, q1_score, q2_score, q3_score, q4_score,
			four_quarter_avg, footnotes, has_suppression, used_in_star_rating,
			measure_period, processing_date, state
		)
		SELECT
			ccn, extract_id, as_of_date, measure_code, measure_description,
			CASE
				WHEN LOWER(resident_type) LIKE '%long%' THEN 'long_stay'
				WHEN LOWER(resident_type) LIKE '%short%' THEN 'short_stay'
				ELSE LOWER(REPLACE(COALESCE(resident_type, ''), ' ', '_'))
			END,
			q1_score, q2_score, q3_score, q4_score, four_quarter_avg,
			jsonb_build_object(
				'q1', q1_footnote, 'q2', q2_footnote, 'q3', q3_footnote,
				'q4', q4_footnote, 'avg', four_quarter_footnote
			),
			(
				COALESCE(q1_footnote, '') IN `+suppressionCodes+` OR
				COALESCE(q2_footnote, '') IN `+suppressionCodes+` OR
				COALESCE(q3_footnote, '') IN `+suppressionCodes+` OR
				COALESCE(q4_footnote, '') IN `+suppressionCodes+` OR
				COALESCE(four_quarter_footnote, '') IN `+suppressionCodes+`
			),
			used_in_star_rating = 'Y',
			measure_period, processing_date, LEFT(ccn, 2)
		FROM staging.nh_quality_mds_raw
		ON CONFLICT (extract_id, ccn, measure_code) DO UPDATE SET
			as_of_date = EXCLUDED.as_of_date,
			measure_description = EXCLUDED.measure_description,
			resident_type = EXCLUDED.resident_type,
			q1_score = EXCLUDED.q1_score,
			q2_score = EXCLUDED.q2_score,
			q3_score = EXCLUDED.q3_score,
			q4_score = EXCLUDED.q4_score,
			four_quarter_avg = EXCLUDED.four_quarter_avg,
			footnotes = EXCLUDED.footnotes,
			has_suppression = EXCLUDED.has_suppression,
			used_in_star_rating = EXCLUDED.used_in_star_rating,
			measure_period = EXCLUDED.measure_period,
			processing_date = EXCLUDED.processing_date,
			state = EXCLUDED.state`)
	if err != nil {
		return 0, 0, fmt.Errorf("transform mds: %w", err)
	}
	mdsCount, _ := mdsRes.RowsAffected()

	claimsRes, err := db.ExecContext(ctx, `
		INSERT INTO gold.nh_quality_claims (
			ccn, extract_id, as_of_date, measure_code, measure_description,
			resident_type, adjusted_score, observed_score, expected_score,
			footnote, has_suppression, used_in_star_rating, measure_period,
			processing_date, state
		)
		SELECT
			ccn, extract_id, as_of_date, measure_code, measure_description,
			CASE
				WHEN LOWER(resident_type) LIKE '%long%' THEN 'long_stay'
				WHEN LOWER(resident_type) LIKE '%short%' THEN 'short_stay'
				ELSE LOWER(REPLACE(COALESCE(resident_type, ''), ' ', '_'))
			END,
			adjusted_score, observed_score, expected_score, footnote,
			COALESCE(footnote, '') IN `+suppressionCodes+`,
			used_in_star_rating = 'Y',
			measure_period, processing_date, LEFT(ccn, 2)
		FROM staging.nh_quality_claims_raw
		ON CONFLICT (extract_id, ccn, measure_code) DO UPDATE SET
			as_of_date = EXCLUDED.as_of_date,
			measure_description = EXCLUDED.measure_description,
			resident_type = EXCLUDED.resident_type,
			adjusted_score = EXCLUDED.adjusted_score,
			observed_score = EXCLUDED.observed_score,
			expected_score = EXCLUDED.expected_score,
			footnote = EXCLUDED.footnote,
			has_suppression = EXCLUDED.has_suppression,
			used_in_star_rating = EXCLUDED.used_in_star_rating,
			measure_period = EXCLUDED.measure_period,
			processing_date = EXCLUDED.processing_date,
			state = EXCLUDED.state`)
	if err != nil {
		return 0, 0, fmt.Errorf("transform claims: %w", err)
	}
	claimsCount, _ := claimsRes.RowsAffected()

	return mdsCount, claimsCount, nil
}

// UpdateExtractMetadata refreshes gold.nh_quality_extracts from staging
// counts, one row per monthly extract.
func UpdateExtractMetadata(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO gold.nh_quality_extracts (
			extract_id, as_of_date, mds_row_count, claims_row_count,
			mds_facility_count, claims_facility_count, mds_source_file, claims_source_file
		)
		SELECT
			COALESCE(m.extract_id, c.extract_id),
			COALESCE(m.as_of_date, c.as_of_date),
			m.mds_count, c.claims_count,
			m.mds_facilities, c.claims_facilities,
			m.source_file, c.source_file
		FROM (
			SELECT extract_id, MIN(as_of_date) AS as_of_date,
			       COUNT(*) AS mds_count, COUNT(DISTINCT ccn) AS mds_facilities,
			       MIN(source_file) AS source_file
			FROM staging.nh_quality_mds_raw
			GROUP BY extract_id
		) m
		FULL OUTER JOIN (
			SELECT extract_id, MIN(as_of_date) AS as_of_date,
			       COUNT(*) AS claims_count, COUNT(DISTINCT ccn) AS claims_facilities,
			       MIN(source_file) AS source_file
			FROM staging.nh_quality_claims_raw
			GROUP BY extract_id
		) c ON m.extract_id = c.extract_id
		ON CONFLICT (extract_id) DO UPDATE SET
			as_of_date = EXCLUDED.as_of_date,
			mds_row_count = EXCLUDED.mds_row_count,
			claims_row_count = EXCLUDED.claims_row_count,
			mds_facility_count = EXCLUDED.mds_facility_count,
			claims_facility_count = EXCLUDED.claims_facility_count,
			mds_source_file = EXCLUDED.mds_source_file,
			claims_source_file = EXCLUDED.claims_source_file,
			updated_at = NOW()`)
	if err != nil {
		return fmt.Errorf("update extract metadata: %w", err)
	}
	return nil
}

// LogRunStart records a new ingest run and returns its log row ID.
func LogRunStart(ctx context.Context, db *sql.DB, runID string) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, `
		INSERT INTO gold.nh_ingest_log (run_id, started_at, status)
		VALUES ($1, NOW(), 'running')
		RETURNING id`, runID).Scan(&id)
	return id, err
}

// LogRunComplete finalizes an ingest run's log row.
func LogRunComplete(ctx context.Context, db *sql.DB, logID int64, filesProcessed int, mdsRows, claimsRows int, errs []string) error {
	status := "completed"
	if len(errs) > 0 {
		status = "completed_with_errors"
	}
	var errArr interface{}
	if len(errs) > 0 {
		errArr = pq.StringArray(errs)
	}
	_, err := db.ExecContext(ctx, `
		UPDATE gold.nh_ingest_log
		SET completed_at = NOW(), status = $1, files_processed = $2,
		    mds_rows_inserted = $3, claims_rows_inserted = $4, errors = $5
		WHERE id = $6`,
		status, filesProcessed, mdsRows, claimsRows, errArr, logID)
	return err
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
