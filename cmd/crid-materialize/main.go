package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/Nikonomics/PostAcutePulse-sub015/internal/scoring"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env.local")

	var (
		dbURL       = flag.String("db", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")
		weightsPath = flag.String("weights", "", "path to a weights YAML file (default: built-in)")
		window      = flag.Int("volatility-window", 3, "months of rolling stddev (3 or 4)")
		validate    = flag.Bool("validate", false, "print validation queries after materializing")
	)
	flag.Parse()

	if *dbURL == "" {
		log.Fatal("DATABASE_URL or -db is required")
	}

	weights, err := scoring.LoadWeights(*weightsPath)
	if err != nil {
		log.Fatalf("Failed to load weights: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, *dbURL)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer pool.Close()

	rows, err := scoring.MaterializeCRID(ctx, pool, weights.CRID, *window)
	if err != nil {
		log.Fatalf("CRID materialization failed: %v", err)
	}
	scoring.PrintCRIDSummary(os.Stdout, rows)
	fmt.Printf("\nWindow: %d months\n", *window)

	if *validate {
		printValidation(ctx, pool, rows)
	}
}

// printValidation runs the post-materialization sanity checks: row coverage
// per extract, CRID and flag distributions, completeness, and why CRID
// is NULL where it is.
func printValidation(ctx context.Context, pool *pgxpool.Pool, materialized []scoring.CRIDRow) {
	fmt.Println("\n[1] ROWS PER EXTRACT:")
	rows, err := pool.Query(ctx, `
		SELECT extract_id, COUNT(*),
		       COUNT(*) FILTER (WHERE crid_value IS NOT NULL)
		FROM metrics.crid_monthly
		GROUP BY extract_id
		ORDER BY extract_id`)
	if err != nil {
		log.Printf("validation query failed: %v", err)
		return
	}
	defer rows.Close()
	for rows.Next() {
		var extract string
		var total, valid int
		if err := rows.Scan(&extract, &total, &valid); err != nil {
			log.Printf("scan failed: %v", err)
			return
		}
		fmt.Printf("  %s: %d rows, %d with CRID\n", extract, total, valid)
	}

	fmt.Println("\n[2] CRID DISTRIBUTION:")
	var mean, stddev, minV, maxV *float64
	err = pool.QueryRow(ctx, `
		SELECT AVG(crid_value), STDDEV_POP(crid_value),
		       MIN(crid_value), MAX(crid_value)
		FROM metrics.crid_monthly
		WHERE crid_value IS NOT NULL`).Scan(&mean, &stddev, &minV, &maxV)
	if err != nil {
		log.Printf("validation query failed: %v", err)
		return
	}
	if mean != nil {
		fmt.Printf("  mean %.4f, stddev %.4f, min %.4f, max %.4f\n", *mean, *stddev, *minV, *maxV)
	} else {
		fmt.Println("  no valid CRID values")
	}

	fmt.Println("\n[3] TOP 10 BY CRID:")
	topRows, err := pool.Query(ctx, `
		SELECT ccn, extract_id, state, crid_value
		FROM metrics.crid_monthly
		WHERE crid_value IS NOT NULL
		ORDER BY crid_value DESC
		LIMIT 10`)
	if err != nil {
		log.Printf("validation query failed: %v", err)
		return
	}
	defer topRows.Close()
	for topRows.Next() {
		var ccn, extract, state string
		var crid float64
		if err := topRows.Scan(&ccn, &extract, &state, &crid); err != nil {
			log.Printf("scan failed: %v", err)
			return
		}
		fmt.Printf("  %s  %s  %s  %+.3f\n", ccn, extract, state, crid)
	}

	fmt.Println("\n[4] FLAG DISTRIBUTION:")
	flagRows, err := pool.Query(ctx, `
		SELECT unnest(flags) AS flag, COUNT(*)
		FROM metrics.crid_monthly
		WHERE flags IS NOT NULL AND array_length(flags, 1) > 0
		GROUP BY unnest(flags)
		ORDER BY 2 DESC`)
	if err != nil {
		log.Printf("validation query failed: %v", err)
		return
	}
	defer flagRows.Close()
	any := false
	for flagRows.Next() {
		var flag string
		var count int
		if err := flagRows.Scan(&flag, &count); err != nil {
			log.Printf("scan failed: %v", err)
			return
		}
		fmt.Printf("  %s: %d\n", flag, count)
		any = true
	}
	if !any {
		fmt.Println("  no flags assigned")
	}

	fmt.Println("\n[5] COMPLETENESS DISTRIBUTION:")
	comp := scoring.CompletenessDistribution(materialized)
	for _, bucket := range scoring.CompletenessBuckets {
		if n, ok := comp[bucket]; ok {
			fmt.Printf("  %s: %d (%.1f%%)\n", bucket, n, float64(n)/float64(len(materialized))*100)
		}
	}

	fmt.Println("\n[6] NULL CRID REASONS:")
	reasons := scoring.CRIDNullReasons(materialized)
	if len(reasons) == 0 {
		fmt.Println("  none")
		return
	}
	names := make([]string, 0, len(reasons))
	for name := range reasons {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if reasons[names[i]] != reasons[names[j]] {
			return reasons[names[i]] > reasons[names[j]]
		}
		return names[i] < names[j]
	})
	for _, name := range names {
		fmt.Printf("  %s: %d\n", name, reasons[name])
	}
}
