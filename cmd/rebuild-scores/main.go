package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/Nikonomics/PostAcutePulse-sub015/internal/scoring"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env.local")

	var (
		dbURL       = flag.String("db", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")
		vertical    = flag.String("vertical", "all", "care vertical to rebuild: snf, alf, hha, or all")
		weightsPath = flag.String("weights", "", "path to a weights YAML file (default: built-in)")
		dryRun      = flag.Bool("dry-run", false, "compute and report but do not persist")
	)
	flag.Parse()

	if *dbURL == "" {
		log.Fatal("DATABASE_URL or -db is required")
	}

	verticals := []string{*vertical}
	if *vertical == "all" {
		verticals = []string{"snf", "alf", "hha"}
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

	if *dryRun {
		fmt.Println("Mode: DRY RUN (no database writes)")
		for _, v := range verticals {
			dryRunVertical(ctx, pool, weights, v)
		}
		return
	}

	var results []scoring.RebuildResult
	for _, v := range verticals {
		res, err := scoring.Rebuild(ctx, pool, weights, v)
		if err != nil {
			log.Fatalf("Rebuild failed for %s: %v", v, err)
		}
		results = append(results, res)
	}

	dist, err := scoring.GradeDistribution(ctx, pool)
	if err != nil {
		log.Printf("Warning: could not load grade distribution: %v", err)
	}
	scoring.PrintRebuildSummary(os.Stdout, results, dist)

	for _, v := range verticals {
		top, err := scoring.TopMarkets(ctx, pool, v, 10)
		if err != nil {
			log.Printf("Warning: could not load top markets for %s: %v", v, err)
			continue
		}
		fmt.Printf("\nTop %s markets:\n", v)
		for _, s := range top {
			fmt.Printf("  %2d. [%s] %-45s %s  %6.2f\n",
				s.NationalRank, s.State, s.CBSAName, s.Grade, s.Score)
		}
	}
}

func dryRunVertical(ctx context.Context, pool *pgxpool.Pool, weights scoring.Weights, vertical string) {
	// Same load-and-compute path as a live rebuild, minus the upsert.
	rows, err := scoring.LoadMetricRows(ctx, pool, vertical)
	if err != nil {
		log.Fatalf("Failed to load metrics for %s: %v", vertical, err)
	}
	scores := scoring.Compute(rows, weights.Verticals[vertical])

	grades := map[string]int{}
	for _, s := range scores {
		grades[s.Grade]++
	}
	fmt.Printf("%s: %d markets, would score %d, skip %d\n",
		vertical, len(rows), len(scores), len(rows)-len(scores))
	for _, g := range []string{"A+", "A", "B", "C", "D", "F"} {
		if grades[g] > 0 {
			fmt.Printf("  %-2s %d\n", g, grades[g])
		}
	}
}
