package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/Nikonomics/PostAcutePulse-sub015/internal/ingest"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

// Advisory lock key so two ingest runs cannot interleave staging upserts.
const ingestLockKey = 7245100801

func main() {
	_ = godotenv.Load(".env.local")

	var (
		dataDir       = flag.String("data-dir", "", "path to the cms_historical_data folder")
		dbURL         = flag.String("db", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")
		dryRun        = flag.Bool("dry-run", false, "parse files but do not insert")
		limit         = flag.Int("limit", 0, "limit number of months to process")
		setupSchema   = flag.Bool("setup-schema", false, "run schema setup only")
		skipTransform = flag.Bool("skip-transform", false, "skip staging-to-gold transformation")
	)
	flag.Parse()

	if *dbURL == "" {
		log.Fatal("DATABASE_URL or -db is required")
	}

	db, err := sql.Open("pgx", *dbURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if *setupSchema {
		if err := ingest.SetupSchema(ctx, db); err != nil {
			log.Fatalf("Schema setup failed: %v", err)
		}
		fmt.Println("Schema setup complete. Run again with -data-dir to ingest data.")
		return
	}

	if *dataDir == "" {
		log.Fatal("-data-dir required for ingestion. Use -setup-schema for schema only.")
	}
	if _, err := os.Stat(*dataDir); err != nil {
		log.Fatalf("Data directory not found: %s", *dataDir)
	}

	if !*dryRun {
		release, err := ingest.AcquireAdvisoryLock(ctx, db, ingestLockKey)
		if err != nil {
			log.Fatalf("Failed to acquire ingest lock: %v", err)
		}
		defer release()
	}

	stats, err := ingest.Run(ctx, db, ingest.Config{
		DataDir:       *dataDir,
		DryRun:        *dryRun,
		Limit:         *limit,
		SkipTransform: *skipTransform,
	})
	if err != nil {
		log.Fatalf("Ingest failed: %v", err)
	}

	fmt.Println("========================================")
	if *dryRun {
		fmt.Printf("DRY RUN: would insert %d MDS and %d claims rows\n", stats.MDSRows, stats.ClaimsRows)
	} else {
		fmt.Printf("Done! Run: %s\n", stats.RunID)
		fmt.Printf("Files: %d, MDS rows: %d, Claims rows: %d\n",
			stats.FilesProcessed, stats.MDSRows, stats.ClaimsRows)
	}
	if len(stats.Errors) > 0 {
		fmt.Printf("Errors: %d\n", len(stats.Errors))
		for _, e := range stats.Errors {
			fmt.Println("  " + e)
		}
		os.Exit(1)
	}
	fmt.Println("========================================")
}
