package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config controls one ingest run.
type Config struct {
	DataDir       string
	DryRun        bool // parse files, insert nothing
	Limit         int  // max files per kind, 0 = all
	SkipTransform bool // leave data in staging
}

// Stats summarizes an ingest run.
type Stats struct {
	RunID          string
	FilesProcessed int
	MDSRows        int
	ClaimsRows     int
	Errors         []string
}

// Run discovers, parses, and loads every quality file under cfg.DataDir.
// Per-file failures are logged and collected; the run continues.
func Run(ctx context.Context, db *sql.DB, cfg Config) (Stats, error) {
	tempDir, err := os.MkdirTemp("", "cms-quality-*")
	if err != nil {
		return Stats{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	files, err := Discover(cfg.DataDir, tempDir)
	if err != nil {
		return Stats{}, err
	}

	var mdsFiles, claimsFiles []SourceFile
	for _, f := range files {
		if f.Kind == KindMDS {
			mdsFiles = append(mdsFiles, f)
		} else {
			claimsFiles = append(claimsFiles, f)
		}
	}
	log.Printf("ingest: found %d MDS files and %d claims files", len(mdsFiles), len(claimsFiles))

	if cfg.Limit > 0 {
		if len(mdsFiles) > cfg.Limit {
			mdsFiles = mdsFiles[:cfg.Limit]
		}
		if len(claimsFiles) > cfg.Limit {
			claimsFiles = claimsFiles[:cfg.Limit]
		}
		log.Printf("ingest: limited to %d months each", cfg.Limit)
	}

	if cfg.DryRun {
		return dryRun(mdsFiles, claimsFiles)
	}

	stats := Stats{
		RunID: fmt.Sprintf("ingest_%s_%s",
			time.Now().Format("20060102_150405"),
			strings.ReplaceAll(uuid.NewString(), "-", "")[:8]),
	}
	logID, err := LogRunStart(ctx, db, stats.RunID)
	if err != nil {
		return stats, fmt.Errorf("log run start: %w", err)
	}
	log.Printf("ingest: run %s", stats.RunID)

	for _, f := range mdsFiles {
		rows, err := LoadMDS(f.Path, f.Name)
		if err == nil {
			var n int
			n, err = UpsertMDS(ctx, db, rows)
			stats.MDSRows += n
		}
		if err != nil {
			msg := fmt.Sprintf("error processing %s: %v", f.Name, err)
			log.Print("ingest: " + msg)
			stats.Errors = append(stats.Errors, msg)
			continue
		}
		stats.FilesProcessed++
	}

	for _, f := range claimsFiles {
		rows, err := LoadClaims(f.Path, f.Name)
		if err == nil {
			var n int
			n, err = UpsertClaims(ctx, db, rows)
			stats.ClaimsRows += n
		}
		if err != nil {
			msg := fmt.Sprintf("error processing %s: %v", f.Name, err)
			log.Print("ingest: " + msg)
			stats.Errors = append(stats.Errors, msg)
			continue
		}
		stats.FilesProcessed++
	}

	if !cfg.SkipTransform {
		mdsCount, claimsCount, err := TransformToGold(ctx, db)
		if err != nil {
			stats.Errors = append(stats.Errors, err.Error())
		} else {
			log.Printf("ingest: promoted %d MDS and %d claims rows to gold", mdsCount, claimsCount)
		}
		if err := UpdateExtractMetadata(ctx, db); err != nil {
			stats.Errors = append(stats.Errors, err.Error())
		}
	}

	if err := LogRunComplete(ctx, db, logID, stats.FilesProcessed, stats.MDSRows, stats.ClaimsRows, stats.Errors); err != nil {
		log.Printf("ingest: failed to finalize run log: %v", err)
	}

	log.Printf("ingest: complete, %d files, %d MDS rows, %d claims rows, %d errors",
		stats.FilesProcessed, stats.MDSRows, stats.ClaimsRows, len(stats.Errors))
	return stats, nil
}

func dryRun(mdsFiles, claimsFiles []SourceFile) (Stats, error) {
	var stats Stats
	for _, f := range mdsFiles {
		rows, err := LoadMDS(f.Path, f.Name)
		if err != nil {
			stats.Errors = append(stats.Errors, err.Error())
			continue
		}
		stats.MDSRows += len(rows)
		stats.FilesProcessed++
	}
	for _, f := range claimsFiles {
		rows, err := LoadClaims(f.Path, f.Name)
		if err != nil {
			stats.Errors = append(stats.Errors, err.Error())
			continue
		}
		stats.ClaimsRows += len(rows)
		stats.FilesProcessed++
	}
	log.Printf("ingest: dry run, would insert %d MDS and %d claims rows", stats.MDSRows, stats.ClaimsRows)
	return stats, nil
}
