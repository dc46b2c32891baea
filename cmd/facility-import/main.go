package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Nikonomics/PostAcutePulse-sub015/internal/db"
	"github.com/Nikonomics/PostAcutePulse-sub015/internal/geocode"
	"github.com/Nikonomics/PostAcutePulse-sub015/internal/ingest"
	"github.com/Nikonomics/PostAcutePulse-sub015/internal/market"
	"github.com/joho/godotenv"
	"gorm.io/gorm/clause"
)

// Column aliases across CMS provider info file vintages.
var columnAliases = map[string]string{
	"Federal Provider Number":  "CMS Certification Number (CCN)",
	"CMS Certification Number": "CMS Certification Number (CCN)",
	"Provider City":            "City/Town",
	"City":                     "City/Town",
	"Provider State":           "State",
	"Provider Zip Code":        "ZIP Code",
	"Zip Code":                 "ZIP Code",
	"Provider County Name":     "County/Parish",
	"County":                   "County/Parish",
}

func main() {
	_ = godotenv.Load(".env.local")

	var (
		csvPath   = flag.String("csv", "", "path to a CMS provider info CSV")
		careType  = flag.String("care-type", "snf", "care type for imported facilities: snf, alf, hha")
		dryRun    = flag.Bool("dry-run", false, "parse and report but do not write")
		doGeocode = flag.Bool("geocode", false, "geocode facilities missing lat/lng (requires GOOGLE_MAPS_API_KEY)")
	)
	flag.Parse()

	if *csvPath == "" {
		log.Fatal("-csv is required")
	}
	if *careType != "snf" && *careType != "alf" && *careType != "hha" {
		log.Fatalf("invalid care type: %s", *careType)
	}

	facilities, err := parseFacilities(*csvPath, *careType)
	if err != nil {
		log.Fatalf("Failed to parse %s: %v", *csvPath, err)
	}
	fmt.Printf("Parsed %d facilities from %s\n", len(facilities), *csvPath)

	if *dryRun {
		fmt.Println("Mode: DRY RUN (no database writes)")
		for i, f := range facilities {
			if i >= 10 {
				fmt.Printf("  ... and %d more\n", len(facilities)-10)
				break
			}
			fmt.Printf("  %s  %-40s %s, %s\n", f.CCN, f.Name, f.City, f.State)
		}
		return
	}

	db.Connect()
	market.Init()

	ctx := context.Background()

	var geocoder *geocode.Client
	if *doGeocode {
		geocoder, err = geocode.NewClient()
		if err != nil {
			log.Fatalf("Failed to create geocoder: %v", err)
		}
		if geocoder == nil {
			log.Fatal("-geocode requires GOOGLE_MAPS_API_KEY")
		}
	}

	imported := 0
	geocoded := 0
	for i := range facilities {
		f := &facilities[i]

		if geocoder != nil && f.Lat == nil {
			addr := strings.Join([]string{f.Address, f.City, f.State, f.ZipCode}, ", ")
			result, err := geocoder.Geocode(ctx, addr)
			if err != nil {
				log.Printf("  geocode failed for %s: %v", f.CCN, err)
			} else {
				f.Lat = &result.Lat
				f.Lng = &result.Lng
				if f.County == "" {
					f.County = result.County
				}
				geocoded++
			}
		}

		err := db.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ccn"}},
			UpdateAll: true,
		}).Create(f).Error
		if err != nil {
			log.Printf("  upsert failed for %s: %v", f.CCN, err)
			continue
		}
		imported++
	}

	fmt.Println("========================================")
	fmt.Printf("Done! Imported: %d", imported)
	if *doGeocode {
		fmt.Printf(", Geocoded: %d", geocoded)
	}
	fmt.Println()
	fmt.Println("========================================")
}

func parseFacilities(path, careType string) ([]market.Facility, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if canonical, ok := columnAliases[name]; ok {
			if _, exists := cols[canonical]; !exists {
				cols[canonical] = i
			}
			continue
		}
		cols[name] = i
	}

	get := func(fields []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(fields) {
			return ""
		}
		return strings.TrimSpace(fields[i])
	}

	now := time.Now().UTC()
	var out []market.Facility
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		ccn := ingest.StandardizeCCN(get(fields, "CMS Certification Number (CCN)"))
		name := get(fields, "Provider Name")
		if ccn == "" || name == "" {
			continue
		}

		fac := market.Facility{
			CCN:        ccn,
			Name:       name,
			CareType:   careType,
			Address:    get(fields, "Provider Address"),
			City:       get(fields, "City/Town"),
			State:      get(fields, "State"),
			County:     get(fields, "County/Parish"),
			ZipCode:    get(fields, "ZIP Code"),
			Source:     "cms_provider_info",
			LastSynced: now,
		}

		if beds, err := strconv.Atoi(get(fields, "Number of Certified Beds")); err == nil {
			fac.Beds = &beds
		}
		if rating, err := strconv.Atoi(get(fields, "Overall Rating")); err == nil {
			fac.StarRating = &rating
		}
		if residents, err := strconv.ParseFloat(get(fields, "Average Number of Residents per Day"), 64); err == nil {
			if fac.Beds != nil && *fac.Beds > 0 {
				occ := residents / float64(*fac.Beds) * 100
				fac.OccupancyPct = &occ
			}
		}
		if lat, err := strconv.ParseFloat(get(fields, "Latitude"), 64); err == nil {
			if lng, err := strconv.ParseFloat(get(fields, "Longitude"), 64); err == nil {
				fac.Lat = &lat
				fac.Lng = &lng
			}
		}

		out = append(out, fac)
	}
	return out, nil
}
