package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// MDSRow is one cleaned staging row from an MDS quality measures file.
type MDSRow struct {
	ExtractID  string
	AsOfDate   time.Time
	SourceFile string

	CCN                string
	ProviderName       string
	ProviderAddress    string
	City               string
	State              string
	ZipCode            string
	MeasureCode        string
	MeasureDescription string
	ResidentType       string

	Q1Score             *float64
	Q1Footnote          string
	Q2Score             *float64
	Q2Footnote          string
	Q3Score             *float64
	Q3Footnote          string
	Q4Score             *float64
	Q4Footnote          string
	FourQuarterAvg      *float64
	FourQuarterFootnote string

	UsedInStarRating string
	MeasurePeriod    string
	Location         string
	ProcessingDate   *time.Time
}

// ClaimsRow is one cleaned staging row from a claims-based measures file.
type ClaimsRow struct {
	ExtractID  string
	AsOfDate   time.Time
	SourceFile string

	CCN                string
	ProviderName       string
	ProviderAddress    string
	City               string
	State              string
	ZipCode            string
	MeasureCode        string
	MeasureDescription string
	ResidentType       string

	AdjustedScore *float64
	ObservedScore *float64
	ExpectedScore *float64
	Footnote      string

	UsedInStarRating string
	MeasurePeriod    string
	Location         string
	ProcessingDate   *time.Time
}

// headerAliases maps older CMS column names onto the 2021+ convention.
var headerAliases = map[string]string{
	"Federal Provider Number":      "CMS Certification Number (CCN)",
	"CMS Certification Number":     "CMS Certification Number (CCN)",
	"Provider City":                "City/Town",
	"City":                         "City/Town",
	"Provider State":               "State",
	"Provider Zip Code":            "ZIP Code",
	"Zip Code":                     "ZIP Code",
}

type record struct {
	byName map[string]int
	fields []string
}

func (r record) get(name string) string {
	i, ok := r.byName[name]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func (r record) getFloat(name string) *float64 {
	s := r.get(name)
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func (r record) getDate(name string) *time.Time {
	s := r.get(name)
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", "01/02/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// readCSV reads a whole quality file, decoding Latin-1 when the bytes are
// not valid UTF-8 (older CMS extracts), and normalizes header names.
func readCSV(path string) ([]record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rdr io.Reader = bytes.NewReader(data)
	if !utf8.Valid(data) {
		rdr = transform.NewReader(bytes.NewReader(data), charmap.ISO8859_1.NewDecoder())
	}

	cr := csv.NewReader(rdr)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	byName := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if canonical, ok := headerAliases[name]; ok {
			if _, exists := byName[canonical]; !exists {
				byName[canonical] = i
			}
			continue
		}
		byName[name] = i
	}

	var out []record
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, record{byName: byName, fields: fields})
	}
	return out, nil
}

// LoadMDS parses one MDS quality file into staging rows. Rows without a CCN
// or measure code are dropped.
func LoadMDS(path, filename string) ([]MDSRow, error) {
	extractID, asOf, err := ParseFilenameDate(filename)
	if err != nil {
		return nil, err
	}

	records, err := readCSV(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}

	rows := make([]MDSRow, 0, len(records))
	for _, rec := range records {
		ccn := StandardizeCCN(rec.get("CMS Certification Number (CCN)"))
		code := rec.get("Measure Code")
		if ccn == "" || code == "" {
			continue
		}
		rows = append(rows, MDSRow{
			ExtractID:           extractID,
			AsOfDate:            asOf,
			SourceFile:          filename,
			CCN:                 ccn,
			ProviderName:        rec.get("Provider Name"),
			ProviderAddress:     rec.get("Provider Address"),
			City:                rec.get("City/Town"),
			State:               rec.get("State"),
			ZipCode:             rec.get("ZIP Code"),
			MeasureCode:         code,
			MeasureDescription:  rec.get("Measure Description"),
			ResidentType:        rec.get("Resident type"),
			Q1Score:             rec.getFloat("Q1 Measure Score"),
			Q1Footnote:          rec.get("Footnote for Q1 Measure Score"),
			Q2Score:             rec.getFloat("Q2 Measure Score"),
			Q2Footnote:          rec.get("Footnote for Q2 Measure Score"),
			Q3Score:             rec.getFloat("Q3 Measure Score"),
			Q3Footnote:          rec.get("Footnote for Q3 Measure Score"),
			Q4Score:             rec.getFloat("Q4 Measure Score"),
			Q4Footnote:          rec.get("Footnote for Q4 Measure Score"),
			FourQuarterAvg:      rec.getFloat("Four Quarter Average Score"),
			FourQuarterFootnote: rec.get("Footnote for Four Quarter Average Score"),
			UsedInStarRating:    rec.get("Used in Quality Measure Five Star Rating"),
			MeasurePeriod:       rec.get("Measure Period"),
			Location:            rec.get("Location"),
			ProcessingDate:      rec.getDate("Processing Date"),
		})
	}
	return rows, nil
}

// LoadClaims parses one claims-based quality file into staging rows.
func LoadClaims(path, filename string) ([]ClaimsRow, error) {
	extractID, asOf, err := ParseFilenameDate(filename)
	if err != nil {
		return nil, err
	}

	records, err := readCSV(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}

	rows := make([]ClaimsRow, 0, len(records))
	for _, rec := range records {
		ccn := StandardizeCCN(rec.get("CMS Certification Number (CCN)"))
		code := rec.get("Measure Code")
		if ccn == "" || code == "" {
			continue
		}
		rows = append(rows, ClaimsRow{
			ExtractID:          extractID,
			AsOfDate:           asOf,
			SourceFile:         filename,
			CCN:                ccn,
			ProviderName:       rec.get("Provider Name"),
			ProviderAddress:    rec.get("Provider Address"),
			City:               rec.get("City/Town"),
			State:              rec.get("State"),
			ZipCode:            rec.get("ZIP Code"),
			MeasureCode:        code,
			MeasureDescription: rec.get("Measure Description"),
			ResidentType:       rec.get("Resident type"),
			AdjustedScore:      rec.getFloat("Adjusted Score"),
			ObservedScore:      rec.getFloat("Observed Score"),
			ExpectedScore:      rec.getFloat("Expected Score"),
			Footnote:           rec.get("Footnote for Score"),
			UsedInStarRating:   rec.get("Used in Quality Measure Five Star Rating"),
			MeasurePeriod:      rec.get("Measure Period"),
			Location:           rec.get("Location"),
			ProcessingDate:     rec.getDate("Processing Date"),
		})
	}
	return rows, nil
}
