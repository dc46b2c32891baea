package ingest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const mdsCSV = `CMS Certification Number (CCN),Provider Name,Provider Address,City/Town,State,ZIP Code,Measure Code,Measure Description,Resident type,Q1 Measure Score,Footnote for Q1 Measure Score,Q2 Measure Score,Footnote for Q2 Measure Score,Q3 Measure Score,Footnote for Q3 Measure Score,Q4 Measure Score,Footnote for Q4 Measure Score,Four Quarter Average Score,Footnote for Four Quarter Average Score,Used in Quality Measure Five Star Rating,Measure Period,Location,Processing Date
675029,SUNRISE CARE,1 MAIN ST,AUSTIN,TX,78701,410,Ability to move,Long Stay,12.3,,11.9,,12.1,,12.5,,12.2,,Y,2023Q1-2023Q4,"AUSTIN, TX",2024-01-01
75030,HILLTOP SNF,2 OAK AVE,BOISE,ID,83701,410,Ability to move,Long Stay,,9,,9,,9,,9,,9,N,2023Q1-2023Q4,"BOISE, ID",2024-01-01
,NO CCN HOME,3 ELM ST,RENO,NV,89501,410,Ability to move,Long Stay,1,,1,,1,,1,,1,,Y,2023Q1-2023Q4,"RENO, NV",2024-01-01
`

func TestLoadMDS(t *testing.T) {
	path := writeTemp(t, "NH_QualityMsr_MDS_Jan2024.csv", []byte(mdsCSV))

	rows, err := LoadMDS(path, "NH_QualityMsr_MDS_Jan2024.csv")
	if err != nil {
		t.Fatal(err)
	}

	// The row with no CCN is dropped.
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	r := rows[0]
	if r.ExtractID != "202401" {
		t.Errorf("extract = %q, want 202401", r.ExtractID)
	}
	if r.CCN != "675029" {
		t.Errorf("ccn = %q", r.CCN)
	}
	if r.FourQuarterAvg == nil || *r.FourQuarterAvg != 12.2 {
		t.Errorf("four_quarter_avg = %v, want 12.2", r.FourQuarterAvg)
	}
	if r.ProcessingDate == nil {
		t.Error("processing date not parsed")
	}

	// Second row: CCN padded to 6 chars, scores suppressed with footnote 9.
	r = rows[1]
	if r.CCN != "075030" {
		t.Errorf("short ccn = %q, want 075030", r.CCN)
	}
	if r.Q1Score != nil {
		t.Errorf("suppressed score should be nil, got %v", *r.Q1Score)
	}
	if r.Q1Footnote != "9" {
		t.Errorf("footnote = %q, want 9", r.Q1Footnote)
	}
}

// 2020-era files use the old header names; they must map onto the current
// convention.
func TestLoadMDS_LegacyHeaders(t *testing.T) {
	legacy := `Federal Provider Number,Provider Name,Provider Address,Provider City,Provider State,Provider Zip Code,Measure Code,Measure Description,Resident type,Q1 Measure Score,Footnote for Q1 Measure Score,Q2 Measure Score,Footnote for Q2 Measure Score,Q3 Measure Score,Footnote for Q3 Measure Score,Q4 Measure Score,Footnote for Q4 Measure Score,Four Quarter Average Score,Footnote for Four Quarter Average Score,Used in Quality Measure Five Star Rating,Measure Period,Location,Processing Date
675029,SUNRISE CARE,1 MAIN ST,AUSTIN,TX,78701,453,Pressure ulcers,Long Stay,2.0,,2.1,,2.2,,2.3,,2.15,,Y,2020Q1-2020Q4,"AUSTIN, TX",2020-09-01
`
	path := writeTemp(t, "NH_QualityMsr_MDS_Sep2020.csv", []byte(legacy))

	rows, err := LoadMDS(path, "NH_QualityMsr_MDS_Sep2020.csv")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].CCN != "675029" {
		t.Errorf("legacy CCN column not mapped, got %q", rows[0].CCN)
	}
	if rows[0].City != "AUSTIN" {
		t.Errorf("legacy city column not mapped, got %q", rows[0].City)
	}
	if rows[0].State != "TX" {
		t.Errorf("legacy state column not mapped, got %q", rows[0].State)
	}
}

// Older extracts are Latin-1 encoded; bytes that are not valid UTF-8 must be
// decoded rather than passed through.
func TestLoadMDS_Latin1Fallback(t *testing.T) {
	header := "CMS Certification Number (CCN),Provider Name,Measure Code,Resident type,Four Quarter Average Score\n"
	// 0xE9 is é in Latin-1 and invalid as a standalone UTF-8 byte.
	row := append([]byte("675029,CAF"), 0xE9)
	row = append(row, []byte(" MANOR,410,Long Stay,5.0\n")...)
	path := writeTemp(t, "NH_QualityMsr_MDS_Jan2021.csv", append([]byte(header), row...))

	rows, err := LoadMDS(path, "NH_QualityMsr_MDS_Jan2021.csv")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].ProviderName != "CAFé MANOR" {
		t.Errorf("provider name = %q, want CAFé MANOR", rows[0].ProviderName)
	}
}

func TestLoadClaims(t *testing.T) {
	claims := `CMS Certification Number (CCN),Provider Name,City/Town,State,Measure Code,Measure Description,Resident type,Adjusted Score,Observed Score,Expected Score,Footnote for Score,Used in Quality Measure Five Star Rating,Measure Period,Processing Date
675029,SUNRISE CARE,AUSTIN,TX,551,Hospitalizations per 1000 days,Long Stay,1.5,1.4,1.6,,Y,2023Q1-2023Q4,2024-01-01
675030,LAKESIDE,DALLAS,TX,552,ED visits per 1000 days,Long Stay,,,,"12",N,2023Q1-2023Q4,2024-01-01
`
	path := writeTemp(t, "NH_QualityMsr_Claims_Jan2024.csv", []byte(claims))

	rows, err := LoadClaims(path, "NH_QualityMsr_Claims_Jan2024.csv")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].AdjustedScore == nil || *rows[0].AdjustedScore != 1.5 {
		t.Errorf("adjusted = %v, want 1.5", rows[0].AdjustedScore)
	}
	if rows[1].AdjustedScore != nil {
		t.Error("suppressed adjusted score should be nil")
	}
	if rows[1].Footnote != "12" {
		t.Errorf("footnote = %q, want 12", rows[1].Footnote)
	}
}

func TestLoadMDS_BadFilename(t *testing.T) {
	path := writeTemp(t, "whatever.csv", []byte("a,b\n1,2\n"))
	if _, err := LoadMDS(path, "whatever.csv"); err == nil {
		t.Fatal("expected error for undateable filename")
	}
}
