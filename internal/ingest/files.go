package ingest

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind distinguishes the two CMS quality file families.
type Kind string

const (
	KindMDS    Kind = "mds"
	KindClaims Kind = "claims"
)

// SourceFile is one discovered quality CSV, on disk or extracted from a
// nested archive.
type SourceFile struct {
	Path string // local path to the CSV
	Name string // original CMS filename, used for date parsing
	Kind Kind
}

var monthNums = map[string]string{
	"Jan": "01", "Feb": "02", "Mar": "03", "Apr": "04",
	"May": "05", "Jun": "06", "Jul": "07", "Aug": "08",
	"Sep": "09", "Oct": "10", "Nov": "11", "Dec": "12",
}

var filenameDateRe = regexp.MustCompile(`(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)(\d{4})`)

// ParseFilenameDate extracts the MonYYYY stamp from a CMS filename.
// NH_QualityMsr_MDS_Jan2024.csv -> ("202401", 2024-01-01).
func ParseFilenameDate(filename string) (string, time.Time, error) {
	m := filenameDateRe.FindStringSubmatch(filename)
	if m == nil {
		return "", time.Time{}, fmt.Errorf("could not parse date from filename: %s", filename)
	}
	year, _ := strconv.Atoi(m[2])
	month, _ := strconv.Atoi(monthNums[m[1]])
	extractID := m[2] + monthNums[m[1]]
	asOf := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return extractID, asOf, nil
}

var nonAlnumRe = regexp.MustCompile(`[^A-Za-z0-9]`)

// StandardizeCCN normalizes a CCN to its 6-character form, left-padding
// with zeros. CMS files sometimes drop leading zeros.
func StandardizeCCN(raw string) string {
	s := nonAlnumRe.ReplaceAllString(strings.TrimSpace(raw), "")
	if s == "" {
		return ""
	}
	for len(s) < 6 {
		s = "0" + s
	}
	return s[:6]
}

// StateFromCCN returns the two-character state prefix of a CCN.
func StateFromCCN(ccn string) string {
	if len(ccn) >= 2 {
		return ccn[:2]
	}
	return ""
}

func kindOf(name string) (Kind, bool) {
	switch {
	case strings.Contains(name, "NH_QualityMsr_MDS_"):
		return KindMDS, true
	case strings.Contains(name, "NH_QualityMsr_Claims_"):
		return KindClaims, true
	}
	return "", false
}

// Discover walks dataDir for quality CSVs, both loose files and CSVs packed
// inside nursing_homes_*.zip year archives (which nest month zips). Archived
// CSVs are extracted into tempDir. Results are sorted by extract month.
func Discover(dataDir, tempDir string) ([]SourceFile, error) {
	var files []SourceFile

	err := filepath.WalkDir(dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".csv") {
			return nil
		}
		if kind, ok := kindOf(d.Name()); ok {
			files = append(files, SourceFile{Path: path, Name: d.Name(), Kind: kind})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dataDir, err)
	}

	yearZips, err := filepath.Glob(filepath.Join(dataDir, "nursing_homes_*.zip"))
	if err != nil {
		return nil, err
	}
	for _, yearZip := range yearZips {
		extracted, err := extractFromYearZip(yearZip, tempDir)
		if err != nil {
			log.Printf("ingest: skipping archive %s: %v", filepath.Base(yearZip), err)
			continue
		}
		files = append(files, extracted...)
	}

	sort.Slice(files, func(a, b int) bool {
		ea, _, errA := ParseFilenameDate(files[a].Name)
		eb, _, errB := ParseFilenameDate(files[b].Name)
		if errA != nil || errB != nil {
			return files[a].Name < files[b].Name
		}
		if ea != eb {
			return ea < eb
		}
		return files[a].Name < files[b].Name
	})
	return files, nil
}

// extractFromYearZip opens a year archive, walks its nested month zips, and
// writes any quality CSVs it finds into tempDir.
func extractFromYearZip(yearZip, tempDir string) ([]SourceFile, error) {
	zr, err := zip.OpenReader(yearZip)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var files []SourceFile
	for _, member := range zr.File {
		if !strings.HasSuffix(member.Name, ".zip") || !strings.Contains(member.Name, "nursing_homes") {
			continue
		}
		inner, err := readMemberToTemp(member, tempDir)
		if err != nil {
			log.Printf("ingest: failed to read nested zip %s: %v", member.Name, err)
			continue
		}
		monthFiles, err := extractFromMonthZip(inner, tempDir)
		os.Remove(inner)
		if err != nil {
			log.Printf("ingest: failed to scan month zip %s: %v", member.Name, err)
			continue
		}
		files = append(files, monthFiles...)
	}
	return files, nil
}

func extractFromMonthZip(monthZip, tempDir string) ([]SourceFile, error) {
	zr, err := zip.OpenReader(monthZip)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var files []SourceFile
	for _, member := range zr.File {
		base := filepath.Base(member.Name)
		kind, ok := kindOf(base)
		if !ok {
			continue
		}
		path, err := readMemberToTemp(member, tempDir)
		if err != nil {
			return nil, err
		}
		files = append(files, SourceFile{Path: path, Name: base, Kind: kind})
	}
	return files, nil
}

func readMemberToTemp(member *zip.File, tempDir string) (string, error) {
	rc, err := member.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	dst := filepath.Join(tempDir, filepath.Base(member.Name))
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(dst)
		return "", err
	}
	return dst, out.Close()
}
