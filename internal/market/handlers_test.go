package market

import (
	"database/sql/driver"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Nikonomics/PostAcutePulse-sub015/internal/db"
	"github.com/Nikonomics/PostAcutePulse-sub015/internal/db/dbtest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testOwnerA = "0f9e8d7c-6b5a-4432-9101-a1b2c3d4e5f6"
	testOwnerB = "1a2b3c4d-5e6f-4789-9abc-def012345678"
)

func stubDB(t *testing.T, rec *dbtest.Recorder) {
	t.Helper()

	sdb := dbtest.Open(rec)
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sdb}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}

	old := db.DB
	db.DB = gdb
	t.Cleanup(func() {
		db.DB = old
		sdb.Close()
	})
}

func TestListOwners_CountsInOneQuery(t *testing.T) {
	rec := &dbtest.Recorder{
		Rows: func(query string) *dbtest.RowSet {
			switch {
			case strings.Contains(query, "ownership_profiles"):
				return &dbtest.RowSet{
					Columns: []string{"id", "name", "org_type", "hq_state"},
					Values: [][]driver.Value{
						{testOwnerA, "Cascadia Healthcare", "operator", "ID"},
						{testOwnerB, "Sabra REIT", "reit", "CA"},
					},
				}
			case strings.Contains(query, "facility_ownership"):
				return &dbtest.RowSet{
					Columns: []string{"profile_id", "n"},
					Values: [][]driver.Value{
						{testOwnerA, int64(3)},
					},
				}
			}
			return nil
		},
	}
	stubDB(t, rec)

	req := httptest.NewRequest(http.MethodGet, "/owners", nil)
	rr := httptest.NewRecorder()
	ListOwners(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (%s)", rr.Code, http.StatusOK, rr.Body.String())
	}

	var owners []map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&owners); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(owners) != 2 {
		t.Fatalf("got %d owners, want 2", len(owners))
	}
	if got := owners[0]["facility_count"].(float64); got != 3 {
		t.Errorf("owner A facility_count = %v, want 3", got)
	}
	// No facility_ownership rows means zero, not a missing field.
	if got := owners[1]["facility_count"].(float64); got != 0 {
		t.Errorf("owner B facility_count = %v, want 0", got)
	}

	selects := 0
	for _, s := range rec.Statements() {
		if strings.Contains(s.SQL, "SELECT") {
			selects++
		}
	}
	if selects != 2 {
		t.Errorf("ran %d SELECTs, want 2 (profiles + grouped counts)", selects)
	}
}
