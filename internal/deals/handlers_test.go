package deals

import (
	"database/sql/driver"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Nikonomics/PostAcutePulse-sub015/internal/db"
	"github.com/Nikonomics/PostAcutePulse-sub015/internal/db/dbtest"
	"github.com/go-chi/chi/v5"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testDealID = "3d6f7f6e-9f3a-4a8e-8c2f-0c5a1b9d2e41"

// stubDB swaps the package-global connection for one backed by the
// recorder and restores it when the test ends.
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

func dealRows(query string) *dbtest.RowSet {
	if strings.Contains(query, "SELECT") && strings.Contains(query, "deals") {
		return &dbtest.RowSet{
			Columns: []string{"id", "title", "care_type", "stage", "created_by"},
			Values: [][]driver.Value{
				{testDealID, "Maple Grove SNF", "snf", "lead", "user-1"},
			},
		}
	}
	return nil
}

func deleteDealRequest(t *testing.T) *httptest.ResponseRecorder {
	t.Helper()

	r := chi.NewRouter()
	r.Delete("/deals/{id}", DeleteDeal)

	req := httptest.NewRequest(http.MethodDelete, "/deals/"+testDealID, nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestDeleteDeal_RemovesChildrenAndCommits(t *testing.T) {
	rec := &dbtest.Recorder{Rows: dealRows}
	stubDB(t, rec)

	rr := deleteDealRequest(t)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (%s)", rr.Code, http.StatusOK, rr.Body.String())
	}

	var deletes, commits int
	for _, s := range rec.Statements() {
		if strings.Contains(s.SQL, "DELETE") {
			deletes++
		}
		if s.SQL == "COMMIT" {
			commits++
		}
	}
	if deletes != 3 {
		t.Errorf("ran %d DELETEs, want 3 (comments, activity, deal)", deletes)
	}
	if commits != 1 {
		t.Errorf("ran %d COMMITs, want 1", commits)
	}
}

func TestDeleteDeal_ChildFailureRollsBack(t *testing.T) {
	rec := &dbtest.Recorder{
		Rows: dealRows,
		ExecErr: func(query string) error {
			if strings.Contains(query, "deal_comments") {
				return errors.New("deadlock detected")
			}
			return nil
		},
	}
	stubDB(t, rec)

	rr := deleteDealRequest(t)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}

	var rolledBack, committed, deletedDeal bool
	for _, s := range rec.Statements() {
		switch {
		case s.SQL == "ROLLBACK":
			rolledBack = true
		case s.SQL == "COMMIT":
			committed = true
		case strings.Contains(s.SQL, "DELETE") && strings.Contains(s.SQL, "deals"):
			deletedDeal = true
		}
	}
	if !rolledBack {
		t.Error("expected the transaction to roll back")
	}
	if committed {
		t.Error("transaction committed after a failed child delete")
	}
	if deletedDeal {
		t.Error("deal row deleted after the comment delete failed")
	}
}
