package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Nikonomics/PostAcutePulse-sub015/internal/db/dbtest"
)

func TestAcquireAdvisoryLock_SameConnection(t *testing.T) {
	rec := &dbtest.Recorder{}
	sdb := dbtest.Open(rec)
	defer sdb.Close()

	ctx := context.Background()
	release, err := AcquireAdvisoryLock(ctx, sdb, 7245100801)
	if err != nil {
		t.Fatalf("AcquireAdvisoryLock: %v", err)
	}

	// Work through the pool while the lock is held. The lock's
	// connection is checked out, so this must land elsewhere.
	if _, err := sdb.ExecContext(ctx, "INSERT INTO staging.nh_quality_mds_raw DEFAULT VALUES"); err != nil {
		t.Fatalf("pool exec: %v", err)
	}

	if err := release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	var lock, unlock, work *dbtest.Stmt
	for _, s := range rec.Statements() {
		s := s
		switch {
		case strings.Contains(s.SQL, "pg_advisory_lock"):
			lock = &s
		case strings.Contains(s.SQL, "pg_advisory_unlock"):
			unlock = &s
		case strings.Contains(s.SQL, "INSERT"):
			work = &s
		}
	}
	if lock == nil || unlock == nil || work == nil {
		t.Fatalf("missing statements: lock=%v unlock=%v work=%v", lock, unlock, work)
	}
	if lock.Conn != unlock.Conn {
		t.Errorf("unlock ran on conn %d, lock on conn %d; session locks need the same backend", unlock.Conn, lock.Conn)
	}
	if work.Conn == lock.Conn {
		t.Errorf("pool work ran on the pinned lock connection %d", work.Conn)
	}
}

func TestAcquireAdvisoryLock_AcquireFails(t *testing.T) {
	rec := &dbtest.Recorder{
		ExecErr: func(sql string) error {
			if strings.Contains(sql, "pg_advisory_lock") {
				return errors.New("lock timeout")
			}
			return nil
		},
	}
	sdb := dbtest.Open(rec)
	defer sdb.Close()

	if _, err := AcquireAdvisoryLock(context.Background(), sdb, 1); err == nil {
		t.Fatal("expected error when the lock statement fails")
	}
}
