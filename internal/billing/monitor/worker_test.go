package monitor

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/fourpaws/billing/internal/clock"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupMonitorTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Exec(
		`CREATE TABLE IF NOT EXISTS billing_events (
			id INTEGER PRIMARY KEY,
			external_event_id TEXT NOT NULL UNIQUE,
			user_id BIGINT,
			external_customer_id TEXT,
			event_type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			payload TEXT,
			external_created_at DATETIME,
			processed_at DATETIME,
			error TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	).Error; err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func insertEventRow(t *testing.T, db *gorm.DB, id int64, status string, createdAt time.Time) {
	t.Helper()
	if err := db.Exec(
		`INSERT INTO billing_events (id, external_event_id, event_type, status, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id,
		"evt_"+strconv.FormatInt(id, 10),
		"customer.created",
		status,
		createdAt,
	).Error; err != nil {
		t.Fatalf("insert event: %v", err)
	}
}

func TestRunOnceCountsBacklog(t *testing.T) {
	db := setupMonitorTest(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	insertEventRow(t, db, 1, "pending", now.Add(-time.Minute))
	insertEventRow(t, db, 2, "pending", now.Add(-time.Hour))
	insertEventRow(t, db, 3, "failed", now.Add(-time.Minute))
	insertEventRow(t, db, 4, "processed", now.Add(-time.Minute))

	worker := NewWorker(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clock.FixedClock{Instant: now},
	})

	if err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	counts, err := worker.countByStatus(context.Background())
	if err != nil {
		t.Fatalf("count by status: %v", err)
	}
	if counts["pending"] != 2 {
		t.Fatalf("expected 2 pending, got %d", counts["pending"])
	}
	if counts["failed"] != 1 {
		t.Fatalf("expected 1 failed, got %d", counts["failed"])
	}

	stale, err := worker.countStalePending(context.Background())
	if err != nil {
		t.Fatalf("count stale: %v", err)
	}
	if stale != 1 {
		t.Fatalf("expected 1 stale pending event, got %d", stale)
	}
}

func TestRunOnceEmptyTable(t *testing.T) {
	db := setupMonitorTest(t)

	worker := NewWorker(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clock.SystemClock{},
	})
	if err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once on empty table: %v", err)
	}
}
