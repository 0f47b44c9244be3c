package audit

import (
	"path"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	dbPath := path.Join(t.TempDir(), "test_audit.db")
	db := sqlx.MustConnect("sqlite3", dbPath)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewLogger(t *testing.T) {
	db := setupTestDB(t)
	logger, err := NewLogger(db)
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}

	var tableName string
	err = db.Get(&tableName, "SELECT name FROM sqlite_master WHERE type='table' AND name='proxy_requests'")
	if err != nil {
		t.Fatalf("Table 'proxy_requests' does not exist: %v", err)
	}
}

func TestLogRequest(t *testing.T) {
	db := setupTestDB(t)
	logger, err := NewLogger(db)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	err = logger.LogRequest("trace-1", "firstswap", "GET", "/app/firstswap/", 200, 35*time.Millisecond)
	if err != nil {
		t.Fatalf("LogRequest failed: %v", err)
	}

	var record RequestRecord
	if err := db.Get(&record, "SELECT * FROM proxy_requests WHERE trace_id = $1", "trace-1"); err != nil {
		t.Fatalf("Failed to retrieve record: %v", err)
	}
	if record.App != "firstswap" || record.Method != "GET" || record.Status != 200 {
		t.Errorf("unexpected record %+v", record)
	}
	if record.DurationMS != 35 {
		t.Errorf("Expected duration 35ms, got %d", record.DurationMS)
	}
	if record.Timestamp == 0 {
		t.Error("Expected timestamp to be set")
	}
}

func TestRequestsByApp(t *testing.T) {
	db := setupTestDB(t)
	logger, err := NewLogger(db)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.LogRequest("t1", "firstswap", "GET", "/app/firstswap/", 200, time.Millisecond)
	logger.LogRequest("t2", "explorer", "GET", "/app/explorer/", 200, time.Millisecond)
	logger.LogRequest("t3", "firstswap", "POST", "/app/firstswap/swap", 200, time.Millisecond)

	records, err := logger.RequestsByApp("firstswap", 10)
	if err != nil {
		t.Fatalf("RequestsByApp failed: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("Expected 2 records, got %d", len(records))
	}
	for _, r := range records {
		if r.App != "firstswap" {
			t.Errorf("Record for wrong app: %s", r.App)
		}
	}
}

func TestRecentRequestsOrder(t *testing.T) {
	db := setupTestDB(t)
	logger, err := NewLogger(db)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	// Insert with explicit timestamps so ordering is deterministic.
	base := time.Now().UTC().Unix()
	for i, id := range []string{"a", "b", "c"} {
		_, err := db.Exec(`
			INSERT INTO proxy_requests (trace_id, app, method, path, status, duration_ms, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, "explorer", "GET", "/", 200, 1, base+int64(i))
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	records, err := logger.RecentRequests(2)
	if err != nil {
		t.Fatalf("RecentRequests failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].TraceID != "c" || records[1].TraceID != "b" {
		t.Errorf("Expected newest first, got %s then %s", records[0].TraceID, records[1].TraceID)
	}
}

func TestDeleteOldRequests(t *testing.T) {
	db := setupTestDB(t)
	logger, err := NewLogger(db)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	oldTimestamp := time.Now().UTC().Add(-2 * time.Hour).Unix()
	_, err = db.Exec(`
		INSERT INTO proxy_requests (trace_id, app, method, path, status, duration_ms, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		"old-1", "firstswap", "GET", "/", 200, 1, oldTimestamp)
	if err != nil {
		t.Fatalf("Failed to insert old record: %v", err)
	}

	logger.LogRequest("fresh", "firstswap", "GET", "/", 200, time.Millisecond)

	deleted, err := logger.DeleteOldRequests(1 * time.Hour)
	if err != nil {
		t.Fatalf("DeleteOldRequests failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected to delete 1 record, deleted %d", deleted)
	}

	records, err := logger.RecentRequests(10)
	if err != nil {
		t.Fatalf("RecentRequests failed: %v", err)
	}
	if len(records) != 1 || records[0].TraceID != "fresh" {
		t.Errorf("Expected only the fresh record to remain, got %+v", records)
	}
}
