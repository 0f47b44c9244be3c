package audit

import (
	"time"

	"github.com/jmoiron/sqlx"
)

// RequestRecord is one proxied request as stored in the audit database.
type RequestRecord struct {
	TraceID    string `db:"trace_id"`
	App        string `db:"app"`
	Method     string `db:"method"`
	Path       string `db:"path"`
	Status     int    `db:"status"`
	DurationMS int64  `db:"duration_ms"`
	Timestamp  int64  `db:"timestamp"`
}

// Logger records every request the hub proxies, keyed by trace ID, so
// operators can reconstruct what traffic reached which app.
type Logger struct {
	db *sqlx.DB
}

func NewLogger(db *sqlx.DB) (*Logger, error) {
	if err := DBInit(db); err != nil {
		return nil, err
	}
	return &Logger{db: db}, nil
}

// DBInit creates the proxy_requests table and its indexes.
func DBInit(db *sqlx.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS proxy_requests (
		trace_id TEXT PRIMARY KEY,
		app TEXT NOT NULL,
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		status INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		timestamp INTEGER NOT NULL
	)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_proxy_requests_timestamp ON proxy_requests(timestamp)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_proxy_requests_app ON proxy_requests(app)`)
	return err
}

// LogRequest records one proxied request.
func (l *Logger) LogRequest(traceID, app, method, path string, status int, duration time.Duration) error {
	_, err := l.db.Exec(`
		INSERT INTO proxy_requests (
			trace_id, app, method, path, status, duration_ms, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		traceID, app, method, path, status, duration.Milliseconds(),
		time.Now().UTC().Unix(),
	)
	return err
}

// RecentRequests returns the most recent proxied requests, newest first.
func (l *Logger) RecentRequests(limit int) ([]RequestRecord, error) {
	var records []RequestRecord
	err := l.db.Select(&records,
		"SELECT * FROM proxy_requests ORDER BY timestamp DESC LIMIT $1", limit)
	return records, err
}

// RequestsByApp returns the most recent requests routed to one app.
func (l *Logger) RequestsByApp(app string, limit int) ([]RequestRecord, error) {
	var records []RequestRecord
	err := l.db.Select(&records,
		"SELECT * FROM proxy_requests WHERE app = $1 ORDER BY timestamp DESC LIMIT $2",
		app, limit)
	return records, err
}

// DeleteOldRequests prunes records older than the given age and reports
// how many were removed.
func (l *Logger) DeleteOldRequests(olderThan time.Duration) (int64, error) {
	threshold := time.Now().UTC().Add(-olderThan).Unix()
	result, err := l.db.Exec("DELETE FROM proxy_requests WHERE timestamp < $1", threshold)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
