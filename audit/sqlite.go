package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id          TEXT PRIMARY KEY,
	ts          TEXT NOT NULL,
	kind        TEXT NOT NULL,
	symbol      TEXT,
	level       TEXT,
	action      TEXT,
	position_id TEXT,
	message     TEXT,
	success     INTEGER NOT NULL,
	payload     TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_log_ts ON audit_log (ts);`

// SQLiteSink appends audit records to an audit_log table.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the database at dbPath and ensures the schema exists.
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer avoids SQLITE_BUSY from concurrent inserts.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// Record inserts one record. Missing ids and timestamps are filled in.
func (s *SQLiteSink) Record(ctx context.Context, r Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	var payload []byte
	if r.Payload != nil {
		var err error
		if payload, err = json.Marshal(r.Payload); err != nil {
			return fmt.Errorf("failed to marshal audit payload: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, ts, kind, symbol, level, action, position_id, message, success, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Timestamp.UTC().Format(time.RFC3339Nano), r.Kind, r.Symbol, r.Level, r.Action,
		r.PositionID, r.Message, r.Success, string(payload))
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first. Payloads are returned as raw JSON.
func (s *SQLiteSink) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, kind, symbol, level, action, position_id, message, success, payload
		 FROM audit_log ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r       Record
			ts      string
			payload string
		)
		if err := rows.Scan(&r.ID, &ts, &r.Kind, &r.Symbol, &r.Level, &r.Action, &r.PositionID, &r.Message, &r.Success, &payload); err != nil {
			return nil, err
		}
		if r.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("bad audit timestamp %q: %w", ts, err)
		}
		if payload != "" {
			r.Payload = json.RawMessage(payload)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
