// Package audit implements the append-only, per-identity audit log: an
// embedded relational store with a single insert-only table, indexed by
// timestamp, action, and category.
//
// The connection setup (single shared connection to serialize SQLite's
// single-writer constraint, WAL journaling, busy_timeout) and the
// insert/query shape are grounded on the teacher's internal/ruriko/store
// package (store.go's New/pragma sequence, audit.go's WriteAudit/GetAuditLog).
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/silverreef/agentcore/common/redact"
)

// Entry is one audit row. Rows are never updated or deleted after insertion.
type Entry struct {
	ID         int64
	Timestamp  time.Time
	Action     string
	Category   string
	Identity   string
	Plugin     string
	Details    string // JSON blob, may be empty
	Success    bool
	DurationMS *int64
	Error      string
	TraceID    string
}

// Log is an append-only audit log backed by SQLite.
type Log struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp   TIMESTAMP NOT NULL,
	action      TEXT NOT NULL,
	category    TEXT NOT NULL,
	identity    TEXT NOT NULL,
	plugin      TEXT NOT NULL DEFAULT '',
	details     TEXT NOT NULL DEFAULT '',
	success     INTEGER NOT NULL,
	duration_ms INTEGER,
	error       TEXT NOT NULL DEFAULT '',
	trace_id    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_entries(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_entries(action);
CREATE INDEX IF NOT EXISTS idx_audit_category ON audit_entries(category);
CREATE INDEX IF NOT EXISTS idx_audit_trace_id ON audit_entries(trace_id);
`

// Open opens (creating if absent) the SQLite database at dbPath and ensures
// the audit schema exists.
func Open(dbPath string) (*Log, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}

	// SQLite is single-writer; one shared connection serializes callers
	// through database/sql rather than contending for the file lock.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("audit: set pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}

	return &Log{db: db}, nil
}

// Close closes the underlying database connection.
func (l *Log) Close() error {
	return l.db.Close()
}

// LogParams describes one audit insertion.
type LogParams struct {
	Action     string
	Category   string
	Identity   string
	Plugin     string
	Details    string
	Success    bool
	DurationMS *int64
	Error      string
	// TraceID correlates this entry with the pipeline invocation (or other
	// request-scoped operation) that produced it. May be empty for entries
	// with no associated trace (e.g. supervisor lifecycle events).
	TraceID string
}

// Log inserts one audit row and returns its id. This is the only write
// operation the package exposes; there is no update or delete API.
//
// Details and Error are redacted before they ever reach the database: any
// JSON-object Details blob has secret-shaped keys (token, password, key,
// secret, credential, auth) replaced via common/redact.Map, and the Error
// string is scrubbed of credential-shaped substrings (bearer tokens, API
// keys, JWTs) via common/redact.Freeform. No plaintext secret is meant to
// survive into the audit store, even transiently.
func (l *Log) Log(ctx context.Context, p LogParams) (int64, error) {
	details := redactDetailsBlob(p.Details)
	errMsg := redact.Freeform(p.Error)

	res, err := l.db.ExecContext(ctx,
		`INSERT INTO audit_entries (timestamp, action, category, identity, plugin, details, success, duration_ms, error, trace_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC(), p.Action, p.Category, p.Identity, p.Plugin, details, p.Success, p.DurationMS, errMsg, p.TraceID,
	)
	if err != nil {
		return 0, fmt.Errorf("audit: insert: %w", err)
	}
	return res.LastInsertId()
}

// redactDetailsBlob redacts secret-shaped keys out of a JSON-object Details
// blob. Non-JSON or non-object payloads (and the empty string) pass through
// unchanged — there is no key structure to redact by.
func redactDetailsBlob(details string) string {
	if details == "" {
		return details
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(details), &m); err != nil {
		return details
	}
	out, err := json.Marshal(redact.Map(m))
	if err != nil {
		return details
	}
	return string(out)
}

// QueryParams filters Query results. Zero-value fields are unconstrained;
// Limit <= 0 means no limit.
type QueryParams struct {
	Action   string
	Category string
	Since    time.Time
	Limit    int
}

// Query returns matching rows, most recent first.
func (l *Log) Query(ctx context.Context, p QueryParams) ([]Entry, error) {
	q := `SELECT id, timestamp, action, category, identity, plugin, details, success, duration_ms, error, trace_id
	      FROM audit_entries WHERE 1=1`
	var args []any
	if p.Action != "" {
		q += " AND action = ?"
		args = append(args, p.Action)
	}
	if p.Category != "" {
		q += " AND category = ?"
		args = append(args, p.Category)
	}
	if !p.Since.IsZero() {
		q += " AND timestamp >= ?"
		args = append(args, p.Since.UTC())
	}
	q += " ORDER BY id DESC"
	if p.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, p.Limit)
	}

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Action, &e.Category, &e.Identity, &e.Plugin, &e.Details, &e.Success, &e.DurationMS, &e.Error, &e.TraceID); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of rows matching action (if non-empty) recorded
// since the given time (zero for unconstrained).
func (l *Log) Count(ctx context.Context, action string, since time.Time) (int64, error) {
	q := "SELECT COUNT(*) FROM audit_entries WHERE 1=1"
	var args []any
	if action != "" {
		q += " AND action = ?"
		args = append(args, action)
	}
	if !since.IsZero() {
		q += " AND timestamp >= ?"
		args = append(args, since.UTC())
	}
	var n int64
	if err := l.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("audit: count: %w", err)
	}
	return n, nil
}
