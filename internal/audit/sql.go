package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"lerian-mcp-git/internal/retry"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// database/sql driver names
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const createAuditTable = `
CREATE TABLE IF NOT EXISTS audit_events (
	id          TEXT PRIMARY KEY,
	recorded_at TIMESTAMP NOT NULL,
	operation   TEXT NOT NULL,
	arguments   TEXT,
	repository  TEXT,
	success     BOOLEAN NOT NULL,
	code        TEXT,
	message     TEXT,
	duration_ms BIGINT NOT NULL,
	trace_id    TEXT,
	transport   TEXT
)`

// SQLRecorder writes events to an audit_events table
type SQLRecorder struct {
	db     *sql.DB
	driver string
}

// NewSQLRecorder opens dsn with driver and creates the table when missing
func NewSQLRecorder(driver, dsn string) (*SQLRecorder, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported audit SQL driver: %s", driver)
	}
	if dsn == "" {
		return nil, fmt.Errorf("audit DSN is required for the %s driver", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if driver == DriverSQLite {
		// sqlite serializes writers; one connection also keeps :memory: databases alive
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, createAuditTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create audit table: %w", err)
	}

	return &SQLRecorder{db: db, driver: driver}, nil
}

// Record inserts one event
func (r *SQLRecorder) Record(ctx context.Context, event Event) error {
	event = normalize(event)

	args, err := json.Marshal(event.Arguments)
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to encode audit arguments: %w", err))
	}

	query := r.rebind(`INSERT INTO audit_events
		(id, recorded_at, operation, arguments, repository, success, code, message, duration_ms, trace_id, transport)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = r.db.ExecContext(ctx, query,
		event.ID, event.Timestamp.UTC(), event.Operation, string(args), event.Repository,
		event.Success, event.Code, event.Message, event.Duration.Milliseconds(),
		event.TraceID, event.Transport)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Search returns events matching criteria, newest first
func (r *SQLRecorder) Search(ctx context.Context, criteria SearchCriteria) ([]Event, error) {
	var (
		where []string
		args  []interface{}
	)
	if !criteria.StartTime.IsZero() {
		where = append(where, "recorded_at >= ?")
		args = append(args, criteria.StartTime.UTC())
	}
	if !criteria.EndTime.IsZero() {
		where = append(where, "recorded_at <= ?")
		args = append(args, criteria.EndTime.UTC())
	}
	if len(criteria.Operations) > 0 {
		marks := make([]string, len(criteria.Operations))
		for i, op := range criteria.Operations {
			marks[i] = "?"
			args = append(args, op)
		}
		where = append(where, "operation IN ("+strings.Join(marks, ", ")+")")
	}
	if criteria.Repository != "" {
		where = append(where, "repository = ?")
		args = append(args, criteria.Repository)
	}
	if criteria.Success != nil {
		where = append(where, "success = ?")
		args = append(args, *criteria.Success)
	}

	query := `SELECT id, recorded_at, operation, arguments, repository, success, code, message, duration_ms, trace_id, transport
		FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY recorded_at DESC"
	if criteria.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, criteria.Limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []Event{}
	for rows.Next() {
		var (
			event      Event
			argsJSON   sql.NullString
			repository sql.NullString
			code       sql.NullString
			message    sql.NullString
			traceID    sql.NullString
			transport  sql.NullString
			durationMS int64
		)
		if err := rows.Scan(&event.ID, &event.Timestamp, &event.Operation, &argsJSON, &repository,
			&event.Success, &code, &message, &durationMS, &traceID, &transport); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if argsJSON.Valid && argsJSON.String != "" && argsJSON.String != "null" {
			if err := json.Unmarshal([]byte(argsJSON.String), &event.Arguments); err != nil {
				return nil, fmt.Errorf("failed to decode audit arguments: %w", err)
			}
		}
		event.Repository = repository.String
		event.Code = code.String
		event.Message = message.String
		event.TraceID = traceID.String
		event.Transport = transport.String
		event.Duration = time.Duration(durationMS) * time.Millisecond
		events = append(events, event)
	}
	return events, rows.Err()
}

// Close closes the database handle
func (r *SQLRecorder) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $n for postgres
func (r *SQLRecorder) rebind(query string) string {
	if r.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
