// Package history persists release lifecycle events in an embedded
// SQLite database under .relkit/history.db.
//
// Every publish, tag, rollback, and monitoring verdict is recorded so
// `rk history` can answer "what happened to 2.1.0 and when" without
// digging through CI logs. The database is opened in WAL mode so a
// long-running monitor can append while the CLI reads.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DefaultPath is the store location relative to the repository root.
const DefaultPath = ".relkit/history.db"

// Event kinds recorded by the release workflow.
const (
	KindBump     = "bump"
	KindTag      = "tag"
	KindPublish  = "publish"
	KindVerify   = "verify"
	KindRollback = "rollback"
	KindMonitor  = "monitor"
)

// Event is one recorded release lifecycle occurrence.
type Event struct {
	ID        int64             `json:"id"`
	Kind      string            `json:"kind"`
	Package   string            `json:"package"`
	Version   string            `json:"version"`
	Status    string            `json:"status"` // ok, failed, warn
	Summary   string            `json:"summary"`
	Detail    map[string]string `json:"detail,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Store wraps the SQLite connection.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates or opens the history database at path, initializing the
// schema on first use. The caller must Close the store when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close history database: %w", err)
	}
	s.conn = nil
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		package TEXT NOT NULL,
		version TEXT NOT NULL,
		status TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		detail TEXT,  -- JSON object
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_version ON events(version);
	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at);
	`
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("initialize history schema: %w", err)
	}
	return nil
}

// Record appends an event. The event's CreatedAt is set to now when
// zero. Returns the assigned row ID.
func (s *Store) Record(ctx context.Context, ev Event) (int64, error) {
	if ev.Kind == "" {
		return 0, fmt.Errorf("event kind is required")
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	var detail any
	if len(ev.Detail) > 0 {
		data, err := json.Marshal(ev.Detail)
		if err != nil {
			return 0, fmt.Errorf("marshal event detail: %w", err)
		}
		detail = string(data)
	}

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO events (kind, package, version, status, summary, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.Kind, ev.Package, ev.Version, ev.Status, ev.Summary, detail,
		ev.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("record event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("event row id: %w", err)
	}
	return id, nil
}

// Query filters the event log.
type Query struct {
	Kind    string
	Version string
	Since   time.Time
	Limit   int
}

// List returns events matching the query, newest first.
func (s *Store) List(ctx context.Context, q Query) ([]Event, error) {
	query := "SELECT id, kind, package, version, status, summary, detail, created_at FROM events WHERE 1=1"
	args := []any{}

	if q.Kind != "" {
		query += " AND kind = ?"
		args = append(args, q.Kind)
	}
	if q.Version != "" {
		query += " AND version = ?"
		args = append(args, q.Version)
	}
	if !q.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, q.Since.UTC().Format(time.RFC3339))
	}

	query += " ORDER BY created_at DESC, id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Get returns a single event by ID.
func (s *Store) Get(ctx context.Context, id int64) (Event, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, kind, package, version, status, summary, detail, created_at
		FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return Event{}, fmt.Errorf("event %d not found", id)
	}
	return ev, err
}

// VersionsReleased returns the distinct versions with a successful
// publish event, newest first.
func (s *Store) VersionsReleased(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT DISTINCT version FROM events
		WHERE kind = ? AND status = 'ok'
		ORDER BY created_at DESC`, KindPublish)
	if err != nil {
		return nil, fmt.Errorf("query released versions: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (Event, error) {
	var ev Event
	var detail sql.NullString
	var created string

	err := row.Scan(&ev.ID, &ev.Kind, &ev.Package, &ev.Version, &ev.Status, &ev.Summary, &detail, &created)
	if err != nil {
		return Event{}, err
	}
	if detail.Valid && detail.String != "" {
		if err := json.Unmarshal([]byte(detail.String), &ev.Detail); err != nil {
			return Event{}, fmt.Errorf("unmarshal event detail: %w", err)
		}
	}
	ev.CreatedAt, err = time.Parse(time.RFC3339, created)
	if err != nil {
		return Event{}, fmt.Errorf("parse event timestamp: %w", err)
	}
	return ev, nil
}
