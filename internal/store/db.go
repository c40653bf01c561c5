// internal/store/db.go
package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row addressed by id does not exist
var ErrNotFound = errors.New("not found")

// timeFormat is fixed-width so lexical order in SQLite equals time order
const timeFormat = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS endpoints (
	id TEXT PRIMARY KEY,
	hostname TEXT NOT NULL UNIQUE,
	os TEXT NOT NULL DEFAULT '',
	os_version TEXT NOT NULL DEFAULT '',
	agent_version TEXT NOT NULL DEFAULT '',
	ip_addresses TEXT NOT NULL DEFAULT '[]',
	last_seen TEXT,
	status TEXT NOT NULL DEFAULT 'offline',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_endpoints_last_seen ON endpoints(last_seen);

CREATE TABLE IF NOT EXISTS check_definitions (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	kind TEXT NOT NULL,
	parameters TEXT NOT NULL,
	severity TEXT NOT NULL DEFAULT 'medium',
	enabled INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS check_results (
	id TEXT PRIMARY KEY,
	endpoint_id TEXT NOT NULL REFERENCES endpoints(id) ON DELETE CASCADE,
	check_id TEXT NOT NULL REFERENCES check_definitions(id) ON DELETE CASCADE,
	status TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	collected_at TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_endpoint ON check_results(endpoint_id, collected_at);
CREATE INDEX IF NOT EXISTS idx_results_check ON check_results(check_id, collected_at);

CREATE TABLE IF NOT EXISTS system_snapshots (
	id TEXT PRIMARY KEY,
	endpoint_id TEXT NOT NULL REFERENCES endpoints(id) ON DELETE CASCADE,
	collected_at TEXT NOT NULL,
	cpu_usage REAL NOT NULL DEFAULT 0,
	memory_total INTEGER NOT NULL DEFAULT 0,
	memory_used INTEGER NOT NULL DEFAULT 0,
	disk_total INTEGER NOT NULL DEFAULT 0,
	disk_used INTEGER NOT NULL DEFAULT 0,
	processes TEXT NOT NULL DEFAULT '[]',
	open_ports TEXT NOT NULL DEFAULT '[]',
	installed_software TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_snapshots_endpoint ON system_snapshots(endpoint_id, collected_at);
`

// DB wraps the SQLite connection
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// dsnPragmas are applied to every connection
const dsnPragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// dsn appends dsnPragmas to path, keeping any query the caller supplied
func dsn(path string) string {
	switch {
	case !strings.Contains(path, "?"):
		return path + "?" + dsnPragmas
	case strings.HasSuffix(path, "?"), strings.HasSuffix(path, "&"):
		return path + dsnPragmas
	default:
		return path + "&" + dsnPragmas
	}
}

// Open opens or creates the SQLite database at path
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// SQLite allows one writer; serialize through a single connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enable WAL")
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create schema")
	}

	return &DB{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping verifies the database is reachable
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		// tolerate rows written with a different precision
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrap(ErrNotFound, what)
	}
	return errors.Wrap(err, what)
}
