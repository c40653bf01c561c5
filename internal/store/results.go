// internal/store/results.go
package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/signalnine/fleetwatch/internal/protocol"
)

// DefaultResultLimit bounds result listings when no limit is given
const DefaultResultLimit = 100

// ResultFilter narrows ListResults. Zero values mean no filter.
type ResultFilter struct {
	EndpointID uuid.UUID
	CheckID    uuid.UUID
	Limit      int
}

const resultColumns = `id, endpoint_id, check_id, status, message, collected_at, created_at`

// InsertResult appends one check result. The endpoint and check must exist.
func (d *DB) InsertResult(ctx context.Context, r *protocol.CheckResult) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = d.now().UTC()

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO check_results (`+resultColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.EndpointID, r.CheckID, r.Status, r.Message, formatTime(r.CollectedAt), formatTime(r.CreatedAt))
	return errors.Wrap(err, "insert result")
}

// ListResults returns results newest first
func (d *DB) ListResults(ctx context.Context, f ResultFilter) ([]protocol.CheckResult, error) {
	var where []string
	var args []any
	if f.EndpointID != uuid.Nil {
		where = append(where, "endpoint_id = ?")
		args = append(args, f.EndpointID)
	}
	if f.CheckID != uuid.Nil {
		where = append(where, "check_id = ?")
		args = append(args, f.CheckID)
	}
	if f.Limit <= 0 {
		f.Limit = DefaultResultLimit
	}

	query := `SELECT ` + resultColumns + ` FROM check_results`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY collected_at DESC, created_at DESC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list results")
	}
	defer rows.Close()
	return scanResults(rows)
}

// LatestResults returns the most recent result per check for one endpoint
func (d *DB) LatestResults(ctx context.Context, endpointID uuid.UUID) ([]protocol.CheckResult, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+resultColumns+` FROM (
			SELECT *, ROW_NUMBER() OVER (
				PARTITION BY check_id ORDER BY collected_at DESC, created_at DESC
			) AS rn
			FROM check_results
			WHERE endpoint_id = ?
		)
		WHERE rn = 1
		ORDER BY collected_at DESC
	`, endpointID)
	if err != nil {
		return nil, errors.Wrap(err, "latest results")
	}
	defer rows.Close()
	return scanResults(rows)
}

func scanResults(rows *sql.Rows) ([]protocol.CheckResult, error) {
	results := []protocol.CheckResult{}
	for rows.Next() {
		var r protocol.CheckResult
		var collectedStr, createdStr string

		err := rows.Scan(&r.ID, &r.EndpointID, &r.CheckID, &r.Status, &r.Message, &collectedStr, &createdStr)
		if err != nil {
			return nil, errors.Wrap(err, "scan result")
		}

		r.CollectedAt = parseTime(collectedStr)
		r.CreatedAt = parseTime(createdStr)
		results = append(results, r)
	}
	return results, errors.Wrap(rows.Err(), "scan results")
}

// RecentResults returns the newest results fleet-wide with endpoint and check names
func (d *DB) RecentResults(ctx context.Context, limit int) ([]protocol.RecentCheckResult, error) {
	if limit <= 0 {
		limit = DefaultResultLimit
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT r.id, r.endpoint_id, r.check_id, r.status, r.message, r.collected_at, r.created_at,
			e.hostname, c.name
		FROM check_results r
		JOIN endpoints e ON e.id = r.endpoint_id
		JOIN check_definitions c ON c.id = r.check_id
		ORDER BY r.collected_at DESC, r.created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "recent results")
	}
	defer rows.Close()

	results := []protocol.RecentCheckResult{}
	for rows.Next() {
		var r protocol.RecentCheckResult
		var collectedStr, createdStr string

		err := rows.Scan(&r.ID, &r.EndpointID, &r.CheckID, &r.Status, &r.Message, &collectedStr, &createdStr,
			&r.EndpointHostname, &r.CheckName)
		if err != nil {
			return nil, errors.Wrap(err, "scan recent result")
		}

		r.CollectedAt = parseTime(collectedStr)
		r.CreatedAt = parseTime(createdStr)
		results = append(results, r)
	}
	return results, errors.Wrap(rows.Err(), "scan recent results")
}
