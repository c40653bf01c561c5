// internal/store/checks.go
package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/signalnine/fleetwatch/internal/protocol"
)

const checkColumns = `id, name, description, kind, parameters, severity, enabled, created_at, updated_at`

// CreateCheck stores a new check definition, assigning its id and timestamps
func (d *DB) CreateCheck(ctx context.Context, c *protocol.CheckDefinition) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := d.now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO check_definitions (`+checkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Name, nullString(c.Description), c.Kind, string(c.Parameters), c.Severity, c.Enabled,
		formatTime(now), formatTime(now))
	return errors.Wrap(err, "insert check")
}

// GetCheck returns one check definition by id
func (d *DB) GetCheck(ctx context.Context, id uuid.UUID) (*protocol.CheckDefinition, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+checkColumns+` FROM check_definitions WHERE id = ?`, id)
	c, err := scanCheck(row)
	if err != nil {
		return nil, notFound(err, "get check")
	}
	return c, nil
}

// ListChecks returns all check definitions ordered by name
func (d *DB) ListChecks(ctx context.Context) ([]protocol.CheckDefinition, error) {
	return d.queryChecks(ctx, `SELECT `+checkColumns+` FROM check_definitions ORDER BY name`)
}

// ListEnabledChecks returns enabled check definitions ordered by name
func (d *DB) ListEnabledChecks(ctx context.Context) ([]protocol.CheckDefinition, error) {
	return d.queryChecks(ctx, `SELECT `+checkColumns+` FROM check_definitions WHERE enabled = 1 ORDER BY name`)
}

// UpdateCheck overwrites a stored check definition
func (d *DB) UpdateCheck(ctx context.Context, c *protocol.CheckDefinition) error {
	c.UpdatedAt = d.now().UTC()
	res, err := d.db.ExecContext(ctx, `
		UPDATE check_definitions
		SET name = ?, description = ?, kind = ?, parameters = ?, severity = ?, enabled = ?, updated_at = ?
		WHERE id = ?
	`, c.Name, nullString(c.Description), c.Kind, string(c.Parameters), c.Severity, c.Enabled,
		formatTime(c.UpdatedAt), c.ID)
	if err != nil {
		return errors.Wrap(err, "update check")
	}
	return affected(res, "update check")
}

// DeleteCheck removes a check definition and its results
func (d *DB) DeleteCheck(ctx context.Context, id uuid.UUID) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM check_definitions WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "delete check")
	}
	return affected(res, "delete check")
}

// CheckCounts returns the total and enabled number of check definitions
func (d *DB) CheckCounts(ctx context.Context) (total, enabled int, err error) {
	err = d.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(enabled), 0) FROM check_definitions
	`).Scan(&total, &enabled)
	return total, enabled, errors.Wrap(err, "count checks")
}

func (d *DB) queryChecks(ctx context.Context, query string, args ...any) ([]protocol.CheckDefinition, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query checks")
	}
	defer rows.Close()

	checks := []protocol.CheckDefinition{}
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan check")
		}
		checks = append(checks, *c)
	}
	return checks, errors.Wrap(rows.Err(), "query checks")
}

func scanCheck(row rowScanner) (*protocol.CheckDefinition, error) {
	var c protocol.CheckDefinition
	var desc sql.NullString
	var params, createdStr, updatedStr string

	err := row.Scan(&c.ID, &c.Name, &desc, &c.Kind, &params, &c.Severity, &c.Enabled, &createdStr, &updatedStr)
	if err != nil {
		return nil, err
	}

	if desc.Valid {
		c.Description = &desc.String
	}
	c.Parameters = []byte(params)
	c.CreatedAt = parseTime(createdStr)
	c.UpdatedAt = parseTime(updatedStr)
	return &c, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
