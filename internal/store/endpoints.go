// internal/store/endpoints.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/signalnine/fleetwatch/internal/protocol"
)

// Transition records an endpoint status change made by the store
type Transition struct {
	EndpointID uuid.UUID
	Hostname   string
	From       protocol.EndpointStatus
	To         protocol.EndpointStatus
}

// Changed reports whether the status actually moved
func (t Transition) Changed() bool {
	return t.From != t.To
}

const endpointColumns = `id, hostname, os, os_version, agent_version, ip_addresses, last_seen, status, created_at`

// UpsertEndpoint registers an endpoint by hostname. A known hostname keeps its
// original id and has its metadata refreshed. The endpoint is marked online.
func (d *DB) UpsertEndpoint(ctx context.Context, reg protocol.RegisterRequest) (*protocol.Endpoint, Transition, error) {
	now := d.now()
	ips := reg.IPAddresses
	if ips == nil {
		ips = []string{}
	}
	ipsJSON, err := json.Marshal(ips)
	if err != nil {
		return nil, Transition{}, errors.Wrap(err, "encode ip addresses")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, Transition{}, errors.Wrap(err, "begin upsert")
	}
	defer tx.Rollback()

	var prev protocol.EndpointStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM endpoints WHERE hostname = ?`, reg.Hostname).Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, Transition{}, errors.Wrap(err, "lookup endpoint")
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO endpoints (id, hostname, os, os_version, agent_version, ip_addresses, last_seen, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hostname) DO UPDATE SET
			os = excluded.os,
			os_version = excluded.os_version,
			agent_version = excluded.agent_version,
			ip_addresses = excluded.ip_addresses,
			last_seen = excluded.last_seen,
			status = excluded.status
		RETURNING `+endpointColumns,
		uuid.New(), reg.Hostname, reg.OS, reg.OSVersion, reg.AgentVersion, string(ipsJSON),
		formatTime(now), protocol.EndpointOnline, formatTime(now))

	e, err := scanEndpoint(row)
	if err != nil {
		return nil, Transition{}, errors.Wrap(err, "upsert endpoint")
	}
	if err := tx.Commit(); err != nil {
		return nil, Transition{}, errors.Wrap(err, "commit upsert")
	}

	return e, Transition{EndpointID: e.ID, Hostname: e.Hostname, From: prev, To: e.Status}, nil
}

// GetEndpoint returns one endpoint by id
func (d *DB) GetEndpoint(ctx context.Context, id uuid.UUID) (*protocol.Endpoint, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+endpointColumns+` FROM endpoints WHERE id = ?`, id)
	e, err := scanEndpoint(row)
	if err != nil {
		return nil, notFound(err, "get endpoint")
	}
	return e, nil
}

// ListEndpoints returns all endpoints ordered by hostname
func (d *DB) ListEndpoints(ctx context.Context) ([]protocol.Endpoint, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+endpointColumns+` FROM endpoints ORDER BY hostname`)
	if err != nil {
		return nil, errors.Wrap(err, "list endpoints")
	}
	defer rows.Close()

	endpoints := []protocol.Endpoint{}
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan endpoint")
		}
		endpoints = append(endpoints, *e)
	}
	return endpoints, errors.Wrap(rows.Err(), "list endpoints")
}

// SetEndpointStatus sets the status of an endpoint and, when seen is non-nil,
// its last_seen time. It returns the transition it made.
func (d *DB) SetEndpointStatus(ctx context.Context, id uuid.UUID, status protocol.EndpointStatus, seen *time.Time) (Transition, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return Transition{}, errors.Wrap(err, "begin status update")
	}
	defer tx.Rollback()

	t := Transition{EndpointID: id, To: status}
	err = tx.QueryRowContext(ctx, `SELECT hostname, status FROM endpoints WHERE id = ?`, id).Scan(&t.Hostname, &t.From)
	if err != nil {
		return Transition{}, notFound(err, "lookup endpoint")
	}

	if seen != nil {
		_, err = tx.ExecContext(ctx, `UPDATE endpoints SET status = ?, last_seen = ? WHERE id = ?`, status, formatTime(*seen), id)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE endpoints SET status = ? WHERE id = ?`, status, id)
	}
	if err != nil {
		return Transition{}, errors.Wrap(err, "update endpoint status")
	}

	return t, errors.Wrap(tx.Commit(), "commit status update")
}

// DeleteEndpoint removes an endpoint with its results and snapshots
func (d *DB) DeleteEndpoint(ctx context.Context, id uuid.UUID) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM endpoints WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "delete endpoint")
	}
	return affected(res, "delete endpoint")
}

// MarkOffline moves every endpoint not seen since before threshold to offline.
// Endpoints already offline are left untouched.
func (d *DB) MarkOffline(ctx context.Context, threshold time.Time) ([]Transition, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin offline sweep")
	}
	defer tx.Rollback()

	cutoff := formatTime(threshold)
	rows, err := tx.QueryContext(ctx, `
		SELECT id, hostname, status FROM endpoints
		WHERE last_seen < ? AND status != ?
	`, cutoff, protocol.EndpointOffline)
	if err != nil {
		return nil, errors.Wrap(err, "select stale endpoints")
	}

	var stale []Transition
	for rows.Next() {
		t := Transition{To: protocol.EndpointOffline}
		if err := rows.Scan(&t.EndpointID, &t.Hostname, &t.From); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan stale endpoint")
		}
		stale = append(stale, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "select stale endpoints")
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE endpoints SET status = ?
		WHERE last_seen < ? AND status != ?
	`, protocol.EndpointOffline, cutoff, protocol.EndpointOffline); err != nil {
		return nil, errors.Wrap(err, "mark offline")
	}

	return stale, errors.Wrap(tx.Commit(), "commit offline sweep")
}

// EndpointCounts returns the number of endpoints per status
func (d *DB) EndpointCounts(ctx context.Context) (map[protocol.EndpointStatus]int, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM endpoints GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "count endpoints")
	}
	defer rows.Close()

	counts := make(map[protocol.EndpointStatus]int)
	for rows.Next() {
		var status protocol.EndpointStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "scan endpoint count")
		}
		counts[status] = count
	}
	return counts, errors.Wrap(rows.Err(), "count endpoints")
}

func scanEndpoint(row rowScanner) (*protocol.Endpoint, error) {
	var e protocol.Endpoint
	var ipsJSON, createdStr string
	var lastSeen sql.NullString

	err := row.Scan(&e.ID, &e.Hostname, &e.OS, &e.OSVersion, &e.AgentVersion, &ipsJSON, &lastSeen, &e.Status, &createdStr)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(ipsJSON), &e.IPAddresses); err != nil || e.IPAddresses == nil {
		e.IPAddresses = []string{}
	}
	if lastSeen.Valid {
		t := parseTime(lastSeen.String)
		e.LastSeen = &t
	}
	e.CreatedAt = parseTime(createdStr)
	return &e, nil
}

func affected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, what)
	}
	if n == 0 {
		return errors.Wrap(ErrNotFound, what)
	}
	return nil
}
