// internal/store/snapshots.go
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/signalnine/fleetwatch/internal/protocol"
)

// InsertSnapshot stores a system snapshot for an endpoint
func (d *DB) InsertSnapshot(ctx context.Context, endpointID uuid.UUID, collectedAt time.Time, s protocol.SnapshotData) error {
	procs, err := json.Marshal(nonNil(s.Processes))
	if err != nil {
		return errors.Wrap(err, "encode processes")
	}
	ports, err := json.Marshal(nonNil(s.OpenPorts))
	if err != nil {
		return errors.Wrap(err, "encode open ports")
	}
	software, err := json.Marshal(nonNil(s.InstalledSoftware))
	if err != nil {
		return errors.Wrap(err, "encode installed software")
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO system_snapshots (id, endpoint_id, collected_at, cpu_usage, memory_total, memory_used,
			disk_total, disk_used, processes, open_ports, installed_software)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.New(), endpointID, formatTime(collectedAt), s.CPUUsage,
		int64(s.MemoryTotal), int64(s.MemoryUsed), int64(s.DiskTotal), int64(s.DiskUsed),
		string(procs), string(ports), string(software))
	return errors.Wrap(err, "insert snapshot")
}

// LatestSnapshot returns the newest snapshot of an endpoint
func (d *DB) LatestSnapshot(ctx context.Context, endpointID uuid.UUID) (*protocol.Snapshot, error) {
	var s protocol.Snapshot
	var collectedStr, procs, ports, software string
	var memTotal, memUsed, diskTotal, diskUsed int64

	err := d.db.QueryRowContext(ctx, `
		SELECT id, endpoint_id, collected_at, cpu_usage, memory_total, memory_used,
			disk_total, disk_used, processes, open_ports, installed_software
		FROM system_snapshots
		WHERE endpoint_id = ?
		ORDER BY collected_at DESC
		LIMIT 1
	`, endpointID).Scan(&s.ID, &s.EndpointID, &collectedStr, &s.CPUUsage, &memTotal, &memUsed,
		&diskTotal, &diskUsed, &procs, &ports, &software)
	if err != nil {
		return nil, notFound(err, "latest snapshot")
	}

	s.CollectedAt = parseTime(collectedStr)
	s.MemoryTotal, s.MemoryUsed = uint64(memTotal), uint64(memUsed)
	s.DiskTotal, s.DiskUsed = uint64(diskTotal), uint64(diskUsed)
	if err := json.Unmarshal([]byte(procs), &s.Processes); err != nil {
		return nil, errors.Wrap(err, "decode processes")
	}
	if err := json.Unmarshal([]byte(ports), &s.OpenPorts); err != nil {
		return nil, errors.Wrap(err, "decode open ports")
	}
	if err := json.Unmarshal([]byte(software), &s.InstalledSoftware); err != nil {
		return nil, errors.Wrap(err, "decode installed software")
	}
	return &s, nil
}

// DeleteSnapshotsBefore removes snapshots collected before cutoff
func (d *DB) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM system_snapshots WHERE collected_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, errors.Wrap(err, "delete snapshots")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "delete snapshots")
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
