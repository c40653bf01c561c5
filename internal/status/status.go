// internal/status/status.go
package status

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/signalnine/fleetwatch/internal/notify"
	"github.com/signalnine/fleetwatch/internal/protocol"
	"github.com/signalnine/fleetwatch/internal/store"
)

// AfterHeartbeat is the status of an endpoint that just sent a heartbeat
func AfterHeartbeat() protocol.EndpointStatus {
	return protocol.EndpointOnline
}

// AfterResults is the status of an endpoint that just reported a batch:
// warning if any check failed, online otherwise. Errors and skips do not degrade it.
func AfterResults(statuses []protocol.CheckStatus) protocol.EndpointStatus {
	for _, s := range statuses {
		if s == protocol.StatusFail {
			return protocol.EndpointWarning
		}
	}
	return protocol.EndpointOnline
}

// Store is the persistence the deriver needs
type Store interface {
	SetEndpointStatus(ctx context.Context, id uuid.UUID, status protocol.EndpointStatus, seen *time.Time) (store.Transition, error)
	MarkOffline(ctx context.Context, threshold time.Time) ([]store.Transition, error)
	DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Deriver applies status transitions and announces the ones that change something
type Deriver struct {
	store Store
	pub   notify.Publisher
	now   func() time.Time
}

// NewDeriver creates a deriver. A nil publisher discards notifications.
func NewDeriver(s Store, pub notify.Publisher) *Deriver {
	if pub == nil {
		pub = notify.Nop{}
	}
	return &Deriver{store: s, pub: pub, now: time.Now}
}

// Heartbeat marks the endpoint online and refreshes last_seen
func (d *Deriver) Heartbeat(ctx context.Context, id uuid.UUID) error {
	now := d.now()
	t, err := d.store.SetEndpointStatus(ctx, id, AfterHeartbeat(), &now)
	if err != nil {
		return err
	}
	d.Announce(ctx, t)
	return nil
}

// Results applies the outcome of a result batch and refreshes last_seen
func (d *Deriver) Results(ctx context.Context, id uuid.UUID, statuses []protocol.CheckStatus) (protocol.EndpointStatus, error) {
	now := d.now()
	next := AfterResults(statuses)
	t, err := d.store.SetEndpointStatus(ctx, id, next, &now)
	if err != nil {
		return "", err
	}
	d.Announce(ctx, t)
	return next, nil
}

// Override sets a status by hand. It is the only way to reach critical.
func (d *Deriver) Override(ctx context.Context, id uuid.UUID, status protocol.EndpointStatus) error {
	t, err := d.store.SetEndpointStatus(ctx, id, status, nil)
	if err != nil {
		return err
	}
	d.Announce(ctx, t)
	return nil
}

// SweepOffline marks endpoints silent for longer than threshold as offline
func (d *Deriver) SweepOffline(ctx context.Context, threshold time.Duration) (int, error) {
	changed, err := d.store.MarkOffline(ctx, d.now().Add(-threshold))
	if err != nil {
		return 0, err
	}
	for _, t := range changed {
		d.Announce(ctx, t)
	}
	return len(changed), nil
}

// CleanupSnapshots removes snapshots older than retention
func (d *Deriver) CleanupSnapshots(ctx context.Context, retention time.Duration) (int64, error) {
	return d.store.DeleteSnapshotsBefore(ctx, d.now().Add(-retention))
}

// Announce publishes t if the status changed. Publish failures are logged only.
func (d *Deriver) Announce(ctx context.Context, t store.Transition) {
	if !t.Changed() {
		return
	}
	log.Info().
		Str("endpoint_id", t.EndpointID.String()).
		Str("hostname", t.Hostname).
		Str("from", string(t.From)).
		Str("to", string(t.To)).
		Msg("endpoint status changed")

	err := d.pub.Publish(ctx, protocol.StatusChange{
		EndpointID: t.EndpointID,
		Hostname:   t.Hostname,
		From:       t.From,
		To:         t.To,
		At:         d.now().UTC(),
	})
	if err != nil {
		log.Warn().Err(err).Str("endpoint_id", t.EndpointID.String()).Msg("status change not published")
	}
}
