// internal/status/status_test.go
package status

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/fleetwatch/internal/notify"
	"github.com/signalnine/fleetwatch/internal/protocol"
	"github.com/signalnine/fleetwatch/internal/store"
)

func TestAfterResults(t *testing.T) {
	tests := []struct {
		name     string
		statuses []protocol.CheckStatus
		want     protocol.EndpointStatus
	}{
		{"empty", nil, protocol.EndpointOnline},
		{"all pass", []protocol.CheckStatus{protocol.StatusPass, protocol.StatusPass}, protocol.EndpointOnline},
		{"one fail", []protocol.CheckStatus{protocol.StatusPass, protocol.StatusFail}, protocol.EndpointWarning},
		{"errors and skips", []protocol.CheckStatus{protocol.StatusError, protocol.StatusSkipped}, protocol.EndpointOnline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AfterResults(tt.statuses); got != tt.want {
				t.Errorf("AfterResults = %q, want %q", got, tt.want)
			}
		})
	}
}

func setup(t *testing.T) (*store.DB, *Deriver, *notify.Recorder) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	rec := &notify.Recorder{}
	return db, NewDeriver(db, rec), rec
}

func TestDeriverTransitions(t *testing.T) {
	db, d, rec := setup(t)
	ctx := context.Background()

	e, _, err := db.UpsertEndpoint(ctx, protocol.RegisterRequest{Hostname: "web-1"})
	if err != nil {
		t.Fatal(err)
	}

	next, err := d.Results(ctx, e.ID, []protocol.CheckStatus{protocol.StatusFail, protocol.StatusPass})
	if err != nil {
		t.Fatal(err)
	}
	if next != protocol.EndpointWarning {
		t.Errorf("Results = %q, want warning", next)
	}

	// heartbeat after a warning batch returns the endpoint to online
	if err := d.Heartbeat(ctx, e.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := db.GetEndpoint(ctx, e.ID)
	if got.Status != protocol.EndpointOnline {
		t.Errorf("Status = %q, want online", got.Status)
	}

	// unchanged status is not announced
	if err := d.Heartbeat(ctx, e.ID); err != nil {
		t.Fatal(err)
	}

	changes := rec.Changes()
	if len(changes) != 2 {
		t.Fatalf("published %d changes, want 2: %+v", len(changes), changes)
	}
	if changes[0].To != protocol.EndpointWarning || changes[1].To != protocol.EndpointOnline {
		t.Errorf("changes = %+v", changes)
	}
}

func TestSweepOffline(t *testing.T) {
	db, d, rec := setup(t)
	ctx := context.Background()

	e, _, err := db.UpsertEndpoint(ctx, protocol.RegisterRequest{Hostname: "web-1"})
	if err != nil {
		t.Fatal(err)
	}

	// not yet stale
	n, err := d.SweepOffline(ctx, 10*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("swept %d, want 0", n)
	}

	d.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	n, err = d.SweepOffline(ctx, 10*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("swept %d, want 1", n)
	}
	got, _ := db.GetEndpoint(ctx, e.ID)
	if got.Status != protocol.EndpointOffline {
		t.Errorf("Status = %q, want offline", got.Status)
	}

	n, _ = d.SweepOffline(ctx, 10*time.Minute)
	if n != 0 {
		t.Errorf("second sweep changed %d, want 0", n)
	}
	if len(rec.Changes()) != 1 {
		t.Errorf("published %d changes, want 1", len(rec.Changes()))
	}
}

func TestOverrideCritical(t *testing.T) {
	db, d, _ := setup(t)
	ctx := context.Background()

	e, _, _ := db.UpsertEndpoint(ctx, protocol.RegisterRequest{Hostname: "db-1"})
	if err := d.Override(ctx, e.ID, protocol.EndpointCritical); err != nil {
		t.Fatal(err)
	}
	got, _ := db.GetEndpoint(ctx, e.ID)
	if got.Status != protocol.EndpointCritical {
		t.Errorf("Status = %q, want critical", got.Status)
	}
	if got.LastSeen == nil {
		t.Error("override must not clear last_seen")
	}
}

func TestSweeperStopsOnCancel(t *testing.T) {
	_, d, _ := setup(t)
	s := NewSweeper(d, SweeperConfig{SweepInterval: 10 * time.Millisecond, CleanupInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
