// internal/notify/notify.go
package notify

import (
	"context"
	"sync"

	"github.com/signalnine/fleetwatch/internal/protocol"
)

// Publisher announces endpoint status changes to interested consumers
type Publisher interface {
	Publish(ctx context.Context, change protocol.StatusChange) error
	Close() error
}

// Nop discards every change
type Nop struct{}

func (Nop) Publish(context.Context, protocol.StatusChange) error { return nil }
func (Nop) Close() error                                         { return nil }

// Recorder keeps published changes in memory
type Recorder struct {
	mu      sync.Mutex
	changes []protocol.StatusChange
}

func (r *Recorder) Publish(_ context.Context, c protocol.StatusChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
	return nil
}

// Changes returns a copy of everything published so far
func (r *Recorder) Changes() []protocol.StatusChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.StatusChange(nil), r.changes...)
}

func (r *Recorder) Close() error { return nil }
