// internal/notify/queue.go
package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/signalnine/fleetwatch/internal/protocol"
)

// DefaultQueueSize is how many changes may wait for delivery
const DefaultQueueSize = 256

// ErrQueueFull is returned when a change is dropped because delivery is behind
var ErrQueueFull = errors.New("status change queue full")

// Queue buffers changes for a slower Publisher. Publish never blocks; a
// single Run goroutine delivers changes in order.
type Queue struct {
	next   Publisher
	events chan protocol.StatusChange
}

// NewQueue wraps next with a buffer of size changes
func NewQueue(next Publisher, size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{next: next, events: make(chan protocol.StatusChange, size)}
}

// Publish enqueues change, or drops it with ErrQueueFull
func (q *Queue) Publish(_ context.Context, change protocol.StatusChange) error {
	select {
	case q.events <- change:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run delivers queued changes until ctx is cancelled. Delivery failures are
// logged and the change is dropped.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if n := len(q.events); n > 0 {
				log.Warn().Int("dropped", n).Msg("status changes undelivered at shutdown")
			}
			return
		case change := <-q.events:
			if err := q.next.Publish(ctx, change); err != nil {
				log.Warn().Err(err).
					Str("endpoint_id", change.EndpointID.String()).
					Str("to", string(change.To)).
					Msg("status change not delivered")
			}
		}
	}
}

// Close closes the wrapped publisher
func (q *Queue) Close() error {
	return q.next.Close()
}
