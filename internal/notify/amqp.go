// internal/notify/amqp.go
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/signalnine/fleetwatch/internal/protocol"
)

// DefaultExchange receives status change events
const DefaultExchange = "fleetwatch.status"

// DefaultDialTimeout bounds the TCP connect and AMQP handshake
const DefaultDialTimeout = 5 * time.Second

var errPublisherClosed = errors.New("publisher is closed")

// AMQP publishes status changes as JSON to a fanout exchange.
// The connection is opened lazily and re-dialed after a failure.
type AMQP struct {
	url         string
	exchange    string
	dialTimeout time.Duration

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool
}

// NewAMQP creates a publisher for url. No connection is made until the first Publish.
func NewAMQP(url, exchange string) *AMQP {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &AMQP{url: url, exchange: exchange, dialTimeout: DefaultDialTimeout}
}

// channelFor returns an open channel, dialing if needed. The mutex is not
// held while dialing.
func (a *AMQP) channelFor() (*amqp.Channel, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, errPublisherClosed
	}
	if a.channel != nil && !a.channel.IsClosed() {
		ch := a.channel
		a.mu.Unlock()
		return ch, nil
	}
	a.reset()
	a.mu.Unlock()

	conn, ch, err := a.dial()
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		ch.Close()
		conn.Close()
		return nil, errPublisherClosed
	}
	if a.channel != nil && !a.channel.IsClosed() {
		// lost a race with another dialer
		ch.Close()
		conn.Close()
		return a.channel, nil
	}
	a.conn, a.channel = conn, ch
	log.Info().Str("exchange", a.exchange).Msg("amqp publisher connected")
	return ch, nil
}

func (a *AMQP) dial() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(a.url, amqp.Config{
		Dial: amqp.DefaultDial(a.dialTimeout),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		a.exchange, // name
		"fanout",   // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange: %w", err)
	}
	return conn, ch, nil
}

// reset drops the current connection. Callers hold a.mu.
func (a *AMQP) reset() {
	if a.channel != nil {
		a.channel.Close()
		a.channel = nil
	}
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
}

func (a *AMQP) discard(ch *amqp.Channel) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.channel == ch {
		a.reset()
	}
}

// Publish sends one status change
func (a *AMQP) Publish(ctx context.Context, change protocol.StatusChange) error {
	body, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal status change: %w", err)
	}

	ch, err := a.channelFor()
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx,
		a.exchange, // exchange
		"",         // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    change.At,
			Type:         "endpoint.status_changed",
			Body:         body,
		},
	)
	if err != nil {
		a.discard(ch)
		return fmt.Errorf("publish status change: %w", err)
	}
	return nil
}

// Close releases the connection
func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.reset()
	return nil
}
