package bus

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSBus is the bus backend for deployments that already run NATS.
// Channel names are used verbatim as subjects; the wire payload is
// identical to the Redis backend's.
type NATSBus struct {
	conn *nats.Conn

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NewNATSBus connects to NATS and returns a ready bus. Reconnects are
// retried indefinitely with a short wait, matching the long-lived nature
// of waiter subscriptions.
func NewNATSBus(url, name string) (*NATSBus, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[bus] nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[bus] nats reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[bus] nats connection closed")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("bus: nats connect: %w", err)
	}
	log.Printf("[bus] connected to nats at %s", nc.ConnectedUrl())

	return &NATSBus{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends payload to the user's notification subject.
func (b *NATSBus) Publish(_ context.Context, userID string, payload []byte) error {
	return b.conn.Publish(channelPrefix+userID, payload)
}

// Subscribe registers handler for the user's subject.
func (b *NATSBus) Subscribe(_ context.Context, userID string, handler func(payload []byte)) error {
	subject := channelPrefix + userID
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("bus: subscribe %s: %w", subject, err)
	}

	b.mu.Lock()
	b.subs[subject] = sub
	b.mu.Unlock()
	return nil
}

// Unsubscribe drops the user's subscription. Idempotent.
func (b *NATSBus) Unsubscribe(userID string) error {
	subject := channelPrefix + userID

	b.mu.Lock()
	sub, ok := b.subs[subject]
	delete(b.subs, subject)
	b.mu.Unlock()

	if !ok {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("bus: unsubscribe %s: %w", subject, err)
	}
	return nil
}

// State reports the backend and connection health for the status page.
func (b *NATSBus) State() string {
	return "nats: " + b.conn.Status().String()
}

// Close drains all subscriptions and the connection.
func (b *NATSBus) Close() {
	b.mu.Lock()
	for subject, sub := range b.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[bus] drain %s: %v", subject, err)
		}
	}
	b.subs = make(map[string]*nats.Subscription)
	b.mu.Unlock()

	if err := b.conn.Drain(); err != nil {
		log.Printf("[bus] connection drain: %v", err)
	}
}
