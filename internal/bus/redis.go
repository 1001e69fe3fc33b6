package bus

import (
	"context"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus is the default bus backend, built on Redis pub/sub. One
// shared subscriber connection carries every waiter held by this
// instance; messages are dispatched to handlers by channel name.
type RedisBus struct {
	rdb    *redis.Client
	pubsub *redis.PubSub

	mu       sync.Mutex
	handlers map[string]func([]byte)
	closed   bool
}

// NewRedisBus creates the bus and starts its dispatch loop.
func NewRedisBus(rdb *redis.Client) *RedisBus {
	b := &RedisBus{
		rdb:      rdb,
		pubsub:   rdb.Subscribe(context.Background()),
		handlers: make(map[string]func([]byte)),
	}
	go b.dispatch()
	return b
}

// dispatch forwards every received message to the handler registered for
// its channel. A message for an unsubscribed channel is dropped, which
// makes late publishes after stream-close cleanup harmless.
func (b *RedisBus) dispatch() {
	for msg := range b.pubsub.Channel() {
		b.mu.Lock()
		handler := b.handlers[msg.Channel]
		b.mu.Unlock()
		if handler != nil {
			handler([]byte(msg.Payload))
		}
	}
}

// Publish sends payload to the user's notification channel. Fire and
// forget: zero subscribers is not an error.
func (b *RedisBus) Publish(ctx context.Context, userID string, payload []byte) error {
	return b.rdb.Publish(ctx, channelPrefix+userID, payload).Err()
}

// Subscribe registers handler for the user's channel and adds the
// channel to the shared subscriber connection.
func (b *RedisBus) Subscribe(ctx context.Context, userID string, handler func(payload []byte)) error {
	channel := channelPrefix + userID

	b.mu.Lock()
	b.handlers[channel] = handler
	b.mu.Unlock()

	if err := b.pubsub.Subscribe(ctx, channel); err != nil {
		b.mu.Lock()
		delete(b.handlers, channel)
		b.mu.Unlock()
		return err
	}
	return nil
}

// Unsubscribe removes the user's handler and channel. Idempotent.
func (b *RedisBus) Unsubscribe(userID string) error {
	channel := channelPrefix + userID

	b.mu.Lock()
	if _, ok := b.handlers[channel]; !ok {
		b.mu.Unlock()
		return nil
	}
	delete(b.handlers, channel)
	b.mu.Unlock()

	return b.pubsub.Unsubscribe(context.Background(), channel)
}

// State reports the backend and connection health for the status page.
func (b *RedisBus) State() string {
	if err := b.rdb.Ping(context.Background()).Err(); err != nil {
		return "redis: " + err.Error()
	}
	return "redis: connected"
}

// Close shuts the subscriber connection down and drops all handlers.
func (b *RedisBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.handlers = make(map[string]func([]byte))
	b.mu.Unlock()

	if err := b.pubsub.Close(); err != nil {
		log.Printf("[bus] pubsub close: %v", err)
	}
}
