// Package bus delivers MATCHED notifications across process instances.
// Each waiting user has a channel named match_notification:<userID>; the
// instance holding the user's stream subscribes on their behalf and the
// matching initiator, which may run anywhere, publishes exactly once.
//
// Delivery is at-most-once. A publish to a channel with no subscriber is
// lost by design; the waiter recovers via the durable session record.
package bus

import "context"

// channelPrefix + <userID> names a user's notification channel. The same
// name is used verbatim as the NATS subject when that backend is active.
const channelPrefix = "match_notification:"

// Bus is the cross-instance notification transport. Subscribe registers
// a per-user handler; Unsubscribe is idempotent so stream-close cleanup
// can always run it.
type Bus interface {
	Publish(ctx context.Context, userID string, payload []byte) error
	Subscribe(ctx context.Context, userID string, handler func(payload []byte)) error
	Unsubscribe(userID string) error
	State() string
	Close()
}
