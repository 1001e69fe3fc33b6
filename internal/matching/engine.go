// Package matching implements the find-or-enqueue match engine and the
// Redis queue structures behind it. Concurrency safety across process
// instances comes from the store's atomic pop-random semantics plus
// idempotent cleanups; the engine holds no cross-call locks.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"

	"github.com/tyron12233/animochat-match-server/internal/metrics"
	"github.com/tyron12233/animochat-match-server/internal/protocol"
	"github.com/tyron12233/animochat-match-server/internal/session"
)

// ErrEmptyUserID is returned when FindOrQueue is called without a user id.
var ErrEmptyUserID = errors.New("matching: empty user id")

// Match is the synchronous outcome of a successful pairing. The partner
// has already been notified via the bus and the session is durable by
// the time a Match is returned.
type Match struct {
	PartnerID       string
	CommonInterests []string
	ChatID          string
	ChatServerURL   string
}

// Publisher pushes a matched payload to a waiter's notification channel.
// Implemented by the bus backends.
type Publisher interface {
	Publish(ctx context.Context, userID string, payload []byte) error
}

// ServerPicker yields the chat server URL for a newly formed pair.
// Implemented by the discovery selector.
type ServerPicker interface {
	Next(ctx context.Context) (string, error)
}

// Engine pairs users by shared interest against the shared Redis store.
type Engine struct {
	queue    *Queue
	sessions *session.Manager
	bus      Publisher
	servers  ServerPicker
	deny     map[string]bool
}

// NewEngine wires the match engine. denylist names tags excluded from
// the popular-interests ranking, in canonical (uppercased) form.
func NewEngine(queue *Queue, sessions *session.Manager, bus Publisher, servers ServerPicker, denylist []string) *Engine {
	deny := make(map[string]bool, len(denylist))
	for _, tag := range denylist {
		deny[tag] = true
	}
	return &Engine{
		queue:    queue,
		sessions: sessions,
		bus:      bus,
		servers:  servers,
		deny:     deny,
	}
}

// FindOrQueue attempts to pair userID with a waiting user sharing at
// least one interest (or any user, on the wildcard path). A nil Match
// with nil error means the caller was enqueued and must wait for a bus
// notification. Any prior session of the caller is ended first.
func (e *Engine) FindOrQueue(ctx context.Context, userID string, rawInterests []string) (*Match, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	// A user is never both enqueued and in a session: supersede the
	// prior session before touching any queue.
	if _, err := e.sessions.End(ctx, userID); err != nil {
		return nil, fmt.Errorf("matching: end prior session: %w", err)
	}

	interests := NormalizeInterests(rawInterests)
	if len(interests) == 0 {
		return e.findOrQueueWildcard(ctx, userID)
	}
	return e.findOrQueueInterests(ctx, userID, interests)
}

func (e *Engine) findOrQueueInterests(ctx context.Context, userID string, interests []string) (*Match, error) {
	if err := e.queue.RecordPopularity(ctx, userID, interests); err != nil {
		return nil, fmt.Errorf("matching: record popularity: %w", err)
	}

	// Scan order is shuffled so later tags are not systematically
	// starved when the first tag always has waiters.
	shuffled := make([]string, len(interests))
	copy(shuffled, interests)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	for _, tag := range shuffled {
		partner, err := e.queue.PopRandom(ctx, tag)
		if err != nil {
			return nil, fmt.Errorf("matching: pop %s: %w", tag, err)
		}
		if partner == "" {
			continue
		}
		if partner == userID {
			// Leftover self-entry from an unclean shutdown.
			if err := e.queue.PushBack(ctx, tag, userID); err != nil {
				return nil, err
			}
			continue
		}

		theirs, err := e.queue.UserInterests(ctx, partner)
		if err != nil {
			return nil, fmt.Errorf("matching: read partner interests: %w", err)
		}
		common := intersect(interests, theirs)
		if len(common) == 0 {
			// Partner's membership record vanished (race with cancel)
			// or never overlapped: recover locally and keep searching.
			log.Printf("[engine] inconsistent partner %s on %s, reinserting", partner, tag)
			if err := e.queue.PushBack(ctx, tag, partner); err != nil {
				return nil, err
			}
			continue
		}

		if err := e.queue.RemoveUser(ctx, partner, theirs); err != nil {
			return nil, fmt.Errorf("matching: clean up partner: %w", err)
		}
		return e.formPair(ctx, userID, partner, common)
	}

	// No direct hit: a wildcard waiter accepts any interest.
	partner, err := e.queue.PopRandom(ctx, WildcardTag)
	if err != nil {
		return nil, fmt.Errorf("matching: pop wildcard: %w", err)
	}
	if partner == userID {
		if err := e.queue.PushBack(ctx, WildcardTag, userID); err != nil {
			return nil, err
		}
		partner = ""
	}
	if partner != "" {
		if err := e.queue.DeleteUserInterests(ctx, partner); err != nil {
			return nil, fmt.Errorf("matching: clean up wildcard partner: %w", err)
		}
		return e.formPair(ctx, userID, partner, interests)
	}

	if err := e.queue.Enqueue(ctx, userID, interests); err != nil {
		return nil, fmt.Errorf("matching: enqueue: %w", err)
	}
	metrics.EnqueuesTotal.Inc()
	log.Printf("[engine] enqueued %s on %v", userID, interests)
	return nil, nil
}

func (e *Engine) findOrQueueWildcard(ctx context.Context, userID string) (*Match, error) {
	partner, err := e.queue.PopRandom(ctx, WildcardTag)
	if err != nil {
		return nil, fmt.Errorf("matching: pop wildcard: %w", err)
	}
	if partner == userID {
		if err := e.queue.PushBack(ctx, WildcardTag, userID); err != nil {
			return nil, err
		}
		partner = ""
	}
	if partner != "" {
		if err := e.queue.DeleteUserInterests(ctx, partner); err != nil {
			return nil, fmt.Errorf("matching: clean up wildcard partner: %w", err)
		}
		return e.formPair(ctx, userID, partner, nil)
	}

	// No wildcard waiter: absorb a waiter from any known interest queue.
	tags, err := e.queue.AllInterests(ctx)
	if err != nil {
		return nil, fmt.Errorf("matching: list interests: %w", err)
	}
	for _, tag := range tags {
		if tag == WildcardTag {
			continue
		}
		partner, err := e.queue.PopRandom(ctx, tag)
		if err != nil {
			return nil, fmt.Errorf("matching: pop %s: %w", tag, err)
		}
		if partner == "" {
			continue
		}
		if partner == userID {
			if err := e.queue.PushBack(ctx, tag, userID); err != nil {
				return nil, err
			}
			continue
		}

		theirs, err := e.queue.UserInterests(ctx, partner)
		if err != nil {
			return nil, fmt.Errorf("matching: read partner interests: %w", err)
		}
		if err := e.queue.RemoveUser(ctx, partner, theirs); err != nil {
			return nil, fmt.Errorf("matching: clean up partner: %w", err)
		}
		return e.formPair(ctx, userID, partner, []string{tag})
	}

	if err := e.queue.Enqueue(ctx, userID, []string{WildcardTag}); err != nil {
		return nil, fmt.Errorf("matching: enqueue wildcard: %w", err)
	}
	metrics.EnqueuesTotal.Inc()
	log.Printf("[engine] enqueued %s on wildcard", userID)
	return nil, nil
}

// formPair mints the session, persists it, notifies the waiter, and
// returns the synchronous match. Publish failures are logged and
// swallowed: the waiter recovers through the durable session record on
// its next reconnect.
func (e *Engine) formPair(ctx context.Context, caller, partner string, common []string) (*Match, error) {
	chatID := session.ChatID(caller, partner)

	serverURL, err := e.servers.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("matching: pick chat server: %w", err)
	}

	if err := e.sessions.Create(ctx, chatID, serverURL, caller, partner); err != nil {
		return nil, fmt.Errorf("matching: create session: %w", err)
	}

	payload, err := protocol.NewMatched(caller, common, chatID, serverURL)
	if err == nil {
		err = e.bus.Publish(ctx, partner, payload)
	}
	if err != nil {
		log.Printf("[engine] notify %s failed: %v", partner, err)
	}

	metrics.MatchesTotal.Inc()
	log.Printf("[engine] matched %s with %s on %v chat=%s", caller, partner, common, chatID)

	return &Match{
		PartnerID:       partner,
		CommonInterests: common,
		ChatID:          chatID,
		ChatServerURL:   serverURL,
	}, nil
}

// Cancel removes the user from every queue they are enqueued in. A user
// with no membership record is a no-op, so Cancel is idempotent and safe
// to run on every stream close.
func (e *Engine) Cancel(ctx context.Context, userID string) error {
	tags, err := e.queue.UserInterests(ctx, userID)
	if err != nil {
		return fmt.Errorf("matching: cancel: %w", err)
	}
	if len(tags) == 0 {
		return nil
	}
	if err := e.queue.RemoveUser(ctx, userID, tags); err != nil {
		return fmt.Errorf("matching: cancel: %w", err)
	}
	log.Printf("[engine] cancelled search for %s", userID)
	return nil
}

// PopularInterests returns the topN interests by enrollment count inside
// the sliding window, with the configured deny-list applied.
func (e *Engine) PopularInterests(ctx context.Context, topN int) ([]InterestCount, error) {
	return e.queue.PopularInterests(ctx, topN, e.deny)
}
