// Package session manages durable chat session records and the
// user-to-session mappings used for reconnection. Records live in the
// shared Redis store:
//
//	Key:   chat_session:<chatID>  Value: {"serverUrl": ..., "participants": [a, b]}
//	Key:   user_session:<userID>  Value: <chatID>
package session

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

const (
	keyChatSession = "chat_session:"
	keyUserSession = "user_session:"
)

// Record is a chat session as returned to callers. The stored JSON
// omits the chat id, which is the key itself.
type Record struct {
	ChatID       string   `json:"chatId"`
	ServerURL    string   `json:"serverUrl"`
	Participants []string `json:"participants"`
}

type storedRecord struct {
	ServerURL    string   `json:"serverUrl"`
	Participants []string `json:"participants"`
}

// ChatID derives the deterministic session identifier for a pair of
// users: the SHA-1 hex of the two ids sorted lexicographically and
// joined by '-'. Both orderings of the pair yield the same id.
func ChatID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	sum := sha1.Sum([]byte(pair[0] + "-" + pair[1]))
	return hex.EncodeToString(sum[:])
}

// Manager persists sessions in Redis.
type Manager struct {
	rdb *redis.Client
}

// NewManager creates a session manager backed by Redis.
func NewManager(rdb *redis.Client) *Manager {
	return &Manager{rdb: rdb}
}

// Create writes the session record and both participants' mappings in
// one pipeline. Not transactional: a concurrent create of the same
// chatID writes identical content, so the overwrite is harmless.
func (m *Manager) Create(ctx context.Context, chatID, serverURL string, userA, userB string) error {
	data, err := json.Marshal(storedRecord{
		ServerURL:    serverURL,
		Participants: []string{userA, userB},
	})
	if err != nil {
		return fmt.Errorf("session: marshal record: %w", err)
	}

	pipe := m.rdb.Pipeline()
	pipe.Set(ctx, keyChatSession+chatID, data, 0)
	pipe.Set(ctx, keyUserSession+userA, chatID, 0)
	pipe.Set(ctx, keyUserSession+userB, chatID, 0)
	_, err = pipe.Exec(ctx)
	return err
}

// GetForUser returns the user's active session, or nil if there is
// none. A mapping that points at a missing or unreadable session record
// is stale; it is deleted and nil is returned.
func (m *Manager) GetForUser(ctx context.Context, userID string) (*Record, error) {
	chatID, err := m.rdb.Get(ctx, keyUserSession+userID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	data, err := m.rdb.Get(ctx, keyChatSession+chatID).Result()
	if errors.Is(err, redis.Nil) {
		m.rdb.Del(ctx, keyUserSession+userID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stored storedRecord
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		m.rdb.Del(ctx, keyUserSession+userID)
		return nil, nil
	}

	return &Record{
		ChatID:       chatID,
		ServerURL:    stored.ServerURL,
		Participants: stored.Participants,
	}, nil
}

// End terminates the caller's active session: the session record and
// every participant's mapping are deleted in one pipeline. Returns false
// when the caller has no session. A session record that cannot be
// parsed loses only the caller's mapping, and End reports false.
func (m *Manager) End(ctx context.Context, userID string) (bool, error) {
	chatID, err := m.rdb.Get(ctx, keyUserSession+userID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	data, err := m.rdb.Get(ctx, keyChatSession+chatID).Result()
	if errors.Is(err, redis.Nil) {
		m.rdb.Del(ctx, keyUserSession+userID)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var stored storedRecord
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		m.rdb.Del(ctx, keyUserSession+userID)
		return false, nil
	}

	pipe := m.rdb.Pipeline()
	pipe.Del(ctx, keyChatSession+chatID)
	for _, participant := range stored.Participants {
		pipe.Del(ctx, keyUserSession+participant)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// CountSessions reports the number of chat_session keys. Used by the
// health endpoint.
func (m *Manager) CountSessions(ctx context.Context) (int64, error) {
	var n int64
	iter := m.rdb.Scan(ctx, 0, keyChatSession+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}
