package matching

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis key patterns for the matchmaking data structures.
	keyInterestPrefix = "interest:"       // + <TAG> -> Set of waiting user IDs
	keyUserInterests  = "user_interests:" // + <userID> -> Set of tags the user is enqueued under
	keyAllInterests   = "all_interests"   // Set of every tag ever observed
	keyPopularPrefix  = "popular:"        // + <TAG> -> ZSet, member = userID, score = enrollment ms
)

// Queue manages the Redis data structures holding waiting users. All
// multi-key updates are pipelined; cross-key atomicity is not required
// because pop-random is the only contended operation and SPOP is atomic
// on the server.
type Queue struct {
	rdb *redis.Client
}

// NewQueue creates a queue store backed by Redis.
func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// PopRandom atomically removes and returns one random member of the
// interest queue for tag. Returns "" when the queue is empty.
func (q *Queue) PopRandom(ctx context.Context, tag string) (string, error) {
	id, err := q.rdb.SPop(ctx, keyInterestPrefix+tag).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// PushBack reinserts a user into an interest queue. Used when a pop
// returned the caller's own id or a partner whose state turned out to
// be inconsistent.
func (q *Queue) PushBack(ctx context.Context, tag, userID string) error {
	return q.rdb.SAdd(ctx, keyInterestPrefix+tag, userID).Err()
}

// Enqueue adds the user to the queue of every given tag and records the
// membership set so the user can later be removed from exactly those
// queues. The tags are also added to the all-interests set used by the
// wildcard scan.
func (q *Queue) Enqueue(ctx context.Context, userID string, tags []string) error {
	pipe := q.rdb.Pipeline()
	for _, tag := range tags {
		pipe.SAdd(ctx, keyInterestPrefix+tag, userID)
	}
	members := make([]interface{}, len(tags))
	for i, tag := range tags {
		members[i] = tag
	}
	pipe.SAdd(ctx, keyUserInterests+userID, members...)
	pipe.SAdd(ctx, keyAllInterests, members...)
	_, err := pipe.Exec(ctx)
	return err
}

// UserInterests returns the tags the user is currently enqueued under.
// An empty slice means the user is not enqueued.
func (q *Queue) UserInterests(ctx context.Context, userID string) ([]string, error) {
	return q.rdb.SMembers(ctx, keyUserInterests+userID).Result()
}

// RemoveUser removes the user from every queue named in tags and
// deletes the membership set. Idempotent: removing an absent user is a
// no-op on every key.
func (q *Queue) RemoveUser(ctx context.Context, userID string, tags []string) error {
	pipe := q.rdb.Pipeline()
	for _, tag := range tags {
		pipe.SRem(ctx, keyInterestPrefix+tag, userID)
	}
	pipe.Del(ctx, keyUserInterests+userID)
	_, err := pipe.Exec(ctx)
	return err
}

// DeleteUserInterests drops only the membership set. Used after a
// pop-random already removed the user from the one queue that held them.
func (q *Queue) DeleteUserInterests(ctx context.Context, userID string) error {
	return q.rdb.Del(ctx, keyUserInterests+userID).Err()
}

// AllInterests returns every tag ever observed, in no particular order.
func (q *Queue) AllInterests(ctx context.Context) ([]string, error) {
	return q.rdb.SMembers(ctx, keyAllInterests).Result()
}

// CountWaiting reports the number of user_interests keys, i.e. how many
// users are enqueued store-wide. Used by the health endpoint.
func (q *Queue) CountWaiting(ctx context.Context) (int64, error) {
	var n int64
	iter := q.rdb.Scan(ctx, 0, keyUserInterests+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}

// RecordPopularity adds one enrollment event per tag, scored with the
// current millisecond timestamp, and registers the tags as known
// interests. Wildcard searches record no popularity.
func (q *Queue) RecordPopularity(ctx context.Context, userID string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	now := float64(time.Now().UnixMilli())
	pipe := q.rdb.Pipeline()
	members := make([]interface{}, len(tags))
	for i, tag := range tags {
		pipe.ZAdd(ctx, keyPopularPrefix+tag, redis.Z{Score: now, Member: userID})
		members[i] = tag
	}
	pipe.SAdd(ctx, keyAllInterests, members...)
	_, err := pipe.Exec(ctx)
	return err
}
