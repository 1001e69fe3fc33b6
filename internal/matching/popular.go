package matching

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// popularityWindow is the sliding window for interest popularity. Events
// older than this are trimmed on the read path.
const popularityWindow = 10 * time.Minute

// InterestCount is one entry in the popular-interests ranking.
type InterestCount struct {
	Interest string `json:"interest"`
	Count    int64  `json:"count"`
}

// PopularInterests scans every popularity key, trims entries older than
// the window, and returns the topN remaining tags by enrollment count,
// descending. Tags in deny are excluded before selection. Ties break by
// tag ascending so the ranking is stable.
//
// The trim and the cardinality read for each key run in one pipelined
// round trip.
func (q *Queue) PopularInterests(ctx context.Context, topN int, deny map[string]bool) ([]InterestCount, error) {
	var keys []string
	iter := q.rdb.Scan(ctx, 0, keyPopularPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []InterestCount{}, nil
	}

	cutoff := time.Now().Add(-popularityWindow).UnixMilli()
	maxStale := "(" + strconv.FormatInt(cutoff, 10) // exclusive: score < cutoff

	pipe := q.rdb.Pipeline()
	cards := make(map[string]*redis.IntCmd, len(keys))
	for _, key := range keys {
		pipe.ZRemRangeByScore(ctx, key, "-inf", maxStale)
		cards[key] = pipe.ZCard(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	counts := make([]InterestCount, 0, len(keys))
	for _, key := range keys {
		tag := strings.TrimPrefix(key, keyPopularPrefix)
		if deny[tag] {
			continue
		}
		counts = append(counts, InterestCount{Interest: tag, Count: cards[key].Val()})
	}

	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Interest < counts[j].Interest
	})

	if topN > 0 && len(counts) > topN {
		counts = counts[:topN]
	}
	return counts, nil
}
