package presence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// onlineKey is the sorted set holding user ids scored by their last heartbeat.
const onlineKey = "presence:online"

// OnlineTracker mirrors "which users have a live connection" outside the process
// so listings can show an online badge.
type OnlineTracker interface {
	// Touch records a heartbeat for userID.
	Touch(ctx context.Context, userID string) error

	// Drop forgets userID after their last connection closed.
	Drop(ctx context.Context, userID string) error

	// Online reports which of userIDs are online. A nil map means "unknown".
	Online(ctx context.Context, userIDs []string) (map[string]bool, error)
}

// NopTracker is used when no presence mirror is configured.
type NopTracker struct{}

func (NopTracker) Touch(context.Context, string) error { return nil }
func (NopTracker) Drop(context.Context, string) error  { return nil }

func (NopTracker) Online(context.Context, []string) (map[string]bool, error) {
	return nil, nil
}

// RedisTracker keeps heartbeats in a Redis sorted set. A user counts as online
// while their last heartbeat is younger than window.
type RedisTracker struct {
	rdb    *redis.Client
	window time.Duration
	now    func() time.Time
}

// NewRedisTracker returns a tracker over rdb.
func NewRedisTracker(rdb *redis.Client, window time.Duration) *RedisTracker {
	return &RedisTracker{
		rdb:    rdb,
		window: window,
		now:    time.Now,
	}
}

func (t *RedisTracker) Touch(ctx context.Context, userID string) error {
	err := t.rdb.ZAdd(ctx, onlineKey, redis.Z{
		Score:  float64(t.now().Unix()),
		Member: userID,
	}).Err()
	if err != nil {
		return err
	}

	// The whole set expires if every connection in the fleet goes quiet.
	return t.rdb.Expire(ctx, onlineKey, t.window*2).Err()
}

func (t *RedisTracker) Drop(ctx context.Context, userID string) error {
	return t.rdb.ZRem(ctx, onlineKey, userID).Err()
}

func (t *RedisTracker) Online(ctx context.Context, userIDs []string) (map[string]bool, error) {
	online := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return online, nil
	}

	scores, err := t.rdb.ZMScore(ctx, onlineKey, userIDs...).Result()
	if err != nil {
		return nil, err
	}

	threshold := float64(t.now().Add(-t.window).Unix())
	for i, id := range userIDs {
		online[id] = i < len(scores) && scores[i] >= threshold
	}
	return online, nil
}
