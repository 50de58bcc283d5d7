package stream

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// CursorStore persists the last processed stream id per consumer so a tailer
// restart resumes where it left off instead of silently skipping entries.
type CursorStore interface {
	Load(ctx context.Context, consumer string) (string, error)
	Save(ctx context.Context, consumer, id string) error
}

type RedisCursorStore struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisCursorStore(rdb redis.Cmdable) *RedisCursorStore {
	return &RedisCursorStore{rdb: rdb, prefix: "chatrelay:stream:cursor:"}
}

// Load returns the saved cursor, or "" when the consumer has none yet.
func (c *RedisCursorStore) Load(ctx context.Context, consumer string) (string, error) {
	v, err := c.rdb.Get(ctx, c.prefix+consumer).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return v, nil
}

func (c *RedisCursorStore) Save(ctx context.Context, consumer, id string) error {
	return c.rdb.Set(ctx, c.prefix+consumer, id, 0).Err()
}
