// Package stream wraps the broker stream: an append-only Redis Stream with
// approximate length trimming at append time and blocking reads for tailers.
package stream

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Field names of one broker entry.
const (
	fieldEventID    = "event_id"
	fieldType       = "type"
	fieldPayload    = "payload"
	fieldOccurredOn = "occurred_on"
)

// CursorLatest tails only entries appended after the read starts.
const CursorLatest = "$"

// Entry is one broker stream record: the JSON-encoded event plus routing
// metadata kept as flat fields.
type Entry struct {
	ID         string // stream id, set by the broker on append
	EventID    string
	Type       string // event name
	Payload    []byte
	OccurredOn time.Time
}

// Publisher appends entries to the broker stream.
type Publisher interface {
	Append(ctx context.Context, e Entry) error
}

// Reader blocks on the stream for new entries.
type Reader interface {
	// Read returns entries after cursor and the next cursor to resume from.
	// An empty block timeout returns (nil, cursor, nil).
	Read(ctx context.Context, cursor string, block time.Duration, count int64) ([]Entry, string, error)
}

// RedisStream implements Publisher and Reader on one redis stream key.
type RedisStream struct {
	rdb    redis.Cmdable
	name   string
	maxLen int64
}

func NewRedisStream(rdb redis.Cmdable, name string, maxLen int64) *RedisStream {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisStream{rdb: rdb, name: name, maxLen: maxLen}
}

// Append XADDs the entry, trimming the stream to approximately maxLen. The
// trim is best-effort by design, not a strict cap.
func (s *RedisStream) Append(ctx context.Context, e Entry) error {
	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.name,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			fieldEventID:    e.EventID,
			fieldType:       e.Type,
			fieldPayload:    string(e.Payload),
			fieldOccurredOn: e.OccurredOn.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
}

// Read blocks for up to block waiting for entries after cursor. The returned
// cursor is the id of the last entry seen, or the input cursor when the wait
// timed out empty.
func (s *RedisStream) Read(ctx context.Context, cursor string, block time.Duration, count int64) ([]Entry, string, error) {
	if count <= 0 {
		count = 64
	}
	if block <= 0 {
		// go-redis sends BLOCK 0 (wait forever) for a zero duration; a
		// negative one omits BLOCK entirely, making the read non-blocking.
		block = -1
	}

	res, err := s.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{s.name, cursor},
		Count:   count,
		Block:   block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, cursor, nil
		}
		return nil, cursor, err
	}

	var out []Entry
	next := cursor
	for _, sr := range res {
		for _, msg := range sr.Messages {
			out = append(out, decodeMessage(msg))
			next = msg.ID
		}
	}
	return out, next, nil
}

func decodeMessage(msg redis.XMessage) Entry {
	e := Entry{ID: msg.ID}
	if v, ok := msg.Values[fieldEventID].(string); ok {
		e.EventID = v
	}
	if v, ok := msg.Values[fieldType].(string); ok {
		e.Type = v
	}
	if v, ok := msg.Values[fieldPayload].(string); ok {
		e.Payload = []byte(v)
	}
	if v, ok := msg.Values[fieldOccurredOn].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			e.OccurredOn = t
		}
	}
	return e
}
