package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/werpoz/chatrelay/internal/model"
	"github.com/werpoz/chatrelay/internal/stream"
)

// scriptedReader serves predefined batches, then blocks until ctx cancel.
type scriptedReader struct {
	mu      sync.Mutex
	batches [][]stream.Entry
}

func (r *scriptedReader) Read(ctx context.Context, cursor string, _ time.Duration, _ int64) ([]stream.Entry, string, error) {
	r.mu.Lock()
	if len(r.batches) == 0 {
		r.mu.Unlock()
		<-ctx.Done()
		return nil, cursor, ctx.Err()
	}
	batch := r.batches[0]
	r.batches = r.batches[1:]
	r.mu.Unlock()

	next := cursor
	if len(batch) > 0 {
		next = batch[len(batch)-1].ID
	}
	return batch, next, nil
}

type memCursorStore struct {
	mu      sync.Mutex
	cursors map[string]string
	saves   int
}

func newMemCursorStore() *memCursorStore {
	return &memCursorStore{cursors: make(map[string]string)}
}

func (s *memCursorStore) Load(_ context.Context, consumer string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[consumer], nil
}

func (s *memCursorStore) Save(_ context.Context, consumer, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[consumer] = id
	s.saves++
	return nil
}

func eventEntry(t *testing.T, id, name, tenantID, sessionID string) stream.Entry {
	t.Helper()
	ev := model.DomainEvent{
		EventID:    "ev-" + id,
		EventName:  name,
		TenantID:   tenantID,
		SessionID:  sessionID,
		OccurredOn: time.Now().UTC(),
		Data:       []byte(`{"chatKey":"ck-1"}`),
	}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return stream.Entry{ID: id, EventID: ev.EventID, Type: name, Payload: payload, OccurredOn: ev.OccurredOn}
}

func TestHandleEntryForwardsToTenant(t *testing.T) {
	hub := NewHub()
	c := testClient(hub, "t1")
	hub.Add(c)

	tl := NewTailer(nil, newMemCursorStore(), hub, "test")
	tl.handleEntry(eventEntry(t, "1-0", model.EventMessageCreated, "t1", "s1"))

	frame := recvFrame(t, c)
	assert.Equal(t, model.EventMessageCreated, frame.Type)
	assert.Equal(t, "s1", frame.SessionID)
	assert.Equal(t, "ev-1-0", frame.EventID)
	assert.JSONEq(t, `{"chatKey":"ck-1"}`, string(frame.Payload))
}

func TestHandleEntrySkipsUnknownTypes(t *testing.T) {
	hub := NewHub()
	c := testClient(hub, "t1")
	hub.Add(c)

	tl := NewTailer(nil, newMemCursorStore(), hub, "test")
	tl.handleEntry(stream.Entry{ID: "1-0", Type: "wallet.charged", Payload: []byte(`{}`)})

	select {
	case <-c.send:
		t.Fatal("unrecognized entry must not reach subscribers")
	default:
	}
}

func TestHandleEntrySkipsMalformedPayload(t *testing.T) {
	hub := NewHub()
	c := testClient(hub, "t1")
	hub.Add(c)

	tl := NewTailer(nil, newMemCursorStore(), hub, "test")
	tl.handleEntry(stream.Entry{ID: "1-0", Type: model.EventMessageCreated, Payload: []byte(`{broken`)})
	tl.handleEntry(eventEntry(t, "2-0", model.EventMessageCreated, "", "s1")) // no tenant

	select {
	case <-c.send:
		t.Fatal("malformed entries must be dropped, not broadcast")
	default:
	}
}

func TestHandleEntrySessionFallsBackToAggregate(t *testing.T) {
	hub := NewHub()
	c := testClient(hub, "t1")
	hub.Add(c)

	ev := model.DomainEvent{
		EventID:     "ev-x",
		EventName:   model.EventSessionConnected,
		AggregateID: "s-agg",
		TenantID:    "t1",
		OccurredOn:  time.Now().UTC(),
	}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	tl := NewTailer(nil, newMemCursorStore(), hub, "test")
	tl.handleEntry(stream.Entry{ID: "1-0", Type: ev.EventName, Payload: payload, OccurredOn: ev.OccurredOn})

	frame := recvFrame(t, c)
	assert.Equal(t, "s-agg", frame.SessionID)
}

func TestRunPersistsCursor(t *testing.T) {
	hub := NewHub()
	c := testClient(hub, "t1")
	hub.Add(c)

	reader := &scriptedReader{batches: [][]stream.Entry{
		{
			eventEntry(t, "100-0", model.EventMessageCreated, "t1", "s1"),
			eventEntry(t, "101-0", model.EventMessageEdited, "t1", "s1"),
		},
	}}
	cursors := newMemCursorStore()

	tl := NewTailer(reader, cursors, hub, "realtime")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tl.Run(ctx) }()

	require.Eventually(t, func() bool {
		cur, _ := cursors.Load(context.Background(), "realtime")
		return cur == "101-0"
	}, time.Second, 5*time.Millisecond, "cursor advances to the last entry")

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// both entries made it to the subscriber
	assert.Equal(t, model.EventMessageCreated, recvFrame(t, c).Type)
	assert.Equal(t, model.EventMessageEdited, recvFrame(t, c).Type)
}

type failingCursorStore struct{ err error }

func (s *failingCursorStore) Load(context.Context, string) (string, error) { return "", s.err }
func (s *failingCursorStore) Save(context.Context, string, string) error   { return s.err }

func TestRunFailsWhenCursorUnavailable(t *testing.T) {
	hub := NewHub()
	reader := &scriptedReader{}
	boom := errors.New("redis down")

	tl := NewTailer(reader, &failingCursorStore{err: boom}, hub, "realtime")

	// the caller must see the boot failure instead of tailing blind
	err := tl.Run(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestRunResumesFromSavedCursor(t *testing.T) {
	hub := NewHub()
	reader := &scriptedReader{}
	cursors := newMemCursorStore()
	require.NoError(t, cursors.Save(context.Background(), "realtime", "500-3"))
	cursors.saves = 0

	tl := NewTailer(reader, cursors, hub, "realtime")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tl.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	cur, err := cursors.Load(context.Background(), "realtime")
	require.NoError(t, err)
	assert.Equal(t, "500-3", cur, "empty reads never move the cursor")
	assert.Zero(t, cursors.saves)
}
