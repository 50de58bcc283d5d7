package outbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/werpoz/chatrelay/internal/model"
)

func newTestDispatcher(repo *fakeOutboxRepo, dl *fakeDeadLetterRepo, broker *fakeStreamPub) *Dispatcher {
	return NewDispatcher(nil, repo, dl, broker, nil, NewMicroBreaker(100, 0))
}

func TestRunOnceRecoversPendingRows(t *testing.T) {
	repo := newFakeOutboxRepo()
	dl := &fakeDeadLetterRepo{}

	// the write path failed earlier: row is pending, broker saw nothing
	writeBroker := &fakeStreamPub{failures: 1}
	p := NewPublisher(repo, writeBroker, nil)
	ev := mustEvent(t, model.EventMessageCreated)
	require.NoError(t, p.Publish(context.Background(), []model.DomainEvent{ev}))

	// broker recovered
	d := newTestDispatcher(repo, dl, writeBroker)
	n, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	row, _ := repo.GetByEventID(context.Background(), ev.EventID)
	require.NotNil(t, row)
	assert.Equal(t, model.OutboxPublished, row.Status)

	entries := writeBroker.published()
	require.Len(t, entries, 1)
	assert.Equal(t, ev.EventID, entries[0].EventID)
	assert.Empty(t, dl.rows)
}

func TestRunOnceCountsFailedAttempts(t *testing.T) {
	repo := newFakeOutboxRepo()
	dl := &fakeDeadLetterRepo{}
	broker := &fakeStreamPub{failures: 10}

	p := NewPublisher(repo, &fakeStreamPub{failures: 1}, nil)
	ev := mustEvent(t, model.EventMessageCreated)
	require.NoError(t, p.Publish(context.Background(), []model.DomainEvent{ev}))

	d := newTestDispatcher(repo, dl, broker)

	for i := 1; i <= 3; i++ {
		_, err := d.RunOnce(context.Background())
		require.NoError(t, err)
		row, _ := repo.GetByEventID(context.Background(), ev.EventID)
		require.NotNil(t, row)
		assert.Equal(t, i, row.Attempts)
		assert.Equal(t, model.OutboxPending, row.Status)
	}
}

func TestRunOnceDeadLettersExhaustedRows(t *testing.T) {
	repo := newFakeOutboxRepo()
	dl := &fakeDeadLetterRepo{}
	broker := &fakeStreamPub{failures: 1000}

	p := NewPublisher(repo, &fakeStreamPub{failures: 1}, nil)
	ev := mustEvent(t, model.EventMessageCreated)
	require.NoError(t, p.Publish(context.Background(), []model.DomainEvent{ev}))

	d := newTestDispatcher(repo, dl, broker)
	d.MaxAttempts = 3

	// three failing retries, then the fourth pass routes to dead letters
	for i := 0; i < 3; i++ {
		_, err := d.RunOnce(context.Background())
		require.NoError(t, err)
	}
	n, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// outbox row is gone
	row, _ := repo.GetByEventID(context.Background(), ev.EventID)
	assert.Nil(t, row)

	require.Len(t, dl.rows, 1)
	assert.Equal(t, ev.EventID, dl.rows[0].EventID)
	assert.Equal(t, model.EventMessageCreated, dl.rows[0].EventName)
	assert.Equal(t, 3, dl.rows[0].Attempts)
	assert.Contains(t, dl.rows[0].Error, "broker unavailable")
}

func TestRunOnceEmptyOutbox(t *testing.T) {
	d := newTestDispatcher(newFakeOutboxRepo(), &fakeDeadLetterRepo{}, &fakeStreamPub{})
	n, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunOnceIdempotentAfterPublish(t *testing.T) {
	repo := newFakeOutboxRepo()
	dl := &fakeDeadLetterRepo{}
	broker := &fakeStreamPub{failures: 1}

	p := NewPublisher(repo, broker, nil)
	ev := mustEvent(t, model.EventMessageCreated)
	require.NoError(t, p.Publish(context.Background(), []model.DomainEvent{ev}))

	d := newTestDispatcher(repo, dl, broker)

	n, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// second pass sees nothing pending, broker receives no duplicate
	n, err = d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, broker.published(), 1)
}
