package outbox

import (
	"context"
	"errors"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/werpoz/chatrelay/internal/model"
	"github.com/werpoz/chatrelay/internal/stream"
)

// fakeOutboxRepo is an in-memory OutboxRepository preserving insertion order.
type fakeOutboxRepo struct {
	mu    sync.Mutex
	order []string
	rows  map[string]*model.OutboxMessage
}

func newFakeOutboxRepo() *fakeOutboxRepo {
	return &fakeOutboxRepo{rows: make(map[string]*model.OutboxMessage)}
}

func (f *fakeOutboxRepo) Add(_ context.Context, _ *sqlx.Tx, m model.OutboxMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.rows[m.EventID]; exists {
		return errors.New("duplicate event_id")
	}
	cp := m
	f.rows[m.EventID] = &cp
	f.order = append(f.order, m.EventID)
	return nil
}

func (f *fakeOutboxRepo) ListPending(_ context.Context, limit int) ([]model.OutboxMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.OutboxMessage
	for _, id := range f.order {
		if len(out) >= limit {
			break
		}
		if row := f.rows[id]; row != nil && row.Status == model.OutboxPending {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (f *fakeOutboxRepo) MarkPublished(_ context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[eventID]; ok {
		row.Status = model.OutboxPublished
	}
	return nil
}

func (f *fakeOutboxRepo) RecordPublishError(_ context.Context, eventID, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[eventID]; ok && row.Status == model.OutboxPending {
		msg := errMsg
		row.LastError = &msg
	}
	return nil
}

func (f *fakeOutboxRepo) RecordFailedAttempt(_ context.Context, eventID, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[eventID]; ok && row.Status == model.OutboxPending {
		row.Attempts++
		msg := errMsg
		row.LastError = &msg
	}
	return nil
}

func (f *fakeOutboxRepo) Delete(_ context.Context, _ *sqlx.Tx, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, eventID)
	for i, id := range f.order {
		if id == eventID {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeOutboxRepo) GetByEventID(_ context.Context, eventID string) (*model.OutboxMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[eventID]; ok {
		cp := *row
		return &cp, nil
	}
	return nil, nil
}

// fakeStreamPub implements stream.Publisher and fails the next failures calls.
type fakeStreamPub struct {
	mu       sync.Mutex
	entries  []stream.Entry
	failures int
}

func (f *fakeStreamPub) Append(_ context.Context, e stream.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unavailable")
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeStreamPub) published() []stream.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]stream.Entry, len(f.entries))
	copy(out, f.entries)
	return out
}

type fakeDeadLetterRepo struct {
	mu   sync.Mutex
	rows []model.DeadLetterMessage
}

func (f *fakeDeadLetterRepo) Insert(_ context.Context, _ *sqlx.Tx, m model.DeadLetterMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, m)
	return nil
}

func (f *fakeDeadLetterRepo) ListByEventName(_ context.Context, eventName string, limit int) ([]model.DeadLetterMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.DeadLetterMessage
	for _, row := range f.rows {
		if len(out) >= limit {
			break
		}
		if row.EventName == eventName {
			out = append(out, row)
		}
	}
	return out, nil
}
