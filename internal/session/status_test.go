package session

import (
	"context"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/werpoz/chatrelay/internal/model"
	"github.com/werpoz/chatrelay/internal/outbox"
	"github.com/werpoz/chatrelay/internal/stream"
)

type memSessionsRepo struct {
	mu       sync.Mutex
	statuses map[string]model.SessionStatus
	jids     map[string]string
}

func newMemSessionsRepo() *memSessionsRepo {
	return &memSessionsRepo{statuses: make(map[string]model.SessionStatus), jids: make(map[string]string)}
}

func (f *memSessionsRepo) Upsert(_ context.Context, _ *sqlx.Tx, s model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[s.ID] = s.Status
	f.jids[s.ID] = s.JID
	return nil
}

func (f *memSessionsRepo) UpdateStatus(_ context.Context, sessionID string, status model.SessionStatus, jid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[sessionID] = status
	if jid != "" {
		f.jids[sessionID] = jid
	}
	return nil
}

func (f *memSessionsRepo) GetByID(_ context.Context, sessionID string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.statuses[sessionID]
	if !ok {
		return nil, nil
	}
	return &model.Session{ID: sessionID, Status: st, JID: f.jids[sessionID]}, nil
}

type memOutboxRepo struct {
	mu   sync.Mutex
	rows []model.OutboxMessage
}

func (f *memOutboxRepo) Add(_ context.Context, _ *sqlx.Tx, m model.OutboxMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, m)
	return nil
}
func (f *memOutboxRepo) ListPending(context.Context, int) ([]model.OutboxMessage, error) {
	return nil, nil
}
func (f *memOutboxRepo) MarkPublished(context.Context, string) error               { return nil }
func (f *memOutboxRepo) RecordPublishError(context.Context, string, string) error  { return nil }
func (f *memOutboxRepo) RecordFailedAttempt(context.Context, string, string) error { return nil }
func (f *memOutboxRepo) Delete(context.Context, *sqlx.Tx, string) error            { return nil }
func (f *memOutboxRepo) GetByEventID(context.Context, string) (*model.OutboxMessage, error) {
	return nil, nil
}

type memStreamPub struct {
	mu      sync.Mutex
	entries []stream.Entry
}

func (f *memStreamPub) Append(_ context.Context, e stream.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func TestCallbacksRecordStatusAndEmitEvents(t *testing.T) {
	sessions := newMemSessionsRepo()
	broker := &memStreamPub{}
	pub := outbox.NewPublisher(&memOutboxRepo{}, broker, nil)

	svc := NewStatusService(sessions, pub)
	cb := svc.CallbacksFor("t1")

	cb.OnQR("s1", "qr-code-1")
	s, err := sessions.GetByID(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, model.SessionQRPending, s.Status)

	cb.OnConnected("s1", "1000@s.whatsapp.net")
	s, _ = sessions.GetByID(context.Background(), "s1")
	assert.Equal(t, model.SessionConnected, s.Status)
	assert.Equal(t, "1000@s.whatsapp.net", s.JID, "own address stored on connect")

	cb.OnDisconnected("s1", "logged out")
	s, _ = sessions.GetByID(context.Background(), "s1")
	assert.Equal(t, model.SessionOffline, s.Status)
	assert.Equal(t, "1000@s.whatsapp.net", s.JID, "address survives disconnect")

	require.Len(t, broker.entries, 3)
	assert.Equal(t, model.EventSessionQRUpdated, broker.entries[0].Type)
	assert.Equal(t, model.EventSessionConnected, broker.entries[1].Type)
	assert.Equal(t, model.EventSessionDisconnected, broker.entries[2].Type)
}
