package realtime

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/werpoz/chatrelay/internal/logger"
	"github.com/werpoz/chatrelay/internal/metrics"
	"github.com/werpoz/chatrelay/internal/model"
	"github.com/werpoz/chatrelay/internal/stream"
)

// Tailer is the long-running broker stream reader feeding the hub. The
// blocking stream read is its only suspension point; cancelling the context
// stops the loop without losing the persisted cursor.
type Tailer struct {
	reader stream.Reader
	cursor stream.CursorStore
	hub    *Hub

	Consumer  string        // cursor key, one per logical consumer
	Block     time.Duration // bounded wait per read
	ReadCount int64
}

func NewTailer(reader stream.Reader, cursor stream.CursorStore, hub *Hub, consumer string) *Tailer {
	if consumer == "" {
		consumer = "realtime"
	}
	return &Tailer{
		reader:    reader,
		cursor:    cursor,
		hub:       hub,
		Consumer:  consumer,
		Block:     5 * time.Second,
		ReadCount: 64,
	}
}

// Run blocks until ctx is cancelled. It resumes from the persisted cursor,
// falling back to tailing only new entries on the very first boot.
func (t *Tailer) Run(ctx context.Context) error {
	cur, err := t.cursor.Load(ctx, t.Consumer)
	if err != nil {
		return err
	}
	if cur == "" {
		cur = stream.CursorLatest
	}

	logger.L().Info("stream tailer started",
		zap.String("consumer", t.Consumer), zap.String("cursor", cur))

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		entries, next, err := t.reader.Read(ctx, cur, t.Block, t.ReadCount)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.L().Warn("stream read failed", zap.Error(err))
			time.Sleep(200 * time.Millisecond)
			continue
		}

		for _, e := range entries {
			t.handleEntry(e)
		}
		cur = next

		if len(entries) > 0 {
			if err := t.cursor.Save(ctx, t.Consumer, cur); err != nil {
				logger.L().Warn("cursor save failed", zap.Error(err))
			}
		}
	}
}

// handleEntry decodes one broker entry and forwards it to the tenant's
// subscribers. Entries outside the recognized namespaces or without a tenant
// are skipped; a malformed payload is logged and skipped, never fatal.
func (t *Tailer) handleEntry(e stream.Entry) {
	if !model.KnownEventName(e.Type) {
		metrics.StreamEntriesTotal.WithLabelValues("skipped").Inc()
		return
	}

	var ev model.DomainEvent
	if err := json.Unmarshal(e.Payload, &ev); err != nil {
		metrics.StreamEntriesTotal.WithLabelValues("skipped").Inc()
		logger.L().Warn("malformed stream payload",
			zap.String("stream_id", e.ID), zap.Error(err))
		return
	}
	if ev.TenantID == "" {
		metrics.StreamEntriesTotal.WithLabelValues("skipped").Inc()
		logger.L().Warn("stream entry without tenant",
			zap.String("stream_id", e.ID), zap.String("event", e.Type))
		return
	}

	sessionID := ev.SessionID
	if sessionID == "" {
		sessionID = ev.AggregateID
	}

	occurred := e.OccurredOn
	if occurred.IsZero() {
		occurred = ev.OccurredOn
	}

	t.hub.Broadcast(ev.TenantID, model.RealtimeFrame{
		Type:       e.Type,
		SessionID:  sessionID,
		EventID:    ev.EventID,
		OccurredOn: &occurred,
		Payload:    ev.Data,
	})
	metrics.StreamEntriesTotal.WithLabelValues("forwarded").Inc()
}
