// Package outbox implements the durable side of event publishing: every
// domain event is stored before the broker sees it, and a background
// dispatcher retries whatever the write path could not deliver.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/werpoz/chatrelay/internal/logger"
	"github.com/werpoz/chatrelay/internal/metrics"
	"github.com/werpoz/chatrelay/internal/model"
	"github.com/werpoz/chatrelay/internal/repository"
	"github.com/werpoz/chatrelay/internal/stream"
	"github.com/werpoz/chatrelay/internal/util"
)

// Publisher stores each event durably, then attempts an immediate best-effort
// broker publish. Broker failures never reach the caller; only storage errors
// do.
type Publisher struct {
	outbox  repository.OutboxRepository
	stream  stream.Publisher
	archive repository.ArchiveRepository // optional
}

func NewPublisher(outboxRepo repository.OutboxRepository, streamPub stream.Publisher, archive repository.ArchiveRepository) *Publisher {
	return &Publisher{outbox: outboxRepo, stream: streamPub, archive: archive}
}

// Publish processes the events in order: durable outbox append, then
// best-effort publish. A failed publish records the error and leaves the row
// pending for the dispatcher.
func (p *Publisher) Publish(ctx context.Context, events []model.DomainEvent) error {
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", e.EventID, err)
		}

		msg := model.OutboxMessage{
			ID:          util.NewID(),
			EventID:     e.EventID,
			AggregateID: e.AggregateID,
			EventName:   e.EventName,
			OccurredOn:  e.OccurredOn,
			Payload:     payload,
			Status:      model.OutboxPending,
		}
		if err := p.outbox.Add(ctx, nil, msg); err != nil {
			return fmt.Errorf("outbox add %s: %w", e.EventID, err)
		}
		metrics.EventsTotal.WithLabelValues("stored").Inc()

		entry := stream.Entry{
			EventID:    e.EventID,
			Type:       e.EventName,
			Payload:    payload,
			OccurredOn: e.OccurredOn,
		}
		if err := p.stream.Append(ctx, entry); err != nil {
			// Leave pending; the dispatcher retries. Attempts stays
			// untouched, it counts dispatcher retries only.
			logger.L().Warn("broker publish failed, left pending",
				zap.String("event_id", e.EventID), zap.Error(err))
			if rerr := p.outbox.RecordPublishError(ctx, e.EventID, err.Error()); rerr != nil {
				logger.L().Error("record publish error", zap.String("event_id", e.EventID), zap.Error(rerr))
			}
			continue
		}

		if err := p.outbox.MarkPublished(ctx, e.EventID); err != nil {
			logger.L().Error("mark published", zap.String("event_id", e.EventID), zap.Error(err))
			continue
		}
		metrics.EventsTotal.WithLabelValues("published").Inc()
		p.archivePublished(ctx, e, payload)
	}
	return nil
}

func (p *Publisher) archivePublished(ctx context.Context, e model.DomainEvent, payload []byte) {
	if p.archive == nil {
		return
	}
	err := p.archive.Insert(ctx, model.ArchivedEvent{
		EventID:     e.EventID,
		EventName:   e.EventName,
		AggregateID: e.AggregateID,
		TenantID:    e.TenantID,
		OccurredOn:  e.OccurredOn,
		Payload:     payload,
		PublishedAt: time.Now().UTC(),
	})
	if err != nil {
		logger.L().Warn("event archive insert failed", zap.String("event_id", e.EventID), zap.Error(err))
	}
}
