package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/werpoz/chatrelay/internal/logger"
	"github.com/werpoz/chatrelay/internal/metrics"
	"github.com/werpoz/chatrelay/internal/model"
	"github.com/werpoz/chatrelay/internal/repository"
	"github.com/werpoz/chatrelay/internal/stream"
	"github.com/werpoz/chatrelay/internal/util"
)

// Dispatcher retries pending outbox rows on a fixed interval. Safe to run
// from several processes at once: marking published is idempotent and
// duplicate broker entries are tolerated downstream (at-least-once).
type Dispatcher struct {
	db          *sqlx.DB // nil in tests backed by fakes
	outbox      repository.OutboxRepository
	deadLetters repository.DeadLetterRepository
	stream      stream.Publisher
	archive     repository.ArchiveRepository // optional
	breaker     *MicroBreaker

	BatchSize   int
	Interval    time.Duration
	MaxAttempts int
}

func NewDispatcher(
	db *sqlx.DB,
	outboxRepo repository.OutboxRepository,
	deadLetterRepo repository.DeadLetterRepository,
	streamPub stream.Publisher,
	archive repository.ArchiveRepository,
	breaker *MicroBreaker,
) *Dispatcher {
	if breaker == nil {
		breaker = NewMicroBreaker(0, 0)
	}
	return &Dispatcher{
		db:          db,
		outbox:      outboxRepo,
		deadLetters: deadLetterRepo,
		stream:      streamPub,
		archive:     archive,
		breaker:     breaker,
		BatchSize:   100,
		Interval:    2 * time.Second,
		MaxAttempts: 10,
	}
}

// Run ticks at Interval until ctx is cancelled. Each RunOnce gets a deadline
// of one interval so a slow batch delays only the next tick.
func (d *Dispatcher) Run(ctx context.Context) error {
	tick := time.NewTicker(d.Interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			runCtx, cancel := context.WithTimeout(ctx, d.Interval)
			if _, err := d.RunOnce(runCtx); err != nil {
				logger.L().Warn("dispatcher run failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// RunOnce pulls one batch of pending rows and retries publish for each.
// Returns the number of rows it resolved (published or dead-lettered).
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	if !d.breaker.Ready() {
		return 0, nil
	}

	msgs, err := d.outbox.ListPending(ctx, d.BatchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, m := range msgs {
		if m.Attempts >= d.MaxAttempts {
			if err := d.moveToDeadLetter(ctx, m); err != nil {
				logger.L().Error("dead-letter move failed", zap.String("event_id", m.EventID), zap.Error(err))
				continue
			}
			metrics.EventsTotal.WithLabelValues("dead_lettered").Inc()
			processed++
			continue
		}

		if !d.breaker.TryAcquire() {
			break
		}

		entry := stream.Entry{
			EventID:    m.EventID,
			Type:       m.EventName,
			Payload:    m.Payload,
			OccurredOn: m.OccurredOn,
		}
		if err := d.stream.Append(ctx, entry); err != nil {
			d.breaker.OnFailure()
			metrics.EventsTotal.WithLabelValues("retry_failed").Inc()
			if rerr := d.outbox.RecordFailedAttempt(ctx, m.EventID, err.Error()); rerr != nil {
				logger.L().Error("record failed attempt", zap.String("event_id", m.EventID), zap.Error(rerr))
			}
			continue
		}
		d.breaker.OnSuccess()

		if err := d.outbox.MarkPublished(ctx, m.EventID); err != nil {
			logger.L().Error("mark published", zap.String("event_id", m.EventID), zap.Error(err))
			continue
		}
		metrics.EventsTotal.WithLabelValues("published").Inc()
		d.archivePublished(ctx, m)
		processed++
	}
	return processed, nil
}

// moveToDeadLetter records the terminal failure and removes the outbox row in
// one transaction.
func (d *Dispatcher) moveToDeadLetter(ctx context.Context, m model.OutboxMessage) error {
	lastErr := "publish attempts exhausted"
	if m.LastError != nil && *m.LastError != "" {
		lastErr = *m.LastError
	}
	dl := model.DeadLetterMessage{
		ID:          util.NewID(),
		EventID:     m.EventID,
		AggregateID: m.AggregateID,
		EventName:   m.EventName,
		OccurredOn:  m.OccurredOn,
		Payload:     m.Payload,
		Error:       lastErr,
		Attempts:    m.Attempts,
	}

	if d.db == nil {
		if err := d.deadLetters.Insert(ctx, nil, dl); err != nil {
			return err
		}
		return d.outbox.Delete(ctx, nil, m.EventID)
	}

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := d.deadLetters.Insert(ctx, tx, dl); err != nil {
		return err
	}
	if err := d.outbox.Delete(ctx, tx, m.EventID); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *Dispatcher) archivePublished(ctx context.Context, m model.OutboxMessage) {
	if d.archive == nil {
		return
	}

	var e model.DomainEvent
	if err := json.Unmarshal(m.Payload, &e); err != nil {
		logger.L().Warn("archive decode failed", zap.String("event_id", m.EventID), zap.Error(err))
		return
	}
	err := d.archive.Insert(ctx, model.ArchivedEvent{
		EventID:     m.EventID,
		EventName:   m.EventName,
		AggregateID: m.AggregateID,
		TenantID:    e.TenantID,
		OccurredOn:  m.OccurredOn,
		Payload:     m.Payload,
		PublishedAt: time.Now().UTC(),
	})
	if err != nil {
		logger.L().Warn("event archive insert failed", zap.String("event_id", m.EventID), zap.Error(err))
	}
}
