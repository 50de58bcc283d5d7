package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/werpoz/chatrelay/internal/kafka"
	"github.com/werpoz/chatrelay/internal/logger"
	"github.com/werpoz/chatrelay/internal/service/ingest"
)

// Consumer is the slice of the kafka consumer the worker drives.
type Consumer interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// Processor handles one decoded raw event.
type Processor interface {
	Process(ctx context.Context, raw ingest.RawEvent) error
}

// IngestKafka:
// - fetches raw protocol events from Kafka,
// - resolves chat keys and persists chat-scoped rows,
// - emits domain events through the outbox publisher.
type IngestKafka struct {
	Consumer Consumer
	Svc      Processor

	Workers int // number of goroutines processing messages
}

// NewIngestKafka builds a worker with sane defaults.
func NewIngestKafka(consumer Consumer, svc Processor) *IngestKafka {
	return &IngestKafka{
		Consumer: consumer,
		Svc:      svc,
		Workers:  16,
	}
}

// Run starts the worker and blocks until ctx is cancelled.
func (w *IngestKafka) Run(ctx context.Context) error {
	if w.Workers <= 0 {
		w.Workers = 16
	}

	msgCh := make(chan kafka.Message, w.Workers*2)

	// Fetcher goroutine
	go func() {
		defer close(msgCh)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				m, err := w.Consumer.Fetch(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					logger.L().Warn("kafka fetch failed", zap.Error(err))
					time.Sleep(200 * time.Millisecond)
					continue
				}
				msgCh <- m
			}
		}
	}()

	// Start processors
	for i := 0; i < w.Workers; i++ {
		go w.runProcessor(ctx, msgCh)
	}

	<-ctx.Done()
	return ctx.Err()
}

func (w *IngestKafka) runProcessor(ctx context.Context, in <-chan kafka.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			w.processOne(ctx, m)
		}
	}
}

func (w *IngestKafka) processOne(ctx context.Context, m kafka.Message) {
	var raw ingest.RawEvent
	if err := json.Unmarshal(m.Value, &raw); err != nil {
		// poison → commit, skip
		logger.L().Warn("bad raw event json", zap.Error(err))
		_ = w.Consumer.Commit(ctx, m)
		return
	}

	if err := w.Svc.Process(ctx, raw); err != nil {
		if errors.Is(err, ingest.ErrBadEvent) {
			logger.L().Warn("dropping malformed raw event",
				zap.String("kind", raw.Kind), zap.Error(err))
			_ = w.Consumer.Commit(ctx, m)
			return
		}
		// transient store failure: leave uncommitted for refetch
		logger.L().Error("ingest failed", zap.String("kind", raw.Kind), zap.Error(err))
		return
	}

	if err := w.Consumer.Commit(ctx, m); err != nil {
		logger.L().Warn("kafka commit failed", zap.Error(err))
	}
}
