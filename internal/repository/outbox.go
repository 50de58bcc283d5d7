package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/werpoz/chatrelay/internal/model"
)

// OutboxRepository defines persistence methods for the outbox table.
type OutboxRepository interface {
	// Add writes a single outbox row. If tx is nil, it will open/commit an
	// internal transaction; otherwise it uses the given tx so the row commits
	// atomically with the domain mutation.
	Add(ctx context.Context, tx *sqlx.Tx, m model.OutboxMessage) error

	// ListPending returns up to limit pending rows ordered by creation.
	ListPending(ctx context.Context, limit int) ([]model.OutboxMessage, error)

	// MarkPublished sets status=published. Idempotent: marking an already
	// published row again is a no-op.
	MarkPublished(ctx context.Context, eventID string) error

	// RecordPublishError stores the write-path publish failure without
	// touching attempts; the row stays pending for the dispatcher.
	RecordPublishError(ctx context.Context, eventID, errMsg string) error

	// RecordFailedAttempt stores a dispatcher retry failure and increments
	// attempts.
	RecordFailedAttempt(ctx context.Context, eventID, errMsg string) error

	// Delete removes the row; used when a message moves to the dead-letter
	// table in the same transaction.
	Delete(ctx context.Context, tx *sqlx.Tx, eventID string) error

	// GetByEventID returns the row or nil when absent.
	GetByEventID(ctx context.Context, eventID string) (*model.OutboxMessage, error)
}

// OutboxRepositoryImpl is a sqlx-backed implementation.
type OutboxRepositoryImpl struct {
	db *sqlx.DB
}

// NewOutboxRepository constructs an OutboxRepositoryImpl.
func NewOutboxRepository(db *sqlx.DB) *OutboxRepositoryImpl {
	return &OutboxRepositoryImpl{db: db}
}

func (r *OutboxRepositoryImpl) Add(ctx context.Context, tx *sqlx.Tx, m model.OutboxMessage) error {
	const q = `
		INSERT INTO outbox
		    (id, event_id, aggregate_id, event_name, occurred_on, payload, status, attempts, created_at, updated_at)
		VALUES
		    (?,  ?,        ?,            ?,          ?,           ?,       'pending', 0,    NOW(),      NOW())
	`
	return runInTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			m.ID, m.EventID, m.AggregateID, m.EventName, m.OccurredOn, m.Payload,
		)
		return err
	})
}

func (r *OutboxRepositoryImpl) ListPending(ctx context.Context, limit int) ([]model.OutboxMessage, error) {
	const q = `
		SELECT id, event_id, aggregate_id, event_name, occurred_on, payload, status, attempts, last_error, created_at, updated_at
		FROM outbox
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT ?
	`
	var out []model.OutboxMessage
	if err := r.db.SelectContext(ctx, &out, q, limit); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *OutboxRepositoryImpl) MarkPublished(ctx context.Context, eventID string) error {
	const q = `UPDATE outbox SET status = 'published', updated_at = NOW() WHERE event_id = ?`
	_, err := r.db.ExecContext(ctx, q, eventID)
	return err
}

func (r *OutboxRepositoryImpl) RecordPublishError(ctx context.Context, eventID, errMsg string) error {
	const q = `UPDATE outbox SET last_error = ?, updated_at = NOW() WHERE event_id = ? AND status = 'pending'`
	_, err := r.db.ExecContext(ctx, q, errMsg, eventID)
	return err
}

func (r *OutboxRepositoryImpl) RecordFailedAttempt(ctx context.Context, eventID, errMsg string) error {
	const q = `
		UPDATE outbox
		SET attempts = attempts + 1, last_error = ?, updated_at = NOW()
		WHERE event_id = ? AND status = 'pending'
	`
	_, err := r.db.ExecContext(ctx, q, errMsg, eventID)
	return err
}

func (r *OutboxRepositoryImpl) Delete(ctx context.Context, tx *sqlx.Tx, eventID string) error {
	const q = `DELETE FROM outbox WHERE event_id = ?`
	return runInTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, eventID)
		return err
	})
}

func (r *OutboxRepositoryImpl) GetByEventID(ctx context.Context, eventID string) (*model.OutboxMessage, error) {
	const q = `
		SELECT id, event_id, aggregate_id, event_name, occurred_on, payload, status, attempts, last_error, created_at, updated_at
		FROM outbox
		WHERE event_id = ?
	`
	var m model.OutboxMessage
	if err := r.db.GetContext(ctx, &m, q, eventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}
