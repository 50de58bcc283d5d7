package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/werpoz/chatrelay/internal/model"
)

// DeadLetterRepository defines persistence for irrecoverable publish failures.
type DeadLetterRepository interface {
	// Insert writes a dead-letter row. Rows are immutable once written.
	Insert(ctx context.Context, tx *sqlx.Tx, m model.DeadLetterMessage) error

	// ListByEventName returns dead letters for operational inspection.
	ListByEventName(ctx context.Context, eventName string, limit int) ([]model.DeadLetterMessage, error)
}

type DeadLetterRepositoryImpl struct {
	db *sqlx.DB
}

func NewDeadLetterRepository(db *sqlx.DB) *DeadLetterRepositoryImpl {
	return &DeadLetterRepositoryImpl{db: db}
}

func (r *DeadLetterRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, m model.DeadLetterMessage) error {
	const q = `
		INSERT INTO dead_letters
		    (id, event_id, aggregate_id, event_name, occurred_on, payload, error, attempts, created_at)
		VALUES
		    (?,  ?,        ?,            ?,          ?,           ?,       ?,     ?,        NOW())
	`
	return runInTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			m.ID, m.EventID, m.AggregateID, m.EventName, m.OccurredOn, m.Payload, m.Error, m.Attempts,
		)
		return err
	})
}

func (r *DeadLetterRepositoryImpl) ListByEventName(ctx context.Context, eventName string, limit int) ([]model.DeadLetterMessage, error) {
	const q = `
		SELECT id, event_id, aggregate_id, event_name, occurred_on, payload, error, attempts, created_at
		FROM dead_letters
		WHERE event_name = ?
		ORDER BY created_at DESC
		LIMIT ?
	`
	var out []model.DeadLetterMessage
	if err := r.db.SelectContext(ctx, &out, q, eventName, limit); err != nil {
		return nil, err
	}
	return out, nil
}
