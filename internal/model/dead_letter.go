package model

import "time"

// DeadLetterMessage records an outbox entry that exhausted its publish
// attempts. Immutable once written; kept for operational inspection.
type DeadLetterMessage struct {
	ID          string    `db:"id"`
	EventID     string    `db:"event_id"`
	AggregateID string    `db:"aggregate_id"`
	EventName   string    `db:"event_name"`
	OccurredOn  time.Time `db:"occurred_on"`
	Payload     []byte    `db:"payload"`
	Error       string    `db:"error"`
	Attempts    int       `db:"attempts"`
	CreatedAt   time.Time `db:"created_at"`
}
