package model

import "time"

type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxPublished OutboxStatus = "published"
)

func (s OutboxStatus) String() string {
	return string(s)
}

// OutboxMessage is one durable outbox row per domain event. Exactly one row
// exists per EventID; published is terminal.
type OutboxMessage struct {
	ID          string       `db:"id"`
	EventID     string       `db:"event_id"`
	AggregateID string       `db:"aggregate_id"`
	EventName   string       `db:"event_name"`
	OccurredOn  time.Time    `db:"occurred_on"`
	Payload     []byte       `db:"payload"`
	Status      OutboxStatus `db:"status"`
	Attempts    int          `db:"attempts"`
	LastError   *string      `db:"last_error"`
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
}
