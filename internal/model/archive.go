package model

import "time"

// ArchivedEvent is the ClickHouse append-only copy of a published event,
// written after the broker accepted it. Used by reports only.
type ArchivedEvent struct {
	EventID     string    `db:"event_id"`
	EventName   string    `db:"event_name"`
	AggregateID string    `db:"aggregate_id"`
	TenantID    string    `db:"tenant_id"`
	OccurredOn  time.Time `db:"occurred_on"`
	Payload     []byte    `db:"payload"`
	PublishedAt time.Time `db:"published_at"`
}
