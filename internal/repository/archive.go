package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/werpoz/chatrelay/internal/model"
)

// ArchiveRepository is the ClickHouse event archive written after a
// successful broker publish and read by the reports endpoint.
type ArchiveRepository interface {
	Insert(ctx context.Context, e model.ArchivedEvent) error
	List(ctx context.Context, tenantID, namePrefix string, since time.Time, limit int) ([]model.ArchivedEvent, error)
}

type ArchiveRepositoryImpl struct {
	db *sqlx.DB
}

func NewArchiveRepository(db *sqlx.DB) *ArchiveRepositoryImpl {
	return &ArchiveRepositoryImpl{db: db}
}

func (r *ArchiveRepositoryImpl) Insert(ctx context.Context, e model.ArchivedEvent) error {
	const q = `
		INSERT INTO events_archive
		    (event_id, event_name, aggregate_id, tenant_id, occurred_on, payload, published_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, q,
		e.EventID, e.EventName, e.AggregateID, e.TenantID, e.OccurredOn, string(e.Payload), e.PublishedAt,
	)
	return err
}

func (r *ArchiveRepositoryImpl) List(ctx context.Context, tenantID, namePrefix string, since time.Time, limit int) ([]model.ArchivedEvent, error) {
	const q = `
		SELECT event_id, event_name, aggregate_id, tenant_id, occurred_on, payload, published_at
		FROM events_archive
		WHERE tenant_id = ? AND event_name LIKE ? AND occurred_on >= ?
		ORDER BY occurred_on DESC
		LIMIT ?
	`
	var out []model.ArchivedEvent
	if err := r.db.SelectContext(ctx, &out, q, tenantID, namePrefix+"%", since, limit); err != nil {
		return nil, err
	}
	return out, nil
}
