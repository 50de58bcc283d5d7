package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/werpoz/chatrelay/internal/model"
)

// ContactsRepository stores jid/lid pairings learned from contact syncs.
type ContactsRepository interface {
	// Upsert records a link; the jid is the functional key per session.
	Upsert(ctx context.Context, tx *sqlx.Tx, link model.ContactLink) error

	// ListLinked returns links where both identifier forms are known.
	ListLinked(ctx context.Context, sessionID string) ([]model.ContactLink, error)
}

type ContactsRepositoryImpl struct {
	db *sqlx.DB
}

func NewContactsRepository(db *sqlx.DB) *ContactsRepositoryImpl {
	return &ContactsRepositoryImpl{db: db}
}

func (r *ContactsRepositoryImpl) Upsert(ctx context.Context, tx *sqlx.Tx, link model.ContactLink) error {
	const q = `
		INSERT INTO contacts
		    (id, tenant_id, session_id, jid, lid, name, created_at, updated_at)
		VALUES
		    (?,  ?,         ?,          ?,   ?,   ?,    NOW(),      NOW())
		ON DUPLICATE KEY UPDATE
		    lid        = IF(VALUES(lid) <> '', VALUES(lid), lid),
		    name       = IF(VALUES(name) <> '', VALUES(name), name),
		    updated_at = NOW()
	`
	return runInTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			link.ID, link.TenantID, link.SessionID, link.JID, link.LID, link.Name,
		)
		return err
	})
}

func (r *ContactsRepositoryImpl) ListLinked(ctx context.Context, sessionID string) ([]model.ContactLink, error) {
	const q = `
		SELECT id, tenant_id, session_id, jid, lid, name, created_at, updated_at
		FROM contacts
		WHERE session_id = ? AND jid <> '' AND lid <> ''
	`
	var out []model.ContactLink
	if err := r.db.SelectContext(ctx, &out, q, sessionID); err != nil {
		return nil, err
	}
	return out, nil
}
