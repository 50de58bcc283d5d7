package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/werpoz/chatrelay/internal/model"
)

// SessionsRepository defines persistence for protocol sessions.
type SessionsRepository interface {
	Upsert(ctx context.Context, tx *sqlx.Tx, s model.Session) error
	UpdateStatus(ctx context.Context, sessionID string, status model.SessionStatus, jid string) error
	GetByID(ctx context.Context, sessionID string) (*model.Session, error)
}

type SessionsRepositoryImpl struct {
	db *sqlx.DB
}

func NewSessionsRepository(db *sqlx.DB) *SessionsRepositoryImpl {
	return &SessionsRepositoryImpl{db: db}
}

func (r *SessionsRepositoryImpl) Upsert(ctx context.Context, tx *sqlx.Tx, s model.Session) error {
	const q = `
		INSERT INTO sessions
		    (id, tenant_id, name, status, jid, created_at, updated_at)
		VALUES
		    (?,  ?,         ?,    ?,      ?,   NOW(),      NOW())
		ON DUPLICATE KEY UPDATE
		    name       = VALUES(name),
		    status     = VALUES(status),
		    updated_at = NOW()
	`
	return runInTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, s.ID, s.TenantID, s.Name, s.Status.String(), s.JID)
		return err
	})
}

func (r *SessionsRepositoryImpl) UpdateStatus(ctx context.Context, sessionID string, status model.SessionStatus, jid string) error {
	const q = `
		UPDATE sessions
		SET status = ?, jid = IF(? <> '', ?, jid), updated_at = NOW()
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, q, status.String(), jid, jid, sessionID)
	return err
}

func (r *SessionsRepositoryImpl) GetByID(ctx context.Context, sessionID string) (*model.Session, error) {
	const q = `
		SELECT id, tenant_id, name, status, jid, created_at, updated_at
		FROM sessions
		WHERE id = ?
	`
	var s model.Session
	if err := r.db.GetContext(ctx, &s, q, sessionID); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
