package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/werpoz/chatrelay/internal/model"
)

// MessagesRepository defines persistence for chat-scoped message rows.
type MessagesRepository interface {
	// Insert writes a message row. Idempotent on (session_id, ext_id) so an
	// at-least-once ingestion replay is harmless.
	Insert(ctx context.Context, tx *sqlx.Tx, m model.ChatMessage) error

	// ListByChatKey returns messages for one chat, newest first.
	ListByChatKey(ctx context.Context, sessionID, chatKey string, limit int) ([]model.ChatMessage, error)
}

type MessagesRepositoryImpl struct {
	db *sqlx.DB
}

func NewMessagesRepository(db *sqlx.DB) *MessagesRepositoryImpl {
	return &MessagesRepositoryImpl{db: db}
}

func (r *MessagesRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, m model.ChatMessage) error {
	const q = `
		INSERT INTO chat_messages
		    (id, tenant_id, session_id, chat_key, ext_id, sender, text, from_me, sent_at, created_at)
		VALUES
		    (?,  ?,         ?,          ?,        ?,      ?,      ?,    ?,       ?,       NOW())
		ON DUPLICATE KEY UPDATE
		    text = VALUES(text)
	`
	return runInTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			m.ID, m.TenantID, m.SessionID, m.ChatKey, m.ExtID, m.Sender, m.Text, m.FromMe, m.SentAt,
		)
		return err
	})
}

func (r *MessagesRepositoryImpl) ListByChatKey(ctx context.Context, sessionID, chatKey string, limit int) ([]model.ChatMessage, error) {
	const q = `
		SELECT id, tenant_id, session_id, chat_key, ext_id, sender, text, from_me, sent_at, created_at
		FROM chat_messages
		WHERE session_id = ? AND chat_key = ?
		ORDER BY sent_at DESC
		LIMIT ?
	`
	var out []model.ChatMessage
	if err := r.db.SelectContext(ctx, &out, q, sessionID, chatKey, limit); err != nil {
		return nil, err
	}
	return out, nil
}
