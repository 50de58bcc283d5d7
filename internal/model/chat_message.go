package model

import "time"

// ChatMessage is a chat-scoped row persisted during ingestion. ChatKey always
// comes from the alias resolver; no row is written without one.
type ChatMessage struct {
	ID        string    `db:"id"`
	TenantID  string    `db:"tenant_id"`
	SessionID string    `db:"session_id"`
	ChatKey   string    `db:"chat_key"`
	ExtID     string    `db:"ext_id"` // protocol-level message id
	Sender    string    `db:"sender"`
	Text      string    `db:"text"`
	FromMe    bool      `db:"from_me"`
	SentAt    time.Time `db:"sent_at"`
	CreatedAt time.Time `db:"created_at"`
}

// ContactLink records a jid/lid pairing learned from a contact sync. It is
// the non-temporal evidence source for the alias repair pass.
type ContactLink struct {
	ID        string    `db:"id"`
	TenantID  string    `db:"tenant_id"`
	SessionID string    `db:"session_id"`
	JID       string    `db:"jid"`
	LID       string    `db:"lid"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
