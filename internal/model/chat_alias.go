package model

import "time"

type AliasType string

const (
	AliasJID  AliasType = "jid"
	AliasLID  AliasType = "lid"
	AliasWAID AliasType = "waid"
)

func (t AliasType) String() string {
	return string(t)
}

// ChatAliasRecord maps one external chat identifier to the internal chat key.
// For a given (session_id, alias) at most one chat key is active; one chat
// key may carry many aliases.
type ChatAliasRecord struct {
	ID        string    `db:"id"`
	TenantID  string    `db:"tenant_id"`
	SessionID string    `db:"session_id"`
	ChatKey   string    `db:"chat_key"`
	Alias     string    `db:"alias"`
	AliasType AliasType `db:"alias_type"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
