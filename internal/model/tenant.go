package model

import "time"

type Tenant struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	APIKey    string    `db:"api_key"`
	Status    string    `db:"status"` // active | suspended
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type SessionStatus string

const (
	SessionOffline   SessionStatus = "offline"
	SessionConnected SessionStatus = "connected"
	SessionQRPending SessionStatus = "qr_pending"
)

func (s SessionStatus) String() string {
	return string(s)
}

// Session is one protocol session owned by a tenant.
type Session struct {
	ID        string        `db:"id"`
	TenantID  string        `db:"tenant_id"`
	Name      string        `db:"name"`
	Status    SessionStatus `db:"status"`
	JID       string        `db:"jid"` // own address once connected
	CreatedAt time.Time     `db:"created_at"`
	UpdatedAt time.Time     `db:"updated_at"`
}
