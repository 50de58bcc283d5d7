// Package session exposes the protocol client as a capability interface and
// turns its connection callbacks into domain events. The concrete WhatsApp
// client lives outside this module.
package session

import "context"

// Callbacks receives asynchronous session lifecycle notifications from the
// provider. Implementations must not block; the provider may invoke them from
// its own goroutines.
type Callbacks struct {
	OnQR           func(sessionID, code string)
	OnConnected    func(sessionID, ownJID string)
	OnDisconnected func(sessionID, reason string)
}

// Provider is the capability surface of the protocol client.
type Provider interface {
	Start(ctx context.Context, sessionID string, cb Callbacks) error
	Stop(ctx context.Context, sessionID string) error

	SendText(ctx context.Context, sessionID, chatJID, text string) (msgID string, err error)
	EditMessage(ctx context.Context, sessionID, chatJID, msgID, text string) error
	DeleteMessage(ctx context.Context, sessionID, chatJID, msgID string) error
	React(ctx context.Context, sessionID, chatJID, msgID, emoji string) error
}
