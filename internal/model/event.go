package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/werpoz/chatrelay/internal/util"
)

// Event names. Subscribers receive these verbatim as the frame type.
const (
	EventMessageCreated      = "message.created"
	EventMessageEdited       = "message.edited"
	EventMessageDeleted      = "message.deleted"
	EventMessageReaction     = "message.reaction"
	EventContactSynced       = "contact.synced"
	EventSessionConnected    = "session.status.connected"
	EventSessionDisconnected = "session.status.disconnected"
	EventSessionQRUpdated    = "session.qr.updated"
)

// recognized event namespaces; entries outside these are dropped by the tailer.
var eventNamespaces = []string{"message.", "contact.", "session."}

// KnownEventName reports whether name belongs to a recognized namespace.
func KnownEventName(name string) bool {
	for _, ns := range eventNamespaces {
		if strings.HasPrefix(name, ns) {
			return true
		}
	}
	return false
}

// DomainEvent is the single envelope for every event variant, keyed by
// EventName instead of a type hierarchy. Data holds the variant payload.
type DomainEvent struct {
	EventID     string          `json:"eventId"`
	EventName   string          `json:"eventName"`
	AggregateID string          `json:"aggregateId"`
	TenantID    string          `json:"tenantId"`
	SessionID   string          `json:"sessionId"`
	OccurredOn  time.Time       `json:"occurredOn"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// ---- Variant payloads ----

type MessageEventData struct {
	ChatKey   string `json:"chatKey"`
	MessageID string `json:"messageId"`
	From      string `json:"from,omitempty"`
	Text      string `json:"text,omitempty"`
	Reaction  string `json:"reaction,omitempty"`
	FromMe    bool   `json:"fromMe,omitempty"`
}

type ContactSyncedData struct {
	JID  string `json:"jid"`
	LID  string `json:"lid,omitempty"`
	Name string `json:"name,omitempty"`
}

type SessionStatusData struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type SessionQRData struct {
	Code string `json:"code"`
}

// NewEvent builds an envelope for the given variant payload. The aggregate is
// the owning session.
func NewEvent(name, tenantID, sessionID string, data any) (DomainEvent, error) {
	if !KnownEventName(name) {
		return DomainEvent{}, fmt.Errorf("unknown event name %q", name)
	}

	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return DomainEvent{}, fmt.Errorf("marshal event data: %w", err)
		}
		raw = b
	}

	return DomainEvent{
		EventID:     util.NewID(),
		EventName:   name,
		AggregateID: sessionID,
		TenantID:    tenantID,
		SessionID:   sessionID,
		OccurredOn:  time.Now().UTC(),
		Data:        raw,
	}, nil
}

// DecodeData unmarshals the variant payload for the envelope's EventName.
func (e DomainEvent) DecodeData() (any, error) {
	switch e.EventName {
	case EventMessageCreated, EventMessageEdited, EventMessageDeleted, EventMessageReaction:
		var d MessageEventData
		err := json.Unmarshal(e.Data, &d)
		return d, err
	case EventContactSynced:
		var d ContactSyncedData
		err := json.Unmarshal(e.Data, &d)
		return d, err
	case EventSessionConnected, EventSessionDisconnected:
		var d SessionStatusData
		err := json.Unmarshal(e.Data, &d)
		return d, err
	case EventSessionQRUpdated:
		var d SessionQRData
		err := json.Unmarshal(e.Data, &d)
		return d, err
	default:
		return nil, fmt.Errorf("no decoder for event %q", e.EventName)
	}
}
