package model

import (
	"encoding/json"
	"time"
)

// RealtimeFrame is the hub→subscriber message, one JSON object per send.
type RealtimeFrame struct {
	Type       string          `json:"type"` // "<namespace>.<action>"
	SessionID  string          `json:"sessionId"`
	EventID    string          `json:"eventId,omitempty"`
	OccurredOn *time.Time      `json:"occurredOn,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}
