package ws

import (
	"encoding/json"

	"github.com/tablesmith/tablesmith/internal/schema"
)

// MessageType identifies the kind of WebSocket message.
type MessageType string

const (
	MsgPendingChanged MessageType = "pending_changed"
	MsgCommitted      MessageType = "committed"
	MsgSessionClosed  MessageType = "session_closed"
	MsgError          MessageType = "error"
	MsgSync           MessageType = "sync"
	MsgFullState      MessageType = "full_state"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PendingPayload carries a session's pending set.
type PendingPayload struct {
	Session string               `json:"session"`
	Table   string               `json:"table"`
	Events  []schema.EventRecord `json:"events"`
}

// CommittedPayload reports the statements a session committed.
type CommittedPayload struct {
	Session    string   `json:"session"`
	Table      string   `json:"table"`
	Statements []string `json:"statements"`
}

// NewMessage creates a new Message with the given type and payload.
func NewMessage(typ MessageType, payload any) ([]byte, error) {
	var p json.RawMessage
	if payload != nil {
		var err error
		p, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Message{Type: typ, Payload: p})
}
