package websocket

import (
	"encoding/json"
	"time"

	"github.com/denapp-control/backend/internal/storage/models"
)

// MessageType identifies a WebSocket message.
type MessageType string

const (
	// Server -> client events
	TypeAgendaSyncCompleted MessageType = "agenda.sync_completed"
	TypeAgendaSyncError     MessageType = "agenda.sync_error"
	TypeAgendaEntryCreated  MessageType = "agenda.entry_created"
	TypeAgendaEntryUpdated  MessageType = "agenda.entry_updated"

	// Client -> server commands
	TypePing MessageType = "ping"

	// Server -> client responses
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message is the envelope of every WebSocket message.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload,omitempty"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON encodes the message.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// AgendaSyncPayload is the payload of agenda.sync_completed events.
type AgendaSyncPayload struct {
	SyncID        string  `json:"sync_id"`
	Trigger       string  `json:"trigger"`
	RowsRead      int     `json:"rows_read"`
	EntriesCached int     `json:"entries_cached"`
	RejectedRows  int     `json:"rejected_rows"`
	Duration      float64 `json:"duration_seconds"`
}

// AgendaSyncErrorPayload is the payload of agenda.sync_error events.
type AgendaSyncErrorPayload struct {
	SyncID  string `json:"sync_id"`
	Trigger string `json:"trigger"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// AgendaEntryPayload is the payload of agenda.entry_* events.
type AgendaEntryPayload struct {
	Entry *models.AgendaEntry `json:"entry"`
}

// ErrorPayload answers a client message the server could not handle.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}
