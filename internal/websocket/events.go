package websocket

import (
	"log"

	"github.com/denapp-control/backend/internal/storage/models"
)

// EventBroadcaster turns agenda activity into WebSocket broadcasts.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a broadcaster on hub.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// BroadcastAgendaSyncCompleted announces a successful sync cycle.
func (b *EventBroadcaster) BroadcastAgendaSyncCompleted(result models.SyncResult) {
	b.broadcast(NewMessage(TypeAgendaSyncCompleted, AgendaSyncPayload{
		SyncID:        result.ID,
		Trigger:       result.Trigger,
		RowsRead:      result.RowsRead,
		EntriesCached: result.EntriesCached,
		RejectedRows:  result.RejectedRows,
		Duration:      result.Duration,
	}))
}

// BroadcastAgendaSyncError announces a failed sync cycle.
func (b *EventBroadcaster) BroadcastAgendaSyncError(result models.SyncResult) {
	b.broadcast(NewMessage(TypeAgendaSyncError, AgendaSyncErrorPayload{
		SyncID:  result.ID,
		Trigger: result.Trigger,
		Error:   "sync_error",
		Message: result.Error,
	}))
}

// BroadcastAgendaEntryChanged announces an entry written through the API.
// action is "created" or "updated".
func (b *EventBroadcaster) BroadcastAgendaEntryChanged(action string, entry *models.AgendaEntry) {
	msgType := TypeAgendaEntryUpdated
	if action == "created" {
		msgType = TypeAgendaEntryCreated
	}
	b.broadcast(NewMessage(msgType, AgendaEntryPayload{Entry: entry}))
}

func (b *EventBroadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		log.Printf("Error encoding WebSocket message: %v", err)
		return
	}
	b.hub.Broadcast(data)
}
