package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denapp-control/backend/internal/storage/models"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data, ok := <-c.Send():
		require.True(t, ok, "client channel closed")
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	hub := startHub(t)
	a, b := NewClient(hub), NewClient(hub)
	hub.Register(a)
	hub.Register(b)

	events := NewEventBroadcaster(hub)
	events.BroadcastAgendaSyncCompleted(models.SyncResult{ID: "s1", Trigger: models.SyncTriggerManual, EntriesCached: 2})

	for _, c := range []*Client{a, b} {
		msg := receive(t, c)
		assert.Equal(t, TypeAgendaSyncCompleted, msg.Type)
		payload, ok := msg.Payload.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "s1", payload["sync_id"])
		assert.EqualValues(t, 2, payload["entries_cached"])
	}
}

func TestEntryEventsUseActionType(t *testing.T) {
	hub := startHub(t)
	c := NewClient(hub)
	hub.Register(c)

	events := NewEventBroadcaster(hub)
	entry := &models.AgendaEntry{ID: "e1", PatientNumber: "PAC0001"}
	events.BroadcastAgendaEntryChanged("created", entry)
	events.BroadcastAgendaEntryChanged("updated", entry)
	events.BroadcastAgendaSyncError(models.SyncResult{ID: "s2", Error: "agenda read failed"})

	assert.Equal(t, TypeAgendaEntryCreated, receive(t, c).Type)
	assert.Equal(t, TypeAgendaEntryUpdated, receive(t, c).Type)

	msg := receive(t, c)
	assert.Equal(t, TypeAgendaSyncError, msg.Type)
	assert.Equal(t, "agenda read failed", msg.Payload.(map[string]any)["message"])
}

func TestUnregisterClosesClient(t *testing.T) {
	hub := startHub(t)
	c := NewClient(hub)
	hub.Register(c)
	hub.Unregister(c)

	select {
	case _, ok := <-c.Send():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("client channel not closed")
	}
	assert.Equal(t, 0, hub.ClientCount())
	assert.False(t, c.Reply([]byte("late")))
}

func TestStoppedHubDoesNotBlock(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	connected := NewClient(hub)
	hub.Register(connected)
	cancel()
	<-done

	late := NewClient(hub)
	returned := make(chan struct{})
	go func() {
		hub.Register(late)
		hub.Unregister(late)
		hub.Unregister(connected)
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Register/Unregister blocked after the hub stopped")
	}

	for _, c := range []*Client{connected, late} {
		_, ok := <-c.Send()
		assert.False(t, ok)
	}
	assert.Equal(t, 0, hub.ClientCount())
}
