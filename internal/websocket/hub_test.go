package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
)

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestClient(hub *Hub, householdID int64) *Client {
	return &Client{hub: hub, householdID: householdID, send: make(chan []byte, sendBufferSize)}
}

func TestRegisterUnregister(t *testing.T) {
	hub := newTestHub()
	c := newTestClient(hub, 1)

	hub.Register(c)
	if got := hub.ClientCount(1); got != 1 {
		t.Errorf("expected 1 client, got %d", got)
	}

	hub.Unregister(c)
	if got := hub.ClientCount(1); got != 0 {
		t.Errorf("expected 0 clients, got %d", got)
	}

	// Channel should be closed after unregister
	select {
	case _, ok := <-c.send:
		if ok {
			t.Error("expected send channel to be closed")
		}
	default:
		t.Error("expected send channel to be closed and readable")
	}
}

func TestUnregisterTwiceIsSafe(t *testing.T) {
	hub := newTestHub()
	c := newTestClient(hub, 1)

	hub.Register(c)
	hub.Unregister(c)
	hub.Unregister(c) // must not panic on double close
}

func TestBroadcastScopedToHousehold(t *testing.T) {
	hub := newTestHub()
	mine := newTestClient(hub, 1)
	neighbor := newTestClient(hub, 2)
	hub.Register(mine)
	hub.Register(neighbor)

	hub.BroadcastTo(1, NewMessage("shopping_list_item", "created", 42, nil))

	select {
	case data := <-mine.send:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("failed to unmarshal broadcast: %v", err)
		}
		if msg.Type != "shopping_list_item_created" {
			t.Errorf("expected type shopping_list_item_created, got %q", msg.Type)
		}
		if msg.ID != 42 {
			t.Errorf("expected id 42, got %d", msg.ID)
		}
	default:
		t.Fatal("expected a message for household 1")
	}

	select {
	case <-neighbor.send:
		t.Error("expected no message for household 2")
	default:
	}
}

func TestBroadcastDropsWhenBufferFull(t *testing.T) {
	hub := newTestHub()
	c := &Client{hub: hub, householdID: 1, send: make(chan []byte, 1)}
	hub.Register(c)

	hub.BroadcastTo(1, NewMessage("inventory_item", "updated", 1, nil))
	// Buffer is now full; this broadcast must not block.
	hub.BroadcastTo(1, NewMessage("inventory_item", "updated", 2, nil))

	if got := len(c.send); got != 1 {
		t.Errorf("expected 1 buffered message, got %d", got)
	}
}
