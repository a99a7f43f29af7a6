package api

import (
	"encoding/json"
	"testing"
)

func newHubClient(h *Hub, channels ...string) *Client {
	c := &Client{
		hub:           h,
		send:          make(chan []byte, 4),
		id:            "test",
		subscriptions: make(map[string]bool),
	}
	for _, ch := range channels {
		c.subscriptions[ch] = true
	}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	return c
}

func TestBroadcastToChannel(t *testing.T) {
	h := NewHub()
	subscribed := newHubClient(h, "trades")
	other := newHubClient(h, "book")

	h.BroadcastToChannel("trades", map[string]string{"type": "trades"})

	select {
	case msg := <-subscribed.send:
		var got map[string]string
		if err := json.Unmarshal(msg, &got); err != nil || got["type"] != "trades" {
			t.Errorf("delivered message = %s (%v)", msg, err)
		}
	default:
		t.Error("subscribed client received nothing")
	}

	select {
	case msg := <-other.send:
		t.Errorf("unsubscribed client received %s", msg)
	default:
	}
}

func TestBroadcastSkipsFullClient(t *testing.T) {
	h := NewHub()
	c := newHubClient(h, "book")
	c.send = make(chan []byte) // unbuffered, nothing draining

	// Must return rather than block on the stuck client.
	h.BroadcastToChannel("book", map[string]string{"type": "book"})
}

func TestSubscriptionLifecycle(t *testing.T) {
	h := NewHub()
	c := newHubClient(h)

	if c.IsSubscribed("trades") {
		t.Fatal("fresh client should have no subscriptions")
	}
	c.Subscribe("trades")
	if !c.IsSubscribed("trades") {
		t.Error("subscribe did not register the channel")
	}
	c.Unsubscribe("trades")
	if c.IsSubscribed("trades") {
		t.Error("unsubscribe left the channel registered")
	}
}
