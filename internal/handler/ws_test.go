package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestClient(id, backpackID string, buffer int) *Client {
	return &Client{
		ID:         id,
		Send:       make(chan []byte, buffer),
		BackpackID: backpackID,
	}
}

func TestFanOutDropsSaturatedClientWithoutBlocking(t *testing.T) {
	hub := NewWSHub(nil)

	slow := newTestClient("slow", "", 1)
	fast := newTestClient("fast", "", 8)
	hub.clients[slow] = true
	hub.clients[fast] = true

	// Fill the slow client's buffer; nothing is reading from it.
	slow.Send <- []byte(`{"type":"position"}`)

	done := make(chan struct{})
	go func() {
		hub.fanOut([]byte(`{"type":"position","data":{"backpack_id":"GKP-0001"}}`))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fanOut blocked on a saturated client")
	}

	assert.Equal(t, 1, hub.GetClientCount())
	assert.Len(t, fast.Send, 1)

	// The dropped client's channel must be closed so its WritePump exits.
	_, open := <-slow.Send // drain the buffered message
	assert.True(t, open)
	_, open = <-slow.Send
	assert.False(t, open)
}

func TestFanOutFiltersByBackpack(t *testing.T) {
	hub := NewWSHub(nil)

	mine := newTestClient("mine", "GKP-0001", 8)
	other := newTestClient("other", "GKP-0002", 8)
	all := newTestClient("all", "", 8)
	hub.clients[mine] = true
	hub.clients[other] = true
	hub.clients[all] = true

	hub.fanOut([]byte(`{"type":"alert","data":{"backpack_id":"GKP-0001"}}`))

	assert.Len(t, mine.Send, 1)
	assert.Len(t, other.Send, 0)
	assert.Len(t, all.Send, 1)
}

func TestRunServesClientsWithoutSubscriptions(t *testing.T) {
	hub := NewWSHub(nil)
	go hub.Run()

	client := newTestClient("c1", "", 8)
	hub.register <- client

	assert.Eventually(t, func() bool {
		return hub.GetClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	hub.unregister <- client
	assert.Eventually(t, func() bool {
		return hub.GetClientCount() == 0
	}, time.Second, 10*time.Millisecond)
}
