// Package stream pushes engine snapshots to read-only websocket observers.
package stream

import (
	"encoding/json"
	"log"
	"sync"

	"focus-walker/internal/engine"
)

const sendBuffer = 64

// Hub fans snapshots out to every connected client. Slow clients miss
// frames instead of blocking the engine.
type Hub struct {
	clients map[*Client]struct{}
	last    []byte
	mu      sync.RWMutex
}

type Client struct {
	Send chan []byte
}

func NewHub() *Hub {
	return &Hub{
		clients: map[*Client]struct{}{},
	}
}

// Register adds a client and queues the latest snapshot for it
func (h *Hub) Register() *Client {
	client := &Client{
		Send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
	if h.last != nil {
		client.Send <- h.last
	}
	log.Printf("[STREAM] Client connected: total=%d", len(h.clients))
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)
	log.Printf("[STREAM] Client disconnected: total=%d", len(h.clients))
}

// Broadcast queues payload for every client, dropping it for clients whose
// buffer is full
func (h *Hub) Broadcast(payload []byte) {
	h.mu.Lock()
	h.last = payload
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

// Publish encodes and broadcasts one engine snapshot
func (h *Hub) Publish(snap engine.Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Printf("[ERROR] Failed to encode snapshot: event=%s err=%v", snap.Event, err)
		return
	}
	h.Broadcast(payload)
}

// Attach subscribes the hub to e and returns the unsubscribe func
func (h *Hub) Attach(e *engine.Engine) func() {
	h.Publish(e.Snapshot())
	return e.Subscribe(h.Publish)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
