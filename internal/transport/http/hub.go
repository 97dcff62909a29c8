package http

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan envelope
}

// Hub tracks live websocket connections and their room membership, and
// implements app.Broadcaster. Rooms are keyed by session PIN; the orchestrator
// decides what to emit, the hub only routes.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*client
	rooms map[string]map[string]*client
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]*client),
		rooms: make(map[string]map[string]*client),
	}
}

// Publish fans an event out to every connection in a room.
func (h *Hub) Publish(room, event string, payload any) {
	msg := envelope{Type: event, Payload: payload}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[room] {
		h.deliver(c, msg)
	}
}

// Send delivers an event to a single connection. The read lock is held across
// the delivery: unregister closes the send channel under the write lock, so
// this keeps delivery and close from interleaving.
func (h *Hub) Send(connID, event string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[connID]
	if !ok {
		return
	}
	h.deliver(c, envelope{Type: event, Payload: payload})
}

// JoinRoom adds a connection to a room. Membership lasts until the connection
// goes away; there is no explicit leave.
func (h *Hub) JoinRoom(room, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[connID]
	if !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*client)
		h.rooms[room] = members
	}
	members[connID] = c
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.id] = c
}

func (h *Hub) unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[connID]
	if !ok {
		return
	}
	delete(h.conns, connID)
	for room, members := range h.rooms {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	close(c.send)
}

func (h *Hub) deliver(c *client, msg envelope) {
	select {
	case c.send <- msg:
	default:
		log.Printf("ws %s: send buffer full, dropping %s", c.id, msg.Type)
	}
}
