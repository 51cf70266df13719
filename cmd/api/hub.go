package main

import (
	"fmt"
	"sync"
	"time"
)

// Event names carried in websocket frames.
const (
	EventJoinRoom    = "join_room"
	EventSendMessage = "send_message"
	EventMessage     = "message"
	EventError       = "error"
)

// Frame is one websocket event payload, in both directions.
type Frame struct {
	Event     string    `json:"event"`
	RoomID    string    `json:"room_id,omitempty"`
	SenderID  string    `json:"sender_id,omitempty"`
	Body      string    `json:"body,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	Error     string    `json:"error,omitempty"`
}

// FrameSender defines the minimal interface the hub needs from a connection:
// the ability to push frames to the connected client.
type FrameSender interface {
	SendFrame(Frame) error
}

// RoomHub tracks which live connections have joined which rooms so a message
// persisted for a room can be fanned out to its current members. It is an
// explicit service object whose lifetime matches the server process; all
// membership mutation is serialized through its lock.
type RoomHub struct {
	mu sync.RWMutex
	// rooms maps room id -> connection id -> sender
	rooms map[string]map[int64]FrameSender
	// joined maps connection id -> the set of rooms it has joined, so
	// disconnect can clean up every membership in one call
	joined map[int64]map[string]bool
	nextID int64
}

// NewRoomHub creates a new hub instance.
func NewRoomHub() *RoomHub {
	return &RoomHub{
		rooms:  make(map[string]map[int64]FrameSender),
		joined: make(map[int64]map[string]bool),
	}
}

// Register allocates a connection id for a new live connection. The id is
// used for joins and must be passed to Unregister when the connection closes.
func (h *RoomHub) Register() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	h.joined[h.nextID] = make(map[string]bool)
	return h.nextID
}

// Join adds the connection to a room's membership set. Joining the same room
// twice is a no-op; there is no leave short of disconnecting.
func (h *RoomHub) Join(roomID string, connID int64, s FrameSender) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.joined[connID]; !ok {
		// connection already unregistered; late join from a dying socket
		return
	}

	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[int64]FrameSender)
	}
	h.rooms[roomID][connID] = s
	h.joined[connID][roomID] = true
}

// Unregister removes the connection from every room it joined.
func (h *RoomHub) Unregister(connID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for roomID := range h.joined[connID] {
		h.dropLocked(roomID, connID)
	}
	delete(h.joined, connID)
}

// dropLocked removes one membership; caller holds the write lock.
func (h *RoomHub) dropLocked(roomID string, connID int64) {
	if members, ok := h.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Broadcast delivers the frame to every connection currently joined to the
// room, including the sender's own connection. Delivery is best-effort: a
// connection that fails to accept the frame is dropped from the room so it
// cannot wedge future broadcasts, and the first error is returned.
func (h *RoomHub) Broadcast(roomID string, f Frame) error {
	h.mu.RLock()
	members := h.rooms[roomID]
	// copy under the read lock; senders may block or mutate the hub
	targets := make(map[int64]FrameSender, len(members))
	for id, s := range members {
		targets[id] = s
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return fmt.Errorf("no connections joined to room %s", roomID)
	}

	var firstErr error
	var failed []int64
	for id, s := range targets {
		if err := s.SendFrame(f); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			failed = append(failed, id)
		}
	}

	if len(failed) > 0 {
		h.mu.Lock()
		for _, id := range failed {
			h.dropLocked(roomID, id)
			if rooms, ok := h.joined[id]; ok {
				delete(rooms, roomID)
			}
		}
		h.mu.Unlock()
	}

	return firstErr
}
