package main

import (
	"context"
	"encoding/json"
	"html"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/mirrormatch/mirrormatch/internal/middleware"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	// bound on a single store append so one slow write cannot stall the
	// connection's read loop forever
	appendTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The HTTP layer has already authenticated the request; origin policy is
	// the deployment proxy's concern.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn is one live websocket connection bridged into the room hub.
type wsConn struct {
	id     int64
	userID bson.ObjectID
	conn   *websocket.Conn
	hub    *RoomHub
	rooms  ChatStore

	send chan Frame
	done chan struct{}
}

// SendFrame queues a frame for delivery to this connection. It never blocks:
// a connection that is gone or cannot drain its buffer reports an error so
// the hub can drop it.
func (c *wsConn) SendFrame(f Frame) error {
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	case c.send <- f:
		return nil
	default:
		return errSendBufferFull
	}
}

var errSendBufferFull = &websocket.CloseError{Code: websocket.ClosePolicyViolation, Text: "send buffer full"}

// ServeWS upgrades an authenticated HTTP request to a websocket connection
// and runs its pumps until disconnect.
func (s *Server) ServeWS(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing auth claims"})
		return
	}
	userID, err := claims.UserObjectID()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "malformed user id in token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written its own error response
		log.Printf("websocket upgrade failed for %s: %v", claims.Email, err)
		return
	}

	wc := &wsConn{
		id:     s.hub.Register(),
		userID: userID,
		conn:   conn,
		hub:    s.hub,
		rooms:  s.rooms,
		send:   make(chan Frame, 256),
		done:   make(chan struct{}),
	}

	go wc.writePump()
	go wc.readPump()
}

// readPump consumes inbound frames until the connection drops. Leaving rooms
// happens only here, via disconnect.
func (c *wsConn) readPump() {
	defer func() {
		c.hub.Unregister(c.id)
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("websocket read error for %s: %v", c.userID.Hex(), err)
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			_ = c.SendFrame(Frame{Event: EventError, Error: "malformed frame"})
			continue
		}

		switch f.Event {
		case EventJoinRoom:
			if f.RoomID == "" {
				_ = c.SendFrame(Frame{Event: EventError, Error: "join_room requires room_id"})
				continue
			}
			// idempotent; no reply on success
			c.hub.Join(f.RoomID, c.id, c)

		case EventSendMessage:
			c.handleSend(f)

		default:
			_ = c.SendFrame(Frame{Event: EventError, Error: "unknown event: " + f.Event})
		}
	}
}

// handleSend persists the message and, only after the append has succeeded,
// fans it out to the room. On a failed append nobody else ever sees the
// message; the sender alone gets an error frame. Best-effort by design, no
// retry here.
func (c *wsConn) handleSend(f Frame) {
	if f.RoomID == "" || f.Body == "" {
		_ = c.SendFrame(Frame{Event: EventError, RoomID: f.RoomID, Error: "send_message requires room_id and body"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()

	// sender identity always comes from the authenticated connection, never
	// from the frame; the body is escaped before it ever hits storage
	saved, err := c.rooms.Append(ctx, f.RoomID, c.userID, html.EscapeString(f.Body))
	if err != nil {
		log.Printf("message append failed for room %s: %v", f.RoomID, err)
		_ = c.SendFrame(Frame{Event: EventError, RoomID: f.RoomID, Error: "failed to persist message"})
		return
	}

	// Broadcast order equals persisted order because this call happens
	// synchronously after the append returns.
	out := Frame{
		Event:     EventMessage,
		RoomID:    f.RoomID,
		SenderID:  saved.SenderID.Hex(),
		Body:      saved.Body,
		Timestamp: saved.SentAt,
	}
	if err := c.hub.Broadcast(f.RoomID, out); err != nil {
		log.Printf("broadcast to room %s incomplete: %v", f.RoomID, err)
	}
}

// writePump serializes outbound frames and keeps the connection alive with
// pings. It is the only goroutine that writes to the socket.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
