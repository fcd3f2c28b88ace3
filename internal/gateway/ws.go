package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxInboundBytes = 8 * 1024
	sendBufferSize  = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Visitors connect from any storefront domain
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inbound is the client-to-server action envelope.
type inbound struct {
	Action         string `json:"action"` // "start", "send" or "resume"
	SessionID      string `json:"session_id"`
	VisitorName    string `json:"visitor_name,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content,omitempty"`
}

// wsClient is one websocket connection. It implements Subscriber; outbound
// events go through a buffered channel drained by the write pump so a slow
// reader never blocks a broadcast.
type wsClient struct {
	conn   *websocket.Conn
	send   chan Event
	done   chan struct{}
	gw     *Gateway
	logger zerolog.Logger

	// room is the conversation this connection is subscribed to, if any.
	// Only the read pump goroutine touches it.
	room uuid.UUID
}

// Send queues an event for delivery. Events to a closed connection or a
// full buffer are dropped; the connection is past saving at that point.
func (c *wsClient) Send(ev Event) {
	select {
	case <-c.done:
	case c.send <- ev:
	default:
	}
}

// ServeWS upgrades the request and runs the connection until it closes.
func ServeWS(gw *Gateway, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		client := &wsClient{
			conn:   conn,
			send:   make(chan Event, sendBufferSize),
			done:   make(chan struct{}),
			gw:     gw,
			logger: logger,
		}

		go client.writePump()
		client.readPump(r)
	}
}

// readPump handles inbound actions sequentially for this connection.
// Actions from different connections run concurrently.
func (c *wsClient) readPump(r *http.Request) {
	defer func() {
		if c.room != uuid.Nil {
			c.gw.Leave(c.room, c)
		}
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}

		var req inbound
		if err := json.Unmarshal(data, &req); err != nil {
			c.Send(Event{Type: EventError, Error: "invalid message"})
			continue
		}
		c.dispatch(r, req)
	}
}

// dispatch routes one inbound action. The request context cancels when the
// connection closes, which aborts any in-flight generation read.
func (c *wsClient) dispatch(r *http.Request, req inbound) {
	ctx := r.Context()

	switch req.Action {
	case "start":
		if req.SessionID == "" || req.Content == "" {
			c.Send(Event{Type: EventError, Error: "session_id and content are required"})
			return
		}
		c.switchRoom(uuid.Nil)
		if id, ok := c.gw.StartConversation(ctx, c, req.SessionID, req.VisitorName, req.Content); ok {
			c.room = id
		}

	case "send":
		id, err := uuid.Parse(req.ConversationID)
		if err != nil {
			c.Send(Event{Type: EventError, Error: "invalid conversation_id"})
			return
		}
		if req.SessionID == "" || req.Content == "" {
			c.Send(Event{Type: EventError, ConversationID: id, Error: "session_id and content are required"})
			return
		}
		c.gw.SendMessage(ctx, c, id, req.SessionID, req.Content)

	case "resume":
		id, err := uuid.Parse(req.ConversationID)
		if err != nil {
			c.Send(Event{Type: EventError, Error: "invalid conversation_id"})
			return
		}
		if req.SessionID == "" {
			c.Send(Event{Type: EventError, ConversationID: id, Error: "session_id is required"})
			return
		}
		c.switchRoom(id)
		if joined, ok := c.gw.ResumeConversation(ctx, c, id, req.SessionID); ok {
			c.room = joined
		}

	default:
		c.Send(Event{Type: EventError, Error: "unknown action"})
	}
}

// switchRoom leaves the current room when the connection is about to
// subscribe elsewhere. A connection belongs to at most one room.
func (c *wsClient) switchRoom(next uuid.UUID) {
	if c.room != uuid.Nil && c.room != next {
		c.gw.Leave(c.room, c)
		c.room = uuid.Nil
	}
}

// writePump serializes all writes to the connection and keeps it alive
// with pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case ev := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
