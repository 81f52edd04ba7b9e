package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatmate/chatmate/internal/model"
)

const (
	// writeWait bounds a single frame write
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before the read
	// deadline fires; pings go out at pingPeriod to keep it alive.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// maxFrameSize bounds inbound frames, comfortably above the largest
	// accepted message body plus envelope overhead.
	maxFrameSize = 4096
	// sendQueueSize buffers outbound events per client
	sendQueueSize = 256
)

// EventHandler receives decoded client events. Implemented by the chat
// coordinator.
type EventHandler interface {
	Connect(conn model.ConnID)
	Join(ctx context.Context, conn model.ConnID, req model.JoinPayload)
	SendMessage(ctx context.Context, conn model.ConnID, body string)
	TypingStart(conn model.ConnID)
	TypingStop(conn model.ConnID)
	PrivateMessage(ctx context.Context, conn model.ConnID, req model.PrivateMessagePayload)
	GetOnlineUsers(conn model.ConnID)
	Disconnect(conn model.ConnID)
}

// Client is one live websocket connection. The read pump decodes and
// dispatches inbound events; the write pump drains the send queue and
// keeps the connection alive with pings.
type Client struct {
	id     model.ConnID
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger
}

// NewClient wraps an upgraded websocket connection
func NewClient(id model.ConnID, conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		logger: logger.With(slog.String("component", "client"), slog.String("conn", string(id))),
	}
}

// ID returns the connection identifier
func (c *Client) ID() model.ConnID {
	return c.id
}

// Outbound exposes the send queue read side. The write pump is its
// normal consumer; integration tests drain it directly.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

func (c *Client) closeConn() {
	_ = c.conn.Close()
}

// readPump reads frames until the connection drops, dispatching each
// decoded event to the handler. It owns connection teardown: on exit
// the coordinator sees the disconnect before the hub forgets the client.
func (c *Client) readPump(ctx context.Context, hub *Hub, handler EventHandler) {
	defer func() {
		handler.Disconnect(c.id)
		hub.Unregister(c.id)
		c.closeConn()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.logger.Warn("unexpected read error", slog.Any("error", err))
			}
			return
		}
		c.dispatch(ctx, raw, handler)
	}
}

// dispatch decodes one inbound envelope and routes it by event name
func (c *Client) dispatch(ctx context.Context, raw []byte, handler EventHandler) {
	var event model.ClientEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		c.logger.Warn("malformed event envelope", slog.Any("error", err))
		c.sendError("Invalid message format")
		return
	}

	switch event.Event {
	case model.EventJoin:
		var req model.JoinPayload
		if !c.decode(event.Data, &req) {
			return
		}
		handler.Join(ctx, c.id, req)

	case model.EventSendMessage:
		var req model.SendMessagePayload
		if !c.decode(event.Data, &req) {
			return
		}
		handler.SendMessage(ctx, c.id, req.Message)

	case model.EventTypingStart:
		handler.TypingStart(c.id)

	case model.EventTypingStop:
		handler.TypingStop(c.id)

	case model.EventPrivateMessage:
		var req model.PrivateMessagePayload
		if !c.decode(event.Data, &req) {
			return
		}
		handler.PrivateMessage(ctx, c.id, req)

	case model.EventGetOnlineUsers:
		handler.GetOnlineUsers(c.id)

	default:
		c.logger.Warn("unknown event", slog.String("event", string(event.Event)))
		c.sendError("Unknown event type")
	}
}

func (c *Client) decode(raw json.RawMessage, into any) bool {
	if len(raw) == 0 {
		return true
	}
	if err := json.Unmarshal(raw, into); err != nil {
		c.logger.Warn("malformed event payload", slog.Any("error", err))
		c.sendError("Invalid message format")
		return false
	}
	return true
}

// sendError enqueues an error event directly, bypassing the hub; used
// for wire-level decode failures before an event reaches the coordinator.
func (c *Client) sendError(message string) {
	payload, err := json.Marshal(model.ServerEvent{
		Event: model.EventError,
		Data:  model.ErrorPayload{Message: message},
	})
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

// writePump drains the send queue. It exits when the queue is closed by
// the hub or a write fails, closing the connection either way.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConn()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
