package gateway

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 1024
	maxWindowReq   = 100
)

// Client represents a single WebSocket peer.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// ID returns the client's unique id.
func (c *Client) ID() string { return c.id }

// trySend queues msg without blocking. Callers hold hub.mu (read or write),
// which guarantees send is still open.
func (c *Client) trySend(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// clientMsg is the union of messages a view may send.
type clientMsg struct {
	Type string `json:"type"`
	Ping int64  `json:"ping"`
	N    int    `json:"n"`
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Batch queued messages into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next)
			}

			if err := w.Close(); err != nil {
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

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("ws read failed", slog.String("client", c.id), slog.Any("error", err))
			}
			return
		}

		var msg clientMsg
		if json.Unmarshal(raw, &msg) != nil {
			c.reply(errorEnvelope("invalid message"), TypeError)
			continue
		}

		switch {
		case msg.Type == "WINDOW":
			n := msg.N
			if n <= 0 {
				n = c.hub.window
			}
			if n > maxWindowReq {
				n = maxWindowReq
			}
			c.reply(c.hub.windowEnvelope(TypeWindow, n, c.hub.Seq()), TypeWindow)
		case msg.Ping > 0:
			pong, _ := json.Marshal(map[string]interface{}{
				"type":      TypePong,
				"ping":      msg.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
			c.reply(pong, TypePong)
		default:
			c.reply(errorEnvelope("unknown message type"), TypeError)
		}
	}
}

// reply queues a direct response to this client. The hub lock is taken so
// the send channel cannot be closed concurrently.
func (c *Client) reply(msg []byte, typ string) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	if c.trySend(msg) {
		c.hub.countSent(typ)
	}
}

func errorEnvelope(msg string) []byte {
	b, _ := json.Marshal(map[string]string{"type": TypeError, "error": msg})
	return b
}
