package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 64 << 10
)

// Client is one ingress WebSocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{} // closed on unregister
	mu   sync.RWMutex

	challengeNonce string
	authenticated  bool
	name           string
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}
}

func (c *Client) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

func (c *Client) SetAuth(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
	c.authenticated = true
}

func (c *Client) nonce() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.challengeNonce
}

func (c *Client) SendJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("marshal error", "err", err)
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		slog.Warn("client send buffer full, dropping message", "client", c.Name())
	}
}

// ReadPump feeds text frames to the hub until the socket fails or the peer
// goes quiet for longer than pongWait. Binary frames are not part of the
// ingress protocol and are skipped.
func (c *Client) ReadPump() {
	defer c.leave()

	c.conn.SetReadLimit(maxMsgSize)
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) }
	extend("")
	c.conn.SetPongHandler(extend)

	for {
		kind, data, err := c.conn.ReadMessage()
		switch {
		case err != nil:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Info("ingress client disconnected", "client", c.Name(), "err", err)
			}
			return
		case kind != websocket.TextMessage:
			slog.Debug("ingress frame ignored", "client", c.Name(), "kind", kind)
		default:
			c.hub.handleMessage(c, data)
		}
	}
}

// leave hands the client back to the hub, or just closes it once the hub
// is gone.
func (c *Client) leave() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.stopped:
	}
	c.conn.Close()
}

// WritePump is the only writer on the socket: queued replies and events,
// keepalive pings, and the close frame on unregister.
func (c *Client) WritePump() {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	defer c.conn.Close()

	for {
		var err error
		select {
		case data := <-c.send:
			err = c.write(websocket.TextMessage, data)
		case <-ping.C:
			err = c.write(websocket.PingMessage, nil)
		case <-c.done:
			c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "bridge closing"))
			return
		}
		if err != nil {
			slog.Debug("ingress write failed", "client", c.Name(), "err", err)
			return
		}
	}
}

func (c *Client) write(kind int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, data)
}
