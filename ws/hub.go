package ws

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub tracks ingress WebSocket clients and routes their requests.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}
	mu         sync.RWMutex

	// Token, when set, must be presented in the connect request.
	Token        string
	TickInterval time.Duration
	RPCRouter    func(client *Client, req RPCRequest)
}

func NewHub(token string) *Hub {
	return &Hub{
		clients:      make(map[*Client]bool),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		stopped:      make(chan struct{}),
		Token:        token,
		TickInterval: 10 * time.Second,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case client := <-h.register:
			nonce := generateNonce()
			client.mu.Lock()
			client.challengeNonce = nonce
			client.mu.Unlock()

			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

			client.SendJSON(NewEvent(EventChallenge, map[string]string{
				"nonce": nonce,
			}))
			slog.Debug("ingress client connected, challenge sent")

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			delete(h.clients, client)
			h.mu.Unlock()
			if ok {
				close(client.done)
				slog.Debug("ingress client unregistered", "client", client.Name())
			}

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.done)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Register hands a new connection to the hub. It reports false when the
// hub has already stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends event to every authenticated client.
func (h *Hub) Broadcast(event RPCEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.IsAuthenticated() {
			client.SendJSON(event)
		}
	}
}

func (h *Hub) handleMessage(client *Client, data []byte) {
	var msg RPCMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("invalid ingress message", "err", err)
		return
	}

	switch msg.Type {
	case TypeRequest:
		// Handle connect specially (before auth check)
		if msg.Method == "connect" {
			h.handleConnect(client, msg)
			return
		}

		if !client.IsAuthenticated() {
			client.SendJSON(NewErrorResponse(msg.ID, CodeAuthRequired, "Not authenticated"))
			return
		}

		if h.RPCRouter != nil {
			h.RPCRouter(client, parseRequest(msg))
		}

	default:
		slog.Warn("unknown ingress message type", "type", msg.Type)
	}
}

func (h *Hub) handleConnect(client *Client, msg RPCMessage) {
	if client.IsAuthenticated() {
		client.SendJSON(NewErrorResponse(msg.ID, CodeAlreadyAuthed, "Already connected"))
		return
	}

	name, err := VerifyConnect(msg.Params, client.nonce(), h.Token)
	if err != nil {
		slog.Warn("ingress auth failed", "err", err)
		client.SendJSON(NewErrorResponse(msg.ID, CodeAuthFailed, err.Error()))
		return
	}

	client.SetAuth(name)
	client.SendJSON(NewResponse(msg.ID, map[string]interface{}{
		"policy": map[string]interface{}{
			"tickIntervalMs": h.TickInterval.Milliseconds(),
		},
	}))
	slog.Info("ingress client authenticated", "client", name)

	go h.tickLoop(client)
}

func (h *Hub) tickLoop(client *Client) {
	ticker := time.NewTicker(h.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-client.done:
			return
		case <-ticker.C:
			client.SendJSON(NewEvent(EventTick, nil))
		}
	}
}

func generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("upgrade failed", "err", err)
		return
	}
	client := NewClient(h, conn)
	if !h.Register(client) {
		conn.Close()
		return
	}
	go client.WritePump()
	go client.ReadPump()
}
