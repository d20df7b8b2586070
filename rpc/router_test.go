package rpc

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicebartender/squad-bridge/command"
	"github.com/nicebartender/squad-bridge/session"
	"github.com/nicebartender/squad-bridge/ws"
)

type wireMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	OK      bool            `json:"ok"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Error   *ws.RPCError    `json:"error"`
}

// dialRouter connects an authenticated WebSocket client to a hub routed
// through r.
func dialRouter(t *testing.T, r *Router) *websocket.Conn {
	t.Helper()
	hub := ws.NewHub("")
	r.Hub = hub
	hub.RPCRouter = r.Handle
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var challenge wireMessage
	require.NoError(t, conn.ReadJSON(&challenge))
	var payload map[string]string
	require.NoError(t, json.Unmarshal(challenge.Payload, &payload))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":   "req",
		"id":     "c1",
		"method": "connect",
		"params": map[string]interface{}{"nonce": payload["nonce"], "client": map[string]string{"id": "panel"}},
	}))
	var res wireMessage
	require.NoError(t, conn.ReadJSON(&res))
	require.True(t, res.OK)
	return conn
}

// call sends a request and returns its response, skipping events.
func call(t *testing.T, conn *websocket.Conn, id, method string, params interface{}) wireMessage {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": "req", "id": id, "method": method, "params": params,
	}))
	for {
		var msg wireMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "res" && msg.ID == id {
			return msg
		}
	}
}

func TestRouterJoinAndEmote(t *testing.T) {
	r := NewRouter(nil, nil, command.NewQueue(4), session.NewState())
	conn := dialRouter(t, r)

	res := call(t, conn, "r1", "bot.join", map[string]string{"teamcode": "4455"})
	require.True(t, res.OK, "%+v", res.Error)
	res = call(t, conn, "r2", "bot.emote", map[string]interface{}{"uids": []string{"1", "2"}, "emote_code": 3})
	require.True(t, res.OK, "%+v", res.Error)

	assert.Equal(t, command.Join{TeamCode: "4455"}, next(t, r.Queue))
	assert.Equal(t, command.Gesture{TargetIDs: []string{"1", "2"}, GestureCode: 3}, next(t, r.Queue))
}

func TestRouterErrors(t *testing.T) {
	r := NewRouter(nil, nil, command.NewQueue(4), session.NewState())
	conn := dialRouter(t, r)

	res := call(t, conn, "r1", "bot.join", map[string]string{})
	assert.Equal(t, "INVALID_PARAMS", res.Error.Code)

	res = call(t, conn, "r2", "bot.emote", map[string]interface{}{"uids": "1"})
	assert.Equal(t, "INVALID_PARAMS", res.Error.Code)

	res = call(t, conn, "r3", "commands.recent", nil)
	assert.Equal(t, "UNAVAILABLE", res.Error.Code)

	res = call(t, conn, "r4", "bot.dance", nil)
	assert.Equal(t, "UNKNOWN_METHOD", res.Error.Code)

	res = call(t, conn, "r5", "bot.status", nil)
	require.True(t, res.OK)
	var st Status
	require.NoError(t, json.Unmarshal(res.Payload, &st))
	assert.Equal(t, 1, st.Clients)
}
