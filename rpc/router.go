package rpc

import (
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/nicebartender/squad-bridge/command"
	"github.com/nicebartender/squad-bridge/db"
	"github.com/nicebartender/squad-bridge/dispatch"
	"github.com/nicebartender/squad-bridge/session"
	"github.com/nicebartender/squad-bridge/ws"
)

// Router is the ingress side of the bridge: it turns WebSocket and HTTP
// requests into queue items. It never touches the game connection.
type Router struct {
	Hub   *ws.Hub
	DB    *db.DB
	Queue *command.Queue
	State *session.State
	Stats func() dispatch.Stats

	// Token, when set, is required on HTTP requests as a bearer token.
	Token string
	// Limiter, when set, caps how fast join and emote commands are
	// admitted, across HTTP and WebSocket callers alike.
	Limiter *rate.Limiter
}

func NewRouter(hub *ws.Hub, database *db.DB, queue *command.Queue, state *session.State) *Router {
	r := &Router{Hub: hub, DB: database, Queue: queue, State: state}
	if hub != nil {
		hub.RPCRouter = r.Handle
	}
	return r
}

func (r *Router) Handle(client *ws.Client, req ws.RPCRequest) {
	slog.Debug("RPC", "method", req.Method, "client", client.Name())

	switch req.Method {
	case "bot.join":
		r.handleJoin(client, req)
	case "bot.emote":
		r.handleEmote(client, req)
	case "bot.status":
		client.SendJSON(ws.NewResponse(req.ID, r.status()))
	case "commands.recent":
		r.handleRecent(client, req)
	default:
		client.SendJSON(ws.NewErrorResponse(req.ID, ws.CodeUnknownMethod, "Unknown method: "+req.Method))
	}
}
