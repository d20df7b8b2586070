package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nicebartender/squad-bridge/command"
	"github.com/nicebartender/squad-bridge/ws"
)

var (
	ErrMissingTeamCode = errors.New("teamcode is required")
	ErrMissingUIDs     = errors.New("uids is required")
	ErrRateLimited     = errors.New("too many commands, slow down")
)

type joinParams struct {
	TeamCode  string `json:"teamcode"`
	TeamCode2 string `json:"teamCode"`
}

type emoteParams struct {
	UIDs      []string `json:"uids"`
	EmoteCode int      `json:"emote_code"`
}

// Accepted is what a caller gets back for a queued command.
type Accepted struct {
	ID       string `json:"id,omitempty"`
	Kind     string `json:"kind"`
	Queued   int    `json:"queued"`
	Journal  bool   `json:"journaled"`
	TeamCode string `json:"teamcode,omitempty"`
	Targets  int    `json:"targets,omitempty"`
}

func joinItem(p joinParams) (command.Item, string, error) {
	code := p.TeamCode
	if code == "" {
		code = p.TeamCode2
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, "", ErrMissingTeamCode
	}
	return command.JoinItem(code), code, nil
}

func emoteItem(p emoteParams) (command.Item, error) {
	if p.UIDs == nil {
		return nil, ErrMissingUIDs
	}
	return command.EmoteItem(p.UIDs, p.EmoteCode), nil
}

// enqueue pushes the item onto the queue and journals it once it is
// accepted. A journal failure is logged and does not stop the command.
func (r *Router) enqueue(kind string, item command.Item, source string) (Accepted, error) {
	if r.Limiter != nil && !r.Limiter.Allow() {
		return Accepted{}, fmt.Errorf("enqueue %s: %w", kind, ErrRateLimited)
	}
	if err := r.Queue.Push(item); err != nil {
		return Accepted{}, fmt.Errorf("enqueue %s: %w", kind, err)
	}
	acc := Accepted{Kind: kind, Queued: r.Queue.Len()}

	if r.DB != nil {
		entry, err := r.DB.InsertCommand(kind, item, source)
		if err != nil {
			slog.Error("journal insert failed", "kind", kind, "err", err)
		} else {
			acc.ID = entry.ID
			acc.Journal = true
		}
	}

	if r.Hub != nil {
		r.Hub.Broadcast(ws.NewEvent(ws.EventCommandQueued, acc))
	}
	slog.Info("command queued", "kind", kind, "source", source, "id", acc.ID)
	return acc, nil
}

func (r *Router) handleJoin(client *ws.Client, req ws.RPCRequest) {
	item, code, err := joinItem(joinParams{
		TeamCode:  jsonString(req.Params["teamcode"]),
		TeamCode2: jsonString(req.Params["teamCode"]),
	})
	if err != nil {
		client.SendJSON(ws.NewErrorResponse(req.ID, ws.CodeInvalidParams, err.Error()))
		return
	}

	acc, err := r.enqueue(command.KindJoin, item, "ws:"+client.Name())
	if err != nil {
		client.SendJSON(ws.NewErrorResponse(req.ID, enqueueErrorCode(err), err.Error()))
		return
	}
	acc.TeamCode = code
	client.SendJSON(ws.NewResponse(req.ID, acc))
}

func (r *Router) handleEmote(client *ws.Client, req ws.RPCRequest) {
	var p emoteParams
	if raw := req.Params["uids"]; raw != nil {
		if err := json.Unmarshal(raw, &p.UIDs); err != nil {
			client.SendJSON(ws.NewErrorResponse(req.ID, ws.CodeInvalidParams, "uids must be a list of strings"))
			return
		}
	}
	p.EmoteCode = jsonInt(req.Params["emote_code"])

	item, err := emoteItem(p)
	if err != nil {
		client.SendJSON(ws.NewErrorResponse(req.ID, ws.CodeInvalidParams, err.Error()))
		return
	}

	acc, err := r.enqueue(command.KindEmote, item, "ws:"+client.Name())
	if err != nil {
		client.SendJSON(ws.NewErrorResponse(req.ID, enqueueErrorCode(err), err.Error()))
		return
	}
	acc.Targets = len(p.UIDs)
	client.SendJSON(ws.NewResponse(req.ID, acc))
}

func (r *Router) handleRecent(client *ws.Client, req ws.RPCRequest) {
	if r.DB == nil {
		client.SendJSON(ws.NewErrorResponse(req.ID, ws.CodeUnavailable, "journal disabled"))
		return
	}
	entries, err := r.DB.RecentCommands(jsonString(req.Params["kind"]), jsonInt(req.Params["limit"]))
	if err != nil {
		client.SendJSON(ws.NewErrorResponse(req.ID, ws.CodeDBError, err.Error()))
		return
	}
	client.SendJSON(ws.NewResponse(req.ID, map[string]interface{}{
		"commands": entries,
	}))
}

func enqueueErrorCode(err error) string {
	if errors.Is(err, ErrRateLimited) {
		return ws.CodeRateLimited
	}
	return ws.CodeQueueFull
}

func jsonString(raw json.RawMessage) string {
	var s string
	if raw != nil {
		json.Unmarshal(raw, &s)
	}
	return s
}

func jsonInt(raw json.RawMessage) int {
	var i int
	if raw != nil {
		json.Unmarshal(raw, &i)
	}
	return i
}
