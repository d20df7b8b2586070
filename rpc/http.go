package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/nicebartender/squad-bridge/command"
)

const maxBodySize = 64 << 10

// Register mounts the HTTP ingress on mux.
func (r *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /join", r.requireToken(r.httpJoin))
	mux.HandleFunc("POST /emote", r.requireToken(r.httpEmote))
	mux.HandleFunc("GET /status", r.requireToken(r.httpStatus))
	mux.HandleFunc("GET /commands", r.requireToken(r.httpCommands))
}

// requireToken checks "Authorization: Bearer <token>" when Token is set.
func (r *Router) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.Token != "" {
			given := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(given), []byte(r.Token)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
		}
		next(w, req)
	}
}

func (r *Router) httpJoin(w http.ResponseWriter, req *http.Request) {
	var p joinParams
	if err := decodeBody(w, req, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	item, code, err := joinItem(p)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	acc, err := r.enqueue(command.KindJoin, item, "http")
	if err != nil {
		writeEnqueueError(w, err)
		return
	}
	acc.TeamCode = code
	writeJSON(w, http.StatusAccepted, acc)
}

func (r *Router) httpEmote(w http.ResponseWriter, req *http.Request) {
	var p emoteParams
	if err := decodeBody(w, req, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	item, err := emoteItem(p)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	acc, err := r.enqueue(command.KindEmote, item, "http")
	if err != nil {
		writeEnqueueError(w, err)
		return
	}
	acc.Targets = len(p.UIDs)
	writeJSON(w, http.StatusAccepted, acc)
}

func (r *Router) httpStatus(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.status())
}

func (r *Router) httpCommands(w http.ResponseWriter, req *http.Request) {
	if r.DB == nil {
		writeError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	entries, err := r.DB.RecentCommands(req.URL.Query().Get("kind"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"commands": entries})
}

func decodeBody(w http.ResponseWriter, req *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodySize)).Decode(v)
}

func writeEnqueueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	case errors.Is(err, command.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
