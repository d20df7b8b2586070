package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/nicebartender/squad-bridge/command"
	"github.com/nicebartender/squad-bridge/db"
	"github.com/nicebartender/squad-bridge/dispatch"
	"github.com/nicebartender/squad-bridge/session"
)

func newTestRouter(t *testing.T, queueSize int) (*Router, *http.ServeMux) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "bridge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	r := NewRouter(nil, database, command.NewQueue(queueSize), session.NewState())
	mux := http.NewServeMux()
	r.Register(mux)
	return r, mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func next(t *testing.T, q *command.Queue) command.Command {
	t.Helper()
	item, ok := q.Next(context.Background(), time.Second)
	require.True(t, ok)
	return command.Decode(item)
}

func TestHTTPJoinQueuesCommand(t *testing.T) {
	r, mux := newTestRouter(t, 4)

	rec := do(mux, http.MethodPost, "/join", `{"teamcode":" abc-123 "}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var acc Accepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acc))
	assert.Equal(t, "join", acc.Kind)
	assert.Equal(t, "abc-123", acc.TeamCode)
	assert.True(t, acc.Journal)

	assert.Equal(t, command.Join{TeamCode: "abc-123"}, next(t, r.Queue))
}

func TestHTTPJoinRequiresTeamCode(t *testing.T) {
	r, mux := newTestRouter(t, 4)

	rec := do(mux, http.MethodPost, "/join", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "teamcode is required")

	rec = do(mux, http.MethodPost, "/join", `nope`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, r.Queue.Len())
}

func TestHTTPEmoteQueuesCommand(t *testing.T) {
	r, mux := newTestRouter(t, 4)

	rec := do(mux, http.MethodPost, "/emote", `{"uids":["1","2"],"emote_code":909000063}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	assert.Equal(t, command.Gesture{TargetIDs: []string{"1", "2"}, GestureCode: 909000063}, next(t, r.Queue))
}

func TestHTTPEmoteRequiresUIDs(t *testing.T) {
	_, mux := newTestRouter(t, 4)

	rec := do(mux, http.MethodPost, "/emote", `{"emote_code":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPQueueFull(t *testing.T) {
	r, mux := newTestRouter(t, 1)

	require.Equal(t, http.StatusAccepted, do(mux, http.MethodPost, "/join", `{"teamcode":"A"}`).Code)
	rec := do(mux, http.MethodPost, "/join", `{"teamcode":"B"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 1, r.Queue.Len())

	// Only the command that made it onto the queue is journaled.
	entries, err := r.DB.RecentCommands("", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.JSONEq(t, `{"type":"join","teamcode":"A"}`, string(entries[0].Payload))
}

func TestHTTPRateLimited(t *testing.T) {
	r, mux := newTestRouter(t, 4)
	r.Limiter = rate.NewLimiter(rate.Every(time.Hour), 1)

	require.Equal(t, http.StatusAccepted, do(mux, http.MethodPost, "/join", `{"teamcode":"A"}`).Code)
	rec := do(mux, http.MethodPost, "/emote", `{"uids":["1"],"emote_code":2}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 1, r.Queue.Len())

	entries, err := r.DB.RecentCommands("", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestHTTPCommandsAndStatus(t *testing.T) {
	r, mux := newTestRouter(t, 4)
	r.Stats = func() dispatch.Stats { return dispatch.Stats{Handled: 3} }
	r.State.SetRegion("IND")

	do(mux, http.MethodPost, "/join", `{"teamcode":"A"}`)
	do(mux, http.MethodPost, "/emote", `{"uids":["9"],"emote_code":2}`)

	rec := do(mux, http.MethodGet, "/commands?kind=emote", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Commands []db.CommandEntry `json:"commands"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Commands, 1)
	assert.Equal(t, "emote", list.Commands[0].Kind)
	assert.Equal(t, "http", list.Commands[0].Source)

	rec = do(mux, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.False(t, st.Connected)
	assert.Equal(t, "IND", st.Region)
	assert.Equal(t, 2, st.Queued)
	require.NotNil(t, st.Dispatch)
	assert.Equal(t, int64(3), st.Dispatch.Handled)
}

func TestHTTPRequiresToken(t *testing.T) {
	r, mux := newTestRouter(t, 4)
	r.Token = "s3cret"

	rec := do(mux, http.MethodPost, "/join", `{"teamcode":"A"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/join", strings.NewReader(`{"teamcode":"A"}`))
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, r.Queue.Len())
}
