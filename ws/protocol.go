package ws

import "encoding/json"

// Frame types on the ingress socket.
const (
	TypeRequest  = "req"
	TypeResponse = "res"
	TypeEvent    = "event"
)

// Events pushed to ingress clients.
const (
	EventChallenge     = "connect.challenge"
	EventTick          = "tick"
	EventCommandQueued = "command.queued"
)

// Error codes carried in RPCError.Code.
const (
	CodeAuthRequired  = "AUTH_REQUIRED"
	CodeAuthFailed    = "AUTH_FAILED"
	CodeInvalidParams = "INVALID_PARAMS"
	CodeQueueFull     = "QUEUE_FULL"
	CodeRateLimited   = "RATE_LIMITED"
	CodeAlreadyAuthed = "ALREADY_CONNECTED"
	CodeUnknownMethod = "UNKNOWN_METHOD"
	CodeUnavailable   = "UNAVAILABLE"
	CodeDBError       = "DB_ERROR"
)

// RPCMessage is the type-peek for incoming frames.
type RPCMessage struct {
	Type   string          `json:"type"`
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

// RPCRequest is an authenticated request with its params split by key.
type RPCRequest struct {
	ID     string
	Method string
	Params map[string]json.RawMessage
}

type RPCResponse struct {
	Type    string      `json:"type"`
	ID      string      `json:"id"`
	OK      bool        `json:"ok"`
	Payload interface{} `json:"payload,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RPCEvent struct {
	Type    string      `json:"type"`
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

func NewResponse(id string, payload interface{}) RPCResponse {
	return RPCResponse{Type: TypeResponse, ID: id, OK: true, Payload: payload}
}

func NewErrorResponse(id, code, message string) RPCResponse {
	return RPCResponse{Type: TypeResponse, ID: id, Error: &RPCError{Code: code, Message: message}}
}

func NewEvent(event string, payload interface{}) RPCEvent {
	return RPCEvent{Type: TypeEvent, Event: event, Payload: payload}
}

// parseRequest splits params into a key map; absent or null params give an
// empty map.
func parseRequest(msg RPCMessage) RPCRequest {
	var params map[string]json.RawMessage
	if len(msg.Params) > 0 {
		json.Unmarshal(msg.Params, &params)
	}
	if params == nil {
		params = make(map[string]json.RawMessage)
	}
	return RPCRequest{ID: msg.ID, Method: msg.Method, Params: params}
}
