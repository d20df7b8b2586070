package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrUnknownType  = errors.New("unknown command type")
	ErrMissingField = errors.New("missing field")
	ErrMalformed    = errors.New("malformed field")
)

// Item is a raw queue entry: a JSON object with a "type" tag.
type Item []byte

type wireItem struct {
	Type      string            `json:"type"`
	TeamCode  string            `json:"teamcode,omitempty"`
	TeamCode2 string            `json:"teamCode,omitempty"`
	UIDs      []json.RawMessage `json:"uids,omitempty"`
	EmoteCode json.RawMessage   `json:"emote_code,omitempty"`
}

// JoinItem builds the queue entry for a join request.
func JoinItem(teamCode string) Item {
	data, _ := json.Marshal(map[string]interface{}{
		"type":     KindJoin,
		"teamcode": teamCode,
	})
	return data
}

// EmoteItem builds the queue entry for a gesture request.
func EmoteItem(uids []string, emoteCode int) Item {
	if uids == nil {
		uids = []string{}
	}
	data, _ := json.Marshal(map[string]interface{}{
		"type":       KindEmote,
		"uids":       uids,
		"emote_code": emoteCode,
	})
	return data
}

// Decode turns a raw item into a Command. It never fails: anything that
// is not a well-formed join or emote becomes Invalid.
func Decode(item Item) Command {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(item, &tag); err != nil {
		return Invalid{Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}

	var w wireItem
	if err := json.Unmarshal(item, &w); err != nil {
		return Invalid{Type: tag.Type, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}

	switch w.Type {
	case KindJoin:
		code := w.TeamCode
		if code == "" {
			code = w.TeamCode2
		}
		code = strings.TrimSpace(code)
		if code == "" {
			return Invalid{Type: w.Type, Err: fmt.Errorf("%w: teamcode", ErrMissingField)}
		}
		return Join{TeamCode: code}

	case KindEmote:
		if w.UIDs == nil {
			return Invalid{Type: w.Type, Err: fmt.Errorf("%w: uids", ErrMissingField)}
		}
		if len(w.EmoteCode) == 0 {
			return Invalid{Type: w.Type, Err: fmt.Errorf("%w: emote_code", ErrMissingField)}
		}
		code, err := parseEmoteCode(w.EmoteCode)
		if err != nil {
			return Invalid{Type: w.Type, Err: err}
		}
		ids := make([]string, 0, len(w.UIDs))
		for _, raw := range w.UIDs {
			ids = append(ids, rawID(raw))
		}
		return Gesture{TargetIDs: ids, GestureCode: code}

	default:
		return Invalid{Type: w.Type, Err: ErrUnknownType}
	}
}

// emote_code may arrive as a number or as a numeric string.
func parseEmoteCode(raw json.RawMessage) (int, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if v, err := strconv.Atoi(n.String()); err == nil {
			return v, nil
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: emote_code %s", ErrMalformed, string(raw))
}

// Identities are kept as text here; the gesture handler parses them and
// counts the ones that don't parse as failed targets.
func rawID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}
