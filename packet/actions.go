package packet

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Action numbers carried in field 1 of outbound payloads.
const (
	actionJoinSquad = 4
	actionEmote     = 21
)

var (
	ErrEmptyTeamCode = errors.New("packet: empty team code")
	ErrEmptyRegion   = errors.New("packet: empty region")
	ErrBadIdentity   = errors.New("packet: identity must be positive")
)

// Codec builds outbound frames. It holds no state.
type Codec struct{}

// BuildJoinFrame encodes a request to join the squad with the given code.
//
//	1: action (varint)
//	2: { 1: team code (string) }
func (Codec) BuildJoinFrame(teamCode string, key, iv []byte) ([]byte, error) {
	if teamCode == "" {
		return nil, ErrEmptyTeamCode
	}
	var body []byte
	body = protowire.AppendTag(body, 1, protowire.BytesType)
	body = protowire.AppendString(body, teamCode)

	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, actionJoinSquad)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, body)
	return Seal(TypeJoinSquad, b, key, iv)
}

// BuildGestureFrame encodes an emote aimed at one player.
//
//	1: action (varint)
//	2: { 1: target (varint), 2: emote (varint), 3: region (string) }
func (Codec) BuildGestureFrame(identity int64, gestureCode int, key, iv []byte, region string) ([]byte, error) {
	if identity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadIdentity, identity)
	}
	if region == "" {
		return nil, ErrEmptyRegion
	}
	var body []byte
	body = protowire.AppendTag(body, 1, protowire.VarintType)
	body = protowire.AppendVarint(body, uint64(identity))
	body = protowire.AppendTag(body, 2, protowire.VarintType)
	body = protowire.AppendVarint(body, uint64(int64(gestureCode)))
	body = protowire.AppendTag(body, 3, protowire.BytesType)
	body = protowire.AppendString(body, region)

	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, actionEmote)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, body)
	return Seal(TypeEmote, b, key, iv)
}

// Roster is the squad state pushed by the server.
type Roster struct {
	Active  bool
	Members []uint64
}

// EncodeRoster is the inverse of DecodeRoster.
//
//	1: active (varint bool)
//	2: member (varint, repeated)
func EncodeRoster(r Roster) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(r.Active))
	for _, m := range r.Members {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, m)
	}
	return b
}

// DecodeRoster parses a squad roster payload. Unknown fields are skipped.
func DecodeRoster(payload []byte) (Roster, error) {
	var r Roster
	for len(payload) > 0 {
		num, typ, n := protowire.ConsumeTag(payload)
		if n < 0 {
			return Roster{}, fmt.Errorf("roster tag: %w", protowire.ParseError(n))
		}
		payload = payload[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(payload)
			if n < 0 {
				return Roster{}, fmt.Errorf("roster active: %w", protowire.ParseError(n))
			}
			r.Active = protowire.DecodeBool(v)
			payload = payload[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(payload)
			if n < 0 {
				return Roster{}, fmt.Errorf("roster member: %w", protowire.ParseError(n))
			}
			r.Members = append(r.Members, v)
			payload = payload[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, payload)
			if n < 0 {
				return Roster{}, fmt.Errorf("roster field %d: %w", num, protowire.ParseError(n))
			}
			payload = payload[n:]
		}
	}
	return r, nil
}
