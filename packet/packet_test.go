package packet

import (
	"crypto/aes"
	"crypto/cipher"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

var (
	testKey = []byte("0123456789abcdef")
	testIV  = []byte("fedcba9876543210")
)

// fields flattens one level of a protobuf message into number -> raw values.
func fields(t *testing.T, b []byte) map[protowire.Number][]interface{} {
	t.Helper()
	out := make(map[protowire.Number][]interface{})
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		require.GreaterOrEqual(t, n, 0)
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			require.GreaterOrEqual(t, n, 0)
			out[num] = append(out[num], v)
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			require.GreaterOrEqual(t, n, 0)
			out[num] = append(out[num], v)
			b = b[n:]
		default:
			t.Fatalf("unexpected wire type %v", typ)
		}
	}
	return out
}

func TestBuildJoinFrame(t *testing.T) {
	frame, err := Codec{}.BuildJoinFrame("ABC123", testKey, testIV)
	require.NoError(t, err)

	f, err := ParseFrame(frame, testKey, testIV)
	require.NoError(t, err)
	assert.Equal(t, TypeJoinSquad, f.Type)

	top := fields(t, f.Payload)
	assert.Equal(t, uint64(actionJoinSquad), top[1][0])
	body := fields(t, top[2][0].([]byte))
	assert.Equal(t, []byte("ABC123"), body[1][0])
}

func TestBuildGestureFrame(t *testing.T) {
	frame, err := Codec{}.BuildGestureFrame(123456789, 909000063, testKey, testIV, "IND")
	require.NoError(t, err)

	f, err := ParseFrame(frame, testKey, testIV)
	require.NoError(t, err)
	assert.Equal(t, TypeEmote, f.Type)

	top := fields(t, f.Payload)
	assert.Equal(t, uint64(actionEmote), top[1][0])
	body := fields(t, top[2][0].([]byte))
	assert.Equal(t, uint64(123456789), body[1][0])
	assert.Equal(t, uint64(909000063), body[2][0])
	assert.Equal(t, []byte("IND"), body[3][0])
}

func TestBuildFrameErrors(t *testing.T) {
	c := Codec{}

	_, err := c.BuildJoinFrame("", testKey, testIV)
	assert.ErrorIs(t, err, ErrEmptyTeamCode)

	_, err = c.BuildJoinFrame("A", []byte("short"), testIV)
	assert.ErrorIs(t, err, ErrKeySize)

	_, err = c.BuildJoinFrame("A", testKey, []byte("short"))
	assert.ErrorIs(t, err, ErrKeySize)

	_, err = c.BuildGestureFrame(0, 1, testKey, testIV, "IND")
	assert.ErrorIs(t, err, ErrBadIdentity)

	_, err = c.BuildGestureFrame(1, 1, testKey, testIV, "")
	assert.ErrorIs(t, err, ErrEmptyRegion)
}

func TestParseFrameErrors(t *testing.T) {
	frame, err := Seal(TypeSquadRoster, []byte("hello"), testKey, testIV)
	require.NoError(t, err)

	_, err = ParseFrame(frame[:4], testKey, testIV)
	assert.ErrorIs(t, err, ErrShortFrame)

	_, err = ParseFrame(frame[:len(frame)-1], testKey, testIV)
	assert.ErrorIs(t, err, ErrFrameLength)

	_, err = ParseFrame(frame, testKey, []byte("short"))
	assert.ErrorIs(t, err, ErrKeySize)
}

func TestOpenRejectsBadPadding(t *testing.T) {
	block, err := aes.NewCipher(testKey)
	require.NoError(t, err)
	body := make([]byte, aes.BlockSize)
	cipher.NewCBCEncrypter(block, testIV).CryptBlocks(body, make([]byte, aes.BlockSize))

	_, err = Open(body, testKey, testIV)
	assert.ErrorIs(t, err, ErrBadPadding)

	_, err = Open(body[:10], testKey, testIV)
	assert.ErrorIs(t, err, ErrBadPadding)
}

func TestBodyLength(t *testing.T) {
	frame, err := Seal(TypeEmote, make([]byte, 20), testKey, testIV)
	require.NoError(t, err)

	n, err := BodyLength(frame[:HeaderSize])
	require.NoError(t, err)
	assert.Equal(t, 32, n)
	assert.Len(t, frame, HeaderSize+32)

	_, err = BodyLength([]byte{0, 1, 0xff, 0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, ErrFrameLength)
}

func TestRoster(t *testing.T) {
	in := Roster{Active: true, Members: []uint64{11, 22, 33}}
	frame, err := Seal(TypeSquadRoster, EncodeRoster(in), testKey, testIV)
	require.NoError(t, err)

	f, err := ParseFrame(frame, testKey, testIV)
	require.NoError(t, err)
	assert.Equal(t, TypeSquadRoster, f.Type)

	out, err := DecodeRoster(f.Payload)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeRosterSkipsUnknownFields(t *testing.T) {
	b := EncodeRoster(Roster{Active: true, Members: []uint64{5}})
	b = protowire.AppendTag(b, 9, protowire.BytesType)
	b = protowire.AppendString(b, "ignored")

	r, err := DecodeRoster(b)
	require.NoError(t, err)
	assert.Equal(t, Roster{Active: true, Members: []uint64{5}}, r)

	_, err = DecodeRoster([]byte{0x08})
	assert.Error(t, err)
}
