// Package packet builds and parses the frames exchanged with the game
// server.
//
// A frame is a 6 byte header followed by ciphertext:
//
//	[type uint16 BE][length uint32 BE][AES-CBC(PKCS#7(payload))]
//
// Payloads are protobuf wire messages.
package packet

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
)

// Type identifies a frame.
type Type uint16

const (
	TypeJoinSquad   Type = 0x0515
	TypeEmote       Type = 0x0519
	TypeSquadRoster Type = 0x0500
)

const (
	HeaderSize = 6

	// MaxFrameSize bounds inbound frames so a corrupt length can't make the
	// reader allocate unbounded memory.
	MaxFrameSize = 1 << 20
)

var (
	ErrShortFrame  = errors.New("packet: short frame")
	ErrFrameLength = errors.New("packet: frame length mismatch")
	ErrBadPadding  = errors.New("packet: bad padding")
	ErrKeySize     = errors.New("packet: invalid key or iv size")
)

func (t Type) String() string {
	switch t {
	case TypeJoinSquad:
		return "join_squad"
	case TypeEmote:
		return "emote"
	case TypeSquadRoster:
		return "squad_roster"
	}
	return fmt.Sprintf("0x%04x", uint16(t))
}

// Frame is a decrypted inbound frame.
type Frame struct {
	Type    Type
	Payload []byte
}

// Seal encrypts payload and prepends the header.
func Seal(t Type, payload, key, iv []byte) ([]byte, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}

	plain := pad(payload, aes.BlockSize)
	out := make([]byte, HeaderSize+len(plain))
	binary.BigEndian.PutUint16(out[0:2], uint16(t))
	binary.BigEndian.PutUint32(out[2:6], uint32(len(plain)))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[HeaderSize:], plain)
	return out, nil
}

// ParseFrame checks the header of a complete frame and decrypts its body.
func ParseFrame(frame, key, iv []byte) (Frame, error) {
	if len(frame) < HeaderSize {
		return Frame{}, ErrShortFrame
	}
	t := Type(binary.BigEndian.Uint16(frame[0:2]))
	n := binary.BigEndian.Uint32(frame[2:6])
	body := frame[HeaderSize:]
	if int(n) != len(body) {
		return Frame{}, fmt.Errorf("%w: header says %d, have %d", ErrFrameLength, n, len(body))
	}

	payload, err := Open(body, key, iv)
	if err != nil {
		return Frame{}, fmt.Errorf("%s frame: %w", t, err)
	}
	return Frame{Type: t, Payload: payload}, nil
}

// Open decrypts a frame body.
func Open(body, key, iv []byte) ([]byte, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 || len(body)%aes.BlockSize != 0 {
		return nil, ErrBadPadding
	}
	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)
	return unpad(plain, aes.BlockSize)
}

// BodyLength reads the body length out of a frame header.
func BodyLength(header []byte) (int, error) {
	if len(header) < HeaderSize {
		return 0, ErrShortFrame
	}
	n := binary.BigEndian.Uint32(header[2:6])
	if n > MaxFrameSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrFrameLength, n)
	}
	return int(n), nil
}

func newBlock(key, iv []byte) (cipher.Block, error) {
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: iv is %d bytes", ErrKeySize, len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySize, err)
	}
	return block, nil
}

func pad(data []byte, size int) []byte {
	n := size - len(data)%size
	return append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, size int) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrBadPadding
	}
	n := int(data[len(data)-1])
	if n == 0 || n > size || n > len(data) {
		return nil, ErrBadPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrBadPadding
		}
	}
	return data[:len(data)-n], nil
}
