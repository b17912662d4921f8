// Package wire implements the binary frame codec spoken between the mod
// client and the server. Each frame begins with a one-byte discriminator;
// the remaining layout depends on the variant. Multi-byte integers are
// big-endian.
package wire

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// StatePingFuncID is the magic function id the client reserves for
// state-ping control frames. It never changes; the client hardcodes it.
const StatePingFuncID uint32 = 0x0F0F0F0D

// C2S is a client-to-server message.
type C2S interface {
	c2s()
	// Encode renders the message as a wire frame.
	Encode() []byte
}

// C2SToken carries the session token as the first frame of a connection.
type C2SToken struct {
	Token []byte
}

// C2SPing is an avatar-state broadcast payload, opaque to the server.
type C2SPing struct {
	FuncID  uint32
	Echo    bool
	Payload []byte
}

// C2SSub subscribes the sender to another player's pings.
type C2SSub struct {
	UUID uuid.UUID
}

// C2SUnsub cancels a previous C2SSub.
type C2SUnsub struct {
	UUID uuid.UUID
}

func (C2SToken) c2s() {}
func (C2SPing) c2s()  {}
func (C2SSub) c2s()   {}
func (C2SUnsub) c2s() {}

func (m C2SToken) Encode() []byte {
	buf := make([]byte, 0, 1+len(m.Token))
	buf = append(buf, 0)
	return append(buf, m.Token...)
}

func (m C2SPing) Encode() []byte {
	buf := make([]byte, 6, 6+len(m.Payload))
	buf[0] = 1
	binary.BigEndian.PutUint32(buf[1:5], m.FuncID)
	if m.Echo {
		buf[5] = 1
	}
	return append(buf, m.Payload...)
}

func (m C2SSub) Encode() []byte {
	buf := make([]byte, 0, 17)
	buf = append(buf, 2)
	return append(buf, m.UUID[:]...)
}

func (m C2SUnsub) Encode() []byte {
	buf := make([]byte, 0, 17)
	buf = append(buf, 3)
	return append(buf, m.UUID[:]...)
}

// DecodeC2S parses a client frame. The input slice is not retained; payloads
// are copied so callers may reuse their read buffers.
func DecodeC2S(buf []byte) (C2S, error) {
	if len(buf) == 0 {
		return nil, &BadLengthError{Field: "C2SMessage", Want: 1, Got: 0}
	}
	switch buf[0] {
	case 0:
		return C2SToken{Token: clone(buf[1:])}, nil
	case 1:
		if len(buf) < 6 {
			return nil, &BadLengthError{Field: "C2SMessage::Ping", Want: 6, Got: len(buf)}
		}
		return C2SPing{
			FuncID:  binary.BigEndian.Uint32(buf[1:5]),
			Echo:    buf[5] != 0,
			Payload: clone(buf[6:]),
		}, nil
	case 2:
		if len(buf) != 17 {
			return nil, &BadLengthError{Field: "C2SMessage::Sub", Want: 17, Exact: true, Got: len(buf)}
		}
		return C2SSub{UUID: uuid.UUID(buf[1:17])}, nil
	case 3:
		if len(buf) != 17 {
			return nil, &BadLengthError{Field: "C2SMessage::Unsub", Want: 17, Exact: true, Got: len(buf)}
		}
		return C2SUnsub{UUID: uuid.UUID(buf[1:17])}, nil
	default:
		return nil, &BadEnumError{Field: "C2SMessage.type", Lo: 0, Hi: 3, Got: int(buf[0])}
	}
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
