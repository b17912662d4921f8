package wire

import (
	"bytes"
	"encoding/binary"

	"github.com/google/uuid"
)

// S2C is a server-to-client message.
type S2C interface {
	s2c()
	Encode() []byte
}

// S2CAuth acknowledges a successful token handshake. Exactly one byte.
type S2CAuth struct{}

// S2CPing relays another player's ping, prefixed with the sender UUID.
type S2CPing struct {
	Sender  uuid.UUID
	FuncID  uint32
	Echo    bool
	Payload []byte
}

// S2CEvent tells the client to refresh the avatar of the given player.
type S2CEvent struct {
	UUID uuid.UUID
}

// S2CToast shows a popup. The title is terminated by a zero byte only when
// a body follows; a toast without a body carries no zero byte at all.
type S2CToast struct {
	Severity byte
	Title    string
	Body     string
	HasBody  bool
}

// S2CChat prints a chat line.
type S2CChat struct {
	Text string
}

// S2CNotice is a one-byte advisory code. Exactly two bytes on the wire.
type S2CNotice struct {
	Code byte
}

func (S2CAuth) s2c()   {}
func (S2CPing) s2c()   {}
func (S2CEvent) s2c()  {}
func (S2CToast) s2c()  {}
func (S2CChat) s2c()   {}
func (S2CNotice) s2c() {}

func (S2CAuth) Encode() []byte { return []byte{0} }

func (m S2CPing) Encode() []byte {
	buf := make([]byte, 22, 22+len(m.Payload))
	buf[0] = 1
	copy(buf[1:17], m.Sender[:])
	binary.BigEndian.PutUint32(buf[17:21], m.FuncID)
	if m.Echo {
		buf[21] = 1
	}
	return append(buf, m.Payload...)
}

func (m S2CEvent) Encode() []byte {
	buf := make([]byte, 0, 17)
	buf = append(buf, 2)
	return append(buf, m.UUID[:]...)
}

func (m S2CToast) Encode() []byte {
	buf := make([]byte, 0, 2+len(m.Title)+1+len(m.Body))
	buf = append(buf, 3, m.Severity)
	buf = append(buf, m.Title...)
	if m.HasBody {
		buf = append(buf, 0)
		buf = append(buf, m.Body...)
	}
	return buf
}

func (m S2CChat) Encode() []byte {
	buf := make([]byte, 0, 1+len(m.Text))
	buf = append(buf, 4)
	return append(buf, m.Text...)
}

func (m S2CNotice) Encode() []byte { return []byte{5, m.Code} }

// PingFromC2S builds the relayed server frame for a client ping. This is the
// hot path of the fan-out fabric, so it splices bytes directly instead of
// round-tripping through DecodeC2S.
func PingFromC2S(sender uuid.UUID, p C2SPing) []byte {
	return S2CPing{Sender: sender, FuncID: p.FuncID, Echo: p.Echo, Payload: p.Payload}.Encode()
}

// DecodeS2C parses a server frame. Used by tests and the admin raw bridge;
// the serving path only ever encodes.
func DecodeS2C(buf []byte) (S2C, error) {
	if len(buf) == 0 {
		return nil, &BadLengthError{Field: "S2CMessage", Want: 1, Got: 0}
	}
	switch buf[0] {
	case 0:
		if len(buf) != 1 {
			return nil, &BadLengthError{Field: "S2CMessage::Auth", Want: 1, Exact: true, Got: len(buf)}
		}
		return S2CAuth{}, nil
	case 1:
		if len(buf) < 22 {
			return nil, &BadLengthError{Field: "S2CMessage::Ping", Want: 22, Got: len(buf)}
		}
		return S2CPing{
			Sender:  uuid.UUID(buf[1:17]),
			FuncID:  binary.BigEndian.Uint32(buf[17:21]),
			Echo:    buf[21] != 0,
			Payload: clone(buf[22:]),
		}, nil
	case 2:
		if len(buf) != 17 {
			return nil, &BadLengthError{Field: "S2CMessage::Event", Want: 17, Exact: true, Got: len(buf)}
		}
		return S2CEvent{UUID: uuid.UUID(buf[1:17])}, nil
	case 3:
		if len(buf) < 2 {
			return nil, &BadLengthError{Field: "S2CMessage::Toast", Want: 2, Got: len(buf)}
		}
		toast := S2CToast{Severity: buf[1]}
		rest := buf[2:]
		if i := bytes.IndexByte(rest, 0); i >= 0 {
			toast.Title = string(rest[:i])
			toast.Body = string(rest[i+1:])
			toast.HasBody = true
		} else {
			toast.Title = string(rest)
		}
		return toast, nil
	case 4:
		return S2CChat{Text: string(buf[1:])}, nil
	case 5:
		if len(buf) != 2 {
			return nil, &BadLengthError{Field: "S2CMessage::Notice", Want: 2, Exact: true, Got: len(buf)}
		}
		return S2CNotice{Code: buf[1]}, nil
	default:
		return nil, &BadEnumError{Field: "S2CMessage.type", Lo: 0, Hi: 5, Got: int(buf[0])}
	}
}
