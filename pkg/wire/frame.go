package wire

import (
	"fmt"
)

// CBOR map keys for frame encoding.
const (
	KeyKind      = 1
	KeySequence  = 2
	KeyTimestamp = 3
	KeyPayload   = 4
	KeyTag       = 5
)

// Kind identifies the frame type.
type Kind uint8

// Frame kinds.
const (
	// KindHello is the first frame after connect and carries the
	// session token.
	KindHello Kind = 1

	// KindData carries an application payload.
	KindData Kind = 2

	// KindPing is a liveness probe. Its payload carries a probe
	// sequence as 8 big-endian bytes.
	KindPing Kind = 3

	// KindPong acknowledges a ping by echoing its probe payload.
	KindPong Kind = 4

	// KindClose announces an orderly shutdown.
	KindClose Kind = 5
)

// IsValid returns true for a known frame kind.
func (k Kind) IsValid() bool {
	return k >= KindHello && k <= KindClose
}

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindHello:
		return "HELLO"
	case KindData:
		return "DATA"
	case KindPing:
		return "PING"
	case KindPong:
		return "PONG"
	case KindClose:
		return "CLOSE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
	}
}

// Frame is a sequenced, integrity-tagged unit of realtime traffic.
type Frame struct {
	Kind      Kind   `cbor:"1,keyasint"`
	Sequence  uint64 `cbor:"2,keyasint"`
	Timestamp int64  `cbor:"3,keyasint"`
	Payload   []byte `cbor:"4,keyasint,omitempty"`
	Tag       []byte `cbor:"5,keyasint"`
}

// HelloPayload is the payload of a Hello frame.
//
// CBOR encoding:
//
//	{
//	  1: deviceId,   // text
//	  2: token       // text: current session token
//	}
type HelloPayload struct {
	DeviceID string `cbor:"1,keyasint"`
	Token    string `cbor:"2,keyasint"`
}

// EncodeHelloPayload encodes a hello payload to CBOR bytes.
func EncodeHelloPayload(p *HelloPayload) ([]byte, error) {
	if p.DeviceID == "" {
		return nil, fmt.Errorf("hello payload: device ID required")
	}
	if p.Token == "" {
		return nil, fmt.Errorf("hello payload: token required")
	}
	return Marshal(p)
}

// DecodeHelloPayload decodes CBOR bytes into a hello payload.
func DecodeHelloPayload(data []byte) (*HelloPayload, error) {
	var p HelloPayload
	if err := Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode hello payload: %w", err)
	}
	return &p, nil
}
