package wire

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Codec errors.
var (
	// ErrIntegrityViolation indicates the frame MAC did not verify.
	ErrIntegrityViolation = errors.New("frame integrity violation")

	// ErrReplayDetected indicates the frame sequence was not strictly
	// greater than the last accepted inbound sequence.
	ErrReplayDetected = errors.New("frame replay detected")

	// ErrMalformed indicates a structurally invalid frame.
	ErrMalformed = errors.New("malformed frame")

	// ErrNoSigningKey indicates the codec was created without a key.
	ErrNoSigningKey = errors.New("no signing key")
)

// TagSize is the size of the frame integrity tag (HMAC-SHA256).
const TagSize = sha256.Size

// encMode is the CBOR encoder mode for EdgeLink frames.
// Configured for deterministic encoding with integer keys.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for EdgeLink frames.
var decMode cbor.DecMode

func init() {
	var err error

	// Configure encoder for deterministic output
	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Configure decoder to be lenient for forward compatibility
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Codec encodes and decodes frames for one connection lifetime.
// Safe for concurrent use.
type Codec struct {
	key []byte

	mu          sync.Mutex
	nextSeq     uint64
	lastInbound uint64

	// now is the clock, overridable in tests.
	now func() time.Time
}

// NewCodec creates a codec bound to the given session signing key.
func NewCodec(signingKey []byte) (*Codec, error) {
	if len(signingKey) == 0 {
		return nil, ErrNoSigningKey
	}
	// Copy the key so later session rotation can't mutate it under us.
	key := append([]byte(nil), signingKey...)
	return &Codec{key: key, nextSeq: 1, now: time.Now}, nil
}

// Encode builds and encodes a frame of the given kind, assigning the
// next outbound sequence number.
func (c *Codec) Encode(kind Kind, payload []byte) ([]byte, error) {
	frame, err := c.EncodeFrame(kind, payload)
	if err != nil {
		return nil, err
	}
	data, err := Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

// EncodeFrame builds a signed frame without serializing it.
func (c *Codec) EncodeFrame(kind Kind, payload []byte) (*Frame, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: invalid kind %d", ErrMalformed, kind)
	}

	c.mu.Lock()
	seq := c.nextSeq
	c.nextSeq++
	c.mu.Unlock()

	frame := &Frame{
		Kind:      kind,
		Sequence:  seq,
		Timestamp: c.now().Unix(),
		Payload:   payload,
	}
	frame.Tag = c.computeTag(frame)
	return frame, nil
}

// Decode parses and verifies an inbound frame.
//
// Verification order: structure, integrity tag, then replay. The
// replay counter advances only for frames that passed the MAC check,
// so forged frames cannot poison the sequence window.
func (c *Codec) Decode(raw []byte) (*Frame, error) {
	var frame Frame
	if err := Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !frame.Kind.IsValid() {
		return nil, fmt.Errorf("%w: invalid kind %d", ErrMalformed, frame.Kind)
	}
	if len(frame.Tag) != TagSize {
		return nil, fmt.Errorf("%w: tag size %d", ErrMalformed, len(frame.Tag))
	}

	expected := c.computeTag(&frame)
	if !hmac.Equal(expected, frame.Tag) {
		return nil, ErrIntegrityViolation
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if frame.Sequence <= c.lastInbound {
		return nil, fmt.Errorf("%w: sequence %d <= %d", ErrReplayDetected, frame.Sequence, c.lastInbound)
	}
	c.lastInbound = frame.Sequence

	return &frame, nil
}

// LastInbound returns the last accepted inbound sequence number.
func (c *Codec) LastInbound() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastInbound
}

// computeTag computes the integrity tag over
// kind || sequence || timestamp || payload.
func (c *Codec) computeTag(frame *Frame) []byte {
	mac := hmac.New(sha256.New, c.key)

	var header [1 + 8 + 8]byte
	header[0] = byte(frame.Kind)
	binary.BigEndian.PutUint64(header[1:9], frame.Sequence)
	binary.BigEndian.PutUint64(header[9:17], uint64(frame.Timestamp))

	mac.Write(header[:])
	mac.Write(frame.Payload)
	return mac.Sum(nil)
}

// SeqPayload encodes a probe sequence number as 8 big-endian bytes.
// Used as the payload of ping frames; pong frames echo it back.
func SeqPayload(seq uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return buf[:]
}

// ParseSeqPayload extracts a probe sequence from a ping or pong
// payload.
func ParseSeqPayload(payload []byte) (uint64, error) {
	if len(payload) != 8 {
		return 0, fmt.Errorf("%w: probe payload size %d", ErrMalformed, len(payload))
	}
	return binary.BigEndian.Uint64(payload), nil
}
