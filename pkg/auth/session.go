package auth

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"
)

// SigningKeySize is the size of the derived session signing key.
const SigningKeySize = 32

// signingKeyInfo is the HKDF info string for session key derivation.
const signingKeyInfo = "edgelink-session-signing-v1"

// Session is a time-bounded authenticated context produced by a
// successful handshake.
type Session struct {
	// Token is the opaque session token presented to the server.
	Token string

	// IssuedAt is when the session was issued.
	IssuedAt time.Time

	// ExpiresAt is when the session expires.
	ExpiresAt time.Time

	// signingKey is the derived symmetric key for frame integrity.
	// Unexported: it must never be logged or persisted in cleartext.
	signingKey []byte
}

// SigningKey returns a copy of the session's frame signing key.
func (s *Session) SigningKey() []byte {
	return append([]byte(nil), s.signingKey...)
}

// Valid reports whether the session exists and has not expired at the
// given instant.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.Token != "" && now.Before(s.ExpiresAt)
}

// NeedsRefresh reports whether the session should be proactively
// refreshed at the given instant.
func (s *Session) NeedsRefresh(now time.Time, margin time.Duration) bool {
	if s == nil || s.Token == "" {
		return true
	}
	return !now.Before(s.ExpiresAt.Add(-margin))
}

// newSession builds a session from a handshake result, deriving the
// signing key from the token and the challenge nonce.
func newSession(token string, nonce []byte, issuedAt, expiresAt time.Time) (*Session, error) {
	key, err := deriveSigningKey(token, nonce)
	if err != nil {
		return nil, err
	}
	return &Session{
		Token:      token,
		IssuedAt:   issuedAt,
		ExpiresAt:  expiresAt,
		signingKey: key,
	}, nil
}

// deriveSigningKey derives the symmetric frame signing key via
// HKDF-SHA256 with the token as input keying material and the
// challenge nonce as salt. Both sides can derive it; it is never sent.
func deriveSigningKey(token string, nonce []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(token), nonce, []byte(signingKeyInfo))
	key := make([]byte, SigningKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive signing key: %w", err)
	}
	return key, nil
}

// signedChallengeMessage builds the byte string a device signs to
// answer a challenge: nonce || deviceId || issuedAt (unix seconds,
// 8 bytes big-endian).
func signedChallengeMessage(nonce []byte, deviceID string, issuedAt time.Time) []byte {
	msg := make([]byte, 0, len(nonce)+len(deviceID)+8)
	msg = append(msg, nonce...)
	msg = append(msg, deviceID...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(issuedAt.Unix()))
	return append(msg, ts[:]...)
}

// Cell is a read-mostly holder for the current session.
//
// The realtime channel and the webhook dispatcher both read from the
// same cell; refreshes replace the value atomically so consumers see
// either the old or the new session, never a partial update.
type Cell struct {
	mu      sync.RWMutex
	session *Session
}

// NewCell creates an empty session cell.
func NewCell() *Cell {
	return &Cell{}
}

// Get returns the current session snapshot, which may be nil.
func (c *Cell) Get() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Set replaces the current session.
func (c *Cell) Set(s *Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

// Clear removes the current session.
// Called when the remote side signals an authentication failure.
func (c *Cell) Clear() {
	c.Set(nil)
}
