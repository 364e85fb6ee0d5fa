package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// Identity errors.
var (
	// ErrKeyUnavailable indicates the key store was not initialized.
	ErrKeyUnavailable = errors.New("private key unavailable")

	// ErrInvalidKeySize indicates key material of the wrong length.
	ErrInvalidKeySize = errors.New("invalid key size")
)

// Identity contains the public fields of a device identity.
type Identity struct {
	// DeviceID is the opaque device identifier.
	DeviceID string

	// PublicKey is the device's Ed25519 public key (32 bytes).
	PublicKey ed25519.PublicKey
}

// PublicKeyBase64 returns the public key encoded as standard base64.
func (id Identity) PublicKeyBase64() string {
	return base64.StdEncoding.EncodeToString(id.PublicKey)
}

// Manager owns the device keypair and signs on its behalf.
// It is immutable after construction and safe for concurrent use.
type Manager struct {
	key      ed25519.PrivateKey
	deviceID string
}

// Config configures a Manager.
type Config struct {
	// DeviceID is the device identifier. Generated randomly if empty.
	DeviceID string

	// KeyBase64 is the private key seed or full key as base64.
	// Takes precedence over Store.
	KeyBase64 string

	// Store loads and persists the private key. If the store holds no
	// key, a new one is generated and saved back.
	Store KeyStore
}

// NewManager creates a manager from the given configuration.
func NewManager(cfg Config) (*Manager, error) {
	key, err := resolveKey(cfg)
	if err != nil {
		return nil, err
	}

	deviceID := cfg.DeviceID
	if deviceID == "" {
		deviceID, err = generateDeviceID()
		if err != nil {
			return nil, fmt.Errorf("failed to generate device ID: %w", err)
		}
	}

	return &Manager{key: key, deviceID: deviceID}, nil
}

// resolveKey obtains the private key per the configured precedence:
// explicit base64 material, then store, then fresh generation.
func resolveKey(cfg Config) (ed25519.PrivateKey, error) {
	if cfg.KeyBase64 != "" {
		raw, err := base64.StdEncoding.DecodeString(cfg.KeyBase64)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 private key: %w", err)
		}
		return keyFromBytes(raw)
	}

	if cfg.Store != nil {
		key, err := cfg.Store.Load()
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, ErrKeyUnavailable) {
			return nil, fmt.Errorf("failed to load private key: %w", err)
		}

		// No stored key yet - generate and persist one
		_, key, err = ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate keypair: %w", err)
		}
		if err := cfg.Store.Save(key); err != nil {
			return nil, fmt.Errorf("failed to persist private key: %w", err)
		}
		return key, nil
	}

	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return key, nil
}

// keyFromBytes accepts either a 32-byte seed or a 64-byte private key.
func keyFromBytes(raw []byte) (ed25519.PrivateKey, error) {
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(raw))
	}
}

// Identity returns the public fields of the device identity.
func (m *Manager) Identity() Identity {
	return Identity{
		DeviceID:  m.deviceID,
		PublicKey: m.key.Public().(ed25519.PublicKey),
	}
}

// DeviceID returns the device identifier.
func (m *Manager) DeviceID() string {
	return m.deviceID
}

// Sign signs a message with the device's private key.
func (m *Manager) Sign(message []byte) ([]byte, error) {
	if m == nil || m.key == nil {
		return nil, ErrKeyUnavailable
	}
	return ed25519.Sign(m.key, message), nil
}

// generateDeviceID creates a random device identifier of the form
// "device-<base64>".
func generateDeviceID() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return "device-" + base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
