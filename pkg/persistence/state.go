package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// DeviceState contains the runtime state for an EdgeLink device.
type DeviceState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// DeviceID is the device identifier the state belongs to.
	DeviceID string `json:"device_id"`

	// Session is the current session, if one was established.
	// Only the token and its validity window are persisted; the
	// derived signing key never leaves volatile memory.
	Session *SessionState `json:"session,omitempty"`

	// Registration records the device's management API registration.
	Registration *RegistrationState `json:"registration,omitempty"`

	// Webhooks contains the webhook registrations owned by this
	// device.
	Webhooks []WebhookState `json:"webhooks,omitempty"`
}

// SessionState is the persisted slice of a session.
type SessionState struct {
	// Token is the opaque session token.
	Token string `json:"token"`

	// IssuedAt is when the session was established.
	IssuedAt time.Time `json:"issued_at"`

	// ExpiresAt is when the token stops being valid.
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the persisted token is still inside its
// validity window.
func (s *SessionState) Valid(now time.Time) bool {
	return s != nil && s.Token != "" && now.Before(s.ExpiresAt)
}

// RegistrationState records a completed device registration.
type RegistrationState struct {
	// RegisteredAt is when the device was registered.
	RegisteredAt time.Time `json:"registered_at"`

	// Name is the registered device name.
	Name string `json:"name,omitempty"`

	// DeviceType is the registered device type.
	DeviceType string `json:"device_type,omitempty"`
}

// WebhookState records one webhook registration.
type WebhookState struct {
	// ID is the server-assigned webhook ID.
	ID string `json:"id"`

	// URL is the delivery target.
	URL string `json:"url"`

	// Secret signs delivered payloads.
	Secret string `json:"secret,omitempty"`

	// Events are the subscribed event types.
	Events []string `json:"events,omitempty"`
}

// DeviceStateStore manages persistence of device state to a JSON file.
type DeviceStateStore struct {
	mu   sync.Mutex
	path string
}

// NewDeviceStateStore creates a new device state store.
func NewDeviceStateStore(path string) *DeviceStateStore {
	return &DeviceStateStore{path: path}
}

// Save persists the device state to disk.
func (s *DeviceStateStore) Save(state *DeviceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Ensure parent directory exists
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	state.Version = StateVersion
	if state.SavedAt.IsZero() {
		state.SavedAt = time.Now()
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	// The file carries the session token, so keep it private.
	return os.WriteFile(s.path, data, 0600)
}

// Load reads the device state from disk.
// Returns nil, nil if the file doesn't exist (empty state).
func (s *DeviceStateStore) Load() (*DeviceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &DeviceState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, err
	}

	return state, nil
}

// Clear removes the state file.
func (s *DeviceStateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
