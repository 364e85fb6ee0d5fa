package identity

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Key store errors.
var (
	ErrInvalidPEM = errors.New("invalid PEM data")
	ErrNotEd25519 = errors.New("not an Ed25519 private key")
)

// KeyStore loads and persists the device private key.
// Implementations must be safe for concurrent access.
type KeyStore interface {
	// Load returns the stored private key.
	// Returns ErrKeyUnavailable if no key has been stored.
	Load() (ed25519.PrivateKey, error)

	// Save persists the private key.
	Save(key ed25519.PrivateKey) error
}

// FileKeyStore persists the private key as a PEM-encoded PKCS#8 file.
type FileKeyStore struct {
	mu   sync.Mutex
	path string
}

// NewFileKeyStore creates a file-backed key store at the given path.
func NewFileKeyStore(path string) *FileKeyStore {
	return &FileKeyStore{path: path}
}

// Load reads the private key from disk.
func (s *FileKeyStore) Load() (ed25519.PrivateKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, ErrKeyUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != "PRIVATE KEY" {
		return nil, ErrInvalidPEM
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, ErrNotEd25519
	}
	return key, nil
}

// Save writes the private key to disk with restricted permissions.
func (s *FileKeyStore) Save(key ed25519.PrivateKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}

	data := pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: der,
	})

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0600)
}

// MemoryKeyStore is an in-memory KeyStore.
// Primarily useful for testing and devices without durable storage.
type MemoryKeyStore struct {
	mu  sync.Mutex
	key ed25519.PrivateKey
}

// NewMemoryKeyStore creates a new in-memory key store.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{}
}

// Load returns the stored key.
func (s *MemoryKeyStore) Load() (ed25519.PrivateKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return nil, ErrKeyUnavailable
	}
	return s.key, nil
}

// Save stores a copy of the key.
func (s *MemoryKeyStore) Save(key ed25519.PrivateKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = append(ed25519.PrivateKey(nil), key...)
	return nil
}
