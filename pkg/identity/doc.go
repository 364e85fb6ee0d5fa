// Package identity manages the device's Ed25519 credentials.
//
// A Manager owns the device's keypair and device ID. The private key
// never leaves the package boundary: callers obtain signatures via
// Sign and the public half via Identity, but the signing key itself is
// not exported, logged, or transmitted.
//
// Keys are generated with crypto/rand on first use, or loaded from a
// KeyStore. The FileKeyStore persists the key as a PEM-encoded PKCS#8
// file with 0600 permissions; the MemoryKeyStore is for tests and
// devices without durable storage.
package identity
