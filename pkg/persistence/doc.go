// Package persistence provides runtime state persistence for EdgeLink
// devices.
//
// This package handles the JSON serialization of runtime state (the
// current session token, device registration, webhook registrations)
// that must survive process restarts. The session signing key is
// deliberately never persisted; a restarted process re-derives its
// channel credentials through a fresh handshake. Private key storage
// is handled separately by the identity package's KeyStore.
package persistence
