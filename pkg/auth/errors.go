package auth

import "errors"

// Authentication errors.
var (
	// ErrChallengeExpired indicates the challenge expired or was
	// already consumed before the handshake completed.
	ErrChallengeExpired = errors.New("challenge expired")

	// ErrInvalidSignature indicates the server rejected the device
	// signature. Fatal: the device key does not match the registered
	// public key, so retrying cannot succeed.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrTransientNetwork indicates a network or server-side failure
	// that is safe to retry with backoff.
	ErrTransientNetwork = errors.New("transient network failure")

	// ErrNoSession indicates no valid session is available.
	ErrNoSession = errors.New("no valid session")
)

// IsFatal returns true for handshake errors that must not be retried.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidSignature)
}

// IsTransient returns true for handshake errors that are retried with
// backoff.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientNetwork)
}
