// Package auth implements the EdgeLink challenge/response handshake
// and session lifecycle.
//
// # Handshake
//
//  1. Request a challenge for the device ID.
//  2. Sign nonce || deviceId || issuedAt with the device's Ed25519 key.
//  3. Submit {deviceId, publicKey, nonce, signature}.
//  4. Receive {token, expiresAt} and derive the session signing key
//     locally via HKDF-SHA256 over token + nonce. The signing key is
//     never transmitted.
//
// Invalid-signature rejections are fatal: they indicate a
// configuration or identity mismatch that retrying cannot fix.
// Transient network and server failures are retried with backoff.
//
// # Refresh
//
// Sessions are refreshed proactively at expiresAt - refreshMargin.
// Refresh is single-flight: concurrent callers share one in-flight
// handshake instead of issuing parallel ones, which would thrash
// challenge nonces and trip server rate limits.
package auth
