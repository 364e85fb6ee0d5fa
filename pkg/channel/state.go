package channel

import "errors"

// Channel errors.
var (
	// ErrChannelClosed indicates the channel has been closed.
	ErrChannelClosed = errors.New("channel closed")

	// ErrAlreadyOpen indicates Open was called on a running channel.
	ErrAlreadyOpen = errors.New("channel already open")

	// ErrTransportFailure indicates the underlying connection failed.
	ErrTransportFailure = errors.New("transport failure")

	// ErrHeartbeatTimeout indicates the remote side stopped answering
	// liveness probes.
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")

	// ErrAuthRejected indicates the remote side rejected the channel
	// handshake.
	ErrAuthRejected = errors.New("authentication rejected")
)

// State represents the channel state.
type State uint8

const (
	// StateDisconnected indicates no active connection and no retry
	// scheduled.
	StateDisconnected State = iota

	// StateConnecting indicates a transport connection attempt is in
	// progress.
	StateConnecting

	// StateAuthenticating indicates the transport is up and the
	// session handshake frame is in flight.
	StateAuthenticating

	// StateConnected indicates an authenticated, live connection.
	StateConnected

	// StateBackoff indicates the channel is waiting for
	// next_attempt_at before reconnecting.
	StateBackoff
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateConnected:
		return "CONNECTED"
	case StateBackoff:
		return "BACKOFF"
	default:
		return "UNKNOWN"
	}
}
