// Package channel implements the realtime channel state machine.
//
// One Channel owns one persistent duplex connection per device
// session. A single control loop drives the state machine:
//
//	Disconnected ──open()──▶ Connecting ──▶ Authenticating ──▶ Connected
//	     ▲                       ▲   │            │                │
//	     │                       │   └──▶ Backoff ◀───────────────┘
//	     │                       └────────── │ (next_attempt_at)
//	     └────────── close() from any state
//
// Transitions into Backoff are driven by transport errors, handshake
// rejection, heartbeat timeout, and inbound integrity or replay
// violations. Integrity and replay violations are security events: the
// channel tears the connection down and surfaces them to the caller
// rather than silently resyncing.
//
// Reconnection delays come from the shared retry policy, with the
// attempt counter reset on every successful transition into Connected.
//
// Outbound messages submitted while not Connected are buffered up to a
// bounded capacity; when the buffer is full the oldest message is
// dropped and surfaced via the drop callback. Send never blocks the
// caller.
package channel
