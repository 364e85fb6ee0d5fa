// Package transport provides the EdgeLink realtime transport layer.
//
// The transport layer handles:
//   - TCP connections, optionally wrapped in TLS
//   - Length-prefixed message framing
//   - Heartbeat ping/pong for connection liveness
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      CBOR Frames (pkg/wire)    │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│        TLS (optional)          │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # Heartbeat
//
// Connection liveness is monitored with ping/pong frames:
//   - Ping interval: 30 seconds
//   - Pong timeout: 5 seconds
//   - Max missed pongs: 3
//
// A missed-pong budget exhaustion invokes the timeout callback, which
// the channel uses to force a reconnect instead of waiting on a dead
// stream indefinitely.
package transport
