// Package retry provides the retry policy shared by the realtime
// channel and the webhook dispatcher.
//
// The policy computes exponential backoff delays:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s, 32s
//  3. Maximum delay: 60 seconds
//  4. Reset to 1s on success
//
// # Jitter
//
// To prevent synchronized reconnection storms when many devices lose
// connectivity at the same time:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// Policy is a pure function of the attempt count so the same instance
// can be injected into multiple components and tested in isolation.
// Backoff wraps a Policy with an attempt counter for components that
// track a single retry sequence.
package retry
