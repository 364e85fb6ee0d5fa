// Package webhook implements outbound event delivery.
//
// The Dispatcher owns a queue of events keyed by idempotency key and
// drains it with a bounded worker pool:
//
//	Enqueue ──> [Pending] ──> [InFlight] ──┬──> [Delivered]
//	                ^                      │
//	                └──── retry backoff ───┼──> [DeadLettered]
//
// Transient failures and timeouts return the event to Pending with a
// backoff-computed next_retry_at; permanent failures and exhausted
// attempt budgets dead-letter it. A duplicate idempotency key while
// the original is Pending or InFlight is a no-op.
//
// The Registry manages webhook registrations on the remote API and
// provides the HMAC payload signature used to authenticate deliveries.
package webhook
