// Package wire implements the EdgeLink realtime frame codec.
//
// Frames are CBOR maps with integer keys for compactness:
//
//	{
//	  1: kind,       // uint8: 1=Hello, 2=Data, 3=Ping, 4=Pong, 5=Close
//	  2: sequence,   // uint64, strictly increasing per connection
//	  3: timestamp,  // unix seconds
//	  4: payload,    // kind-specific bytes
//	  5: tag         // HMAC-SHA256 over kind || sequence || timestamp || payload
//	}
//
// Every frame is bound to the current session by a symmetric MAC
// computed with the session signing key. A symmetric MAC rather than a
// per-frame asymmetric signature keeps per-message cost low while still
// defeating tampering in transit and replay across sessions.
//
// A Codec tracks the outbound sequence counter and the last accepted
// inbound sequence for one connection lifetime. Inbound frames whose
// sequence is not strictly greater than the last accepted one are
// rejected as replays. Create a fresh Codec per connection; sequence
// counters reset on reconnect.
package wire
