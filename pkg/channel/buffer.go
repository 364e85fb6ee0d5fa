package channel

import "sync"

// DefaultBufferSize is the default outbound buffer capacity.
const DefaultBufferSize = 256

// sendBuffer is a bounded FIFO for outbound payloads.
// When full, pushing drops and returns the oldest entry.
type sendBuffer struct {
	mu       sync.Mutex
	entries  [][]byte
	capacity int
}

func newSendBuffer(capacity int) *sendBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &sendBuffer{capacity: capacity}
}

// push appends a payload. If the buffer is at capacity the oldest
// entry is removed and returned with dropped=true.
func (b *sendBuffer) push(payload []byte) (dropped []byte, didDrop bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) >= b.capacity {
		dropped = b.entries[0]
		b.entries = b.entries[1:]
		didDrop = true
	}
	b.entries = append(b.entries, payload)
	return dropped, didDrop
}

// pop removes and returns the oldest entry.
func (b *sendBuffer) pop() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) == 0 {
		return nil, false
	}
	payload := b.entries[0]
	b.entries = b.entries[1:]
	return payload, true
}

// requeueFront puts a payload back at the head of the buffer.
// Used when a send fails mid-drain so ordering is preserved.
func (b *sendBuffer) requeueFront(payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) >= b.capacity {
		// Full again - the payload was already sent once into a dying
		// connection; dropping it here keeps the newest messages.
		return
	}
	b.entries = append([][]byte{payload}, b.entries...)
}

func (b *sendBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
