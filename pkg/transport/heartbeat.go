package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Heartbeat constants.
const (
	// DefaultPingInterval is the default interval between pings.
	DefaultPingInterval = 30 * time.Second

	// DefaultPongTimeout is the default timeout waiting for a pong.
	DefaultPongTimeout = 5 * time.Second

	// DefaultMaxMissedPongs is the number of missed pongs tolerated
	// before the connection is considered dead.
	DefaultMaxMissedPongs = 3
)

// HeartbeatConfig configures liveness monitoring.
type HeartbeatConfig struct {
	// PingInterval is the interval between pings.
	PingInterval time.Duration

	// PongTimeout is the timeout waiting for a pong response.
	PongTimeout time.Duration

	// MaxMissedPongs is the number of missed pongs before disconnect.
	MaxMissedPongs int
}

// DefaultHeartbeatConfig returns the default heartbeat configuration.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// DetectionDelay is the maximum time to detect connection loss with
// this configuration.
func (c HeartbeatConfig) DetectionDelay() time.Duration {
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

// Heartbeat monitors connection liveness with ping/pong probes.
//
// sendPing is called with a locally generated probe sequence; the
// channel maps it onto a wire ping frame. onTimeout fires once when
// the missed-pong budget is exhausted.
type Heartbeat struct {
	config HeartbeatConfig

	sendPing  func(seq uint64) error
	onTimeout func()

	sequence     atomic.Uint64
	missedPongs  int
	lastPingTime time.Time
	lastPongTime time.Time
	pendingPing  uint64
	hasPending   bool

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	pongCh  chan uint64
}

// NewHeartbeat creates a heartbeat monitor.
func NewHeartbeat(config HeartbeatConfig, sendPing func(seq uint64) error, onTimeout func()) *Heartbeat {
	if config.PingInterval == 0 {
		config.PingInterval = DefaultPingInterval
	}
	if config.PongTimeout == 0 {
		config.PongTimeout = DefaultPongTimeout
	}
	if config.MaxMissedPongs == 0 {
		config.MaxMissedPongs = DefaultMaxMissedPongs
	}

	return &Heartbeat{
		config:    config,
		sendPing:  sendPing,
		onTimeout: onTimeout,
		stopCh:    make(chan struct{}),
		pongCh:    make(chan uint64, 1),
	}
}

// Start begins the monitoring loop.
func (h *Heartbeat) Start(ctx context.Context) {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.stopCh = make(chan struct{})
	h.mu.Unlock()

	go h.loop(ctx)
}

// Stop stops the monitoring loop.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return
	}
	h.running = false
	close(h.stopCh)
}

// PongReceived should be called when a pong is received with the
// acknowledged probe sequence.
func (h *Heartbeat) PongReceived(seq uint64) {
	select {
	case h.pongCh <- seq:
	default:
		// Channel full, drop (shouldn't happen in practice)
	}
}

// IsRunning returns true if monitoring is active.
func (h *Heartbeat) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// Stats contains heartbeat statistics.
type Stats struct {
	LastPingTime time.Time
	LastPongTime time.Time
	MissedPongs  int
	CurrentSeq   uint64
}

// Stats returns current heartbeat statistics.
func (h *Heartbeat) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		LastPingTime: h.lastPingTime,
		LastPongTime: h.lastPongTime,
		MissedPongs:  h.missedPongs,
		CurrentSeq:   h.sequence.Load(),
	}
}

// loop is the main monitoring loop.
func (h *Heartbeat) loop(ctx context.Context) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	// Send initial ping
	h.sendProbe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case <-ticker.C:
			if !h.handleTick() {
				return
			}
		case seq := <-h.pongCh:
			h.handlePong(seq)
		}
	}
}

// sendProbe sends a ping and records the time.
func (h *Heartbeat) sendProbe() {
	seq := h.sequence.Add(1)

	h.mu.Lock()
	h.lastPingTime = time.Now()
	h.pendingPing = seq
	h.hasPending = true
	h.mu.Unlock()

	if err := h.sendPing(seq); err != nil {
		// Send failed - connection is likely dead.
		// Let the pong timeout account for it.
		h.mu.Lock()
		h.hasPending = false
		h.missedPongs++
		h.mu.Unlock()
	}
}

// handleTick checks the pending probe and sends the next one.
// Returns false when the loop should stop after a timeout.
func (h *Heartbeat) handleTick() bool {
	h.mu.Lock()

	if h.hasPending {
		elapsed := time.Since(h.lastPingTime)
		if elapsed >= h.config.PongTimeout {
			h.missedPongs++
			h.hasPending = false
		}
	}

	if h.missedPongs >= h.config.MaxMissedPongs {
		h.mu.Unlock()
		if h.onTimeout != nil {
			h.onTimeout()
		}
		return false
	}

	h.mu.Unlock()

	h.sendProbe()
	return true
}

// handlePong handles a received pong.
func (h *Heartbeat) handlePong(seq uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastPongTime = time.Now()

	if h.hasPending && seq == h.pendingPing {
		h.hasPending = false
		h.missedPongs = 0 // Reset on successful pong
	}
	// Ignore pongs with wrong sequence (could be delayed from a
	// previous probe).
}
