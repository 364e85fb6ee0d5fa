package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/edgelink-io/edgelink-go/pkg/auth"
	"github.com/edgelink-io/edgelink-go/pkg/retry"
	"github.com/edgelink-io/edgelink-go/pkg/transport"
	"github.com/edgelink-io/edgelink-go/pkg/wire"
)

// DefaultAuthTimeout bounds the wait for the handshake acknowledgement.
const DefaultAuthTimeout = 10 * time.Second

// Transport is the duplex byte stream the channel runs over.
// Implemented by transport.Conn.
type Transport interface {
	// Send writes one framed message.
	Send(data []byte) error

	// Receive reads one framed message, waiting at most timeout.
	// A zero timeout blocks until a frame arrives or the stream ends.
	Receive(timeout time.Duration) ([]byte, error)

	// Close closes the stream, unblocking pending reads and writes.
	Close() error
}

// Dialer establishes transport connections.
type Dialer interface {
	Dial(ctx context.Context, address string) (Transport, error)
}

// NetDialer adapts a transport.Dialer to the Dialer interface.
type NetDialer struct {
	*transport.Dialer
}

// Dial implements Dialer.
func (d NetDialer) Dial(ctx context.Context, address string) (Transport, error) {
	return d.Dialer.Dial(ctx, address)
}

// Config configures a Channel.
type Config struct {
	// Address is the realtime endpoint address.
	Address string

	// BufferSize is the outbound buffer capacity (default: 256).
	BufferSize int

	// Heartbeat configures liveness monitoring.
	Heartbeat transport.HeartbeatConfig

	// AuthTimeout bounds the wait for the handshake acknowledgement
	// (default: 10s).
	AuthTimeout time.Duration

	// RetryPolicy computes reconnection backoff. Nil uses defaults.
	RetryPolicy *retry.Policy
}

// Channel maintains one authenticated realtime connection.
//
// A single control loop owns the state machine; callers interact
// through Open, Send, Close, and callbacks. Callbacks must be
// registered before Open.
type Channel struct {
	config Config
	auth   *auth.Client
	dialer Dialer
	logger *slog.Logger

	mu            sync.Mutex
	state         State
	nextAttemptAt time.Time
	running       bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup

	backoff  *retry.Backoff
	buffer   *sendBuffer
	sendWake chan struct{}

	onStateChange   func(oldState, newState State)
	onMessage       func(payload []byte)
	onSecurityEvent func(err error)
	onDropped       func(payload []byte)
	onReconnecting  func(attempt int, delay time.Duration)
	onFatal         func(err error)
}

// New creates a channel over the given auth client and dialer.
func New(config Config, authClient *auth.Client, dialer Dialer) *Channel {
	if config.AuthTimeout == 0 {
		config.AuthTimeout = DefaultAuthTimeout
	}
	return &Channel{
		config:   config,
		auth:     authClient,
		dialer:   dialer,
		state:    StateDisconnected,
		backoff:  retry.NewBackoff(config.RetryPolicy),
		buffer:   newSendBuffer(config.BufferSize),
		sendWake: make(chan struct{}, 1),
	}
}

// SetLogger sets the channel's logger.
func (c *Channel) SetLogger(logger *slog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger
}

// OnStateChange sets a callback for state transitions.
func (c *Channel) OnStateChange(fn func(oldState, newState State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = fn
}

// OnMessage sets the callback for inbound application payloads.
func (c *Channel) OnMessage(fn func(payload []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

// OnSecurityEvent sets the callback for integrity and replay
// violations on inbound frames.
func (c *Channel) OnSecurityEvent(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSecurityEvent = fn
}

// OnBackpressureDropped sets the callback invoked with each payload
// dropped from a full outbound buffer.
func (c *Channel) OnBackpressureDropped(fn func(payload []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDropped = fn
}

// OnReconnecting sets a callback for reconnection attempts.
func (c *Channel) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnecting = fn
}

// OnFatal sets the callback for terminal failures, such as an
// invalid-signature rejection during session refresh.
func (c *Channel) OnFatal(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFatal = fn
}

// State returns the current channel state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// NextAttemptAt returns when the next reconnection attempt is due.
// Meaningful only in StateBackoff.
func (c *Channel) NextAttemptAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextAttemptAt
}

// Buffered returns the number of queued outbound payloads.
func (c *Channel) Buffered() int {
	return c.buffer.len()
}

// Open starts the channel's control loop.
// Sequence counters reset: a reopened channel begins a new lifetime.
func (c *Channel) Open() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	c.running = true
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	c.setState(StateConnecting)

	c.wg.Add(1)
	go c.run(ctx)
	return nil
}

// Close stops the channel and transitions it to Disconnected.
// Pending reads, writes, and timers are cancelled promptly.
func (c *Channel) Close() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.wg.Wait()
	c.setState(StateDisconnected)
}

// Send queues an application payload for transmission.
//
// Never blocks: while not Connected the payload is buffered, and a
// full buffer drops its oldest entry, surfaced via
// OnBackpressureDropped.
func (c *Channel) Send(payload []byte) error {
	c.mu.Lock()
	running := c.running
	dropCb := c.onDropped
	c.mu.Unlock()

	if !running {
		return ErrChannelClosed
	}

	if dropped, didDrop := c.buffer.push(payload); didDrop {
		if c.logger != nil {
			c.logger.Warn("outbound buffer full, dropping oldest message",
				"bufferSize", c.buffer.capacity)
		}
		if dropCb != nil {
			dropCb(dropped)
		}
	}

	select {
	case c.sendWake <- struct{}{}:
	default:
	}
	return nil
}

// run drives the state machine until the channel is closed or a fatal
// error ends it.
func (c *Channel) run(ctx context.Context) {
	defer c.wg.Done()

	for ctx.Err() == nil {
		conn, codec, err := c.establish(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if auth.IsFatal(err) {
				c.fatal(err)
				return
			}
			c.waitBackoff(ctx, err)
			continue
		}

		err = c.connected(ctx, conn, codec)
		if ctx.Err() != nil {
			return
		}
		c.waitBackoff(ctx, err)
	}
}

// establish runs the Connecting and Authenticating phases and returns
// a live, authenticated connection.
func (c *Channel) establish(ctx context.Context) (Transport, *wire.Codec, error) {
	c.setState(StateConnecting)

	conn, err := c.dialer.Dial(ctx, c.config.Address)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTransportFailure, err)
	}

	// Closing the channel must unblock a handshake read in progress.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	c.setState(StateAuthenticating)

	session, err := c.auth.Session(ctx)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	codec, err := wire.NewCodec(session.SigningKey())
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	hello, err := wire.EncodeHelloPayload(&wire.HelloPayload{
		DeviceID: c.auth.DeviceID(),
		Token:    session.Token,
	})
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	data, err := codec.Encode(wire.KindHello, hello)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if err := conn.Send(data); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("%w: %v", ErrTransportFailure, err)
	}

	// The remote side accepts the session by answering with its own
	// hello frame, MAC'd with the same session key.
	raw, err := conn.Receive(c.config.AuthTimeout)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("%w: no handshake acknowledgement: %v", ErrAuthRejected, err)
	}

	ack, err := codec.Decode(raw)
	if err != nil {
		conn.Close()
		if isSecurityEvent(err) {
			c.emitSecurity(err)
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrAuthRejected, err)
	}
	if ack.Kind != wire.KindHello {
		conn.Close()
		return nil, nil, fmt.Errorf("%w: unexpected %v frame", ErrAuthRejected, ack.Kind)
	}

	return conn, codec, nil
}

// connected runs the Connected phase until the connection fails.
func (c *Channel) connected(ctx context.Context, conn Transport, codec *wire.Codec) error {
	c.backoff.Reset()
	c.setState(StateConnected)
	if c.logger != nil {
		c.logger.Info("realtime channel connected", "address", c.config.Address)
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Unblock the reader when the phase ends.
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	errCh := make(chan error, 2)

	hb := transport.NewHeartbeat(c.config.Heartbeat,
		func(seq uint64) error {
			data, err := codec.Encode(wire.KindPing, wire.SeqPayload(seq))
			if err != nil {
				return err
			}
			return conn.Send(data)
		},
		func() {
			select {
			case errCh <- ErrHeartbeatTimeout:
			default:
			}
		},
	)
	hb.Start(connCtx)
	defer hb.Stop()

	go c.readLoop(connCtx, conn, codec, hb, errCh)

	// Proactive session refresh while connected. The timer is re-armed
	// from each refreshed session so long-lived connections keep the
	// shared cell fresh across every session lifetime.
	var refreshCh <-chan time.Time
	armRefresh := func(s *auth.Session) {
		refreshCh = nil
		if s == nil {
			return
		}
		if d := time.Until(c.auth.RefreshAt(s)); d > 0 {
			refreshCh = time.After(d)
		}
	}
	armRefresh(c.auth.SessionCell().Get())
	refreshed := make(chan *auth.Session, 1)

	// Flush anything buffered while we were away.
	if err := c.drain(conn, codec); err != nil {
		return err
	}

	for {
		select {
		case <-connCtx.Done():
			return ErrChannelClosed

		case err := <-errCh:
			if isSecurityEvent(err) {
				c.emitSecurity(err)
			}
			return err

		case <-c.sendWake:
			if err := c.drain(conn, codec); err != nil {
				return err
			}

		case <-refreshCh:
			refreshCh = nil
			go func() {
				rctx, rcancel := context.WithTimeout(connCtx, time.Minute)
				defer rcancel()
				s, err := c.auth.Refresh(rctx)
				if err != nil {
					if c.logger != nil {
						c.logger.Warn("proactive session refresh failed", "error", err)
					}
					return
				}
				select {
				case refreshed <- s:
				case <-connCtx.Done():
				}
			}()

		case s := <-refreshed:
			armRefresh(s)
		}
	}
}

// readLoop decodes inbound frames and dispatches them.
func (c *Channel) readLoop(ctx context.Context, conn Transport, codec *wire.Codec, hb *transport.Heartbeat, errCh chan<- error) {
	for {
		raw, err := conn.Receive(0)
		if err != nil {
			if ctx.Err() == nil {
				select {
				case errCh <- fmt.Errorf("%w: %v", ErrTransportFailure, err):
				default:
				}
			}
			return
		}

		frame, err := codec.Decode(raw)
		if err != nil {
			// Integrity and replay violations tear the connection
			// down; the channel does not silently resync.
			select {
			case errCh <- err:
			default:
			}
			return
		}

		switch frame.Kind {
		case wire.KindPong:
			if seq, err := wire.ParseSeqPayload(frame.Payload); err == nil {
				hb.PongReceived(seq)
			}

		case wire.KindPing:
			if data, err := codec.Encode(wire.KindPong, frame.Payload); err == nil {
				conn.Send(data)
			}

		case wire.KindData:
			c.mu.Lock()
			cb := c.onMessage
			c.mu.Unlock()
			if cb != nil {
				cb(frame.Payload)
			}

		case wire.KindClose:
			select {
			case errCh <- fmt.Errorf("%w: remote close", ErrTransportFailure):
			default:
			}
			return
		}
	}
}

// drain sends all buffered payloads in order.
func (c *Channel) drain(conn Transport, codec *wire.Codec) error {
	for {
		payload, ok := c.buffer.pop()
		if !ok {
			return nil
		}

		data, err := codec.Encode(wire.KindData, payload)
		if err != nil {
			return err
		}
		if err := conn.Send(data); err != nil {
			c.buffer.requeueFront(payload)
			return fmt.Errorf("%w: %v", ErrTransportFailure, err)
		}
	}
}

// waitBackoff runs the Backoff phase: schedule next_attempt_at, wait,
// then hand control back to the loop for the next Connecting phase.
func (c *Channel) waitBackoff(ctx context.Context, cause error) {
	delay := c.backoff.Next()
	attempt := c.backoff.Attempts()

	c.mu.Lock()
	c.nextAttemptAt = time.Now().Add(delay)
	reconnCb := c.onReconnecting
	c.mu.Unlock()

	c.setState(StateBackoff)
	if c.logger != nil {
		c.logger.Warn("realtime channel lost, backing off",
			"cause", cause,
			"attempt", attempt,
			"delay", delay)
	}
	if reconnCb != nil {
		reconnCb(attempt, delay)
	}

	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

// fatal ends the channel on an unrecoverable error.
func (c *Channel) fatal(err error) {
	c.mu.Lock()
	c.running = false
	cancel := c.cancel
	fatalCb := c.onFatal
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if c.logger != nil {
		c.logger.Error("realtime channel terminated", "error", err)
	}

	c.setState(StateDisconnected)
	if fatalCb != nil {
		fatalCb(err)
	}
}

// setState transitions the state machine, invoking the callback
// outside the lock.
func (c *Channel) setState(next State) {
	c.mu.Lock()
	old := c.state
	if old == next {
		c.mu.Unlock()
		return
	}
	c.state = next
	cb := c.onStateChange
	c.mu.Unlock()

	if cb != nil {
		cb(old, next)
	}
}

// emitSecurity surfaces an integrity or replay violation.
func (c *Channel) emitSecurity(err error) {
	c.mu.Lock()
	cb := c.onSecurityEvent
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Error("security violation on inbound frame", "error", err)
	}
	if cb != nil {
		cb(err)
	}
}

// isSecurityEvent reports whether an error is an inbound frame
// security violation.
func isSecurityEvent(err error) bool {
	return errors.Is(err, wire.ErrIntegrityViolation) || errors.Is(err, wire.ErrReplayDetected)
}
