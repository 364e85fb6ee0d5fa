package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// Transport errors.
var (
	// ErrConnectionClosed indicates the connection has been closed.
	ErrConnectionClosed = errors.New("connection closed")
)

// DefaultConnectTimeout is the default dial timeout.
const DefaultConnectTimeout = 30 * time.Second

// DialerConfig configures a Dialer.
type DialerConfig struct {
	// TLSConfig enables TLS when non-nil.
	TLSConfig *tls.Config

	// MaxMessageSize is the maximum frame size (default: 64KB).
	MaxMessageSize uint32

	// ConnectTimeout is the dial timeout (default: 30s).
	ConnectTimeout time.Duration
}

// Dialer establishes realtime connections to the dashboard.
type Dialer struct {
	config DialerConfig
}

// NewDialer creates a dialer with the given configuration.
func NewDialer(config DialerConfig) *Dialer {
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	return &Dialer{config: config}
}

// Dial establishes a connection to the specified address.
func (d *Dialer) Dial(ctx context.Context, address string) (*Conn, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.ConnectTimeout)
		defer cancel()
	}

	dialer := &net.Dialer{}
	netConn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	if d.config.TLSConfig != nil {
		tlsConn := tls.Client(netConn, d.config.TLSConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			netConn.Close()
			return nil, fmt.Errorf("TLS handshake failed: %w", err)
		}
		netConn = tlsConn
	}

	return NewConn(netConn, d.config.MaxMessageSize), nil
}

// Conn is a framed duplex connection.
type Conn struct {
	conn   net.Conn
	framer *Framer

	closeCh   chan struct{}
	closeOnce sync.Once
	readMu    sync.Mutex
}

// NewConn wraps a net.Conn with length-prefix framing.
// Useful directly in tests with net.Pipe.
func NewConn(conn net.Conn, maxMessageSize uint32) *Conn {
	if maxMessageSize == 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	return &Conn{
		conn:    conn,
		framer:  NewFramerWithMaxSize(conn, maxMessageSize),
		closeCh: make(chan struct{}),
	}
}

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send writes one framed message.
// Thread-safe: the underlying frame writer serializes writers.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}
	return c.framer.WriteFrame(data)
}

// Receive reads one framed message, waiting at most timeout.
// A zero timeout blocks until a frame arrives or the peer closes.
func (c *Conn) Receive(timeout time.Duration) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	select {
	case <-c.closeCh:
		return nil, ErrConnectionClosed
	default:
	}

	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}

	return c.framer.ReadFrame()
}

// Close closes the connection. Safe to call multiple times; pending
// reads and writes are unblocked with an error.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}
