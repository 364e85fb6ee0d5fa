package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeConns(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	ca := NewConn(a, 0)
	cb := NewConn(b, 0)
	t.Cleanup(func() {
		ca.Close()
		cb.Close()
	})
	return ca, cb
}

func TestConnSendReceive(t *testing.T) {
	a, b := pipeConns(t)

	go func() {
		a.Send([]byte("over the wire"))
	}()

	got, err := b.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("over the wire"), got)
}

func TestConnReceiveTimeout(t *testing.T) {
	_, b := pipeConns(t)

	start := time.Now()
	_, err := b.Receive(30 * time.Millisecond)
	require.Error(t, err)

	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout(), "expected a timeout error, got %v", err)
	assert.Less(t, time.Since(start), time.Second, "Receive did not respect the timeout")
}

func TestConnClosedErrors(t *testing.T) {
	a, _ := pipeConns(t)
	require.NoError(t, a.Close())

	assert.True(t, a.Closed())
	assert.ErrorIs(t, a.Send([]byte("x")), ErrConnectionClosed)

	_, err := a.Receive(time.Second)
	assert.ErrorIs(t, err, ErrConnectionClosed)

	// Close is idempotent.
	assert.NoError(t, a.Close())
}

func TestConnCloseUnblocksReceive(t *testing.T) {
	a, _ := pipeConns(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := a.Receive(0)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	a.Close()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Receive was not unblocked by Close")
	}
}

func TestConnPeerCloseSurfacesError(t *testing.T) {
	a, b := pipeConns(t)
	a.Close()

	_, err := b.Receive(time.Second)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrConnectionClosed), "peer close should not look like local close")
}

func TestDialerDefaults(t *testing.T) {
	d := NewDialer(DialerConfig{})
	assert.EqualValues(t, DefaultMaxMessageSize, d.config.MaxMessageSize)
	assert.Equal(t, DefaultConnectTimeout, d.config.ConnectTimeout)
}

func TestDialerConnectsOverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	d := NewDialer(DialerConfig{})
	conn, err := d.Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	server := <-accepted
	defer server.Close()

	require.NoError(t, conn.Send([]byte("hello")))

	got, err := NewFrameReader(server).ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}
