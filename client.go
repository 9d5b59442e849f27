package framed

import (
	"context"
	"net"
	"sync"

	"github.com/pkg/errors"
)

// Errors returned by Client operations.
var (
	// ErrAlreadyConnected is returned by Connect while a connection is being
	// established or is up.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrNotConnected is returned by Send when the client is not connected.
	ErrNotConnected = errors.New("not connected")
)

// Client is a reconnectable TCP client. The same Buffers are reused across
// connections and reset each time a new socket is created, so bytes from an
// old connection are never delivered on a new one.
//
// Messages are delivered to the OnMessageOption handler if one is set;
// otherwise they are buffered for TakeMessage.
type Client struct {
	addr    string
	dialer  net.Dialer
	opts    options
	buffers *Buffers

	mu      sync.Mutex
	state   State
	lastErr error
	conn    *Conn
	done    chan struct{} // closed when the current connection's loops exit
}

// NewClient returns a client for the given "host:port" address. Nothing is
// dialed until Connect.
func NewClient(addr string, opt ...Option) *Client {
	opts := newOptions(opt...)
	return &Client{
		addr:    addr,
		opts:    opts,
		buffers: NewBuffers(opts.codec, opts.metrics),
		state:   StateNotStarted,
	}
}

// Connect dials the server and starts the connection loops in the
// background; they stop when ctx is canceled or Disconnect is called.
// It returns ErrAlreadyConnected if a connection is up or being set up.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state.busy() {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateWaiting
	c.lastErr = nil
	c.conn = nil
	prev := c.done
	c.done = nil
	c.mu.Unlock()

	// the previous connection shares the buffers; let its loops finish
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			c.fail(ctx.Err())
			return ctx.Err()
		}
	}
	c.buffers.Reset()

	c.opts.logger.Debug("dialing", "addr", c.addr)
	raw, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		err = errors.Wrapf(err, "dial %s", c.addr)
		c.fail(err)
		return err
	}

	tcpConn, ok := raw.(*net.TCPConn)
	if !ok {
		raw.Close()
		err = errors.Errorf("dial %s: not a TCP connection", c.addr)
		c.fail(err)
		return err
	}
	_ = tcpConn.SetNoDelay(true)

	conn := newConn(tcpConn, c.buffers, c.opts)
	done := make(chan struct{})

	c.mu.Lock()
	if c.state != StateWaiting {
		// Disconnect raced with the dial
		c.state = StateDisconnected
		c.mu.Unlock()
		tcpConn.Close()
		return ErrConnectionClosed
	}
	c.conn = conn
	c.done = done
	c.state = StateConnected
	c.mu.Unlock()

	go c.run(ctx, conn, done)
	return nil
}

func (c *Client) run(ctx context.Context, conn *Conn, done chan struct{}) {
	defer close(done)

	err := conn.Run(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != conn {
		return
	}
	switch {
	case c.state == StateClosing, err == nil, errors.Is(err, context.Canceled):
		c.state = StateDisconnected
	default:
		c.state = StateError
		c.lastErr = err
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.opts.logger.Warn("connect failed", "addr", c.addr, "error", err)
	c.state = StateError
	c.lastErr = err
}

// Disconnect closes the current connection. It returns false if there is
// nothing to close.
func (c *Client) Disconnect() bool {
	c.mu.Lock()
	switch c.state {
	case StateNotStarted, StateClosing, StateDisconnected:
		c.mu.Unlock()
		return false
	}

	conn := c.conn
	if conn == nil {
		if c.state != StateWaiting {
			c.mu.Unlock()
			return false
		}
		// Connect notices this once the dial returns
		c.state = StateClosing
		c.mu.Unlock()
		return true
	}
	if c.state == StateError && conn.IsClosed() {
		c.mu.Unlock()
		return false
	}
	c.state = StateClosing
	c.mu.Unlock()

	if err := conn.Close(); err != nil {
		c.mu.Lock()
		c.state = StateError
		c.lastErr = errors.Wrap(err, "close")
		c.mu.Unlock()
		return false
	}
	return true
}

// Wait blocks until the current connection's loops have exited or ctx is
// done.
func (c *Client) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send frames and queues payload. It fails with ErrNotConnected unless the
// client is connected.
func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()

	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}
	return conn.Write(payload)
}

// TakeMessage returns the next buffered message, if any.
func (c *Client) TakeMessage() ([]byte, bool) {
	return c.buffers.TakeMessage()
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// LastError returns the error that put the client in StateError, if any.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastErr
}

// Addr returns the address the client dials.
func (c *Client) Addr() string {
	return c.addr
}

// Pending returns the number of outbound bytes not yet written to the socket.
func (c *Client) Pending() int {
	return c.buffers.Pending()
}
