// Package framed exchanges discrete messages over TCP using a small framing
// format: START, a 4-byte big-endian length, TEXT_START, the payload,
// END_TEXT and END_TRANS. Received bytes are collected in a Stream and
// frames are cut out of it as they complete, so fragmented reads, coalesced
// writes and stray garbage on the wire are all handled by resynchronizing on
// the next START byte.
//
// Buffers is the transport-independent core. Conn, Client, Server and Hub
// wire it to real TCP sockets.
package framed

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Errors returned by connection operations.
var (
	// ErrInvalidOnMessage is returned when no message handler is provided.
	ErrInvalidOnMessage = errors.New("invalid on message callback")
	// ErrMessageTooLarge is returned when a message exceeds the maximum allowed size.
	ErrMessageTooLarge = errors.New("message too large")
	// ErrBufferFull is returned when too many outbound bytes are waiting for
	// the socket. This indicates backpressure - the peer is not reading fast
	// enough.
	ErrBufferFull = errors.New("send buffer full")
)

// ErrConnectionClosed is returned when operating on a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// Conn runs one TCP connection: a read loop that fills the inbound stream and
// hands out decoded messages, and a write loop that drains the outbound
// stream whenever Write leaves bytes behind.
type Conn struct {
	id        uuid.UUID
	rawConn   *net.TCPConn
	transport *tcpTransport
	buffers   *Buffers
	logger    Logger

	opts options

	// writable wakes the write loop; it plays the role of the socket's
	// "ready to write" notification.
	writable chan struct{}
	closed   atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewConn creates a new connection wrapper around the given TCP connection.
// It applies the provided options and validates them before returning.
// Returns ErrInvalidOnMessage if no message handler is set.
func NewConn(conn *net.TCPConn, opt ...Option) (*Conn, error) {
	opts := newOptions(opt...)
	if opts.onMessage == nil {
		return nil, ErrInvalidOnMessage
	}

	return newConn(conn, NewBuffers(opts.codec, opts.metrics), opts), nil
}

// newConn attaches buffers to c. The caller must have reset them.
func newConn(c *net.TCPConn, buffers *Buffers, opts options) *Conn {
	return &Conn{
		id:        uuid.New(),
		rawConn:   c,
		transport: newTCPTransport(c, opts.writeTimeout),
		buffers:   buffers,
		logger:    opts.logger,
		opts:      opts,
		writable:  make(chan struct{}, 1),
	}
}

// Run starts the connection's read and write loops.
// It blocks until an error occurs or the context is canceled.
// The connection is automatically closed when Run returns.
func (c *Conn) Run(ctx context.Context) error {
	c.logger.Info("connection established", "id", c.id, "addr", c.Addr())
	c.logger.Debug("connection options", "id", c.id,
		"buffer_size", c.opts.bufferSize,
		"max_read_length", c.opts.maxReadLength,
		"heartbeat", c.opts.heartbeat,
		"write_timeout", c.opts.writeTimeout)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	if c.closed.Load() {
		// Close ran before the cancel func was published
		cancel()
	}

	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.readLoop(child)
	})

	group.Go(func() error {
		return c.writeLoop(child)
	})

	group.Go(func() error {
		// unblock a pending socket read once either loop is done
		<-child.Done()
		_ = c.rawConn.SetReadDeadline(time.Now())
		return nil
	})

	// bytes queued before Run have had no one to drain them
	c.notifyWritable()

	err := group.Wait()
	c.closeConn()

	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Info("connection closed with error", "id", c.id, "addr", c.Addr(), "error", err)
	} else {
		c.logger.Info("connection closed", "id", c.id, "addr", c.Addr())
	}

	return err
}

// Close gracefully closes the connection.
// It cancels the context and closes the underlying TCP connection.
// Safe to call multiple times.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil // already closed
	}
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return c.rawConn.Close()
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Write frames payload and queues it for sending. If nothing else is
// pending the frame goes straight to the socket; otherwise the write loop
// sends it once the earlier bytes are out.
//
// Returns:
//   - nil: the message was accepted (sent or queued)
//   - ErrMessageTooLarge: the payload exceeds MessageMaxSize
//   - ErrBufferFull: too many bytes are already waiting, message was NOT queued
//   - ErrConnectionClosed: connection is closed
func (c *Conn) Write(payload []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	if len(payload) > c.opts.maxReadLength {
		return ErrMessageTooLarge
	}

	if c.buffers.Pending()+len(payload)+FrameOverhead > c.opts.bufferSize {
		return ErrBufferFull
	}

	c.buffers.EnqueueSend(c.transport, payload)
	if c.buffers.Pending() > 0 {
		c.notifyWritable()
	}
	return nil
}

// TakeMessage returns the next buffered message, if any. It is meant for
// connections without an OnMessageOption handler.
func (c *Conn) TakeMessage() ([]byte, bool) {
	return c.buffers.TakeMessage()
}

// Pending returns the number of outbound bytes not yet written to the socket.
func (c *Conn) Pending() int {
	return c.buffers.Pending()
}

// ID returns the unique identifier of the connection.
func (c *Conn) ID() uuid.UUID {
	return c.id
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

func (c *Conn) notifyWritable() {
	select {
	case c.writable <- struct{}{}:
	default:
	}
}

// readLoop continuously reads from the connection and dispatches messages.
// Returns when the context is canceled or an unrecoverable error occurs.
func (c *Conn) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			_ = c.rawConn.SetReadDeadline(time.Now().Add(c.opts.heartbeat * 2))
			// the deadline above may have overwritten the one set on cancel
			if err := ctx.Err(); err != nil {
				return err
			}

			n, err := c.buffers.Fill(c.transport)
			if n > 0 {
				if derr := c.dispatch(); derr != nil {
					return derr
				}
			}

			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Debug("read error", "id", c.id, "error", err)
				if c.opts.onError(errors.Wrap(err, "receive")) == Disconnect {
					return err
				}
			}
		}
	}
}

// dispatch hands every complete message to the handler. Without a handler
// messages stay buffered for TakeMessage.
func (c *Conn) dispatch() error {
	if c.opts.onMessage == nil {
		return nil
	}

	for {
		payload, ok := c.buffers.TakeMessage()
		if !ok {
			break
		}
		if err := c.opts.onMessage(payload); err != nil {
			return err
		}
	}

	// whatever is left is at most one partial frame plus garbage
	if c.buffers.Buffered() > c.opts.maxReadLength+FrameOverhead {
		c.logger.Warn("inbound backlog exceeds max message size", "id", c.id,
			"buffered", c.buffers.Buffered())
		if c.opts.onError(ErrMessageTooLarge) == Disconnect {
			return ErrMessageTooLarge
		}
		c.buffers.ResetInbound()
	}
	return nil
}

// writeLoop drains the outbound stream each time it is signaled.
// Returns when the context is canceled or an unrecoverable error occurs.
func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.writable:
			if err := c.flush(ctx); err != nil {
				return err
			}
		}
	}
}

// flush drains until the outbound stream is empty. A drain that moves no
// bytes is either a write timeout, which is retried, or a socket error,
// which goes through onError. If onError says Continue, the write loop is
// signaled again for whatever is still pending.
func (c *Conn) flush(ctx context.Context) error {
	for c.buffers.Pending() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		sent := c.buffers.DrainSend(c.transport)
		if err := c.transport.takeErr(); err != nil {
			c.logger.Debug("write error", "id", c.id, "error", err)
			if c.opts.onError(err) == Disconnect {
				return err
			}
			// the remaining bytes still need a drain
			if c.buffers.Pending() > 0 {
				c.notifyWritable()
			}
			return nil
		}
		if !sent {
			c.logger.Debug("socket not writable, retrying", "id", c.id, "pending", c.buffers.Pending())
		}
	}
	return nil
}

// closeConn marks the connection as closed and closes the underlying TCP connection.
func (c *Conn) closeConn() {
	c.closed.Store(true)
	c.rawConn.Close()
}
