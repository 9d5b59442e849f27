package framed

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// tcpTransport adapts a *net.TCPConn to Transport. Send gives up after
// writeTimeout and reports whatever the socket accepted, which turns the
// blocking socket write into the non-blocking send Buffers expects.
type tcpTransport struct {
	conn         *net.TCPConn
	writeTimeout time.Duration

	mu  sync.Mutex
	err error // first non-timeout write error
}

func newTCPTransport(conn *net.TCPConn, writeTimeout time.Duration) *tcpTransport {
	return &tcpTransport{conn: conn, writeTimeout: writeTimeout}
}

// Send implements Sender.
func (t *tcpTransport) Send(p []byte) (int, error) {
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))

	n, err := t.conn.Write(p)
	if err == nil || isTimeout(err) {
		return n, nil
	}

	t.setErr(err)
	if n > 0 {
		// these bytes left the process; report them so they are not resent
		return n, nil
	}
	return 0, err
}

// Available implements Receiver. The socket does not expose its receive
// queue length, so it always returns 0.
func (t *tcpTransport) Available() int { return 0 }

// Receive implements Receiver.
func (t *tcpTransport) Receive(p []byte) (int, error) {
	return t.conn.Read(p)
}

func (t *tcpTransport) setErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.err == nil {
		t.err = errors.Wrap(err, "send")
	}
}

// takeErr returns and clears the recorded write error.
func (t *tcpTransport) takeErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.err
	t.err = nil
	return err
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
