package framed

import "sync"

// Sender is the outbound half of a transport. Send must not block waiting
// for the peer: it hands over as many bytes of p as the transport accepts
// right now and returns that count, which may be less than len(p).
type Sender interface {
	Send(p []byte) (int, error)
}

// Receiver is the inbound half of a transport.
type Receiver interface {
	// Available returns the number of bytes ready to be received, or 0
	// when the transport cannot tell.
	Available() int
	// Receive reads up to len(p) bytes into p.
	Receive(p []byte) (int, error)
}

// Transport is a full-duplex byte transport.
type Transport interface {
	Sender
	Receiver
}

// Default sizes for the per-connection streams.
const (
	defaultStreamCapacity = 4096
	defaultReceiveSize    = 4096
)

// Buffers holds the inbound and outbound streams of one connection. Each
// direction has its own lock, so a receive and a send never wait on each
// other. Buffers is safe for concurrent use.
type Buffers struct {
	codec   Codec
	metrics *Metrics

	inMu sync.Mutex
	in   *Stream

	fillMu  sync.Mutex
	scratch []byte // receive buffer for Fill, guarded by fillMu

	outMu sync.Mutex
	out   *Stream
}

// NewBuffers returns empty buffers framing messages with codec.
// A nil codec selects a FrameCodec without a payload bound; a nil metrics
// disables instrumentation.
func NewBuffers(codec Codec, metrics *Metrics) *Buffers {
	if codec == nil {
		codec = &FrameCodec{}
	}
	return &Buffers{
		codec:   codec,
		metrics: metrics,
		in:      NewStream(defaultStreamCapacity),
		out:     NewStream(defaultStreamCapacity),
	}
}

// EnqueueSend frames payload into the outbound stream. If nothing was
// pending before, it drains right away; otherwise a send is already in
// progress and the frame waits for the next DrainSend. It returns false only
// when the immediate drain was attempted and the transport took nothing.
func (b *Buffers) EnqueueSend(s Sender, payload []byte) bool {
	b.outMu.Lock()
	defer b.outMu.Unlock()

	idle := b.out.IsEmpty()
	b.codec.Encode(b.out, payload)
	b.metrics.frameSent()

	if !idle {
		return true
	}
	return b.drain(s)
}

// DrainSend pushes as many pending outbound bytes to s as it accepts and
// reports whether any were sent. A transport error or panic counts as
// nothing sent and leaves the pending bytes in place for a retry.
func (b *Buffers) DrainSend(s Sender) bool {
	b.outMu.Lock()
	defer b.outMu.Unlock()

	return b.drain(s)
}

// drain must be called with outMu held.
func (b *Buffers) drain(s Sender) bool {
	if b.out.IsEmpty() {
		return false
	}

	sent := safeSend(s, b.out.Bytes())
	if sent <= 0 {
		b.metrics.sendFailed()
		return false
	}
	if sent > b.out.Len() {
		sent = b.out.Len()
	}
	b.out.Consume(sent)
	b.metrics.bytesSent(sent)
	return true
}

// safeSend calls s.Send and folds errors and panics into a zero count.
func safeSend(s Sender, p []byte) (sent int) {
	defer func() {
		if recover() != nil {
			sent = 0
		}
	}()

	n, err := s.Send(p)
	if err != nil {
		return 0
	}
	return n
}

// Ingest appends bytes received from the transport to the inbound stream.
func (b *Buffers) Ingest(p []byte) {
	b.inMu.Lock()
	defer b.inMu.Unlock()

	_, _ = b.in.Write(p)
	b.metrics.bytesReceived(len(p))
}

// Fill receives whatever r has ready and ingests it. It reads at least
// once even when r cannot report how much is available, so it blocks for
// as long as r.Receive does. Concurrent Fill calls are serialized; the
// receive itself runs without the inbound lock so TakeMessage is never held
// up by a blocking read.
func (b *Buffers) Fill(r Receiver) (int, error) {
	b.fillMu.Lock()
	defer b.fillMu.Unlock()

	size := r.Available()
	if size <= 0 {
		size = defaultReceiveSize
	}
	if cap(b.scratch) < size {
		b.scratch = make([]byte, size)
	}
	scratch := b.scratch[:size]

	n, err := r.Receive(scratch)
	if n > 0 {
		b.Ingest(scratch[:n])
	}
	return n, err
}

// TakeMessage removes and returns the next complete message, if any.
func (b *Buffers) TakeMessage() ([]byte, bool) {
	b.inMu.Lock()
	defer b.inMu.Unlock()

	var (
		payload   []byte
		ok        bool
		discarded int
	)
	if fc, isFrame := b.codec.(*FrameCodec); isFrame {
		payload, ok, discarded = fc.decode(b.in)
	} else {
		payload, ok = b.codec.Decode(b.in)
	}

	b.metrics.bytesDiscarded(discarded)
	if ok {
		b.metrics.frameReceived()
	}
	return payload, ok
}

// Reset clears both streams. It must be called whenever the buffers are
// attached to a new transport so stale bytes never cross connections.
func (b *Buffers) Reset() {
	b.inMu.Lock()
	b.in.Clear()
	b.inMu.Unlock()

	b.outMu.Lock()
	b.out.Clear()
	b.outMu.Unlock()
}

// ResetInbound clears the inbound stream only.
func (b *Buffers) ResetInbound() {
	b.inMu.Lock()
	defer b.inMu.Unlock()

	b.in.Clear()
}

// Pending returns the number of outbound bytes not yet sent.
func (b *Buffers) Pending() int {
	b.outMu.Lock()
	defer b.outMu.Unlock()

	return b.out.Len()
}

// Buffered returns the number of inbound bytes not yet decoded.
func (b *Buffers) Buffered() int {
	b.inMu.Lock()
	defer b.inMu.Unlock()

	return b.in.Len()
}
