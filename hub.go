package framed

import (
	"context"
	"net"
	"sync"

	"github.com/google/uuid"
)

// HubMessageHandler is called for every message a hub connection receives.
type HubMessageHandler func(conn *Conn, payload []byte) error

// Hub is a Handler that runs every accepted connection as a Conn and keeps
// track of the live ones, so a server can count, look up and broadcast to
// its clients.
type Hub struct {
	ctx       context.Context
	opts      []Option
	onMessage HubMessageHandler
	metrics   *Metrics
	logger    Logger

	mu      sync.RWMutex
	conns   map[uuid.UUID]*Conn
	stopped bool // set by Wait; later connections are refused
	wg      sync.WaitGroup
}

// NewHub returns a hub whose connections live until ctx is canceled or they
// fail. opts are applied to every Conn; onMessage is required.
func NewHub(ctx context.Context, onMessage HubMessageHandler, opts ...Option) (*Hub, error) {
	if onMessage == nil {
		return nil, ErrInvalidOnMessage
	}
	if ctx == nil {
		ctx = context.Background()
	}

	resolved := newOptions(opts...)
	return &Hub{
		ctx:       ctx,
		opts:      opts,
		onMessage: onMessage,
		metrics:   resolved.metrics,
		logger:    resolved.logger,
		conns:     make(map[uuid.UUID]*Conn),
	}, nil
}

// Handle implements Handler. It blocks until the connection ends.
// Connections handed over after the hub's context is done or Wait has been
// called are closed right away.
func (h *Hub) Handle(raw *net.TCPConn) {
	if !h.enter() {
		h.logger.Debug("hub stopped, refusing connection", "addr", raw.RemoteAddr())
		raw.Close()
		return
	}
	defer h.wg.Done()

	var conn *Conn
	opts := append(h.opts[:len(h.opts):len(h.opts)], OnMessageOption(func(payload []byte) error {
		return h.onMessage(conn, payload)
	}))

	conn, err := NewConn(raw, opts...)
	if err != nil {
		h.logger.Error("create connection", "addr", raw.RemoteAddr(), "error", err)
		raw.Close()
		return
	}

	h.add(conn)
	defer h.remove(conn)

	_ = conn.Run(h.ctx)
}

// enter counts a connection in wg unless the hub is stopping. The check and
// the Add happen under mu so Wait never starts while an Add is in flight.
func (h *Hub) enter() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped || h.ctx.Err() != nil {
		return false
	}
	h.wg.Add(1)
	return true
}

func (h *Hub) add(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.logger.Debug("add conn", "id", conn.ID(), "addr", conn.Addr())
	h.conns[conn.ID()] = conn
	h.metrics.connectionOpened()
}

func (h *Hub) remove(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[conn.ID()]; ok {
		delete(h.conns, conn.ID())
		h.metrics.connectionClosed()
	}
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.conns)
}

// Get returns the connection with the given id.
func (h *Hub) Get(id uuid.UUID) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conn, ok := h.conns[id]
	return conn, ok
}

// ByIP returns a connection whose remote IP equals ip.
func (h *Hub) ByIP(ip string) (*Conn, bool) {
	want := net.ParseIP(ip)
	if want == nil {
		return nil, false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.conns {
		addr, ok := conn.Addr().(*net.TCPAddr)
		if ok && addr.IP.Equal(want) {
			return conn, true
		}
	}
	return nil, false
}

// Each calls fn for every live connection until fn returns false.
func (h *Hub) Each(fn func(conn *Conn) bool) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if !fn(conn) {
			return
		}
	}
}

// Broadcast writes payload to every live connection and returns how many
// accepted it.
func (h *Hub) Broadcast(payload []byte) int {
	sent := 0
	h.Each(func(conn *Conn) bool {
		if err := conn.Write(payload); err != nil {
			h.logger.Debug("broadcast skipped", "id", conn.ID(), "error", err)
			return true
		}
		sent++
		return true
	})
	return sent
}

// Wait blocks until every connection handed to the hub has finished. The
// hub accepts no connections after Wait is called.
func (h *Hub) Wait() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()

	h.wg.Wait()
}
