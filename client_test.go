package framed

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
)

// startEchoServer runs a hub that echoes every message to its sender.
func startEchoServer(t *testing.T, opts ...Option) (*Server, *Hub) {
	t.Helper()

	server, err := Listen("127.0.0.1:0", ServerLoggerOption(NopLogger()))
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	opts = append([]Option{LoggerOption(NopLogger())}, opts...)
	hub, err := NewHub(ctx, func(conn *Conn, payload []byte) error {
		return conn.Write(payload)
	}, opts...)
	if err != nil {
		t.Fatalf("NewHub failed: %v", err)
	}

	go server.Serve(ctx, hub)

	t.Cleanup(func() {
		cancel()
		server.Close()
		hub.Wait()
	})
	return server, hub
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func takeMessage(t *testing.T, c *Client) []byte {
	t.Helper()

	var msg []byte
	waitFor(t, "message", func() bool {
		var ok bool
		msg, ok = c.TakeMessage()
		return ok
	})
	return msg
}

func TestClient_NotStarted(t *testing.T) {
	client := NewClient("127.0.0.1:1", LoggerOption(NopLogger()))

	if client.State() != StateNotStarted {
		t.Errorf("State = %v, want %v", client.State(), StateNotStarted)
	}
	if err := client.Send([]byte("x")); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if client.Disconnect() {
		t.Error("Disconnect returned true before Connect")
	}
	if err := client.Wait(context.Background()); err != nil {
		t.Errorf("Wait before Connect = %v", err)
	}
	if client.Addr() != "127.0.0.1:1" {
		t.Errorf("Addr = %q", client.Addr())
	}
}

func TestClient_SendAndTakeMessage(t *testing.T) {
	server, _ := startEchoServer(t)
	client := NewClient(server.Addr().String(), LoggerOption(NopLogger()))

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Disconnect()

	if client.State() != StateConnected {
		t.Fatalf("State = %v, want %v", client.State(), StateConnected)
	}

	for _, msg := range []string{"first", "second\x01\x02\x03\x04", ""} {
		if err := client.Send([]byte(msg)); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	for _, want := range []string{"first", "second\x01\x02\x03\x04", ""} {
		if got := takeMessage(t, client); string(got) != want {
			t.Errorf("reply = %q, want %q", got, want)
		}
	}
}

func TestClient_OnMessageHandler(t *testing.T) {
	server, _ := startEchoServer(t)

	received := make(chan []byte, 1)
	client := NewClient(server.Addr().String(),
		LoggerOption(NopLogger()),
		OnMessageOption(func(payload []byte) error {
			received <- payload
			return nil
		}),
	)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Disconnect()

	if err := client.Send([]byte("callback")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != "callback" {
			t.Errorf("received %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
	}
	if _, ok := client.TakeMessage(); ok {
		t.Error("handled message was also buffered")
	}
}

func TestClient_ConnectTwice(t *testing.T) {
	server, _ := startEchoServer(t)
	client := NewClient(server.Addr().String(), LoggerOption(NopLogger()))

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Disconnect()

	if err := client.Connect(context.Background()); err != ErrAlreadyConnected {
		t.Errorf("expected ErrAlreadyConnected, got %v", err)
	}
}

func TestClient_ConnectFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	client := NewClient(addr, LoggerOption(NopLogger()))
	if err := client.Connect(context.Background()); err == nil {
		t.Fatal("Connect to a closed port succeeded")
	}

	if client.State() != StateError {
		t.Errorf("State = %v, want %v", client.State(), StateError)
	}
	if client.LastError() == nil {
		t.Error("LastError is nil")
	}
	if client.Disconnect() {
		t.Error("Disconnect returned true without a connection")
	}
}

func TestClient_Disconnect(t *testing.T) {
	server, _ := startEchoServer(t)
	client := NewClient(server.Addr().String(), LoggerOption(NopLogger()))

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if !client.Disconnect() {
		t.Fatal("Disconnect returned false")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if client.State() != StateDisconnected {
		t.Errorf("State = %v, want %v", client.State(), StateDisconnected)
	}
	if client.LastError() != nil {
		t.Errorf("LastError = %v", client.LastError())
	}
	if client.Disconnect() {
		t.Error("second Disconnect returned true")
	}
	if err := client.Send([]byte("x")); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestClient_ReconnectResetsBuffers(t *testing.T) {
	server, _ := startEchoServer(t)
	client := NewClient(server.Addr().String(), LoggerOption(NopLogger()))

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	client.Disconnect()
	if err := client.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	// bytes left over from the old connection
	client.buffers.Ingest(frameBytes("stale"))
	client.buffers.EnqueueSend(&mockSender{err: errors.New("down")}, []byte("stale"))

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	defer client.Disconnect()

	if msg, ok := client.TakeMessage(); ok {
		t.Fatalf("stale message %q survived the reconnect", msg)
	}

	if err := client.Send([]byte("fresh")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got := takeMessage(t, client); string(got) != "fresh" {
		t.Errorf("reply = %q, want fresh", got)
	}
}

func TestClient_PeerCloseIsError(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	client := NewClient(listener.Addr().String(), LoggerOption(NopLogger()))
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	waitFor(t, "error state", func() bool { return client.State() == StateError })
	if !errors.Is(client.LastError(), io.EOF) {
		t.Errorf("LastError = %v, want EOF", client.LastError())
	}
	if client.Disconnect() {
		t.Error("Disconnect returned true after the peer closed")
	}
}
