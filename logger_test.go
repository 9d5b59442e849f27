package framed

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"testing"
)

func TestLogger_Interface(t *testing.T) {
	var _ Logger = slog.Default()
}

func TestDefaultLogger(t *testing.T) {
	if logger := defaultLogger(); logger != slog.Default() {
		t.Error("defaultLogger did not return slog.Default()")
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()

	logger.Debug("debug message", "key", "value")
	logger.Info("info message")
	logger.Warn("warn message", "odd")
	logger.Error("error message", "key", 1, "other", nil)
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

// recordingLogger keeps every entry logged through it.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) log(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.log("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.log("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.log("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.log("error", msg, args) }

// find returns the first entry with msg.
func (l *recordingLogger) find(msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range l.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

// arg returns the value logged under key.
func (e logEntry) arg(key string) (any, bool) {
	for i := 0; i+1 < len(e.args); i += 2 {
		if e.args[i] == key {
			return e.args[i+1], true
		}
	}
	return nil, false
}

func TestConn_LogsLifecycle(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	logger := &recordingLogger{}
	conn, err := NewConn(serverConn, OnMessageOption(noopOnMessage), LoggerOption(logger))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = conn.Run(ctx)

	established, ok := logger.find("connection established")
	if !ok {
		t.Fatal("no \"connection established\" entry")
	}
	if established.level != "info" {
		t.Errorf("level = %s, want info", established.level)
	}
	if id, _ := established.arg("id"); id != conn.ID() {
		t.Errorf("id = %v, want %v", id, conn.ID())
	}
	if addr, _ := established.arg("addr"); addr.(net.Addr).String() != clientConn.LocalAddr().String() {
		t.Errorf("addr = %v, want %v", addr, clientConn.LocalAddr())
	}

	if _, ok := logger.find("connection options"); !ok {
		t.Error("no \"connection options\" entry")
	}
	closed, ok := logger.find("connection closed")
	if !ok {
		t.Fatal("no \"connection closed\" entry")
	}
	if id, _ := closed.arg("id"); id != conn.ID() {
		t.Errorf("closed id = %v, want %v", id, conn.ID())
	}
}

func TestClient_LogsConnectFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	logger := &recordingLogger{}
	client := NewClient(addr, LoggerOption(logger))
	if err := client.Connect(context.Background()); err == nil {
		t.Fatal("Connect to a closed port succeeded")
	}

	entry, ok := logger.find("connect failed")
	if !ok {
		t.Fatal("no \"connect failed\" entry")
	}
	if entry.level != "warn" {
		t.Errorf("level = %s, want warn", entry.level)
	}
	if got, _ := entry.arg("addr"); got != addr {
		t.Errorf("addr = %v, want %s", got, addr)
	}
	if got, _ := entry.arg("error"); got != client.LastError() {
		t.Errorf("error = %v, want %v", got, client.LastError())
	}
}
