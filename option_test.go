package framed

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCustomCodecOption(t *testing.T) {
	codec := &FrameCodec{MaxPayload: 10}
	opt := CustomCodecOption(codec)

	var opts options
	opt(&opts)

	if opts.codec != codec {
		t.Error("codec not set correctly")
	}

	checkOptions(&opts)
	if opts.codec != codec {
		t.Error("checkOptions replaced a custom codec")
	}
}

func TestBufferSizeOption(t *testing.T) {
	opt := BufferSizeOption(100)

	var opts options
	opt(&opts)

	if opts.bufferSize != 100 {
		t.Errorf("bufferSize = %d, want 100", opts.bufferSize)
	}
}

func TestHeartbeatOption(t *testing.T) {
	heartbeat := time.Minute * 5
	opt := HeartbeatOption(heartbeat)

	var opts options
	opt(&opts)

	if opts.heartbeat != heartbeat {
		t.Errorf("heartbeat = %v, want %v", opts.heartbeat, heartbeat)
	}
}

func TestWriteTimeoutOption(t *testing.T) {
	opt := WriteTimeoutOption(time.Second)

	var opts options
	opt(&opts)

	if opts.writeTimeout != time.Second {
		t.Errorf("writeTimeout = %v, want %v", opts.writeTimeout, time.Second)
	}
}

func TestMessageMaxSize(t *testing.T) {
	opt := MessageMaxSize(4096)

	var opts options
	opt(&opts)

	if opts.maxReadLength != 4096 {
		t.Errorf("maxReadLength = %d, want 4096", opts.maxReadLength)
	}

	checkOptions(&opts)
	if fc := opts.codec.(*FrameCodec); fc.MaxPayload != 4096 {
		t.Errorf("codec MaxPayload = %d, want 4096", fc.MaxPayload)
	}
}

func TestOnErrorOption(t *testing.T) {
	called := false
	onError := func(err error) ErrorAction {
		called = true
		return Disconnect
	}
	opt := OnErrorOption(onError)

	var opts options
	opt(&opts)

	if opts.onError == nil {
		t.Fatal("onError is nil")
	}

	opts.onError(nil)
	if !called {
		t.Error("onError callback not called")
	}
}

func TestOnMessageOption(t *testing.T) {
	var got []byte
	onMessage := func(payload []byte) error {
		got = payload
		return nil
	}
	opt := OnMessageOption(onMessage)

	var opts options
	opt(&opts)

	if opts.onMessage == nil {
		t.Fatal("onMessage is nil")
	}

	opts.onMessage([]byte("x"))
	if string(got) != "x" {
		t.Error("onMessage callback not called")
	}
}

func TestLoggerOption(t *testing.T) {
	logger := &recordingLogger{}
	opt := LoggerOption(logger)

	var opts options
	opt(&opts)

	if opts.logger != logger {
		t.Error("logger not set correctly")
	}
}

func TestMetricsOption(t *testing.T) {
	m := NewMetrics(WithRegistry(prometheus.NewRegistry()))
	opt := MetricsOption(m)

	var opts options
	opt(&opts)

	if opts.metrics != m {
		t.Error("metrics not set correctly")
	}
}

func TestNewOptions_MultipleOptions(t *testing.T) {
	codec := &FrameCodec{}
	logger := &recordingLogger{}
	onMessage := func(payload []byte) error { return nil }
	onError := func(err error) ErrorAction { return Continue }
	heartbeat := time.Second * 45
	bufferSize := 50
	maxSize := 8192

	opts := newOptions(
		CustomCodecOption(codec),
		OnMessageOption(onMessage),
		OnErrorOption(onError),
		HeartbeatOption(heartbeat),
		BufferSizeOption(bufferSize),
		MessageMaxSize(maxSize),
		LoggerOption(logger),
	)

	if opts.codec != codec {
		t.Error("codec not set")
	}
	if opts.onMessage == nil {
		t.Error("onMessage not set")
	}
	if opts.onError(nil) != Continue {
		t.Error("onError not set")
	}
	if opts.heartbeat != heartbeat {
		t.Errorf("heartbeat = %v, want %v", opts.heartbeat, heartbeat)
	}
	if opts.bufferSize != bufferSize {
		t.Errorf("bufferSize = %d, want %d", opts.bufferSize, bufferSize)
	}
	if opts.maxReadLength != maxSize {
		t.Errorf("maxReadLength = %d, want %d", opts.maxReadLength, maxSize)
	}
	if opts.logger != logger {
		t.Error("logger not set")
	}
	if opts.writeTimeout != defaultWriteTimeout {
		t.Errorf("writeTimeout = %v, want default %v", opts.writeTimeout, defaultWriteTimeout)
	}
}

func TestErrorAction(t *testing.T) {
	if Disconnect != 0 {
		t.Errorf("Disconnect = %d, want 0", Disconnect)
	}
	if Continue != 1 {
		t.Errorf("Continue = %d, want 1", Continue)
	}
}
