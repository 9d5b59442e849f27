package framed

import (
	"time"
)

// ErrorAction defines the action to take when an error occurs.
type ErrorAction int

const (
	// Disconnect closes the connection when an error occurs.
	Disconnect ErrorAction = iota
	// Continue suppresses the error and continues processing.
	Continue
)

// options holds the configuration for a connection.
type options struct {
	codec   Codec
	logger  Logger
	metrics *Metrics

	onMessage func(payload []byte) error
	// onError is called when an error occurs.
	// Returns Disconnect to close the connection, Continue to suppress the error.
	onError func(error) ErrorAction

	bufferSize    int           // maximum number of unsent outbound bytes
	maxReadLength int           // maximum size of a single message
	heartbeat     time.Duration // heartbeat interval for read deadlines
	writeTimeout  time.Duration // how long a single drain may wait on the socket
}

// Option is a function that configures connection options.
type Option func(*options)

// CustomCodecOption returns an Option that sets the message codec.
// If not set, a FrameCodec bounded by MessageMaxSize is used.
func CustomCodecOption(codec Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

// BufferSizeOption returns an Option that bounds the number of outbound bytes
// that may be waiting for the socket. Write fails with ErrBufferFull beyond it.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// HeartbeatOption returns an Option that sets the heartbeat interval.
// A connection that receives nothing for twice this long is timed out.
func HeartbeatOption(heartbeat time.Duration) Option {
	return func(o *options) {
		o.heartbeat = heartbeat
	}
}

// WriteTimeoutOption returns an Option that sets how long one drain may wait
// for the socket to accept bytes before yielding with a partial send.
func WriteTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = timeout
	}
}

// MessageMaxSize returns an Option that sets the maximum message payload size.
// Larger messages cannot be sent, and incoming frames claiming more are
// discarded.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.maxReadLength = size
	}
}

// OnErrorOption returns an Option that sets the error callback.
// The callback is invoked when a read/write error occurs.
// Return Disconnect to close the connection, or Continue to suppress the error.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// OnMessageOption returns an Option that sets the message handler callback.
// It is invoked from the read loop for each decoded payload. Without it,
// messages stay buffered until the application calls TakeMessage.
func OnMessageOption(cb func(payload []byte) error) Option {
	return func(o *options) {
		o.onMessage = cb
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// MetricsOption returns an Option that records connection activity in m.
func MetricsOption(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// Default configuration values.
const (
	// defaultBufferSize is the default bound on unsent outbound bytes (4MB).
	defaultBufferSize = 4 * 1024 * 1024
	// defaultMaxPackageLength is the default maximum size of a single message (1MB).
	defaultMaxPackageLength = 1024 * 1024
	// defaultHeartbeat is the default heartbeat interval.
	defaultHeartbeat = time.Second * 30
	// defaultWriteTimeout is the default time one drain may block.
	defaultWriteTimeout = time.Millisecond * 100
)

func newOptions(opt ...Option) options {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)
	return opts
}

// checkOptions sets default values for unset connection options.
func checkOptions(opts *options) {
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.maxReadLength <= 0 {
		opts.maxReadLength = defaultMaxPackageLength
	}

	if opts.heartbeat <= 0 {
		opts.heartbeat = defaultHeartbeat
	}

	if opts.writeTimeout <= 0 {
		opts.writeTimeout = defaultWriteTimeout
	}

	if opts.codec == nil {
		opts.codec = NewFrameCodec(opts.maxReadLength)
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}
}
