package framed

// Codec is the interface for message framing on top of a Stream.
// FrameCodec is the default; applications may plug their own framing as long
// as it follows the same contract.
type Codec interface {
	// Encode appends one framed payload to s. It cannot fail.
	Encode(s *Stream, payload []byte)
	// Decode removes and returns the first complete message in s.
	// It reports false when no complete message is buffered; in that case
	// any bytes that may still become part of a message must stay in s.
	Decode(s *Stream) ([]byte, bool)
}

var _ Codec = (*FrameCodec)(nil)
