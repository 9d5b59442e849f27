package framed

import "encoding/binary"

// Sentinel bytes that delimit a frame on the wire:
//
//	+-------+-------------+------------+---------+----------+-----------+
//	| START | Length (BE) | TEXT_START | Payload | END_TEXT | END_TRANS |
//	+-------+-------------+------------+---------+----------+-----------+
//	|  1B   |     4B      |     1B     |   var   |    1B    |    1B     |
//
// The payload may contain any of the sentinel values; only the bytes at the
// offsets derived from the length field are checked.
const (
	Start     byte = 0x01
	TextStart byte = 0x02
	EndText   byte = 0x03
	EndTrans  byte = 0x04
)

// Frame field sizes in bytes.
const (
	LengthSize    = 4
	HeaderSize    = 1 + LengthSize + 1 // START, length, TEXT_START
	TrailerSize   = 2                  // END_TEXT, END_TRANS
	FrameOverhead = HeaderSize + TrailerSize
)

// byteOrder of the length field. The field is fixed to network order so
// peers on different architectures agree.
var byteOrder = binary.BigEndian

// FrameCodec encodes and decodes length-prefixed, sentinel-delimited frames.
// The zero value is ready to use and accepts payloads of any size.
type FrameCodec struct {
	// MaxPayload bounds the declared length of incoming frames. A frame
	// claiming more is treated as a false start. Zero means no bound.
	MaxPayload int
}

// NewFrameCodec returns a codec that rejects frames above maxPayload bytes.
func NewFrameCodec(maxPayload int) *FrameCodec {
	return &FrameCodec{MaxPayload: maxPayload}
}

// Encode appends one frame carrying payload to s.
func (c *FrameCodec) Encode(s *Stream, payload []byte) {
	var header [HeaderSize]byte
	header[0] = Start
	byteOrder.PutUint32(header[1:HeaderSize-1], uint32(len(payload)))
	header[HeaderSize-1] = TextStart

	s.grow(len(payload) + FrameOverhead)
	_, _ = s.Write(header[:])
	_, _ = s.Write(payload)
	_ = s.WriteByte(EndText)
	_ = s.WriteByte(EndTrans)
}

// Decode extracts the first complete frame in s and consumes it along with
// any garbage in front of it. It reports false when no complete frame is
// buffered yet; the bytes from the pending START onwards are then kept so a
// later call can finish the frame.
func (c *FrameCodec) Decode(s *Stream) ([]byte, bool) {
	payload, ok, _ := c.decode(s)
	return payload, ok
}

// decode is Decode that also returns the number of bytes thrown away as
// false starts.
func (c *FrameCodec) decode(s *Stream) (payload []byte, ok bool, discarded int) {
	for {
		start := s.IndexByte(Start, 0)
		if start == NotFound {
			return nil, false, discarded
		}

		data := s.Bytes()[start:]
		if len(data) < HeaderSize {
			// TEXT_START position not buffered yet
			return nil, false, discarded
		}
		if data[HeaderSize-1] != TextStart {
			discarded += s.ConsumeUntil(start + 1)
			continue
		}

		length := byteOrder.Uint32(data[1 : HeaderSize-1])
		if c.MaxPayload > 0 && uint64(length) > uint64(c.MaxPayload) {
			discarded += s.ConsumeUntil(start + 1)
			continue
		}

		total := uint64(length) + FrameOverhead
		if uint64(len(data)) < total {
			return nil, false, discarded
		}

		end := HeaderSize + int(length)
		if data[end] != EndText || data[end+1] != EndTrans {
			discarded += s.ConsumeUntil(start + 1)
			continue
		}

		payload = make([]byte, length)
		copy(payload, data[HeaderSize:end])
		discarded += start
		s.ConsumeUntil(start + int(total))
		return payload, true, discarded
	}
}
