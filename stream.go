package framed

import (
	"bytes"
	"io"
)

// NotFound is returned by the Stream search methods when there is no match.
const NotFound = -1

// Stream is a growable byte buffer that is appended at the back and consumed
// from the front. Unlike bytes.Buffer it keeps the valid region anchored at
// offset 0, so offsets returned by the search methods stay meaningful until
// the next mutation and can be fed back into ConsumeUntil or ReadUntil.
//
// Stream is not safe for concurrent use; Buffers adds the locking.
type Stream struct {
	buf []byte // len(buf) is the capacity, buf[end:] is stale
	end int
}

// NewStream returns an empty stream with room for capacity bytes.
func NewStream(capacity int) *Stream {
	if capacity < 0 {
		capacity = 0
	}
	return &Stream{buf: make([]byte, capacity)}
}

// Len returns the number of valid bytes.
func (s *Stream) Len() int { return s.end }

// Cap returns the size of the backing store.
func (s *Stream) Cap() int { return len(s.buf) }

// IsEmpty reports whether the stream holds no valid bytes.
func (s *Stream) IsEmpty() bool { return s.end == 0 }

// Bytes returns the valid region. The slice aliases the stream and is only
// valid until the next call that mutates it.
func (s *Stream) Bytes() []byte { return s.buf[:s.end] }

// Clear drops all valid bytes. The capacity is retained.
func (s *Stream) Clear() { s.end = 0 }

// grow makes room for n more bytes, preserving the valid region.
func (s *Stream) grow(n int) {
	required := s.end + n
	if required <= len(s.buf) {
		return
	}
	size := 2 * len(s.buf)
	if size < required {
		size = required
	}
	buf := make([]byte, size)
	copy(buf, s.buf[:s.end])
	s.buf = buf
}

// Write appends p to the stream. It always consumes all of p and the returned
// error is always nil; it exists to satisfy io.Writer.
func (s *Stream) Write(p []byte) (int, error) {
	s.grow(len(p))
	copy(s.buf[s.end:], p)
	s.end += len(p)
	return len(p), nil
}

// WriteByte appends a single byte. The error is always nil.
func (s *Stream) WriteByte(b byte) error {
	s.grow(1)
	s.buf[s.end] = b
	s.end++
	return nil
}

// CopyOut copies up to len(p) bytes from the front of the stream into p
// without consuming them and returns the number of bytes copied.
func (s *Stream) CopyOut(p []byte) int {
	return copy(p, s.buf[:s.end])
}

// Consume removes up to n bytes from the front and returns how many were
// removed. The remaining bytes are moved down to offset 0; copy handles the
// overlapping ranges, and the backing store is never reallocated.
func (s *Stream) Consume(n int) int {
	if n <= 0 {
		return 0
	}
	if n >= s.end {
		n = s.end
		s.Clear()
		return n
	}
	copy(s.buf, s.buf[n:s.end])
	s.end -= n
	return n
}

// Read copies up to len(p) bytes from the front of the stream into p and
// consumes them. It returns io.EOF only when the stream is empty and p is not.
func (s *Stream) Read(p []byte) (int, error) {
	if s.end == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	return s.Consume(s.CopyOut(p)), nil
}

// ConsumeUntil removes the bytes in front of offset pos. A negative pos
// removes nothing; a pos at or past Len empties the stream.
func (s *Stream) ConsumeUntil(pos int) int {
	if pos < 0 {
		return 0
	}
	return s.Consume(pos)
}

// ReadUntil reads the bytes in front of offset pos into p, clamped like
// ConsumeUntil. p must be large enough to hold them; bytes that do not fit
// stay in the stream.
func (s *Stream) ReadUntil(p []byte, pos int) int {
	if pos < 0 {
		return 0
	}
	if pos > s.end {
		pos = s.end
	}
	if pos < len(p) {
		p = p[:pos]
	}
	n, _ := s.Read(p)
	return n
}

// IndexByte returns the offset of the first b at or after from, or NotFound.
func (s *Stream) IndexByte(b byte, from int) int {
	if from < 0 {
		from = 0
	}
	if from >= s.end {
		return NotFound
	}
	i := bytes.IndexByte(s.buf[from:s.end], b)
	if i < 0 {
		return NotFound
	}
	return from + i
}

// Index returns the offset of the first occurrence of needle at or after
// from, or NotFound. A needle that would extend past Len is not a match,
// even if its prefix is present at the tail of the stream.
func (s *Stream) Index(needle []byte, from int) int {
	if from < 0 {
		from = 0
	}
	if from > s.end {
		return NotFound
	}
	i := bytes.Index(s.buf[from:s.end], needle)
	if i < 0 {
		return NotFound
	}
	return from + i
}
