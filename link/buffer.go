package link

import "fmt"

// Buffer is a fixed-capacity receive queue. Valid bytes always start at
// offset 0; consuming bytes compacts the remainder to the front, so the head
// of the stream is always Bytes()[0].
//
// A Buffer never grows. Operations that would step outside the live or free
// region return ErrOutOfRange and leave the buffer unchanged.
type Buffer struct {
	data   []byte
	length int
}

// NewBuffer allocates a Buffer holding at most capacity bytes.
func NewBuffer(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{data: make([]byte, capacity)}
}

// Len returns the number of valid bytes.
func (b *Buffer) Len() int { return b.length }

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Free returns the number of bytes that can still be committed.
func (b *Buffer) Free() int { return len(b.data) - b.length }

// Has reports whether at least n bytes are buffered.
func (b *Buffer) Has(n int) bool { return b.length >= n }

// Bytes returns the live region. The slice aliases the buffer and is only
// valid until the next Consume, Commit, Append or Reset.
func (b *Buffer) Bytes() []byte { return b.data[:b.length:b.length] }

// Tail returns the free region. Callers write received bytes here and then
// declare them with Commit.
func (b *Buffer) Tail() []byte { return b.data[b.length:] }

// Commit declares that n bytes were written at the start of Tail.
func (b *Buffer) Commit(n int) error {
	if n < 0 || n > b.Free() {
		return fmt.Errorf("%w: commit %d bytes with %d free", ErrOutOfRange, n, b.Free())
	}
	b.length += n
	return nil
}

// Append copies p to the end of the live region.
func (b *Buffer) Append(p []byte) error {
	if len(p) > b.Free() {
		return fmt.Errorf("%w: append %d bytes with %d free", ErrOutOfRange, len(p), b.Free())
	}
	b.length += copy(b.data[b.length:], p)
	return nil
}

// At returns the byte at pos within the live region.
func (b *Buffer) At(pos int) (byte, error) {
	if pos < 0 || pos >= b.length {
		return 0, fmt.Errorf("%w: position %d with %d buffered", ErrOutOfRange, pos, b.length)
	}
	return b.data[pos], nil
}

// Consume drops the first k bytes and moves the rest to the front.
func (b *Buffer) Consume(k int) error {
	if k < 0 || k > b.length {
		return fmt.Errorf("%w: consume %d bytes with %d buffered", ErrOutOfRange, k, b.length)
	}
	copy(b.data, b.data[k:b.length])
	b.length -= k
	return nil
}

// Reset empties the buffer without releasing its storage.
func (b *Buffer) Reset() {
	b.length = 0
}
