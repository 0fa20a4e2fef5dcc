package gsat

import "go.uber.org/atomic"

// Ring is a fixed capacity circular byte buffer that decouples the UART
// receiver from the response parser. It is safe for one producer (Push,
// Write) and one consumer (all other methods) running concurrently.
type Ring struct {
	buf     []byte
	mask    uint32
	head    atomic.Uint32 // read counter, advanced by the consumer
	tail    atomic.Uint32 // write counter, advanced by the producer
	dropped atomic.Uint64
}

// NewRing returns a ring buffer that can hold at least size bytes. The
// capacity is rounded up to a power of two.
func NewRing(size int) *Ring {
	if size <= 0 || size > 1<<30 {
		panic("gsat: bad ring size")
	}
	n := 1
	for n < size {
		n <<= 1
	}
	return &Ring{buf: make([]byte, n), mask: uint32(n - 1)}
}

// Cap returns the capacity of the buffer.
func (rb *Ring) Cap() int {
	return len(rb.buf)
}

// Len returns the number of bytes available for reading.
func (rb *Ring) Len() int {
	return int(rb.tail.Load() - rb.head.Load())
}

// Push appends c to the buffer. If the buffer is full c is dropped, the
// dropped counter is incremented and ErrBufferFull is returned.
func (rb *Ring) Push(c byte) error {
	t := rb.tail.Load()
	if int(t-rb.head.Load()) == len(rb.buf) {
		rb.dropped.Inc()
		return ErrBufferFull
	}
	rb.buf[t&rb.mask] = c
	rb.tail.Store(t + 1)
	return nil
}

// Write pushes as many bytes of p as fit into the buffer. The remaining bytes
// are counted as dropped and ErrBufferFull is returned.
func (rb *Ring) Write(p []byte) (int, error) {
	t := rb.tail.Load()
	free := len(rb.buf) - int(t-rb.head.Load())
	n := len(p)
	if n > free {
		n = free
	}
	for i := 0; i < n; i++ {
		rb.buf[(t+uint32(i))&rb.mask] = p[i]
	}
	rb.tail.Store(t + uint32(n))
	if n < len(p) {
		rb.dropped.Add(uint64(len(p) - n))
		return n, ErrBufferFull
	}
	return n, nil
}

// Pop removes and returns the oldest byte.
func (rb *Ring) Pop() (byte, error) {
	h := rb.head.Load()
	if h == rb.tail.Load() {
		return 0, ErrBufferEmpty
	}
	c := rb.buf[h&rb.mask]
	rb.head.Store(h + 1)
	return c, nil
}

// Peek returns the byte at offset off counting from the oldest one without
// removing it.
func (rb *Ring) Peek(off int) (byte, error) {
	h := rb.head.Load()
	if off < 0 || off >= int(rb.tail.Load()-h) {
		return 0, ErrBufferEmpty
	}
	return rb.buf[(h+uint32(off))&rb.mask], nil
}

// Index returns the offset of the first byte for which match returns true,
// starting the search at offset from, or -1.
func (rb *Ring) Index(from int, match func(c byte) bool) int {
	h := rb.head.Load()
	n := int(rb.tail.Load() - h)
	for i := from; i < n; i++ {
		if match(rb.buf[(h+uint32(i))&rb.mask]) {
			return i
		}
	}
	return -1
}

// Discard removes up to n oldest bytes and returns the number of removed ones.
func (rb *Ring) Discard(n int) int {
	h := rb.head.Load()
	if a := int(rb.tail.Load() - h); n > a {
		n = a
	}
	if n > 0 {
		rb.head.Store(h + uint32(n))
	}
	return n
}

// Drain moves up to len(p) oldest bytes into p.
func (rb *Ring) Drain(p []byte) int {
	h := rb.head.Load()
	n := int(rb.tail.Load() - h)
	if n > len(p) {
		n = len(p)
	}
	for i := 0; i < n; i++ {
		p[i] = rb.buf[(h+uint32(i))&rb.mask]
	}
	rb.head.Store(h + uint32(n))
	return n
}

// Dropped returns the number of bytes dropped because the buffer was full.
func (rb *Ring) Dropped() uint64 {
	return rb.dropped.Load()
}

// Reset discards the buffered data and clears the dropped counter. Bytes
// pushed concurrently with Reset may survive it.
func (rb *Ring) Reset() {
	rb.head.Store(rb.tail.Load())
	rb.dropped.Store(0)
}
