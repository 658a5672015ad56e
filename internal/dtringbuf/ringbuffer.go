// Package dtringbuf provides a fixed-size buffer of recent values.
package dtringbuf

import "sync"

// RingBuffer keeps the most recent values added to it, up to a fixed
// capacity. Adding to a full buffer overwrites, and returns, the oldest value.
type RingBuffer[T any] struct {
	mtx sync.Mutex
	buf []T // fully allocated at construction
	cur int // index for next write
	len int // count of actual values
}

// NewRingBuffer returns an empty ring buffer with the given capacity.
func NewRingBuffer[T any](cap int) *RingBuffer[T] {
	if cap < 0 {
		cap = 0
	}
	return &RingBuffer[T]{
		buf: make([]T, cap),
	}
}

// Add val to the buffer. If the buffer was full, the overwritten value is
// returned along with true.
func (rb *RingBuffer[T]) Add(val T) (dropped T, ok bool) {
	rb.mtx.Lock()
	defer rb.mtx.Unlock()

	// A zero capacity buffer drops everything immediately.
	if len(rb.buf) <= 0 {
		return val, true
	}

	if rb.len >= len(rb.buf) {
		dropped, ok = rb.buf[rb.cur], true
	}

	rb.buf[rb.cur] = val

	if rb.len < len(rb.buf) {
		rb.len += 1
	}

	rb.cur += 1
	if rb.cur >= len(rb.buf) {
		rb.cur -= len(rb.buf)
	}

	return dropped, ok
}

// Stats returns the newest and oldest values, and the number of values.
func (rb *RingBuffer[T]) Stats() (newest, oldest T, count int) {
	rb.mtx.Lock()
	defer rb.mtx.Unlock()

	if rb.len == 0 {
		var zero T
		return zero, zero, 0
	}

	// The newest value is just before the write cursor.
	headidx := rb.cur - 1
	if headidx < 0 {
		headidx += len(rb.buf)
	}

	// The oldest value is len-1 values back from the newest.
	tailidx := headidx - rb.len + 1
	if tailidx < 0 {
		tailidx += len(rb.buf)
	}

	return rb.buf[headidx], rb.buf[tailidx], rb.len
}

// Cap returns the capacity of the buffer.
func (rb *RingBuffer[T]) Cap() int {
	rb.mtx.Lock()
	defer rb.mtx.Unlock()
	return len(rb.buf)
}
