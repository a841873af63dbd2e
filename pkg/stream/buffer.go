// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright (c) 2025 Andromem

package stream

import "sync/atomic"

// Buffer is a single-producer single-consumer circular byte buffer with a
// power-of-two capacity. The producer side alone advances head, the
// consumer side alone advances tail; both indices wrap via bitmask.
// One slot is sacrificed to distinguish full from empty, so a Buffer of
// capacity N holds at most N-1 bytes.
type Buffer struct {
	data []byte
	mask uint32
	head atomic.Uint32
	tail atomic.Uint32
}

// NewBuffer creates a Buffer. Capacity must be a power of two; anything
// else is rounded up to the next power of two.
func NewBuffer(capacity int) *Buffer {
	if capacity < 2 {
		capacity = 2
	}
	n := 1
	for n < capacity {
		n <<= 1
	}
	return &Buffer{
		data: make([]byte, n),
		mask: uint32(n - 1),
	}
}

// Cap returns the buffer capacity in slots.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Len returns the number of buffered bytes, computed as the modular
// distance between head and tail.
func (b *Buffer) Len() int {
	head, tail := b.head.Load(), b.tail.Load()
	return int((head - tail) & b.mask)
}

// Free returns the number of bytes that can still be queued.
func (b *Buffer) Free() int {
	return len(b.data) - 1 - b.Len()
}

// Put queues one byte. It returns false, leaving the buffer untouched,
// when advancing head would collide with tail.
func (b *Buffer) Put(c byte) bool {
	head := b.head.Load()
	next := (head + 1) & b.mask
	if next == b.tail.Load() {
		return false
	}
	b.data[head] = c
	b.head.Store(next)
	return true
}

// Get dequeues one byte, reporting false when the buffer is empty.
func (b *Buffer) Get() (byte, bool) {
	tail := b.tail.Load()
	if tail == b.head.Load() {
		return 0, false
	}
	c := b.data[tail]
	b.tail.Store((tail + 1) & b.mask)
	return c, true
}

// Peek returns the next byte without consuming it.
func (b *Buffer) Peek() (byte, bool) {
	tail := b.tail.Load()
	if tail == b.head.Load() {
		return 0, false
	}
	return b.data[tail], true
}

// Flush discards all buffered bytes. Only safe to call from the consumer
// side: it moves tail up to head.
func (b *Buffer) Flush() {
	b.tail.Store(b.head.Load())
}

// Reset empties the buffer and rewinds both indices. Unlike Flush it may
// only be used while no other context touches the buffer.
func (b *Buffer) Reset() {
	b.head.Store(0)
	b.tail.Store(0)
}
