// SPDX-License-Identifier: GPL-3.0-or-later
// Copyright (c) 2025 Andromem

// Package stream implements the interrupt-driven serial transport of the
// grblHAL core: fixed-capacity circular transmit and receive buffers, a
// service routine that drains and fills them against the hardware channel,
// and in-band interception of the tool-acknowledge control byte.
//
// Two execution contexts cooperate on a Stream. The interrupt context
// (ServiceInterrupt) produces into the receive buffer and consumes from the
// transmit buffer; the mainline context does the opposite. Neither side
// ever blocks the other.
package stream

import (
	"sync/atomic"

	"github.com/Andromem/grblHAL/pkg/grbl"
)

// Default buffer capacities, in slots.
const (
	DefaultTxSize = 128
	DefaultRxSize = 1024
)

// Port is the byte-channel peripheral the stream is layered on. It exposes
// ready/empty status, single-byte data registers and control over the
// transmit-ready interrupt source. Exactly one byte moves per direction per
// ServiceInterrupt invocation.
type Port interface {
	// RxReady reports whether a received byte is waiting.
	RxReady() bool
	// ReadByte pops the received byte from the hardware register.
	ReadByte() byte
	// TxReady reports whether the transmit-ready condition is raised.
	TxReady() bool
	// TxEmpty reports whether the transmit register is idle.
	TxEmpty() bool
	// WriteByte pushes one byte into the transmit register.
	WriteByte(c byte)
	// SetTxInterrupt enables or disables the transmit-ready interrupt.
	SetTxInterrupt(on bool)
	// TxInterruptEnabled reports whether the transmit-ready interrupt is armed.
	TxInterruptEnabled() bool
	// ErrorPending reports an overrun or framing error condition.
	ErrorPending() bool
	// ClearErrors acknowledges pending error conditions.
	ClearErrors()
}

// Stream multiplexes normal buffered serial I/O with the real-time command
// side channel. The zero value is not usable; use New.
type Stream struct {
	port Port
	tx   *Buffer

	// rx is the active receive buffer; rxSpare is the inactive slot of the
	// two-slot backup scheme. Ownership of rxSpare transfers with hasBackup:
	// the interrupt context writes it while hasBackup is false, the mainline
	// reclaims it once hasBackup is true.
	rx        atomic.Pointer[Buffer]
	rxSpare   *Buffer
	hasBackup atomic.Bool

	suspended atomic.Bool
	overflow  atomic.Bool

	// EnqueueRealtimeCommand classifies and consumes real-time command
	// bytes. When it returns true the byte has been dispatched and is never
	// queued. Nil means no byte is treated as real-time.
	EnqueueRealtimeCommand func(c byte) bool

	// BlockingCallback is polled while a write waits for transmit buffer
	// space. Returning false abandons the write. Nil means writes to a full
	// buffer fail immediately.
	BlockingCallback func() bool
}

// New creates a Stream over the given port with the given buffer
// capacities. Capacities are rounded up to powers of two.
func New(port Port, txSize, rxSize int) *Stream {
	s := &Stream{
		port:    port,
		tx:      NewBuffer(txSize),
		rxSpare: NewBuffer(rxSize),
	}
	s.rx.Store(NewBuffer(rxSize))
	return s
}

// TxCount returns the number of bytes queued for transmission.
func (s *Stream) TxCount() int {
	return s.tx.Len()
}

// RxCount returns the number of received bytes waiting to be read.
func (s *Stream) RxCount() int {
	return s.rx.Load().Len()
}

// RxFree returns the free space in the receive buffer.
func (s *Stream) RxFree() int {
	return s.rx.Load().Free()
}

// RxFlush discards all buffered input.
func (s *Stream) RxFlush() {
	s.rx.Load().Flush()
}

// RxCancel discards all buffered input and queues a single CAN character
// so the consumer observes the cancellation in-band.
func (s *Stream) RxCancel() {
	rx := s.rx.Load()
	rx.Flush()
	rx.Put(grbl.ASCIICancel)
}

// Overflow reports whether a received byte has been dropped since the last
// call to ClearOverflow.
func (s *Stream) Overflow() bool {
	return s.overflow.Load()
}

// ClearOverflow resets the overflow flag.
func (s *Stream) ClearOverflow() {
	s.overflow.Store(false)
}

// PutByte writes one byte to the output stream. The byte goes straight to
// the hardware register when nothing is queued ahead of it and the channel
// is idle; otherwise it is queued and the transmit interrupt armed. On a
// full buffer the blocking callback is polled for space; if it declines the
// write fails and the buffer indices are left consistent.
func (s *Stream) PutByte(c byte) bool {
	if s.tx.Len() == 0 && !s.port.TxInterruptEnabled() && s.port.TxEmpty() {
		s.port.WriteByte(c)
		return true
	}

	for !s.tx.Put(c) {
		if s.BlockingCallback == nil || !s.BlockingCallback() {
			return false
		}
	}
	s.port.SetTxInterrupt(true)

	return true
}

// Write writes all bytes of p in order, blocking per PutByte. It reports
// failure as soon as one byte cannot be queued; bytes already queued stay
// queued.
func (s *Stream) Write(p []byte) bool {
	for _, c := range p {
		if !s.PutByte(c) {
			return false
		}
	}
	return true
}

// WriteString writes a string to the output stream.
func (s *Stream) WriteString(str string) bool {
	for i := 0; i < len(str); i++ {
		if !s.PutByte(str[i]) {
			return false
		}
	}
	return true
}

// WriteLine writes a string followed by the end-of-line sequence.
func (s *Stream) WriteLine(str string) bool {
	return s.WriteString(str) && s.WriteString(grbl.ASCIIEOL)
}

// GetByte reads one byte from the input stream without blocking. A
// suspended stream reads as empty while leaving queued bytes untouched.
func (s *Stream) GetByte() (byte, bool) {
	if s.suspended.Load() {
		return 0, false
	}
	return s.rx.Load().Get()
}

// SuspendInput suspends or resumes buffered input consumption. Resuming
// restores the receive buffer snapshot taken when the tool-acknowledge byte
// was intercepted, including bytes queued before the interception, and
// discards everything received while suspended. The return value reports
// whether input is pending in the active buffer.
func (s *Stream) SuspendInput(suspend bool) bool {
	if suspend {
		s.suspended.Store(true)
	} else {
		s.suspended.Store(false)
		if s.hasBackup.Load() {
			s.rxSpare = s.rx.Swap(s.rxSpare)
			s.hasBackup.Store(false)
		}
	}
	return s.rx.Load().Len() != 0
}

// ServiceInterrupt handles one interrupt firing: receive-ready, error and
// transmit-ready conditions. It never blocks; a byte arriving with no free
// slot is dropped and flagged.
func (s *Stream) ServiceInterrupt() {
	if s.port.ErrorPending() {
		s.port.ClearErrors()
	}

	if s.port.RxReady() {

		data := s.port.ReadByte()

		if data == grbl.CmdToolAck && !s.hasBackup.Load() {

			// Tool change handshake: park the queued command stream in the
			// backup slot and present an empty buffer until input resumes.
			s.rxSpare.Reset()
			s.rxSpare = s.rx.Swap(s.rxSpare)
			s.hasBackup.Store(true)
			s.suspended.Store(true)

		} else if s.EnqueueRealtimeCommand == nil || !s.EnqueueRealtimeCommand(data) {

			if !s.rx.Load().Put(data) {
				s.overflow.Store(true)
			}
		}
	}

	if s.port.TxReady() {
		if c, ok := s.tx.Get(); ok {
			s.port.WriteByte(c)
		}
		if s.tx.Len() == 0 {
			s.port.SetTxInterrupt(false)
		}
	}
}
