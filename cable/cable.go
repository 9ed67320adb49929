// Copyright 2026 The jtagtap Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package cable defines the bit-level contract shared by every JTAG cable
// back-end (MPSSE, synchronous bitbang, USB Blaster, GPIO, J-Link) along
// with the LSB-first bit buffer type ([Bits]) that back-ends and the
// higher statemachine/chain layers exchange.
//
// Back-ends differ in throughput and in whether they can pipeline reads;
// they must not differ in the semantics of a single operation. A back-end
// that cannot batch commands still implements [Cable] in full — it just
// does the work synchronously.
package cable

import "periph.io/x/conn/v3/physic"

// Cable is the polymorphic bit-level transport every back-end implements.
//
// All methods clock the TAP controller's TCK line; none of them change the
// TAP controller's recorded state — that bookkeeping belongs to package
// statemachine. A Cable only knows about wire-level bits.
type Cable interface {
	// ChangeMode clocks len(tms) cycles. On each cycle TMS is driven to the
	// given bit (any non-zero value means 1) and TDI is held at tdiLevel.
	// Callable in any state; the caller is responsible for the sequence
	// being meaningful from the current physical state.
	ChangeMode(tms []byte, tdiLevel bool) error

	// ReadData must be called in ShiftIR or ShiftDR and leaves the TAP in
	// that same state. TDI is held at 1 for the whole operation. The
	// returned Bits carries the TDO samples, LSB-first; bits above the
	// requested count in the final byte are unspecified.
	ReadData(bits int) (Bits, error)

	// WriteData clocks data.Len() cycles, driving the next data bit onto
	// TDI each cycle (LSB-first) and discarding TDO. If pauseAfter is
	// true, the final cycle also raises TMS so the TAP exits Shift* into
	// Exit1*; otherwise TMS stays low and the TAP remains in Shift*.
	WriteData(data Bits, pauseAfter bool) error

	// ReadWriteData behaves like WriteData but returns the TDO samples for
	// the same clock cycles that were requested (the implicit extra cycle
	// inserted by the pauseAfter/multiple-of-8 edge case is never
	// returned to the caller).
	ReadWriteData(data Bits, pauseAfter bool) (Bits, error)

	// SetSpeed configures the TCK frequency. Back-ends that cannot hit the
	// requested frequency exactly should pick the closest rate they can
	// produce without exceeding it.
	SetSpeed(freq physic.Frequency) error

	// Close releases the underlying adapter handle, draining any pending
	// reads. The Cable must not be used afterwards.
	Close() error
}

// QueueingCable is implemented by back-ends that can pipeline adapter
// commands for throughput (MPSSE, J-Link). Callers type-assert for it;
// a Cable that only implements the base interface has no pipelining.
type QueueingCable interface {
	Cable

	// QueueRead behaves like ReadData but defers collecting the result.
	// It returns false if the back-end's queue is full; the caller must
	// drain with FinishRead and retry.
	QueueRead(bits int) (bool, error)

	// QueueReadWrite behaves like ReadWriteData but defers the result in
	// the same way as QueueRead.
	QueueReadWrite(data Bits, pauseAfter bool) (bool, error)

	// FinishRead consumes the oldest outstanding queued read, in FIFO
	// order. bits must equal the value originally passed to the matching
	// QueueRead/QueueReadWrite call; it exists as a consistency check.
	FinishRead(bits int) (Bits, error)

	// Flush forces any batched commands to the adapter and blocks until
	// the adapter has accepted them. It does not wait for their reads to
	// arrive — use FinishRead for that.
	Flush() error
}

// ResetLines is implemented by back-ends whose adapter exposes SRST/TRST
// reset lines (the FTDI "jtagkey"-style cables and J-Link). It is not part
// of the core Cable contract: most back-ends (plain GPIO, USB Blaster)
// have no dedicated reset line and do not implement it.
type ResetLines interface {
	AssertSRST() error
	DeassertSRST() error
	AssertTRST() error
	DeassertTRST() error
}

// knownCables documents the back-ends this module ships, by the name a
// caller's own configuration or command-line flag might use to refer to
// them. It exists for Lookup only; building a Cable still requires the
// caller to open the underlying transport handle and pass it to the
// matching sub-package's New.
var knownCables = map[string]bool{
	"jtagkey":    true,
	"ef3":        true,
	"usbblaster": true,
	"jlink":      true,
	"gpio":       true,
}

// Lookup reports whether name is one of the cable back-ends this module
// ships. It does not construct anything: a Cable is always built by
// calling the matching sub-package's New with a transport handle the
// caller already owns.
func Lookup(name string) bool {
	return knownCables[name]
}
