// Copyright 2026 The jtagtap Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ftdiiotest provides a fake ftdiio.Dev for the FTDI-family cable
// back-end tests, in the spirit of the d2xx package's own d2xxtest fakes:
// it records every write and answers reads from a queue a test (or an
// OnWrite hook simulating the adapter) fills in.
package ftdiiotest

import (
	"periph.io/x/d2xx"

	"github.com/gojtag/jtagtap/cable/internal/ftdiio"
)

// Fake implements ftdiio.Dev without hardware.
type Fake struct {
	// Writes records every Write call's payload, in order.
	Writes [][]byte
	// OnWrite, if set, is called with each written payload; whatever it
	// returns is appended to the pending read queue, which is how a test
	// simulates an adapter that answers traffic (sync bitbang echo, USB
	// Blaster read-enable bytes, MPSSE response stream).
	OnWrite func(b []byte) []byte

	// BitModes records every (mask, mode) passed to SetBitMode.
	BitModes [][2]byte
	// BaudRates records every rate passed to SetBaudRate.
	BaudRates []uint32
	// Resets counts ResetDevice calls.
	Resets int

	rx []byte
}

var _ ftdiio.Dev = (*Fake)(nil)

// Queue appends bytes to the pending read queue directly, for responses
// not derived from a write.
func (f *Fake) Queue(b []byte) {
	f.rx = append(f.rx, b...)
}

func (f *Fake) Close() d2xx.Err       { return 0 }
func (f *Fake) ResetDevice() d2xx.Err { f.Resets++; return 0 }

func (f *Fake) GetDeviceInfo() (uint32, uint16, uint16, d2xx.Err) {
	return 0, 0x0403, 0x6010, 0
}

func (f *Fake) SetUSBParameters(in, out int) d2xx.Err { return 0 }
func (f *Fake) SetChars(eventChar byte, eventEn bool, errorChar byte, errorEn bool) d2xx.Err {
	return 0
}
func (f *Fake) SetTimeouts(readMS, writeMS int) d2xx.Err { return 0 }
func (f *Fake) SetLatencyTimer(delayMS uint8) d2xx.Err   { return 0 }
func (f *Fake) SetFlowControl() d2xx.Err                 { return 0 }

func (f *Fake) SetBaudRate(hz uint32) d2xx.Err {
	f.BaudRates = append(f.BaudRates, hz)
	return 0
}

func (f *Fake) SetBitMode(mask, mode byte) d2xx.Err {
	f.BitModes = append(f.BitModes, [2]byte{mask, mode})
	return 0
}

func (f *Fake) GetQueueStatus() (uint32, d2xx.Err) {
	return uint32(len(f.rx)), 0
}

func (f *Fake) Read(b []byte) (int, d2xx.Err) {
	n := copy(b, f.rx)
	f.rx = f.rx[n:]
	return n, 0
}

func (f *Fake) Write(b []byte) (int, d2xx.Err) {
	cp := make([]byte, len(b))
	copy(cp, b)
	f.Writes = append(f.Writes, cp)
	if f.OnWrite != nil {
		f.rx = append(f.rx, f.OnWrite(cp)...)
	}
	return len(b), 0
}

// AllWrites returns every recorded write concatenated, which is usually
// what a wire-format assertion wants.
func (f *Fake) AllWrites() []byte {
	var out []byte
	for _, w := range f.Writes {
		out = append(out, w...)
	}
	return out
}
