// Copyright 2026 The jtagtap Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package usbblaster drives an Altera USB Blaster (and its many clones,
// commonly enumerating as an FTDI FT245-family chip in async bitbang
// mode) as a cable.Cable: one output byte per clock half-period and, when
// bit 6 (the read-enable flag) is set, one sampled response byte per
// input byte rather than the two a plain synchronous bitbang link needs.
package usbblaster

import (
	"github.com/gojtag/jtagtap/cable"
	"github.com/gojtag/jtagtap/cable/internal/ftdiio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/d2xx"
)

// readCmd is bit 6 of an output byte: setting it requests a sampled TDO
// byte for that cycle in the adapter's response stream.
const readCmd = 1 << 6

// PinMap assigns the JTAG signals to bit positions in the adapter's
// output byte (TCK, TMS, TDI) and input byte (TDO). The defaults match
// the stock Altera USB Blaster wiring.
type PinMap struct {
	TCK, TMS, TDI uint // output byte bit positions
	TDO           uint // input byte bit position
}

// Default is the bit layout of a stock USB Blaster / clone.
var Default = PinMap{TCK: 0, TMS: 1, TDI: 4, TDO: 0}

// Cable talks the USB Blaster byte-per-bit protocol over an already
// opened ftdiio.Handle in asynchronous bitbang mode.
type Cable struct {
	h     *ftdiio.Handle
	pins  PinMap
	queue []cable.Bits
}

var (
	_ cable.Cable         = (*Cable)(nil)
	_ cable.QueueingCable = (*Cable)(nil)
)

// New takes an already-opened FTDI device handle and switches it into
// asynchronous bitbang mode with TCK/TMS/TDI as outputs.
func New(d d2xx.Handle, pins PinMap, freq physic.Frequency) (*Cable, error) {
	return newCable(d, pins, freq)
}

func newCable(d ftdiio.Dev, pins PinMap, freq physic.Frequency) (*Cable, error) {
	h, err := ftdiio.New(d)
	if err != nil {
		return nil, err
	}
	if err := h.Init(); err != nil {
		return nil, err
	}
	mask := byte(1<<pins.TCK | 1<<pins.TMS | 1<<pins.TDI)
	if err := h.SetBitMode(mask, ftdiio.ModeAsyncBitbang); err != nil {
		return nil, err
	}
	c := &Cable{h: h, pins: pins}
	if err := c.SetSpeed(freq); err != nil {
		return nil, err
	}
	return c, h.Flush()
}

// SetSpeed programs the baud rate driving the bitbang clock to twice the
// requested TCK frequency: async bitbang samples/drives once per baud
// clock, and each TCK cycle here is a clock-low then clock-high byte.
func (c *Cable) SetSpeed(freq physic.Frequency) error {
	return c.h.SetBaudRate(2 * freq)
}

func (c *Cable) level(tdi, tms, clockHigh, read bool) byte {
	var b byte
	if tdi {
		b |= 1 << c.pins.TDI
	}
	if tms {
		b |= 1 << c.pins.TMS
	}
	if clockHigh {
		b |= 1 << c.pins.TCK
	}
	if read {
		b |= readCmd
	}
	return b
}

// clock drives n cycles and, when sample is true, requests and decodes
// one TDO sample per cycle (read-enable set only on the clock-high byte,
// which is what gives this back-end one response byte per bit instead of
// the two a plain bitbang link needs).
func (c *Cable) clock(n int, tdiBit, tmsBit func(i int) bool, sample bool) ([]int, error) {
	logf("usbblaster: clocking %d cycles, sample=%v", n, sample)
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		tdi := tdiBit(i)
		tms := tmsBit(i)
		out[2*i] = c.level(tdi, tms, false, false)
		out[2*i+1] = c.level(tdi, tms, true, sample)
	}
	if _, err := c.h.Write(out); err != nil {
		return nil, err
	}
	if !sample {
		return nil, nil
	}
	in := make([]byte, n)
	if err := readAll(c.h, in); err != nil {
		return nil, err
	}
	tdo := make([]int, n)
	for i := range tdo {
		tdo[i] = int((in[i] >> c.pins.TDO) & 1)
	}
	return tdo, nil
}

func readAll(h *ftdiio.Handle, b []byte) error {
	for offset := 0; offset != len(b); {
		n, err := h.Read(b[offset:])
		if offset += n; err != nil {
			return err
		}
	}
	return nil
}

// ChangeMode clocks len(tms) cycles with TDI held at tdiLevel; no TDO
// sample is requested.
func (c *Cable) ChangeMode(tms []byte, tdiLevel bool) error {
	_, err := c.clock(len(tms), func(int) bool { return tdiLevel }, func(i int) bool { return tms[i] != 0 }, false)
	return err
}

// ReadData clocks bits cycles with TDI held at 1 and TMS held low,
// returning the sampled TDO bits.
func (c *Cable) ReadData(bits int) (cable.Bits, error) {
	cable.Assertf(bits > 0, "usbblaster", "read_data bits must be positive")
	tdo, err := c.clock(bits, func(int) bool { return true }, func(int) bool { return false }, true)
	if err != nil {
		return cable.Bits{}, err
	}
	return cable.PackBits(tdo), nil
}

// WriteData clocks data.Len() cycles driving data onto TDI and raising
// TMS on the last cycle if pauseAfter — this back-end's TMS line is
// independent of the data line, so (as with GPIO) no extra synthetic
// cycle is required regardless of byte alignment.
func (c *Cable) WriteData(data cable.Bits, pauseAfter bool) error {
	n := data.Len()
	cable.Assertf(n > 0, "usbblaster", "write_data called with zero bits")
	_, err := c.clock(n,
		func(i int) bool { return data.Bit(i) != 0 },
		func(i int) bool { return pauseAfter && i == n-1 },
		false,
	)
	return err
}

// ReadWriteData behaves like WriteData but returns the TDO samples.
func (c *Cable) ReadWriteData(data cable.Bits, pauseAfter bool) (cable.Bits, error) {
	n := data.Len()
	cable.Assertf(n > 0, "usbblaster", "read_write_data called with zero bits")
	tdo, err := c.clock(n,
		func(i int) bool { return data.Bit(i) != 0 },
		func(i int) bool { return pauseAfter && i == n-1 },
		true,
	)
	if err != nil {
		return cable.Bits{}, err
	}
	out := cable.PackBits(tdo)
	return cable.Bits{Data: out.Data, TailBits: data.TailBits}, nil
}

// QueueRead performs the read synchronously and parks the result for
// FinishRead: the adapter has no deferred-read machinery to exploit, so
// pipelining degenerates to buffering, which is the fallback the Cable
// contract allows. It never reports a full queue.
func (c *Cable) QueueRead(bits int) (bool, error) {
	out, err := c.ReadData(bits)
	if err != nil {
		return false, err
	}
	c.queue = append(c.queue, out)
	return true, nil
}

// QueueReadWrite is the read-write counterpart of QueueRead.
func (c *Cable) QueueReadWrite(data cable.Bits, pauseAfter bool) (bool, error) {
	out, err := c.ReadWriteData(data, pauseAfter)
	if err != nil {
		return false, err
	}
	c.queue = append(c.queue, out)
	return true, nil
}

// FinishRead pops the oldest parked result; bits must match what was
// queued.
func (c *Cable) FinishRead(bits int) (cable.Bits, error) {
	cable.Assertf(len(c.queue) > 0, "usbblaster", "finish_read called with nothing queued")
	out := c.queue[0]
	c.queue = c.queue[1:]
	cable.Assertf(out.Len() == bits, "usbblaster", "finish_read bits %d does not match queued %d", bits, out.Len())
	return out, nil
}

// Flush is a no-op: every operation already completed synchronously.
func (c *Cable) Flush() error { return nil }

func (c *Cable) Close() error {
	return c.h.Close()
}
