// Copyright 2026 The jtagtap Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bitbang drives an FT232R/FT245R-family FTDI chip in synchronous
// bitbang mode as a cable.Cable: every TCK cycle is two samples written
// and read back (clock low, then clock high), with TDI/TMS/TCK mapped to
// configurable DBUS output pins and TDO sampled from an input pin on the
// clock-high sample. There is no command batching in this mode, so every
// operation is one synchronous USB round trip.
package bitbang

import (
	"github.com/gojtag/jtagtap/cable"
	"github.com/gojtag/jtagtap/cable/internal/ftdiio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/d2xx"
)

// PinMap assigns the four JTAG signals to DBUS bit positions (0-7). TDI
// and TMS and TCK are adapter outputs; TDO is an adapter input.
type PinMap struct {
	TDI, TDO, TMS, TCK uint
}

// EasyFlash3 is the DBUS pin mapping of the EasyFlash 3 cartridge
// programmer, the canonical FT232R-based JTAG adapter this backend is
// ported from.
var EasyFlash3 = PinMap{TDI: 3, TDO: 0, TMS: 1, TCK: 2}

// Cable talks synchronous bitbang over an ftdiio.Handle already switched
// into that mode.
type Cable struct {
	h    *ftdiio.Handle
	pins PinMap
}

var _ cable.Cable = (*Cable)(nil)

// New takes an already-opened FTDI device handle, puts it into
// synchronous bitbang mode with pins as outputs (TDI, TMS, TCK) and TDO
// as an input, and programs the baud rate that yields the requested TCK
// frequency (two bytes, i.e. two baud clocks, per TCK cycle).
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
	mask := byte(1<<pins.TDI | 1<<pins.TMS | 1<<pins.TCK)
	if err := h.SetBitMode(mask, ftdiio.ModeSyncBitbang); err != nil {
		return nil, err
	}
	if err := h.SetFlowControl(); err != nil {
		return nil, err
	}
	c := &Cable{h: h, pins: pins}
	if err := c.SetSpeed(freq); err != nil {
		return nil, err
	}
	return c, h.Flush()
}

// SetSpeed programs the baud rate driving the bitbang clock to twice the
// requested TCK frequency, since each TCK cycle takes two bytes.
func (c *Cable) SetSpeed(freq physic.Frequency) error {
	return c.h.SetBaudRate(2 * freq)
}

func (c *Cable) level(tdi, tms, clockHigh bool) byte {
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
	return b
}

// clock drives n cycles, taking the TDI/TMS bit for cycle i from
// tdiBit(i)/tmsBit(i), and returns the TDO sample captured on each
// cycle's clock-high byte.
func (c *Cable) clock(n int, tdiBit, tmsBit func(i int) bool) ([]int, error) {
	logf("bitbang: clocking %d cycles", n)
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		tdi := tdiBit(i)
		tms := tmsBit(i)
		out[2*i] = c.level(tdi, tms, false)
		out[2*i+1] = c.level(tdi, tms, true)
	}
	if _, err := c.h.Write(out); err != nil {
		return nil, err
	}
	in := make([]byte, n*2)
	if err := readAll(c.h, in); err != nil {
		return nil, err
	}
	tdo := make([]int, n)
	for i := 0; i < n; i++ {
		tdo[i] = int((in[2*i+1] >> c.pins.TDO) & 1)
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

// ChangeMode clocks len(tms) cycles with TDI held at tdiLevel and TMS
// taken from tms.
func (c *Cable) ChangeMode(tms []byte, tdiLevel bool) error {
	_, err := c.clock(len(tms), func(int) bool { return tdiLevel }, func(i int) bool { return tms[i] != 0 })
	return err
}

// ReadData clocks bits cycles with TDI held at 1 and TMS held low,
// returning the TDO samples.
func (c *Cable) ReadData(bits int) (cable.Bits, error) {
	cable.Assertf(bits > 0, "bitbang", "read_data bits must be positive")
	tdo, err := c.clock(bits, func(int) bool { return true }, func(int) bool { return false })
	if err != nil {
		return cable.Bits{}, err
	}
	return cable.PackBits(tdo), nil
}

// WriteData clocks data.Len() cycles driving data onto TDI, discarding
// TDO. If pauseAfter, TMS is raised on the last requested cycle itself
// (this back-end has an independent TMS output line, so no extra
// synthetic cycle is needed).
func (c *Cable) WriteData(data cable.Bits, pauseAfter bool) error {
	n := data.Len()
	cable.Assertf(n > 0, "bitbang", "write_data called with zero bits")
	_, err := c.clock(n,
		func(i int) bool { return data.Bit(i) != 0 },
		func(i int) bool { return pauseAfter && i == n-1 },
	)
	return err
}

// ReadWriteData behaves like WriteData but returns the TDO samples.
func (c *Cable) ReadWriteData(data cable.Bits, pauseAfter bool) (cable.Bits, error) {
	n := data.Len()
	cable.Assertf(n > 0, "bitbang", "read_write_data called with zero bits")
	tdo, err := c.clock(n,
		func(i int) bool { return data.Bit(i) != 0 },
		func(i int) bool { return pauseAfter && i == n-1 },
	)
	if err != nil {
		return cable.Bits{}, err
	}
	out := cable.PackBits(tdo)
	return cable.Bits{Data: out.Data, TailBits: data.TailBits}, nil
}

func (c *Cable) Close() error {
	return c.h.Close()
}
