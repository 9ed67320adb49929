// Copyright 2026 The jtagtap Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package gpiocable drives four bare GPIO pins (TCK, TMS, TDI output,
// TDO input) as a cable.Cable using software-timed delays, the way a
// microcontroller or a Linux sysfs/gpiochip pin set would bit-bang JTAG
// with no dedicated serial engine. It is the one back-end expected to
// run without an OS (no process-wide state, no goroutines, no cgo).
package gpiocable

import (
	"time"

	"github.com/gojtag/jtagtap/cable"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Cable clocks TCK in software, driving TMS/TDI and sampling TDO once per
// clock period. It implements neither QueueingCable nor ResetLines: there
// is no adapter-side batching to exploit and no dedicated reset line
// beyond whatever pins the caller separately wires.
type Cable struct {
	tck, tms, tdi gpio.PinOut
	tdo           gpio.PinIn
	halfPeriod    time.Duration
}

var _ cable.Cable = (*Cable)(nil)

// New returns a Cable driving tck/tms/tdi and sampling tdo at freq. tdo is
// put into input mode (pull left unchanged, no edge detection) immediately.
func New(tck, tms, tdi gpio.PinOut, tdo gpio.PinIn, freq physic.Frequency) (*Cable, error) {
	if err := tdo.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return nil, err
	}
	c := &Cable{tck: tck, tms: tms, tdi: tdi, tdo: tdo}
	if err := c.SetSpeed(freq); err != nil {
		return nil, err
	}
	return c, nil
}

// SetSpeed recomputes the half clock period in software delay terms:
// (1e6 / freq_kHz) / 2 nanoseconds.
func (c *Cable) SetSpeed(freq physic.Frequency) error {
	cable.Assertf(freq > 0, "gpiocable", "frequency must be positive")
	hz := int64(freq / physic.Hertz)
	cable.Assertf(hz > 0, "gpiocable", "frequency %s too low to derive a clock period", freq)
	c.halfPeriod = (time.Second / time.Duration(hz)) / 2
	logf("gpiocable: half period set to %s for %s", c.halfPeriod, freq)
	return nil
}

func level(b bool) gpio.Level {
	return gpio.Level(b)
}

// cycle drives tdi/tms for one full clock period (TCK high for the first
// half, low for the second) and samples TDO while TCK is high, matching
// the original bit-banged driver's ordering: the clock is raised, TDO is
// sampled, then the half-period delay runs before the clock falls and the
// second half-period delay runs.
func (c *Cable) cycle(tdi, tms bool) (gpio.Level, error) {
	if err := c.tdi.Out(level(tdi)); err != nil {
		return gpio.Low, err
	}
	if err := c.tms.Out(level(tms)); err != nil {
		return gpio.Low, err
	}
	if err := c.tck.Out(gpio.High); err != nil {
		return gpio.Low, err
	}
	sample := c.tdo.Read()
	time.Sleep(c.halfPeriod)
	if err := c.tck.Out(gpio.Low); err != nil {
		return gpio.Low, err
	}
	time.Sleep(c.halfPeriod)
	return sample, nil
}

// ChangeMode clocks len(tms) cycles with TDI held at tdiLevel.
func (c *Cable) ChangeMode(tms []byte, tdiLevel bool) error {
	for _, bit := range tms {
		if _, err := c.cycle(tdiLevel, bit != 0); err != nil {
			return err
		}
	}
	return nil
}

// ReadData clocks bits cycles with TDI held at 1 and TMS held low.
func (c *Cable) ReadData(bits int) (cable.Bits, error) {
	cable.Assertf(bits > 0, "gpiocable", "read_data bits must be positive")
	out := make([]int, bits)
	for i := range out {
		sample, err := c.cycle(true, false)
		if err != nil {
			return cable.Bits{}, err
		}
		if sample {
			out[i] = 1
		}
	}
	return cable.PackBits(out), nil
}

// WriteData clocks data.Len() cycles driving data onto TDI. If
// pauseAfter, TMS is raised on the last requested bit itself — every
// cycle here is its own discrete set of pin writes, so there is no
// byte-alignment edge case to compensate for with an extra cycle.
func (c *Cable) WriteData(data cable.Bits, pauseAfter bool) error {
	n := data.Len()
	cable.Assertf(n > 0, "gpiocable", "write_data called with zero bits")
	for i := 0; i < n; i++ {
		tms := pauseAfter && i == n-1
		if _, err := c.cycle(data.Bit(i) != 0, tms); err != nil {
			return err
		}
	}
	return nil
}

// ReadWriteData behaves like WriteData but returns the TDO samples.
func (c *Cable) ReadWriteData(data cable.Bits, pauseAfter bool) (cable.Bits, error) {
	n := data.Len()
	cable.Assertf(n > 0, "gpiocable", "read_write_data called with zero bits")
	out := make([]int, n)
	for i := 0; i < n; i++ {
		tms := pauseAfter && i == n-1
		sample, err := c.cycle(data.Bit(i) != 0, tms)
		if err != nil {
			return cable.Bits{}, err
		}
		if sample {
			out[i] = 1
		}
	}
	packed := cable.PackBits(out)
	return cable.Bits{Data: packed.Data, TailBits: data.TailBits}, nil
}

// Close releases the pins back to their default state. Ownership of the
// pins themselves was never taken from the caller, so this only drives
// them to a quiescent level.
func (c *Cable) Close() error {
	if err := c.tck.Out(gpio.Low); err != nil {
		return err
	}
	return c.tdi.Out(gpio.Low)
}
