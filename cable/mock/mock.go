// Copyright 2026 The jtagtap Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package mock provides a recording, loopback [Cable] for testing the
// statemachine and chain packages without real hardware, in the spirit of
// the fake/log handles the d2xx package ships for its own tests.
package mock

import (
	"fmt"

	"github.com/gojtag/jtagtap/cable"
	"periph.io/x/conn/v3/physic"
)

// Op is one recorded call against a Cable.
type Op struct {
	Kind       string // "change_mode", "read", "write", "read_write", "queue_read", "queue_read_write", "finish_read", "flush"
	TMS        []byte
	TDILevel   bool
	Data       cable.Bits
	PauseAfter bool
	Bits       int
}

type pendingRead struct {
	bits int
	data cable.Bits
}

// Cable is a loopback [cable.Cable] and [cable.QueueingCable]: every bit
// driven onto TDI reappears on TDO one clock later, the way a single
// BYPASS flip-flop between the two lines would behave, regardless of how
// many real devices a chain built on top of it believes it addresses.
//
// It also records every call in Ops, in order, so property tests can
// assert on the exact TMS/TDI sequence a statemachine or chain emitted.
type Cable struct {
	Ops      []Op
	Speed    physic.Frequency
	prevBit  int
	queue    []pendingRead
	queueCap int

	srst, trst bool
}

// New returns a ready-to-use loopback Cable. queueCap bounds how many
// reads QueueRead/QueueReadWrite will hold before returning false; 0 means
// unbounded.
func New(queueCap int) *Cable {
	return &Cable{queueCap: queueCap}
}

func (c *Cable) shiftBit(tdi int) int {
	out := c.prevBit
	c.prevBit = tdi
	return out
}

func (c *Cable) shift(data cable.Bits, pauseAfter bool) cable.Bits {
	n := data.Len()
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = c.shiftBit(data.Bit(i))
	}
	if pauseAfter && n%8 == 0 {
		// the extra synthetic clock of the pauseAfter/multiple-of-8
		// edge case; its TDO sample is discarded. The hardware
		// back-ends in this module add no such cycle: they raise TMS
		// on the final data cycle instead.
		c.shiftBit(1)
	}
	return cable.PackBits(out)
}

func (c *Cable) ChangeMode(tms []byte, tdiLevel bool) error {
	cp := make([]byte, len(tms))
	copy(cp, tms)
	c.Ops = append(c.Ops, Op{Kind: "change_mode", TMS: cp, TDILevel: tdiLevel})
	bit := 0
	if tdiLevel {
		bit = 1
	}
	for range tms {
		c.shiftBit(bit)
	}
	return nil
}

func (c *Cable) ReadData(bits int) (cable.Bits, error) {
	cable.Assertf(bits > 0, "mock", "read_data bits must be positive, got %d", bits)
	ones := make([]int, bits)
	for i := range ones {
		ones[i] = 1
	}
	data := cable.PackBits(ones)
	out := c.shift(data, false)
	c.Ops = append(c.Ops, Op{Kind: "read", Data: out, Bits: bits})
	return out, nil
}

func (c *Cable) WriteData(data cable.Bits, pauseAfter bool) error {
	c.Ops = append(c.Ops, Op{Kind: "write", Data: data, PauseAfter: pauseAfter})
	c.shift(data, pauseAfter)
	return nil
}

func (c *Cable) ReadWriteData(data cable.Bits, pauseAfter bool) (cable.Bits, error) {
	out := c.shift(data, pauseAfter)
	c.Ops = append(c.Ops, Op{Kind: "read_write", Data: data, PauseAfter: pauseAfter})
	return cable.Bits{Data: out.Data, TailBits: data.TailBits}, nil
}

func (c *Cable) SetSpeed(freq physic.Frequency) error {
	c.Speed = freq
	return nil
}

func (c *Cable) Close() error { return nil }

func (c *Cable) QueueRead(bits int) (bool, error) {
	if c.queueCap > 0 && len(c.queue) >= c.queueCap {
		return false, nil
	}
	data, err := c.ReadData(bits)
	if err != nil {
		return false, err
	}
	c.Ops = append(c.Ops, Op{Kind: "queue_read", Bits: bits})
	c.queue = append(c.queue, pendingRead{bits: bits, data: data})
	return true, nil
}

func (c *Cable) QueueReadWrite(data cable.Bits, pauseAfter bool) (bool, error) {
	if c.queueCap > 0 && len(c.queue) >= c.queueCap {
		return false, nil
	}
	out, err := c.ReadWriteData(data, pauseAfter)
	if err != nil {
		return false, err
	}
	c.Ops = append(c.Ops, Op{Kind: "queue_read_write", Data: data, PauseAfter: pauseAfter})
	c.queue = append(c.queue, pendingRead{bits: out.Len(), data: out})
	return true, nil
}

func (c *Cable) FinishRead(bits int) (cable.Bits, error) {
	cable.Assertf(len(c.queue) > 0, "mock", "finish_read called with nothing queued")
	p := c.queue[0]
	c.queue = c.queue[1:]
	cable.Assertf(p.bits == bits, "mock", "finish_read bits %d does not match queued %d", bits, p.bits)
	c.Ops = append(c.Ops, Op{Kind: "finish_read", Bits: bits})
	return p.data, nil
}

func (c *Cable) Flush() error {
	c.Ops = append(c.Ops, Op{Kind: "flush"})
	return nil
}

func (c *Cable) AssertSRST() error   { c.srst = true; return nil }
func (c *Cable) DeassertSRST() error { c.srst = false; return nil }
func (c *Cable) AssertTRST() error   { c.trst = true; return nil }
func (c *Cable) DeassertTRST() error { c.trst = false; return nil }

// SRST reports whether AssertSRST was called more recently than
// DeassertSRST; TRST is analogous. Tests use these to check reset-line
// plumbing on back-ends that forward to a ResetLines-capable Cable.
func (c *Cable) SRST() bool { return c.srst }
func (c *Cable) TRST() bool { return c.trst }

// String renders the recorded ops for test failure messages.
func (c *Cable) String() string {
	s := ""
	for _, op := range c.Ops {
		s += fmt.Sprintf("%+v\n", op)
	}
	return s
}

var (
	_ cable.Cable         = (*Cable)(nil)
	_ cable.QueueingCable = (*Cable)(nil)
	_ cable.ResetLines    = (*Cable)(nil)
)
