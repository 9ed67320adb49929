// Copyright 2026 The jtagtap Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package chain implements the multi-TAP scan-chain abstraction: given an
// ordered list of device IR lengths and a selected ("active") device, it
// translates a read/write of that device's IR/DR into the padded shift
// that also walks the BYPASS registers of every other device on the
// chain, and auto-detects chain topology on an unknown chain.
package chain

import (
	"fmt"

	"github.com/gojtag/jtagtap/cable"
	"github.com/gojtag/jtagtap/statemachine"
)

type tap struct {
	irlen int
}

// Chain owns a statemachine.StateMachine plus an ordered list of device
// descriptors (position 0 is the device closest to TDO) and tracks which
// device is currently addressed.
type Chain struct {
	sm      *statemachine.StateMachine
	taps    []tap
	active  int
	IDCodes []uint32
}

// New creates a Chain around an existing StateMachine with no devices
// registered. Use AddTap to describe a known chain, or Detect to probe
// an unknown one.
func New(sm *statemachine.StateMachine) *Chain {
	return &Chain{sm: sm}
}

// NumTaps reports how many devices are currently registered.
func (c *Chain) NumTaps() int {
	return len(c.taps)
}

// IRLen reports the instruction register length of device i.
func (c *Chain) IRLen(i int) int {
	return c.taps[i].irlen
}

// AddTap appends a device descriptor with the given instruction register
// length, in bits.
func (c *Chain) AddTap(irlen int) {
	cable.Assertf(irlen > 0, "chain", "irlen must be positive, got %d", irlen)
	c.taps = append(c.taps, tap{irlen: irlen})
}

// SelectTap resets the chain, marks index as the active device, and
// shifts ir into its instruction register (putting every other device
// into BYPASS in the process).
func (c *Chain) SelectTap(index int, ir []byte) error {
	cable.Assertf(index >= 0 && index < len(c.taps), "chain", "tap index %d out of range [0,%d)", index, len(c.taps))
	c.sm.ModeReset()
	c.active = index
	return c.WriteIR(ir)
}

func (c *Chain) writeOnes(bits int) error {
	if bits <= 0 {
		return nil
	}
	return c.sm.WriteReg(statemachine.Instruction, cable.OnesBits(bits), false)
}

// WriteIR shifts ir into the active device's instruction register. Every
// device after the active one is first driven into BYPASS by shifting a
// run of ones sized to their combined IR length; then ir is shifted in,
// preceded by one filler one-bit per IR bit of every device before the
// active one. The chain ends the operation in Idle.
func (c *Chain) WriteIR(ir []byte) error {
	cable.Assertf(c.active < len(c.taps), "chain", "no active tap selected")
	thisIRLen := c.taps[c.active].irlen
	wantBytes := (thisIRLen + 7) / 8
	cable.Assertf(len(ir) == wantBytes, "chain", "ir is %d bytes, want %d for a %d-bit instruction register", len(ir), wantBytes, thisIRLen)

	afterPad := 0
	for _, t := range c.taps[c.active+1:] {
		afterPad += t.irlen
	}
	if err := c.writeOnes(afterPad); err != nil {
		return err
	}

	beforePad := 0
	for _, t := range c.taps[:c.active] {
		beforePad += t.irlen
	}

	tail := thisIRLen % 8
	if tail == 0 {
		tail = 8
	}
	payload := cable.Bits{Data: ir, TailBits: tail}
	combined := cable.PadOnesBefore(payload, beforePad)
	if err := c.sm.WriteReg(statemachine.Instruction, combined, true); err != nil {
		return err
	}
	return c.sm.ChangeMode(statemachine.Idle)
}

// ReadIR reads the active device's instruction register, discarding the
// BYPASS bits of every device after it on the way.
func (c *Chain) ReadIR() (cable.Bits, error) {
	cable.Assertf(c.active < len(c.taps), "chain", "no active tap selected")
	thisIRLen := c.taps[c.active].irlen

	pad := 0
	for _, t := range c.taps[c.active+1:] {
		pad += t.irlen
	}
	if pad > 0 {
		if _, err := c.sm.ReadReg(statemachine.Instruction, pad); err != nil {
			return cable.Bits{}, err
		}
	}
	return c.sm.ReadReg(statemachine.Instruction, thisIRLen)
}

// WriteDR shifts dr into the active device's data register. bitsInLast
// indicates how many bits of the final byte of dr are valid (8 means the
// whole byte). Every other device's single-bit BYPASS register is
// shifted through in the same operation: devices before the active one
// contribute one filler bit each, ahead of the payload. The chain ends
// the operation in Idle.
func (c *Chain) WriteDR(dr []byte, bitsInLast int) error {
	cable.Assertf(c.active < len(c.taps), "chain", "no active tap selected")
	payload, err := cable.NewBits(dr, bitsInLast)
	if err != nil {
		return err
	}
	beforePad := c.active

	combined := cable.PadOnesBefore(payload, beforePad)
	if err := c.sm.WriteReg(statemachine.Data, combined, true); err != nil {
		return err
	}
	return c.sm.ChangeMode(statemachine.Idle)
}

// ReadDR reads bits bits from the active device's data register,
// discarding one BYPASS bit for every device after it on the chain.
func (c *Chain) ReadDR(bits int) (cable.Bits, error) {
	cable.Assertf(c.active < len(c.taps), "chain", "no active tap selected")
	pad := len(c.taps) - c.active - 1
	if pad > 0 {
		if _, err := c.sm.ReadReg(statemachine.Data, pad); err != nil {
			return cable.Bits{}, err
		}
	}
	return c.sm.ReadReg(statemachine.Data, bits)
}

// ReadWriteDR shifts dr into the active device's data register like
// WriteDR, but returns the TDO samples captured for the active device's
// own bits, with the BYPASS responses of devices before it stripped off.
func (c *Chain) ReadWriteDR(dr []byte, bitsInLast int) (cable.Bits, error) {
	cable.Assertf(c.active < len(c.taps), "chain", "no active tap selected")
	payload, err := cable.NewBits(dr, bitsInLast)
	if err != nil {
		return cable.Bits{}, err
	}
	beforePad := c.active

	combined := cable.PadOnesBefore(payload, beforePad)
	out, err := c.sm.ReadWriteReg(statemachine.Data, combined, true)
	if err != nil {
		return cable.Bits{}, err
	}
	if err := c.sm.ChangeMode(statemachine.Idle); err != nil {
		return cable.Bits{}, err
	}
	return out.Slice(beforePad, payload.Len()), nil
}

// Detect probes an unknown chain starting from Reset: first counting
// consecutive-ones IR capture markers to learn each device's IR length,
// then reading one presence bit plus a 31-bit IDCODE payload per device.
// Both phases observe the TDI-closest device first and are reversed
// before being stored, matching the chain's TDO-closest-first ordering.
// A device whose DR presence bit reads 0 is recorded with IDCODE 0. An
// empty chain and a chain whose IR capture stream begins with two ones
// both end detection at once with no devices; Detect does not tell them
// apart.
//
// The sawMarker flag keeps the run of zeros before the very first capture
// marker from being counted as an IR length, and keeps that first marker
// from being read as "two markers with no gap" (the end-of-chain signal):
// it is recorded only as a fence post, never pushed and never treated as
// a terminator.
func (c *Chain) Detect() error {
	c.taps = nil
	c.active = 0
	c.sm.ModeReset()

	var irlen []int
	count := -1
	sawMarker := false
	for {
		bit, err := c.sm.ReadReg(statemachine.Instruction, 1)
		if err != nil {
			return err
		}
		if bit.Bit(0) != 0 {
			if sawMarker {
				if count > 0 {
					irlen = append(irlen, count+1)
				} else {
					break
				}
			}
			sawMarker = true
			count = 0
		} else {
			count++
		}
	}

	c.sm.ModeReset()
	ids := make([]uint32, len(irlen))
	for i := range irlen {
		bit, err := c.sm.ReadReg(statemachine.Data, 1)
		if err != nil {
			return err
		}
		if bit.Bit(0) == 0 {
			ids[i] = 0
			continue
		}
		rest, err := c.sm.ReadReg(statemachine.Data, 31)
		if err != nil {
			return err
		}
		var v uint32
		for j := 0; j < 31; j++ {
			if rest.Bit(j) != 0 {
				v |= 1 << uint(j)
			}
		}
		ids[i] = (v << 1) | 1
	}

	reverseInts(irlen)
	reverseU32s(ids)

	c.IDCodes = ids
	for _, l := range irlen {
		c.AddTap(l)
	}
	return nil
}

func reverseInts(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func reverseU32s(s []uint32) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func (c *Chain) String() string {
	return fmt.Sprintf("chain{taps=%d active=%d}", len(c.taps), c.active)
}
