// Copyright 2026 The jtagtap Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package jlink drives a SEGGER J-Link (or compatible) probe's vendor USB
// protocol as a cable.Cable: every TAP operation becomes one or more
// 0xCD "TAP sequence" commands carrying parallel TMS/TDI bit streams.
// Each command is written to the probe as soon as it is built; only its
// TDO response is deferred, read back by the same call for synchronous
// operations and by FinishRead for queued ones.
package jlink

import (
	"fmt"

	"github.com/gojtag/jtagtap/cable"
	"github.com/google/gousb"
	"periph.io/x/conn/v3/physic"
)

const (
	cmdSetClock     = 0x05
	cmdStatus       = 0x07
	cmdSelectIF     = 0xC7
	cmdTAPSequence  = 0xCD
	cmdSRSTAssert   = 0xDC
	cmdSRSTDeassert = 0xDD
	cmdTRSTAssert   = 0xDE
	cmdTRSTDeassert = 0xDF

	ifaceJTAG = 0

	// maxBitsPerCmd keeps every single 0xCD command's bit count under the
	// protocol's 390-byte limit (n < 390*8) with room to spare; larger
	// requests are split across multiple commands transparently.
	maxBitsPerCmd = 384 * 8
)

// bulkWriter and bulkReader narrow *gousb.OutEndpoint/*gousb.InEndpoint
// to the two methods this package needs, so the command framing can be
// exercised with a fake transport in tests without opening real USB
// hardware.
type bulkWriter interface {
	Write([]byte) (int, error)
}

type bulkReader interface {
	Read([]byte) (int, error)
}

// Cable talks the J-Link vendor protocol over an already-claimed pair of
// bulk endpoints; opening the USB device and claiming the interface is
// the caller's job, same as every other back-end in this module.
type Cable struct {
	out bulkWriter
	in  bulkReader

	queue []pendingRead
}

type pendingRead struct {
	bits  int // bits the caller originally requested for this op
	bytes int // bytes still owed on the wire for this op
}

var (
	_ cable.Cable         = (*Cable)(nil)
	_ cable.QueueingCable = (*Cable)(nil)
	_ cable.ResetLines    = (*Cable)(nil)
)

// New checks the probe's target voltage, selects the JTAG interface,
// deasserts both reset lines, and programs freq as the initial TCK rate.
func New(out *gousb.OutEndpoint, in *gousb.InEndpoint, freq physic.Frequency) (*Cable, error) {
	return newCable(out, in, freq)
}

func newCable(out bulkWriter, in bulkReader, freq physic.Frequency) (*Cable, error) {
	c := &Cable{out: out, in: in}
	if err := c.checkStatus(); err != nil {
		return nil, err
	}
	if err := c.selectInterface(ifaceJTAG); err != nil {
		return nil, err
	}
	if err := c.DeassertTRST(); err != nil {
		return nil, err
	}
	if err := c.DeassertSRST(); err != nil {
		return nil, err
	}
	if err := c.SetSpeed(freq); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cable) send(cmd byte, payload []byte) error {
	logf("jlink: sending command 0x%02x, %d byte payload", cmd, len(payload))
	buf := make([]byte, 0, 1+len(payload))
	buf = append(buf, cmd)
	buf = append(buf, payload...)
	_, err := c.out.Write(buf)
	return err
}

func (c *Cable) recv(n int) ([]byte, error) {
	buf := make([]byte, n)
	for offset := 0; offset != n; {
		k, err := c.in.Read(buf[offset:])
		if err != nil {
			return nil, err
		}
		if k == 0 {
			return nil, fmt.Errorf("jlink: short read from adapter")
		}
		offset += k
	}
	return buf, nil
}

// checkStatus issues 0x07 and aborts if the measured target voltage is
// below 1.5V, the probe's own signal that nothing is powered or
// connected.
func (c *Cable) checkStatus() error {
	if err := c.send(cmdStatus, nil); err != nil {
		return err
	}
	data, err := c.recv(8)
	if err != nil {
		return err
	}
	vref := uint16(data[0]) | uint16(data[1])<<8
	if vref < 1500 {
		return fmt.Errorf("jlink: target voltage %dmV too low (need >=1500mV)", vref)
	}
	return nil
}

func (c *Cable) selectInterface(iface byte) error {
	if err := c.send(cmdSelectIF, []byte{iface}); err != nil {
		return err
	}
	_, err := c.recv(4)
	return err
}

// SetSpeed programs the TCK clock via the 0x05 command, which takes the
// rate in kHz.
func (c *Cable) SetSpeed(freq physic.Frequency) error {
	khz := uint32(freq / physic.KiloHertz)
	if khz == 0 {
		khz = 1
	}
	return c.send(cmdSetClock, []byte{byte(khz), byte(khz >> 8)})
}

func (c *Cable) AssertSRST() error   { return c.send(cmdSRSTAssert, nil) }
func (c *Cable) DeassertSRST() error { return c.send(cmdSRSTDeassert, nil) }
func (c *Cable) AssertTRST() error   { return c.send(cmdTRSTAssert, nil) }
func (c *Cable) DeassertTRST() error { return c.send(cmdTRSTDeassert, nil) }

// packBytes packs n bits (LSB-first, from bit(i)) into ceil(n/8) bytes.
func packBytes(n int, bit func(i int) bool) []byte {
	out := make([]byte, (n+7)/8)
	for i := 0; i < n; i++ {
		if bit(i) {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// tapSequence issues one or more 0xCD commands covering n cycles, each
// with its own TMS/TDI bit source, queuing the responses rather than
// reading them back immediately. It returns the first send error; the
// chunks sent before that error stay queued.
func (c *Cable) tapSequence(n int, tmsBit, tdiBit func(i int) bool) error {
	for done := 0; done < n; {
		chunk := n - done
		if chunk > maxBitsPerCmd {
			chunk = maxBitsPerCmd
		}
		base := done
		tms := packBytes(chunk, func(i int) bool { return tmsBit(base + i) })
		tdi := packBytes(chunk, func(i int) bool { return tdiBit(base + i) })
		payload := make([]byte, 0, 2+len(tms)+len(tdi))
		payload = append(payload, byte(chunk), byte(chunk>>8))
		payload = append(payload, tms...)
		payload = append(payload, tdi...)
		if err := c.send(cmdTAPSequence, payload); err != nil {
			return err
		}
		c.queue = append(c.queue, pendingRead{bits: chunk, bytes: (chunk + 7) / 8})
		done += chunk
	}
	return nil
}

// drainBits reads back every queued command's response bytes and repacks
// them into a single Bits of totalBits bits, LSB-first, consuming the
// queue entries it reads.
func (c *Cable) drainBits(totalBits int) (cable.Bits, error) {
	var out []int
	remaining := totalBits
	for remaining > 0 {
		cable.Assertf(len(c.queue) > 0, "jlink", "tap sequence response queue underflow")
		p := c.queue[0]
		c.queue = c.queue[1:]
		data, err := c.recv(p.bytes)
		if err != nil {
			return cable.Bits{}, err
		}
		for i := 0; i < p.bits; i++ {
			out = append(out, int((data[i/8]>>uint(i%8))&1))
		}
		remaining -= p.bits
	}
	return cable.PackBits(out), nil
}

// ChangeMode clocks len(tms) cycles with TDI held at tdiLevel; the
// response is still generated by the adapter (0xCD always replies) so it
// must be drained even though the caller doesn't want the data, keeping
// the command/response stream in lockstep.
func (c *Cable) ChangeMode(tmsBits []byte, tdiLevel bool) error {
	n := len(tmsBits)
	if n == 0 {
		return nil
	}
	if err := c.tapSequence(n, func(i int) bool { return tmsBits[i] != 0 }, func(int) bool { return tdiLevel }); err != nil {
		return err
	}
	_, err := c.drainBits(n)
	return err
}

func (c *Cable) ReadData(bits int) (cable.Bits, error) {
	cable.Assertf(bits > 0, "jlink", "read_data bits must be positive")
	if err := c.tapSequence(bits, func(int) bool { return false }, func(int) bool { return true }); err != nil {
		return cable.Bits{}, err
	}
	return c.drainBits(bits)
}

func (c *Cable) WriteData(data cable.Bits, pauseAfter bool) error {
	n := data.Len()
	cable.Assertf(n > 0, "jlink", "write_data called with zero bits")
	if err := c.queueReadWrite(data, pauseAfter); err != nil {
		return err
	}
	_, err := c.drainBits(n)
	return err
}

func (c *Cable) ReadWriteData(data cable.Bits, pauseAfter bool) (cable.Bits, error) {
	n := data.Len()
	cable.Assertf(n > 0, "jlink", "read_write_data called with zero bits")
	if err := c.queueReadWrite(data, pauseAfter); err != nil {
		return cable.Bits{}, err
	}
	return c.drainBits(n)
}

// queueReadWrite issues the 0xCD command(s) for a write/read-write: TMS
// is raised on the last requested bit when pauseAfter is set (the TAP
// sequence command can drive TMS and TDI independently on every cycle,
// so — as with GPIO — no extra synthetic cycle is needed regardless of
// byte alignment).
func (c *Cable) queueReadWrite(data cable.Bits, pauseAfter bool) error {
	n := data.Len()
	return c.tapSequence(n,
		func(i int) bool { return pauseAfter && i == n-1 },
		func(i int) bool { return data.Bit(i) != 0 },
	)
}

// QueueRead defers the read the same way ReadData does, without waiting
// for the response; FinishRead (or a later synchronous call) drains it.
// This back-end has no fixed queue capacity, so it never returns false.
func (c *Cable) QueueRead(bits int) (bool, error) {
	cable.Assertf(bits > 0, "jlink", "queue_read bits must be positive")
	if err := c.tapSequence(bits, func(int) bool { return false }, func(int) bool { return true }); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cable) QueueReadWrite(data cable.Bits, pauseAfter bool) (bool, error) {
	cable.Assertf(data.Len() > 0, "jlink", "queue_read_write called with zero bits")
	if err := c.queueReadWrite(data, pauseAfter); err != nil {
		return false, err
	}
	return true, nil
}

// FinishRead drains exactly bits worth of responses from the front of
// the queue; bits must match what was originally queued.
func (c *Cable) FinishRead(bits int) (cable.Bits, error) {
	cable.Assertf(bits > 0, "jlink", "finish_read bits must be positive")
	out, err := c.drainBits(bits)
	if err != nil {
		return cable.Bits{}, err
	}
	cable.Assertf(out.Len() == bits, "jlink", "finish_read bits %d does not match queued %d", bits, out.Len())
	return out, nil
}

// Flush is a no-op: commands are written to the adapter as soon as they
// are queued (there is no local command buffer to push out), only their
// responses are deferred.
func (c *Cable) Flush() error { return nil }

func (c *Cable) Close() error { return nil }
