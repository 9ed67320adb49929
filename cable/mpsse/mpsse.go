// Copyright 2026 The jtagtap Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package mpsse drives an FTDI MPSSE-capable chip (FT2232H, FT4232H,
// FT232H and JTAGkey/Bus Blaster style adapters built on them) as a
// cable.Cable, batching commands into the chip's command processor and
// reading TDO back in one USB transfer per flush.
package mpsse

import (
	"context"
	"errors"
	"time"

	"github.com/gojtag/jtagtap/cable"
	"github.com/gojtag/jtagtap/cable/internal/ftdiio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/d2xx"
)

const (
	dataOut     byte = 0x10
	dataIn      byte = 0x20
	dataOutFall byte = 0x01
	dataLSBF    byte = 0x08
	dataBit     byte = 0x02

	tmsOutLSBFNeg   byte = 0x4B
	tmsInOutLSBFNeg byte = 0x6B

	loopbackDisable byte = 0x85
	gpioSetC        byte = 0x82
	gpioSetD        byte = 0x80

	clock30MHz      byte = 0x8A
	clock6MHz       byte = 0x8B
	clockSetDivisor byte = 0x86
	clock2Phase     byte = 0x8D
	clockNormal     byte = 0x97

	flushCmd byte = 0x87
)

// maxBuffer bounds how much we batch before forcing a flush, matching the
// FTDI MPSSE adapters' 4KiB USB transfer sweet spot.
const maxBuffer = 4096

type segKind int

const (
	segFull segKind = iota
	segPartial
	segTMS
)

// segment describes one response byte group so FinishRead can unpack it
// with the right bit alignment: full-byte reads land LSB-first directly,
// a sub-8-bit clock_bits read is top-justified by the chip and needs a
// shift, and the single TMS-clocked final bit lands in bit 7.
type segment struct {
	kind segKind
	n    int
}

type pendingRead struct {
	bits int
	segs []segment
}

// Cable talks MPSSE over an ftdiio.Handle already switched into MPSSE bit
// mode. Use New for a plain MPSSE adapter (Bus Blaster in "buspirate"
// mode, FT232H breakout) or NewJtagKey for adapters that additionally
// wire SRST/TRST through the chip's upper GPIO byte.
type Cable struct {
	h    *ftdiio.Handle
	freq physic.Frequency

	buf     []byte
	pending []pendingRead

	resetLines bool
	upperState byte
}

var (
	_ cable.Cable         = (*Cable)(nil)
	_ cable.QueueingCable = (*Cable)(nil)
	_ cable.ResetLines    = (*Cable)(nil)
)

// New takes an already-opened FTDI device handle, switches it into MPSSE
// mode, disables the 3-phase/adaptive/loopback clocking modes JTAG never
// wants, and sets the initial TCK to freq. Enumerating and opening the
// device stays the caller's job.
func New(d d2xx.Handle, freq physic.Frequency) (*Cable, error) {
	return newCable(d, freq)
}

func newCable(d ftdiio.Dev, freq physic.Frequency) (*Cable, error) {
	h, err := ftdiio.New(d)
	if err != nil {
		return nil, err
	}
	if err := h.Reset(); err != nil {
		return nil, err
	}
	if err := h.Init(); err != nil {
		return nil, err
	}
	if err := h.SetBitMode(0, ftdiio.ModeMPSSE); err != nil {
		return nil, err
	}
	c := &Cable{h: h}
	init := []byte{
		clock30MHz, clockNormal, clock2Phase, loopbackDisable,
		gpioSetC, 0x00, 0x00,
		gpioSetD, 0x00, 0x00,
	}
	if _, err := h.Write(init); err != nil {
		return nil, err
	}
	if err := c.SetSpeed(freq); err != nil {
		return nil, err
	}
	return c, nil
}

// Upper GPIO byte wiring for JTAGkey/Bus Blaster compatible adapters: two
// active-low reset outputs, each with its own output-enable bit so the
// line can also be left floating.
const (
	pinNTRST       byte = 1
	pinNSRST       byte = 1 << 1
	pinNTRSTOE     byte = 1 << 2
	pinNSRSTOE     byte = 1 << 3
	upperOutputMap      = pinNTRST | pinNSRST | pinNTRSTOE | pinNSRSTOE
)

// NewJtagKey is New plus enabling the ResetLines capability for adapters
// that expose SRST/TRST on ACBUS the way the Bus Blaster and Amontec
// JTAGkey do: both lines start deasserted.
func NewJtagKey(d d2xx.Handle, freq physic.Frequency) (*Cable, error) {
	return newJtagKey(d, freq)
}

func newJtagKey(d ftdiio.Dev, freq physic.Frequency) (*Cable, error) {
	c, err := newCable(d, freq)
	if err != nil {
		return nil, err
	}
	c.resetLines = true
	c.upperState = pinNTRST | pinNSRST
	if err := c.writeUpperGPIO(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cable) writeUpperGPIO() error {
	_, err := c.h.Write([]byte{gpioSetC, c.upperState, upperOutputMap})
	return err
}

func (c *Cable) AssertTRST() error {
	cable.Assertf(c.resetLines, "mpsse", "this adapter does not expose TRST")
	c.upperState &^= pinNTRST
	return c.writeUpperGPIO()
}

func (c *Cable) DeassertTRST() error {
	cable.Assertf(c.resetLines, "mpsse", "this adapter does not expose TRST")
	c.upperState |= pinNTRST
	return c.writeUpperGPIO()
}

func (c *Cable) AssertSRST() error {
	cable.Assertf(c.resetLines, "mpsse", "this adapter does not expose SRST")
	c.upperState &^= pinNSRST
	return c.writeUpperGPIO()
}

func (c *Cable) DeassertSRST() error {
	cable.Assertf(c.resetLines, "mpsse", "this adapter does not expose SRST")
	c.upperState |= pinNSRST
	return c.writeUpperGPIO()
}

// SetSpeed programs TCK to the closest divisor of 30MHz (or 6MHz, for
// very low rates) that does not exceed freq.
func (c *Cable) SetSpeed(freq physic.Frequency) error {
	base := 30 * physic.MegaHertz
	clk := clock30MHz
	div := uint32((base + freq - 1) / freq)
	if div == 0 {
		div = 1
	}
	if div > 65536 {
		clk = clock6MHz
		base /= 5
		div = uint32((base + freq - 1) / freq)
		if div > 65536 {
			return errors.New("mpsse: requested clock frequency too low")
		}
		if div == 0 {
			div = 1
		}
	}
	cmd := []byte{clk, clockSetDivisor, byte(div - 1), byte((div - 1) >> 8)}
	if _, err := c.h.Write(cmd); err != nil {
		return err
	}
	c.freq = base / physic.Frequency(div)
	return nil
}

func (c *Cable) queueBytes(b []byte) error {
	if len(c.buf)+len(b) > maxBuffer {
		if err := c.Flush(); err != nil {
			return err
		}
	}
	c.buf = append(c.buf, b...)
	return nil
}

// ChangeMode clocks each TMS bit in chunks of up to 7 (the command's own
// limit) with TDI held at tdiLevel throughout, without sampling TDO.
func (c *Cable) ChangeMode(tms []byte, tdiLevel bool) error {
	i := 0
	for i < len(tms) {
		n := len(tms) - i
		if n > 7 {
			n = 7
		}
		var data byte
		for j := 0; j < n; j++ {
			if tms[i+j] != 0 {
				data |= 1 << uint(j)
			}
		}
		if tdiLevel {
			data |= 1 << 7
		}
		if err := c.queueBytes([]byte{tmsOutLSBFNeg, byte(n - 1), data}); err != nil {
			return err
		}
		i += n
	}
	return nil
}

// buildClock appends the command(s) to clock the first n bits of data,
// optionally sampling TDO (when hasRead), and returns the response
// segments those commands will produce. TDI changes on the falling TCK
// edge and TDO is sampled on the rising edge, the alignment every JTAG
// target expects.
func (c *Cable) buildClock(data cable.Bits, hasRead bool, n int) ([]segment, error) {
	var segs []segment
	full := n / 8
	rem := n % 8

	if full > 0 {
		op := dataOut | dataOutFall | dataLSBF
		if hasRead {
			op |= dataIn
			segs = append(segs, segment{segFull, full * 8})
		}
		cmd := []byte{op, byte((full - 1) & 0xff), byte((full - 1) >> 8)}
		cmd = append(cmd, data.Data[:full]...)
		if err := c.queueBytes(cmd); err != nil {
			return nil, err
		}
	}
	if rem > 0 {
		op := dataBit | dataOut | dataOutFall | dataLSBF
		if hasRead {
			op |= dataIn
			segs = append(segs, segment{segPartial, rem})
		}
		if err := c.queueBytes([]byte{op, byte(rem - 1), data.Data[full]}); err != nil {
			return nil, err
		}
	}
	return segs, nil
}

func (c *Cable) WriteData(data cable.Bits, pauseAfter bool) error {
	n := data.Len()
	cable.Assertf(n > 0, "mpsse", "write_data called with zero bits")
	last := data.Bit(n - 1)
	if _, err := c.buildClock(data, false, n-1); err != nil {
		return err
	}
	// The final requested bit is always routed through the clock-TMS
	// command: it is the only MPSSE command that can drive TMS and TDI
	// on the same cycle, which is what lets this single edge both carry
	// the last data bit and raise TMS into Exit1* when pauseAfter is set.
	var tmsByte byte
	if last != 0 {
		tmsByte |= 1 << 7
	}
	if pauseAfter {
		tmsByte |= 1
	}
	return c.queueBytes([]byte{tmsOutLSBFNeg, 0, tmsByte})
}

func (c *Cable) ReadData(bits int) (cable.Bits, error) {
	cable.Assertf(bits > 0, "mpsse", "read_data bits must be positive")
	segs, err := c.buildClock(cable.OnesBits(bits), true, bits)
	if err != nil {
		return cable.Bits{}, err
	}
	c.pending = append(c.pending, pendingRead{bits: bits, segs: segs})
	return c.FinishRead(bits)
}

func (c *Cable) ReadWriteData(data cable.Bits, pauseAfter bool) (cable.Bits, error) {
	n := data.Len()
	cable.Assertf(n > 0, "mpsse", "read_write_data called with zero bits")
	last := data.Bit(n - 1)
	segs, err := c.buildClock(data, true, n-1)
	if err != nil {
		return cable.Bits{}, err
	}
	var tmsByte byte
	if last != 0 {
		tmsByte |= 1 << 7
	}
	if pauseAfter {
		tmsByte |= 1
	}
	if err := c.queueBytes([]byte{tmsInOutLSBFNeg, 0, tmsByte}); err != nil {
		return cable.Bits{}, err
	}
	segs = append(segs, segment{segTMS, 1})

	c.pending = append(c.pending, pendingRead{bits: n, segs: segs})
	return c.FinishRead(n)
}

func (c *Cable) QueueRead(bits int) (bool, error) {
	if c.bufferedReadBytes()+(bits+7)/8 >= maxBuffer {
		return false, nil
	}
	segs, err := c.buildClock(cable.OnesBits(bits), true, bits)
	if err != nil {
		return false, err
	}
	c.pending = append(c.pending, pendingRead{bits: bits, segs: segs})
	return true, nil
}

func (c *Cable) QueueReadWrite(data cable.Bits, pauseAfter bool) (bool, error) {
	n := data.Len()
	// n-1 bits through the data commands plus one TMS-clocked byte.
	if c.bufferedReadBytes()+(n-1+7)/8+1 >= maxBuffer {
		return false, nil
	}
	last := data.Bit(n - 1)
	segs, err := c.buildClock(data, true, n-1)
	if err != nil {
		return false, err
	}
	var tmsByte byte
	if last != 0 {
		tmsByte |= 1 << 7
	}
	if pauseAfter {
		tmsByte |= 1
	}
	if err := c.queueBytes([]byte{tmsInOutLSBFNeg, 0, tmsByte}); err != nil {
		return false, err
	}
	segs = append(segs, segment{segTMS, 1})
	c.pending = append(c.pending, pendingRead{bits: n, segs: segs})
	return true, nil
}

func segBytes(segs []segment) int {
	n := 0
	for _, s := range segs {
		switch s.kind {
		case segFull:
			n += s.n / 8
		default:
			n++
		}
	}
	return n
}

func (c *Cable) bufferedReadBytes() int {
	total := 0
	for _, p := range c.pending {
		total += segBytes(p.segs)
	}
	return total
}

func (c *Cable) FinishRead(bits int) (cable.Bits, error) {
	cable.Assertf(len(c.pending) > 0, "mpsse", "finish_read called with nothing queued")
	p := c.pending[0]
	cable.Assertf(p.bits == bits, "mpsse", "finish_read bits %d does not match queued %d", bits, p.bits)

	raw := make([]byte, segBytes(p.segs))
	if _, err := c.h.Write(append(c.buf, flushCmd)); err != nil {
		return cable.Bits{}, err
	}
	c.buf = nil
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.h.ReadAll(ctx, raw); err != nil {
		return cable.Bits{}, err
	}
	c.pending = c.pending[1:]
	return cable.PackBits(decodeSegments(raw, p.segs)), nil
}

func decodeSegments(raw []byte, segs []segment) []int {
	var out []int
	idx := 0
	for _, s := range segs {
		switch s.kind {
		case segFull:
			for b := 0; b < s.n/8; b++ {
				v := raw[idx]
				idx++
				for j := 0; j < 8; j++ {
					out = append(out, int((v>>uint(j))&1))
				}
			}
		case segPartial:
			v := raw[idx] >> uint(8-s.n)
			idx++
			for j := 0; j < s.n; j++ {
				out = append(out, int((v>>uint(j))&1))
			}
		case segTMS:
			out = append(out, int((raw[idx]>>7)&1))
			idx++
		}
	}
	return out
}

func (c *Cable) Flush() error {
	if len(c.buf) == 0 {
		return nil
	}
	logf("mpsse: flushing %d command bytes", len(c.buf))
	if _, err := c.h.Write(c.buf); err != nil {
		return err
	}
	c.buf = nil
	return nil
}

func (c *Cable) Close() error {
	return c.h.Close()
}
