// Copyright 2026 The jtagtap Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gpiocable

import (
	"testing"

	"github.com/gojtag/jtagtap/cable"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// fakeOut records every level it is driven to.
type fakeOut struct {
	gpio.PinOut
	levels []gpio.Level
}

func (f *fakeOut) Out(l gpio.Level) error {
	f.levels = append(f.levels, l)
	return nil
}

func (f *fakeOut) String() string { return "fakeOut" }

// loopbackIn samples whatever src (the TDI pin) was most recently driven to, one
// cycle late, giving the "TDO = TDI delayed by one bit" behavior the
// round-trip properties expect.
type loopbackIn struct {
	gpio.PinIn
	src  *fakeOut
	prev gpio.Level
}

func (f *loopbackIn) In(gpio.Pull, gpio.Edge) error { return nil }

func (f *loopbackIn) Read() gpio.Level {
	out := f.prev
	if n := len(f.src.levels); n > 0 {
		f.prev = f.src.levels[n-1]
	}
	return out
}

func (f *loopbackIn) String() string { return "loopbackIn" }

func newLoopback(freq physic.Frequency) (*Cable, *fakeOut, *fakeOut, *fakeOut) {
	tck := &fakeOut{}
	tms := &fakeOut{}
	tdi := &fakeOut{}
	tdo := &loopbackIn{src: tdi}
	c, err := New(tck, tms, tdi, tdo, freq)
	if err != nil {
		panic(err)
	}
	return c, tck, tms, tdi
}

func TestReadWriteDataLoopback(t *testing.T) {
	c, _, _, _ := newLoopback(10 * physic.MegaHertz)
	payload := cable.MustBits([]byte{0xA5}, 8)

	// Prime the loopback with a leading write so the first sampled bit
	// during the real operation corresponds to a known prior TDI value.
	if _, err := c.ReadWriteData(cable.MustBits([]byte{0x01}, 1), false); err != nil {
		t.Fatal(err)
	}

	got, err := c.ReadWriteData(payload, false)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 8 {
		t.Fatalf("got %d bits, want 8", got.Len())
	}
	// The sampled stream is the driven stream delayed by one bit: bit 0
	// of the response equals the priming bit (1), and bit i (i>0) equals
	// payload bit i-1.
	if got.Bit(0) != 1 {
		t.Fatalf("bit 0 = %d, want 1 (the priming bit)", got.Bit(0))
	}
	for i := 1; i < 8; i++ {
		if got.Bit(i) != payload.Bit(i-1) {
			t.Fatalf("bit %d = %d, want %d", i, got.Bit(i), payload.Bit(i-1))
		}
	}
}

func TestWriteDataPauseAfterRaisesTMSOnLastBit(t *testing.T) {
	c, _, tms, _ := newLoopback(10 * physic.MegaHertz)
	data := cable.MustBits([]byte{0xFF}, 8)
	if err := c.WriteData(data, true); err != nil {
		t.Fatal(err)
	}
	if len(tms.levels) != 8 {
		t.Fatalf("got %d TMS samples, want 8", len(tms.levels))
	}
	for i, l := range tms.levels {
		want := i == 7
		if bool(l) != want {
			t.Fatalf("TMS cycle %d = %v, want %v", i, l, want)
		}
	}
}

func TestSetSpeedRejectsZero(t *testing.T) {
	c, _, _, _ := newLoopback(physic.MegaHertz)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on zero frequency")
		}
	}()
	_ = c.SetSpeed(0)
}
