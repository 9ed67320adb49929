// Copyright 2026 The jtagtap Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package usbblaster

import (
	"bytes"
	"testing"

	"github.com/gojtag/jtagtap/cable"
	"github.com/gojtag/jtagtap/cable/internal/ftdiio/ftdiiotest"
	"periph.io/x/conn/v3/physic"
)

// newLoopback answers every read-enabled output byte with a response byte
// whose TDO bit mirrors the TDI level that byte drove, and answers
// nothing for bytes without the read flag — the USB Blaster's one
// response byte per read-enabled input byte.
func newLoopback(t *testing.T) (*Cable, *ftdiiotest.Fake) {
	t.Helper()
	f := &ftdiiotest.Fake{}
	f.OnWrite = func(b []byte) []byte {
		var resp []byte
		for _, v := range b {
			if v&readCmd != 0 {
				resp = append(resp, (v>>Default.TDI&1)<<Default.TDO)
			}
		}
		return resp
	}
	c, err := newCable(f, Default, physic.MegaHertz)
	if err != nil {
		t.Fatal(err)
	}
	f.Writes = nil
	return c, f
}

func TestNewConfiguresAsyncBitbang(t *testing.T) {
	f := &ftdiiotest.Fake{}
	if _, err := newCable(f, Default, physic.MegaHertz); err != nil {
		t.Fatal(err)
	}
	mask := byte(1<<Default.TCK | 1<<Default.TMS | 1<<Default.TDI)
	if len(f.BitModes) != 1 || f.BitModes[0] != [2]byte{mask, 0x01} {
		t.Fatalf("BitModes = %v, want [[%#x 0x01]]", f.BitModes, mask)
	}
}

func TestWriteDataWireFormat(t *testing.T) {
	c, f := newLoopback(t)
	if err := c.WriteData(cable.MustBits([]byte{0x05}, 3), true); err != nil {
		t.Fatal(err)
	}
	tdi := byte(1 << Default.TDI)
	tms := byte(1 << Default.TMS)
	tck := byte(1 << Default.TCK)
	want := []byte{
		tdi, tdi | tck, // bit 0 = 1
		0, tck, // bit 1 = 0
		tdi | tms, tdi | tms | tck, // bit 2 = 1, TMS raised on the last cycle
	}
	if !bytes.Equal(f.AllWrites(), want) {
		t.Fatalf("wire = %#v, want %#v", f.AllWrites(), want)
	}
}

func TestReadDataSetsReadFlagOnClockHighBytes(t *testing.T) {
	c, f := newLoopback(t)
	got, err := c.ReadData(4)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 4 || got.Data[0]&0x0F != 0x0F {
		t.Fatalf("got %#v (%d bits), want all ones over 4 bits", got.Data, got.Len())
	}
	wire := f.AllWrites()
	if len(wire) != 8 {
		t.Fatalf("wire is %d bytes, want 8 (two per cycle)", len(wire))
	}
	for i, w := range wire {
		wantRead := i%2 == 1
		if (w&readCmd != 0) != wantRead {
			t.Fatalf("byte %d read flag = %v, want %v", i, w&readCmd != 0, wantRead)
		}
	}
}

func TestChangeModeRequestsNoSamples(t *testing.T) {
	c, f := newLoopback(t)
	if err := c.ChangeMode([]byte{1, 0, 1}, true); err != nil {
		t.Fatal(err)
	}
	for i, w := range f.AllWrites() {
		if w&readCmd != 0 {
			t.Fatalf("byte %d has the read flag set during a mode change: %#x", i, w)
		}
	}
}

func TestReadWriteDataLoopback(t *testing.T) {
	c, _ := newLoopback(t)
	payload := cable.MustBits([]byte{0xC3}, 8)
	got, err := c.ReadWriteData(payload, false)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Data, payload.Data) || got.Len() != 8 {
		t.Fatalf("loopback returned %#v, want %#v", got.Data, payload.Data)
	}
}

func TestQueueFallbackPreservesFIFOOrder(t *testing.T) {
	c, _ := newLoopback(t)
	if ok, err := c.QueueRead(3); err != nil || !ok {
		t.Fatalf("QueueRead = %v, %v", ok, err)
	}
	if ok, err := c.QueueReadWrite(cable.MustBits([]byte{0x02}, 2), false); err != nil || !ok {
		t.Fatalf("QueueReadWrite = %v, %v", ok, err)
	}
	first, err := c.FinishRead(3)
	if err != nil {
		t.Fatal(err)
	}
	if first.Len() != 3 || first.Data[0]&0x07 != 0x07 {
		t.Fatalf("first = %#v, want 3 one-bits", first.Data)
	}
	second, err := c.FinishRead(2)
	if err != nil {
		t.Fatal(err)
	}
	if second.Len() != 2 || second.Data[0]&0x03 != 0x02 {
		t.Fatalf("second = %#v, want the 0b10 payload echoed", second.Data)
	}
}
