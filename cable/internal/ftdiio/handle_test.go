// Copyright 2026 The jtagtap Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ftdiio_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/gojtag/jtagtap/cable/internal/ftdiio"
	"github.com/gojtag/jtagtap/cable/internal/ftdiio/ftdiiotest"
	"periph.io/x/conn/v3/physic"
)

func newHandle(t *testing.T) (*ftdiio.Handle, *ftdiiotest.Fake) {
	t.Helper()
	f := &ftdiiotest.Fake{}
	h, err := ftdiio.New(f)
	if err != nil {
		t.Fatal(err)
	}
	return h, f
}

func TestNewReadsDeviceInfo(t *testing.T) {
	h, _ := newHandle(t)
	if h.VenID() != 0x0403 || h.DevID() != 0x6010 {
		t.Fatalf("VenID/DevID = %#x/%#x, want 0x0403/0x6010", h.VenID(), h.DevID())
	}
}

func TestWriteChunksLargeBuffers(t *testing.T) {
	h, f := newHandle(t)
	big := make([]byte, 10000)
	for i := range big {
		big[i] = byte(i)
	}
	n, err := h.Write(big)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(big) {
		t.Fatalf("wrote %d bytes, want %d", n, len(big))
	}
	wantChunks := []int{4096, 4096, 1808}
	if len(f.Writes) != len(wantChunks) {
		t.Fatalf("got %d chunks, want %d", len(f.Writes), len(wantChunks))
	}
	for i, w := range f.Writes {
		if len(w) != wantChunks[i] {
			t.Fatalf("chunk %d is %d bytes, want %d", i, len(w), wantChunks[i])
		}
	}
	if !bytes.Equal(f.AllWrites(), big) {
		t.Fatal("chunked writes do not reassemble into the original buffer")
	}
}

func TestReadAllBlocksUntilFilled(t *testing.T) {
	h, f := newHandle(t)
	want := []byte{1, 2, 3, 4, 5}
	f.Queue(want)
	got := make([]byte, len(want))
	if _, err := h.ReadAll(context.Background(), got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("ReadAll = %v, want %v", got, want)
	}
}

func TestReadAllHonorsCancellation(t *testing.T) {
	h, f := newHandle(t)
	f.Queue([]byte{1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := make([]byte, 4)
	if _, err := h.ReadAll(ctx, got); err == nil {
		t.Fatal("expected an error reading more bytes than will ever arrive")
	}
}

func TestFlushDrainsPendingBytes(t *testing.T) {
	h, f := newHandle(t)
	f.Queue(make([]byte, 300))
	if err := h.Flush(); err != nil {
		t.Fatal(err)
	}
	var buf [8]byte
	if n, _ := h.Read(buf[:]); n != 0 {
		t.Fatalf("read %d bytes after Flush, want 0", n)
	}
}

func TestSetBaudRateRejectsAbsurdRates(t *testing.T) {
	h, _ := newHandle(t)
	if err := h.SetBaudRate(physic.GigaHertz); err == nil {
		t.Fatal("expected an error for a 1GHz baud rate")
	}
}

func TestSetBaudRateProgramsHertz(t *testing.T) {
	h, f := newHandle(t)
	if err := h.SetBaudRate(3 * physic.MegaHertz); err != nil {
		t.Fatal(err)
	}
	if len(f.BaudRates) != 1 || f.BaudRates[0] != 3000000 {
		t.Fatalf("BaudRates = %v, want [3000000]", f.BaudRates)
	}
}
