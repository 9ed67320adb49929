// Copyright 2026 The jtagtap Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mock

import (
	"bytes"
	"testing"

	"github.com/gojtag/jtagtap/cable"
)

func TestLoopbackDelaysByOneBit(t *testing.T) {
	c := New(0)
	// Prime the delay flip-flop with a known bit.
	if _, err := c.ReadWriteData(cable.MustBits([]byte{0x01}, 1), false); err != nil {
		t.Fatal(err)
	}
	payload := cable.MustBits([]byte{0xA5}, 8)
	got, err := c.ReadWriteData(payload, false)
	if err != nil {
		t.Fatal(err)
	}
	if got.Bit(0) != 1 {
		t.Fatalf("bit 0 = %d, want the primed 1", got.Bit(0))
	}
	for i := 1; i < 8; i++ {
		if got.Bit(i) != payload.Bit(i-1) {
			t.Fatalf("bit %d = %d, want %d", i, got.Bit(i), payload.Bit(i-1))
		}
	}
}

func TestQueueMatchesSynchronousReadWrite(t *testing.T) {
	payload := cable.MustBits([]byte{0x3C, 0x05}, 3)

	sync := New(0)
	want, err := sync.ReadWriteData(payload, false)
	if err != nil {
		t.Fatal(err)
	}

	queued := New(0)
	ok, err := queued.QueueReadWrite(payload, false)
	if err != nil || !ok {
		t.Fatalf("QueueReadWrite = %v, %v", ok, err)
	}
	got, err := queued.FinishRead(payload.Len())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Data, want.Data) || got.Len() != want.Len() {
		t.Fatalf("queued result %#v differs from synchronous %#v", got.Data, want.Data)
	}
}

func TestQueueCapReportsFull(t *testing.T) {
	c := New(1)
	if ok, _ := c.QueueRead(4); !ok {
		t.Fatal("first QueueRead reported full on an empty queue")
	}
	if ok, _ := c.QueueRead(4); ok {
		t.Fatal("second QueueRead did not report the queue full")
	}
	if _, err := c.FinishRead(4); err != nil {
		t.Fatal(err)
	}
	if ok, _ := c.QueueRead(4); !ok {
		t.Fatal("QueueRead still reports full after a drain")
	}
}

func TestFinishReadChecksBitCount(t *testing.T) {
	c := New(0)
	if ok, err := c.QueueRead(8); err != nil || !ok {
		t.Fatalf("QueueRead = %v, %v", ok, err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on mismatched finish_read bit count")
		}
	}()
	_, _ = c.FinishRead(7)
}

func TestPauseAfterOnByteMultipleHidesExtraCycle(t *testing.T) {
	c := New(0)
	payload := cable.MustBits([]byte{0xFF}, 8)
	got, err := c.ReadWriteData(payload, true)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 8 {
		t.Fatalf("got %d bits, want 8 (the extra pause cycle must stay hidden)", got.Len())
	}
}
