// Copyright 2026 The jtagtap Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package jlink

import (
	"reflect"
	"testing"

	"github.com/gojtag/jtagtap/cable"
	"periph.io/x/conn/v3/physic"
)

// fakeProbe is a scripted bulkWriter/bulkReader pair that answers the
// fixed handshake (status, select interface) and then records every
// 0xCD command it is sent, answering each one with the next entry of
// tapResp.
type fakeProbe struct {
	writes [][]byte

	statusResp []byte
	ifaceResp  []byte
	tapResp    [][]byte // one entry per 0xCD command, consumed in order
}

func (f *fakeProbe) Write(b []byte) (int, error) {
	cp := make([]byte, len(b))
	copy(cp, b)
	f.writes = append(f.writes, cp)
	return len(b), nil
}

func (f *fakeProbe) Read(b []byte) (int, error) {
	last := f.writes[len(f.writes)-1]
	var resp []byte
	switch last[0] {
	case cmdStatus:
		resp = f.statusResp
	case cmdSelectIF:
		resp = f.ifaceResp
	case cmdTAPSequence:
		resp = f.tapResp[0]
		f.tapResp = f.tapResp[1:]
	default:
		resp = make([]byte, len(b))
	}
	n := copy(b, resp)
	return n, nil
}

func newFakeProbe() *fakeProbe {
	return &fakeProbe{
		statusResp: []byte{0xB8, 0x0B, 0, 0, 0, 0, 0, 0}, // 3000mV, well above the 1500mV threshold
		ifaceResp:  []byte{0, 0, 0, 0},
	}
}

func TestNewRejectsLowVoltage(t *testing.T) {
	p := newFakeProbe()
	p.statusResp = []byte{0xE8, 0x03, 0, 0, 0, 0, 0, 0} // 1000mV
	if _, err := newCable(p, p, physic.MegaHertz); err == nil {
		t.Fatal("expected low-voltage status to be rejected")
	}
}

func TestChangeModeFramesTAPSequence(t *testing.T) {
	p := newFakeProbe()
	p.tapResp = [][]byte{{0x00}}
	c, err := newCable(p, p, physic.MegaHertz)
	if err != nil {
		t.Fatal(err)
	}
	p.writes = nil

	if err := c.ChangeMode([]byte{1, 0, 1}, true); err != nil {
		t.Fatal(err)
	}

	var tapCmd []byte
	for _, w := range p.writes {
		if w[0] == cmdTAPSequence {
			tapCmd = w
		}
	}
	if tapCmd == nil {
		t.Fatal("no TAP sequence command sent")
	}
	want := []byte{cmdTAPSequence, 0x03, 0x00, 0b00000101, 0b00000111}
	if !reflect.DeepEqual(tapCmd, want) {
		t.Fatalf("TAP sequence command = %#v, want %#v", tapCmd, want)
	}
}

func TestReadWriteDataRoundTrip(t *testing.T) {
	p := newFakeProbe()
	p.tapResp = [][]byte{{0xA5}}
	c, err := newCable(p, p, physic.MegaHertz)
	if err != nil {
		t.Fatal(err)
	}

	data := cable.MustBits([]byte{0x00}, 8)
	got, err := c.ReadWriteData(data, false)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 8 {
		t.Fatalf("got %d bits, want 8", got.Len())
	}
	if !reflect.DeepEqual(got.Data, []byte{0xA5}) {
		t.Fatalf("got %#v, want {0xA5}", got.Data)
	}
}

func TestQueueReadThenFinishRead(t *testing.T) {
	p := newFakeProbe()
	p.tapResp = [][]byte{{0x3C}}
	c, err := newCable(p, p, physic.MegaHertz)
	if err != nil {
		t.Fatal(err)
	}

	ok, err := c.QueueRead(8)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("QueueRead reported queue full on an empty queue")
	}
	got, err := c.FinishRead(8)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Data, []byte{0x3C}) {
		t.Fatalf("got %#v, want {0x3C}", got.Data)
	}
}
