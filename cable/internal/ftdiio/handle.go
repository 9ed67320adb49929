// Copyright 2026 The jtagtap Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ftdiio wraps a periph.io/x/d2xx device handle with the small set
// of operations the JTAG back-ends need: blocking/nonblocking reads,
// chunked writes, bit mode and baud rate control. It is shared by
// cable/mpsse, cable/bitbang and cable/usbblaster so none of them touch
// d2xx.Handle directly.
package ftdiio

import (
	"context"
	"errors"
	"io"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/d2xx"
)

// BitMode selects the chip's DBus operating mode.
type BitMode uint8

const (
	ModeReset        BitMode = 0x00
	ModeAsyncBitbang BitMode = 0x01
	ModeMPSSE        BitMode = 0x02
	ModeSyncBitbang  BitMode = 0x04
)

// Dev is the subset of d2xx.Handle the JTAG back-ends exercise. d2xx.Handle
// satisfies it directly; tests substitute a fake.
type Dev interface {
	Close() d2xx.Err
	ResetDevice() d2xx.Err
	GetDeviceInfo() (uint32, uint16, uint16, d2xx.Err)
	SetUSBParameters(in, out int) d2xx.Err
	SetChars(eventChar byte, eventEn bool, errorChar byte, errorEn bool) d2xx.Err
	SetTimeouts(readMS, writeMS int) d2xx.Err
	SetLatencyTimer(delayMS uint8) d2xx.Err
	SetFlowControl() d2xx.Err
	SetBaudRate(hz uint32) d2xx.Err
	SetBitMode(mask, mode byte) d2xx.Err
	GetQueueStatus() (uint32, d2xx.Err)
	Read(b []byte) (int, d2xx.Err)
	Write(b []byte) (int, d2xx.Err)
}

// Handle is a thin, Go-idiomatic wrapper around a d2xx device handle.
type Handle struct {
	h     Dev
	venID uint16
	devID uint16
}

// New wraps an already-opened device handle. The caller keeps
// responsibility for having picked the right device; New only queries its
// USB descriptor identifiers.
func New(d Dev) (*Handle, error) {
	h := &Handle{h: d}
	_, vid, did, e := d.GetDeviceInfo()
	if e != 0 {
		_ = h.Close()
		return nil, toErr("GetDeviceInfo", e)
	}
	h.venID = vid
	h.devID = did
	return h, nil
}

// OpenIndex opens the i-th FTDI device the driver enumerates.
func OpenIndex(i int) (*Handle, error) {
	h, e := d2xx.Open(i)
	if e != 0 {
		return nil, toErr("Open", e)
	}
	return New(h)
}

// VenID and DevID report the USB descriptor identifiers observed at open.
func (h *Handle) VenID() uint16 { return h.venID }
func (h *Handle) DevID() uint16 { return h.devID }

func (h *Handle) Close() error {
	return toErr("Close", h.h.Close())
}

// Init performs the same non-destructive setup sequence every FTDI backend
// needs before touching MPSSE or bit-bang mode: generous USB packet size,
// long I/O timeouts so a stall is visible rather than silently eaten, and a
// 1ms latency timer.
func (h *Handle) Init() error {
	if e := h.h.SetUSBParameters(65536, 0); e != 0 {
		return toErr("SetUSBParameters", e)
	}
	if e := h.h.SetTimeouts(5000, 5000); e != 0 {
		return toErr("SetTimeouts", e)
	}
	if e := h.h.SetChars(0, false, 0, false); e != 0 {
		return toErr("SetChars", e)
	}
	if e := h.h.SetLatencyTimer(1); e != 0 {
		return toErr("SetLatencyTimer", e)
	}
	return nil
}

// Reset resets the device and its bit mode, then drains whatever the
// device spews right after a reset.
func (h *Handle) Reset() error {
	if e := h.h.ResetDevice(); e != 0 {
		return toErr("Reset", e)
	}
	if err := h.SetBitMode(0, ModeReset); err != nil {
		return err
	}
	_ = h.Flush()
	return nil
}

// SetBitMode changes the chip's DBus operating mode. mask selects which
// pins are driven as outputs, for the modes that need it.
func (h *Handle) SetBitMode(mask byte, mode BitMode) error {
	return toErr("SetBitMode", h.h.SetBitMode(mask, byte(mode)))
}

// SetFlowControl enables RTS/CTS flow control, required outside MPSSE mode
// to keep IN requests synchronized.
func (h *Handle) SetFlowControl() error {
	return toErr("SetFlowControl", h.h.SetFlowControl())
}

// SetBaudRate programs the synchronous/asynchronous bit-bang baud rate,
// which in MPSSE mode instead derives the TCK clock via ClockSetDivisor.
func (h *Handle) SetBaudRate(f physic.Frequency) error {
	if f >= physic.GigaHertz {
		return errors.New("ftdiio: baud rate too high")
	}
	return toErr("SetBaudRate", h.h.SetBaudRate(uint32(f/physic.Hertz)))
}

// Flush drains whatever is sitting in the read buffer without blocking.
func (h *Handle) Flush() error {
	var buf [128]byte
	for {
		n, err := h.Read(buf[:])
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

// Read returns as much as is already queued, without blocking.
func (h *Handle) Read(b []byte) (int, error) {
	p, e := h.h.GetQueueStatus()
	if p == 0 || e != 0 {
		return int(p), toErr("Read/GetQueueStatus", e)
	}
	v := int(p)
	if v > len(b) {
		v = len(b)
	}
	n, e := h.h.Read(b[:v])
	return n, toErr("Read", e)
}

// ReadAll blocks until len(b) bytes have been read or ctx is canceled.
func (h *Handle) ReadAll(ctx context.Context, b []byte) (int, error) {
	for offset := 0; offset != len(b); {
		if ctx.Err() != nil {
			return offset, io.EOF
		}
		chunk := len(b) - offset
		if chunk > 4096 {
			chunk = 4096
		}
		n, err := h.Read(b[offset : offset+chunk])
		if offset += n; err != nil {
			return offset, err
		}
	}
	return len(b), nil
}

// Write blocks until all of b has been written, chunking to stay under the
// driver's per-call maximum.
func (h *Handle) Write(b []byte) (int, error) {
	for offset := 0; offset != len(b); {
		chunk := len(b) - offset
		if chunk > 4096 {
			chunk = 4096
		}
		n, e := h.h.Write(b[offset : offset+chunk])
		if e != 0 {
			return offset + n, toErr("Write", e)
		}
		if n != 0 {
			offset += n
		}
	}
	return len(b), nil
}

func toErr(s string, e d2xx.Err) error {
	if e == 0 {
		return nil
	}
	return errors.New("ftdiio: " + s + ": " + e.String())
}
