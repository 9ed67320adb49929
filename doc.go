// Copyright 2026 The jtagtap Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package jtagtap allows for interacting with a JTAG test chain at a
// variety of levels of abstraction.
//
// At the lowest level, package cable and its sub-packages directly drive a
// JTAG cable: FTDI MPSSE ("jtagkey"-style) adapters, FTDI synchronous
// bitbang adapters, Altera USB Blaster, bit-banged GPIO, and SEGGER J-Link.
// The cable.Cable interface allows for changing TAP controller modes and
// shifting bits in and out of the chain.
//
// The next level up, package statemachine, tracks the mode of the TAP
// controller. Ask it for a target state (Reset, Idle, ShiftDR, ...) and it
// gets there in the fewest mode changes, then shifts bits through
// ShiftIR/ShiftDR as needed.
//
// If a chain has multiple TAPs, package chain takes a statemachine.StateMachine, the
// number of TAPs and their instruction register lengths, and handles
// putting every TAP but the selected one into BYPASS while shifting data
// to and from the selected TAP. It can also auto-detect IR lengths and
// IDCODEs on an unknown chain.
//
// # Example
//
//	h, _ := d2xx.Open(0)
//	c, _ := mpsse.New(h, 20*physic.MegaHertz)
//	taps := chain.New(statemachine.New(c))
//	taps.Detect()
//	taps.SelectTap(0, []byte{235, 0})
//	taps.WriteDR([]byte{0x11, 0x22, 0x33, 0x44}, 8)
package jtagtap
