// Copyright 2026 The jtagtap Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package statemachine

import "github.com/gojtag/jtagtap/cable"

// Register selects which TAP register an operation addresses.
type Register int

const (
	Data Register = iota
	Instruction
)

func (r Register) shiftState() State {
	if r == Data {
		return ShiftDR
	}
	return ShiftIR
}

func (r Register) pauseState() State {
	if r == Data {
		return PauseDR
	}
	return PauseIR
}

// StateMachine owns a cable.Cable and the TAP controller state it
// believes the physical chain is in. It translates high-level requests
// ("read N bits of IR", "go to Idle") into TMS sequences walking the
// shortest path on the state graph, and a single shift operation once in
// a Shift* state.
type StateMachine struct {
	cable cable.Cable
	state State
}

// New creates a StateMachine around an already-open Cable and drives the
// TAP into Reset by clocking TMS=1 five times then TMS=0 once, the
// standard IEEE-recommended reset sequence.
func New(c cable.Cable) *StateMachine {
	sm := &StateMachine{cable: c}
	sm.ModeReset()
	return sm
}

// State reports the TAP state the machine currently believes the chain
// is in.
func (sm *StateMachine) State() State {
	return sm.state
}

func toTMSBytes(bits []bool) []byte {
	out := make([]byte, len(bits))
	for i, b := range bits {
		if b {
			out[i] = 1
		}
	}
	return out
}

// ModeReset emits TMS=[1,1,1,1,1,0] and records the state as Reset,
// matching the fixed initialization/reset sequence every TAP controller
// guarantees regardless of its prior state.
func (sm *StateMachine) ModeReset() {
	tms := []bool{true, true, true, true, true, false}
	if err := sm.cable.ChangeMode(toTMSBytes(tms), true); err != nil {
		panic(err)
	}
	sm.state = Reset
}

// ChangeMode drives the TAP to target via the shortest TMS path from the
// current state, holding TDI high throughout. It is a no-op if the
// machine already believes it is in target.
func (sm *StateMachine) ChangeMode(target State) error {
	if sm.state == target {
		return nil
	}
	tms := path(sm.state, target)
	if err := sm.cable.ChangeMode(toTMSBytes(tms), true); err != nil {
		return err
	}
	sm.state = target
	return nil
}

// ReadReg moves to ShiftDR/ShiftIR as appropriate for reg, then reads
// bits bits from the cable. The machine remains in the Shift* state
// afterward.
func (sm *StateMachine) ReadReg(reg Register, bits int) (cable.Bits, error) {
	if err := sm.ChangeMode(reg.shiftState()); err != nil {
		return cable.Bits{}, err
	}
	return sm.cable.ReadData(bits)
}

// WriteReg moves to ShiftDR/ShiftIR, then writes data to the cable. If
// pauseAfter is set the machine records PauseDR/PauseIR afterward;
// otherwise it remains in Shift*.
func (sm *StateMachine) WriteReg(reg Register, data cable.Bits, pauseAfter bool) error {
	if err := sm.ChangeMode(reg.shiftState()); err != nil {
		return err
	}
	if err := sm.cable.WriteData(data, pauseAfter); err != nil {
		return err
	}
	if pauseAfter {
		sm.state = reg.pauseState()
	}
	return nil
}

// ReadWriteReg behaves like WriteReg but returns the TDO samples shifted
// out during the write.
func (sm *StateMachine) ReadWriteReg(reg Register, data cable.Bits, pauseAfter bool) (cable.Bits, error) {
	if err := sm.ChangeMode(reg.shiftState()); err != nil {
		return cable.Bits{}, err
	}
	out, err := sm.cable.ReadWriteData(data, pauseAfter)
	if err != nil {
		return cable.Bits{}, err
	}
	if pauseAfter {
		sm.state = reg.pauseState()
	}
	return out, nil
}

// QueueRead is the pipelined counterpart of ReadReg; it requires the
// underlying cable to implement cable.QueueingCable.
func (sm *StateMachine) QueueRead(reg Register, bits int) (bool, error) {
	qc, ok := sm.cable.(cable.QueueingCable)
	cable.Assertf(ok, "statemachine", "cable does not support queued reads")
	if err := sm.ChangeMode(reg.shiftState()); err != nil {
		return false, err
	}
	return qc.QueueRead(bits)
}

// QueueReadWrite is the pipelined counterpart of ReadWriteReg.
func (sm *StateMachine) QueueReadWrite(reg Register, data cable.Bits, pauseAfter bool) (bool, error) {
	qc, ok := sm.cable.(cable.QueueingCable)
	cable.Assertf(ok, "statemachine", "cable does not support queued reads")
	if err := sm.ChangeMode(reg.shiftState()); err != nil {
		return false, err
	}
	ok2, err := qc.QueueReadWrite(data, pauseAfter)
	if err != nil {
		return false, err
	}
	if ok2 && pauseAfter {
		sm.state = reg.pauseState()
	}
	return ok2, nil
}

// FinishRead drains the oldest outstanding queued read. It requires the
// underlying cable to implement cable.QueueingCable.
func (sm *StateMachine) FinishRead(bits int) (cable.Bits, error) {
	qc, ok := sm.cable.(cable.QueueingCable)
	cable.Assertf(ok, "statemachine", "cable does not support queued reads")
	return qc.FinishRead(bits)
}

// Flush forces any batched commands on a QueueingCable to the adapter. It
// is a no-op on a cable that doesn't pipeline.
func (sm *StateMachine) Flush() error {
	if qc, ok := sm.cable.(cable.QueueingCable); ok {
		return qc.Flush()
	}
	return nil
}

// Cable returns the underlying Cable, for callers that need back-end
// specific capabilities such as cable.ResetLines.
func (sm *StateMachine) Cable() cable.Cable {
	return sm.cable
}
